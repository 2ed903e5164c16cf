package progress

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingSink struct {
	mu      sync.Mutex
	events  []string
	payload []map[string]any
}

func (s *recordingSink) Publish(_ context.Context, event string, payload map[string]any) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, event)
	s.payload = append(s.payload, payload)
	return nil
}

func TestWithInitPublishesStartAndClosedEvents(t *testing.T) {
	sink := &recordingSink{}
	r := NewReporter(sink, "init", "main")

	err := r.WithInit(context.Background(), 3, func(scope *InitScope) error {
		scope.Step()
		scope.Step()
		scope.Step()
		return nil
	})
	require.NoError(t, err)

	require.Len(t, sink.events, 5) // start + 3 steps + closed
	for _, e := range sink.events {
		assert.Equal(t, "init", e)
	}
	last := sink.payload[len(sink.payload)-1]
	assert.Equal(t, true, last["closed"])
	assert.Equal(t, 3, last["done"])
}

func TestWithInitClosesEvenOnError(t *testing.T) {
	sink := &recordingSink{}
	r := NewReporter(sink, "init", "main")
	boom := errors.New("boom")

	err := r.WithInit(context.Background(), 2, func(scope *InitScope) error {
		scope.Step()
		return boom
	})
	require.ErrorIs(t, err, boom)

	last := sink.payload[len(sink.payload)-1]
	assert.Equal(t, true, last["closed"])
	assert.Equal(t, 1, last["done"])
}

func TestWithMainAccumulatesAdvanceAndExtras(t *testing.T) {
	sink := &recordingSink{}
	r := NewReporter(sink, ClaimInitEvent, ClaimMainEvent)

	err := r.WithMain(context.Background(), 100, map[string]any{"claims": 100}, func(scope *MainScope) error {
		scope.Advance(40)
		scope.Advance(60)
		return nil
	})
	require.NoError(t, err)

	last := sink.payload[len(sink.payload)-1]
	assert.Equal(t, 100, last["done"])
	assert.Equal(t, 100, last["claims"])
	assert.Equal(t, true, last["closed"])
}

func TestWithMainClosesOnPanic(t *testing.T) {
	sink := &recordingSink{}
	r := NewReporter(sink, TrendInitEvent, TrendMainEvent)

	assert.Panics(t, func() {
		_ = r.WithMain(context.Background(), 10, nil, func(scope *MainScope) error {
			scope.Advance(5)
			panic("boom")
		})
	})

	last := sink.payload[len(sink.payload)-1]
	assert.Equal(t, true, last["closed"])
	assert.Equal(t, 5, last["done"])
}

func TestWithMainRejectsExtraNotMatchingSchema(t *testing.T) {
	sink := &recordingSink{}
	r := NewReporter(sink, ClaimInitEvent, ClaimMainEvent)

	err := r.WithMain(context.Background(), 10, map[string]any{"wrong_key": 1}, func(scope *MainScope) error {
		t.Fatal("fn must not run when extra fails schema validation")
		return nil
	})
	assert.Error(t, err)
	assert.Empty(t, sink.events)
}
