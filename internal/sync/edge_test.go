package sync

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestEdgeCoalescesBursts exercises P7: many Set calls before a single
// Wait must collapse into exactly one wakeup.
func TestEdgeCoalescesBursts(t *testing.T) {
	e := newEdgeEvent()
	for i := 0; i < 10; i++ {
		e.Set()
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, e.Wait(ctx))

	// The single pending edge was consumed; a second Wait with no new
	// Set must time out rather than fire again.
	ctx2, cancel2 := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel2()
	assert.ErrorIs(t, e.Wait(ctx2), context.DeadlineExceeded)
}

func TestEdgeWaitUnblocksOnSet(t *testing.T) {
	e := newEdgeEvent()
	done := make(chan error, 1)
	go func() {
		done <- e.Wait(context.Background())
	}()

	select {
	case <-done:
		t.Fatal("Wait returned before Set was called")
	case <-time.After(20 * time.Millisecond):
	}

	e.Set()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("Wait did not unblock after Set")
	}
}
