// Package progress implements the synchronizer's scoped progress
// reporting: a construct that on entry emits an "init" event with a
// step count, lets the caller report steps or flushed units, and on
// any exit path (including a panic) guarantees the event stream is
// closed. Payloads are published onto a Sink — in production this is
// the NATS-backed queue in internal/eventbus, mirrored into Prometheus
// gauges by the metrics in this package.
package progress

import (
	"context"
	"sync"
)

// Sink is the message-queue capability progress events are published
// onto (spec §6: "the reporter publishes events onto the DB's message
// queue"). payload carries the progress counts plus any phase-specific
// fields.
type Sink interface {
	Publish(ctx context.Context, event string, payload map[string]any) error
}

// Reporter emits the init/main event pair for one sync phase.
type Reporter struct {
	sink     Sink
	initName string
	mainName string
}

// NewReporter builds a Reporter bound to one phase's init/main event names.
func NewReporter(sink Sink, initName, mainName string) *Reporter {
	return &Reporter{sink: sink, initName: initName, mainName: mainName}
}

// InitScope is the handle passed to a WithInit body: each planning
// query that completes calls Step.
type InitScope struct {
	r     *Reporter
	ctx   context.Context
	mu    sync.Mutex
	total int
	done  int
}

// Step reports completion of one planning query and republishes the
// init event's progress.
func (s *InitScope) Step() {
	s.mu.Lock()
	s.done++
	done := s.done
	s.mu.Unlock()
	_ = s.r.sink.Publish(s.ctx, s.r.initName, map[string]any{
		"steps": s.total,
		"done":  done,
	})
}

// WithInit emits the init event with the given step count, runs fn
// with a scope to report steps against, and guarantees a final publish
// even if fn panics or returns an error.
func (r *Reporter) WithInit(ctx context.Context, steps int, fn func(*InitScope) error) error {
	scope := &InitScope{r: r, ctx: ctx, total: steps}
	_ = r.sink.Publish(ctx, r.initName, map[string]any{"steps": steps, "done": 0})
	defer func() {
		_ = r.sink.Publish(ctx, r.initName, map[string]any{"steps": steps, "done": scope.done, "closed": true})
	}()
	return fn(scope)
}

// MainScope is the handle passed to a WithMain body: each flush of
// committed rows calls Advance.
type MainScope struct {
	r     *Reporter
	ctx   context.Context
	mu    sync.Mutex
	total int
	done  int
	extra map[string]any
}

// Advance reports n additional committed units and republishes the
// main event's progress.
func (s *MainScope) Advance(n int) {
	s.mu.Lock()
	s.done += n
	done := s.done
	s.mu.Unlock()
	payload := map[string]any{"total": s.total, "done": done}
	for k, v := range s.extra {
		payload[k] = v
	}
	_ = s.r.sink.Publish(s.ctx, s.r.mainName, payload)
}

// WithMain emits the main event with the given total and extras, runs
// fn with a scope to report flush progress against, and guarantees a
// final publish on every exit path. extra is validated against Schema
// before anything is published, so a call site missing or misnaming a
// documented field fails the phase instead of shipping an incomplete event.
func (r *Reporter) WithMain(ctx context.Context, total int, extra map[string]any, fn func(*MainScope) error) error {
	if err := validateExtra(r.mainName, extra); err != nil {
		return err
	}
	scope := &MainScope{r: r, ctx: ctx, total: total, extra: extra}
	payload := map[string]any{"total": total, "done": 0}
	for k, v := range extra {
		payload[k] = v
	}
	_ = r.sink.Publish(ctx, r.mainName, payload)
	defer func() {
		final := map[string]any{"total": total, "done": scope.done, "closed": true}
		for k, v := range extra {
			final[k] = v
		}
		_ = r.sink.Publish(ctx, r.mainName, final)
	}()
	return fn(scope)
}
