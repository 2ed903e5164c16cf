package sync

import "context"

// edgeEvent is a binary edge-triggered signal: a semaphore of capacity
// one with drain-on-read. Set is idempotent while unread; Wait blocks
// until the next Set and clears it atomically, so bursts of Set calls
// during a Wait-to-Wait gap collapse into a single wakeup.
type edgeEvent struct {
	ch chan struct{}
}

func newEdgeEvent() *edgeEvent {
	return &edgeEvent{ch: make(chan struct{}, 1)}
}

// Set raises the edge. A pending, unread edge is left as-is.
func (e *edgeEvent) Set() {
	select {
	case e.ch <- struct{}{}:
	default:
	}
}

// Wait blocks until the edge is set, clearing it on return, or until
// ctx is done.
func (e *edgeEvent) Wait(ctx context.Context) error {
	select {
	case <-e.ch:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
