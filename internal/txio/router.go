// Package txio routes transaction outputs to the builder that turns
// their script into a typed row. Adapted from the teacher's
// internal/router/event_log_handler_router.go: instead of dispatching
// an Ethereum log's topic0 signature to an ABI decoder, this dispatches
// a TXO's type code to a claim/support builder.
package txio

import (
	"context"
	"fmt"

	"github.com/lbryio/lbry-sync/pkg/models"
)

// BuilderFunc turns a raw output into the payload its row needs.
type BuilderFunc func(ctx context.Context, txo models.TXO) (any, error)

// Router dispatches TXOs to their registered builder by type code.
type Router struct {
	builders map[models.TXOType]BuilderFunc
}

// New creates an empty router.
func New() *Router {
	return &Router{builders: make(map[models.TXOType]BuilderFunc)}
}

// Register binds a builder to a TXO type code.
func (r *Router) Register(t models.TXOType, fn BuilderFunc) {
	r.builders[t] = fn
}

// HasBuilder reports whether a builder is registered for t.
func (r *Router) HasBuilder(t models.TXOType) bool {
	_, ok := r.builders[t]
	return ok
}

// Route runs the registered builder for txo.Type, or returns nil, nil
// if no builder is registered (an output type the synchronizer does
// not derive higher-level rows from).
func (r *Router) Route(ctx context.Context, txo models.TXO) (any, error) {
	fn, ok := r.builders[txo.Type]
	if !ok {
		return nil, nil
	}
	payload, err := fn(ctx, txo)
	if err != nil {
		return nil, fmt.Errorf("builder failed for txo %s:%d: %w", txo.TxHash.Hex(), txo.Position, err)
	}
	return payload, nil
}
