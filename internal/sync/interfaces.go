// Package sync is the blockchain synchronizer coordinator: it drives
// the advance cycle (blocks, txios, claims, supports, channel stats,
// filters, trends) against whatever Database, Chain and EventBus
// implementations it is given. Adapted from the teacher's
// internal/syncer/syncer.go dual-mode run loop, generalized from a
// single "poll the RPC node and write rows" job into the multi-phase,
// multi-worker pipeline synchronizer.py describes.
package sync

import (
	"context"

	"github.com/lbryio/lbry-sync/internal/progress"
	"github.com/lbryio/lbry-sync/pkg/models"
)

// Batching and chunking constants, carried over verbatim from
// synchronizer.py's class constants.
const (
	TxFlushSize      = 20_000
	FilterChunkSize  = 100_000
	FilterFlushSize  = 10_000
	ClaimChunkSize   = 50_000
	ClaimFlushSize   = 10_000
	SupportChunkSize = 50_000
	SupportFlushSize = 10_000
)

// Result carries the outcome of an asynchronous unit of work. A zero
// Value with a nil Err means the task produced nothing worth reporting.
type Result struct {
	Value any
	Err   error
}

// Future resolves to a single Result once the work it represents
// completes. Reading it after the producer is done never blocks.
type Future <-chan Result

// Wait blocks until f resolves or ctx is done, whichever happens first.
func Wait(ctx context.Context, f Future) (any, error) {
	select {
	case r := <-f:
		return r.Value, r.Err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// FlushFunc reports incremental progress from inside a long-running
// worker call, so the coordinator can advance a Reporter's MainScope
// without waiting for the whole batch to finish.
type FlushFunc func(n int)

// Chain is the set of read-only queries the coordinator makes against
// the trusted node's on-disk state. Implemented by internal/chainfile.Scanner.
type Chain interface {
	GetBestHeight(ctx context.Context) (uint64, error)
	GetBlockFiles(ctx context.Context, opts ...models.FileQuery) ([]models.BlockFile, error)
	GetClaimMetadataCount(ctx context.Context, start, end uint64) (int, error)
	GetSupportMetadataCount(ctx context.Context, start, end uint64) (int, error)
	GetTakeoverCount(ctx context.Context, start, end uint64) (int, error)
	Subscribe()
	Unsubscribe()
	OnBlock() <-chan struct{}
}

// EventBus is the outward notification channel the coordinator uses
// to announce newly indexed heights. Implemented by internal/eventbus.Bus.
type EventBus interface {
	PublishBlockEvent(ctx context.Context, height uint64) error
}

// Database is the full set of capabilities the coordinator needs from
// the relational store: read-only bookkeeping queries plus the five
// worker task families, each returning a Future so run_tasks-style
// fan-out (internal/sync/taskgroup.go) can await many at once under
// first-exception cancellation.
type Database interface {
	HasClaims(ctx context.Context) (bool, error)
	HasSupports(ctx context.Context) (bool, error)
	MessageQueue() progress.Sink

	BestHeightForFile(ctx context.Context, fileNumber int) (int64, error)

	// Block/TXIO phase.
	SyncBlockFile(ctx context.Context, fileNumber int, startHeight uint64, flushSize int, flush FlushFunc) Future
	SyncTXIO(ctx context.Context, genesis bool, flush FlushFunc) Future

	// Claim phase.
	CountUnspentTXOs(ctx context.Context, types []models.TXOType, blocks *models.HeightRange, missingOrStaleInClaims bool) (int, error)
	DistributeUnspentTXOs(ctx context.Context, types []models.TXOType, workers int) (int, []models.HeightRange, error)
	CountAbandonedClaims(ctx context.Context) (int, error)
	CountClaimsWithChangedSupports(ctx context.Context, blocks models.HeightRange) (int, error)
	CountChannelsWithChangedContent(ctx context.Context, blocks models.HeightRange) (int, error)
	ClaimsInsert(ctx context.Context, types []models.TXOType, batch models.HeightRange, updateExisting bool, flush FlushFunc) Future
	ClaimsUpdate(ctx context.Context, types []models.TXOType, batch models.HeightRange, flush FlushFunc) Future
	ClaimsDelete(ctx context.Context, count int, flush FlushFunc) Future
	UpdateTakeovers(ctx context.Context, blocks models.HeightRange, count int, flush FlushFunc) Future
	UpdateStakes(ctx context.Context, blocks models.HeightRange, count int, flush FlushFunc) Future
	UpdateChannelStats(ctx context.Context, blocks models.HeightRange, initialSync bool, count int, flush FlushFunc) Future

	// Support phase.
	CountAbandonedSupports(ctx context.Context) (int, error)
	SupportsInsert(ctx context.Context, batch models.HeightRange, updateExisting bool, flush FlushFunc) Future
	SupportsDelete(ctx context.Context, count int, flush FlushFunc) Future

	// Filter phase.
	FindFilterlessBlockRanges(ctx context.Context) ([]models.HeightRange, error)
	SyncFilters(ctx context.Context, chunk models.HeightRange, flushSize int, flush FlushFunc) Future

	// Trend phase.
	SyncTrends(ctx context.Context, blocks models.HeightRange) Future
}
