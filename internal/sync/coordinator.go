package sync

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	stackerrors "github.com/pkg/errors"
	"github.com/rs/zerolog"
)

// Config holds the tuning knobs spec'd as "not correctness parameters"
// (§5) plus the two feature flags that gate the concurrent phases.
type Config struct {
	FiltersEnabled    bool
	TrendingEnabled   bool
	DistributeBatches int // how many parallel batches to split initial-sync distribution into
}

func (c Config) withDefaults() Config {
	if c.DistributeBatches <= 0 {
		c.DistributeBatches = 4
	}
	return c
}

// Coordinator is the single long-lived synchronizer described in §2:
// it owns the advance loop, the chain subscription and the stop
// signal, and drives the five sequential phases plus the two
// concurrent ones on every edge. Grounded structurally on the
// teacher's Syncer in internal/syncer/syncer.go (constructor shape,
// zerolog.Logger field, RWMutex-guarded status).
type Coordinator struct {
	logger zerolog.Logger
	db     Database
	chain  Chain
	bus    EventBus
	cfg    Config

	edge *edgeEvent

	cancel context.CancelFunc
	done   chan struct{}

	mu            sync.RWMutex
	lastIndexed   uint64
	lastCycleErr  error
}

// New creates a Coordinator. It does not start any background work;
// call Start for that.
func New(logger zerolog.Logger, db Database, chain Chain, bus EventBus, cfg Config) *Coordinator {
	return &Coordinator{
		logger: logger.With().Str("component", "sync").Logger(),
		db:     db,
		chain:  chain,
		bus:    bus,
		cfg:    cfg.withDefaults(),
		edge:   newEdgeEvent(),
	}
}

// Start runs one full advance() synchronously as an initial catch-up,
// then subscribes to the chain's new-block notifications and launches
// the coalescing advance loop in the background. It returns once the
// initial catch-up completes; the loop keeps running until Stop is
// called or ctx is done.
func (c *Coordinator) Start(ctx context.Context) error {
	c.logger.Info().Msg("starting blockchain synchronizer")

	if err := c.advance(ctx); err != nil {
		return fmt.Errorf("initial advance: %w", err)
	}

	c.chain.Subscribe()
	onBlock := c.chain.OnBlock()

	loopCtx, cancel := context.WithCancel(ctx)
	c.cancel = cancel
	c.done = make(chan struct{})

	go c.forwardEdges(loopCtx, onBlock)
	go c.advanceLoop(loopCtx)

	return nil
}

// Stop unsubscribes from the chain, cancels the advance loop and waits
// for it to exit. In-flight DB tasks observe the cancelled context at
// their next cooperative yield and abandon work; no partial commit
// defines a new indexed tip (file-progress only advances on a
// successful commit, per I1).
func (c *Coordinator) Stop() {
	c.chain.Unsubscribe()
	if c.cancel != nil {
		c.cancel()
	}
	if c.done != nil {
		<-c.done
	}
}

func (c *Coordinator) forwardEdges(ctx context.Context, onBlock <-chan struct{}) {
	for {
		select {
		case <-ctx.Done():
			return
		case _, ok := <-onBlock:
			if !ok {
				return
			}
			c.edge.Set()
		}
	}
}

// advanceLoop blocks on the edge event, clearing it before each cycle
// so bursts collapse into exactly one follow-up cycle (P7). Loop
// cancellation is terminal and silent; any other error is logged and
// triggers Stop — the daemon does not retry internally.
func (c *Coordinator) advanceLoop(ctx context.Context) {
	defer close(c.done)
	for {
		if err := c.edge.Wait(ctx); err != nil {
			return // context cancelled: silent, terminal
		}

		if err := c.advance(ctx); err != nil {
			c.mu.Lock()
			c.lastCycleErr = err
			c.mu.Unlock()

			if errors.Is(err, context.Canceled) {
				return
			}
			c.logger.Error().Stack().Err(stackerrors.WithStack(err)).Msg("advance cycle failed, stopping synchronizer")
			go c.Stop()
			return
		}
	}
}

// advance runs one full pipeline cycle: the five sequential phases in
// order, with filter generation and trend computation launched as
// detached tasks immediately after the block phase and awaited only
// at the very end (§4.1).
func (c *Coordinator) advance(ctx context.Context) (err error) {
	start := time.Now()
	defer func() { cycleDuration.Observe(time.Since(start).Seconds()) }()

	addedRange, err := c.syncBlocks(ctx)
	if err != nil {
		phaseErrors.WithLabelValues("block").Inc()
		return fmt.Errorf("block phase: %w", err)
	}

	filterFuture := c.launchFilters(ctx)
	trendFuture := c.launchTrends(ctx, addedRange)

	if addedRange != nil {
		if err := c.syncTXIO(ctx, *addedRange); err != nil {
			phaseErrors.WithLabelValues("txio").Inc()
			return fmt.Errorf("txio phase: %w", err)
		}

		claimResult, err := c.syncClaims(ctx, *addedRange)
		if err != nil {
			phaseErrors.WithLabelValues("claims").Inc()
			return fmt.Errorf("claim phase: %w", err)
		}

		if err := c.syncSupports(ctx, *addedRange); err != nil {
			phaseErrors.WithLabelValues("supports").Inc()
			return fmt.Errorf("support phase: %w", err)
		}

		if claimResult != nil && claimResult.ChangedChannels > 0 {
			if err := c.syncChannelStats(ctx, *addedRange, claimResult.InitialSync, claimResult.ChangedChannels); err != nil {
				phaseErrors.WithLabelValues("channel_stats").Inc()
				return fmt.Errorf("channel-stats phase: %w", err)
			}
		}
	}

	if _, err := Wait(ctx, filterFuture); err != nil {
		phaseErrors.WithLabelValues("filters").Inc()
		return fmt.Errorf("filter phase: %w", err)
	}
	if _, err := Wait(ctx, trendFuture); err != nil {
		phaseErrors.WithLabelValues("trends").Inc()
		return fmt.Errorf("trend phase: %w", err)
	}

	if addedRange != nil {
		if err := c.bus.PublishBlockEvent(ctx, addedRange.End); err != nil {
			return fmt.Errorf("publish block event: %w", err)
		}
		c.mu.Lock()
		c.lastIndexed = addedRange.End
		c.lastCycleErr = nil
		c.mu.Unlock()
		indexedHeight.Set(float64(addedRange.End))
	}

	if best, err := c.chain.GetBestHeight(ctx); err == nil {
		chainHeight.Set(float64(best))
	}

	return nil
}

// Status reports the last height this coordinator committed and the
// error from the most recent failed cycle, if any.
func (c *Coordinator) Status() (lastIndexed uint64, lastErr error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.lastIndexed, c.lastCycleErr
}

// ClaimPhaseResult is the optional outcome of syncClaims: it is
// non-nil only when channel-stats needs to run this cycle.
type ClaimPhaseResult struct {
	InitialSync     bool
	ChangedChannels int
}
