package sync

import (
	"context"
	"fmt"

	"github.com/lbryio/lbry-sync/internal/progress"
	"github.com/lbryio/lbry-sync/internal/store"
	"github.com/lbryio/lbry-sync/pkg/models"
)

var supportTypes = []models.TXOType{store.TXOTypeSupport}

// syncSupports is the support phase (§4.5): it mirrors the claim phase
// but over a single type with no takeovers or stats.
func (c *Coordinator) syncSupports(ctx context.Context, added models.HeightRange) error {
	hasSupports, err := c.db.HasSupports(ctx)
	if err != nil {
		return fmt.Errorf("has supports: %w", err)
	}
	if !hasSupports {
		return c.syncSupportsInitial(ctx)
	}
	return c.syncSupportsIncremental(ctx, added)
}

func (c *Coordinator) syncSupportsInitial(ctx context.Context) error {
	reporter := progress.NewReporter(c.db.MessageQueue(), progress.SupportInitEvent, progress.SupportMainEvent)

	var count int
	var batches []models.HeightRange
	err := reporter.WithInit(ctx, 1, func(scope *progress.InitScope) error {
		var err error
		count, batches, err = c.db.DistributeUnspentTXOs(ctx, supportTypes, c.cfg.DistributeBatches)
		if err != nil {
			return fmt.Errorf("distribute support txos: %w", err)
		}
		scope.Step()
		return nil
	})
	if err != nil {
		return err
	}

	return reporter.WithMain(ctx, count, map[string]any{"supports": count}, func(scope *progress.MainScope) error {
		futures := make([]Future, 0, len(batches))
		for _, b := range batches {
			futures = append(futures, c.db.SupportsInsert(ctx, b, false, scope.Advance))
		}
		_, err := RunTasks(ctx, futures)
		return err
	})
}

func (c *Coordinator) syncSupportsIncremental(ctx context.Context, added models.HeightRange) error {
	reporter := progress.NewReporter(c.db.MessageQueue(), progress.SupportInitEvent, progress.SupportMainEvent)

	var newCount, abandoned int
	err := reporter.WithInit(ctx, 2, func(scope *progress.InitScope) error {
		var err error
		newCount, err = c.db.CountUnspentTXOs(ctx, supportTypes, &added, false)
		if err != nil {
			return fmt.Errorf("count unspent supports: %w", err)
		}
		scope.Step()

		abandoned, err = c.db.CountAbandonedSupports(ctx)
		if err != nil {
			return fmt.Errorf("count abandoned supports: %w", err)
		}
		scope.Step()
		return nil
	})
	if err != nil {
		return err
	}

	return reporter.WithMain(ctx, newCount+abandoned, map[string]any{"supports": newCount + abandoned}, func(scope *progress.MainScope) error {
		if newCount > 0 {
			if _, err := Wait(ctx, c.db.SupportsInsert(ctx, added, true, scope.Advance)); err != nil {
				return fmt.Errorf("supports insert: %w", err)
			}
		}
		if abandoned > 0 {
			if _, err := Wait(ctx, c.db.SupportsDelete(ctx, abandoned, scope.Advance)); err != nil {
				return fmt.Errorf("supports delete: %w", err)
			}
		}
		return nil
	})
}
