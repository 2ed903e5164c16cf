package sync

import (
	"context"
	"fmt"

	"github.com/lbryio/lbry-sync/internal/progress"
	"github.com/lbryio/lbry-sync/pkg/models"
)

// launchFilters starts the filter phase (§4.7) as a detached task and
// returns a Future the coordinator awaits only after the sequential
// phases have finished. Filter generation consumes only committed
// block data and never races phases 2-6.
func (c *Coordinator) launchFilters(ctx context.Context) Future {
	result := make(chan Result, 1)
	go func() {
		defer close(result)
		if !c.cfg.FiltersEnabled {
			result <- Result{}
			return
		}
		result <- Result{Err: c.syncFilters(ctx)}
	}()
	return result
}

func (c *Coordinator) syncFilters(ctx context.Context) error {
	reporter := progress.NewReporter(c.db.MessageQueue(), progress.FilterInitEvent, progress.FilterMainEvent)

	var ranges []models.HeightRange
	err := reporter.WithInit(ctx, 1, func(scope *progress.InitScope) error {
		var err error
		ranges, err = c.db.FindFilterlessBlockRanges(ctx)
		scope.Step()
		if err != nil {
			return fmt.Errorf("find filterless block ranges: %w", err)
		}
		return nil
	})
	if err != nil {
		return err
	}
	if len(ranges) == 0 {
		return nil
	}

	chunks := chunkRanges(ranges, FilterChunkSize)
	var totalBlocks uint64
	for _, ch := range chunks {
		totalBlocks += ch.Len()
	}

	return reporter.WithMain(ctx, int(totalBlocks), nil, func(scope *progress.MainScope) error {
		futures := make([]Future, 0, len(chunks))
		for _, ch := range chunks {
			futures = append(futures, c.db.SyncFilters(ctx, ch, FilterFlushSize, scope.Advance))
		}
		_, err := RunTasks(ctx, futures)
		return err
	})
}

// chunkRanges splits each contiguous range into pieces of at most
// chunkSize heights, so no single filter task spans more than one
// chunk's worth of blocks.
func chunkRanges(ranges []models.HeightRange, chunkSize uint64) []models.HeightRange {
	var out []models.HeightRange
	for _, r := range ranges {
		start := r.Start
		for start <= r.End {
			end := start + chunkSize - 1
			if end > r.End {
				end = r.End
			}
			out = append(out, models.HeightRange{Start: start, End: end})
			if end == r.End {
				break
			}
			start = end + 1
		}
	}
	return out
}
