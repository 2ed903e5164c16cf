package sync

import (
	"context"
	"fmt"

	"github.com/lbryio/lbry-sync/internal/progress"
	"github.com/lbryio/lbry-sync/internal/store"
	"github.com/lbryio/lbry-sync/pkg/models"
)

// syncClaims is the claim phase (§4.4). An empty index takes the
// initial-sync branch (distribute + insert only); a populated one
// takes the incremental branch (six planning counts, then insert,
// update, delete, takeover and stake steps in that order).
func (c *Coordinator) syncClaims(ctx context.Context, added models.HeightRange) (*ClaimPhaseResult, error) {
	hasClaims, err := c.db.HasClaims(ctx)
	if err != nil {
		return nil, fmt.Errorf("has claims: %w", err)
	}
	if !hasClaims {
		return c.syncClaimsInitial(ctx)
	}
	return c.syncClaimsIncremental(ctx, added)
}

var channelTypes = []models.TXOType{store.TXOTypeChannel}

func (c *Coordinator) syncClaimsInitial(ctx context.Context) (*ClaimPhaseResult, error) {
	reporter := progress.NewReporter(c.db.MessageQueue(), progress.ClaimInitEvent, progress.ClaimMainEvent)

	var channelCount, contentCount int
	var channelBatches, contentBatches []models.HeightRange

	err := reporter.WithInit(ctx, 2, func(scope *progress.InitScope) error {
		var err error
		channelCount, channelBatches, err = c.db.DistributeUnspentTXOs(ctx, channelTypes, c.cfg.DistributeBatches)
		if err != nil {
			return fmt.Errorf("distribute channel txos: %w", err)
		}
		scope.Step()

		contentCount, contentBatches, err = c.db.DistributeUnspentTXOs(ctx, store.ContentTypeCodes, c.cfg.DistributeBatches)
		if err != nil {
			return fmt.Errorf("distribute content txos: %w", err)
		}
		scope.Step()
		return nil
	})
	if err != nil {
		return nil, err
	}

	err = reporter.WithMain(ctx, channelCount+contentCount, map[string]any{"claims": channelCount + contentCount}, func(scope *progress.MainScope) error {
		if err := c.insertBatchesParallel(ctx, channelTypes, channelBatches, false, scope); err != nil {
			return fmt.Errorf("insert channel batches: %w", err)
		}
		if err := c.insertBatchesParallel(ctx, store.ContentTypeCodes, contentBatches, false, scope); err != nil {
			return fmt.Errorf("insert content batches: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	// Empty index: every channel is "changed" relative to it, so the
	// channel-stats phase runs its own initial-sync bulk path.
	return &ClaimPhaseResult{InitialSync: true, ChangedChannels: channelCount}, nil
}

func (c *Coordinator) insertBatchesParallel(ctx context.Context, types []models.TXOType, batches []models.HeightRange, updateExisting bool, scope *progress.MainScope) error {
	futures := make([]Future, 0, len(batches))
	for _, b := range batches {
		futures = append(futures, c.db.ClaimsInsert(ctx, types, b, updateExisting, scope.Advance))
	}
	_, err := RunTasks(ctx, futures)
	return err
}

func (c *Coordinator) syncClaimsIncremental(ctx context.Context, added models.HeightRange) (*ClaimPhaseResult, error) {
	reporter := progress.NewReporter(c.db.MessageQueue(), progress.ClaimInitEvent, progress.ClaimMainEvent)

	var channelCount, contentCount, abandoned, changedSupports, changedChannels, takeovers int

	err := reporter.WithInit(ctx, 6, func(scope *progress.InitScope) error {
		var err error
		channelCount, err = c.db.CountUnspentTXOs(ctx, channelTypes, &added, true)
		if err != nil {
			return fmt.Errorf("count channel txos: %w", err)
		}
		scope.Step()

		contentCount, err = c.db.CountUnspentTXOs(ctx, store.ContentTypeCodes, &added, true)
		if err != nil {
			return fmt.Errorf("count content txos: %w", err)
		}
		scope.Step()

		abandoned, err = c.db.CountAbandonedClaims(ctx)
		if err != nil {
			return fmt.Errorf("count abandoned claims: %w", err)
		}
		scope.Step()

		changedSupports, err = c.db.CountClaimsWithChangedSupports(ctx, added)
		if err != nil {
			return fmt.Errorf("count claims with changed supports: %w", err)
		}
		scope.Step()

		changedChannels, err = c.db.CountChannelsWithChangedContent(ctx, added)
		if err != nil {
			return fmt.Errorf("count channels with changed content: %w", err)
		}
		scope.Step()

		takeovers, err = c.chain.GetTakeoverCount(ctx, added.Start, added.End)
		if err != nil {
			return fmt.Errorf("count takeovers: %w", err)
		}
		scope.Step()
		return nil
	})
	if err != nil {
		return nil, err
	}

	total := channelCount + contentCount + abandoned + changedSupports + changedChannels + takeovers
	err = reporter.WithMain(ctx, total, map[string]any{"claims": total}, func(scope *progress.MainScope) error {
		// Insertions precede updates because an update of a republished
		// claim references the row inserted in the same cycle.
		var insertFutures []Future
		if channelCount > 0 {
			insertFutures = append(insertFutures, c.db.ClaimsInsert(ctx, channelTypes, added, true, scope.Advance))
		}
		if contentCount > 0 {
			insertFutures = append(insertFutures, c.db.ClaimsInsert(ctx, store.ContentTypeCodes, added, true, scope.Advance))
		}
		if _, err := RunTasks(ctx, insertFutures); err != nil {
			return fmt.Errorf("claims insert: %w", err)
		}

		var updateFutures []Future
		if channelCount > 0 {
			updateFutures = append(updateFutures, c.db.ClaimsUpdate(ctx, channelTypes, added, scope.Advance))
		}
		if contentCount > 0 {
			updateFutures = append(updateFutures, c.db.ClaimsUpdate(ctx, store.ContentTypeCodes, added, scope.Advance))
		}
		if _, err := RunTasks(ctx, updateFutures); err != nil {
			return fmt.Errorf("claims update: %w", err)
		}

		if abandoned > 0 {
			if _, err := Wait(ctx, c.db.ClaimsDelete(ctx, abandoned, scope.Advance)); err != nil {
				return fmt.Errorf("claims delete: %w", err)
			}
		}
		if takeovers > 0 {
			if _, err := Wait(ctx, c.db.UpdateTakeovers(ctx, added, takeovers, scope.Advance)); err != nil {
				return fmt.Errorf("update takeovers: %w", err)
			}
		}
		// Stake recomputation here operates on the previously-committed
		// support snapshot; supports added in this same cycle are
		// reflected one cycle later (§4.4 rationale, tested by P4).
		if changedSupports > 0 {
			if _, err := Wait(ctx, c.db.UpdateStakes(ctx, added, changedSupports, scope.Advance)); err != nil {
				return fmt.Errorf("update stakes: %w", err)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	if changedChannels > 0 {
		return &ClaimPhaseResult{InitialSync: false, ChangedChannels: changedChannels}, nil
	}
	return nil, nil
}
