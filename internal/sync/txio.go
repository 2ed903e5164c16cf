package sync

import (
	"context"
	"fmt"

	"github.com/lbryio/lbry-sync/pkg/models"
)

// syncTXIO is the TXIO phase (§4.3): a single idempotent DB task that
// materializes transaction-output/spend relations over the added
// range. The genesis flag tells the DB task that the added range
// starts at height zero.
func (c *Coordinator) syncTXIO(ctx context.Context, added models.HeightRange) error {
	genesis := added.Start == 0
	if _, err := Wait(ctx, c.db.SyncTXIO(ctx, genesis, nil)); err != nil {
		return fmt.Errorf("sync txio over %d-%d: %w", added.Start, added.End, err)
	}
	return nil
}
