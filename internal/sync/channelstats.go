package sync

import (
	"context"
	"fmt"

	"github.com/lbryio/lbry-sync/pkg/models"
)

// syncChannelStats is the channel-stats phase (§4.6): a single DB task
// that recomputes aggregate content statistics for channels flagged by
// the claim phase. It has no entry in the progress schema (§6), so it
// reports no init/main events of its own.
func (c *Coordinator) syncChannelStats(ctx context.Context, added models.HeightRange, initialSync bool, changedChannels int) error {
	if _, err := Wait(ctx, c.db.UpdateChannelStats(ctx, added, initialSync, changedChannels, nil)); err != nil {
		return fmt.Errorf("update channel stats: %w", err)
	}
	return nil
}
