package sync

import (
	"context"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lbryio/lbry-sync/pkg/models"
)

func newTestCoordinator(db Database, chain Chain, bus EventBus) *Coordinator {
	return New(zerolog.Nop(), db, chain, bus, Config{})
}

func TestSyncBlocksSkipsFullyCaughtUpFiles(t *testing.T) {
	chain := &fakeChain{
		files: []models.BlockFile{{FileNumber: 0, BestHeight: 100, TxCount: 500, BlockCount: 100}},
	}
	db := &fakeDB{bestHeightByFile: map[int]int64{0: 100}}
	c := newTestCoordinator(db, chain, &fakeBus{})

	added, err := c.syncBlocks(context.Background())
	require.NoError(t, err)
	assert.Nil(t, added)
	assert.Empty(t, db.calls, "a caught-up file must not spawn a SyncBlockFile task")
}

func TestSyncBlocksFullIngestOnEmptyIndex(t *testing.T) {
	chain := &fakeChain{
		files: []models.BlockFile{{FileNumber: 0, BestHeight: 49, TxCount: 200, BlockCount: 50}},
	}
	db := &fakeDB{
		bestHeightByFile: map[int]int64{},
		syncBlockFileRet: map[int]uint64{0: 49},
	}
	c := newTestCoordinator(db, chain, &fakeBus{})

	added, err := c.syncBlocks(context.Background())
	require.NoError(t, err)
	require.NotNil(t, added)
	assert.Equal(t, uint64(0), added.Start)
	assert.Equal(t, uint64(49), added.End)
	assert.Contains(t, db.calls, "SyncBlockFile")
}

func TestSyncBlocksRefetchesOnlyTheSuffix(t *testing.T) {
	chain := &fakeChain{
		files: []models.BlockFile{{FileNumber: 0, BestHeight: 100, TxCount: 1000, BlockCount: 100}},
		restricted: map[int][]models.BlockFile{
			0: {{FileNumber: 0, BestHeight: 100, TxCount: 40, BlockCount: 20}},
		},
	}
	db := &fakeDB{
		bestHeightByFile: map[int]int64{0: 80},
		syncBlockFileRet: map[int]uint64{0: 100},
	}
	c := newTestCoordinator(db, chain, &fakeBus{})

	added, err := c.syncBlocks(context.Background())
	require.NoError(t, err)
	require.NotNil(t, added)
	assert.Equal(t, uint64(81), added.Start)
	assert.Equal(t, uint64(100), added.End)
}

// TestAdvanceIsIdempotentWhenNothingChanged exercises P5: calling
// advance() twice with no new upstream blocks must not trigger any
// claim, support or filter work the second time.
func TestAdvanceIsIdempotentWhenNothingChanged(t *testing.T) {
	chain := &fakeChain{
		files: []models.BlockFile{{FileNumber: 0, BestHeight: 10, TxCount: 50, BlockCount: 10}},
	}
	db := &fakeDB{
		hasClaims:        true,
		hasSupports:      true,
		bestHeightByFile: map[int]int64{0: 10},
	}
	c := newTestCoordinator(db, chain, &fakeBus{})

	require.NoError(t, c.advance(context.Background()))
	require.NoError(t, c.advance(context.Background()))

	assert.Empty(t, db.calls, "no new blocks means no downstream phase should run")
}

// TestAdvancePublishesBlockEventAndChannelStats exercises the
// initial-sync claim branch's channel-stats trigger and confirms the
// block event carries the new tip.
func TestAdvancePublishesBlockEventAndChannelStats(t *testing.T) {
	chain := &fakeChain{
		files: []models.BlockFile{{FileNumber: 0, BestHeight: 9, TxCount: 90, BlockCount: 10}},
	}
	db := &fakeDB{
		syncBlockFileRet: map[int]uint64{0: 9},
		channelCount:     3,
	}
	bus := &fakeBus{}
	c := newTestCoordinator(db, chain, bus)

	require.NoError(t, c.advance(context.Background()))

	require.Len(t, bus.published, 1)
	assert.Equal(t, uint64(9), bus.published[0])
	assert.Contains(t, db.calls, "UpdateChannelStats")

	lastIndexed, lastErr := c.Status()
	assert.NoError(t, lastErr)
	assert.Equal(t, uint64(9), lastIndexed)
}

func TestAdvanceSkipsChannelStatsWhenNoChannelsChanged(t *testing.T) {
	chain := &fakeChain{
		files: []models.BlockFile{{FileNumber: 0, BestHeight: 100, TxCount: 1000, BlockCount: 100}},
		restricted: map[int][]models.BlockFile{
			0: {{FileNumber: 0, BestHeight: 100, TxCount: 200, BlockCount: 20}},
		},
	}
	db := &fakeDB{
		hasClaims:        true,
		hasSupports:      true,
		bestHeightByFile: map[int]int64{0: 80},
		syncBlockFileRet: map[int]uint64{0: 100},
		changedChan:      0,
	}
	c := newTestCoordinator(db, chain, &fakeBus{})

	require.NoError(t, c.advance(context.Background()))
	assert.NotContains(t, db.calls, "UpdateChannelStats")
}
