package sync

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/lbryio/lbry-sync/pkg/models"
)

func TestChunkRangesSplitsOversizedRanges(t *testing.T) {
	ranges := []models.HeightRange{{Start: 0, End: 249}}
	chunks := chunkRanges(ranges, 100)

	assert.Equal(t, []models.HeightRange{
		{Start: 0, End: 99},
		{Start: 100, End: 199},
		{Start: 200, End: 249},
	}, chunks)
}

func TestChunkRangesLeavesSmallRangesIntact(t *testing.T) {
	ranges := []models.HeightRange{{Start: 10, End: 15}}
	chunks := chunkRanges(ranges, 100)
	assert.Equal(t, ranges, chunks)
}

func TestChunkRangesHandlesMultipleInputRanges(t *testing.T) {
	ranges := []models.HeightRange{
		{Start: 0, End: 5},
		{Start: 20, End: 25},
	}
	chunks := chunkRanges(ranges, 3)

	assert.Equal(t, []models.HeightRange{
		{Start: 0, End: 2},
		{Start: 3, End: 5},
		{Start: 20, End: 22},
		{Start: 23, End: 25},
	}, chunks)
}

func TestChunkRangesEmptyInput(t *testing.T) {
	assert.Nil(t, chunkRanges(nil, 100))
}
