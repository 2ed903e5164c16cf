package sync

import (
	"context"

	"github.com/lbryio/lbry-sync/internal/progress"
	"github.com/lbryio/lbry-sync/pkg/models"
)

// resolved wraps a value/error pair into an already-settled Future, for
// fakes that don't need to simulate real asynchrony.
func resolved(v any, err error) Future {
	ch := make(chan Result, 1)
	ch <- Result{Value: v, Err: err}
	close(ch)
	return ch
}

type nullSink struct{}

func (nullSink) Publish(context.Context, string, map[string]any) error { return nil }

// fakeChain is a scriptable Chain for exercising the block phase
// without touching the filesystem.
type fakeChain struct {
	bestHeight uint64
	files      []models.BlockFile
	restricted map[int][]models.BlockFile // keyed by file number, for the refetch-suffix branch
	takeovers  int
}

func (f *fakeChain) GetBestHeight(context.Context) (uint64, error) { return f.bestHeight, nil }

func (f *fakeChain) GetBlockFiles(_ context.Context, opts ...models.FileQuery) ([]models.BlockFile, error) {
	if len(opts) == 0 || !opts[0].Restrict {
		return f.files, nil
	}
	return f.restricted[opts[0].FileNumber], nil
}

func (f *fakeChain) GetClaimMetadataCount(context.Context, uint64, uint64) (int, error) { return 0, nil }
func (f *fakeChain) GetSupportMetadataCount(context.Context, uint64, uint64) (int, error) {
	return 0, nil
}
func (f *fakeChain) GetTakeoverCount(context.Context, uint64, uint64) (int, error) {
	return f.takeovers, nil
}
func (f *fakeChain) Subscribe()          {}
func (f *fakeChain) Unsubscribe()        {}
func (f *fakeChain) OnBlock() <-chan struct{} { return make(chan struct{}) }

// fakeDB is a scriptable Database. Every method defaults to a
// zero-value no-op Future/count; tests set the fields they care about.
type fakeDB struct {
	hasClaims   bool
	hasSupports bool

	bestHeightByFile map[int]int64
	syncBlockFileRet map[int]uint64 // fileNumber -> highest height committed

	unspentCounts map[string]int // keyed by a test-chosen label, unused by default path
	channelCount  int
	contentCount  int
	abandoned     int
	changedSupp   int
	changedChan   int

	filterlessRanges []models.HeightRange

	calls []string // records which methods were invoked, in order
}

func (d *fakeDB) record(name string) { d.calls = append(d.calls, name) }

func (d *fakeDB) HasClaims(context.Context) (bool, error)   { return d.hasClaims, nil }
func (d *fakeDB) HasSupports(context.Context) (bool, error) { return d.hasSupports, nil }
func (d *fakeDB) MessageQueue() progress.Sink                { return nullSink{} }

func (d *fakeDB) BestHeightForFile(_ context.Context, fileNumber int) (int64, error) {
	if v, ok := d.bestHeightByFile[fileNumber]; ok {
		return v, nil
	}
	return -1, nil
}

func (d *fakeDB) SyncBlockFile(_ context.Context, fileNumber int, startHeight uint64, _ int, flush FlushFunc) Future {
	d.record("SyncBlockFile")
	if flush != nil {
		flush(1)
	}
	if h, ok := d.syncBlockFileRet[fileNumber]; ok {
		return resolved(h, nil)
	}
	return resolved(startHeight, nil)
}

func (d *fakeDB) SyncTXIO(context.Context, bool, FlushFunc) Future {
	d.record("SyncTXIO")
	return resolved(0, nil)
}

func (d *fakeDB) CountUnspentTXOs(_ context.Context, types []models.TXOType, _ *models.HeightRange, _ bool) (int, error) {
	if len(types) == 1 && types[0] == 1 { // channel type code
		return d.channelCount, nil
	}
	return d.contentCount, nil
}

func (d *fakeDB) DistributeUnspentTXOs(_ context.Context, types []models.TXOType, _ int) (int, []models.HeightRange, error) {
	if len(types) == 1 && types[0] == 1 {
		if d.channelCount == 0 {
			return 0, nil, nil
		}
		return d.channelCount, []models.HeightRange{{Start: 0, End: 10}}, nil
	}
	if d.contentCount == 0 {
		return 0, nil, nil
	}
	return d.contentCount, []models.HeightRange{{Start: 0, End: 10}}, nil
}

func (d *fakeDB) CountAbandonedClaims(context.Context) (int, error) { return d.abandoned, nil }
func (d *fakeDB) CountClaimsWithChangedSupports(context.Context, models.HeightRange) (int, error) {
	return d.changedSupp, nil
}
func (d *fakeDB) CountChannelsWithChangedContent(context.Context, models.HeightRange) (int, error) {
	return d.changedChan, nil
}

func (d *fakeDB) ClaimsInsert(context.Context, []models.TXOType, models.HeightRange, bool, FlushFunc) Future {
	d.record("ClaimsInsert")
	return resolved(0, nil)
}
func (d *fakeDB) ClaimsUpdate(context.Context, []models.TXOType, models.HeightRange, FlushFunc) Future {
	d.record("ClaimsUpdate")
	return resolved(0, nil)
}
func (d *fakeDB) ClaimsDelete(context.Context, int, FlushFunc) Future {
	d.record("ClaimsDelete")
	return resolved(0, nil)
}
func (d *fakeDB) UpdateTakeovers(context.Context, models.HeightRange, int, FlushFunc) Future {
	d.record("UpdateTakeovers")
	return resolved(0, nil)
}
func (d *fakeDB) UpdateStakes(context.Context, models.HeightRange, int, FlushFunc) Future {
	d.record("UpdateStakes")
	return resolved(0, nil)
}
func (d *fakeDB) UpdateChannelStats(context.Context, models.HeightRange, bool, int, FlushFunc) Future {
	d.record("UpdateChannelStats")
	return resolved(0, nil)
}

func (d *fakeDB) CountAbandonedSupports(context.Context) (int, error) { return 0, nil }
func (d *fakeDB) SupportsInsert(context.Context, models.HeightRange, bool, FlushFunc) Future {
	d.record("SupportsInsert")
	return resolved(0, nil)
}
func (d *fakeDB) SupportsDelete(context.Context, int, FlushFunc) Future {
	d.record("SupportsDelete")
	return resolved(0, nil)
}

func (d *fakeDB) FindFilterlessBlockRanges(context.Context) ([]models.HeightRange, error) {
	return d.filterlessRanges, nil
}
func (d *fakeDB) SyncFilters(context.Context, models.HeightRange, int, FlushFunc) Future {
	d.record("SyncFilters")
	return resolved(0, nil)
}

func (d *fakeDB) SyncTrends(context.Context, models.HeightRange) Future {
	d.record("SyncTrends")
	return resolved(0, nil)
}

type fakeBus struct {
	published []uint64
}

func (b *fakeBus) PublishBlockEvent(_ context.Context, height uint64) error {
	b.published = append(b.published, height)
	return nil
}
