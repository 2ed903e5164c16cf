package chainfile

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"

	"github.com/lbryio/lbry-sync/pkg/models"
)

// record is one line of a block file: newline-delimited JSON, one
// record per block, in ascending height order within the file.
type record struct {
	Height        uint64 `json:"height"`
	Hash          string `json:"hash"`
	TxCount       int    `json:"tx_count"`
	ClaimCount    int    `json:"claim_count"`
	SupportCount  int    `json:"support_count"`
	TakeoverCount int    `json:"takeover_count"`
}

// BlockRecord is the exported shape of one parsed block-file record,
// handed to internal/store so the block/TXIO workers can derive rows
// without this package leaking its on-disk JSON-lines format.
type BlockRecord struct {
	Height        uint64
	Hash          string
	TxCount       int
	ClaimCount    int
	SupportCount  int
	TakeoverCount int
}

func (r record) export() BlockRecord {
	return BlockRecord{
		Height:        r.Height,
		Hash:          r.Hash,
		TxCount:       r.TxCount,
		ClaimCount:    r.ClaimCount,
		SupportCount:  r.SupportCount,
		TakeoverCount: r.TakeoverCount,
	}
}

// ReadFileRange returns every record at or above fromHeight in the
// given file, in ascending height order.
func (s *Scanner) ReadFileRange(ctx context.Context, fileNumber int, fromHeight uint64) ([]BlockRecord, error) {
	paths, err := s.blockFilePaths()
	if err != nil {
		return nil, err
	}
	for _, path := range paths {
		if fileNumberFromPath(path) != fileNumber {
			continue
		}
		records, _, err := readRecords(path, 0)
		if err != nil {
			return nil, err
		}
		out := make([]BlockRecord, 0, len(records))
		for _, r := range records {
			if r.Height >= fromHeight {
				out = append(out, r.export())
			}
		}
		return out, nil
	}
	return nil, fmt.Errorf("chainfile: block file %d not found", fileNumber)
}

// Scanner reads the trusted node's block-file directory and answers
// the Chain capability queries the coordinator needs (spec §6).
type Scanner struct {
	dir    string
	cache  *positionCache
	logger *zerolog.Logger

	mu        sync.Mutex
	watcher   *fsnotify.Watcher
	listeners []chan struct{}
}

// Open creates a Scanner rooted at dir, with a bbolt position cache at cachePath.
func Open(dir, cachePath string, logger *zerolog.Logger) (*Scanner, error) {
	cache, err := openPositionCache(cachePath)
	if err != nil {
		return nil, err
	}
	return &Scanner{dir: dir, cache: cache, logger: logger}, nil
}

// Close releases the position cache and any active watch.
func (s *Scanner) Close() error {
	s.Unsubscribe()
	return s.cache.Close()
}

func (s *Scanner) blockFilePaths() ([]string, error) {
	entries, err := filepath.Glob(filepath.Join(s.dir, "blk*.dat"))
	if err != nil {
		return nil, fmt.Errorf("failed to list block files: %w", err)
	}
	sort.Strings(entries)
	return entries, nil
}

func fileNumberFromPath(path string) int {
	base := filepath.Base(path)
	base = strings.TrimPrefix(base, "blk")
	base = strings.TrimSuffix(base, ".dat")
	n, _ := strconv.Atoi(base)
	return n
}

// readRecords parses every record in a file starting at byte offset
// from, returning the records and the new end offset.
func readRecords(path string, from int64) ([]record, int64, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, from, fmt.Errorf("failed to open block file %s: %w", path, err)
	}
	defer f.Close()

	if _, err := f.Seek(from, 0); err != nil {
		return nil, from, fmt.Errorf("failed to seek block file %s: %w", path, err)
	}

	var records []record
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 64*1024), 4*1024*1024)
	offset := from
	for scanner.Scan() {
		line := scanner.Bytes()
		offset += int64(len(line)) + 1
		if len(strings.TrimSpace(string(line))) == 0 {
			continue
		}
		var rec record
		if err := json.Unmarshal(line, &rec); err != nil {
			return nil, from, fmt.Errorf("malformed block record in %s: %w", path, err)
		}
		records = append(records, rec)
	}
	if err := scanner.Err(); err != nil {
		return nil, from, fmt.Errorf("failed to scan block file %s: %w", path, err)
	}
	return records, offset, nil
}

// GetBestHeight returns the highest height present in any block file.
func (s *Scanner) GetBestHeight(ctx context.Context) (uint64, error) {
	files, err := s.GetBlockFiles(ctx)
	if err != nil {
		return 0, err
	}
	var best uint64
	found := false
	for _, f := range files {
		if !found || f.BestHeight > best {
			best = f.BestHeight
			found = true
		}
	}
	if !found {
		return 0, nil
	}
	return best, nil
}

// GetBlockFiles reports, per file, the highest height, and (when opts
// restricts to one file/start height) the tx/block counts of only the
// suffix from StartHeight onward — mirroring the two call shapes
// synchronizer.py makes against db.get_block_files.
func (s *Scanner) GetBlockFiles(ctx context.Context, opts ...models.FileQuery) ([]models.BlockFile, error) {
	paths, err := s.blockFilePaths()
	if err != nil {
		return nil, err
	}

	var restrict *models.FileQuery
	if len(opts) > 0 {
		restrict = &opts[0]
	}

	var out []models.BlockFile
	for _, path := range paths {
		fn := fileNumberFromPath(path)
		if restrict != nil && restrict.Restrict && fn != restrict.FileNumber {
			continue
		}
		records, _, err := readRecords(path, 0)
		if err != nil {
			return nil, err
		}
		if len(records) == 0 {
			continue
		}
		startHeight := uint64(0)
		if restrict != nil && restrict.Restrict && fn == restrict.FileNumber {
			startHeight = restrict.StartHeight
		}
		var txs, blocks int
		var best uint64
		for _, r := range records {
			if r.Height < startHeight {
				continue
			}
			txs += r.TxCount
			blocks++
			if r.Height > best {
				best = r.Height
			}
		}
		if blocks == 0 {
			continue
		}
		out = append(out, models.BlockFile{
			FileNumber: fn,
			BestHeight: best,
			TxCount:    txs,
			BlockCount: blocks,
		})
	}
	return out, nil
}

// GetClaimMetadataCount sums claim_count across records in [start, end].
func (s *Scanner) GetClaimMetadataCount(ctx context.Context, start, end uint64) (int, error) {
	return s.sumRange(start, end, func(r record) int { return r.ClaimCount })
}

// GetSupportMetadataCount sums support_count across records in [start, end].
func (s *Scanner) GetSupportMetadataCount(ctx context.Context, start, end uint64) (int, error) {
	return s.sumRange(start, end, func(r record) int { return r.SupportCount })
}

// GetTakeoverCount sums takeover_count across records in [start, end].
func (s *Scanner) GetTakeoverCount(ctx context.Context, start, end uint64) (int, error) {
	return s.sumRange(start, end, func(r record) int { return r.TakeoverCount })
}

func (s *Scanner) sumRange(start, end uint64, pick func(record) int) (int, error) {
	paths, err := s.blockFilePaths()
	if err != nil {
		return 0, err
	}
	total := 0
	for _, path := range paths {
		records, _, err := readRecords(path, 0)
		if err != nil {
			return 0, err
		}
		for _, r := range records {
			if r.Height >= start && r.Height <= end {
				total += pick(r)
			}
		}
	}
	return total, nil
}

// Subscribe starts watching the block-file directory; every write
// triggers an edge on every channel handed out by OnBlock.
func (s *Scanner) Subscribe() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.watcher != nil {
		return
	}
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		s.logger.Error().Err(err).Msg("failed to start block-file watcher")
		return
	}
	if err := watcher.Add(s.dir); err != nil {
		s.logger.Error().Err(err).Msg("failed to watch block-file directory")
		watcher.Close()
		return
	}
	s.watcher = watcher
	go s.watchLoop(watcher)
}

func (s *Scanner) watchLoop(watcher *fsnotify.Watcher) {
	for {
		select {
		case event, ok := <-watcher.Events:
			if !ok {
				return
			}
			if event.Op&(fsnotify.Write|fsnotify.Create) != 0 {
				s.fireEdge()
			}
		case err, ok := <-watcher.Errors:
			if !ok {
				return
			}
			s.logger.Error().Err(err).Msg("block-file watcher error")
		}
	}
}

func (s *Scanner) fireEdge() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, ch := range s.listeners {
		select {
		case ch <- struct{}{}:
		default:
		}
	}
}

// Unsubscribe stops watching the block-file directory.
func (s *Scanner) Unsubscribe() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.watcher != nil {
		s.watcher.Close()
		s.watcher = nil
	}
}

// OnBlock returns a channel that receives an edge whenever the node
// announces a new block. The payload is ignored beyond the edge
// (spec §6), so this is chan struct{} rather than a typed event.
func (s *Scanner) OnBlock() <-chan struct{} {
	ch := make(chan struct{}, 1)
	s.mu.Lock()
	s.listeners = append(s.listeners, ch)
	s.mu.Unlock()
	return ch
}
