package chainfile

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"

	"github.com/lbryio/lbry-sync/pkg/models"
)

func TestFileNumberFromPath(t *testing.T) {
	assert.Equal(t, 7, fileNumberFromPath("/var/data/blk00007.dat"))
	assert.Equal(t, 0, fileNumberFromPath("blk00000.dat"))
}

func writeBlockFile(t *testing.T, dir, name string, lines []string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	content := ""
	for _, l := range lines {
		content += l + "\n"
	}
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func openTestScanner(t *testing.T) (*Scanner, string) {
	t.Helper()
	dir := t.TempDir()
	cachePath := filepath.Join(dir, "cache.db")
	logger := zerolog.Nop()
	s, err := Open(dir, cachePath, &logger)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s, dir
}

func TestReadFileRangeFiltersByHeight(t *testing.T) {
	s, dir := openTestScanner(t)
	writeBlockFile(t, dir, "blk00000.dat", []string{
		`{"height":0,"hash":"h0","tx_count":1,"claim_count":1,"support_count":0,"takeover_count":0}`,
		`{"height":1,"hash":"h1","tx_count":2,"claim_count":0,"support_count":1,"takeover_count":0}`,
		`{"height":2,"hash":"h2","tx_count":3,"claim_count":2,"support_count":0,"takeover_count":1}`,
	})

	records, err := s.ReadFileRange(context.Background(), 0, 1)
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, uint64(1), records[0].Height)
	assert.Equal(t, uint64(2), records[1].Height)
}

func TestReadFileRangeUnknownFileErrors(t *testing.T) {
	s, _ := openTestScanner(t)
	_, err := s.ReadFileRange(context.Background(), 5, 0)
	assert.Error(t, err)
}

func TestGetBlockFilesReportsBestHeightPerFile(t *testing.T) {
	s, dir := openTestScanner(t)
	writeBlockFile(t, dir, "blk00000.dat", []string{
		`{"height":0,"hash":"h0","tx_count":1,"claim_count":0,"support_count":0,"takeover_count":0}`,
		`{"height":1,"hash":"h1","tx_count":2,"claim_count":0,"support_count":0,"takeover_count":0}`,
	})

	files, err := s.GetBlockFiles(context.Background())
	require.NoError(t, err)
	require.Len(t, files, 1)
	assert.Equal(t, 0, files[0].FileNumber)
	assert.Equal(t, uint64(1), files[0].BestHeight)
	assert.Equal(t, 2, files[0].BlockCount)
	assert.Equal(t, 3, files[0].TxCount)
}

func TestGetBlockFilesRestrictedToSuffix(t *testing.T) {
	s, dir := openTestScanner(t)
	writeBlockFile(t, dir, "blk00000.dat", []string{
		`{"height":0,"hash":"h0","tx_count":10,"claim_count":0,"support_count":0,"takeover_count":0}`,
		`{"height":1,"hash":"h1","tx_count":20,"claim_count":0,"support_count":0,"takeover_count":0}`,
		`{"height":2,"hash":"h2","tx_count":30,"claim_count":0,"support_count":0,"takeover_count":0}`,
	})

	files, err := s.GetBlockFiles(context.Background(), models.FileQuery{FileNumber: 0, StartHeight: 1, Restrict: true})
	require.NoError(t, err)
	require.Len(t, files, 1)
	assert.Equal(t, 2, files[0].BlockCount)
	assert.Equal(t, 50, files[0].TxCount)
}

func TestGetBestHeightAcrossFiles(t *testing.T) {
	s, dir := openTestScanner(t)
	writeBlockFile(t, dir, "blk00000.dat", []string{
		`{"height":0,"hash":"h0","tx_count":1,"claim_count":0,"support_count":0,"takeover_count":0}`,
	})
	writeBlockFile(t, dir, "blk00001.dat", []string{
		`{"height":1,"hash":"h1","tx_count":1,"claim_count":0,"support_count":0,"takeover_count":0}`,
		`{"height":2,"hash":"h2","tx_count":1,"claim_count":0,"support_count":0,"takeover_count":0}`,
	})

	best, err := s.GetBestHeight(context.Background())
	require.NoError(t, err)
	assert.Equal(t, uint64(2), best)
}

func TestSumRangeAggregatesAcrossFiles(t *testing.T) {
	s, dir := openTestScanner(t)
	writeBlockFile(t, dir, "blk00000.dat", []string{
		`{"height":0,"hash":"h0","tx_count":1,"claim_count":3,"support_count":1,"takeover_count":0}`,
	})
	writeBlockFile(t, dir, "blk00001.dat", []string{
		`{"height":5,"hash":"h5","tx_count":1,"claim_count":2,"support_count":4,"takeover_count":1}`,
	})

	claims, err := s.GetClaimMetadataCount(context.Background(), 0, 5)
	require.NoError(t, err)
	assert.Equal(t, 5, claims)

	supports, err := s.GetSupportMetadataCount(context.Background(), 1, 5)
	require.NoError(t, err)
	assert.Equal(t, 4, supports)

	takeovers, err := s.GetTakeoverCount(context.Background(), 0, 5)
	require.NoError(t, err)
	assert.Equal(t, 1, takeovers)
}
