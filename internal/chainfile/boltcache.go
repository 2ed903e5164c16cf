// Package chainfile implements the Chain capability (spec §6) over a
// trusted node's on-disk block-file store: a directory of append-only
// files, each holding a contiguous run of blocks. It is an external
// collaborator from the coordinator's point of view — the coordinator
// only ever calls the narrow interface in internal/sync/interfaces.go.
package chainfile

import (
	"encoding/binary"
	"fmt"
	"time"

	"go.etcd.io/bbolt"
)

// positionBucket is the bbolt bucket for per-file byte offsets. It
// holds nothing the relational index depends on, so it is exempt from
// invariants I1-I6 (see SPEC_FULL.md §3).
const positionBucket = "scan_positions"

// positionCache stores a byte offset per block file, grounded on the
// teacher's internal/db/checkpoint.go bbolt usage. The Scanner opens and
// closes it but never reads or writes an offset: every scan reads each
// block file from offset zero.
type positionCache struct {
	db *bbolt.DB
}

func openPositionCache(path string) (*positionCache, error) {
	db, err := bbolt.Open(path, 0600, &bbolt.Options{Timeout: 5 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("failed to open position cache: %w", err)
	}
	err = db.Update(func(tx *bbolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists([]byte(positionBucket))
		return err
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create position bucket: %w", err)
	}
	return &positionCache{db: db}, nil
}

func (c *positionCache) get(fileNumber int) (int64, error) {
	var offset int64
	err := c.db.View(func(tx *bbolt.Tx) error {
		b := tx.Bucket([]byte(positionBucket))
		data := b.Get(fileKey(fileNumber))
		if data == nil {
			return nil
		}
		offset = int64(binary.BigEndian.Uint64(data))
		return nil
	})
	return offset, err
}

func (c *positionCache) set(fileNumber int, offset int64) error {
	return c.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket([]byte(positionBucket))
		buf := make([]byte, 8)
		binary.BigEndian.PutUint64(buf, uint64(offset))
		return b.Put(fileKey(fileNumber), buf)
	})
}

func (c *positionCache) Close() error {
	return c.db.Close()
}

func fileKey(fileNumber int) []byte {
	buf := make([]byte, 4)
	binary.BigEndian.PutUint32(buf, uint32(fileNumber))
	return buf
}
