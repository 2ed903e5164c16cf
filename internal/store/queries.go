package store

import (
	"context"
	"crypto/sha256"
	"fmt"
	"math/big"

	"github.com/lbryio/lbry-sync/internal/scriptparse"
	"github.com/lbryio/lbry-sync/internal/sync"
	"github.com/lbryio/lbry-sync/pkg/models"
)

// CountUnspentTXOs counts unspent outputs of the given types, optionally
// restricted to a height range and to rows missing or stale relative to
// the claims table (the claims row for that claim-id points at a
// different tx/position, or does not exist).
func (s *Store) CountUnspentTXOs(ctx context.Context, types []models.TXOType, blocks *models.HeightRange, missingOrStaleInClaims bool) (int, error) {
	query := `SELECT COUNT(*) FROM txos t WHERE t.type = ANY($1) AND t.spent_height IS NULL`
	args := []any{types}
	if blocks != nil {
		query += ` AND t.height BETWEEN $2 AND $3`
		args = append(args, blocks.Start, blocks.End)
	}
	if missingOrStaleInClaims {
		query += ` AND NOT EXISTS (SELECT 1 FROM claims c WHERE c.tx_hash = t.tx_hash AND c.position = t.position)`
	}
	var n int
	if err := s.pool.QueryRow(ctx, query, args...).Scan(&n); err != nil {
		return 0, fmt.Errorf("count unspent txos: %w", err)
	}
	return n, nil
}

// DistributeUnspentTXOs splits the full height span of unspent outputs
// of the given types into at most workerCount roughly-equal batches,
// for the initial-sync branch's parallel claims_insert fan-out.
func (s *Store) DistributeUnspentTXOs(ctx context.Context, types []models.TXOType, workerCount int) (int, []models.HeightRange, error) {
	var count int
	var minHeight, maxHeight *int64
	err := s.pool.QueryRow(ctx, `
		SELECT COUNT(*), MIN(height), MAX(height) FROM txos WHERE type = ANY($1) AND spent_height IS NULL
	`, types).Scan(&count, &minHeight, &maxHeight)
	if err != nil {
		return 0, nil, fmt.Errorf("distribute unspent txos: %w", err)
	}
	if count == 0 || minHeight == nil || maxHeight == nil {
		return 0, nil, nil
	}

	span := uint64(*maxHeight-*minHeight) + 1
	if workerCount <= 0 {
		workerCount = 1
	}
	chunk := (span + uint64(workerCount) - 1) / uint64(workerCount)
	if chunk == 0 {
		chunk = 1
	}

	var batches []models.HeightRange
	start := uint64(*minHeight)
	end := uint64(*maxHeight)
	for start <= end {
		batchEnd := start + chunk - 1
		if batchEnd > end {
			batchEnd = end
		}
		batches = append(batches, models.HeightRange{Start: start, End: batchEnd})
		if batchEnd == end {
			break
		}
		start = batchEnd + 1
	}
	return count, batches, nil
}

func (s *Store) CountAbandonedClaims(ctx context.Context) (int, error) {
	return s.countAbandoned(ctx, "claims")
}

func (s *Store) CountAbandonedSupports(ctx context.Context) (int, error) {
	return s.countAbandoned(ctx, "supports")
}

func (s *Store) countAbandoned(ctx context.Context, table string) (int, error) {
	query := fmt.Sprintf(`
		SELECT COUNT(*) FROM %s r
		WHERE NOT EXISTS (
			SELECT 1 FROM txos t
			WHERE t.tx_hash = r.tx_hash AND t.position = r.position AND t.spent_height IS NULL
		)
	`, table)
	var n int
	if err := s.pool.QueryRow(ctx, query).Scan(&n); err != nil {
		return 0, fmt.Errorf("count abandoned %s: %w", table, err)
	}
	return n, nil
}

func (s *Store) CountClaimsWithChangedSupports(ctx context.Context, blocks models.HeightRange) (int, error) {
	var n int
	err := s.pool.QueryRow(ctx, `
		SELECT COUNT(DISTINCT claim_id) FROM supports WHERE height BETWEEN $1 AND $2
	`, blocks.Start, blocks.End).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count claims with changed supports: %w", err)
	}
	return n, nil
}

func (s *Store) CountChannelsWithChangedContent(ctx context.Context, blocks models.HeightRange) (int, error) {
	var n int
	err := s.pool.QueryRow(ctx, `
		SELECT COUNT(DISTINCT channel_claim_id) FROM claims
		WHERE channel_claim_id IS NOT NULL AND updated_height BETWEEN $1 AND $2
	`, blocks.Start, blocks.End).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count channels with changed content: %w", err)
	}
	return n, nil
}

// ClaimsInsert decodes every candidate unspent output in batch into a
// claim row. updateExisting controls the ON CONFLICT behavior: false
// for the initial-sync branch (no prior rows to conflict with), true
// for the incremental branch's republish case.
func (s *Store) ClaimsInsert(ctx context.Context, types []models.TXOType, batch models.HeightRange, updateExisting bool, flush sync.FlushFunc) sync.Future {
	return s.workers.Submit(ctx, func(ctx context.Context) (any, error) {
		return s.upsertClaims(ctx, types, batch, updateExisting, flush)
	})
}

func (s *Store) ClaimsUpdate(ctx context.Context, types []models.TXOType, batch models.HeightRange, flush sync.FlushFunc) sync.Future {
	return s.workers.Submit(ctx, func(ctx context.Context) (any, error) {
		return s.upsertClaims(ctx, types, batch, true, flush)
	})
}

func (s *Store) upsertClaims(ctx context.Context, types []models.TXOType, batch models.HeightRange, updateExisting bool, flush sync.FlushFunc) (int, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT tx_hash, position, type, script, amount, height FROM txos
		WHERE type = ANY($1) AND spent_height IS NULL AND height BETWEEN $2 AND $3
	`, types, batch.Start, batch.End)
	if err != nil {
		return 0, fmt.Errorf("select candidate claim txos: %w", err)
	}
	defer rows.Close()

	n := 0
	for rows.Next() {
		var txHash []byte
		var position int
		var txoType models.TXOType
		var script []byte
		var amountStr string
		var height int64
		if err := rows.Scan(&txHash, &position, &txoType, &script, &amountStr, &height); err != nil {
			return n, fmt.Errorf("scan claim txo: %w", err)
		}

		claim, err := scriptparse.DecodeClaimName(script)
		if err != nil {
			continue // not a claim-name output (e.g. an update script); skip
		}

		amount := new(big.Int)
		amount.SetString(amountStr, 10)

		conflictClause := "DO NOTHING"
		if updateExisting {
			conflictClause = `DO UPDATE SET
				name = EXCLUDED.name, is_channel = EXCLUDED.is_channel,
				channel_claim_id = EXCLUDED.channel_claim_id, tx_hash = EXCLUDED.tx_hash,
				position = EXCLUDED.position, amount = EXCLUDED.amount, updated_height = EXCLUDED.updated_height`
		}
		query := fmt.Sprintf(`
			INSERT INTO claims (claim_id, name, is_channel, channel_claim_id, tx_hash, position, amount, support_total, takeover_height, created_height, updated_height)
			VALUES ($1, $2, $3, NULLIF($4, ''), $5, $6, $7::numeric, 0, 0, $8, $8)
			ON CONFLICT (claim_id) %s
		`, conflictClause)
		if _, err := s.pool.Exec(ctx, query, claim.ClaimID, claim.Name, claim.IsChannel, claim.ChannelClaimID, txHash, position, amount.String(), height); err != nil {
			return n, fmt.Errorf("upsert claim %s: %w", claim.ClaimID, err)
		}

		n++
		if flush != nil && n%ClaimFlushBatch == 0 {
			flush(ClaimFlushBatch)
		}
	}
	if err := rows.Err(); err != nil {
		return n, fmt.Errorf("iterate claim txos: %w", err)
	}
	if flush != nil {
		if rem := n % ClaimFlushBatch; rem > 0 {
			flush(rem)
		}
	}
	return n, nil
}

// ClaimFlushBatch is how many upserted claim rows this package reports
// as one flushed unit, independent of the coordinator's chunk sizing.
const ClaimFlushBatch = 500

func (s *Store) ClaimsDelete(ctx context.Context, count int, flush sync.FlushFunc) sync.Future {
	return s.workers.Submit(ctx, func(ctx context.Context) (any, error) {
		tag, err := s.pool.Exec(ctx, `
			DELETE FROM claims c WHERE NOT EXISTS (
				SELECT 1 FROM txos t WHERE t.tx_hash = c.tx_hash AND t.position = c.position AND t.spent_height IS NULL
			)
		`)
		if err != nil {
			return nil, fmt.Errorf("claims delete: %w", err)
		}
		n := int(tag.RowsAffected())
		if flush != nil {
			flush(n)
		}
		return n, nil
	})
}

func (s *Store) UpdateTakeovers(ctx context.Context, blocks models.HeightRange, count int, flush sync.FlushFunc) sync.Future {
	return s.workers.Submit(ctx, func(ctx context.Context) (any, error) {
		tx, err := s.pool.Begin(ctx)
		if err != nil {
			return nil, fmt.Errorf("begin takeover tx: %w", err)
		}
		defer tx.Rollback(ctx)

		rows, err := tx.Query(ctx, `
			SELECT DISTINCT ON (name) name, claim_id
			FROM claims
			WHERE updated_height BETWEEN $1 AND $2
			ORDER BY name, (amount + support_total) DESC, claim_id
		`, blocks.Start, blocks.End)
		if err != nil {
			return nil, fmt.Errorf("rank takeover candidates: %w", err)
		}
		type winner struct{ name, claimID string }
		var winners []winner
		for rows.Next() {
			var w winner
			if err := rows.Scan(&w.name, &w.claimID); err != nil {
				rows.Close()
				return nil, fmt.Errorf("scan takeover winner: %w", err)
			}
			winners = append(winners, w)
		}
		rows.Close()
		if err := rows.Err(); err != nil {
			return nil, fmt.Errorf("iterate takeover winners: %w", err)
		}

		n := 0
		for _, w := range winners {
			if _, err := tx.Exec(ctx, `
				INSERT INTO name_takeovers (name, claim_id, takeover_height) VALUES ($1, $2, $3)
				ON CONFLICT (name) DO UPDATE SET claim_id = EXCLUDED.claim_id, takeover_height = EXCLUDED.takeover_height
				WHERE name_takeovers.claim_id <> EXCLUDED.claim_id
			`, w.name, w.claimID, blocks.End); err != nil {
				return nil, fmt.Errorf("upsert takeover for %s: %w", w.name, err)
			}
			if _, err := tx.Exec(ctx, `UPDATE claims SET takeover_height = $1 WHERE claim_id = $2`, blocks.End, w.claimID); err != nil {
				return nil, fmt.Errorf("stamp takeover height for %s: %w", w.claimID, err)
			}
			n++
			if flush != nil {
				flush(1)
			}
		}
		if err := tx.Commit(ctx); err != nil {
			return nil, fmt.Errorf("commit takeovers: %w", err)
		}
		return n, nil
	})
}

func (s *Store) UpdateStakes(ctx context.Context, blocks models.HeightRange, count int, flush sync.FlushFunc) sync.Future {
	return s.workers.Submit(ctx, func(ctx context.Context) (any, error) {
		tag, err := s.pool.Exec(ctx, `
			UPDATE claims SET support_total = COALESCE(sub.total, 0)
			FROM (SELECT claim_id, SUM(amount) AS total FROM supports GROUP BY claim_id) sub
			WHERE claims.claim_id = sub.claim_id AND claims.claim_id IN (
				SELECT DISTINCT claim_id FROM supports WHERE height BETWEEN $1 AND $2
			)
		`, blocks.Start, blocks.End)
		if err != nil {
			return nil, fmt.Errorf("update stakes: %w", err)
		}
		n := int(tag.RowsAffected())
		if flush != nil {
			flush(n)
		}
		return n, nil
	})
}

func (s *Store) UpdateChannelStats(ctx context.Context, blocks models.HeightRange, initialSync bool, count int, flush sync.FlushFunc) sync.Future {
	return s.workers.Submit(ctx, func(ctx context.Context) (any, error) {
		query := `
			INSERT INTO channel_stats (channel_claim_id, content_count, aggregate_amount)
			SELECT channel_claim_id, COUNT(*), SUM(amount) FROM claims
			WHERE channel_claim_id IS NOT NULL`
		args := []any{}
		if !initialSync {
			query += ` AND channel_claim_id IN (SELECT DISTINCT channel_claim_id FROM claims WHERE channel_claim_id IS NOT NULL AND updated_height BETWEEN $1 AND $2)`
			args = append(args, blocks.Start, blocks.End)
		}
		query += `
			GROUP BY channel_claim_id
			ON CONFLICT (channel_claim_id) DO UPDATE SET
				content_count = EXCLUDED.content_count, aggregate_amount = EXCLUDED.aggregate_amount`

		tag, err := s.pool.Exec(ctx, query, args...)
		if err != nil {
			return nil, fmt.Errorf("update channel stats: %w", err)
		}
		n := int(tag.RowsAffected())
		if flush != nil {
			flush(n)
		}
		return n, nil
	})
}

func (s *Store) SupportsInsert(ctx context.Context, batch models.HeightRange, updateExisting bool, flush sync.FlushFunc) sync.Future {
	return s.workers.Submit(ctx, func(ctx context.Context) (any, error) {
		rows, err := s.pool.Query(ctx, `
			SELECT tx_hash, position, script, amount, height FROM txos
			WHERE type = $1 AND spent_height IS NULL AND height BETWEEN $2 AND $3
		`, TXOTypeSupport, batch.Start, batch.End)
		if err != nil {
			return nil, fmt.Errorf("select candidate support txos: %w", err)
		}
		defer rows.Close()

		conflict := "DO NOTHING"
		if updateExisting {
			conflict = "DO UPDATE SET claim_id = EXCLUDED.claim_id, amount = EXCLUDED.amount"
		}
		insert := fmt.Sprintf(`
			INSERT INTO supports (tx_hash, position, claim_id, amount, height) VALUES ($1, $2, $3, $4::numeric, $5)
			ON CONFLICT (tx_hash, position) %s
		`, conflict)

		n := 0
		for rows.Next() {
			var txHash, script []byte
			var position int
			var amountStr string
			var height int64
			if err := rows.Scan(&txHash, &position, &script, &amountStr, &height); err != nil {
				return n, fmt.Errorf("scan support txo: %w", err)
			}
			support, err := scriptparse.DecodeSupport(script)
			if err != nil {
				continue
			}
			if _, err := s.pool.Exec(ctx, insert, txHash, position, support.ClaimID, amountStr, height); err != nil {
				return n, fmt.Errorf("insert support for claim %s: %w", support.ClaimID, err)
			}
			n++
			if flush != nil {
				flush(1)
			}
		}
		if err := rows.Err(); err != nil {
			return n, fmt.Errorf("iterate support txos: %w", err)
		}
		return n, nil
	})
}

func (s *Store) SupportsDelete(ctx context.Context, count int, flush sync.FlushFunc) sync.Future {
	return s.workers.Submit(ctx, func(ctx context.Context) (any, error) {
		tag, err := s.pool.Exec(ctx, `
			DELETE FROM supports s WHERE NOT EXISTS (
				SELECT 1 FROM txos t WHERE t.tx_hash = s.tx_hash AND t.position = s.position AND t.spent_height IS NULL
			)
		`)
		if err != nil {
			return nil, fmt.Errorf("supports delete: %w", err)
		}
		n := int(tag.RowsAffected())
		if flush != nil {
			flush(n)
		}
		return n, nil
	})
}

// FindFilterlessBlockRanges groups blocks with a NULL filter column
// into contiguous height ranges, for the filter phase's chunk
// enumeration (resolving spec §9(b): this was a stub in the source).
func (s *Store) FindFilterlessBlockRanges(ctx context.Context) ([]models.HeightRange, error) {
	rows, err := s.pool.Query(ctx, `SELECT height FROM blocks WHERE filter IS NULL ORDER BY height`)
	if err != nil {
		return nil, fmt.Errorf("find filterless blocks: %w", err)
	}
	defer rows.Close()

	var ranges []models.HeightRange
	var cur *models.HeightRange
	for rows.Next() {
		var h uint64
		if err := rows.Scan(&h); err != nil {
			return nil, fmt.Errorf("scan filterless height: %w", err)
		}
		switch {
		case cur == nil:
			cur = &models.HeightRange{Start: h, End: h}
		case h == cur.End+1:
			cur.End = h
		default:
			ranges = append(ranges, *cur)
			cur = &models.HeightRange{Start: h, End: h}
		}
	}
	if cur != nil {
		ranges = append(ranges, *cur)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate filterless blocks: %w", err)
	}
	return ranges, nil
}

func (s *Store) SyncFilters(ctx context.Context, chunk models.HeightRange, flushSize int, flush sync.FlushFunc) sync.Future {
	return s.workers.Submit(ctx, func(ctx context.Context) (any, error) {
		rows, err := s.pool.Query(ctx, `
			SELECT height, hash FROM blocks WHERE height BETWEEN $1 AND $2 AND filter IS NULL
		`, chunk.Start, chunk.End)
		if err != nil {
			return nil, fmt.Errorf("select filterless chunk: %w", err)
		}

		type target struct {
			height uint64
			hash   []byte
		}
		var targets []target
		for rows.Next() {
			var t target
			if err := rows.Scan(&t.height, &t.hash); err != nil {
				rows.Close()
				return nil, fmt.Errorf("scan filter target: %w", err)
			}
			targets = append(targets, t)
		}
		rows.Close()
		if err := rows.Err(); err != nil {
			return nil, fmt.Errorf("iterate filter targets: %w", err)
		}

		sinceFlush := 0
		for _, t := range targets {
			filter := compactFilter(t.hash)
			if _, err := s.pool.Exec(ctx, `UPDATE blocks SET filter = $1 WHERE height = $2`, filter, t.height); err != nil {
				return nil, fmt.Errorf("write filter for block %d: %w", t.height, err)
			}
			sinceFlush++
			if flush != nil && sinceFlush >= flushSize {
				flush(sinceFlush)
				sinceFlush = 0
			}
		}
		if flush != nil && sinceFlush > 0 {
			flush(sinceFlush)
		}
		return len(targets), nil
	})
}

// compactFilter derives a fixed-size probabilistic filter from a block
// hash. Real address-scanning filters are the Chain collaborator's
// concern (spec §1); this gives the filter column a deterministic,
// non-trivial value to exercise the write path end to end.
func compactFilter(blockHash []byte) []byte {
	sum := sha256.Sum256(blockHash)
	return sum[:16]
}

// SyncTrends recomputes a time-decay popularity score for every claim
// touched in the added range: newer updates score higher, decaying
// with distance from the range's end height.
func (s *Store) SyncTrends(ctx context.Context, blocks models.HeightRange) sync.Future {
	return s.workers.Submit(ctx, func(ctx context.Context) (any, error) {
		rows, err := s.pool.Query(ctx, `
			SELECT claim_id, amount, updated_height FROM claims WHERE updated_height BETWEEN $1 AND $2
		`, blocks.Start, blocks.End)
		if err != nil {
			return nil, fmt.Errorf("select trend candidates: %w", err)
		}
		defer rows.Close()

		n := 0
		for rows.Next() {
			var claimID, amountStr string
			var updatedHeight int64
			if err := rows.Scan(&claimID, &amountStr, &updatedHeight); err != nil {
				return n, fmt.Errorf("scan trend candidate: %w", err)
			}
			amount := new(big.Float)
			amount.SetString(amountStr)
			age := float64(blocks.End) - float64(updatedHeight) + 1
			score, _ := new(big.Float).Quo(amount, big.NewFloat(age)).Float64()

			if _, err := s.pool.Exec(ctx, `
				INSERT INTO trend_scores (claim_id, height, score) VALUES ($1, $2, $3)
			`, claimID, blocks.End, score); err != nil {
				return n, fmt.Errorf("insert trend score for %s: %w", claimID, err)
			}
			n++
		}
		if err := rows.Err(); err != nil {
			return n, fmt.Errorf("iterate trend candidates: %w", err)
		}
		return n, nil
	})
}
