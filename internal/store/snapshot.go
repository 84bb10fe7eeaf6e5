package store

import (
	"context"
	"fmt"

	"github.com/dexwhitelist/whitelistd/internal/chainmodel"
)

// LastSnapshotPools returns the pool-membership set of the most recently
// published snapshot for a chain, or ok=false if the chain has no history
// yet (spec.md §3: "the very first snapshot for a chain is always full").
func (s *Store) LastSnapshotPools(ctx context.Context, chain chainmodel.Chain) (pools []chainmodel.PoolID, ok bool, err error) {
	var snapshotID string
	row := s.pool.QueryRow(ctx, `
		SELECT snapshot_id FROM whitelist_snapshots
		WHERE chain = $1 ORDER BY published_at DESC LIMIT 1
	`, string(chain))
	if err := row.Scan(&snapshotID); err != nil {
		if isNoRows(err) {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("store: finding last snapshot: %w", err)
	}

	rows, err := s.pool.Query(ctx, `
		SELECT pool_id FROM whitelist_snapshot_pools
		WHERE snapshot_id = $1 AND chain = $2 AND change = 'MEMBER'
	`, snapshotID, string(chain))
	if err != nil {
		return nil, false, fmt.Errorf("store: reading last snapshot membership: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var raw []byte
		if err := rows.Scan(&raw); err != nil {
			return nil, false, fmt.Errorf("store: scanning snapshot pool row: %w", err)
		}
		var id chainmodel.PoolID
		copy(id[:], raw)
		pools = append(pools, id)
	}
	return pools, true, rows.Err()
}

// PersistSnapshot writes the snapshot header and every member/added/removed
// pool row in one transaction (spec.md §4.G: "On failure, rollback
// entirely — no partial history"). Membership rows (the full post-diff set)
// are always recorded so LastSnapshotPools never needs to replay a diff
// chain to reconstruct current membership.
func (s *Store) PersistSnapshot(ctx context.Context, snap chainmodel.WhitelistSnapshot) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("store: beginning snapshot transaction: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	_, err = tx.Exec(ctx, `
		INSERT INTO whitelist_snapshots (snapshot_id, chain, kind, published_at, reference_block)
		VALUES ($1, $2, $3, $4, $5)
	`, snap.SnapshotID, string(snap.Chain), string(snap.Kind), snap.PublishedAt, snap.ReferenceBlock)
	if err != nil {
		return fmt.Errorf("store: inserting snapshot header: %w", err)
	}

	insertRow := func(poolID chainmodel.PoolID, change string) error {
		_, err := tx.Exec(ctx, `
			INSERT INTO whitelist_snapshot_pools (snapshot_id, chain, pool_id, change)
			VALUES ($1, $2, $3, $4)
		`, snap.SnapshotID, string(snap.Chain), poolID[:], change)
		return err
	}

	for _, id := range snap.Pools {
		if err := insertRow(id, "MEMBER"); err != nil {
			return fmt.Errorf("store: inserting snapshot member row: %w", err)
		}
	}
	for _, id := range snap.Added {
		if err := insertRow(id, "ADDED"); err != nil {
			return fmt.Errorf("store: inserting snapshot added row: %w", err)
		}
	}
	for _, id := range snap.Removed {
		if err := insertRow(id, "REMOVED"); err != nil {
			return fmt.Errorf("store: inserting snapshot removed row: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("store: committing snapshot transaction: %w", err)
	}
	return nil
}

// RecordBatchReport persists one BatchReport row for telemetry (spec.md
// §3: "optionally persisted for telemetry").
func (s *Store) RecordBatchReport(ctx context.Context, chain chainmodel.Chain, r chainmodel.BatchReport) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO batch_reports (
			chain, protocol, batch_number, reference_block, reference_time,
			pools_scraped, pools_failed, duration_ms, success, error
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
	`, string(chain), string(r.Protocol), r.BatchNumber, r.ReferenceBlock, r.ReferenceTime,
		r.PoolsScraped, r.PoolsFailed, r.Duration.Milliseconds(), r.Success, nullableString(r.Error))
	if err != nil {
		return fmt.Errorf("store: recording batch report: %w", err)
	}
	return nil
}

// TrustedTokens returns the configured trusted-token set for a chain
// (spec.md §4.F).
func (s *Store) TrustedTokens(ctx context.Context, chain chainmodel.Chain) (map[chainmodel.TokenID]struct{}, error) {
	rows, err := s.pool.Query(ctx, `SELECT token_id FROM trusted_tokens WHERE chain = $1`, string(chain))
	if err != nil {
		return nil, fmt.Errorf("store: listing trusted tokens: %w", err)
	}
	defer rows.Close()

	out := make(map[chainmodel.TokenID]struct{})
	for rows.Next() {
		var raw []byte
		if err := rows.Scan(&raw); err != nil {
			return nil, fmt.Errorf("store: scanning trusted token row: %w", err)
		}
		out[chainmodel.TokenID(addressFromBytes(raw))] = struct{}{}
	}
	return out, rows.Err()
}

func nullableString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
