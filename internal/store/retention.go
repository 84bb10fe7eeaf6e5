package store

import (
	"context"
	"fmt"
	"time"

	"github.com/dexwhitelist/whitelistd/internal/chainmodel"
)

// SweepBatchReports deletes batch_reports rows older than cutoff
// (SPEC_FULL.md's retention supplement, resolving spec.md §9's open
// question: "Retention of BatchReport rows ... has no GC policy in the
// source; a retention rule belongs in config, not hard-coded").
func (s *Store) SweepBatchReports(ctx context.Context, cutoff time.Time) (int64, error) {
	tag, err := s.pool.Exec(ctx, `DELETE FROM batch_reports WHERE reference_time < $1`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("store: sweeping batch_reports: %w", err)
	}
	return tag.RowsAffected(), nil
}

// SweepWhitelistSnapshots deletes snapshot history older than cutoff,
// per chain, always preserving each chain's most recently published
// snapshot regardless of age so LastSnapshotPools never loses its anchor.
func (s *Store) SweepWhitelistSnapshots(ctx context.Context, chain chainmodel.Chain, cutoff time.Time) (int64, error) {
	tag, err := s.pool.Exec(ctx, `
		DELETE FROM whitelist_snapshot_pools
		WHERE chain = $1 AND snapshot_id IN (
			SELECT snapshot_id FROM whitelist_snapshots
			WHERE chain = $1 AND published_at < $2
			AND snapshot_id != (
				SELECT snapshot_id FROM whitelist_snapshots
				WHERE chain = $1 ORDER BY published_at DESC LIMIT 1
			)
		)
	`, string(chain), cutoff)
	if err != nil {
		return 0, fmt.Errorf("store: sweeping whitelist_snapshot_pools: %w", err)
	}

	headerTag, err := s.pool.Exec(ctx, `
		DELETE FROM whitelist_snapshots
		WHERE chain = $1 AND published_at < $2
		AND snapshot_id != (
			SELECT snapshot_id FROM whitelist_snapshots
			WHERE chain = $1 ORDER BY published_at DESC LIMIT 1
		)
	`, string(chain), cutoff)
	if err != nil {
		return 0, fmt.Errorf("store: sweeping whitelist_snapshots: %w", err)
	}
	return tag.RowsAffected() + headerTag.RowsAffected(), nil
}
