package store

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/dexwhitelist/whitelistd/internal/chainmodel"
)

// Get returns the current checkpoint for (chain, protocol), or has=false if
// none has ever been recorded (the caller falls back to the protocol's
// deployment block, per spec.md §4.A step 1).
func (s *Store) Get(ctx context.Context, chain chainmodel.Chain, protocol chainmodel.Protocol) (value uint64, has bool, err error) {
	row := s.pool.QueryRow(ctx,
		`SELECT last_end_block FROM checkpoints WHERE chain = $1 AND protocol = $2`,
		string(chain), string(protocol))
	err = row.Scan(&value)
	if err == pgx.ErrNoRows {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("store: reading checkpoint: %w", err)
	}
	return value, true, nil
}

// advanceCheckpointTx advances the checkpoint within an existing
// transaction, failing if new_end < current (spec.md §4.B: "advance fails
// if new_end < current"). This is always called from the same transaction
// as the corresponding Pool Registry upsert (UpsertManyTx) — see
// CommitIngestBatch — so that no checkpoint ever moves forward without
// durable ingestion of its events (spec.md §7's governing invariant).
func advanceCheckpointTx(ctx context.Context, tx pgx.Tx, chain chainmodel.Chain, protocol chainmodel.Protocol, newEnd uint64) error {
	var current uint64
	var has bool
	row := tx.QueryRow(ctx,
		`SELECT last_end_block FROM checkpoints WHERE chain = $1 AND protocol = $2 FOR UPDATE`,
		string(chain), string(protocol))
	err := row.Scan(&current)
	switch {
	case err == pgx.ErrNoRows:
		has = false
	case err != nil:
		return fmt.Errorf("store: locking checkpoint row: %w", err)
	default:
		has = true
	}

	if has && newEnd < current {
		return fmt.Errorf("store: checkpoint regression for (%s,%s): current=%d new=%d", chain, protocol, current, newEnd)
	}

	_, err = tx.Exec(ctx, `
		INSERT INTO checkpoints (chain, protocol, last_end_block, updated_at)
		VALUES ($1, $2, $3, now())
		ON CONFLICT (chain, protocol) DO UPDATE SET last_end_block = EXCLUDED.last_end_block, updated_at = now()
	`, string(chain), string(protocol), newEnd)
	if err != nil {
		return fmt.Errorf("store: advancing checkpoint: %w", err)
	}
	return nil
}
