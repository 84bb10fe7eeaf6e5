package store

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/dexwhitelist/whitelistd/internal/chainmodel"
)

// IngestBatch is one protocol's durable ingestion result for one cycle:
// the decoded pools plus the new checkpoint value they justify. Committing
// it is the one place the no-loss-ingestion invariant (spec.md §8 property
// 2) and the checkpoint-atomicity invariant (§4.B, §4.D, §9) are enforced
// together.
type IngestBatch struct {
	Chain        chainmodel.Chain
	Protocol     chainmodel.Protocol
	Pools        []chainmodel.DiscoveredPool
	NewEndBlock  uint64
}

// CommitIngestBatch upserts every decoded pool and advances the checkpoint
// to NewEndBlock in a single transaction (spec.md §4.B, §4.D, §9): "the
// upsert and the checkpoint advance for the same (chain, protocol,
// end_block) happen in one transaction." Duplicate pool IDs within the
// batch are collapsed before the write (first occurrence wins), per §4.D,
// since retried sub-ranges can re-emit the same event.
func (s *Store) CommitIngestBatch(ctx context.Context, batch IngestBatch) (inserted, updated int, err error) {
	table, err := chainTableName(batch.Chain)
	if err != nil {
		return 0, 0, err
	}

	deduped := dedupeByPoolID(batch.Pools)

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return 0, 0, fmt.Errorf("store: beginning ingest transaction: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck // no-op after Commit

	for _, p := range deduped {
		tag, err := upsertPoolTx(ctx, tx, table, p)
		if err != nil {
			return 0, 0, fmt.Errorf("store: upserting pool %s: %w", p.PoolID.Hex(), err)
		}
		if tag {
			inserted++
		} else {
			updated++
		}
	}

	if err := advanceCheckpointTx(ctx, tx, batch.Chain, batch.Protocol, batch.NewEndBlock); err != nil {
		return 0, 0, err
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, 0, fmt.Errorf("store: committing ingest transaction: %w", err)
	}
	return inserted, updated, nil
}

// dedupeByPoolID collapses duplicate pool IDs in-process, first occurrence
// wins (spec.md §4.D).
func dedupeByPoolID(pools []chainmodel.DiscoveredPool) []chainmodel.DiscoveredPool {
	seen := make(map[chainmodel.PoolID]struct{}, len(pools))
	out := make([]chainmodel.DiscoveredPool, 0, len(pools))
	for _, p := range pools {
		if _, ok := seen[p.PoolID]; ok {
			continue
		}
		seen[p.PoolID] = struct{}{}
		out = append(out, p)
	}
	return out
}

// upsertPoolTx inserts a pool row if its pool_id is not present yet and
// returns true when it did. An existing row is left unchanged (ON CONFLICT
// DO NOTHING), so identity/attribute columns are immutable after creation;
// the enrichment columns are written only by BackfillTokenMeta, matching
// "Immutable after creation except for metadata-enrichment columns"
// (spec.md §3).
func upsertPoolTx(ctx context.Context, tx pgx.Tx, table string, p chainmodel.DiscoveredPool) (inserted bool, err error) {
	tag, err := tx.Exec(ctx, fmt.Sprintf(`
		INSERT INTO %s (
			pool_id, protocol, factory_or_manager, token0, token1,
			fee_bps, tick_spacing, stable_flag, hooks_id, creation_block, variant_tag
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)
		ON CONFLICT (pool_id) DO NOTHING
	`, table),
		p.PoolID[:], string(p.Protocol), p.FactoryOrManager.Bytes(),
		p.Token0.Bytes(), p.Token1.Bytes(),
		nullableFeeBps(p), nullableTickSpacing(p), p.StableFlag, nullableHooks(p),
		p.CreationBlock, p.VariantTag,
	)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

// BackfillTokenMeta updates the per-pool enrichment columns for a token's
// decimals/symbol once resolved (spec.md §3: "may be back-filled").
func (s *Store) BackfillTokenMeta(ctx context.Context, chain chainmodel.Chain, token chainmodel.TokenID, decimals uint8, symbol string) error {
	table, err := chainTableName(chain)
	if err != nil {
		return err
	}
	_, err = s.pool.Exec(ctx, fmt.Sprintf(`
		UPDATE %s SET token0_decimals = $2, token0_symbol = $3 WHERE token0 = $1
	`, table), token.Bytes(), decimals, symbol)
	if err != nil {
		return fmt.Errorf("store: backfilling token0 metadata: %w", err)
	}
	_, err = s.pool.Exec(ctx, fmt.Sprintf(`
		UPDATE %s SET token1_decimals = $2, token1_symbol = $3 WHERE token1 = $1
	`, table), token.Bytes(), decimals, symbol)
	if err != nil {
		return fmt.Errorf("store: backfilling token1 metadata: %w", err)
	}
	return nil
}

// GetTokensNeeded returns the distinct set of token IDs referenced by the
// given pools, for the caller (internal/tokenmeta) to resolve metadata for
// (spec.md §4.D contract).
func (s *Store) GetTokensNeeded(ctx context.Context, chain chainmodel.Chain, poolIDs []chainmodel.PoolID) ([]chainmodel.TokenID, error) {
	table, err := chainTableName(chain)
	if err != nil {
		return nil, err
	}
	ids := make([][]byte, len(poolIDs))
	for i, id := range poolIDs {
		ids[i] = id[:]
	}
	rows, err := s.pool.Query(ctx, fmt.Sprintf(`
		SELECT DISTINCT token0 FROM %s WHERE pool_id = ANY($1)
		UNION
		SELECT DISTINCT token1 FROM %s WHERE pool_id = ANY($1)
	`, table, table), ids)
	if err != nil {
		return nil, fmt.Errorf("store: querying tokens needed: %w", err)
	}
	defer rows.Close()

	var out []chainmodel.TokenID
	for rows.Next() {
		var raw []byte
		if err := rows.Scan(&raw); err != nil {
			return nil, fmt.Errorf("store: scanning token row: %w", err)
		}
		out = append(out, chainmodel.TokenID(addressFromBytes(raw)))
	}
	return out, rows.Err()
}

// ListPools returns every known pool for a chain (spec.md §4.D).
func (s *Store) ListPools(ctx context.Context, chain chainmodel.Chain) ([]chainmodel.DiscoveredPool, error) {
	table, err := chainTableName(chain)
	if err != nil {
		return nil, err
	}
	rows, err := s.pool.Query(ctx, fmt.Sprintf(`
		SELECT pool_id, protocol, factory_or_manager, token0, token1,
		       fee_bps, tick_spacing, stable_flag, hooks_id, creation_block, variant_tag
		FROM %s
	`, table))
	if err != nil {
		return nil, fmt.Errorf("store: listing pools: %w", err)
	}
	defer rows.Close()

	var out []chainmodel.DiscoveredPool
	for rows.Next() {
		p, err := scanPool(rows, chain)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// rowScanner is the subset of pgx.Rows/pgx.Row this package needs to scan a
// pool, so scanPool works for both Query and QueryRow callers.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanPool(row rowScanner, chain chainmodel.Chain) (chainmodel.DiscoveredPool, error) {
	var (
		poolID, factory, token0, token1 []byte
		hooks                           []byte
		protocol, variantTag            string
		feeBps, tickSpacing             *int32
		stable                          *bool
		creationBlock                   uint64
	)
	if err := row.Scan(&poolID, &protocol, &factory, &token0, &token1,
		&feeBps, &tickSpacing, &stable, &hooks, &creationBlock, &variantTag); err != nil {
		return chainmodel.DiscoveredPool{}, fmt.Errorf("store: scanning pool row: %w", err)
	}

	p := chainmodel.DiscoveredPool{
		Chain:            chain,
		Protocol:         chainmodel.Protocol(protocol),
		CreationBlock:    creationBlock,
		VariantTag:       variantTag,
		FactoryOrManager: addressFromBytes(factory),
	}
	copy(p.PoolID[:], poolID)
	copy(p.Token0[:], token0)
	copy(p.Token1[:], token1)
	if feeBps != nil {
		p.FeeBps = uint32(*feeBps)
	}
	if tickSpacing != nil {
		p.TickSpacing = *tickSpacing
	}
	if stable != nil {
		p.StableFlag = *stable
	}
	if len(hooks) > 0 {
		p.HooksID = addressFromBytes(hooks)
	}
	return p, nil
}

func nullableFeeBps(p chainmodel.DiscoveredPool) *int32 {
	if p.Protocol == chainmodel.ProtocolV2 && p.FeeBps == 0 {
		return nil
	}
	v := int32(p.FeeBps)
	return &v
}

func nullableTickSpacing(p chainmodel.DiscoveredPool) *int32 {
	if p.Protocol == chainmodel.ProtocolV2 {
		return nil
	}
	v := p.TickSpacing
	return &v
}

func nullableHooks(p chainmodel.DiscoveredPool) []byte {
	if p.Protocol != chainmodel.ProtocolV4 {
		return nil
	}
	return p.HooksID.Bytes()
}
