// Package store implements the relational store side of the Checkpoint
// Store (§4.B), Pool Registry (§4.D) and Snapshot Differ & Publisher's
// persistence (§4.G), all over github.com/jackc/pgx/v5. A single Postgres
// connection pool backs every table named in spec.md §6
// (dex_pools_<chain>, whitelist_snapshots, checkpoints, trusted_tokens),
// plus the batch_reports telemetry table from SPEC_FULL.md.
package store

import (
	"context"
	"fmt"
	"regexp"

	"github.com/ethereum/go-ethereum/log"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/dexwhitelist/whitelistd/internal/chainmodel"
)

// Store wraps one Postgres pool and exposes the three component-facing
// sub-APIs (Checkpoints, Registry, Snapshots) as method sets on the same
// type, mirroring the teacher's convention of one storage handle with
// narrow accessor methods rather than one interface per table.
type Store struct {
	pool *pgxpool.Pool
	log  log.Logger
}

// Open connects to Postgres and ensures the shared (non-per-chain) schema
// exists. Per-chain dex_pools_<chain> tables are created lazily by
// EnsureChainTable, the first time a chain is seen.
func Open(ctx context.Context, dsn string) (*Store, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("store: connecting: %w", err)
	}
	s := &Store{pool: pool, log: log.New("component", "store")}
	if err := s.ensureSharedSchema(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) Close() { s.pool.Close() }

func (s *Store) ensureSharedSchema(ctx context.Context) error {
	for _, stmt := range []string{
		checkpointsDDL,
		trustedTokensDDL,
		whitelistSnapshotsDDL,
		whitelistSnapshotPoolsDDL,
		batchReportsDDL,
	} {
		if _, err := s.pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("store: applying schema: %w", err)
		}
	}
	return nil
}

// chainTableName validates and returns the per-chain pools table name.
// Chain identifiers come from trusted static config (spec.md §6's catalog
// files), never from user input, but the check is kept anyway: a typo'd
// chain identifier with SQL metacharacters must fail loudly, not execute.
var chainIdentPattern = regexp.MustCompile(`^[a-z0-9_]+$`)

func chainTableName(chain chainmodel.Chain) (string, error) {
	name := string(chain)
	if !chainIdentPattern.MatchString(name) {
		return "", fmt.Errorf("store: chain identifier %q is not a safe SQL identifier", name)
	}
	return "dex_pools_" + name, nil
}

// EnsureChainTable creates the dex_pools_<chain> table if absent.
func (s *Store) EnsureChainTable(ctx context.Context, chain chainmodel.Chain) error {
	table, err := chainTableName(chain)
	if err != nil {
		return err
	}
	_, err = s.pool.Exec(ctx, fmt.Sprintf(dexPoolsDDLTemplate, table))
	if err != nil {
		return fmt.Errorf("store: ensuring table %s: %w", table, err)
	}
	return nil
}

const checkpointsDDL = `
CREATE TABLE IF NOT EXISTS checkpoints (
	chain          TEXT NOT NULL,
	protocol       TEXT NOT NULL,
	last_end_block BIGINT NOT NULL,
	updated_at     TIMESTAMPTZ NOT NULL DEFAULT now(),
	PRIMARY KEY (chain, protocol)
)`

const trustedTokensDDL = `
CREATE TABLE IF NOT EXISTS trusted_tokens (
	chain    TEXT NOT NULL,
	token_id BYTEA NOT NULL,
	symbol   TEXT,
	PRIMARY KEY (chain, token_id)
)`

const whitelistSnapshotsDDL = `
CREATE TABLE IF NOT EXISTS whitelist_snapshots (
	snapshot_id     UUID PRIMARY KEY,
	chain           TEXT NOT NULL,
	kind            TEXT NOT NULL,
	published_at    TIMESTAMPTZ NOT NULL,
	reference_block BIGINT NOT NULL
)`

const whitelistSnapshotPoolsDDL = `
CREATE TABLE IF NOT EXISTS whitelist_snapshot_pools (
	snapshot_id UUID NOT NULL REFERENCES whitelist_snapshots(snapshot_id),
	chain       TEXT NOT NULL,
	pool_id     BYTEA NOT NULL,
	change      TEXT NOT NULL,
	PRIMARY KEY (snapshot_id, chain, pool_id, change)
)`

const batchReportsDDL = `
CREATE TABLE IF NOT EXISTS batch_reports (
	chain           TEXT NOT NULL,
	protocol        TEXT NOT NULL,
	batch_number    INT NOT NULL,
	reference_block BIGINT NOT NULL,
	reference_time  TIMESTAMPTZ NOT NULL,
	pools_scraped   INT NOT NULL,
	pools_failed    INT NOT NULL,
	duration_ms     BIGINT NOT NULL,
	success         BOOLEAN NOT NULL,
	error           TEXT,
	recorded_at     TIMESTAMPTZ NOT NULL DEFAULT now()
)`

const dexPoolsDDLTemplate = `
CREATE TABLE IF NOT EXISTS %s (
	pool_id             BYTEA PRIMARY KEY,
	protocol            TEXT NOT NULL,
	factory_or_manager  BYTEA NOT NULL,
	token0              BYTEA NOT NULL,
	token1              BYTEA NOT NULL,
	fee_bps             INT,
	tick_spacing        INT,
	stable_flag         BOOLEAN,
	hooks_id            BYTEA,
	creation_block      BIGINT NOT NULL,
	variant_tag         TEXT NOT NULL,
	token0_decimals     SMALLINT,
	token0_symbol       TEXT,
	token1_decimals     SMALLINT,
	token1_symbol       TEXT
)`
