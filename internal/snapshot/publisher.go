package snapshot

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/dexwhitelist/whitelistd/internal/chainmodel"
)

// SnapshotStore is the persistence boundary this package needs from the
// relational store (spec.md §4.G "Persistence").
type SnapshotStore interface {
	LastSnapshotPools(ctx context.Context, chain chainmodel.Chain) ([]chainmodel.PoolID, bool, error)
	PersistSnapshot(ctx context.Context, snap chainmodel.WhitelistSnapshot) error
}

// Publisher ties the differ and the store together. Broadcasting the
// resulting diff (minimal/full broker messages) is the caller's job,
// since only it has the per-pool token metadata the full message needs
// (spec.md §4.G "Broker messages").
type Publisher struct {
	Store SnapshotStore
}

func New(store SnapshotStore) *Publisher {
	return &Publisher{Store: store}
}

// Result is what one Publish call produced, for the orchestrator's
// CycleReport.
type Result struct {
	Snapshot      chainmodel.WhitelistSnapshot
	Added         []chainmodel.PoolID
	Removed       []chainmodel.PoolID
	Kind          chainmodel.SnapshotKind
	BroadcastSkipped bool // true when added ∪ removed = ∅ (spec.md §4.G, §8 property 6)
}

// Publish computes the diff against the last published snapshot, persists
// the new snapshot row set, and returns what the caller should broadcast.
// Broadcasting itself (minimal/full messages) is left to the caller, which
// has the richer per-pool metadata the full message needs; this function
// only decides *whether* a broadcast is warranted (non-empty diff).
func (p *Publisher) Publish(ctx context.Context, chain chainmodel.Chain, referenceBlock uint64, next []chainmodel.PoolID, now time.Time) (Result, error) {
	previous, _, err := p.Store.LastSnapshotPools(ctx, chain)
	if err != nil {
		return Result{}, fmt.Errorf("snapshot: loading previous snapshot: %w", err)
	}

	added, removed, kind := Diff(previous, next)

	snap := chainmodel.WhitelistSnapshot{
		SnapshotID:     uuid.NewString(),
		Chain:          chain,
		Kind:           kind,
		PublishedAt:    now,
		ReferenceBlock: referenceBlock,
		Pools:          next,
		Added:          added,
		Removed:        removed,
	}

	if err := p.Store.PersistSnapshot(ctx, snap); err != nil {
		return Result{}, fmt.Errorf("snapshot: persisting snapshot: %w", err)
	}

	return Result{
		Snapshot:         snap,
		Added:            added,
		Removed:          removed,
		Kind:             kind,
		BroadcastSkipped: len(added) == 0 && len(removed) == 0,
	}, nil
}
