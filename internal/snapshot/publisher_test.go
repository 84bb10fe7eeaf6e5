package snapshot

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/dexwhitelist/whitelistd/internal/chainmodel"
)

type fakeStore struct {
	previous  []chainmodel.PoolID
	hasPrev   bool
	persisted []chainmodel.WhitelistSnapshot
}

func (f *fakeStore) LastSnapshotPools(ctx context.Context, chain chainmodel.Chain) ([]chainmodel.PoolID, bool, error) {
	return f.previous, f.hasPrev, nil
}

func (f *fakeStore) PersistSnapshot(ctx context.Context, snap chainmodel.WhitelistSnapshot) error {
	f.persisted = append(f.persisted, snap)
	f.previous = snap.Pools
	f.hasPrev = true
	return nil
}

func TestPublishFirstSnapshotIsFullAndRecordsAllPools(t *testing.T) {
	a, b, c := id(1), id(2), id(3)
	store := &fakeStore{}
	p := New(store)

	result, err := p.Publish(context.Background(), chainmodel.ChainEthereum, 100, []chainmodel.PoolID{a, b, c}, time.Now())
	require.NoError(t, err)
	require.Equal(t, chainmodel.SnapshotFull, result.Kind)
	require.False(t, result.BroadcastSkipped)
	require.Len(t, store.persisted, 1)
	require.ElementsMatch(t, []chainmodel.PoolID{a, b, c}, store.persisted[0].Pools)
}

func TestPublishNoOpSetsRecordsSnapshotButSkipsBroadcast(t *testing.T) {
	a, b := id(1), id(2)
	store := &fakeStore{previous: []chainmodel.PoolID{a, b}, hasPrev: true}
	p := New(store)

	result, err := p.Publish(context.Background(), chainmodel.ChainEthereum, 200, []chainmodel.PoolID{a, b}, time.Now())
	require.NoError(t, err)
	require.True(t, result.BroadcastSkipped)
	require.Len(t, store.persisted, 1, "a no-op snapshot row is still written (spec.md §4.G monotone published_at)")
}

func TestPublishDifferentialReportsAddedAndRemoved(t *testing.T) {
	a, b, c, d, e := id(1), id(2), id(3), id(4), id(5)
	store := &fakeStore{previous: []chainmodel.PoolID{a, b, c}, hasPrev: true}
	p := New(store)

	result, err := p.Publish(context.Background(), chainmodel.ChainEthereum, 300, []chainmodel.PoolID{a, b, d, e}, time.Now())
	require.NoError(t, err)
	require.Equal(t, chainmodel.SnapshotDifferential, result.Kind)
	require.ElementsMatch(t, []chainmodel.PoolID{d, e}, result.Added)
	require.ElementsMatch(t, []chainmodel.PoolID{c}, result.Removed)
	require.False(t, result.BroadcastSkipped)
}
