package retention

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/dexwhitelist/whitelistd/internal/chainmodel"
)

type fakeStore struct {
	batchCutoff    time.Time
	snapshotCutoff time.Time
	batchCalled    bool
	snapshotCalled bool
}

func (f *fakeStore) SweepBatchReports(ctx context.Context, cutoff time.Time) (int64, error) {
	f.batchCalled = true
	f.batchCutoff = cutoff
	return 3, nil
}

func (f *fakeStore) SweepWhitelistSnapshots(ctx context.Context, chain chainmodel.Chain, cutoff time.Time) (int64, error) {
	f.snapshotCalled = true
	f.snapshotCutoff = cutoff
	return 1, nil
}

func TestSweepSkipsDisabledPolicies(t *testing.T) {
	store := &fakeStore{}
	s := New(store, Policy{})
	require.NoError(t, s.Sweep(context.Background(), chainmodel.ChainEthereum, time.Now()))
	require.False(t, store.batchCalled)
	require.False(t, store.snapshotCalled)
}

func TestSweepAppliesConfiguredRetentionWindows(t *testing.T) {
	store := &fakeStore{}
	s := New(store, Policy{BatchReportRetention: 30 * 24 * time.Hour, SnapshotHistoryRetention: 90 * 24 * time.Hour})
	now := time.Now()
	require.NoError(t, s.Sweep(context.Background(), chainmodel.ChainEthereum, now))
	require.True(t, store.batchCalled)
	require.True(t, store.snapshotCalled)
	require.WithinDuration(t, now.Add(-30*24*time.Hour), store.batchCutoff, time.Second)
	require.WithinDuration(t, now.Add(-90*24*time.Hour), store.snapshotCutoff, time.Second)
}
