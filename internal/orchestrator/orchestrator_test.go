package orchestrator

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/require"

	"github.com/dexwhitelist/whitelistd/internal/chainmodel"
	"github.com/dexwhitelist/whitelistd/internal/store"
)

type fakeRPC struct {
	finalized uint64
	blockNum  uint64
}

func (f *fakeRPC) StorageAt(ctx context.Context, addr common.Address, slot common.Hash, block uint64) ([32]byte, error) {
	return [32]byte{}, nil
}
func (f *fakeRPC) BlockNumber(ctx context.Context) (uint64, error) { return f.blockNum, nil }
func (f *fakeRPC) FinalizedBlockNumber(ctx context.Context) (uint64, error) {
	return f.finalized, nil
}
func (f *fakeRPC) ERC20Decimals(ctx context.Context, token common.Address, block uint64) (uint8, error) {
	return 18, nil
}
func (f *fakeRPC) ERC20Symbol(ctx context.Context, token common.Address, block uint64) (string, error) {
	return "TOK", nil
}

type fakeStore struct {
	mu         sync.Mutex
	checkpoint uint64
	pools      []chainmodel.DiscoveredPool
	snapshots  []chainmodel.WhitelistSnapshot
}

func (f *fakeStore) Get(ctx context.Context, chain chainmodel.Chain, protocol chainmodel.Protocol) (uint64, bool, error) {
	return f.checkpoint, true, nil
}

func (f *fakeStore) CommitIngestBatch(ctx context.Context, batch store.IngestBatch) (int, int, error) {
	return len(batch.Pools), 0, nil
}

func (f *fakeStore) ListPools(ctx context.Context, chain chainmodel.Chain) ([]chainmodel.DiscoveredPool, error) {
	return f.pools, nil
}

func (f *fakeStore) RecordBatchReport(ctx context.Context, chain chainmodel.Chain, report chainmodel.BatchReport) error {
	return nil
}

func (f *fakeStore) GetTokensNeeded(ctx context.Context, chain chainmodel.Chain, poolIDs []chainmodel.PoolID) ([]chainmodel.TokenID, error) {
	return nil, nil
}

func (f *fakeStore) BackfillTokenMeta(ctx context.Context, chain chainmodel.Chain, token chainmodel.TokenID, decimals uint8, symbol string) error {
	return nil
}

func (f *fakeStore) LastSnapshotPools(ctx context.Context, chain chainmodel.Chain) ([]chainmodel.PoolID, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.snapshots) == 0 {
		return nil, false, nil
	}
	return f.snapshots[len(f.snapshots)-1].Pools, true, nil
}

func (f *fakeStore) PersistSnapshot(ctx context.Context, snap chainmodel.WhitelistSnapshot) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.snapshots = append(f.snapshots, snap)
	return nil
}

func testDeps(t *testing.T, checkpoint, finalized uint64) ChainDeps {
	return ChainDeps{
		Config: chainmodel.ChainConfig{
			Chain:     chainmodel.ChainEthereum,
			Protocols: []chainmodel.ProtocolConfig{{Variant: chainmodel.ProtocolV2, VariantTag: "uniswap_v2", StableFlagOffset: -1}},
		},
		RPC:           &fakeRPC{finalized: finalized, blockNum: finalized},
		Store:         &fakeStore{checkpoint: checkpoint},
		OutputDirRoot: t.TempDir(),
	}
}

func TestRefreshNoNewBlocksStillPublishesEmptySnapshot(t *testing.T) {
	deps := testDeps(t, 1000, 1000) // checkpoint == finalized: nothing new to ingest
	o := New(map[chainmodel.Chain]ChainDeps{chainmodel.ChainEthereum: deps}, nil, nil, time.Minute)

	report, err := o.Refresh(context.Background(), chainmodel.ChainEthereum)
	require.NoError(t, err)
	require.Equal(t, chainmodel.ChainEthereum, report.Chain)
	require.False(t, report.Partial)
	require.Equal(t, chainmodel.SnapshotFull, report.SnapshotKind)
}

func TestRefreshRejectsUnconfiguredChain(t *testing.T) {
	o := New(map[chainmodel.Chain]ChainDeps{}, nil, nil, time.Minute)
	_, err := o.Refresh(context.Background(), chainmodel.ChainBase)
	require.Error(t, err)
}

func TestRefreshReturnsErrCycleInProgressWhenAlreadyLocked(t *testing.T) {
	deps := testDeps(t, 1000, 1000)
	o := New(map[chainmodel.Chain]ChainDeps{chainmodel.ChainEthereum: deps}, nil, nil, time.Minute)

	lock := o.locks[chainmodel.ChainEthereum]
	lock.Lock()
	defer lock.Unlock()

	_, err := o.Refresh(context.Background(), chainmodel.ChainEthereum)
	require.ErrorAs(t, err, &ErrCycleInProgress{})
}

func TestRefreshAllRunsEveryConfiguredChain(t *testing.T) {
	deps := map[chainmodel.Chain]ChainDeps{
		chainmodel.ChainEthereum: testDeps(t, 1000, 1000),
		chainmodel.ChainBase:     testDeps(t, 500, 500),
	}
	o := New(deps, nil, nil, time.Minute)
	reports := o.RefreshAll(context.Background())
	require.Len(t, reports, 2)
	require.Contains(t, reports, chainmodel.ChainEthereum)
	require.Contains(t, reports, chainmodel.ChainBase)
}
