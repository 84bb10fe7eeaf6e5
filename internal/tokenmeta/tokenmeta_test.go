package tokenmeta

import (
	"context"
	"errors"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/require"

	"github.com/dexwhitelist/whitelistd/internal/chainmodel"
)

type fakeResolver struct {
	decimalsByToken map[common.Address]uint8
	failToken       common.Address
	calls           int
}

func (f *fakeResolver) ERC20Decimals(ctx context.Context, token common.Address, block uint64) (uint8, error) {
	f.calls++
	if token == f.failToken {
		return 0, errors.New("boom")
	}
	return f.decimalsByToken[token], nil
}

func (f *fakeResolver) ERC20Symbol(ctx context.Context, token common.Address, block uint64) (string, error) {
	return "TOK", nil
}

type fakeRegistry struct {
	tokens     []chainmodel.TokenID
	backfilled map[chainmodel.TokenID]chainmodel.TokenMeta
}

func (f *fakeRegistry) GetTokensNeeded(ctx context.Context, chain chainmodel.Chain, poolIDs []chainmodel.PoolID) ([]chainmodel.TokenID, error) {
	return f.tokens, nil
}

func (f *fakeRegistry) BackfillTokenMeta(ctx context.Context, chain chainmodel.Chain, token chainmodel.TokenID, decimals uint8, symbol string) error {
	if f.backfilled == nil {
		f.backfilled = map[chainmodel.TokenID]chainmodel.TokenMeta{}
	}
	f.backfilled[token] = chainmodel.TokenMeta{Chain: chain, Token: token, Decimals: decimals, Symbol: symbol}
	return nil
}

func tokenID(b byte) chainmodel.TokenID {
	var t chainmodel.TokenID
	t[19] = b
	return t
}

func TestBackfillResolvesAndCachesTokens(t *testing.T) {
	tok := tokenID(1)
	resolver := &fakeResolver{decimalsByToken: map[common.Address]uint8{common.Address(tok): 18}}
	registry := &fakeRegistry{tokens: []chainmodel.TokenID{tok}}
	bf, err := New(resolver, registry)
	require.NoError(t, err)

	resolved, failures := bf.Backfill(context.Background(), chainmodel.ChainEthereum, nil, 100)
	require.Empty(t, failures)
	require.Equal(t, 1, resolved)
	require.Equal(t, uint8(18), registry.backfilled[tok].Decimals)

	// Second call should hit the cache, not the resolver.
	resolved, failures = bf.Backfill(context.Background(), chainmodel.ChainEthereum, nil, 100)
	require.Empty(t, failures)
	require.Zero(t, resolved)
	require.Equal(t, 1, resolver.calls)
}

func TestBackfillRecordsPerTokenFailureAndContinues(t *testing.T) {
	good, bad := tokenID(1), tokenID(2)
	resolver := &fakeResolver{failToken: common.Address(bad)}
	registry := &fakeRegistry{tokens: []chainmodel.TokenID{good, bad}}
	bf, err := New(resolver, registry)
	require.NoError(t, err)

	resolved, failures := bf.Backfill(context.Background(), chainmodel.ChainEthereum, nil, 100)
	require.Len(t, failures, 1)
	require.Equal(t, 1, resolved)
}
