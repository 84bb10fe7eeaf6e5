package store

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/dexwhitelist/whitelistd/internal/chainmodel"
)

func TestDedupeByPoolIDFirstOccurrenceWins(t *testing.T) {
	var idA, idB chainmodel.PoolID
	idA[31] = 1
	idB[31] = 2

	pools := []chainmodel.DiscoveredPool{
		{PoolID: idA, VariantTag: "first"},
		{PoolID: idB, VariantTag: "only"},
		{PoolID: idA, VariantTag: "retried-duplicate"},
	}

	deduped := dedupeByPoolID(pools)
	require.Len(t, deduped, 2)
	require.Equal(t, "first", deduped[0].VariantTag)
	require.Equal(t, "only", deduped[1].VariantTag)
}

func TestChainTableNameRejectsUnsafeIdentifiers(t *testing.T) {
	_, err := chainTableName(chainmodel.Chain("ethereum; DROP TABLE checkpoints;"))
	require.Error(t, err)

	name, err := chainTableName(chainmodel.ChainEthereum)
	require.NoError(t, err)
	require.Equal(t, "dex_pools_ethereum", name)
}

func TestNullableFeeBpsV2DefaultsToNil(t *testing.T) {
	p := chainmodel.DiscoveredPool{Protocol: chainmodel.ProtocolV2, FeeBps: 0}
	require.Nil(t, nullableFeeBps(p))

	p.FeeBps = 3000
	require.NotNil(t, nullableFeeBps(p))
	require.Equal(t, int32(3000), *nullableFeeBps(p))
}
