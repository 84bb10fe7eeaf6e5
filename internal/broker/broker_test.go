package broker

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/dexwhitelist/whitelistd/internal/chainmodel"
)

func TestMinimalMessageMarshalsExpectedShape(t *testing.T) {
	var id chainmodel.PoolID
	id[31] = 1
	msg := MinimalMessage{
		Chain:          "ethereum",
		Timestamp:      time.Unix(0, 0).UTC().Format(time.RFC3339),
		ReferenceBlock: 100,
		Pools:          []string{id.Hex()},
	}
	data, err := json.Marshal(msg)
	require.NoError(t, err)

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(data, &decoded))
	require.Equal(t, "ethereum", decoded["chain"])
	require.Equal(t, float64(100), decoded["reference_block"])
	require.Len(t, decoded["pools"], 1)
}

func TestFullPoolEntryOmitsUnsetOptionalFields(t *testing.T) {
	entry := FullPoolEntry{
		ID:           "0x01",
		Protocol:     "v2",
		FactoryOrMgr: "0x02",
		Token0:       TokenRef{Address: "0x03"},
		Token1:       TokenRef{Address: "0x04"},
	}
	data, err := json.Marshal(entry)
	require.NoError(t, err)
	require.NotContains(t, string(data), "fee")
	require.NotContains(t, string(data), "tick_spacing")
	require.NotContains(t, string(data), "hooks")
}

func TestReferenceBlockMessageCarriesBatchMetadata(t *testing.T) {
	msg := ReferenceBlockMessage{
		Chain:          "ethereum",
		BatchNumber:    2,
		TotalBatches:   5,
		Protocol:       "v3",
		PoolsInBatch:   150,
		ReferenceBlock: 1000,
	}
	data, err := json.Marshal(msg)
	require.NoError(t, err)

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(data, &decoded))
	require.Equal(t, float64(2), decoded["batch_number"])
	require.Equal(t, float64(5), decoded["total_batches"])
}

func TestChainIdentDefaultsToChainValue(t *testing.T) {
	p := &Publisher{cfg: Config{}}
	require.Equal(t, "ethereum", p.chainIdent(chainmodel.ChainEthereum))
}

func TestChainIdentUsesConfiguredOverride(t *testing.T) {
	p := &Publisher{cfg: Config{ChainIdentifiers: map[chainmodel.Chain]string{chainmodel.ChainEthereum: "eth-mainnet"}}}
	require.Equal(t, "eth-mainnet", p.chainIdent(chainmodel.ChainEthereum))
}
