package decode

import (
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/require"

	"github.com/dexwhitelist/whitelistd/internal/chainmodel"
)

func leftPadAddress(a common.Address) common.Hash {
	var h common.Hash
	copy(h[12:], a.Bytes())
	return h
}

func TestDecodeV2SwapsForCanonicalOrder(t *testing.T) {
	// token0 (as emitted) > token1 (as emitted): decoder must swap and flag it.
	emittedToken0 := common.HexToAddress("0x0000000000000000000000000000000000000002")
	emittedToken1 := common.HexToAddress("0x0000000000000000000000000000000000000001")
	pair := common.HexToAddress("0x00000000000000000000000000000000000abc")

	data := make([]byte, 64)
	copy(data[12:32], pair.Bytes())
	big.NewInt(7).FillBytes(data[32:64])

	log := RawLog{
		Address: common.HexToAddress("0x00000000000000000000000000000000000fac"),
		Topics: []common.Hash{
			chainmodel.EventTopics[chainmodel.ProtocolV2],
			leftPadAddress(emittedToken0),
			leftPadAddress(emittedToken1),
		},
		Data:        data,
		BlockNumber: 1000,
	}

	pool, err := DecodeV2(chainmodel.ProtocolConfig{VariantTag: "uniswap_v2"}, log)
	require.NoError(t, err)
	require.True(t, pool.WasSwapped)
	require.Equal(t, chainmodel.TokenID(emittedToken1), pool.Token0)
	require.Equal(t, chainmodel.TokenID(emittedToken0), pool.Token1)
	require.Equal(t, uint32(3000), pool.FeeBps)
	require.Equal(t, chainmodel.PoolIDFromAddress(pair), pool.PoolID)
}

func TestDecodeV2RejectsShortData(t *testing.T) {
	log := RawLog{
		Topics: []common.Hash{
			chainmodel.EventTopics[chainmodel.ProtocolV2],
			common.Hash{},
			common.Hash{},
		},
		Data: []byte{1, 2, 3},
	}
	_, err := DecodeV2(chainmodel.ProtocolConfig{}, log)
	require.ErrorIs(t, err, ErrRejected)
}

func TestDecodeV3FeeAndTickSpacing(t *testing.T) {
	token0 := common.HexToAddress("0x0000000000000000000000000000000000000001")
	token1 := common.HexToAddress("0x0000000000000000000000000000000000000002")
	pool := common.HexToAddress("0x88e6A0c2dDD26FEEb64F039a2c41296FcB3f5640")

	feeTopic := common.Hash{}
	feeTopic[30] = 0x01
	feeTopic[31] = 0xf4 // fee = 0x01f4 = 500

	data := make([]byte, 64)
	big.NewInt(10).FillBytes(data[0:32])
	copy(data[32+12:64], pool.Bytes())

	log := RawLog{
		Topics: []common.Hash{
			chainmodel.EventTopics[chainmodel.ProtocolV3],
			leftPadAddress(token0),
			leftPadAddress(token1),
			feeTopic,
		},
		Data:        data,
		BlockNumber: 2000,
	}

	p, err := DecodeV3(chainmodel.ProtocolConfig{VariantTag: "uniswap_v3"}, log)
	require.NoError(t, err)
	require.Equal(t, uint32(500), p.FeeBps)
	require.Equal(t, int32(10), p.TickSpacing)
	require.Equal(t, chainmodel.PoolIDFromAddress(pool), p.PoolID)
	require.False(t, p.WasSwapped)
}

// TestDecodeV4PoolID covers scenario S6 of spec.md §8: an Initialize event
// with topic1 = 0x...01, topic2/topic3 = two tokens with token A < token B,
// data = abi.encode(3000, 60, hook, sqrtP, tick).
func TestDecodeV4PoolID(t *testing.T) {
	poolIDTopic := common.Hash{}
	poolIDTopic[31] = 0x01

	tokenA := common.HexToAddress("0x0000000000000000000000000000000000000001")
	tokenB := common.HexToAddress("0x0000000000000000000000000000000000000002")
	hook := common.HexToAddress("0x000000000000000000000000000000000000Aa")

	args := mustArguments("uint24", "int24", "address", "uint160", "int24")
	packed, err := args.Pack(
		big.NewInt(3000),
		big.NewInt(60),
		hook,
		big.NewInt(1<<62),
		big.NewInt(-12),
	)
	require.NoError(t, err)

	log := RawLog{
		Address: common.HexToAddress("0x00000000000000000000000000000000000999"),
		Topics: []common.Hash{
			chainmodel.EventTopics[chainmodel.ProtocolV4],
			poolIDTopic,
			leftPadAddress(tokenA),
			leftPadAddress(tokenB),
		},
		Data:        packed,
		BlockNumber: 3000,
	}

	p, err := DecodeV4(chainmodel.ProtocolConfig{VariantTag: "uniswap_v4"}, log)
	require.NoError(t, err)
	require.Equal(t, chainmodel.PoolIDFromHash(poolIDTopic), p.PoolID)
	require.Equal(t, uint32(3000), p.FeeBps)
	require.Equal(t, int32(60), p.TickSpacing)
	require.Equal(t, hook, p.HooksID)
	require.Equal(t, chainmodel.TokenID(tokenA), p.Token0)
	require.Equal(t, chainmodel.TokenID(tokenB), p.Token1)
	require.False(t, p.WasSwapped)
}
