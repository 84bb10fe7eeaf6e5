package decode

import (
	"math/big"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"

	"github.com/dexwhitelist/whitelistd/internal/chainmodel"
)

// v4InitializeArgs is the ABI shape of Initialize's non-indexed data:
//
//	(uint24 fee, int24 tickSpacing, address hooks, uint160 sqrtPriceX96, int24 tick)
var v4InitializeArgs = mustArguments("uint24", "int24", "address", "uint160", "int24")

func mustArguments(types ...string) abi.Arguments {
	args := make(abi.Arguments, len(types))
	for i, t := range types {
		typ, err := abi.NewType(t, "", nil)
		if err != nil {
			panic("decode: invalid abi type " + t + ": " + err.Error())
		}
		args[i] = abi.Argument{Type: typ}
	}
	return args
}

// DecodeV4 decodes a pool manager Initialize event.
//
//	event Initialize(PoolId indexed id, Currency indexed currency0, Currency indexed currency1,
//	                  uint24 fee, int24 tickSpacing, IHooks hooks, uint160 sqrtPriceX96, int24 tick)
//
// pool_id = topic1 (full 32 bytes, per spec.md §4.C and the frozen Open
// Question in §9/SPEC_FULL.md), token0 = address(topic2), token1 =
// address(topic3). The pool's factory_or_manager is the emitting contract
// (the singleton pool manager), not a per-pool factory.
func DecodeV4(cfg chainmodel.ProtocolConfig, log RawLog) (chainmodel.DiscoveredPool, error) {
	if len(log.Topics) != 4 {
		return chainmodel.DiscoveredPool{}, reject("v4: expected 4 topics (sig, poolId, currency0, currency1), got %d", len(log.Topics))
	}

	values, err := v4InitializeArgs.Unpack(log.Data)
	if err != nil {
		return chainmodel.DiscoveredPool{}, reject("v4: abi unpack failed: %v", err)
	}
	if len(values) != 5 {
		return chainmodel.DiscoveredPool{}, reject("v4: expected 5 unpacked values, got %d", len(values))
	}

	fee, ok := values[0].(*big.Int)
	if !ok {
		return chainmodel.DiscoveredPool{}, reject("v4: fee field has unexpected type %T", values[0])
	}
	tickSpacing, ok := values[1].(*big.Int)
	if !ok {
		return chainmodel.DiscoveredPool{}, reject("v4: tickSpacing field has unexpected type %T", values[1])
	}
	hooks, ok := values[2].(common.Address)
	if !ok {
		return chainmodel.DiscoveredPool{}, reject("v4: hooks field has unexpected type %T", values[2])
	}

	rawToken0 := topicAddress(log.Topics[2])
	rawToken1 := topicAddress(log.Topics[3])
	token0, token1, swapped := orderTokens(rawToken0, rawToken1)

	return chainmodel.DiscoveredPool{
		PoolID:           chainmodel.PoolIDFromHash(log.Topics[1]),
		Protocol:         chainmodel.ProtocolV4,
		FactoryOrManager: log.Address,
		Token0:           chainmodel.TokenID(token0),
		Token1:           chainmodel.TokenID(token1),
		FeeBps:           uint32(fee.Uint64()),
		TickSpacing:      int32(tickSpacing.Int64()), // abi.Type "int24" already unpacks sign-extended
		HooksID:          hooks,
		CreationBlock:    log.BlockNumber,
		VariantTag:       cfg.VariantTag,
		WasSwapped:       swapped,
	}, nil
}
