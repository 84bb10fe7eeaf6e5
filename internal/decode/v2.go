package decode

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"github.com/dexwhitelist/whitelistd/internal/chainmodel"
)

// DecodeV2 decodes a PairCreated-family event.
//
//	event PairCreated(address indexed token0, address indexed token1, address pair, uint allPairsLength)
//
// token0 = topic1[12:], token1 = topic2[12:], pair = data[12:32],
// pair_index = uint(data[32:64]). The fee is the catalog entry's
// DefaultFeeBps, or 3000 (Uniswap/Sushi-style) when that is zero. For
// stable-swap variants (e.g. Aerodrome/Solidly forks) the stable flag is
// read from the data word at the entry's StableFlagOffset; a negative
// offset means the variant has no stable flag.
func DecodeV2(cfg chainmodel.ProtocolConfig, log RawLog) (chainmodel.DiscoveredPool, error) {
	if len(log.Topics) != 3 {
		return chainmodel.DiscoveredPool{}, reject("v2: expected 3 topics (sig, token0, token1), got %d", len(log.Topics))
	}
	if len(log.Data) < 64 {
		return chainmodel.DiscoveredPool{}, reject("v2: expected at least 64 bytes of data, got %d", len(log.Data))
	}

	rawToken0 := topicAddress(log.Topics[1])
	rawToken1 := topicAddress(log.Topics[2])
	pair := common.BytesToAddress(log.Data[12:32])
	pairIndex := new(big.Int).SetBytes(log.Data[32:64])

	token0, token1, swapped := orderTokens(rawToken0, rawToken1)

	feeBps := cfg.DefaultFeeBps
	if feeBps == 0 {
		feeBps = 3000
	}

	stable := false
	if cfg.StableFlagOffset >= 0 && len(log.Data) >= cfg.StableFlagOffset+32 {
		word := log.Data[cfg.StableFlagOffset : cfg.StableFlagOffset+32]
		stable = word[31] != 0
	}

	_ = pairIndex // retained for parity with the source event shape; not part of DiscoveredPool

	return chainmodel.DiscoveredPool{
		PoolID:           chainmodel.PoolIDFromAddress(pair),
		Protocol:         chainmodel.ProtocolV2,
		FactoryOrManager: log.Address,
		Token0:           chainmodel.TokenID(token0),
		Token1:           chainmodel.TokenID(token1),
		FeeBps:           feeBps,
		StableFlag:       stable,
		CreationBlock:    log.BlockNumber,
		VariantTag:       cfg.VariantTag,
		WasSwapped:       swapped,
	}, nil
}
