package decode

import (
	"github.com/ethereum/go-ethereum/common"

	"github.com/dexwhitelist/whitelistd/internal/chainmodel"
)

// DecodeV3 decodes a PoolCreated-family event.
//
//	event PoolCreated(address indexed token0, address indexed token1, uint24 indexed fee,
//	                   int24 tickSpacing, address pool)
//
// token0 = topic1[12:], token1 = topic2[12:], fee = uint24(topic3),
// tick_spacing = int24(data[0:32]), pool = data[32:64][12:].
func DecodeV3(cfg chainmodel.ProtocolConfig, log RawLog) (chainmodel.DiscoveredPool, error) {
	if len(log.Topics) != 4 {
		return chainmodel.DiscoveredPool{}, reject("v3: expected 4 topics (sig, token0, token1, fee), got %d", len(log.Topics))
	}
	if len(log.Data) < 64 {
		return chainmodel.DiscoveredPool{}, reject("v3: expected at least 64 bytes of data, got %d", len(log.Data))
	}

	rawToken0 := topicAddress(log.Topics[1])
	rawToken1 := topicAddress(log.Topics[2])
	fee := uint24(log.Topics[3])
	tickSpacing := int24(log.Data[0:32])
	pool := common.BytesToAddress(log.Data[32:64])

	token0, token1, swapped := orderTokens(rawToken0, rawToken1)

	return chainmodel.DiscoveredPool{
		PoolID:           chainmodel.PoolIDFromAddress(pool),
		Protocol:         chainmodel.ProtocolV3,
		FactoryOrManager: log.Address,
		Token0:           chainmodel.TokenID(token0),
		Token1:           chainmodel.TokenID(token1),
		FeeBps:           fee,
		TickSpacing:      tickSpacing,
		CreationBlock:    log.BlockNumber,
		VariantTag:       cfg.VariantTag,
		WasSwapped:       swapped,
	}, nil
}

// uint24 reads the low 3 bytes of a 32-byte left-padded topic as an
// unsigned 24-bit integer (Solidity's `uint24 indexed` is padded, not
// hashed, since it is a value type).
func uint24(topic common.Hash) uint32 {
	b := topic[29:32]
	return uint32(b[0])<<16 | uint32(b[1])<<8 | uint32(b[2])
}

// int24 reads a left-padded 32-byte word as a signed 24-bit integer,
// sign-extending from bit 23.
func int24(word []byte) int32 {
	b := word[29:32]
	v := int32(b[0])<<16 | int32(b[1])<<8 | int32(b[2])
	if b[0]&0x80 != 0 {
		v |= ^int32(0xFFFFFF) // sign extend
	}
	return v
}
