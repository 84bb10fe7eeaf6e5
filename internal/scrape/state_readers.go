package scrape

import (
	"context"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"github.com/dexwhitelist/whitelistd/internal/chainmodel"
)

// stateReader reads one pool's current state at refBlock. Chain, PoolID,
// Protocol, ReferenceBlock and ReferenceTime are filled in by the caller
// (readPoolState); a stateReader only needs to populate the
// protocol-specific fields.
type stateReader func(ctx context.Context, r Reader, pool chainmodel.DiscoveredPool, refBlock uint64) (chainmodel.PoolState, error)

var stateReaders = map[chainmodel.Protocol]stateReader{
	chainmodel.ProtocolV2: readV2State,
	chainmodel.ProtocolV3: readV3State,
	chainmodel.ProtocolV4: readV4State,
}

// v2ReservesSlot is slot 8 of UniswapV2Pair: reserve0 (uint112), reserve1
// (uint112) and blockTimestampLast (uint32) packed into one word.
const v2ReservesSlot = 8

// poolAddress recovers the 20-byte pool contract address that PoolID was
// built from (spec.md §3: pool_id = pad-left(pool_address) for V2/V3).
func poolAddress(id chainmodel.PoolID) common.Address {
	var addr common.Address
	copy(addr[:], id[12:32])
	return addr
}

func readV2State(ctx context.Context, r Reader, pool chainmodel.DiscoveredPool, refBlock uint64) (chainmodel.PoolState, error) {
	word, err := r.StorageAt(ctx, poolAddress(pool.PoolID), wordSlotHash(v2ReservesSlot), refBlock)
	if err != nil {
		return chainmodel.PoolState{}, fmt.Errorf("scrape: reading V2 reserves for %s: %w", pool.PoolID.Hex(), err)
	}
	reserve0, reserve1 := decodeV2Reserves(word)
	return chainmodel.PoolState{Reserve0: reserve0, Reserve1: reserve1}, nil
}

func readV3State(ctx context.Context, r Reader, pool chainmodel.DiscoveredPool, refBlock uint64) (chainmodel.PoolState, error) {
	addr := poolAddress(pool.PoolID)

	slot0Word, err := r.StorageAt(ctx, addr, wordSlotHash(v3Slot0Slot), refBlock)
	if err != nil {
		return chainmodel.PoolState{}, fmt.Errorf("scrape: reading V3 slot0 for %s: %w", pool.PoolID.Hex(), err)
	}
	liquidityWord, err := r.StorageAt(ctx, addr, wordSlotHash(v3LiquiditySlot), refBlock)
	if err != nil {
		return chainmodel.PoolState{}, fmt.Errorf("scrape: reading V3 liquidity for %s: %w", pool.PoolID.Hex(), err)
	}

	sqrtPriceX96, tick := decodeSqrtPriceAndTick(slot0Word)
	return chainmodel.PoolState{
		SqrtPriceX96: sqrtPriceX96,
		Tick:         tick,
		Liquidity:    decodeUint128(liquidityWord),
	}, nil
}

func readV4State(ctx context.Context, r Reader, pool chainmodel.DiscoveredPool, refBlock uint64) (chainmodel.PoolState, error) {
	manager := pool.FactoryOrManager
	base := v4BaseSlot(pool.PoolID)

	slot0Word, err := r.StorageAt(ctx, manager, addOffset(base, v4Slot0Offset), refBlock)
	if err != nil {
		return chainmodel.PoolState{}, fmt.Errorf("scrape: reading V4 slot0 for %s: %w", pool.PoolID.Hex(), err)
	}
	liquidityWord, err := r.StorageAt(ctx, manager, addOffset(base, v4LiquidityOffset), refBlock)
	if err != nil {
		return chainmodel.PoolState{}, fmt.Errorf("scrape: reading V4 liquidity for %s: %w", pool.PoolID.Hex(), err)
	}

	sqrtPriceX96, tick := decodeSqrtPriceAndTick(slot0Word)
	return chainmodel.PoolState{
		SqrtPriceX96: sqrtPriceX96,
		Tick:         tick,
		Liquidity:    decodeUint128(liquidityWord),
	}, nil
}

func wordSlotHash(index uint64) common.Hash {
	return common.Hash(wordSlot(index))
}

// decodeV2Reserves unpacks UniswapV2Pair's packed reserves word: reserve0
// (low 112 bits), reserve1 (next 112 bits), blockTimestampLast (top 32 bits,
// unused here).
func decodeV2Reserves(word [32]byte) (reserve0, reserve1 *chainmodel.U112) {
	reserve0 = new(uint256.Int).SetBytes(word[18:32])
	reserve1 = new(uint256.Int).SetBytes(word[4:18])
	return reserve0, reserve1
}

// decodeSqrtPriceAndTick unpacks the shared low 184 bits of Uniswap V3's
// Slot0 and V4's Slot0: sqrtPriceX96 (160 bits) then tick (int24, 24 bits).
func decodeSqrtPriceAndTick(word [32]byte) (sqrtPriceX96 *chainmodel.U160, tick int32) {
	sqrtPriceX96 = new(uint256.Int).SetBytes(word[12:32])
	tickBytes := word[9:12]
	u := uint32(tickBytes[0])<<16 | uint32(tickBytes[1])<<8 | uint32(tickBytes[2])
	if u&0x800000 != 0 {
		u |= 0xFF000000
	}
	tick = int32(u)
	return sqrtPriceX96, tick
}

func decodeUint128(word [32]byte) *chainmodel.U128 {
	return new(uint256.Int).SetBytes(word[16:32])
}
