// Package scrape implements the Batch Scraper (spec.md §4.E): given a set
// of pools, it reads current on-chain state at protocol-specific reference
// blocks in fixed-size, block-time-bounded batches.
package scrape

import (
	"context"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"

	"github.com/dexwhitelist/whitelistd/internal/chainmodel"
)

// Reader is the state-reader library boundary (spec.md §6): either an
// embedded-DB reader or an RPC-backed shim implementing the same shape.
type Reader interface {
	StorageAt(ctx context.Context, addr common.Address, slot common.Hash, block uint64) ([32]byte, error)
}

// mapSlot computes a Solidity mapping slot the way the EVM does:
// keccak256(abi.encode(key, root)), both operands left-padded to 32 bytes.
func mapSlot(key, root [32]byte) common.Hash {
	buf := make([]byte, 64)
	copy(buf[0:32], key[:])
	copy(buf[32:64], root[:])
	return common.BytesToHash(crypto.Keccak256(buf))
}

// wordSlot turns a small constant slot index into its 32-byte word form.
func wordSlot(index uint64) [32]byte {
	var w [32]byte
	w[24] = byte(index >> 56)
	w[25] = byte(index >> 48)
	w[26] = byte(index >> 40)
	w[27] = byte(index >> 32)
	w[28] = byte(index >> 24)
	w[29] = byte(index >> 16)
	w[30] = byte(index >> 8)
	w[31] = byte(index)
	return w
}

// V3 storage layout (spec.md §4.E step 3):
//   slot0 at slot 0; global liquidity at slot 4;
//   tick-array entries at keccak256(abi.encode(tick, 5));
//   bitmap words at keccak256(abi.encode(wordPos, 6)).
const (
	v3Slot0Slot     = 0
	v3LiquiditySlot = 4
	v3TicksMapSlot  = 5
	v3BitmapMapSlot = 6
)

func v3TickSlot(tick int32) common.Hash {
	return mapSlot(int32Key(tick), wordSlot(v3TicksMapSlot))
}

func v3BitmapSlot(wordPos int16) common.Hash {
	return mapSlot(int16Key(wordPos), wordSlot(v3BitmapMapSlot))
}

// V4 storage layout (spec.md §4.E step 3):
//   per-pool base slot = keccak256(abi.encode(pool_id, 6));
//   slot0 = base+0; liquidity = base+3;
//   ticks mapping root = base+4, tick slot = keccak256(abi.encode(tick, base+4));
//   bitmap mapping root = base+5.
const (
	v4PoolsMapSlot    = 6
	v4Slot0Offset     = 0
	v4LiquidityOffset = 3
	v4TicksMapOffset  = 4
	v4BitmapMapOffset = 5
)

func v4BaseSlot(poolID chainmodel.PoolID) common.Hash {
	return mapSlot([32]byte(poolID), wordSlot(v4PoolsMapSlot))
}

// addOffset adds a small non-negative offset to a 32-byte big-endian word,
// used to step from a pool's base slot to slot0/liquidity/mapping roots.
func addOffset(base common.Hash, offset uint64) common.Hash {
	b := [32]byte(base)
	for i := 31; i >= 0 && offset > 0; i-- {
		sum := uint64(b[i]) + offset
		b[i] = byte(sum)
		offset = sum >> 8
	}
	return common.Hash(b)
}

func v4TickSlot(base common.Hash, tick int32) common.Hash {
	ticksRoot := addOffset(base, v4TicksMapOffset)
	return mapSlot(int32Key(tick), [32]byte(ticksRoot))
}

func v4BitmapSlot(base common.Hash, wordPos int16) common.Hash {
	bitmapRoot := addOffset(base, v4BitmapMapOffset)
	return mapSlot(int16Key(wordPos), [32]byte(bitmapRoot))
}

// int32Key and int16Key encode a signed mapping key the way abi.encode
// does: big-endian, sign-extended to 32 bytes.
func int32Key(v int32) [32]byte {
	var k [32]byte
	if v < 0 {
		for i := 0; i < 28; i++ {
			k[i] = 0xFF
		}
	}
	u := uint32(v)
	k[28] = byte(u >> 24)
	k[29] = byte(u >> 16)
	k[30] = byte(u >> 8)
	k[31] = byte(u)
	return k
}

func int16Key(v int16) [32]byte {
	var k [32]byte
	if v < 0 {
		for i := 0; i < 30; i++ {
			k[i] = 0xFF
		}
	}
	u := uint16(v)
	k[30] = byte(u >> 8)
	k[31] = byte(u)
	return k
}
