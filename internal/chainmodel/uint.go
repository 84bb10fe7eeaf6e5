package chainmodel

import "github.com/holiman/uint256"

// UintN is an alias for uint256.Int, used for the fixed-width EVM storage
// words (uint112, uint128, uint160) this package reads. A single type keeps
// filter math (internal/filter) working against one numeric type regardless
// of the word's native EVM width.
type UintN = uint256.Int

// NewUintFromBig is a convenience constructor that translates big-endian
// raw storage bytes into a UintN.
func NewUintFromBig(b []byte) *UintN {
	return new(uint256.Int).SetBytes(b)
}
