package chainmodel

import (
	"testing"

	"github.com/ethereum/go-ethereum/common"
)

func TestLessCanonicalOrder(t *testing.T) {
	tests := []struct {
		name string
		a, b TokenID
		want bool
	}{
		{
			"a strictly less than b",
			TokenID(common.HexToAddress("0x0000000000000000000000000000000000000001")),
			TokenID(common.HexToAddress("0x0000000000000000000000000000000000000002")),
			true,
		},
		{
			"a greater than b",
			TokenID(common.HexToAddress("0x0000000000000000000000000000000000000002")),
			TokenID(common.HexToAddress("0x0000000000000000000000000000000000000001")),
			false,
		},
		{
			"equal tokens are not less",
			TokenID(common.HexToAddress("0x0000000000000000000000000000000000000001")),
			TokenID(common.HexToAddress("0x0000000000000000000000000000000000000001")),
			false,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Less(tt.a, tt.b); got != tt.want {
				t.Fatalf("Less(%x, %x) = %v, want %v", tt.a, tt.b, got, tt.want)
			}
		})
	}
}

func TestPoolIDFromAddressPadsLeft(t *testing.T) {
	addr := common.HexToAddress("0x88e6A0c2dDD26FEEb64F039a2c41296FcB3f5640")
	id := PoolIDFromAddress(addr)
	for i := 0; i < 12; i++ {
		if id[i] != 0 {
			t.Fatalf("expected left-padding zero at byte %d, got %x", i, id[i])
		}
	}
	if got := common.BytesToAddress(id[12:]); got != addr {
		t.Fatalf("PoolIDFromAddress round-trip mismatch: got %s, want %s", got.Hex(), addr.Hex())
	}
}

func TestPoolIDFromHashKeepsFullWidth(t *testing.T) {
	h := common.HexToHash("0x0000000000000000000000000000000000000000000000000000000000000001")
	id := PoolIDFromHash(h)
	if PoolID(h) != id {
		t.Fatalf("PoolIDFromHash should be a bit-identical reinterpretation")
	}
}
