package chainmodel

import (
	"bytes"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// PoolID is the identity of a pool: a 20-byte address for V2/V3, a 32-byte
// derived identifier for V4. It is always stored left-padded to 32 bytes so
// the two families share one comparable key.
type PoolID [32]byte

func PoolIDFromAddress(addr common.Address) PoolID {
	var id PoolID
	copy(id[12:], addr.Bytes())
	return id
}

func PoolIDFromHash(h common.Hash) PoolID {
	return PoolID(h)
}

func (id PoolID) Hex() string {
	return common.Hash(id).Hex()
}

// TokenID is a token's on-chain address, normalized to 20 bytes.
type TokenID common.Address

func (t TokenID) Bytes() []byte { return t[:] }
func (t TokenID) Hex() string   { return common.Address(t).Hex() }

// Less implements the canonical-order invariant: token0 < token1 as unsigned
// bytes (spec.md §3, §8 property 3).
func Less(a, b TokenID) bool {
	return bytes.Compare(a[:], b[:]) < 0
}

// DiscoveredPool is one per on-chain pool, identity (chain, pool_id).
type DiscoveredPool struct {
	Chain            Chain
	PoolID           PoolID
	Protocol         Protocol
	FactoryOrManager common.Address
	Token0           TokenID
	Token1           TokenID
	FeeBps           uint32 // V3/V4 only
	TickSpacing      int32  // V3/V4 only
	StableFlag       bool   // V2 variants only
	HooksID          common.Address // V4 only
	CreationBlock    uint64
	VariantTag       string // e.g. "uniswap_v2", "aerodrome_v2"
	WasSwapped       bool   // token0/token1 were swapped at decode time to satisfy ordering
}

// TokenMeta is per-(chain, token) metadata. Decimals are required before a
// pool referencing the token can appear in a full broadcast (see
// SPEC_FULL.md's resolution of the decimals Open Question).
type TokenMeta struct {
	Chain    Chain
	Token    TokenID
	Decimals uint8
	Symbol   string
	Name     string
	Resolved bool
}

// PoolState is the ephemeral, per-refresh scraped state of one pool.
type PoolState struct {
	Chain           Chain
	PoolID          PoolID
	Protocol        Protocol
	ReferenceBlock  uint64
	ReferenceTime   time.Time

	// V2
	Reserve0 *U112
	Reserve1 *U112

	// V3 / V4
	SqrtPriceX96 *U160
	Tick         int32
	Liquidity    *U128

	Err error // per-pool scrape failure, recorded and skipped (§7)
}

// U112, U128, U160 are aliases of UintN (holiman/uint256.Int): the names
// document the EVM word width a field was read from, but the compiler
// treats all three as the same type.
type U112 = UintN
type U128 = UintN
type U160 = UintN

// Checkpoint is the per-(chain, protocol) last safely-processed end block.
type Checkpoint struct {
	Chain        Chain
	Protocol     Protocol
	LastEndBlock uint64
}

// SnapshotKind distinguishes the first ever snapshot for a chain (FULL) from
// every subsequent one (DIFFERENTIAL), per §3/§4.G.
type SnapshotKind string

const (
	SnapshotFull         SnapshotKind = "FULL"
	SnapshotDifferential SnapshotKind = "DIFFERENTIAL"
)

// WhitelistSnapshot is one append-only history row set.
type WhitelistSnapshot struct {
	SnapshotID     string
	Chain          Chain
	Kind           SnapshotKind
	PublishedAt    time.Time
	ReferenceBlock uint64
	Pools          []PoolID // full membership at this snapshot, regardless of Kind
	Added          []PoolID
	Removed        []PoolID
}

// FilterPassType records why a pool passed the liquidity filter.
type FilterPassType string

const (
	PassBySlippage      FilterPassType = "SLIPPAGE"
	PassByTrusted       FilterPassType = "TRUSTED"
	PassByNetworkEffect FilterPassType = "NETWORK_EFFECT"
)

// FilterResult is the per-pool decision from the Liquidity Filter (§4.F).
type FilterResult struct {
	PoolID          PoolID
	LiquidityUSD    float64
	SlippagePercent float64
	Passes          bool
	PassType        FilterPassType
	IterationDepth  int
}

// BatchReport describes one scrape batch (§3).
type BatchReport struct {
	BatchNumber     int
	Protocol        Protocol
	ReferenceBlock  uint64
	ReferenceTime   time.Time
	PoolsScraped    int
	PoolsFailed     int
	Duration        time.Duration
	Success         bool
	Error           string
}

// CycleReport aggregates one full refresh cycle for one chain, returned by
// the Refresh Orchestrator.
type CycleReport struct {
	Chain          Chain
	StartedAt      time.Time
	FinishedAt     time.Time
	Batches        []BatchReport
	SnapshotKind   SnapshotKind
	Added          int
	Removed        int
	TotalWhitelist int
	Partial        bool
	Errors         []error
}
