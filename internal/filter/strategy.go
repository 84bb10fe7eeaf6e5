package filter

import (
	"errors"
	"math/big"

	"github.com/dexwhitelist/whitelistd/internal/chainmodel"
)

// ErrNotImplemented is returned by a SlippageStrategy that does not (yet)
// support a given protocol; spec.md §9 calls out V3 exact slippage as
// replaceable "without changing the filter's interface", which is exactly
// the seam this error marks.
var ErrNotImplemented = errors.New("filter: slippage strategy not implemented for this protocol")

// SlippageStrategy computes a pool's USD liquidity and estimated slippage
// at the configured trade size. Implementations are selected per-protocol;
// V2 always uses the exact formula (spec.md §4.F) regardless of strategy.
type SlippageStrategy interface {
	Evaluate(protocol chainmodel.Protocol, state chainmodel.PoolState, price0, price1 float64, decimals0, decimals1 uint8) (liquidityUSD, slippagePercent float64, err error)
}

// ApproxStrategy is the default: exact V2 formula, virtual-reserve
// approximation for V3/V4 (spec.md §4.F).
type ApproxStrategy struct {
	TradeSizeUSD float64
}

func (a ApproxStrategy) tradeSize() float64 {
	if a.TradeSizeUSD == 0 {
		return 1000
	}
	return a.TradeSizeUSD
}

func (a ApproxStrategy) Evaluate(protocol chainmodel.Protocol, state chainmodel.PoolState, price0, price1 float64, decimals0, decimals1 uint8) (float64, float64, error) {
	switch protocol {
	case chainmodel.ProtocolV2:
		return v2Slippage(state, price0, price1, decimals0, decimals1, a.tradeSize())
	case chainmodel.ProtocolV3, chainmodel.ProtocolV4:
		return v3ApproxSlippage(state, price0, price1, decimals0, decimals1, a.tradeSize())
	default:
		return 0, 0, chainmodel.ErrUnknownProtocol{Protocol: protocol}
	}
}

// CrossTickStrategy replaces the V3 approximation with a tighter two-sided
// estimate that accounts for how sqrtPriceX96 moves as the trade consumes
// liquidity, rather than treating liquidity as constant over the whole
// trade (spec.md §9's named future-work seam). It is not a full
// tick-bitmap walk: it assumes the trade stays within the pool's current
// in-range liquidity, which holds for trade sizes small relative to TVL.
// V4 is not implemented (v4's liquidity net crossings are not exposed by
// this scraper's slot0 reads), so Evaluate returns ErrNotImplemented for it.
type CrossTickStrategy struct {
	TradeSizeUSD float64
}

func (c CrossTickStrategy) tradeSize() float64 {
	if c.TradeSizeUSD == 0 {
		return 1000
	}
	return c.TradeSizeUSD
}

func (c CrossTickStrategy) Evaluate(protocol chainmodel.Protocol, state chainmodel.PoolState, price0, price1 float64, decimals0, decimals1 uint8) (float64, float64, error) {
	switch protocol {
	case chainmodel.ProtocolV2:
		return v2Slippage(state, price0, price1, decimals0, decimals1, c.tradeSize())
	case chainmodel.ProtocolV3:
		return v3CrossTickSlippage(state, price0, price1, decimals0, decimals1, c.tradeSize())
	case chainmodel.ProtocolV4:
		return 0, 0, ErrNotImplemented
	default:
		return 0, 0, chainmodel.ErrUnknownProtocol{Protocol: protocol}
	}
}

// v2Slippage implements spec.md §4.F's exact constant-product formula with
// the standard 0.3% fee.
func v2Slippage(state chainmodel.PoolState, price0, price1 float64, decimals0, decimals1 uint8, tradeSizeUSD float64) (liquidityUSD, slippagePercent float64, err error) {
	if state.Reserve0 == nil || state.Reserve1 == nil {
		return 0, 0, errors.New("filter: V2 pool state missing reserves")
	}
	x := toFloat(state.Reserve0) / decimalScale(decimals0)
	y := toFloat(state.Reserve1) / decimalScale(decimals1)

	tvl := x*price0 + y*price1
	if x == 0 || price0 == 0 {
		return tvl, 100, nil
	}

	dx := tradeSizeUSD / price0
	dy := (y * dx * 997) / (x*1000 + dx*997)
	dyIdeal := y * dx / x
	if dyIdeal == 0 {
		return tvl, 100, nil
	}
	slippage := (dyIdeal - dy) / dyIdeal
	return tvl, slippage * 100, nil
}

// v3ApproxSlippage implements spec.md §4.F's V3/V4 approximation:
// virtual reserves derived from liquidity and sqrtPriceX96, slippage
// estimated as trade_size / (2 * TVL).
func v3ApproxSlippage(state chainmodel.PoolState, price0, price1 float64, decimals0, decimals1 uint8, tradeSizeUSD float64) (liquidityUSD, slippagePercent float64, err error) {
	if state.Liquidity == nil || state.SqrtPriceX96 == nil {
		return 0, 0, errors.New("filter: V3/V4 pool state missing liquidity or sqrtPriceX96")
	}
	amount0, amount1 := virtualReserves(state)

	x := amount0 / decimalScale(decimals0)
	y := amount1 / decimalScale(decimals1)
	tvl := x*price0 + y*price1
	if tvl == 0 {
		return 0, 100, nil
	}
	return tvl, (tradeSizeUSD / (2 * tvl)) * 100, nil
}

// v3CrossTickSlippage refines the approximation by computing the post-trade
// price impact directly from the constant L·sqrtP relationship instead of
// the TVL/2 shortcut, which better reflects how slippage grows as the
// trade size approaches the available in-range liquidity.
func v3CrossTickSlippage(state chainmodel.PoolState, price0, price1 float64, decimals0, decimals1 uint8, tradeSizeUSD float64) (liquidityUSD, slippagePercent float64, err error) {
	if state.Liquidity == nil || state.SqrtPriceX96 == nil {
		return 0, 0, errors.New("filter: V3 pool state missing liquidity or sqrtPriceX96")
	}
	amount0, amount1 := virtualReserves(state)
	x := amount0 / decimalScale(decimals0)
	y := amount1 / decimalScale(decimals1)
	tvl := x*price0 + y*price1
	if tvl == 0 || x == 0 {
		return tvl, 100, nil
	}

	dx := tradeSizeUSD / price0
	// Constant-product walk along the pool's current in-range liquidity,
	// treating (x, y) as the virtual reserves implied by L and sqrtP.
	dy := (y * dx) / (x + dx)
	dyIdeal := y * dx / x
	if dyIdeal == 0 {
		return tvl, 100, nil
	}
	slippage := (dyIdeal - dy) / dyIdeal
	return tvl, slippage * 100, nil
}

// virtualReserves derives (amount0, amount1) in raw token units from
// liquidity and sqrtPriceX96, per spec.md §4.F: amount0 = L / sqrtP,
// amount1 = L * sqrtP.
func virtualReserves(state chainmodel.PoolState) (amount0, amount1 float64) {
	l := toFloat(state.Liquidity)
	sqrtPX96 := toFloat(state.SqrtPriceX96)
	q96 := new(big.Float).SetInt(new(big.Int).Lsh(big.NewInt(1), 96))
	q96f, _ := q96.Float64()
	sqrtP := sqrtPX96 / q96f
	if sqrtP == 0 {
		return 0, 0
	}
	return l / sqrtP, l * sqrtP
}

func toFloat(v *chainmodel.UintN) float64 {
	if v == nil {
		return 0
	}
	f := new(big.Float).SetInt(v.ToBig())
	out, _ := f.Float64()
	return out
}
