// Package filter implements the Liquidity Filter (spec.md §4.F): given
// scraped pool state and token prices, it decides whitelist membership by
// estimated slippage, trusted-token passthrough, and a bounded
// network-effect second pass.
package filter

import (
	"math/big"

	mapset "github.com/deckarep/golang-set/v2"

	"github.com/dexwhitelist/whitelistd/internal/chainmodel"
)

// Options configures one evaluation run (spec.md §6 "Filter" config surface).
type Options struct {
	TradeSizeUSD    float64 // default 1000
	MaxSlippage     float64 // percent, default 5
	TrustedTokens   mapset.Set[chainmodel.TokenID]
	IterationDepth  int // default 1
}

func DefaultOptions() Options {
	return Options{
		TradeSizeUSD:   1000,
		MaxSlippage:    5,
		TrustedTokens:  mapset.NewSet[chainmodel.TokenID](),
		IterationDepth: 1,
	}
}

// PriceLookup resolves a token's USD price; ok is false when no price is
// known for the token.
type PriceLookup func(chainmodel.TokenID) (usd float64, ok bool)

// Evaluate runs the full two-pass filter described in spec.md §4.F over one
// chain's pools. states and tokenMeta must cover every pool passed in.
func Evaluate(pools []chainmodel.DiscoveredPool, states map[chainmodel.PoolID]chainmodel.PoolState, tokenMeta map[chainmodel.TokenID]chainmodel.TokenMeta, prices PriceLookup, opts Options, strategy SlippageStrategy) []chainmodel.FilterResult {
	if opts.TrustedTokens == nil {
		opts.TrustedTokens = mapset.NewSet[chainmodel.TokenID]()
	}
	if strategy == nil {
		strategy = ApproxStrategy{}
	}

	results := make(map[chainmodel.PoolID]chainmodel.FilterResult, len(pools))
	passingTokens := mapset.NewSet[chainmodel.TokenID]()

	for _, p := range pools {
		state, hasState := states[p.PoolID]
		if !hasState || state.Err != nil {
			results[p.PoolID] = chainmodel.FilterResult{PoolID: p.PoolID, Passes: false}
			continue
		}

		if opts.TrustedTokens.Contains(p.Token0) || opts.TrustedTokens.Contains(p.Token1) {
			results[p.PoolID] = chainmodel.FilterResult{PoolID: p.PoolID, Passes: true, PassType: chainmodel.PassByTrusted}
			passingTokens.Add(p.Token0)
			passingTokens.Add(p.Token1)
			continue
		}

		price0, ok0 := prices(p.Token0)
		price1, ok1 := prices(p.Token1)
		meta0 := tokenMeta[p.Token0]
		meta1 := tokenMeta[p.Token1]
		if !ok0 || !ok1 {
			results[p.PoolID] = chainmodel.FilterResult{PoolID: p.PoolID, Passes: false}
			continue
		}

		liquidityUSD, slippagePercent, err := strategy.Evaluate(p.Protocol, state, price0, price1, meta0.Decimals, meta1.Decimals)
		if err != nil {
			results[p.PoolID] = chainmodel.FilterResult{PoolID: p.PoolID, Passes: false}
			continue
		}

		passes := slippagePercent <= opts.MaxSlippage
		result := chainmodel.FilterResult{
			PoolID:          p.PoolID,
			LiquidityUSD:    liquidityUSD,
			SlippagePercent: slippagePercent,
			Passes:          passes,
		}
		if passes {
			result.PassType = chainmodel.PassBySlippage
			passingTokens.Add(p.Token0)
			passingTokens.Add(p.Token1)
		}
		results[p.PoolID] = result
	}

	for depth := 1; depth <= opts.IterationDepth; depth++ {
		grew := false
		for _, p := range pools {
			r := results[p.PoolID]
			if r.Passes {
				continue
			}
			if passingTokens.Contains(p.Token0) || passingTokens.Contains(p.Token1) {
				results[p.PoolID] = chainmodel.FilterResult{
					PoolID:         p.PoolID,
					Passes:         true,
					PassType:       chainmodel.PassByNetworkEffect,
					IterationDepth: depth,
				}
				passingTokens.Add(p.Token0)
				passingTokens.Add(p.Token1)
				grew = true
			}
		}
		if !grew {
			break
		}
	}

	out := make([]chainmodel.FilterResult, 0, len(pools))
	for _, p := range pools {
		out = append(out, results[p.PoolID])
	}
	return out
}

// decimalScale returns 10^decimals as a float64, used to convert raw
// on-chain integer amounts into human token units.
func decimalScale(decimals uint8) float64 {
	scale := new(big.Float).SetInt(new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(decimals)), nil))
	f, _ := scale.Float64()
	return f
}
