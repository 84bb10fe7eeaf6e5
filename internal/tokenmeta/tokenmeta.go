// Package tokenmeta resolves and backfills ERC20 token metadata
// (decimals, symbol) for pools discovered by the Log Ingestor, caching
// resolved tokens across refresh cycles (spec.md §3 "TokenMeta").
package tokenmeta

import (
	"context"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	lru "github.com/hashicorp/golang-lru"

	"github.com/dexwhitelist/whitelistd/internal/chainmodel"
)

// Resolver is the RPC boundary this package needs (rpcshim.Client
// satisfies it).
type Resolver interface {
	ERC20Decimals(ctx context.Context, token common.Address, block uint64) (uint8, error)
	ERC20Symbol(ctx context.Context, token common.Address, block uint64) (string, error)
}

// Registry is the Pool Registry boundary this package needs.
type Registry interface {
	GetTokensNeeded(ctx context.Context, chain chainmodel.Chain, poolIDs []chainmodel.PoolID) ([]chainmodel.TokenID, error)
	BackfillTokenMeta(ctx context.Context, chain chainmodel.Chain, token chainmodel.TokenID, decimals uint8, symbol string) error
}

type cacheKey struct {
	chain chainmodel.Chain
	token chainmodel.TokenID
}

// Backfiller resolves previously-unseen tokens' metadata and writes it
// back into the Pool Registry, caching hits so a token already resolved in
// an earlier cycle never triggers another RPC round trip.
type Backfiller struct {
	Resolver Resolver
	Registry Registry
	cache    *lru.Cache
}

// New builds a Backfiller with an LRU cache sized for a reasonably large
// multi-chain token universe.
func New(resolver Resolver, registry Registry) (*Backfiller, error) {
	cache, err := lru.New(4096)
	if err != nil {
		return nil, fmt.Errorf("tokenmeta: building cache: %w", err)
	}
	return &Backfiller{Resolver: resolver, Registry: registry, cache: cache}, nil
}

// Backfill resolves metadata for every token referenced by poolIDs that
// this process hasn't already resolved, and writes it into the registry.
// Per-token failures are recorded and skipped (spec.md §7 "DecodeFailed
// (per event): Record & skip" applies analogously here — a single
// unresolvable token must not abort the cycle).
func (b *Backfiller) Backfill(ctx context.Context, chain chainmodel.Chain, poolIDs []chainmodel.PoolID, atBlock uint64) (resolved int, failures []error) {
	tokens, err := b.Registry.GetTokensNeeded(ctx, chain, poolIDs)
	if err != nil {
		return 0, []error{fmt.Errorf("tokenmeta: listing needed tokens: %w", err)}
	}

	for _, token := range tokens {
		key := cacheKey{chain: chain, token: token}
		if _, ok := b.cache.Get(key); ok {
			continue
		}

		meta, err := b.resolveOne(ctx, chain, token, atBlock)
		if err != nil {
			failures = append(failures, fmt.Errorf("tokenmeta: resolving %s: %w", token.Hex(), err))
			continue
		}

		if err := b.Registry.BackfillTokenMeta(ctx, chain, token, meta.Decimals, meta.Symbol); err != nil {
			failures = append(failures, fmt.Errorf("tokenmeta: persisting %s: %w", token.Hex(), err))
			continue
		}

		b.cache.Add(key, meta)
		resolved++
	}
	return resolved, failures
}

func (b *Backfiller) resolveOne(ctx context.Context, chain chainmodel.Chain, token chainmodel.TokenID, atBlock uint64) (chainmodel.TokenMeta, error) {
	decimals, err := b.Resolver.ERC20Decimals(ctx, common.Address(token), atBlock)
	if err != nil {
		return chainmodel.TokenMeta{}, err
	}
	symbol, err := b.Resolver.ERC20Symbol(ctx, common.Address(token), atBlock)
	if err != nil {
		// Symbol is best-effort (spec.md §3 marks it optional); decimals
		// alone is enough to satisfy the full-broadcast requirement.
		symbol = ""
	}
	return chainmodel.TokenMeta{Chain: chain, Token: token, Decimals: decimals, Symbol: symbol, Resolved: true}, nil
}
