// Package rpcshim is the RPC-backed implementation of the two external
// collaborators spec.md §6 allows at this boundary: the RPC provider
// (block_number) and, when no embedded-database state reader is
// configured, a state-reader shim backed by eth_getStorageAt /
// eth_call, wrapped in the teacher's own ethclient.
package rpcshim

import (
	"context"
	"fmt"
	"math/big"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/ethereum/go-ethereum/log"
	"golang.org/x/time/rate"
)

// Client wraps an *ethclient.Client with the retry/rate-limit/timeout
// discipline spec.md §5 and §7 require: bounded retries (3, exponential
// backoff) per call, 10s RPC timeouts, 5s per storage-slot read, and a
// rate limiter taken from Config.RateLimit (unlimited when zero).
type Client struct {
	eth      *ethclient.Client
	limiter  *rate.Limiter
	log      log.Logger
	confirms uint64
}

// Config configures one Client.
type Config struct {
	RPCURL        string
	Confirmations uint64        // reorg-safety lag (SPEC_FULL.md supplement) when no native finalized tag exists
	RateLimit     rate.Limit    // calls/sec; 0 means unlimited
	Burst         int
}

func Dial(ctx context.Context, cfg Config) (*Client, error) {
	eth, err := ethclient.DialContext(ctx, cfg.RPCURL)
	if err != nil {
		return nil, fmt.Errorf("rpcshim: dialing %s: %w", cfg.RPCURL, err)
	}
	limit := cfg.RateLimit
	if limit == 0 {
		limit = rate.Inf
	}
	burst := cfg.Burst
	if burst == 0 {
		burst = 1
	}
	return &Client{
		eth:      eth,
		limiter:  rate.NewLimiter(limit, burst),
		log:      log.New("component", "rpcshim"),
		confirms: cfg.Confirmations,
	}, nil
}

func (c *Client) Close() { c.eth.Close() }

const rpcTimeout = 10 * time.Second

const stateReadTimeout = 5 * time.Second

// FinalizedBlockNumber implements ingest.BlockResolver: it prefers the
// chain's native "finalized" tag and falls back to latest-confirmations
// (SPEC_FULL.md's reorg-aware checkpoint supplement) when the chain has
// none.
func (c *Client) FinalizedBlockNumber(ctx context.Context) (uint64, error) {
	ctx, cancel := context.WithTimeout(ctx, rpcTimeout)
	defer cancel()

	if err := c.limiter.Wait(ctx); err != nil {
		return 0, err
	}

	header, err := c.eth.HeaderByNumber(ctx, big.NewInt(int64(-3))) // rpc.FinalizedBlockNumber sentinel
	if err == nil {
		return header.Number.Uint64(), nil
	}

	latest, err := c.withRetry(ctx, func(ctx context.Context) (uint64, error) {
		return c.eth.BlockNumber(ctx)
	})
	if err != nil {
		return 0, fmt.Errorf("rpcshim: reading block number: %w", err)
	}
	if latest < c.confirms {
		return 0, nil
	}
	return latest - c.confirms, nil
}

// BlockNumber returns the chain's current head, used as a batch's
// reference_block anchor (spec.md §4.E step 2).
func (c *Client) BlockNumber(ctx context.Context) (uint64, error) {
	ctx, cancel := context.WithTimeout(ctx, rpcTimeout)
	defer cancel()
	if err := c.limiter.Wait(ctx); err != nil {
		return 0, err
	}
	return c.withRetry(ctx, func(ctx context.Context) (uint64, error) {
		return c.eth.BlockNumber(ctx)
	})
}

// StorageAt reads one 32-byte storage slot at a reference block, the
// fallback state-reader primitive named in spec.md §6 when the embedded-DB
// reader library isn't wired.
func (c *Client) StorageAt(ctx context.Context, addr common.Address, slot common.Hash, block uint64) ([32]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, stateReadTimeout)
	defer cancel()
	if err := c.limiter.Wait(ctx); err != nil {
		return [32]byte{}, err
	}

	blockNum := new(big.Int).SetUint64(block)
	raw, err := c.withRetryBytes(ctx, func(ctx context.Context) ([]byte, error) {
		return c.eth.StorageAt(ctx, addr, slot, blockNum)
	})
	if err != nil {
		return [32]byte{}, fmt.Errorf("rpcshim: storage read %s/%s@%d: %w", addr.Hex(), slot.Hex(), block, err)
	}
	var out [32]byte
	copy(out[32-len(raw):], raw)
	return out, nil
}

// withRetry applies the bounded-retry/exponential-backoff policy of
// spec.md §5 ("per-state-read timeout (5s) with bounded retries (3,
// exponential backoff)") to a uint64-returning RPC call.
func (c *Client) withRetry(ctx context.Context, fn func(context.Context) (uint64, error)) (uint64, error) {
	var result uint64
	policy := backoff.WithMaxRetries(backoff.NewExponentialBackOff(), 3)
	err := backoff.Retry(func() error {
		v, err := fn(ctx)
		if err != nil {
			return err
		}
		result = v
		return nil
	}, backoff.WithContext(policy, ctx))
	return result, err
}

func (c *Client) withRetryBytes(ctx context.Context, fn func(context.Context) ([]byte, error)) ([]byte, error) {
	var result []byte
	policy := backoff.WithMaxRetries(backoff.NewExponentialBackOff(), 3)
	err := backoff.Retry(func() error {
		v, err := fn(ctx)
		if err != nil {
			return err
		}
		result = v
		return nil
	}, backoff.WithContext(policy, ctx))
	return result, err
}
