package scrape

import (
	"context"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/log"
	"golang.org/x/sync/semaphore"

	"github.com/dexwhitelist/whitelistd/internal/chainmodel"
)

// BlockSource anchors each batch's reference_block/reference_timestamp
// (spec.md §4.E step 2) and backs the "wait for next block" gate.
type BlockSource interface {
	BlockNumber(ctx context.Context) (uint64, error)
}

// BatchPublisher emits the per-batch reference-block message of spec.md
// §4.E step 6 ("whitelist.snapshots.<chain>.reference_block"), even for
// batches with partial results.
type BatchPublisher interface {
	PublishReferenceBlock(ctx context.Context, chain chainmodel.Chain, report chainmodel.BatchReport, totalBatches int) error
}

// Options configures one Scraper run.
type Options struct {
	Chain               chainmodel.Chain
	Mode                chainmodel.ScrapeMode
	BatchSizeOverrides  map[chainmodel.Protocol]map[chainmodel.ScrapeMode]int
	Concurrency         int  // per-batch pool fan-out, default 16 (spec.md §5)
	WaitForNextBlock    bool
	PollInterval        time.Duration // default 1s (spec.md §4.E step 1)
}

// Scraper implements the Batch Scraper.
type Scraper struct {
	Reader    Reader
	Blocks    BlockSource
	Publisher BatchPublisher
	log       log.Logger
}

func New(reader Reader, blocks BlockSource, publisher BatchPublisher) *Scraper {
	return &Scraper{Reader: reader, Blocks: blocks, Publisher: publisher, log: log.New("component", "scrape")}
}

// Scrape partitions pools by protocol (V2 first, then V3, then V4, per
// spec.md §4.E "Tie-breaks and ordering"), chunks each protocol's pools
// into batches, and reads each batch's state at a single reference block.
// It returns the per-pool states (successful or failed) and the batch
// reports for telemetry.
func (s *Scraper) Scrape(ctx context.Context, pools []chainmodel.DiscoveredPool, opts Options) ([]chainmodel.PoolState, []chainmodel.BatchReport, error) {
	if opts.Concurrency == 0 {
		opts.Concurrency = 16
	}
	if opts.PollInterval == 0 {
		opts.PollInterval = time.Second
	}

	byProtocol := partitionByProtocol(pools)

	var allBatches [][]chainmodel.DiscoveredPool
	var allProtocols []chainmodel.Protocol
	for _, proto := range chainmodel.ProtocolOrder {
		size := chainmodel.BatchSize(opts.BatchSizeOverrides, proto, opts.Mode)
		for _, batch := range chunk(byProtocol[proto], size) {
			allBatches = append(allBatches, batch)
			allProtocols = append(allProtocols, proto)
		}
	}

	var states []chainmodel.PoolState
	var reports []chainmodel.BatchReport
	var lastRefBlock uint64
	haveLast := false

	for i, batch := range allBatches {
		proto := allProtocols[i]

		if haveLast && opts.WaitForNextBlock {
			if err := s.waitForNextBlock(ctx, lastRefBlock, opts.PollInterval); err != nil {
				return states, reports, fmt.Errorf("scrape: waiting for next block: %w", err)
			}
		}

		started := time.Now()
		refBlock, err := s.Blocks.BlockNumber(ctx)
		if err != nil {
			return states, reports, fmt.Errorf("scrape: reading reference block: %w", err)
		}
		refTime := time.Now().UTC()
		lastRefBlock, haveLast = refBlock, true

		batchStates, failed := s.scrapeBatch(ctx, batch, proto, refBlock, refTime, opts)
		states = append(states, batchStates...)

		report := chainmodel.BatchReport{
			BatchNumber:    i + 1,
			Protocol:       proto,
			ReferenceBlock: refBlock,
			ReferenceTime:  refTime,
			PoolsScraped:   len(batch) - failed,
			PoolsFailed:    failed,
			Duration:       time.Since(started),
			Success:        failed == 0,
		}
		reports = append(reports, report)

		if s.Publisher != nil {
			if err := s.Publisher.PublishReferenceBlock(ctx, opts.Chain, report, len(allBatches)); err != nil {
				s.log.Warn("failed to publish reference-block message", "batch", i+1, "err", err)
			}
		}
	}

	return states, reports, nil
}

// waitForNextBlock blocks until the RPC reports a block strictly greater
// than last, polling at the configured interval (spec.md §4.E step 1).
// This is the single serialization point enforcing at-most-one-batch-per-block
// (spec.md §8 property 5).
func (s *Scraper) waitForNextBlock(ctx context.Context, last uint64, interval time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			n, err := s.Blocks.BlockNumber(ctx)
			if err != nil {
				return err
			}
			if n > last {
				return nil
			}
		}
	}
}

// scrapeBatch reads every pool in one batch concurrently, bounded by
// opts.Concurrency (spec.md §5), continuing past per-pool failures
// (spec.md §7: StateReadFailed -> record & skip).
func (s *Scraper) scrapeBatch(ctx context.Context, pools []chainmodel.DiscoveredPool, proto chainmodel.Protocol, refBlock uint64, refTime time.Time, opts Options) ([]chainmodel.PoolState, int) {
	sem := semaphore.NewWeighted(int64(opts.Concurrency))
	states := make([]chainmodel.PoolState, len(pools))

	type job struct {
		idx  int
		pool chainmodel.DiscoveredPool
	}
	jobs := make(chan job, len(pools))
	for i, p := range pools {
		jobs <- job{idx: i, pool: p}
	}
	close(jobs)

	results := make(chan struct{}, len(pools))
	for j := range jobs {
		j := j
		if err := sem.Acquire(ctx, 1); err != nil {
			// Context canceled (deadline exceeded, spec.md §5/§7): the
			// remaining pools in this batch are recorded as failed rather
			// than silently dropped.
			states[j.idx] = failedState(opts.Chain, j.pool, proto, refBlock, refTime, ctx.Err())
			results <- struct{}{}
			continue
		}
		go func() {
			defer sem.Release(1)
			defer func() { results <- struct{}{} }()
			states[j.idx] = s.readPoolState(ctx, j.pool, proto, refBlock, refTime)
		}()
	}
	for range pools {
		<-results
	}

	failed := 0
	for i := range states {
		if states[i].Err != nil {
			failed++
		}
	}
	return states, failed
}

func (s *Scraper) readPoolState(ctx context.Context, pool chainmodel.DiscoveredPool, proto chainmodel.Protocol, refBlock uint64, refTime time.Time) chainmodel.PoolState {
	fn, ok := stateReaders[proto]
	if !ok {
		return failedState(pool.Chain, pool, proto, refBlock, refTime, chainmodel.ErrUnknownProtocol{Protocol: proto})
	}
	state, err := fn(ctx, s.Reader, pool, refBlock)
	if err != nil {
		return failedState(pool.Chain, pool, proto, refBlock, refTime, err)
	}
	state.Chain = pool.Chain
	state.PoolID = pool.PoolID
	state.Protocol = proto
	state.ReferenceBlock = refBlock
	state.ReferenceTime = refTime
	return state
}

func failedState(chain chainmodel.Chain, pool chainmodel.DiscoveredPool, proto chainmodel.Protocol, refBlock uint64, refTime time.Time, err error) chainmodel.PoolState {
	return chainmodel.PoolState{
		Chain:          chain,
		PoolID:         pool.PoolID,
		Protocol:       proto,
		ReferenceBlock: refBlock,
		ReferenceTime:  refTime,
		Err:            err,
	}
}

func partitionByProtocol(pools []chainmodel.DiscoveredPool) map[chainmodel.Protocol][]chainmodel.DiscoveredPool {
	out := make(map[chainmodel.Protocol][]chainmodel.DiscoveredPool)
	for _, p := range pools {
		out[p.Protocol] = append(out[p.Protocol], p)
	}
	return out
}

func chunk(pools []chainmodel.DiscoveredPool, size int) [][]chainmodel.DiscoveredPool {
	if size <= 0 || len(pools) == 0 {
		if len(pools) == 0 {
			return nil
		}
		size = len(pools)
	}
	var out [][]chainmodel.DiscoveredPool
	for i := 0; i < len(pools); i += size {
		end := i + size
		if end > len(pools) {
			end = len(pools)
		}
		out = append(out, pools[i:end])
	}
	return out
}
