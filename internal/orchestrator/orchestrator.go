// Package orchestrator implements the Refresh Orchestrator (spec.md §4.H):
// it sequences one chain's ingest -> decode -> registry commit -> token
// backfill -> scrape -> filter -> snapshot publish pipeline, one cycle at a
// time, with a per-chain exclusive lock and a per-cycle deadline.
package orchestrator

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/log"
	"github.com/hashicorp/go-multierror"

	"github.com/dexwhitelist/whitelistd/internal/broker"
	"github.com/dexwhitelist/whitelistd/internal/chainmodel"
	"github.com/dexwhitelist/whitelistd/internal/decode"
	"github.com/dexwhitelist/whitelistd/internal/filter"
	"github.com/dexwhitelist/whitelistd/internal/ingest"
	"github.com/dexwhitelist/whitelistd/internal/scrape"
	"github.com/dexwhitelist/whitelistd/internal/snapshot"
	"github.com/dexwhitelist/whitelistd/internal/store"
	"github.com/dexwhitelist/whitelistd/internal/telemetry"
	"github.com/dexwhitelist/whitelistd/internal/tokenmeta"
)

// PriceSource resolves USD prices for the Liquidity Filter. Pricing itself
// is explicitly out of scope for this core (spec.md §1 Non-goals: "does
// not ... compute prices itself beyond what the filter needs; pricing is
// performed by downstream consumers") - this is the seam a deployment
// wires to whatever feed it trusts.
type PriceSource interface {
	Price(ctx context.Context, chain chainmodel.Chain, token chainmodel.TokenID) (usd float64, ok bool)
}

// RPCClient is every on-chain read this package needs, satisfied by
// *rpcshim.Client in production and by a fake in tests. It composes the
// scraper's state reader, the ingestor's finalized-head resolver, the
// block-gate's head reader, and the token backfiller's ERC20 resolver.
type RPCClient interface {
	scrape.Reader
	scrape.BlockSource
	tokenmeta.Resolver
	FinalizedBlockNumber(ctx context.Context) (uint64, error)
}

// Store is the persistence boundary this package needs, satisfied by
// *store.Store in production and by a fake in tests: the checkpoint read
// side, the registry's commit/list/token operations, and the snapshot
// history store.
type Store interface {
	Get(ctx context.Context, chain chainmodel.Chain, protocol chainmodel.Protocol) (uint64, bool, error)
	CommitIngestBatch(ctx context.Context, batch store.IngestBatch) (inserted, updated int, err error)
	ListPools(ctx context.Context, chain chainmodel.Chain) ([]chainmodel.DiscoveredPool, error)
	RecordBatchReport(ctx context.Context, chain chainmodel.Chain, report chainmodel.BatchReport) error
	tokenmeta.Registry
	snapshot.SnapshotStore
}

// ChainDeps bundles one chain's wired dependencies.
type ChainDeps struct {
	Config        chainmodel.ChainConfig
	RPC           RPCClient
	Store         Store
	Broker        *broker.Publisher // nil disables broadcast entirely
	Prices        PriceSource
	FilterOpts    filter.Options
	Strategy      filter.SlippageStrategy
	ScrapeOpts    scrape.Options
	ExtractorPath string
	ExtractorRPC  string
	OutputDirRoot string
}

// Orchestrator runs refresh cycles for a set of chains, each serialized
// against itself but able to run concurrently with other chains
// (spec.md §5: "parallel across chains, sequential within a chain").
type Orchestrator struct {
	deps     map[chainmodel.Chain]ChainDeps
	locks    map[chainmodel.Chain]*sync.Mutex
	metrics  *telemetry.Metrics
	sink     *telemetry.Sink // optional
	deadline time.Duration
	log      log.Logger
}

func New(deps map[chainmodel.Chain]ChainDeps, metrics *telemetry.Metrics, sink *telemetry.Sink, deadline time.Duration) *Orchestrator {
	locks := make(map[chainmodel.Chain]*sync.Mutex, len(deps))
	for chain := range deps {
		locks[chain] = &sync.Mutex{}
	}
	if deadline == 0 {
		deadline = 15 * time.Minute
	}
	return &Orchestrator{deps: deps, locks: locks, metrics: metrics, sink: sink, deadline: deadline, log: log.New("component", "orchestrator")}
}

// ErrCycleInProgress is returned when a caller asks to refresh a chain that
// already has a cycle running.
type ErrCycleInProgress struct{ Chain chainmodel.Chain }

func (e ErrCycleInProgress) Error() string {
	return fmt.Sprintf("orchestrator: a refresh cycle is already running for chain %s", e.Chain)
}

// RefreshAll runs one cycle per configured chain concurrently, returning
// each chain's CycleReport regardless of individual failures.
func (o *Orchestrator) RefreshAll(ctx context.Context) map[chainmodel.Chain]chainmodel.CycleReport {
	reports := make(map[chainmodel.Chain]chainmodel.CycleReport, len(o.deps))
	var mu sync.Mutex
	var wg sync.WaitGroup

	for chain := range o.deps {
		chain := chain
		wg.Add(1)
		go func() {
			defer wg.Done()
			report, err := o.Refresh(ctx, chain)
			if err != nil {
				o.log.Error("cycle failed", "chain", chain, "err", err)
			}
			mu.Lock()
			reports[chain] = report
			mu.Unlock()
		}()
	}
	wg.Wait()
	return reports
}

// Refresh runs exactly one cycle for a single chain. It returns
// ErrCycleInProgress without blocking if a cycle is already running for
// the same chain (spec.md §5: "disallow overlapping cycles per chain").
func (o *Orchestrator) Refresh(ctx context.Context, chain chainmodel.Chain) (chainmodel.CycleReport, error) {
	lock, ok := o.locks[chain]
	if !ok {
		return chainmodel.CycleReport{}, fmt.Errorf("orchestrator: chain %s is not configured", chain)
	}
	if !lock.TryLock() {
		return chainmodel.CycleReport{}, ErrCycleInProgress{Chain: chain}
	}
	defer lock.Unlock()

	deps := o.deps[chain]
	ctx, cancel := context.WithTimeout(ctx, o.deadline)
	defer cancel()

	report := chainmodel.CycleReport{Chain: chain, StartedAt: time.Now()}
	var errs *multierror.Error

	pools, err := o.ingestAndDecode(ctx, deps)
	if err != nil {
		errs = multierror.Append(errs, err)
		report.Partial = true
	}

	if len(pools) > 0 {
		if err := o.backfillTokens(ctx, deps, pools); err != nil {
			errs = multierror.Append(errs, err)
			report.Partial = true
		}
	}

	allPools, err := deps.Store.ListPools(ctx, chain)
	if err != nil {
		errs = multierror.Append(errs, fmt.Errorf("listing registered pools: %w", err))
		report.FinishedAt = time.Now()
		report.Errors = errs.Errors
		return report, errs.ErrorOrNil()
	}

	states, batches, err := o.scrape(ctx, deps, allPools)
	if err != nil {
		errs = multierror.Append(errs, err)
		report.Partial = true
	}
	report.Batches = batches
	for _, b := range batches {
		if err := deps.Store.RecordBatchReport(ctx, chain, b); err != nil {
			o.log.Warn("recording batch report failed", "chain", chain, "batch", b.BatchNumber, "err", err)
		}
	}

	passing, tokenMeta := o.filter(ctx, deps, allPools, states)

	result, err := o.publishSnapshot(ctx, deps, chain, allPools, tokenMeta, batches, passing)
	if err != nil {
		errs = multierror.Append(errs, err)
		report.Partial = true
	} else {
		report.SnapshotKind = result.Kind
		report.Added = len(result.Added)
		report.Removed = len(result.Removed)
		report.TotalWhitelist = len(result.Snapshot.Pools)
	}

	report.FinishedAt = time.Now()
	report.Errors = errs.Errors

	if o.metrics != nil {
		o.metrics.ObserveCycle(chain, report)
	}
	if o.sink != nil {
		if err := o.sink.WriteCycleReport(ctx, chain, report); err != nil {
			o.log.Warn("telemetry sink write failed", "chain", chain, "err", err)
		}
	}

	return report, errs.ErrorOrNil()
}

// ingestAndDecode drives ingest.Ingestor+decode.Decode per protocol (in
// chainmodel.ProtocolOrder) and commits each protocol's decoded pools and
// checkpoint advance atomically (spec.md §4.B, §4.D).
func (o *Orchestrator) ingestAndDecode(ctx context.Context, deps ChainDeps) ([]chainmodel.DiscoveredPool, error) {
	ingestor := ingest.New(deps.Store, deps.RPC)
	var allPools []chainmodel.DiscoveredPool
	var errs *multierror.Error

	byProtocol := make(map[chainmodel.Protocol]chainmodel.ProtocolConfig, len(deps.Config.Protocols))
	for _, p := range deps.Config.Protocols {
		byProtocol[p.Variant] = p
	}

	for _, proto := range chainmodel.ProtocolOrder {
		cfg, ok := byProtocol[proto]
		if !ok {
			continue
		}

		factories := make([]string, len(cfg.FactoryAddresses))
		for i, f := range cfg.FactoryAddresses {
			factories[i] = f.Hex()
		}

		result, err := ingestor.Ingest(ctx, ingest.Request{
			Chain:            deps.Config.Chain,
			Protocol:         proto,
			Variant:          cfg.VariantTag,
			Factories:        factories,
			Topic:            cfg.Topic.Hex(),
			DeploymentBlock:  cfg.DeploymentBlock,
			OutputDir:        fmt.Sprintf("%s/%s/%s", deps.OutputDirRoot, deps.Config.Chain, proto),
			ExtractorPath:    deps.ExtractorPath,
			RPCURL:           deps.ExtractorRPC,
			InnerRequestSize: 10_000,
		})
		if err != nil {
			errs = multierror.Append(errs, fmt.Errorf("ingest %s/%s: %w", deps.Config.Chain, proto, err))
			continue
		}
		if result.NoNewBlocks {
			continue
		}

		var pools []chainmodel.DiscoveredPool
		for _, bf := range result.BatchFiles {
			rows, err := ingest.ReadBatchFile(bf.Path)
			if err != nil {
				errs = multierror.Append(errs, fmt.Errorf("reading batch file %s: %w", bf.Path, err))
				continue
			}
			for _, row := range rows {
				pool, err := decode.Decode(proto, cfg, row)
				if err != nil {
					continue // DecodeFailed: the log isn't ours or is malformed, skip it (§7)
				}
				pool.Chain = deps.Config.Chain
				pools = append(pools, pool)
			}
		}

		inserted, updated, err := deps.Store.CommitIngestBatch(ctx, store.IngestBatch{
			Chain:       deps.Config.Chain,
			Protocol:    proto,
			Pools:       pools,
			NewEndBlock: result.CoveredEndBlock,
		})
		if err != nil {
			errs = multierror.Append(errs, fmt.Errorf("committing %s/%s batch: %w", deps.Config.Chain, proto, err))
			continue
		}
		o.log.Info("ingested batch", "chain", deps.Config.Chain, "protocol", proto, "inserted", inserted, "updated", updated, "end_block", result.CoveredEndBlock)
		allPools = append(allPools, pools...)
	}

	return allPools, errs.ErrorOrNil()
}

func (o *Orchestrator) backfillTokens(ctx context.Context, deps ChainDeps, pools []chainmodel.DiscoveredPool) error {
	backfiller, err := tokenmeta.New(deps.RPC, deps.Store)
	if err != nil {
		return fmt.Errorf("constructing token backfiller: %w", err)
	}
	poolIDs := make([]chainmodel.PoolID, 0, len(pools))
	var maxBlock uint64
	for _, p := range pools {
		poolIDs = append(poolIDs, p.PoolID)
		if p.CreationBlock > maxBlock {
			maxBlock = p.CreationBlock
		}
	}
	resolved, failures := backfiller.Backfill(ctx, deps.Config.Chain, poolIDs, maxBlock)
	if len(failures) > 0 {
		o.log.Warn("token metadata backfill had failures", "chain", deps.Config.Chain, "resolved", resolved, "failed", len(failures))
	}
	return nil
}

func (o *Orchestrator) scrape(ctx context.Context, deps ChainDeps, pools []chainmodel.DiscoveredPool) ([]chainmodel.PoolState, []chainmodel.BatchReport, error) {
	var publisher scrape.BatchPublisher
	if deps.Broker != nil {
		publisher = deps.Broker
	}
	scraper := scrape.New(deps.RPC, deps.RPC, publisher)
	opts := deps.ScrapeOpts
	opts.Chain = deps.Config.Chain
	return scraper.Scrape(ctx, pools, opts)
}

func (o *Orchestrator) filter(ctx context.Context, deps ChainDeps, pools []chainmodel.DiscoveredPool, states []chainmodel.PoolState) ([]chainmodel.FilterResult, map[chainmodel.TokenID]chainmodel.TokenMeta) {
	stateByID := make(map[chainmodel.PoolID]chainmodel.PoolState, len(states))
	for _, s := range states {
		stateByID[s.PoolID] = s
	}

	tokenMeta := o.tokenMetaFor(ctx, deps, pools)
	prices := func(token chainmodel.TokenID) (float64, bool) {
		if deps.Prices == nil {
			return 0, false
		}
		return deps.Prices.Price(ctx, deps.Config.Chain, token)
	}

	return filter.Evaluate(pools, stateByID, tokenMeta, prices, deps.FilterOpts, deps.Strategy), tokenMeta
}

// tokenMetaFor resolves decimals/symbol for every token these pools
// reference by calling ERC20Decimals/ERC20Symbol on the chain's RPC client;
// the registry is not read. A token whose decimals call fails has no
// entry, which the filter
// treats as a zero-decimals/empty-symbol default rather than a hard error -
// its pool is still rejected downstream if a price for it can't be found
// either.
func (o *Orchestrator) tokenMetaFor(ctx context.Context, deps ChainDeps, pools []chainmodel.DiscoveredPool) map[chainmodel.TokenID]chainmodel.TokenMeta {
	out := make(map[chainmodel.TokenID]chainmodel.TokenMeta)
	seen := make(map[chainmodel.TokenID]struct{})
	for _, p := range pools {
		for _, token := range [2]chainmodel.TokenID{p.Token0, p.Token1} {
			if _, ok := seen[token]; ok {
				continue
			}
			seen[token] = struct{}{}
			decimals, err := deps.RPC.ERC20Decimals(ctx, common.Address(token), 0)
			if err != nil {
				continue
			}
			symbol, _ := deps.RPC.ERC20Symbol(ctx, common.Address(token), 0)
			out[token] = chainmodel.TokenMeta{Chain: deps.Config.Chain, Token: token, Decimals: decimals, Symbol: symbol, Resolved: true}
		}
	}
	return out
}

func (o *Orchestrator) publishSnapshot(ctx context.Context, deps ChainDeps, chain chainmodel.Chain, pools []chainmodel.DiscoveredPool, tokenMeta map[chainmodel.TokenID]chainmodel.TokenMeta, batches []chainmodel.BatchReport, results []chainmodel.FilterResult) (snapshot.Result, error) {
	var passing []chainmodel.PoolID
	for _, r := range results {
		if r.Passes {
			passing = append(passing, r.PoolID)
		}
	}

	var refBlock uint64
	for _, b := range batches {
		if b.ReferenceBlock > refBlock {
			refBlock = b.ReferenceBlock
		}
	}

	publisher := snapshot.New(deps.Store)
	result, err := publisher.Publish(ctx, chain, refBlock, passing, time.Now())
	if err != nil {
		return snapshot.Result{}, fmt.Errorf("publishing snapshot: %w", err)
	}

	if deps.Broker != nil && !result.BroadcastSkipped {
		broadcastAt := time.Now()
		if err := deps.Broker.PublishMinimal(ctx, chain, broadcastAt, refBlock, result.Snapshot.Pools); err != nil {
			return result, fmt.Errorf("broadcasting minimal whitelist: %w", err)
		}

		poolByID := make(map[chainmodel.PoolID]chainmodel.DiscoveredPool, len(pools))
		for _, p := range pools {
			poolByID[p.PoolID] = p
		}
		full := fullPoolEntries(result.Snapshot.Pools, poolByID, tokenMeta)
		if err := deps.Broker.PublishFull(ctx, chain, broadcastAt, refBlock, full); err != nil {
			return result, fmt.Errorf("broadcasting full whitelist: %w", err)
		}
	}

	return result, nil
}

// fullPoolEntries builds the full-broadcast pool list (spec.md §4.G,
// SPEC_FULL.md's Open Question #2): a pool whose token0 or token1 has no
// resolved TokenMeta yet is excluded here even though it remains in the
// minimal broadcast and the persisted snapshot.
func fullPoolEntries(poolIDs []chainmodel.PoolID, poolByID map[chainmodel.PoolID]chainmodel.DiscoveredPool, tokenMeta map[chainmodel.TokenID]chainmodel.TokenMeta) []broker.FullPoolEntry {
	entries := make([]broker.FullPoolEntry, 0, len(poolIDs))
	for _, id := range poolIDs {
		pool, ok := poolByID[id]
		if !ok {
			continue
		}
		meta0, ok0 := tokenMeta[pool.Token0]
		meta1, ok1 := tokenMeta[pool.Token1]
		if !ok0 || !ok1 || !meta0.Resolved || !meta1.Resolved {
			continue
		}

		entry := broker.FullPoolEntry{
			ID:           id.Hex(),
			Protocol:     string(pool.Protocol),
			FactoryOrMgr: pool.FactoryOrManager.Hex(),
			Token0:       tokenRef(pool.Token0, meta0),
			Token1:       tokenRef(pool.Token1, meta1),
		}
		if pool.Protocol == chainmodel.ProtocolV3 || pool.Protocol == chainmodel.ProtocolV4 {
			feeBps := pool.FeeBps
			entry.FeeBps = &feeBps
			tickSpacing := pool.TickSpacing
			entry.TickSpacing = &tickSpacing
		}
		if pool.Protocol == chainmodel.ProtocolV2 {
			stable := pool.StableFlag
			entry.Stable = &stable
		}
		if pool.Protocol == chainmodel.ProtocolV4 && pool.HooksID != (common.Address{}) {
			hooks := pool.HooksID.Hex()
			entry.Hooks = &hooks
		}
		entries = append(entries, entry)
	}
	return entries
}

func tokenRef(token chainmodel.TokenID, meta chainmodel.TokenMeta) broker.TokenRef {
	decimals := meta.Decimals
	symbol := meta.Symbol
	return broker.TokenRef{
		Address:  common.Address(token).Hex(),
		Decimals: &decimals,
		Symbol:   &symbol,
	}
}
