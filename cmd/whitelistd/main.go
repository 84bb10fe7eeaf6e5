// Command whitelistd runs the DEX liquidity-pool whitelist refresh pipeline
// (spec.md §1): one process, one or more configured chains, one refresh
// cycle per chain per invocation of the refresh command.
package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/fatih/color"
	"github.com/olekukonko/tablewriter"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/urfave/cli/v2"
	"go.uber.org/automaxprocs/maxprocs"

	"github.com/ethereum/go-ethereum/log"

	"github.com/dexwhitelist/whitelistd/internal/broker"
	"github.com/dexwhitelist/whitelistd/internal/chainmodel"
	"github.com/dexwhitelist/whitelistd/internal/config"
	"github.com/dexwhitelist/whitelistd/internal/filter"
	"github.com/dexwhitelist/whitelistd/internal/orchestrator"
	"github.com/dexwhitelist/whitelistd/internal/retention"
	"github.com/dexwhitelist/whitelistd/internal/rpcshim"
	"github.com/dexwhitelist/whitelistd/internal/scrape"
	"github.com/dexwhitelist/whitelistd/internal/store"
	"github.com/dexwhitelist/whitelistd/internal/telemetry"
)

var (
	configFlag = &cli.StringFlag{
		Name:     "config",
		Usage:    "path to the whitelistd TOML config file",
		Required: true,
	}
	chainFlag = &cli.StringFlag{
		Name:  "chain",
		Usage: "restrict the refresh to a single configured chain; default runs all configured chains",
	}
	dryRunFlag = &cli.BoolFlag{
		Name:  "dry-run",
		Usage: "run the cycle but skip broker broadcast",
	}
	extractorFlag = &cli.StringFlag{
		Name:  "extractor-path",
		Usage: "path to the external log-extraction binary",
		Value: "cryo",
	}
	outputDirFlag = &cli.StringFlag{
		Name:  "output-dir",
		Usage: "root directory the Log Ingestor writes batch files under",
		Value: "./whitelistd-data",
	}
)

var refreshCommand = &cli.Command{
	Name:   "refresh",
	Usage:  "run one whitelist refresh cycle per configured chain",
	Flags:  []cli.Flag{configFlag, chainFlag, dryRunFlag, extractorFlag, outputDirFlag},
	Action: runRefresh,
}

var app = &cli.App{
	Name:  "whitelistd",
	Usage: "DEX liquidity-pool whitelist refresh daemon",
	Commands: []*cli.Command{
		refreshCommand,
	},
}

func main() {
	if _, err := maxprocs.Set(maxprocs.Logger(func(string, ...any) {})); err != nil {
		log.Warn("failed to set GOMAXPROCS", "err", err)
	}

	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, color.RedString("error: %v", err))
		os.Exit(1)
	}
}

func runRefresh(c *cli.Context) error {
	cfg, err := config.Load(c.String(configFlag.Name))
	if err != nil {
		return err
	}

	ctx := context.Background()
	db, err := store.Open(ctx, cfg.DatabaseDSN)
	if err != nil {
		return fmt.Errorf("connecting to store: %w", err)
	}
	defer db.Close()

	catalog := cfg.Catalog()
	chainNames := selectedChains(c.String(chainFlag.Name), catalog)
	if len(chainNames) == 0 {
		return fmt.Errorf("no chains configured (or --chain %q is not in the config)", c.String(chainFlag.Name))
	}

	registry := prometheus.NewRegistry()
	metrics := telemetry.NewMetrics(registry)

	var sink *telemetry.Sink
	if cfg.Telemetry.InfluxURL != "" {
		sink = telemetry.NewSink(telemetry.SinkConfig{
			URL:    cfg.Telemetry.InfluxURL,
			Token:  cfg.Telemetry.InfluxToken,
			Org:    cfg.Telemetry.InfluxOrg,
			Bucket: cfg.Telemetry.InfluxBucket,
		})
		defer sink.Close()
	}

	deps := make(map[chainmodel.Chain]orchestrator.ChainDeps, len(chainNames))
	for _, chain := range chainNames {
		chainCfg := catalog.Chains[chain]

		rpcClient, err := rpcshim.Dial(ctx, rpcshim.Config{RPCURL: chainCfg.RPCURL, Confirmations: chainCfg.Confirmations})
		if err != nil {
			return fmt.Errorf("dialing RPC for %s: %w", chain, err)
		}
		defer rpcClient.Close()

		if err := db.EnsureChainTable(ctx, chain); err != nil {
			return fmt.Errorf("ensuring pool table for %s: %w", chain, err)
		}

		var brokerPublisher *broker.Publisher
		pubCfg, hasPubCfg := cfg.Publisher[string(chain)]
		if !c.Bool(dryRunFlag.Name) && hasPubCfg && pubCfg.BrokerURL != "" {
			brokerPublisher, err = broker.Connect(broker.Config{
				URL:                   pubCfg.BrokerURL,
				MinimalEnabled:        pubCfg.MinimalEnabled,
				FullEnabled:           pubCfg.FullEnabled,
				ReferenceBlockEnabled: pubCfg.ReferenceBlockEnabled,
				ChainIdentifiers:      map[chainmodel.Chain]string{chain: pubCfg.ChainIdentifier},
			})
			if err != nil {
				return fmt.Errorf("connecting broker for %s: %w", chain, err)
			}
			defer brokerPublisher.Close()
		}

		trustedTokens, err := db.TrustedTokens(ctx, chain)
		if err != nil {
			return fmt.Errorf("loading trusted tokens for %s: %w", chain, err)
		}
		filterOpts := filter.DefaultOptions()
		filterOpts.TradeSizeUSD = cfg.Filter.TradeSizeUSD
		filterOpts.MaxSlippage = cfg.Filter.MaxSlippage
		filterOpts.IterationDepth = cfg.Filter.IterationDepth
		for token := range trustedTokens {
			filterOpts.TrustedTokens.Add(token)
		}

		var strategy filter.SlippageStrategy
		switch cfg.Filter.Strategy {
		case "cross_tick":
			strategy = filter.CrossTickStrategy{TradeSizeUSD: cfg.Filter.TradeSizeUSD}
		default:
			strategy = filter.ApproxStrategy{TradeSizeUSD: cfg.Filter.TradeSizeUSD}
		}

		deps[chain] = orchestrator.ChainDeps{
			Config: chainCfg,
			RPC:    rpcClient,
			Store:  db,
			Broker: brokerPublisher,
			Prices: nil, // pricing is a downstream concern (spec.md §1 Non-goals); wire a real feed here
			FilterOpts: filterOpts,
			Strategy:   strategy,
			ScrapeOpts: scrape.Options{
				Mode:             chainmodel.ModeFiltering,
				Concurrency:      cfg.Scraper.Concurrency,
				WaitForNextBlock: cfg.Scraper.WaitForNextBlock,
			},
			ExtractorPath: c.String(extractorFlag.Name),
			ExtractorRPC:  chainCfg.RPCURL,
			OutputDirRoot: c.String(outputDirFlag.Name),
		}
	}

	orch := orchestrator.New(deps, metrics, sink, cfg.CycleDeadline)
	reports := orch.RefreshAll(ctx)

	sweeper := retention.New(db, retention.Policy{
		BatchReportRetention:     time.Duration(cfg.Telemetry.BatchReportRetentionDays) * 24 * time.Hour,
		SnapshotHistoryRetention: time.Duration(cfg.Telemetry.SnapshotHistoryRetentionDays) * 24 * time.Hour,
	})
	for _, chain := range chainNames {
		if err := sweeper.Sweep(ctx, chain, time.Now()); err != nil {
			log.Warn("retention sweep failed", "chain", chain, "err", err)
		}
	}

	printReports(chainNames, reports)
	return nil
}

func selectedChains(only string, catalog chainmodel.ProtocolCatalog) []chainmodel.Chain {
	if only != "" {
		chain := chainmodel.Chain(only)
		if _, ok := catalog.Chains[chain]; !ok {
			return nil
		}
		return []chainmodel.Chain{chain}
	}
	chains := make([]chainmodel.Chain, 0, len(catalog.Chains))
	for chain := range catalog.Chains {
		chains = append(chains, chain)
	}
	return chains
}

func printReports(chains []chainmodel.Chain, reports map[chainmodel.Chain]chainmodel.CycleReport) {
	table := tablewriter.NewWriter(os.Stdout)
	table.SetHeader([]string{"Chain", "Kind", "Added", "Removed", "Total", "Batches", "Partial", "Duration"})

	for _, chain := range chains {
		r, ok := reports[chain]
		if !ok {
			continue
		}
		partial := "no"
		if r.Partial {
			partial = color.YellowString("yes")
		}
		table.Append([]string{
			string(chain),
			string(r.SnapshotKind),
			fmt.Sprintf("%d", r.Added),
			fmt.Sprintf("%d", r.Removed),
			fmt.Sprintf("%d", r.TotalWhitelist),
			fmt.Sprintf("%d", len(r.Batches)),
			partial,
			r.FinishedAt.Sub(r.StartedAt).Round(time.Millisecond).String(),
		})
	}
	table.Render()
}
