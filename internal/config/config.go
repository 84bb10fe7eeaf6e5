// Package config loads whitelistd's structured configuration file
// (spec.md §6 "CLI / config surface"), following the teacher's own
// TOML-based config loading idiom.
package config

import (
	"fmt"
	"os"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/ethereum/go-ethereum/common"

	"github.com/dexwhitelist/whitelistd/internal/chainmodel"
)

// ProtocolConfig is one protocol entry under a chain (spec.md §6).
type ProtocolConfig struct {
	Variant           string   `toml:"variant"` // protocol family: "v2", "v3", or "v4"
	// VariantTag names the concrete factory this entry configures (e.g.
	// "uniswap_v2", "aerodrome_v2"), distinct from Variant's family tag
	// (spec.md §3). Defaults to Variant when left unset, since most
	// deployments only run one factory per family per chain.
	VariantTag        string   `toml:"variant_tag"`
	FactoryOrManagers []string `toml:"factory_or_manager_addresses"`
	DeploymentBlock   uint64   `toml:"deployment_block"`
	Topic             string   `toml:"topic"`
	DefaultFeeBps     uint32   `toml:"default_fee_bps"`
	// StableFlagOffset is the byte offset of the stable-pair flag word in a
	// variant's PairCreated data (Aerodrome/Solidly-style factories); nil
	// for variants with no stable flag at all, which must not default to
	// offset 0 - that would alias the pair-address word already there.
	StableFlagOffset *int `toml:"stable_flag_offset"`
}

// ChainConfig is one configured chain (spec.md §6).
type ChainConfig struct {
	RPCURL        string           `toml:"rpc_url"`
	Confirmations uint64           `toml:"confirmations"` // reorg-safety lag, SPEC_FULL.md supplement; default 2
	Protocols     []ProtocolConfig `toml:"protocols"`
}

// ScraperConfig configures the Batch Scraper (spec.md §6).
type ScraperConfig struct {
	BlockTimeSeconds   float64        `toml:"block_time_seconds"`   // default 12
	SafetyMargin       float64        `toml:"safety_margin"`        // default 0.8
	WaitForNextBlock   bool           `toml:"wait_for_next_block"`  // no default applied: false when absent
	Concurrency        int            `toml:"concurrency"`          // default 16
	BatchSizeOverrides map[string]map[string]int `toml:"batch_size_overrides"`
}

// FilterConfig configures the Liquidity Filter (spec.md §6).
type FilterConfig struct {
	TradeSizeUSD   float64  `toml:"trade_size_usd"`  // default 1000
	MaxSlippage    float64  `toml:"max_slippage_percent"` // default 5
	TrustedTokens  []string `toml:"trusted_tokens"`
	IterationDepth int      `toml:"iteration_depth"` // default 1
	Strategy       string   `toml:"slippage_strategy"` // "approx" (default) or "cross_tick"
}

// PublisherConfig configures the broker connection and which subjects are
// published (spec.md §6). Retention windows live in TelemetryConfig.
type PublisherConfig struct {
	BrokerURL             string `toml:"broker_url"`
	MinimalEnabled        bool   `toml:"minimal_enabled"`
	FullEnabled           bool   `toml:"full_enabled"`
	ReferenceBlockEnabled bool   `toml:"reference_block_enabled"`
	ChainIdentifier       string `toml:"chain_identifier"`
}

// TelemetryConfig configures optional telemetry persistence and retention
// (SPEC_FULL.md's open-question-3 resolution).
type TelemetryConfig struct {
	InfluxURL                string `toml:"influx_url"`
	InfluxToken              string `toml:"influx_token"`
	InfluxOrg                string `toml:"influx_org"`
	InfluxBucket             string `toml:"influx_bucket"`
	BatchReportRetentionDays int    `toml:"batch_report_retention_days"` // default 30
	SnapshotHistoryRetentionDays int `toml:"snapshot_history_retention_days"` // default 0 (unlimited)
}

// Config is the whole structured config file (spec.md §6).
type Config struct {
	DatabaseDSN string                           `toml:"database_dsn"`
	Chains      map[string]ChainConfig           `toml:"chains"`
	Scraper     ScraperConfig                    `toml:"scraper"`
	Filter      FilterConfig                     `toml:"filter"`
	Publisher   map[string]PublisherConfig       `toml:"publisher"` // keyed by chain
	Telemetry   TelemetryConfig                  `toml:"telemetry"`
	CycleDeadline time.Duration                  `toml:"-"`
	CycleDeadlineSeconds int                     `toml:"cycle_deadline_seconds"` // default 900 (15 min)
}

// Load reads and parses a TOML config file, applying the defaults spec.md
// §6/§5 and SPEC_FULL.md name explicitly.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: reading %s: %w", path, err)
	}

	var cfg Config
	if _, err := toml.Decode(string(data), &cfg); err != nil {
		return nil, fmt.Errorf("config: parsing %s: %w", path, err)
	}
	applyDefaults(&cfg)
	return &cfg, nil
}

func applyDefaults(cfg *Config) {
	if cfg.Scraper.BlockTimeSeconds == 0 {
		cfg.Scraper.BlockTimeSeconds = 12
	}
	if cfg.Scraper.SafetyMargin == 0 {
		cfg.Scraper.SafetyMargin = 0.8
	}
	if cfg.Scraper.Concurrency == 0 {
		cfg.Scraper.Concurrency = 16
	}
	if cfg.Filter.TradeSizeUSD == 0 {
		cfg.Filter.TradeSizeUSD = 1000
	}
	if cfg.Filter.MaxSlippage == 0 {
		cfg.Filter.MaxSlippage = 5
	}
	if cfg.Filter.IterationDepth == 0 {
		cfg.Filter.IterationDepth = 1
	}
	if cfg.Filter.Strategy == "" {
		cfg.Filter.Strategy = "approx"
	}
	if cfg.Telemetry.BatchReportRetentionDays == 0 {
		cfg.Telemetry.BatchReportRetentionDays = 30
	}
	if cfg.CycleDeadlineSeconds == 0 {
		cfg.CycleDeadlineSeconds = 900
	}
	cfg.CycleDeadline = time.Duration(cfg.CycleDeadlineSeconds) * time.Second

	for name, chain := range cfg.Chains {
		if chain.Confirmations == 0 {
			chain.Confirmations = 2
			cfg.Chains[name] = chain
		}
	}
}

// Chain resolves a configured chain name to a chainmodel.Chain identifier.
func Chain(name string) chainmodel.Chain { return chainmodel.Chain(name) }

// Catalog converts the TOML-shaped chain/protocol config into the typed,
// read-only chainmodel.ProtocolCatalog threaded through the rest of the
// pipeline (spec.md §9's "replace loosely-typed dictionaries" note).
func (cfg *Config) Catalog() chainmodel.ProtocolCatalog {
	chains := make(map[chainmodel.Chain]chainmodel.ChainConfig, len(cfg.Chains))
	for name, cc := range cfg.Chains {
		chain := chainmodel.Chain(name)
		protocols := make([]chainmodel.ProtocolConfig, 0, len(cc.Protocols))
		for _, p := range cc.Protocols {
			factories := make([]common.Address, 0, len(p.FactoryOrManagers))
			for _, f := range p.FactoryOrManagers {
				factories = append(factories, common.HexToAddress(f))
			}
			stableOffset := -1
			if p.StableFlagOffset != nil {
				stableOffset = *p.StableFlagOffset
			}
			variantTag := p.VariantTag
			if variantTag == "" {
				variantTag = p.Variant
			}
			protocols = append(protocols, chainmodel.ProtocolConfig{
				Variant:          chainmodel.Protocol(p.Variant),
				VariantTag:       variantTag,
				FactoryAddresses: factories,
				DeploymentBlock:  p.DeploymentBlock,
				Topic:            common.HexToHash(p.Topic),
				DefaultFeeBps:    p.DefaultFeeBps,
				StableFlagOffset: stableOffset,
			})
		}
		chains[chain] = chainmodel.ChainConfig{
			Chain:         chain,
			RPCURL:        cc.RPCURL,
			Confirmations: cc.Confirmations,
			Protocols:     protocols,
		}
	}
	return chainmodel.ProtocolCatalog{Chains: chains}
}
