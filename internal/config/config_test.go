package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

const testConfigTOML = `
database_dsn = "postgres://localhost/whitelistd"

[chains.ethereum]
rpc_url = "https://rpc.example/ethereum"

[[chains.ethereum.protocols]]
variant = "v2"
variant_tag = "uniswap_v2"
deployment_block = 10000000
topic = "0x0d3648bd0f6ba80134a33ba9275ac585d9d315f0ad8355cddefde31afa28d0e"
factory_or_manager_addresses = ["0x5C69bEe701ef814a2B6a3EDD4B1652CB9cc5aA6f"]

[scraper]
wait_for_next_block = true

[filter]
trusted_tokens = ["0xA0b86991c6218b36c1d19D4a2e9Eb0cE3606eB48"]

[publisher.ethereum]
broker_url = "nats://localhost:4222"
minimal_enabled = true
full_enabled = true
chain_identifier = "ethereum"
`

func writeTestConfig(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "whitelistd.toml")
	require.NoError(t, os.WriteFile(path, []byte(testConfigTOML), 0o644))
	return path
}

func TestLoadParsesChainsAndProtocols(t *testing.T) {
	path := writeTestConfig(t)
	cfg, err := Load(path)
	require.NoError(t, err)

	chain, ok := cfg.Chains["ethereum"]
	require.True(t, ok)
	require.Len(t, chain.Protocols, 1)
	require.Equal(t, "v2", chain.Protocols[0].Variant)
	require.Equal(t, uint64(10000000), chain.Protocols[0].DeploymentBlock)
}

func TestLoadAppliesDefaults(t *testing.T) {
	path := writeTestConfig(t)
	cfg, err := Load(path)
	require.NoError(t, err)

	require.Equal(t, 12.0, cfg.Scraper.BlockTimeSeconds)
	require.Equal(t, 0.8, cfg.Scraper.SafetyMargin)
	require.Equal(t, 16, cfg.Scraper.Concurrency)
	require.Equal(t, 1000.0, cfg.Filter.TradeSizeUSD)
	require.Equal(t, 5.0, cfg.Filter.MaxSlippage)
	require.Equal(t, 1, cfg.Filter.IterationDepth)
	require.Equal(t, uint64(2), cfg.Chains["ethereum"].Confirmations)
	require.Equal(t, 900, cfg.CycleDeadlineSeconds)
}

func TestLoadMissingFileReturnsError(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.toml"))
	require.Error(t, err)
}
