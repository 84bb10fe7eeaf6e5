package chainmodel

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"
)

// ProtocolConfig is the static, per-(chain, protocol) catalog entry: factory
// addresses, deployment block and event topic. Loaded once per process from
// the operator's TOML config (internal/config), never mutated at runtime —
// per §9's "Dynamic config objects" note, this replaces the source's
// loosely-typed dictionaries with one typed structure.
type ProtocolConfig struct {
	Variant           Protocol
	VariantTag        string
	FactoryAddresses  []common.Address
	DeploymentBlock   uint64
	Topic             common.Hash
	DefaultFeeBps     uint32 // used by V2-family variants lacking an on-chain fee
	StableFlagOffset  int    // byte offset of the stable flag in PairCreated data, -1 if absent
}

// ChainConfig is the full per-chain catalog entry.
type ChainConfig struct {
	Chain         Chain
	RPCURL        string
	Confirmations uint64 // supplement: reorg-safety lag when the RPC has no native "finalized" tag
	Protocols     []ProtocolConfig
}

// ProtocolCatalog is the whole-process, read-only view of every configured
// chain. It is loaded once (internal/config) and threaded down to every
// component; no component mutates it.
type ProtocolCatalog struct {
	Chains map[Chain]ChainConfig
}

// Lookup returns the catalog entry for (chain, protocol), or an error if the
// chain or the protocol variant within it is not configured.
func (c *ProtocolCatalog) Lookup(chain Chain, protocol Protocol) (ProtocolConfig, error) {
	cc, ok := c.Chains[chain]
	if !ok {
		return ProtocolConfig{}, fmt.Errorf("chainmodel: chain %q not in catalog", chain)
	}
	for _, p := range cc.Protocols {
		if p.Variant == protocol {
			return p, nil
		}
	}
	return ProtocolConfig{}, fmt.Errorf("chainmodel: protocol %q not configured for chain %q", protocol, chain)
}

// ChainProtocols returns the configured protocol list for a chain, in
// catalog order (used by the orchestrator to drive ingestion per-protocol).
func (c *ProtocolCatalog) ChainProtocols(chain Chain) []ProtocolConfig {
	return c.Chains[chain].Protocols
}
