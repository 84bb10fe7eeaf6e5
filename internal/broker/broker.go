// Package broker publishes whitelist updates to the pub/sub broker
// (spec.md §6): subject-based, fire-and-forget JSON payloads over NATS,
// grounded in the NATS message-format tests carried alongside the
// original system's publisher.
package broker

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/log"
	"github.com/nats-io/nats.go"

	"github.com/dexwhitelist/whitelistd/internal/chainmodel"
)

// Config configures one broker connection.
type Config struct {
	URL                string
	MinimalEnabled     bool
	FullEnabled        bool
	ReferenceBlockEnabled bool
	ChainIdentifiers   map[chainmodel.Chain]string // subject-name override per chain, defaults to the Chain value
}

// Publisher wraps a NATS connection and the subject-enablement policy of
// spec.md §6 ("Either/both subjects may be disabled by configuration").
type Publisher struct {
	nc  *nats.Conn
	cfg Config
	log log.Logger
}

func Connect(cfg Config) (*Publisher, error) {
	nc, err := nats.Connect(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("broker: connecting to %s: %w", cfg.URL, err)
	}
	return &Publisher{nc: nc, cfg: cfg, log: log.New("component", "broker")}, nil
}

func (p *Publisher) Close() { p.nc.Close() }

func (p *Publisher) chainIdent(chain chainmodel.Chain) string {
	if ident, ok := p.cfg.ChainIdentifiers[chain]; ok && ident != "" {
		return ident
	}
	return string(chain)
}

// MinimalMessage is the payload for subject whitelist.pools.<chain>.minimal
// (spec.md §4.G).
type MinimalMessage struct {
	Chain          string   `json:"chain"`
	Timestamp      string   `json:"timestamp"`
	ReferenceBlock uint64   `json:"reference_block"`
	Pools          []string `json:"pools"`
}

// TokenRef is the token side of a full-broadcast pool entry.
type TokenRef struct {
	Address string  `json:"address"`
	Decimals *uint8  `json:"decimals,omitempty"`
	Symbol   *string `json:"symbol,omitempty"`
}

// FullPoolEntry is one pool entry in subject whitelist.pools.<chain>.full.
type FullPoolEntry struct {
	ID          string   `json:"id"`
	Protocol    string   `json:"protocol"`
	FactoryOrMgr string  `json:"factory_or_manager"`
	Token0      TokenRef `json:"token0"`
	Token1      TokenRef `json:"token1"`
	FeeBps      *uint32  `json:"fee,omitempty"`
	TickSpacing *int32   `json:"tick_spacing,omitempty"`
	Stable      *bool    `json:"stable,omitempty"`
	Hooks       *string  `json:"hooks,omitempty"`
}

// FullMessage is the payload for subject whitelist.pools.<chain>.full.
type FullMessage struct {
	Chain          string          `json:"chain"`
	Timestamp      string          `json:"timestamp"`
	ReferenceBlock uint64          `json:"reference_block"`
	Pools          []FullPoolEntry `json:"pools"`
}

// ReferenceBlockMessage is the payload for
// whitelist.snapshots.<chain>.reference_block (spec.md §4.E step 6).
type ReferenceBlockMessage struct {
	Chain         string `json:"chain"`
	BatchNumber   int    `json:"batch_number"`
	TotalBatches  int    `json:"total_batches"`
	Protocol      string `json:"protocol"`
	PoolsInBatch  int    `json:"pools_in_batch"`
	ReferenceBlock uint64 `json:"reference_block"`
}

func (p *Publisher) PublishMinimal(ctx context.Context, chain chainmodel.Chain, timestamp time.Time, referenceBlock uint64, pools []chainmodel.PoolID) error {
	if !p.cfg.MinimalEnabled {
		return nil
	}
	ids := make([]string, len(pools))
	for i, id := range pools {
		ids[i] = id.Hex()
	}
	msg := MinimalMessage{
		Chain:          p.chainIdent(chain),
		Timestamp:      timestamp.UTC().Format(time.RFC3339),
		ReferenceBlock: referenceBlock,
		Pools:          ids,
	}
	return p.publish(fmt.Sprintf("whitelist.pools.%s.minimal", p.chainIdent(chain)), msg)
}

func (p *Publisher) PublishFull(ctx context.Context, chain chainmodel.Chain, timestamp time.Time, referenceBlock uint64, entries []FullPoolEntry) error {
	if !p.cfg.FullEnabled {
		return nil
	}
	msg := FullMessage{
		Chain:          p.chainIdent(chain),
		Timestamp:      timestamp.UTC().Format(time.RFC3339),
		ReferenceBlock: referenceBlock,
		Pools:          entries,
	}
	return p.publish(fmt.Sprintf("whitelist.pools.%s.full", p.chainIdent(chain)), msg)
}

// PublishReferenceBlock implements scrape.BatchPublisher.
func (p *Publisher) PublishReferenceBlock(ctx context.Context, chain chainmodel.Chain, report chainmodel.BatchReport, totalBatches int) error {
	if !p.cfg.ReferenceBlockEnabled {
		return nil
	}
	msg := ReferenceBlockMessage{
		Chain:          p.chainIdent(chain),
		BatchNumber:    report.BatchNumber,
		TotalBatches:   totalBatches,
		Protocol:       string(report.Protocol),
		PoolsInBatch:   report.PoolsScraped + report.PoolsFailed,
		ReferenceBlock: report.ReferenceBlock,
	}
	return p.publish(fmt.Sprintf("whitelist.snapshots.%s.reference_block", p.chainIdent(chain)), msg)
}

func (p *Publisher) publish(subject string, payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("broker: marshaling payload for %s: %w", subject, err)
	}
	if err := p.nc.Publish(subject, data); err != nil {
		return fmt.Errorf("broker: publishing to %s: %w", subject, err)
	}
	return nil
}
