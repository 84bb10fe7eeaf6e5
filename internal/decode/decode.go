// Package decode implements the Event Decoder (spec.md §4.C): a pure
// function per protocol variant that turns a raw log into a
// chainmodel.DiscoveredPool, or rejects it with a reason. Each decoder is a
// pure function of the topic set for its protocol — no shared state, no
// base type, per the dispatch-table design in §9.
package decode

import (
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/common"

	"github.com/dexwhitelist/whitelistd/internal/chainmodel"
)

// ErrRejected is wrapped by every decode rejection reason so callers can
// classify "this log is not ours" (DecodeFailed, §7) uniformly.
var ErrRejected = errors.New("decode: log rejected")

// RawLog is the minimal shape the decoder needs out of a columnar ingested
// log row: address, topics in order, raw ABI-encoded data, and the block
// the log was mined in.
type RawLog struct {
	Address     common.Address
	Topics      []common.Hash
	Data        []byte
	BlockNumber uint64
}

// Decoder is the per-protocol pure decode function.
type Decoder func(cfg chainmodel.ProtocolConfig, log RawLog) (chainmodel.DiscoveredPool, error)

// Dispatch is the protocol -> decoder table (§9: dispatch table, not
// inheritance).
var Dispatch = map[chainmodel.Protocol]Decoder{
	chainmodel.ProtocolV2: DecodeV2,
	chainmodel.ProtocolV3: DecodeV3,
	chainmodel.ProtocolV4: DecodeV4,
}

// Decode looks up and runs the decoder for the log's configured protocol.
func Decode(protocol chainmodel.Protocol, cfg chainmodel.ProtocolConfig, log RawLog) (chainmodel.DiscoveredPool, error) {
	fn, ok := Dispatch[protocol]
	if !ok {
		return chainmodel.DiscoveredPool{}, chainmodel.ErrUnknownProtocol{Protocol: protocol}
	}
	return fn(cfg, log)
}

func topicAddress(topic common.Hash) common.Address {
	return common.BytesToAddress(topic[12:])
}

// reject wraps a human-readable decode failure reason against ErrRejected.
func reject(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrRejected, fmt.Sprintf(format, args...))
}

// orderTokens enforces the token0 < token1 canonical-order invariant
// (spec.md §3, §8 property 3), swapping and flagging when necessary.
// It also swaps every paired attribute that is itself token-indexed, which
// for this event family is none (fee/tick-spacing/stable are pair-level,
// not token-level), so a plain swap is correct here.
func orderTokens(a, b common.Address) (t0, t1 common.Address, swapped bool) {
	ta, tb := chainmodel.TokenID(a), chainmodel.TokenID(b)
	if chainmodel.Less(tb, ta) {
		return b, a, true
	}
	return a, b, false
}
