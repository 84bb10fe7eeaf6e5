package ingest

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/parquet-go/parquet-go"

	"github.com/dexwhitelist/whitelistd/internal/decode"
)

// logRow mirrors the cryo `logs` table schema (address, topic0..topic3,
// data, block_number) the external extractor emits. topic0 is the event
// signature hash and becomes Topics[0] of each decode.RawLog, followed by
// the indexed topics up to the first empty one.
type logRow struct {
	Address     []byte `parquet:"address"`
	Topic0      []byte `parquet:"topic0"`
	Topic1      []byte `parquet:"topic1,optional"`
	Topic2      []byte `parquet:"topic2,optional"`
	Topic3      []byte `parquet:"topic3,optional"`
	Data        []byte `parquet:"data"`
	BlockNumber uint64 `parquet:"block_number"`
}

// ReadBatchFile parses one extractor-emitted parquet file into the raw log
// records the Event Decoder consumes (spec.md §4.A: "one ordered columnar
// file per inner sub-range").
func ReadBatchFile(path string) ([]decode.RawLog, error) {
	rows, err := parquet.ReadFile[logRow](path)
	if err != nil {
		return nil, fmt.Errorf("ingest: reading batch file %s: %w", path, err)
	}

	out := make([]decode.RawLog, 0, len(rows))
	for _, r := range rows {
		topics := []common.Hash{common.BytesToHash(r.Topic0)}
		for _, t := range [][]byte{r.Topic1, r.Topic2, r.Topic3} {
			if len(t) == 0 {
				break
			}
			topics = append(topics, common.BytesToHash(t))
		}
		out = append(out, decode.RawLog{
			Address:     common.BytesToAddress(r.Address),
			Topics:      topics,
			Data:        r.Data,
			BlockNumber: r.BlockNumber,
		})
	}
	return out, nil
}
