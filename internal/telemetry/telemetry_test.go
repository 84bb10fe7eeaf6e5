package telemetry

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/require"

	"github.com/dexwhitelist/whitelistd/internal/chainmodel"
)

func TestObserveCycleRecordsBatchCounters(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetrics(reg)

	report := chainmodel.CycleReport{
		Chain:      chainmodel.ChainEthereum,
		StartedAt:  time.Now().Add(-time.Second),
		FinishedAt: time.Now(),
		Batches: []chainmodel.BatchReport{
			{Protocol: chainmodel.ProtocolV2, PoolsScraped: 10, PoolsFailed: 2},
		},
		TotalWhitelist: 8,
	}
	m.ObserveCycle(chainmodel.ChainEthereum, report)

	metric := &dto.Metric{}
	require.NoError(t, m.PoolsScraped.WithLabelValues("ethereum", "v2").Write(metric))
	require.Equal(t, float64(10), metric.GetCounter().GetValue())

	metric = &dto.Metric{}
	require.NoError(t, m.SnapshotPoolCount.WithLabelValues("ethereum").Write(metric))
	require.Equal(t, float64(8), metric.GetGauge().GetValue())
}

func TestObserveCycleCountsFailureWhenPartial(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetrics(reg)

	m.ObserveCycle(chainmodel.ChainEthereum, chainmodel.CycleReport{Chain: chainmodel.ChainEthereum, Partial: true})

	metric := &dto.Metric{}
	require.NoError(t, m.CycleFailures.WithLabelValues("ethereum").Write(metric))
	require.Equal(t, float64(1), metric.GetCounter().GetValue())
}
