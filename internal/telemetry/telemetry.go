// Package telemetry exposes refresh-cycle metrics and an optional
// time-series sink for BatchReport/CycleReport history (spec.md §6:
// "time-series and relational data stores used for telemetry ... this is
// optional and not part of the core contract").
package telemetry

import (
	"context"
	"fmt"
	"time"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api/write"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/dexwhitelist/whitelistd/internal/chainmodel"
)

// Metrics holds the process-wide Prometheus collectors for one whitelistd
// instance, registered once and reused across refresh cycles.
type Metrics struct {
	BatchesProcessed  *prometheus.CounterVec
	PoolsScraped      *prometheus.CounterVec
	PoolsFailed       *prometheus.CounterVec
	CycleDuration     *prometheus.HistogramVec
	SnapshotPoolCount *prometheus.GaugeVec
	CycleFailures     *prometheus.CounterVec
}

// NewMetrics builds and registers the collectors against reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		BatchesProcessed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "whitelistd",
			Name:      "batches_processed_total",
			Help:      "Batches processed by the scraper, per chain and protocol.",
		}, []string{"chain", "protocol"}),
		PoolsScraped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "whitelistd",
			Name:      "pools_scraped_total",
			Help:      "Pools successfully read by the scraper, per chain and protocol.",
		}, []string{"chain", "protocol"}),
		PoolsFailed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "whitelistd",
			Name:      "pools_failed_total",
			Help:      "Per-pool state reads that failed, per chain and protocol.",
		}, []string{"chain", "protocol"}),
		CycleDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "whitelistd",
			Name:      "cycle_duration_seconds",
			Help:      "Wall-clock duration of a full refresh cycle, per chain.",
			Buckets:   prometheus.ExponentialBuckets(1, 2, 12),
		}, []string{"chain"}),
		SnapshotPoolCount: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "whitelistd",
			Name:      "whitelist_pool_count",
			Help:      "Current whitelist membership size, per chain.",
		}, []string{"chain"}),
		CycleFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "whitelistd",
			Name:      "cycle_failures_total",
			Help:      "Refresh cycles that ended partially or fully failed, per chain.",
		}, []string{"chain"}),
	}
	reg.MustRegister(m.BatchesProcessed, m.PoolsScraped, m.PoolsFailed, m.CycleDuration, m.SnapshotPoolCount, m.CycleFailures)
	return m
}

// ObserveCycle records one completed cycle's outcome into the Prometheus
// collectors.
func (m *Metrics) ObserveCycle(chain chainmodel.Chain, report chainmodel.CycleReport) {
	duration := report.FinishedAt.Sub(report.StartedAt).Seconds()
	m.CycleDuration.WithLabelValues(string(chain)).Observe(duration)
	m.SnapshotPoolCount.WithLabelValues(string(chain)).Set(float64(report.TotalWhitelist))
	if report.Partial || len(report.Errors) > 0 {
		m.CycleFailures.WithLabelValues(string(chain)).Inc()
	}
	for _, b := range report.Batches {
		m.BatchesProcessed.WithLabelValues(string(chain), string(b.Protocol)).Inc()
		m.PoolsScraped.WithLabelValues(string(chain), string(b.Protocol)).Add(float64(b.PoolsScraped))
		m.PoolsFailed.WithLabelValues(string(chain), string(b.Protocol)).Add(float64(b.PoolsFailed))
	}
}

// Sink writes BatchReport/CycleReport history to InfluxDB, grounded in
// spec.md §6's optional time-series store and SPEC_FULL.md's batch-report
// retention supplement.
type Sink struct {
	client influxdb2.Client
	org    string
	bucket string
}

// SinkConfig configures an InfluxDB Sink.
type SinkConfig struct {
	URL    string
	Token  string
	Org    string
	Bucket string
}

func NewSink(cfg SinkConfig) *Sink {
	return &Sink{
		client: influxdb2.NewClient(cfg.URL, cfg.Token),
		org:    cfg.Org,
		bucket: cfg.Bucket,
	}
}

func (s *Sink) Close() { s.client.Close() }

// WriteCycleReport writes one point per batch report plus a cycle-level
// summary point, tagged by chain and protocol.
func (s *Sink) WriteCycleReport(ctx context.Context, chain chainmodel.Chain, report chainmodel.CycleReport) error {
	writer := s.client.WriteAPIBlocking(s.org, s.bucket)

	summary := write.NewPoint("refresh_cycle",
		map[string]string{"chain": string(chain)},
		map[string]any{
			"added":           report.Added,
			"removed":         report.Removed,
			"total_whitelist": report.TotalWhitelist,
			"partial":         report.Partial,
			"duration_ms":     report.FinishedAt.Sub(report.StartedAt).Milliseconds(),
		},
		report.FinishedAt,
	)
	if err := writer.WritePoint(ctx, summary); err != nil {
		return fmt.Errorf("telemetry: writing cycle summary point: %w", err)
	}

	for _, b := range report.Batches {
		point := write.NewPoint("batch_report",
			map[string]string{"chain": string(chain), "protocol": string(b.Protocol)},
			map[string]any{
				"batch_number":    b.BatchNumber,
				"reference_block": b.ReferenceBlock,
				"pools_scraped":   b.PoolsScraped,
				"pools_failed":    b.PoolsFailed,
				"duration_ms":     b.Duration.Milliseconds(),
				"success":         b.Success,
			},
			timeOrNow(b.ReferenceTime),
		)
		if err := writer.WritePoint(ctx, point); err != nil {
			return fmt.Errorf("telemetry: writing batch report point for batch %d: %w", b.BatchNumber, err)
		}
	}
	return nil
}

func timeOrNow(t time.Time) time.Time {
	if t.IsZero() {
		return time.Now()
	}
	return t
}
