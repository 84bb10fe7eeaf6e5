// Package retention sweeps BatchReport and WhitelistSnapshot history per
// the retention windows named in config (SPEC_FULL.md's resolution of
// spec.md §9's open question on GC policy).
package retention

import (
	"context"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/log"

	"github.com/dexwhitelist/whitelistd/internal/chainmodel"
)

// Store is the persistence boundary this package needs.
type Store interface {
	SweepBatchReports(ctx context.Context, cutoff time.Time) (int64, error)
	SweepWhitelistSnapshots(ctx context.Context, chain chainmodel.Chain, cutoff time.Time) (int64, error)
}

// Policy is the retention configuration for one sweep.
type Policy struct {
	BatchReportRetention    time.Duration // 0 disables the sweep
	SnapshotHistoryRetention time.Duration // 0 means unlimited (no sweep)
}

// Sweeper runs a Policy against a Store on demand; cmd/whitelistd calls it
// once per selected chain after RefreshAll returns.
type Sweeper struct {
	Store  Store
	Policy Policy
	log    log.Logger
}

func New(store Store, policy Policy) *Sweeper {
	return &Sweeper{Store: store, Policy: policy, log: log.New("component", "retention")}
}

// Sweep deletes batch reports and snapshot history older than the
// configured retention windows for one chain, at the given reference time.
func (s *Sweeper) Sweep(ctx context.Context, chain chainmodel.Chain, now time.Time) error {
	if s.Policy.BatchReportRetention > 0 {
		cutoff := now.Add(-s.Policy.BatchReportRetention)
		n, err := s.Store.SweepBatchReports(ctx, cutoff)
		if err != nil {
			return fmt.Errorf("retention: sweeping batch reports for %s: %w", chain, err)
		}
		if n > 0 {
			s.log.Info("swept batch reports", "chain", chain, "deleted", n, "cutoff", cutoff)
		}
	}

	if s.Policy.SnapshotHistoryRetention > 0 {
		cutoff := now.Add(-s.Policy.SnapshotHistoryRetention)
		n, err := s.Store.SweepWhitelistSnapshots(ctx, chain, cutoff)
		if err != nil {
			return fmt.Errorf("retention: sweeping snapshot history for %s: %w", chain, err)
		}
		if n > 0 {
			s.log.Info("swept snapshot history", "chain", chain, "deleted", n, "cutoff", cutoff)
		}
	}
	return nil
}
