// Package scheduler runs periodic housekeeping on a cron schedule: pruning
// persisted transactions past retention and logging a feed snapshot.
package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"

	"sentinelpay/monitor/internal/domain"
	"sentinelpay/monitor/internal/metrics"
	"sentinelpay/monitor/internal/report"
	"sentinelpay/monitor/internal/store"
)

// DefaultSnapshotCron logs feed stats every five minutes.
const DefaultSnapshotCron = "0 */5 * * * *"

// BaselineFunc reports the current rolling-history statistics.
type BaselineFunc func() domain.BaselineStats

// Scheduler manages all cron tasks.
type Scheduler struct {
	cron     *cron.Cron
	repo     store.Repository
	maxAge   time.Duration
	baseline BaselineFunc
	ctx      context.Context
	now      func() time.Time
}

// New creates a Scheduler. Cron specs include a seconds field.
func New(ctx context.Context, repo store.Repository, maxAge time.Duration, baseline BaselineFunc) *Scheduler {
	return &Scheduler{
		cron:     cron.New(cron.WithSeconds()),
		repo:     repo,
		maxAge:   maxAge,
		baseline: baseline,
		ctx:      ctx,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// RegisterAll registers the retention and snapshot tasks.
func (s *Scheduler) RegisterAll(retentionCron, snapshotCron string) error {
	if _, err := s.cron.AddFunc(retentionCron, func() { _, _ = s.Prune() }); err != nil {
		return fmt.Errorf("register retention task: %w", err)
	}
	if _, err := s.cron.AddFunc(snapshotCron, s.snapshot); err != nil {
		return fmt.Errorf("register snapshot task: %w", err)
	}
	return nil
}

// Start starts the cron scheduler.
func (s *Scheduler) Start() {
	s.cron.Start()
	slog.Info("scheduler started", "entries", len(s.cron.Entries()))
}

// Stop stops the scheduler and waits for running jobs.
func (s *Scheduler) Stop() {
	<-s.cron.Stop().Done()
	slog.Info("scheduler stopped")
}

// Prune deletes transactions persisted more than maxAge ago.
func (s *Scheduler) Prune() (int, error) {
	cutoff := s.now().Add(-s.maxAge)
	n, err := s.repo.Prune(s.ctx, cutoff)
	if err != nil {
		slog.Error("retention: prune failed", "error", err)
		return 0, err
	}
	metrics.RetentionPrunedTotal.Add(float64(n))
	if n > 0 {
		slog.Info("retention: pruned transactions", "count", n, "cutoff", cutoff)
	}
	return n, nil
}

func (s *Scheduler) snapshot() {
	txs, err := s.repo.Recent(s.ctx, domain.FeedLimit)
	if err != nil {
		slog.Error("snapshot: failed to read feed", "error", err)
		return
	}
	var baseline domain.BaselineStats
	if s.baseline != nil {
		baseline = s.baseline()
	}
	st := report.Build(txs, baseline, s.now())
	slog.Info("feed snapshot",
		"total", st.Total,
		"fraud", st.Fraud,
		"blocked_amount", st.BlockedAmount,
		"avg_risk_score", st.AvgRiskScore,
		"baseline_samples", st.Baseline.Samples,
		"baseline_mean", st.Baseline.Mean,
	)
}
