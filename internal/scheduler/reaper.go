package scheduler

import (
	"context"
	"log/slog"
	"time"

	"github.com/relaygrid/octabot/internal/metrics"
	"github.com/relaygrid/octabot/internal/repository"
)

// ReapInterval is the 15-second cadence shared by both reapers.
const ReapInterval = 15 * time.Second

// FinishedTaskTTL is how long a finished task survives before the
// finished reaper deletes it.
const FinishedTaskTTL = 24 * time.Hour

// ExchangeTaskTTL is how stale an imported task's updated_at must be
// before the exchange reaper treats it as withdrawn upstream.
const ExchangeTaskTTL = 10 * time.Second

// ReapBatchSize bounds each reaper's per-cycle delete.
const ReapBatchSize = 500

// FinishedReaper deletes finished tasks older than FinishedTaskTTL on
// its own 15s ticker, independent of ExchangeReaper.
type FinishedReaper struct {
	repo   repository.TaskRepository
	logger *slog.Logger
}

func NewFinishedReaper(repo repository.TaskRepository, logger *slog.Logger) *FinishedReaper {
	return &FinishedReaper{repo: repo, logger: logger.With("component", "finished_reaper")}
}

func (r *FinishedReaper) Start(ctx context.Context) {
	ticker := time.NewTicker(ReapInterval)
	defer ticker.Stop()

	r.logger.Info("finished reaper started", "interval", ReapInterval)

	for {
		select {
		case <-ctx.Done():
			r.logger.Info("finished reaper shut down")
			return
		case <-ticker.C:
			r.Sweep(ctx)
		}
	}
}

// Sweep runs one finished-task delete cycle. Exported so tests can
// drive it directly instead of waiting on the ticker.
func (r *FinishedReaper) Sweep(ctx context.Context) {
	start := time.Now()
	cutoff := start.Add(-FinishedTaskTTL)

	n, err := r.repo.ReapFinished(ctx, cutoff, ReapBatchSize)
	metrics.ReaperCycleDuration.Observe(time.Since(start).Seconds())
	if err != nil {
		r.logger.Error("reap finished tasks", "error", err)
		return
	}
	if n > 0 {
		r.logger.Info("reaped finished tasks", "count", n)
	}
	metrics.ReaperDeletedTotal.WithLabelValues("finished").Add(float64(n))
}

// ExchangeReaper deletes tasks with a non-null external_id that have
// gone quiet for ExchangeTaskTTL, treating them as withdrawn upstream.
// It runs on its own 15s ticker, independent of FinishedReaper.
type ExchangeReaper struct {
	repo   repository.TaskRepository
	logger *slog.Logger
}

func NewExchangeReaper(repo repository.TaskRepository, logger *slog.Logger) *ExchangeReaper {
	return &ExchangeReaper{repo: repo, logger: logger.With("component", "exchange_reaper")}
}

func (r *ExchangeReaper) Start(ctx context.Context) {
	ticker := time.NewTicker(ReapInterval)
	defer ticker.Stop()

	r.logger.Info("exchange reaper started", "interval", ReapInterval)

	for {
		select {
		case <-ctx.Done():
			r.logger.Info("exchange reaper shut down")
			return
		case <-ticker.C:
			r.Sweep(ctx)
		}
	}
}

// Sweep runs one exchange-task delete cycle. Exported so tests can
// drive it directly instead of waiting on the ticker.
func (r *ExchangeReaper) Sweep(ctx context.Context) {
	start := time.Now()
	cutoff := start.Add(-ExchangeTaskTTL)

	n, err := r.repo.ReapExchange(ctx, cutoff, ReapBatchSize)
	metrics.ReaperCycleDuration.Observe(time.Since(start).Seconds())
	if err != nil {
		r.logger.Error("reap exchange tasks", "error", err)
		return
	}
	if n > 0 {
		r.logger.Info("reaped withdrawn exchange tasks", "count", n)
	}
	metrics.ReaperDeletedTotal.WithLabelValues("exchange").Add(float64(n))
}
