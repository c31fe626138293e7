package scheduler

import (
	"context"
	"log/slog"
	"time"

	"github.com/relaygrid/octabot/internal/domain"
	"github.com/relaygrid/octabot/internal/metrics"
	"github.com/relaygrid/octabot/internal/repository"
)

// TaskChannelCapacity bounds the poller-to-worker-pool channel. A full
// channel blocks the poller's send, the designed backpressure that
// rate-limits claims to worker throughput.
const TaskChannelCapacity = 500

// ClaimBatchSize is the per-tick upper bound on claimed tasks.
const ClaimBatchSize = 100

// Poller is the single long-running loop that promotes due tasks to
// in_progress under a lease and publishes them to the worker pool.
type Poller struct {
	repo     repository.TaskRepository
	logger   *slog.Logger
	interval time.Duration
	out      chan<- *domain.Task
}

func NewPoller(repo repository.TaskRepository, logger *slog.Logger, interval time.Duration, out chan<- *domain.Task) *Poller {
	return &Poller{
		repo:     repo,
		logger:   logger.With("component", "poller"),
		interval: interval,
		out:      out,
	}
}

// Start blocks until ctx is cancelled. Cancellation is biased: it is
// checked before scheduling a blocking send, so the poller never
// starts delivering a batch it can't finish sending before shutdown
// forces it to drop the rest — instead it just stops, per §4.2:
// "On cancellation, exit without draining; in-flight leases expire."
func (p *Poller) Start(ctx context.Context) {
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	p.logger.Info("poller started", "interval", p.interval)

	for {
		select {
		case <-ctx.Done():
			p.logger.Info("poller shut down")
			return
		case <-ticker.C:
			p.Tick(ctx)
		}
	}
}

// Tick runs one claim-and-publish cycle. Exported so tests can drive
// it directly instead of waiting on the ticker.
func (p *Poller) Tick(ctx context.Context) {
	start := time.Now()
	tasks, err := p.repo.ClaimDueTasks(ctx, start, ClaimBatchSize)
	if err != nil {
		p.logger.Error("claim due tasks", "error", err)
		return
	}
	if len(tasks) == 0 {
		return
	}

	p.logger.Info("claimed tasks", "count", len(tasks))
	metrics.TasksClaimedTotal.Add(float64(len(tasks)))

	// Tasks are already id-ordered by the claim query; deliver them in
	// that order within this tick, biasing every send against
	// cancellation so shutdown can interrupt a long blocking send.
	for i, t := range tasks {
		if ctx.Err() != nil {
			p.logger.Info("poller cancelled mid-batch", "remaining", len(tasks)-i)
			return
		}
		metrics.TaskPickupLatency.Observe(time.Since(time.Unix(t.StartAt, 0)).Seconds())
		select {
		case <-ctx.Done():
			p.logger.Info("poller cancelled mid-batch", "remaining", len(tasks)-i)
			return
		case p.out <- t:
			metrics.TaskChannelDepth.Set(float64(len(p.out)))
		}
	}
}
