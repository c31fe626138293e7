package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/relaygrid/octabot/internal/domain"
	"github.com/relaygrid/octabot/internal/email"
	"github.com/relaygrid/octabot/internal/metrics"
	"github.com/relaygrid/octabot/internal/pluginhost"
	"github.com/relaygrid/octabot/internal/repository"
	"github.com/relaygrid/octabot/internal/schedule"
)

// WorkerPool runs N workers that all read from the same task channel.
// Go's channel semantics already deliver each value to exactly one
// receiver, which is the "shared receiving end under mutual exclusion"
// the design calls for — no extra lock is needed on top of it.
type WorkerPool struct {
	tasks    <-chan *domain.Task
	repo     repository.TaskRepository
	attempts repository.AttemptRepository
	host     *pluginhost.Host
	users    repository.UserRepository
	notifier email.Sender
	logger   *slog.Logger
	count    int
}

func NewWorkerPool(
	tasks <-chan *domain.Task,
	repo repository.TaskRepository,
	attempts repository.AttemptRepository,
	host *pluginhost.Host,
	users repository.UserRepository,
	notifier email.Sender,
	logger *slog.Logger,
	count int,
) *WorkerPool {
	if count <= 0 {
		count = 1
	}
	return &WorkerPool{
		tasks:    tasks,
		repo:     repo,
		attempts: attempts,
		host:     host,
		users:    users,
		notifier: notifier,
		logger:   logger.With("component", "worker_pool"),
		count:    count,
	}
}

// Start blocks until ctx is cancelled or the task channel is closed, and
// every worker has finished its in-flight task.
func (wp *WorkerPool) Start(ctx context.Context) {
	wp.logger.Info("worker pool started", "count", wp.count)

	var wg sync.WaitGroup
	for i := 0; i < wp.count; i++ {
		wg.Add(1)
		workerID := fmt.Sprintf("worker-%d", i)
		go func() {
			defer wg.Done()
			wp.run(ctx, workerID)
		}()
	}
	wg.Wait()

	wp.logger.Info("worker pool shut down")
}

func (wp *WorkerPool) run(ctx context.Context, workerID string) {
	logger := wp.logger.With("worker", workerID)
	for {
		select {
		case <-ctx.Done():
			return
		case task, ok := <-wp.tasks:
			if !ok {
				return
			}
			wp.dispatch(ctx, logger, workerID, task)
		}
	}
}

func (wp *WorkerPool) dispatch(ctx context.Context, logger *slog.Logger, workerID string, task *domain.Task) {
	metrics.TasksInFlight.Inc()
	defer metrics.TasksInFlight.Dec()

	logger.Info("dispatching task", "task_id", task.ID, "type", task.Type)

	start := time.Now()
	attempt, err := wp.attempts.CreateAttempt(ctx, &domain.TaskAttempt{
		TaskID:    task.ID,
		WorkerID:  workerID,
		StartedAt: start,
	})
	if err != nil {
		logger.Error("create attempt record", "task_id", task.ID, "error", err)
	}

	dispatchErr := wp.host.Dispatch(ctx, task.Type, pluginhost.ExecuteParams{
		TaskID:  task.ID,
		Options: task.Options,
	})
	duration := time.Since(start)

	outcome := "success"
	if dispatchErr != nil {
		outcome = "failure"
	}
	metrics.TaskDispatchDuration.WithLabelValues(task.Type, outcome).Observe(duration.Seconds())
	metrics.PluginDispatchTotal.WithLabelValues(task.Type, outcome).Inc()

	if attempt != nil {
		status := domain.AttemptStatusSuccess
		var pluginErrMsg *string
		if dispatchErr != nil {
			status = domain.AttemptStatusFailure
			msg := dispatchErr.Error()
			pluginErrMsg = &msg
		}
		if err := wp.attempts.CompleteAttempt(ctx, attempt.ID, status, pluginErrMsg, duration.Milliseconds()); err != nil {
			logger.Error("complete attempt record", "task_id", task.ID, "error", err)
		}
	}

	if dispatchErr != nil {
		wp.transitionFailed(ctx, logger, task, dispatchErr)
		return
	}
	wp.transitionSuccess(ctx, logger, task)
}

// transitionSuccess implements step 5 of §4.4: recurring tasks are
// rescheduled, one-shot tasks are completed.
func (wp *WorkerPool) transitionSuccess(ctx context.Context, logger *slog.Logger, task *domain.Task) {
	if task.Schedule != nil {
		next, err := schedule.NextRun(task.Schedule, task.StartAt, time.Now())
		if err != nil {
			logger.Error("compute next run after success", "task_id", task.ID, "error", err)
			wp.transitionFailed(ctx, logger, task, err)
			return
		}
		if err := wp.repo.ScheduleTask(ctx, task.ID, next); err != nil {
			logger.Error("reschedule task", "task_id", task.ID, "error", err)
		}
		metrics.TasksCompletedTotal.WithLabelValues("rescheduled").Inc()
		return
	}

	if err := wp.repo.CompletedTask(ctx, task.ID); err != nil {
		logger.Error("complete task", "task_id", task.ID, "error", err)
		return
	}
	metrics.TasksCompletedTotal.WithLabelValues("finished").Inc()
}

// transitionFailed implements step 5's failure branch. A notification
// supplement (not named by the core scheduler spec but present in the
// original source's failure path) emails the owning project's user,
// but only once retries are exhausted: this transition's own increment
// is what takes task.Retries to MaxRetries, so the check is against the
// count as claimed, before this failure's increment lands.
func (wp *WorkerPool) transitionFailed(ctx context.Context, logger *slog.Logger, task *domain.Task, cause error) {
	if err := wp.repo.FailedTask(ctx, task.ID); err != nil {
		logger.Error("fail task", "task_id", task.ID, "error", err)
	}
	metrics.TasksCompletedTotal.WithLabelValues("failed").Inc()

	if task.Retries+1 >= domain.MaxRetries {
		wp.notifyFailure(ctx, logger, task, cause)
	}
}

func (wp *WorkerPool) notifyFailure(ctx context.Context, logger *slog.Logger, task *domain.Task, cause error) {
	if wp.notifier == nil || wp.users == nil {
		return
	}
	owner, err := wp.users.FindByID(ctx, task.Project.OwnerID)
	if err != nil || owner.Email == nil {
		return
	}
	subject := fmt.Sprintf("Task %q failed", task.Name)
	body := fmt.Sprintf("Task %s (type %s) in project %s failed: %s", task.ID, task.Type, task.Project.Code, cause.Error())
	if err := wp.notifier.Send(ctx, *owner.Email, subject, body); err != nil {
		logger.Warn("send failure notification", "task_id", task.ID, "error", err)
	}
}
