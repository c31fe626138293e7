package scheduler_test

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/relaygrid/octabot/internal/domain"
	"github.com/relaygrid/octabot/internal/repository"
	"github.com/relaygrid/octabot/internal/scheduler"
)

type fakeTaskRepo struct {
	claimFn        func(ctx context.Context, now time.Time, limit int) ([]*domain.Task, error)
	upsertFn       func(ctx context.Context, params domain.UpsertTaskParams) error
	scheduleFn     func(ctx context.Context, id string, nextStartAt int64) error
	completedFn    func(ctx context.Context, id string) error
	failedFn       func(ctx context.Context, id string) error
	reapFinishedFn func(ctx context.Context, cutoff time.Time, limit int) (int, error)
	reapExchangeFn func(ctx context.Context, cutoff time.Time, limit int) (int, error)
}

func (f *fakeTaskRepo) Create(ctx context.Context, t *domain.Task) (*domain.Task, error) { return t, nil }
func (f *fakeTaskRepo) GetByID(ctx context.Context, id string) (*domain.Task, error)     { return nil, nil }
func (f *fakeTaskRepo) List(ctx context.Context, input repository.ListTasksInput) ([]*domain.Task, error) {
	return nil, nil
}
func (f *fakeTaskRepo) Update(ctx context.Context, t *domain.Task) (*domain.Task, error) { return t, nil }
func (f *fakeTaskRepo) Delete(ctx context.Context, id string) error                      { return nil }

func (f *fakeTaskRepo) ClaimDueTasks(ctx context.Context, now time.Time, limit int) ([]*domain.Task, error) {
	return f.claimFn(ctx, now, limit)
}
func (f *fakeTaskRepo) UpsertTask(ctx context.Context, params domain.UpsertTaskParams) error {
	if f.upsertFn != nil {
		return f.upsertFn(ctx, params)
	}
	return nil
}
func (f *fakeTaskRepo) ScheduleTask(ctx context.Context, id string, nextStartAt int64) error {
	if f.scheduleFn != nil {
		return f.scheduleFn(ctx, id, nextStartAt)
	}
	return nil
}
func (f *fakeTaskRepo) CompletedTask(ctx context.Context, id string) error {
	if f.completedFn != nil {
		return f.completedFn(ctx, id)
	}
	return nil
}
func (f *fakeTaskRepo) FailedTask(ctx context.Context, id string) error {
	if f.failedFn != nil {
		return f.failedFn(ctx, id)
	}
	return nil
}
func (f *fakeTaskRepo) ReapFinished(ctx context.Context, cutoff time.Time, limit int) (int, error) {
	if f.reapFinishedFn != nil {
		return f.reapFinishedFn(ctx, cutoff, limit)
	}
	return 0, nil
}
func (f *fakeTaskRepo) ReapExchange(ctx context.Context, cutoff time.Time, limit int) (int, error) {
	if f.reapExchangeFn != nil {
		return f.reapExchangeFn(ctx, cutoff, limit)
	}
	return 0, nil
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestPoller_Tick_PublishesClaimedTasksInOrder(t *testing.T) {
	tasks := []*domain.Task{{ID: "a"}, {ID: "b"}, {ID: "c"}}
	repo := &fakeTaskRepo{
		claimFn: func(ctx context.Context, now time.Time, limit int) ([]*domain.Task, error) {
			return tasks, nil
		},
	}

	out := make(chan *domain.Task, 10)
	poller := scheduler.NewPoller(repo, testLogger(), time.Hour, out)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	poller.Tick(ctx)

	close(out)
	var got []string
	for task := range out {
		got = append(got, task.ID)
	}
	if len(got) != 3 || got[0] != "a" || got[1] != "b" || got[2] != "c" {
		t.Fatalf("got = %v, want [a b c] in order", got)
	}
}

func TestPoller_Tick_NoTasks_SendsNothing(t *testing.T) {
	repo := &fakeTaskRepo{
		claimFn: func(ctx context.Context, now time.Time, limit int) ([]*domain.Task, error) {
			return nil, nil
		},
	}
	out := make(chan *domain.Task, 1)
	poller := scheduler.NewPoller(repo, testLogger(), time.Hour, out)
	poller.Tick(context.Background())

	select {
	case <-out:
		t.Fatalf("expected no task sent")
	default:
	}
}

func TestPoller_Tick_CancelledMidBatch_StopsSending(t *testing.T) {
	tasks := []*domain.Task{{ID: "a"}, {ID: "b"}}
	repo := &fakeTaskRepo{
		claimFn: func(ctx context.Context, now time.Time, limit int) ([]*domain.Task, error) {
			return tasks, nil
		},
	}
	out := make(chan *domain.Task) // unbuffered: first send blocks until cancel
	poller := scheduler.NewPoller(repo, testLogger(), time.Hour, out)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	poller.Tick(ctx)
}
