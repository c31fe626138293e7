package scheduler_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/relaygrid/octabot/internal/scheduler"
)

func TestFinishedReaper_Sweep_DeletesOldFinishedTasks(t *testing.T) {
	var gotCutoff time.Time
	repo := &fakeTaskRepo{
		reapFinishedFn: func(ctx context.Context, cutoff time.Time, limit int) (int, error) {
			gotCutoff = cutoff
			return 3, nil
		},
	}
	reaper := scheduler.NewFinishedReaper(repo, testLogger())
	reaper.Sweep(context.Background())

	if time.Since(gotCutoff) < scheduler.FinishedTaskTTL-time.Second {
		t.Errorf("cutoff too recent: %v", gotCutoff)
	}
}

func TestFinishedReaper_Sweep_ContinuesOnError(t *testing.T) {
	repo := &fakeTaskRepo{
		reapFinishedFn: func(ctx context.Context, cutoff time.Time, limit int) (int, error) {
			return 0, errors.New("db unavailable")
		},
	}
	reaper := scheduler.NewFinishedReaper(repo, testLogger())
	reaper.Sweep(context.Background()) // must not panic
}

func TestExchangeReaper_Sweep_DeletesWithdrawnExchangeTasks(t *testing.T) {
	called := false
	repo := &fakeTaskRepo{
		reapExchangeFn: func(ctx context.Context, cutoff time.Time, limit int) (int, error) {
			called = true
			return 1, nil
		},
	}
	reaper := scheduler.NewExchangeReaper(repo, testLogger())
	reaper.Sweep(context.Background())

	if !called {
		t.Errorf("expected ReapExchange to be called")
	}
}
