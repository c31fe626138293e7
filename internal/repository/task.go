package repository

import (
	"context"
	"time"

	"github.com/relaygrid/octabot/internal/domain"
)

// ListTasksInput pages through tasks ordered by (created_at DESC, id DESC).
type ListTasksInput struct {
	ProjectID  string // optional filter
	CursorTime *time.Time
	CursorID   string
	Limit      int
}

// TaskRepository depends on interface, not concrete implementation, so
// the scheduler and the CRUD usecase can both drive it and tests can
// substitute a fake.
type TaskRepository interface {
	Create(ctx context.Context, t *domain.Task) (*domain.Task, error)
	GetByID(ctx context.Context, id string) (*domain.Task, error)
	List(ctx context.Context, input ListTasksInput) ([]*domain.Task, error)
	// Update rewrites the CRUD-editable fields (name, schedule, start_at,
	// options) of an existing task. It never touches status, retries, or
	// locked_at — those stay the scheduler's alone.
	Update(ctx context.Context, t *domain.Task) (*domain.Task, error)
	Delete(ctx context.Context, id string) error

	// ClaimDueTasks is the poller's atomic claim: SELECT ... FOR UPDATE
	// SKIP LOCKED followed by the in_progress transition, one
	// transaction, ordered by id.
	ClaimDueTasks(ctx context.Context, now time.Time, limit int) ([]*domain.Task, error)

	// UpsertTask inserts or updates keyed by external_id. A prior
	// failed row with an older external_modified_at is returned to new.
	UpsertTask(ctx context.Context, params domain.UpsertTaskParams) error

	// ScheduleTask sets status=new and start_at=nextStartAt, for a
	// recurring task that just completed a dispatch.
	ScheduleTask(ctx context.Context, id string, nextStartAt int64) error

	// CompletedTask sets status=finished, for a one-shot task.
	CompletedTask(ctx context.Context, id string) error

	// FailedTask sets status=failed and increments retries. The
	// failure detail itself lives on the TaskAttempt row, not here —
	// the task table carries no error column.
	FailedTask(ctx context.Context, id string) error

	// ReapFinished deletes finished tasks with updated_at older than
	// cutoff. Returns the number of rows removed.
	ReapFinished(ctx context.Context, cutoff time.Time, limit int) (int, error)

	// ReapExchange deletes tasks with a non-null external_id whose
	// updated_at is at or before cutoff.
	ReapExchange(ctx context.Context, cutoff time.Time, limit int) (int, error)
}
