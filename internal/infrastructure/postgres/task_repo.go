package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/relaygrid/octabot/internal/domain"
	"github.com/relaygrid/octabot/internal/repository"
)

type TaskRepository struct {
	pool *pgxpool.Pool
}

func NewTaskRepository(pool *pgxpool.Pool) *TaskRepository {
	return &TaskRepository{pool: pool}
}

const taskSelectColumns = `
	tasks.id, tasks.type, tasks.name, tasks.status, tasks.retries,
	tasks.schedule, tasks.start_at, tasks.external_id, tasks.external_modified_at,
	tasks.locked_at, tasks.options, tasks.created_at, tasks.updated_at,
	projects.id, projects.name, projects.code, projects.owner_id, projects.options,
	projects.created_at, projects.updated_at`

func (r *TaskRepository) Create(ctx context.Context, t *domain.Task) (*domain.Task, error) {
	query := `
		INSERT INTO tasks (project_id, type, name, schedule, start_at, options, status, retries)
		VALUES ($1, $2, $3, $4, $5, $6, 'new', 0)
		RETURNING id, type, name, status, retries, schedule, start_at,
		          external_id, external_modified_at, locked_at, options, created_at, updated_at`

	row := r.pool.QueryRow(ctx, query, t.Project.ID, t.Type, t.Name, t.Schedule, t.StartAt, t.Options)

	var created domain.Task
	err := row.Scan(
		&created.ID, &created.Type, &created.Name, &created.Status, &created.Retries,
		&created.Schedule, &created.StartAt, &created.ExternalID, &created.ExternalModifiedAt,
		&created.LockedAt, &created.Options, &created.CreatedAt, &created.UpdatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("create task: %w", err)
	}
	created.Project = t.Project
	return &created, nil
}

func (r *TaskRepository) GetByID(ctx context.Context, id string) (*domain.Task, error) {
	query := fmt.Sprintf(`
		SELECT %s
		FROM tasks
		JOIN projects ON projects.id = tasks.project_id
		WHERE tasks.id = $1`, taskSelectColumns)

	row := r.pool.QueryRow(ctx, query, id)
	t, err := scanTaskWithProject(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.NewResourceNotFound(id)
		}
		return nil, err
	}
	return t, nil
}

func (r *TaskRepository) List(ctx context.Context, input repository.ListTasksInput) ([]*domain.Task, error) {
	var args []any
	where := []string{"1=1"}

	if input.ProjectID != "" {
		args = append(args, input.ProjectID)
		where = append(where, fmt.Sprintf("tasks.project_id = $%d", len(args)))
	}
	if input.CursorTime != nil {
		args = append(args, *input.CursorTime, input.CursorID)
		where = append(where, fmt.Sprintf("(tasks.created_at, tasks.id) < ($%d, $%d)", len(args)-1, len(args)))
	}
	args = append(args, input.Limit)

	query := fmt.Sprintf(`
		SELECT %s
		FROM tasks
		JOIN projects ON projects.id = tasks.project_id
		WHERE %s
		ORDER BY tasks.created_at DESC, tasks.id DESC
		LIMIT $%d`, taskSelectColumns, strings.Join(where, " AND "), len(args))

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list tasks: %w", err)
	}
	defer rows.Close()

	var tasks []*domain.Task
	for rows.Next() {
		t, err := scanTaskWithProject(rows)
		if err != nil {
			return nil, err
		}
		tasks = append(tasks, t)
	}
	return tasks, nil
}

func (r *TaskRepository) Update(ctx context.Context, t *domain.Task) (*domain.Task, error) {
	query := `
		UPDATE tasks
		SET name = $2, schedule = $3, start_at = $4, options = $5, updated_at = NOW()
		WHERE id = $1
		RETURNING id, type, name, status, retries, schedule, start_at,
		          external_id, external_modified_at, locked_at, options, created_at, updated_at`

	row := r.pool.QueryRow(ctx, query, t.ID, t.Name, t.Schedule, t.StartAt, t.Options)

	var updated domain.Task
	err := row.Scan(
		&updated.ID, &updated.Type, &updated.Name, &updated.Status, &updated.Retries,
		&updated.Schedule, &updated.StartAt, &updated.ExternalID, &updated.ExternalModifiedAt,
		&updated.LockedAt, &updated.Options, &updated.CreatedAt, &updated.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.NewResourceNotFound(t.ID)
		}
		return nil, fmt.Errorf("update task: %w", err)
	}
	updated.Project = t.Project
	return &updated, nil
}

func (r *TaskRepository) Delete(ctx context.Context, id string) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM tasks WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete task: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.NewResourceNotFound(id)
	}
	return nil
}

// ClaimDueTasks atomically selects and locks the eligible set (invariant 2)
// in one statement via a CTE, then joins in the owning project so the
// caller never issues a second round trip per claimed row.
func (r *TaskRepository) ClaimDueTasks(ctx context.Context, now time.Time, limit int) ([]*domain.Task, error) {
	query := fmt.Sprintf(`
		WITH claimed AS (
			UPDATE tasks
			SET status = 'in_progress', locked_at = $1, updated_at = $1
			WHERE id IN (
				SELECT id FROM tasks
				WHERE status NOT IN ('finished', 'in_progress')
				  AND retries < $2
				  AND start_at <= $3
				  AND (locked_at IS NULL OR locked_at < $4)
				ORDER BY id
				LIMIT $5
				FOR UPDATE SKIP LOCKED
			)
			RETURNING *
		)
		SELECT %s
		FROM claimed AS tasks
		JOIN projects ON projects.id = tasks.project_id
		ORDER BY tasks.id`, taskSelectColumns)

	leaseCutoff := now.Add(-domain.LeaseTTL)
	rows, err := r.pool.Query(ctx, query, now, domain.MaxRetries, now.Unix(), leaseCutoff, limit)
	if err != nil {
		return nil, fmt.Errorf("claim due tasks: %w", err)
	}
	defer rows.Close()

	var tasks []*domain.Task
	for rows.Next() {
		t, err := scanTaskWithProject(rows)
		if err != nil {
			return nil, err
		}
		tasks = append(tasks, t)
	}
	return tasks, nil
}

// UpsertTask implements §4.1's insert-or-update-by-external_id rule,
// including the failed->new re-enqueue on a strictly newer
// external_modified_at.
func (r *TaskRepository) UpsertTask(ctx context.Context, p domain.UpsertTaskParams) error {
	if p.ExternalID == nil {
		_, err := r.pool.Exec(ctx, `
			INSERT INTO tasks (project_id, type, name, schedule, start_at, options, status, retries)
			VALUES ($1, $2, $3, $4, $5, $6, 'new', 0)`,
			p.ProjectID, p.Type, p.Name, p.Schedule, p.StartAt, p.Options,
		)
		if err != nil {
			return fmt.Errorf("insert task: %w", err)
		}
		return nil
	}

	_, err := r.pool.Exec(ctx, `
		INSERT INTO tasks (project_id, type, name, schedule, start_at, external_id, external_modified_at, options, status, retries)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, 'new', 0)
		ON CONFLICT (external_id) WHERE external_id IS NOT NULL
		DO UPDATE SET
			name                 = EXCLUDED.name,
			start_at             = EXCLUDED.start_at,
			schedule             = EXCLUDED.schedule,
			external_modified_at = EXCLUDED.external_modified_at,
			options              = EXCLUDED.options,
			updated_at           = NOW(),
			status = CASE
				WHEN tasks.status = 'failed'
				     AND EXCLUDED.external_modified_at IS NOT NULL
				     AND (tasks.external_modified_at IS NULL OR EXCLUDED.external_modified_at > tasks.external_modified_at)
				THEN 'new'
				ELSE tasks.status
			END`,
		p.ProjectID, p.Type, p.Name, p.Schedule, p.StartAt, p.ExternalID, p.ExternalModifiedAt, p.Options,
	)
	if err != nil {
		return fmt.Errorf("upsert task: %w", err)
	}
	return nil
}

func (r *TaskRepository) ScheduleTask(ctx context.Context, id string, nextStartAt int64) error {
	tag, err := r.pool.Exec(ctx,
		`UPDATE tasks SET status = 'new', start_at = $2, locked_at = NULL, updated_at = NOW() WHERE id = $1`,
		id, nextStartAt)
	if err != nil {
		return fmt.Errorf("schedule task: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.NewResourceNotFound(id)
	}
	return nil
}

func (r *TaskRepository) CompletedTask(ctx context.Context, id string) error {
	tag, err := r.pool.Exec(ctx,
		`UPDATE tasks SET status = 'finished', updated_at = NOW() WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("complete task: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.NewResourceNotFound(id)
	}
	return nil
}

func (r *TaskRepository) FailedTask(ctx context.Context, id string) error {
	tag, err := r.pool.Exec(ctx,
		`UPDATE tasks SET status = 'failed', retries = retries + 1, updated_at = NOW() WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("fail task: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.NewResourceNotFound(id)
	}
	return nil
}

func (r *TaskRepository) ReapFinished(ctx context.Context, cutoff time.Time, limit int) (int, error) {
	tag, err := r.pool.Exec(ctx, `
		DELETE FROM tasks WHERE id IN (
			SELECT id FROM tasks
			WHERE status = 'finished' AND updated_at < $1
			ORDER BY id
			LIMIT $2
		)`, cutoff, limit)
	if err != nil {
		return 0, fmt.Errorf("reap finished tasks: %w", err)
	}
	return int(tag.RowsAffected()), nil
}

func (r *TaskRepository) ReapExchange(ctx context.Context, cutoff time.Time, limit int) (int, error) {
	tag, err := r.pool.Exec(ctx, `
		DELETE FROM tasks WHERE id IN (
			SELECT id FROM tasks
			WHERE external_id IS NOT NULL AND updated_at <= $1
			ORDER BY id
			LIMIT $2
		)`, cutoff, limit)
	if err != nil {
		return 0, fmt.Errorf("reap exchange tasks: %w", err)
	}
	return int(tag.RowsAffected()), nil
}

func scanTaskWithProject(row rowScanner) (*domain.Task, error) {
	var t domain.Task
	var p domain.Project
	err := row.Scan(
		&t.ID, &t.Type, &t.Name, &t.Status, &t.Retries,
		&t.Schedule, &t.StartAt, &t.ExternalID, &t.ExternalModifiedAt,
		&t.LockedAt, &t.Options, &t.CreatedAt, &t.UpdatedAt,
		&p.ID, &p.Name, &p.Code, &p.OwnerID, &p.Options, &p.CreatedAt, &p.UpdatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("scan task: %w", err)
	}
	t.Project = p
	return &t, nil
}
