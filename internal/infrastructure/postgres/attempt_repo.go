package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/relaygrid/octabot/internal/domain"
)

type AttemptRepository struct {
	pool *pgxpool.Pool
}

func NewAttemptRepository(pool *pgxpool.Pool) *AttemptRepository {
	return &AttemptRepository{pool: pool}
}

func (r *AttemptRepository) CreateAttempt(ctx context.Context, a *domain.TaskAttempt) (*domain.TaskAttempt, error) {
	query := `
		INSERT INTO task_attempts (task_id, worker_id, started_at)
		VALUES ($1, $2, $3)
		RETURNING id, task_id, worker_id, started_at,
		          completed_at, status, plugin_error, duration_ms`

	row := r.pool.QueryRow(ctx, query, a.TaskID, a.WorkerID, a.StartedAt)
	return scanAttempt(row)
}

func (r *AttemptRepository) CompleteAttempt(ctx context.Context, id string, status domain.AttemptStatus, pluginError *string, durationMS int64) error {
	_, err := r.pool.Exec(ctx, `
		UPDATE task_attempts
		SET completed_at = NOW(),
		    status       = $2,
		    plugin_error = $3,
		    duration_ms  = $4
		WHERE id = $1`,
		id, status, pluginError, durationMS,
	)
	if err != nil {
		return fmt.Errorf("complete attempt: %w", err)
	}
	return nil
}

func (r *AttemptRepository) ListByTaskID(ctx context.Context, taskID string) ([]*domain.TaskAttempt, error) {
	query := `
		SELECT id, task_id, worker_id, started_at,
		       completed_at, status, plugin_error, duration_ms
		FROM task_attempts
		WHERE task_id = $1
		ORDER BY started_at ASC`

	rows, err := r.pool.Query(ctx, query, taskID)
	if err != nil {
		return nil, fmt.Errorf("list attempts: %w", err)
	}
	defer rows.Close()

	var attempts []*domain.TaskAttempt
	for rows.Next() {
		a, err := scanAttempt(rows)
		if err != nil {
			return nil, err
		}
		attempts = append(attempts, a)
	}
	return attempts, nil
}

func scanAttempt(row rowScanner) (*domain.TaskAttempt, error) {
	var a domain.TaskAttempt
	err := row.Scan(
		&a.ID, &a.TaskID, &a.WorkerID, &a.StartedAt,
		&a.CompletedAt, &a.Status, &a.PluginError, &a.DurationMS,
	)
	if err != nil {
		return nil, fmt.Errorf("scan attempt: %w", err)
	}
	return &a, nil
}
