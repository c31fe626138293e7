package repository

import (
	"context"

	"github.com/relaygrid/octabot/internal/domain"
)

type AttemptRepository interface {
	// CreateAttempt opens an attempt record at the moment dispatch
	// starts. Returns the persisted attempt (with its DB-generated ID)
	// so the caller can close it with CompleteAttempt once the task's
	// plugin call returns.
	CreateAttempt(ctx context.Context, attempt *domain.TaskAttempt) (*domain.TaskAttempt, error)

	// CompleteAttempt closes an open attempt record with the dispatch
	// outcome. pluginError is nil on success.
	CompleteAttempt(ctx context.Context, id string, status domain.AttemptStatus, pluginError *string, durationMS int64) error

	// ListByTaskID returns all attempts for a task, ordered by
	// started_at ASC.
	ListByTaskID(ctx context.Context, taskID string) ([]*domain.TaskAttempt, error)
}
