package usecase

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/relaygrid/octabot/internal/domain"
	"github.com/relaygrid/octabot/internal/repository"
	"github.com/relaygrid/octabot/internal/schedule"
)

type TaskUsecase struct {
	tasks    repository.TaskRepository
	projects repository.ProjectRepository
}

func NewTaskUsecase(tasks repository.TaskRepository, projects repository.ProjectRepository) *TaskUsecase {
	return &TaskUsecase{tasks: tasks, projects: projects}
}

type CreateTaskInput struct {
	Name      string
	Type      string
	Schedule  *string
	ProjectID string
	StartAt   time.Time
	Options   json.RawMessage
}

// CreateTask verifies the project exists, runs the next-run
// calculator's input variant against the caller-supplied start time,
// and persists the resulting epoch-seconds.
func (u *TaskUsecase) CreateTask(ctx context.Context, input CreateTaskInput) (*domain.Task, error) {
	if len(input.Name) < 4 {
		return nil, domain.NewInvalidInput("name must be at least 4 characters",
			domain.FieldError{Field: "name", Codes: []string{"length"}})
	}

	project, err := u.projects.GetByID(ctx, input.ProjectID)
	if err != nil {
		return nil, fmt.Errorf("get project: %w", err)
	}

	startAt, err := schedule.NextRunForCreate(input.Schedule, input.StartAt.Unix(), time.Now())
	if err != nil {
		return nil, err
	}

	t := &domain.Task{
		Type:      input.Type,
		Project:   *project,
		Name:      input.Name,
		Status:    domain.TaskStatusNew,
		Schedule:  input.Schedule,
		StartAt:   startAt,
		Options:   input.Options,
	}

	created, err := u.tasks.Create(ctx, t)
	if err != nil {
		return nil, fmt.Errorf("create task: %w", err)
	}
	return created, nil
}

func (u *TaskUsecase) GetTask(ctx context.Context, id string) (*domain.Task, error) {
	t, err := u.tasks.GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("get task: %w", err)
	}
	return t, nil
}

type UpdateTaskInput struct {
	ID       string
	Name     string
	Schedule *string
	StartAt  time.Time
	Options  json.RawMessage
}

func (u *TaskUsecase) UpdateTask(ctx context.Context, input UpdateTaskInput) (*domain.Task, error) {
	if len(input.Name) < 4 {
		return nil, domain.NewInvalidInput("name must be at least 4 characters",
			domain.FieldError{Field: "name", Codes: []string{"length"}})
	}

	t, err := u.tasks.GetByID(ctx, input.ID)
	if err != nil {
		return nil, fmt.Errorf("get task: %w", err)
	}

	t.Name = input.Name
	t.Schedule = input.Schedule
	t.StartAt = input.StartAt.Unix()
	t.Options = input.Options

	updated, err := u.tasks.Update(ctx, t)
	if err != nil {
		return nil, fmt.Errorf("update task: %w", err)
	}
	return updated, nil
}

func (u *TaskUsecase) DeleteTask(ctx context.Context, id string) error {
	if err := u.tasks.Delete(ctx, id); err != nil {
		return fmt.Errorf("delete task: %w", err)
	}
	return nil
}

type ListTasksInput struct {
	ProjectID string
	Cursor    string
	Limit     int
}

type ListTasksResult struct {
	Tasks      []*domain.Task
	NextCursor *string
}

func (u *TaskUsecase) ListTasks(ctx context.Context, input ListTasksInput) (ListTasksResult, error) {
	limit := clampLimit(input.Limit)

	repoInput := repository.ListTasksInput{
		ProjectID: input.ProjectID,
		Limit:     limit + 1,
	}

	if input.Cursor != "" {
		createdAt, id, err := decodeCursor(input.Cursor)
		if err != nil {
			return ListTasksResult{}, domain.NewInvalidInput("invalid cursor")
		}
		repoInput.CursorTime = &createdAt
		repoInput.CursorID = id
	}

	tasks, err := u.tasks.List(ctx, repoInput)
	if err != nil {
		return ListTasksResult{}, fmt.Errorf("list tasks: %w", err)
	}

	var nextCursor *string
	if len(tasks) == limit+1 {
		last := tasks[limit]
		c := encodeCursor(last.CreatedAt, last.ID)
		nextCursor = &c
		tasks = tasks[:limit]
	}

	return ListTasksResult{Tasks: tasks, NextCursor: nextCursor}, nil
}
