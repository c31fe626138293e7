package usecase

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/relaygrid/octabot/internal/domain"
	"github.com/relaygrid/octabot/internal/repository"
)

// ProjectUsecase is the thin CRUD collaborator spec.md §1 calls out:
// it writes into the same store the scheduler reads from but owns no
// scheduling logic itself.
type ProjectUsecase struct {
	projects repository.ProjectRepository
}

func NewProjectUsecase(projects repository.ProjectRepository) *ProjectUsecase {
	return &ProjectUsecase{projects: projects}
}

type CreateProjectInput struct {
	Name    string
	Code    string
	OwnerID string
	Options json.RawMessage
}

// CreateProject enforces the 2-4 char code shape from §3 before
// handing off to the store, which carries the uniqueness constraint.
func (u *ProjectUsecase) CreateProject(ctx context.Context, input CreateProjectInput) (*domain.Project, error) {
	if len(input.Code) < 2 || len(input.Code) > 4 {
		return nil, domain.NewInvalidInput("code must be 2-4 characters",
			domain.FieldError{Field: "code", Codes: []string{"length"}})
	}

	p := &domain.Project{
		Name:    input.Name,
		Code:    input.Code,
		OwnerID: input.OwnerID,
		Options: input.Options,
	}

	created, err := u.projects.Create(ctx, p)
	if err != nil {
		return nil, fmt.Errorf("create project: %w", err)
	}
	return created, nil
}

func (u *ProjectUsecase) GetProject(ctx context.Context, id string) (*domain.Project, error) {
	p, err := u.projects.GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("get project: %w", err)
	}
	return p, nil
}

type UpdateProjectInput struct {
	ID      string
	Name    string
	Code    string
	Options json.RawMessage
}

func (u *ProjectUsecase) UpdateProject(ctx context.Context, input UpdateProjectInput) (*domain.Project, error) {
	if len(input.Code) < 2 || len(input.Code) > 4 {
		return nil, domain.NewInvalidInput("code must be 2-4 characters",
			domain.FieldError{Field: "code", Codes: []string{"length"}})
	}

	p, err := u.projects.GetByID(ctx, input.ID)
	if err != nil {
		return nil, fmt.Errorf("get project: %w", err)
	}

	p.Name = input.Name
	p.Code = input.Code
	p.Options = input.Options

	updated, err := u.projects.Update(ctx, p)
	if err != nil {
		return nil, fmt.Errorf("update project: %w", err)
	}
	return updated, nil
}

func (u *ProjectUsecase) DeleteProject(ctx context.Context, id string) error {
	if err := u.projects.Delete(ctx, id); err != nil {
		return fmt.Errorf("delete project: %w", err)
	}
	return nil
}

type ListProjectsInput struct {
	OwnerID string
	Cursor  string
	Limit   int
}

type ListProjectsResult struct {
	Projects   []*domain.Project
	NextCursor *string
}

func (u *ProjectUsecase) ListProjects(ctx context.Context, input ListProjectsInput) (ListProjectsResult, error) {
	limit := clampLimit(input.Limit)

	repoInput := repository.ListProjectsInput{
		OwnerID: input.OwnerID,
		Limit:   limit + 1,
	}

	if input.Cursor != "" {
		createdAt, id, err := decodeCursor(input.Cursor)
		if err != nil {
			return ListProjectsResult{}, domain.NewInvalidInput("invalid cursor")
		}
		repoInput.CursorTime = &createdAt
		repoInput.CursorID = id
	}

	projects, err := u.projects.List(ctx, repoInput)
	if err != nil {
		return ListProjectsResult{}, fmt.Errorf("list projects: %w", err)
	}

	var nextCursor *string
	if len(projects) == limit+1 {
		last := projects[limit]
		c := encodeCursor(last.CreatedAt, last.ID)
		nextCursor = &c
		projects = projects[:limit]
	}

	return ListProjectsResult{Projects: projects, NextCursor: nextCursor}, nil
}
