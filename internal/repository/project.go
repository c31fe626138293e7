package repository

import (
	"context"
	"time"

	"github.com/relaygrid/octabot/internal/domain"
)

type ListProjectsInput struct {
	OwnerID    string
	CursorTime *time.Time
	CursorID   string
	Limit      int
}

type ProjectRepository interface {
	Create(ctx context.Context, p *domain.Project) (*domain.Project, error)
	GetByID(ctx context.Context, id string) (*domain.Project, error)
	GetByCode(ctx context.Context, code string) (*domain.Project, error)
	List(ctx context.Context, input ListProjectsInput) ([]*domain.Project, error)
	Update(ctx context.Context, p *domain.Project) (*domain.Project, error)
	Delete(ctx context.Context, id string) error
}
