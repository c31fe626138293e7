package repository

import (
	"context"
	"time"

	"github.com/relaygrid/octabot/internal/domain"
)

type ListUsersInput struct {
	CursorTime *time.Time
	CursorID   string
	Limit      int
}

type UserRepository interface {
	Create(ctx context.Context, u *domain.User) (*domain.User, error)
	FindByID(ctx context.Context, id string) (*domain.User, error)
	FindByUsername(ctx context.Context, username string) (*domain.User, error)
	List(ctx context.Context, input ListUsersInput) ([]*domain.User, error)
	Update(ctx context.Context, u *domain.User) (*domain.User, error)
	Delete(ctx context.Context, id string) error
}
