package usecase

import (
	"context"
	"fmt"

	"github.com/relaygrid/octabot/internal/domain"
	"github.com/relaygrid/octabot/internal/repository"
	"github.com/relaygrid/octabot/internal/security"
)

// UserUsecase backs the CRUD surface spec.md §6 names for /api/users.
// Authentication itself (Login/Me) lives in AuthUsecase.
type UserUsecase struct {
	users repository.UserRepository
}

func NewUserUsecase(users repository.UserRepository) *UserUsecase {
	return &UserUsecase{users: users}
}

type CreateUserInput struct {
	Username string
	Password string
	Role     domain.Role
	Email    *string
}

// CreateUser hashes the password with Argon2id before it ever touches
// the store; §3's "password verifier (opaque hash)" invariant.
func (u *UserUsecase) CreateUser(ctx context.Context, input CreateUserInput) (*domain.User, error) {
	if len(input.Username) < 4 {
		return nil, domain.NewInvalidInput("username must be at least 4 characters",
			domain.FieldError{Field: "username", Codes: []string{"length"}})
	}

	hash, err := security.HashPassword(input.Password)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}

	role := input.Role
	if role == "" {
		role = domain.RoleUser
	}

	created, err := u.users.Create(ctx, &domain.User{
		Username:     input.Username,
		Role:         role,
		Email:        input.Email,
		PasswordHash: hash,
	})
	if err != nil {
		return nil, fmt.Errorf("create user: %w", err)
	}
	return created, nil
}

func (u *UserUsecase) GetUser(ctx context.Context, id string) (*domain.User, error) {
	user, err := u.users.FindByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("get user: %w", err)
	}
	return user, nil
}

type UpdateUserInput struct {
	ID       string
	Username string
	Role     domain.Role
	Email    *string
	Password *string
}

func (u *UserUsecase) UpdateUser(ctx context.Context, input UpdateUserInput) (*domain.User, error) {
	if len(input.Username) < 4 {
		return nil, domain.NewInvalidInput("username must be at least 4 characters",
			domain.FieldError{Field: "username", Codes: []string{"length"}})
	}

	user, err := u.users.FindByID(ctx, input.ID)
	if err != nil {
		return nil, fmt.Errorf("get user: %w", err)
	}

	user.Username = input.Username
	user.Role = input.Role
	user.Email = input.Email

	if input.Password != nil {
		hash, err := security.HashPassword(*input.Password)
		if err != nil {
			return nil, fmt.Errorf("hash password: %w", err)
		}
		user.PasswordHash = hash
	}

	updated, err := u.users.Update(ctx, user)
	if err != nil {
		return nil, fmt.Errorf("update user: %w", err)
	}
	return updated, nil
}

func (u *UserUsecase) DeleteUser(ctx context.Context, id string) error {
	if err := u.users.Delete(ctx, id); err != nil {
		return fmt.Errorf("delete user: %w", err)
	}
	return nil
}

type ListUsersInput struct {
	Cursor string
	Limit  int
}

type ListUsersResult struct {
	Users      []*domain.User
	NextCursor *string
}

func (u *UserUsecase) ListUsers(ctx context.Context, input ListUsersInput) (ListUsersResult, error) {
	limit := clampLimit(input.Limit)

	repoInput := repository.ListUsersInput{Limit: limit + 1}
	if input.Cursor != "" {
		createdAt, id, err := decodeCursor(input.Cursor)
		if err != nil {
			return ListUsersResult{}, domain.NewInvalidInput("invalid cursor")
		}
		repoInput.CursorTime = &createdAt
		repoInput.CursorID = id
	}

	users, err := u.users.List(ctx, repoInput)
	if err != nil {
		return ListUsersResult{}, fmt.Errorf("list users: %w", err)
	}

	var nextCursor *string
	if len(users) == limit+1 {
		last := users[limit]
		c := encodeCursor(last.CreatedAt, last.ID)
		nextCursor = &c
		users = users[:limit]
	}

	return ListUsersResult{Users: users, NextCursor: nextCursor}, nil
}
