package usecase_test

import (
	"context"
	"errors"
	"testing"

	"github.com/relaygrid/octabot/internal/domain"
	"github.com/relaygrid/octabot/internal/repository"
	"github.com/relaygrid/octabot/internal/usecase"
)

func TestCreateUser_UsernameTooShort_ReturnsInvalidInput(t *testing.T) {
	uc := usecase.NewUserUsecase(&fakeUserRepo{})

	_, err := uc.CreateUser(context.Background(), usecase.CreateUserInput{
		Username: "ab", Password: "hunter22",
	})

	var apiErr *domain.APIError
	if !errors.As(err, &apiErr) || apiErr.Kind != domain.KindInvalidInput {
		t.Fatalf("want InvalidInput, got %v", err)
	}
}

func TestCreateUser_HashesPasswordAndDefaultsRole(t *testing.T) {
	var captured *domain.User
	repo := &fakeUserRepo{
		create: func(_ context.Context, u *domain.User) (*domain.User, error) {
			captured = u
			u.ID = "user-1"
			return u, nil
		},
	}

	got, err := usecase.NewUserUsecase(repo).CreateUser(context.Background(), usecase.CreateUserInput{
		Username: "alice", Password: "hunter22",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.ID != "user-1" {
		t.Fatalf("got id %q, want user-1", got.ID)
	}
	if captured.PasswordHash == "" || captured.PasswordHash == "hunter22" {
		t.Errorf("expected password to be hashed, got %q", captured.PasswordHash)
	}
	if captured.Role != domain.RoleUser {
		t.Errorf("role = %q, want default RoleUser", captured.Role)
	}
}

func TestCreateUser_ExplicitRole_Preserved(t *testing.T) {
	var captured *domain.User
	repo := &fakeUserRepo{
		create: func(_ context.Context, u *domain.User) (*domain.User, error) {
			captured = u
			return u, nil
		},
	}

	_, err := usecase.NewUserUsecase(repo).CreateUser(context.Background(), usecase.CreateUserInput{
		Username: "alice", Password: "hunter22", Role: domain.RoleAdmin,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if captured.Role != domain.RoleAdmin {
		t.Errorf("role = %q, want RoleAdmin", captured.Role)
	}
}

func TestCreateUser_DuplicateUsername_Propagates(t *testing.T) {
	conflict := domain.NewUserAlreadyExist("alice")
	repo := &fakeUserRepo{
		create: func(_ context.Context, _ *domain.User) (*domain.User, error) {
			return nil, conflict
		},
	}

	_, err := usecase.NewUserUsecase(repo).CreateUser(context.Background(), usecase.CreateUserInput{
		Username: "alice", Password: "hunter22",
	})

	var apiErr *domain.APIError
	if !errors.As(err, &apiErr) || apiErr.Kind != domain.KindUserAlreadyExist {
		t.Fatalf("want UserAlreadyExist, got %v", err)
	}
}

func TestUpdateUser_UsernameTooShort_ReturnsInvalidInput(t *testing.T) {
	uc := usecase.NewUserUsecase(&fakeUserRepo{})

	_, err := uc.UpdateUser(context.Background(), usecase.UpdateUserInput{
		ID: "user-1", Username: "ab",
	})

	var apiErr *domain.APIError
	if !errors.As(err, &apiErr) || apiErr.Kind != domain.KindInvalidInput {
		t.Fatalf("want InvalidInput, got %v", err)
	}
}

func TestUpdateUser_NoPasswordChange_KeepsExistingHash(t *testing.T) {
	existingHash := "$argon2id$existing"
	repo := &fakeUserRepo{
		findByID: func(_ context.Context, id string) (*domain.User, error) {
			return &domain.User{ID: id, Username: "alice", PasswordHash: existingHash}, nil
		},
		update: func(_ context.Context, u *domain.User) (*domain.User, error) {
			return u, nil
		},
	}

	got, err := usecase.NewUserUsecase(repo).UpdateUser(context.Background(), usecase.UpdateUserInput{
		ID: "user-1", Username: "alice2",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.PasswordHash != existingHash {
		t.Errorf("password hash changed without a new password: %q", got.PasswordHash)
	}
}

func TestUpdateUser_WithNewPassword_Rehashes(t *testing.T) {
	existingHash := "$argon2id$existing"
	repo := &fakeUserRepo{
		findByID: func(_ context.Context, id string) (*domain.User, error) {
			return &domain.User{ID: id, Username: "alice", PasswordHash: existingHash}, nil
		},
		update: func(_ context.Context, u *domain.User) (*domain.User, error) {
			return u, nil
		},
	}

	newPassword := "new-hunter22"
	got, err := usecase.NewUserUsecase(repo).UpdateUser(context.Background(), usecase.UpdateUserInput{
		ID: "user-1", Username: "alice", Password: &newPassword,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.PasswordHash == existingHash {
		t.Error("expected password hash to change")
	}
}

func TestDeleteUser_Success(t *testing.T) {
	var deletedID string
	repo := &fakeUserRepo{
		deleteFn: func(_ context.Context, id string) error {
			deletedID = id
			return nil
		},
	}

	if err := usecase.NewUserUsecase(repo).DeleteUser(context.Background(), "user-1"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if deletedID != "user-1" {
		t.Errorf("deleted id = %q, want user-1", deletedID)
	}
}

func TestListUsers_InvalidCursor_ReturnsInvalidInput(t *testing.T) {
	uc := usecase.NewUserUsecase(&fakeUserRepo{})

	_, err := uc.ListUsers(context.Background(), usecase.ListUsersInput{Cursor: "!!!not-valid"})

	var apiErr *domain.APIError
	if !errors.As(err, &apiErr) || apiErr.Kind != domain.KindInvalidInput {
		t.Fatalf("want InvalidInput, got %v", err)
	}
}

func TestListUsers_RepoError_Wrapped(t *testing.T) {
	repoErr := errors.New("db down")
	repo := &fakeUserRepo{
		list: func(_ context.Context, _ repository.ListUsersInput) ([]*domain.User, error) {
			return nil, repoErr
		},
	}

	_, err := usecase.NewUserUsecase(repo).ListUsers(context.Background(), usecase.ListUsersInput{})
	if !errors.Is(err, repoErr) {
		t.Errorf("want wrapped repoErr, got %v", err)
	}
}
