package handler_test

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/relaygrid/octabot/internal/domain"
	"github.com/relaygrid/octabot/internal/repository"
	"github.com/relaygrid/octabot/internal/transport/http/handler"
	"github.com/relaygrid/octabot/internal/usecase"
	"github.com/gin-gonic/gin"
)

type fakeUserRepo struct {
	create         func(ctx context.Context, u *domain.User) (*domain.User, error)
	findByID       func(ctx context.Context, id string) (*domain.User, error)
	findByUsername func(ctx context.Context, username string) (*domain.User, error)
	list           func(ctx context.Context, input repository.ListUsersInput) ([]*domain.User, error)
	update         func(ctx context.Context, u *domain.User) (*domain.User, error)
	deleteFn       func(ctx context.Context, id string) error
}

func (r *fakeUserRepo) Create(ctx context.Context, u *domain.User) (*domain.User, error) {
	return r.create(ctx, u)
}
func (r *fakeUserRepo) FindByID(ctx context.Context, id string) (*domain.User, error) {
	return r.findByID(ctx, id)
}
func (r *fakeUserRepo) FindByUsername(ctx context.Context, username string) (*domain.User, error) {
	return r.findByUsername(ctx, username)
}
func (r *fakeUserRepo) List(ctx context.Context, input repository.ListUsersInput) ([]*domain.User, error) {
	return r.list(ctx, input)
}
func (r *fakeUserRepo) Update(ctx context.Context, u *domain.User) (*domain.User, error) {
	return r.update(ctx, u)
}
func (r *fakeUserRepo) Delete(ctx context.Context, id string) error {
	return r.deleteFn(ctx, id)
}

func newUserTestEngine(repo *fakeUserRepo) *gin.Engine {
	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))
	h := handler.NewUserHandler(usecase.NewUserUsecase(repo), logger)

	r := gin.New()
	r.POST("/api/users", h.Create)
	r.GET("/api/users/:id", h.Get)
	r.PUT("/api/users/:id", h.Update)
	r.DELETE("/api/users/:id", h.Delete)
	r.GET("/api/users", h.List)
	return r
}

func TestUserCreate_MissingFields_Returns400(t *testing.T) {
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/users", strings.NewReader(`{}`))
	req.Header.Set("Content-Type", "application/json")
	newUserTestEngine(&fakeUserRepo{}).ServeHTTP(w, req)

	if w.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", w.Code)
	}
}

func TestUserCreate_UsernameTooShort_Returns400(t *testing.T) {
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/users",
		strings.NewReader(`{"username":"ab","password":"hunter22"}`))
	req.Header.Set("Content-Type", "application/json")
	newUserTestEngine(&fakeUserRepo{}).ServeHTTP(w, req)

	if w.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", w.Code)
	}
}

func TestUserCreate_Success_Returns201(t *testing.T) {
	repo := &fakeUserRepo{
		create: func(_ context.Context, u *domain.User) (*domain.User, error) {
			u.ID = "user-1"
			return u, nil
		},
	}
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/users",
		strings.NewReader(`{"username":"alice","password":"hunter22"}`))
	req.Header.Set("Content-Type", "application/json")
	newUserTestEngine(repo).ServeHTTP(w, req)

	if w.Code != http.StatusCreated {
		t.Fatalf("status = %d, want 201, body=%s", w.Code, w.Body.String())
	}
}

func TestUserGet_NotFound_Returns404(t *testing.T) {
	repo := &fakeUserRepo{
		findByID: func(_ context.Context, id string) (*domain.User, error) {
			return nil, domain.NewResourceNotFound(id)
		},
	}
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/users/missing", nil)
	newUserTestEngine(repo).ServeHTTP(w, req)

	if w.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", w.Code)
	}
}

func TestUserGet_RepoErrorWrappedAsPlainError_Returns500(t *testing.T) {
	repo := &fakeUserRepo{
		findByID: func(_ context.Context, _ string) (*domain.User, error) {
			return nil, errors.New("db down")
		},
	}
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/users/user-1", nil)
	newUserTestEngine(repo).ServeHTTP(w, req)

	if w.Code != http.StatusInternalServerError {
		t.Errorf("status = %d, want 500", w.Code)
	}
}

func TestUserDelete_Success_Returns204(t *testing.T) {
	repo := &fakeUserRepo{
		deleteFn: func(_ context.Context, _ string) error { return nil },
	}
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodDelete, "/api/users/user-1", nil)
	newUserTestEngine(repo).ServeHTTP(w, req)

	if w.Code != http.StatusNoContent {
		t.Errorf("status = %d, want 204", w.Code)
	}
}

func TestUserList_ReturnsUsersAndCursor(t *testing.T) {
	now := time.Now()
	repo := &fakeUserRepo{
		list: func(_ context.Context, input repository.ListUsersInput) ([]*domain.User, error) {
			users := make([]*domain.User, input.Limit)
			for i := range users {
				users[i] = &domain.User{ID: "user", Username: "alice", CreatedAt: now}
			}
			return users, nil
		},
	}
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/users?users_per_page=2", nil)
	newUserTestEngine(repo).ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200, body=%s", w.Code, w.Body.String())
	}
	if !strings.Contains(w.Body.String(), "next_cursor") {
		t.Errorf("body missing next_cursor: %s", w.Body.String())
	}
}
