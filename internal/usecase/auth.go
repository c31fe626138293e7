package usecase

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/relaygrid/octabot/internal/domain"
	"github.com/relaygrid/octabot/internal/repository"
	"github.com/relaygrid/octabot/internal/security"
	"github.com/golang-jwt/jwt/v5"
)

// AuthUsecase authenticates users against the password hash stored on
// their row and mints the JWT the rest of the API trusts.
type AuthUsecase struct {
	users  repository.UserRepository
	jwtKey []byte
	jwtTTL time.Duration
}

func NewAuthUsecase(users repository.UserRepository, jwtKey []byte, jwtTTL time.Duration) *AuthUsecase {
	return &AuthUsecase{users: users, jwtKey: jwtKey, jwtTTL: jwtTTL}
}

// Login verifies username and password and returns a signed JWT plus
// the authenticated user. A missing user and a wrong password both
// surface as domain.ErrInvalidCredentials, never distinguished for
// the caller.
func (u *AuthUsecase) Login(ctx context.Context, username, password string) (string, *domain.User, error) {
	user, err := u.users.FindByUsername(ctx, username)
	if err != nil {
		if errors.Is(err, domain.ErrInvalidCredentials) {
			return "", nil, domain.ErrInvalidCredentials
		}
		return "", nil, fmt.Errorf("find user by username: %w", err)
	}

	if !security.VerifyPassword(user.PasswordHash, password) {
		return "", nil, domain.ErrInvalidCredentials
	}

	token, err := u.sign(user.ID)
	if err != nil {
		return "", nil, fmt.Errorf("sign jwt: %w", err)
	}
	return token, user, nil
}

func (u *AuthUsecase) sign(userID string) (string, error) {
	now := time.Now()
	claims := jwt.MapClaims{
		"sub": userID,
		"iat": now.Unix(),
		"exp": now.Add(u.jwtTTL).Unix(),
	}
	t := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return t.SignedString(u.jwtKey)
}

// Me returns the user a validated token's sub claim points at.
func (u *AuthUsecase) Me(ctx context.Context, userID string) (*domain.User, error) {
	user, err := u.users.FindByID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("find user: %w", err)
	}
	return user, nil
}
