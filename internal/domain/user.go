package domain

import "time"

type Role string

const (
	RoleAdmin Role = "admin"
	RoleUser  Role = "user"
)

// User is the CRUD API's principal. PasswordHash is never serialized.
type User struct {
	ID           string  `json:"id"`
	Username     string  `json:"username"`
	Role         Role    `json:"role"`
	Email        *string `json:"email,omitempty"`
	PasswordHash string  `json:"-"`

	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}
