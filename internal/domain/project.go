package domain

import (
	"encoding/json"
	"time"
)

// Project groups tasks under a short, plugin-addressable code.
type Project struct {
	ID      string          `json:"id"`
	Name    string          `json:"name"`
	Code    string          `json:"code"`
	OwnerID string          `json:"ownerId"`
	Owner   *User           `json:"owner,omitempty"`
	Options json.RawMessage `json:"options,omitempty"`

	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}
