// Package domain contains entity without logic, just meta-data
package domain

import (
	"errors"
)

const (
	MaxUserIDLen   = 36
	MaxUsernameLen = 36
)

var (
	ErrUsernameTooLong = errors.New("username too long")
	ErrUsernameEmpty   = errors.New("username empty")
)

type UserID string

// Coordinate is a WGS84 position as the wire protocol carries it.
type Coordinate struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

// User mirrors one participant of a room as last pushed by the server.
// Location and Route stay nil until the user shares them.
type User struct {
	ID        UserID      `json:"id"`
	Name      string      `json:"name"`
	Location  *Coordinate `json:"location,omitempty"`
	Route     *Route      `json:"route,omitempty"`
	JoinedAt  int64       `json:"joinedAt,omitempty"`
	UpdatedAt int64       `json:"updatedAt,omitempty"`
}

// NewUser is a tiny helper to avoid ad-hoc struct literals in adapters.
func NewUser(id UserID, name string) (*User, error) {
	if len(name) == 0 {
		return nil, ErrUsernameEmpty
	}
	if len(name) > MaxUsernameLen {
		return nil, ErrUsernameTooLong
	}
	return &User{ID: id, Name: name}, nil
}

func (u *User) SetName(name string) error {
	if len(name) == 0 {
		return ErrUsernameEmpty
	}
	if len(name) > MaxUsernameLen {
		return ErrUsernameTooLong
	}
	u.Name = name
	return nil
}
