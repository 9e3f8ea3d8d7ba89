package users

import (
	"errors"
	"time"
)

// User is the read model of an externally owned account. This service
// consumes the active flag; it never creates or authenticates users.
type User struct {
	ID        int64
	Username  string
	Email     string
	IsActive  bool
	CreatedAt time.Time
	UpdatedAt time.Time
}

// ErrNotFound indicates that the requested user does not exist.
var ErrNotFound = errors.New("users: not found")
