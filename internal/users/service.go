// internal/users/service.go
package users

import (
	"context"
	"errors"
)

var (
	ErrUserNotFound = errors.New("user not found")
	ErrEmailTaken   = errors.New("email already in use")
	ErrNoFields     = errors.New("at least one field must be provided")
	ErrRateLimited  = errors.New("rate limit exceeded")
)

// Service defines the interface for the user service.
type Service interface {
	CreateUser(ctx context.Context, in NewUser) (*User, error)
	GetUser(ctx context.Context, id int64) (*User, error)
	UpdateUser(ctx context.Context, id int64, upd UserUpdate) (*User, error)
	ListUsers(ctx context.Context, q ListQuery) (*Page, error)
	Seed(ctx context.Context) (int, error)
}
