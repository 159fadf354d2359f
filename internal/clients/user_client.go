// internal/clients/user_client.go
package clients

import (
	"context"
	"fmt"

	"github.com/muhaimeen90/Smart-Library-Distributed/internal/users"
)

type UserClient struct {
	svc *Service
}

func NewUserClient(svc *Service) *UserClient {
	return &UserClient{svc: svc}
}

func (c *UserClient) GetUser(ctx context.Context, id int64) (*users.User, error) {
	resp, err := c.svc.Get(ctx, fmt.Sprintf("/users/%d", id))
	if err != nil {
		return nil, err
	}

	var user users.User
	if err := resp.Decode(&user); err != nil {
		return nil, fmt.Errorf("decode user %d: %w", id, err)
	}
	return &user, nil
}

// CreateUser registers a user. The loan service never writes users; game day
// seeding does.
func (c *UserClient) CreateUser(ctx context.Context, in users.NewUser) (*users.User, error) {
	resp, err := c.svc.Post(ctx, "/users", in)
	if err != nil {
		return nil, err
	}

	var user users.User
	if err := resp.Decode(&user); err != nil {
		return nil, fmt.Errorf("decode created user: %w", err)
	}
	return &user, nil
}

// UpdateUser changes a user's name or email. It rounds out the facade over
// PUT /users/{id} and has no caller inside the loan service.
func (c *UserClient) UpdateUser(ctx context.Context, id int64, upd users.UserUpdate) (*users.User, error) {
	resp, err := c.svc.Put(ctx, fmt.Sprintf("/users/%d", id), upd)
	if err != nil {
		return nil, err
	}

	var user users.User
	if err := resp.Decode(&user); err != nil {
		return nil, fmt.Errorf("decode user %d: %w", id, err)
	}
	return &user, nil
}
