// internal/users/implementation.go
package users

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/doug-martin/goqu/v9"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"github.com/muhaimeen90/Smart-Library-Distributed/internal/clock"
	"github.com/muhaimeen90/Smart-Library-Distributed/internal/database"
)

const maxPageSize = 100

// Options tunes the service. A zero CreateLimit disables rate limiting.
type Options struct {
	Clock       clock.Clock
	Logger      zerolog.Logger
	CreateLimit rate.Limit
	CreateBurst int
}

// service implements the Service interface.
type service struct {
	db          *database.DB
	clock       clock.Clock
	logger      zerolog.Logger
	rateLimiter *rate.Limiter
}

// NewService creates a new user service instance.
func NewService(db *database.DB, opts Options) Service {
	c := opts.Clock
	if c == nil {
		c = clock.Real{}
	}
	limiter := rate.NewLimiter(rate.Inf, 0)
	if opts.CreateLimit > 0 {
		burst := opts.CreateBurst
		if burst <= 0 {
			burst = 1
		}
		limiter = rate.NewLimiter(opts.CreateLimit, burst)
	}
	return &service{db: db, clock: c, logger: opts.Logger, rateLimiter: limiter}
}

const selectUser = `SELECT id, name, email, role, created_at, updated_at FROM users`

// CreateUser registers a new user. Emails are unique.
func (s *service) CreateUser(ctx context.Context, in NewUser) (*User, error) {
	if !s.rateLimiter.Allow() {
		return nil, ErrRateLimited
	}
	if in.Role == "" {
		in.Role = RoleStudent
	}

	now := s.clock.Now()
	user := &User{
		Name:      strings.TrimSpace(in.Name),
		Email:     strings.ToLower(strings.TrimSpace(in.Email)),
		Role:      in.Role,
		CreatedAt: now,
		UpdatedAt: now,
	}

	taken, err := s.emailTaken(ctx, user.Email, 0)
	if err != nil {
		return nil, err
	}
	if taken {
		return nil, ErrEmailTaken
	}

	err = s.db.QueryRowxContext(ctx, s.db.Rebind(`
		INSERT INTO users (name, email, role, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?)
		RETURNING id`),
		user.Name, user.Email, string(user.Role), user.CreatedAt, user.UpdatedAt,
	).Scan(&user.ID)
	if err != nil {
		if database.IsUniqueViolation(err) {
			return nil, ErrEmailTaken
		}
		return nil, fmt.Errorf("insert user: %w", err)
	}

	s.logger.Info().Int64("user_id", user.ID).Str("role", string(user.Role)).Msg("user created")
	return user, nil
}

func (s *service) emailTaken(ctx context.Context, email string, exceptID int64) (bool, error) {
	var n int
	err := s.db.GetContext(ctx, &n, s.db.Rebind(`SELECT COUNT(*) FROM users WHERE email = ? AND id <> ?`), email, exceptID)
	if err != nil {
		return false, fmt.Errorf("check email: %w", err)
	}
	return n > 0, nil
}

// GetUser retrieves a user by id.
func (s *service) GetUser(ctx context.Context, id int64) (*User, error) {
	var user User
	err := s.db.GetContext(ctx, &user, s.db.Rebind(selectUser+` WHERE id = ?`), id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrUserNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get user %d: %w", id, err)
	}
	return &user, nil
}

// UpdateUser changes the name and/or email of a user.
func (s *service) UpdateUser(ctx context.Context, id int64, upd UserUpdate) (*User, error) {
	if upd.Name == nil && upd.Email == nil {
		return nil, ErrNoFields
	}

	user, err := s.GetUser(ctx, id)
	if err != nil {
		return nil, err
	}

	if upd.Email != nil {
		email := strings.ToLower(strings.TrimSpace(*upd.Email))
		if email != user.Email {
			taken, err := s.emailTaken(ctx, email, id)
			if err != nil {
				return nil, err
			}
			if taken {
				return nil, ErrEmailTaken
			}
		}
		user.Email = email
	}
	if upd.Name != nil {
		user.Name = strings.TrimSpace(*upd.Name)
	}
	user.UpdatedAt = s.clock.Now()

	_, err = s.db.ExecContext(ctx, s.db.Rebind(`UPDATE users SET name = ?, email = ?, updated_at = ? WHERE id = ?`),
		user.Name, user.Email, user.UpdatedAt, id)
	if err != nil {
		if database.IsUniqueViolation(err) {
			return nil, ErrEmailTaken
		}
		return nil, fmt.Errorf("update user %d: %w", id, err)
	}
	return user, nil
}

// ListUsers returns one page of users ordered by id.
func (s *service) ListUsers(ctx context.Context, q ListQuery) (*Page, error) {
	page, limit := normalizePage(q.Page, q.Limit)

	var total int64
	if err := s.db.GetContext(ctx, &total, `SELECT COUNT(*) FROM users`); err != nil {
		return nil, fmt.Errorf("count users: %w", err)
	}

	query, args, err := s.db.Builder().
		From("users").
		Select("id", "name", "email", "role", "created_at", "updated_at").
		Order(goqu.C("id").Asc()).
		Limit(uint(limit)).
		Offset(uint((page - 1) * limit)).
		Prepared(true).
		ToSQL()
	if err != nil {
		return nil, fmt.Errorf("build user list query: %w", err)
	}

	list := make([]User, 0, limit)
	if err := s.db.SelectContext(ctx, &list, query, args...); err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}
	return &Page{Users: list, Total: total, Page: page, PerPage: limit}, nil
}

func normalizePage(page, limit int) (int, int) {
	if page <= 0 {
		page = 1
	}
	if limit <= 0 {
		limit = 10
	}
	if limit > maxPageSize {
		limit = maxPageSize
	}
	return page, limit
}
