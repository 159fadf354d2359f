// internal/users/seed.go
package users

import (
	"context"
	"fmt"

	"github.com/doug-martin/goqu/v9"
)

var seedUsers = []NewUser{
	{Name: "John Doe", Email: "john@example.com", Role: RoleStudent},
	{Name: "Jane Smith", Email: "jane@example.com", Role: RoleFaculty},
	{Name: "Admin User", Email: "admin@example.com", Role: RoleAdmin},
}

// Seed inserts the sample users when the table is empty and reports how many
// rows it wrote.
func (s *service) Seed(ctx context.Context) (int, error) {
	var n int64
	if err := s.db.GetContext(ctx, &n, `SELECT COUNT(*) FROM users`); err != nil {
		return 0, fmt.Errorf("count users: %w", err)
	}
	if n > 0 {
		return 0, nil
	}

	now := s.clock.Now()
	rows := make([]any, 0, len(seedUsers))
	for _, u := range seedUsers {
		rows = append(rows, goqu.Record{
			"name": u.Name, "email": u.Email, "role": string(u.Role),
			"created_at": now, "updated_at": now,
		})
	}
	query, args, err := s.db.Builder().Insert("users").Rows(rows...).Prepared(true).ToSQL()
	if err != nil {
		return 0, fmt.Errorf("build seed insert: %w", err)
	}
	if _, err := s.db.ExecContext(ctx, query, args...); err != nil {
		return 0, fmt.Errorf("seed users: %w", err)
	}
	s.logger.Info().Int("count", len(seedUsers)).Msg("seeded users")
	return len(seedUsers), nil
}
