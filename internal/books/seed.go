// internal/books/seed.go
package books

import (
	"context"
	"fmt"

	"github.com/doug-martin/goqu/v9"
)

var seedBooks = []NewBook{
	{Title: "Clean Code", Author: "Robert C. Martin", ISBN: "9780132350884", Copies: 3},
	{Title: "Clean Architecture", Author: "Robert C. Martin", ISBN: "9780134494166", Copies: 2},
	{Title: "Design Patterns", Author: "Erich Gamma", ISBN: "9780201633610", Copies: 4},
	{Title: "The Pragmatic Programmer", Author: "Andrew Hunt", ISBN: "9780201616224", Copies: 5},
	{Title: "Refactoring", Author: "Martin Fowler", ISBN: "9780201485677", Copies: 2},
}

// Seed inserts the sample catalogue when the table is empty.
func (s *service) Seed(ctx context.Context) (int, error) {
	var n int64
	if err := s.db.GetContext(ctx, &n, `SELECT COUNT(*) FROM books`); err != nil {
		return 0, fmt.Errorf("count books: %w", err)
	}
	if n > 0 {
		s.logger.Debug().Int64("count", n).Msg("books present, skipping seed")
		return 0, nil
	}

	now := s.clock.Now()
	rows := make([]any, 0, len(seedBooks))
	for _, b := range seedBooks {
		rows = append(rows, goqu.Record{
			"title": b.Title, "author": b.Author, "isbn": b.ISBN,
			"copies": b.Copies, "available_copies": b.Copies,
			"created_at": now, "updated_at": now,
		})
	}
	query, args, err := s.db.Builder().Insert("books").Rows(rows...).Prepared(true).ToSQL()
	if err != nil {
		return 0, fmt.Errorf("build seed insert: %w", err)
	}
	if _, err := s.db.ExecContext(ctx, query, args...); err != nil {
		return 0, fmt.Errorf("seed books: %w", err)
	}
	s.logger.Info().Int("count", len(seedBooks)).Msg("seeded books")
	return len(seedBooks), nil
}
