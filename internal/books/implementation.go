// internal/books/implementation.go
package books

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/doug-martin/goqu/v9"
	"github.com/rs/zerolog"

	"github.com/muhaimeen90/Smart-Library-Distributed/internal/clock"
	"github.com/muhaimeen90/Smart-Library-Distributed/internal/database"
)

const maxPageSize = 100

// service implements the Service interface.
type service struct {
	db     *database.DB
	clock  clock.Clock
	logger zerolog.Logger
}

// Options tunes the service.
type Options struct {
	Clock  clock.Clock
	Logger zerolog.Logger
}

// NewService creates a new book service instance.
func NewService(db *database.DB, opts Options) Service {
	c := opts.Clock
	if c == nil {
		c = clock.Real{}
	}
	return &service{db: db, clock: c, logger: opts.Logger}
}

var bookColumns = []any{"id", "title", "author", "isbn", "copies", "available_copies", "created_at", "updated_at"}

const selectBook = `SELECT id, title, author, isbn, copies, available_copies, created_at, updated_at FROM books`

// AddBook adds a title with every copy available.
func (s *service) AddBook(ctx context.Context, in NewBook) (*Book, error) {
	now := s.clock.Now()
	book := &Book{
		Title:           strings.TrimSpace(in.Title),
		Author:          strings.TrimSpace(in.Author),
		ISBN:            strings.TrimSpace(in.ISBN),
		Copies:          in.Copies,
		AvailableCopies: in.Copies,
		CreatedAt:       now,
		UpdatedAt:       now,
	}

	taken, err := s.isbnTaken(ctx, book.ISBN, 0)
	if err != nil {
		return nil, err
	}
	if taken {
		return nil, ErrISBNTaken
	}

	err = s.db.QueryRowxContext(ctx, s.db.Rebind(`
		INSERT INTO books (title, author, isbn, copies, available_copies, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		RETURNING id`),
		book.Title, book.Author, book.ISBN, book.Copies, book.AvailableCopies, book.CreatedAt, book.UpdatedAt,
	).Scan(&book.ID)
	if err != nil {
		if database.IsUniqueViolation(err) {
			return nil, ErrISBNTaken
		}
		return nil, fmt.Errorf("insert book: %w", err)
	}

	s.logger.Info().Int64("book_id", book.ID).Str("isbn", book.ISBN).Int("copies", book.Copies).Msg("book added")
	return book, nil
}

func (s *service) isbnTaken(ctx context.Context, isbn string, exceptID int64) (bool, error) {
	var n int
	err := s.db.GetContext(ctx, &n, s.db.Rebind(`SELECT COUNT(*) FROM books WHERE isbn = ? AND id <> ?`), isbn, exceptID)
	if err != nil {
		return false, fmt.Errorf("check isbn: %w", err)
	}
	return n > 0, nil
}

// SearchBooks matches the search term against title, author and isbn.
func (s *service) SearchBooks(ctx context.Context, q SearchQuery) (*Page, error) {
	page, limit := q.Page, q.Limit
	if page <= 0 {
		page = 1
	}
	if limit <= 0 {
		limit = 10
	}
	if limit > maxPageSize {
		limit = maxPageSize
	}

	ds := s.db.Builder().From("books")
	if term := strings.TrimSpace(q.Search); term != "" {
		pattern := "%" + term + "%"
		ds = ds.Where(goqu.Or(
			goqu.C("title").Like(pattern),
			goqu.C("author").Like(pattern),
			goqu.C("isbn").Like(pattern),
		))
	}

	countSQL, countArgs, err := ds.Select(goqu.COUNT("*")).Prepared(true).ToSQL()
	if err != nil {
		return nil, fmt.Errorf("build count query: %w", err)
	}
	var total int64
	if err := s.db.GetContext(ctx, &total, countSQL, countArgs...); err != nil {
		return nil, fmt.Errorf("count books: %w", err)
	}

	listSQL, listArgs, err := ds.Select(bookColumns...).
		Order(goqu.C("id").Asc()).
		Limit(uint(limit)).
		Offset(uint((page - 1) * limit)).
		Prepared(true).
		ToSQL()
	if err != nil {
		return nil, fmt.Errorf("build search query: %w", err)
	}
	list := make([]Book, 0, limit)
	if err := s.db.SelectContext(ctx, &list, listSQL, listArgs...); err != nil {
		return nil, fmt.Errorf("search books: %w", err)
	}

	return &Page{Books: list, Total: total, Page: page, PerPage: limit}, nil
}

// GetBook retrieves a book by id.
func (s *service) GetBook(ctx context.Context, id int64) (*Book, error) {
	var book Book
	err := s.db.GetContext(ctx, &book, s.db.Rebind(selectBook+` WHERE id = ?`), id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrBookNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get book %d: %w", id, err)
	}
	return &book, nil
}

// UpdateBook changes descriptive fields and the copy count. Changing copies
// shifts available copies by the same delta.
func (s *service) UpdateBook(ctx context.Context, id int64, upd BookUpdate) (*Book, error) {
	if upd.Title == nil && upd.Author == nil && upd.ISBN == nil && upd.Copies == nil {
		return nil, ErrNoFields
	}

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	var book Book
	err = tx.GetContext(ctx, &book, s.db.Rebind(selectBook+` WHERE id = ?`), id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrBookNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get book %d: %w", id, err)
	}

	if upd.ISBN != nil {
		isbn := strings.TrimSpace(*upd.ISBN)
		if isbn != book.ISBN {
			var n int
			if err := tx.GetContext(ctx, &n, s.db.Rebind(`SELECT COUNT(*) FROM books WHERE isbn = ? AND id <> ?`), isbn, id); err != nil {
				return nil, fmt.Errorf("check isbn: %w", err)
			}
			if n > 0 {
				return nil, ErrISBNTaken
			}
		}
		book.ISBN = isbn
	}
	if upd.Title != nil {
		book.Title = strings.TrimSpace(*upd.Title)
	}
	if upd.Author != nil {
		book.Author = strings.TrimSpace(*upd.Author)
	}
	if upd.Copies != nil {
		delta := *upd.Copies - book.Copies
		if book.AvailableCopies+delta < 0 {
			return nil, ErrCopiesOnLoan
		}
		book.Copies = *upd.Copies
		book.AvailableCopies += delta
	}
	book.UpdatedAt = s.clock.Now()

	_, err = tx.ExecContext(ctx, s.db.Rebind(`
		UPDATE books
		SET title = ?, author = ?, isbn = ?, copies = ?, available_copies = ?, updated_at = ?
		WHERE id = ?`),
		book.Title, book.Author, book.ISBN, book.Copies, book.AvailableCopies, book.UpdatedAt, id)
	if err != nil {
		if database.IsUniqueViolation(err) {
			return nil, ErrISBNTaken
		}
		return nil, fmt.Errorf("update book %d: %w", id, err)
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit transaction: %w", err)
	}
	return &book, nil
}

// UpdateAvailability applies an increment, a decrement or an absolute count
// in a single conditional UPDATE, so concurrent decrements never oversell.
func (s *service) UpdateAvailability(ctx context.Context, id int64, upd AvailabilityUpdate) (*Availability, error) {
	now := s.clock.Now()

	var (
		query string
		args  []any
	)
	switch {
	case upd.Operation == OperationIncrement:
		query = `UPDATE books SET available_copies = available_copies + 1, updated_at = ?
			WHERE id = ? AND available_copies < copies`
		args = []any{now, id}
	case upd.Operation == OperationDecrement:
		query = `UPDATE books SET available_copies = available_copies - 1, updated_at = ?
			WHERE id = ? AND available_copies > 0`
		args = []any{now, id}
	case upd.AvailableCopies != nil && *upd.AvailableCopies < 0:
		return nil, ErrNegativeCount
	case upd.AvailableCopies != nil:
		query = `UPDATE books SET available_copies = ?, updated_at = ?
			WHERE id = ? AND ? <= copies`
		args = []any{*upd.AvailableCopies, now, id, *upd.AvailableCopies}
	default:
		return nil, ErrNoFields
	}

	res, err := s.db.ExecContext(ctx, s.db.Rebind(query), args...)
	if err != nil {
		return nil, fmt.Errorf("update availability of book %d: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("update availability of book %d: %w", id, err)
	}
	if n == 1 {
		var avail Availability
		err := s.db.GetContext(ctx, &avail, s.db.Rebind(`SELECT id, available_copies, updated_at FROM books WHERE id = ?`), id)
		if err != nil {
			return nil, fmt.Errorf("read availability of book %d: %w", id, err)
		}
		s.logger.Debug().Int64("book_id", id).Int("available_copies", avail.AvailableCopies).Msg("availability updated")
		return &avail, nil
	}

	// Nothing matched: tell a missing book apart from a violated bound.
	book, err := s.GetBook(ctx, id)
	if err != nil {
		return nil, err
	}
	switch {
	case upd.Operation == OperationIncrement:
		return nil, ErrAllAvailable
	case upd.Operation == OperationDecrement:
		return nil, ErrNoCopies
	default:
		return nil, &CopiesLimitError{Copies: book.Copies}
	}
}

// DeleteBook removes a book with no copies on loan.
func (s *service) DeleteBook(ctx context.Context, id int64) error {
	res, err := s.db.ExecContext(ctx, s.db.Rebind(`DELETE FROM books WHERE id = ? AND available_copies = copies`), id)
	if err != nil {
		return fmt.Errorf("delete book %d: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete book %d: %w", id, err)
	}
	if n == 1 {
		s.logger.Info().Int64("book_id", id).Msg("book deleted")
		return nil
	}
	if _, err := s.GetBook(ctx, id); err != nil {
		return err
	}
	return ErrOutstandingLoans
}
