// internal/books/service.go
package books

import (
	"context"
	"errors"
	"fmt"
)

var (
	ErrBookNotFound     = errors.New("book not found")
	ErrISBNTaken        = errors.New("isbn already in use")
	ErrNoCopies         = errors.New("no available copies to decrement")
	ErrAllAvailable     = errors.New("all copies are already available")
	ErrCopiesOnLoan     = errors.New("copies cannot drop below the number on loan")
	ErrOutstandingLoans = errors.New("book has outstanding loans")
	ErrNoFields         = errors.New("at least one field must be provided")
	ErrNegativeCount    = errors.New("available copies cannot be negative")
)

// CopiesLimitError rejects an absolute availability above the total.
type CopiesLimitError struct {
	Copies int
}

func (e *CopiesLimitError) Error() string {
	return fmt.Sprintf("Available copies cannot exceed total copies (%d)", e.Copies)
}

// Service defines the interface for the book service.
type Service interface {
	AddBook(ctx context.Context, in NewBook) (*Book, error)
	SearchBooks(ctx context.Context, q SearchQuery) (*Page, error)
	GetBook(ctx context.Context, id int64) (*Book, error)
	UpdateBook(ctx context.Context, id int64, upd BookUpdate) (*Book, error)
	UpdateAvailability(ctx context.Context, id int64, upd AvailabilityUpdate) (*Availability, error)
	DeleteBook(ctx context.Context, id int64) error
	Seed(ctx context.Context) (int, error)
}
