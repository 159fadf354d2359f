// internal/loans/service.go
package loans

import (
	"context"
	"errors"

	"github.com/google/uuid"

	"github.com/muhaimeen90/Smart-Library-Distributed/internal/books"
	"github.com/muhaimeen90/Smart-Library-Distributed/internal/sagalog"
	"github.com/muhaimeen90/Smart-Library-Distributed/internal/users"
)

var (
	ErrLoanNotFound = errors.New("loan not found")
	ErrUserNotFound = errors.New("user not found")
	ErrBookNotFound = errors.New("book not found")
	ErrRateLimited  = errors.New("rate limit exceeded")
)

// RuleError is a business rule violation. Its message is shown to the caller.
type RuleError struct {
	Message string
}

func (e *RuleError) Error() string {
	return e.Message
}

var (
	ErrNoCopies        = &RuleError{Message: "No available copies of this book"}
	ErrAlreadyReturned = &RuleError{Message: "Book already returned"}
	ErrNotExtendable   = &RuleError{Message: "Cannot extend a returned loan"}
	ErrExtensionLimit  = &RuleError{Message: "Maximum number of extensions reached"}
	ErrExtensionDays   = &RuleError{Message: "Extension days must be greater than 0"}
)

// UnavailableError means a step depending on another service could not run.
type UnavailableError struct {
	Message string
	Err     error
}

func (e *UnavailableError) Error() string {
	return e.Message + ": " + e.Err.Error()
}

func (e *UnavailableError) Unwrap() error {
	return e.Err
}

// UserDirectory is the part of the user service the loan service depends on.
type UserDirectory interface {
	GetUser(ctx context.Context, id int64) (*users.User, error)
}

// BookCatalog is the part of the book service the loan service depends on.
type BookCatalog interface {
	GetBook(ctx context.Context, id int64) (*books.Book, error)
	UpdateAvailability(ctx context.Context, id int64, op books.Operation) (*books.Availability, error)
}

// Service defines the interface for the loan service.
type Service interface {
	IssueLoan(ctx context.Context, req IssueRequest) (*Loan, error)
	ReturnLoan(ctx context.Context, loanID int64) (*ReturnedLoan, error)
	ExtendLoan(ctx context.Context, loanID int64, days int) (*Extension, error)

	UserLoans(ctx context.Context, userID int64) (*UserLoans, error)
	LoanDetail(ctx context.Context, loanID int64) (*LoanDetail, error)
	OverdueLoans(ctx context.Context) ([]OverdueLoan, error)
	Stats(ctx context.Context) (*Stats, error)
	Journal(ctx context.Context, loanID int64) ([]sagalog.Entry, error)
	SagaRun(ctx context.Context, sagaID uuid.UUID) ([]sagalog.Entry, error)
	JournalFeed(ctx context.Context, afterID int64, limit int) ([]sagalog.Entry, error)

	PendingReconciliations(ctx context.Context) ([]Reconciliation, error)
	Reconcile(ctx context.Context) (*ReconcileReport, error)
}
