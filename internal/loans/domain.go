// internal/loans/domain.go
package loans

import (
	"time"
)

// Status is the stored lifecycle state of a loan. Overdue is derived from
// the due date and never stored.
type Status string

const (
	StatusActive   Status = "ACTIVE"
	StatusReturned Status = "RETURNED"
)

// MaxExtensions caps how often a loan's due date may be pushed back.
const MaxExtensions = 2

// Loan is a book lent to a user. UserID and BookID reference records owned
// by other services and are only checked when the loan is issued.
type Loan struct {
	ID              int64      `json:"id" db:"id"`
	UserID          int64      `json:"user_id" db:"user_id"`
	BookID          int64      `json:"book_id" db:"book_id"`
	IssueDate       time.Time  `json:"issue_date" db:"issue_date"`
	DueDate         time.Time  `json:"due_date" db:"due_date"`
	ReturnDate      *time.Time `json:"return_date" db:"return_date"`
	Status          Status     `json:"status" db:"status"`
	ExtensionsCount int        `json:"extensions_count" db:"extensions_count"`
	CreatedAt       time.Time  `json:"created_at" db:"created_at"`
	UpdatedAt       time.Time  `json:"updated_at" db:"updated_at"`
}

// Overdue reports whether the loan is active past its due date.
func (l *Loan) Overdue(now time.Time) bool {
	return l.Status == StatusActive && l.DueDate.Before(now)
}

// IssueRequest is the input to IssueLoan.
type IssueRequest struct {
	UserID  int64
	BookID  int64
	DueDate time.Time
}

// ReturnedLoan is the reply to a return. Warning is set when the book
// service could not be told about the returned copy.
type ReturnedLoan struct {
	Loan
	Warning string `json:"warning,omitempty"`
}

// Extension is the reply to a due date extension.
type Extension struct {
	ID              int64     `json:"id"`
	UserID          int64     `json:"user_id"`
	BookID          int64     `json:"book_id"`
	IssueDate       time.Time `json:"issue_date"`
	OriginalDueDate time.Time `json:"original_due_date"`
	ExtendedDueDate time.Time `json:"extended_due_date"`
	Status          Status    `json:"status"`
	ExtensionsCount int       `json:"extensions_count"`
}

// BookSummary is the book part of an enriched loan.
type BookSummary struct {
	ID     int64  `json:"id"`
	Title  string `json:"title,omitempty"`
	Author string `json:"author,omitempty"`
}

// UserSummary is the user part of an enriched loan.
type UserSummary struct {
	ID    int64  `json:"id"`
	Name  string `json:"name,omitempty"`
	Email string `json:"email,omitempty"`
}

// LoanSummary is one entry of a user's loan listing.
type LoanSummary struct {
	ID         int64       `json:"id"`
	Book       BookSummary `json:"book"`
	IssueDate  time.Time   `json:"issue_date"`
	DueDate    time.Time   `json:"due_date"`
	ReturnDate *time.Time  `json:"return_date"`
	Status     Status      `json:"status"`
	Overdue    bool        `json:"overdue"`
}

// UserLoans lists a user's loans, newest first. Total is the number of
// local records regardless of how many could be enriched.
type UserLoans struct {
	Loans []LoanSummary `json:"loans"`
	Total int           `json:"total"`
}

// LoanDetail is a single loan with user and book fields merged in.
type LoanDetail struct {
	ID              int64       `json:"id"`
	User            UserSummary `json:"user"`
	Book            BookSummary `json:"book"`
	IssueDate       time.Time   `json:"issue_date"`
	DueDate         time.Time   `json:"due_date"`
	ReturnDate      *time.Time  `json:"return_date"`
	Status          Status      `json:"status"`
	ExtensionsCount int         `json:"extensions_count"`
	Overdue         bool        `json:"overdue"`
}

// OverdueLoan is one entry of the overdue listing.
type OverdueLoan struct {
	ID          int64       `json:"id"`
	User        UserSummary `json:"user"`
	Book        BookSummary `json:"book"`
	IssueDate   time.Time   `json:"issue_date"`
	DueDate     time.Time   `json:"due_date"`
	DaysOverdue int         `json:"days_overdue"`
}

// Stats summarises loan activity for the current day.
type Stats struct {
	LoansToday   int64 `json:"loans_today" db:"loans_today"`
	ReturnsToday int64 `json:"returns_today" db:"returns_today"`
	OverdueLoans int64 `json:"overdue_loans" db:"overdue_loans"`
	ActiveLoans  int64 `json:"active_loans" db:"active_loans"`
	TotalLoans   int64 `json:"total_loans" db:"total_loans"`
}

// Reconciliation is an availability change the book service never
// acknowledged. LoanID is nil when the loan itself was never created;
// SagaID names the journaled run that parked it.
type Reconciliation struct {
	ID         int64      `json:"id" db:"id"`
	SagaID     string     `json:"saga_id,omitempty" db:"saga_id"`
	LoanID     *int64     `json:"loan_id" db:"loan_id"`
	BookID     int64      `json:"book_id" db:"book_id"`
	Operation  string     `json:"operation" db:"operation"`
	Attempts   int        `json:"attempts" db:"attempts"`
	LastError  string     `json:"last_error" db:"last_error"`
	CreatedAt  time.Time  `json:"created_at" db:"created_at"`
	ResolvedAt *time.Time `json:"resolved_at" db:"resolved_at"`
}

// ReconcileReport counts the outcome of one reconciliation pass.
type ReconcileReport struct {
	Attempted int `json:"attempted"`
	Resolved  int `json:"resolved"`
	Dropped   int `json:"dropped"`
	Failed    int `json:"failed"`
}
