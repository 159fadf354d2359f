// internal/loans/store.go
package loans

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/doug-martin/goqu/v9"

	"github.com/muhaimeen90/Smart-Library-Distributed/internal/database"
)

var loanColumns = []any{
	"id", "user_id", "book_id", "issue_date", "due_date", "return_date",
	"status", "extensions_count", "created_at", "updated_at",
}

const selectLoan = `SELECT id, user_id, book_id, issue_date, due_date, return_date, status, extensions_count, created_at, updated_at FROM loans`

// store is the loan service's own record store. Times are written in UTC so
// sqlite's text comparison orders them correctly.
type store struct {
	db *database.DB
}

func (s *store) create(ctx context.Context, loan *Loan) error {
	err := s.db.QueryRowxContext(ctx, s.db.Rebind(`
		INSERT INTO loans (user_id, book_id, issue_date, due_date, status, extensions_count, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		RETURNING id`),
		loan.UserID, loan.BookID, loan.IssueDate.UTC(), loan.DueDate.UTC(), string(loan.Status),
		loan.ExtensionsCount, loan.CreatedAt.UTC(), loan.UpdatedAt.UTC(),
	).Scan(&loan.ID)
	if err != nil {
		return fmt.Errorf("insert loan: %w", err)
	}
	return nil
}

func (s *store) get(ctx context.Context, id int64) (*Loan, error) {
	var loan Loan
	err := s.db.GetContext(ctx, &loan, s.db.Rebind(selectLoan+` WHERE id = ?`), id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrLoanNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get loan %d: %w", id, err)
	}
	return &loan, nil
}

// markReturned moves an active loan to RETURNED. A loan that is no longer
// active yields ErrAlreadyReturned, so concurrent returns commit once.
func (s *store) markReturned(ctx context.Context, id int64, at time.Time) (*Loan, error) {
	res, err := s.db.ExecContext(ctx, s.db.Rebind(`
		UPDATE loans SET status = ?, return_date = ?, updated_at = ?
		WHERE id = ? AND status = ?`),
		string(StatusReturned), at.UTC(), at.UTC(), id, string(StatusActive))
	if err != nil {
		return nil, fmt.Errorf("return loan %d: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("return loan %d: %w", id, err)
	}
	if n == 0 {
		if _, err := s.get(ctx, id); err != nil {
			return nil, err
		}
		return nil, ErrAlreadyReturned
	}
	return s.get(ctx, id)
}

// extend pushes the due date back, provided nobody changed the loan since
// it was read.
func (s *store) extend(ctx context.Context, loan *Loan, due, at time.Time) (bool, error) {
	res, err := s.db.ExecContext(ctx, s.db.Rebind(`
		UPDATE loans SET due_date = ?, extensions_count = extensions_count + 1, updated_at = ?
		WHERE id = ? AND status = ? AND extensions_count = ?`),
		due.UTC(), at.UTC(), loan.ID, string(StatusActive), loan.ExtensionsCount)
	if err != nil {
		return false, fmt.Errorf("extend loan %d: %w", loan.ID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("extend loan %d: %w", loan.ID, err)
	}
	return n == 1, nil
}

func (s *store) list(ctx context.Context, ds *goqu.SelectDataset) ([]Loan, error) {
	query, args, err := ds.Select(loanColumns...).Prepared(true).ToSQL()
	if err != nil {
		return nil, fmt.Errorf("build loan query: %w", err)
	}
	var out []Loan
	if err := s.db.SelectContext(ctx, &out, query, args...); err != nil {
		return nil, fmt.Errorf("list loans: %w", err)
	}
	return out, nil
}

func (s *store) byUser(ctx context.Context, userID int64) ([]Loan, error) {
	return s.list(ctx, s.db.Builder().From("loans").
		Where(goqu.C("user_id").Eq(userID)).
		Order(goqu.C("issue_date").Desc(), goqu.C("id").Desc()))
}

func (s *store) overdue(ctx context.Context, now time.Time) ([]Loan, error) {
	return s.list(ctx, s.db.Builder().From("loans").
		Where(goqu.C("status").Eq(string(StatusActive)), goqu.C("due_date").Lt(now.UTC())).
		Order(goqu.C("due_date").Asc(), goqu.C("id").Asc()))
}

func (s *store) stats(ctx context.Context, dayStart, now time.Time) (*Stats, error) {
	dayStart, dayEnd := dayStart.UTC(), dayStart.Add(24*time.Hour).UTC()
	var st Stats
	err := s.db.GetContext(ctx, &st, s.db.Rebind(`
		SELECT
			COUNT(*) AS total_loans,
			COALESCE(SUM(CASE WHEN issue_date >= ? AND issue_date < ? THEN 1 ELSE 0 END), 0) AS loans_today,
			COALESCE(SUM(CASE WHEN return_date >= ? AND return_date < ? THEN 1 ELSE 0 END), 0) AS returns_today,
			COALESCE(SUM(CASE WHEN status = ? THEN 1 ELSE 0 END), 0) AS active_loans,
			COALESCE(SUM(CASE WHEN status = ? AND due_date < ? THEN 1 ELSE 0 END), 0) AS overdue_loans
		FROM loans`),
		dayStart, dayEnd, dayStart, dayEnd, string(StatusActive), string(StatusActive), now.UTC())
	if err != nil {
		return nil, fmt.Errorf("loan stats: %w", err)
	}
	return &st, nil
}

func (s *store) count(ctx context.Context) (int64, error) {
	var n int64
	if err := s.db.GetContext(ctx, &n, `SELECT COUNT(*) FROM loans`); err != nil {
		return 0, fmt.Errorf("count loans: %w", err)
	}
	return n, nil
}

const selectReconciliation = `SELECT id, saga_id, loan_id, book_id, operation, attempts, last_error, created_at, resolved_at FROM reconciliations`

func (s *store) addReconciliation(ctx context.Context, rec *Reconciliation) error {
	err := s.db.QueryRowxContext(ctx, s.db.Rebind(`
		INSERT INTO reconciliations (saga_id, loan_id, book_id, operation, attempts, last_error, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		RETURNING id`),
		rec.SagaID, rec.LoanID, rec.BookID, rec.Operation, rec.Attempts, rec.LastError, rec.CreatedAt.UTC(),
	).Scan(&rec.ID)
	if err != nil {
		return fmt.Errorf("insert reconciliation: %w", err)
	}
	return nil
}

func (s *store) pendingReconciliations(ctx context.Context) ([]Reconciliation, error) {
	out := []Reconciliation{}
	err := s.db.SelectContext(ctx, &out, selectReconciliation+` WHERE resolved_at IS NULL ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("list reconciliations: %w", err)
	}
	return out, nil
}

func (s *store) resolveReconciliation(ctx context.Context, id int64, at time.Time, note string) error {
	_, err := s.db.ExecContext(ctx, s.db.Rebind(`
		UPDATE reconciliations SET resolved_at = ?, attempts = attempts + 1, last_error = ?
		WHERE id = ?`), at.UTC(), note, id)
	if err != nil {
		return fmt.Errorf("resolve reconciliation %d: %w", id, err)
	}
	return nil
}

func (s *store) failReconciliation(ctx context.Context, id int64, cause string) error {
	_, err := s.db.ExecContext(ctx, s.db.Rebind(`
		UPDATE reconciliations SET attempts = attempts + 1, last_error = ?
		WHERE id = ?`), cause, id)
	if err != nil {
		return fmt.Errorf("update reconciliation %d: %w", id, err)
	}
	return nil
}
