// internal/loans/saga.go
package loans

import (
	"context"
	"strconv"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/muhaimeen90/Smart-Library-Distributed/internal/books"
	"github.com/muhaimeen90/Smart-Library-Distributed/internal/clients"
	"github.com/muhaimeen90/Smart-Library-Distributed/internal/events"
	"github.com/muhaimeen90/Smart-Library-Distributed/internal/sagalog"
)

// Saga and step names written to the journal.
const (
	sagaIssue  = "issue"
	sagaReturn = "return"
	sagaExtend = "extend"

	stepValidateUser = "validate_user"
	stepValidateBook = "validate_book"
	stepReserveCopy  = "reserve_copy"
	stepCommit       = "commit_loan"
	stepReleaseCopy  = "release_copy"
	stepReconcile    = "record_reconciliation"
	stepReconciled   = "reconcile_copy"
)

// ReturnWarning annotates a return whose availability update failed.
const ReturnWarning = "Loan was marked as returned, but there was an error updating book availability"

func (s *service) startSpan(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	return s.tracer.Start(ctx, name, trace.WithAttributes(attrs...))
}

func endSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}

// IssueLoan checks the user, checks and reserves a copy of the book, then
// records the loan. Each step runs only once the previous one succeeded, and
// no loan is written unless the reservation went through.
func (s *service) IssueLoan(ctx context.Context, req IssueRequest) (loan *Loan, err error) {
	if !s.rateLimiter.Allow() {
		return nil, ErrRateLimited
	}

	ctx, span := s.startSpan(ctx, "loans.issue",
		attribute.Int64("user.id", req.UserID),
		attribute.Int64("book.id", req.BookID),
	)
	defer func() { endSpan(span, err) }()

	saga := s.journal.Begin(sagaIssue, s.logger)
	log := s.logger.With().
		Str("saga_id", saga.ID().String()).
		Int64("user_id", req.UserID).
		Int64("book_id", req.BookID).
		Logger()

	if _, err := s.users.GetUser(ctx, req.UserID); err != nil {
		saga.Record(ctx, stepValidateUser, sagalog.OutcomeFailed, err.Error())
		if clients.IsNotFound(err) {
			return nil, ErrUserNotFound
		}
		return nil, &UnavailableError{Message: "User Service unavailable", Err: err}
	}
	saga.Record(ctx, stepValidateUser, sagalog.OutcomeOK, "")

	book, err := s.books.GetBook(ctx, req.BookID)
	if err != nil {
		saga.Record(ctx, stepValidateBook, sagalog.OutcomeFailed, err.Error())
		if clients.IsNotFound(err) {
			return nil, ErrBookNotFound
		}
		return nil, &UnavailableError{Message: "Book Service unavailable", Err: err}
	}
	if book.AvailableCopies <= 0 {
		saga.Record(ctx, stepValidateBook, sagalog.OutcomeFailed, "no available copies")
		return nil, ErrNoCopies
	}
	saga.Record(ctx, stepValidateBook, sagalog.OutcomeOK, "available_copies="+strconv.Itoa(book.AvailableCopies))

	if _, err := s.books.UpdateAvailability(ctx, req.BookID, books.OperationDecrement); err != nil {
		saga.Record(ctx, stepReserveCopy, sagalog.OutcomeFailed, err.Error())
		return nil, &UnavailableError{Message: "Failed to update book availability", Err: err}
	}
	saga.Record(ctx, stepReserveCopy, sagalog.OutcomeOK, "")

	now := s.clock.Now()
	loan = &Loan{
		UserID:    req.UserID,
		BookID:    req.BookID,
		IssueDate: now,
		DueDate:   req.DueDate,
		Status:    StatusActive,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.store.create(ctx, loan); err != nil {
		saga.Record(ctx, stepCommit, sagalog.OutcomeFailed, err.Error())
		log.Error().Err(err).Msg("loan write failed after reserving a copy, releasing it")
		s.releaseCopy(ctx, saga, nil, req.BookID, err)
		return nil, err
	}
	saga.SetLoan(loan.ID)
	saga.Record(ctx, stepCommit, sagalog.OutcomeOK, "")

	log.Info().Int64("loan_id", loan.ID).Time("due_date", loan.DueDate).Msg("loan issued")
	s.publish(ctx, events.LoanIssued, loan)
	return loan, nil
}

// releaseCopy gives a reserved copy back to the book service. When that
// fails too the increment is parked for reconciliation.
func (s *service) releaseCopy(ctx context.Context, saga *sagalog.Saga, loanID *int64, bookID int64, cause error) {
	ctx, cancel := followUp(ctx)
	defer cancel()

	_, err := s.books.UpdateAvailability(ctx, bookID, books.OperationIncrement)
	if err == nil {
		saga.Record(ctx, stepReleaseCopy, sagalog.OutcomeCompensated, cause.Error())
		return
	}
	saga.Record(ctx, stepReleaseCopy, sagalog.OutcomeFailed, err.Error())
	s.park(ctx, saga, loanID, bookID, err)
}

// park records an increment the book service still owes.
func (s *service) park(ctx context.Context, saga *sagalog.Saga, loanID *int64, bookID int64, cause error) {
	rec := &Reconciliation{
		LoanID:    loanID,
		BookID:    bookID,
		Operation: string(books.OperationIncrement),
		LastError: cause.Error(),
		CreatedAt: s.clock.Now(),
	}
	if saga != nil {
		rec.SagaID = saga.ID().String()
	}
	if err := s.store.addReconciliation(ctx, rec); err != nil {
		saga.Record(ctx, stepReconcile, sagalog.OutcomeFailed, err.Error())
		s.logger.Error().Err(err).AnErr("cause", cause).Int64("book_id", bookID).
			Msg("could not record pending availability increment; book count needs manual repair")
		return
	}
	saga.Record(ctx, stepReconcile, sagalog.OutcomeOK, "reconciliation="+strconv.FormatInt(rec.ID, 10))
	s.logger.Warn().Err(cause).Int64("book_id", bookID).Int64("reconciliation_id", rec.ID).
		Msg("availability increment pending reconciliation")
}

// ReturnLoan marks an active loan returned and then tells the book service.
// The local change stands even when the book service cannot be reached.
func (s *service) ReturnLoan(ctx context.Context, loanID int64) (out *ReturnedLoan, err error) {
	ctx, span := s.startSpan(ctx, "loans.return", attribute.Int64("loan.id", loanID))
	defer func() { endSpan(span, err) }()

	loan, err := s.store.get(ctx, loanID)
	if err != nil {
		return nil, err
	}
	if loan.Status != StatusActive {
		return nil, ErrAlreadyReturned
	}

	saga := s.journal.Begin(sagaReturn, s.logger)
	saga.SetLoan(loanID)

	returned, err := s.store.markReturned(ctx, loanID, s.clock.Now())
	if err != nil {
		saga.Record(ctx, stepCommit, sagalog.OutcomeFailed, err.Error())
		return nil, err
	}
	saga.Record(ctx, stepCommit, sagalog.OutcomeOK, "")
	out = &ReturnedLoan{Loan: *returned}

	fctx, cancel := followUp(ctx)
	defer cancel()
	if _, err := s.books.UpdateAvailability(fctx, returned.BookID, books.OperationIncrement); err != nil {
		saga.Record(fctx, stepReleaseCopy, sagalog.OutcomeFailed, err.Error())
		s.logger.Error().Err(err).Int64("loan_id", loanID).Int64("book_id", returned.BookID).
			Msg("failed to update book availability after return")
		s.park(fctx, saga, &returned.ID, returned.BookID, err)
		out.Warning = ReturnWarning
	} else {
		saga.Record(fctx, stepReleaseCopy, sagalog.OutcomeOK, "")
	}

	s.logger.Info().Int64("loan_id", loanID).Int64("book_id", returned.BookID).Msg("loan returned")
	s.publish(fctx, events.LoanReturned, returned)
	return out, nil
}

// ExtendLoan pushes an active loan's due date back by days.
func (s *service) ExtendLoan(ctx context.Context, loanID int64, days int) (out *Extension, err error) {
	ctx, span := s.startSpan(ctx, "loans.extend",
		attribute.Int64("loan.id", loanID),
		attribute.Int("extension.days", days),
	)
	defer func() { endSpan(span, err) }()

	if days <= 0 {
		return nil, ErrExtensionDays
	}

	for {
		loan, err := s.store.get(ctx, loanID)
		if err != nil {
			return nil, err
		}
		if loan.Status != StatusActive {
			return nil, ErrNotExtendable
		}
		if loan.ExtensionsCount >= MaxExtensions {
			return nil, ErrExtensionLimit
		}

		due := loan.DueDate.AddDate(0, 0, days)
		ok, err := s.store.extend(ctx, loan, due, s.clock.Now())
		if err != nil {
			return nil, err
		}
		if !ok {
			// Changed underneath us; re-read and re-check.
			continue
		}

		saga := s.journal.Begin(sagaExtend, s.logger)
		saga.SetLoan(loanID)
		saga.Record(ctx, stepCommit, sagalog.OutcomeOK, "days="+strconv.Itoa(days))

		loan.ExtensionsCount++
		out = &Extension{
			ID:              loan.ID,
			UserID:          loan.UserID,
			BookID:          loan.BookID,
			IssueDate:       loan.IssueDate,
			OriginalDueDate: loan.DueDate,
			ExtendedDueDate: due,
			Status:          loan.Status,
			ExtensionsCount: loan.ExtensionsCount,
		}
		loan.DueDate = due
		s.publish(ctx, events.LoanExtended, loan)
		return out, nil
	}
}
