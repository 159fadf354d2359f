// internal/loans/query.go
package loans

import (
	"context"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"github.com/muhaimeen90/Smart-Library-Distributed/internal/books"
	"github.com/muhaimeen90/Smart-Library-Distributed/internal/clients"
	"github.com/muhaimeen90/Smart-Library-Distributed/internal/users"
)

// Placeholders shown in listings when the book service cannot describe a
// book.
const (
	UnavailableTitle  = "Book information unavailable"
	UnavailableAuthor = "Unknown"
)

// Lookup is the outcome of fetching one remote record: either Value is set
// or the record is Unavailable and only its ID is known.
type Lookup[T any] struct {
	ID          int64
	Value       *T
	Unavailable bool
}

// fetchAll looks up each distinct id once, at most limit at a time. A failed
// lookup is logged and yields an Unavailable result; it never fails the batch.
func fetchAll[T any](ctx context.Context, ids []int64, limit int, fetch func(context.Context, int64) (*T, error), onError func(id int64, err error)) map[int64]Lookup[T] {
	out := make(map[int64]Lookup[T], len(ids))
	distinct := make([]int64, 0, len(ids))
	for _, id := range ids {
		if _, seen := out[id]; !seen {
			out[id] = Lookup[T]{ID: id, Unavailable: true}
			distinct = append(distinct, id)
		}
	}

	var (
		mu  sync.Mutex
		wg  sync.WaitGroup
		sem = make(chan struct{}, limit)
	)
	for _, id := range distinct {
		wg.Add(1)
		sem <- struct{}{}
		go func(id int64) {
			defer wg.Done()
			defer func() { <-sem }()

			v, err := fetch(ctx, id)
			if err != nil {
				onError(id, err)
				return
			}
			mu.Lock()
			out[id] = Lookup[T]{ID: id, Value: v}
			mu.Unlock()
		}(id)
	}
	wg.Wait()
	return out
}

func (s *service) lookupBooks(ctx context.Context, ids []int64) map[int64]Lookup[books.Book] {
	return fetchAll(ctx, ids, s.lookups, s.books.GetBook, func(id int64, err error) {
		s.logger.Error().Err(err).Int64("book_id", id).Msg("book lookup failed, using placeholder")
	})
}

func (s *service) lookupUsers(ctx context.Context, ids []int64) map[int64]Lookup[users.User] {
	return fetchAll(ctx, ids, s.lookups, s.users.GetUser, func(id int64, err error) {
		s.logger.Error().Err(err).Int64("user_id", id).Msg("user lookup failed, using id only")
	})
}

// listingBook fills in placeholder text for an unavailable book.
func listingBook(l Lookup[books.Book]) BookSummary {
	if l.Unavailable {
		return BookSummary{ID: l.ID, Title: UnavailableTitle, Author: UnavailableAuthor}
	}
	return BookSummary{ID: l.Value.ID, Title: l.Value.Title, Author: l.Value.Author}
}

// detailBook keeps only the id of an unavailable book.
func detailBook(l Lookup[books.Book]) BookSummary {
	if l.Unavailable {
		return BookSummary{ID: l.ID}
	}
	return BookSummary{ID: l.Value.ID, Title: l.Value.Title, Author: l.Value.Author}
}

func detailUser(l Lookup[users.User]) UserSummary {
	if l.Unavailable {
		return UserSummary{ID: l.ID}
	}
	return UserSummary{ID: l.Value.ID, Name: l.Value.Name, Email: l.Value.Email}
}

// UserLoans lists a user's loans with book details merged in. Only a remote
// 404 for the user fails the call; an unreachable user service is ignored.
func (s *service) UserLoans(ctx context.Context, userID int64) (out *UserLoans, err error) {
	ctx, span := s.startSpan(ctx, "loans.user_loans", attribute.Int64("user.id", userID))
	defer func() { endSpan(span, err) }()

	if _, err := s.users.GetUser(ctx, userID); err != nil {
		if clients.IsNotFound(err) {
			return nil, ErrUserNotFound
		}
		s.logger.Error().Err(err).Int64("user_id", userID).Msg("user check failed, listing loans anyway")
	}

	list, err := s.store.byUser(ctx, userID)
	if err != nil {
		return nil, err
	}

	ids := make([]int64, 0, len(list))
	for _, l := range list {
		ids = append(ids, l.BookID)
	}
	found := s.lookupBooks(ctx, ids)

	now := s.clock.Now()
	out = &UserLoans{Loans: make([]LoanSummary, 0, len(list)), Total: len(list)}
	for i := range list {
		l := &list[i]
		out.Loans = append(out.Loans, LoanSummary{
			ID:         l.ID,
			Book:       listingBook(found[l.BookID]),
			IssueDate:  l.IssueDate,
			DueDate:    l.DueDate,
			ReturnDate: l.ReturnDate,
			Status:     l.Status,
			Overdue:    l.Overdue(now),
		})
	}
	return out, nil
}

// LoanDetail returns one loan with whatever user and book fields could be
// fetched.
func (s *service) LoanDetail(ctx context.Context, loanID int64) (out *LoanDetail, err error) {
	ctx, span := s.startSpan(ctx, "loans.detail", attribute.Int64("loan.id", loanID))
	defer func() { endSpan(span, err) }()

	loan, err := s.store.get(ctx, loanID)
	if err != nil {
		return nil, err
	}

	var (
		wg   sync.WaitGroup
		user map[int64]Lookup[users.User]
		book map[int64]Lookup[books.Book]
	)
	wg.Add(2)
	go func() {
		defer wg.Done()
		user = s.lookupUsers(ctx, []int64{loan.UserID})
	}()
	go func() {
		defer wg.Done()
		book = s.lookupBooks(ctx, []int64{loan.BookID})
	}()
	wg.Wait()

	return &LoanDetail{
		ID:              loan.ID,
		User:            detailUser(user[loan.UserID]),
		Book:            detailBook(book[loan.BookID]),
		IssueDate:       loan.IssueDate,
		DueDate:         loan.DueDate,
		ReturnDate:      loan.ReturnDate,
		Status:          loan.Status,
		ExtensionsCount: loan.ExtensionsCount,
		Overdue:         loan.Overdue(s.clock.Now()),
	}, nil
}

// OverdueLoans lists active loans past their due date, most overdue first.
func (s *service) OverdueLoans(ctx context.Context) (out []OverdueLoan, err error) {
	ctx, span := s.startSpan(ctx, "loans.overdue")
	defer func() { endSpan(span, err) }()

	now := s.clock.Now()
	list, err := s.store.overdue(ctx, now)
	if err != nil {
		return nil, err
	}

	userIDs := make([]int64, 0, len(list))
	bookIDs := make([]int64, 0, len(list))
	for _, l := range list {
		userIDs = append(userIDs, l.UserID)
		bookIDs = append(bookIDs, l.BookID)
	}

	var (
		wg        sync.WaitGroup
		userFound map[int64]Lookup[users.User]
		bookFound map[int64]Lookup[books.Book]
	)
	wg.Add(2)
	go func() {
		defer wg.Done()
		userFound = s.lookupUsers(ctx, userIDs)
	}()
	go func() {
		defer wg.Done()
		bookFound = s.lookupBooks(ctx, bookIDs)
	}()
	wg.Wait()

	out = make([]OverdueLoan, 0, len(list))
	for _, l := range list {
		out = append(out, OverdueLoan{
			ID:          l.ID,
			User:        detailUser(userFound[l.UserID]),
			Book:        listingBook(bookFound[l.BookID]),
			IssueDate:   l.IssueDate,
			DueDate:     l.DueDate,
			DaysOverdue: int(now.Sub(l.DueDate) / (24 * time.Hour)),
		})
	}
	return out, nil
}
