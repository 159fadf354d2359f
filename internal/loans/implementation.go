// internal/loans/implementation.go
package loans

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/time/rate"

	"github.com/muhaimeen90/Smart-Library-Distributed/internal/clock"
	"github.com/muhaimeen90/Smart-Library-Distributed/internal/database"
	"github.com/muhaimeen90/Smart-Library-Distributed/internal/events"
	"github.com/muhaimeen90/Smart-Library-Distributed/internal/sagalog"
)

const (
	defaultLookupConcurrency = 8
	maxFeedPage              = 100
	// followUpTimeout bounds calls made after the caller's request is
	// committed, such as compensations.
	followUpTimeout = 10 * time.Second
)

// Options wires the service to its collaborators. Journal and Events are
// optional; a zero IssueLimit disables rate limiting of issuance.
type Options struct {
	Users   UserDirectory
	Books   BookCatalog
	Journal *sagalog.Store
	Events  events.Publisher
	Clock   clock.Clock
	Logger  zerolog.Logger

	IssueLimit        rate.Limit
	IssueBurst        int
	LookupConcurrency int
}

// service implements the Service interface.
type service struct {
	store       *store
	users       UserDirectory
	books       BookCatalog
	journal     *sagalog.Store
	events      events.Publisher
	clock       clock.Clock
	logger      zerolog.Logger
	tracer      trace.Tracer
	rateLimiter *rate.Limiter
	lookups     int
}

// NewService creates a new loan service instance.
func NewService(db *database.DB, opts Options) Service {
	c := opts.Clock
	if c == nil {
		c = clock.Real{}
	}
	pub := opts.Events
	if pub == nil {
		pub = events.Noop{}
	}
	limiter := rate.NewLimiter(rate.Inf, 0)
	if opts.IssueLimit > 0 {
		burst := opts.IssueBurst
		if burst <= 0 {
			burst = 1
		}
		limiter = rate.NewLimiter(opts.IssueLimit, burst)
	}
	lookups := opts.LookupConcurrency
	if lookups <= 0 {
		lookups = defaultLookupConcurrency
	}
	return &service{
		store:       &store{db: db},
		users:       opts.Users,
		books:       opts.Books,
		journal:     opts.Journal,
		events:      pub,
		clock:       c,
		logger:      opts.Logger,
		tracer:      otel.Tracer("github.com/muhaimeen90/Smart-Library-Distributed/internal/loans"),
		rateLimiter: limiter,
		lookups:     lookups,
	}
}

// followUp detaches ctx from the caller's cancellation so work that must
// happen after a commit is not cut short by a disconnect.
func followUp(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.WithoutCancel(ctx), followUpTimeout)
}

func (s *service) publish(ctx context.Context, eventType string, loan *Loan) {
	if err := s.events.Publish(ctx, eventType, loan); err != nil {
		s.logger.Error().Err(err).Str("event", eventType).Int64("loan_id", loan.ID).Msg("failed to publish loan event")
	}
}

// Journal returns the saga steps recorded against a loan.
func (s *service) Journal(ctx context.Context, loanID int64) ([]sagalog.Entry, error) {
	if _, err := s.store.get(ctx, loanID); err != nil {
		return nil, err
	}
	if s.journal == nil {
		return []sagalog.Entry{}, nil
	}
	entries, err := s.journal.ForLoan(ctx, loanID)
	if err != nil {
		return nil, fmt.Errorf("load journal of loan %d: %w", loanID, err)
	}
	return entries, nil
}

// SagaRun returns every step of one saga run, including runs that never
// produced a loan.
func (s *service) SagaRun(ctx context.Context, sagaID uuid.UUID) ([]sagalog.Entry, error) {
	if s.journal == nil {
		return nil, sagalog.ErrSagaNotFound
	}
	entries, err := s.journal.Load(ctx, sagaID, 1, 0)
	if err != nil {
		return nil, fmt.Errorf("load saga %s: %w", sagaID, err)
	}
	if len(entries) == 0 {
		return nil, sagalog.ErrSagaNotFound
	}
	return entries, nil
}

// JournalFeed pages through the whole journal in append order.
func (s *service) JournalFeed(ctx context.Context, afterID int64, limit int) ([]sagalog.Entry, error) {
	if s.journal == nil {
		return []sagalog.Entry{}, nil
	}
	if limit <= 0 || limit > maxFeedPage {
		limit = maxFeedPage
	}
	entries, err := s.journal.Stream(ctx, afterID, limit)
	if err != nil {
		return nil, fmt.Errorf("stream journal: %w", err)
	}
	if entries == nil {
		entries = []sagalog.Entry{}
	}
	return entries, nil
}

// Stats counts today's loans and returns along with the active and overdue
// totals.
func (s *service) Stats(ctx context.Context) (*Stats, error) {
	now := s.clock.Now()
	y, m, d := now.Date()
	return s.store.stats(ctx, time.Date(y, m, d, 0, 0, 0, 0, now.Location()), now)
}
