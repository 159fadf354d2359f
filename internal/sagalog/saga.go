package sagalog

import (
	"context"
	"sync"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Saga journals the steps of one saga run. Recording is best effort: a
// failed append is logged and the run carries on. A nil *Saga records
// nothing.
type Saga struct {
	store  *Store
	logger zerolog.Logger
	id     uuid.UUID
	name   string

	mu      sync.Mutex
	version int
	loanID  *int64
}

// Begin starts a journal for a new run of the named saga. It returns nil
// when s is nil.
func (s *Store) Begin(name string, logger zerolog.Logger) *Saga {
	if s == nil {
		return nil
	}
	id := uuid.New()
	return &Saga{
		store:  s,
		logger: logger.With().Str("saga", name).Str("saga_id", id.String()).Logger(),
		id:     id,
		name:   name,
	}
}

// Resume reopens a recorded run so that later steps continue its version
// sequence. It returns nil when s is nil and ErrSagaNotFound when the run has
// no entries.
func (s *Store) Resume(ctx context.Context, id uuid.UUID, logger zerolog.Logger) (*Saga, error) {
	if s == nil {
		return nil, nil
	}
	version, err := s.CurrentVersion(ctx, id)
	if err != nil {
		return nil, err
	}
	if version == 0 {
		return nil, ErrSagaNotFound
	}
	last, err := s.Load(ctx, id, version, version)
	if err != nil {
		return nil, err
	}
	if len(last) == 0 {
		return nil, ErrSagaNotFound
	}
	return &Saga{
		store:   s,
		logger:  logger.With().Str("saga", last[0].Saga).Str("saga_id", id.String()).Logger(),
		id:      id,
		name:    last[0].Saga,
		version: version,
		loanID:  last[0].LoanID,
	}, nil
}

// ID returns the correlation id of the run.
func (sg *Saga) ID() uuid.UUID {
	if sg == nil {
		return uuid.Nil
	}
	return sg.id
}

// SetLoan tags this and later entries with the loan they concern.
func (sg *Saga) SetLoan(id int64) {
	if sg == nil {
		return
	}
	sg.mu.Lock()
	sg.loanID = &id
	sg.mu.Unlock()
}

// Record appends one step.
func (sg *Saga) Record(ctx context.Context, step, outcome, detail string) {
	if sg == nil {
		return
	}
	sg.mu.Lock()
	defer sg.mu.Unlock()

	entry := Entry{Saga: sg.name, LoanID: sg.loanID, Step: step, Outcome: outcome, Detail: detail}
	if err := sg.store.Append(ctx, sg.id, sg.version, []Entry{entry}); err != nil {
		sg.logger.Warn().Err(err).Str("step", step).Str("outcome", outcome).Msg("saga journal append failed")
		return
	}
	sg.version++
}
