// Package sagalog is an append-only journal of saga steps. Each saga run is
// an aggregate identified by a UUID; entries carry a per-saga version checked
// optimistically on append.
package sagalog

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/muhaimeen90/Smart-Library-Distributed/internal/clock"
	"github.com/muhaimeen90/Smart-Library-Distributed/internal/database"
)

var (
	ErrConcurrencyConflict = errors.New("concurrency conflict: version mismatch")
	ErrInvalidVersion      = errors.New("invalid version number")
	ErrSagaNotFound        = errors.New("saga not found")
)

// Outcomes recorded for a step.
const (
	OutcomeOK          = "ok"
	OutcomeFailed      = "failed"
	OutcomeCompensated = "compensated"
)

// Schema creates the saga_log table.
var Schema = database.Schema{
	database.DriverPostgres: {`
		CREATE TABLE IF NOT EXISTS saga_log (
			id BIGSERIAL PRIMARY KEY,
			saga_id TEXT NOT NULL,
			saga TEXT NOT NULL,
			loan_id BIGINT,
			step TEXT NOT NULL,
			outcome TEXT NOT NULL,
			detail TEXT NOT NULL DEFAULT '',
			version INT NOT NULL,
			trace_id TEXT NOT NULL DEFAULT '',
			created_at TIMESTAMPTZ NOT NULL,
			UNIQUE (saga_id, version)
		)`,
		`CREATE INDEX IF NOT EXISTS saga_log_loan_id_idx ON saga_log (loan_id)`,
	},
	database.DriverSQLite: {`
		CREATE TABLE IF NOT EXISTS saga_log (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			saga_id TEXT NOT NULL,
			saga TEXT NOT NULL,
			loan_id INTEGER,
			step TEXT NOT NULL,
			outcome TEXT NOT NULL,
			detail TEXT NOT NULL DEFAULT '',
			version INTEGER NOT NULL,
			trace_id TEXT NOT NULL DEFAULT '',
			created_at DATETIME NOT NULL,
			UNIQUE (saga_id, version)
		)`,
		`CREATE INDEX IF NOT EXISTS saga_log_loan_id_idx ON saga_log (loan_id)`,
	},
}

// Entry is one journaled step.
type Entry struct {
	ID        int64     `json:"id" db:"id"`
	SagaID    string    `json:"saga_id" db:"saga_id"`
	Saga      string    `json:"saga" db:"saga"`
	LoanID    *int64    `json:"loan_id,omitempty" db:"loan_id"`
	Step      string    `json:"step" db:"step"`
	Outcome   string    `json:"outcome" db:"outcome"`
	Detail    string    `json:"detail" db:"detail"`
	Version   int       `json:"version" db:"version"`
	TraceID   string    `json:"trace_id,omitempty" db:"trace_id"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
}

// Store reads and writes the journal.
type Store struct {
	db     *database.DB
	tracer trace.Tracer
	clock  clock.Clock
}

func NewStore(db *database.DB, c clock.Clock) *Store {
	if c == nil {
		c = clock.Real{}
	}
	return &Store{
		db:     db,
		tracer: otel.Tracer("github.com/muhaimeen90/Smart-Library-Distributed/internal/sagalog"),
		clock:  c,
	}
}

func (s *Store) txOptions() *sql.TxOptions {
	if s.db.Driver() == database.DriverPostgres {
		return &sql.TxOptions{Isolation: sql.LevelSerializable}
	}
	return nil
}

// Append atomically appends entries to saga sagaID, which must currently be
// at expectedVersion.
func (s *Store) Append(ctx context.Context, sagaID uuid.UUID, expectedVersion int, entries []Entry) error {
	ctx, span := s.tracer.Start(ctx, "sagalog.append",
		trace.WithAttributes(
			attribute.String("saga.id", sagaID.String()),
			attribute.Int("expected.version", expectedVersion),
			attribute.Int("entry.count", len(entries)),
		),
	)
	defer span.End()

	if expectedVersion < 0 {
		return ErrInvalidVersion
	}

	tx, err := s.db.BeginTxx(ctx, s.txOptions())
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	var current int
	err = tx.GetContext(ctx, &current, s.db.Rebind(`SELECT COALESCE(MAX(version), 0) FROM saga_log WHERE saga_id = ?`), sagaID.String())
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("query current version: %w", err)
	}
	if current != expectedVersion {
		span.SetAttributes(
			attribute.Int("actual.version", current),
			attribute.Bool("conflict.detected", true),
		)
		return ErrConcurrencyConflict
	}

	insert := s.db.Rebind(`
		INSERT INTO saga_log (saga_id, saga, loan_id, step, outcome, detail, version, trace_id, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		RETURNING id`)
	traceID := ""
	if sc := trace.SpanContextFromContext(ctx); sc.HasTraceID() {
		traceID = sc.TraceID().String()
	}

	for i, e := range entries {
		version := expectedVersion + i + 1
		var id int64
		err := tx.QueryRowxContext(ctx, insert,
			sagaID.String(), e.Saga, e.LoanID, e.Step, e.Outcome, e.Detail, version, traceID, s.clock.Now(),
		).Scan(&id)
		if err != nil {
			if database.IsUniqueViolation(err) {
				return ErrConcurrencyConflict
			}
			return fmt.Errorf("insert entry %d: %w", i, err)
		}
		span.AddEvent("entry.appended", trace.WithAttributes(
			attribute.Int64("entry.id", id),
			attribute.Int("entry.version", version),
			attribute.String("entry.step", e.Step),
		))
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

const selectEntries = `SELECT id, saga_id, saga, loan_id, step, outcome, detail, version, trace_id, created_at FROM saga_log`

// Load returns the entries of one saga between the versions, inclusive. A
// toVersion of 0 means no upper bound.
func (s *Store) Load(ctx context.Context, sagaID uuid.UUID, fromVersion, toVersion int) ([]Entry, error) {
	ctx, span := s.tracer.Start(ctx, "sagalog.load",
		trace.WithAttributes(
			attribute.String("saga.id", sagaID.String()),
			attribute.Int("from.version", fromVersion),
			attribute.Int("to.version", toVersion),
		),
	)
	defer span.End()

	query := selectEntries + ` WHERE saga_id = ? AND version >= ?`
	args := []any{sagaID.String(), fromVersion}
	if toVersion > 0 {
		query += ` AND version <= ?`
		args = append(args, toVersion)
	}
	query += ` ORDER BY version ASC`

	var entries []Entry
	if err := s.db.SelectContext(ctx, &entries, s.db.Rebind(query), args...); err != nil {
		return nil, fmt.Errorf("query entries: %w", err)
	}
	span.SetAttributes(attribute.Int("entries.loaded", len(entries)))
	return entries, nil
}

// CurrentVersion returns the latest version of a saga, 0 if it has none.
func (s *Store) CurrentVersion(ctx context.Context, sagaID uuid.UUID) (int, error) {
	ctx, span := s.tracer.Start(ctx, "sagalog.current_version",
		trace.WithAttributes(attribute.String("saga.id", sagaID.String())),
	)
	defer span.End()

	var version int
	err := s.db.GetContext(ctx, &version, s.db.Rebind(`SELECT COALESCE(MAX(version), 0) FROM saga_log WHERE saga_id = ?`), sagaID.String())
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return 0, fmt.Errorf("query version: %w", err)
	}
	return version, nil
}

// ForLoan returns every entry tagged with loanID in append order.
func (s *Store) ForLoan(ctx context.Context, loanID int64) ([]Entry, error) {
	ctx, span := s.tracer.Start(ctx, "sagalog.for_loan",
		trace.WithAttributes(attribute.Int64("loan.id", loanID)),
	)
	defer span.End()

	var entries []Entry
	err := s.db.SelectContext(ctx, &entries, s.db.Rebind(selectEntries+` WHERE saga_id IN (SELECT saga_id FROM saga_log WHERE loan_id = ?) ORDER BY id ASC`), loanID)
	if err != nil {
		return nil, fmt.Errorf("query loan entries: %w", err)
	}
	return entries, nil
}

// Stream returns up to batchSize entries with id greater than fromID.
func (s *Store) Stream(ctx context.Context, fromID int64, batchSize int) ([]Entry, error) {
	ctx, span := s.tracer.Start(ctx, "sagalog.stream",
		trace.WithAttributes(
			attribute.Int64("from.id", fromID),
			attribute.Int("batch.size", batchSize),
		),
	)
	defer span.End()

	var entries []Entry
	if err := s.db.SelectContext(ctx, &entries, s.db.Rebind(selectEntries+` WHERE id > ? ORDER BY id ASC LIMIT ?`), fromID, batchSize); err != nil {
		return nil, fmt.Errorf("query entry stream: %w", err)
	}
	span.SetAttributes(attribute.Int("entries.streamed", len(entries)))
	return entries, nil
}
