// internal/loans/reconciler.go
package loans

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/muhaimeen90/Smart-Library-Distributed/internal/books"
	"github.com/muhaimeen90/Smart-Library-Distributed/internal/clients"
	"github.com/muhaimeen90/Smart-Library-Distributed/internal/sagalog"
)

// PendingReconciliations lists availability changes still owed to the book
// service, oldest first.
func (s *service) PendingReconciliations(ctx context.Context) ([]Reconciliation, error) {
	return s.store.pendingReconciliations(ctx)
}

// Reconcile retries every pending increment once. A record the book service
// answers with a client error is dropped: the book is gone or already has
// every copy back, so retrying cannot succeed.
func (s *service) Reconcile(ctx context.Context) (*ReconcileReport, error) {
	pending, err := s.store.pendingReconciliations(ctx)
	if err != nil {
		return nil, err
	}

	report := &ReconcileReport{}
	for _, rec := range pending {
		if ctx.Err() != nil {
			break
		}
		report.Attempted++
		log := s.logger.With().Int64("reconciliation_id", rec.ID).Int64("book_id", rec.BookID).Logger()

		saga := s.resumeSaga(ctx, rec, log)

		_, callErr := s.books.UpdateAvailability(ctx, rec.BookID, books.Operation(rec.Operation))
		switch {
		case callErr == nil:
			if err := s.store.resolveReconciliation(ctx, rec.ID, s.clock.Now(), ""); err != nil {
				return report, err
			}
			report.Resolved++
			saga.Record(ctx, stepReconciled, sagalog.OutcomeCompensated, "")
			log.Info().Msg("availability reconciled")
		case clients.IsNotFound(callErr) || clients.IsRejected(callErr):
			if err := s.store.resolveReconciliation(ctx, rec.ID, s.clock.Now(), "dropped: "+callErr.Error()); err != nil {
				return report, err
			}
			report.Dropped++
			saga.Record(ctx, stepReconciled, sagalog.OutcomeFailed, "dropped: "+callErr.Error())
			log.Warn().Err(callErr).Msg("book service refused reconciliation, dropping it")
		default:
			if err := s.store.failReconciliation(ctx, rec.ID, callErr.Error()); err != nil {
				return report, err
			}
			report.Failed++
			saga.Record(ctx, stepReconciled, sagalog.OutcomeFailed, callErr.Error())
			log.Warn().Err(callErr).Int("attempts", rec.Attempts+1).Msg("reconciliation still pending")
		}
	}
	return report, nil
}

// resumeSaga reopens the run that parked rec so the retry lands in the same
// journal. A run that cannot be reopened is logged and skipped.
func (s *service) resumeSaga(ctx context.Context, rec Reconciliation, log zerolog.Logger) *sagalog.Saga {
	if s.journal == nil || rec.SagaID == "" {
		return nil
	}
	id, err := uuid.Parse(rec.SagaID)
	if err != nil {
		log.Warn().Err(err).Str("saga_id", rec.SagaID).Msg("reconciliation carries a malformed saga id")
		return nil
	}
	saga, err := s.journal.Resume(ctx, id, s.logger)
	if err != nil {
		log.Warn().Err(err).Str("saga_id", rec.SagaID).Msg("could not reopen saga journal")
		return nil
	}
	return saga
}

// RunReconciler calls Reconcile every interval until ctx is done.
func RunReconciler(ctx context.Context, svc Service, interval time.Duration, logger zerolog.Logger) {
	if interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	logger.Info().Dur("interval", interval).Msg("reconciler started")
	for {
		select {
		case <-ctx.Done():
			logger.Info().Msg("reconciler stopped")
			return
		case <-ticker.C:
			report, err := svc.Reconcile(ctx)
			if err != nil {
				logger.Error().Err(err).Msg("reconciliation pass failed")
				continue
			}
			if report.Attempted > 0 {
				logger.Info().
					Int("attempted", report.Attempted).
					Int("resolved", report.Resolved).
					Int("dropped", report.Dropped).
					Int("failed", report.Failed).
					Msg("reconciliation pass finished")
			}
		}
	}
}
