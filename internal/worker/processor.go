package worker

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/cuongbtq/transfer-market/internal/apperr"
	"github.com/cuongbtq/transfer-market/internal/events"
	"github.com/cuongbtq/transfer-market/internal/worker/domain"
)

// processEvent reconciles first and records last, so a requeued event that
// failed mid-way is not mistaken for a duplicate.
func (w *Worker) processEvent(ctx context.Context, msg *domain.EventMessage) error {
	e := msg.Event

	if w.eventTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, w.eventTimeout)
		defer cancel()
	}

	w.logger.Debug("Processing event",
		slog.String("event_id", e.ID),
		slog.String("type", string(e.Type)),
		slog.String("job_id", e.JobID),
	)

	if userID := reconcileTarget(e); userID != "" {
		if err := w.reconcile(ctx, e, userID); err != nil {
			w.metrics.ObserveEvent(string(e.Type), "error")
			return err
		}
	}

	inserted, err := w.store.RecordEvent(ctx, &e)
	if err != nil {
		w.metrics.ObserveEvent(string(e.Type), "error")
		return domain.NewRetryableError(err)
	}
	if !inserted {
		w.metrics.ObserveEvent(string(e.Type), "duplicate")
		return nil
	}

	w.metrics.ObserveEvent(string(e.Type), "ok")
	w.logger.Info("Event recorded",
		slog.String("event_id", e.ID),
		slog.String("type", string(e.Type)),
		slog.String("status", e.Status),
	)
	return nil
}

// reconcileTarget returns the user whose balance the event moved
func reconcileTarget(e events.Event) string {
	switch e.Type {
	case events.JobApproved, events.TopupApproved:
		return e.UserID
	}
	return ""
}

func (w *Worker) reconcile(ctx context.Context, e events.Event, userID string) error {
	rec, err := w.reconciler.Reconcile(ctx, userID)
	switch {
	case apperr.IsKind(err, apperr.KindNotFound), apperr.IsKind(err, apperr.KindValidation):
		w.logger.Warn("Cannot reconcile user",
			slog.String("event_id", e.ID),
			slog.String("user_id", userID),
			slog.String("error", err.Error()),
		)
		return nil
	case err != nil:
		return domain.NewRetryableError(fmt.Errorf("failed to reconcile %s: %w", userID, err))
	}

	if !rec.Balanced {
		w.metrics.ObserveEvent(string(e.Type), "unbalanced")
		w.logger.Error("Balance does not match ledger",
			slog.String("event_id", e.ID),
			slog.String("user_id", userID),
			slog.String("expected", rec.Expected.StringFixed(2)),
			slog.String("actual", rec.Actual.StringFixed(2)),
		)
	}
	return nil
}
