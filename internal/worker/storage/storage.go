package storage

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/cuongbtq/transfer-market/internal/events"
	"github.com/cuongbtq/transfer-market/shared/postgresql"
)

// Storage writes the job activity feed
type Storage struct {
	pg     *postgresql.Client
	logger *slog.Logger
}

// NewStorage creates a new Storage instance
func NewStorage(pg *postgresql.Client, logger *slog.Logger) *Storage {
	return &Storage{
		pg:     pg,
		logger: logger,
	}
}

// RecordEvent appends an event to job_events. It reports false when the
// event id was already recorded, which happens on broker redelivery.
func (s *Storage) RecordEvent(ctx context.Context, e *events.Event) (bool, error) {
	query := `
		INSERT INTO job_events (event_id, type, job_id, topup_id, status, actor_id, seller_id, buyer_id, occurred_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (event_id) DO NOTHING
	`

	result, err := s.pg.Conn(ctx).ExecContext(ctx, query,
		e.ID,
		string(e.Type),
		nullable(e.JobID),
		nullable(e.TopupID),
		e.Status,
		e.ActorID,
		nullable(e.SellerID),
		nullable(e.BuyerID),
		e.OccurredAt,
	)
	if err != nil {
		return false, fmt.Errorf("failed to record event: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get rows affected: %w", err)
	}

	if rowsAffected == 0 {
		s.logger.Debug("Event already recorded", slog.String("event_id", e.ID))
		return false, nil
	}
	return true, nil
}

func nullable(v string) any {
	if v == "" {
		return nil
	}
	return v
}
