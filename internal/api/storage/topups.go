package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/cuongbtq/transfer-market/internal/apperr"
	"github.com/cuongbtq/transfer-market/internal/topup"
)

const topupColumns = `id, user_id, amount, reference, status, reviewed_by, review_note, created_at, reviewed_at`

func (s *Storage) InsertTopup(ctx context.Context, t *topup.Topup) error {
	query := `
		INSERT INTO topups (id, user_id, amount, reference, status, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`

	_, err := s.q(ctx).ExecContext(ctx, query, t.ID, t.UserID, t.Amount, t.Reference, t.Status, t.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to create topup: %w", err)
	}
	return nil
}

func (s *Storage) GetTopup(ctx context.Context, id string) (*topup.Topup, error) {
	var t topup.Topup
	err := s.q(ctx).GetContext(ctx, &t, `SELECT `+topupColumns+` FROM topups WHERE id = $1`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperr.NotFound("topup %s not found", id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get topup: %w", err)
	}
	return &t, nil
}

func (s *Storage) ListTopups(ctx context.Context, filter topup.Filter) ([]topup.Topup, error) {
	query := `SELECT ` + topupColumns + ` FROM topups WHERE 1=1`
	args := []interface{}{}
	argIdx := 1

	if filter.UserID != "" {
		query += fmt.Sprintf(" AND user_id = $%d", argIdx)
		args = append(args, filter.UserID)
		argIdx++
	}

	if filter.Status != "" {
		query += fmt.Sprintf(" AND status = $%d", argIdx)
		args = append(args, filter.Status)
		argIdx++
	}

	query += fmt.Sprintf(" ORDER BY created_at DESC LIMIT $%d", argIdx)
	args = append(args, filter.PageSize)

	var topups []topup.Topup
	if err := s.q(ctx).SelectContext(ctx, &topups, query, args...); err != nil {
		return nil, fmt.Errorf("failed to list topups: %w", err)
	}
	return topups, nil
}

func (s *Storage) MarkReviewed(ctx context.Context, id string, status topup.Status, reviewer string, note *string, at time.Time) (*topup.Topup, error) {
	var t topup.Topup
	query := `
		UPDATE topups
		SET status = $2, reviewed_by = $3, review_note = $4, reviewed_at = $5
		WHERE id = $1 AND status = 'pending'
		RETURNING ` + topupColumns

	err := s.q(ctx).GetContext(ctx, &t, query, id, status, reviewer, note, at)
	if err == nil {
		return &t, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("failed to review topup: %w", err)
	}

	if _, err := s.GetTopup(ctx, id); err != nil {
		return nil, err
	}
	return nil, topup.ErrAlreadyReviewed
}
