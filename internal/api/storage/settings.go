package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/cuongbtq/transfer-market/internal/apperr"
	"github.com/cuongbtq/transfer-market/internal/settings"
)

func (s *Storage) GetSettings(ctx context.Context) (*settings.Settings, error) {
	var cfg settings.Settings
	query := `
		SELECT enabled, commission_percentage, minimum_balance, cancellation_hours, updated_at
		FROM marketplace_settings
		WHERE key = $1
	`

	err := s.q(ctx).GetContext(ctx, &cfg, query, settings.Key)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperr.NotFound("marketplace settings %q not found", settings.Key)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get marketplace settings: %w", err)
	}

	return &cfg, nil
}

func (s *Storage) SaveSettings(ctx context.Context, cfg *settings.Settings) error {
	query := `
		INSERT INTO marketplace_settings (
			key, enabled, commission_percentage, minimum_balance, cancellation_hours, updated_at
		) VALUES (
			$1, $2, $3, $4, $5, $6
		)
		ON CONFLICT (key) DO UPDATE SET
			enabled = EXCLUDED.enabled,
			commission_percentage = EXCLUDED.commission_percentage,
			minimum_balance = EXCLUDED.minimum_balance,
			cancellation_hours = EXCLUDED.cancellation_hours,
			updated_at = EXCLUDED.updated_at
	`

	_, err := s.q(ctx).ExecContext(
		ctx,
		query,
		settings.Key,
		cfg.Enabled,
		cfg.CommissionPercentage,
		cfg.MinimumBalance,
		cfg.CancellationHours,
		cfg.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to save marketplace settings: %w", err)
	}
	return nil
}
