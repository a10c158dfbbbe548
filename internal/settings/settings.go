package settings

import (
	"context"
	"log/slog"
	"time"

	"github.com/cuongbtq/transfer-market/internal/apperr"
	"github.com/shopspring/decimal"
)

// Key identifies the singleton settings row
const Key = "marketplace_config"

var hundred = decimal.NewFromInt(100)

// Settings is the global marketplace configuration.
//
// CancellationHours is stored and exposed but no job transition reads it yet;
// the product rule it is meant to express has not been specified.
type Settings struct {
	Enabled              bool            `db:"enabled" json:"enabled"`
	CommissionPercentage decimal.Decimal `db:"commission_percentage" json:"commission_percentage"`
	MinimumBalance       decimal.Decimal `db:"minimum_balance" json:"minimum_balance"`
	CancellationHours    int             `db:"cancellation_hours" json:"cancellation_hours"`
	UpdatedAt            time.Time       `db:"updated_at" json:"updated_at"`
}

// Validate checks the admin-editable ranges
func (s *Settings) Validate() error {
	if s.CommissionPercentage.IsNegative() || s.CommissionPercentage.GreaterThan(hundred) {
		return apperr.Validation("commission_percentage must be between 0 and 100")
	}
	if s.MinimumBalance.IsNegative() {
		return apperr.Validation("minimum_balance must not be negative")
	}
	if s.CancellationHours < 0 {
		return apperr.Validation("cancellation_hours must not be negative")
	}
	return nil
}

// Store reads and writes the singleton row. GetSettings returns a not_found
// error when the row is missing.
type Store interface {
	GetSettings(ctx context.Context) (*Settings, error)
	SaveSettings(ctx context.Context, s *Settings) error
}

// Service is the admin write path and the read path used outside the engine
type Service struct {
	store  Store
	logger *slog.Logger
	now    func() time.Time
}

func NewService(store Store, logger *slog.Logger) *Service {
	return &Service{store: store, logger: logger, now: time.Now}
}

func (s *Service) Get(ctx context.Context) (*Settings, error) {
	return s.store.GetSettings(ctx)
}

// Update replaces the settings row. Only admins reach this through the router.
func (s *Service) Update(ctx context.Context, next Settings) (*Settings, error) {
	if err := next.Validate(); err != nil {
		return nil, err
	}
	next.CommissionPercentage = next.CommissionPercentage.Round(2)
	next.MinimumBalance = next.MinimumBalance.Round(2)
	next.UpdatedAt = s.now().UTC()

	if err := s.store.SaveSettings(ctx, &next); err != nil {
		return nil, err
	}

	s.logger.Info("Marketplace settings updated",
		slog.Bool("enabled", next.Enabled),
		slog.String("commission_percentage", next.CommissionPercentage.String()),
		slog.String("minimum_balance", next.MinimumBalance.StringFixed(2)),
		slog.Int("cancellation_hours", next.CancellationHours),
	)

	return &next, nil
}
