package topup

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/cuongbtq/transfer-market/internal/apperr"
	"github.com/cuongbtq/transfer-market/internal/auth"
	"github.com/cuongbtq/transfer-market/internal/events"
	"github.com/cuongbtq/transfer-market/internal/ledger"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Status of a manual bank-transfer top-up
type Status string

const (
	StatusPending  Status = "pending"
	StatusApproved Status = "approved"
	StatusRejected Status = "rejected"
)

func (s Status) IsValid() bool {
	return s == StatusPending || s == StatusApproved || s == StatusRejected
}

// ErrAlreadyReviewed is returned by MarkReviewed when the top-up is no longer pending
var ErrAlreadyReviewed = errors.New("topup already reviewed")

// Topup is a user's claim that they wired money to the company account
type Topup struct {
	ID         string          `db:"id" json:"id"`
	UserID     string          `db:"user_id" json:"user_id"`
	Amount     decimal.Decimal `db:"amount" json:"amount"`
	Reference  string          `db:"reference" json:"reference"`
	Status     Status          `db:"status" json:"status"`
	ReviewedBy *string         `db:"reviewed_by" json:"reviewed_by,omitempty"`
	ReviewNote *string         `db:"review_note" json:"review_note,omitempty"`
	CreatedAt  time.Time       `db:"created_at" json:"created_at"`
	ReviewedAt *time.Time      `db:"reviewed_at" json:"reviewed_at,omitempty"`
}

// Filter selects top-ups newest first
type Filter struct {
	UserID   string
	Status   Status
	PageSize int
}

// Store persists top-ups; balance writes go through the embedded ledger store
type Store interface {
	ledger.Store

	WithinTx(ctx context.Context, fn func(ctx context.Context) error) error
	InsertTopup(ctx context.Context, t *Topup) error
	GetTopup(ctx context.Context, id string) (*Topup, error)
	ListTopups(ctx context.Context, filter Filter) ([]Topup, error)
	// pending -> status; ErrAlreadyReviewed when not pending
	MarkReviewed(ctx context.Context, id string, status Status, reviewer string, note *string, at time.Time) (*Topup, error)
}

// Service runs the top-up approval workflow
type Service struct {
	store     Store
	ledger    *ledger.Ledger
	publisher events.Publisher
	logger    *slog.Logger
	now       func() time.Time
}

func NewService(store Store, publisher events.Publisher, logger *slog.Logger) *Service {
	if publisher == nil {
		publisher = events.Discard{}
	}
	return &Service{
		store:     store,
		ledger:    ledger.New(store, logger),
		publisher: publisher,
		logger:    logger,
		now:       time.Now,
	}
}

// Request records a pending top-up for the caller
func (s *Service) Request(ctx context.Context, actor auth.Actor, amount decimal.Decimal, reference string) (*Topup, error) {
	if actor.UserID == "" {
		return nil, apperr.Authorization("caller identity is required")
	}
	if !amount.IsPositive() {
		return nil, apperr.Validation("amount must be positive")
	}
	reference = strings.TrimSpace(reference)
	if reference == "" {
		return nil, apperr.Validation("reference is required")
	}

	t := &Topup{
		ID:        uuid.NewString(),
		UserID:    actor.UserID,
		Amount:    amount.Round(2),
		Reference: reference,
		Status:    StatusPending,
		CreatedAt: s.now().UTC(),
	}
	if err := s.store.InsertTopup(ctx, t); err != nil {
		return nil, classify(err, "failed to save topup")
	}

	s.logger.Info("Topup requested",
		slog.String("topup_id", t.ID),
		slog.String("user_id", t.UserID),
		slog.String("amount", t.Amount.StringFixed(2)),
	)
	s.publish(ctx, events.TopupRequested, actor, t)
	return t, nil
}

// Approve credits the user's balance and marks the top-up approved in one transaction
func (s *Service) Approve(ctx context.Context, admin auth.Actor, id string) (*Topup, error) {
	if !admin.IsAdmin() {
		return nil, apperr.Authorization("only admins can review topups")
	}

	var approved *Topup
	err := s.store.WithinTx(ctx, func(ctx context.Context) error {
		t, err := s.review(ctx, admin, id, StatusApproved, nil)
		if err != nil {
			return err
		}

		_, err = s.ledger.Fund(ctx, ledger.Entry{
			UserID:      t.UserID,
			Amount:      t.Amount,
			Type:        ledger.TxTypeTopup,
			Description: fmt.Sprintf("Bank transfer top-up %s", t.Reference),
		})
		if err != nil {
			return err
		}
		approved = t
		return nil
	})
	if err != nil {
		return nil, classify(err, "failed to approve topup")
	}

	s.logger.Info("Topup approved",
		slog.String("topup_id", approved.ID),
		slog.String("user_id", approved.UserID),
		slog.String("admin_id", admin.UserID),
	)
	s.publish(ctx, events.TopupApproved, admin, approved)
	return approved, nil
}

// Reject closes a pending top-up without moving money
func (s *Service) Reject(ctx context.Context, admin auth.Actor, id, note string) (*Topup, error) {
	if !admin.IsAdmin() {
		return nil, apperr.Authorization("only admins can review topups")
	}

	var notePtr *string
	if note = strings.TrimSpace(note); note != "" {
		notePtr = &note
	}

	rejected, err := s.review(ctx, admin, id, StatusRejected, notePtr)
	if err != nil {
		return nil, classify(err, "failed to reject topup")
	}

	s.logger.Info("Topup rejected",
		slog.String("topup_id", rejected.ID),
		slog.String("admin_id", admin.UserID),
	)
	s.publish(ctx, events.TopupRejected, admin, rejected)
	return rejected, nil
}

func (s *Service) review(ctx context.Context, admin auth.Actor, id string, status Status, note *string) (*Topup, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, apperr.Validation("topup id must be a valid UUID")
	}
	t, err := s.store.MarkReviewed(ctx, id, status, admin.UserID, note, s.now().UTC())
	if errors.Is(err, ErrAlreadyReviewed) {
		return nil, apperr.InvalidTransition("topup %s is no longer pending", id)
	}
	return t, err
}

// ListMine returns the caller's top-ups
func (s *Service) ListMine(ctx context.Context, actor auth.Actor, pageSize int) ([]Topup, error) {
	return s.list(ctx, Filter{UserID: actor.UserID, PageSize: pageSize})
}

// ListPending returns the admin review queue
func (s *Service) ListPending(ctx context.Context, admin auth.Actor, pageSize int) ([]Topup, error) {
	if !admin.IsAdmin() {
		return nil, apperr.Authorization("only admins can review topups")
	}
	return s.list(ctx, Filter{Status: StatusPending, PageSize: pageSize})
}

func (s *Service) list(ctx context.Context, filter Filter) ([]Topup, error) {
	if filter.PageSize <= 0 || filter.PageSize > 100 {
		filter.PageSize = 50
	}
	topups, err := s.store.ListTopups(ctx, filter)
	if err != nil {
		return nil, classify(err, "failed to list topups")
	}
	return topups, nil
}

func (s *Service) publish(ctx context.Context, t events.Type, actor auth.Actor, topup *Topup) {
	evt := events.New(t)
	evt.TopupID = topup.ID
	evt.Status = string(topup.Status)
	evt.ActorID = actor.UserID
	evt.UserID = topup.UserID
	evt.Amount = topup.Amount.StringFixed(2)
	_ = s.publisher.Publish(context.WithoutCancel(ctx), evt)
}

func classify(err error, message string) error {
	if apperr.KindOf(err) == apperr.KindInternal {
		return apperr.Transient(err, message)
	}
	return err
}
