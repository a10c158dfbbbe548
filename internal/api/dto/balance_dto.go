package dto

import (
	"time"

	"github.com/cuongbtq/transfer-market/internal/ledger"
	"github.com/cuongbtq/transfer-market/internal/settings"
	"github.com/cuongbtq/transfer-market/internal/topup"
	"github.com/shopspring/decimal"
)

type BalanceDTO struct {
	UserID    string `json:"user_id"`
	Balance   string `json:"balance"`
	UpdatedAt string `json:"updated_at"`
}

func NewBalanceDTO(b *ledger.Balance) BalanceDTO {
	return BalanceDTO{
		UserID:    b.UserID,
		Balance:   money(b.Balance),
		UpdatedAt: b.UpdatedAt.Format(time.RFC3339),
	}
}

type ListTransactionsRequest struct {
	Type     string `form:"type" binding:"omitempty,oneof=commission topup"`
	PageSize int    `form:"page_size" binding:"omitempty,min=1,max=100"`
	Cursor   string `form:"cursor"`
}

type TransactionDTO struct {
	ID          string `json:"id"`
	Amount      string `json:"amount"`
	Type        string `json:"type"`
	Description string `json:"description"`
	JobID       string `json:"job_id,omitempty"`
	Status      string `json:"status"`
	CreatedAt   string `json:"created_at"`
}

type ListTransactionsResponse struct {
	Transactions []TransactionDTO `json:"transactions"`
	NextCursor   string           `json:"next_cursor,omitempty"`
}

func NewTransactionDTO(tx *ledger.Transaction) TransactionDTO {
	out := TransactionDTO{
		ID:          tx.ID,
		Amount:      money(tx.Amount),
		Type:        string(tx.Type),
		Description: tx.Description,
		Status:      tx.Status,
		CreatedAt:   tx.CreatedAt.Format(time.RFC3339Nano),
	}
	if tx.JobID != nil {
		out.JobID = *tx.JobID
	}
	return out
}

type ReconciliationDTO struct {
	UserID    string `json:"user_id"`
	Opening   string `json:"opening_balance"`
	LedgerSum string `json:"ledger_sum"`
	Expected  string `json:"expected_balance"`
	Actual    string `json:"actual_balance"`
	Balanced  bool   `json:"balanced"`
}

func NewReconciliationDTO(r *ledger.Reconciliation) ReconciliationDTO {
	return ReconciliationDTO{
		UserID:    r.UserID,
		Opening:   money(r.Opening),
		LedgerSum: money(r.LedgerSum),
		Expected:  money(r.Expected),
		Actual:    money(r.Actual),
		Balanced:  r.Balanced,
	}
}

type CreateTopupRequest struct {
	Amount    decimal.Decimal `json:"amount"`
	Reference string          `json:"reference" binding:"required,max=128"`
}

type RejectTopupRequest struct {
	Note string `json:"note" binding:"max=500"`
}

type TopupDTO struct {
	ID         string `json:"id"`
	UserID     string `json:"user_id"`
	Amount     string `json:"amount"`
	Reference  string `json:"reference"`
	Status     string `json:"status"`
	ReviewedBy string `json:"reviewed_by,omitempty"`
	ReviewNote string `json:"review_note,omitempty"`
	CreatedAt  string `json:"created_at"`
	ReviewedAt string `json:"reviewed_at,omitempty"`
}

func NewTopupDTO(t *topup.Topup) TopupDTO {
	out := TopupDTO{
		ID:         t.ID,
		UserID:     t.UserID,
		Amount:     money(t.Amount),
		Reference:  t.Reference,
		Status:     string(t.Status),
		CreatedAt:  t.CreatedAt.Format(time.RFC3339),
		ReviewedAt: optionalTime(t.ReviewedAt),
	}
	if t.ReviewedBy != nil {
		out.ReviewedBy = *t.ReviewedBy
	}
	if t.ReviewNote != nil {
		out.ReviewNote = *t.ReviewNote
	}
	return out
}

type ListTopupsRequest struct {
	PageSize int `form:"page_size" binding:"omitempty,min=1,max=100"`
}

type UpdateSettingsRequest struct {
	Enabled              *bool           `json:"enabled" binding:"required"`
	CommissionPercentage decimal.Decimal `json:"commission_percentage"`
	MinimumBalance       decimal.Decimal `json:"minimum_balance"`
	CancellationHours    *int            `json:"cancellation_hours" binding:"required,min=0"`
}

func (r *UpdateSettingsRequest) Settings() settings.Settings {
	return settings.Settings{
		Enabled:              *r.Enabled,
		CommissionPercentage: r.CommissionPercentage,
		MinimumBalance:       r.MinimumBalance,
		CancellationHours:    *r.CancellationHours,
	}
}

type SettingsDTO struct {
	Enabled              bool   `json:"enabled"`
	CommissionPercentage string `json:"commission_percentage"`
	MinimumBalance       string `json:"minimum_balance"`
	CancellationHours    int    `json:"cancellation_hours"`
	UpdatedAt            string `json:"updated_at"`
}

func NewSettingsDTO(s *settings.Settings) SettingsDTO {
	return SettingsDTO{
		Enabled:              s.Enabled,
		CommissionPercentage: s.CommissionPercentage.String(),
		MinimumBalance:       money(s.MinimumBalance),
		CancellationHours:    s.CancellationHours,
		UpdatedAt:            s.UpdatedAt.Format(time.RFC3339),
	}
}
