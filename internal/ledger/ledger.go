package ledger

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/cuongbtq/transfer-market/internal/apperr"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Store persists balances and ledger rows.
//
// DebitBalance must check the floor and decrement in one statement; it returns
// an insufficient_balance error when the balance would go negative and
// not_found when the user has no balance row.
type Store interface {
	GetBalance(ctx context.Context, userID string) (*Balance, error)
	DebitBalance(ctx context.Context, userID string, amount decimal.Decimal) (*Balance, error)
	CreditBalance(ctx context.Context, userID string, amount decimal.Decimal) (*Balance, error)
	InsertTransaction(ctx context.Context, tx *Transaction) error
	ListTransactions(ctx context.Context, filter TransactionFilter) ([]Transaction, error)
	SumTransactions(ctx context.Context, userID string) (decimal.Decimal, error)
}

// Entry describes a balance movement. Amount is always positive; the direction
// comes from the operation (Charge or Fund).
type Entry struct {
	UserID      string
	Amount      decimal.Decimal
	Type        TxType
	Description string
	JobID       string
}

// Ledger owns balance mutations and the append-only audit trail
type Ledger struct {
	store  Store
	logger *slog.Logger
	now    func() time.Time
}

func New(store Store, logger *slog.Logger) *Ledger {
	return &Ledger{
		store:  store,
		logger: logger,
		now:    time.Now,
	}
}

// Charge debits the user and appends a negative ledger row. Callers that need
// the debit to be atomic with other writes run it inside their transaction.
func (l *Ledger) Charge(ctx context.Context, entry Entry) (*Transaction, error) {
	if err := validateEntry(entry); err != nil {
		return nil, err
	}

	bal, err := l.store.DebitBalance(ctx, entry.UserID, entry.Amount)
	if err != nil {
		return nil, err
	}

	tx, err := l.record(ctx, entry, entry.Amount.Neg())
	if err != nil {
		return nil, err
	}

	l.logger.Info("Balance charged",
		slog.String("user_id", entry.UserID),
		slog.String("amount", entry.Amount.StringFixed(2)),
		slog.String("type", string(entry.Type)),
		slog.String("balance", bal.Balance.StringFixed(2)),
	)

	return tx, nil
}

// Fund credits the user and appends a positive ledger row
func (l *Ledger) Fund(ctx context.Context, entry Entry) (*Transaction, error) {
	if err := validateEntry(entry); err != nil {
		return nil, err
	}

	bal, err := l.store.CreditBalance(ctx, entry.UserID, entry.Amount)
	if err != nil {
		return nil, err
	}

	tx, err := l.record(ctx, entry, entry.Amount)
	if err != nil {
		return nil, err
	}

	l.logger.Info("Balance funded",
		slog.String("user_id", entry.UserID),
		slog.String("amount", entry.Amount.StringFixed(2)),
		slog.String("type", string(entry.Type)),
		slog.String("balance", bal.Balance.StringFixed(2)),
	)

	return tx, nil
}

func (l *Ledger) record(ctx context.Context, entry Entry, signed decimal.Decimal) (*Transaction, error) {
	tx := &Transaction{
		ID:          uuid.NewString(),
		UserID:      entry.UserID,
		Amount:      signed,
		Type:        entry.Type,
		Description: entry.Description,
		Status:      TxStatusCompleted,
		CreatedAt:   l.now().UTC(),
	}
	if entry.JobID != "" {
		jobID := entry.JobID
		tx.JobID = &jobID
	}

	if err := l.store.InsertTransaction(ctx, tx); err != nil {
		return nil, fmt.Errorf("failed to record ledger entry: %w", err)
	}
	return tx, nil
}

// Balance returns the user's current balance
func (l *Ledger) Balance(ctx context.Context, userID string) (*Balance, error) {
	if userID == "" {
		return nil, apperr.Validation("user id is required")
	}
	return l.store.GetBalance(ctx, userID)
}

// History lists the user's ledger rows newest first
func (l *Ledger) History(ctx context.Context, filter TransactionFilter) ([]Transaction, error) {
	if filter.UserID == "" {
		return nil, apperr.Validation("user id is required")
	}
	if filter.Type != "" && !filter.Type.IsValid() {
		return nil, apperr.Validation("unknown transaction type %q", filter.Type)
	}
	if filter.PageSize <= 0 {
		filter.PageSize = 20
	}
	if filter.PageSize > 100 {
		filter.PageSize = 100
	}
	return l.store.ListTransactions(ctx, filter)
}

// Reconcile checks that balance == opening balance + signed sum of ledger rows
func (l *Ledger) Reconcile(ctx context.Context, userID string) (*Reconciliation, error) {
	bal, err := l.Balance(ctx, userID)
	if err != nil {
		return nil, err
	}

	sum, err := l.store.SumTransactions(ctx, userID)
	if err != nil {
		return nil, err
	}

	expected := bal.OpeningBalance.Add(sum)
	rec := &Reconciliation{
		UserID:    userID,
		Opening:   bal.OpeningBalance,
		LedgerSum: sum,
		Expected:  expected,
		Actual:    bal.Balance,
		Balanced:  expected.Equal(bal.Balance),
	}

	if !rec.Balanced {
		l.logger.Warn("Ledger does not reconcile with balance",
			slog.String("user_id", userID),
			slog.String("expected", expected.StringFixed(2)),
			slog.String("actual", bal.Balance.StringFixed(2)),
		)
	}

	return rec, nil
}

func validateEntry(entry Entry) error {
	if entry.UserID == "" {
		return apperr.Validation("user id is required")
	}
	if !entry.Type.IsValid() {
		return apperr.Validation("unknown transaction type %q", entry.Type)
	}
	if entry.Amount.IsNegative() {
		return apperr.Validation("amount must not be negative")
	}
	return nil
}
