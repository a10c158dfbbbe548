package ledger

import (
	"time"

	"github.com/shopspring/decimal"
)

// TxType names the reason a balance moved
type TxType string

const (
	TxTypeCommission TxType = "commission"
	TxTypeTopup      TxType = "topup"
)

func (t TxType) IsValid() bool {
	switch t {
	case TxTypeCommission, TxTypeTopup:
		return true
	}
	return false
}

// TxStatusCompleted is the only status written today; rows are never updated afterwards
const TxStatusCompleted = "completed"

// Balance is the per-user scalar balance. OpeningBalance is the amount the row
// was seeded with before any ledger activity.
type Balance struct {
	UserID         string          `db:"user_id" json:"user_id"`
	Balance        decimal.Decimal `db:"balance" json:"balance"`
	OpeningBalance decimal.Decimal `db:"opening_balance" json:"opening_balance"`
	UpdatedAt      time.Time       `db:"updated_at" json:"updated_at"`
}

// Transaction is an immutable ledger row. Amount is signed: debits are negative.
type Transaction struct {
	ID          string          `db:"id" json:"id"`
	UserID      string          `db:"user_id" json:"user_id"`
	Amount      decimal.Decimal `db:"amount" json:"amount"`
	Type        TxType          `db:"type" json:"type"`
	Description string          `db:"description" json:"description"`
	JobID       *string         `db:"job_id" json:"job_id,omitempty"`
	Status      string          `db:"status" json:"status"`
	CreatedAt   time.Time       `db:"created_at" json:"created_at"`
}

// TransactionFilter pages through a user's ledger, newest first. Cursor is
// the last row of the previous page; rows sharing its timestamp are ordered by id.
type TransactionFilter struct {
	UserID   string
	Type     TxType
	PageSize int
	Cursor   *TransactionCursor
}

// TransactionCursor is the (created_at, id) key of a ledger row
type TransactionCursor struct {
	CreatedAt time.Time
	ID        string
}

// Reconciliation compares a stored balance with the one implied by the ledger
type Reconciliation struct {
	UserID    string          `json:"user_id"`
	Opening   decimal.Decimal `json:"opening_balance"`
	LedgerSum decimal.Decimal `json:"ledger_sum"`
	Expected  decimal.Decimal `json:"expected_balance"`
	Actual    decimal.Decimal `json:"actual_balance"`
	Balanced  bool            `json:"balanced"`
}
