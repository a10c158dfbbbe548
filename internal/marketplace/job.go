package marketplace

import (
	"time"

	"github.com/shopspring/decimal"
)

// Status is a job lifecycle state
type Status string

const (
	StatusAvailable       Status = "available"
	StatusPendingApproval Status = "pending_approval"
	StatusApproved        Status = "approved"
	StatusCompleted       Status = "completed"
	StatusCancelled       Status = "cancelled"
)

func (s Status) IsValid() bool {
	switch s {
	case StatusAvailable, StatusPendingApproval, StatusApproved, StatusCompleted, StatusCancelled:
		return true
	}
	return false
}

func (s Status) IsTerminal() bool {
	return s == StatusCompleted || s == StatusCancelled
}

// PaymentType decides who collects the customer's money and therefore who shares an IBAN
type PaymentType string

const (
	// PaymentCash: the seller collects from the customer and forwards the buyer's share
	PaymentCash PaymentType = "cash"
	// PaymentPrepaid: the customer paid the seller upfront; the buyer is reimbursed
	PaymentPrepaid PaymentType = "prepaid"
)

func (p PaymentType) IsValid() bool {
	return p == PaymentCash || p == PaymentPrepaid
}

// Side is one party of a job
type Side string

const (
	SideSeller Side = "seller"
	SideBuyer  Side = "buyer"
)

// IBANSharer returns the party expected to share banking details
func (p PaymentType) IBANSharer() Side {
	if p == PaymentPrepaid {
		return SideBuyer
	}
	return SideSeller
}

// Job is a transfer listing offered by a seller for another driver to take over
type Job struct {
	ID                   string          `db:"id"`
	SellerID             string          `db:"seller_id"`
	BuyerID              *string         `db:"buyer_id"`
	FromLocation         string          `db:"from_location"`
	ToLocation           string          `db:"to_location"`
	VehicleType          string          `db:"vehicle_type"`
	BuyerProfit          decimal.Decimal `db:"buyer_profit"`
	CustomerTotal        decimal.Decimal `db:"customer_total"`
	SellerProfit         decimal.Decimal `db:"seller_profit"`
	CommissionPercentage decimal.Decimal `db:"commission_percentage"`
	CommissionAmount     decimal.Decimal `db:"commission_amount"`
	PaymentType          PaymentType     `db:"payment_type"`
	Status               Status          `db:"status"`
	BuyerPhone           string          `db:"buyer_phone"`
	BuyerPhoneRevealed   bool            `db:"buyer_phone_revealed"`
	SellerIBAN           *string         `db:"seller_iban"`
	BuyerIBAN            *string         `db:"buyer_iban"`
	SellerAccountName    *string         `db:"seller_account_name"`
	BuyerAccountName     *string         `db:"buyer_account_name"`
	IBANRevealed         bool            `db:"iban_revealed"`
	JobDatetime          time.Time       `db:"job_datetime"`
	PurchasedAt          *time.Time      `db:"purchased_at"`
	ApprovedAt           *time.Time      `db:"approved_at"`
	CompletedAt          *time.Time      `db:"completed_at"`
	CreatedAt            time.Time       `db:"created_at"`
	UpdatedAt            time.Time       `db:"updated_at"`
}

// Buyer returns the buyer id or "" when the job has none
func (j *Job) Buyer() string {
	if j.BuyerID == nil {
		return ""
	}
	return *j.BuyerID
}

// SideOf reports which party userID is on this job
func (j *Job) SideOf(userID string) (Side, bool) {
	switch {
	case userID == "":
		return "", false
	case userID == j.SellerID:
		return SideSeller, true
	case userID == j.Buyer():
		return SideBuyer, true
	}
	return "", false
}

// ViewFor returns a copy with contact and banking fields the viewer may not see removed.
// The seller always sees the customer phone; the buyer sees it once revealed.
// IBAN fields are visible to both parties and admins.
func (j Job) ViewFor(userID string, admin bool) Job {
	if admin {
		return j
	}

	side, party := j.SideOf(userID)
	if !party {
		j.BuyerPhone = ""
		j.SellerIBAN, j.BuyerIBAN = nil, nil
		j.SellerAccountName, j.BuyerAccountName = nil, nil
		return j
	}

	if side == SideBuyer && !j.BuyerPhoneRevealed {
		j.BuyerPhone = ""
	}
	return j
}

// JobScope selects which jobs a listing returns
type JobScope string

const (
	// ScopeBoard lists open jobs anyone may purchase
	ScopeBoard   JobScope = "board"
	ScopeSelling JobScope = "selling"
	ScopeBuying  JobScope = "buying"
)

func (s JobScope) IsValid() bool {
	return s == ScopeBoard || s == ScopeSelling || s == ScopeBuying
}

// JobCursor is the keyset position of the last row of a page
type JobCursor struct {
	CreatedAt time.Time
	JobID     string
}

// JobFilter drives ListJobs. Rows are ordered by created_at DESC, id DESC and
// stores return up to PageSize+1 rows so callers can tell whether more follow.
type JobFilter struct {
	SellerID    string
	BuyerID     string
	Status      Status
	VehicleType string
	PageSize    int
	Cursor      *JobCursor
}
