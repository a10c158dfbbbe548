package dto

import (
	"time"

	"github.com/cuongbtq/transfer-market/internal/marketplace"
	"github.com/shopspring/decimal"
)

type CreateJobRequest struct {
	FromLocation  string          `json:"from_location" binding:"required,max=255"`
	ToLocation    string          `json:"to_location" binding:"required,max=255"`
	VehicleType   string          `json:"vehicle_type" binding:"required,max=64"`
	BuyerProfit   decimal.Decimal `json:"buyer_profit"`
	CustomerTotal decimal.Decimal `json:"customer_total"`
	PaymentType   string          `json:"payment_type" binding:"required,oneof=cash prepaid"`
	BuyerPhone    string          `json:"buyer_phone" binding:"required,max=32"`
	JobDatetime   time.Time       `json:"job_datetime" binding:"required"`
}

func (r *CreateJobRequest) Input() marketplace.CreateJobInput {
	return marketplace.CreateJobInput{
		FromLocation:  r.FromLocation,
		ToLocation:    r.ToLocation,
		VehicleType:   r.VehicleType,
		BuyerProfit:   r.BuyerProfit,
		CustomerTotal: r.CustomerTotal,
		PaymentType:   marketplace.PaymentType(r.PaymentType),
		BuyerPhone:    r.BuyerPhone,
		JobDatetime:   r.JobDatetime,
	}
}

type ListJobsRequest struct {
	Scope       string `form:"scope" binding:"omitempty,oneof=board selling buying"`
	Status      string `form:"status"`
	VehicleType string `form:"vehicle_type"`
	PageSize    int    `form:"page_size" binding:"omitempty,min=1,max=100"`
	Cursor      string `form:"cursor"`
}

type ShareIBANRequest struct {
	IBAN        string `json:"iban" binding:"required,iban"`
	AccountName string `json:"account_name" binding:"required,max=255"`
}

type CompleteJobRequest struct {
	PaymentConfirmed bool `json:"payment_confirmed"`
}

type ListJobsResponse struct {
	Jobs       []JobDTO `json:"jobs"`
	NextCursor string   `json:"next_cursor,omitempty"`
}

// JobDTO is the wire shape of a job. Redaction happens before conversion, so
// nil contact or banking fields are omitted.
type JobDTO struct {
	JobID                string  `json:"job_id"`
	SellerID             string  `json:"seller_id"`
	BuyerID              string  `json:"buyer_id,omitempty"`
	FromLocation         string  `json:"from_location"`
	ToLocation           string  `json:"to_location"`
	VehicleType          string  `json:"vehicle_type"`
	BuyerProfit          string  `json:"buyer_profit"`
	CustomerTotal        string  `json:"customer_total"`
	SellerProfit         string  `json:"seller_profit"`
	CommissionPercentage string  `json:"commission_percentage"`
	CommissionAmount     string  `json:"commission_amount"`
	PaymentType          string  `json:"payment_type"`
	Status               string  `json:"status"`
	BuyerPhone           string  `json:"buyer_phone,omitempty"`
	BuyerPhoneRevealed   bool    `json:"buyer_phone_revealed"`
	SellerIBAN           *string `json:"seller_iban,omitempty"`
	SellerAccountName    *string `json:"seller_account_name,omitempty"`
	BuyerIBAN            *string `json:"buyer_iban,omitempty"`
	BuyerAccountName     *string `json:"buyer_account_name,omitempty"`
	IBANRevealed         bool    `json:"iban_revealed"`
	JobDatetime          string  `json:"job_datetime"`
	PurchasedAt          string  `json:"purchased_at,omitempty"`
	ApprovedAt           string  `json:"approved_at,omitempty"`
	CompletedAt          string  `json:"completed_at,omitempty"`
	CreatedAt            string  `json:"created_at"`
	UpdatedAt            string  `json:"updated_at"`
}

func NewJobDTO(job *marketplace.Job) JobDTO {
	return JobDTO{
		JobID:                job.ID,
		SellerID:             job.SellerID,
		BuyerID:              job.Buyer(),
		FromLocation:         job.FromLocation,
		ToLocation:           job.ToLocation,
		VehicleType:          job.VehicleType,
		BuyerProfit:          money(job.BuyerProfit),
		CustomerTotal:        money(job.CustomerTotal),
		SellerProfit:         money(job.SellerProfit),
		CommissionPercentage: job.CommissionPercentage.String(),
		CommissionAmount:     money(job.CommissionAmount),
		PaymentType:          string(job.PaymentType),
		Status:               string(job.Status),
		BuyerPhone:           job.BuyerPhone,
		BuyerPhoneRevealed:   job.BuyerPhoneRevealed,
		SellerIBAN:           job.SellerIBAN,
		SellerAccountName:    job.SellerAccountName,
		BuyerIBAN:            job.BuyerIBAN,
		BuyerAccountName:     job.BuyerAccountName,
		IBANRevealed:         job.IBANRevealed,
		JobDatetime:          job.JobDatetime.Format(time.RFC3339),
		PurchasedAt:          optionalTime(job.PurchasedAt),
		ApprovedAt:           optionalTime(job.ApprovedAt),
		CompletedAt:          optionalTime(job.CompletedAt),
		CreatedAt:            job.CreatedAt.Format(time.RFC3339),
		UpdatedAt:            job.UpdatedAt.Format(time.RFC3339),
	}
}

func money(d decimal.Decimal) string {
	return d.StringFixed(2)
}

func optionalTime(t *time.Time) string {
	if t == nil {
		return ""
	}
	return t.Format(time.RFC3339)
}
