package dto

import (
	"testing"
	"time"

	"github.com/cuongbtq/transfer-market/internal/marketplace"
	"github.com/gin-gonic/gin/binding"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestShareIBANRequestValidation(t *testing.T) {
	require.NoError(t, RegisterValidators())
	require.NoError(t, RegisterValidators())

	tests := []struct {
		name    string
		req     ShareIBANRequest
		wantErr map[string]string
	}{
		{
			name: "valid",
			req:  ShareIBANRequest{IBAN: "GB82 WEST 1234 5698 7654 32", AccountName: "J. Driver"},
		},
		{
			name:    "bad checksum",
			req:     ShareIBANRequest{IBAN: "GB00WEST12345698765432", AccountName: "J. Driver"},
			wantErr: map[string]string{"IBAN": "iban"},
		},
		{
			name:    "missing fields",
			req:     ShareIBANRequest{},
			wantErr: map[string]string{"IBAN": "required", "AccountName": "required"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := binding.Validator.ValidateStruct(&tt.req)
			if tt.wantErr == nil {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Equal(t, tt.wantErr, FieldErrors(err))
		})
	}
}

func TestNewJobDTO(t *testing.T) {
	buyer := "buyer-1"
	iban := "GB82WEST12345698765432"
	approved := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	job := &marketplace.Job{
		ID:                   "job-1",
		SellerID:             "seller-1",
		BuyerID:              &buyer,
		BuyerProfit:          decimal.RequireFromString("1500"),
		CustomerTotal:        decimal.RequireFromString("2000"),
		SellerProfit:         decimal.RequireFromString("500"),
		CommissionPercentage: decimal.RequireFromString("10"),
		CommissionAmount:     decimal.RequireFromString("150"),
		PaymentType:          marketplace.PaymentCash,
		Status:               marketplace.StatusApproved,
		SellerIBAN:           &iban,
		IBANRevealed:         true,
		ApprovedAt:           &approved,
	}

	got := NewJobDTO(job)
	assert.Equal(t, "buyer-1", got.BuyerID)
	assert.Equal(t, "1500.00", got.BuyerProfit)
	assert.Equal(t, "150.00", got.CommissionAmount)
	assert.Equal(t, "10", got.CommissionPercentage)
	assert.Equal(t, "approved", got.Status)
	assert.Equal(t, &iban, got.SellerIBAN)
	assert.Nil(t, got.BuyerIBAN)
	assert.Equal(t, "2026-03-01T10:00:00Z", got.ApprovedAt)
	assert.Empty(t, got.CompletedAt)
}
