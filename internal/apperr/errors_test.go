package apperr

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestKindOf(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want Kind
	}{
		{name: "nil", err: nil, want: ""},
		{name: "typed", err: Validation("bad input"), want: KindValidation},
		{name: "wrapped typed", err: fmt.Errorf("purchase: %w", InsufficientBalance("low")), want: KindInsufficientBalance},
		{name: "untyped", err: errors.New("boom"), want: KindInternal},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, KindOf(tt.err))
		})
	}
}

func TestError_IsMatchesByKind(t *testing.T) {
	err := fmt.Errorf("approve: %w", InvalidTransition("job %s is completed", "j1"))

	assert.True(t, errors.Is(err, InvalidTransition("")))
	assert.False(t, errors.Is(err, NotFound("")))
}

func TestTransient(t *testing.T) {
	cause := errors.New("connection reset")
	err := Transient(cause, "failed to load job")

	assert.True(t, IsRetryable(err))
	assert.ErrorIs(t, err, cause)
	assert.Contains(t, err.Error(), "connection reset")
	assert.False(t, IsRetryable(Authorization("not yours")))
}

func TestMetadataFor(t *testing.T) {
	assert.Equal(t, http.StatusConflict, MetadataFor(KindInvalidStateTransition).HTTPStatus)
	assert.Equal(t, http.StatusPaymentRequired, MetadataFor(KindInsufficientBalance).HTTPStatus)
	assert.Equal(t, http.StatusInternalServerError, MetadataFor(Kind("unknown")).HTTPStatus)
}
