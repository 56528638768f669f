package common

import (
	"net/http"
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestErrorTaxonomy(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		mark   error
		status int
		code   string
	}{
		{"validation", NewValidationError("amount", "must be positive"), ErrValidation, http.StatusBadRequest, "VALIDATION_ERROR"},
		{"invalid state", NewInvalidStateError("invoice %s is paid", "INV-1"), ErrInvalidState, http.StatusConflict, "INVALID_STATE"},
		{"not found", NewNotFoundError("invoice", "abc"), ErrNotFound, http.StatusNotFound, "NOT_FOUND"},
		{"expired", NewExpiredError("link expired"), ErrExpired, http.StatusGone, "EXPIRED"},
		{"overpayment", NewOverpaymentError(decimal.NewFromInt(100), decimal.NewFromInt(120)), ErrOverpayment, http.StatusUnprocessableEntity, "OVERPAYMENT"},
		{"method", NewMethodNotAllowedError("card"), ErrMethodNotAllowed, http.StatusUnprocessableEntity, "METHOD_NOT_ALLOWED"},
		{"transport", WrapTransportError(errors.New("smtp down"), "email"), ErrTransport, http.StatusBadGateway, "TRANSPORT_ERROR"},
		{"unknown", errors.New("boom"), nil, http.StatusInternalServerError, "SERVER_ERROR"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.mark != nil {
				assert.True(t, errors.Is(tt.err, tt.mark))
			}
			assert.Equal(t, tt.status, HTTPStatusFromErr(tt.err))
			assert.Equal(t, tt.code, ErrorCode(tt.err))
		})
	}
}

func TestValidationErrorKeepsField(t *testing.T) {
	err := errors.Wrap(NewValidationError("quantity", "must be greater than %d", 0), "create invoice")

	var verr *ValidationError
	require.True(t, errors.As(err, &verr))
	assert.Equal(t, "quantity", verr.Field)
	assert.Equal(t, "must be greater than 0", verr.Message)
	assert.True(t, errors.Is(err, ErrValidation))
	assert.False(t, errors.Is(err, ErrNotFound))
}

func TestOverpaymentCarriesHint(t *testing.T) {
	err := NewOverpaymentError(decimal.NewFromInt(100), decimal.NewFromInt(150))

	assert.Contains(t, err.Error(), "150")
	assert.Contains(t, errors.GetAllHints(err), "reduce the amount to the outstanding balance")
}
