package apperror

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestAppError_Error(t *testing.T) {
	tests := []struct {
		name     string
		appErr   *AppError
		expected string
	}{
		{
			name:     "without wrapped error",
			appErr:   New("LED_002", "Insufficient confirmed balance", http.StatusPaymentRequired),
			expected: "[LED_002] Insufficient confirmed balance",
		},
		{
			name:     "with wrapped error",
			appErr:   Wrap("SYS_001", "DB error", http.StatusInternalServerError, fmt.Errorf("connection refused")),
			expected: "[SYS_001] DB error: connection refused",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, tt.appErr.Error())
		})
	}
}

func TestAppError_Unwrap(t *testing.T) {
	inner := fmt.Errorf("inner error")
	appErr := Wrap("SYS_001", "wrapped", http.StatusInternalServerError, inner)

	assert.True(t, errors.Is(appErr, inner))
	assert.Nil(t, New("INV_001", "test", http.StatusNotFound).Unwrap())
}

func TestAppError_IsMatchesByCode(t *testing.T) {
	err := fmt.Errorf("cashout: %w", ErrInsufficientBalance())

	assert.True(t, errors.Is(err, ErrInsufficientBalance()))
	assert.False(t, errors.Is(err, ErrNegativeBalance()))
	assert.True(t, errors.Is(ErrNotFound("invoice"), ErrNotFound("merchant")), "entity is not part of identity")
}

func TestTaxonomy(t *testing.T) {
	inner := fmt.Errorf("dial tcp: connection refused")

	tests := []struct {
		name       string
		err        *AppError
		code       string
		httpStatus int
	}{
		{"NotFound", ErrNotFound("Invoice"), "INV_001", 404},
		{"InvalidTransition", ErrInvalidTransition("COMPLETED", "FAILED"), "INV_002", 409},
		{"InvalidAmount", ErrInvalidAmount(), "INV_003", 400},
		{"NegativeBalance", ErrNegativeBalance(), "LED_001", 409},
		{"InsufficientBalance", ErrInsufficientBalance(), "LED_002", 402},
		{"UnsupportedCurrency", ErrUnsupportedCurrency("EUR"), "CUR_001", 400},
		{"TemporarilyUnavailable", ErrTemporarilyUnavailable(inner), "EXT_001", 503},
		{"MerchantExists", ErrMerchantExists(), "MER_001", 409},
		{"InvalidToken", ErrInvalidToken(), "AUTH_001", 401},
		{"Forbidden", ErrForbidden("not yours"), "AUTH_002", 403},
		{"RequestInProgress", ErrRequestInProgress(), "IDM_001", 409},
		{"IdempotencyKeyReused", ErrIdempotencyKeyReused(), "IDM_002", 422},
		{"RateLimitExceeded", ErrRateLimitExceeded(), "RATE_001", 429},
		{"Validation", Validation("bad"), "VAL_001", 400},
		{"Internal", InternalError(inner), "SYS_001", 500},
		{"EncryptionFailure", ErrEncryptionFailure(inner), "SYS_003", 500},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.code, tt.err.Code)
			assert.Equal(t, tt.httpStatus, tt.err.HTTPStatus)
		})
	}
}

func TestMessagesNameTheirSubject(t *testing.T) {
	assert.Contains(t, ErrNotFound("Merchant").Message, "Merchant")
	assert.Contains(t, ErrUnsupportedCurrency("EUR").Message, "EUR")

	msg := ErrInvalidTransition("COMPLETED", "FAILED").Message
	assert.Contains(t, msg, "COMPLETED")
	assert.Contains(t, msg, "FAILED")
}

func TestRetryable(t *testing.T) {
	assert.True(t, Retryable(ErrTemporarilyUnavailable(fmt.Errorf("timeout"))))
	assert.True(t, Retryable(fmt.Errorf("reconcile: %w", ErrTemporarilyUnavailable(nil))))
	assert.False(t, Retryable(ErrInsufficientBalance()))
	assert.False(t, Retryable(InternalError(fmt.Errorf("boom"))))
	assert.False(t, Retryable(fmt.Errorf("plain")))
	assert.False(t, Retryable(nil))
}

func TestCodeOf(t *testing.T) {
	assert.Equal(t, "CUR_001", CodeOf(fmt.Errorf("wrap: %w", ErrUnsupportedCurrency("XYZ"))))
	assert.Equal(t, "", CodeOf(fmt.Errorf("plain")))
}
