package apperror

import (
	"errors"
	"fmt"
	"net/http"
)

// AppError is a structured error that maps to HTTP responses.
type AppError struct {
	Code       string `json:"error_code"`
	Message    string `json:"message"`
	HTTPStatus int    `json:"-"`
	Err        error  `json:"-"` // Wrapped internal error (not exposed to client)
}

func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

func (e *AppError) Unwrap() error {
	return e.Err
}

// Is reports whether target is an AppError carrying the same code, so callers
// can write errors.Is(err, apperror.ErrInsufficientBalance()).
func (e *AppError) Is(target error) bool {
	t, ok := target.(*AppError)
	if !ok {
		return false
	}
	return t.Code == e.Code
}

// New creates a new AppError.
func New(code string, message string, httpStatus int) *AppError {
	return &AppError{
		Code:       code,
		Message:    message,
		HTTPStatus: httpStatus,
	}
}

// Wrap wraps an internal error with an AppError.
func Wrap(code string, message string, httpStatus int, err error) *AppError {
	return &AppError{
		Code:       code,
		Message:    message,
		HTTPStatus: httpStatus,
		Err:        err,
	}
}

// Error codes, exported so handlers and tests can match without building errors.
const (
	CodeNotFound               = "INV_001"
	CodeInvalidTransition      = "INV_002"
	CodeInvalidAmount          = "INV_003"
	CodeNegativeBalance        = "LED_001"
	CodeInsufficientBalance    = "LED_002"
	CodeUnsupportedCurrency    = "CUR_001"
	CodeTemporarilyUnavailable = "EXT_001"
	CodeMerchantExists         = "MER_001"
	CodeInvalidToken           = "AUTH_001"
	CodeForbidden              = "AUTH_002"
	CodeRequestInProgress      = "IDM_001"
	CodeIdempotencyKeyReused   = "IDM_002"
	CodeRateLimitExceeded      = "RATE_001"
	CodeValidation             = "VAL_001"
	CodePayloadTooLarge        = "VAL_002"
	CodeInternal               = "SYS_001"
	CodeEncryptionFailure      = "SYS_003"
)

// ---- Invoice lifecycle (INV) ----

func ErrNotFound(entity string) *AppError {
	return New(CodeNotFound, fmt.Sprintf("%s not found", entity), http.StatusNotFound)
}

func ErrInvalidTransition(from, to string) *AppError {
	return New(CodeInvalidTransition,
		fmt.Sprintf("Invalid invoice status transition %s -> %s", from, to),
		http.StatusConflict)
}

func ErrInvalidAmount() *AppError {
	return New(CodeInvalidAmount, "Invalid amount", http.StatusBadRequest)
}

// ---- Ledger (LED) ----

func ErrNegativeBalance() *AppError {
	return New(CodeNegativeBalance, "Ledger balance would become negative", http.StatusConflict)
}

func ErrInsufficientBalance() *AppError {
	return New(CodeInsufficientBalance, "Insufficient confirmed balance", http.StatusPaymentRequired)
}

// ---- Currency (CUR) ----

func ErrUnsupportedCurrency(code string) *AppError {
	return New(CodeUnsupportedCurrency, fmt.Sprintf("Unsupported currency %q", code), http.StatusBadRequest)
}

// ---- External collaborators (EXT) ----

func ErrTemporarilyUnavailable(err error) *AppError {
	return Wrap(CodeTemporarilyUnavailable, "Confirmation source temporarily unavailable", http.StatusServiceUnavailable, err)
}

// ---- Merchant (MER) ----

func ErrMerchantExists() *AppError {
	return New(CodeMerchantExists, "Merchant already registered", http.StatusConflict)
}

// ---- Authentication & ownership (AUTH) ----

func ErrInvalidToken() *AppError {
	return New(CodeInvalidToken, "Invalid or expired token", http.StatusUnauthorized)
}

func ErrForbidden(message string) *AppError {
	return New(CodeForbidden, message, http.StatusForbidden)
}

// ---- Idempotency (IDM) ----

func ErrRequestInProgress() *AppError {
	return New(CodeRequestInProgress, "A request with this idempotency key is in progress", http.StatusConflict)
}

func ErrIdempotencyKeyReused() *AppError {
	return New(CodeIdempotencyKeyReused, "Idempotency key was already used with a different request", http.StatusUnprocessableEntity)
}

// ---- Rate Limiting (RATE) ----

func ErrRateLimitExceeded() *AppError {
	return New(CodeRateLimitExceeded, "Rate limit exceeded", http.StatusTooManyRequests)
}

// ---- Validation (VAL) ----

func ErrPayloadTooLarge() *AppError {
	return New(CodePayloadTooLarge, "Request body too large", http.StatusRequestEntityTooLarge)
}

// ---- System & Infrastructure (SYS) ----

func ErrEncryptionFailure(err error) *AppError {
	return Wrap(CodeEncryptionFailure, "Encryption service failure", http.StatusInternalServerError, err)
}

// InternalError wraps an internal error as a SYS_001 error.
func InternalError(err error) *AppError {
	return Wrap(CodeInternal, "Internal server error", http.StatusInternalServerError, err)
}

// Validation returns a VAL_001 validation error.
func Validation(message string) *AppError {
	return New(CodeValidation, message, http.StatusBadRequest)
}

// CodeOf returns the AppError code carried by err, or "" for foreign errors.
func CodeOf(err error) string {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Code
	}
	return ""
}

// Retryable reports whether the caller may retry the failed operation verbatim.
// Only an unavailable confirmation source qualifies.
func Retryable(err error) bool {
	return CodeOf(err) == CodeTemporarilyUnavailable
}
