package domain

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// CashoutStatus represents the lifecycle state of a cashout request.
// Only Pending is produced here; later states belong to the payout processor.
type CashoutStatus string

const (
	CashoutStatusPending    CashoutStatus = "PENDING"
	CashoutStatusProcessing CashoutStatus = "PROCESSING"
	CashoutStatusCompleted  CashoutStatus = "COMPLETED"
	CashoutStatusFailed     CashoutStatus = "FAILED"
)

// MaxCashoutAmount caps a single cashout at 1000 whole coins.
const MaxCashoutAmount = 1000 * SmallestUnitsPerWhole

// CashoutRequest is a debit of confirmed balance toward a fiat payout.
type CashoutRequest struct {
	ID                   string          `json:"id"`
	MerchantID           string          `json:"merchant_id"`
	AmountSmallestUnit   int64           `json:"amount_smallest_unit"`
	TargetCurrency       Currency        `json:"target_currency"`
	FiatAmountEquivalent decimal.Decimal `json:"fiat_amount_equivalent"`
	Status               CashoutStatus   `json:"status"`
	BankDetails          *string         `json:"bank_details,omitempty"`
	BankDetailsEnc       string          `json:"-"` // AES-256 encrypted at rest
	CreatedAt            time.Time       `json:"created_at"`
}

// FormatCashoutID renders the n-th cashout id.
func FormatCashoutID(n int64) string {
	return fmt.Sprintf("CASH-%06d", n)
}

// BuildCashoutIdempotencyKey scopes a client-supplied key to its merchant.
func BuildCashoutIdempotencyKey(merchantID, key string) string {
	return merchantID + ":cashout:" + key
}
