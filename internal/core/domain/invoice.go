package domain

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// InvoiceStatus represents the lifecycle state of an invoice.
type InvoiceStatus string

const (
	InvoiceStatusPending   InvoiceStatus = "PENDING"
	InvoiceStatusConfirmed InvoiceStatus = "CONFIRMED"
	InvoiceStatusCompleted InvoiceStatus = "COMPLETED"
	InvoiceStatusFailed    InvoiceStatus = "FAILED"
)

// Limits applied at invoice creation.
const (
	MaxFiatAmount         = 1_000_000
	MaxDescriptionLength  = 500
	MaxBusinessNameLength = 100
)

// Invoice is a merchant's request for payment, priced in fiat and settled
// in satoshi at TargetAddress.
type Invoice struct {
	ID                 string          `json:"id"`
	MerchantID         string          `json:"merchant_id"`
	AmountSmallestUnit int64           `json:"amount_smallest_unit"`
	FiatAmount         decimal.Decimal `json:"fiat_amount"`
	Currency           Currency        `json:"currency"`
	TargetAddress      string          `json:"target_address"`
	Status             InvoiceStatus   `json:"status"`
	Description        *string         `json:"description,omitempty"`
	CreatedAt          time.Time       `json:"created_at"`
	UpdatedAt          time.Time       `json:"updated_at"`
}

// IsTerminal returns true once the invoice can no longer move.
func (i *Invoice) IsTerminal() bool {
	return i.Status == InvoiceStatusCompleted || i.Status == InvoiceStatusFailed
}

// IsOpen returns true while the invoice still awaits settlement.
func (i *Invoice) IsOpen() bool {
	return !i.IsTerminal()
}

func (i *Invoice) OwnedBy(merchantID string) bool {
	return i.MerchantID == merchantID
}

// PaymentURI renders the BIP21 URI a wallet can scan to pay this invoice.
func (i *Invoice) PaymentURI() string {
	whole := decimal.New(i.AmountSmallestUnit, 0).Div(decimal.New(SmallestUnitsPerWhole, 0))
	return fmt.Sprintf("bitcoin:%s?amount=%s&label=%s", i.TargetAddress, whole.StringFixed(8), i.ID)
}

// InvoiceAddressOwner is the identity an invoice's payment address is issued
// for. Every invoice pays to its own address, so the observed balance of that
// address is evidence for exactly one invoice.
func InvoiceAddressOwner(merchantID, invoiceID string) string {
	return merchantID + "/invoice/" + invoiceID
}

// FormatInvoiceID renders the n-th invoice id.
func FormatInvoiceID(n int64) string {
	return fmt.Sprintf("INV-%06d", n)
}
