package ports

//go:generate mockgen -source=services.go -destination=mocks/mock_services.go -package=mocks

import (
	"context"
	"time"

	"crypto-invoice-gateway/internal/core/domain"

	"github.com/shopspring/decimal"
)

// --- External Collaborators ---

// ConfirmationSource reports on-chain evidence for an address.
// Failures must be reported as apperror.ErrTemporarilyUnavailable.
type ConfirmationSource interface {
	ConfirmationsFor(ctx context.Context, address string) (domain.Confirmation, error)
}

// AddressIssuer hands out the static receiving address for a merchant.
type AddressIssuer interface {
	NewAddress(ctx context.Context, ownerID string) (string, error)
}

// ConversionOracle converts between fiat and satoshi using a fixed rate table.
type ConversionOracle interface {
	ToSmallestUnit(fiat decimal.Decimal, currency domain.Currency) (int64, error)
	ToFiat(units int64, currency domain.Currency) (decimal.Decimal, error)
	Rate(currency domain.Currency) (decimal.Decimal, error)
	Rates() map[domain.Currency]decimal.Decimal
}

// --- Infrastructure Ports ---

// EncryptionService handles AES-256-GCM encryption/decryption.
type EncryptionService interface {
	Encrypt(plaintext string) (string, error)
	Decrypt(ciphertext string) (string, error)
}

// SignatureService handles HMAC-SHA256 signing and verification.
type SignatureService interface {
	Sign(secretKey string, payload string) string
	Verify(secretKey string, payload string, signature string) bool
}

// TokenService handles JWT token operations.
type TokenService interface {
	Generate(subject string, role domain.Role) (string, time.Time, error)
	Validate(tokenString string) (*TokenClaims, error)
}

// TokenClaims holds the parsed JWT claims.
type TokenClaims struct {
	Subject string
	Role    domain.Role
}

// IdempotencyCache remembers responses keyed by client idempotency keys.
type IdempotencyCache interface {
	Get(ctx context.Context, key string) ([]byte, error) // Returns cached response JSON or nil
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	// Claim atomically reserves key for one in-flight request.
	// Returns false if another request already holds it.
	Claim(ctx context.Context, key string, ttl time.Duration) (bool, error)
	Release(ctx context.Context, key string) error
}

// --- Service Ports (Business Logic) ---

// InvoiceService creates and exposes invoices.
type InvoiceService interface {
	CreateInvoice(ctx context.Context, req CreateInvoiceRequest) (*domain.Invoice, error)
	GetInvoice(ctx context.Context, callerID, invoiceID string) (*domain.Invoice, error)
	ListInvoices(ctx context.Context, merchantID string) ([]domain.Invoice, error)
	PaymentInfo(ctx context.Context, invoiceID string) (*PaymentInfo, error)
	QRCode(ctx context.Context, callerID, invoiceID string, size int) ([]byte, error)
}

// CreateInvoiceRequest holds validated input for invoice creation.
type CreateInvoiceRequest struct {
	MerchantID  string
	FiatAmount  decimal.Decimal
	Currency    domain.Currency
	Description *string
}

// PaymentInfo is what a payer needs to settle an invoice.
type PaymentInfo struct {
	InvoiceID          string               `json:"invoice_id"`
	MerchantName       string               `json:"merchant_name"`
	AmountSmallestUnit int64                `json:"amount_smallest_unit"`
	FiatAmount         decimal.Decimal      `json:"fiat_amount"`
	Currency           domain.Currency      `json:"currency"`
	Address            string               `json:"address"`
	Status             domain.InvoiceStatus `json:"status"`
	PaymentURI         string               `json:"payment_uri"`
}

// PaymentReconciler drives invoices through the state machine and the ledger.
type PaymentReconciler interface {
	Reconcile(ctx context.Context, invoiceID string) (domain.InvoiceStatus, error)
	MarkPaid(ctx context.Context, callerID, invoiceID string) (domain.InvoiceStatus, error)
	Fail(ctx context.Context, callerID, invoiceID string) (domain.InvoiceStatus, error)
}

// CashoutService debits confirmed balance for fiat payouts.
type CashoutService interface {
	CreateCashout(ctx context.Context, req CashoutCreateRequest) (*domain.CashoutRequest, error)
	ListForMerchant(ctx context.Context, merchantID string) ([]domain.CashoutRequest, error)
}

// CashoutCreateRequest holds validated input for a cashout.
type CashoutCreateRequest struct {
	MerchantID     string
	Amount         int64
	TargetCurrency domain.Currency
	BankDetails    *string
	IdempotencyKey string // optional
}

// MerchantService manages merchant registration and settings.
type MerchantService interface {
	Register(ctx context.Context, req RegisterMerchantRequest) (*RegisterMerchantResponse, error)
	GetProfile(ctx context.Context, merchantID string) (*domain.Merchant, error)
	UpdateWebhookURL(ctx context.Context, merchantID string, webhookURL *string) (*domain.Merchant, error)
	SetPreferredCurrency(ctx context.Context, merchantID string, currency domain.Currency) (*domain.LedgerAccount, error)
}

// RegisterMerchantRequest holds input for merchant registration.
type RegisterMerchantRequest struct {
	MerchantID   string
	BusinessName string
	WebhookURL   *string
}

// RegisterMerchantResponse holds the registration result shown once.
type RegisterMerchantResponse struct {
	Merchant      *domain.Merchant `json:"merchant"`
	WebhookSecret string           `json:"webhook_secret"` // Plaintext, shown only at registration
}

// ReportingService exposes balances and dashboard figures.
type ReportingService interface {
	GetBalance(ctx context.Context, merchantID string) (*domain.LedgerAccount, error)
	GetDashboard(ctx context.Context, merchantID string) (*Dashboard, error)
}

// Dashboard aggregates a merchant's invoices and balances.
type Dashboard struct {
	TotalInvoices     int64           `json:"total_invoices"`
	OpenInvoices      int64           `json:"open_invoices"`
	CompletedInvoices int64           `json:"completed_invoices"`
	FailedInvoices    int64           `json:"failed_invoices"`
	PendingBalance    int64           `json:"pending_balance"`
	ConfirmedBalance  int64           `json:"confirmed_balance"`
	TotalBalance      int64           `json:"total_balance"`
	PreferredCurrency domain.Currency `json:"preferred_currency"`
	TotalFiatValue    decimal.Decimal `json:"total_fiat_value"`
}

// AuditService records audited actions.
type AuditService interface {
	Log(ctx context.Context, entry *domain.AuditLog)
}

// WebhookService notifies merchants of invoice transitions.
type WebhookService interface {
	NotifyTransition(ctx context.Context, invoice *domain.Invoice, transition domain.Transition) error
}
