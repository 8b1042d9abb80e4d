package ports

//go:generate mockgen -source=repositories.go -destination=mocks/mock_repositories.go -package=mocks

import (
	"context"
	"errors"
	"time"

	"crypto-invoice-gateway/internal/core/domain"
)

// ErrStaleInvoice is returned by InvoiceRepository.UpdateStatus when the stored
// status no longer matches the expected one.
var ErrStaleInvoice = errors.New("invoice status changed concurrently")

// ErrDuplicate is returned when creating a record whose key already exists.
var ErrDuplicate = errors.New("record already exists")

// InvoiceRepository defines persistence operations for invoices.
// Lookups return (nil, nil) when the invoice does not exist.
type InvoiceRepository interface {
	NextID(ctx context.Context) (string, error)
	Create(ctx context.Context, invoice *domain.Invoice) error
	GetByID(ctx context.Context, id string) (*domain.Invoice, error)
	// UpdateStatus is a compare-and-set: it succeeds only while the stored
	// status equals from, otherwise it returns ErrStaleInvoice.
	UpdateStatus(ctx context.Context, id string, from, to domain.InvoiceStatus, at time.Time) error
	ListByMerchant(ctx context.Context, merchantID string) ([]domain.Invoice, error)
	// ListOpen returns every Pending or Confirmed invoice.
	ListOpen(ctx context.Context) ([]domain.Invoice, error)
}

// LedgerRepository defines persistence for merchant ledger accounts.
// Adjust is the only path that changes balances.
type LedgerRepository interface {
	GetOrCreate(ctx context.Context, merchantID string) (*domain.LedgerAccount, error)
	// Adjust applies all three deltas or none, returning domain.ErrNegativeBalance
	// if any balance would drop below zero.
	Adjust(ctx context.Context, merchantID string, delta domain.LedgerDelta) (*domain.LedgerAccount, error)
	SetPreferredCurrency(ctx context.Context, merchantID string, currency domain.Currency) (*domain.LedgerAccount, error)
}

// CashoutRepository defines persistence for cashout requests.
type CashoutRepository interface {
	NextID(ctx context.Context) (string, error)
	Create(ctx context.Context, cashout *domain.CashoutRequest) error
	// ListByMerchant returns the merchant's cashouts in no particular order.
	ListByMerchant(ctx context.Context, merchantID string) ([]domain.CashoutRequest, error)
}

// MerchantRepository defines persistence operations for merchants.
type MerchantRepository interface {
	// Create returns ErrDuplicate if the merchant is already registered.
	Create(ctx context.Context, merchant *domain.Merchant) error
	GetByID(ctx context.Context, id string) (*domain.Merchant, error)
	UpdateWebhookURL(ctx context.Context, id string, webhookURL *string) error
	IncrementInvoiceCount(ctx context.Context, id string) error
}

// AuditRepository persists audit entries.
type AuditRepository interface {
	Create(ctx context.Context, log *domain.AuditLog) error
}

// WebhookRepository persists webhook delivery attempts.
type WebhookRepository interface {
	Create(ctx context.Context, log *domain.WebhookDeliveryLog) error
	Update(ctx context.Context, log *domain.WebhookDeliveryLog) error
	ListByInvoice(ctx context.Context, invoiceID string) ([]domain.WebhookDeliveryLog, error)
}
