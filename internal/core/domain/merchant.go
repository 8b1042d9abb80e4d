package domain

import "time"

// Role is the caller's role as asserted by the external identity provider.
type Role string

const (
	RoleMerchant Role = "merchant"
	RoleCustomer Role = "customer"
)

// Merchant is a registered seller. The ID is the caller's external identity.
type Merchant struct {
	ID               string    `json:"id"`
	BusinessName     string    `json:"business_name"`
	StaticAddress    string    `json:"static_address"`
	WebhookURL       *string   `json:"webhook_url,omitempty"`
	WebhookSecretEnc string    `json:"-"` // Encrypted, never expose
	TotalInvoices    int64     `json:"total_invoices"`
	CreatedAt        time.Time `json:"created_at"`
	UpdatedAt        time.Time `json:"updated_at"`
}

// HasWebhook returns true if transition notifications should be delivered.
func (m *Merchant) HasWebhook() bool {
	return m.WebhookURL != nil && *m.WebhookURL != ""
}
