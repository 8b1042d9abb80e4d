package domain

import (
	"time"

	"github.com/google/uuid"
)

// AuditAction represents the type of audited action.
type AuditAction string

const (
	AuditActionRegisterMerchant  AuditAction = "REGISTER_MERCHANT"
	AuditActionUpdateWebhook     AuditAction = "UPDATE_WEBHOOK"
	AuditActionSetCurrency       AuditAction = "SET_CURRENCY"
	AuditActionCreateInvoice     AuditAction = "CREATE_INVOICE"
	AuditActionInvoiceTransition AuditAction = "INVOICE_TRANSITION"
	AuditActionCreateCashout     AuditAction = "CREATE_CASHOUT"

	// Operator requests, recorded at the HTTP edge whether or not the invoice moved.
	AuditActionRequestReconcile AuditAction = "REQUEST_RECONCILE"
	AuditActionRequestMarkPaid  AuditAction = "REQUEST_MARK_PAID"
	AuditActionRequestFail      AuditAction = "REQUEST_FAIL"
)

// AuditLog records a single audited action in the system.
type AuditLog struct {
	ID           uuid.UUID   `json:"id"`
	ActorID      *string     `json:"actor_id,omitempty"` // nil for system actions such as the poller
	Action       AuditAction `json:"action"`
	ResourceType string      `json:"resource_type"`
	ResourceID   string      `json:"resource_id,omitempty"`
	Details      string      `json:"details,omitempty"` // JSON string
	IPAddress    string      `json:"ip_address,omitempty"`
	CreatedAt    time.Time   `json:"created_at"`
}
