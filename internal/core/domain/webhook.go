package domain

import (
	"time"

	"github.com/google/uuid"
)

// WebhookStatus represents the delivery state of a webhook.
type WebhookStatus string

const (
	WebhookStatusPending   WebhookStatus = "PENDING"
	WebhookStatusDelivered WebhookStatus = "DELIVERED"
	WebhookStatusFailed    WebhookStatus = "FAILED"
)

// WebhookDeliveryLog records the delivery of one invoice transition notice.
type WebhookDeliveryLog struct {
	ID         uuid.UUID     `json:"id"`
	InvoiceID  string        `json:"invoice_id"`
	MerchantID string        `json:"merchant_id"`
	WebhookURL string        `json:"webhook_url"`
	Payload    string        `json:"payload"` // JSON string
	HTTPStatus *int          `json:"http_status"`
	Attempt    int           `json:"attempt"`
	Status     WebhookStatus `json:"status"`
	LastError  *string       `json:"last_error"`
	CreatedAt  time.Time     `json:"created_at"`
	UpdatedAt  time.Time     `json:"updated_at"`
}
