package postgres

import (
	"context"
	"fmt"
	"time"

	"crypto-invoice-gateway/internal/core/domain"
)

// WebhookRepo implements ports.WebhookRepository.
type WebhookRepo struct {
	pool Pool
}

// NewWebhookRepo creates a PostgreSQL-backed WebhookRepository.
func NewWebhookRepo(pool Pool) *WebhookRepo {
	return &WebhookRepo{pool: pool}
}

func (r *WebhookRepo) Create(ctx context.Context, log *domain.WebhookDeliveryLog) error {
	_, err := r.pool.Exec(ctx,
		`INSERT INTO webhook_delivery_logs
		(id, invoice_id, merchant_id, webhook_url, payload, http_status, attempt, status, last_error, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		log.ID, log.InvoiceID, log.MerchantID, log.WebhookURL,
		log.Payload, log.HTTPStatus, log.Attempt, log.Status,
		log.LastError, log.CreatedAt, log.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert webhook log: %w", err)
	}
	return nil
}

func (r *WebhookRepo) Update(ctx context.Context, log *domain.WebhookDeliveryLog) error {
	log.UpdatedAt = time.Now()
	_, err := r.pool.Exec(ctx,
		`UPDATE webhook_delivery_logs
		 SET http_status = $1, attempt = $2, status = $3, last_error = $4, updated_at = $5
		 WHERE id = $6`,
		log.HTTPStatus, log.Attempt, log.Status, log.LastError, log.UpdatedAt, log.ID,
	)
	if err != nil {
		return fmt.Errorf("update webhook log: %w", err)
	}
	return nil
}

func (r *WebhookRepo) ListByInvoice(ctx context.Context, invoiceID string) ([]domain.WebhookDeliveryLog, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT id, invoice_id, merchant_id, webhook_url, payload,
			http_status, attempt, status, last_error, created_at, updated_at
		 FROM webhook_delivery_logs
		 WHERE invoice_id = $1
		 ORDER BY created_at DESC`, invoiceID)
	if err != nil {
		return nil, fmt.Errorf("list webhook logs: %w", err)
	}
	defer rows.Close()

	var logs []domain.WebhookDeliveryLog
	for rows.Next() {
		var l domain.WebhookDeliveryLog
		if err := rows.Scan(
			&l.ID, &l.InvoiceID, &l.MerchantID, &l.WebhookURL, &l.Payload,
			&l.HTTPStatus, &l.Attempt, &l.Status, &l.LastError,
			&l.CreatedAt, &l.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan webhook log: %w", err)
		}
		logs = append(logs, l)
	}
	return logs, rows.Err()
}
