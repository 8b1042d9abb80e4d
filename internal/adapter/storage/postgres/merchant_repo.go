package postgres

import (
	"context"
	"errors"
	"fmt"

	"crypto-invoice-gateway/internal/core/domain"
	"crypto-invoice-gateway/internal/core/ports"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// MerchantRepo implements ports.MerchantRepository.
type MerchantRepo struct {
	pool Pool
}

// NewMerchantRepo creates a new MerchantRepo.
func NewMerchantRepo(pool Pool) *MerchantRepo {
	return &MerchantRepo{pool: pool}
}

// Create inserts a new merchant into the database.
func (r *MerchantRepo) Create(ctx context.Context, m *domain.Merchant) error {
	query := `INSERT INTO merchants (id, business_name, static_address, webhook_url, webhook_secret_enc,
		total_invoices, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`

	_, err := r.pool.Exec(ctx, query,
		m.ID, m.BusinessName, m.StaticAddress, m.WebhookURL, m.WebhookSecretEnc,
		m.TotalInvoices, m.CreatedAt, m.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return ports.ErrDuplicate
		}
		return fmt.Errorf("insert merchant: %w", err)
	}
	return nil
}

// GetByID fetches a merchant by its identity.
func (r *MerchantRepo) GetByID(ctx context.Context, id string) (*domain.Merchant, error) {
	query := `SELECT id, business_name, static_address, webhook_url, webhook_secret_enc,
		total_invoices, created_at, updated_at
		FROM merchants WHERE id = $1`

	m := &domain.Merchant{}
	err := r.pool.QueryRow(ctx, query, id).Scan(
		&m.ID, &m.BusinessName, &m.StaticAddress, &m.WebhookURL, &m.WebhookSecretEnc,
		&m.TotalInvoices, &m.CreatedAt, &m.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get merchant by id: %w", err)
	}
	return m, nil
}

// UpdateWebhookURL sets or clears the merchant's webhook URL.
func (r *MerchantRepo) UpdateWebhookURL(ctx context.Context, id string, webhookURL *string) error {
	return r.exec(ctx, "update webhook url",
		`UPDATE merchants SET webhook_url = $1, updated_at = NOW() WHERE id = $2`, webhookURL, id)
}

// IncrementInvoiceCount bumps the merchant's invoice counter.
func (r *MerchantRepo) IncrementInvoiceCount(ctx context.Context, id string) error {
	return r.exec(ctx, "increment invoice count",
		`UPDATE merchants SET total_invoices = total_invoices + 1, updated_at = NOW() WHERE id = $1`, id)
}

func (r *MerchantRepo) exec(ctx context.Context, op, query string, args ...any) error {
	tag, err := r.pool.Exec(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%s: merchant not found", op)
	}
	return nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}
