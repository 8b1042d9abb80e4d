package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"crypto-invoice-gateway/internal/core/domain"
	"crypto-invoice-gateway/internal/core/ports"

	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"
)

const invoiceColumns = `id, merchant_id, amount_smallest_unit, fiat_amount::text, currency,
		target_address, status, description, created_at, updated_at`

// InvoiceRepo implements ports.InvoiceRepository.
type InvoiceRepo struct {
	pool Pool
}

// NewInvoiceRepo creates a new InvoiceRepo.
func NewInvoiceRepo(pool Pool) *InvoiceRepo {
	return &InvoiceRepo{pool: pool}
}

// NextID draws the next invoice number from invoice_seq.
func (r *InvoiceRepo) NextID(ctx context.Context) (string, error) {
	n, err := nextSequenceValue(ctx, r.pool, "invoice_seq")
	if err != nil {
		return "", err
	}
	return domain.FormatInvoiceID(n), nil
}

// Create inserts a new invoice.
func (r *InvoiceRepo) Create(ctx context.Context, inv *domain.Invoice) error {
	query := `INSERT INTO invoices (id, merchant_id, amount_smallest_unit, fiat_amount, currency,
		target_address, status, description, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`

	_, err := r.pool.Exec(ctx, query,
		inv.ID, inv.MerchantID, inv.AmountSmallestUnit, inv.FiatAmount.String(), inv.Currency,
		inv.TargetAddress, inv.Status, inv.Description, inv.CreatedAt, inv.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("invoice %s: %w", inv.ID, ports.ErrDuplicate)
		}
		return fmt.Errorf("insert invoice: %w", err)
	}
	return nil
}

// GetByID fetches an invoice by id.
func (r *InvoiceRepo) GetByID(ctx context.Context, id string) (*domain.Invoice, error) {
	query := `SELECT ` + invoiceColumns + ` FROM invoices WHERE id = $1`

	inv, err := scanInvoice(r.pool.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get invoice by id: %w", err)
	}
	return inv, nil
}

// UpdateStatus moves the invoice from -> to in a single conditional UPDATE.
// Zero affected rows means another writer got there first.
func (r *InvoiceRepo) UpdateStatus(ctx context.Context, id string, from, to domain.InvoiceStatus, at time.Time) error {
	query := `UPDATE invoices SET status = $1, updated_at = $2 WHERE id = $3 AND status = $4`

	tag, err := r.pool.Exec(ctx, query, to, at, id, from)
	if err != nil {
		return fmt.Errorf("update invoice status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ports.ErrStaleInvoice
	}
	return nil
}

// ListByMerchant returns every invoice of a merchant, newest first.
func (r *InvoiceRepo) ListByMerchant(ctx context.Context, merchantID string) ([]domain.Invoice, error) {
	query := `SELECT ` + invoiceColumns + ` FROM invoices WHERE merchant_id = $1 ORDER BY created_at DESC`
	return r.list(ctx, query, merchantID)
}

// ListOpen returns invoices still awaiting settlement, oldest first.
func (r *InvoiceRepo) ListOpen(ctx context.Context) ([]domain.Invoice, error) {
	query := `SELECT ` + invoiceColumns + ` FROM invoices WHERE status IN ('PENDING', 'CONFIRMED') ORDER BY created_at`
	return r.list(ctx, query)
}

func (r *InvoiceRepo) list(ctx context.Context, query string, args ...any) ([]domain.Invoice, error) {
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list invoices: %w", err)
	}
	defer rows.Close()

	invoices := make([]domain.Invoice, 0)
	for rows.Next() {
		inv, err := scanInvoice(rows)
		if err != nil {
			return nil, fmt.Errorf("scan invoice row: %w", err)
		}
		invoices = append(invoices, *inv)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate invoice rows: %w", err)
	}
	return invoices, nil
}

func scanInvoice(row pgx.Row) (*domain.Invoice, error) {
	inv := &domain.Invoice{}
	var fiat string
	err := row.Scan(
		&inv.ID, &inv.MerchantID, &inv.AmountSmallestUnit, &fiat, &inv.Currency,
		&inv.TargetAddress, &inv.Status, &inv.Description, &inv.CreatedAt, &inv.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if inv.FiatAmount, err = decimal.NewFromString(fiat); err != nil {
		return nil, fmt.Errorf("parse fiat amount %q: %w", fiat, err)
	}
	return inv, nil
}
