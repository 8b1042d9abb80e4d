package postgres

import (
	"context"
	"fmt"

	"crypto-invoice-gateway/internal/core/domain"
	"crypto-invoice-gateway/internal/core/ports"

	"github.com/shopspring/decimal"
)

// CashoutRepo implements ports.CashoutRepository.
type CashoutRepo struct {
	pool Pool
}

// NewCashoutRepo creates a new CashoutRepo.
func NewCashoutRepo(pool Pool) *CashoutRepo {
	return &CashoutRepo{pool: pool}
}

// NextID draws the next cashout number from cashout_seq.
func (r *CashoutRepo) NextID(ctx context.Context) (string, error) {
	n, err := nextSequenceValue(ctx, r.pool, "cashout_seq")
	if err != nil {
		return "", err
	}
	return domain.FormatCashoutID(n), nil
}

// Create inserts a cashout request. Only the encrypted bank details are stored.
func (r *CashoutRepo) Create(ctx context.Context, c *domain.CashoutRequest) error {
	query := `INSERT INTO cashout_requests (id, merchant_id, amount_smallest_unit, target_currency,
		fiat_amount_equivalent, status, bank_details_enc, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`

	_, err := r.pool.Exec(ctx, query,
		c.ID, c.MerchantID, c.AmountSmallestUnit, c.TargetCurrency,
		c.FiatAmountEquivalent.String(), c.Status, c.BankDetailsEnc, c.CreatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("cashout %s: %w", c.ID, ports.ErrDuplicate)
		}
		return fmt.Errorf("insert cashout: %w", err)
	}
	return nil
}

// ListByMerchant returns the merchant's cashouts. No ordering is promised.
func (r *CashoutRepo) ListByMerchant(ctx context.Context, merchantID string) ([]domain.CashoutRequest, error) {
	query := `SELECT id, merchant_id, amount_smallest_unit, target_currency,
		fiat_amount_equivalent::text, status, bank_details_enc, created_at
		FROM cashout_requests WHERE merchant_id = $1`

	rows, err := r.pool.Query(ctx, query, merchantID)
	if err != nil {
		return nil, fmt.Errorf("list cashouts: %w", err)
	}
	defer rows.Close()

	cashouts := make([]domain.CashoutRequest, 0)
	for rows.Next() {
		var c domain.CashoutRequest
		var fiat string
		if err := rows.Scan(
			&c.ID, &c.MerchantID, &c.AmountSmallestUnit, &c.TargetCurrency,
			&fiat, &c.Status, &c.BankDetailsEnc, &c.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan cashout row: %w", err)
		}
		if c.FiatAmountEquivalent, err = decimal.NewFromString(fiat); err != nil {
			return nil, fmt.Errorf("parse fiat equivalent %q: %w", fiat, err)
		}
		cashouts = append(cashouts, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate cashout rows: %w", err)
	}
	return cashouts, nil
}
