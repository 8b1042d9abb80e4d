package postgres

import (
	"context"
	"errors"
	"fmt"

	"crypto-invoice-gateway/internal/core/domain"

	"github.com/jackc/pgx/v5"
)

const ledgerColumns = `merchant_id, pending_balance, confirmed_balance, total_balance, preferred_currency, last_updated`

// LedgerRepo implements ports.LedgerRepository.
type LedgerRepo struct {
	pool Pool
}

// NewLedgerRepo creates a new LedgerRepo.
func NewLedgerRepo(pool Pool) *LedgerRepo {
	return &LedgerRepo{pool: pool}
}

// GetOrCreate inserts a zeroed account if none exists, then reads it.
func (r *LedgerRepo) GetOrCreate(ctx context.Context, merchantID string) (*domain.LedgerAccount, error) {
	if err := r.ensure(ctx, merchantID); err != nil {
		return nil, err
	}

	query := `SELECT ` + ledgerColumns + ` FROM ledger_accounts WHERE merchant_id = $1`
	acct, err := scanLedgerAccount(r.pool.QueryRow(ctx, query, merchantID))
	if err != nil {
		return nil, fmt.Errorf("get ledger account: %w", err)
	}
	return acct, nil
}

// Adjust applies the delta in one conditional UPDATE. The row lock taken by
// UPDATE serializes concurrent adjustments of the same merchant, and the
// WHERE clause rejects any result below zero without touching the row.
func (r *LedgerRepo) Adjust(ctx context.Context, merchantID string, delta domain.LedgerDelta) (*domain.LedgerAccount, error) {
	if err := r.ensure(ctx, merchantID); err != nil {
		return nil, err
	}

	query := `UPDATE ledger_accounts
		SET pending_balance = pending_balance + $2,
			confirmed_balance = confirmed_balance + $3,
			total_balance = total_balance + $4,
			last_updated = NOW()
		WHERE merchant_id = $1
			AND pending_balance + $2 >= 0
			AND confirmed_balance + $3 >= 0
			AND total_balance + $4 >= 0
		RETURNING ` + ledgerColumns

	acct, err := scanLedgerAccount(r.pool.QueryRow(ctx, query, merchantID, delta.Pending, delta.Confirmed, delta.Total))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNegativeBalance
		}
		return nil, fmt.Errorf("adjust ledger account: %w", err)
	}
	return acct, nil
}

// SetPreferredCurrency updates the display currency of an account.
func (r *LedgerRepo) SetPreferredCurrency(ctx context.Context, merchantID string, currency domain.Currency) (*domain.LedgerAccount, error) {
	if err := r.ensure(ctx, merchantID); err != nil {
		return nil, err
	}

	query := `UPDATE ledger_accounts SET preferred_currency = $2, last_updated = NOW()
		WHERE merchant_id = $1 RETURNING ` + ledgerColumns

	acct, err := scanLedgerAccount(r.pool.QueryRow(ctx, query, merchantID, currency))
	if err != nil {
		return nil, fmt.Errorf("set preferred currency: %w", err)
	}
	return acct, nil
}

func (r *LedgerRepo) ensure(ctx context.Context, merchantID string) error {
	query := `INSERT INTO ledger_accounts (merchant_id, preferred_currency, last_updated)
		VALUES ($1, $2, NOW()) ON CONFLICT (merchant_id) DO NOTHING`

	if _, err := r.pool.Exec(ctx, query, merchantID, domain.DefaultCurrency); err != nil {
		return fmt.Errorf("ensure ledger account: %w", err)
	}
	return nil
}

func scanLedgerAccount(row pgx.Row) (*domain.LedgerAccount, error) {
	a := &domain.LedgerAccount{}
	err := row.Scan(
		&a.MerchantID, &a.PendingBalance, &a.ConfirmedBalance, &a.TotalBalance,
		&a.PreferredCurrency, &a.LastUpdated,
	)
	if err != nil {
		return nil, err
	}
	return a, nil
}
