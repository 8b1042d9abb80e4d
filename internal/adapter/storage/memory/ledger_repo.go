package memory

import (
	"context"
	"sync"
	"time"

	"crypto-invoice-gateway/internal/core/domain"
)

// LedgerRepo implements ports.LedgerRepository. A single mutex serializes
// every adjustment, which makes Adjust atomic per merchant key.
type LedgerRepo struct {
	mu       sync.Mutex
	accounts map[string]domain.LedgerAccount
	now      func() time.Time
}

// NewLedgerRepo creates an empty LedgerRepo.
func NewLedgerRepo() *LedgerRepo {
	return &LedgerRepo{
		accounts: make(map[string]domain.LedgerAccount),
		now:      time.Now,
	}
}

// GetOrCreate returns the merchant's account, creating a zeroed one on first access.
func (r *LedgerRepo) GetOrCreate(ctx context.Context, merchantID string) (*domain.LedgerAccount, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	acct := r.load(merchantID)
	return &acct, nil
}

// Adjust applies delta all-or-nothing. On domain.ErrNegativeBalance the
// stored account is untouched.
func (r *LedgerRepo) Adjust(ctx context.Context, merchantID string, delta domain.LedgerDelta) (*domain.LedgerAccount, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	acct := r.load(merchantID)
	if err := acct.Apply(delta, r.now()); err != nil {
		return nil, err
	}
	r.accounts[merchantID] = acct
	return &acct, nil
}

func (r *LedgerRepo) SetPreferredCurrency(ctx context.Context, merchantID string, currency domain.Currency) (*domain.LedgerAccount, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	acct := r.load(merchantID)
	acct.PreferredCurrency = currency
	acct.LastUpdated = r.now()
	r.accounts[merchantID] = acct
	return &acct, nil
}

// load must be called with mu held.
func (r *LedgerRepo) load(merchantID string) domain.LedgerAccount {
	acct, ok := r.accounts[merchantID]
	if !ok {
		acct = *domain.NewLedgerAccount(merchantID, r.now())
		r.accounts[merchantID] = acct
	}
	return acct
}
