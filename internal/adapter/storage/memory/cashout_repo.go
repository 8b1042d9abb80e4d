package memory

import (
	"context"
	"fmt"
	"sync"

	"crypto-invoice-gateway/internal/core/domain"
	"crypto-invoice-gateway/internal/core/ports"
)

// CashoutRepo implements ports.CashoutRepository.
type CashoutRepo struct {
	mu       sync.RWMutex
	seq      int64
	cashouts map[string]domain.CashoutRequest
}

func NewCashoutRepo() *CashoutRepo {
	return &CashoutRepo{cashouts: make(map[string]domain.CashoutRequest)}
}

func (r *CashoutRepo) NextID(ctx context.Context) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.seq++
	return domain.FormatCashoutID(r.seq), nil
}

func (r *CashoutRepo) Create(ctx context.Context, c *domain.CashoutRequest) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.cashouts[c.ID]; ok {
		return fmt.Errorf("cashout %s: %w", c.ID, ports.ErrDuplicate)
	}
	r.cashouts[c.ID] = *c
	return nil
}

// ListByMerchant iterates a map, so order is unspecified.
func (r *CashoutRepo) ListByMerchant(ctx context.Context, merchantID string) ([]domain.CashoutRequest, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]domain.CashoutRequest, 0)
	for _, c := range r.cashouts {
		if c.MerchantID == merchantID {
			out = append(out, c)
		}
	}
	return out, nil
}
