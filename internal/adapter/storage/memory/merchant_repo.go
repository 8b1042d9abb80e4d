package memory

import (
	"context"
	"fmt"
	"sync"
	"time"

	"crypto-invoice-gateway/internal/core/domain"
	"crypto-invoice-gateway/internal/core/ports"
)

// MerchantRepo implements ports.MerchantRepository.
type MerchantRepo struct {
	mu        sync.RWMutex
	merchants map[string]domain.Merchant
}

func NewMerchantRepo() *MerchantRepo {
	return &MerchantRepo{merchants: make(map[string]domain.Merchant)}
}

func (r *MerchantRepo) Create(ctx context.Context, m *domain.Merchant) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.merchants[m.ID]; ok {
		return ports.ErrDuplicate
	}
	r.merchants[m.ID] = *m
	return nil
}

func (r *MerchantRepo) GetByID(ctx context.Context, id string) (*domain.Merchant, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	m, ok := r.merchants[id]
	if !ok {
		return nil, nil
	}
	return &m, nil
}

func (r *MerchantRepo) UpdateWebhookURL(ctx context.Context, id string, webhookURL *string) error {
	return r.update(id, func(m *domain.Merchant) { m.WebhookURL = webhookURL })
}

func (r *MerchantRepo) IncrementInvoiceCount(ctx context.Context, id string) error {
	return r.update(id, func(m *domain.Merchant) { m.TotalInvoices++ })
}

func (r *MerchantRepo) update(id string, fn func(*domain.Merchant)) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	m, ok := r.merchants[id]
	if !ok {
		return fmt.Errorf("merchant not found: %s", id)
	}
	fn(&m)
	m.UpdatedAt = time.Now()
	r.merchants[id] = m
	return nil
}
