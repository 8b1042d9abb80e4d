package memory

import (
	"context"
	"fmt"
	"sync"
	"time"

	"crypto-invoice-gateway/internal/core/domain"
	"crypto-invoice-gateway/internal/core/ports"
)

// InvoiceRepo implements ports.InvoiceRepository over a mutex-guarded map.
// Invoices are copied in and out so callers never share the stored value.
type InvoiceRepo struct {
	mu       sync.RWMutex
	seq      int64
	invoices map[string]domain.Invoice
}

// NewInvoiceRepo creates an empty InvoiceRepo.
func NewInvoiceRepo() *InvoiceRepo {
	return &InvoiceRepo{invoices: make(map[string]domain.Invoice)}
}

// NextID reserves the next sequential invoice id.
func (r *InvoiceRepo) NextID(ctx context.Context) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.seq++
	return domain.FormatInvoiceID(r.seq), nil
}

func (r *InvoiceRepo) Create(ctx context.Context, inv *domain.Invoice) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.invoices[inv.ID]; ok {
		return fmt.Errorf("invoice %s: %w", inv.ID, ports.ErrDuplicate)
	}
	r.invoices[inv.ID] = *inv
	return nil
}

func (r *InvoiceRepo) GetByID(ctx context.Context, id string) (*domain.Invoice, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	inv, ok := r.invoices[id]
	if !ok {
		return nil, nil
	}
	return &inv, nil
}

// UpdateStatus swaps the status only while it still equals from.
func (r *InvoiceRepo) UpdateStatus(ctx context.Context, id string, from, to domain.InvoiceStatus, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	inv, ok := r.invoices[id]
	if !ok {
		return fmt.Errorf("invoice not found: %s", id)
	}
	if inv.Status != from {
		return ports.ErrStaleInvoice
	}
	inv.Status = to
	inv.UpdatedAt = at
	r.invoices[id] = inv
	return nil
}

func (r *InvoiceRepo) ListByMerchant(ctx context.Context, merchantID string) ([]domain.Invoice, error) {
	return r.filter(func(inv *domain.Invoice) bool { return inv.MerchantID == merchantID }), nil
}

func (r *InvoiceRepo) ListOpen(ctx context.Context) ([]domain.Invoice, error) {
	return r.filter(func(inv *domain.Invoice) bool { return inv.IsOpen() }), nil
}

func (r *InvoiceRepo) filter(keep func(*domain.Invoice) bool) []domain.Invoice {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]domain.Invoice, 0)
	for _, inv := range r.invoices {
		if keep(&inv) {
			out = append(out, inv)
		}
	}
	return out
}
