package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"crypto-invoice-gateway/internal/core/domain"
	"crypto-invoice-gateway/internal/core/ports"
	"crypto-invoice-gateway/pkg/apperror"

	"github.com/rs/zerolog"
)

// ReconcilerConfig tunes how evidence maps onto invoice status.
type ReconcilerConfig struct {
	MinConfirmations int
	// InvoiceExpiry fails Pending invoices without sufficient evidence once
	// they are this old. Zero disables expiry.
	InvoiceExpiry time.Duration
}

// Reconciler implements ports.PaymentReconciler.
//
// Every status change goes through domain.Apply, a compare-and-set on the
// invoice store and then LedgerRepository.Adjust, so ledger balances are always
// derivable from the sequence of applied transitions.
type Reconciler struct {
	invoices ports.InvoiceRepository
	ledger   ports.LedgerRepository
	source   ports.ConfirmationSource
	audit    ports.AuditService
	webhooks ports.WebhookService
	cfg      ReconcilerConfig
	locks    *keyedMutex
	now      func() time.Time
	log      zerolog.Logger
}

// NewReconciler creates a payment reconciler.
func NewReconciler(
	invoices ports.InvoiceRepository,
	ledger ports.LedgerRepository,
	source ports.ConfirmationSource,
	audit ports.AuditService,
	webhooks ports.WebhookService,
	cfg ReconcilerConfig,
	log zerolog.Logger,
) *Reconciler {
	if cfg.MinConfirmations < 1 {
		cfg.MinConfirmations = 1
	}
	return &Reconciler{
		invoices: invoices,
		ledger:   ledger,
		source:   source,
		audit:    audit,
		webhooks: webhooks,
		cfg:      cfg,
		locks:    newKeyedMutex(),
		now:      func() time.Time { return time.Now().UTC() },
		log:      log,
	}
}

// Reconcile brings the invoice in line with the chain's current evidence.
// The confirmation source is queried without holding the invoice lock; the
// stored invoice is re-read under the lock before anything is applied.
func (r *Reconciler) Reconcile(ctx context.Context, invoiceID string) (domain.InvoiceStatus, error) {
	inv, err := r.load(ctx, invoiceID)
	if err != nil {
		return "", err
	}
	if inv.Status == domain.InvoiceStatusCompleted {
		return inv.Status, nil
	}

	conf, err := r.source.ConfirmationsFor(ctx, inv.TargetAddress)
	if err != nil {
		if apperror.Retryable(err) {
			return inv.Status, err
		}
		return inv.Status, apperror.ErrTemporarilyUnavailable(err)
	}

	unlock := r.locks.Lock(invoiceID)
	defer unlock()

	inv, err = r.load(ctx, invoiceID)
	if err != nil {
		return "", err
	}

	target, ok := conf.TargetStatus(inv.AmountSmallestUnit, r.cfg.MinConfirmations)
	if !ok {
		if r.expired(inv) {
			if _, err := r.applyEdge(ctx, inv, domain.InvoiceStatusFailed, nil); err != nil {
				return inv.Status, err
			}
			r.log.Info().Str("invoice_id", inv.ID).Msg("invoice expired without payment")
		}
		return inv.Status, nil
	}
	if target == inv.Status {
		return inv.Status, nil
	}

	path := domain.PathTo(inv.Status, target)
	if len(path) == 0 {
		if inv.Status == domain.InvoiceStatusFailed {
			return inv.Status, apperror.ErrInvalidTransition(string(inv.Status), string(target))
		}
		// Evidence lags the stored status; nothing moves backwards.
		return inv.Status, nil
	}

	for _, to := range path {
		if _, err := r.applyEdge(ctx, inv, to, nil); err != nil {
			return inv.Status, err
		}
	}

	r.log.Debug().
		Str("invoice_id", inv.ID).
		Int64("balance", conf.Balance).
		Int("confirmations", conf.Confirmations).
		Str("status", string(inv.Status)).
		Msg("invoice reconciled")

	return inv.Status, nil
}

// MarkPaid is the operator path: it advances the caller's invoice exactly one
// step (Pending to Confirmed, then Confirmed to Completed on the next call).
func (r *Reconciler) MarkPaid(ctx context.Context, callerID, invoiceID string) (domain.InvoiceStatus, error) {
	unlock := r.locks.Lock(invoiceID)
	defer unlock()

	inv, err := r.loadOwned(ctx, callerID, invoiceID)
	if err != nil {
		return "", err
	}

	next, ok := domain.NextPaidStatus(inv.Status)
	if !ok {
		return inv.Status, apperror.ErrInvalidTransition(string(inv.Status), string(domain.InvoiceStatusCompleted))
	}
	if _, err := r.applyEdge(ctx, inv, next, &callerID); err != nil {
		return inv.Status, err
	}
	return inv.Status, nil
}

// Fail cancels an open invoice owned by the caller.
func (r *Reconciler) Fail(ctx context.Context, callerID, invoiceID string) (domain.InvoiceStatus, error) {
	unlock := r.locks.Lock(invoiceID)
	defer unlock()

	inv, err := r.loadOwned(ctx, callerID, invoiceID)
	if err != nil {
		return "", err
	}
	if _, err := r.applyEdge(ctx, inv, domain.InvoiceStatusFailed, &callerID); err != nil {
		return inv.Status, err
	}
	return inv.Status, nil
}

// applyEdge crosses one edge of the state machine. On success inv reflects
// the new status; on failure it is left as it was.
func (r *Reconciler) applyEdge(ctx context.Context, inv *domain.Invoice, to domain.InvoiceStatus, actor *string) (domain.Transition, error) {
	prev := *inv

	tr, err := domain.Apply(inv, to, r.now())
	if err != nil {
		return domain.Transition{}, apperror.ErrInvalidTransition(string(prev.Status), string(to))
	}

	if err := r.invoices.UpdateStatus(ctx, inv.ID, tr.From, tr.To, tr.At); err != nil {
		*inv = prev
		if errors.Is(err, ports.ErrStaleInvoice) {
			return domain.Transition{}, apperror.ErrInvalidTransition(string(prev.Status), string(to))
		}
		return domain.Transition{}, apperror.InternalError(fmt.Errorf("persist invoice status: %w", err))
	}

	if delta := domain.LedgerDeltaFor(tr, inv.AmountSmallestUnit); !delta.IsZero() {
		if _, err := r.ledger.Adjust(ctx, inv.MerchantID, delta); err != nil {
			r.revert(ctx, inv, prev, tr)
			*inv = prev
			if errors.Is(err, domain.ErrNegativeBalance) {
				return domain.Transition{}, apperror.ErrNegativeBalance()
			}
			return domain.Transition{}, apperror.InternalError(fmt.Errorf("adjust ledger: %w", err))
		}
	}

	r.log.Info().
		Str("invoice_id", inv.ID).
		Str("merchant_id", inv.MerchantID).
		Str("from", string(tr.From)).
		Str("to", string(tr.To)).
		Msg("invoice transition applied")

	r.audit.Log(ctx, newAuditEntry(actor, domain.AuditActionInvoiceTransition, "invoice", inv.ID, map[string]any{
		"from":   tr.From,
		"to":     tr.To,
		"amount": inv.AmountSmallestUnit,
	}))
	if err := r.webhooks.NotifyTransition(ctx, inv, tr); err != nil {
		r.log.Warn().Err(err).Str("invoice_id", inv.ID).Msg("failed to enqueue transition webhook")
	}

	return tr, nil
}

// revert undoes a persisted status whose ledger adjustment was refused.
func (r *Reconciler) revert(ctx context.Context, inv *domain.Invoice, prev domain.Invoice, tr domain.Transition) {
	if err := r.invoices.UpdateStatus(ctx, inv.ID, tr.To, prev.Status, prev.UpdatedAt); err != nil {
		r.log.Error().Err(err).
			Str("invoice_id", inv.ID).
			Str("status", string(tr.To)).
			Msg("failed to revert invoice status after ledger rejection")
	}
}

func (r *Reconciler) expired(inv *domain.Invoice) bool {
	return r.cfg.InvoiceExpiry > 0 &&
		inv.Status == domain.InvoiceStatusPending &&
		r.now().Sub(inv.CreatedAt) > r.cfg.InvoiceExpiry
}

func (r *Reconciler) load(ctx context.Context, invoiceID string) (*domain.Invoice, error) {
	inv, err := r.invoices.GetByID(ctx, invoiceID)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("load invoice: %w", err))
	}
	if inv == nil {
		return nil, apperror.ErrNotFound("invoice")
	}
	return inv, nil
}

func (r *Reconciler) loadOwned(ctx context.Context, callerID, invoiceID string) (*domain.Invoice, error) {
	inv, err := r.load(ctx, invoiceID)
	if err != nil {
		return nil, err
	}
	if !inv.OwnedBy(callerID) {
		return nil, apperror.ErrForbidden("Invoice belongs to another merchant")
	}
	return inv, nil
}
