// Package worker runs background settlement of open invoices.
package worker

import (
	"context"
	"time"

	"crypto-invoice-gateway/internal/core/ports"
	"crypto-invoice-gateway/pkg/apperror"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
)

// Poller periodically reconciles every open invoice against the chain.
type Poller struct {
	invoices    ports.InvoiceRepository
	reconciler  ports.PaymentReconciler
	interval    time.Duration
	concurrency int
	log         zerolog.Logger
}

// NewPoller creates a poller. Concurrency below one is treated as one.
func NewPoller(
	invoices ports.InvoiceRepository,
	reconciler ports.PaymentReconciler,
	interval time.Duration,
	concurrency int,
	log zerolog.Logger,
) *Poller {
	if concurrency < 1 {
		concurrency = 1
	}
	return &Poller{
		invoices:    invoices,
		reconciler:  reconciler,
		interval:    interval,
		concurrency: concurrency,
		log:         log.With().Str("component", "poller").Logger(),
	}
}

// Run blocks until ctx is cancelled, sweeping once per interval.
func (p *Poller) Run(ctx context.Context) {
	p.log.Info().
		Dur("interval", p.interval).
		Int("concurrency", p.concurrency).
		Msg("invoice poller started")

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			p.log.Info().Msg("invoice poller stopped")
			return
		case <-ticker.C:
			p.Sweep(ctx)
		}
	}
}

// Sweep reconciles all open invoices once and returns how many moved to a
// different status. Failures are logged; a temporarily unavailable source is
// simply retried on the next sweep.
func (p *Poller) Sweep(ctx context.Context) int {
	open, err := p.invoices.ListOpen(ctx)
	if err != nil {
		p.log.Error().Err(err).Msg("failed to list open invoices")
		return 0
	}
	if len(open) == 0 {
		return 0
	}

	moved := make([]bool, len(open))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.concurrency)

	for i := range open {
		inv := open[i]
		g.Go(func() error {
			status, err := p.reconciler.Reconcile(gctx, inv.ID)
			switch {
			case err == nil:
				moved[i] = status != inv.Status
			case apperror.Retryable(err):
				p.log.Warn().Err(err).Str("invoice_id", inv.ID).Msg("confirmation source unavailable")
			default:
				p.log.Error().Err(err).Str("invoice_id", inv.ID).Msg("reconcile failed")
			}
			// Never abort the sweep for one invoice.
			return nil
		})
	}
	_ = g.Wait()

	var n int
	for _, m := range moved {
		if m {
			n++
		}
	}
	p.log.Debug().Int("open", len(open)).Int("moved", n).Msg("sweep finished")
	return n
}
