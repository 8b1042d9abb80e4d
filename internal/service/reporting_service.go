package service

import (
	"context"
	"fmt"

	"crypto-invoice-gateway/internal/core/domain"
	"crypto-invoice-gateway/internal/core/ports"
	"crypto-invoice-gateway/pkg/apperror"
)

// reportingService implements ports.ReportingService.
type reportingService struct {
	invoices ports.InvoiceRepository
	ledger   ports.LedgerRepository
	oracle   ports.ConversionOracle
}

// NewReportingService creates a new reporting service.
func NewReportingService(
	invoices ports.InvoiceRepository,
	ledger ports.LedgerRepository,
	oracle ports.ConversionOracle,
) ports.ReportingService {
	return &reportingService{
		invoices: invoices,
		ledger:   ledger,
		oracle:   oracle,
	}
}

// GetBalance returns the merchant's ledger account, creating a zeroed one on first read.
func (s *reportingService) GetBalance(ctx context.Context, merchantID string) (*domain.LedgerAccount, error) {
	acct, err := s.ledger.GetOrCreate(ctx, merchantID)
	if err != nil {
		return nil, apperror.InternalError(err)
	}
	return acct, nil
}

// GetDashboard counts invoices by status and values the total balance in the
// merchant's preferred currency.
func (s *reportingService) GetDashboard(ctx context.Context, merchantID string) (*ports.Dashboard, error) {
	acct, err := s.GetBalance(ctx, merchantID)
	if err != nil {
		return nil, err
	}

	list, err := s.invoices.ListByMerchant(ctx, merchantID)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("list invoices: %w", err))
	}

	d := &ports.Dashboard{
		TotalInvoices:     int64(len(list)),
		PendingBalance:    acct.PendingBalance,
		ConfirmedBalance:  acct.ConfirmedBalance,
		TotalBalance:      acct.TotalBalance,
		PreferredCurrency: acct.PreferredCurrency,
	}
	for i := range list {
		switch list[i].Status {
		case domain.InvoiceStatusCompleted:
			d.CompletedInvoices++
		case domain.InvoiceStatusFailed:
			d.FailedInvoices++
		default:
			d.OpenInvoices++
		}
	}

	d.TotalFiatValue, err = s.oracle.ToFiat(acct.TotalBalance, acct.PreferredCurrency)
	if err != nil {
		return nil, err
	}
	return d, nil
}
