package service

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"crypto-invoice-gateway/internal/core/domain"
	"crypto-invoice-gateway/internal/core/ports"
	"crypto-invoice-gateway/pkg/apperror"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	qrcode "github.com/skip2/go-qrcode"
)

// QR code bounds in pixels.
const (
	DefaultQRSize = 256
	MinQRSize     = 128
	MaxQRSize     = 1024
)

var maxFiatAmount = decimal.NewFromInt(domain.MaxFiatAmount)

type invoiceService struct {
	invoices  ports.InvoiceRepository
	merchants ports.MerchantRepository
	addresses ports.AddressIssuer
	oracle    ports.ConversionOracle
	audit     ports.AuditService
	log       zerolog.Logger
}

// NewInvoiceService creates a new invoice service.
func NewInvoiceService(
	invoices ports.InvoiceRepository,
	merchants ports.MerchantRepository,
	addresses ports.AddressIssuer,
	oracle ports.ConversionOracle,
	audit ports.AuditService,
	log zerolog.Logger,
) ports.InvoiceService {
	return &invoiceService{
		invoices:  invoices,
		merchants: merchants,
		addresses: addresses,
		oracle:    oracle,
		audit:     audit,
		log:       log,
	}
}

// CreateInvoice prices the invoice in satoshi at the current rate and issues
// it a payment address of its own.
func (s *invoiceService) CreateInvoice(ctx context.Context, req ports.CreateInvoiceRequest) (*domain.Invoice, error) {
	if !req.FiatAmount.IsPositive() || req.FiatAmount.GreaterThan(maxFiatAmount) {
		return nil, apperror.ErrInvalidAmount()
	}
	if req.Description != nil && len(*req.Description) > domain.MaxDescriptionLength {
		return nil, apperror.Validation(fmt.Sprintf("description must be at most %d characters", domain.MaxDescriptionLength))
	}

	merchant, err := s.merchants.GetByID(ctx, req.MerchantID)
	if err != nil {
		return nil, apperror.InternalError(err)
	}
	if merchant == nil {
		return nil, apperror.ErrNotFound("merchant")
	}

	units, err := s.oracle.ToSmallestUnit(req.FiatAmount, req.Currency)
	if err != nil {
		return nil, err
	}
	if units <= 0 {
		return nil, apperror.ErrInvalidAmount()
	}

	id, err := s.invoices.NextID(ctx)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("next invoice id: %w", err))
	}

	address, err := s.addresses.NewAddress(ctx, domain.InvoiceAddressOwner(merchant.ID, id))
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("issue invoice address: %w", err))
	}

	var desc *string
	if req.Description != nil {
		if d := strings.TrimSpace(*req.Description); d != "" {
			desc = &d
		}
	}

	now := time.Now().UTC()
	inv := &domain.Invoice{
		ID:                 id,
		MerchantID:         merchant.ID,
		AmountSmallestUnit: units,
		FiatAmount:         req.FiatAmount,
		Currency:           req.Currency,
		TargetAddress:      address,
		Status:             domain.InvoiceStatusPending,
		Description:        desc,
		CreatedAt:          now,
		UpdatedAt:          now,
	}
	if err := s.invoices.Create(ctx, inv); err != nil {
		return nil, apperror.InternalError(fmt.Errorf("create invoice: %w", err))
	}
	if err := s.merchants.IncrementInvoiceCount(ctx, merchant.ID); err != nil {
		s.log.Warn().Err(err).Str("merchant_id", merchant.ID).Msg("failed to bump invoice count")
	}

	s.log.Info().
		Str("invoice_id", inv.ID).
		Str("merchant_id", merchant.ID).
		Int64("amount", units).
		Str("address", address).
		Str("fiat", req.FiatAmount.String()).
		Str("currency", string(req.Currency)).
		Msg("invoice created")

	actor := merchant.ID
	s.audit.Log(ctx, newAuditEntry(&actor, domain.AuditActionCreateInvoice, "invoice", inv.ID, map[string]any{
		"fiat_amount":          req.FiatAmount.String(),
		"currency":             req.Currency,
		"amount_smallest_unit": units,
	}))

	return inv, nil
}

// GetInvoice returns the invoice if callerID owns it.
func (s *invoiceService) GetInvoice(ctx context.Context, callerID, invoiceID string) (*domain.Invoice, error) {
	inv, err := s.get(ctx, invoiceID)
	if err != nil {
		return nil, err
	}
	if !inv.OwnedBy(callerID) {
		return nil, apperror.ErrForbidden("Invoice belongs to another merchant")
	}
	return inv, nil
}

// ListInvoices returns the merchant's invoices, newest first.
func (s *invoiceService) ListInvoices(ctx context.Context, merchantID string) ([]domain.Invoice, error) {
	list, err := s.invoices.ListByMerchant(ctx, merchantID)
	if err != nil {
		return nil, apperror.InternalError(err)
	}
	sort.SliceStable(list, func(i, j int) bool {
		if list[i].CreatedAt.Equal(list[j].CreatedAt) {
			return list[i].ID > list[j].ID
		}
		return list[i].CreatedAt.After(list[j].CreatedAt)
	})
	return list, nil
}

// PaymentInfo is public: anyone holding the invoice id may pay it.
func (s *invoiceService) PaymentInfo(ctx context.Context, invoiceID string) (*ports.PaymentInfo, error) {
	inv, err := s.get(ctx, invoiceID)
	if err != nil {
		return nil, err
	}

	var name string
	merchant, err := s.merchants.GetByID(ctx, inv.MerchantID)
	if err != nil {
		return nil, apperror.InternalError(err)
	}
	if merchant != nil {
		name = merchant.BusinessName
	}

	return &ports.PaymentInfo{
		InvoiceID:          inv.ID,
		MerchantName:       name,
		AmountSmallestUnit: inv.AmountSmallestUnit,
		FiatAmount:         inv.FiatAmount,
		Currency:           inv.Currency,
		Address:            inv.TargetAddress,
		Status:             inv.Status,
		PaymentURI:         inv.PaymentURI(),
	}, nil
}

// QRCode renders the invoice's payment URI as a PNG. A size of zero selects
// the default; other sizes are clamped.
func (s *invoiceService) QRCode(ctx context.Context, callerID, invoiceID string, size int) ([]byte, error) {
	inv, err := s.GetInvoice(ctx, callerID, invoiceID)
	if err != nil {
		return nil, err
	}

	png, err := qrcode.Encode(inv.PaymentURI(), qrcode.Medium, clampQRSize(size))
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("encode qr: %w", err))
	}
	return png, nil
}

func (s *invoiceService) get(ctx context.Context, invoiceID string) (*domain.Invoice, error) {
	inv, err := s.invoices.GetByID(ctx, invoiceID)
	if err != nil {
		return nil, apperror.InternalError(err)
	}
	if inv == nil {
		return nil, apperror.ErrNotFound("invoice")
	}
	return inv, nil
}

func clampQRSize(size int) int {
	switch {
	case size == 0:
		return DefaultQRSize
	case size < MinQRSize:
		return MinQRSize
	case size > MaxQRSize:
		return MaxQRSize
	}
	return size
}
