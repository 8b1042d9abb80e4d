package service

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"

	"crypto-invoice-gateway/internal/core/domain"
	"crypto-invoice-gateway/internal/core/ports"
	"crypto-invoice-gateway/pkg/apperror"

	"github.com/rs/zerolog"
)

type merchantService struct {
	merchantRepo ports.MerchantRepository
	ledger       ports.LedgerRepository
	addresses    ports.AddressIssuer
	oracle       ports.ConversionOracle
	encSvc       ports.EncryptionService
	audit        ports.AuditService
	log          zerolog.Logger
}

// NewMerchantService creates a new merchant management service.
func NewMerchantService(
	merchantRepo ports.MerchantRepository,
	ledger ports.LedgerRepository,
	addresses ports.AddressIssuer,
	oracle ports.ConversionOracle,
	encSvc ports.EncryptionService,
	audit ports.AuditService,
	log zerolog.Logger,
) ports.MerchantService {
	return &merchantService{
		merchantRepo: merchantRepo,
		ledger:       ledger,
		addresses:    addresses,
		oracle:       oracle,
		encSvc:       encSvc,
		audit:        audit,
		log:          log,
	}
}

// Register creates the merchant, its receiving address, a webhook signing
// secret and an empty ledger account. The secret is returned only here.
func (s *merchantService) Register(ctx context.Context, req ports.RegisterMerchantRequest) (*ports.RegisterMerchantResponse, error) {
	name := strings.TrimSpace(req.BusinessName)
	if name == "" || len(name) > domain.MaxBusinessNameLength {
		return nil, apperror.Validation(fmt.Sprintf("business_name must be 1-%d characters", domain.MaxBusinessNameLength))
	}

	existing, err := s.merchantRepo.GetByID(ctx, req.MerchantID)
	if err != nil {
		return nil, apperror.InternalError(err)
	}
	if existing != nil {
		return nil, apperror.ErrMerchantExists()
	}

	address, err := s.addresses.NewAddress(ctx, req.MerchantID)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("issue address: %w", err))
	}

	secret, err := generateKey("whsec_", 32)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("generate webhook secret: %w", err))
	}
	secretEnc, err := s.encSvc.Encrypt(secret)
	if err != nil {
		return nil, apperror.ErrEncryptionFailure(fmt.Errorf("encrypt webhook secret: %w", err))
	}

	now := time.Now().UTC()
	merchant := &domain.Merchant{
		ID:               req.MerchantID,
		BusinessName:     name,
		StaticAddress:    address,
		WebhookURL:       req.WebhookURL,
		WebhookSecretEnc: secretEnc,
		CreatedAt:        now,
		UpdatedAt:        now,
	}
	if err := s.merchantRepo.Create(ctx, merchant); err != nil {
		if errors.Is(err, ports.ErrDuplicate) {
			return nil, apperror.ErrMerchantExists()
		}
		return nil, apperror.InternalError(fmt.Errorf("create merchant: %w", err))
	}

	if _, err := s.ledger.GetOrCreate(ctx, merchant.ID); err != nil {
		return nil, apperror.InternalError(fmt.Errorf("open ledger: %w", err))
	}

	s.log.Info().
		Str("merchant_id", merchant.ID).
		Str("address", address).
		Msg("merchant registered")

	actor := merchant.ID
	s.audit.Log(ctx, newAuditEntry(&actor, domain.AuditActionRegisterMerchant, "merchant", merchant.ID, map[string]any{
		"business_name": name,
	}))

	return &ports.RegisterMerchantResponse{
		Merchant:      merchant,
		WebhookSecret: secret,
	}, nil
}

func (s *merchantService) GetProfile(ctx context.Context, merchantID string) (*domain.Merchant, error) {
	merchant, err := s.merchantRepo.GetByID(ctx, merchantID)
	if err != nil {
		return nil, apperror.InternalError(err)
	}
	if merchant == nil {
		return nil, apperror.ErrNotFound("merchant")
	}
	return merchant, nil
}

// UpdateWebhookURL sets or, with nil, clears the notification endpoint.
func (s *merchantService) UpdateWebhookURL(ctx context.Context, merchantID string, webhookURL *string) (*domain.Merchant, error) {
	if _, err := s.GetProfile(ctx, merchantID); err != nil {
		return nil, err
	}
	if err := s.merchantRepo.UpdateWebhookURL(ctx, merchantID, webhookURL); err != nil {
		return nil, apperror.InternalError(err)
	}

	actor := merchantID
	s.audit.Log(ctx, newAuditEntry(&actor, domain.AuditActionUpdateWebhook, "merchant", merchantID, map[string]any{
		"webhook_url": webhookURL,
	}))

	return s.GetProfile(ctx, merchantID)
}

func (s *merchantService) SetPreferredCurrency(ctx context.Context, merchantID string, currency domain.Currency) (*domain.LedgerAccount, error) {
	if _, err := s.oracle.Rate(currency); err != nil {
		return nil, err
	}
	if _, err := s.GetProfile(ctx, merchantID); err != nil {
		return nil, err
	}

	acct, err := s.ledger.SetPreferredCurrency(ctx, merchantID, currency)
	if err != nil {
		return nil, apperror.InternalError(err)
	}

	actor := merchantID
	s.audit.Log(ctx, newAuditEntry(&actor, domain.AuditActionSetCurrency, "ledger", merchantID, map[string]any{
		"currency": currency,
	}))
	return acct, nil
}

func generateKey(prefix string, length int) (string, error) {
	b := make([]byte, length)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return prefix + hex.EncodeToString(b), nil
}
