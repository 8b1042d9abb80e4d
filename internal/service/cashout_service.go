package service

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"crypto-invoice-gateway/internal/core/domain"
	"crypto-invoice-gateway/internal/core/ports"
	"crypto-invoice-gateway/pkg/apperror"

	"github.com/rs/zerolog"
)

const (
	idempotencyTTL      = 24 * time.Hour
	idempotencyClaimTTL = 30 * time.Second
)

// cachedCashout is what the idempotency cache stores per key. RequestHash
// ties the response to the request that produced it.
type cachedCashout struct {
	RequestHash string                `json:"request_hash"`
	Response    domain.CashoutRequest `json:"response"`
}

// CashoutProcessor implements ports.CashoutService.
type CashoutProcessor struct {
	cashouts   ports.CashoutRepository
	ledger     ports.LedgerRepository
	oracle     ports.ConversionOracle
	encSvc     ports.EncryptionService
	idempCache ports.IdempotencyCache
	audit      ports.AuditService
	log        zerolog.Logger
}

// NewCashoutProcessor creates a new CashoutProcessor.
func NewCashoutProcessor(
	cashouts ports.CashoutRepository,
	ledger ports.LedgerRepository,
	oracle ports.ConversionOracle,
	encSvc ports.EncryptionService,
	idempCache ports.IdempotencyCache,
	audit ports.AuditService,
	log zerolog.Logger,
) *CashoutProcessor {
	return &CashoutProcessor{
		cashouts:   cashouts,
		ledger:     ledger,
		oracle:     oracle,
		encSvc:     encSvc,
		idempCache: idempCache,
		audit:      audit,
		log:        log,
	}
}

// CreateCashout debits confirmed and total balance and records a Pending
// cashout. The read of the ledger is only a fast-fail; LedgerRepository.Adjust
// is what actually refuses an overdraft.
func (s *CashoutProcessor) CreateCashout(ctx context.Context, req ports.CashoutCreateRequest) (*domain.CashoutRequest, error) {
	if req.Amount <= 0 || req.Amount > domain.MaxCashoutAmount {
		return nil, apperror.ErrInvalidAmount()
	}
	if _, err := s.oracle.Rate(req.TargetCurrency); err != nil {
		return nil, err
	}

	if req.IdempotencyKey != "" {
		key := domain.BuildCashoutIdempotencyKey(req.MerchantID, req.IdempotencyKey)
		reqHash := cashoutRequestHash(req)

		cached, err := s.idempCache.Get(ctx, key)
		if err != nil {
			s.log.Warn().Err(err).Str("key", key).Msg("idempotency cache lookup failed, proceeding")
		}
		if cached != nil {
			return s.unmarshalCachedCashout(cached, reqHash)
		}

		claimed, err := s.idempCache.Claim(ctx, key, idempotencyClaimTTL)
		if err != nil {
			s.log.Warn().Err(err).Str("key", key).Msg("idempotency claim failed, proceeding")
		} else if !claimed {
			return nil, apperror.ErrRequestInProgress()
		} else {
			defer func() {
				if err := s.idempCache.Release(context.Background(), key); err != nil {
					s.log.Warn().Err(err).Str("key", key).Msg("failed to release idempotency claim")
				}
			}()
		}

		// A concurrent holder may have finished between Get and Claim.
		if cached, _ := s.idempCache.Get(ctx, key); cached != nil {
			return s.unmarshalCachedCashout(cached, reqHash)
		}

		cashout, err := s.create(ctx, req)
		if err != nil {
			return nil, err
		}

		entry := cachedCashout{RequestHash: reqHash, Response: *cashout}
		entry.Response.BankDetails = nil
		if respJSON, err := json.Marshal(entry); err == nil {
			if err := s.idempCache.Set(ctx, key, respJSON, idempotencyTTL); err != nil {
				s.log.Warn().Err(err).Str("key", key).Msg("failed to cache cashout response")
			}
		}
		return cashout, nil
	}

	return s.create(ctx, req)
}

func (s *CashoutProcessor) create(ctx context.Context, req ports.CashoutCreateRequest) (*domain.CashoutRequest, error) {
	acct, err := s.ledger.GetOrCreate(ctx, req.MerchantID)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("read ledger: %w", err))
	}
	if acct.ConfirmedBalance < req.Amount {
		return nil, apperror.ErrInsufficientBalance()
	}

	fiat, err := s.oracle.ToFiat(req.Amount, req.TargetCurrency)
	if err != nil {
		return nil, err
	}

	var bankEnc string
	if req.BankDetails != nil && *req.BankDetails != "" {
		bankEnc, err = s.encSvc.Encrypt(*req.BankDetails)
		if err != nil {
			return nil, apperror.ErrEncryptionFailure(fmt.Errorf("encrypt bank details: %w", err))
		}
	}

	id, err := s.cashouts.NextID(ctx)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("next cashout id: %w", err))
	}

	debit := domain.LedgerDelta{Confirmed: -req.Amount, Total: -req.Amount}
	if _, err := s.ledger.Adjust(ctx, req.MerchantID, debit); err != nil {
		if errors.Is(err, domain.ErrNegativeBalance) {
			return nil, apperror.ErrInsufficientBalance()
		}
		return nil, apperror.InternalError(fmt.Errorf("debit ledger: %w", err))
	}

	stored := &domain.CashoutRequest{
		ID:                   id,
		MerchantID:           req.MerchantID,
		AmountSmallestUnit:   req.Amount,
		TargetCurrency:       req.TargetCurrency,
		FiatAmountEquivalent: fiat,
		Status:               domain.CashoutStatusPending,
		BankDetailsEnc:       bankEnc,
		CreatedAt:            time.Now().UTC(),
	}
	if err := s.cashouts.Create(ctx, stored); err != nil {
		credit := domain.LedgerDelta{Confirmed: req.Amount, Total: req.Amount}
		if _, rerr := s.ledger.Adjust(ctx, req.MerchantID, credit); rerr != nil {
			s.log.Error().Err(rerr).
				Str("merchant_id", req.MerchantID).
				Int64("amount", req.Amount).
				Msg("failed to restore ledger after cashout persist error")
		}
		return nil, apperror.InternalError(fmt.Errorf("create cashout: %w", err))
	}

	s.log.Info().
		Str("cashout_id", stored.ID).
		Str("merchant_id", req.MerchantID).
		Int64("amount", req.Amount).
		Str("currency", string(req.TargetCurrency)).
		Msg("cashout requested")

	actor := req.MerchantID
	s.audit.Log(ctx, newAuditEntry(&actor, domain.AuditActionCreateCashout, "cashout", stored.ID, map[string]any{
		"amount":   req.Amount,
		"currency": req.TargetCurrency,
		"fiat":     fiat.String(),
	}))

	result := *stored
	result.BankDetails = req.BankDetails
	return &result, nil
}

// ListForMerchant returns the merchant's cashouts with bank details decrypted.
// Order is unspecified.
func (s *CashoutProcessor) ListForMerchant(ctx context.Context, merchantID string) ([]domain.CashoutRequest, error) {
	list, err := s.cashouts.ListByMerchant(ctx, merchantID)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("list cashouts: %w", err))
	}
	for i := range list {
		if list[i].BankDetailsEnc == "" {
			continue
		}
		plain, err := s.encSvc.Decrypt(list[i].BankDetailsEnc)
		if err != nil {
			return nil, apperror.ErrEncryptionFailure(fmt.Errorf("decrypt bank details of %s: %w", list[i].ID, err))
		}
		list[i].BankDetails = &plain
	}
	return list, nil
}

// unmarshalCachedCashout returns the cached response, or IDM_002 when the key
// was first used for a different request.
func (s *CashoutProcessor) unmarshalCachedCashout(data []byte, reqHash string) (*domain.CashoutRequest, error) {
	var c cachedCashout
	if err := json.Unmarshal(data, &c); err != nil {
		return nil, apperror.InternalError(fmt.Errorf("unmarshal cached cashout: %w", err))
	}
	if c.RequestHash != reqHash {
		return nil, apperror.ErrIdempotencyKeyReused()
	}
	return &c.Response, nil
}

// cashoutRequestHash fingerprints the fields that decide what a cashout does.
func cashoutRequestHash(req ports.CashoutCreateRequest) string {
	var bank string
	if req.BankDetails != nil {
		bank = *req.BankDetails
	}
	sum := sha256.Sum256([]byte(fmt.Sprintf("%d\x00%s\x00%s", req.Amount, req.TargetCurrency, bank)))
	return hex.EncodeToString(sum[:])
}
