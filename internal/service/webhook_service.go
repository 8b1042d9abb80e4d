package service

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"crypto-invoice-gateway/internal/core/domain"
	"crypto-invoice-gateway/internal/core/ports"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

// defaultWebhookRetryIntervals are the waits before each redelivery.
var defaultWebhookRetryIntervals = []time.Duration{
	15 * time.Second,
	60 * time.Second,
	2 * time.Minute,
	5 * time.Minute,
	10 * time.Minute,
}

// Webhook headers.
const (
	HeaderWebhookEvent = "X-Webhook-Event"
	HeaderSignature    = "X-Signature"
)

// WebhookPayload is the JSON structure sent to a merchant's webhook_url.
type WebhookPayload struct {
	EventType string             `json:"event_type"`
	Data      WebhookPayloadData `json:"data"`
}

// WebhookPayloadData holds the invoice transition details.
type WebhookPayloadData struct {
	InvoiceID          string          `json:"invoice_id"`
	MerchantID         string          `json:"merchant_id"`
	PreviousStatus     string          `json:"previous_status"`
	Status             string          `json:"status"`
	AmountSmallestUnit int64           `json:"amount_smallest_unit"`
	FiatAmount         decimal.Decimal `json:"fiat_amount"`
	Currency           string          `json:"currency"`
	Address            string          `json:"address"`
	Timestamp          int64           `json:"timestamp"`
}

// EventTypeFor names the webhook event for entering status.
func EventTypeFor(status domain.InvoiceStatus) string {
	return "INVOICE_" + string(status)
}

// HTTPClient interface for testability.
type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

// webhookService implements ports.WebhookService.
type webhookService struct {
	merchantRepo   ports.MerchantRepository
	webhookRepo    ports.WebhookRepository
	encSvc         ports.EncryptionService
	sigSvc         ports.SignatureService
	httpClient     HTTPClient
	retryIntervals []time.Duration
	log            zerolog.Logger
}

// NewWebhookService creates a new webhook service.
// webhookRepo may be nil, in which case deliveries are only logged.
func NewWebhookService(
	merchantRepo ports.MerchantRepository,
	webhookRepo ports.WebhookRepository,
	encSvc ports.EncryptionService,
	sigSvc ports.SignatureService,
	httpClient HTTPClient,
	log zerolog.Logger,
) ports.WebhookService {
	return newWebhookService(merchantRepo, webhookRepo, encSvc, sigSvc, httpClient, defaultWebhookRetryIntervals, log)
}

func newWebhookService(
	merchantRepo ports.MerchantRepository,
	webhookRepo ports.WebhookRepository,
	encSvc ports.EncryptionService,
	sigSvc ports.SignatureService,
	httpClient HTTPClient,
	retryIntervals []time.Duration,
	log zerolog.Logger,
) *webhookService {
	return &webhookService{
		merchantRepo:   merchantRepo,
		webhookRepo:    webhookRepo,
		encSvc:         encSvc,
		sigSvc:         sigSvc,
		httpClient:     httpClient,
		retryIntervals: retryIntervals,
		log:            log,
	}
}

// NotifyTransition signs and enqueues a webhook for one applied transition.
// Delivery runs asynchronously with retries.
func (s *webhookService) NotifyTransition(ctx context.Context, invoice *domain.Invoice, transition domain.Transition) error {
	merchant, err := s.merchantRepo.GetByID(ctx, invoice.MerchantID)
	if err != nil {
		s.log.Error().Err(err).Str("merchant_id", invoice.MerchantID).Msg("webhook: failed to fetch merchant")
		return err
	}
	if merchant == nil || !merchant.HasWebhook() {
		s.log.Debug().Str("merchant_id", invoice.MerchantID).Msg("webhook: no webhook URL configured, skipping")
		return nil
	}

	secret, err := s.encSvc.Decrypt(merchant.WebhookSecretEnc)
	if err != nil {
		s.log.Error().Err(err).Str("merchant_id", merchant.ID).Msg("webhook: failed to decrypt merchant webhook secret")
		return err
	}

	payload := WebhookPayload{
		EventType: EventTypeFor(transition.To),
		Data: WebhookPayloadData{
			InvoiceID:          invoice.ID,
			MerchantID:         invoice.MerchantID,
			PreviousStatus:     string(transition.From),
			Status:             string(transition.To),
			AmountSmallestUnit: invoice.AmountSmallestUnit,
			FiatAmount:         invoice.FiatAmount,
			Currency:           string(invoice.Currency),
			Address:            invoice.TargetAddress,
			Timestamp:          transition.At.Unix(),
		},
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal webhook payload: %w", err)
	}

	ts := time.Now().Unix()
	signature := FormatSignatureHeader(ts, s.sigSvc.Sign(secret, SignedPayload(ts, body)))

	now := time.Now().UTC()
	delivery := &domain.WebhookDeliveryLog{
		ID:         uuid.New(),
		InvoiceID:  invoice.ID,
		MerchantID: merchant.ID,
		WebhookURL: *merchant.WebhookURL,
		Payload:    string(body),
		Status:     domain.WebhookStatusPending,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if s.webhookRepo != nil {
		if err := s.webhookRepo.Create(ctx, delivery); err != nil {
			s.log.Warn().Err(err).Str("invoice_id", invoice.ID).Msg("webhook: failed to record delivery")
		}
	}

	go s.deliverWithRetries(delivery, payload.EventType, body, signature)

	return nil
}

// deliverWithRetries posts body until a 2xx response or the retries run out.
func (s *webhookService) deliverWithRetries(delivery *domain.WebhookDeliveryLog, eventType string, body []byte, signature string) {
	log := s.log.With().Str("invoice_id", delivery.InvoiceID).Str("event", eventType).Logger()

	for attempt := 0; attempt <= len(s.retryIntervals); attempt++ {
		if attempt > 0 {
			time.Sleep(s.retryIntervals[attempt-1])
		}
		delivery.Attempt = attempt + 1

		status, err := s.post(delivery.WebhookURL, eventType, body, signature)
		if status != 0 {
			delivery.HTTPStatus = &status
		}
		if err == nil {
			delivery.Status = domain.WebhookStatusDelivered
			delivery.LastError = nil
			s.record(delivery)
			log.Info().Int("attempt", delivery.Attempt).Int("status", status).Msg("webhook: delivered successfully")
			return
		}

		msg := err.Error()
		delivery.LastError = &msg
		s.record(delivery)
		log.Warn().Err(err).Int("attempt", delivery.Attempt).Msg("webhook: delivery failed")
	}

	delivery.Status = domain.WebhookStatusFailed
	s.record(delivery)
	log.Error().Msg("webhook: all retry attempts exhausted")
}

func (s *webhookService) post(url, eventType string, body []byte, signature string) (int, error) {
	req, err := http.NewRequest(http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return 0, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(HeaderWebhookEvent, eventType)
	req.Header.Set(HeaderSignature, signature)

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return 0, err
	}
	resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return resp.StatusCode, fmt.Errorf("non-2xx response: %d", resp.StatusCode)
	}
	return resp.StatusCode, nil
}

func (s *webhookService) record(delivery *domain.WebhookDeliveryLog) {
	if s.webhookRepo == nil {
		return
	}
	snapshot := *delivery
	if err := s.webhookRepo.Update(context.Background(), &snapshot); err != nil {
		s.log.Warn().Err(err).Str("invoice_id", delivery.InvoiceID).Msg("webhook: failed to update delivery log")
	}
}
