package service

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"crypto-invoice-gateway/internal/core/domain"
	"crypto-invoice-gateway/internal/core/ports/mocks"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

func newTestLogger() zerolog.Logger {
	return zerolog.New(io.Discard)
}

func webhookInvoice() *domain.Invoice {
	now := time.Now().UTC()
	return &domain.Invoice{
		ID:                 "INV-000001",
		MerchantID:         "merchant-1",
		AmountSmallestUnit: 105263,
		FiatAmount:         decimal.NewFromInt(100),
		Currency:           domain.CurrencyUSD,
		TargetAddress:      "mzBc4XEFSdzCDcTxAgf6EZXgsZWpztRhef",
		Status:             domain.InvoiceStatusConfirmed,
		CreatedAt:          now,
		UpdatedAt:          now,
	}
}

func webhookTransition() domain.Transition {
	return domain.Transition{From: domain.InvoiceStatusPending, To: domain.InvoiceStatusConfirmed, At: time.Now()}
}

type capturedRequest struct {
	header http.Header
	body   []byte
}

func TestWebhookService_NotifyTransition_SignedDelivery(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	received := make(chan capturedRequest, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		received <- capturedRequest{header: r.Header.Clone(), body: body}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	mockMerchantRepo := mocks.NewMockMerchantRepository(ctrl)
	mockEncSvc := mocks.NewMockEncryptionService(ctrl)
	sigSvc := NewHMACSignatureService()

	url := srv.URL
	mockMerchantRepo.EXPECT().GetByID(gomock.Any(), "merchant-1").Return(&domain.Merchant{
		ID:               "merchant-1",
		WebhookURL:       &url,
		WebhookSecretEnc: "enc-secret",
	}, nil)
	mockEncSvc.EXPECT().Decrypt("enc-secret").Return("whsec-plain", nil)

	svc := NewWebhookService(mockMerchantRepo, nil, mockEncSvc, sigSvc, srv.Client(), newTestLogger())

	require.NoError(t, svc.NotifyTransition(context.Background(), webhookInvoice(), webhookTransition()))

	select {
	case req := <-received:
		assert.Equal(t, "application/json", req.header.Get("Content-Type"))
		assert.Equal(t, "INVOICE_CONFIRMED", req.header.Get(HeaderWebhookEvent))

		ts, sig, err := ParseSignatureHeader(req.header.Get(HeaderSignature))
		require.NoError(t, err)
		assert.True(t, sigSvc.Verify("whsec-plain", SignedPayload(ts, req.body), sig))

		var payload WebhookPayload
		require.NoError(t, json.Unmarshal(req.body, &payload))
		assert.Equal(t, "INV-000001", payload.Data.InvoiceID)
		assert.Equal(t, "PENDING", payload.Data.PreviousStatus)
		assert.Equal(t, "CONFIRMED", payload.Data.Status)
		assert.Equal(t, int64(105263), payload.Data.AmountSmallestUnit)
	case <-time.After(2 * time.Second):
		t.Fatal("webhook delivery timed out")
	}
}

func TestWebhookService_RetriesUntilDelivered(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	mockMerchantRepo := mocks.NewMockMerchantRepository(ctrl)
	mockWebhookRepo := mocks.NewMockWebhookRepository(ctrl)
	mockEncSvc := mocks.NewMockEncryptionService(ctrl)

	url := srv.URL
	mockMerchantRepo.EXPECT().GetByID(gomock.Any(), "merchant-1").Return(&domain.Merchant{
		ID: "merchant-1", WebhookURL: &url, WebhookSecretEnc: "enc",
	}, nil)
	mockEncSvc.EXPECT().Decrypt("enc").Return("secret", nil)
	mockWebhookRepo.EXPECT().Create(gomock.Any(), gomock.Any()).DoAndReturn(
		func(_ context.Context, l *domain.WebhookDeliveryLog) error {
			assert.Equal(t, domain.WebhookStatusPending, l.Status)
			return nil
		})

	final := make(chan domain.WebhookDeliveryLog, 1)
	mockWebhookRepo.EXPECT().Update(gomock.Any(), gomock.Any()).DoAndReturn(
		func(_ context.Context, l *domain.WebhookDeliveryLog) error {
			if l.Status == domain.WebhookStatusDelivered {
				final <- *l
			}
			return nil
		}).Times(3)

	svc := newWebhookService(mockMerchantRepo, mockWebhookRepo, mockEncSvc, NewHMACSignatureService(),
		srv.Client(), []time.Duration{time.Millisecond, time.Millisecond, time.Millisecond}, newTestLogger())

	require.NoError(t, svc.NotifyTransition(context.Background(), webhookInvoice(), webhookTransition()))

	select {
	case l := <-final:
		assert.Equal(t, 3, l.Attempt)
		require.NotNil(t, l.HTTPStatus)
		assert.Equal(t, http.StatusNoContent, *l.HTTPStatus)
		assert.Nil(t, l.LastError)
	case <-time.After(2 * time.Second):
		t.Fatal("webhook was not delivered after retries")
	}
}

func TestWebhookService_GivesUpAfterRetries(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	mockMerchantRepo := mocks.NewMockMerchantRepository(ctrl)
	mockWebhookRepo := mocks.NewMockWebhookRepository(ctrl)
	mockEncSvc := mocks.NewMockEncryptionService(ctrl)

	url := srv.URL
	mockMerchantRepo.EXPECT().GetByID(gomock.Any(), gomock.Any()).Return(&domain.Merchant{
		ID: "merchant-1", WebhookURL: &url, WebhookSecretEnc: "enc",
	}, nil)
	mockEncSvc.EXPECT().Decrypt(gomock.Any()).Return("secret", nil)
	mockWebhookRepo.EXPECT().Create(gomock.Any(), gomock.Any()).Return(nil)

	failed := make(chan domain.WebhookDeliveryLog, 1)
	mockWebhookRepo.EXPECT().Update(gomock.Any(), gomock.Any()).DoAndReturn(
		func(_ context.Context, l *domain.WebhookDeliveryLog) error {
			if l.Status == domain.WebhookStatusFailed {
				failed <- *l
			}
			return nil
		}).AnyTimes()

	svc := newWebhookService(mockMerchantRepo, mockWebhookRepo, mockEncSvc, NewHMACSignatureService(),
		srv.Client(), []time.Duration{time.Millisecond}, newTestLogger())

	require.NoError(t, svc.NotifyTransition(context.Background(), webhookInvoice(), webhookTransition()))

	select {
	case l := <-failed:
		assert.Equal(t, 2, l.Attempt)
		require.NotNil(t, l.LastError)
		assert.Contains(t, *l.LastError, "500")
	case <-time.After(2 * time.Second):
		t.Fatal("delivery never marked failed")
	}
}

func TestWebhookService_NoWebhookURL(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	mockMerchantRepo := mocks.NewMockMerchantRepository(ctrl)
	mockEncSvc := mocks.NewMockEncryptionService(ctrl)
	mockSigSvc := mocks.NewMockSignatureService(ctrl)

	mockMerchantRepo.EXPECT().GetByID(gomock.Any(), "merchant-1").Return(&domain.Merchant{ID: "merchant-1"}, nil)

	svc := NewWebhookService(mockMerchantRepo, nil, mockEncSvc, mockSigSvc, http.DefaultClient, newTestLogger())

	assert.NoError(t, svc.NotifyTransition(context.Background(), webhookInvoice(), webhookTransition()))
}

func TestWebhookService_MerchantLookupError(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	mockMerchantRepo := mocks.NewMockMerchantRepository(ctrl)
	mockMerchantRepo.EXPECT().GetByID(gomock.Any(), gomock.Any()).Return(nil, errors.New("db error"))

	svc := NewWebhookService(mockMerchantRepo, nil, mocks.NewMockEncryptionService(ctrl),
		mocks.NewMockSignatureService(ctrl), http.DefaultClient, newTestLogger())

	assert.Error(t, svc.NotifyTransition(context.Background(), webhookInvoice(), webhookTransition()))
}

func TestWebhookService_DecryptError(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	mockMerchantRepo := mocks.NewMockMerchantRepository(ctrl)
	mockEncSvc := mocks.NewMockEncryptionService(ctrl)

	url := "https://merchant.example.com/webhook"
	mockMerchantRepo.EXPECT().GetByID(gomock.Any(), gomock.Any()).Return(&domain.Merchant{
		ID: "merchant-1", WebhookURL: &url, WebhookSecretEnc: "bad-encrypted",
	}, nil)
	mockEncSvc.EXPECT().Decrypt("bad-encrypted").Return("", errors.New("decrypt failed"))

	svc := NewWebhookService(mockMerchantRepo, nil, mockEncSvc, mocks.NewMockSignatureService(ctrl),
		http.DefaultClient, newTestLogger())

	assert.Error(t, svc.NotifyTransition(context.Background(), webhookInvoice(), webhookTransition()))
}

func TestEventTypeFor(t *testing.T) {
	assert.Equal(t, "INVOICE_COMPLETED", EventTypeFor(domain.InvoiceStatusCompleted))
	assert.Equal(t, "INVOICE_FAILED", EventTypeFor(domain.InvoiceStatusFailed))
}
