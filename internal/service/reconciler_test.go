package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"crypto-invoice-gateway/internal/adapter/chain"
	"crypto-invoice-gateway/internal/adapter/storage/memory"
	"crypto-invoice-gateway/internal/core/domain"
	"crypto-invoice-gateway/internal/core/ports"
	"crypto-invoice-gateway/internal/core/ports/mocks"
	"crypto-invoice-gateway/pkg/apperror"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

type reconcilerFixture struct {
	r        *Reconciler
	invoices *memory.InvoiceRepo
	ledger   *memory.LedgerRepo
	source   *mocks.MockConfirmationSource
	webhooks *mocks.MockWebhookService
}

func newReconcilerFixture(t *testing.T, cfg ReconcilerConfig) *reconcilerFixture {
	ctrl := gomock.NewController(t)

	audit := mocks.NewMockAuditService(ctrl)
	audit.EXPECT().Log(gomock.Any(), gomock.Any()).AnyTimes()

	f := &reconcilerFixture{
		invoices: memory.NewInvoiceRepo(),
		ledger:   memory.NewLedgerRepo(),
		source:   mocks.NewMockConfirmationSource(ctrl),
		webhooks: mocks.NewMockWebhookService(ctrl),
	}
	f.r = NewReconciler(f.invoices, f.ledger, f.source, audit, f.webhooks, cfg, newTestLogger())
	return f
}

func (f *reconcilerFixture) seed(t *testing.T, status domain.InvoiceStatus) *domain.Invoice {
	t.Helper()
	now := time.Now().UTC()
	inv := &domain.Invoice{
		ID:                 "INV-000001",
		MerchantID:         "merchant-1",
		AmountSmallestUnit: 105263,
		FiatAmount:         decimal.NewFromInt(100),
		Currency:           domain.CurrencyUSD,
		TargetAddress:      "mzBc4XEFSdzCDcTxAgf6EZXgsZWpztRhef",
		Status:             status,
		CreatedAt:          now,
		UpdatedAt:          now,
	}
	require.NoError(t, f.invoices.Create(context.Background(), inv))
	return inv
}

func (f *reconcilerFixture) account(t *testing.T) *domain.LedgerAccount {
	t.Helper()
	acct, err := f.ledger.GetOrCreate(context.Background(), "merchant-1")
	require.NoError(t, err)
	return acct
}

func (f *reconcilerFixture) status(t *testing.T) domain.InvoiceStatus {
	t.Helper()
	inv, err := f.invoices.GetByID(context.Background(), "INV-000001")
	require.NoError(t, err)
	return inv.Status
}

func TestReconcile_PaidAndConfirmedCompletes(t *testing.T) {
	f := newReconcilerFixture(t, ReconcilerConfig{MinConfirmations: 1})
	inv := f.seed(t, domain.InvoiceStatusPending)

	f.source.EXPECT().ConfirmationsFor(gomock.Any(), inv.TargetAddress).
		Return(domain.Confirmation{Balance: 200000, Confirmations: 1}, nil)
	f.webhooks.EXPECT().NotifyTransition(gomock.Any(), gomock.Any(), gomock.Any()).Return(nil).Times(2)

	status, err := f.r.Reconcile(context.Background(), inv.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.InvoiceStatusCompleted, status)
	assert.Equal(t, domain.InvoiceStatusCompleted, f.status(t))

	acct := f.account(t)
	assert.Equal(t, int64(0), acct.PendingBalance)
	assert.Equal(t, int64(105263), acct.ConfirmedBalance)
	assert.Equal(t, int64(105263), acct.TotalBalance)
}

func TestReconcile_PaidButUnconfirmedThenConfirmed(t *testing.T) {
	f := newReconcilerFixture(t, ReconcilerConfig{MinConfirmations: 2})
	inv := f.seed(t, domain.InvoiceStatusPending)
	f.webhooks.EXPECT().NotifyTransition(gomock.Any(), gomock.Any(), gomock.Any()).Return(nil).Times(2)

	gomock.InOrder(
		f.source.EXPECT().ConfirmationsFor(gomock.Any(), gomock.Any()).
			Return(domain.Confirmation{Balance: 105263, Confirmations: 1}, nil),
		f.source.EXPECT().ConfirmationsFor(gomock.Any(), gomock.Any()).
			Return(domain.Confirmation{Balance: 105263, Confirmations: 2}, nil),
	)

	status, err := f.r.Reconcile(context.Background(), inv.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.InvoiceStatusConfirmed, status)
	assert.Equal(t, int64(105263), f.account(t).PendingBalance)
	assert.Equal(t, int64(0), f.account(t).ConfirmedBalance)

	status, err = f.r.Reconcile(context.Background(), inv.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.InvoiceStatusCompleted, status)
	acct := f.account(t)
	assert.Equal(t, int64(0), acct.PendingBalance)
	assert.Equal(t, int64(105263), acct.ConfirmedBalance)
}

func TestReconcile_IdempotentWithoutNewEvidence(t *testing.T) {
	f := newReconcilerFixture(t, ReconcilerConfig{MinConfirmations: 6})
	inv := f.seed(t, domain.InvoiceStatusPending)

	f.source.EXPECT().ConfirmationsFor(gomock.Any(), gomock.Any()).
		Return(domain.Confirmation{Balance: 105263, Confirmations: 3}, nil).Times(2)
	f.webhooks.EXPECT().NotifyTransition(gomock.Any(), gomock.Any(), gomock.Any()).Return(nil).Times(1)

	first, err := f.r.Reconcile(context.Background(), inv.ID)
	require.NoError(t, err)
	before := *f.account(t)

	second, err := f.r.Reconcile(context.Background(), inv.ID)
	require.NoError(t, err)
	after := *f.account(t)

	assert.Equal(t, first, second)
	assert.Equal(t, before.PendingBalance, after.PendingBalance)
	assert.Equal(t, before.LastUpdated, after.LastUpdated, "no ledger mutation on the second call")
}

func TestReconcile_CompletedIsNoOp(t *testing.T) {
	f := newReconcilerFixture(t, ReconcilerConfig{MinConfirmations: 1})
	inv := f.seed(t, domain.InvoiceStatusCompleted)

	status, err := f.r.Reconcile(context.Background(), inv.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.InvoiceStatusCompleted, status)
}

func TestReconcile_InsufficientEvidenceStaysPending(t *testing.T) {
	f := newReconcilerFixture(t, ReconcilerConfig{MinConfirmations: 1, InvoiceExpiry: 24 * time.Hour})
	inv := f.seed(t, domain.InvoiceStatusPending)

	f.source.EXPECT().ConfirmationsFor(gomock.Any(), gomock.Any()).
		Return(domain.Confirmation{Balance: 105262, Confirmations: 10}, nil)

	status, err := f.r.Reconcile(context.Background(), inv.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.InvoiceStatusPending, status)
	assert.Zero(t, f.account(t).PendingBalance)
}

func TestReconcile_ExpiresStalePendingInvoice(t *testing.T) {
	f := newReconcilerFixture(t, ReconcilerConfig{MinConfirmations: 1, InvoiceExpiry: 24 * time.Hour})
	inv := f.seed(t, domain.InvoiceStatusPending)
	f.r.now = func() time.Time { return inv.CreatedAt.Add(25 * time.Hour) }

	f.source.EXPECT().ConfirmationsFor(gomock.Any(), gomock.Any()).Return(domain.Confirmation{}, nil)
	f.webhooks.EXPECT().NotifyTransition(gomock.Any(), gomock.Any(), gomock.Any()).
		DoAndReturn(func(_ context.Context, _ *domain.Invoice, tr domain.Transition) error {
			assert.Equal(t, domain.InvoiceStatusFailed, tr.To)
			return nil
		})

	status, err := f.r.Reconcile(context.Background(), inv.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.InvoiceStatusFailed, status)

	acct := f.account(t)
	assert.Zero(t, acct.PendingBalance)
	assert.Zero(t, acct.TotalBalance)
}

func TestReconcile_PaymentAfterFailureIsInvalidTransition(t *testing.T) {
	f := newReconcilerFixture(t, ReconcilerConfig{MinConfirmations: 1})
	inv := f.seed(t, domain.InvoiceStatusFailed)

	f.source.EXPECT().ConfirmationsFor(gomock.Any(), gomock.Any()).
		Return(domain.Confirmation{Balance: 200000, Confirmations: 3}, nil)

	status, err := f.r.Reconcile(context.Background(), inv.ID)
	assert.Equal(t, apperror.CodeInvalidTransition, apperror.CodeOf(err))
	assert.False(t, apperror.Retryable(err))
	assert.Equal(t, domain.InvoiceStatusFailed, status)
	assert.Zero(t, f.account(t).TotalBalance)
}

func TestReconcile_SourceUnavailable(t *testing.T) {
	f := newReconcilerFixture(t, ReconcilerConfig{MinConfirmations: 1})
	inv := f.seed(t, domain.InvoiceStatusPending)

	f.source.EXPECT().ConfirmationsFor(gomock.Any(), gomock.Any()).
		Return(domain.Confirmation{}, errors.New("connection refused"))

	status, err := f.r.Reconcile(context.Background(), inv.ID)
	assert.True(t, apperror.Retryable(err))
	assert.Equal(t, domain.InvoiceStatusPending, status)
	assert.Equal(t, domain.InvoiceStatusPending, f.status(t))
}

func TestReconcile_NotFound(t *testing.T) {
	f := newReconcilerFixture(t, ReconcilerConfig{MinConfirmations: 1})

	_, err := f.r.Reconcile(context.Background(), "INV-999999")
	assert.Equal(t, apperror.CodeNotFound, apperror.CodeOf(err))
}

func TestReconcile_ConcurrentCallsApplyLedgerOnce(t *testing.T) {
	f := newReconcilerFixture(t, ReconcilerConfig{MinConfirmations: 1})
	inv := f.seed(t, domain.InvoiceStatusPending)

	f.source.EXPECT().ConfirmationsFor(gomock.Any(), gomock.Any()).
		Return(domain.Confirmation{Balance: 105263, Confirmations: 1}, nil).AnyTimes()
	f.webhooks.EXPECT().NotifyTransition(gomock.Any(), gomock.Any(), gomock.Any()).Return(nil).Times(2)

	var wg sync.WaitGroup
	for i := 0; i < 25; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			status, err := f.r.Reconcile(context.Background(), inv.ID)
			assert.NoError(t, err)
			assert.Equal(t, domain.InvoiceStatusCompleted, status)
		}()
	}
	wg.Wait()

	acct := f.account(t)
	assert.Equal(t, int64(0), acct.PendingBalance)
	assert.Equal(t, int64(105263), acct.ConfirmedBalance)
	assert.Equal(t, int64(105263), acct.TotalBalance)
}

func TestReconcile_OnePaymentSettlesOnlyItsInvoice(t *testing.T) {
	f := newReconcilerFixture(t, ReconcilerConfig{MinConfirmations: 1})
	ctx := context.Background()

	ctrl := gomock.NewController(t)
	audit := mocks.NewMockAuditService(ctrl)
	audit.EXPECT().Log(gomock.Any(), gomock.Any()).AnyTimes()
	merchants := memory.NewMerchantRepo()
	require.NoError(t, merchants.Create(ctx, &domain.Merchant{ID: "merchant-1", BusinessName: "Shop"}))
	invoiceSvc := NewInvoiceService(f.invoices, merchants, chain.NewAddressIssuer(), NewStaticRateOracle(), audit, newTestLogger())

	var created []*domain.Invoice
	for i := 0; i < 3; i++ {
		inv, err := invoiceSvc.CreateInvoice(ctx, ports.CreateInvoiceRequest{
			MerchantID: "merchant-1", FiatAmount: decimal.NewFromInt(100), Currency: domain.CurrencyUSD,
		})
		require.NoError(t, err)
		created = append(created, inv)
	}

	// Only the first invoice's address has received funds; the payment would
	// cover any of the three amounts.
	paid := created[0].TargetAddress
	f.source.EXPECT().ConfirmationsFor(gomock.Any(), gomock.Any()).
		DoAndReturn(func(_ context.Context, address string) (domain.Confirmation, error) {
			if address == paid {
				return domain.Confirmation{Balance: 105263, Confirmations: 1}, nil
			}
			return domain.Confirmation{}, nil
		}).AnyTimes()
	f.webhooks.EXPECT().NotifyTransition(gomock.Any(), gomock.Any(), gomock.Any()).Return(nil).Times(2)

	want := []domain.InvoiceStatus{domain.InvoiceStatusCompleted, domain.InvoiceStatusPending, domain.InvoiceStatusPending}
	for i, inv := range created {
		status, err := f.r.Reconcile(ctx, inv.ID)
		require.NoError(t, err)
		assert.Equal(t, want[i], status, inv.ID)
	}

	acct := f.account(t)
	assert.Equal(t, int64(0), acct.PendingBalance)
	assert.Equal(t, int64(105263), acct.ConfirmedBalance)
	assert.Equal(t, int64(105263), acct.TotalBalance)
}

func TestMarkPaid_AdvancesOneStepPerCall(t *testing.T) {
	f := newReconcilerFixture(t, ReconcilerConfig{MinConfirmations: 1})
	inv := f.seed(t, domain.InvoiceStatusPending)
	f.webhooks.EXPECT().NotifyTransition(gomock.Any(), gomock.Any(), gomock.Any()).Return(nil).Times(2)

	status, err := f.r.MarkPaid(context.Background(), "merchant-1", inv.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.InvoiceStatusConfirmed, status)
	assert.Equal(t, int64(105263), f.account(t).PendingBalance)

	status, err = f.r.MarkPaid(context.Background(), "merchant-1", inv.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.InvoiceStatusCompleted, status)
	assert.Equal(t, int64(105263), f.account(t).ConfirmedBalance)
	assert.Zero(t, f.account(t).PendingBalance)

	status, err = f.r.MarkPaid(context.Background(), "merchant-1", inv.ID)
	assert.Equal(t, apperror.CodeInvalidTransition, apperror.CodeOf(err))
	assert.Equal(t, domain.InvoiceStatusCompleted, status)
	assert.Equal(t, int64(105263), f.account(t).TotalBalance)
}

func TestMarkPaid_RequiresOwnership(t *testing.T) {
	f := newReconcilerFixture(t, ReconcilerConfig{MinConfirmations: 1})
	inv := f.seed(t, domain.InvoiceStatusPending)

	_, err := f.r.MarkPaid(context.Background(), "merchant-2", inv.ID)
	assert.Equal(t, apperror.CodeForbidden, apperror.CodeOf(err))
	assert.Equal(t, domain.InvoiceStatusPending, f.status(t))
}

func TestFail_ReleasesPendingBalance(t *testing.T) {
	f := newReconcilerFixture(t, ReconcilerConfig{MinConfirmations: 1})
	inv := f.seed(t, domain.InvoiceStatusPending)
	f.webhooks.EXPECT().NotifyTransition(gomock.Any(), gomock.Any(), gomock.Any()).Return(nil).Times(2)

	_, err := f.r.MarkPaid(context.Background(), "merchant-1", inv.ID)
	require.NoError(t, err)
	require.Equal(t, int64(105263), f.account(t).PendingBalance)

	status, err := f.r.Fail(context.Background(), "merchant-1", inv.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.InvoiceStatusFailed, status)
	assert.Zero(t, f.account(t).PendingBalance)
	assert.Zero(t, f.account(t).TotalBalance)
}

func TestFail_TerminalInvoiceIsInvalidTransition(t *testing.T) {
	f := newReconcilerFixture(t, ReconcilerConfig{MinConfirmations: 1})
	inv := f.seed(t, domain.InvoiceStatusCompleted)

	status, err := f.r.Fail(context.Background(), "merchant-1", inv.ID)
	assert.ErrorIs(t, err, apperror.ErrInvalidTransition("", ""))
	assert.Equal(t, domain.InvoiceStatusCompleted, status)
}

func TestApplyEdge_LedgerRejectionRevertsStatus(t *testing.T) {
	ctrl := gomock.NewController(t)
	invoices := memory.NewInvoiceRepo()
	ledger := mocks.NewMockLedgerRepository(ctrl)
	audit := mocks.NewMockAuditService(ctrl)
	webhooks := mocks.NewMockWebhookService(ctrl)

	r := NewReconciler(invoices, ledger, mocks.NewMockConfirmationSource(ctrl), audit, webhooks,
		ReconcilerConfig{MinConfirmations: 1}, newTestLogger())

	now := time.Now().UTC()
	require.NoError(t, invoices.Create(context.Background(), &domain.Invoice{
		ID: "INV-000001", MerchantID: "merchant-1", AmountSmallestUnit: 500,
		Status: domain.InvoiceStatusConfirmed, CreatedAt: now, UpdatedAt: now,
	}))

	ledger.EXPECT().Adjust(gomock.Any(), "merchant-1", domain.LedgerDelta{Pending: -500, Confirmed: 500, Total: 500}).
		Return(nil, domain.ErrNegativeBalance)

	status, err := r.MarkPaid(context.Background(), "merchant-1", "INV-000001")
	assert.Equal(t, apperror.CodeNegativeBalance, apperror.CodeOf(err))
	assert.Equal(t, domain.InvoiceStatusConfirmed, status)

	stored, _ := invoices.GetByID(context.Background(), "INV-000001")
	assert.Equal(t, domain.InvoiceStatusConfirmed, stored.Status)
	assert.Equal(t, now, stored.UpdatedAt)
}
