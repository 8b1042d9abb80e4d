package handler_test

import (
	"bytes"
	"encoding/json"
	"image/png"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"crypto-invoice-gateway/internal/adapter/chain"
	"crypto-invoice-gateway/internal/adapter/http/handler"
	"crypto-invoice-gateway/internal/adapter/storage/memory"
	redisStore "crypto-invoice-gateway/internal/adapter/storage/redis"
	"crypto-invoice-gateway/internal/core/domain"
	"crypto-invoice-gateway/internal/core/ports"
	"crypto-invoice-gateway/internal/service"

	"github.com/alicebob/miniredis/v2"
	"github.com/gin-gonic/gin"
	goredis "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testAESKey = "0123456789abcdef0123456789abcdef0123456789abcdef0123456789abcdef"

// gateway wires the full HTTP stack over in-memory storage, miniredis and a
// fake Esplora server whose UTXO set the test controls.
type gateway struct {
	server *httptest.Server
	tokens ports.TokenService
	utxos  sync.Map // address -> utxo JSON
}

// pay makes address report the given UTXO set.
func (g *gateway) pay(address, utxos string) {
	g.utxos.Store(address, utxos)
}

func newGateway(t *testing.T) *gateway {
	t.Helper()
	gin.SetMode(gin.TestMode)

	g := &gateway{}

	esplora := http.NewServeMux()
	esplora.HandleFunc("/address/", func(w http.ResponseWriter, r *http.Request) {
		address, ok := strings.CutSuffix(strings.TrimPrefix(r.URL.Path, "/address/"), "/utxo")
		if !ok {
			http.NotFound(w, r)
			return
		}
		utxos := `[]`
		if v, found := g.utxos.Load(address); found {
			utxos = v.(string)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(utxos))
	})
	esplora.HandleFunc("/blocks/tip/height", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("102"))
	})
	esploraSrv := httptest.NewServer(esplora)
	t.Cleanup(esploraSrv.Close)

	mr := miniredis.RunT(t)
	rdb := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	log := zerolog.Nop()
	encSvc, err := service.NewAESEncryptionService(testAESKey)
	require.NoError(t, err)

	invoices := memory.NewInvoiceRepo()
	ledger := memory.NewLedgerRepo()
	merchants := memory.NewMerchantRepo()
	cashouts := memory.NewCashoutRepo()

	oracle := service.NewStaticRateOracle()
	addresses := chain.NewAddressIssuer()
	audit := service.NewAuditService(nil, log)
	source := chain.NewEsploraSource(esploraSrv.URL, esploraSrv.Client(), log)
	webhooks := service.NewWebhookService(merchants, nil, encSvc, service.NewHMACSignatureService(), http.DefaultClient, log)
	reconciler := service.NewReconciler(invoices, ledger, source, audit, webhooks,
		service.ReconcilerConfig{MinConfirmations: 1}, log)

	g.tokens = service.NewJWTTokenService("router-test-secret-0123456789abcdef", time.Hour, "crypto-invoice-gateway")

	router := handler.SetupRouter(handler.RouterDeps{
		MerchantSvc:    service.NewMerchantService(merchants, ledger, addresses, oracle, encSvc, audit, log),
		InvoiceSvc:     service.NewInvoiceService(invoices, merchants, addresses, oracle, audit, log),
		Reconciler:     reconciler,
		CashoutSvc:     service.NewCashoutProcessor(cashouts, ledger, oracle, encSvc, redisStore.NewIdempotencyCache(rdb), audit, log),
		ReportingSvc:   service.NewReportingService(invoices, ledger, oracle),
		Oracle:         oracle,
		TokenSvc:       g.tokens,
		RateLimitStore: redisStore.NewRateLimitStore(rdb),
		HealthCheckers: []ports.HealthChecker{redisStore.NewHealthCheck(rdb), source},
		AuditSvc:       audit,
		Logger:         log,
	})

	g.server = httptest.NewServer(router)
	t.Cleanup(g.server.Close)
	return g
}

func (g *gateway) token(t *testing.T, subject string, role domain.Role) string {
	t.Helper()
	tok, _, err := g.tokens.Generate(subject, role)
	require.NoError(t, err)
	return tok
}

type apiResult struct {
	status int
	body   map[string]any
	raw    []byte
	header http.Header
}

func (r apiResult) data() map[string]any {
	d, _ := r.body["data"].(map[string]any)
	return d
}

func (g *gateway) do(t *testing.T, method, path, token string, body any, headers map[string]string) apiResult {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req, err := http.NewRequest(method, g.server.URL+path, &buf)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := g.server.Client().Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	var raw bytes.Buffer
	_, err = raw.ReadFrom(resp.Body)
	require.NoError(t, err)

	res := apiResult{status: resp.StatusCode, raw: raw.Bytes(), header: resp.Header}
	if strings.HasPrefix(resp.Header.Get("Content-Type"), "application/json") {
		require.NoError(t, json.Unmarshal(res.raw, &res.body))
	}
	return res
}

func TestRouter_InvoiceToCashoutFlow(t *testing.T) {
	g := newGateway(t)
	merchant := g.token(t, "merchant-1", domain.RoleMerchant)
	customer := g.token(t, "customer-1", domain.RoleCustomer)

	// Register.
	res := g.do(t, http.MethodPost, "/api/v1/merchants", merchant, map[string]any{"business_name": "Corner Shop"}, nil)
	require.Equal(t, http.StatusCreated, res.status, string(res.raw))
	assert.True(t, strings.HasPrefix(res.data()["webhook_secret"].(string), "whsec_"))
	address := res.data()["merchant"].(map[string]any)["static_address"].(string)
	assert.Equal(t, chain.DeriveAddress([]byte("merchant-1")), address)

	res = g.do(t, http.MethodPost, "/api/v1/merchants", merchant, map[string]any{"business_name": "Corner Shop"}, nil)
	assert.Equal(t, http.StatusConflict, res.status)

	// Invoice for 100 USD.
	res = g.do(t, http.MethodPost, "/api/v1/invoices", merchant, map[string]any{"fiat_amount": "100", "currency": "USD"}, nil)
	require.Equal(t, http.StatusCreated, res.status, string(res.raw))
	invoiceID := res.data()["id"].(string)
	invoiceAddress := res.data()["target_address"].(string)
	assert.Equal(t, "INV-000001", invoiceID)
	assert.Equal(t, float64(105263), res.data()["amount_smallest_unit"])
	assert.Equal(t, chain.DeriveAddress([]byte(domain.InvoiceAddressOwner("merchant-1", invoiceID))), res.data()["target_address"])
	assert.NotEqual(t, address, res.data()["target_address"])

	// Nothing on chain yet.
	res = g.do(t, http.MethodPost, "/api/v1/invoices/"+invoiceID+"/reconcile", merchant, nil, nil)
	require.Equal(t, http.StatusOK, res.status, string(res.raw))
	assert.Equal(t, "PENDING", res.data()["status"])

	// Paid and buried under three blocks.
	g.pay(invoiceAddress, `[{"txid":"a","vout":0,"value":105263,"status":{"confirmed":true,"block_height":100}}]`)
	res = g.do(t, http.MethodPost, "/api/v1/invoices/"+invoiceID+"/reconcile", merchant, nil, nil)
	require.Equal(t, http.StatusOK, res.status, string(res.raw))
	assert.Equal(t, "COMPLETED", res.data()["status"])

	// A second invoice is not settled by the first invoice's payment.
	res = g.do(t, http.MethodPost, "/api/v1/invoices", merchant, map[string]any{"fiat_amount": "50", "currency": "USD"}, nil)
	require.Equal(t, http.StatusCreated, res.status, string(res.raw))
	secondID := res.data()["id"].(string)
	assert.NotEqual(t, invoiceAddress, res.data()["target_address"])
	res = g.do(t, http.MethodPost, "/api/v1/invoices/"+secondID+"/reconcile", merchant, nil, nil)
	require.Equal(t, http.StatusOK, res.status, string(res.raw))
	assert.Equal(t, "PENDING", res.data()["status"])

	res = g.do(t, http.MethodGet, "/api/v1/merchants/me/balance", merchant, nil, nil)
	require.Equal(t, http.StatusOK, res.status)
	assert.Equal(t, float64(0), res.data()["pending_balance"])
	assert.Equal(t, float64(105263), res.data()["confirmed_balance"])
	assert.Equal(t, float64(105263), res.data()["total_balance"])

	// Overdraw is refused.
	res = g.do(t, http.MethodPost, "/api/v1/cashouts", merchant, map[string]any{"amount": 200000, "target_currency": "USD"}, nil)
	assert.Equal(t, http.StatusPaymentRequired, res.status)
	assert.Equal(t, "LED_002", res.body["error_code"])

	// Cashout, then an idempotent replay.
	idem := map[string]string{handler.HeaderIdempotencyKey: "payout-1"}
	body := map[string]any{"amount": 100000, "target_currency": "USD", "bank_details": "IBAN GB00 0000"}
	res = g.do(t, http.MethodPost, "/api/v1/cashouts", merchant, body, idem)
	require.Equal(t, http.StatusCreated, res.status, string(res.raw))
	cashoutID := res.data()["id"].(string)
	assert.Equal(t, "CASH-000001", cashoutID)
	assert.Equal(t, "95", res.data()["fiat_amount_equivalent"])

	res = g.do(t, http.MethodPost, "/api/v1/cashouts", merchant, body, idem)
	require.Equal(t, http.StatusCreated, res.status, string(res.raw))
	assert.Equal(t, cashoutID, res.data()["id"])

	// Same key, different amount.
	res = g.do(t, http.MethodPost, "/api/v1/cashouts", merchant,
		map[string]any{"amount": 1000, "target_currency": "USD", "bank_details": "IBAN GB00 0000"}, idem)
	assert.Equal(t, http.StatusUnprocessableEntity, res.status, string(res.raw))
	assert.Equal(t, "IDM_002", res.body["error_code"])

	res = g.do(t, http.MethodGet, "/api/v1/merchants/me/balance", merchant, nil, nil)
	assert.Equal(t, float64(5263), res.data()["confirmed_balance"])
	assert.Equal(t, float64(5263), res.data()["total_balance"])

	res = g.do(t, http.MethodGet, "/api/v1/cashouts", merchant, nil, nil)
	require.Equal(t, http.StatusOK, res.status)
	list := res.body["data"].([]any)
	require.Len(t, list, 1)
	assert.Equal(t, "IBAN GB00 0000", list[0].(map[string]any)["bank_details"])

	// Payers may look up payment details but not act as merchants.
	res = g.do(t, http.MethodGet, "/api/v1/pay/"+invoiceID, customer, nil, nil)
	require.Equal(t, http.StatusOK, res.status)
	assert.Equal(t, "Corner Shop", res.data()["merchant_name"])
	assert.Equal(t, "COMPLETED", res.data()["status"])

	res = g.do(t, http.MethodPost, "/api/v1/invoices", customer, map[string]any{"fiat_amount": "5", "currency": "USD"}, nil)
	assert.Equal(t, http.StatusForbidden, res.status)

	// A completed invoice cannot be failed.
	res = g.do(t, http.MethodPost, "/api/v1/invoices/"+invoiceID+"/fail", merchant, nil, nil)
	assert.Equal(t, http.StatusConflict, res.status)
	assert.Equal(t, "INV_002", res.body["error_code"])
}

func TestRouter_QRCode(t *testing.T) {
	g := newGateway(t)
	merchant := g.token(t, "merchant-1", domain.RoleMerchant)

	res := g.do(t, http.MethodPost, "/api/v1/merchants", merchant, map[string]any{"business_name": "Shop"}, nil)
	require.Equal(t, http.StatusCreated, res.status)
	res = g.do(t, http.MethodPost, "/api/v1/invoices", merchant, map[string]any{"fiat_amount": 10, "currency": "GBP"}, nil)
	require.Equal(t, http.StatusCreated, res.status, string(res.raw))

	res = g.do(t, http.MethodGet, "/api/v1/invoices/INV-000001/qr?size=200", merchant, nil, nil)
	require.Equal(t, http.StatusOK, res.status)
	assert.Equal(t, "image/png", res.header.Get("Content-Type"))
	img, err := png.Decode(bytes.NewReader(res.raw))
	require.NoError(t, err)
	assert.Equal(t, 200, img.Bounds().Dx())
}

func TestRouter_OwnershipIsEnforced(t *testing.T) {
	g := newGateway(t)
	alice := g.token(t, "alice", domain.RoleMerchant)
	bob := g.token(t, "bob", domain.RoleMerchant)

	for _, tok := range []string{alice, bob} {
		res := g.do(t, http.MethodPost, "/api/v1/merchants", tok, map[string]any{"business_name": "Shop"}, nil)
		require.Equal(t, http.StatusCreated, res.status)
	}
	res := g.do(t, http.MethodPost, "/api/v1/invoices", alice, map[string]any{"fiat_amount": 10, "currency": "USD"}, nil)
	require.Equal(t, http.StatusCreated, res.status)

	for _, path := range []string{"/api/v1/invoices/INV-000001", "/api/v1/invoices/INV-000001/qr"} {
		res = g.do(t, http.MethodGet, path, bob, nil, nil)
		assert.Equal(t, http.StatusForbidden, res.status, path)
	}
	for _, path := range []string{"/reconcile", "/mark-paid", "/fail"} {
		res = g.do(t, http.MethodPost, "/api/v1/invoices/INV-000001"+path, bob, nil, nil)
		assert.Equal(t, http.StatusForbidden, res.status, path)
	}

	res = g.do(t, http.MethodPost, "/api/v1/invoices/INV-000001/mark-paid", alice, nil, nil)
	require.Equal(t, http.StatusOK, res.status)
	assert.Equal(t, "CONFIRMED", res.data()["status"])

	res = g.do(t, http.MethodGet, "/api/v1/merchants/me/balance", alice, nil, nil)
	assert.Greater(t, res.data()["pending_balance"].(float64), float64(0))
}

func TestRouter_AuthAndPublicRoutes(t *testing.T) {
	g := newGateway(t)

	res := g.do(t, http.MethodGet, "/api/v1/invoices", "", nil, nil)
	assert.Equal(t, http.StatusUnauthorized, res.status)

	res = g.do(t, http.MethodGet, "/api/v1/invoices", "not-a-jwt", nil, nil)
	assert.Equal(t, http.StatusUnauthorized, res.status)

	res = g.do(t, http.MethodGet, "/api/v1/rates", "", nil, nil)
	require.Equal(t, http.StatusOK, res.status)
	assert.Equal(t, "95000", res.data()["rates"].(map[string]any)["USD"])

	res = g.do(t, http.MethodGet, "/health", "", nil, nil)
	assert.Equal(t, http.StatusOK, res.status, string(res.raw))
	assert.NotEmpty(t, res.header.Get("X-Request-ID"))
}
