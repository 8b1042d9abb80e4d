package handler

import (
	"crypto-invoice-gateway/internal/adapter/http/middleware"
	redisStore "crypto-invoice-gateway/internal/adapter/storage/redis"
	"crypto-invoice-gateway/internal/core/domain"
	"crypto-invoice-gateway/internal/core/ports"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
)

// maxBodyBytes bounds every request body.
const maxBodyBytes = 1 << 20

// RouterDeps holds all dependencies needed to set up routes.
type RouterDeps struct {
	MerchantSvc    ports.MerchantService
	InvoiceSvc     ports.InvoiceService
	Reconciler     ports.PaymentReconciler
	CashoutSvc     ports.CashoutService
	ReportingSvc   ports.ReportingService
	Oracle         ports.ConversionOracle
	TokenSvc       ports.TokenService
	RateLimitStore *redisStore.RateLimitStore // nil = rate limiting disabled
	HealthCheckers []ports.HealthChecker
	AuditSvc       ports.AuditService // nil = request audit disabled
	Logger         zerolog.Logger
}

// SetupRouter initialises the Gin engine with all routes and middleware.
func SetupRouter(deps RouterDeps) *gin.Engine {
	r := gin.New()

	// Global middleware
	r.Use(middleware.RequestID())
	r.Use(middleware.Recovery(deps.Logger))
	r.Use(middleware.RequestLogger(deps.Logger))
	r.Use(middleware.MaxBodySize(maxBodyBytes))

	if deps.AuditSvc != nil {
		r.Use(middleware.AuditLog(deps.AuditSvc))
	}

	r.GET("/health", HealthCheck(deps.HealthCheckers...))

	rules := middleware.DefaultRateLimitRules()

	// Helper: return rate limiter middleware if store is available, else noop.
	rl := func(group string) gin.HandlerFunc {
		if deps.RateLimitStore == nil {
			return func(c *gin.Context) { c.Next() }
		}
		rule, ok := rules[group]
		if !ok {
			return func(c *gin.Context) { c.Next() }
		}
		return middleware.RateLimiter(deps.RateLimitStore, group, rule, deps.Logger)
	}

	v1 := r.Group("/api/v1")

	// --- Public ---
	v1.GET("/rates", rl(middleware.GroupPublic), Rates(deps.Oracle))

	jwtAuth := middleware.JWTAuth(deps.TokenSvc, deps.Logger)
	merchantOnly := middleware.RequireRole(domain.RoleMerchant)

	merchantHandler := NewMerchantHandler(deps.MerchantSvc, deps.ReportingSvc)
	invoiceHandler := NewInvoiceHandler(deps.InvoiceSvc, deps.Reconciler)
	cashoutHandler := NewCashoutHandler(deps.CashoutSvc)

	// --- Any authenticated caller (payers included) ---
	v1.GET("/pay/:id", jwtAuth, rl(middleware.GroupPublic), invoiceHandler.PaymentInfo)

	// --- Merchant role ---
	v1.POST("/merchants", jwtAuth, merchantOnly, rl(middleware.GroupRegister), merchantHandler.Register)

	me := v1.Group("/merchants/me", jwtAuth, merchantOnly)
	{
		me.GET("", rl(middleware.GroupRead), merchantHandler.GetProfile)
		me.PUT("/webhook", rl(middleware.GroupRead), merchantHandler.UpdateWebhookURL)
		me.PUT("/currency", rl(middleware.GroupRead), merchantHandler.SetPreferredCurrency)
		me.GET("/balance", rl(middleware.GroupRead), merchantHandler.GetBalance)
		me.GET("/dashboard", rl(middleware.GroupRead), merchantHandler.GetDashboard)
	}

	invoices := v1.Group("/invoices", jwtAuth, merchantOnly)
	{
		invoices.POST("", rl(middleware.GroupInvoices), invoiceHandler.Create)
		invoices.GET("", rl(middleware.GroupRead), invoiceHandler.List)
		invoices.GET("/:id", rl(middleware.GroupRead), invoiceHandler.Get)
		invoices.GET("/:id/qr", rl(middleware.GroupRead), invoiceHandler.QRCode)
		invoices.POST("/:id/reconcile", rl(middleware.GroupOperator), invoiceHandler.Reconcile)
		invoices.POST("/:id/mark-paid", rl(middleware.GroupOperator), invoiceHandler.MarkPaid)
		invoices.POST("/:id/fail", rl(middleware.GroupOperator), invoiceHandler.Fail)
	}

	cashouts := v1.Group("/cashouts", jwtAuth, merchantOnly)
	{
		cashouts.POST("", rl(middleware.GroupCashouts), cashoutHandler.Create)
		cashouts.GET("", rl(middleware.GroupRead), cashoutHandler.List)
	}

	return r
}
