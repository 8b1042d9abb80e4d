package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"crypto-invoice-gateway/config"
	"crypto-invoice-gateway/internal/adapter/chain"
	httpHandler "crypto-invoice-gateway/internal/adapter/http/handler"
	memStorage "crypto-invoice-gateway/internal/adapter/storage/memory"
	pgStorage "crypto-invoice-gateway/internal/adapter/storage/postgres"
	redisStorage "crypto-invoice-gateway/internal/adapter/storage/redis"
	"crypto-invoice-gateway/internal/core/ports"
	"crypto-invoice-gateway/internal/service"
	"crypto-invoice-gateway/internal/worker"
	"crypto-invoice-gateway/pkg/logger"

	"github.com/gin-gonic/gin"
)

// repositories bundles the storage backend chosen at startup.
type repositories struct {
	invoices  ports.InvoiceRepository
	ledger    ports.LedgerRepository
	cashouts  ports.CashoutRepository
	merchants ports.MerchantRepository
	audit     ports.AuditRepository
	webhooks  ports.WebhookRepository
}

func main() {
	// Load configuration
	cfg, err := config.Load("")
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	// Initialize logger
	log := logger.New(cfg.Log.Level, cfg.Log.Pretty)
	gin.SetMode(cfg.Server.Mode)

	log.Info().
		Str("mode", cfg.Server.Mode).
		Str("storage", cfg.Storage.Driver).
		Int("port", cfg.Server.Port).
		Msg("Starting Crypto Invoice Gateway")

	ctx, stop := context.WithCancel(context.Background())
	defer stop()

	var (
		repos    repositories
		checkers []ports.HealthChecker
	)

	switch cfg.Storage.Driver {
	case config.StoragePostgres:
		pool, err := pgStorage.NewPool(ctx, cfg.Database, log)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to connect to PostgreSQL")
		}
		defer pool.Close()
		if err := pgStorage.Migrate(ctx, pool); err != nil {
			log.Fatal().Err(err).Msg("Failed to apply schema")
		}
		log.Info().Msg("PostgreSQL connected")

		repos = repositories{
			invoices:  pgStorage.NewInvoiceRepo(pool),
			ledger:    pgStorage.NewLedgerRepo(pool),
			cashouts:  pgStorage.NewCashoutRepo(pool),
			merchants: pgStorage.NewMerchantRepo(pool),
			audit:     pgStorage.NewAuditRepo(pool),
			webhooks:  pgStorage.NewWebhookRepo(pool),
		}
		checkers = append(checkers, pgStorage.NewHealthCheck(pool))
	default:
		log.Warn().Msg("Using in-memory storage; state is lost on restart")
		repos = repositories{
			invoices:  memStorage.NewInvoiceRepo(),
			ledger:    memStorage.NewLedgerRepo(),
			cashouts:  memStorage.NewCashoutRepo(),
			merchants: memStorage.NewMerchantRepo(),
		}
	}

	// Redis backs idempotency and rate limiting when enabled.
	var (
		idempotencyCache ports.IdempotencyCache = memStorage.NewIdempotencyCache()
		rateLimitStore   *redisStorage.RateLimitStore
	)
	if cfg.Redis.Enabled {
		rdb, err := redisStorage.NewClient(ctx, cfg.Redis, log)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to connect to Redis")
		}
		defer rdb.Close()
		log.Info().Msg("Redis connected")

		idempotencyCache = redisStorage.NewIdempotencyCache(rdb)
		rateLimitStore = redisStorage.NewRateLimitStore(rdb)
		checkers = append(checkers, redisStorage.NewHealthCheck(rdb))
	}

	// Initialize core services
	encSvc, err := service.NewAESEncryptionService(cfg.AES.Key)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize encryption service")
	}
	if cfg.JWT.Secret == "" {
		log.Fatal().Msg("jwt.secret is required")
	}
	sigSvc := service.NewHMACSignatureService()
	tokenSvc := service.NewJWTTokenService(cfg.JWT.Secret, cfg.JWT.Expiry, cfg.JWT.Issuer)
	oracle := service.NewStaticRateOracle()

	source := chain.NewEsploraSource(cfg.Chain.EsploraURL, chain.NewHTTPClient(cfg.Chain.Timeout), log)
	checkers = append(checkers, source)

	// Initialize business services
	auditSvc := service.NewAuditService(repos.audit, log)
	webhookSvc := service.NewWebhookService(repos.merchants, repos.webhooks, encSvc, sigSvc,
		&http.Client{Timeout: 10 * time.Second}, log)
	reconciler := service.NewReconciler(repos.invoices, repos.ledger, source, auditSvc, webhookSvc,
		service.ReconcilerConfig{
			MinConfirmations: cfg.Ledger.MinConfirmations,
			InvoiceExpiry:    cfg.Ledger.InvoiceExpiry,
		}, log)
	addresses := chain.NewAddressIssuer()
	invoiceSvc := service.NewInvoiceService(repos.invoices, repos.merchants, addresses, oracle, auditSvc, log)
	merchantSvc := service.NewMerchantService(repos.merchants, repos.ledger, addresses, oracle, encSvc, auditSvc, log)
	reportingSvc := service.NewReportingService(repos.invoices, repos.ledger, oracle)
	cashoutSvc := service.NewCashoutProcessor(repos.cashouts, repos.ledger, oracle, encSvc, idempotencyCache, auditSvc, log)

	// Background reconciliation
	poller := worker.NewPoller(repos.invoices, reconciler, cfg.Ledger.PollInterval, cfg.Ledger.PollConcurrency, log)
	pollerDone := make(chan struct{})
	go func() {
		defer close(pollerDone)
		poller.Run(ctx)
	}()

	// Setup Gin router with all routes
	router := httpHandler.SetupRouter(httpHandler.RouterDeps{
		MerchantSvc:    merchantSvc,
		InvoiceSvc:     invoiceSvc,
		Reconciler:     reconciler,
		CashoutSvc:     cashoutSvc,
		ReportingSvc:   reportingSvc,
		Oracle:         oracle,
		TokenSvc:       tokenSvc,
		RateLimitStore: rateLimitStore,
		HealthCheckers: checkers,
		AuditSvc:       auditSvc,
		Logger:         log,
	})

	// HTTP Server with graceful shutdown
	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	srv := &http.Server{
		Addr:              addr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		log.Info().Str("addr", addr).Msg("HTTP server listening")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("HTTP server failed")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info().Msg("Shutting down server...")

	stop()
	<-pollerDone

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Server forced to shutdown")
	}

	log.Info().Msg("Server exited")
}
