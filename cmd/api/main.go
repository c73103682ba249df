package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"pieat-payments/config"
	"pieat-payments/internal/adapter/gateway/pinet"
	httpHandler "pieat-payments/internal/adapter/http/handler"
	pgStorage "pieat-payments/internal/adapter/storage/postgres"
	redisStorage "pieat-payments/internal/adapter/storage/redis"
	"pieat-payments/internal/core/domain"
	"pieat-payments/internal/core/ports"
	"pieat-payments/internal/service"
	"pieat-payments/pkg/logger"
)

func main() {
	// Load configuration
	cfg, err := config.Load("")
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	// Initialize logger
	log := logger.New(cfg.Log.Level, cfg.Log.Pretty)

	log.Info().
		Str("mode", cfg.Server.Mode).
		Int("port", cfg.Server.Port).
		Msg("Starting PiEat payments service")

	ctx := context.Background()

	// Initialize PostgreSQL pool
	pool, err := pgStorage.NewPool(ctx, cfg.Database, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to PostgreSQL")
	}
	defer pool.Close()
	log.Info().Msg("PostgreSQL connected")

	// Initialize Redis client
	rdb, err := redisStorage.NewClient(ctx, cfg.Redis, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to Redis")
	}
	defer rdb.Close()
	log.Info().Msg("Redis connected")

	// Initialize repositories
	walletRepo := pgStorage.NewWalletRepo(pool)
	txRepo := pgStorage.NewTransactionRepo(pool)
	creditLogRepo := pgStorage.NewCreditLogRepo(pool)
	transactor := pgStorage.NewTransactor(pool)

	// Ensure the per-currency wallet rows exist
	now := time.Now().UTC()
	for _, currency := range []domain.Currency{domain.CurrencyPi, domain.CurrencyPTM} {
		if err := walletRepo.Create(ctx, &domain.Wallet{Currency: currency, CreatedAt: now, UpdatedAt: now}); err != nil {
			log.Fatal().Err(err).Str("currency", string(currency)).Msg("Failed to ensure wallet row")
		}
	}

	// Initialize Redis stores
	creditGuard := redisStorage.NewCreditGuard(rdb)
	rateLimitStore := redisStorage.NewRateLimitStore(rdb)

	// Initialize Pi platform gateway
	piClient := pinet.NewClient(cfg.Pi, &http.Client{Timeout: cfg.Pi.Timeout}, log)
	if me, err := piClient.Me(ctx); err != nil {
		log.Warn().Err(err).Msg("Pi platform credential check failed, payments will be rejected until resolved")
	} else {
		log.Info().Str("username", me.Username).Bool("sandbox", cfg.Pi.Sandbox).Msg("Pi platform credentials verified")
	}

	// Initialize core services
	hashSvc := service.NewArgon2HashService()
	tokenSvc := service.NewJWTTokenService(cfg.JWT.Secret, cfg.JWT.Expiry, cfg.JWT.Issuer)

	// Initialize business services
	ledgerSvc := service.NewLedgerService(txRepo, walletRepo, creditLogRepo, transactor, log)
	orchestrator := service.NewOrchestrator(piClient, ledgerSvc, creditGuard, cfg.Poller, log)
	authSvc := service.NewAdminAuthService(cfg.Admin, hashSvc, tokenSvc, log)
	reportingSvc := service.NewReportingService(txRepo)

	orchestrator.Subscribe(func(change ports.StateChange) {
		log.Info().
			Str("attempt_id", change.Attempt.ID.String()).
			Str("state", string(change.Attempt.State)).
			Bool("reconciliation", change.Reconciliation).
			Msg("payment state change")
	})

	// Initialize health checkers
	pgHealth := pgStorage.NewHealthCheck(pool)
	redisHealth := redisStorage.NewHealthCheck(rdb)

	// Setup Gin router with all routes
	router := httpHandler.SetupRouter(httpHandler.RouterDeps{
		Orchestrator:   orchestrator,
		Ledger:         ledgerSvc,
		AuthSvc:        authSvc,
		ReportingSvc:   reportingSvc,
		TokenSvc:       tokenSvc,
		RateLimitStore: rateLimitStore,
		HealthCheckers: []ports.HealthChecker{pgHealth, redisHealth},
		Logger:         log,
	})

	// HTTP Server with graceful shutdown
	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	srv := &http.Server{
		Addr:    addr,
		Handler: router,
	}

	// Start server in goroutine
	go func() {
		log.Info().Str("addr", addr).Msg("HTTP server listening")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("HTTP server failed")
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info().Msg("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Server forced to shutdown")
	}
	if err := orchestrator.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Orchestrator forced to shutdown")
	}

	log.Info().Msg("Server exited")
}
