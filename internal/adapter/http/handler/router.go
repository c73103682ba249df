package handler

import (
	"pieat-payments/internal/adapter/http/middleware"
	redisStore "pieat-payments/internal/adapter/storage/redis"
	"pieat-payments/internal/core/ports"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
)

// RouterDeps holds all dependencies needed to set up routes.
type RouterDeps struct {
	Orchestrator   ports.PaymentOrchestrator
	Ledger         ports.WalletLedger
	AuthSvc        ports.AdminAuthService
	ReportingSvc   ports.ReportingService
	TokenSvc       ports.TokenService
	RateLimitStore *redisStore.RateLimitStore // nil = rate limiting disabled
	HealthCheckers []ports.HealthChecker
	Logger         zerolog.Logger
}

// SetupRouter initialises the Gin engine with all routes and middleware.
func SetupRouter(deps RouterDeps) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()

	// Global middleware
	r.Use(middleware.Recovery(deps.Logger))
	r.Use(middleware.RequestID())
	r.Use(middleware.RequestLogger(deps.Logger))
	r.Use(middleware.MaxBodySize(1 << 20)) // 1 MB request body limit

	// Health check (deep — verifies PostgreSQL + Redis)
	r.GET("/health", HealthCheck(deps.HealthCheckers...))

	// Rate limit rules
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

	// API v1 routes
	v1 := r.Group("/api/v1")

	// --- Payment lifecycle ---
	paymentHandler := NewPaymentHandler(deps.Orchestrator)
	payments := v1.Group("/payments")
	{
		payments.POST("", rl("payments"), paymentHandler.Pay)
		payments.GET("/current", paymentHandler.Current)
		payments.POST("/cancel", rl("payments"), paymentHandler.Cancel)
		payments.POST("/refresh", rl("payments"), paymentHandler.Refresh)
		payments.POST("/retry", rl("payments"), paymentHandler.Retry)
	}

	// --- Wallets & ledger ---
	walletHandler := NewWalletHandler(deps.Ledger)
	wallets := v1.Group("/wallets")
	{
		wallets.GET("/:currency/balance", walletHandler.GetBalance)
		wallets.GET("/:currency/history", walletHandler.GetHistory)
	}

	transfers := v1.Group("/transfers")
	{
		transfers.POST("/send", rl("wallet_send"), walletHandler.Send)
		transfers.POST("/receive", rl("wallet_send"), walletHandler.Receive)
	}
	v1.POST("/rewards", rl("wallet_send"), walletHandler.Reward)

	// --- Admin dashboard (JWT-authenticated) ---
	adminHandler := NewAdminHandler(deps.AuthSvc, deps.ReportingSvc)
	admin := v1.Group("/admin")
	{
		admin.POST("/login", rl("admin_login"), adminHandler.Login)

		jwtAuth := middleware.JWTAuth(deps.TokenSvc, deps.Logger)
		admin.GET("/stats", jwtAuth, rl("dashboard"), adminHandler.GetStats)
		admin.GET("/transactions", jwtAuth, rl("dashboard"), adminHandler.ListTransactions)
	}

	return r
}
