package main

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/prestadia/backend/internal/cache"
	"github.com/prestadia/backend/internal/config"
	"github.com/prestadia/backend/internal/database"
	"github.com/prestadia/backend/internal/handlers"
	"github.com/prestadia/backend/internal/logging"
	mW "github.com/prestadia/backend/internal/middleware"
	"github.com/prestadia/backend/internal/services"
)

func main() {
	// Initialize config
	viper.SetConfigFile(".env") // explicitly point to .env file
	viper.AutomaticEnv()        // allow environment variables to override .env

	viper.SetEnvPrefix("")

	viper.BindEnv("database.host", "DATABASE_HOST")
	viper.BindEnv("database.port", "DATABASE_PORT")
	viper.BindEnv("database.user", "DATABASE_USER")
	viper.BindEnv("database.password", "DATABASE_PASSWORD")
	viper.BindEnv("database.name", "DATABASE_NAME")
	viper.BindEnv("database.ssl_mode", "DATABASE_SSL_MODE")

	viper.BindEnv("redis.host", "REDIS_HOST")
	viper.BindEnv("redis.port", "REDIS_PORT")
	viper.BindEnv("redis.password", "REDIS_PASSWORD")
	viper.BindEnv("redis.db", "REDIS_DB")

	viper.BindEnv("log.level", "LOG_LEVEL")
	viper.BindEnv("log.format", "LOG_FORMAT")

	viper.BindEnv("ledger.default_currency", "LEDGER_DEFAULT_CURRENCY")
	viper.BindEnv("ledger.closing_timezone", "LEDGER_CLOSING_TIMEZONE")
	viper.BindEnv("ledger.drift_tolerance", "LEDGER_DRIFT_TOLERANCE")
	viper.BindEnv("ledger.allow_negative_wallet", "LEDGER_ALLOW_NEGATIVE_WALLET")
	viper.BindEnv("ledger.allow_negative_safe", "LEDGER_ALLOW_NEGATIVE_SAFE")
	viper.BindEnv("ledger.allow_negative_collection", "LEDGER_ALLOW_NEGATIVE_COLLECTION")

	if err := viper.ReadInConfig(); err != nil {
		log.Printf("Config file not found, using defaults: %v", err)
	}

	logger, err := logging.New()
	if err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer logger.Sync()

	cfg := config.LoadLedgerConfig()

	db, err := database.InitDB()
	if err != nil {
		logger.Fatal("database init failed", zap.Error(err))
	}
	defer db.Close()

	redisClient := database.InitRedis(logger)
	if redisClient != nil {
		defer redisClient.Close()
	}

	// Wire services
	ledgerService := services.NewLedgerService(db, cfg, logger)
	directory := services.NewDBActorDirectory(db)
	transferService := services.NewTransferService(db, cfg, directory, logger)
	reconcileService := services.NewReconcileService(db, ledgerService, cfg, logger)
	closingService := services.NewClosingService(db, cfg, logger)
	loanService := services.NewLoanService(db, cfg, logger)
	balanceCache := cache.NewBalanceCache(redisClient, viper.GetDuration("cache.balance_ttl"))

	walletHandler := handlers.NewWalletHandler(ledgerService, transferService, reconcileService, balanceCache, logger)
	closingHandler := handlers.NewClosingHandler(closingService, logger)
	loanHandler := handlers.NewLoanHandler(loanService, logger)

	// Setup router
	r := chi.NewRouter()

	// Middleware
	r.Use(mW.SecurityHeaders)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.RealIP)
	r.Use(middleware.Timeout(60 * time.Second))

	// CORS
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"https://*", "http://*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "Access-Control-Allow-Origin"},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: true,
		MaxAge:           86400,
	}))

	// Health check
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]string{"status": "healthy"})
	})

	// API routes
	r.Route("/api/v1", func(r chi.Router) {
		r.Route("/wallets/{ownerId}", func(r chi.Router) {
			r.Get("/balance", walletHandler.GetBalance)
			r.Get("/entries", walletHandler.History)
			r.Get("/aggregate-balance", walletHandler.AggregateBalance)
			r.Post("/deposits", walletHandler.Deposit)
			r.Post("/withdrawals", walletHandler.Withdraw)
			r.Post("/collections", walletHandler.RecordCollection)
			r.Post("/expenses", walletHandler.RecordExpense)
			r.Post("/adjustments", walletHandler.RecordAdjustment)
			r.Post("/payment-resets", walletHandler.PaymentReset)
		})

		r.Post("/transfers", walletHandler.Transfer)

		r.Route("/loans", func(r chi.Router) {
			r.Post("/", loanHandler.Disburse)
			r.Post("/{loanId}/payments", loanHandler.RecordPayment)
			r.Delete("/{loanId}", loanHandler.Delete)
		})

		r.Route("/routes/{routeId}", func(r chi.Router) {
			r.Post("/close", closingHandler.CloseRoute)
			r.Post("/expenses", closingHandler.AddRouteExpense)
		})

		r.Get("/summaries/{ownerId}", closingHandler.PeriodSummary)
	})

	port := os.Getenv("PORT")
	if port == "" {
		port = "8080"
	}

	// Start server
	server := &http.Server{
		Addr:         ":" + port,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Graceful shutdown
	go func() {
		logger.Info("server starting", zap.String("port", port))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("server failed", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("server shutting down")
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		logger.Fatal("server forced to shutdown", zap.Error(err))
	}

	logger.Info("server stopped")
}
