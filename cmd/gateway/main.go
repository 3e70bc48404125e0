package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/payflow-labs/payflow/internal/application/idempotency"
	"github.com/payflow-labs/payflow/internal/application/services"
	"github.com/payflow-labs/payflow/internal/config"
	"github.com/payflow-labs/payflow/internal/infrastructure/bank"
	"github.com/payflow-labs/payflow/internal/infrastructure/cache"
	"github.com/payflow-labs/payflow/internal/infrastructure/persistence"
	"github.com/payflow-labs/payflow/internal/infrastructure/persistence/postgres"
	"github.com/payflow-labs/payflow/internal/infrastructure/queue"
	"github.com/payflow-labs/payflow/internal/interfaces/rest/handlers"
	"github.com/payflow-labs/payflow/internal/security"
)

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		slog.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	logger := cfg.Logger.NewLogger()
	slog.SetDefault(logger)

	logger.Info("starting gateway service",
		"port", cfg.Server.Port,
		"log_level", cfg.Logger.Level,
	)

	ctx := context.Background()

	db, err := persistence.Connect(ctx, &cfg.Database, logger)
	if err != nil {
		logger.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	redisClient, err := cache.Connect(ctx, &cfg.Redis, logger)
	if err != nil {
		logger.Error("failed to connect to redis", "error", err)
		os.Exit(1)
	}
	defer redisClient.Close()

	broker, err := queue.Connect(cfg.Broker, logger)
	if err != nil {
		logger.Error("failed to connect to broker", "error", err)
		os.Exit(1)
	}
	defer broker.Close()

	users := postgres.NewUserRepository(db)
	accounts := postgres.NewAccountRepository(db)
	transactions := postgres.NewTransactionRepository(db)
	webhooks := postgres.NewWebhookRepository(db)
	failedTasks := postgres.NewFailedTaskRepository(db)
	coordinator := postgres.NewTransactionCoordinator(db)

	tokens := security.NewTokenIssuer(cfg.Auth.JWTSecret, cfg.Auth.AccessTokenExpiry)
	locks := cache.NewLockManager(redisClient)
	limiter := cache.NewRateLimiter(redisClient)
	idempotencySvc := idempotency.NewService(redisClient, idempotency.DefaultCompletedTTL, logger)

	bankClient := bank.NewBreakerClient(bank.NewBankClient(cfg.Bank), logger)

	authService := services.NewAuthService(coordinator, users, accounts, tokens, logger)
	transactionService := services.NewTransactionService(
		coordinator, transactions, accounts, users, webhooks, locks, broker, logger)
	queryService := services.NewQueryService(transactions, accounts, webhooks, logger)
	dlqService := services.NewDLQService(failedTasks, broker, logger)

	h := handlers.NewHandlers(
		authService,
		transactionService,
		queryService,
		dlqService,
		bankClient,
		cfg.Webhook.BankSecret,
		logger,
	)

	router := handlers.NewRouter(h, handlers.RouterConfig{
		Tokens:      tokens,
		Idempotency: idempotencySvc,
		Limiter:     limiter,
		RateLimit:   cfg.RateLimit,
		Timeout:     cfg.Server.ReadTimeout,
		Logger:      logger,
	})

	server := &http.Server{
		Addr:         "0.0.0.0:" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	go func() {
		logger.Info("server starting", "addr", server.Addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("server forced to shutdown", "error", err)
	}

	logger.Info("server exited")
}
