package main

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"golang.org/x/sync/errgroup"

	"github.com/payflow-labs/payflow/internal/application/services"
	"github.com/payflow-labs/payflow/internal/config"
	"github.com/payflow-labs/payflow/internal/infrastructure/bank"
	"github.com/payflow-labs/payflow/internal/infrastructure/cache"
	"github.com/payflow-labs/payflow/internal/infrastructure/persistence"
	"github.com/payflow-labs/payflow/internal/infrastructure/persistence/postgres"
	"github.com/payflow-labs/payflow/internal/infrastructure/queue"
	"github.com/payflow-labs/payflow/internal/worker"
)

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		slog.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	logger := cfg.Logger.NewLogger()
	slog.SetDefault(logger)

	logger.Info("starting worker service", "log_level", cfg.Logger.Level)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

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

	locks := cache.NewLockManager(redisClient)
	bankClient := bank.NewBreakerClient(bank.NewBankClient(cfg.Bank), logger)

	transactionService := services.NewTransactionService(
		coordinator, transactions, accounts, users, webhooks, locks, broker, logger)
	deliveryService := services.NewWebhookDeliveryService(webhooks, cfg.Webhook.RequestTimeout, logger)
	dlqService := services.NewDLQService(failedTasks, broker, logger)

	processor := worker.NewProcessor(transactionService, logger)
	strategies := []worker.Strategy{
		worker.DepositStrategy(transactionService, bankClient),
		worker.WithdrawalStrategy(transactionService, bankClient),
	}

	transactionWorker := worker.NewTransactionWorker(
		broker, processor, transactionService, cfg.Worker, strategies, logger)
	webhookWorker := worker.NewWebhookWorker(broker, deliveryService, cfg.Worker, logger)
	dlqWorker := worker.NewDLQWorker(broker, dlqService, logger)

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return transactionWorker.Run(ctx) })
	g.Go(func() error { return webhookWorker.Run(ctx) })
	g.Go(func() error { return dlqWorker.Run(ctx) })

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("worker stopped", "error", err)
		os.Exit(1)
	}

	logger.Info("worker exited")
}
