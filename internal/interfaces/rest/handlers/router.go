package handlers

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/payflow-labs/payflow/internal/application/idempotency"
	"github.com/payflow-labs/payflow/internal/config"
	"github.com/payflow-labs/payflow/internal/infrastructure/cache"
	"github.com/payflow-labs/payflow/internal/interfaces/rest/middleware"
	"github.com/payflow-labs/payflow/internal/security"
)

// RouterConfig carries the middleware dependencies the routes are wired with.
type RouterConfig struct {
	Tokens      *security.TokenIssuer
	Idempotency *idempotency.Service
	Limiter     *cache.RateLimiter
	RateLimit   config.RateLimitConfig
	Timeout     time.Duration
	Logger      *slog.Logger
}

// NewRouter builds the full route table. Deposits and withdrawals sit behind
// the idempotency middleware instead of a rate limit; read endpoints that hit
// the database on every call are rate limited per user.
func NewRouter(h *Handlers, cfg RouterConfig) *mux.Router {
	r := mux.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recovery(cfg.Logger))
	r.Use(middleware.Metrics)
	r.Use(middleware.Timeout(cfg.Timeout))

	r.HandleFunc("/health", h.Health).Methods(http.MethodGet)
	r.Handle("/metrics", promhttp.Handler()).Methods(http.MethodGet)

	auth := middleware.Auth(cfg.Tokens, cfg.Logger)
	idem := middleware.Idempotency(cfg.Idempotency, cfg.Logger)
	balanceLimit := middleware.RateLimit(cfg.Limiter, "balance",
		cfg.RateLimit.PerUserBalance, cfg.RateLimit.Enabled, cfg.Logger)
	transactionsLimit := middleware.RateLimit(cfg.Limiter, "transactions",
		cfg.RateLimit.PerUserTransactions, cfg.RateLimit.Enabled, cfg.Logger)

	api := r.PathPrefix("/api/v1").Subrouter()

	api.HandleFunc("/auth/register", h.Register).Methods(http.MethodPost)
	api.HandleFunc("/auth/login", h.Login).Methods(http.MethodPost)

	api.Handle("/deposits", auth(idem(http.HandlerFunc(h.CreateDeposit)))).Methods(http.MethodPost)
	api.Handle("/deposits", auth(http.HandlerFunc(h.ListDeposits))).Methods(http.MethodGet)
	api.Handle("/deposits/{id}", auth(http.HandlerFunc(h.GetDeposit))).Methods(http.MethodGet)

	api.Handle("/withdrawals", auth(idem(http.HandlerFunc(h.CreateWithdrawal)))).Methods(http.MethodPost)
	api.Handle("/withdrawals", auth(http.HandlerFunc(h.ListWithdrawals))).Methods(http.MethodGet)
	api.Handle("/withdrawals/{id}", auth(http.HandlerFunc(h.GetWithdrawal))).Methods(http.MethodGet)

	api.Handle("/users/me", auth(http.HandlerFunc(h.Me))).Methods(http.MethodGet)
	api.Handle("/users/me/balance", auth(balanceLimit(http.HandlerFunc(h.Balance)))).Methods(http.MethodGet)
	api.Handle("/users/me/transactions", auth(transactionsLimit(http.HandlerFunc(h.MyTransactions)))).Methods(http.MethodGet)
	api.Handle("/users/me/webhook", auth(http.HandlerFunc(h.UpdateWebhookURL))).Methods(http.MethodPut)

	api.HandleFunc("/webhooks/bank-callback", h.BankCallback).Methods(http.MethodPost)
	api.Handle("/webhooks/deliveries", auth(http.HandlerFunc(h.ListWebhookDeliveries))).Methods(http.MethodGet)
	api.Handle("/webhooks/deliveries/{id}", auth(http.HandlerFunc(h.GetWebhookDelivery))).Methods(http.MethodGet)

	api.Handle("/admin/failed-tasks", auth(http.HandlerFunc(h.ListFailedTasks))).Methods(http.MethodGet)
	api.Handle("/admin/failed-tasks/stats", auth(http.HandlerFunc(h.FailedTaskStats))).Methods(http.MethodGet)
	api.Handle("/admin/failed-tasks/{id}/replay", auth(http.HandlerFunc(h.ReplayFailedTask))).Methods(http.MethodPost)
	api.Handle("/admin/circuit-breaker", auth(http.HandlerFunc(h.CircuitBreakerState))).Methods(http.MethodGet)

	return r
}
