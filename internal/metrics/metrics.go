// Package metrics registers the gateway's Prometheus collectors.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	TransactionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "payflow_transactions_total",
		Help: "Transactions created, labelled by type and terminal status.",
	}, []string{"type", "status"})

	TransactionAmount = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "payflow_transaction_amount",
		Help:    "Transaction amounts by type.",
		Buckets: []float64{1, 10, 50, 100, 500, 1000, 5000, 10000, 50000},
	}, []string{"type"})

	InsufficientBalanceErrors = promauto.NewCounter(prometheus.CounterOpts{
		Name: "payflow_insufficient_balance_errors_total",
		Help: "Withdrawals rejected for insufficient balance.",
	})

	BankCallsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "payflow_bank_calls_total",
		Help: "Bank processor calls by operation and verdict.",
	}, []string{"operation", "status"})

	TaskRetriesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "payflow_task_retries_total",
		Help: "Worker task retries by task name.",
	}, []string{"task_name"})

	DeadLetteredTasksTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "payflow_dead_lettered_tasks_total",
		Help: "Tasks pushed to a dead letter queue by task name.",
	}, []string{"task_name"})

	WebhookDeliveriesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "payflow_webhook_deliveries_total",
		Help: "Outbound webhook delivery attempts by outcome.",
	}, []string{"outcome"})

	HTTPRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "payflow_http_requests_total",
		Help: "HTTP requests by method, route and status code.",
	}, []string{"method", "route", "code"})

	HTTPRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "payflow_http_request_duration_seconds",
		Help:    "HTTP request latency by route.",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "route"})
)
