package services

import (
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type RegisterCommand struct {
	Email      string
	FullName   string
	Password   string
	WebhookURL *string
}

type LoginCommand struct {
	Email    string
	Password string
}

type CreateTransactionCommand struct {
	UserID         uuid.UUID
	Amount         decimal.Decimal
	Currency       string
	IdempotencyKey string
}

type ListTransactionsQuery struct {
	UserID uuid.UUID
	Type   *string
	Limit  int
	Offset int
}
