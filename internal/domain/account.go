package domain

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// User is an authenticated identity. Users are never deleted.
type User struct {
	ID           uuid.UUID
	Email        string
	FullName     string
	PasswordHash string
	IsActive     bool
	WebhookURL   *string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Account holds a single user's funds. Exactly one account per user.
// Balance is mutated only under an exclusive row lock inside a database
// transaction; it never goes negative.
type Account struct {
	ID        uuid.UUID
	UserID    uuid.UUID
	Balance   decimal.Decimal
	Currency  string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// CanWithdraw reports whether the account covers the requested amount.
func (a *Account) CanWithdraw(amount decimal.Decimal) bool {
	return a.Balance.GreaterThanOrEqual(amount)
}
