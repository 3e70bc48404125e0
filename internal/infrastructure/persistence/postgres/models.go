package postgres

import (
	"time"

	"github.com/google/uuid"
)

// Numeric columns are scanned as strings and converted with
// decimal.NewFromString in the mappers so no precision is lost.

type UserModel struct {
	ID           uuid.UUID
	Email        string
	FullName     string
	PasswordHash string
	IsActive     bool
	WebhookURL   *string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

type AccountModel struct {
	ID        uuid.UUID
	UserID    uuid.UUID
	Balance   string
	Currency  string
	CreatedAt time.Time
	UpdatedAt time.Time
}

type TransactionModel struct {
	ID                uuid.UUID
	AccountID         uuid.UUID
	Type              string
	Amount            string
	Currency          string
	Status            string
	BankTransactionID *string
	BankResponse      *string
	ErrorCode         *string
	ErrorMessage      *string
	IdempotencyKey    *string
	TaskID            *string
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

type WebhookDeliveryModel struct {
	ID             uuid.UUID
	TransactionID  uuid.UUID
	WebhookURL     string
	Payload        []byte
	Status         string
	AttemptCount   int
	MaxAttempts    int
	HTTPStatusCode *int
	ResponseBody   *string
	ErrorMessage   *string
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

type FailedTaskModel struct {
	ID               uuid.UUID
	TaskID           string
	TaskName         string
	Args             string
	Kwargs           string
	ExceptionType    string
	ExceptionMessage string
	Traceback        string
	RetryCount       int
	FailedAt         time.Time
	ReplayedAt       *time.Time
	ReplayStatus     *string
	ReplayNotes      *string
	CreatedAt        time.Time
}
