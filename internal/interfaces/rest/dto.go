package rest

import (
	"time"

	"github.com/google/uuid"

	"github.com/payflow-labs/payflow/internal/domain"
)

type RegisterRequest struct {
	Email      string  `json:"email" validate:"required,email"`
	FullName   string  `json:"full_name" validate:"required"`
	Password   string  `json:"password" validate:"required,min=8"`
	WebhookURL *string `json:"webhook_url" validate:"omitempty,url"`
}

type LoginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

type TransactionRequest struct {
	Amount   string `json:"amount" validate:"required"`
	Currency string `json:"currency" validate:"required,len=3"`
}

type UpdateWebhookRequest struct {
	WebhookURL *string `json:"webhook_url" validate:"omitempty,url"`
}

// BankCallbackRequest mirrors the bank's signed callback body. Timestamp is
// UNIX seconds and must be within the freshness window.
type BankCallbackRequest struct {
	TransactionID     string `json:"transaction_id" validate:"required,uuid"`
	Status            string `json:"status" validate:"required"`
	BankTransactionID string `json:"bank_transaction_id"`
	Message           string `json:"message"`
	ErrorCode         string `json:"error_code"`
	Timestamp         int64  `json:"timestamp" validate:"required"`
}

type UserResponse struct {
	ID         uuid.UUID `json:"id"`
	Email      string    `json:"email"`
	FullName   string    `json:"full_name"`
	WebhookURL *string   `json:"webhook_url,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
}

type AccountResponse struct {
	ID        uuid.UUID `json:"id"`
	UserID    uuid.UUID `json:"user_id"`
	Balance   string    `json:"balance"`
	Currency  string    `json:"currency"`
	UpdatedAt time.Time `json:"updated_at"`
}

type TransactionResponse struct {
	ID                uuid.UUID `json:"id"`
	AccountID         uuid.UUID `json:"account_id"`
	Type              string    `json:"type"`
	Amount            string    `json:"amount"`
	Currency          string    `json:"currency"`
	Status            string    `json:"status"`
	BankTransactionID *string   `json:"bank_transaction_id,omitempty"`
	ErrorCode         *string   `json:"error_code,omitempty"`
	ErrorMessage      *string   `json:"error_message,omitempty"`
	CreatedAt         time.Time `json:"created_at"`
	UpdatedAt         time.Time `json:"updated_at"`
	Message           string    `json:"message,omitempty"`
}

type AuthResponse struct {
	Token string       `json:"token"`
	User  UserResponse `json:"user"`
}

type RegisterResponse struct {
	User    UserResponse    `json:"user"`
	Account AccountResponse `json:"account"`
}

type WebhookDeliveryResponse struct {
	ID             uuid.UUID `json:"id"`
	TransactionID  uuid.UUID `json:"transaction_id"`
	WebhookURL     string    `json:"webhook_url"`
	Status         string    `json:"status"`
	AttemptCount   int       `json:"attempt_count"`
	MaxAttempts    int       `json:"max_attempts"`
	HTTPStatusCode *int      `json:"http_status_code,omitempty"`
	ErrorMessage   *string   `json:"error_message,omitempty"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

type FailedTaskResponse struct {
	ID               uuid.UUID  `json:"id"`
	TaskID           string     `json:"task_id"`
	TaskName         string     `json:"task_name"`
	ExceptionType    string     `json:"exception_type"`
	ExceptionMessage string     `json:"exception_message"`
	RetryCount       int        `json:"retry_count"`
	FailedAt         time.Time  `json:"failed_at"`
	ReplayedAt       *time.Time `json:"replayed_at,omitempty"`
	ReplayStatus     *string    `json:"replay_status,omitempty"`
	ReplayNotes      *string    `json:"replay_notes,omitempty"`
}

func ToUserResponse(u *domain.User) UserResponse {
	return UserResponse{
		ID:         u.ID,
		Email:      u.Email,
		FullName:   u.FullName,
		WebhookURL: u.WebhookURL,
		CreatedAt:  u.CreatedAt,
	}
}

func ToAccountResponse(a *domain.Account) AccountResponse {
	return AccountResponse{
		ID:        a.ID,
		UserID:    a.UserID,
		Balance:   a.Balance.String(),
		Currency:  a.Currency,
		UpdatedAt: a.UpdatedAt,
	}
}

func ToTransactionResponse(t *domain.Transaction) TransactionResponse {
	return TransactionResponse{
		ID:                t.ID,
		AccountID:         t.AccountID,
		Type:              string(t.Type),
		Amount:            t.Amount.String(),
		Currency:          t.Currency,
		Status:            string(t.Status),
		BankTransactionID: t.BankTransactionID,
		ErrorCode:         t.ErrorCode,
		ErrorMessage:      t.ErrorMessage,
		CreatedAt:         t.CreatedAt,
		UpdatedAt:         t.UpdatedAt,
	}
}

func ToTransactionResponses(txns []*domain.Transaction) []TransactionResponse {
	out := make([]TransactionResponse, 0, len(txns))
	for _, t := range txns {
		out = append(out, ToTransactionResponse(t))
	}
	return out
}

func ToWebhookDeliveryResponse(d *domain.WebhookDelivery) WebhookDeliveryResponse {
	return WebhookDeliveryResponse{
		ID:             d.ID,
		TransactionID:  d.TransactionID,
		WebhookURL:     d.WebhookURL,
		Status:         string(d.Status),
		AttemptCount:   d.AttemptCount,
		MaxAttempts:    d.MaxAttempts,
		HTTPStatusCode: d.HTTPStatusCode,
		ErrorMessage:   d.ErrorMessage,
		CreatedAt:      d.CreatedAt,
		UpdatedAt:      d.UpdatedAt,
	}
}

func ToFailedTaskResponse(t *domain.FailedTask) FailedTaskResponse {
	resp := FailedTaskResponse{
		ID:               t.ID,
		TaskID:           t.TaskID,
		TaskName:         t.TaskName,
		ExceptionType:    t.ExceptionType,
		ExceptionMessage: t.ExceptionMessage,
		RetryCount:       t.RetryCount,
		FailedAt:         t.FailedAt,
		ReplayedAt:       t.ReplayedAt,
		ReplayNotes:      t.ReplayNotes,
	}
	if t.ReplayStatus != nil {
		s := string(*t.ReplayStatus)
		resp.ReplayStatus = &s
	}
	return resp
}
