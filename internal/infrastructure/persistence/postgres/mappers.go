package postgres

import (
	"encoding/json"
	"fmt"

	"github.com/payflow-labs/payflow/internal/domain"
	"github.com/shopspring/decimal"
)

func toUserDomain(m UserModel) *domain.User {
	return &domain.User{
		ID:           m.ID,
		Email:        m.Email,
		FullName:     m.FullName,
		PasswordHash: m.PasswordHash,
		IsActive:     m.IsActive,
		WebhookURL:   m.WebhookURL,
		CreatedAt:    m.CreatedAt,
		UpdatedAt:    m.UpdatedAt,
	}
}

func toAccountDomain(m AccountModel) (*domain.Account, error) {
	balance, err := decimal.NewFromString(m.Balance)
	if err != nil {
		return nil, fmt.Errorf("parse account %s balance: %w", m.ID, err)
	}
	return &domain.Account{
		ID:        m.ID,
		UserID:    m.UserID,
		Balance:   balance,
		Currency:  m.Currency,
		CreatedAt: m.CreatedAt,
		UpdatedAt: m.UpdatedAt,
	}, nil
}

func toTransactionDomain(m TransactionModel) (*domain.Transaction, error) {
	amount, err := decimal.NewFromString(m.Amount)
	if err != nil {
		return nil, fmt.Errorf("parse transaction %s amount: %w", m.ID, err)
	}
	return &domain.Transaction{
		ID:                m.ID,
		AccountID:         m.AccountID,
		Type:              domain.TransactionType(m.Type),
		Amount:            amount,
		Currency:          m.Currency,
		Status:            domain.TransactionStatus(m.Status),
		BankTransactionID: m.BankTransactionID,
		BankResponse:      m.BankResponse,
		ErrorCode:         m.ErrorCode,
		ErrorMessage:      m.ErrorMessage,
		IdempotencyKey:    m.IdempotencyKey,
		TaskID:            m.TaskID,
		CreatedAt:         m.CreatedAt,
		UpdatedAt:         m.UpdatedAt,
	}, nil
}

func toWebhookDomain(m WebhookDeliveryModel) *domain.WebhookDelivery {
	return &domain.WebhookDelivery{
		ID:             m.ID,
		TransactionID:  m.TransactionID,
		WebhookURL:     m.WebhookURL,
		Payload:        json.RawMessage(m.Payload),
		Status:         domain.WebhookDeliveryStatus(m.Status),
		AttemptCount:   m.AttemptCount,
		MaxAttempts:    m.MaxAttempts,
		HTTPStatusCode: m.HTTPStatusCode,
		ResponseBody:   m.ResponseBody,
		ErrorMessage:   m.ErrorMessage,
		CreatedAt:      m.CreatedAt,
		UpdatedAt:      m.UpdatedAt,
	}
}

func toFailedTaskDomain(m FailedTaskModel) *domain.FailedTask {
	var replayStatus *domain.ReplayStatus
	if m.ReplayStatus != nil {
		s := domain.ReplayStatus(*m.ReplayStatus)
		replayStatus = &s
	}
	return &domain.FailedTask{
		ID:               m.ID,
		TaskID:           m.TaskID,
		TaskName:         m.TaskName,
		Args:             m.Args,
		Kwargs:           m.Kwargs,
		ExceptionType:    m.ExceptionType,
		ExceptionMessage: m.ExceptionMessage,
		Traceback:        m.Traceback,
		RetryCount:       m.RetryCount,
		FailedAt:         m.FailedAt,
		ReplayedAt:       m.ReplayedAt,
		ReplayStatus:     replayStatus,
		ReplayNotes:      m.ReplayNotes,
		CreatedAt:        m.CreatedAt,
	}
}
