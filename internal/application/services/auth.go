package services

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/payflow-labs/payflow/internal/application"
	"github.com/payflow-labs/payflow/internal/domain"
	"github.com/payflow-labs/payflow/internal/infrastructure/persistence/postgres"
	"github.com/payflow-labs/payflow/internal/security"
	"github.com/shopspring/decimal"
)

// AuthService handles registration, login and the user profile surface.
type AuthService struct {
	coordinator *postgres.TransactionCoordinator
	users       *postgres.UserRepository
	accounts    *postgres.AccountRepository
	tokens      *security.TokenIssuer
	logger      *slog.Logger
}

func NewAuthService(
	coordinator *postgres.TransactionCoordinator,
	users *postgres.UserRepository,
	accounts *postgres.AccountRepository,
	tokens *security.TokenIssuer,
	logger *slog.Logger,
) *AuthService {
	return &AuthService{
		coordinator: coordinator,
		users:       users,
		accounts:    accounts,
		tokens:      tokens,
		logger:      logger,
	}
}

// Register creates the user and their account in one database transaction.
func (s *AuthService) Register(ctx context.Context, cmd RegisterCommand) (*domain.User, *domain.Account, error) {
	hash, err := security.HashPassword(cmd.Password)
	if err != nil {
		return nil, nil, application.NewInternalError(err)
	}

	now := time.Now().UTC()
	user := &domain.User{
		ID:           uuid.New(),
		Email:        cmd.Email,
		FullName:     cmd.FullName,
		PasswordHash: hash,
		IsActive:     true,
		WebhookURL:   cmd.WebhookURL,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	account := &domain.Account{
		ID:        uuid.New(),
		UserID:    user.ID,
		Balance:   decimal.Zero,
		Currency:  "USD",
		CreatedAt: now,
		UpdatedAt: now,
	}

	err = s.coordinator.WithTransaction(ctx, func(ctx context.Context, repos *postgres.TxRepositories) error {
		if err := repos.Users.Create(ctx, user); err != nil {
			return err
		}
		return repos.Accounts.Create(ctx, account)
	})
	if err != nil {
		if errors.Is(err, domain.ErrEmailTaken) {
			return nil, nil, application.NewEmailTakenError()
		}
		return nil, nil, application.NewInternalError(err)
	}

	s.logger.Info("user registered", "user_id", user.ID, "email", user.Email)
	return user, account, nil
}

// Login verifies credentials and mints an access token.
func (s *AuthService) Login(ctx context.Context, cmd LoginCommand) (string, *domain.User, error) {
	user, err := s.users.FindByEmail(ctx, cmd.Email)
	if err != nil {
		if errors.Is(err, domain.ErrUserNotFound) {
			return "", nil, application.NewInvalidCredentialsError()
		}
		return "", nil, application.NewInternalError(err)
	}

	if !user.IsActive || !security.VerifyPassword(cmd.Password, user.PasswordHash) {
		s.logger.Warn("login rejected", "email", cmd.Email)
		return "", nil, application.NewInvalidCredentialsError()
	}

	token, err := s.tokens.Issue(user.ID, user.Email)
	if err != nil {
		return "", nil, application.NewInternalError(err)
	}

	s.logger.Info("user logged in", "user_id", user.ID)
	return token, user, nil
}

func (s *AuthService) GetUser(ctx context.Context, userID uuid.UUID) (*domain.User, error) {
	user, err := s.users.FindByID(ctx, userID)
	if err != nil {
		if errors.Is(err, domain.ErrUserNotFound) {
			return nil, application.NewNotFoundError("User")
		}
		return nil, application.NewInternalError(err)
	}
	return user, nil
}

// UpdateWebhookURL sets or clears the user's outbound notification URL.
func (s *AuthService) UpdateWebhookURL(ctx context.Context, userID uuid.UUID, webhookURL *string) error {
	if err := s.users.UpdateWebhookURL(ctx, userID, webhookURL); err != nil {
		if errors.Is(err, domain.ErrUserNotFound) {
			return application.NewNotFoundError("User")
		}
		return application.NewInternalError(err)
	}
	return nil
}
