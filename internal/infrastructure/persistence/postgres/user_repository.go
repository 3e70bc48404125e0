package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/payflow-labs/payflow/internal/domain"
	"github.com/payflow-labs/payflow/internal/infrastructure/persistence"
)

type UserRepository struct {
	q persistence.Executor
}

func NewUserRepository(db *persistence.DB) *UserRepository {
	return &UserRepository{q: db.Pool}
}

func (r *UserRepository) Create(ctx context.Context, user *domain.User) error {
	query := `
		INSERT INTO users (id, email, full_name, password_hash, is_active, webhook_url, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`

	_, err := r.q.Exec(ctx, query,
		user.ID,
		user.Email,
		user.FullName,
		user.PasswordHash,
		user.IsActive,
		user.WebhookURL,
		user.CreatedAt,
		user.UpdatedAt,
	)
	if err != nil {
		if persistence.IsUniqueViolation(err) {
			return domain.ErrEmailTaken
		}
		return fmt.Errorf("failed to create user: %w", err)
	}
	return nil
}

func (r *UserRepository) FindByID(ctx context.Context, id uuid.UUID) (*domain.User, error) {
	query := `
		SELECT id, email, full_name, password_hash, is_active, webhook_url, created_at, updated_at
		FROM users WHERE id = $1
	`
	return scanUser(r.q.QueryRow(ctx, query, id))
}

func (r *UserRepository) FindByEmail(ctx context.Context, email string) (*domain.User, error) {
	query := `
		SELECT id, email, full_name, password_hash, is_active, webhook_url, created_at, updated_at
		FROM users WHERE email = $1
	`
	return scanUser(r.q.QueryRow(ctx, query, email))
}

func (r *UserRepository) UpdateWebhookURL(ctx context.Context, id uuid.UUID, webhookURL *string) error {
	query := `
		UPDATE users SET webhook_url = $1, updated_at = NOW() WHERE id = $2
	`

	result, err := r.q.Exec(ctx, query, webhookURL, id)
	if err != nil {
		return fmt.Errorf("failed to update webhook url: %w", err)
	}
	if result.RowsAffected() == 0 {
		return domain.ErrUserNotFound
	}
	return nil
}

func scanUser(row pgx.Row) (*domain.User, error) {
	var m UserModel
	err := row.Scan(
		&m.ID, &m.Email, &m.FullName, &m.PasswordHash, &m.IsActive, &m.WebhookURL,
		&m.CreatedAt, &m.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrUserNotFound
		}
		return nil, fmt.Errorf("failed to scan user: %w", err)
	}
	return toUserDomain(m), nil
}
