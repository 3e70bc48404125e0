package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/payflow-labs/payflow/internal/domain"
	"github.com/payflow-labs/payflow/internal/infrastructure/persistence"
)

var ErrFailedTaskNotFound = errors.New("failed task not found")

const failedTaskColumns = `
	id, task_id, task_name, args, kwargs,
	exception_type, exception_message, traceback, retry_count, failed_at,
	replayed_at, replay_status, replay_notes, created_at`

type FailedTaskRepository struct {
	q persistence.Executor
}

func NewFailedTaskRepository(db *persistence.DB) *FailedTaskRepository {
	return &FailedTaskRepository{q: db.Pool}
}

// Create stores a dead-lettered task. Duplicate task_ids are ignored so a
// redelivered dead letter does not produce a second row.
func (r *FailedTaskRepository) Create(ctx context.Context, task *domain.FailedTask) error {
	query := `
		INSERT INTO failed_tasks (
			id, task_id, task_name, args, kwargs,
			exception_type, exception_message, traceback, retry_count, failed_at,
			created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		ON CONFLICT (task_id) DO NOTHING
	`

	_, err := r.q.Exec(ctx, query,
		task.ID,
		task.TaskID,
		task.TaskName,
		task.Args,
		task.Kwargs,
		task.ExceptionType,
		task.ExceptionMessage,
		task.Traceback,
		task.RetryCount,
		task.FailedAt,
		task.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to store dead-lettered task: %w", err)
	}
	return nil
}

func (r *FailedTaskRepository) FindByID(ctx context.Context, id uuid.UUID) (*domain.FailedTask, error) {
	query := `SELECT` + failedTaskColumns + ` FROM failed_tasks WHERE id = $1`
	return scanFailedTask(r.q.QueryRow(ctx, query, id))
}

func (r *FailedTaskRepository) FindByTaskID(ctx context.Context, taskID string) (*domain.FailedTask, error) {
	query := `SELECT` + failedTaskColumns + ` FROM failed_tasks WHERE task_id = $1`
	return scanFailedTask(r.q.QueryRow(ctx, query, taskID))
}

// List returns failed tasks newest first, optionally filtered by task name
// and replay state (replayed=false selects rows never replayed).
func (r *FailedTaskRepository) List(ctx context.Context, taskName *string, replayed *bool, limit, offset int) ([]*domain.FailedTask, error) {
	query := `SELECT` + failedTaskColumns + `
		FROM failed_tasks
		WHERE ($1::text IS NULL OR task_name = $1)
		  AND ($2::boolean IS NULL OR ($2 AND replayed_at IS NOT NULL) OR (NOT $2 AND replayed_at IS NULL))
		ORDER BY failed_at DESC
		LIMIT $3 OFFSET $4
	`

	rows, err := r.q.Query(ctx, query, taskName, replayed, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("query failed tasks: %w", err)
	}
	results, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (*domain.FailedTask, error) {
		var m FailedTaskModel
		if err := row.Scan(
			&m.ID, &m.TaskID, &m.TaskName, &m.Args, &m.Kwargs,
			&m.ExceptionType, &m.ExceptionMessage, &m.Traceback, &m.RetryCount, &m.FailedAt,
			&m.ReplayedAt, &m.ReplayStatus, &m.ReplayNotes, &m.CreatedAt,
		); err != nil {
			return nil, err
		}
		return toFailedTaskDomain(m), nil
	})
	if err != nil {
		return nil, fmt.Errorf("scan failed tasks: %w", err)
	}
	return results, nil
}

// Stats aggregates failed task counts per task name.
func (r *FailedTaskRepository) Stats(ctx context.Context) (map[string]int, error) {
	query := `
		SELECT task_name, COUNT(*)
		FROM failed_tasks
		GROUP BY task_name
	`

	rows, err := r.q.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("query failed task stats: %w", err)
	}
	defer rows.Close()

	stats := make(map[string]int)
	for rows.Next() {
		var name string
		var count int
		if err := rows.Scan(&name, &count); err != nil {
			return nil, fmt.Errorf("scan failed task stats: %w", err)
		}
		stats[name] = count
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate failed task stats: %w", err)
	}
	return stats, nil
}

// MarkReplayed records a replay attempt's outcome.
func (r *FailedTaskRepository) MarkReplayed(ctx context.Context, id uuid.UUID, status domain.ReplayStatus, notes *string) error {
	query := `
		UPDATE failed_tasks
		SET replayed_at = $1, replay_status = $2, replay_notes = $3
		WHERE id = $4
	`

	result, err := r.q.Exec(ctx, query, time.Now().UTC(), string(status), notes, id)
	if err != nil {
		return fmt.Errorf("failed to mark task replayed: %w", err)
	}
	if result.RowsAffected() == 0 {
		return ErrFailedTaskNotFound
	}
	return nil
}

func scanFailedTask(row pgx.Row) (*domain.FailedTask, error) {
	var m FailedTaskModel
	err := row.Scan(
		&m.ID, &m.TaskID, &m.TaskName, &m.Args, &m.Kwargs,
		&m.ExceptionType, &m.ExceptionMessage, &m.Traceback, &m.RetryCount, &m.FailedAt,
		&m.ReplayedAt, &m.ReplayStatus, &m.ReplayNotes, &m.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrFailedTaskNotFound
		}
		return nil, fmt.Errorf("failed to scan failed task: %w", err)
	}
	return toFailedTaskDomain(m), nil
}
