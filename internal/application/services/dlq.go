package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/payflow-labs/payflow/internal/application"
	"github.com/payflow-labs/payflow/internal/domain"
	"github.com/payflow-labs/payflow/internal/infrastructure/persistence/postgres"
	"github.com/payflow-labs/payflow/internal/infrastructure/queue"
)

// DLQService persists dead-lettered tasks and replays them on demand.
type DLQService struct {
	failedTasks *postgres.FailedTaskRepository
	publisher   TaskPublisher
	logger      *slog.Logger
}

func NewDLQService(failedTasks *postgres.FailedTaskRepository, publisher TaskPublisher, logger *slog.Logger) *DLQService {
	return &DLQService{
		failedTasks: failedTasks,
		publisher:   publisher,
		logger:      logger,
	}
}

// StoreDeadLetter records an exhausted task. Duplicate task ids are ignored:
// a redelivered dead letter must not create a second row.
func (s *DLQService) StoreDeadLetter(ctx context.Context, letter *queue.DeadLetter) error {
	existing, err := s.failedTasks.FindByTaskID(ctx, letter.TaskID)
	if err != nil && !errors.Is(err, postgres.ErrFailedTaskNotFound) {
		return err
	}
	if existing != nil {
		s.logger.Warn("duplicate dead letter ignored", "task_id", letter.TaskID)
		return nil
	}

	task := &domain.FailedTask{
		ID:               uuid.New(),
		TaskID:           letter.TaskID,
		TaskName:         letter.TaskName,
		Args:             letter.Args,
		Kwargs:           letter.Kwargs,
		ExceptionType:    letter.ExceptionType,
		ExceptionMessage: letter.ExceptionMessage,
		Traceback:        letter.Traceback,
		RetryCount:       letter.RetryCount,
		FailedAt:         letter.FailedAt,
		CreatedAt:        letter.FailedAt,
	}
	if err := s.failedTasks.Create(ctx, task); err != nil {
		return err
	}

	s.logger.Info("dead letter stored",
		"task_id", letter.TaskID,
		"task_name", letter.TaskName,
		"dlq_record_id", task.ID,
	)
	return nil
}

func (s *DLQService) List(ctx context.Context, taskName *string, replayed *bool, limit, offset int) ([]*domain.FailedTask, error) {
	if limit <= 0 {
		limit = defaultPageSize
	}
	if limit > maxPageSize {
		limit = maxPageSize
	}
	tasks, err := s.failedTasks.List(ctx, taskName, replayed, limit, offset)
	if err != nil {
		return nil, application.NewInternalError(err)
	}
	return tasks, nil
}

func (s *DLQService) Stats(ctx context.Context) (map[string]int, error) {
	stats, err := s.failedTasks.Stats(ctx)
	if err != nil {
		return nil, application.NewInternalError(err)
	}
	return stats, nil
}

// Replay re-enqueues a dead-lettered task on its original queue. A record
// can only be replayed once.
func (s *DLQService) Replay(ctx context.Context, recordID uuid.UUID) (*domain.FailedTask, error) {
	task, err := s.failedTasks.FindByID(ctx, recordID)
	if err != nil {
		if errors.Is(err, postgres.ErrFailedTaskNotFound) {
			return nil, application.NewNotFoundError("DLQ record")
		}
		return nil, application.NewInternalError(err)
	}

	if task.ReplayedAt != nil {
		return nil, application.NewConflictError("Task has already been replayed", nil)
	}

	envelope := &queue.TaskEnvelope{
		TaskID:     uuid.NewString(),
		TaskName:   task.TaskName,
		Body:       json.RawMessage(task.Args),
		EnqueuedAt: time.Now().UTC(),
	}

	var publishErr error
	if task.TaskName == queue.TaskDeliverWebhook {
		publishErr = s.publisher.PublishWebhook(ctx, envelope)
	} else {
		publishErr = s.publisher.PublishTransaction(ctx, envelope)
	}

	status := domain.ReplayQueued
	notes := fmt.Sprintf("requeued as task %s", envelope.TaskID)
	if publishErr != nil {
		status = domain.ReplayFailed
		notes = publishErr.Error()
	}

	if err := s.failedTasks.MarkReplayed(ctx, task.ID, status, &notes); err != nil {
		return nil, application.NewInternalError(err)
	}
	if publishErr != nil {
		return nil, application.NewInternalError(publishErr)
	}

	s.logger.Info("dead letter replayed",
		"dlq_record_id", task.ID,
		"task_name", task.TaskName,
		"new_task_id", envelope.TaskID,
	)

	updated, err := s.failedTasks.FindByID(ctx, task.ID)
	if err != nil {
		return nil, application.NewInternalError(err)
	}
	return updated, nil
}
