package services_test

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"

	"github.com/payflow-labs/payflow/internal/application"
	"github.com/payflow-labs/payflow/internal/application/services"
	"github.com/payflow-labs/payflow/internal/application/services/testhelpers"
	"github.com/payflow-labs/payflow/internal/domain"
	"github.com/payflow-labs/payflow/internal/infrastructure/persistence/postgres"
	"github.com/payflow-labs/payflow/internal/infrastructure/queue"
)

type DLQServiceTestSuite struct {
	suite.Suite
	testDB *testhelpers.TestDatabase

	publisher *capturingPublisher
	service   *services.DLQService
}

func TestDLQServiceSuite(t *testing.T) {
	suite.Run(t, new(DLQServiceTestSuite))
}

func (s *DLQServiceTestSuite) SetupSuite() {
	s.testDB = testhelpers.SetupTestDatabase(s.T())
}

func (s *DLQServiceTestSuite) TearDownSuite() {
	s.testDB.Cleanup(s.T())
}

func (s *DLQServiceTestSuite) SetupTest() {
	s.testDB.CleanTables(s.T())
	s.publisher = &capturingPublisher{}
	repo := postgres.NewFailedTaskRepository(s.testDB.DB)
	s.service = services.NewDLQService(repo, s.publisher, testLogger())
}

func deadLetter(taskName string) *queue.DeadLetter {
	return &queue.DeadLetter{
		TaskID:           uuid.NewString(),
		TaskName:         taskName,
		Args:             `{"transaction_id":"` + uuid.NewString() + `"}`,
		Kwargs:           "{}",
		ExceptionType:    "*bank.BankError",
		ExceptionMessage: "bank unavailable",
		RetryCount:       3,
		FailedAt:         time.Now().UTC(),
	}
}

func (s *DLQServiceTestSuite) TestStoreDeadLetter() {
	ctx := context.Background()
	letter := deadLetter(queue.TaskProcessDeposit)

	require.NoError(s.T(), s.service.StoreDeadLetter(ctx, letter))

	tasks, err := s.service.List(ctx, nil, nil, 10, 0)
	require.NoError(s.T(), err)
	require.Len(s.T(), tasks, 1)
	assert.Equal(s.T(), letter.TaskID, tasks[0].TaskID)
	assert.Equal(s.T(), queue.TaskProcessDeposit, tasks[0].TaskName)
	assert.Equal(s.T(), 3, tasks[0].RetryCount)
	assert.Nil(s.T(), tasks[0].ReplayedAt)
}

func (s *DLQServiceTestSuite) TestStoreDeadLetterDeduplicatesByTaskID() {
	ctx := context.Background()
	letter := deadLetter(queue.TaskProcessDeposit)

	require.NoError(s.T(), s.service.StoreDeadLetter(ctx, letter))
	require.NoError(s.T(), s.service.StoreDeadLetter(ctx, letter))

	tasks, err := s.service.List(ctx, nil, nil, 10, 0)
	require.NoError(s.T(), err)
	assert.Len(s.T(), tasks, 1)
}

func (s *DLQServiceTestSuite) TestReplayRequeuesOnOriginalQueue() {
	ctx := context.Background()
	require.NoError(s.T(), s.service.StoreDeadLetter(ctx, deadLetter(queue.TaskProcessWithdrawal)))
	require.NoError(s.T(), s.service.StoreDeadLetter(ctx, deadLetter(queue.TaskDeliverWebhook)))

	tasks, err := s.service.List(ctx, nil, nil, 10, 0)
	require.NoError(s.T(), err)
	require.Len(s.T(), tasks, 2)

	for _, task := range tasks {
		replayed, err := s.service.Replay(ctx, task.ID)
		require.NoError(s.T(), err)
		require.NotNil(s.T(), replayed.ReplayedAt)
		require.NotNil(s.T(), replayed.ReplayStatus)
		assert.Equal(s.T(), domain.ReplayQueued, *replayed.ReplayStatus)
		require.NotNil(s.T(), replayed.ReplayNotes)
	}

	require.Len(s.T(), s.publisher.transactions, 1)
	assert.Equal(s.T(), queue.TaskProcessWithdrawal, s.publisher.transactions[0].TaskName)
	require.Len(s.T(), s.publisher.webhooks, 1)
	assert.Equal(s.T(), queue.TaskDeliverWebhook, s.publisher.webhooks[0].TaskName)

	// The note records the id the task was requeued under.
	replayed, err := s.service.List(ctx, nil, nil, 10, 0)
	require.NoError(s.T(), err)
	for _, task := range replayed {
		require.NotNil(s.T(), task.ReplayNotes)
		switch task.TaskName {
		case queue.TaskDeliverWebhook:
			assert.Contains(s.T(), *task.ReplayNotes, s.publisher.webhooks[0].TaskID)
		default:
			assert.Contains(s.T(), *task.ReplayNotes, s.publisher.transactions[0].TaskID)
		}
	}
}

func (s *DLQServiceTestSuite) TestReplayTwiceConflicts() {
	ctx := context.Background()
	require.NoError(s.T(), s.service.StoreDeadLetter(ctx, deadLetter(queue.TaskProcessDeposit)))

	tasks, err := s.service.List(ctx, nil, nil, 10, 0)
	require.NoError(s.T(), err)
	require.Len(s.T(), tasks, 1)

	_, err = s.service.Replay(ctx, tasks[0].ID)
	require.NoError(s.T(), err)

	_, err = s.service.Replay(ctx, tasks[0].ID)
	svcErr, ok := application.IsServiceError(err)
	require.True(s.T(), ok)
	assert.Equal(s.T(), application.ErrCodeConflict, svcErr.Code)
}

func (s *DLQServiceTestSuite) TestReplayUnknownRecord() {
	_, err := s.service.Replay(context.Background(), uuid.New())
	svcErr, ok := application.IsServiceError(err)
	require.True(s.T(), ok)
	assert.Equal(s.T(), application.ErrCodeNotFound, svcErr.Code)
}

func (s *DLQServiceTestSuite) TestStatsGroupsByTaskName() {
	ctx := context.Background()
	require.NoError(s.T(), s.service.StoreDeadLetter(ctx, deadLetter(queue.TaskProcessDeposit)))
	require.NoError(s.T(), s.service.StoreDeadLetter(ctx, deadLetter(queue.TaskProcessDeposit)))
	require.NoError(s.T(), s.service.StoreDeadLetter(ctx, deadLetter(queue.TaskDeliverWebhook)))

	stats, err := s.service.Stats(ctx)
	require.NoError(s.T(), err)
	assert.Equal(s.T(), 2, stats[queue.TaskProcessDeposit])
	assert.Equal(s.T(), 1, stats[queue.TaskDeliverWebhook])
}
