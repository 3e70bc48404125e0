package services_test

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"

	"github.com/payflow-labs/payflow/internal/application"
	"github.com/payflow-labs/payflow/internal/application/services"
	"github.com/payflow-labs/payflow/internal/application/services/testhelpers"
	"github.com/payflow-labs/payflow/internal/domain"
	"github.com/payflow-labs/payflow/internal/infrastructure/cache"
	"github.com/payflow-labs/payflow/internal/infrastructure/persistence/postgres"
	"github.com/payflow-labs/payflow/internal/infrastructure/queue"
	"github.com/payflow-labs/payflow/internal/security"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// capturingPublisher records enqueued envelopes instead of talking to AMQP.
type capturingPublisher struct {
	transactions []*queue.TaskEnvelope
	webhooks     []*queue.TaskEnvelope
}

func (p *capturingPublisher) PublishTransaction(ctx context.Context, envelope *queue.TaskEnvelope) error {
	p.transactions = append(p.transactions, envelope)
	return nil
}

func (p *capturingPublisher) PublishWebhook(ctx context.Context, envelope *queue.TaskEnvelope) error {
	p.webhooks = append(p.webhooks, envelope)
	return nil
}

type TransactionServiceTestSuite struct {
	suite.Suite
	testDB *testhelpers.TestDatabase
	redis  *miniredis.Miniredis

	users        *postgres.UserRepository
	accounts     *postgres.AccountRepository
	transactions *postgres.TransactionRepository
	webhooks     *postgres.WebhookRepository

	publisher *capturingPublisher
	auth      *services.AuthService
	service   *services.TransactionService
	queries   *services.QueryService
}

func TestTransactionServiceSuite(t *testing.T) {
	suite.Run(t, new(TransactionServiceTestSuite))
}

func (s *TransactionServiceTestSuite) SetupSuite() {
	s.testDB = testhelpers.SetupTestDatabase(s.T())
	s.redis = miniredis.RunT(s.T())

	s.users = postgres.NewUserRepository(s.testDB.DB)
	s.accounts = postgres.NewAccountRepository(s.testDB.DB)
	s.transactions = postgres.NewTransactionRepository(s.testDB.DB)
	s.webhooks = postgres.NewWebhookRepository(s.testDB.DB)
}

func (s *TransactionServiceTestSuite) TearDownSuite() {
	s.testDB.Cleanup(s.T())
}

func (s *TransactionServiceTestSuite) SetupTest() {
	s.testDB.CleanTables(s.T())
	s.redis.FlushAll()

	client := redis.NewClient(&redis.Options{Addr: s.redis.Addr()})
	locks := cache.NewLockManager(client)
	coordinator := postgres.NewTransactionCoordinator(s.testDB.DB)
	logger := testLogger()
	tokens := security.NewTokenIssuer("test-secret", time.Hour)

	s.publisher = &capturingPublisher{}
	s.auth = services.NewAuthService(coordinator, s.users, s.accounts, tokens, logger)
	s.service = services.NewTransactionService(
		coordinator, s.transactions, s.accounts, s.users, s.webhooks, locks, s.publisher, logger)
	s.queries = services.NewQueryService(s.transactions, s.accounts, s.webhooks, logger)
}

func (s *TransactionServiceTestSuite) registerUser(email string) (*domain.User, *domain.Account) {
	webhookURL := "https://merchant.example.com/hooks"
	user, account, err := s.auth.Register(context.Background(), services.RegisterCommand{
		Email:      email,
		FullName:   "Test User",
		Password:   "correct-horse-battery",
		WebhookURL: &webhookURL,
	})
	s.Require().NoError(err)
	return user, account
}

func (s *TransactionServiceTestSuite) fundAccount(userID uuid.UUID, amount string) *domain.Transaction {
	ctx := context.Background()
	txn, err := s.service.CreatePendingDeposit(ctx, services.CreateTransactionCommand{
		UserID:   userID,
		Amount:   decimal.RequireFromString(amount),
		Currency: "USD",
	})
	s.Require().NoError(err)

	_, err = s.service.UpdateStatus(ctx, txn.ID, domain.StatusProcessing)
	s.Require().NoError(err)

	completed, err := s.service.CompleteDeposit(ctx, txn.ID, "BANK-FUND", nil)
	s.Require().NoError(err)
	s.Require().Equal(domain.StatusSuccess, completed.Status)
	return completed
}

func (s *TransactionServiceTestSuite) TestRegisterCreatesUserAndAccount() {
	user, account := s.registerUser("alice@example.com")

	assert.Equal(s.T(), "alice@example.com", user.Email)
	assert.Equal(s.T(), user.ID, account.UserID)
	assert.True(s.T(), account.Balance.IsZero())
	assert.Equal(s.T(), "USD", account.Currency)
}

func (s *TransactionServiceTestSuite) TestRegisterDuplicateEmail() {
	s.registerUser("dup@example.com")

	_, _, err := s.auth.Register(context.Background(), services.RegisterCommand{
		Email:    "dup@example.com",
		FullName: "Other",
		Password: "another-password",
	})
	svcErr, ok := application.IsServiceError(err)
	require.True(s.T(), ok)
	assert.Equal(s.T(), application.ErrCodeEmailTaken, svcErr.Code)
}

func (s *TransactionServiceTestSuite) TestCreatePendingDepositEnqueuesTask() {
	user, account := s.registerUser("alice@example.com")
	ctx := context.Background()

	key := "client-key-1"
	txn, err := s.service.CreatePendingDeposit(ctx, services.CreateTransactionCommand{
		UserID:         user.ID,
		Amount:         decimal.RequireFromString("100.00"),
		Currency:       "USD",
		IdempotencyKey: key,
	})
	require.NoError(s.T(), err)

	assert.Equal(s.T(), domain.StatusPending, txn.Status)
	assert.Equal(s.T(), account.ID, txn.AccountID)
	require.Len(s.T(), s.publisher.transactions, 1)
	assert.Equal(s.T(), queue.TaskProcessDeposit, s.publisher.transactions[0].TaskName)

	// Balance untouched until the bank confirms.
	fresh, err := s.accounts.FindByID(ctx, account.ID)
	require.NoError(s.T(), err)
	assert.True(s.T(), fresh.Balance.IsZero())

	// Task id stamped back onto the row.
	stored, err := s.transactions.FindByID(ctx, txn.ID)
	require.NoError(s.T(), err)
	require.NotNil(s.T(), stored.TaskID)
	assert.Equal(s.T(), s.publisher.transactions[0].TaskID, *stored.TaskID)
}

func (s *TransactionServiceTestSuite) TestDuplicateIdempotencyKeyConflicts() {
	user, _ := s.registerUser("alice@example.com")
	ctx := context.Background()

	cmd := services.CreateTransactionCommand{
		UserID:         user.ID,
		Amount:         decimal.RequireFromString("10.00"),
		Currency:       "USD",
		IdempotencyKey: "same-key",
	}
	_, err := s.service.CreatePendingDeposit(ctx, cmd)
	require.NoError(s.T(), err)

	_, err = s.service.CreatePendingDeposit(ctx, cmd)
	svcErr, ok := application.IsServiceError(err)
	require.True(s.T(), ok)
	assert.Equal(s.T(), application.ErrCodeConflict, svcErr.Code)
}

func (s *TransactionServiceTestSuite) TestCompleteDepositCreditsBalance() {
	user, account := s.registerUser("alice@example.com")
	ctx := context.Background()

	s.fundAccount(user.ID, "100.00")

	fresh, err := s.accounts.FindByID(ctx, account.ID)
	require.NoError(s.T(), err)
	assert.True(s.T(), fresh.Balance.Equal(decimal.RequireFromString("100.00")))

	// Terminal outcome fans out a webhook delivery.
	require.Len(s.T(), s.publisher.webhooks, 1)
}

func (s *TransactionServiceTestSuite) TestCompleteDepositIsIdempotent() {
	user, account := s.registerUser("alice@example.com")
	ctx := context.Background()

	txn := s.fundAccount(user.ID, "50.00")

	again, err := s.service.CompleteDeposit(ctx, txn.ID, "BANK-FUND", nil)
	require.NoError(s.T(), err)
	assert.Equal(s.T(), domain.StatusSuccess, again.Status)

	fresh, err := s.accounts.FindByID(ctx, account.ID)
	require.NoError(s.T(), err)
	assert.True(s.T(), fresh.Balance.Equal(decimal.RequireFromString("50.00")))
}

func (s *TransactionServiceTestSuite) TestFailDepositLeavesBalanceAlone() {
	user, account := s.registerUser("alice@example.com")
	ctx := context.Background()

	txn, err := s.service.CreatePendingDeposit(ctx, services.CreateTransactionCommand{
		UserID:   user.ID,
		Amount:   decimal.RequireFromString("75.00"),
		Currency: "USD",
	})
	require.NoError(s.T(), err)

	failed, err := s.service.FailDeposit(ctx, txn.ID, "BANK_DECLINED", "declined by bank", nil)
	require.NoError(s.T(), err)
	assert.Equal(s.T(), domain.StatusFailed, failed.Status)
	require.NotNil(s.T(), failed.ErrorCode)
	assert.Equal(s.T(), "BANK_DECLINED", *failed.ErrorCode)

	fresh, err := s.accounts.FindByID(ctx, account.ID)
	require.NoError(s.T(), err)
	assert.True(s.T(), fresh.Balance.IsZero())
}

func (s *TransactionServiceTestSuite) TestWithdrawalRejectedOnInsufficientBalance() {
	user, _ := s.registerUser("alice@example.com")
	ctx := context.Background()

	_, err := s.service.CreatePendingWithdrawal(ctx, services.CreateTransactionCommand{
		UserID:   user.ID,
		Amount:   decimal.RequireFromString("10.00"),
		Currency: "USD",
	})
	svcErr, ok := application.IsServiceError(err)
	require.True(s.T(), ok)
	assert.Equal(s.T(), application.ErrCodeInsufficientBalance, svcErr.Code)

	// No row is created for a rejected withdrawal.
	txns, err := s.queries.ListTransactions(ctx, services.ListTransactionsQuery{UserID: user.ID})
	require.NoError(s.T(), err)
	assert.Empty(s.T(), txns)
}

func (s *TransactionServiceTestSuite) TestWithdrawalLifecycle() {
	user, account := s.registerUser("alice@example.com")
	ctx := context.Background()

	s.fundAccount(user.ID, "100.00")

	txn, err := s.service.CreatePendingWithdrawal(ctx, services.CreateTransactionCommand{
		UserID:   user.ID,
		Amount:   decimal.RequireFromString("40.00"),
		Currency: "USD",
	})
	require.NoError(s.T(), err)
	assert.Equal(s.T(), domain.StatusPending, txn.Status)

	_, err = s.service.UpdateStatus(ctx, txn.ID, domain.StatusProcessing)
	require.NoError(s.T(), err)

	completed, err := s.service.CompleteWithdrawal(ctx, txn.ID, "BANK-WD-1", nil)
	require.NoError(s.T(), err)
	assert.Equal(s.T(), domain.StatusSuccess, completed.Status)

	fresh, err := s.accounts.FindByID(ctx, account.ID)
	require.NoError(s.T(), err)
	assert.True(s.T(), fresh.Balance.Equal(decimal.RequireFromString("60.00")))
}

func (s *TransactionServiceTestSuite) TestWithdrawalShortfallAtCompletion() {
	user, account := s.registerUser("alice@example.com")
	ctx := context.Background()

	s.fundAccount(user.ID, "100.00")

	// Nothing is reserved at creation, so two withdrawals that each fit the
	// current balance can both be accepted.
	createProcessing := func(key string) *domain.Transaction {
		txn, err := s.service.CreatePendingWithdrawal(ctx, services.CreateTransactionCommand{
			UserID:         user.ID,
			Amount:         decimal.RequireFromString("80.00"),
			Currency:       "USD",
			IdempotencyKey: key,
		})
		s.Require().NoError(err)
		_, err = s.service.UpdateStatus(ctx, txn.ID, domain.StatusProcessing)
		s.Require().NoError(err)
		return txn
	}
	first := createProcessing("wd-a")
	second := createProcessing("wd-b")

	_, err := s.service.CompleteWithdrawal(ctx, first.ID, "BANK-WD-A", nil)
	require.NoError(s.T(), err)

	// The balance shrank underneath the second withdrawal; the guard under
	// the row lock rejects the debit without retrying.
	_, err = s.service.CompleteWithdrawal(ctx, second.ID, "BANK-WD-B", nil)
	require.ErrorIs(s.T(), err, domain.ErrInsufficientBalance)
	assert.False(s.T(), application.CategorizeError(err).IsRetryable())

	parked, err := s.service.MarkPendingReview(ctx, second.ID, "balance changed before settlement", nil)
	require.NoError(s.T(), err)
	assert.Equal(s.T(), domain.StatusPendingReview, parked.Status)

	fresh, err := s.accounts.FindByID(ctx, account.ID)
	require.NoError(s.T(), err)
	assert.True(s.T(), fresh.Balance.Equal(decimal.RequireFromString("20.00")))
}

func (s *TransactionServiceTestSuite) TestBankCallbackRoutesByTypeAndStatus() {
	user, account := s.registerUser("alice@example.com")
	ctx := context.Background()

	txn, err := s.service.CreatePendingDeposit(ctx, services.CreateTransactionCommand{
		UserID:   user.ID,
		Amount:   decimal.RequireFromString("30.00"),
		Currency: "USD",
	})
	require.NoError(s.T(), err)

	_, err = s.service.UpdateStatus(ctx, txn.ID, domain.StatusProcessing)
	require.NoError(s.T(), err)

	err = s.service.ProcessBankCallback(ctx, services.BankCallback{
		TransactionID:     txn.ID,
		Status:            "SUCCESS",
		BankTransactionID: "BANK-CB-1",
	})
	require.NoError(s.T(), err)

	stored, err := s.transactions.FindByID(ctx, txn.ID)
	require.NoError(s.T(), err)
	assert.Equal(s.T(), domain.StatusSuccess, stored.Status)

	fresh, err := s.accounts.FindByID(ctx, account.ID)
	require.NoError(s.T(), err)
	assert.True(s.T(), fresh.Balance.Equal(decimal.RequireFromString("30.00")))
}

func (s *TransactionServiceTestSuite) TestQueryOwnershipEnforced() {
	alice, _ := s.registerUser("alice@example.com")
	bob, _ := s.registerUser("bob@example.com")
	ctx := context.Background()

	txn, err := s.service.CreatePendingDeposit(ctx, services.CreateTransactionCommand{
		UserID:   alice.ID,
		Amount:   decimal.RequireFromString("5.00"),
		Currency: "USD",
	})
	require.NoError(s.T(), err)

	_, err = s.queries.GetTransaction(ctx, bob.ID, txn.ID)
	svcErr, ok := application.IsServiceError(err)
	require.True(s.T(), ok)
	assert.Equal(s.T(), application.ErrCodeForbidden, svcErr.Code)
}

func (s *TransactionServiceTestSuite) TestMarkPendingReview() {
	user, _ := s.registerUser("alice@example.com")
	ctx := context.Background()

	txn, err := s.service.CreatePendingDeposit(ctx, services.CreateTransactionCommand{
		UserID:   user.ID,
		Amount:   decimal.RequireFromString("20.00"),
		Currency: "USD",
	})
	require.NoError(s.T(), err)

	_, err = s.service.UpdateStatus(ctx, txn.ID, domain.StatusProcessing)
	require.NoError(s.T(), err)

	parked, err := s.service.MarkPendingReview(ctx, txn.ID, "retries exhausted", nil)
	require.NoError(s.T(), err)
	assert.Equal(s.T(), domain.StatusPendingReview, parked.Status)

	// Terminal: no further transitions allowed.
	_, err = s.service.UpdateStatus(ctx, txn.ID, domain.StatusSuccess)
	assert.Error(s.T(), err)
}
