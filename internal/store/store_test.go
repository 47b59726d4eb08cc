package store

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/velobank/fraudwatch/pkg/models"
)

func setupDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	require.NoError(t, db.AutoMigrate(&models.Account{}, &models.Transaction{}))
	return db
}

func newAccount(t *testing.T, accounts *AccountStore, balance float64, status models.AccountStatus) *models.Account {
	t.Helper()
	account := &models.Account{
		UserID:   uuid.New(),
		Balance:  balance,
		Currency: "EUR",
		Type:     models.AccountChecking,
		Status:   status,
	}
	require.NoError(t, accounts.Create(context.Background(), account))
	return account
}

func TestAccountStoreGet(t *testing.T) {
	db := setupDB(t)
	accounts := NewAccountStore(db, zap.NewNop())
	created := newAccount(t, accounts, 500, models.AccountActive)

	got, err := accounts.Get(context.Background(), created.ID)
	require.NoError(t, err)
	assert.Equal(t, created.ID, got.ID)
	assert.InDelta(t, 500, got.Balance, 1e-9)

	_, err = accounts.Get(context.Background(), uuid.New())
	assert.ErrorIs(t, err, ErrAccountNotFound)
}

func TestAccountStoreCreateRejectsInvalid(t *testing.T) {
	db := setupDB(t)
	accounts := NewAccountStore(db, zap.NewNop())

	err := accounts.Create(context.Background(), &models.Account{
		UserID:   uuid.New(),
		Balance:  -25,
		Currency: "EUR",
		Type:     models.AccountChecking,
		Status:   models.AccountActive,
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid account")

	err = accounts.Create(context.Background(), &models.Account{
		UserID:   uuid.New(),
		Balance:  100,
		Currency: "EUR",
		Type:     models.AccountType("margin"),
		Status:   models.AccountActive,
	})
	require.Error(t, err)
}

func TestSubmitCapturesSnapshot(t *testing.T) {
	db := setupDB(t)
	accounts := NewAccountStore(db, zap.NewNop())
	transactions := NewTransactionStore(db, zap.NewNop())

	sender := newAccount(t, accounts, 1000, models.AccountActive)
	receiver := newAccount(t, accounts, 50, models.AccountActive)

	tx, err := transactions.Submit(context.Background(), models.TransactionRequest{
		SenderAccountID:   sender.ID,
		ReceiverAccountID: receiver.ID,
		Amount:            200,
		Currency:          "EUR",
		Location:          "Madrid",
	})
	require.NoError(t, err)

	assert.Equal(t, models.TransactionPending, tx.Status)
	assert.Nil(t, tx.InvalidDetails)
	assert.Equal(t, "Madrid", tx.Location)
	assert.False(t, tx.Snapshot.CapturedAt.IsZero())
	// The snapshot holds point-in-time account copies, not references.
	assert.InDelta(t, 1000, tx.Snapshot.Sender.Balance, 1e-9)
	assert.InDelta(t, 50, tx.Snapshot.Receiver.Balance, 1e-9)
	assert.Equal(t, sender.UserID, tx.Snapshot.Sender.UserID)

	// The snapshot round-trips through the json column.
	reloaded, err := transactions.FindOldestPending(context.Background())
	require.NoError(t, err)
	require.NotNil(t, reloaded)
	assert.InDelta(t, 1000, reloaded.Snapshot.Sender.Balance, 1e-9)
	assert.Equal(t, "Madrid", reloaded.Snapshot.Request.Location)
}

func TestSubmitRecordsInvalidDetails(t *testing.T) {
	db := setupDB(t)
	accounts := NewAccountStore(db, zap.NewNop())
	transactions := NewTransactionStore(db, zap.NewNop())

	active := newAccount(t, accounts, 100, models.AccountActive)
	peer := newAccount(t, accounts, 100, models.AccountActive)
	blocked := newAccount(t, accounts, 100, models.AccountBlocked)

	cases := []struct {
		name string
		req  models.TransactionRequest
		want string
	}{
		{
			"non-positive amount",
			models.TransactionRequest{SenderAccountID: active.ID, ReceiverAccountID: active.ID, Amount: 0},
			"amount must be positive",
		},
		{
			"unknown sender",
			models.TransactionRequest{SenderAccountID: uuid.New(), ReceiverAccountID: active.ID, Amount: 10},
			"sender account not found",
		},
		{
			"unknown receiver",
			models.TransactionRequest{SenderAccountID: active.ID, ReceiverAccountID: uuid.New(), Amount: 10},
			"receiver account not found",
		},
		{
			"blocked sender",
			models.TransactionRequest{SenderAccountID: blocked.ID, ReceiverAccountID: active.ID, Amount: 10},
			"sender account is blocked",
		},
		{
			"blocked receiver",
			models.TransactionRequest{SenderAccountID: active.ID, ReceiverAccountID: blocked.ID, Amount: 10},
			"receiver account is blocked",
		},
		{
			"insufficient funds",
			models.TransactionRequest{SenderAccountID: active.ID, ReceiverAccountID: peer.ID, Amount: 10000},
			"insufficient funds at submission",
		},
		{
			"missing sender id",
			models.TransactionRequest{ReceiverAccountID: active.ID, Amount: 10},
			"invalid SenderAccountID: failed required check",
		},
		{
			"missing receiver id",
			models.TransactionRequest{SenderAccountID: active.ID, Amount: 10},
			"invalid ReceiverAccountID: failed required check",
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			tx, err := transactions.Submit(context.Background(), tc.req)
			require.NoError(t, err, "invalid submissions are recorded, not rejected")
			require.NotNil(t, tx.InvalidDetails)
			assert.Equal(t, tc.want, *tx.InvalidDetails)
			assert.Equal(t, models.TransactionPending, tx.Status)
		})
	}
}

func TestFindOldestPendingOrdersByAge(t *testing.T) {
	db := setupDB(t)
	transactions := NewTransactionStore(db, zap.NewNop())

	base := time.Now().UTC().Add(-time.Hour)
	newest := seedTransaction(t, db, base.Add(30*time.Minute), models.TransactionPending)
	oldest := seedTransaction(t, db, base, models.TransactionPending)
	seedTransaction(t, db, base.Add(-time.Hour), models.TransactionCompleted)

	got, err := transactions.FindOldestPending(context.Background())
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, oldest.ID, got.ID, "completed transactions and newer pendings must not win")

	// Draining the oldest surfaces the next one.
	require.NoError(t, got.MarkFailed(time.Now().UTC(), "test"))
	require.NoError(t, transactions.Save(context.Background(), got))

	next, err := transactions.FindOldestPending(context.Background())
	require.NoError(t, err)
	require.NotNil(t, next)
	assert.Equal(t, newest.ID, next.ID)
}

func TestFindOldestPendingEmptyQueue(t *testing.T) {
	db := setupDB(t)
	transactions := NewTransactionStore(db, zap.NewNop())

	got, err := transactions.FindOldestPending(context.Background())
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestRecentTransactionsFiltersAndOrders(t *testing.T) {
	db := setupDB(t)
	transactions := NewTransactionStore(db, zap.NewNop())

	sender := uuid.New()
	now := time.Now().UTC()
	old := seedSenderTransaction(t, db, sender, now.Add(-72*time.Hour))
	mid := seedSenderTransaction(t, db, sender, now.Add(-2*time.Hour))
	recent := seedSenderTransaction(t, db, sender, now.Add(-10*time.Minute))
	seedSenderTransaction(t, db, uuid.New(), now.Add(-time.Hour))

	got, err := transactions.RecentTransactions(context.Background(), sender, now.Add(-24*time.Hour), 10)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, recent.ID, got[0].ID, "newest first")
	assert.Equal(t, mid.ID, got[1].ID)

	limited, err := transactions.RecentTransactions(context.Background(), sender, now.Add(-100*time.Hour), 1)
	require.NoError(t, err)
	require.Len(t, limited, 1)
	assert.NotEqual(t, old.ID, limited[0].ID)
}

func seedTransaction(t *testing.T, db *gorm.DB, createdAt time.Time, status models.TransactionStatus) *models.Transaction {
	t.Helper()
	return seedWith(t, db, uuid.New(), createdAt, status)
}

func seedSenderTransaction(t *testing.T, db *gorm.DB, senderID uuid.UUID, createdAt time.Time) *models.Transaction {
	t.Helper()
	return seedWith(t, db, senderID, createdAt, models.TransactionCompleted)
}

func seedWith(t *testing.T, db *gorm.DB, senderID uuid.UUID, createdAt time.Time, status models.TransactionStatus) *models.Transaction {
	t.Helper()
	tx := &models.Transaction{
		ID:                uuid.New(),
		SenderAccountID:   senderID,
		ReceiverAccountID: uuid.New(),
		Amount:            100,
		Currency:          "EUR",
		Status:            status,
		CreatedAt:         createdAt,
		UpdatedAt:         createdAt,
	}
	require.NoError(t, db.Create(tx).Error)
	return tx
}
