// Package store provides the gorm-backed transaction and account
// repositories used by the fraud pipeline.
package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/velobank/fraudwatch/pkg/models"
)

var (
	// ErrAccountNotFound is returned when an account lookup misses.
	ErrAccountNotFound = errors.New("account not found")
)

// AccountStore reads and creates ledger accounts. Balance mutation lives in
// the settlement engine, never here.
type AccountStore struct {
	db       *gorm.DB
	validate *validator.Validate
	logger   *zap.Logger
}

// NewAccountStore creates an account repository.
func NewAccountStore(db *gorm.DB, logger *zap.Logger) *AccountStore {
	return &AccountStore{db: db, validate: validator.New(), logger: logger}
}

// Get loads one account by id.
func (s *AccountStore) Get(ctx context.Context, id uuid.UUID) (*models.Account, error) {
	var account models.Account
	if err := s.db.WithContext(ctx).Where("id = ?", id).First(&account).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrAccountNotFound
		}
		return nil, fmt.Errorf("failed to find account: %w", err)
	}
	return &account, nil
}

// GetBalance returns the live balance of an account.
func (s *AccountStore) GetBalance(ctx context.Context, id uuid.UUID) (float64, error) {
	account, err := s.Get(ctx, id)
	if err != nil {
		return 0, err
	}
	return account.Balance, nil
}

// Create persists a new account after validating its struct tags.
func (s *AccountStore) Create(ctx context.Context, account *models.Account) error {
	if account.ID == uuid.Nil {
		account.ID = uuid.New()
	}
	if err := s.validate.Struct(account); err != nil {
		return fmt.Errorf("invalid account: %w", err)
	}
	now := time.Now().UTC()
	account.CreatedAt = now
	account.UpdatedAt = now
	if err := s.db.WithContext(ctx).Create(account).Error; err != nil {
		return fmt.Errorf("failed to create account: %w", err)
	}
	return nil
}

// TransactionStore persists transactions and serves the history queries the
// detectors depend on.
type TransactionStore struct {
	db       *gorm.DB
	validate *validator.Validate
	logger   *zap.Logger
}

// NewTransactionStore creates a transaction repository.
func NewTransactionStore(db *gorm.DB, logger *zap.Logger) *TransactionStore {
	return &TransactionStore{db: db, validate: validator.New(), logger: logger}
}

// FindOldestPending returns the oldest transaction still pending, or nil when
// the queue is drained.
func (s *TransactionStore) FindOldestPending(ctx context.Context) (*models.Transaction, error) {
	var tx models.Transaction
	err := s.db.WithContext(ctx).
		Where("status = ?", models.TransactionPending).
		Order("created_at asc").
		First(&tx).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to find pending transaction: %w", err)
	}
	return &tx, nil
}

// Save persists a transaction document.
func (s *TransactionStore) Save(ctx context.Context, tx *models.Transaction) error {
	if err := s.db.WithContext(ctx).Save(tx).Error; err != nil {
		return fmt.Errorf("failed to save transaction: %w", err)
	}
	return nil
}

// RecentTransactions returns the sender's most recent transactions since the
// given time, newest first, bounded by limit.
func (s *TransactionStore) RecentTransactions(ctx context.Context, accountID uuid.UUID, since time.Time, limit int) ([]models.Transaction, error) {
	var txs []models.Transaction
	err := s.db.WithContext(ctx).
		Where("sender_account_id = ? AND created_at >= ?", accountID, since).
		Order("created_at desc").
		Limit(limit).
		Find(&txs).Error
	if err != nil {
		return nil, fmt.Errorf("failed to load transaction history: %w", err)
	}
	return txs, nil
}

// Submit creates a pending transaction from a request, capturing point-in-time
// copies of both accounts into the snapshot. Request shape is checked through
// the struct validate tags; account existence, status and funds are business
// checks against the database. Neither kind of problem rejects the document:
// it is recorded as invalid-details so the worker can emit an audit-only
// event without attempting settlement.
func (s *TransactionStore) Submit(ctx context.Context, req models.TransactionRequest) (*models.Transaction, error) {
	now := time.Now().UTC()
	tx := &models.Transaction{
		ID:                uuid.New(),
		SenderAccountID:   req.SenderAccountID,
		ReceiverAccountID: req.ReceiverAccountID,
		Amount:            req.Amount,
		Currency:          req.Currency,
		Location:          req.Location,
		Status:            models.TransactionPending,
		CreatedAt:         now,
		UpdatedAt:         now,
		Snapshot: models.TransactionSnapshot{
			Request:    req,
			CapturedAt: now,
		},
	}

	var invalid string
	if err := s.validate.Struct(req); err != nil {
		invalid = requestInvalidReason(err)
	} else {
		var sender, receiver models.Account
		senderErr := s.db.WithContext(ctx).Where("id = ?", req.SenderAccountID).First(&sender).Error
		receiverErr := s.db.WithContext(ctx).Where("id = ?", req.ReceiverAccountID).First(&receiver).Error
		switch {
		case errors.Is(senderErr, gorm.ErrRecordNotFound):
			invalid = "sender account not found"
		case senderErr != nil:
			return nil, fmt.Errorf("failed to load sender account: %w", senderErr)
		case errors.Is(receiverErr, gorm.ErrRecordNotFound):
			invalid = "receiver account not found"
		case receiverErr != nil:
			return nil, fmt.Errorf("failed to load receiver account: %w", receiverErr)
		case sender.Status != models.AccountActive:
			invalid = fmt.Sprintf("sender account is %s", sender.Status)
		case receiver.Status != models.AccountActive:
			invalid = fmt.Sprintf("receiver account is %s", receiver.Status)
		case sender.Balance < req.Amount:
			invalid = "insufficient funds at submission"
		}
		tx.Snapshot.Sender = sender
		tx.Snapshot.Receiver = receiver
	}

	if invalid != "" {
		tx.InvalidDetails = &invalid
	}

	if err := s.db.WithContext(ctx).Create(tx).Error; err != nil {
		return nil, fmt.Errorf("failed to create transaction: %w", err)
	}
	return tx, nil
}

// requestInvalidReason renders the first struct-tag failure as a
// human-readable invalid-details string.
func requestInvalidReason(err error) string {
	var fieldErrs validator.ValidationErrors
	if errors.As(err, &fieldErrs) && len(fieldErrs) > 0 {
		fe := fieldErrs[0]
		if fe.Field() == "Amount" {
			return "amount must be positive"
		}
		return fmt.Sprintf("invalid %s: failed %s check", fe.Field(), fe.Tag())
	}
	return err.Error()
}
