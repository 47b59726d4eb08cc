// Package ledger implements the atomic two-account settlement engine. It is
// the only code in the system allowed to apply balance arithmetic.
package ledger

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/velobank/fraudwatch/pkg/models"
)

var (
	// ErrNonPositiveAmount rejects settlements of zero or negative amounts.
	ErrNonPositiveAmount = errors.New("settlement amount must be positive")
	// ErrInsufficientFunds covers both a missing sender and a balance below
	// the amount; the guarded update cannot distinguish them and does not
	// need to.
	ErrInsufficientFunds = errors.New("insufficient funds or sender not found")
	// ErrReceiverNotFound aborts the settlement after the debit, rolling it
	// back.
	ErrReceiverNotFound = errors.New("receiver not found")
)

// SettlementEngine moves money between two accounts atomically.
type SettlementEngine struct {
	db     *gorm.DB
	logger *zap.Logger
}

// NewSettlementEngine creates a settlement engine over the ledger database.
func NewSettlementEngine(db *gorm.DB, logger *zap.Logger) *SettlementEngine {
	return &SettlementEngine{db: db, logger: logger}
}

// Settle debits the sender and credits the receiver inside one database
// transaction. The debit is a guarded conditional update, not a
// read-then-write: the WHERE clause requires the current balance to cover the
// amount, so concurrent settlements against the same sender are resolved by
// the database rather than racing in application code. Both writes commit
// together or neither does.
func (e *SettlementEngine) Settle(ctx context.Context, senderID, receiverID uuid.UUID, amount float64) (*models.Account, *models.Account, error) {
	if amount <= 0 {
		return nil, nil, ErrNonPositiveAmount
	}

	var sender, receiver models.Account
	err := e.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		debit := tx.Model(&models.Account{}).
			Where("id = ? AND balance >= ?", senderID, amount).
			Update("balance", gorm.Expr("balance - ?", amount))
		if debit.Error != nil {
			return fmt.Errorf("failed to debit sender: %w", debit.Error)
		}
		if debit.RowsAffected == 0 {
			return ErrInsufficientFunds
		}

		credit := tx.Model(&models.Account{}).
			Where("id = ?", receiverID).
			Update("balance", gorm.Expr("balance + ?", amount))
		if credit.Error != nil {
			return fmt.Errorf("failed to credit receiver: %w", credit.Error)
		}
		if credit.RowsAffected == 0 {
			return ErrReceiverNotFound
		}

		if err := tx.Where("id = ?", senderID).First(&sender).Error; err != nil {
			return fmt.Errorf("failed to reload sender: %w", err)
		}
		if err := tx.Where("id = ?", receiverID).First(&receiver).Error; err != nil {
			return fmt.Errorf("failed to reload receiver: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, nil, err
	}

	e.logger.Info("settlement committed",
		zap.String("sender", senderID.String()),
		zap.String("receiver", receiverID.String()),
		zap.Float64("amount", amount))
	return &sender, &receiver, nil
}
