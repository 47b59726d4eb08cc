package models

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// AccountStatus represents the lifecycle state of an account.
type AccountStatus string

const (
	AccountActive  AccountStatus = "active"
	AccountBlocked AccountStatus = "blocked"
	AccountDeleted AccountStatus = "deleted"
)

// AccountType distinguishes the product behind an account.
type AccountType string

const (
	AccountChecking AccountType = "checking"
	AccountSavings  AccountType = "savings"
	AccountBusiness AccountType = "business"
)

// Account represents a ledger account. Balance is mutated exclusively by the
// settlement engine; nothing else in the pipeline applies balance arithmetic.
type Account struct {
	ID           uuid.UUID     `json:"id" gorm:"primaryKey;type:uuid" validate:"required"`
	UserID       uuid.UUID     `json:"user_id" gorm:"type:uuid;index" validate:"required"`
	Balance      float64       `json:"balance" validate:"min=0"`
	Currency     string        `json:"currency" validate:"required"`
	Type         AccountType   `json:"type" validate:"required,oneof=checking savings business"`
	Status       AccountStatus `json:"status" gorm:"index" validate:"required,oneof=active blocked deleted"`
	BranchRegion string        `json:"branch_region"`
	CreatedAt    time.Time     `json:"created_at"`
	UpdatedAt    time.Time     `json:"updated_at"`
}

// TransactionRequest is the payload submitted for a transfer. Immutable once
// submitted; it travels inside the snapshot.
type TransactionRequest struct {
	SenderAccountID   uuid.UUID `json:"sender_account_id" validate:"required"`
	ReceiverAccountID uuid.UUID `json:"receiver_account_id" validate:"required"`
	Amount            float64   `json:"amount" validate:"gt=0"`
	Type              string    `json:"type"`
	Category          string    `json:"category"`
	Location          string    `json:"location"`
	Currency          string    `json:"currency"`
	Description       string    `json:"description"`
	DeviceID          string    `json:"device_id"`
	IPAddress         string    `json:"ip_address"`
}

// TransactionSnapshot bundles the request with full point-in-time copies of
// both accounts, captured at submission. Detectors reason about account state
// as it was when the transfer was requested, not the live row. The snapshot is
// mutated exactly once, by the worker, to attach the fraud result.
type TransactionSnapshot struct {
	Request    TransactionRequest `json:"request"`
	Sender     Account            `json:"sender"`
	Receiver   Account            `json:"receiver"`
	CapturedAt time.Time          `json:"captured_at"`
	Flagged    bool               `json:"flagged"`
	Fraud      *FraudResult       `json:"fraud,omitempty"`
}

// Severity classifies a behaviour signal.
type Severity string

const (
	SeverityLow      Severity = "LOW"
	SeverityMedium   Severity = "MEDIUM"
	SeverityHigh     Severity = "HIGH"
	SeverityCritical Severity = "CRITICAL"
)

// Rank maps a severity label onto the 1-5 dynamic scale.
func (s Severity) Rank() int {
	switch s {
	case SeverityLow:
		return 1
	case SeverityMedium:
		return 2
	case SeverityHigh:
		return 3
	case SeverityCritical:
		return 5
	default:
		return 0
	}
}

// SuspiciousBehaviour is a single weighted, severity-tagged piece of fraud
// evidence. Behaviours are append-only: detectors construct them, nothing
// mutates them afterwards. Weight is computed at construction time as
// BaseWeight × Intensity.
type SuspiciousBehaviour struct {
	Code            string                 `json:"code"`
	Description     string                 `json:"description"`
	BaseWeight      decimal.Decimal        `json:"base_weight"`
	BaseSeverity    Severity               `json:"base_severity"`
	Intensity       decimal.Decimal        `json:"intensity"`
	DynamicSeverity int                    `json:"dynamic_severity,omitempty"`
	Weight          decimal.Decimal        `json:"weight"`
	Context         map[string]interface{} `json:"context,omitempty"`
	DetectedAt      time.Time              `json:"detected_at"`
}

// SeverityRank returns the effective severity on the 1-5 scale: the dynamic
// override when set, otherwise the rank of the base severity.
func (b SuspiciousBehaviour) SeverityRank() int {
	if b.DynamicSeverity > 0 {
		return b.DynamicSeverity
	}
	return b.BaseSeverity.Rank()
}

// IsCritical reports whether the behaviour's effective severity sits at the
// top of the scale. A dynamic override, when set, wins over the base label in
// both directions.
func (b SuspiciousBehaviour) IsCritical() bool {
	return b.SeverityRank() >= 5
}

// Recommendation is the aggregate risk decision.
type Recommendation string

const (
	RecommendApprove Recommendation = "APPROVE"
	RecommendReview  Recommendation = "REVIEW"
	RecommendBlock   Recommendation = "BLOCK"
)

// FraudResult is the aggregated outcome of one validation run. Computed once
// per transaction and attached to the snapshot; never recomputed after it has
// been persisted.
type FraudResult struct {
	IsFraud        bool                  `json:"is_fraud"`
	Score          decimal.Decimal       `json:"score"`
	Recommendation Recommendation        `json:"recommendation"`
	Behaviours     []SuspiciousBehaviour `json:"behaviours,omitempty"`
	EvaluatedAt    time.Time             `json:"evaluated_at"`
}

// TransactionStatus is the processing state of a transfer. Transitions are
// strictly one-way: pending → completed or pending → failed.
type TransactionStatus string

const (
	TransactionPending   TransactionStatus = "pending"
	TransactionCompleted TransactionStatus = "completed"
	TransactionFailed    TransactionStatus = "failed"
)

// Transaction is a money transfer between two accounts. Created by submission,
// mutated exclusively by the pending-transaction worker, never deleted.
type Transaction struct {
	ID                uuid.UUID           `json:"id" gorm:"primaryKey;type:uuid"`
	SenderAccountID   uuid.UUID           `json:"sender_account_id" gorm:"type:uuid;index"`
	ReceiverAccountID uuid.UUID           `json:"receiver_account_id" gorm:"type:uuid;index"`
	Amount            float64             `json:"amount"`
	Currency          string              `json:"currency"`
	Location          string              `json:"location"`
	Snapshot          TransactionSnapshot `json:"snapshot" gorm:"serializer:json"`
	Status            TransactionStatus   `json:"status" gorm:"index"`
	InvalidDetails    *string             `json:"invalid_details,omitempty"`
	FailReason        string              `json:"fail_reason,omitempty"`
	CreatedAt         time.Time           `json:"created_at" gorm:"index"`
	UpdatedAt         time.Time           `json:"updated_at"`
	CompletedAt       *time.Time          `json:"completed_at,omitempty"`
}

// ErrTerminalTransaction is returned when a status transition is attempted on
// a transaction that already reached a terminal state.
type ErrTerminalTransaction struct {
	ID     uuid.UUID
	Status TransactionStatus
}

func (e *ErrTerminalTransaction) Error() string {
	return fmt.Sprintf("transaction %s already %s", e.ID, e.Status)
}

// MarkCompleted advances a pending transaction to completed.
func (t *Transaction) MarkCompleted(at time.Time) error {
	if t.Status != TransactionPending {
		return &ErrTerminalTransaction{ID: t.ID, Status: t.Status}
	}
	t.Status = TransactionCompleted
	t.UpdatedAt = at
	t.CompletedAt = &at
	return nil
}

// MarkFailed advances a pending transaction to failed with a human-readable
// reason. The reason carries the distinguishing detail (fraud block vs
// insufficient funds); the terminal state itself does not.
func (t *Transaction) MarkFailed(at time.Time, reason string) error {
	if t.Status != TransactionPending {
		return &ErrTerminalTransaction{ID: t.ID, Status: t.Status}
	}
	t.Status = TransactionFailed
	t.FailReason = reason
	t.UpdatedAt = at
	return nil
}

// AttachFraudResult records the validation outcome on the snapshot. It is the
// single permitted snapshot mutation.
func (t *Transaction) AttachFraudResult(result *FraudResult) {
	t.Snapshot.Fraud = result
	t.Snapshot.Flagged = result != nil && result.IsFraud
}
