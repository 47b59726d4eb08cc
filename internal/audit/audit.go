// Package audit emits fire-and-forget audit events for processed
// transactions and detected behaviours. Audit is never on the settlement
// critical path: failures are logged by the caller and swallowed.
package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	"github.com/velobank/fraudwatch/pkg/models"
)

// Sink records audit events. Implementations must be safe for use from the
// worker goroutine.
type Sink interface {
	RecordTransaction(ctx context.Context, tx *models.Transaction) error
	RecordBehaviours(ctx context.Context, userID uuid.UUID, behaviours []models.SuspiciousBehaviour) error
}

// Config configures the kafka audit sink.
type Config struct {
	Brokers          []string `mapstructure:"brokers"`
	TransactionTopic string   `mapstructure:"transaction_topic"`
	BehaviourTopic   string   `mapstructure:"behaviour_topic"`
}

// DefaultConfig returns the standard audit topics.
func DefaultConfig() Config {
	return Config{
		Brokers:          []string{"localhost:9092"},
		TransactionTopic: "fraudwatch.audit.transactions",
		BehaviourTopic:   "fraudwatch.audit.behaviours",
	}
}

// messageWriter is the slice of kafka.Writer the sink needs; tests substitute
// a fake.
type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaSink publishes audit events as JSON messages.
type KafkaSink struct {
	writer           messageWriter
	transactionTopic string
	behaviourTopic   string
	logger           *zap.Logger
}

// NewKafkaSink creates a kafka-backed audit sink.
func NewKafkaSink(cfg Config, logger *zap.Logger) *KafkaSink {
	writer := &kafka.Writer{
		Addr:         kafka.TCP(cfg.Brokers...),
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireOne,
		Async:        false,
		WriteTimeout: 2 * time.Second,
	}
	return &KafkaSink{
		writer:           writer,
		transactionTopic: cfg.TransactionTopic,
		behaviourTopic:   cfg.BehaviourTopic,
		logger:           logger,
	}
}

// transactionEvent is the audit record for one processed transaction.
type transactionEvent struct {
	TransactionID  string                   `json:"transaction_id"`
	SenderID       string                   `json:"sender_id"`
	ReceiverID     string                   `json:"receiver_id"`
	Amount         float64                  `json:"amount"`
	Status         models.TransactionStatus `json:"status"`
	InvalidDetails *string                  `json:"invalid_details,omitempty"`
	FailReason     string                   `json:"fail_reason,omitempty"`
	Recommendation models.Recommendation    `json:"recommendation,omitempty"`
	Score          string                   `json:"score,omitempty"`
	RecordedAt     time.Time                `json:"recorded_at"`
}

// behaviourEvent links a user to the behaviour types detected on one of their
// transactions.
type behaviourEvent struct {
	UserID     string    `json:"user_id"`
	Codes      []string  `json:"codes"`
	RecordedAt time.Time `json:"recorded_at"`
}

// RecordTransaction publishes the transaction's terminal state.
func (s *KafkaSink) RecordTransaction(ctx context.Context, tx *models.Transaction) error {
	event := transactionEvent{
		TransactionID:  tx.ID.String(),
		SenderID:       tx.SenderAccountID.String(),
		ReceiverID:     tx.ReceiverAccountID.String(),
		Amount:         tx.Amount,
		Status:         tx.Status,
		InvalidDetails: tx.InvalidDetails,
		FailReason:     tx.FailReason,
		RecordedAt:     time.Now().UTC(),
	}
	if fraud := tx.Snapshot.Fraud; fraud != nil {
		event.Recommendation = fraud.Recommendation
		event.Score = fraud.Score.String()
	}
	return s.publish(ctx, s.transactionTopic, tx.ID.String(), event)
}

// RecordBehaviours publishes the detected behaviour codes for a user.
func (s *KafkaSink) RecordBehaviours(ctx context.Context, userID uuid.UUID, behaviours []models.SuspiciousBehaviour) error {
	if len(behaviours) == 0 {
		return nil
	}
	codes := make([]string, 0, len(behaviours))
	for _, b := range behaviours {
		codes = append(codes, b.Code)
	}
	event := behaviourEvent{
		UserID:     userID.String(),
		Codes:      codes,
		RecordedAt: time.Now().UTC(),
	}
	return s.publish(ctx, s.behaviourTopic, userID.String(), event)
}

func (s *KafkaSink) publish(ctx context.Context, topic, key string, event interface{}) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal audit event: %w", err)
	}
	return s.writer.WriteMessages(ctx, kafka.Message{
		Topic: topic,
		Key:   []byte(key),
		Value: payload,
	})
}

// Close flushes and closes the underlying writer.
func (s *KafkaSink) Close() error {
	return s.writer.Close()
}

// NopSink discards all audit events. Used when auditing is disabled.
type NopSink struct{}

func (NopSink) RecordTransaction(context.Context, *models.Transaction) error { return nil }
func (NopSink) RecordBehaviours(context.Context, uuid.UUID, []models.SuspiciousBehaviour) error {
	return nil
}
