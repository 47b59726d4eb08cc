// Package worker hosts the pending-transaction worker: a single background
// loop that drains pending transfers one at a time, runs fraud validation and
// settles or rejects each transfer. One worker per deployment; the oldest
// pending transfer is always processed first.
package worker

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/zap"

	"github.com/velobank/fraudwatch/internal/audit"
	"github.com/velobank/fraudwatch/internal/ledger"
	"github.com/velobank/fraudwatch/internal/risk"
	"github.com/velobank/fraudwatch/pkg/models"
)

var (
	workerTicks = promauto.NewCounter(prometheus.CounterOpts{
		Name: "fraudwatch_worker_ticks_total",
		Help: "Number of worker polling ticks.",
	})
	transactionsProcessed = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "fraudwatch_transactions_processed_total",
		Help: "Terminal transaction outcomes by kind.",
	}, []string{"outcome"})
	reviewFlagged = promauto.NewCounter(prometheus.CounterOpts{
		Name: "fraudwatch_review_flagged_total",
		Help: "Transactions settled with a REVIEW recommendation.",
	})
	settlementDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "fraudwatch_settlement_duration_seconds",
		Help:    "Wall time spent in atomic settlement.",
		Buckets: prometheus.DefBuckets,
	})
)

// TransactionQueue is the slice of the transaction store the worker consumes.
type TransactionQueue interface {
	FindOldestPending(ctx context.Context) (*models.Transaction, error)
	Save(ctx context.Context, tx *models.Transaction) error
}

// Validator produces behaviour evidence for a snapshot.
type Validator interface {
	RunAll(ctx context.Context, snap *models.TransactionSnapshot) []models.SuspiciousBehaviour
}

// Settler moves money between two accounts atomically.
type Settler interface {
	Settle(ctx context.Context, senderID, receiverID uuid.UUID, amount float64) (*models.Account, *models.Account, error)
}

// Config controls the worker loop.
type Config struct {
	PollInterval time.Duration `mapstructure:"poll_interval"`
}

// DefaultConfig returns the standard polling cadence.
func DefaultConfig() Config {
	return Config{PollInterval: 5 * time.Second}
}

// Worker drains pending transactions on a fixed interval.
type Worker struct {
	queue     TransactionQueue
	validator Validator
	settler   Settler
	sink      audit.Sink
	interval  time.Duration
	logger    *zap.Logger
	now       func() time.Time
}

// New wires a worker. A nil sink disables auditing.
func New(cfg Config, queue TransactionQueue, validator Validator, settler Settler, sink audit.Sink, logger *zap.Logger) *Worker {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = DefaultConfig().PollInterval
	}
	if sink == nil {
		sink = audit.NopSink{}
	}
	return &Worker{
		queue:     queue,
		validator: validator,
		settler:   settler,
		sink:      sink,
		interval:  cfg.PollInterval,
		logger:    logger,
		now:       time.Now,
	}
}

// Run polls until the context is cancelled. A panic inside one tick is
// recovered and logged; the loop keeps running and the transaction stays
// pending for the next tick.
func (w *Worker) Run(ctx context.Context) {
	w.logger.Info("pending-transaction worker started",
		zap.Duration("poll_interval", w.interval))
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			w.logger.Info("pending-transaction worker stopped")
			return
		case <-ticker.C:
			workerTicks.Inc()
			w.tick(ctx)
		}
	}
}

func (w *Worker) tick(ctx context.Context) {
	defer func() {
		if r := recover(); r != nil {
			w.logger.Error("worker tick panicked", zap.Any("panic", r))
		}
	}()
	if err := w.ProcessNext(ctx); err != nil {
		w.logger.Error("failed to process pending transaction", zap.Error(err))
	}
}

// ProcessNext claims the oldest pending transaction and drives it to a
// terminal state. Returning an error without persisting leaves the
// transaction pending for a later retry; the fraud result is recomputed on
// that retry because nothing was written.
func (w *Worker) ProcessNext(ctx context.Context) error {
	tx, err := w.queue.FindOldestPending(ctx)
	if err != nil {
		return err
	}
	if tx == nil {
		return nil
	}

	log := w.logger.With(
		zap.String("transaction_id", tx.ID.String()),
		zap.String("sender_id", tx.SenderAccountID.String()),
		zap.String("receiver_id", tx.ReceiverAccountID.String()),
		zap.Float64("amount", tx.Amount))

	// Transactions rejected at submission skip validation and settlement
	// entirely; they only need their terminal state recorded.
	if tx.InvalidDetails != nil {
		if err := tx.MarkFailed(w.now(), *tx.InvalidDetails); err != nil {
			return err
		}
		if err := w.queue.Save(ctx, tx); err != nil {
			return err
		}
		transactionsProcessed.WithLabelValues("invalid").Inc()
		log.Info("rejected invalid transaction", zap.String("reason", *tx.InvalidDetails))
		w.recordAudit(ctx, log, tx, nil)
		return nil
	}

	behaviours := w.validator.RunAll(ctx, &tx.Snapshot)
	result := risk.Aggregate(behaviours)
	tx.AttachFraudResult(result)

	if result.IsFraud {
		if err := tx.MarkFailed(w.now(), "blocked by fraud detection"); err != nil {
			return err
		}
		if err := w.queue.Save(ctx, tx); err != nil {
			return err
		}
		transactionsProcessed.WithLabelValues("blocked").Inc()
		log.Warn("blocked fraudulent transaction",
			zap.String("score", result.Score.String()),
			zap.Int("behaviours", len(behaviours)))
		w.recordAudit(ctx, log, tx, behaviours)
		return nil
	}

	if result.Recommendation == models.RecommendReview {
		reviewFlagged.Inc()
		log.Warn("transaction flagged for review",
			zap.String("score", result.Score.String()),
			zap.Int("behaviours", len(behaviours)))
	}

	start := w.now()
	_, _, settleErr := w.settler.Settle(ctx, tx.SenderAccountID, tx.ReceiverAccountID, tx.Amount)
	settlementDuration.Observe(time.Since(start).Seconds())

	switch {
	case settleErr == nil:
		if err := tx.MarkCompleted(w.now()); err != nil {
			return err
		}
		transactionsProcessed.WithLabelValues("completed").Inc()
		log.Info("transaction settled")
	case errors.Is(settleErr, ledger.ErrInsufficientFunds),
		errors.Is(settleErr, ledger.ErrReceiverNotFound),
		errors.Is(settleErr, ledger.ErrNonPositiveAmount):
		if err := tx.MarkFailed(w.now(), settleErr.Error()); err != nil {
			return err
		}
		transactionsProcessed.WithLabelValues("failed").Inc()
		log.Info("transaction failed settlement preconditions", zap.Error(settleErr))
	default:
		// Infrastructure failure. Persist nothing so the transaction is
		// retried whole on a later tick.
		return settleErr
	}

	if err := w.queue.Save(ctx, tx); err != nil {
		return err
	}
	w.recordAudit(ctx, log, tx, behaviours)
	return nil
}

// recordAudit publishes best-effort audit events. Audit failures never alter
// transaction outcomes.
func (w *Worker) recordAudit(ctx context.Context, log *zap.Logger, tx *models.Transaction, behaviours []models.SuspiciousBehaviour) {
	if err := w.sink.RecordTransaction(ctx, tx); err != nil {
		log.Warn("failed to record transaction audit event", zap.Error(err))
	}
	if len(behaviours) > 0 {
		if err := w.sink.RecordBehaviours(ctx, tx.Snapshot.Sender.UserID, behaviours); err != nil {
			log.Warn("failed to record behaviour audit event", zap.Error(err))
		}
	}
}
