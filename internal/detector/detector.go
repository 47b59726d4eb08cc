// Package detector contains the fraud detector strategies and the validation
// orchestrator that fans a transaction snapshot out across all of them.
package detector

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/zap"

	"github.com/velobank/fraudwatch/pkg/models"
)

// Detector inspects one transaction snapshot and emits zero or more
// suspicious behaviours. Implementations are side-effect free and must not
// mutate the snapshot or any collaborator state. Errors mean "no signal from
// this detector" (fail-open); the orchestrator logs them.
type Detector interface {
	Name() string
	Validate(ctx context.Context, snap *models.TransactionSnapshot) ([]models.SuspiciousBehaviour, error)
}

// HistoryStore gives detectors read-only access to a sender's recent
// transactions.
type HistoryStore interface {
	RecentTransactions(ctx context.Context, accountID uuid.UUID, since time.Time, limit int) ([]models.Transaction, error)
}

// BalanceStore gives detectors a live balance lookup, used only when the
// snapshot is incomplete.
type BalanceStore interface {
	GetBalance(ctx context.Context, accountID uuid.UUID) (float64, error)
}

var detectorFailures = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "fraudwatch",
	Name:      "detector_failures_total",
	Help:      "Detector invocations that errored or panicked (treated as no signal).",
}, []string{"detector"})

// Orchestrator runs every registered detector concurrently and flattens the
// results. A failing or panicking detector degrades coverage, never the
// pipeline: isolation happens at the per-detector call boundary.
type Orchestrator struct {
	detectors []Detector
	logger    *zap.Logger
}

// NewOrchestrator builds an orchestrator over a fixed, compiled detector set.
func NewOrchestrator(logger *zap.Logger, detectors ...Detector) *Orchestrator {
	return &Orchestrator{detectors: detectors, logger: logger}
}

// Detectors returns the registered detector set.
func (o *Orchestrator) Detectors() []Detector {
	return o.detectors
}

// RunAll fans the snapshot out to all detectors, awaits them and returns the
// flattened behaviour list. Order of results is not significant.
func (o *Orchestrator) RunAll(ctx context.Context, snap *models.TransactionSnapshot) []models.SuspiciousBehaviour {
	results := make([][]models.SuspiciousBehaviour, len(o.detectors))

	var wg sync.WaitGroup
	for i, d := range o.detectors {
		wg.Add(1)
		go func(i int, d Detector) {
			defer wg.Done()
			defer func() {
				if r := recover(); r != nil {
					detectorFailures.WithLabelValues(d.Name()).Inc()
					o.logger.Error("detector panicked",
						zap.String("detector", d.Name()),
						zap.Any("panic", r))
				}
			}()

			behaviours, err := d.Validate(ctx, snap)
			if err != nil {
				detectorFailures.WithLabelValues(d.Name()).Inc()
				o.logger.Warn("detector failed, treating as no signal",
					zap.String("detector", d.Name()),
					zap.Error(err))
				return
			}
			results[i] = behaviours
		}(i, d)
	}
	wg.Wait()

	var flattened []models.SuspiciousBehaviour
	for _, bs := range results {
		flattened = append(flattened, bs...)
	}
	return flattened
}
