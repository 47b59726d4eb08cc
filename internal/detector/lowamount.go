package detector

import (
	"context"

	"go.uber.org/zap"

	"github.com/velobank/fraudwatch/internal/behavior"
	"github.com/velobank/fraudwatch/pkg/models"
)

// LowAmountConfig holds the probe-transaction amount tiers.
type LowAmountConfig struct {
	MicroMax   float64 `mapstructure:"micro_max"`
	VeryLowMax float64 `mapstructure:"very_low_max"`
	LowMax     float64 `mapstructure:"low_max"`
}

// DefaultLowAmountConfig returns the standard tier boundaries.
func DefaultLowAmountConfig() LowAmountConfig {
	return LowAmountConfig{
		MicroMax:   1.0,
		VeryLowMax: 5.0,
		LowMax:     10.0,
	}
}

// Intensity multipliers per tier. Very small probe transactions often precede
// larger fraud attempts, so smaller amounts score harder.
const (
	microIntensity   = 2.5
	veryLowIntensity = 1.8
	lowIntensity     = 1.2
)

// LowAmountDetector is a pure arithmetic threshold on the request amount,
// classifying probe-sized transfers into escalating suspicion tiers.
type LowAmountDetector struct {
	cfg    LowAmountConfig
	logger *zap.SugaredLogger
}

// NewLowAmountDetector creates the low-amount detector.
func NewLowAmountDetector(cfg LowAmountConfig, logger *zap.SugaredLogger) *LowAmountDetector {
	return &LowAmountDetector{cfg: cfg, logger: logger}
}

func (d *LowAmountDetector) Name() string { return "low_amount" }

func (d *LowAmountDetector) Validate(_ context.Context, snap *models.TransactionSnapshot) ([]models.SuspiciousBehaviour, error) {
	amount := snap.Request.Amount
	if amount <= 0 || amount > d.cfg.LowMax {
		return nil, nil
	}

	var (
		kind      behavior.Kind
		intensity float64
		severity  int
		level     string
	)
	switch {
	case amount < d.cfg.MicroMax:
		kind, intensity, severity, level = behavior.KindLowAmountMicro, microIntensity, 4, "MICRO"
	case amount < d.cfg.VeryLowMax:
		kind, intensity, severity, level = behavior.KindLowAmountVeryLow, veryLowIntensity, 3, "VERY_LOW"
	default:
		kind, intensity, severity, level = behavior.KindLowAmountLow, lowIntensity, 2, "LOW"
	}

	d.logger.Debugw("low amount detected",
		"sender", snap.Request.SenderAccountID,
		"amount", amount,
		"suspicion_level", level)

	return []models.SuspiciousBehaviour{
		behavior.New(kind, intensity, severity, map[string]interface{}{
			"amount":          amount,
			"suspicion_level": level,
		}),
	}, nil
}
