package detector

import (
	"context"

	"go.uber.org/zap"

	"github.com/velobank/fraudwatch/internal/behavior"
	"github.com/velobank/fraudwatch/pkg/models"
)

// DrainConfig holds the account-drain thresholds.
type DrainConfig struct {
	// MinBalance is the floor below which drain checks are skipped; trivial
	// balances produce nothing but false positives.
	MinBalance float64 `mapstructure:"min_balance"`
	Moderate   float64 `mapstructure:"moderate"`
	High       float64 `mapstructure:"high"`
	Extreme    float64 `mapstructure:"extreme"`
}

// DefaultDrainConfig returns the standard drain thresholds.
func DefaultDrainConfig() DrainConfig {
	return DrainConfig{
		MinBalance: 100.0,
		Moderate:   0.50,
		High:       0.75,
		Extreme:    0.90,
	}
}

// DrainDetector flags transfers that consume a large fraction of the sender's
// balance. It prefers the snapshot's point-in-time balance and falls back to a
// live lookup only when the snapshot is incomplete.
type DrainDetector struct {
	cfg      DrainConfig
	balances BalanceStore
	logger   *zap.SugaredLogger
}

// NewDrainDetector creates the account-drain detector.
func NewDrainDetector(cfg DrainConfig, balances BalanceStore, logger *zap.SugaredLogger) *DrainDetector {
	return &DrainDetector{cfg: cfg, balances: balances, logger: logger}
}

func (d *DrainDetector) Name() string { return "account_drain" }

// Validate emits at most one behaviour, at the highest drain level tripped.
func (d *DrainDetector) Validate(ctx context.Context, snap *models.TransactionSnapshot) ([]models.SuspiciousBehaviour, error) {
	balance := snap.Sender.Balance
	if balance <= 0 && d.balances != nil {
		live, err := d.balances.GetBalance(ctx, snap.Request.SenderAccountID)
		if err != nil {
			return nil, err
		}
		balance = live
	}
	if balance < d.cfg.MinBalance || balance <= 0 {
		return nil, nil
	}

	drain := snap.Request.Amount / balance

	var (
		kind      behavior.Kind
		intensity float64
		severity  int
		level     string
	)
	switch {
	case drain >= d.cfg.Extreme:
		kind, intensity, severity, level = behavior.KindAccountDrainExtreme, 2.8, 5, "EXTREME"
	case drain >= d.cfg.High:
		kind, intensity, severity, level = behavior.KindAccountDrainHigh, 1.9, 4, "HIGH"
	case drain >= d.cfg.Moderate:
		kind, intensity, severity, level = behavior.KindAccountDrainModerate, 1.0, 3, "MODERATE"
	default:
		return nil, nil
	}

	d.logger.Debugw("account drain detected",
		"sender", snap.Request.SenderAccountID,
		"drain_percentage", drain,
		"level", level)

	return []models.SuspiciousBehaviour{
		behavior.New(kind, intensity, severity, map[string]interface{}{
			"drain_percentage": drain,
			"drain_level":      level,
			"amount":           snap.Request.Amount,
			"balance":          balance,
		}),
	}, nil
}
