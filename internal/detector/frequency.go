package detector

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/montanaflynn/stats"
	"go.uber.org/zap"

	"github.com/velobank/fraudwatch/internal/behavior"
	"github.com/velobank/fraudwatch/pkg/models"
)

// FrequencyConfig holds the frequency-anomaly tunables.
type FrequencyConfig struct {
	LookbackWindow  time.Duration `mapstructure:"lookback_window"`
	MaxHistory      int           `mapstructure:"max_history"`
	DetectionWindow time.Duration `mapstructure:"detection_window"`
	// MinBaselineSamples gates the robust baseline; below it the fallback
	// global baseline applies.
	MinBaselineSamples int `mapstructure:"min_baseline_samples"`
	// FallbackBaselineGap is the assumed median inter-transaction gap when the
	// sender has too little history for a personal baseline. Operational
	// default, not empirically derived; tune per deployment.
	FallbackBaselineGap time.Duration `mapstructure:"fallback_baseline_gap"`
	FallbackBaselineMAD time.Duration `mapstructure:"fallback_baseline_mad"`
	ZScoreThreshold     float64       `mapstructure:"z_score_threshold"`
	MinWindowEvents     int           `mapstructure:"min_window_events"`
	RateFoldThreshold   float64       `mapstructure:"rate_fold_threshold"`
}

// DefaultFrequencyConfig returns the standard frequency tunables.
func DefaultFrequencyConfig() FrequencyConfig {
	return FrequencyConfig{
		LookbackWindow:      30 * 24 * time.Hour,
		MaxHistory:          200,
		DetectionWindow:     10 * time.Minute,
		MinBaselineSamples:  5,
		FallbackBaselineGap: time.Hour,
		FallbackBaselineMAD: 10 * time.Minute,
		ZScoreThreshold:     3.0,
		MinWindowEvents:     3,
		RateFoldThreshold:   6.0,
	}
}

// FrequencyDetector compares the sender's recent transaction cadence against
// a robust personal baseline. Central tendency and spread use median and
// median absolute deviation rather than mean/stddev so a few extreme gaps do
// not wash out the baseline. Two signals are combined with an OR, each gated
// on a minimum window sample, because either statistic alone is noisy on
// sparse histories.
type FrequencyDetector struct {
	cfg     FrequencyConfig
	history HistoryStore
	logger  *zap.SugaredLogger
	now     func() time.Time
}

// NewFrequencyDetector creates the frequency-anomaly detector.
func NewFrequencyDetector(cfg FrequencyConfig, history HistoryStore, logger *zap.SugaredLogger) *FrequencyDetector {
	return &FrequencyDetector{cfg: cfg, history: history, logger: logger, now: time.Now}
}

func (d *FrequencyDetector) Name() string { return "frequency_anomaly" }

func (d *FrequencyDetector) Validate(ctx context.Context, snap *models.TransactionSnapshot) ([]models.SuspiciousBehaviour, error) {
	since := d.now().Add(-d.cfg.LookbackWindow)
	history, err := d.history.RecentTransactions(ctx, snap.Request.SenderAccountID, since, d.cfg.MaxHistory)
	if err != nil {
		return nil, fmt.Errorf("load sender history: %w", err)
	}

	events := make([]time.Time, 0, len(history)+1)
	for _, tx := range history {
		if tx.CreatedAt.Before(snap.CapturedAt) {
			events = append(events, tx.CreatedAt)
		}
	}
	events = append(events, snap.CapturedAt)
	sort.Slice(events, func(i, j int) bool { return events[i].Before(events[j]) })

	windowStart := snap.CapturedAt.Add(-d.cfg.DetectionWindow)
	baselineGaps, windowGaps, windowEvents := splitGaps(events, windowStart)
	if len(windowGaps) == 0 {
		return nil, nil
	}

	baselineMedian, baselineMAD := d.baseline(baselineGaps)
	windowAvg, _ := stats.Mean(windowGaps)

	// Positive z means the gaps shrank: events got closer together.
	z := (baselineMedian - windowAvg) / maxFloat(baselineMAD, 1)
	rateFold := baselineMedian / maxFloat(windowAvg, 1)

	d.logger.Debugw("frequency baseline computed",
		"sender", snap.Request.SenderAccountID,
		"baseline_median_s", baselineMedian,
		"baseline_mad_s", baselineMAD,
		"window_avg_gap_s", windowAvg,
		"window_events", windowEvents,
		"z_score", z,
		"rate_fold", rateFold)

	context := map[string]interface{}{
		"z_score":           z,
		"rate_fold":         rateFold,
		"baseline_median_s": baselineMedian,
		"baseline_mad_s":    baselineMAD,
		"window_avg_gap_s":  windowAvg,
		"window_events":     windowEvents,
	}

	switch {
	case z >= d.cfg.ZScoreThreshold && windowEvents >= d.cfg.MinWindowEvents:
		severity := 4
		if z >= 2*d.cfg.ZScoreThreshold {
			severity = 5
		}
		return []models.SuspiciousBehaviour{
			behavior.New(behavior.KindFrequencySpike, z/d.cfg.ZScoreThreshold, severity, context),
		}, nil
	case rateFold >= d.cfg.RateFoldThreshold && windowEvents >= d.cfg.MinWindowEvents:
		return []models.SuspiciousBehaviour{
			behavior.New(behavior.KindRateSurge, rateFold/d.cfg.RateFoldThreshold, 4, context),
		}, nil
	}
	return nil, nil
}

// splitGaps derives inter-event gaps in seconds, drops degenerate (zero or
// negative) gaps, and partitions them around the detection window boundary.
// A gap belongs to the baseline when its later event precedes the window and
// to the window when both of its events are inside it; the single gap that
// straddles the boundary belongs to neither. windowEvents counts events at or
// after windowStart.
func splitGaps(events []time.Time, windowStart time.Time) (baseline, window []float64, windowEvents int) {
	for i := 1; i < len(events); i++ {
		gap := events[i].Sub(events[i-1]).Seconds()
		if gap <= 0 {
			continue
		}
		switch {
		case events[i].Before(windowStart):
			baseline = append(baseline, gap)
		case !events[i-1].Before(windowStart):
			window = append(window, gap)
		}
	}
	for _, e := range events {
		if !e.Before(windowStart) {
			windowEvents++
		}
	}
	return baseline, window, windowEvents
}

// baseline returns the robust (median, MAD) central tendency and spread of
// the baseline gaps, or the configured global fallback when the sample is too
// small to trust.
func (d *FrequencyDetector) baseline(gaps []float64) (median, mad float64) {
	if len(gaps) < d.cfg.MinBaselineSamples {
		return d.cfg.FallbackBaselineGap.Seconds(), d.cfg.FallbackBaselineMAD.Seconds()
	}
	median, _ = stats.Median(gaps)
	mad, _ = stats.MedianAbsoluteDeviation(gaps)
	return median, mad
}

func maxFloat(a, b float64) float64 {
	if a > b {
		return a
	}
	return b
}
