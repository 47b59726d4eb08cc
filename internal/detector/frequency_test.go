package detector

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/velobank/fraudwatch/internal/behavior"
	"github.com/velobank/fraudwatch/pkg/models"
)

// burstHistory builds a sender history whose baseline inter-transaction gaps
// are [3000 3600 4200 3000 3600 4200] seconds (median 3600, MAD 600) followed
// by a burst of events separated by burstGap inside the detection window.
func burstHistory(snap *models.TransactionSnapshot, burstGap time.Duration, burstEvents int) []models.Transaction {
	var txs []models.Transaction

	// Burst events counting back from the capture time.
	cursor := snap.CapturedAt
	for i := 0; i < burstEvents; i++ {
		cursor = cursor.Add(-burstGap)
		txs = append(txs, historyTx(snap.Request.SenderAccountID, cursor, ""))
	}

	// Baseline events strictly before the detection window.
	cursor = snap.CapturedAt.Add(-2000 * time.Second)
	txs = append(txs, historyTx(snap.Request.SenderAccountID, cursor, ""))
	for _, gap := range []time.Duration{4200, 3600, 3000, 4200, 3600, 3000} {
		cursor = cursor.Add(-gap * time.Second)
		txs = append(txs, historyTx(snap.Request.SenderAccountID, cursor, ""))
	}
	return txs
}

func frequencyTestConfig() FrequencyConfig {
	cfg := DefaultFrequencyConfig()
	cfg.DetectionWindow = 20 * time.Minute
	return cfg
}

func TestFrequencyDetectorFlagsBurst(t *testing.T) {
	snap := snapshotFor(500, 10000, "")
	history := burstHistory(snap, 300*time.Second, 3)

	d := NewFrequencyDetector(frequencyTestConfig(), &fakeHistory{transactions: history}, testSugar())
	behaviours, err := d.Validate(context.Background(), snap)
	require.NoError(t, err)
	require.Len(t, behaviours, 1)

	b := behaviours[0]
	assert.Equal(t, string(behavior.KindFrequencySpike), b.Code)
	// Baseline median 3600s, MAD 600s, window average 300s: z = 5.5.
	assert.InDelta(t, 5.5, b.Context["z_score"].(float64), 1e-9)
	assert.Equal(t, 4, b.DynamicSeverity)
	assert.Equal(t, 4, b.Context["window_events"].(int))
}

func TestFrequencyDetectorEscalatesExtremeBurst(t *testing.T) {
	snap := snapshotFor(500, 10000, "")
	history := burstHistory(snap, 300*time.Second, 3)

	// z = 5.5 clears twice this threshold, escalating the severity.
	cfg := frequencyTestConfig()
	cfg.ZScoreThreshold = 2.0

	d := NewFrequencyDetector(cfg, &fakeHistory{transactions: history}, testSugar())
	behaviours, err := d.Validate(context.Background(), snap)
	require.NoError(t, err)
	require.Len(t, behaviours, 1)
	assert.Equal(t, 5, behaviours[0].DynamicSeverity)
}

func TestFrequencyDetectorRequiresMinimumWindowEvents(t *testing.T) {
	snap := snapshotFor(500, 10000, "")
	// A single prior event in the window gives two window events total, below
	// the minimum of three, however extreme the gap shrink looks.
	history := burstHistory(snap, 300*time.Second, 1)

	d := NewFrequencyDetector(frequencyTestConfig(), &fakeHistory{transactions: history}, testSugar())
	behaviours, err := d.Validate(context.Background(), snap)
	require.NoError(t, err)
	assert.Empty(t, behaviours)
}

func TestFrequencyDetectorNoHistoryNoSignal(t *testing.T) {
	snap := snapshotFor(500, 10000, "")
	d := NewFrequencyDetector(frequencyTestConfig(), &fakeHistory{}, testSugar())
	behaviours, err := d.Validate(context.Background(), snap)
	require.NoError(t, err)
	assert.Empty(t, behaviours, "a lone transaction has no gaps to compare")
}

func TestFrequencyDetectorFallbackBaseline(t *testing.T) {
	snap := snapshotFor(500, 10000, "")
	// Only burst events: no baseline gaps at all, so the configured global
	// fallback (median 3600s, MAD 600s) applies and the burst still flags.
	var history []models.Transaction
	cursor := snap.CapturedAt
	for i := 0; i < 3; i++ {
		cursor = cursor.Add(-300 * time.Second)
		history = append(history, historyTx(snap.Request.SenderAccountID, cursor, ""))
	}

	cfg := frequencyTestConfig()
	cfg.FallbackBaselineGap = time.Hour
	cfg.FallbackBaselineMAD = 10 * time.Minute

	d := NewFrequencyDetector(cfg, &fakeHistory{transactions: history}, testSugar())
	behaviours, err := d.Validate(context.Background(), snap)
	require.NoError(t, err)
	require.Len(t, behaviours, 1)
	assert.Equal(t, string(behavior.KindFrequencySpike), behaviours[0].Code)
}

func TestFrequencyDetectorRateSurgeOnNoisyBaseline(t *testing.T) {
	snap := snapshotFor(500, 10000, "")

	// An erratic baseline ([600 7200 600 7200 600 7200]s gaps) has median
	// 3900s but MAD 3300s, keeping the z-score low. The rate-fold signal
	// still catches the 300s burst: 3900/300 = 13×.
	var history []models.Transaction
	cursor := snap.CapturedAt
	for i := 0; i < 3; i++ {
		cursor = cursor.Add(-300 * time.Second)
		history = append(history, historyTx(snap.Request.SenderAccountID, cursor, ""))
	}
	cursor = snap.CapturedAt.Add(-2000 * time.Second)
	history = append(history, historyTx(snap.Request.SenderAccountID, cursor, ""))
	for _, gap := range []time.Duration{7200, 600, 7200, 600, 7200, 600} {
		cursor = cursor.Add(-gap * time.Second)
		history = append(history, historyTx(snap.Request.SenderAccountID, cursor, ""))
	}

	d := NewFrequencyDetector(frequencyTestConfig(), &fakeHistory{transactions: history}, testSugar())
	behaviours, err := d.Validate(context.Background(), snap)
	require.NoError(t, err)
	require.Len(t, behaviours, 1)

	b := behaviours[0]
	assert.Equal(t, string(behavior.KindRateSurge), b.Code)
	assert.Equal(t, 4, b.DynamicSeverity)
	assert.InDelta(t, 13.0, b.Context["rate_fold"].(float64), 1e-9)
}

func TestFrequencyDetectorSteadyCadenceNoSignal(t *testing.T) {
	snap := snapshotFor(500, 10000, "")
	// The window cadence matches the baseline cadence; nothing anomalous.
	var history []models.Transaction
	cursor := snap.CapturedAt
	for i := 0; i < 12; i++ {
		cursor = cursor.Add(-time.Hour)
		history = append(history, historyTx(snap.Request.SenderAccountID, cursor, ""))
	}

	cfg := frequencyTestConfig()
	cfg.DetectionWindow = 4 * time.Hour

	d := NewFrequencyDetector(cfg, &fakeHistory{transactions: history}, testSugar())
	behaviours, err := d.Validate(context.Background(), snap)
	require.NoError(t, err)
	assert.Empty(t, behaviours)
}
