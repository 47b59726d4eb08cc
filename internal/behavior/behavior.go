// Package behavior defines the suspicious-behaviour value object and the
// catalog of behaviour kinds emitted by the fraud detectors. Each kind carries
// its base weight, base severity and description template in a lookup table;
// detectors supply the per-detection intensity, dynamic severity and context.
package behavior

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/velobank/fraudwatch/pkg/models"
)

// Kind is a stable behaviour code.
type Kind string

const (
	KindAccountDrainModerate Kind = "ACCOUNT_DRAIN_MODERATE"
	KindAccountDrainHigh     Kind = "ACCOUNT_DRAIN_HIGH"
	KindAccountDrainExtreme  Kind = "ACCOUNT_DRAIN_EXTREME"

	KindFastTravel         Kind = "FAST_TRAVEL"
	KindImpossibleTravel   Kind = "IMPOSSIBLE_TRAVEL"
	KindFirstTxFarFromHome Kind = "FIRST_TX_FAR_FROM_HOME"

	KindFrequencySpike Kind = "TX_FREQUENCY_SPIKE"
	KindRateSurge      Kind = "TX_RATE_SURGE"

	KindTxFarFromSender        Kind = "TX_FAR_FROM_SENDER"
	KindTxFarFromReceiver      Kind = "TX_FAR_FROM_RECEIVER"
	KindSenderReceiverFarApart Kind = "SENDER_RECEIVER_FAR_APART"

	KindLowAmountMicro   Kind = "LOW_AMOUNT_MICRO"
	KindLowAmountVeryLow Kind = "LOW_AMOUNT_VERY_LOW"
	KindLowAmountLow     Kind = "LOW_AMOUNT_LOW"
)

// Intensity bounds applied at construction time.
const (
	MinIntensity = 0.1
	MaxIntensity = 3.0
)

type catalogEntry struct {
	baseWeight   float64
	baseSeverity models.Severity
}

// catalog holds the per-kind constants. Base weights are in (0, 1].
var catalog = map[Kind]catalogEntry{
	KindAccountDrainModerate: {baseWeight: 0.35, baseSeverity: models.SeverityMedium},
	KindAccountDrainHigh:     {baseWeight: 0.45, baseSeverity: models.SeverityHigh},
	KindAccountDrainExtreme:  {baseWeight: 0.55, baseSeverity: models.SeverityCritical},

	KindFastTravel:         {baseWeight: 0.40, baseSeverity: models.SeverityHigh},
	KindImpossibleTravel:   {baseWeight: 0.60, baseSeverity: models.SeverityCritical},
	KindFirstTxFarFromHome: {baseWeight: 0.25, baseSeverity: models.SeverityMedium},

	KindFrequencySpike: {baseWeight: 0.45, baseSeverity: models.SeverityHigh},
	KindRateSurge:      {baseWeight: 0.40, baseSeverity: models.SeverityHigh},

	KindTxFarFromSender:        {baseWeight: 0.30, baseSeverity: models.SeverityMedium},
	KindTxFarFromReceiver:      {baseWeight: 0.25, baseSeverity: models.SeverityMedium},
	KindSenderReceiverFarApart: {baseWeight: 0.45, baseSeverity: models.SeverityHigh},

	KindLowAmountMicro:   {baseWeight: 0.30, baseSeverity: models.SeverityMedium},
	KindLowAmountVeryLow: {baseWeight: 0.25, baseSeverity: models.SeverityLow},
	KindLowAmountLow:     {baseWeight: 0.20, baseSeverity: models.SeverityLow},
}

// New constructs an immutable behaviour for the given kind. Intensity is
// clamped to [MinIntensity, MaxIntensity]; dynamicSeverity is clamped to the
// 1-5 scale (0 leaves the base severity in effect). The derived weight is
// computed here, once.
func New(kind Kind, intensity float64, dynamicSeverity int, context map[string]interface{}) models.SuspiciousBehaviour {
	entry, ok := catalog[kind]
	if !ok {
		// Unknown kinds get a floor weight so a miswired detector cannot
		// silently dominate the aggregate score.
		entry = catalogEntry{baseWeight: 0.1, baseSeverity: models.SeverityLow}
	}

	if intensity < MinIntensity {
		intensity = MinIntensity
	} else if intensity > MaxIntensity {
		intensity = MaxIntensity
	}
	if dynamicSeverity < 0 {
		dynamicSeverity = 0
	} else if dynamicSeverity > 5 {
		dynamicSeverity = 5
	}

	base := decimal.NewFromFloat(entry.baseWeight)
	mult := decimal.NewFromFloat(intensity)

	return models.SuspiciousBehaviour{
		Code:            string(kind),
		Description:     describe(kind, context),
		BaseWeight:      base,
		BaseSeverity:    entry.baseSeverity,
		Intensity:       mult,
		DynamicSeverity: dynamicSeverity,
		Weight:          base.Mul(mult),
		Context:         context,
		DetectedAt:      time.Now().UTC(),
	}
}

// BaseWeight exposes the catalog weight for a kind. Mostly useful in tests.
func BaseWeight(kind Kind) decimal.Decimal {
	if entry, ok := catalog[kind]; ok {
		return decimal.NewFromFloat(entry.baseWeight)
	}
	return decimal.NewFromFloat(0.1)
}

// describe renders a human-readable description for a behaviour kind from its
// detection context. Pure formatting, keyed by kind.
func describe(kind Kind, ctx map[string]interface{}) string {
	switch kind {
	case KindAccountDrainModerate, KindAccountDrainHigh, KindAccountDrainExtreme:
		return fmt.Sprintf("transfer drains %v of the sender's balance", pct(ctx["drain_percentage"]))
	case KindFastTravel:
		return fmt.Sprintf("transaction would require travelling at %v km/h since the previous transaction", num(ctx["required_speed_kmh"]))
	case KindImpossibleTravel:
		return fmt.Sprintf("physically impossible travel: %v km/h exceeds commercial flight speed", num(ctx["required_speed_kmh"]))
	case KindFirstTxFarFromHome:
		return fmt.Sprintf("first transaction located %v km from the registered branch region", num(ctx["distance_km"]))
	case KindFrequencySpike:
		return fmt.Sprintf("transaction frequency spike: z-score %v against the sender's baseline", num(ctx["z_score"]))
	case KindRateSurge:
		return fmt.Sprintf("transaction rate %vx the sender's baseline rate", num(ctx["rate_fold"]))
	case KindTxFarFromSender:
		return fmt.Sprintf("transaction located %v km from the sender's region", num(ctx["distance_km"]))
	case KindTxFarFromReceiver:
		return fmt.Sprintf("transaction located %v km from the receiver's region", num(ctx["distance_km"]))
	case KindSenderReceiverFarApart:
		return fmt.Sprintf("sender and receiver regions are %v km apart", num(ctx["distance_km"]))
	case KindLowAmountMicro, KindLowAmountVeryLow, KindLowAmountLow:
		return fmt.Sprintf("unusually low amount %v, possible probe transaction (%v)", num(ctx["amount"]), ctx["suspicion_level"])
	default:
		return string(kind)
	}
}

func num(v interface{}) string {
	if f, ok := v.(float64); ok {
		return fmt.Sprintf("%.1f", f)
	}
	return fmt.Sprintf("%v", v)
}

func pct(v interface{}) string {
	if f, ok := v.(float64); ok {
		return fmt.Sprintf("%.0f%%", f*100)
	}
	return fmt.Sprintf("%v", v)
}
