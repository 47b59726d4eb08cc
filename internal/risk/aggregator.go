// Package risk aggregates detector signals into a single fraud decision.
package risk

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/velobank/fraudwatch/pkg/models"
)

var (
	one = decimal.NewFromInt(1)

	diversityStep      = decimal.NewFromFloat(0.1)
	criticalMultiplier = decimal.NewFromFloat(1.5)
	blockThreshold     = decimal.NewFromFloat(0.8)
	reviewThreshold    = decimal.NewFromFloat(0.4)
)

// Aggregate is a pure function over the behaviour list:
//
//	score = min(1, Σ weight × (1 + 0.1×(distinctCodes−1)) [× 1.5 if any critical])
//
// The diversity multiplier rewards corroborating signals of different kinds
// over repeated instances of the same kind. Recommendation thresholds:
// score ≥ 0.8 blocks, ≥ 0.4 reviews, anything below approves. An empty
// behaviour list yields score 0 and an approval.
func Aggregate(behaviours []models.SuspiciousBehaviour) *models.FraudResult {
	result := &models.FraudResult{
		Behaviours:     behaviours,
		Recommendation: models.RecommendApprove,
		Score:          decimal.Zero,
		EvaluatedAt:    time.Now().UTC(),
	}
	if len(behaviours) == 0 {
		return result
	}

	totalWeight := decimal.Zero
	codes := make(map[string]struct{}, len(behaviours))
	critical := false
	for _, b := range behaviours {
		totalWeight = totalWeight.Add(b.Weight)
		codes[b.Code] = struct{}{}
		if b.IsCritical() {
			critical = true
		}
	}

	diversity := one.Add(diversityStep.Mul(decimal.NewFromInt(int64(len(codes) - 1))))
	score := totalWeight.Mul(diversity)
	if critical {
		score = score.Mul(criticalMultiplier)
	}
	if score.GreaterThan(one) {
		score = one
	}

	result.Score = score
	result.Recommendation = recommend(score)
	result.IsFraud = result.Recommendation == models.RecommendBlock
	return result
}

func recommend(score decimal.Decimal) models.Recommendation {
	switch {
	case score.GreaterThanOrEqual(blockThreshold):
		return models.RecommendBlock
	case score.GreaterThanOrEqual(reviewThreshold):
		return models.RecommendReview
	default:
		return models.RecommendApprove
	}
}
