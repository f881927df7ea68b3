package payment

import (
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"github.com/noah-isme/payment-router/internal/obs"
)

// Weights tune the additive scoring terms. Every term is a pure function of the
// request and static provider metadata, so a fixed (request, registry) pair
// always yields the same ordering.
type Weights struct {
	CurrencyBase    float64
	MethodBonus     float64
	FeatureBonus    float64
	AmountFitWeight float64
	Reliability     float64
	CostCeiling     float64
	CostWeight      float64
}

// DefaultWeights returns the scoring weights used in production.
func DefaultWeights() Weights {
	return Weights{
		CurrencyBase:    20,
		MethodBonus:     15,
		FeatureBonus:    5,
		AmountFitWeight: 10,
		Reliability:     25,
		CostCeiling:     10,
		CostWeight:      3,
	}
}

// ReliabilitySource exposes the rolling provider health score in [0, 1]. The
// snapshot is refreshed out of band, never computed per request.
type ReliabilitySource interface {
	Score(provider string) float64
}

// Selector scores registered providers against a payment request.
type Selector struct {
	Registry    *Registry
	Reliability ReliabilitySource
	Weights     Weights
}

// Select returns candidate provider names ordered by descending score, or an
// empty list when no provider survives the hard currency filter. Ties break by
// registration order.
func (s *Selector) Select(req PaymentRequest) []ProviderScore {
	start := time.Now()
	defer func() {
		if obs.SelectionDuration != nil {
			obs.SelectionDuration.Observe(obs.DurationMillis(time.Since(start)))
		}
	}()

	type candidate struct {
		ProviderScore
		order int
	}
	required := requiredFeatures(req)
	candidates := make([]candidate, 0, s.Registry.Len())
	for _, record := range s.Registry.Records() {
		// Hard filter: unsupported currency disqualifies the provider entirely.
		if !record.Caps.SupportsCurrency(req.Currency) {
			continue
		}
		score := s.Weights.CurrencyBase
		if record.Caps.SupportsMethod(req.Method.Type) {
			score += s.Weights.MethodBonus
		}
		score += amountFitScore(record.Caps.Band, req.Amount) * s.Weights.AmountFitWeight
		for _, feature := range required {
			if record.Provider.Supports(feature) {
				score += s.Weights.FeatureBonus
			}
		}
		if s.Reliability != nil {
			score += clamp01(s.Reliability.Score(record.Name)) * s.Weights.Reliability
		}
		score += costScore(record.Caps.Fees, req.Amount, s.Weights)
		candidates = append(candidates, candidate{ProviderScore{Provider: record.Name, Score: score}, record.order})
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		if candidates[i].Score != candidates[j].Score {
			return candidates[i].Score > candidates[j].Score
		}
		return candidates[i].order < candidates[j].order
	})

	out := make([]ProviderScore, len(candidates))
	for i, c := range candidates {
		out[i] = c.ProviderScore
	}
	return out
}

// requiredFeatures derives the features a request implicitly needs.
func requiredFeatures(req PaymentRequest) []Feature {
	var features []Feature
	if req.SetupFutureUsage {
		features = append(features, FeatureTokenization, FeatureRecurring)
	}
	if req.Method.Type == MethodDigitalWallet {
		features = append(features, FeatureMobilePayments)
	}
	if req.IdempotencyKey != "" {
		features = append(features, FeatureIdempotency)
	}
	return features
}

// amountFitScore returns the band multiplier inside the preferred range and a
// small residual outside it. Out-of-band amounts are penalized, not zeroed.
func amountFitScore(band AmountBand, amount decimal.Decimal) float64 {
	multiplier := band.Multiplier
	if multiplier <= 0 {
		multiplier = 1
	}
	if band.Contains(amount) {
		return multiplier
	}
	return multiplier * 0.25
}

// costScore rewards lower effective fee percentages, floored at zero.
func costScore(fees FeeStructure, amount decimal.Decimal, w Weights) float64 {
	pct, _ := fees.EffectivePercent(amount).Float64()
	score := (w.CostCeiling - pct) * w.CostWeight
	if score < 0 {
		return 0
	}
	return score
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
