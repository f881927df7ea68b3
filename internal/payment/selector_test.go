package payment_test

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/payment-router/internal/payment"
)

func newSelector(t *testing.T, reliability payment.ReliabilitySource, providers ...*fakeProvider) (*payment.Selector, *payment.Registry) {
	t.Helper()
	reg := buildTestRegistry(t, providers...)
	return &payment.Selector{
		Registry:    reg,
		Reliability: reliability,
		Weights:     payment.DefaultWeights(),
	}, reg
}

func TestSelectFiltersUnsupportedCurrency(t *testing.T) {
	usd := newFakeProvider("alpha", "USD")
	inr := newFakeProvider("beta", "INR")
	sel, _ := newSelector(t, nil, usd, inr)

	scores := sel.Select(cardRequest(100, "USD"))
	require.Len(t, scores, 1)
	require.Equal(t, "alpha", scores[0].Provider)

	scores = sel.Select(cardRequest(100, "CHF"))
	require.Empty(t, scores)
}

func TestSelectReliabilityOrdersProviders(t *testing.T) {
	a := newFakeProvider("alpha", "USD")
	b := newFakeProvider("beta", "USD")
	sel, _ := newSelector(t, fixedReliability{"alpha": 0.5, "beta": 0.99}, a, b)

	scores := sel.Select(cardRequest(100, "USD"))
	require.Len(t, scores, 2)
	require.Equal(t, "beta", scores[0].Provider)
	require.Greater(t, scores[0].Score, scores[1].Score)
}

func TestSelectDeterministicForFixedInputs(t *testing.T) {
	a := newFakeProvider("alpha", "USD")
	b := newFakeProvider("beta", "USD")
	c := newFakeProvider("gamma", "USD", "EUR")
	sel, _ := newSelector(t, fixedReliability{"alpha": 0.8, "beta": 0.8, "gamma": 0.9}, a, b, c)

	req := cardRequest(250, "USD")
	first := sel.Select(req)
	for i := 0; i < 10; i++ {
		again := sel.Select(req)
		require.Equal(t, first, again)
	}
}

func TestSelectTieBreaksByRegistrationOrder(t *testing.T) {
	// Identical capabilities and reliability produce identical scores.
	a := newFakeProvider("alpha", "USD")
	b := newFakeProvider("beta", "USD")
	sel, _ := newSelector(t, fixedReliability{"alpha": 0.9, "beta": 0.9}, a, b)

	scores := sel.Select(cardRequest(100, "USD"))
	require.Len(t, scores, 2)
	require.Equal(t, scores[0].Score, scores[1].Score)
	require.Equal(t, "alpha", scores[0].Provider)
}

func TestSelectPrefersAmountBandFit(t *testing.T) {
	small := newFakeProvider("small", "USD")
	small.caps.Band = payment.AmountBand{
		Min: decimal.NewFromInt(1), Max: decimal.NewFromInt(500), Multiplier: 1.5,
	}
	large := newFakeProvider("large", "USD")
	large.caps.Band = payment.AmountBand{
		Min: decimal.NewFromInt(500), Max: decimal.NewFromInt(50000), Multiplier: 1.5,
	}
	sel, _ := newSelector(t, fixedReliability{"small": 0.9, "large": 0.9}, small, large)

	scores := sel.Select(cardRequest(100, "USD"))
	require.Equal(t, "small", scores[0].Provider)

	scores = sel.Select(cardRequest(10000, "USD"))
	require.Equal(t, "large", scores[0].Provider)
}

func TestSelectCostScoreNeverNegative(t *testing.T) {
	cheap := newFakeProvider("cheap", "USD")
	cheap.caps.Fees = payment.FeeStructure{Percent: decimal.NewFromFloat(1.0)}
	steep := newFakeProvider("steep", "USD")
	// Effective percentage far above the cost ceiling; the term floors at zero
	// instead of dragging the total below the currency base.
	steep.caps.Fees = payment.FeeStructure{Fixed: decimal.NewFromInt(50), Percent: decimal.NewFromInt(25)}
	sel, _ := newSelector(t, fixedReliability{"cheap": 0.9, "steep": 0.9}, cheap, steep)

	scores := sel.Select(cardRequest(100, "USD"))
	require.Equal(t, "cheap", scores[0].Provider)
	weights := payment.DefaultWeights()
	floor := weights.CurrencyBase + weights.MethodBonus
	require.GreaterOrEqual(t, scores[1].Score, floor)
}

func TestSelectMethodMismatchStillEligible(t *testing.T) {
	cards := newFakeProvider("cards", "USD")
	wallets := newFakeProvider("wallets", "USD")
	wallets.caps.Methods = []payment.PaymentMethodType{payment.MethodDigitalWallet}
	wallets.caps.Features = []payment.Feature{payment.FeatureMobilePayments}
	sel, _ := newSelector(t, fixedReliability{"cards": 0.9, "wallets": 0.9}, cards, wallets)

	// A card request keeps the wallet provider in the candidate set; currency is
	// the only hard filter.
	scores := sel.Select(cardRequest(100, "USD"))
	require.Len(t, scores, 2)
	require.Equal(t, "cards", scores[0].Provider)
}

func TestSelectFeatureBonusForSetupFutureUsage(t *testing.T) {
	plain := newFakeProvider("plain", "USD")
	vaulted := newFakeProvider("vaulted", "USD")
	vaulted.caps.Features = []payment.Feature{payment.FeatureTokenization, payment.FeatureRecurring}
	sel, _ := newSelector(t, fixedReliability{"plain": 0.9, "vaulted": 0.9}, plain, vaulted)

	req := cardRequest(100, "USD")
	req.SetupFutureUsage = true
	scores := sel.Select(req)
	require.Equal(t, "vaulted", scores[0].Provider)
}
