package payment_test

import (
	"context"
	"errors"
	"testing"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/payment-router/internal/events"
	"github.com/noah-isme/payment-router/internal/payment"
)

func newOrchestrator(t *testing.T, fallbacks []string, providers ...*fakeProvider) (*payment.Orchestrator, *captureNotifier) {
	t.Helper()
	reg := buildTestRegistry(t, providers...)
	notifier := &captureNotifier{}
	scores := fixedReliability{}
	for _, p := range providers {
		scores[p.name] = 0.9
	}
	return &payment.Orchestrator{
		Registry:  reg,
		Selector:  &payment.Selector{Registry: reg, Reliability: scores, Weights: payment.DefaultWeights()},
		Events:    &events.Bus{Notifiers: []events.Notifier{notifier}},
		Logger:    zerolog.Nop(),
		Fallbacks: fallbacks,
	}, notifier
}

func TestProcessPaymentUsesPrimaryProvider(t *testing.T) {
	a := newFakeProvider("alpha", "USD")
	b := newFakeProvider("beta", "USD")
	orc, notifier := newOrchestrator(t, []string{"beta"}, a, b)

	resp, err := orc.ProcessPayment(context.Background(), cardRequest(100, "USD"))
	require.NoError(t, err)
	require.Equal(t, "alpha", resp.Provider)
	require.Len(t, a.creates, 1)
	require.Empty(t, b.creates)
	require.Len(t, notifier.events, 1)
	require.Equal(t, events.TopicPaymentCreated, notifier.events[0].Topic)
}

func TestProcessPaymentFallsBackOnPrimaryFailure(t *testing.T) {
	a := newFakeProvider("alpha", "USD")
	a.createErr = errors.New("alpha: gateway timeout")
	b := newFakeProvider("beta", "USD")
	orc, notifier := newOrchestrator(t, []string{"beta"}, a, b)

	resp, err := orc.ProcessPayment(context.Background(), cardRequest(100, "USD"))
	require.NoError(t, err)
	require.Equal(t, "beta", resp.Provider)
	require.Len(t, a.creates, 1)
	require.Len(t, b.creates, 1)
	require.Len(t, notifier.events, 1)
}

func TestProcessPaymentNeverRetriesSameProvider(t *testing.T) {
	a := newFakeProvider("alpha", "USD")
	a.createErr = errors.New("alpha: declined")
	orc, _ := newOrchestrator(t, []string{"alpha", "alpha"}, a)

	_, err := orc.ProcessPayment(context.Background(), cardRequest(100, "USD"))
	require.Error(t, err)
	require.Len(t, a.creates, 1)
}

func TestFallbackSkipsProviderWithoutCurrencySupport(t *testing.T) {
	a := newFakeProvider("alpha", "USD", "EUR")
	a.createErr = errors.New("alpha: gateway timeout")
	b := newFakeProvider("beta", "USD")
	orc, notifier := newOrchestrator(t, []string{"beta"}, a, b)

	// beta cannot take EUR, so the fallback must never reach it.
	_, err := orc.ProcessPayment(context.Background(), cardRequest(100, "EUR"))
	require.Error(t, err)
	require.ErrorIs(t, err, a.createErr)
	require.Contains(t, err.Error(), "1 provider attempt(s)")
	require.Len(t, a.creates, 1)
	require.Empty(t, b.creates)
	require.Empty(t, notifier.events)
}

func TestProcessPaymentExhaustionWrapsLastError(t *testing.T) {
	a := newFakeProvider("alpha", "USD")
	a.createErr = errors.New("alpha: declined")
	b := newFakeProvider("beta", "USD")
	b.createErr = errors.New("beta: insufficient funds")
	orc, notifier := newOrchestrator(t, []string{"beta"}, a, b)

	_, err := orc.ProcessPayment(context.Background(), cardRequest(100, "USD"))
	require.Error(t, err)
	require.ErrorIs(t, err, b.createErr)
	require.Contains(t, err.Error(), "2 provider attempt(s)")
	require.Empty(t, notifier.events)
}

func TestProcessPaymentRejectsUnsupportedCurrencyWithoutProviderCall(t *testing.T) {
	a := newFakeProvider("alpha", "USD")
	b := newFakeProvider("beta", "INR")
	orc, _ := newOrchestrator(t, nil, a, b)

	_, err := orc.ProcessPayment(context.Background(), cardRequest(100, "CHF"))
	require.ErrorIs(t, err, payment.ErrNoEligibleProvider)
	require.Empty(t, a.creates)
	require.Empty(t, b.creates)
}

func TestProcessPaymentValidatesBeforeSelection(t *testing.T) {
	a := newFakeProvider("alpha", "USD")
	orc, _ := newOrchestrator(t, nil, a)

	req := cardRequest(100, "USD")
	req.Amount = decimal.NewFromInt(-5)
	_, err := orc.ProcessPayment(context.Background(), req)
	require.ErrorIs(t, err, payment.ErrInvalidAmount)

	req = cardRequest(100, "USD")
	req.Method.Type = "carrier_pigeon"
	_, err = orc.ProcessPayment(context.Background(), req)
	require.ErrorIs(t, err, payment.ErrUnknownMethod)
	require.Empty(t, a.creates)
}

func TestProcessPaymentForwardsIdempotencyKey(t *testing.T) {
	a := newFakeProvider("alpha", "USD")
	orc, _ := newOrchestrator(t, nil, a)

	req := cardRequest(100, "USD")
	req.IdempotencyKey = "order-42"
	_, err := orc.ProcessPayment(context.Background(), req)
	require.NoError(t, err)
	require.Equal(t, "order-42", a.creates[0].IdempotencyKey)
}

func TestRefundRejectsNonSucceededPayment(t *testing.T) {
	a := newFakeProvider("alpha", "USD")
	a.status = payment.StatusRequiresCapture
	orc, _ := newOrchestrator(t, nil, a)

	resp, err := orc.ProcessPayment(context.Background(), cardRequest(100, "USD"))
	require.NoError(t, err)

	_, err = orc.RefundPayment(context.Background(), resp.ID, nil, "requested_by_customer")
	require.ErrorIs(t, err, payment.ErrRefundNotEligible)
}

func TestRefundRejectsAmountAboveRemainingBalance(t *testing.T) {
	a := newFakeProvider("alpha", "USD")
	orc, _ := newOrchestrator(t, nil, a)

	resp, err := orc.ProcessPayment(context.Background(), cardRequest(100, "USD"))
	require.NoError(t, err)

	partial := decimal.NewFromInt(40)
	_, err = orc.RefundPayment(context.Background(), resp.ID, &partial, "requested_by_customer")
	require.NoError(t, err)

	// 60 remains refundable; 70 must be rejected before any provider call.
	over := decimal.NewFromInt(70)
	_, err = orc.RefundPayment(context.Background(), resp.ID, &over, "requested_by_customer")
	require.ErrorIs(t, err, payment.ErrRefundExceedsBalance)

	exact := decimal.NewFromInt(60)
	_, err = orc.RefundPayment(context.Background(), resp.ID, &exact, "requested_by_customer")
	require.NoError(t, err)
}

func TestRefundRejectsNonPositiveAmount(t *testing.T) {
	a := newFakeProvider("alpha", "USD")
	orc, _ := newOrchestrator(t, nil, a)

	resp, err := orc.ProcessPayment(context.Background(), cardRequest(100, "USD"))
	require.NoError(t, err)

	zero := decimal.Zero
	_, err = orc.RefundPayment(context.Background(), resp.ID, &zero, "")
	require.ErrorIs(t, err, payment.ErrInvalidAmount)

	negative := decimal.NewFromInt(-10)
	_, err = orc.RefundPayment(context.Background(), resp.ID, &negative, "")
	require.ErrorIs(t, err, payment.ErrInvalidAmount)
}

func TestOperationsResolveOwningProviderByProbe(t *testing.T) {
	a := newFakeProvider("alpha", "USD")
	b := newFakeProvider("beta", "USD")
	orc, _ := newOrchestrator(t, nil, a, b)

	// Seed a payment on the second provider directly so the probe has to skip alpha.
	b.status = payment.StatusRequiresCapture
	seeded, err := b.CreatePayment(context.Background(), cardRequest(100, "USD"))
	require.NoError(t, err)

	got, err := orc.GetPayment(context.Background(), seeded.ID)
	require.NoError(t, err)
	require.Equal(t, "beta", got.Provider)

	captured, err := orc.CapturePayment(context.Background(), seeded.ID, nil)
	require.NoError(t, err)
	require.Equal(t, payment.StatusSucceeded, captured.Status)
}

func TestGetPaymentUnknownID(t *testing.T) {
	a := newFakeProvider("alpha", "USD")
	orc, _ := newOrchestrator(t, nil, a)

	_, err := orc.GetPayment(context.Background(), "pi_missing")
	require.ErrorIs(t, err, payment.ErrPaymentNotFound)
}

func TestCaptureEmitsEvent(t *testing.T) {
	a := newFakeProvider("alpha", "USD")
	a.status = payment.StatusRequiresCapture
	orc, notifier := newOrchestrator(t, nil, a)

	resp, err := orc.ProcessPayment(context.Background(), cardRequest(100, "USD"))
	require.NoError(t, err)

	_, err = orc.CapturePayment(context.Background(), resp.ID, nil)
	require.NoError(t, err)

	topics := make([]string, 0, len(notifier.events))
	for _, ev := range notifier.events {
		topics = append(topics, ev.Topic)
	}
	require.Equal(t, []string{events.TopicPaymentCreated, events.TopicPaymentCaptured}, topics)
}
