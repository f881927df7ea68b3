package payment_test

import (
	"context"
	"fmt"
	"strconv"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/payment-router/internal/config"
	"github.com/noah-isme/payment-router/internal/events"
	"github.com/noah-isme/payment-router/internal/payment"
)

// fakeProvider is a scriptable in-memory adapter used across the package tests.
type fakeProvider struct {
	name      string
	caps      payment.Capabilities
	initErr   error
	createErr error
	creates   []payment.PaymentRequest
	payments  map[string]*payment.PaymentResponse
	status    payment.PaymentStatus
	hooks     []payment.PaymentWebhookEvent
	hookErr   error
}

func newFakeProvider(name string, currencies ...string) *fakeProvider {
	if len(currencies) == 0 {
		currencies = []string{"USD"}
	}
	return &fakeProvider{
		name: name,
		caps: payment.Capabilities{
			Currencies: currencies,
			Methods:    []payment.PaymentMethodType{payment.MethodCard},
			Fees:       payment.FeeStructure{Percent: decimal.NewFromFloat(2.0)},
			Band:       payment.AmountBand{Multiplier: 1},
		},
		payments: map[string]*payment.PaymentResponse{},
		status:   payment.StatusSucceeded,
	}
}

func (f *fakeProvider) Name() string                           { return f.name }
func (f *fakeProvider) Initialize(config.ProviderConfig) error { return f.initErr }
func (f *fakeProvider) Capabilities() payment.Capabilities     { return f.caps }

func (f *fakeProvider) Supports(feature payment.Feature) bool {
	for _, have := range f.caps.Features {
		if have == feature {
			return true
		}
	}
	return false
}

func (f *fakeProvider) CreatePayment(_ context.Context, req payment.PaymentRequest) (*payment.PaymentResponse, error) {
	f.creates = append(f.creates, req)
	if f.createErr != nil {
		return nil, f.createErr
	}
	resp := &payment.PaymentResponse{
		ID:       f.name + "_" + strconv.Itoa(len(f.creates)),
		Provider: f.name,
		Status:   f.status,
		Amount:   req.Amount,
		Currency: req.Currency,
	}
	if f.status == payment.StatusSucceeded {
		resp.CapturedAmount = req.Amount
	}
	f.payments[resp.ID] = resp
	return resp, nil
}

func (f *fakeProvider) CapturePayment(_ context.Context, id string, amount *decimal.Decimal) (*payment.PaymentResponse, error) {
	resp, ok := f.payments[id]
	if !ok {
		return nil, fmt.Errorf("%s: no such payment %s", f.name, id)
	}
	captured := resp.Amount
	if amount != nil {
		captured = *amount
	}
	resp.Status = payment.StatusSucceeded
	resp.CapturedAmount = captured
	return resp, nil
}

func (f *fakeProvider) RefundPayment(_ context.Context, id string, amount *decimal.Decimal, reason string) (*payment.RefundResponse, error) {
	resp, ok := f.payments[id]
	if !ok {
		return nil, fmt.Errorf("%s: no such payment %s", f.name, id)
	}
	refund := resp.Amount.Sub(resp.RefundedAmount)
	if amount != nil {
		refund = *amount
	}
	resp.RefundedAmount = resp.RefundedAmount.Add(refund)
	return &payment.RefundResponse{
		ID:        "ref_" + id,
		PaymentID: id,
		Amount:    refund,
		Currency:  resp.Currency,
		Status:    payment.RefundSucceeded,
		Reason:    reason,
	}, nil
}

func (f *fakeProvider) VoidPayment(_ context.Context, id string) (*payment.PaymentResponse, error) {
	resp, ok := f.payments[id]
	if !ok {
		return nil, fmt.Errorf("%s: no such payment %s", f.name, id)
	}
	resp.Status = payment.StatusCanceled
	return resp, nil
}

func (f *fakeProvider) GetPayment(_ context.Context, id string) (*payment.PaymentResponse, error) {
	resp, ok := f.payments[id]
	if !ok {
		return nil, fmt.Errorf("%s: no such payment %s", f.name, id)
	}
	return resp, nil
}

func (f *fakeProvider) VerifyWebhook(_ []byte, signature string) bool {
	return signature == "valid"
}

func (f *fakeProvider) ProcessWebhookEvent([]byte) ([]payment.PaymentWebhookEvent, error) {
	if f.hookErr != nil {
		return nil, f.hookErr
	}
	return f.hooks, nil
}

func buildTestRegistry(t require.TestingT, providers ...*fakeProvider) *payment.Registry {
	names := make([]string, 0, len(providers))
	factories := make(map[string]payment.Factory, len(providers))
	for _, p := range providers {
		p := p
		names = append(names, p.name)
		factories[p.name] = func() payment.Provider { return p }
	}
	cfg := &config.Config{
		EnabledProviders: names,
		Providers:        map[string]config.ProviderConfig{},
	}
	reg, err := payment.BuildRegistry(cfg, factories, zerolog.Nop())
	require.NoError(t, err)
	return reg
}

func buildStripeRegistry(t require.TestingT, s *payment.Stripe, webhookSecret string) *payment.Registry {
	cfg := &config.Config{
		EnabledProviders: []string{"stripe"},
		Providers: map[string]config.ProviderConfig{
			"stripe": {SecretKey: "sk_test", WebhookSecret: webhookSecret},
		},
	}
	factories := map[string]payment.Factory{"stripe": func() payment.Provider { return s }}
	reg, err := payment.BuildRegistry(cfg, factories, zerolog.Nop())
	require.NoError(t, err)
	return reg
}

// fixedReliability returns canned scores keyed by provider name.
type fixedReliability map[string]float64

func (f fixedReliability) Score(provider string) float64 { return f[provider] }

// captureNotifier records every event fanned out by the bus.
type captureNotifier struct {
	events []events.Event
}

func (c *captureNotifier) Notify(_ context.Context, event events.Event) error {
	c.events = append(c.events, event)
	return nil
}

func cardRequest(amount int64, currency string) payment.PaymentRequest {
	return payment.PaymentRequest{
		Amount:   decimal.NewFromInt(amount),
		Currency: currency,
		Method:   payment.PaymentMethod{Type: payment.MethodCard},
		Confirm:  true,
		Capture:  true,
	}
}
