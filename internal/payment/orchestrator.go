package payment

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/noah-isme/payment-router/internal/events"
	"github.com/noah-isme/payment-router/internal/obs"
)

// Orchestrator drives payment operations across the registry with fallback.
// Calls are independent and may run concurrently; the only shared state is the
// read-only registry and the concurrency-safe event bus.
type Orchestrator struct {
	Registry    *Registry
	Selector    *Selector
	Events      *events.Bus
	Reliability *Reliability
	Logger      zerolog.Logger

	// Fallbacks is the operational allow-list of providers permitted to receive
	// fallback traffic. It is configured separately from the scored ordering.
	Fallbacks []string

	// AttemptBudget bounds the total time spent across primary and fallback
	// attempts for one logical request. Zero disables the bound.
	AttemptBudget time.Duration
}

// ProcessPayment validates the request, selects a provider and executes
// createPayment with fallback. Providers are attempted strictly sequentially:
// racing two providers could double-charge the customer.
func (o *Orchestrator) ProcessPayment(ctx context.Context, req PaymentRequest) (*PaymentResponse, error) {
	ctx, span := otel.Tracer("payment.Orchestrator").Start(ctx, "Orchestrator.ProcessPayment")
	defer span.End()

	if err := req.Validate(); err != nil {
		return nil, err
	}
	candidates := o.Selector.Select(req)
	if len(candidates) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrNoEligibleProvider, req.Currency)
	}
	span.SetAttributes(
		attribute.String("payment.currency", req.Currency),
		attribute.String("payment.method", string(req.Method.Type)),
		attribute.String("payment.primary_provider", candidates[0].Provider),
	)

	if o.AttemptBudget > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, o.AttemptBudget)
		defer cancel()
	}

	primary := candidates[0].Provider
	tried := map[string]bool{}
	var lastErr error

	attempt := func(name string) (*PaymentResponse, error) {
		record, ok := o.Registry.Get(name)
		if !ok {
			return nil, fmt.Errorf("%w: %s", ErrProviderNotFound, name)
		}
		resp, err := record.Provider.CreatePayment(ctx, req)
		o.Reliability.RecordOutcome(ctx, name, err == nil)
		result := "success"
		if err != nil {
			result = "error"
		}
		if obs.PaymentAttemptTotal != nil {
			obs.PaymentAttemptTotal.WithLabelValues(name, result).Inc()
		}
		return resp, err
	}

	tried[primary] = true
	resp, err := attempt(primary)
	if err == nil {
		o.emitCreated(ctx, resp)
		return resp, nil
	}
	lastErr = err
	span.RecordError(err)
	o.Logger.Warn().Err(err).Str("provider", primary).Msg("primary provider attempt failed")

	for _, name := range o.Fallbacks {
		if tried[name] {
			continue
		}
		record, ok := o.Registry.Get(name)
		if !ok {
			continue
		}
		// Fallback candidates face the same static capability gate as the
		// scored ordering; a provider that cannot take the currency is never
		// called.
		if !record.Caps.SupportsCurrency(req.Currency) {
			o.Logger.Debug().Str("provider", name).Str("currency", req.Currency).Msg("fallback provider skipped, currency unsupported")
			continue
		}
		tried[name] = true
		resp, err = attempt(name)
		if err == nil {
			o.Logger.Info().Str("primary", primary).Str("fallback", name).Msg("payment succeeded via fallback provider")
			if obs.PaymentFallbackTotal != nil {
				obs.PaymentFallbackTotal.WithLabelValues(primary, name).Inc()
			}
			o.emitCreated(ctx, resp)
			return resp, nil
		}
		lastErr = err
		span.RecordError(err)
		o.Logger.Warn().Err(err).Str("provider", name).Msg("fallback provider attempt failed")
	}

	o.Logger.Error().Err(lastErr).Int("attempts", len(tried)).Msg("all payment attempts exhausted")
	return nil, fmt.Errorf("payment failed after %d provider attempt(s): %w", len(tried), lastErr)
}

// CapturePayment settles an authorized payment. Ownership is resolved by probing
// registered providers; see DESIGN.md for the persisted-mapping alternative.
func (o *Orchestrator) CapturePayment(ctx context.Context, id string, amount *decimal.Decimal) (*PaymentResponse, error) {
	ctx, span := otel.Tracer("payment.Orchestrator").Start(ctx, "Orchestrator.CapturePayment")
	defer span.End()

	record, _, err := o.resolveOwner(ctx, id)
	if err != nil {
		return nil, err
	}
	resp, err := record.Provider.CapturePayment(ctx, id, amount)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	o.emit(ctx, events.TopicPaymentCaptured, resp.Provider, resp.ID, resp)
	return resp, nil
}

// RefundPayment refunds part or all of a succeeded payment. Eligibility is
// checked against the provider-reported state before any refund call is made.
func (o *Orchestrator) RefundPayment(ctx context.Context, id string, amount *decimal.Decimal, reason string) (*RefundResponse, error) {
	ctx, span := otel.Tracer("payment.Orchestrator").Start(ctx, "Orchestrator.RefundPayment")
	defer span.End()

	record, current, err := o.resolveOwner(ctx, id)
	if err != nil {
		return nil, err
	}
	if current.Status != StatusSucceeded {
		return nil, fmt.Errorf("%w: status is %s", ErrRefundNotEligible, current.Status)
	}
	if amount != nil {
		if !amount.IsPositive() {
			return nil, fmt.Errorf("%w: refund amount must be positive", ErrInvalidAmount)
		}
		if amount.GreaterThan(current.AvailableForRefund()) {
			return nil, fmt.Errorf("%w: requested %s, available %s",
				ErrRefundExceedsBalance, amount.String(), current.AvailableForRefund().String())
		}
	}
	refund, err := record.Provider.RefundPayment(ctx, id, amount, reason)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	o.emit(ctx, events.TopicRefundCreated, record.Name, refund.PaymentID, refund)
	return refund, nil
}

// VoidPayment cancels an uncaptured payment.
func (o *Orchestrator) VoidPayment(ctx context.Context, id string) (*PaymentResponse, error) {
	record, _, err := o.resolveOwner(ctx, id)
	if err != nil {
		return nil, err
	}
	resp, err := record.Provider.VoidPayment(ctx, id)
	if err != nil {
		return nil, err
	}
	o.emit(ctx, events.TopicPaymentVoided, resp.Provider, resp.ID, resp)
	return resp, nil
}

// GetPayment fetches the current provider-reported state of a payment.
func (o *Orchestrator) GetPayment(ctx context.Context, id string) (*PaymentResponse, error) {
	_, current, err := o.resolveOwner(ctx, id)
	if err != nil {
		return nil, err
	}
	return current, nil
}

// PreviewSelection exposes the scored ordering for a request without executing it.
func (o *Orchestrator) PreviewSelection(req PaymentRequest) []ProviderScore {
	return o.Selector.Select(req)
}

// resolveOwner finds the provider that recognizes the payment id by probing each
// registered provider's getPayment. Worst case O(providers) network calls; a
// persisted (paymentId -> provider) mapping would make this O(1).
func (o *Orchestrator) resolveOwner(ctx context.Context, id string) (*Record, *PaymentResponse, error) {
	for _, record := range o.Registry.Records() {
		resp, err := record.Provider.GetPayment(ctx, id)
		result := "hit"
		if err != nil {
			result = "miss"
		}
		if obs.ProviderProbeTotal != nil {
			obs.ProviderProbeTotal.WithLabelValues(record.Name, result).Inc()
		}
		if err == nil {
			return record, resp, nil
		}
	}
	return nil, nil, fmt.Errorf("%w: %s", ErrPaymentNotFound, id)
}

func (o *Orchestrator) emitCreated(ctx context.Context, resp *PaymentResponse) {
	o.emit(ctx, events.TopicPaymentCreated, resp.Provider, resp.ID, resp)
}

func (o *Orchestrator) emit(ctx context.Context, topic, provider, paymentID string, payload any) {
	if o.Events == nil {
		return
	}
	if _, err := o.Events.Emit(ctx, topic, events.Event{
		Provider:  provider,
		PaymentID: paymentID,
		Payload:   events.MarshalPayload(payload),
	}); err != nil {
		o.Logger.Error().Err(err).Str("topic", topic).Msg("emit domain event")
	}
}
