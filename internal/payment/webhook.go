package payment

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	redis "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/noah-isme/payment-router/internal/common"
	"github.com/noah-isme/payment-router/internal/events"
	"github.com/noah-isme/payment-router/internal/obs"
)

// ErrDuplicateWebhook marks a callback whose body was already ingested inside
// the replay window.
var ErrDuplicateWebhook = errors.New("duplicate webhook delivery")

// signatureHeaders maps a provider to the header carrying its webhook signature.
var signatureHeaders = map[string]string{
	"stripe":   "Stripe-Signature",
	"razorpay": "X-Razorpay-Signature",
	"paypal":   "Paypal-Transmission-Sig",
}

const defaultSignatureHeader = "X-Webhook-Signature"

// Webhook normalizes asynchronous provider callbacks into canonical domain
// events. Payloads are never trusted before signature verification.
type Webhook struct {
	Registry  *Registry
	Events    *events.Bus
	Replay    *redis.Client
	ReplayTTL time.Duration
	Logger    zerolog.Logger
}

// Process verifies and ingests one webhook callback for the named provider. The
// provider is named explicitly by the inbound route, never probed. On signature
// failure the payload is rejected before any parsing or dispatch; the error is
// deliberately coarse. Nothing is published for rejected or replayed payloads.
func (h *Webhook) Process(ctx context.Context, providerName string, payload []byte, signature string) ([]PaymentWebhookEvent, error) {
	record, ok := h.Registry.Get(providerName)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrProviderNotFound, providerName)
	}
	if !record.Provider.VerifyWebhook(payload, signature) {
		return nil, ErrInvalidSignature
	}
	var replayKey string
	if h.Replay != nil && h.ReplayTTL > 0 {
		replayKey = fmt.Sprintf("wh:%s:%s", providerName, common.Sha256Hex(string(payload)))
		fresh, err := h.Replay.SetNX(ctx, replayKey, "1", h.ReplayTTL).Result()
		if err != nil {
			return nil, fmt.Errorf("replay store: %w", err)
		}
		if !fresh {
			return nil, ErrDuplicateWebhook
		}
	}
	parsed, err := record.Provider.ProcessWebhookEvent(payload)
	if err != nil {
		// Release the replay mark so the provider can retry a delivery that
		// failed before anything was published.
		if replayKey != "" {
			if delErr := h.Replay.Del(ctx, replayKey).Err(); delErr != nil {
				h.Logger.Error().Err(delErr).Str("provider", providerName).Msg("release replay mark")
			}
		}
		return nil, fmt.Errorf("normalize webhook payload: %w", err)
	}
	for _, event := range parsed {
		h.dispatch(ctx, record.Name, event)
	}
	return parsed, nil
}

// dispatch republishes a canonical webhook event on the bus, routed by category.
func (h *Webhook) dispatch(ctx context.Context, provider string, event PaymentWebhookEvent) {
	switch categoryOf(event.Type) {
	case "payment", "refund", "dispute":
		if h.Events == nil {
			return
		}
		if _, err := h.Events.Emit(ctx, event.Type, events.Event{
			Provider:   provider,
			PaymentID:  event.PaymentID,
			CustomerID: event.CustomerID,
			Payload:    event.Payload,
			OccurredAt: event.ReceivedAt,
		}); err != nil {
			h.Logger.Error().Err(err).Str("type", event.Type).Msg("dispatch webhook event")
		}
	default:
		h.Logger.Warn().Str("type", event.Type).Str("provider", provider).Msg("unknown canonical event type, dropping")
	}
}

func categoryOf(eventType string) string {
	prefix, _, ok := strings.Cut(eventType, ".")
	if !ok {
		return ""
	}
	switch prefix {
	case "payment", "refund", "dispute":
		return prefix
	default:
		return ""
	}
}

// Handle is the inbound HTTP endpoint for provider callbacks.
func (h *Webhook) Handle(w http.ResponseWriter, r *http.Request) {
	providerKey := strings.ToLower(strings.TrimSpace(chi.URLParam(r, "provider")))
	if _, ok := h.Registry.Get(providerKey); !ok {
		common.JSONError(w, http.StatusNotFound, "PROVIDER_NOT_SUPPORTED", "unknown provider", nil)
		return
	}
	body, err := io.ReadAll(r.Body)
	if err != nil {
		common.JSONError(w, http.StatusBadRequest, "INVALID_BODY", "unable to read payload", nil)
		return
	}
	header := signatureHeaders[providerKey]
	if header == "" {
		header = defaultSignatureHeader
	}
	signature := strings.TrimSpace(r.Header.Get(header))

	result := "ok"
	defer func() {
		if obs.PaymentWebhookTotal != nil {
			obs.PaymentWebhookTotal.WithLabelValues(providerKey, result).Inc()
		}
	}()

	parsed, err := h.Process(r.Context(), providerKey, body, signature)
	switch {
	case errors.Is(err, ErrInvalidSignature):
		result = "invalid_signature"
		common.JSONError(w, http.StatusUnauthorized, "INVALID_SIGNATURE", "signature verification failed", nil)
		return
	case errors.Is(err, ErrDuplicateWebhook):
		result = "replay"
		common.JSONError(w, http.StatusConflict, "REPLAY", "duplicate webhook", nil)
		return
	case err != nil:
		result = "error"
		common.JSONError(w, http.StatusBadRequest, "WEBHOOK_INVALID", err.Error(), nil)
		return
	}

	h.Logger.Info().Str("provider", providerKey).Int("events", len(parsed)).Msg("webhook processed")
	w.WriteHeader(http.StatusNoContent)
}
