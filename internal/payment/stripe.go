package payment

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/noah-isme/payment-router/internal/config"
	"github.com/noah-isme/payment-router/internal/events"
)

// Stripe implements the Provider contract for a card-first, feature-rich
// processor. The real implementation would call the Stripe API; this adapter
// synthesises deterministic responses backed by an in-memory ledger so the
// routing flow can be exercised end to end.
type Stripe struct {
	secretKey     string
	webhookSecret string
	environment   string
	baseURL       string

	mu        sync.Mutex
	payments  map[string]*PaymentResponse
	idemKeys  map[string]string
	refundSeq int
}

// Name implements Provider.
func (s *Stripe) Name() string { return "stripe" }

// Initialize validates credentials and prepares the in-memory ledger.
func (s *Stripe) Initialize(cfg config.ProviderConfig) error {
	if strings.TrimSpace(cfg.SecretKey) == "" {
		return errors.New("stripe: secret key is required")
	}
	s.secretKey = cfg.SecretKey
	s.webhookSecret = cfg.WebhookSecret
	s.environment = cfg.Environment
	s.baseURL = cfg.BaseURL
	s.payments = make(map[string]*PaymentResponse)
	s.idemKeys = make(map[string]string)
	return nil
}

// Capabilities implements Provider.
func (s *Stripe) Capabilities() Capabilities {
	return Capabilities{
		Currencies: []string{"USD", "EUR", "GBP", "AUD", "CAD", "SGD", "JPY"},
		Methods:    []PaymentMethodType{MethodCard, MethodDigitalWallet, MethodBankAccount, MethodBuyNowPayLater},
		Features: []Feature{
			FeatureTokenization, FeatureRecurring, FeatureMobilePayments,
			FeaturePartialCapture, FeaturePartialRefund, FeatureDisputes, FeatureIdempotency,
		},
		Fees: FeeStructure{Fixed: decimal.NewFromFloat(0.30), Percent: decimal.NewFromFloat(2.9)},
		Band: AmountBand{Min: decimal.NewFromInt(1), Max: decimal.NewFromInt(5000), Multiplier: 1.2},
	}
}

// Supports implements Provider.
func (s *Stripe) Supports(feature Feature) bool {
	for _, f := range s.Capabilities().Features {
		if f == feature {
			return true
		}
	}
	return false
}

// CreatePayment opens a payment intent. The caller's idempotency key maps to a
// previously issued intent when repeated.
func (s *Stripe) CreatePayment(ctx context.Context, req PaymentRequest) (*PaymentResponse, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if !s.Capabilities().SupportsCurrency(req.Currency) {
		return nil, fmt.Errorf("stripe: currency %s not supported", req.Currency)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if req.IdempotencyKey != "" {
		if id, ok := s.idemKeys[req.IdempotencyKey]; ok {
			return clonePayment(s.payments[id]), nil
		}
	}
	now := time.Now().UTC()
	resp := &PaymentResponse{
		ID:         "pi_" + strings.ReplaceAll(uuid.NewString(), "-", ""),
		Provider:   "stripe",
		Amount:     req.Amount,
		Currency:   req.Currency,
		Method:     req.Method,
		CustomerID: req.CustomerID,
		Metadata:   req.Metadata,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	fees := s.Capabilities().Fees
	resp.Fees = &FeeBreakdown{
		Fixed:    fees.Fixed,
		Percent:  fees.Percent,
		Total:    fees.EffectiveFee(req.Amount),
		Currency: req.Currency,
	}
	switch {
	case !req.Confirm:
		resp.Status = StatusRequiresConfirmation
	case req.Metadata["challenge"] == "3ds":
		resp.Status = StatusRequiresAction
		resp.NextAction = &NextAction{
			Type:        "redirect_to_url",
			RedirectURL: fmt.Sprintf("%s/authorize/%s", s.host(), resp.ID),
		}
	case req.Capture:
		resp.Status = StatusSucceeded
		resp.CapturedAmount = req.Amount
	default:
		resp.Status = StatusRequiresCapture
	}
	s.payments[resp.ID] = resp
	if req.IdempotencyKey != "" {
		s.idemKeys[req.IdempotencyKey] = resp.ID
	}
	return clonePayment(resp), nil
}

// CapturePayment settles an authorized intent, optionally for a partial amount.
func (s *Stripe) CapturePayment(ctx context.Context, id string, amount *decimal.Decimal) (*PaymentResponse, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	resp, ok := s.payments[id]
	if !ok {
		return nil, fmt.Errorf("stripe: no such payment %s", id)
	}
	if resp.Status != StatusRequiresCapture {
		return nil, fmt.Errorf("stripe: payment %s is %s, not capturable", id, resp.Status)
	}
	captured := resp.Amount
	if amount != nil {
		if amount.GreaterThan(resp.Amount) {
			return nil, fmt.Errorf("stripe: capture amount exceeds authorized amount")
		}
		captured = *amount
	}
	resp.Status = StatusSucceeded
	resp.CapturedAmount = captured
	resp.UpdatedAt = time.Now().UTC()
	return clonePayment(resp), nil
}

// RefundPayment issues a refund against a settled payment.
func (s *Stripe) RefundPayment(ctx context.Context, id string, amount *decimal.Decimal, reason string) (*RefundResponse, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	resp, ok := s.payments[id]
	if !ok {
		return nil, fmt.Errorf("stripe: no such payment %s", id)
	}
	refundAmount := resp.Amount.Sub(resp.RefundedAmount)
	if amount != nil {
		refundAmount = *amount
	}
	if refundAmount.GreaterThan(resp.Amount.Sub(resp.RefundedAmount)) {
		return nil, fmt.Errorf("stripe: refund exceeds remaining balance")
	}
	resp.RefundedAmount = resp.RefundedAmount.Add(refundAmount)
	resp.UpdatedAt = time.Now().UTC()
	s.refundSeq++
	return &RefundResponse{
		ID:        fmt.Sprintf("re_%d_%s", s.refundSeq, id),
		PaymentID: id,
		Amount:    refundAmount,
		Currency:  resp.Currency,
		Status:    RefundSucceeded,
		Reason:    reason,
		CreatedAt: time.Now().UTC(),
	}, nil
}

// VoidPayment cancels a payment that has not reached a terminal state.
func (s *Stripe) VoidPayment(ctx context.Context, id string) (*PaymentResponse, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	resp, ok := s.payments[id]
	if !ok {
		return nil, fmt.Errorf("stripe: no such payment %s", id)
	}
	if resp.Status.IsTerminal() {
		return nil, fmt.Errorf("stripe: payment %s is already %s", id, resp.Status)
	}
	resp.Status = StatusCanceled
	resp.UpdatedAt = time.Now().UTC()
	return clonePayment(resp), nil
}

// GetPayment returns the current state of a payment this adapter issued.
func (s *Stripe) GetPayment(ctx context.Context, id string) (*PaymentResponse, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if !strings.HasPrefix(id, "pi_") {
		return nil, fmt.Errorf("stripe: unrecognized payment id %s", id)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	resp, ok := s.payments[id]
	if !ok {
		return nil, fmt.Errorf("stripe: no such payment %s", id)
	}
	return clonePayment(resp), nil
}

// VerifyWebhook checks the HMAC-SHA256 signature. Both the raw hex digest and
// the "t=...,v1=<hex>" header format are accepted.
func (s *Stripe) VerifyWebhook(payload []byte, signature string) bool {
	key := strings.TrimSpace(s.webhookSecret)
	provided := strings.TrimSpace(signature)
	if key == "" || provided == "" {
		return false
	}
	for _, part := range strings.Split(provided, ",") {
		if v1, ok := strings.CutPrefix(strings.TrimSpace(part), "v1="); ok {
			provided = v1
		}
	}
	mac := hmac.New(sha256.New, []byte(key))
	mac.Write(payload)
	expected := hex.EncodeToString(mac.Sum(nil))
	return hmac.Equal([]byte(expected), []byte(provided))
}

// ProcessWebhookEvent maps native Stripe event types onto the canonical
// vocabulary. Unrecognized types are dropped, not treated as errors.
func (s *Stripe) ProcessWebhookEvent(payload []byte) ([]PaymentWebhookEvent, error) {
	var native struct {
		ID   string `json:"id"`
		Type string `json:"type"`
		Data struct {
			Object struct {
				ID       string `json:"id"`
				Customer string `json:"customer"`
				Payment  string `json:"payment_intent"`
			} `json:"object"`
		} `json:"data"`
	}
	if err := json.Unmarshal(payload, &native); err != nil {
		return nil, fmt.Errorf("stripe: decode webhook: %w", err)
	}
	canonical, ok := stripeEventTypes[native.Type]
	if !ok {
		return nil, nil
	}
	paymentID := native.Data.Object.Payment
	if paymentID == "" {
		paymentID = native.Data.Object.ID
	}
	return []PaymentWebhookEvent{{
		ID:         native.ID,
		Type:       canonical,
		PaymentID:  paymentID,
		CustomerID: native.Data.Object.Customer,
		Payload:    append(json.RawMessage(nil), payload...),
		ReceivedAt: time.Now().UTC(),
	}}, nil
}

var stripeEventTypes = map[string]string{
	"payment_intent.succeeded":        events.TopicPaymentSucceeded,
	"payment_intent.payment_failed":   events.TopicPaymentFailed,
	"payment_intent.canceled":         events.TopicPaymentCanceled,
	"charge.refunded":                 events.TopicRefundSucceeded,
	"refund.failed":                   events.TopicRefundFailed,
	"charge.dispute.created":          events.TopicDisputeCreated,
	"charge.dispute.funds_withdrawn":  events.TopicDisputeFundsWithdrawn,
	"charge.dispute.funds_reinstated": events.TopicDisputeFundsReinstated,
}

func (s *Stripe) host() string {
	host := strings.TrimSpace(s.baseURL)
	if host != "" {
		return strings.TrimRight(host, "/")
	}
	if s.environment == "live" {
		return "https://checkout.stripe.example"
	}
	return "https://checkout.sandbox.stripe.example"
}

func clonePayment(p *PaymentResponse) *PaymentResponse {
	if p == nil {
		return nil
	}
	out := *p
	return &out
}
