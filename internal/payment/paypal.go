package payment

import (
	"context"
	"crypto/hmac"
	"crypto/sha512"
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

// PayPal implements the Provider contract for a wallet-first processor tuned to
// higher-ticket transactions. Like the other adapters it synthesises
// deterministic responses against an in-memory ledger.
type PayPal struct {
	clientSecret  string
	webhookSecret string
	environment   string
	baseURL       string

	mu        sync.Mutex
	payments  map[string]*PaymentResponse
	idemKeys  map[string]string
	refundSeq int
}

// Name implements Provider.
func (p *PayPal) Name() string { return "paypal" }

// Initialize validates credentials and prepares the in-memory ledger.
func (p *PayPal) Initialize(cfg config.ProviderConfig) error {
	if strings.TrimSpace(cfg.SecretKey) == "" {
		return errors.New("paypal: client secret is required")
	}
	p.clientSecret = cfg.SecretKey
	p.webhookSecret = cfg.WebhookSecret
	p.environment = cfg.Environment
	p.baseURL = cfg.BaseURL
	p.payments = make(map[string]*PaymentResponse)
	p.idemKeys = make(map[string]string)
	return nil
}

// Capabilities implements Provider.
func (p *PayPal) Capabilities() Capabilities {
	return Capabilities{
		Currencies: []string{"USD", "EUR", "GBP", "AUD"},
		Methods:    []PaymentMethodType{MethodDigitalWallet, MethodCard, MethodBuyNowPayLater},
		Features: []Feature{
			FeatureMobilePayments, FeaturePartialRefund, FeatureDisputes,
		},
		Fees: FeeStructure{Fixed: decimal.NewFromFloat(0.49), Percent: decimal.NewFromFloat(3.49)},
		Band: AmountBand{Min: decimal.NewFromInt(50), Max: decimal.NewFromInt(20000), Multiplier: 1.4},
	}
}

// Supports implements Provider.
func (p *PayPal) Supports(feature Feature) bool {
	for _, f := range p.Capabilities().Features {
		if f == feature {
			return true
		}
	}
	return false
}

// CreatePayment opens an order. Wallet flows always require buyer approval, so
// unconfirmed requests surface a redirect next-action.
func (p *PayPal) CreatePayment(ctx context.Context, req PaymentRequest) (*PaymentResponse, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if !p.Capabilities().SupportsCurrency(req.Currency) {
		return nil, fmt.Errorf("paypal: currency %s not supported", req.Currency)
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if req.IdempotencyKey != "" {
		if id, ok := p.idemKeys[req.IdempotencyKey]; ok {
			return clonePayment(p.payments[id]), nil
		}
	}
	now := time.Now().UTC()
	resp := &PaymentResponse{
		ID:         "PAYID-" + strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", ""))[:17],
		Provider:   "paypal",
		Amount:     req.Amount,
		Currency:   req.Currency,
		Method:     req.Method,
		CustomerID: req.CustomerID,
		Metadata:   req.Metadata,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	fees := p.Capabilities().Fees
	resp.Fees = &FeeBreakdown{
		Fixed:    fees.Fixed,
		Percent:  fees.Percent,
		Total:    fees.EffectiveFee(req.Amount),
		Currency: req.Currency,
	}
	if !req.Confirm {
		resp.Status = StatusRequiresAction
		resp.NextAction = &NextAction{
			Type:        "redirect_to_url",
			RedirectURL: fmt.Sprintf("%s/checkoutnow?token=%s", p.host(), resp.ID),
		}
	} else if req.Capture {
		resp.Status = StatusSucceeded
		resp.CapturedAmount = req.Amount
	} else {
		resp.Status = StatusRequiresCapture
	}
	p.payments[resp.ID] = resp
	if req.IdempotencyKey != "" {
		p.idemKeys[req.IdempotencyKey] = resp.ID
	}
	return clonePayment(resp), nil
}

// CapturePayment settles an approved order.
func (p *PayPal) CapturePayment(ctx context.Context, id string, amount *decimal.Decimal) (*PaymentResponse, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	resp, ok := p.payments[id]
	if !ok {
		return nil, fmt.Errorf("paypal: no such payment %s", id)
	}
	if resp.Status != StatusRequiresCapture {
		return nil, fmt.Errorf("paypal: payment %s is %s, not capturable", id, resp.Status)
	}
	captured := resp.Amount
	if amount != nil {
		if amount.GreaterThan(resp.Amount) {
			return nil, errors.New("paypal: capture amount exceeds authorized amount")
		}
		captured = *amount
	}
	resp.Status = StatusSucceeded
	resp.CapturedAmount = captured
	resp.UpdatedAt = time.Now().UTC()
	return clonePayment(resp), nil
}

// RefundPayment issues a (possibly partial) refund.
func (p *PayPal) RefundPayment(ctx context.Context, id string, amount *decimal.Decimal, reason string) (*RefundResponse, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	resp, ok := p.payments[id]
	if !ok {
		return nil, fmt.Errorf("paypal: no such payment %s", id)
	}
	refundAmount := resp.Amount.Sub(resp.RefundedAmount)
	if amount != nil {
		refundAmount = *amount
	}
	if refundAmount.GreaterThan(resp.Amount.Sub(resp.RefundedAmount)) {
		return nil, fmt.Errorf("paypal: refund exceeds remaining balance")
	}
	resp.RefundedAmount = resp.RefundedAmount.Add(refundAmount)
	resp.UpdatedAt = time.Now().UTC()
	p.refundSeq++
	return &RefundResponse{
		ID:        fmt.Sprintf("REF-%d-%s", p.refundSeq, id),
		PaymentID: id,
		Amount:    refundAmount,
		Currency:  resp.Currency,
		Status:    RefundSucceeded,
		Reason:    reason,
		CreatedAt: time.Now().UTC(),
	}, nil
}

// VoidPayment cancels an unapproved or uncaptured order.
func (p *PayPal) VoidPayment(ctx context.Context, id string) (*PaymentResponse, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	resp, ok := p.payments[id]
	if !ok {
		return nil, fmt.Errorf("paypal: no such payment %s", id)
	}
	if resp.Status.IsTerminal() {
		return nil, fmt.Errorf("paypal: payment %s is already %s", id, resp.Status)
	}
	resp.Status = StatusCanceled
	resp.UpdatedAt = time.Now().UTC()
	return clonePayment(resp), nil
}

// GetPayment returns the current state of a payment this adapter issued.
func (p *PayPal) GetPayment(ctx context.Context, id string) (*PaymentResponse, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if !strings.HasPrefix(id, "PAYID-") {
		return nil, fmt.Errorf("paypal: unrecognized payment id %s", id)
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	resp, ok := p.payments[id]
	if !ok {
		return nil, fmt.Errorf("paypal: no such payment %s", id)
	}
	return clonePayment(resp), nil
}

// VerifyWebhook checks the transmission signature as an HMAC-SHA512 hex digest.
func (p *PayPal) VerifyWebhook(payload []byte, signature string) bool {
	key := strings.TrimSpace(p.webhookSecret)
	provided := strings.TrimSpace(signature)
	if key == "" || provided == "" {
		return false
	}
	mac := hmac.New(sha512.New, []byte(key))
	mac.Write(payload)
	expected := hex.EncodeToString(mac.Sum(nil))
	return hmac.Equal([]byte(expected), []byte(provided))
}

// ProcessWebhookEvent maps native PayPal event types onto the canonical
// vocabulary.
func (p *PayPal) ProcessWebhookEvent(payload []byte) ([]PaymentWebhookEvent, error) {
	var native struct {
		ID        string `json:"id"`
		EventType string `json:"event_type"`
		Resource  struct {
			ID      string `json:"id"`
			PayerID string `json:"payer_id"`
			OrderID string `json:"supplementary_data_order_id"`
		} `json:"resource"`
	}
	if err := json.Unmarshal(payload, &native); err != nil {
		return nil, fmt.Errorf("paypal: decode webhook: %w", err)
	}
	canonical, ok := paypalEventTypes[native.EventType]
	if !ok {
		return nil, nil
	}
	paymentID := native.Resource.OrderID
	if paymentID == "" {
		paymentID = native.Resource.ID
	}
	return []PaymentWebhookEvent{{
		ID:         native.ID,
		Type:       canonical,
		PaymentID:  paymentID,
		CustomerID: native.Resource.PayerID,
		Payload:    append(json.RawMessage(nil), payload...),
		ReceivedAt: time.Now().UTC(),
	}}, nil
}

var paypalEventTypes = map[string]string{
	"PAYMENT.CAPTURE.COMPLETED": events.TopicPaymentSucceeded,
	"PAYMENT.CAPTURE.DENIED":    events.TopicPaymentFailed,
	"CHECKOUT.ORDER.VOIDED":     events.TopicPaymentCanceled,
	"PAYMENT.CAPTURE.REFUNDED":  events.TopicRefundSucceeded,
	"PAYMENT.REFUND.FAILED":     events.TopicRefundFailed,
	"CUSTOMER.DISPUTE.CREATED":  events.TopicDisputeCreated,
	"CUSTOMER.DISPUTE.UPDATED":  events.TopicDisputeFundsWithdrawn,
	"CUSTOMER.DISPUTE.RESOLVED": events.TopicDisputeFundsReinstated,
}

func (p *PayPal) host() string {
	host := strings.TrimSpace(p.baseURL)
	if host != "" {
		return strings.TrimRight(host, "/")
	}
	if p.environment == "live" {
		return "https://www.paypal.example"
	}
	return "https://www.sandbox.paypal.example"
}
