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

// Razorpay implements the Provider contract for a low-ticket, INR-centric
// processor. Responses are synthesised deterministically against an in-memory
// ledger, mirroring the sandbox behaviour the routing flow needs.
type Razorpay struct {
	keySecret     string
	webhookSecret string
	environment   string

	mu        sync.Mutex
	payments  map[string]*PaymentResponse
	idemKeys  map[string]string
	refundSeq int
}

// Name implements Provider.
func (r *Razorpay) Name() string { return "razorpay" }

// Initialize validates credentials and prepares the in-memory ledger.
func (r *Razorpay) Initialize(cfg config.ProviderConfig) error {
	if strings.TrimSpace(cfg.SecretKey) == "" {
		return errors.New("razorpay: key secret is required")
	}
	r.keySecret = cfg.SecretKey
	r.webhookSecret = cfg.WebhookSecret
	r.environment = cfg.Environment
	r.payments = make(map[string]*PaymentResponse)
	r.idemKeys = make(map[string]string)
	return nil
}

// Capabilities implements Provider.
func (r *Razorpay) Capabilities() Capabilities {
	return Capabilities{
		Currencies: []string{"INR", "USD"},
		Methods:    []PaymentMethodType{MethodCard, MethodDigitalWallet, MethodBankAccount},
		Features: []Feature{
			FeatureTokenization, FeatureRecurring, FeatureMobilePayments, FeaturePartialRefund,
		},
		Fees: FeeStructure{Fixed: decimal.Zero, Percent: decimal.NewFromFloat(2.0)},
		Band: AmountBand{Min: decimal.NewFromInt(1), Max: decimal.NewFromInt(1000), Multiplier: 1.5},
	}
}

// Supports implements Provider.
func (r *Razorpay) Supports(feature Feature) bool {
	for _, f := range r.Capabilities().Features {
		if f == feature {
			return true
		}
	}
	return false
}

// CreatePayment opens a payment. Razorpay-style flows authorize on creation and
// capture explicitly unless auto-capture is requested.
func (r *Razorpay) CreatePayment(ctx context.Context, req PaymentRequest) (*PaymentResponse, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if !r.Capabilities().SupportsCurrency(req.Currency) {
		return nil, fmt.Errorf("razorpay: currency %s not supported", req.Currency)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if req.IdempotencyKey != "" {
		if id, ok := r.idemKeys[req.IdempotencyKey]; ok {
			return clonePayment(r.payments[id]), nil
		}
	}
	now := time.Now().UTC()
	resp := &PaymentResponse{
		ID:         "pay_" + strings.ReplaceAll(uuid.NewString(), "-", "")[:14],
		Provider:   "razorpay",
		Amount:     req.Amount,
		Currency:   req.Currency,
		Method:     req.Method,
		CustomerID: req.CustomerID,
		Metadata:   req.Metadata,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	fees := r.Capabilities().Fees
	resp.Fees = &FeeBreakdown{
		Fixed:    fees.Fixed,
		Percent:  fees.Percent,
		Total:    fees.EffectiveFee(req.Amount),
		Currency: req.Currency,
	}
	switch {
	case !req.Confirm:
		resp.Status = StatusRequiresConfirmation
	case req.Capture:
		resp.Status = StatusSucceeded
		resp.CapturedAmount = req.Amount
	default:
		resp.Status = StatusRequiresCapture
	}
	r.payments[resp.ID] = resp
	if req.IdempotencyKey != "" {
		r.idemKeys[req.IdempotencyKey] = resp.ID
	}
	return clonePayment(resp), nil
}

// CapturePayment settles an authorized payment.
func (r *Razorpay) CapturePayment(ctx context.Context, id string, amount *decimal.Decimal) (*PaymentResponse, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	resp, ok := r.payments[id]
	if !ok {
		return nil, fmt.Errorf("razorpay: no such payment %s", id)
	}
	if resp.Status != StatusRequiresCapture {
		return nil, fmt.Errorf("razorpay: payment %s is %s, not capturable", id, resp.Status)
	}
	// Razorpay captures are full-amount only.
	if amount != nil && !amount.Equal(resp.Amount) {
		return nil, errors.New("razorpay: partial capture not supported")
	}
	resp.Status = StatusSucceeded
	resp.CapturedAmount = resp.Amount
	resp.UpdatedAt = time.Now().UTC()
	return clonePayment(resp), nil
}

// RefundPayment issues a (possibly partial) refund.
func (r *Razorpay) RefundPayment(ctx context.Context, id string, amount *decimal.Decimal, reason string) (*RefundResponse, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	resp, ok := r.payments[id]
	if !ok {
		return nil, fmt.Errorf("razorpay: no such payment %s", id)
	}
	refundAmount := resp.Amount.Sub(resp.RefundedAmount)
	if amount != nil {
		refundAmount = *amount
	}
	if refundAmount.GreaterThan(resp.Amount.Sub(resp.RefundedAmount)) {
		return nil, fmt.Errorf("razorpay: refund exceeds remaining balance")
	}
	resp.RefundedAmount = resp.RefundedAmount.Add(refundAmount)
	resp.UpdatedAt = time.Now().UTC()
	r.refundSeq++
	return &RefundResponse{
		ID:        fmt.Sprintf("rfnd_%d_%s", r.refundSeq, id),
		PaymentID: id,
		Amount:    refundAmount,
		Currency:  resp.Currency,
		Status:    RefundPending,
		Reason:    reason,
		CreatedAt: time.Now().UTC(),
	}, nil
}

// VoidPayment cancels an unauthorized or uncaptured payment.
func (r *Razorpay) VoidPayment(ctx context.Context, id string) (*PaymentResponse, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	resp, ok := r.payments[id]
	if !ok {
		return nil, fmt.Errorf("razorpay: no such payment %s", id)
	}
	if resp.Status.IsTerminal() {
		return nil, fmt.Errorf("razorpay: payment %s is already %s", id, resp.Status)
	}
	resp.Status = StatusCanceled
	resp.UpdatedAt = time.Now().UTC()
	return clonePayment(resp), nil
}

// GetPayment returns the current state of a payment this adapter issued.
func (r *Razorpay) GetPayment(ctx context.Context, id string) (*PaymentResponse, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if !strings.HasPrefix(id, "pay_") {
		return nil, fmt.Errorf("razorpay: unrecognized payment id %s", id)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	resp, ok := r.payments[id]
	if !ok {
		return nil, fmt.Errorf("razorpay: no such payment %s", id)
	}
	return clonePayment(resp), nil
}

// VerifyWebhook checks the X-Razorpay-Signature HMAC-SHA256 hex digest.
func (r *Razorpay) VerifyWebhook(payload []byte, signature string) bool {
	key := strings.TrimSpace(r.webhookSecret)
	provided := strings.TrimSpace(signature)
	if key == "" || provided == "" {
		return false
	}
	mac := hmac.New(sha256.New, []byte(key))
	mac.Write(payload)
	expected := hex.EncodeToString(mac.Sum(nil))
	return hmac.Equal([]byte(expected), []byte(provided))
}

// ProcessWebhookEvent maps native Razorpay event names onto the canonical
// vocabulary. One native notification may carry a payment and a refund entity.
func (r *Razorpay) ProcessWebhookEvent(payload []byte) ([]PaymentWebhookEvent, error) {
	var native struct {
		Event   string `json:"event"`
		Payload struct {
			Payment struct {
				Entity struct {
					ID         string `json:"id"`
					CustomerID string `json:"customer_id"`
				} `json:"entity"`
			} `json:"payment"`
			Refund struct {
				Entity struct {
					ID        string `json:"id"`
					PaymentID string `json:"payment_id"`
				} `json:"entity"`
			} `json:"refund"`
		} `json:"payload"`
	}
	if err := json.Unmarshal(payload, &native); err != nil {
		return nil, fmt.Errorf("razorpay: decode webhook: %w", err)
	}
	canonical, ok := razorpayEventTypes[native.Event]
	if !ok {
		return nil, nil
	}
	paymentID := native.Payload.Payment.Entity.ID
	if paymentID == "" {
		paymentID = native.Payload.Refund.Entity.PaymentID
	}
	return []PaymentWebhookEvent{{
		ID:         uuid.NewString(),
		Type:       canonical,
		PaymentID:  paymentID,
		CustomerID: native.Payload.Payment.Entity.CustomerID,
		Payload:    append(json.RawMessage(nil), payload...),
		ReceivedAt: time.Now().UTC(),
	}}, nil
}

var razorpayEventTypes = map[string]string{
	"payment.captured":        events.TopicPaymentSucceeded,
	"payment.failed":          events.TopicPaymentFailed,
	"refund.processed":        events.TopicRefundSucceeded,
	"refund.failed":           events.TopicRefundFailed,
	"payment.dispute.created": events.TopicDisputeCreated,
	"payment.dispute.won":     events.TopicDisputeFundsReinstated,
	"payment.dispute.lost":    events.TopicDisputeFundsWithdrawn,
}
