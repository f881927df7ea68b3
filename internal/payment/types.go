package payment

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	validator "github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"
)

// PaymentMethodType enumerates the supported payment method families.
type PaymentMethodType string

const (
	MethodCard           PaymentMethodType = "card"
	MethodBankAccount    PaymentMethodType = "bank_account"
	MethodDigitalWallet  PaymentMethodType = "digital_wallet"
	MethodCrypto         PaymentMethodType = "crypto"
	MethodBuyNowPayLater PaymentMethodType = "buy_now_pay_later"
)

// CardDetails carries optional card descriptor fields. The core never sees PANs;
// tokenization is the provider adapter's responsibility.
type CardDetails struct {
	Token    string `json:"token,omitempty"`
	Brand    string `json:"brand,omitempty"`
	Last4    string `json:"last4,omitempty"`
	ExpMonth int    `json:"expMonth,omitempty"`
	ExpYear  int    `json:"expYear,omitempty"`
}

// BankAccountDetails describes a bank transfer source.
type BankAccountDetails struct {
	BankName      string `json:"bankName,omitempty"`
	AccountLast4  string `json:"accountLast4,omitempty"`
	RoutingNumber string `json:"routingNumber,omitempty"`
}

// WalletDetails describes a digital wallet source.
type WalletDetails struct {
	WalletType string `json:"walletType,omitempty"` // apple_pay, google_pay, ...
	Token      string `json:"token,omitempty"`
}

// CryptoDetails describes a crypto payment source.
type CryptoDetails struct {
	Network string `json:"network,omitempty"`
	Asset   string `json:"asset,omitempty"`
}

// BNPLDetails describes a buy-now-pay-later plan.
type BNPLDetails struct {
	Plan         string `json:"plan,omitempty"`
	Installments int    `json:"installments,omitempty"`
}

// PaymentMethod is a tagged variant; exactly the branch matching Type is populated.
type PaymentMethod struct {
	Type        PaymentMethodType   `json:"type"`
	Card        *CardDetails        `json:"card,omitempty"`
	BankAccount *BankAccountDetails `json:"bankAccount,omitempty"`
	Wallet      *WalletDetails      `json:"wallet,omitempty"`
	Crypto      *CryptoDetails      `json:"crypto,omitempty"`
	BNPL        *BNPLDetails        `json:"bnpl,omitempty"`
}

// Address captures billing or shipping address details.
type Address struct {
	Line1      string `json:"line1,omitempty"`
	Line2      string `json:"line2,omitempty"`
	City       string `json:"city,omitempty"`
	State      string `json:"state,omitempty"`
	PostalCode string `json:"postalCode,omitempty"`
	Country    string `json:"country,omitempty"`
}

// PaymentRequest is the normalized inbound payment intent. It is transient and
// never persisted by the routing core.
type PaymentRequest struct {
	Amount           decimal.Decimal   `json:"amount"`
	Currency         string            `json:"currency" validate:"required,iso4217"`
	Method           PaymentMethod     `json:"method"`
	CustomerID       string            `json:"customerId,omitempty"`
	Description      string            `json:"description,omitempty"`
	BillingAddress   *Address          `json:"billingAddress,omitempty"`
	ShippingAddress  *Address          `json:"shippingAddress,omitempty"`
	Metadata         map[string]string `json:"metadata,omitempty"`
	IdempotencyKey   string            `json:"idempotencyKey,omitempty"`
	Capture          bool              `json:"capture"`
	Confirm          bool              `json:"confirm"`
	SetupFutureUsage bool              `json:"setupFutureUsage"`
}

var requestValidator = validator.New()

// Validate enforces the request invariants before any provider is consulted.
func (r PaymentRequest) Validate() error {
	if !r.Amount.IsPositive() {
		return ErrInvalidAmount
	}
	if err := requestValidator.Var(r.Currency, "required,iso4217"); err != nil {
		return fmt.Errorf("%w: %q", ErrUnknownCurrency, r.Currency)
	}
	switch r.Method.Type {
	case MethodCard, MethodBankAccount, MethodDigitalWallet, MethodCrypto, MethodBuyNowPayLater:
	default:
		return fmt.Errorf("%w: %q", ErrUnknownMethod, r.Method.Type)
	}
	return nil
}

// PaymentStatus is provider-reported; the core observes it and never mutates it.
type PaymentStatus string

const (
	StatusRequiresPaymentMethod PaymentStatus = "requires_payment_method"
	StatusRequiresConfirmation  PaymentStatus = "requires_confirmation"
	StatusRequiresAction        PaymentStatus = "requires_action"
	StatusProcessing            PaymentStatus = "processing"
	StatusRequiresCapture       PaymentStatus = "requires_capture"
	StatusSucceeded             PaymentStatus = "succeeded"
	StatusCanceled              PaymentStatus = "canceled"
	StatusFailed                PaymentStatus = "failed"
)

// IsTerminal reports whether the status admits no further transitions.
func (s PaymentStatus) IsTerminal() bool {
	switch s {
	case StatusSucceeded, StatusCanceled, StatusFailed:
		return true
	default:
		return false
	}
}

var statusOrder = map[PaymentStatus]int{
	StatusRequiresPaymentMethod: 0,
	StatusRequiresConfirmation:  1,
	StatusRequiresAction:        2,
	StatusProcessing:            3,
	StatusRequiresCapture:       4,
	StatusSucceeded:             5,
}

// CanTransitionTo reports whether the provider-side state machine admits the move.
// Forward movement along the intent pipeline is allowed; canceled and failed are
// reachable from any non-terminal state.
func (s PaymentStatus) CanTransitionTo(next PaymentStatus) bool {
	if s.IsTerminal() {
		return false
	}
	if next == StatusCanceled || next == StatusFailed {
		return true
	}
	from, okFrom := statusOrder[s]
	to, okTo := statusOrder[next]
	if !okFrom || !okTo {
		return false
	}
	return to > from
}

// RefundStatus enumerates refund lifecycle states.
type RefundStatus string

const (
	RefundPending   RefundStatus = "pending"
	RefundSucceeded RefundStatus = "succeeded"
	RefundFailed    RefundStatus = "failed"
	RefundCanceled  RefundStatus = "canceled"
)

// FeeBreakdown reports the provider's fee for a payment.
type FeeBreakdown struct {
	Fixed    decimal.Decimal `json:"fixed"`
	Percent  decimal.Decimal `json:"percent"`
	Total    decimal.Decimal `json:"total"`
	Currency string          `json:"currency"`
}

// NextAction describes a challenge step the caller must drive (3DS redirect etc).
type NextAction struct {
	Type        string `json:"type"`
	RedirectURL string `json:"redirectUrl,omitempty"`
}

// PaymentResponse is the normalized provider response returned to callers and
// emitted on the event bus. The core keeps no authoritative copy.
type PaymentResponse struct {
	ID             string            `json:"id"`
	Provider       string            `json:"provider"`
	Status         PaymentStatus     `json:"status"`
	Amount         decimal.Decimal   `json:"amount"`
	Currency       string            `json:"currency"`
	CapturedAmount decimal.Decimal   `json:"capturedAmount"`
	RefundedAmount decimal.Decimal   `json:"refundedAmount"`
	Fees           *FeeBreakdown     `json:"fees,omitempty"`
	Method         PaymentMethod     `json:"method"`
	CustomerID     string            `json:"customerId,omitempty"`
	CreatedAt      time.Time         `json:"createdAt"`
	UpdatedAt      time.Time         `json:"updatedAt"`
	Raw            json.RawMessage   `json:"raw,omitempty"`
	ErrorCode      string            `json:"errorCode,omitempty"`
	ErrorMessage   string            `json:"errorMessage,omitempty"`
	NextAction     *NextAction       `json:"nextAction,omitempty"`
	Metadata       map[string]string `json:"metadata,omitempty"`
}

// AvailableForRefund returns the amount still refundable on the payment.
func (p PaymentResponse) AvailableForRefund() decimal.Decimal {
	return p.Amount.Sub(p.RefundedAmount)
}

// RefundResponse is the normalized refund result.
type RefundResponse struct {
	ID        string          `json:"id"`
	PaymentID string          `json:"paymentId"`
	Amount    decimal.Decimal `json:"amount"`
	Currency  string          `json:"currency"`
	Status    RefundStatus    `json:"status"`
	Reason    string          `json:"reason,omitempty"`
	CreatedAt time.Time       `json:"createdAt"`
}

// ProviderScore pairs a provider name with its selection score. Providers
// disqualified by the hard currency filter never appear in the scored set.
type ProviderScore struct {
	Provider string  `json:"provider"`
	Score    float64 `json:"score"`
}

// PaymentWebhookEvent is the canonical, provider-agnostic webhook notification.
type PaymentWebhookEvent struct {
	ID         string          `json:"id"`
	Type       string          `json:"type"`
	PaymentID  string          `json:"paymentId,omitempty"`
	CustomerID string          `json:"customerId,omitempty"`
	Payload    json.RawMessage `json:"payload"`
	ReceivedAt time.Time       `json:"receivedAt"`
}

// Sentinel errors surfaced before any network call.
var (
	ErrInvalidAmount        = errors.New("amount must be positive")
	ErrUnknownCurrency      = errors.New("unknown currency code")
	ErrUnknownMethod        = errors.New("unknown payment method type")
	ErrNoEligibleProvider   = errors.New("no provider supports the requested currency")
	ErrProviderNotFound     = errors.New("provider not registered")
	ErrPaymentNotFound      = errors.New("payment not found at any registered provider")
	ErrRefundNotEligible    = errors.New("payment is not eligible for refund")
	ErrRefundExceedsBalance = errors.New("refund amount exceeds refundable balance")
	ErrInvalidSignature     = errors.New("webhook signature verification failed")
)
