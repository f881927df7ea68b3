package payment

import (
	"context"

	"github.com/shopspring/decimal"

	"github.com/noah-isme/payment-router/internal/config"
)

// Feature identifies an optional provider capability consulted during selection.
type Feature string

const (
	FeatureTokenization   Feature = "tokenization"
	FeatureRecurring      Feature = "recurring_payments"
	FeatureMobilePayments Feature = "mobile_payments"
	FeaturePartialCapture Feature = "partial_capture"
	FeaturePartialRefund  Feature = "partial_refund"
	FeatureDisputes       Feature = "disputes"
	FeatureIdempotency    Feature = "idempotency_keys"
)

// AmountBand is the provider's preferred transaction-amount range. Amounts inside
// the band score higher during selection; amounts outside score lower, not zero.
type AmountBand struct {
	Min        decimal.Decimal
	Max        decimal.Decimal
	Multiplier float64
}

// Contains reports whether the amount falls inside the band.
func (b AmountBand) Contains(amount decimal.Decimal) bool {
	if b.Min.IsZero() && b.Max.IsZero() {
		return true
	}
	if amount.LessThan(b.Min) {
		return false
	}
	if !b.Max.IsZero() && amount.GreaterThan(b.Max) {
		return false
	}
	return true
}

// FeeStructure is the provider's declared pricing: a fixed component plus a
// percentage of the transaction amount.
type FeeStructure struct {
	Fixed   decimal.Decimal
	Percent decimal.Decimal // e.g. 2.9 means 2.9%
}

// EffectiveFee computes the absolute fee charged for the given amount.
func (f FeeStructure) EffectiveFee(amount decimal.Decimal) decimal.Decimal {
	return f.Fixed.Add(amount.Mul(f.Percent).Div(decimal.NewFromInt(100)))
}

// EffectivePercent computes the all-in fee as a percentage of the amount.
func (f FeeStructure) EffectivePercent(amount decimal.Decimal) decimal.Decimal {
	if !amount.IsPositive() {
		return decimal.Zero
	}
	return f.EffectiveFee(amount).Div(amount).Mul(decimal.NewFromInt(100))
}

// Capabilities is the static metadata the Selection Engine reads without calling
// the adapter. It is captured once at registration time.
type Capabilities struct {
	Currencies []string
	Methods    []PaymentMethodType
	Features   []Feature
	Fees       FeeStructure
	Band       AmountBand
}

// SupportsCurrency reports whether the currency is in the static support set.
func (c Capabilities) SupportsCurrency(currency string) bool {
	for _, cur := range c.Currencies {
		if cur == currency {
			return true
		}
	}
	return false
}

// SupportsMethod reports whether the method type is in the static support set.
func (c Capabilities) SupportsMethod(method PaymentMethodType) bool {
	for _, m := range c.Methods {
		if m == method {
			return true
		}
	}
	return false
}

// Provider abstracts a backend payment processor. Adapters must surface failures
// rather than swallow them; the orchestrator's fallback depends on errors
// propagating.
type Provider interface {
	Name() string
	Initialize(cfg config.ProviderConfig) error
	Capabilities() Capabilities
	CreatePayment(ctx context.Context, req PaymentRequest) (*PaymentResponse, error)
	CapturePayment(ctx context.Context, id string, amount *decimal.Decimal) (*PaymentResponse, error)
	RefundPayment(ctx context.Context, id string, amount *decimal.Decimal, reason string) (*RefundResponse, error)
	VoidPayment(ctx context.Context, id string) (*PaymentResponse, error)
	GetPayment(ctx context.Context, id string) (*PaymentResponse, error)
	VerifyWebhook(payload []byte, signature string) bool
	ProcessWebhookEvent(payload []byte) ([]PaymentWebhookEvent, error)
	Supports(feature Feature) bool
}
