package payment

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/noah-isme/payment-router/internal/common"
)

// Handler exposes HTTP endpoints for payment routing operations.
type Handler struct {
	Orc *Orchestrator
}

type createReq struct {
	Amount           decimal.Decimal   `json:"amount"`
	Currency         string            `json:"currency"`
	Method           PaymentMethod     `json:"method"`
	CustomerID       string            `json:"customerId"`
	Description      string            `json:"description"`
	BillingAddress   *Address          `json:"billingAddress"`
	ShippingAddress  *Address          `json:"shippingAddress"`
	Metadata         map[string]string `json:"metadata"`
	Capture          bool              `json:"capture"`
	Confirm          bool              `json:"confirm"`
	SetupFutureUsage bool              `json:"setupFutureUsage"`
}

type amountReq struct {
	Amount *decimal.Decimal `json:"amount"`
	Reason string           `json:"reason"`
}

// Create routes a payment request to the best available provider.
func (h *Handler) Create(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.Orc == nil {
		common.JSONError(w, http.StatusInternalServerError, "PAYMENT_NOT_CONFIGURED", "payment handler unavailable", nil)
		return
	}
	var req createReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "invalid body", nil)
		return
	}
	payment := PaymentRequest{
		Amount:           req.Amount,
		Currency:         strings.ToUpper(strings.TrimSpace(req.Currency)),
		Method:           req.Method,
		CustomerID:       strings.TrimSpace(req.CustomerID),
		Description:      req.Description,
		BillingAddress:   req.BillingAddress,
		ShippingAddress:  req.ShippingAddress,
		Metadata:         req.Metadata,
		IdempotencyKey:   strings.TrimSpace(r.Header.Get("Idempotency-Key")),
		Capture:          req.Capture,
		Confirm:          req.Confirm,
		SetupFutureUsage: req.SetupFutureUsage,
	}
	resp, err := h.Orc.ProcessPayment(r.Context(), payment)
	if err != nil {
		writePaymentError(w, err)
		return
	}
	common.JSON(w, http.StatusCreated, resp)
}

// Get reports the provider-side state of a payment.
func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	id := strings.TrimSpace(chi.URLParam(r, "paymentId"))
	if id == "" {
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "paymentId is required", nil)
		return
	}
	resp, err := h.Orc.GetPayment(r.Context(), id)
	if err != nil {
		writePaymentError(w, err)
		return
	}
	common.JSON(w, http.StatusOK, resp)
}

// Capture settles an authorized payment.
func (h *Handler) Capture(w http.ResponseWriter, r *http.Request) {
	id := strings.TrimSpace(chi.URLParam(r, "paymentId"))
	if id == "" {
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "paymentId is required", nil)
		return
	}
	var req amountReq
	if r.ContentLength > 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "invalid body", nil)
			return
		}
	}
	resp, err := h.Orc.CapturePayment(r.Context(), id, req.Amount)
	if err != nil {
		writePaymentError(w, err)
		return
	}
	common.JSON(w, http.StatusOK, resp)
}

// Refund refunds part or all of a succeeded payment.
func (h *Handler) Refund(w http.ResponseWriter, r *http.Request) {
	id := strings.TrimSpace(chi.URLParam(r, "paymentId"))
	if id == "" {
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "paymentId is required", nil)
		return
	}
	var req amountReq
	if r.ContentLength > 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "invalid body", nil)
			return
		}
	}
	refund, err := h.Orc.RefundPayment(r.Context(), id, req.Amount, req.Reason)
	if err != nil {
		writePaymentError(w, err)
		return
	}
	common.JSON(w, http.StatusOK, refund)
}

// Void cancels an uncaptured payment.
func (h *Handler) Void(w http.ResponseWriter, r *http.Request) {
	id := strings.TrimSpace(chi.URLParam(r, "paymentId"))
	if id == "" {
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "paymentId is required", nil)
		return
	}
	resp, err := h.Orc.VoidPayment(r.Context(), id)
	if err != nil {
		writePaymentError(w, err)
		return
	}
	common.JSON(w, http.StatusOK, resp)
}

// Providers previews the scored provider ordering for a hypothetical request.
func (h *Handler) Providers(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	amount, err := decimal.NewFromString(strings.TrimSpace(query.Get("amount")))
	if err != nil || !amount.IsPositive() {
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "a positive amount is required", nil)
		return
	}
	req := PaymentRequest{
		Amount:   amount,
		Currency: strings.ToUpper(strings.TrimSpace(query.Get("currency"))),
		Method:   PaymentMethod{Type: PaymentMethodType(strings.TrimSpace(query.Get("method")))},
	}
	if req.Method.Type == "" {
		req.Method.Type = MethodCard
	}
	if err := req.Validate(); err != nil {
		writePaymentError(w, err)
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{
		"candidates": h.Orc.PreviewSelection(req),
	})
}

// writePaymentError maps core errors onto the canonical error shape. Validation
// failures never reach a provider; provider failures are surfaced coarsely.
func writePaymentError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ErrInvalidAmount), errors.Is(err, ErrUnknownCurrency), errors.Is(err, ErrUnknownMethod):
		common.JSONError(w, http.StatusBadRequest, "VALIDATION_ERROR", err.Error(), nil)
	case errors.Is(err, ErrNoEligibleProvider):
		common.JSONError(w, http.StatusUnprocessableEntity, "NO_ELIGIBLE_PROVIDER", err.Error(), nil)
	case errors.Is(err, ErrRefundNotEligible), errors.Is(err, ErrRefundExceedsBalance):
		common.JSONError(w, http.StatusUnprocessableEntity, "REFUND_NOT_ALLOWED", err.Error(), nil)
	case errors.Is(err, ErrPaymentNotFound), errors.Is(err, ErrProviderNotFound):
		common.JSONError(w, http.StatusNotFound, "NOT_FOUND", err.Error(), nil)
	default:
		common.JSONError(w, http.StatusBadGateway, "PAYMENT_FAILED", err.Error(), nil)
	}
}
