package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/example/glam-checkout/internal/api/middleware"
	"github.com/example/glam-checkout/internal/auth"
	"github.com/example/glam-checkout/internal/domain/order"
	"github.com/example/glam-checkout/internal/infrastructure/store"
	"github.com/example/glam-checkout/internal/logging"
	"github.com/example/glam-checkout/internal/readmodel"
)

const maxBodyBytes = 64 << 10

// OrderService is the part of the Order Service the HTTP layer drives
type OrderService interface {
	Create(ctx context.Context, req order.CreateRequest) (*order.CreateResult, error)
	Verify(ctx context.Context, cb order.Callback) (*order.VerificationResult, error)
	Cancel(ctx context.Context, ref, reason string) error
	RecordFailure(ctx context.Context, report order.FailureReport) error
}

type Handlers struct {
	orders    OrderService
	readStore store.OrderReadStore
	tokens    *auth.CheckoutTokenService
	logger    zerolog.Logger
}

func NewHandlers(orders OrderService, readStore store.OrderReadStore, tokens *auth.CheckoutTokenService) *Handlers {
	return &Handlers{
		orders:    orders,
		readStore: readStore,
		tokens:    tokens,
		logger:    logging.Component("api"),
	}
}

type orderSummary struct {
	ID       string `json:"id"`
	Amount   int64  `json:"amount"`
	Currency string `json:"currency"`
}

type createOrderResponse struct {
	Success       bool         `json:"success"`
	OrderID       string       `json:"orderId"`
	Order         orderSummary `json:"order"`
	Key           string       `json:"key"`
	CheckoutToken string       `json:"checkoutToken"`
	ExpiresAt     time.Time    `json:"expiresAt"`
}

type verifyResponse struct {
	Success    bool      `json:"success"`
	OrderID    string    `json:"orderId"`
	OrderRef   string    `json:"orderRef"`
	PaymentID  string    `json:"paymentId"`
	Amount     int64     `json:"amount"`
	Currency   string    `json:"currency"`
	VerifiedAt time.Time `json:"verifiedAt"`
}

type cancelRequest struct {
	OrderID string `json:"orderId"`
	Reason  string `json:"reason"`
}

// orderView is the buyer-facing order status. Contact details stay out.
type orderView struct {
	OrderID       string                              `json:"orderId"`
	OrderRef      string                              `json:"orderRef"`
	Status        string                              `json:"status"`
	Amount        int64                               `json:"amount"`
	Currency      string                              `json:"currency"`
	Items         []readmodel.OrderItemReadModel      `json:"items"`
	PaymentID     string                              `json:"paymentId,omitempty"`
	FailureReason string                              `json:"failureReason,omitempty"`
	Attempts      []readmodel.PaymentAttemptReadModel `json:"attempts"`
	CreatedAt     time.Time                           `json:"createdAt"`
	VerifiedAt    *time.Time                          `json:"verifiedAt,omitempty"`
}

// CreateOrder handles POST /api/orders/create
func (h *Handlers) CreateOrder(w http.ResponseWriter, r *http.Request) {
	var req order.CreateRequest
	if !h.decode(w, r, &req) {
		return
	}

	result, err := h.orders.Create(r.Context(), req)
	if err != nil {
		h.respondError(w, err)
		return
	}

	token, _, err := h.tokens.Issue(result.OrderRef, result.OrderID)
	if err != nil {
		h.logger.Error().Err(err).Str("order_ref", result.OrderRef).Msg("failed to issue checkout token")
		h.respondError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, createOrderResponse{
		Success: true,
		OrderID: result.OrderID,
		Order: orderSummary{
			ID:       result.OrderRef,
			Amount:   result.Amount,
			Currency: result.Currency,
		},
		Key:           result.Key,
		CheckoutToken: token,
		ExpiresAt:     result.ExpiresAt,
	})
}

// VerifyPayment handles POST /api/orders/verify
func (h *Handlers) VerifyPayment(w http.ResponseWriter, r *http.Request) {
	var cb order.Callback
	if !h.decode(w, r, &cb) {
		return
	}

	result, err := h.orders.Verify(r.Context(), cb)
	if err != nil {
		h.respondError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, verifyResponse{
		Success:    true,
		OrderID:    result.OrderID,
		OrderRef:   result.OrderRef,
		PaymentID:  result.PaymentRef,
		Amount:     result.Amount,
		Currency:   result.Currency,
		VerifiedAt: result.VerifiedAt,
	})
}

// ReportFailure handles POST /api/orders/failure. Only the checkout session
// that owns the order may add to its attempt history.
func (h *Handlers) ReportFailure(w http.ResponseWriter, r *http.Request) {
	var report order.FailureReport
	if !h.decode(w, r, &report) {
		return
	}

	if !middleware.AuthorizedFor(r.Context(), strings.TrimSpace(report.OrderRef)) {
		respondJSON(w, http.StatusForbidden, errorResponse{
			Error: "this checkout session cannot report on that order",
			Kind:  "forbidden",
		})
		return
	}

	if err := h.orders.RecordFailure(r.Context(), report); err != nil {
		h.respondError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, map[string]bool{"success": true})
}

// CancelOrder handles POST /api/orders/cancel. The checkout token must have
// been issued for the order being cancelled.
func (h *Handlers) CancelOrder(w http.ResponseWriter, r *http.Request) {
	var req cancelRequest
	if !h.decode(w, r, &req) {
		return
	}

	claims, ok := middleware.GetCheckoutClaims(r.Context())
	if !ok || strings.TrimSpace(req.OrderID) == "" || claims.OrderID != strings.TrimSpace(req.OrderID) {
		respondJSON(w, http.StatusForbidden, errorResponse{
			Error: "this checkout session cannot cancel that order",
			Kind:  "forbidden",
		})
		return
	}

	if err := h.orders.Cancel(r.Context(), claims.OrderRef(), req.Reason); err != nil {
		h.respondError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, map[string]bool{"success": true})
}

// GetOrder handles GET /api/orders/{orderRef}
func (h *Handlers) GetOrder(w http.ResponseWriter, r *http.Request) {
	ref := chi.URLParam(r, "orderRef")
	if !middleware.AuthorizedFor(r.Context(), ref) {
		respondJSON(w, http.StatusForbidden, errorResponse{
			Error: "this checkout session cannot view that order",
			Kind:  "forbidden",
		})
		return
	}

	o, err := h.readStore.GetOrder(r.Context(), ref)
	if errors.Is(err, store.ErrNotFound) {
		respondJSON(w, http.StatusNotFound, errorResponse{Error: "order not found", Kind: string(order.KindUnknownOrder)})
		return
	}
	if err != nil {
		h.respondError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, orderView{
		OrderID:       o.ID,
		OrderRef:      o.Ref,
		Status:        o.Status,
		Amount:        o.Amount,
		Currency:      o.Currency,
		Items:         o.Items,
		PaymentID:     o.PaymentRef,
		FailureReason: o.FailureReason,
		Attempts:      o.Attempts,
		CreatedAt:     o.CreatedAt,
		VerifiedAt:    o.VerifiedAt,
	})
}

// Health handles GET /health
func (h *Handlers) Health(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *Handlers) decode(w http.ResponseWriter, r *http.Request, v any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		h.logger.Debug().Err(err).Str("path", r.URL.Path).Msg("malformed request body")
		respondJSON(w, http.StatusBadRequest, errorResponse{
			Error: "request body is not valid JSON",
			Kind:  string(order.KindValidation),
		})
		return false
	}
	return true
}

func respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}
