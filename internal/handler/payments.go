package handler

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/kopi-pos/api/internal/enum"
	"github.com/kopi-pos/api/internal/middleware"
	"github.com/kopi-pos/api/internal/models"
	"github.com/kopi-pos/api/internal/service"
)

// PaymentServicer defines the settlement methods needed by payment
// handlers. Satisfied by *service.PaymentService.
type PaymentServicer interface {
	Settle(ctx context.Context, op models.Operator, req models.PaymentRequest) (*service.SettleResult, error)
	Settlement(ctx context.Context, orderID int64) (*models.Settlement, error)
	MarkFailed(ctx context.Context, op models.Operator, orderID int64, reason string) (*models.Order, error)
	RetryPayment(ctx context.Context, op models.Operator, orderID int64) (*models.Order, error)
	Refund(ctx context.Context, op models.Operator, orderID int64) (*models.Order, error)
}

// PaymentHandler handles payment endpoints nested under an order.
type PaymentHandler struct {
	payments PaymentServicer
	log      zerolog.Logger
}

func NewPaymentHandler(payments PaymentServicer, log zerolog.Logger) *PaymentHandler {
	return &PaymentHandler{payments: payments, log: log}
}

// RegisterRoutes registers payment endpoints. Mounted at /orders alongside
// the order routes; refunds are manager-only.
func (h *PaymentHandler) RegisterRoutes(r chi.Router) {
	r.Post("/{id}/payments", h.Settle)
	r.Get("/{id}/payments", h.Get)
	r.Post("/{id}/payments/failed", h.MarkFailed)
	r.Post("/{id}/payments/retry", h.Retry)
	r.With(middleware.RequireRole(enum.RoleManager)).Post("/{id}/refund", h.Refund)
}

type settleRequest struct {
	PaymentMethod   string          `json:"payment_method"`
	TenderedAmount  decimal.Decimal `json:"tendered_amount"`
	TransactionCode string          `json:"transaction_code"`
	Notes           string          `json:"notes"`
}

type settleResponse struct {
	Order      orderResponse      `json:"order"`
	Settlement settlementResponse `json:"settlement"`
	Replayed   bool               `json:"replayed"`
}

type markFailedRequest struct {
	Reason string `json:"reason"`
}

// Settle handles POST /orders/{id}/payments. A replay of an already
// recorded settlement answers 200 with the stored result instead of 201.
func (h *PaymentHandler) Settle(w http.ResponseWriter, r *http.Request) {
	op, ok := operator(w, r)
	if !ok {
		return
	}
	orderID, ok := pathID(w, r, "id", "order")
	if !ok {
		return
	}
	var req settleRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.PaymentMethod == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "payment_method is required"})
		return
	}

	res, err := h.payments.Settle(r.Context(), op, models.PaymentRequest{
		OrderID:         orderID,
		Method:          req.PaymentMethod,
		TenderedAmount:  req.TenderedAmount,
		TransactionCode: req.TransactionCode,
		Notes:           req.Notes,
	})
	if err != nil {
		writeError(w, h.log, "settle payment", err)
		return
	}

	status := http.StatusCreated
	if res.Replayed {
		status = http.StatusOK
	}
	writeJSON(w, status, settleResponse{
		Order:      toOrderResponse(res.Order),
		Settlement: toSettlementResponse(res.Settlement),
		Replayed:   res.Replayed,
	})
}

// Get handles GET /orders/{id}/payments.
func (h *PaymentHandler) Get(w http.ResponseWriter, r *http.Request) {
	orderID, ok := pathID(w, r, "id", "order")
	if !ok {
		return
	}
	s, err := h.payments.Settlement(r.Context(), orderID)
	if err != nil {
		writeError(w, h.log, "get settlement", err)
		return
	}
	writeJSON(w, http.StatusOK, toSettlementResponse(s))
}

// MarkFailed handles POST /orders/{id}/payments/failed.
func (h *PaymentHandler) MarkFailed(w http.ResponseWriter, r *http.Request) {
	op, ok := operator(w, r)
	if !ok {
		return
	}
	orderID, ok := pathID(w, r, "id", "order")
	if !ok {
		return
	}
	var req markFailedRequest
	if r.ContentLength != 0 && !decodeJSON(w, r, &req) {
		return
	}

	o, err := h.payments.MarkFailed(r.Context(), op, orderID, req.Reason)
	if err != nil {
		writeError(w, h.log, "mark payment failed", err)
		return
	}
	writeJSON(w, http.StatusOK, toOrderResponse(o))
}

// Retry handles POST /orders/{id}/payments/retry.
func (h *PaymentHandler) Retry(w http.ResponseWriter, r *http.Request) {
	h.paymentAction(w, r, "retry payment", h.payments.RetryPayment)
}

// Refund handles POST /orders/{id}/refund.
func (h *PaymentHandler) Refund(w http.ResponseWriter, r *http.Request) {
	h.paymentAction(w, r, "refund payment", h.payments.Refund)
}

func (h *PaymentHandler) paymentAction(w http.ResponseWriter, r *http.Request, name string,
	fn func(context.Context, models.Operator, int64) (*models.Order, error)) {
	op, ok := operator(w, r)
	if !ok {
		return
	}
	orderID, ok := pathID(w, r, "id", "order")
	if !ok {
		return
	}
	o, err := fn(r.Context(), op, orderID)
	if err != nil {
		writeError(w, h.log, name, err)
		return
	}
	writeJSON(w, http.StatusOK, toOrderResponse(o))
}
