package handler

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/kopi-pos/api/internal/models"
)

// OrderServicer defines the order methods needed by order and table
// handlers. Satisfied by *service.OrderService; narrow interface for
// testability.
type OrderServicer interface {
	Get(ctx context.Context, orderID int64) (*models.Order, error)
	CurrentForTable(ctx context.Context, tableID int64) (*models.Order, error)
	AddLineToTable(ctx context.Context, op models.Operator, tableID, productID int64, quantity int32) (*models.Order, error)
	AddLine(ctx context.Context, op models.Operator, orderID, productID int64, quantity int32) (*models.Order, error)
	RemoveLine(ctx context.Context, op models.Operator, orderID, productID int64) (*models.Order, error)
	UpdateQuantity(ctx context.Context, op models.Operator, orderID, productID int64, quantity int32) (*models.Order, error)
	Transition(ctx context.Context, op models.Operator, orderID int64, next string) (*models.Order, error)
	Cancel(ctx context.Context, op models.Operator, orderID int64, reason string) (*models.Order, error)
	List(ctx context.Context, f models.OrderFilter) ([]*models.Order, error)
}

// OrderPromotionServicer defines the promotion methods used on a single
// order. Satisfied by *service.PromotionService.
type OrderPromotionServicer interface {
	Applicable(ctx context.Context, orderID int64) ([]models.ApplicablePromotion, error)
	Apply(ctx context.Context, op models.Operator, orderID, promotionID int64) (*models.Order, error)
	Remove(ctx context.Context, op models.Operator, orderID int64) (*models.Order, error)
}

// OrderHandler handles order endpoints.
type OrderHandler struct {
	orders     OrderServicer
	promotions OrderPromotionServicer
	log        zerolog.Logger
	loc        *time.Location
	now        func() time.Time
}

func NewOrderHandler(orders OrderServicer, promotions OrderPromotionServicer, log zerolog.Logger) *OrderHandler {
	return &OrderHandler{orders: orders, promotions: promotions, log: log, loc: cafeLocation(), now: time.Now}
}

// RegisterRoutes registers order endpoints. Mounted at /orders.
func (h *OrderHandler) RegisterRoutes(r chi.Router) {
	r.Get("/", h.List)
	r.Get("/{id}", h.Get)
	r.Patch("/{id}/status", h.UpdateStatus)
	r.Delete("/{id}", h.Cancel)

	r.Post("/{id}/lines", h.AddLine)
	r.Put("/{id}/lines/{pid}", h.UpdateLine)
	r.Delete("/{id}/lines/{pid}", h.RemoveLine)

	r.Get("/{id}/promotions", h.ApplicablePromotions)
	r.Post("/{id}/promotion", h.ApplyPromotion)
	r.Delete("/{id}/promotion", h.RemovePromotion)
}

type updateStatusRequest struct {
	Status string `json:"status"`
}

type updateLineRequest struct {
	Quantity int32 `json:"quantity"`
}

type cancelOrderRequest struct {
	Reason string `json:"reason"`
}

type applyPromotionRequest struct {
	PromotionID int64 `json:"promotion_id"`
}

// Get handles GET /orders/{id}.
func (h *OrderHandler) Get(w http.ResponseWriter, r *http.Request) {
	orderID, ok := pathID(w, r, "id", "order")
	if !ok {
		return
	}
	o, err := h.orders.Get(r.Context(), orderID)
	if err != nil {
		writeError(w, h.log, "get order", err)
		return
	}
	writeJSON(w, http.StatusOK, toOrderResponse(o))
}

// UpdateStatus handles PATCH /orders/{id}/status.
func (h *OrderHandler) UpdateStatus(w http.ResponseWriter, r *http.Request) {
	op, ok := operator(w, r)
	if !ok {
		return
	}
	orderID, ok := pathID(w, r, "id", "order")
	if !ok {
		return
	}
	var req updateStatusRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.Status == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "status is required"})
		return
	}

	o, err := h.orders.Transition(r.Context(), op, orderID, req.Status)
	if err != nil {
		writeError(w, h.log, "update order status", err)
		return
	}
	writeJSON(w, http.StatusOK, toOrderResponse(o))
}

// List handles GET /orders with optional status, start_date, end_date and
// limit query parameters. Lines are omitted.
func (h *OrderHandler) List(w http.ResponseWriter, r *http.Request) {
	start, end, err := parseDateRange(r, h.now(), h.loc)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}
	f := models.OrderFilter{Status: r.URL.Query().Get("status"), Start: start, End: end}
	if s := r.URL.Query().Get("limit"); s != "" {
		n, err := strconv.ParseInt(s, 10, 32)
		if err != nil || n <= 0 {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid limit"})
			return
		}
		f.Limit = int32(n)
	}

	orders, err := h.orders.List(r.Context(), f)
	if err != nil {
		writeError(w, h.log, "list orders", err)
		return
	}
	resp := make([]orderResponse, len(orders))
	for i, o := range orders {
		resp[i] = toOrderResponse(o)
	}
	writeJSON(w, http.StatusOK, resp)
}

// Cancel handles DELETE /orders/{id}. The body is optional and may carry a
// reason.
func (h *OrderHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	op, ok := operator(w, r)
	if !ok {
		return
	}
	orderID, ok := pathID(w, r, "id", "order")
	if !ok {
		return
	}
	var req cancelOrderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}

	o, err := h.orders.Cancel(r.Context(), op, orderID, req.Reason)
	if err != nil {
		writeError(w, h.log, "cancel order", err)
		return
	}
	writeJSON(w, http.StatusOK, toOrderResponse(o))
}

// AddLine handles POST /orders/{id}/lines.
func (h *OrderHandler) AddLine(w http.ResponseWriter, r *http.Request) {
	op, ok := operator(w, r)
	if !ok {
		return
	}
	orderID, ok := pathID(w, r, "id", "order")
	if !ok {
		return
	}
	var req addLineRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	o, err := h.orders.AddLine(r.Context(), op, orderID, req.ProductID, req.Quantity)
	if err != nil {
		writeError(w, h.log, "add line", err)
		return
	}
	writeJSON(w, http.StatusOK, toOrderResponse(o))
}

// UpdateLine handles PUT /orders/{id}/lines/{pid}. A zero quantity removes
// the line.
func (h *OrderHandler) UpdateLine(w http.ResponseWriter, r *http.Request) {
	op, ok := operator(w, r)
	if !ok {
		return
	}
	orderID, ok := pathID(w, r, "id", "order")
	if !ok {
		return
	}
	productID, ok := pathID(w, r, "pid", "product")
	if !ok {
		return
	}
	var req updateLineRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	o, err := h.orders.UpdateQuantity(r.Context(), op, orderID, productID, req.Quantity)
	if err != nil {
		writeError(w, h.log, "update line", err)
		return
	}
	writeJSON(w, http.StatusOK, toOrderResponse(o))
}

// RemoveLine handles DELETE /orders/{id}/lines/{pid}.
func (h *OrderHandler) RemoveLine(w http.ResponseWriter, r *http.Request) {
	op, ok := operator(w, r)
	if !ok {
		return
	}
	orderID, ok := pathID(w, r, "id", "order")
	if !ok {
		return
	}
	productID, ok := pathID(w, r, "pid", "product")
	if !ok {
		return
	}

	o, err := h.orders.RemoveLine(r.Context(), op, orderID, productID)
	if err != nil {
		writeError(w, h.log, "remove line", err)
		return
	}
	writeJSON(w, http.StatusOK, toOrderResponse(o))
}

// ApplicablePromotions handles GET /orders/{id}/promotions, best discount
// first.
func (h *OrderHandler) ApplicablePromotions(w http.ResponseWriter, r *http.Request) {
	orderID, ok := pathID(w, r, "id", "order")
	if !ok {
		return
	}
	list, err := h.promotions.Applicable(r.Context(), orderID)
	if err != nil {
		writeError(w, h.log, "applicable promotions", err)
		return
	}
	resp := make([]applicablePromotionResponse, len(list))
	for i, ap := range list {
		resp[i] = applicablePromotionResponse{
			promotionResponse: toPromotionResponse(ap.Promotion),
			Discount:          ap.Discount.StringFixed(2),
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

// ApplyPromotion handles POST /orders/{id}/promotion.
func (h *OrderHandler) ApplyPromotion(w http.ResponseWriter, r *http.Request) {
	op, ok := operator(w, r)
	if !ok {
		return
	}
	orderID, ok := pathID(w, r, "id", "order")
	if !ok {
		return
	}
	var req applyPromotionRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.PromotionID <= 0 {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "promotion_id is required"})
		return
	}

	o, err := h.promotions.Apply(r.Context(), op, orderID, req.PromotionID)
	if err != nil {
		writeError(w, h.log, "apply promotion", err)
		return
	}
	writeJSON(w, http.StatusOK, toOrderResponse(o))
}

// RemovePromotion handles DELETE /orders/{id}/promotion.
func (h *OrderHandler) RemovePromotion(w http.ResponseWriter, r *http.Request) {
	h.orderAction(w, r, "remove promotion", h.promotions.Remove)
}

func (h *OrderHandler) orderAction(w http.ResponseWriter, r *http.Request, name string,
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
