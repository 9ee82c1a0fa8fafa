package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/kopi-pos/api/internal/enum"
	"github.com/kopi-pos/api/internal/middleware"
	"github.com/kopi-pos/api/internal/models"
)

// PromotionServicer defines the catalogue methods needed by promotion
// handlers. Satisfied by *service.PromotionService.
type PromotionServicer interface {
	ListActive(ctx context.Context) ([]models.Promotion, error)
	ExpiringSoon(ctx context.Context) ([]models.Promotion, error)
	Create(ctx context.Context, op models.Operator, p models.Promotion) (models.Promotion, error)
	Deactivate(ctx context.Context, op models.Operator, id int64) (models.Promotion, error)
	Stats(ctx context.Context, id int64) (*models.PromotionStats, error)
}

// PromotionHandler handles promotion catalogue endpoints.
type PromotionHandler struct {
	promotions PromotionServicer
	log        zerolog.Logger
}

func NewPromotionHandler(promotions PromotionServicer, log zerolog.Logger) *PromotionHandler {
	return &PromotionHandler{promotions: promotions, log: log}
}

// RegisterRoutes registers promotion endpoints. Mounted at /promotions;
// writes are manager-only.
func (h *PromotionHandler) RegisterRoutes(r chi.Router) {
	r.Get("/", h.List)
	r.Get("/expiring", h.Expiring)

	r.Group(func(r chi.Router) {
		r.Use(middleware.RequireRole(enum.RoleManager))
		r.Post("/", h.Create)
		r.Post("/{id}/deactivate", h.Deactivate)
		r.Get("/{id}/stats", h.Stats)
	})
}

type createPromotionRequest struct {
	Name              string          `json:"name"`
	Description       string          `json:"description"`
	DiscountType      string          `json:"discount_type"`
	DiscountValue     decimal.Decimal `json:"discount_value"`
	MinOrderAmount    decimal.Decimal `json:"min_order_amount"`
	MaxDiscountAmount decimal.Decimal `json:"max_discount_amount"`
	StartDate         *time.Time      `json:"start_date"`
	EndDate           *time.Time      `json:"end_date"`
	UsageLimit        int32           `json:"usage_limit"`
}

// List handles GET /promotions.
func (h *PromotionHandler) List(w http.ResponseWriter, r *http.Request) {
	h.list(w, r, "list promotions", h.promotions.ListActive)
}

// Expiring handles GET /promotions/expiring.
func (h *PromotionHandler) Expiring(w http.ResponseWriter, r *http.Request) {
	h.list(w, r, "expiring promotions", h.promotions.ExpiringSoon)
}

func (h *PromotionHandler) list(w http.ResponseWriter, r *http.Request, name string,
	fn func(context.Context) ([]models.Promotion, error)) {
	promos, err := fn(r.Context())
	if err != nil {
		writeError(w, h.log, name, err)
		return
	}
	resp := make([]promotionResponse, len(promos))
	for i, p := range promos {
		resp[i] = toPromotionResponse(p)
	}
	writeJSON(w, http.StatusOK, resp)
}

// Create handles POST /promotions.
func (h *PromotionHandler) Create(w http.ResponseWriter, r *http.Request) {
	op, ok := operator(w, r)
	if !ok {
		return
	}
	var req createPromotionRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	p, err := h.promotions.Create(r.Context(), op, models.Promotion{
		Name:              req.Name,
		Description:       req.Description,
		DiscountType:      req.DiscountType,
		DiscountValue:     req.DiscountValue,
		MinOrderAmount:    req.MinOrderAmount,
		MaxDiscountAmount: req.MaxDiscountAmount,
		StartDate:         req.StartDate,
		EndDate:           req.EndDate,
		UsageLimit:        req.UsageLimit,
	})
	if err != nil {
		writeError(w, h.log, "create promotion", err)
		return
	}
	writeJSON(w, http.StatusCreated, toPromotionResponse(p))
}

// Deactivate handles POST /promotions/{id}/deactivate.
func (h *PromotionHandler) Deactivate(w http.ResponseWriter, r *http.Request) {
	op, ok := operator(w, r)
	if !ok {
		return
	}
	id, ok := pathID(w, r, "id", "promotion")
	if !ok {
		return
	}
	p, err := h.promotions.Deactivate(r.Context(), op, id)
	if err != nil {
		writeError(w, h.log, "deactivate promotion", err)
		return
	}
	writeJSON(w, http.StatusOK, toPromotionResponse(p))
}

// Stats handles GET /promotions/{id}/stats.
func (h *PromotionHandler) Stats(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id", "promotion")
	if !ok {
		return
	}
	st, err := h.promotions.Stats(r.Context(), id)
	if err != nil {
		writeError(w, h.log, "promotion stats", err)
		return
	}
	writeJSON(w, http.StatusOK, promotionStatsResponse{
		PromotionID:    st.PromotionID,
		UsageCount:     st.UsageCount,
		TotalDiscount:  st.TotalDiscount.StringFixed(2),
		AffectedOrders: st.AffectedOrders,
	})
}
