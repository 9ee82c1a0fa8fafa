package handler

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/kopi-pos/api/internal/models"
)

// TableServicer defines the table synchronizer methods needed by table
// handlers. Satisfied by *service.TableSync.
type TableServicer interface {
	Get(ctx context.Context, id int64) (models.Table, error)
	List(ctx context.Context) ([]models.Table, error)
	FinishCleaning(ctx context.Context, op models.Operator, tableID int64) (models.Table, error)
	Reserve(ctx context.Context, op models.Operator, tableID int64) (models.Table, error)
	Release(ctx context.Context, op models.Operator, tableID int64) (models.Table, error)
}

// TableHandler handles table endpoints, including the table-scoped order
// entry points used by waiters.
type TableHandler struct {
	tables TableServicer
	orders OrderServicer
	log    zerolog.Logger
}

func NewTableHandler(tables TableServicer, orders OrderServicer, log zerolog.Logger) *TableHandler {
	return &TableHandler{tables: tables, orders: orders, log: log}
}

// RegisterRoutes registers table endpoints. Mounted at /tables.
func (h *TableHandler) RegisterRoutes(r chi.Router) {
	r.Get("/", h.List)
	r.Get("/{tid}", h.Get)
	r.Get("/{tid}/order", h.CurrentOrder)
	r.Post("/{tid}/lines", h.AddLine)
	r.Post("/{tid}/finish-cleaning", h.FinishCleaning)
	r.Post("/{tid}/reserve", h.Reserve)
	r.Post("/{tid}/release", h.Release)
}

type addLineRequest struct {
	ProductID int64 `json:"product_id"`
	Quantity  int32 `json:"quantity"`
}

// List handles GET /tables.
func (h *TableHandler) List(w http.ResponseWriter, r *http.Request) {
	tables, err := h.tables.List(r.Context())
	if err != nil {
		writeError(w, h.log, "list tables", err)
		return
	}
	resp := make([]tableResponse, len(tables))
	for i, t := range tables {
		resp[i] = toTableResponse(t)
	}
	writeJSON(w, http.StatusOK, resp)
}

// Get handles GET /tables/{tid}.
func (h *TableHandler) Get(w http.ResponseWriter, r *http.Request) {
	tableID, ok := pathID(w, r, "tid", "table")
	if !ok {
		return
	}
	t, err := h.tables.Get(r.Context(), tableID)
	if err != nil {
		writeError(w, h.log, "get table", err)
		return
	}
	writeJSON(w, http.StatusOK, toTableResponse(t))
}

// CurrentOrder handles GET /tables/{tid}/order.
func (h *TableHandler) CurrentOrder(w http.ResponseWriter, r *http.Request) {
	tableID, ok := pathID(w, r, "tid", "table")
	if !ok {
		return
	}
	o, err := h.orders.CurrentForTable(r.Context(), tableID)
	if err != nil {
		writeError(w, h.log, "current order", err)
		return
	}
	writeJSON(w, http.StatusOK, toOrderResponse(o))
}

// AddLine handles POST /tables/{tid}/lines. The table's open order is
// created on first use.
func (h *TableHandler) AddLine(w http.ResponseWriter, r *http.Request) {
	op, ok := operator(w, r)
	if !ok {
		return
	}
	tableID, ok := pathID(w, r, "tid", "table")
	if !ok {
		return
	}
	var req addLineRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	o, err := h.orders.AddLineToTable(r.Context(), op, tableID, req.ProductID, req.Quantity)
	if err != nil {
		writeError(w, h.log, "add line to table", err)
		return
	}
	writeJSON(w, http.StatusOK, toOrderResponse(o))
}

// FinishCleaning handles POST /tables/{tid}/finish-cleaning.
func (h *TableHandler) FinishCleaning(w http.ResponseWriter, r *http.Request) {
	h.move(w, r, "finish cleaning", h.tables.FinishCleaning)
}

// Reserve handles POST /tables/{tid}/reserve.
func (h *TableHandler) Reserve(w http.ResponseWriter, r *http.Request) {
	h.move(w, r, "reserve table", h.tables.Reserve)
}

// Release handles POST /tables/{tid}/release.
func (h *TableHandler) Release(w http.ResponseWriter, r *http.Request) {
	h.move(w, r, "release table", h.tables.Release)
}

func (h *TableHandler) move(w http.ResponseWriter, r *http.Request, name string,
	fn func(context.Context, models.Operator, int64) (models.Table, error)) {
	op, ok := operator(w, r)
	if !ok {
		return
	}
	tableID, ok := pathID(w, r, "tid", "table")
	if !ok {
		return
	}
	t, err := fn(r.Context(), op, tableID)
	if err != nil {
		writeError(w, h.log, name, err)
		return
	}
	writeJSON(w, http.StatusOK, toTableResponse(t))
}
