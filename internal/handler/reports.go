package handler

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/kopi-pos/api/internal/models"
)

// ReportsServicer defines the payment reporting methods. Satisfied by
// *service.PaymentService.
type ReportsServicer interface {
	Methods() []models.PaymentMethodInfo
	Statistics(ctx context.Context, start, end time.Time) (*models.PaymentStatistics, error)
}

// ReportsHandler handles payment method and statistics endpoints.
type ReportsHandler struct {
	payments ReportsServicer
	log      zerolog.Logger
	loc      *time.Location
	now      func() time.Time
}

func NewReportsHandler(payments ReportsServicer, log zerolog.Logger) *ReportsHandler {
	return &ReportsHandler{payments: payments, log: log, loc: cafeLocation(), now: time.Now}
}

// RegisterRoutes registers GET /payment-methods on the authenticated root.
func (h *ReportsHandler) RegisterRoutes(r chi.Router) {
	r.Get("/payment-methods", h.PaymentMethods)
}

// RegisterManagerRoutes registers manager-only reports. Mounted at /reports.
func (h *ReportsHandler) RegisterManagerRoutes(r chi.Router) {
	r.Get("/payments", h.PaymentStatistics)
}

type methodStatisticsResponse struct {
	PaymentMethod    string `json:"payment_method"`
	TransactionCount int64  `json:"transaction_count"`
	TotalAmount      string `json:"total_amount"`
}

type paymentStatisticsResponse struct {
	StartDate         string                     `json:"start_date"`
	EndDate           string                     `json:"end_date"`
	TotalTransactions int64                      `json:"total_transactions"`
	TotalAmount       string                     `json:"total_amount"`
	AverageAmount     string                     `json:"average_amount"`
	ByMethod          []methodStatisticsResponse `json:"by_method"`
}

// PaymentMethods lists the supported payment methods.
func (h *ReportsHandler) PaymentMethods(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.payments.Methods())
}

// PaymentStatistics returns totals per payment method for a date range.
func (h *ReportsHandler) PaymentStatistics(w http.ResponseWriter, r *http.Request) {
	start, end, err := parseDateRange(r, h.now(), h.loc)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}

	stats, err := h.payments.Statistics(r.Context(), start, end)
	if err != nil {
		writeError(w, h.log, "payment statistics", err)
		return
	}

	resp := paymentStatisticsResponse{
		StartDate:         start.Format(dateLayout),
		EndDate:           end.AddDate(0, 0, -1).Format(dateLayout),
		TotalTransactions: stats.TotalTransactions,
		TotalAmount:       stats.TotalAmount.StringFixed(2),
		AverageAmount:     stats.AverageAmount.StringFixed(2),
		ByMethod:          make([]methodStatisticsResponse, len(stats.ByMethod)),
	}
	for i, m := range stats.ByMethod {
		resp.ByMethod[i] = methodStatisticsResponse{
			PaymentMethod:    m.Method,
			TransactionCount: m.Count,
			TotalAmount:      m.Amount.StringFixed(2),
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

// --- Helpers ---

const dateLayout = "2006-01-02"

// cafeLocation is the timezone report dates are interpreted in.
func cafeLocation() *time.Location {
	loc, err := time.LoadLocation("Asia/Ho_Chi_Minh")
	if err != nil {
		return time.FixedZone("ICT", 7*3600)
	}
	return loc
}

// parseDateRange parses start_date and end_date (inclusive, YYYY-MM-DD).
// Defaults to the last 30 days. The returned end is exclusive: midnight
// after end_date.
func parseDateRange(r *http.Request, now time.Time, loc *time.Location) (time.Time, time.Time, error) {
	now = now.In(loc)
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, loc)
	start := today.AddDate(0, 0, -30)
	end := today.AddDate(0, 0, 1)

	if s := r.URL.Query().Get("start_date"); s != "" {
		t, err := time.ParseInLocation(dateLayout, s, loc)
		if err != nil {
			return time.Time{}, time.Time{}, fmt.Errorf("invalid start_date format, use YYYY-MM-DD")
		}
		start = t
	}
	if s := r.URL.Query().Get("end_date"); s != "" {
		t, err := time.ParseInLocation(dateLayout, s, loc)
		if err != nil {
			return time.Time{}, time.Time{}, fmt.Errorf("invalid end_date format, use YYYY-MM-DD")
		}
		end = t.AddDate(0, 0, 1)
	}
	if !end.After(start) {
		return time.Time{}, time.Time{}, fmt.Errorf("end_date must not be before start_date")
	}
	return start, end, nil
}
