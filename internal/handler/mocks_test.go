package handler_test

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/kopi-pos/api/internal/auth"
	"github.com/kopi-pos/api/internal/enum"
	"github.com/kopi-pos/api/internal/handler"
	"github.com/kopi-pos/api/internal/middleware"
	"github.com/kopi-pos/api/internal/models"
	"github.com/kopi-pos/api/internal/service"
)

const testJWTSecret = "test-secret"

// --- Mock OrderServicer ---

type mockOrderService struct {
	getFn             func(ctx context.Context, orderID int64) (*models.Order, error)
	currentForTableFn func(ctx context.Context, tableID int64) (*models.Order, error)
	addLineToTableFn  func(ctx context.Context, op models.Operator, tableID, productID int64, qty int32) (*models.Order, error)
	addLineFn         func(ctx context.Context, op models.Operator, orderID, productID int64, qty int32) (*models.Order, error)
	removeLineFn      func(ctx context.Context, op models.Operator, orderID, productID int64) (*models.Order, error)
	updateQuantityFn  func(ctx context.Context, op models.Operator, orderID, productID int64, qty int32) (*models.Order, error)
	transitionFn      func(ctx context.Context, op models.Operator, orderID int64, next string) (*models.Order, error)
	cancelFn          func(ctx context.Context, op models.Operator, orderID int64, reason string) (*models.Order, error)
	listFn            func(ctx context.Context, f models.OrderFilter) ([]*models.Order, error)
}

func (m *mockOrderService) Get(ctx context.Context, orderID int64) (*models.Order, error) {
	return m.getFn(ctx, orderID)
}

func (m *mockOrderService) CurrentForTable(ctx context.Context, tableID int64) (*models.Order, error) {
	return m.currentForTableFn(ctx, tableID)
}

func (m *mockOrderService) AddLineToTable(ctx context.Context, op models.Operator, tableID, productID int64, qty int32) (*models.Order, error) {
	return m.addLineToTableFn(ctx, op, tableID, productID, qty)
}

func (m *mockOrderService) AddLine(ctx context.Context, op models.Operator, orderID, productID int64, qty int32) (*models.Order, error) {
	return m.addLineFn(ctx, op, orderID, productID, qty)
}

func (m *mockOrderService) RemoveLine(ctx context.Context, op models.Operator, orderID, productID int64) (*models.Order, error) {
	return m.removeLineFn(ctx, op, orderID, productID)
}

func (m *mockOrderService) UpdateQuantity(ctx context.Context, op models.Operator, orderID, productID int64, qty int32) (*models.Order, error) {
	return m.updateQuantityFn(ctx, op, orderID, productID, qty)
}

func (m *mockOrderService) Transition(ctx context.Context, op models.Operator, orderID int64, next string) (*models.Order, error) {
	return m.transitionFn(ctx, op, orderID, next)
}

func (m *mockOrderService) Cancel(ctx context.Context, op models.Operator, orderID int64, reason string) (*models.Order, error) {
	return m.cancelFn(ctx, op, orderID, reason)
}

func (m *mockOrderService) List(ctx context.Context, f models.OrderFilter) ([]*models.Order, error) {
	return m.listFn(ctx, f)
}

// --- Mock TableServicer ---

type mockTableService struct {
	getFn            func(ctx context.Context, id int64) (models.Table, error)
	listFn           func(ctx context.Context) ([]models.Table, error)
	finishCleaningFn func(ctx context.Context, op models.Operator, tableID int64) (models.Table, error)
	reserveFn        func(ctx context.Context, op models.Operator, tableID int64) (models.Table, error)
	releaseFn        func(ctx context.Context, op models.Operator, tableID int64) (models.Table, error)
}

func (m *mockTableService) Get(ctx context.Context, id int64) (models.Table, error) {
	return m.getFn(ctx, id)
}

func (m *mockTableService) List(ctx context.Context) ([]models.Table, error) {
	return m.listFn(ctx)
}

func (m *mockTableService) FinishCleaning(ctx context.Context, op models.Operator, tableID int64) (models.Table, error) {
	return m.finishCleaningFn(ctx, op, tableID)
}

func (m *mockTableService) Reserve(ctx context.Context, op models.Operator, tableID int64) (models.Table, error) {
	return m.reserveFn(ctx, op, tableID)
}

func (m *mockTableService) Release(ctx context.Context, op models.Operator, tableID int64) (models.Table, error) {
	return m.releaseFn(ctx, op, tableID)
}

// --- Mock promotion services ---

type mockPromotionService struct {
	listActiveFn   func(ctx context.Context) ([]models.Promotion, error)
	expiringSoonFn func(ctx context.Context) ([]models.Promotion, error)
	applicableFn   func(ctx context.Context, orderID int64) ([]models.ApplicablePromotion, error)
	applyFn        func(ctx context.Context, op models.Operator, orderID, promotionID int64) (*models.Order, error)
	removeFn       func(ctx context.Context, op models.Operator, orderID int64) (*models.Order, error)
	createFn       func(ctx context.Context, op models.Operator, p models.Promotion) (models.Promotion, error)
	deactivateFn   func(ctx context.Context, op models.Operator, id int64) (models.Promotion, error)
	statsFn        func(ctx context.Context, id int64) (*models.PromotionStats, error)
}

func (m *mockPromotionService) ListActive(ctx context.Context) ([]models.Promotion, error) {
	return m.listActiveFn(ctx)
}

func (m *mockPromotionService) ExpiringSoon(ctx context.Context) ([]models.Promotion, error) {
	return m.expiringSoonFn(ctx)
}

func (m *mockPromotionService) Applicable(ctx context.Context, orderID int64) ([]models.ApplicablePromotion, error) {
	return m.applicableFn(ctx, orderID)
}

func (m *mockPromotionService) Apply(ctx context.Context, op models.Operator, orderID, promotionID int64) (*models.Order, error) {
	return m.applyFn(ctx, op, orderID, promotionID)
}

func (m *mockPromotionService) Remove(ctx context.Context, op models.Operator, orderID int64) (*models.Order, error) {
	return m.removeFn(ctx, op, orderID)
}

func (m *mockPromotionService) Create(ctx context.Context, op models.Operator, p models.Promotion) (models.Promotion, error) {
	return m.createFn(ctx, op, p)
}

func (m *mockPromotionService) Deactivate(ctx context.Context, op models.Operator, id int64) (models.Promotion, error) {
	return m.deactivateFn(ctx, op, id)
}

func (m *mockPromotionService) Stats(ctx context.Context, id int64) (*models.PromotionStats, error) {
	return m.statsFn(ctx, id)
}

// --- Mock PaymentServicer ---

type mockPaymentService struct {
	settleFn     func(ctx context.Context, op models.Operator, req models.PaymentRequest) (*service.SettleResult, error)
	settlementFn func(ctx context.Context, orderID int64) (*models.Settlement, error)
	markFailedFn func(ctx context.Context, op models.Operator, orderID int64, reason string) (*models.Order, error)
	retryFn      func(ctx context.Context, op models.Operator, orderID int64) (*models.Order, error)
	refundFn     func(ctx context.Context, op models.Operator, orderID int64) (*models.Order, error)
	statsFn      func(ctx context.Context, start, end time.Time) (*models.PaymentStatistics, error)
}

func (m *mockPaymentService) Settle(ctx context.Context, op models.Operator, req models.PaymentRequest) (*service.SettleResult, error) {
	return m.settleFn(ctx, op, req)
}

func (m *mockPaymentService) Settlement(ctx context.Context, orderID int64) (*models.Settlement, error) {
	return m.settlementFn(ctx, orderID)
}

func (m *mockPaymentService) MarkFailed(ctx context.Context, op models.Operator, orderID int64, reason string) (*models.Order, error) {
	return m.markFailedFn(ctx, op, orderID, reason)
}

func (m *mockPaymentService) RetryPayment(ctx context.Context, op models.Operator, orderID int64) (*models.Order, error) {
	return m.retryFn(ctx, op, orderID)
}

func (m *mockPaymentService) Refund(ctx context.Context, op models.Operator, orderID int64) (*models.Order, error) {
	return m.refundFn(ctx, op, orderID)
}

func (m *mockPaymentService) Methods() []models.PaymentMethodInfo {
	return models.PaymentMethods()
}

func (m *mockPaymentService) Statistics(ctx context.Context, start, end time.Time) (*models.PaymentStatistics, error) {
	return m.statsFn(ctx, start, end)
}

// --- Test Helpers ---

var testNow = time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)

func testToken(t *testing.T, userID int64, role string) string {
	t.Helper()
	token, err := auth.GenerateToken(testJWTSecret, userID, role, time.Hour)
	if err != nil {
		t.Fatalf("generate token: %v", err)
	}
	return token
}

// setupRouter mounts a handler's routes behind Authenticate at prefix.
func setupRouter(prefix string, register func(chi.Router)) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Authenticate(testJWTSecret))
	r.Route(prefix, register)
	return r
}

func doRequest(t *testing.T, h http.Handler, method, path, role string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var rdr io.Reader
	switch b := body.(type) {
	case nil:
	case string:
		rdr = strings.NewReader(b)
	default:
		var buf bytes.Buffer
		if err := json.NewEncoder(&buf).Encode(b); err != nil {
			t.Fatalf("encode body: %v", err)
		}
		rdr = &buf
	}
	req := httptest.NewRequest(method, path, rdr)
	req.Header.Set("Content-Type", "application/json")
	if role != "" {
		req.Header.Set("Authorization", "Bearer "+testToken(t, 42, role))
	}
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	return rr
}

func decodeBody(t *testing.T, rr *httptest.ResponseRecorder, v interface{}) {
	t.Helper()
	if err := json.NewDecoder(rr.Body).Decode(v); err != nil {
		t.Fatalf("failed to decode response: %v (body=%s)", err, rr.Body.String())
	}
}

func sampleOrder(id int64) *models.Order {
	return &models.Order{
		ID:             id,
		OrderNumber:    "ORD-20260310-0001",
		TableID:        3,
		OperatorID:     42,
		Status:         enum.OrderStatusPending,
		PaymentStatus:  enum.PaymentStatusPending,
		Subtotal:       decimal.RequireFromString("30000"),
		DiscountAmount: decimal.Zero,
		TaxRate:        decimal.RequireFromString("8"),
		TaxAmount:      decimal.RequireFromString("2400"),
		FinalAmount:    decimal.RequireFromString("32400"),
		OrderedAt:      testNow,
		UpdatedAt:      testNow,
		Lines: []models.OrderLine{{
			OrderID:   id,
			ProductID: 1,
			Quantity:  2,
			UnitPrice: decimal.RequireFromString("15000"),
			LineTotal: decimal.RequireFromString("30000"),
		}},
	}
}

var nopLog = zerolog.Nop()

var _ handler.OrderServicer = (*service.OrderService)(nil)
var _ handler.TableServicer = (*service.TableSync)(nil)
var _ handler.PromotionServicer = (*service.PromotionService)(nil)
var _ handler.OrderPromotionServicer = (*service.PromotionService)(nil)
var _ handler.PaymentServicer = (*service.PaymentService)(nil)
var _ handler.ReportsServicer = (*service.PaymentService)(nil)
