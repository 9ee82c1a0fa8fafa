package service

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/kopi-pos/api/internal/database"
	"github.com/kopi-pos/api/internal/enum"
	"github.com/kopi-pos/api/internal/models"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

// --- Mock implementations ---

// mockTx implements pgx.Tx with only the methods we need.
// The unused methods panic so we catch accidental calls.
type mockTx struct {
	mu          sync.Mutex
	commitErr   error
	rollbackErr error
	commits     int
}

func (m *mockTx) Begin(ctx context.Context) (pgx.Tx, error) { panic("not implemented") }
func (m *mockTx) Commit(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.commits++
	return m.commitErr
}
func (m *mockTx) Rollback(ctx context.Context) error { return m.rollbackErr }
func (m *mockTx) CopyFrom(ctx context.Context, tableName pgx.Identifier, columnNames []string, rowSrc pgx.CopyFromSource) (int64, error) {
	panic("not implemented")
}
func (m *mockTx) SendBatch(ctx context.Context, b *pgx.Batch) pgx.BatchResults {
	panic("not implemented")
}
func (m *mockTx) LargeObjects() pgx.LargeObjects { panic("not implemented") }
func (m *mockTx) Prepare(ctx context.Context, name, sql string) (*pgconn.StatementDescription, error) {
	panic("not implemented")
}
func (m *mockTx) Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error) {
	panic("not implemented")
}
func (m *mockTx) Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error) {
	panic("not implemented")
}
func (m *mockTx) QueryRow(ctx context.Context, sql string, args ...any) pgx.Row {
	panic("not implemented")
}
func (m *mockTx) Conn() *pgx.Conn { panic("not implemented") }

// mockTxBeginner implements TxBeginner.
type mockTxBeginner struct {
	tx  pgx.Tx
	err error
}

func (m *mockTxBeginner) Begin(ctx context.Context) (pgx.Tx, error) {
	return m.tx, m.err
}

// fakeStore is an in-memory Store. Writes apply immediately; there is no
// rollback, so tests only rely on it where the engine validates before
// writing.
type fakeStore struct {
	mu sync.Mutex

	orders      map[int64]database.Order
	lines       map[int64][]database.OrderLine
	products    map[int64]database.Product
	promotions  map[int64]database.Promotion
	usages      []database.PromotionUsage
	tables      map[int64]database.CafeTable
	settlements map[int64]database.Settlement

	nextOrderID int64
	nextPromoID int64

	// failures holds errors returned by the next calls to a method, in order.
	failures map[string][]error
	calls    map[string]int
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		orders:      map[int64]database.Order{},
		lines:       map[int64][]database.OrderLine{},
		products:    map[int64]database.Product{},
		promotions:  map[int64]database.Promotion{},
		tables:      map[int64]database.CafeTable{},
		settlements: map[int64]database.Settlement{},
		failures:    map[string][]error{},
		calls:       map[string]int{},
	}
}

// hit records a call and pops an injected failure. Caller holds mu.
func (f *fakeStore) hit(method string) error {
	f.calls[method]++
	if errs := f.failures[method]; len(errs) > 0 {
		f.failures[method] = errs[1:]
		return errs[0]
	}
	return nil
}

func (f *fakeStore) failNext(method string, errs ...error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failures[method] = append(f.failures[method], errs...)
}

func (f *fakeStore) callCount(method string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[method]
}

// --- seeding helpers ---

func (f *fakeStore) addTable(id int64, status string, active bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.tables[id] = database.CafeTable{ID: id, Name: fmt.Sprintf("T%d", id), Capacity: 4, Status: status, IsActive: active}
}

func (f *fakeStore) addProduct(id int64, price string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.products[id] = database.Product{ID: id, Name: "product", Price: decimalToNumeric(decimal.RequireFromString(price)), IsActive: true}
}

func (f *fakeStore) addPromotion(p models.Promotion) int64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	if p.ID == 0 {
		f.nextPromoID++
		p.ID = f.nextPromoID + 100
	}
	f.promotions[p.ID] = database.Promotion{
		ID:                p.ID,
		Name:              p.Name,
		DiscountType:      p.DiscountType,
		DiscountValue:     decimalToNumeric(p.DiscountValue),
		MinOrderAmount:    decimalToNumeric(p.MinOrderAmount),
		MaxDiscountAmount: decimalToNumeric(p.MaxDiscountAmount),
		StartDate:         ptrTimestamptz(p.StartDate),
		EndDate:           ptrTimestamptz(p.EndDate),
		UsageLimit:        p.UsageLimit,
		UsageCount:        p.UsageCount,
		IsActive:          p.Active,
	}
	return p.ID
}

// setOrderStatus forces an order's status, bypassing the state machine.
func (f *fakeStore) setOrderStatus(id int64, status string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	o := f.orders[id]
	o.Status = status
	f.orders[id] = o
}

func (f *fakeStore) order(id int64) database.Order {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.orders[id]
}

func (f *fakeStore) table(id int64) database.CafeTable {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.tables[id]
}

func (f *fakeStore) promotion(id int64) database.Promotion {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.promotions[id]
}

func (f *fakeStore) settlementCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.settlements)
}

func (f *fakeStore) usageCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.usages)
}

// --- Store implementation ---

func isOpenStatus(s string) bool {
	return s != enum.OrderStatusCompleted && s != enum.OrderStatusCancelled
}

func (f *fakeStore) GetNextOrderNumber(ctx context.Context) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.hit("GetNextOrderNumber"); err != nil {
		return 0, err
	}
	return int64(len(f.orders)) + 1, nil
}

func (f *fakeStore) CreateOrder(ctx context.Context, arg database.CreateOrderParams) (database.Order, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.hit("CreateOrder"); err != nil {
		return database.Order{}, err
	}
	f.nextOrderID++
	zero := decimalToNumeric(decimal.Zero)
	o := database.Order{
		ID:             f.nextOrderID,
		OrderNumber:    arg.OrderNumber,
		TableID:        arg.TableID,
		CustomerID:     arg.CustomerID,
		OperatorID:     arg.OperatorID,
		Subtotal:       zero,
		DiscountAmount: zero,
		TaxRate:        arg.TaxRate,
		TaxAmount:      zero,
		FinalAmount:    zero,
		Status:         enum.OrderStatusPending,
		PaymentStatus:  enum.PaymentStatusPending,
		Notes:          arg.Notes,
		OrderedAt:      time.Now(),
		UpdatedAt:      time.Now(),
	}
	f.orders[o.ID] = o
	return o, nil
}

func (f *fakeStore) getOrder(method string, id int64) (database.Order, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.hit(method); err != nil {
		return database.Order{}, err
	}
	o, ok := f.orders[id]
	if !ok {
		return database.Order{}, pgx.ErrNoRows
	}
	return o, nil
}

func (f *fakeStore) GetOrder(ctx context.Context, id int64) (database.Order, error) {
	return f.getOrder("GetOrder", id)
}

func (f *fakeStore) GetOrderForUpdate(ctx context.Context, id int64) (database.Order, error) {
	return f.getOrder("GetOrderForUpdate", id)
}

func (f *fakeStore) GetOpenOrderByTable(ctx context.Context, tableID int64) (database.Order, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.hit("GetOpenOrderByTable"); err != nil {
		return database.Order{}, err
	}
	for _, o := range f.orders {
		if o.TableID == tableID && isOpenStatus(o.Status) {
			return o, nil
		}
	}
	return database.Order{}, pgx.ErrNoRows
}

func (f *fakeStore) CountOpenOrdersByTable(ctx context.Context, tableID int64) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.hit("CountOpenOrdersByTable"); err != nil {
		return 0, err
	}
	var n int64
	for _, o := range f.orders {
		if o.TableID == tableID && holdsTable(o) {
			n++
		}
	}
	return n, nil
}

func holdsTable(o database.Order) bool {
	switch {
	case o.Status == enum.OrderStatusCancelled:
		return false
	case o.Status == enum.OrderStatusCompleted:
		return o.PaymentStatus == enum.PaymentStatusPending || o.PaymentStatus == enum.PaymentStatusFailed
	}
	return true
}

func (f *fakeStore) AppendOrderNote(ctx context.Context, arg database.AppendOrderNoteParams) (database.Order, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.hit("AppendOrderNote"); err != nil {
		return database.Order{}, err
	}
	o, ok := f.orders[arg.ID]
	if !ok {
		return database.Order{}, pgx.ErrNoRows
	}
	notes := arg.Note
	if o.Notes.String != "" {
		notes = o.Notes.String + "\n" + arg.Note
	}
	o.Notes = optText(notes)
	o.UpdatedAt = time.Now()
	f.orders[arg.ID] = o
	return o, nil
}

func (f *fakeStore) ListOrders(ctx context.Context, arg database.ListOrdersParams) ([]database.Order, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.hit("ListOrders"); err != nil {
		return nil, err
	}
	out := []database.Order{}
	for _, o := range f.orders {
		if arg.Status.Valid && o.Status != arg.Status.String {
			continue
		}
		if o.OrderedAt.Before(arg.Start) || !o.OrderedAt.Before(arg.End) {
			continue
		}
		out = append(out, o)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID > out[j].ID })
	if int32(len(out)) > arg.Limit {
		out = out[:arg.Limit]
	}
	return out, nil
}

func (f *fakeStore) UpdateOrderTotals(ctx context.Context, arg database.UpdateOrderTotalsParams) (database.Order, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.hit("UpdateOrderTotals"); err != nil {
		return database.Order{}, err
	}
	o, ok := f.orders[arg.ID]
	if !ok || o.PaymentStatus != enum.PaymentStatusPending {
		return database.Order{}, pgx.ErrNoRows
	}
	o.Subtotal = arg.Subtotal
	o.DiscountAmount = arg.DiscountAmount
	o.TaxAmount = arg.TaxAmount
	o.FinalAmount = arg.FinalAmount
	o.PromotionID = arg.PromotionID
	o.UpdatedAt = time.Now()
	f.orders[arg.ID] = o
	return o, nil
}

func (f *fakeStore) UpdateOrderStatus(ctx context.Context, arg database.UpdateOrderStatusParams) (database.Order, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.hit("UpdateOrderStatus"); err != nil {
		return database.Order{}, err
	}
	o, ok := f.orders[arg.ID]
	if !ok || o.Status != arg.FromStatus {
		return database.Order{}, pgx.ErrNoRows
	}
	o.Status = arg.Status
	o.UpdatedAt = time.Now()
	f.orders[arg.ID] = o
	return o, nil
}

func (f *fakeStore) UpdatePaymentStatus(ctx context.Context, arg database.UpdatePaymentStatusParams) (database.Order, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.hit("UpdatePaymentStatus"); err != nil {
		return database.Order{}, err
	}
	o, ok := f.orders[arg.ID]
	if !ok || o.PaymentStatus != arg.FromPaymentStatus {
		return database.Order{}, pgx.ErrNoRows
	}
	o.PaymentStatus = arg.PaymentStatus
	o.UpdatedAt = time.Now()
	f.orders[arg.ID] = o
	return o, nil
}

func (f *fakeStore) MarkOrderPaid(ctx context.Context, arg database.MarkOrderPaidParams) (database.Order, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.hit("MarkOrderPaid"); err != nil {
		return database.Order{}, err
	}
	o, ok := f.orders[arg.ID]
	if !ok || o.PaymentStatus != enum.PaymentStatusPending || o.Status != enum.OrderStatusCompleted {
		return database.Order{}, pgx.ErrNoRows
	}
	o.PaymentStatus = enum.PaymentStatusPaid
	o.PaymentMethod = optText(arg.PaymentMethod)
	o.UpdatedAt = time.Now()
	f.orders[arg.ID] = o
	return o, nil
}

func (f *fakeStore) ListOrderLines(ctx context.Context, orderID int64) ([]database.OrderLine, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.hit("ListOrderLines"); err != nil {
		return nil, err
	}
	return append([]database.OrderLine(nil), f.lines[orderID]...), nil
}

func (f *fakeStore) UpsertOrderLine(ctx context.Context, arg database.UpsertOrderLineParams) (database.OrderLine, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.hit("UpsertOrderLine"); err != nil {
		return database.OrderLine{}, err
	}
	lines := f.lines[arg.OrderID]
	for i := range lines {
		if lines[i].ProductID == arg.ProductID {
			lines[i].Quantity = arg.Quantity
			lines[i].LineTotal = arg.LineTotal
			return lines[i], nil
		}
	}
	l := database.OrderLine(arg)
	f.lines[arg.OrderID] = append(lines, l)
	return l, nil
}

func (f *fakeStore) DeleteOrderLine(ctx context.Context, arg database.DeleteOrderLineParams) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.hit("DeleteOrderLine"); err != nil {
		return err
	}
	lines := f.lines[arg.OrderID]
	for i := range lines {
		if lines[i].ProductID == arg.ProductID {
			f.lines[arg.OrderID] = append(lines[:i], lines[i+1:]...)
			return nil
		}
	}
	return nil
}

func (f *fakeStore) GetProductForOrder(ctx context.Context, id int64) (database.Product, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.hit("GetProductForOrder"); err != nil {
		return database.Product{}, err
	}
	p, ok := f.products[id]
	if !ok || !p.IsActive {
		return database.Product{}, pgx.ErrNoRows
	}
	return p, nil
}

func (f *fakeStore) GetPromotion(ctx context.Context, id int64) (database.Promotion, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.hit("GetPromotion"); err != nil {
		return database.Promotion{}, err
	}
	p, ok := f.promotions[id]
	if !ok {
		return database.Promotion{}, pgx.ErrNoRows
	}
	return p, nil
}

func (f *fakeStore) ListActivePromotions(ctx context.Context) ([]database.Promotion, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.hit("ListActivePromotions"); err != nil {
		return nil, err
	}
	out := []database.Promotion{}
	for _, p := range f.promotions {
		if p.IsActive {
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (f *fakeStore) CreatePromotion(ctx context.Context, arg database.CreatePromotionParams) (database.Promotion, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.hit("CreatePromotion"); err != nil {
		return database.Promotion{}, err
	}
	f.nextPromoID++
	p := database.Promotion{
		ID:                f.nextPromoID + 100,
		Name:              arg.Name,
		Description:       arg.Description,
		DiscountType:      arg.DiscountType,
		DiscountValue:     arg.DiscountValue,
		MinOrderAmount:    arg.MinOrderAmount,
		MaxDiscountAmount: arg.MaxDiscountAmount,
		StartDate:         arg.StartDate,
		EndDate:           arg.EndDate,
		UsageLimit:        arg.UsageLimit,
		IsActive:          arg.IsActive,
		CreatedAt:         time.Now(),
		UpdatedAt:         time.Now(),
	}
	f.promotions[p.ID] = p
	return p, nil
}

func (f *fakeStore) DeactivatePromotion(ctx context.Context, id int64) (database.Promotion, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.hit("DeactivatePromotion"); err != nil {
		return database.Promotion{}, err
	}
	p, ok := f.promotions[id]
	if !ok {
		return database.Promotion{}, pgx.ErrNoRows
	}
	p.IsActive = false
	f.promotions[id] = p
	return p, nil
}

func (f *fakeStore) IncrementPromotionUsageIfAvailable(ctx context.Context, arg database.IncrementPromotionUsageIfAvailableParams) (database.Promotion, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.hit("IncrementPromotionUsageIfAvailable"); err != nil {
		return database.Promotion{}, err
	}
	p, ok := f.promotions[arg.ID]
	if !ok || !p.IsActive || (p.UsageLimit != 0 && p.UsageCount >= p.UsageLimit) {
		return database.Promotion{}, pgx.ErrNoRows
	}
	if p.StartDate.Valid && p.StartDate.Time.After(arg.Now) {
		return database.Promotion{}, pgx.ErrNoRows
	}
	if p.EndDate.Valid && p.EndDate.Time.Before(arg.Now) {
		return database.Promotion{}, pgx.ErrNoRows
	}
	p.UsageCount++
	f.promotions[arg.ID] = p
	return p, nil
}

func (f *fakeStore) CreatePromotionUsage(ctx context.Context, arg database.CreatePromotionUsageParams) (database.PromotionUsage, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.hit("CreatePromotionUsage"); err != nil {
		return database.PromotionUsage{}, err
	}
	u := database.PromotionUsage{
		ID:             int64(len(f.usages) + 1),
		OrderID:        arg.OrderID,
		PromotionID:    arg.PromotionID,
		DiscountAmount: arg.DiscountAmount,
		AppliedAt:      time.Now(),
	}
	f.usages = append(f.usages, u)
	return u, nil
}

func (f *fakeStore) GetPromotionUsageStats(ctx context.Context, promotionID int64) (database.GetPromotionUsageStatsRow, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.hit("GetPromotionUsageStats"); err != nil {
		return database.GetPromotionUsageStatsRow{}, err
	}
	total := decimal.Zero
	orders := map[int64]bool{}
	var n int64
	for _, u := range f.usages {
		if u.PromotionID != promotionID {
			continue
		}
		n++
		total = total.Add(numericToDecimal(u.DiscountAmount))
		orders[u.OrderID] = true
	}
	return database.GetPromotionUsageStatsRow{
		UsageCount:     n,
		TotalDiscount:  decimalToNumeric(total),
		AffectedOrders: int64(len(orders)),
	}, nil
}

func (f *fakeStore) getTable(method string, id int64) (database.CafeTable, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.hit(method); err != nil {
		return database.CafeTable{}, err
	}
	t, ok := f.tables[id]
	if !ok {
		return database.CafeTable{}, pgx.ErrNoRows
	}
	return t, nil
}

func (f *fakeStore) GetTable(ctx context.Context, id int64) (database.CafeTable, error) {
	return f.getTable("GetTable", id)
}

func (f *fakeStore) GetTableForUpdate(ctx context.Context, id int64) (database.CafeTable, error) {
	return f.getTable("GetTableForUpdate", id)
}

func (f *fakeStore) ListTables(ctx context.Context) ([]database.CafeTable, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.hit("ListTables"); err != nil {
		return nil, err
	}
	out := []database.CafeTable{}
	for _, t := range f.tables {
		if t.IsActive {
			out = append(out, t)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (f *fakeStore) UpdateTableStatus(ctx context.Context, arg database.UpdateTableStatusParams) (database.CafeTable, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.hit("UpdateTableStatus"); err != nil {
		return database.CafeTable{}, err
	}
	t, ok := f.tables[arg.ID]
	if !ok || t.Status != arg.FromStatus {
		return database.CafeTable{}, pgx.ErrNoRows
	}
	t.Status = arg.Status
	t.UpdatedAt = time.Now()
	f.tables[arg.ID] = t
	return t, nil
}

func (f *fakeStore) CreateSettlement(ctx context.Context, arg database.CreateSettlementParams) (database.Settlement, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.hit("CreateSettlement"); err != nil {
		return database.Settlement{}, err
	}
	if _, dup := f.settlements[arg.OrderID]; dup {
		return database.Settlement{}, &pgconn.PgError{Code: "23505", ConstraintName: "settlements_order_id_key"}
	}
	s := database.Settlement{
		ID:              arg.ID,
		OrderID:         arg.OrderID,
		PaymentMethod:   arg.PaymentMethod,
		TenderedAmount:  arg.TenderedAmount,
		FinalAmount:     arg.FinalAmount,
		ChangeAmount:    arg.ChangeAmount,
		TransactionCode: arg.TransactionCode,
		Reference:       arg.Reference,
		OperatorID:      arg.OperatorID,
		SettledAt:       time.Now(),
	}
	f.settlements[arg.OrderID] = s
	return s, nil
}

func (f *fakeStore) GetSettlementByOrder(ctx context.Context, orderID int64) (database.Settlement, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.hit("GetSettlementByOrder"); err != nil {
		return database.Settlement{}, err
	}
	s, ok := f.settlements[orderID]
	if !ok {
		return database.Settlement{}, pgx.ErrNoRows
	}
	return s, nil
}

func (f *fakeStore) GetPaymentStatistics(ctx context.Context, arg database.GetPaymentStatisticsParams) ([]database.GetPaymentStatisticsRow, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.hit("GetPaymentStatistics"); err != nil {
		return nil, err
	}
	byMethod := map[string]*database.GetPaymentStatisticsRow{}
	for _, s := range f.settlements {
		if f.orders[s.OrderID].PaymentStatus != enum.PaymentStatusPaid {
			continue
		}
		if s.SettledAt.Before(arg.Start) || !s.SettledAt.Before(arg.End) {
			continue
		}
		row, ok := byMethod[s.PaymentMethod]
		if !ok {
			row = &database.GetPaymentStatisticsRow{PaymentMethod: s.PaymentMethod, Total: decimalToNumeric(decimal.Zero)}
			byMethod[s.PaymentMethod] = row
		}
		row.Count++
		row.Total = decimalToNumeric(numericToDecimal(row.Total).Add(numericToDecimal(s.FinalAmount)))
	}
	out := []database.GetPaymentStatisticsRow{}
	for _, r := range byMethod {
		out = append(out, *r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].PaymentMethod < out[j].PaymentMethod })
	return out, nil
}

// --- recording notifier ---

type recordingNotifier struct {
	mu        sync.Mutex
	completed []string
	failed    []string
	tables    []string
}

func (r *recordingNotifier) OnPaymentCompleted(ctx context.Context, order *models.Order, method string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.completed = append(r.completed, order.OrderNumber+":"+method)
}

func (r *recordingNotifier) OnPaymentFailed(ctx context.Context, order *models.Order, reason string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.failed = append(r.failed, reason)
}

func (r *recordingNotifier) OnTableStatusChanged(ctx context.Context, table models.Table, from, to string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tables = append(r.tables, from+"->"+to)
}

func (r *recordingNotifier) counts() (completed, failed, tables int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.completed), len(r.failed), len(r.tables)
}

// --- Test helpers ---

var (
	testNow      = time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	testOperator = models.Operator{UserID: 42, Role: enum.RoleCashier}
)

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

// newTestEngine creates an Engine over store with no tax and a fixed clock.
func newTestEngine(t *testing.T, store *fakeStore) (*Engine, *recordingNotifier, *mockTx) {
	t.Helper()
	tx := &mockTx{}
	pool := &mockTxBeginner{tx: tx}
	rec := &recordingNotifier{}
	eng := NewEngine(pool, store, func(db database.DBTX) Store { return store }, NewFanout(rec), Config{
		VATPercent:     decimal.Zero,
		PersistTimeout: time.Second,
		MaxRetries:     2,
		Logger:         zerolog.Nop(),
		Now:            func() time.Time { return testNow },
	})
	return eng, rec, tx
}

// seedOrder opens an order on table 1 holding lines of product 1 at price.
func seedOrder(t *testing.T, eng *Engine, store *fakeStore, price string, qty int32) *models.Order {
	t.Helper()
	if _, ok := store.tables[1]; !ok {
		store.addTable(1, enum.TableStatusAvailable, true)
	}
	store.addProduct(1, price)
	o, err := eng.Orders.AddLineToTable(context.Background(), testOperator, 1, 1, qty)
	if err != nil {
		t.Fatalf("seed order: %v", err)
	}
	return o
}

func transientErr() error {
	return &pgconn.PgError{Code: "40001", Message: "could not serialize access"}
}
