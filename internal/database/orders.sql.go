package database

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5/pgtype"
)

const orderColumns = `id, order_number, table_id, customer_id, operator_id, subtotal, discount_amount, tax_rate, tax_amount, final_amount, payment_method, status, payment_status, notes, promotion_id, ordered_at, updated_at`

func scanOrder(row interface{ Scan(...interface{}) error }) (Order, error) {
	var i Order
	err := row.Scan(
		&i.ID,
		&i.OrderNumber,
		&i.TableID,
		&i.CustomerID,
		&i.OperatorID,
		&i.Subtotal,
		&i.DiscountAmount,
		&i.TaxRate,
		&i.TaxAmount,
		&i.FinalAmount,
		&i.PaymentMethod,
		&i.Status,
		&i.PaymentStatus,
		&i.Notes,
		&i.PromotionID,
		&i.OrderedAt,
		&i.UpdatedAt,
	)
	return i, err
}

const getNextOrderNumber = `-- name: GetNextOrderNumber :one
SELECT COALESCE(MAX(CAST(SUBSTRING(order_number FROM 5) AS BIGINT)), 0) + 1
FROM orders
`

func (q *Queries) GetNextOrderNumber(ctx context.Context) (int64, error) {
	row := q.db.QueryRow(ctx, getNextOrderNumber)
	var next int64
	err := row.Scan(&next)
	return next, err
}

const createOrder = `-- name: CreateOrder :one
INSERT INTO orders (order_number, table_id, customer_id, operator_id, tax_rate, notes)
VALUES ($1, $2, $3, $4, $5, $6)
RETURNING ` + orderColumns

type CreateOrderParams struct {
	OrderNumber string         `json:"order_number"`
	TableID     int64          `json:"table_id"`
	CustomerID  pgtype.Int8    `json:"customer_id"`
	OperatorID  int64          `json:"operator_id"`
	TaxRate     pgtype.Numeric `json:"tax_rate"`
	Notes       pgtype.Text    `json:"notes"`
}

func (q *Queries) CreateOrder(ctx context.Context, arg CreateOrderParams) (Order, error) {
	row := q.db.QueryRow(ctx, createOrder,
		arg.OrderNumber,
		arg.TableID,
		arg.CustomerID,
		arg.OperatorID,
		arg.TaxRate,
		arg.Notes,
	)
	return scanOrder(row)
}

const getOrder = `-- name: GetOrder :one
SELECT ` + orderColumns + `
FROM orders
WHERE id = $1
`

func (q *Queries) GetOrder(ctx context.Context, id int64) (Order, error) {
	return scanOrder(q.db.QueryRow(ctx, getOrder, id))
}

const getOrderForUpdate = `-- name: GetOrderForUpdate :one
SELECT ` + orderColumns + `
FROM orders
WHERE id = $1
FOR NO KEY UPDATE
`

func (q *Queries) GetOrderForUpdate(ctx context.Context, id int64) (Order, error) {
	return scanOrder(q.db.QueryRow(ctx, getOrderForUpdate, id))
}

const getOpenOrderByTable = `-- name: GetOpenOrderByTable :one
SELECT ` + orderColumns + `
FROM orders
WHERE table_id = $1 AND status NOT IN ('completed', 'cancelled')
ORDER BY id DESC
LIMIT 1
`

func (q *Queries) GetOpenOrderByTable(ctx context.Context, tableID int64) (Order, error) {
	return scanOrder(q.db.QueryRow(ctx, getOpenOrderByTable, tableID))
}

const countOpenOrdersByTable = `-- name: CountOpenOrdersByTable :one
SELECT COUNT(*) FROM orders
WHERE table_id = $1
  AND status <> 'cancelled'
  AND (status <> 'completed' OR payment_status IN ('pending', 'failed'))
`

// CountOpenOrdersByTable counts the orders still holding a table: every
// order that is neither cancelled nor completed with a settled payment.
func (q *Queries) CountOpenOrdersByTable(ctx context.Context, tableID int64) (int64, error) {
	row := q.db.QueryRow(ctx, countOpenOrdersByTable, tableID)
	var count int64
	err := row.Scan(&count)
	return count, err
}

const updateOrderTotals = `-- name: UpdateOrderTotals :one
UPDATE orders
SET subtotal = $2, discount_amount = $3, tax_amount = $4, final_amount = $5,
    promotion_id = $6, updated_at = now()
WHERE id = $1 AND payment_status = 'pending'
RETURNING ` + orderColumns

type UpdateOrderTotalsParams struct {
	ID             int64          `json:"id"`
	Subtotal       pgtype.Numeric `json:"subtotal"`
	DiscountAmount pgtype.Numeric `json:"discount_amount"`
	TaxAmount      pgtype.Numeric `json:"tax_amount"`
	FinalAmount    pgtype.Numeric `json:"final_amount"`
	PromotionID    pgtype.Int8    `json:"promotion_id"`
}

func (q *Queries) UpdateOrderTotals(ctx context.Context, arg UpdateOrderTotalsParams) (Order, error) {
	row := q.db.QueryRow(ctx, updateOrderTotals,
		arg.ID,
		arg.Subtotal,
		arg.DiscountAmount,
		arg.TaxAmount,
		arg.FinalAmount,
		arg.PromotionID,
	)
	return scanOrder(row)
}

const updateOrderStatus = `-- name: UpdateOrderStatus :one
UPDATE orders
SET status = $2, updated_at = now()
WHERE id = $1 AND status = $3
RETURNING ` + orderColumns

type UpdateOrderStatusParams struct {
	ID         int64  `json:"id"`
	Status     string `json:"status"`
	FromStatus string `json:"from_status"`
}

// UpdateOrderStatus returns pgx.ErrNoRows when the status moved underneath.
func (q *Queries) UpdateOrderStatus(ctx context.Context, arg UpdateOrderStatusParams) (Order, error) {
	return scanOrder(q.db.QueryRow(ctx, updateOrderStatus, arg.ID, arg.Status, arg.FromStatus))
}

const updatePaymentStatus = `-- name: UpdatePaymentStatus :one
UPDATE orders
SET payment_status = $2, updated_at = now()
WHERE id = $1 AND payment_status = $3
RETURNING ` + orderColumns

type UpdatePaymentStatusParams struct {
	ID                int64  `json:"id"`
	PaymentStatus     string `json:"payment_status"`
	FromPaymentStatus string `json:"from_payment_status"`
}

func (q *Queries) UpdatePaymentStatus(ctx context.Context, arg UpdatePaymentStatusParams) (Order, error) {
	return scanOrder(q.db.QueryRow(ctx, updatePaymentStatus, arg.ID, arg.PaymentStatus, arg.FromPaymentStatus))
}

const markOrderPaid = `-- name: MarkOrderPaid :one
UPDATE orders
SET payment_status = 'paid', payment_method = $2, status = 'completed', updated_at = now()
WHERE id = $1 AND payment_status = 'pending' AND status = 'completed'
RETURNING ` + orderColumns

type MarkOrderPaidParams struct {
	ID            int64  `json:"id"`
	PaymentMethod string `json:"payment_method"`
}

// MarkOrderPaid only matches a completed order whose payment is still
// pending, so replaying it after a lost commit acknowledgement is harmless.
func (q *Queries) MarkOrderPaid(ctx context.Context, arg MarkOrderPaidParams) (Order, error) {
	return scanOrder(q.db.QueryRow(ctx, markOrderPaid, arg.ID, arg.PaymentMethod))
}

const listOrderLines = `-- name: ListOrderLines :many
SELECT order_id, product_id, quantity, unit_price, line_total
FROM order_lines
WHERE order_id = $1
ORDER BY created_at, product_id
`

func (q *Queries) ListOrderLines(ctx context.Context, orderID int64) ([]OrderLine, error) {
	rows, err := q.db.Query(ctx, listOrderLines, orderID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	items := []OrderLine{}
	for rows.Next() {
		var i OrderLine
		if err := rows.Scan(
			&i.OrderID,
			&i.ProductID,
			&i.Quantity,
			&i.UnitPrice,
			&i.LineTotal,
		); err != nil {
			return nil, err
		}
		items = append(items, i)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}

const upsertOrderLine = `-- name: UpsertOrderLine :one
INSERT INTO order_lines (order_id, product_id, quantity, unit_price, line_total)
VALUES ($1, $2, $3, $4, $5)
ON CONFLICT (order_id, product_id)
DO UPDATE SET quantity = EXCLUDED.quantity, line_total = EXCLUDED.line_total
RETURNING order_id, product_id, quantity, unit_price, line_total
`

type UpsertOrderLineParams struct {
	OrderID   int64          `json:"order_id"`
	ProductID int64          `json:"product_id"`
	Quantity  int32          `json:"quantity"`
	UnitPrice pgtype.Numeric `json:"unit_price"`
	LineTotal pgtype.Numeric `json:"line_total"`
}

// UpsertOrderLine keeps the stored unit price on conflict; the price is a
// snapshot taken when the line was first inserted.
func (q *Queries) UpsertOrderLine(ctx context.Context, arg UpsertOrderLineParams) (OrderLine, error) {
	row := q.db.QueryRow(ctx, upsertOrderLine,
		arg.OrderID,
		arg.ProductID,
		arg.Quantity,
		arg.UnitPrice,
		arg.LineTotal,
	)
	var i OrderLine
	err := row.Scan(
		&i.OrderID,
		&i.ProductID,
		&i.Quantity,
		&i.UnitPrice,
		&i.LineTotal,
	)
	return i, err
}

const deleteOrderLine = `-- name: DeleteOrderLine :exec
DELETE FROM order_lines
WHERE order_id = $1 AND product_id = $2
`

type DeleteOrderLineParams struct {
	OrderID   int64 `json:"order_id"`
	ProductID int64 `json:"product_id"`
}

func (q *Queries) DeleteOrderLine(ctx context.Context, arg DeleteOrderLineParams) error {
	_, err := q.db.Exec(ctx, deleteOrderLine, arg.OrderID, arg.ProductID)
	return err
}

const getProductForOrder = `-- name: GetProductForOrder :one
SELECT id, name, price, is_active
FROM products
WHERE id = $1 AND is_active = true
`

func (q *Queries) GetProductForOrder(ctx context.Context, id int64) (Product, error) {
	row := q.db.QueryRow(ctx, getProductForOrder, id)
	var i Product
	err := row.Scan(
		&i.ID,
		&i.Name,
		&i.Price,
		&i.IsActive,
	)
	return i, err
}

const appendOrderNote = `-- name: AppendOrderNote :one
UPDATE orders
SET notes = CASE WHEN notes IS NULL OR notes = '' THEN $2 ELSE notes || E'\n' || $2 END,
    updated_at = now()
WHERE id = $1
RETURNING ` + orderColumns

type AppendOrderNoteParams struct {
	ID   int64  `json:"id"`
	Note string `json:"note"`
}

// AppendOrderNote adds a line to the order's notes.
func (q *Queries) AppendOrderNote(ctx context.Context, arg AppendOrderNoteParams) (Order, error) {
	return scanOrder(q.db.QueryRow(ctx, appendOrderNote, arg.ID, arg.Note))
}

const listOrders = `-- name: ListOrders :many
SELECT ` + orderColumns + `
FROM orders
WHERE ($1::text IS NULL OR status = $1)
  AND ordered_at >= $2 AND ordered_at < $3
ORDER BY ordered_at DESC, id DESC
LIMIT $4
`

type ListOrdersParams struct {
	Status pgtype.Text `json:"status"`
	Start  time.Time   `json:"start"`
	End    time.Time   `json:"end"`
	Limit  int32       `json:"limit"`
}

func (q *Queries) ListOrders(ctx context.Context, arg ListOrdersParams) ([]Order, error) {
	rows, err := q.db.Query(ctx, listOrders, arg.Status, arg.Start, arg.End, arg.Limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	items := []Order{}
	for rows.Next() {
		i, err := scanOrder(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, i)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}
