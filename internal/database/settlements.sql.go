package database

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgtype"
)

const settlementColumns = `id, order_id, payment_method, tendered_amount, final_amount, change_amount, transaction_code, reference, operator_id, settled_at`

func scanSettlement(row interface{ Scan(...interface{}) error }) (Settlement, error) {
	var i Settlement
	err := row.Scan(
		&i.ID,
		&i.OrderID,
		&i.PaymentMethod,
		&i.TenderedAmount,
		&i.FinalAmount,
		&i.ChangeAmount,
		&i.TransactionCode,
		&i.Reference,
		&i.OperatorID,
		&i.SettledAt,
	)
	return i, err
}

const createSettlement = `-- name: CreateSettlement :one
INSERT INTO settlements (id, order_id, payment_method, tendered_amount, final_amount,
                         change_amount, transaction_code, reference, operator_id)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
RETURNING ` + settlementColumns

type CreateSettlementParams struct {
	ID              uuid.UUID      `json:"id"`
	OrderID         int64          `json:"order_id"`
	PaymentMethod   string         `json:"payment_method"`
	TenderedAmount  pgtype.Numeric `json:"tendered_amount"`
	FinalAmount     pgtype.Numeric `json:"final_amount"`
	ChangeAmount    pgtype.Numeric `json:"change_amount"`
	TransactionCode pgtype.Text    `json:"transaction_code"`
	Reference       string         `json:"reference"`
	OperatorID      int64          `json:"operator_id"`
}

func (q *Queries) CreateSettlement(ctx context.Context, arg CreateSettlementParams) (Settlement, error) {
	row := q.db.QueryRow(ctx, createSettlement,
		arg.ID,
		arg.OrderID,
		arg.PaymentMethod,
		arg.TenderedAmount,
		arg.FinalAmount,
		arg.ChangeAmount,
		arg.TransactionCode,
		arg.Reference,
		arg.OperatorID,
	)
	return scanSettlement(row)
}

const getSettlementByOrder = `-- name: GetSettlementByOrder :one
SELECT ` + settlementColumns + `
FROM settlements
WHERE order_id = $1
`

func (q *Queries) GetSettlementByOrder(ctx context.Context, orderID int64) (Settlement, error) {
	return scanSettlement(q.db.QueryRow(ctx, getSettlementByOrder, orderID))
}

const getPaymentStatistics = `-- name: GetPaymentStatistics :many
SELECT s.payment_method, COUNT(*)::bigint AS count, COALESCE(SUM(s.final_amount), 0)::numeric AS total
FROM settlements s
JOIN orders o ON o.id = s.order_id
WHERE o.payment_status = 'paid'
  AND s.settled_at >= $1 AND s.settled_at < $2
GROUP BY s.payment_method
ORDER BY s.payment_method
`

type GetPaymentStatisticsParams struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

type GetPaymentStatisticsRow struct {
	PaymentMethod string         `json:"payment_method"`
	Count         int64          `json:"count"`
	Total         pgtype.Numeric `json:"total"`
}

func (q *Queries) GetPaymentStatistics(ctx context.Context, arg GetPaymentStatisticsParams) ([]GetPaymentStatisticsRow, error) {
	rows, err := q.db.Query(ctx, getPaymentStatistics, arg.Start, arg.End)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	items := []GetPaymentStatisticsRow{}
	for rows.Next() {
		var i GetPaymentStatisticsRow
		if err := rows.Scan(&i.PaymentMethod, &i.Count, &i.Total); err != nil {
			return nil, err
		}
		items = append(items, i)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}
