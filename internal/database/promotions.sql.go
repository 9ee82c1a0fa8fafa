package database

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5/pgtype"
)

const promotionColumns = `id, name, description, discount_type, discount_value, min_order_amount, max_discount_amount, start_date, end_date, usage_limit, usage_count, is_active, created_at, updated_at`

func scanPromotion(row interface{ Scan(...interface{}) error }) (Promotion, error) {
	var i Promotion
	err := row.Scan(
		&i.ID,
		&i.Name,
		&i.Description,
		&i.DiscountType,
		&i.DiscountValue,
		&i.MinOrderAmount,
		&i.MaxDiscountAmount,
		&i.StartDate,
		&i.EndDate,
		&i.UsageLimit,
		&i.UsageCount,
		&i.IsActive,
		&i.CreatedAt,
		&i.UpdatedAt,
	)
	return i, err
}

const getPromotion = `-- name: GetPromotion :one
SELECT ` + promotionColumns + `
FROM promotions
WHERE id = $1
`

func (q *Queries) GetPromotion(ctx context.Context, id int64) (Promotion, error) {
	return scanPromotion(q.db.QueryRow(ctx, getPromotion, id))
}

const listActivePromotions = `-- name: ListActivePromotions :many
SELECT ` + promotionColumns + `
FROM promotions
WHERE is_active = true
ORDER BY id
`

func (q *Queries) ListActivePromotions(ctx context.Context) ([]Promotion, error) {
	rows, err := q.db.Query(ctx, listActivePromotions)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	items := []Promotion{}
	for rows.Next() {
		i, err := scanPromotion(rows)
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

const createPromotion = `-- name: CreatePromotion :one
INSERT INTO promotions (name, description, discount_type, discount_value, min_order_amount,
                        max_discount_amount, start_date, end_date, usage_limit, is_active)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
RETURNING ` + promotionColumns

type CreatePromotionParams struct {
	Name              string             `json:"name"`
	Description       pgtype.Text        `json:"description"`
	DiscountType      string             `json:"discount_type"`
	DiscountValue     pgtype.Numeric     `json:"discount_value"`
	MinOrderAmount    pgtype.Numeric     `json:"min_order_amount"`
	MaxDiscountAmount pgtype.Numeric     `json:"max_discount_amount"`
	StartDate         pgtype.Timestamptz `json:"start_date"`
	EndDate           pgtype.Timestamptz `json:"end_date"`
	UsageLimit        int32              `json:"usage_limit"`
	IsActive          bool               `json:"is_active"`
}

func (q *Queries) CreatePromotion(ctx context.Context, arg CreatePromotionParams) (Promotion, error) {
	row := q.db.QueryRow(ctx, createPromotion,
		arg.Name,
		arg.Description,
		arg.DiscountType,
		arg.DiscountValue,
		arg.MinOrderAmount,
		arg.MaxDiscountAmount,
		arg.StartDate,
		arg.EndDate,
		arg.UsageLimit,
		arg.IsActive,
	)
	return scanPromotion(row)
}

const deactivatePromotion = `-- name: DeactivatePromotion :one
UPDATE promotions
SET is_active = false, updated_at = now()
WHERE id = $1
RETURNING ` + promotionColumns

func (q *Queries) DeactivatePromotion(ctx context.Context, id int64) (Promotion, error) {
	return scanPromotion(q.db.QueryRow(ctx, deactivatePromotion, id))
}

const incrementPromotionUsageIfAvailable = `-- name: IncrementPromotionUsageIfAvailable :one
UPDATE promotions
SET usage_count = usage_count + 1, updated_at = now()
WHERE id = $1
  AND is_active = true
  AND (usage_limit = 0 OR usage_count < usage_limit)
  AND (start_date IS NULL OR start_date <= $2)
  AND (end_date IS NULL OR end_date >= $2)
RETURNING ` + promotionColumns

type IncrementPromotionUsageIfAvailableParams struct {
	ID  int64     `json:"id"`
	Now time.Time `json:"now"`
}

// IncrementPromotionUsageIfAvailable consumes one usage slot. It returns
// pgx.ErrNoRows when the promotion is exhausted, inactive or out of window.
func (q *Queries) IncrementPromotionUsageIfAvailable(ctx context.Context, arg IncrementPromotionUsageIfAvailableParams) (Promotion, error) {
	return scanPromotion(q.db.QueryRow(ctx, incrementPromotionUsageIfAvailable, arg.ID, arg.Now))
}

const createPromotionUsage = `-- name: CreatePromotionUsage :one
INSERT INTO promotion_usages (order_id, promotion_id, discount_amount)
VALUES ($1, $2, $3)
RETURNING id, order_id, promotion_id, discount_amount, applied_at
`

type CreatePromotionUsageParams struct {
	OrderID        int64          `json:"order_id"`
	PromotionID    int64          `json:"promotion_id"`
	DiscountAmount pgtype.Numeric `json:"discount_amount"`
}

func (q *Queries) CreatePromotionUsage(ctx context.Context, arg CreatePromotionUsageParams) (PromotionUsage, error) {
	row := q.db.QueryRow(ctx, createPromotionUsage, arg.OrderID, arg.PromotionID, arg.DiscountAmount)
	var i PromotionUsage
	err := row.Scan(
		&i.ID,
		&i.OrderID,
		&i.PromotionID,
		&i.DiscountAmount,
		&i.AppliedAt,
	)
	return i, err
}

const getPromotionUsageStats = `-- name: GetPromotionUsageStats :one
SELECT COUNT(*)::bigint AS usage_count,
       COALESCE(SUM(discount_amount), 0)::numeric AS total_discount,
       COUNT(DISTINCT order_id)::bigint AS affected_orders
FROM promotion_usages
WHERE promotion_id = $1
`

type GetPromotionUsageStatsRow struct {
	UsageCount     int64          `json:"usage_count"`
	TotalDiscount  pgtype.Numeric `json:"total_discount"`
	AffectedOrders int64          `json:"affected_orders"`
}

func (q *Queries) GetPromotionUsageStats(ctx context.Context, promotionID int64) (GetPromotionUsageStatsRow, error) {
	row := q.db.QueryRow(ctx, getPromotionUsageStats, promotionID)
	var i GetPromotionUsageStatsRow
	err := row.Scan(&i.UsageCount, &i.TotalDiscount, &i.AffectedOrders)
	return i, err
}
