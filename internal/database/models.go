package database

import (
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgtype"
)

type CafeTable struct {
	ID        int64     `json:"id"`
	Name      string    `json:"name"`
	Capacity  int32     `json:"capacity"`
	Status    string    `json:"status"`
	IsActive  bool      `json:"is_active"`
	UpdatedAt time.Time `json:"updated_at"`
}

type Order struct {
	ID             int64          `json:"id"`
	OrderNumber    string         `json:"order_number"`
	TableID        int64          `json:"table_id"`
	CustomerID     pgtype.Int8    `json:"customer_id"`
	OperatorID     int64          `json:"operator_id"`
	Subtotal       pgtype.Numeric `json:"subtotal"`
	DiscountAmount pgtype.Numeric `json:"discount_amount"`
	TaxRate        pgtype.Numeric `json:"tax_rate"`
	TaxAmount      pgtype.Numeric `json:"tax_amount"`
	FinalAmount    pgtype.Numeric `json:"final_amount"`
	PaymentMethod  pgtype.Text    `json:"payment_method"`
	Status         string         `json:"status"`
	PaymentStatus  string         `json:"payment_status"`
	Notes          pgtype.Text    `json:"notes"`
	PromotionID    pgtype.Int8    `json:"promotion_id"`
	OrderedAt      time.Time      `json:"ordered_at"`
	UpdatedAt      time.Time      `json:"updated_at"`
}

type OrderLine struct {
	OrderID   int64          `json:"order_id"`
	ProductID int64          `json:"product_id"`
	Quantity  int32          `json:"quantity"`
	UnitPrice pgtype.Numeric `json:"unit_price"`
	LineTotal pgtype.Numeric `json:"line_total"`
}

type Product struct {
	ID       int64          `json:"id"`
	Name     string         `json:"name"`
	Price    pgtype.Numeric `json:"price"`
	IsActive bool           `json:"is_active"`
}

type Promotion struct {
	ID                int64              `json:"id"`
	Name              string             `json:"name"`
	Description       pgtype.Text        `json:"description"`
	DiscountType      string             `json:"discount_type"`
	DiscountValue     pgtype.Numeric     `json:"discount_value"`
	MinOrderAmount    pgtype.Numeric     `json:"min_order_amount"`
	MaxDiscountAmount pgtype.Numeric     `json:"max_discount_amount"`
	StartDate         pgtype.Timestamptz `json:"start_date"`
	EndDate           pgtype.Timestamptz `json:"end_date"`
	UsageLimit        int32              `json:"usage_limit"`
	UsageCount        int32              `json:"usage_count"`
	IsActive          bool               `json:"is_active"`
	CreatedAt         time.Time          `json:"created_at"`
	UpdatedAt         time.Time          `json:"updated_at"`
}

type PromotionUsage struct {
	ID             int64          `json:"id"`
	OrderID        int64          `json:"order_id"`
	PromotionID    int64          `json:"promotion_id"`
	DiscountAmount pgtype.Numeric `json:"discount_amount"`
	AppliedAt      time.Time      `json:"applied_at"`
}

type Settlement struct {
	ID              uuid.UUID      `json:"id"`
	OrderID         int64          `json:"order_id"`
	PaymentMethod   string         `json:"payment_method"`
	TenderedAmount  pgtype.Numeric `json:"tendered_amount"`
	FinalAmount     pgtype.Numeric `json:"final_amount"`
	ChangeAmount    pgtype.Numeric `json:"change_amount"`
	TransactionCode pgtype.Text    `json:"transaction_code"`
	Reference       string         `json:"reference"`
	OperatorID      int64          `json:"operator_id"`
	SettledAt       time.Time      `json:"settled_at"`
}
