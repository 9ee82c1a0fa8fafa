package handler

import (
	"time"

	"github.com/google/uuid"

	"github.com/kopi-pos/api/internal/models"
)

type orderLineResponse struct {
	ProductID int64  `json:"product_id"`
	Quantity  int32  `json:"quantity"`
	UnitPrice string `json:"unit_price"`
	LineTotal string `json:"line_total"`
}

type orderResponse struct {
	ID             int64               `json:"id"`
	OrderNumber    string              `json:"order_number"`
	TableID        int64               `json:"table_id"`
	CustomerID     *int64              `json:"customer_id"`
	OperatorID     int64               `json:"operator_id"`
	Status         string              `json:"status"`
	PaymentStatus  string              `json:"payment_status"`
	PaymentMethod  *string             `json:"payment_method"`
	PromotionID    *int64              `json:"promotion_id"`
	Subtotal       string              `json:"subtotal"`
	DiscountAmount string              `json:"discount_amount"`
	TaxRate        string              `json:"tax_rate"`
	TaxAmount      string              `json:"tax_amount"`
	FinalAmount    string              `json:"final_amount"`
	Notes          *string             `json:"notes"`
	OrderedAt      time.Time           `json:"ordered_at"`
	UpdatedAt      time.Time           `json:"updated_at"`
	Lines          []orderLineResponse `json:"lines"`
}

func toOrderResponse(o *models.Order) orderResponse {
	resp := orderResponse{
		ID:             o.ID,
		OrderNumber:    o.OrderNumber,
		TableID:        o.TableID,
		CustomerID:     o.CustomerID,
		OperatorID:     o.OperatorID,
		Status:         o.Status,
		PaymentStatus:  o.PaymentStatus,
		PromotionID:    o.PromotionID,
		Subtotal:       o.Subtotal.StringFixed(2),
		DiscountAmount: o.DiscountAmount.StringFixed(2),
		TaxRate:        o.TaxRate.String(),
		TaxAmount:      o.TaxAmount.StringFixed(2),
		FinalAmount:    o.FinalAmount.StringFixed(2),
		OrderedAt:      o.OrderedAt,
		UpdatedAt:      o.UpdatedAt,
		Lines:          make([]orderLineResponse, len(o.Lines)),
	}
	if o.PaymentMethod != "" {
		m := o.PaymentMethod
		resp.PaymentMethod = &m
	}
	if o.Notes != "" {
		n := o.Notes
		resp.Notes = &n
	}
	for i, l := range o.Lines {
		resp.Lines[i] = orderLineResponse{
			ProductID: l.ProductID,
			Quantity:  l.Quantity,
			UnitPrice: l.UnitPrice.StringFixed(2),
			LineTotal: l.LineTotal.StringFixed(2),
		}
	}
	return resp
}

type tableResponse struct {
	ID        int64     `json:"id"`
	Name      string    `json:"name"`
	Capacity  int32     `json:"capacity"`
	Status    string    `json:"status"`
	UpdatedAt time.Time `json:"updated_at"`
}

func toTableResponse(t models.Table) tableResponse {
	return tableResponse{
		ID:        t.ID,
		Name:      t.Name,
		Capacity:  t.Capacity,
		Status:    t.Status,
		UpdatedAt: t.UpdatedAt,
	}
}

type promotionResponse struct {
	ID                int64      `json:"id"`
	Name              string     `json:"name"`
	Description       string     `json:"description"`
	DiscountType      string     `json:"discount_type"`
	DiscountValue     string     `json:"discount_value"`
	MinOrderAmount    string     `json:"min_order_amount"`
	MaxDiscountAmount *string    `json:"max_discount_amount"`
	StartDate         *time.Time `json:"start_date"`
	EndDate           *time.Time `json:"end_date"`
	UsageLimit        *int32     `json:"usage_limit"`
	UsageCount        int32      `json:"usage_count"`
	Active            bool       `json:"active"`
}

func toPromotionResponse(p models.Promotion) promotionResponse {
	resp := promotionResponse{
		ID:             p.ID,
		Name:           p.Name,
		Description:    p.Description,
		DiscountType:   p.DiscountType,
		DiscountValue:  p.DiscountValue.String(),
		MinOrderAmount: p.MinOrderAmount.StringFixed(2),
		StartDate:      p.StartDate,
		EndDate:        p.EndDate,
		UsageCount:     p.UsageCount,
		Active:         p.Active,
	}
	if p.MaxDiscountAmount.IsPositive() {
		s := p.MaxDiscountAmount.StringFixed(2)
		resp.MaxDiscountAmount = &s
	}
	if p.UsageLimit > 0 {
		l := p.UsageLimit
		resp.UsageLimit = &l
	}
	return resp
}

type promotionStatsResponse struct {
	PromotionID    int64  `json:"promotion_id"`
	UsageCount     int64  `json:"usage_count"`
	TotalDiscount  string `json:"total_discount"`
	AffectedOrders int64  `json:"affected_orders"`
}

type applicablePromotionResponse struct {
	promotionResponse
	Discount string `json:"discount"`
}

type settlementResponse struct {
	ID              uuid.UUID `json:"id"`
	OrderID         int64     `json:"order_id"`
	PaymentMethod   string    `json:"payment_method"`
	TenderedAmount  string    `json:"tendered_amount"`
	FinalAmount     string    `json:"final_amount"`
	ChangeAmount    string    `json:"change_amount"`
	TransactionCode *string   `json:"transaction_code"`
	Reference       string    `json:"reference"`
	OperatorID      int64     `json:"operator_id"`
	SettledAt       time.Time `json:"settled_at"`
}

func toSettlementResponse(s *models.Settlement) settlementResponse {
	return settlementResponse{
		ID:              s.ID,
		OrderID:         s.OrderID,
		PaymentMethod:   s.Method,
		TenderedAmount:  s.TenderedAmount.StringFixed(2),
		FinalAmount:     s.FinalAmount.StringFixed(2),
		ChangeAmount:    s.ChangeAmount.StringFixed(2),
		TransactionCode: s.TransactionCode,
		Reference:       s.Reference,
		OperatorID:      s.OperatorID,
		SettledAt:       s.SettledAt,
	}
}
