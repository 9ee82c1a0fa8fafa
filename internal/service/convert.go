package service

import (
	"time"

	"github.com/jackc/pgx/v5/pgtype"
	"github.com/kopi-pos/api/internal/database"
	"github.com/kopi-pos/api/internal/models"
	"github.com/shopspring/decimal"
)

// --- pgtype <-> domain helpers ---

func numericToDecimal(n pgtype.Numeric) decimal.Decimal {
	if !n.Valid {
		return decimal.Zero
	}
	val, err := n.Value()
	if err != nil || val == nil {
		return decimal.Zero
	}
	d, err := decimal.NewFromString(val.(string))
	if err != nil {
		return decimal.Zero
	}
	return d
}

func decimalToNumeric(d decimal.Decimal) pgtype.Numeric {
	var n pgtype.Numeric
	_ = n.Scan(d.StringFixed(2))
	return n
}

func int8Ptr(v pgtype.Int8) *int64 {
	if !v.Valid {
		return nil
	}
	id := v.Int64
	return &id
}

func ptrInt8(p *int64) pgtype.Int8 {
	if p == nil {
		return pgtype.Int8{}
	}
	return pgtype.Int8{Int64: *p, Valid: true}
}

func optText(s string) pgtype.Text {
	if s == "" {
		return pgtype.Text{}
	}
	return pgtype.Text{String: s, Valid: true}
}

func timePtr(ts pgtype.Timestamptz) *time.Time {
	if !ts.Valid {
		return nil
	}
	t := ts.Time
	return &t
}

func ptrTimestamptz(t *time.Time) pgtype.Timestamptz {
	if t == nil {
		return pgtype.Timestamptz{}
	}
	return pgtype.Timestamptz{Time: *t, Valid: true}
}

// --- row -> model ---

func orderFromRow(o database.Order, lines []database.OrderLine) *models.Order {
	out := &models.Order{
		ID:             o.ID,
		OrderNumber:    o.OrderNumber,
		TableID:        o.TableID,
		CustomerID:     int8Ptr(o.CustomerID),
		OperatorID:     o.OperatorID,
		OrderedAt:      o.OrderedAt,
		UpdatedAt:      o.UpdatedAt,
		Subtotal:       numericToDecimal(o.Subtotal),
		DiscountAmount: numericToDecimal(o.DiscountAmount),
		TaxRate:        numericToDecimal(o.TaxRate),
		TaxAmount:      numericToDecimal(o.TaxAmount),
		FinalAmount:    numericToDecimal(o.FinalAmount),
		PaymentMethod:  o.PaymentMethod.String,
		Status:         o.Status,
		PaymentStatus:  o.PaymentStatus,
		Notes:          o.Notes.String,
		PromotionID:    int8Ptr(o.PromotionID),
		Lines:          make([]models.OrderLine, 0, len(lines)),
	}
	for _, l := range lines {
		out.Lines = append(out.Lines, models.OrderLine{
			OrderID:   l.OrderID,
			ProductID: l.ProductID,
			Quantity:  l.Quantity,
			UnitPrice: numericToDecimal(l.UnitPrice),
			LineTotal: numericToDecimal(l.LineTotal),
		})
	}
	return out
}

func promotionFromRow(p database.Promotion) models.Promotion {
	return models.Promotion{
		ID:                p.ID,
		Name:              p.Name,
		Description:       p.Description.String,
		DiscountType:      p.DiscountType,
		DiscountValue:     numericToDecimal(p.DiscountValue),
		MinOrderAmount:    numericToDecimal(p.MinOrderAmount),
		MaxDiscountAmount: numericToDecimal(p.MaxDiscountAmount),
		StartDate:         timePtr(p.StartDate),
		EndDate:           timePtr(p.EndDate),
		UsageLimit:        p.UsageLimit,
		UsageCount:        p.UsageCount,
		Active:            p.IsActive,
		CreatedAt:         p.CreatedAt,
		UpdatedAt:         p.UpdatedAt,
	}
}

func tableFromRow(t database.CafeTable) models.Table {
	return models.Table{
		ID:        t.ID,
		Name:      t.Name,
		Capacity:  t.Capacity,
		Status:    t.Status,
		Active:    t.IsActive,
		UpdatedAt: t.UpdatedAt,
	}
}

func settlementFromRow(s database.Settlement) *models.Settlement {
	out := &models.Settlement{
		ID:             s.ID,
		OrderID:        s.OrderID,
		Method:         s.PaymentMethod,
		TenderedAmount: numericToDecimal(s.TenderedAmount),
		FinalAmount:    numericToDecimal(s.FinalAmount),
		ChangeAmount:   numericToDecimal(s.ChangeAmount),
		Reference:      s.Reference,
		OperatorID:     s.OperatorID,
		SettledAt:      s.SettledAt,
	}
	if s.TransactionCode.Valid {
		code := s.TransactionCode.String
		out.TransactionCode = &code
	}
	return out
}
