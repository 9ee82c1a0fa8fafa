package models

import (
	"sort"
	"strings"
	"time"

	"github.com/kopi-pos/api/internal/enum"
	"github.com/shopspring/decimal"
)

// expiringWindow is how far ahead ExpiringSoon looks for end dates.
const expiringWindow = 7 * 24 * time.Hour

// Promotion is a discount rule with eligibility and usage constraints.
type Promotion struct {
	ID                int64
	Name              string
	Description       string
	DiscountType      string
	DiscountValue     decimal.Decimal
	MinOrderAmount    decimal.Decimal
	MaxDiscountAmount decimal.Decimal // zero means no cap
	StartDate         *time.Time
	EndDate           *time.Time
	UsageLimit        int32 // zero means unlimited
	UsageCount        int32
	Active            bool
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

// InWindow reports whether now falls within [StartDate, EndDate]. A nil
// bound is open.
func (p *Promotion) InWindow(now time.Time) bool {
	if p.StartDate != nil && now.Before(*p.StartDate) {
		return false
	}
	if p.EndDate != nil && now.After(*p.EndDate) {
		return false
	}
	return true
}

// HasUsageLeft reports whether another application is allowed.
func (p *Promotion) HasUsageLeft() bool {
	return p.UsageLimit == 0 || p.UsageCount < p.UsageLimit
}

// Ineligibility returns why the promotion cannot apply to orderAmount at now,
// or "" when it qualifies.
func (p *Promotion) Ineligibility(orderAmount decimal.Decimal, now time.Time) string {
	switch {
	case !p.Active:
		return "promotion is inactive"
	case !p.InWindow(now):
		return "outside validity window"
	case orderAmount.LessThan(p.MinOrderAmount):
		return "order amount below minimum " + p.MinOrderAmount.StringFixed(2)
	case !p.HasUsageLeft():
		return "usage limit reached"
	}
	return ""
}

// Qualifies reports whether the promotion applies to orderAmount at now.
func (p *Promotion) Qualifies(orderAmount decimal.Decimal, now time.Time) bool {
	return p.Ineligibility(orderAmount, now) == ""
}

// DiscountFor applies the amount rule without eligibility checks.
func (p *Promotion) DiscountFor(orderAmount decimal.Decimal) decimal.Decimal {
	if !orderAmount.IsPositive() {
		return decimal.Zero
	}

	var discount decimal.Decimal
	switch p.DiscountType {
	case enum.DiscountTypePercentage:
		discount = orderAmount.Mul(p.DiscountValue).Div(hundred)
	case enum.DiscountTypeFixed:
		discount = p.DiscountValue
	default:
		return decimal.Zero
	}

	if p.MaxDiscountAmount.IsPositive() && discount.GreaterThan(p.MaxDiscountAmount) {
		discount = p.MaxDiscountAmount
	}
	if discount.GreaterThan(orderAmount) {
		discount = orderAmount
	}
	if discount.IsNegative() {
		return decimal.Zero
	}
	return Round2(discount)
}

// CalculateDiscount returns the discount for orderAmount, or zero when the
// promotion does not qualify. Safe to call without filtering first.
func (p *Promotion) CalculateDiscount(orderAmount decimal.Decimal, now time.Time) decimal.Decimal {
	if !p.Qualifies(orderAmount, now) {
		return decimal.Zero
	}
	return p.DiscountFor(orderAmount)
}

// IsExpiringSoon reports whether the end date falls within the next week.
func (p *Promotion) IsExpiringSoon(now time.Time) bool {
	if p.EndDate == nil {
		return false
	}
	return p.EndDate.After(now) && p.EndDate.Before(now.Add(expiringWindow))
}

// Validate checks a promotion definition before it is stored.
func (p *Promotion) Validate() error {
	if strings.TrimSpace(p.Name) == "" {
		return NewValidationError("name", "is required")
	}
	if !enum.IsDiscountType(p.DiscountType) {
		return NewValidationError("discount_type", "must be percentage or fixed_amount")
	}
	if !p.DiscountValue.IsPositive() {
		return NewValidationError("discount_value", "must be > 0")
	}
	if p.DiscountType == enum.DiscountTypePercentage && p.DiscountValue.GreaterThan(hundred) {
		return NewValidationError("discount_value", "percentage must be <= 100")
	}
	if p.MinOrderAmount.IsNegative() {
		return NewValidationError("min_order_amount", "must be >= 0")
	}
	if p.MaxDiscountAmount.IsNegative() {
		return NewValidationError("max_discount_amount", "must be >= 0")
	}
	if p.UsageLimit < 0 {
		return NewValidationError("usage_limit", "must be >= 0")
	}
	if p.StartDate != nil && p.EndDate != nil && p.EndDate.Before(*p.StartDate) {
		return NewValidationError("end_date", "must not be before start_date")
	}
	return nil
}

// ApplicablePromotion pairs a promotion with its computed discount.
type ApplicablePromotion struct {
	Promotion Promotion
	Discount  decimal.Decimal
}

// SelectApplicable filters candidates down to those that qualify for
// orderAmount at now, best discount first, ties broken by ascending id.
func SelectApplicable(candidates []Promotion, orderAmount decimal.Decimal, now time.Time) []ApplicablePromotion {
	out := make([]ApplicablePromotion, 0, len(candidates))
	for _, p := range candidates {
		if !p.Qualifies(orderAmount, now) {
			continue
		}
		out = append(out, ApplicablePromotion{Promotion: p, Discount: p.DiscountFor(orderAmount)})
	}
	sort.SliceStable(out, func(i, j int) bool {
		if c := out[i].Discount.Cmp(out[j].Discount); c != 0 {
			return c > 0
		}
		return out[i].Promotion.ID < out[j].Promotion.ID
	})
	return out
}

// PromotionUsage is the audit row written when a promotion is consumed.
type PromotionUsage struct {
	OrderID        int64
	PromotionID    int64
	DiscountAmount decimal.Decimal
	AppliedAt      time.Time
}

// PromotionStats summarises how a promotion has been used.
type PromotionStats struct {
	PromotionID    int64
	UsageCount     int64
	TotalDiscount  decimal.Decimal
	AffectedOrders int64
}
