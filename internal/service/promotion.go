package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/kopi-pos/api/internal/database"
	"github.com/kopi-pos/api/internal/models"
)

// PromotionService selects and applies promotions. Usage is consumed with a
// conditional increment in the database, never read-modify-write here.
type PromotionService struct {
	*core
}

// ListActive returns every promotion flagged active, in id order.
func (svc *PromotionService) ListActive(ctx context.Context) ([]models.Promotion, error) {
	var out []models.Promotion
	err := svc.read(ctx, "list promotions", func(ctx context.Context, s Store) error {
		rows, err := s.ListActivePromotions(ctx)
		if err != nil {
			return err
		}
		out = make([]models.Promotion, 0, len(rows))
		for _, r := range rows {
			out = append(out, promotionFromRow(r))
		}
		return nil
	})
	return out, err
}

// ExpiringSoon returns active promotions whose end date falls within the
// next seven days.
func (svc *PromotionService) ExpiringSoon(ctx context.Context) ([]models.Promotion, error) {
	all, err := svc.ListActive(ctx)
	if err != nil {
		return nil, err
	}
	now := svc.now()
	out := make([]models.Promotion, 0)
	for _, p := range all {
		if p.IsExpiringSoon(now) {
			out = append(out, p)
		}
	}
	return out, nil
}

// Applicable lists the promotions the order currently qualifies for, best
// discount first.
func (svc *PromotionService) Applicable(ctx context.Context, orderID int64) ([]models.ApplicablePromotion, error) {
	var (
		order      *models.Order
		candidates []models.Promotion
	)
	err := svc.read(ctx, "list applicable promotions", func(ctx context.Context, s Store) error {
		o, err := loadOrder(ctx, s, orderID, false)
		if err != nil {
			return err
		}
		rows, err := s.ListActivePromotions(ctx)
		if err != nil {
			return fmt.Errorf("list promotions: %w", err)
		}
		order = o
		candidates = make([]models.Promotion, 0, len(rows))
		for _, r := range rows {
			candidates = append(candidates, promotionFromRow(r))
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return models.SelectApplicable(candidates, order.Subtotal, svc.now()), nil
}

// Apply links promotionID to the order and consumes one usage. Eligibility
// is checked again here since selection and apply are not atomic; a lost race
// for the last usage slot is a PromotionInapplicableError and leaves the
// order without a discount.
func (svc *PromotionService) Apply(ctx context.Context, op models.Operator, orderID, promotionID int64) (*models.Order, error) {
	unlock, err := svc.lockOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}
	defer unlock()

	var out *models.Order
	// Not idempotent: a replay after a lost commit would consume a second usage.
	err = svc.inTx(ctx, "apply promotion", false, func(ctx context.Context, s Store) error {
		o, err := loadOrder(ctx, s, orderID, true)
		if err != nil {
			return err
		}
		if err := o.CanChangePromotion(); err != nil {
			return err
		}
		if o.PromotionID != nil {
			return &models.StateTransitionError{
				Entity: "order",
				From:   fmt.Sprintf("promotion %d applied", *o.PromotionID),
				To:     fmt.Sprintf("promotion %d applied", promotionID),
			}
		}

		p, err := loadPromotion(ctx, s, promotionID)
		if err != nil {
			return err
		}
		now := svc.now()
		if reason := p.Ineligibility(o.Subtotal, now); reason != "" {
			return &models.PromotionInapplicableError{PromotionID: promotionID, Reason: reason}
		}
		discount := p.DiscountFor(o.Subtotal)
		if !discount.IsPositive() {
			return &models.PromotionInapplicableError{PromotionID: promotionID, Reason: "no discountable amount"}
		}

		if _, err := s.IncrementPromotionUsageIfAvailable(ctx, database.IncrementPromotionUsageIfAvailableParams{
			ID:  promotionID,
			Now: now,
		}); err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return &models.PromotionInapplicableError{PromotionID: promotionID, Reason: "usage limit reached"}
			}
			return fmt.Errorf("increment promotion usage: %w", err)
		}

		o.ApplyDiscount(promotionID, discount)
		if err := saveTotals(ctx, s, o); err != nil {
			return err
		}
		if _, err := s.CreatePromotionUsage(ctx, database.CreatePromotionUsageParams{
			OrderID:        o.ID,
			PromotionID:    promotionID,
			DiscountAmount: decimalToNumeric(discount),
		}); err != nil {
			return fmt.Errorf("create promotion usage: %w", err)
		}
		out = o
		return nil
	})
	if err != nil {
		return nil, err
	}

	svc.log.Info().
		Int64("order_id", orderID).
		Int64("promotion_id", promotionID).
		Int64("operator_id", op.UserID).
		Str("discount", out.DiscountAmount.StringFixed(2)).
		Msg("promotion applied")
	return out, nil
}

// Remove unlinks the order's promotion. The consumed usage is kept, so
// apply/remove cycles cannot be used to get around a usage limit.
func (svc *PromotionService) Remove(ctx context.Context, op models.Operator, orderID int64) (*models.Order, error) {
	unlock, err := svc.lockOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}
	defer unlock()

	var (
		out     *models.Order
		removed *int64
	)
	err = svc.inTx(ctx, "remove promotion", true, func(ctx context.Context, s Store) error {
		removed = nil
		o, err := loadOrder(ctx, s, orderID, true)
		if err != nil {
			return err
		}
		if err := o.CanChangePromotion(); err != nil {
			return err
		}
		out = o
		if o.PromotionID == nil {
			return nil
		}
		removed = o.PromotionID
		o.ClearDiscount()
		return saveTotals(ctx, s, o)
	})
	if err != nil {
		return nil, err
	}

	if removed != nil {
		svc.log.Info().
			Int64("order_id", orderID).
			Int64("promotion_id", *removed).
			Int64("operator_id", op.UserID).
			Msg("promotion removed")
	}
	return out, nil
}

// Create validates and stores a new promotion.
func (svc *PromotionService) Create(ctx context.Context, op models.Operator, p models.Promotion) (models.Promotion, error) {
	if err := p.Validate(); err != nil {
		return models.Promotion{}, err
	}

	var out models.Promotion
	err := svc.inTx(ctx, "create promotion", false, func(ctx context.Context, s Store) error {
		row, err := s.CreatePromotion(ctx, database.CreatePromotionParams{
			Name:              p.Name,
			Description:       optText(p.Description),
			DiscountType:      p.DiscountType,
			DiscountValue:     decimalToNumeric(p.DiscountValue),
			MinOrderAmount:    decimalToNumeric(p.MinOrderAmount),
			MaxDiscountAmount: decimalToNumeric(p.MaxDiscountAmount),
			StartDate:         ptrTimestamptz(p.StartDate),
			EndDate:           ptrTimestamptz(p.EndDate),
			UsageLimit:        p.UsageLimit,
			IsActive:          true,
		})
		if err != nil {
			return fmt.Errorf("create promotion: %w", err)
		}
		out = promotionFromRow(row)
		return nil
	})
	if err != nil {
		return models.Promotion{}, err
	}

	svc.log.Info().Int64("promotion_id", out.ID).Int64("operator_id", op.UserID).Str("name", out.Name).Msg("promotion created")
	return out, nil
}

// Deactivate switches a promotion off. Orders already linked keep it.
func (svc *PromotionService) Deactivate(ctx context.Context, op models.Operator, id int64) (models.Promotion, error) {
	var out models.Promotion
	err := svc.inTx(ctx, "deactivate promotion", true, func(ctx context.Context, s Store) error {
		row, err := s.DeactivatePromotion(ctx, id)
		if err != nil {
			return fmt.Errorf("deactivate promotion: %w", notFound(err, "promotion", id))
		}
		out = promotionFromRow(row)
		return nil
	})
	if err != nil {
		return models.Promotion{}, err
	}

	svc.log.Info().Int64("promotion_id", id).Int64("operator_id", op.UserID).Msg("promotion deactivated")
	return out, nil
}

// Stats reports how often a promotion was applied, the discount it granted
// and how many distinct orders it touched.
func (svc *PromotionService) Stats(ctx context.Context, id int64) (*models.PromotionStats, error) {
	var out *models.PromotionStats
	err := svc.read(ctx, "promotion stats", func(ctx context.Context, s Store) error {
		if _, err := loadPromotion(ctx, s, id); err != nil {
			return err
		}
		row, err := s.GetPromotionUsageStats(ctx, id)
		if err != nil {
			return fmt.Errorf("get promotion usage: %w", err)
		}
		out = &models.PromotionStats{
			PromotionID:    id,
			UsageCount:     row.UsageCount,
			TotalDiscount:  numericToDecimal(row.TotalDiscount),
			AffectedOrders: row.AffectedOrders,
		}
		return nil
	})
	return out, err
}
