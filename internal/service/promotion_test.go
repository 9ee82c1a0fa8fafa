package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/kopi-pos/api/internal/enum"
	"github.com/kopi-pos/api/internal/models"
)

func tenPercent(limit, used int32) models.Promotion {
	return models.Promotion{
		Name:           "Weekday 10%",
		DiscountType:   enum.DiscountTypePercentage,
		DiscountValue:  dec("10"),
		MinOrderAmount: dec("100000"),
		UsageLimit:     limit,
		UsageCount:     used,
		Active:         true,
	}
}

func TestApply_PercentageDiscount(t *testing.T) {
	store := newFakeStore()
	eng, _, _ := newTestEngine(t, store)
	o := seedOrder(t, eng, store, "60000", 2)
	promoID := store.addPromotion(tenPercent(0, 0))

	got, err := eng.Promotions.Apply(context.Background(), testOperator, o.ID, promoID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !got.Subtotal.Equal(dec("120000")) {
		t.Errorf("subtotal = %s, want 120000", got.Subtotal)
	}
	if !got.DiscountAmount.Equal(dec("12000")) {
		t.Errorf("discount = %s, want 12000", got.DiscountAmount)
	}
	if !got.FinalAmount.Equal(dec("108000")) {
		t.Errorf("final = %s, want 108000", got.FinalAmount)
	}
	if got.PromotionID == nil || *got.PromotionID != promoID {
		t.Errorf("promotion id = %v, want %d", got.PromotionID, promoID)
	}
	if n := store.promotion(promoID).UsageCount; n != 1 {
		t.Errorf("usage count = %d, want 1", n)
	}
	if n := store.usageCount(); n != 1 {
		t.Errorf("usage rows = %d, want 1", n)
	}
}

func TestApply_WithTaxOnPreDiscountSubtotal(t *testing.T) {
	store := newFakeStore()
	eng, _, _ := newTestEngine(t, store)
	eng.Orders.cfg.VATPercent = dec("10")
	o := seedOrder(t, eng, store, "60000", 2)
	promoID := store.addPromotion(tenPercent(0, 0))

	got, err := eng.Promotions.Apply(context.Background(), testOperator, o.ID, promoID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	// 120000 - 12000 + 12000 tax
	if !got.TaxAmount.Equal(dec("12000")) || !got.FinalAmount.Equal(dec("120000")) {
		t.Errorf("tax/final = %s/%s, want 12000/120000", got.TaxAmount, got.FinalAmount)
	}
}

func TestApply_ExhaustedPromotion(t *testing.T) {
	store := newFakeStore()
	eng, _, _ := newTestEngine(t, store)
	o := seedOrder(t, eng, store, "60000", 2)
	promoID := store.addPromotion(tenPercent(5, 5))

	applicable, err := eng.Promotions.Applicable(context.Background(), o.ID)
	if err != nil {
		t.Fatalf("applicable: %v", err)
	}
	if len(applicable) != 0 {
		t.Errorf("applicable = %d promotions, want 0", len(applicable))
	}

	_, err = eng.Promotions.Apply(context.Background(), testOperator, o.ID, promoID)
	if !errors.Is(err, models.ErrPromotionInapplicable) {
		t.Fatalf("expected promotion inapplicable error, got %v", err)
	}
	stored := store.order(o.ID)
	if stored.PromotionID.Valid {
		t.Error("order should not be linked to the promotion")
	}
	if !numericToDecimal(stored.DiscountAmount).IsZero() {
		t.Errorf("discount = %s, want 0", numericToDecimal(stored.DiscountAmount))
	}
	if n := store.promotion(promoID).UsageCount; n != 5 {
		t.Errorf("usage count = %d, want 5", n)
	}
}

func TestApply_BelowMinimum(t *testing.T) {
	store := newFakeStore()
	eng, _, _ := newTestEngine(t, store)
	o := seedOrder(t, eng, store, "30000", 1)
	promoID := store.addPromotion(tenPercent(0, 0))

	_, err := eng.Promotions.Apply(context.Background(), testOperator, o.ID, promoID)
	var pe *models.PromotionInapplicableError
	if !errors.As(err, &pe) {
		t.Fatalf("expected PromotionInapplicableError, got %v", err)
	}
	if pe.PromotionID != promoID {
		t.Errorf("promotion id = %d, want %d", pe.PromotionID, promoID)
	}
	if n := store.callCount("IncrementPromotionUsageIfAvailable"); n != 0 {
		t.Errorf("increment calls = %d, want 0", n)
	}
}

func TestApply_SecondPromotionRejected(t *testing.T) {
	store := newFakeStore()
	eng, _, _ := newTestEngine(t, store)
	o := seedOrder(t, eng, store, "60000", 2)
	first := store.addPromotion(tenPercent(0, 0))
	second := store.addPromotion(models.Promotion{
		Name:          "Flat 5000",
		DiscountType:  enum.DiscountTypeFixed,
		DiscountValue: dec("5000"),
		Active:        true,
	})

	if _, err := eng.Promotions.Apply(context.Background(), testOperator, o.ID, first); err != nil {
		t.Fatalf("apply first: %v", err)
	}
	_, err := eng.Promotions.Apply(context.Background(), testOperator, o.ID, second)
	if !errors.Is(err, models.ErrStateTransition) {
		t.Fatalf("expected state transition error, got %v", err)
	}
	if n := store.promotion(second).UsageCount; n != 0 {
		t.Errorf("second usage count = %d, want 0", n)
	}
}

func TestApply_OnCompletedOrderAwaitingPayment(t *testing.T) {
	store := newFakeStore()
	eng, _, _ := newTestEngine(t, store)
	o := seedOrder(t, eng, store, "60000", 2)
	completeOrder(t, eng, o.ID)
	promoID := store.addPromotion(tenPercent(0, 0))

	got, err := eng.Promotions.Apply(context.Background(), testOperator, o.ID, promoID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !got.FinalAmount.Equal(dec("108000")) {
		t.Errorf("final = %s, want 108000", got.FinalAmount)
	}
}

func TestApply_CancelledOrderRejected(t *testing.T) {
	store := newFakeStore()
	eng, _, _ := newTestEngine(t, store)
	o := seedOrder(t, eng, store, "60000", 2)
	promoID := store.addPromotion(tenPercent(0, 0))
	if _, err := eng.Orders.Cancel(context.Background(), testOperator, o.ID, ""); err != nil {
		t.Fatalf("cancel: %v", err)
	}

	_, err := eng.Promotions.Apply(context.Background(), testOperator, o.ID, promoID)
	if !errors.Is(err, models.ErrStateTransition) {
		t.Fatalf("expected state transition error, got %v", err)
	}
}

func TestApply_UnknownPromotion(t *testing.T) {
	store := newFakeStore()
	eng, _, _ := newTestEngine(t, store)
	o := seedOrder(t, eng, store, "60000", 2)

	_, err := eng.Promotions.Apply(context.Background(), testOperator, o.ID, 999)
	if !errors.Is(err, models.ErrNotFound) {
		t.Fatalf("expected not found error, got %v", err)
	}
}

func TestApply_ConcurrentLastUsage(t *testing.T) {
	store := newFakeStore()
	store.addTable(1, enum.TableStatusAvailable, true)
	store.addTable(2, enum.TableStatusAvailable, true)
	store.addProduct(1, "60000")
	eng, _, _ := newTestEngine(t, store)
	promoID := store.addPromotion(tenPercent(1, 0))

	var orderIDs []int64
	for _, table := range []int64{1, 2} {
		o, err := eng.Orders.AddLineToTable(context.Background(), testOperator, table, 1, 2)
		if err != nil {
			t.Fatalf("seed table %d: %v", table, err)
		}
		orderIDs = append(orderIDs, o.ID)
	}

	errs := make([]error, len(orderIDs))
	var wg sync.WaitGroup
	for i, id := range orderIDs {
		wg.Add(1)
		go func(i int, id int64) {
			defer wg.Done()
			_, errs[i] = eng.Promotions.Apply(context.Background(), testOperator, id, promoID)
		}(i, id)
	}
	wg.Wait()

	var won, lost int
	for _, err := range errs {
		switch {
		case err == nil:
			won++
		case errors.Is(err, models.ErrPromotionInapplicable):
			lost++
		default:
			t.Errorf("unexpected error: %v", err)
		}
	}
	if won != 1 || lost != 1 {
		t.Errorf("won/lost = %d/%d, want 1/1", won, lost)
	}
	if n := store.promotion(promoID).UsageCount; n != 1 {
		t.Errorf("usage count = %d, want 1", n)
	}
}

func TestRemove_KeepsConsumedUsage(t *testing.T) {
	store := newFakeStore()
	eng, _, _ := newTestEngine(t, store)
	o := seedOrder(t, eng, store, "60000", 2)
	promoID := store.addPromotion(tenPercent(0, 0))
	if _, err := eng.Promotions.Apply(context.Background(), testOperator, o.ID, promoID); err != nil {
		t.Fatalf("apply: %v", err)
	}

	got, err := eng.Promotions.Remove(context.Background(), testOperator, o.ID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.PromotionID != nil || !got.DiscountAmount.IsZero() {
		t.Errorf("promotion still linked: id=%v discount=%s", got.PromotionID, got.DiscountAmount)
	}
	if !got.FinalAmount.Equal(dec("120000")) {
		t.Errorf("final = %s, want 120000", got.FinalAmount)
	}
	if n := store.promotion(promoID).UsageCount; n != 1 {
		t.Errorf("usage count = %d, want 1", n)
	}

	// Removing again is a no-op.
	if _, err := eng.Promotions.Remove(context.Background(), testOperator, o.ID); err != nil {
		t.Errorf("second remove: %v", err)
	}
}

func TestApplicable_BestDiscountFirst(t *testing.T) {
	store := newFakeStore()
	eng, _, _ := newTestEngine(t, store)
	o := seedOrder(t, eng, store, "60000", 2)
	ten := store.addPromotion(tenPercent(0, 0))
	flat := store.addPromotion(models.Promotion{
		Name:          "Flat 15000",
		DiscountType:  enum.DiscountTypeFixed,
		DiscountValue: dec("15000"),
		Active:        true,
	})
	store.addPromotion(models.Promotion{
		Name:          "Switched off",
		DiscountType:  enum.DiscountTypeFixed,
		DiscountValue: dec("50000"),
		Active:        false,
	})

	got, err := eng.Promotions.Applicable(context.Background(), o.ID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("applicable = %d, want 2", len(got))
	}
	if got[0].Promotion.ID != flat || got[1].Promotion.ID != ten {
		t.Errorf("order = [%d %d], want [%d %d]", got[0].Promotion.ID, got[1].Promotion.ID, flat, ten)
	}
	if !got[1].Discount.Equal(dec("12000")) {
		t.Errorf("discount = %s, want 12000", got[1].Discount)
	}
}

func TestExpiringSoon(t *testing.T) {
	store := newFakeStore()
	eng, _, _ := newTestEngine(t, store)
	soon := testNow.Add(3 * 24 * time.Hour)
	later := testNow.Add(30 * 24 * time.Hour)

	p := tenPercent(0, 0)
	p.EndDate = &soon
	soonID := store.addPromotion(p)
	p.EndDate = &later
	store.addPromotion(p)
	p.EndDate = nil
	store.addPromotion(p)

	got, err := eng.Promotions.ExpiringSoon(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(got) != 1 || got[0].ID != soonID {
		t.Errorf("expiring = %v, want only %d", got, soonID)
	}
}

func TestCreatePromotion(t *testing.T) {
	store := newFakeStore()
	eng, _, _ := newTestEngine(t, store)

	_, err := eng.Promotions.Create(context.Background(), testOperator, models.Promotion{
		Name:          "Broken",
		DiscountType:  enum.DiscountTypePercentage,
		DiscountValue: dec("120"),
	})
	if !errors.Is(err, models.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
	if n := store.callCount("CreatePromotion"); n != 0 {
		t.Errorf("CreatePromotion calls = %d, want 0", n)
	}

	created, err := eng.Promotions.Create(context.Background(), testOperator, tenPercent(10, 0))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !created.Active || created.UsageCount != 0 || created.UsageLimit != 10 {
		t.Errorf("created = %+v", created)
	}
}

func TestDeactivatePromotion(t *testing.T) {
	store := newFakeStore()
	eng, _, _ := newTestEngine(t, store)
	id := store.addPromotion(tenPercent(0, 0))

	got, err := eng.Promotions.Deactivate(context.Background(), testOperator, id)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.Active {
		t.Error("expected promotion to be inactive")
	}

	_, err = eng.Promotions.Deactivate(context.Background(), testOperator, 999)
	if !errors.Is(err, models.ErrNotFound) {
		t.Errorf("expected not found error, got %v", err)
	}
}

func TestStats_CountsUsage(t *testing.T) {
	store := newFakeStore()
	eng, _, _ := newTestEngine(t, store)
	o := payableOrder(t, eng, store)
	applied, err := eng.Orders.Get(context.Background(), o.ID)
	if err != nil || applied.PromotionID == nil {
		t.Fatalf("get order: %v, promotion %v", err, applied)
	}

	got, err := eng.Promotions.Stats(context.Background(), *applied.PromotionID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.UsageCount != 1 || got.AffectedOrders != 1 {
		t.Errorf("usage/orders = %d/%d, want 1/1", got.UsageCount, got.AffectedOrders)
	}
	if !got.TotalDiscount.Equal(dec("12000")) {
		t.Errorf("total discount = %s, want 12000", got.TotalDiscount)
	}
}

func TestStats_UnusedPromotion(t *testing.T) {
	store := newFakeStore()
	eng, _, _ := newTestEngine(t, store)
	promoID := store.addPromotion(tenPercent(0, 0))

	got, err := eng.Promotions.Stats(context.Background(), promoID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.PromotionID != promoID || got.UsageCount != 0 || !got.TotalDiscount.IsZero() {
		t.Errorf("stats = %+v, want empty for promotion %d", got, promoID)
	}
}

func TestStats_UnknownPromotion(t *testing.T) {
	eng, _, _ := newTestEngine(t, newFakeStore())

	_, err := eng.Promotions.Stats(context.Background(), 404)
	if !errors.Is(err, models.ErrNotFound) {
		t.Fatalf("expected not found error, got %v", err)
	}
}
