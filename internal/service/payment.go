package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/kopi-pos/api/internal/database"
	"github.com/kopi-pos/api/internal/enum"
	"github.com/kopi-pos/api/internal/models"
	"github.com/shopspring/decimal"
)

// PaymentService settles orders and drives the payment status machine.
type PaymentService struct {
	*core
}

// SettleResult is the outcome of a settlement. Replayed is set when the order
// was already paid with the same request and nothing was written.
type SettleResult struct {
	Order      *models.Order
	Settlement *models.Settlement
	Replayed   bool
}

// Settle validates req against the order and records the payment. Checks run
// in order and the first failure wins:
//  1. the order exists, is payable and has at least one line
//  2. the amount due is positive
//  3. the method's own rules hold
//
// Settling an already-paid order with the same method, amount and code
// returns the stored result without writing anything. Every attempt reports
// to the payment notifiers exactly once, after commit.
func (svc *PaymentService) Settle(ctx context.Context, op models.Operator, req models.PaymentRequest) (*SettleResult, error) {
	res, err := svc.settle(ctx, op, req)
	nctx := afterCommit(ctx)
	if err != nil {
		failed := &models.Order{ID: req.OrderID}
		if res != nil && res.Order != nil {
			failed = res.Order
		}
		svc.log.Warn().
			Err(err).
			Int64("order_id", req.OrderID).
			Str("method", req.Method).
			Int64("operator_id", op.UserID).
			Msg("settlement failed")
		svc.notify.OnPaymentFailed(nctx, failed, err.Error())
		return nil, err
	}

	svc.notify.OnPaymentCompleted(nctx, res.Order, res.Settlement.Method)
	return res, nil
}

func (svc *PaymentService) settle(ctx context.Context, op models.Operator, req models.PaymentRequest) (*SettleResult, error) {
	req.TransactionCode = strings.TrimSpace(req.TransactionCode)
	if err := models.ValidatePaymentInput(req); err != nil {
		return nil, err
	}

	unlock, err := svc.lockOrder(ctx, req.OrderID)
	if err != nil {
		return nil, err
	}
	defer unlock()

	var (
		res    *SettleResult
		seen   *models.Order
		events []tableChange
	)
	// MarkOrderPaid is conditional on a pending payment and a replay finds the
	// stored settlement, so the whole transaction is safe to re-run.
	err = svc.inTx(ctx, "settle payment", true, func(ctx context.Context, s Store) error {
		res, seen, events = nil, nil, nil

		o, err := loadOrder(ctx, s, req.OrderID, true)
		if err != nil {
			return err
		}
		seen = o

		if o.PaymentStatus == enum.PaymentStatusPaid {
			st, err := s.GetSettlementByOrder(ctx, o.ID)
			if err != nil && !errors.Is(err, pgx.ErrNoRows) {
				return fmt.Errorf("get settlement: %w", err)
			}
			if err == nil {
				prior := settlementFromRow(st)
				if prior.Matches(req) {
					res = &SettleResult{Order: o, Settlement: prior, Replayed: true}
					return nil
				}
			}
			return &models.StateTransitionError{Entity: "order", From: o.Status + "/" + o.PaymentStatus, Action: "pay"}
		}

		if err := checkPayable(o, req); err != nil {
			return err
		}

		change := models.ChangeDue(req.Method, req.TenderedAmount, o.FinalAmount)
		paid := *o
		if err := paid.MarkPaid(req.Method); err != nil {
			return err
		}
		row, err := s.MarkOrderPaid(ctx, database.MarkOrderPaidParams{ID: o.ID, PaymentMethod: req.Method})
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return &models.StateTransitionError{Entity: "order", From: o.Status + "/" + o.PaymentStatus, Action: "pay"}
			}
			return fmt.Errorf("mark order paid: %w", err)
		}
		paid.UpdatedAt = row.UpdatedAt

		if note := strings.TrimSpace(req.Notes); note != "" {
			row, err = s.AppendOrderNote(ctx, database.AppendOrderNoteParams{ID: o.ID, Note: "Payment: " + note})
			if err != nil {
				return fmt.Errorf("append payment note: %w", err)
			}
			paid.Notes = row.Notes.String
			paid.UpdatedAt = row.UpdatedAt
		}

		id := uuid.New()
		stRow, err := s.CreateSettlement(ctx, database.CreateSettlementParams{
			ID:              id,
			OrderID:         o.ID,
			PaymentMethod:   req.Method,
			TenderedAmount:  decimalToNumeric(req.TenderedAmount),
			FinalAmount:     decimalToNumeric(o.FinalAmount),
			ChangeAmount:    decimalToNumeric(change),
			TransactionCode: optText(req.TransactionCode),
			Reference:       settlementReference(req.Method, id),
			OperatorID:      op.UserID,
		})
		if err != nil {
			return fmt.Errorf("create settlement: %w", err)
		}

		ch, err := onOrderPaid(ctx, s, o.TableID)
		if err != nil {
			return err
		}
		events = changes(ch)
		res = &SettleResult{Order: &paid, Settlement: settlementFromRow(stRow)}
		return nil
	})
	if err != nil {
		return &SettleResult{Order: seen}, err
	}

	if res.Replayed {
		svc.log.Info().Int64("order_id", req.OrderID).Str("reference", res.Settlement.Reference).Msg("settlement replayed")
	} else {
		svc.log.Info().
			Int64("order_id", req.OrderID).
			Str("method", req.Method).
			Str("final_amount", res.Settlement.FinalAmount.StringFixed(2)).
			Str("change", res.Settlement.ChangeAmount.StringFixed(2)).
			Str("reference", res.Settlement.Reference).
			Int64("operator_id", op.UserID).
			Msg("order settled")
	}
	svc.emitTables(afterCommit(ctx), events)
	return res, nil
}

// checkPayable runs the order and method checks of a settlement.
func checkPayable(o *models.Order, req models.PaymentRequest) error {
	if !o.CanBePaid() {
		return &models.StateTransitionError{Entity: "order", From: o.Status + "/" + o.PaymentStatus, Action: "pay"}
	}
	if len(o.Lines) == 0 {
		return models.NewValidationError("order", "has no line items")
	}
	if !o.FinalAmount.IsPositive() {
		return models.NewValidationError("final_amount", "must be > 0")
	}
	return models.ValidateMethodRules(req, o.FinalAmount)
}

func settlementReference(method string, id uuid.UUID) string {
	return strings.ToUpper(method) + "-" + id.String()
}

// Settlement returns the stored settlement of a paid order.
func (svc *PaymentService) Settlement(ctx context.Context, orderID int64) (*models.Settlement, error) {
	var out *models.Settlement
	err := svc.read(ctx, "get settlement", func(ctx context.Context, s Store) error {
		row, err := s.GetSettlementByOrder(ctx, orderID)
		if err != nil {
			return notFound(err, "settlement for order", orderID)
		}
		out = settlementFromRow(row)
		return nil
	})
	return out, err
}

// MarkFailed records a declined payment (pending -> failed).
func (svc *PaymentService) MarkFailed(ctx context.Context, op models.Operator, orderID int64, reason string) (*models.Order, error) {
	if strings.TrimSpace(reason) == "" {
		reason = "payment declined"
	}
	o, err := svc.movePayment(ctx, op, orderID, "mark payment failed", (*models.Order).MarkPaymentFailed)
	if err != nil {
		return nil, err
	}
	svc.notify.OnPaymentFailed(afterCommit(ctx), o, reason)
	return o, nil
}

// RetryPayment reopens a failed payment (failed -> pending).
func (svc *PaymentService) RetryPayment(ctx context.Context, op models.Operator, orderID int64) (*models.Order, error) {
	return svc.movePayment(ctx, op, orderID, "retry payment", (*models.Order).RetryPayment)
}

// Refund reverses a paid order (paid -> refunded). The table is not touched.
func (svc *PaymentService) Refund(ctx context.Context, op models.Operator, orderID int64) (*models.Order, error) {
	return svc.movePayment(ctx, op, orderID, "refund payment", (*models.Order).Refund)
}

func (svc *PaymentService) movePayment(ctx context.Context, op models.Operator, orderID int64, name string, move func(*models.Order) error) (*models.Order, error) {
	unlock, err := svc.lockOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}
	defer unlock()

	var (
		out  *models.Order
		from string
	)
	err = svc.inTx(ctx, name, false, func(ctx context.Context, s Store) error {
		o, err := loadOrder(ctx, s, orderID, true)
		if err != nil {
			return err
		}
		from = o.PaymentStatus
		if err := move(o); err != nil {
			return err
		}
		row, err := s.UpdatePaymentStatus(ctx, database.UpdatePaymentStatusParams{
			ID:                orderID,
			PaymentStatus:     o.PaymentStatus,
			FromPaymentStatus: from,
		})
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return &models.StateTransitionError{Entity: "payment", From: from, To: o.PaymentStatus}
			}
			return fmt.Errorf("update payment status: %w", err)
		}
		o.UpdatedAt = row.UpdatedAt
		out = o
		return nil
	})
	if err != nil {
		return nil, err
	}

	svc.log.Info().
		Int64("order_id", orderID).
		Int64("operator_id", op.UserID).
		Str("from", from).
		Str("to", out.PaymentStatus).
		Msg("payment status changed")
	return out, nil
}

// Methods lists the supported payment methods.
func (svc *PaymentService) Methods() []models.PaymentMethodInfo {
	return models.PaymentMethods()
}

// Statistics summarises paid orders settled in [start, end).
func (svc *PaymentService) Statistics(ctx context.Context, start, end time.Time) (*models.PaymentStatistics, error) {
	if !end.After(start) {
		return nil, models.NewValidationError("end_date", "must be after start_date")
	}

	var rows []database.GetPaymentStatisticsRow
	err := svc.read(ctx, "payment statistics", func(ctx context.Context, s Store) error {
		var err error
		rows, err = s.GetPaymentStatistics(ctx, database.GetPaymentStatisticsParams{Start: start, End: end})
		return err
	})
	if err != nil {
		return nil, err
	}

	stats := &models.PaymentStatistics{
		TotalAmount:   decimal.Zero,
		AverageAmount: decimal.Zero,
		ByMethod:      make([]models.MethodStatistics, 0, len(rows)),
	}
	for _, r := range rows {
		amount := numericToDecimal(r.Total)
		stats.TotalTransactions += r.Count
		stats.TotalAmount = stats.TotalAmount.Add(amount)
		stats.ByMethod = append(stats.ByMethod, models.MethodStatistics{
			Method: r.PaymentMethod,
			Count:  r.Count,
			Amount: amount,
		})
	}
	if stats.TotalTransactions > 0 {
		stats.AverageAmount = models.Round2(stats.TotalAmount.Div(decimal.NewFromInt(stats.TotalTransactions)))
	}
	return stats, nil
}
