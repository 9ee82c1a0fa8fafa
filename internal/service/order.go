package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/kopi-pos/api/internal/database"
	"github.com/kopi-pos/api/internal/enum"
	"github.com/kopi-pos/api/internal/models"
)

const maxOpenOrderRetries = 3

// Constraint names that signal a lost race while opening an order.
const (
	orderNumberConstraint  = "orders_order_number_key"
	openPerTableConstraint = "orders_one_open_per_table"
)

// OrderService owns the line ledger and the order status machine.
type OrderService struct {
	*core
}

// Get returns an order with its lines.
func (svc *OrderService) Get(ctx context.Context, orderID int64) (*models.Order, error) {
	var out *models.Order
	err := svc.read(ctx, "get order", func(ctx context.Context, s Store) error {
		o, err := loadOrder(ctx, s, orderID, false)
		out = o
		return err
	})
	return out, err
}

// CurrentForTable returns the open order on a table, or a NotFoundError.
func (svc *OrderService) CurrentForTable(ctx context.Context, tableID int64) (*models.Order, error) {
	var out *models.Order
	err := svc.read(ctx, "get open order", func(ctx context.Context, s Store) error {
		row, err := s.GetOpenOrderByTable(ctx, tableID)
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return &models.NotFoundError{Entity: "open order for table", ID: tableID}
			}
			return err
		}
		lines, err := s.ListOrderLines(ctx, row.ID)
		if err != nil {
			return fmt.Errorf("list order lines: %w", err)
		}
		out = orderFromRow(row, lines)
		return nil
	})
	return out, err
}

// Open returns the table's open order, creating an empty one if there is
// none. Retries up to maxOpenOrderRetries times when a concurrent writer won
// the order number or the table's open slot.
func (svc *OrderService) Open(ctx context.Context, op models.Operator, tableID int64) (*models.Order, error) {
	unlock, err := svc.tableLocks.Lock(ctx, tableID)
	if err != nil {
		return nil, fmt.Errorf("wait for table %d: %w", tableID, err)
	}
	defer unlock()

	var lastErr error
	for attempt := 0; attempt < maxOpenOrderRetries; attempt++ {
		o, created, err := svc.openTx(ctx, op, tableID)
		if err == nil {
			if created {
				svc.log.Info().
					Int64("order_id", o.ID).
					Str("order_number", o.OrderNumber).
					Int64("table_id", tableID).
					Int64("operator_id", op.UserID).
					Msg("order opened")
			}
			return o, nil
		}
		if isUniqueViolation(err, orderNumberConstraint) || isUniqueViolation(err, openPerTableConstraint) {
			lastErr = err
			continue
		}
		return nil, err
	}
	return nil, lastErr
}

func (svc *OrderService) openTx(ctx context.Context, op models.Operator, tableID int64) (*models.Order, bool, error) {
	var (
		out     *models.Order
		created bool
	)
	err := svc.inTx(ctx, "open order", false, func(ctx context.Context, s Store) error {
		row, err := s.GetTableForUpdate(ctx, tableID)
		if err != nil {
			return fmt.Errorf("get table: %w", notFound(err, "table", tableID))
		}
		table := tableFromRow(row)
		if err := table.CanOpenOrder(); err != nil {
			return err
		}

		existing, err := s.GetOpenOrderByTable(ctx, tableID)
		if err == nil {
			out, err = loadOrder(ctx, s, existing.ID, false)
			return err
		}
		if !errors.Is(err, pgx.ErrNoRows) {
			return fmt.Errorf("get open order: %w", err)
		}
		// A completed order still awaiting payment keeps the table.
		holding, err := s.CountOpenOrdersByTable(ctx, tableID)
		if err != nil {
			return fmt.Errorf("count open orders: %w", err)
		}
		if holding > 0 {
			return &models.StateTransitionError{Entity: "table", From: table.Status, Action: "open an order on"}
		}

		next, err := s.GetNextOrderNumber(ctx)
		if err != nil {
			return fmt.Errorf("get next order number: %w", err)
		}
		fresh := models.NewOrder(tableID, op, svc.cfg.VATPercent, svc.now())
		orderRow, err := s.CreateOrder(ctx, database.CreateOrderParams{
			OrderNumber: fmt.Sprintf("ORD-%05d", next),
			TableID:     tableID,
			OperatorID:  op.UserID,
			TaxRate:     decimalToNumeric(fresh.TaxRate),
		})
		if err != nil {
			return fmt.Errorf("create order: %w", err)
		}
		out = orderFromRow(orderRow, nil)
		created = true
		return nil
	})
	return out, created, err
}

// AddLineToTable adds a product to the table's open order, opening one
// first when the table has none.
func (svc *OrderService) AddLineToTable(ctx context.Context, op models.Operator, tableID, productID int64, quantity int32) (*models.Order, error) {
	if quantity <= 0 {
		return nil, models.NewValidationError("quantity", "must be > 0")
	}
	if productID <= 0 {
		return nil, models.NewValidationError("product_id", "must be positive")
	}
	// An unknown product must not leave an empty order behind.
	err := svc.read(ctx, "get product", func(ctx context.Context, s Store) error {
		if _, err := s.GetProductForOrder(ctx, productID); err != nil {
			return fmt.Errorf("get product: %w", notFound(err, "product", productID))
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	o, err := svc.Open(ctx, op, tableID)
	if err != nil {
		return nil, err
	}
	return svc.AddLine(ctx, op, o.ID, productID, quantity)
}

// AddLine adds quantity of productID at the catalog's current price. An
// existing line for the product keeps its price and has the quantity summed.
func (svc *OrderService) AddLine(ctx context.Context, op models.Operator, orderID, productID int64, quantity int32) (*models.Order, error) {
	if quantity <= 0 {
		return nil, models.NewValidationError("quantity", "must be > 0")
	}
	if productID <= 0 {
		return nil, models.NewValidationError("product_id", "must be positive")
	}
	// Summing quantities is not idempotent, so a failed commit is not replayed.
	return svc.mutateLines(ctx, op, orderID, "add line", false, func(ctx context.Context, s Store, o *models.Order) error {
		if err := o.CanModifyLines(); err != nil {
			return err
		}
		product, err := s.GetProductForOrder(ctx, productID)
		if err != nil {
			return fmt.Errorf("get product: %w", notFound(err, "product", productID))
		}
		return o.AddLine(productID, quantity, numericToDecimal(product.Price))
	})
}

// RemoveLine drops a product's line. Removing an absent line is a no-op.
func (svc *OrderService) RemoveLine(ctx context.Context, op models.Operator, orderID, productID int64) (*models.Order, error) {
	return svc.mutateLines(ctx, op, orderID, "remove line", true, func(ctx context.Context, s Store, o *models.Order) error {
		_, err := o.RemoveLine(productID)
		return err
	})
}

// UpdateQuantity sets a line's quantity; zero removes the line.
func (svc *OrderService) UpdateQuantity(ctx context.Context, op models.Operator, orderID, productID int64, quantity int32) (*models.Order, error) {
	if quantity < 0 {
		return nil, models.NewValidationError("quantity", "must be >= 0")
	}
	return svc.mutateLines(ctx, op, orderID, "update quantity", true, func(ctx context.Context, s Store, o *models.Order) error {
		return o.UpdateQuantity(productID, quantity)
	})
}

// mutateLines serializes a ledger change on orderID, persists the line diff
// and recomputed totals, and keeps a linked promotion's discount current.
func (svc *OrderService) mutateLines(
	ctx context.Context,
	op models.Operator,
	orderID int64,
	name string,
	idempotent bool,
	mutate func(ctx context.Context, s Store, o *models.Order) error,
) (*models.Order, error) {
	unlock, err := svc.lockOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}
	defer unlock()

	var (
		out      *models.Order
		events   []tableChange
		unlinked bool
	)
	err = svc.inTx(ctx, name, idempotent, func(ctx context.Context, s Store) error {
		events, unlinked = nil, false

		o, err := loadOrder(ctx, s, orderID, true)
		if err != nil {
			return err
		}
		before := append([]models.OrderLine(nil), o.Lines...)

		if err := mutate(ctx, s, o); err != nil {
			return err
		}

		if o.PromotionID != nil {
			p, err := loadPromotion(ctx, s, *o.PromotionID)
			if err != nil {
				return err
			}
			o.RepriceDiscount(&p)
			unlinked = o.PromotionID == nil
		}

		if err := persistLines(ctx, s, o.ID, before, o.Lines); err != nil {
			return err
		}
		if err := saveTotals(ctx, s, o); err != nil {
			return err
		}

		if len(before) == 0 && len(o.Lines) > 0 {
			ch, err := onFirstLine(ctx, s, o.TableID)
			if err != nil {
				return err
			}
			events = changes(ch)
		}
		out = o
		return nil
	})
	if err != nil {
		return nil, err
	}

	ev := svc.log.Info().
		Int64("order_id", out.ID).
		Int64("operator_id", op.UserID).
		Str("op", name).
		Str("subtotal", out.Subtotal.StringFixed(2)).
		Str("final_amount", out.FinalAmount.StringFixed(2))
	if unlinked {
		ev = ev.Bool("promotion_unlinked", true)
	}
	ev.Msg("order lines changed")

	svc.emitTables(afterCommit(ctx), events)
	return out, nil
}

// persistLines writes only the lines that differ between before and after.
func persistLines(ctx context.Context, s Store, orderID int64, before, after []models.OrderLine) error {
	prev := make(map[int64]models.OrderLine, len(before))
	for _, l := range before {
		prev[l.ProductID] = l
	}

	for _, l := range after {
		if p, ok := prev[l.ProductID]; ok && p.Quantity == l.Quantity {
			delete(prev, l.ProductID)
			continue
		}
		delete(prev, l.ProductID)
		if _, err := s.UpsertOrderLine(ctx, database.UpsertOrderLineParams{
			OrderID:   orderID,
			ProductID: l.ProductID,
			Quantity:  l.Quantity,
			UnitPrice: decimalToNumeric(l.UnitPrice),
			LineTotal: decimalToNumeric(l.LineTotal),
		}); err != nil {
			return fmt.Errorf("upsert order line: %w", err)
		}
	}

	for pid := range prev {
		if err := s.DeleteOrderLine(ctx, database.DeleteOrderLineParams{OrderID: orderID, ProductID: pid}); err != nil {
			return fmt.Errorf("delete order line: %w", err)
		}
	}
	return nil
}

// Transition moves the order to next. Cancelling releases the table when no
// other open order holds it.
func (svc *OrderService) Transition(ctx context.Context, op models.Operator, orderID int64, next string) (*models.Order, error) {
	return svc.transition(ctx, op, orderID, next, "")
}

// transition appends note to the order's notes in the same transaction when
// it is not empty.
func (svc *OrderService) transition(ctx context.Context, op models.Operator, orderID int64, next, note string) (*models.Order, error) {
	if !enum.IsOrderStatus(next) {
		return nil, models.NewValidationError("status", "unknown order status "+next)
	}

	unlock, err := svc.lockOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}
	defer unlock()

	var (
		out    *models.Order
		from   string
		events []tableChange
	)
	err = svc.inTx(ctx, "transition order", false, func(ctx context.Context, s Store) error {
		o, err := loadOrder(ctx, s, orderID, true)
		if err != nil {
			return err
		}
		from = o.Status
		if err := o.Transition(next); err != nil {
			return err
		}

		row, err := s.UpdateOrderStatus(ctx, database.UpdateOrderStatusParams{
			ID:         orderID,
			Status:     next,
			FromStatus: from,
		})
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return &models.StateTransitionError{Entity: "order", From: from, To: next}
			}
			return fmt.Errorf("update order status: %w", err)
		}
		o.UpdatedAt = row.UpdatedAt

		if note != "" {
			row, err = s.AppendOrderNote(ctx, database.AppendOrderNoteParams{ID: orderID, Note: note})
			if err != nil {
				return fmt.Errorf("append order note: %w", err)
			}
			o.Notes = row.Notes.String
			o.UpdatedAt = row.UpdatedAt
		}

		if next == enum.OrderStatusCancelled {
			ch, err := onOrderCancelled(ctx, s, o.TableID)
			if err != nil {
				return err
			}
			events = changes(ch)
		}
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
		Str("to", next).
		Msg("order status changed")
	svc.emitTables(afterCommit(ctx), events)
	return out, nil
}

// Cancel moves the order to cancelled and records reason in its notes.
// Promotion usage is not refunded.
func (svc *OrderService) Cancel(ctx context.Context, op models.Operator, orderID int64, reason string) (*models.Order, error) {
	note := "Cancelled"
	if r := strings.TrimSpace(reason); r != "" {
		note += ": " + r
	}
	return svc.transition(ctx, op, orderID, enum.OrderStatusCancelled, note)
}

// DefaultListLimit caps List when the filter sets no limit.
const DefaultListLimit = 100

// List returns order headers matching f, newest first. Lines are not loaded.
func (svc *OrderService) List(ctx context.Context, f models.OrderFilter) ([]*models.Order, error) {
	if f.Status != "" && !enum.IsOrderStatus(f.Status) {
		return nil, models.NewValidationError("status", "unknown order status "+f.Status)
	}
	if !f.End.After(f.Start) {
		return nil, models.NewValidationError("end_date", "must be after start_date")
	}
	if f.Limit <= 0 || f.Limit > DefaultListLimit {
		f.Limit = DefaultListLimit
	}

	var out []*models.Order
	err := svc.read(ctx, "list orders", func(ctx context.Context, s Store) error {
		rows, err := s.ListOrders(ctx, database.ListOrdersParams{
			Status: optText(f.Status),
			Start:  f.Start,
			End:    f.End,
			Limit:  f.Limit,
		})
		if err != nil {
			return err
		}
		out = make([]*models.Order, 0, len(rows))
		for _, r := range rows {
			out = append(out, orderFromRow(r, nil))
		}
		return nil
	})
	return out, err
}
