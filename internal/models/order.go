package models

import (
	"fmt"
	"math"
	"time"

	"github.com/kopi-pos/api/internal/enum"
	"github.com/shopspring/decimal"
)

// MaxLineQuantity is the largest quantity a single line may hold.
const MaxLineQuantity = math.MaxInt32

// Operator identifies the staff member performing an operation. It is passed
// explicitly into every engine call.
type Operator struct {
	UserID int64
	Role   string
}

// OrderLine is one product/quantity entry. UnitPrice is the catalog price
// captured when the line was first added and never changes afterwards.
type OrderLine struct {
	OrderID   int64
	ProductID int64
	Quantity  int32
	UnitPrice decimal.Decimal
	LineTotal decimal.Decimal
}

// Order is the aggregate root for a table's purchase.
type Order struct {
	ID             int64
	OrderNumber    string
	TableID        int64
	CustomerID     *int64
	OperatorID     int64
	OrderedAt      time.Time
	UpdatedAt      time.Time
	Subtotal       decimal.Decimal
	DiscountAmount decimal.Decimal
	TaxRate        decimal.Decimal // percent, snapshot of the configured VAT when opened
	TaxAmount      decimal.Decimal
	FinalAmount    decimal.Decimal
	PaymentMethod  string
	Status         string
	PaymentStatus  string
	Notes          string
	PromotionID    *int64
	Lines          []OrderLine
}

// NewOrder returns an empty pending order for a table.
func NewOrder(tableID int64, op Operator, taxRate decimal.Decimal, now time.Time) *Order {
	return &Order{
		TableID:        tableID,
		OperatorID:     op.UserID,
		OrderedAt:      now,
		UpdatedAt:      now,
		Subtotal:       decimal.Zero,
		DiscountAmount: decimal.Zero,
		TaxRate:        taxRate,
		TaxAmount:      decimal.Zero,
		FinalAmount:    decimal.Zero,
		Status:         enum.OrderStatusPending,
		PaymentStatus:  enum.PaymentStatusPending,
	}
}

// IsOpen reports whether the order still occupies its table.
func (o *Order) IsOpen() bool {
	return o.Status != enum.OrderStatusCompleted && o.Status != enum.OrderStatusCancelled
}

// CanBeCancelled reports whether the kitchen has not yet finished the order.
func (o *Order) CanBeCancelled() bool {
	switch o.Status {
	case enum.OrderStatusPending, enum.OrderStatusConfirmed, enum.OrderStatusPreparing:
		return true
	}
	return false
}

// CanBeCompleted reports whether the order is ready to be served.
func (o *Order) CanBeCompleted() bool {
	return o.Status == enum.OrderStatusReady
}

// CanBePaid reports whether the order is completed and awaiting payment.
func (o *Order) CanBePaid() bool {
	return o.Status == enum.OrderStatusCompleted && o.PaymentStatus == enum.PaymentStatusPending
}

// CanModifyLines reports whether the ledger accepts mutations.
func (o *Order) CanModifyLines() error {
	if !o.IsOpen() || o.PaymentStatus != enum.PaymentStatusPending {
		return &StateTransitionError{Entity: "order", From: o.Status + "/" + o.PaymentStatus, Action: "modify lines of"}
	}
	return nil
}

// CanChangePromotion reports whether a promotion may be linked or unlinked.
// Unlike lines, promotions are still accepted on a completed order awaiting
// payment, since checkout is where they are applied.
func (o *Order) CanChangePromotion() error {
	if o.Status == enum.OrderStatusCancelled || o.PaymentStatus != enum.PaymentStatusPending {
		return &StateTransitionError{Entity: "order", From: o.Status + "/" + o.PaymentStatus, Action: "change the promotion of"}
	}
	return nil
}

// --- Line ledger ---

// Line returns the line for productID.
func (o *Order) Line(productID int64) (OrderLine, bool) {
	for _, l := range o.Lines {
		if l.ProductID == productID {
			return l, true
		}
	}
	return OrderLine{}, false
}

// AddLine appends a line or sums into the existing line for productID.
// The order is left untouched when the input is rejected.
func (o *Order) AddLine(productID int64, quantity int32, unitPrice decimal.Decimal) error {
	if err := o.CanModifyLines(); err != nil {
		return err
	}
	if productID <= 0 {
		return NewValidationError("product_id", "must be positive")
	}
	if quantity <= 0 {
		return NewValidationError("quantity", "must be > 0")
	}
	if unitPrice.IsNegative() {
		return NewValidationError("unit_price", "must be >= 0")
	}

	for i := range o.Lines {
		if o.Lines[i].ProductID == productID {
			if int64(o.Lines[i].Quantity)+int64(quantity) > MaxLineQuantity {
				return NewValidationError("quantity", fmt.Sprintf("line total quantity exceeds %d", MaxLineQuantity))
			}
			o.Lines[i].Quantity += quantity
			o.Lines[i].LineTotal = lineTotal(o.Lines[i].Quantity, o.Lines[i].UnitPrice)
			o.RecalcTotals()
			return nil
		}
	}

	price := Round2(unitPrice)
	o.Lines = append(o.Lines, OrderLine{
		OrderID:   o.ID,
		ProductID: productID,
		Quantity:  quantity,
		UnitPrice: price,
		LineTotal: lineTotal(quantity, price),
	})
	o.RecalcTotals()
	return nil
}

// RemoveLine drops the line for productID. Returns false if there was none.
func (o *Order) RemoveLine(productID int64) (bool, error) {
	if err := o.CanModifyLines(); err != nil {
		return false, err
	}
	for i := range o.Lines {
		if o.Lines[i].ProductID == productID {
			o.Lines = append(o.Lines[:i], o.Lines[i+1:]...)
			o.RecalcTotals()
			return true, nil
		}
	}
	return false, nil
}

// UpdateQuantity replaces a line's quantity; zero removes the line.
func (o *Order) UpdateQuantity(productID int64, quantity int32) error {
	if err := o.CanModifyLines(); err != nil {
		return err
	}
	if quantity < 0 {
		return NewValidationError("quantity", "must be >= 0")
	}
	if quantity == 0 {
		_, err := o.RemoveLine(productID)
		return err
	}
	for i := range o.Lines {
		if o.Lines[i].ProductID == productID {
			o.Lines[i].Quantity = quantity
			o.Lines[i].LineTotal = lineTotal(quantity, o.Lines[i].UnitPrice)
			o.RecalcTotals()
			return nil
		}
	}
	return NewValidationError("product_id", "line not found")
}

// RecalcTotals derives subtotal, tax and final amount from the lines and the
// current discount. Safe to call any number of times.
func (o *Order) RecalcTotals() {
	subtotal := decimal.Zero
	for _, l := range o.Lines {
		subtotal = subtotal.Add(l.LineTotal)
	}
	o.Subtotal = subtotal

	if o.DiscountAmount.IsNegative() {
		o.DiscountAmount = decimal.Zero
	}
	if o.DiscountAmount.GreaterThan(o.Subtotal) {
		o.DiscountAmount = o.Subtotal
	}

	o.TaxAmount = Percent(o.Subtotal, o.TaxRate)
	o.FinalAmount = o.Subtotal.Sub(o.DiscountAmount).Add(o.TaxAmount)
}

func lineTotal(q int32, price decimal.Decimal) decimal.Decimal {
	return price.Mul(decimal.NewFromInt32(q))
}

// --- Discount ---

// ApplyDiscount links a promotion and its computed discount.
func (o *Order) ApplyDiscount(promotionID int64, amount decimal.Decimal) {
	id := promotionID
	o.PromotionID = &id
	o.DiscountAmount = amount
	o.RecalcTotals()
}

// ClearDiscount unlinks the promotion and resets the discount to zero.
func (o *Order) ClearDiscount() {
	o.PromotionID = nil
	o.DiscountAmount = decimal.Zero
	o.RecalcTotals()
}

// RepriceDiscount refreshes the linked promotion's discount after the
// subtotal changed. The promotion's usage was consumed when it was applied,
// so only the amount rule and minimum order are re-checked here. A subtotal
// that falls below the minimum unlinks the promotion.
func (o *Order) RepriceDiscount(p *Promotion) {
	if o.PromotionID == nil || p == nil || p.ID != *o.PromotionID {
		return
	}
	if o.Subtotal.LessThan(p.MinOrderAmount) {
		o.ClearDiscount()
		return
	}
	o.DiscountAmount = p.DiscountFor(o.Subtotal)
	o.RecalcTotals()
}

// OrderFilter selects orders placed in [Start, End). An empty Status matches
// every status.
type OrderFilter struct {
	Status string
	Start  time.Time
	End    time.Time
	Limit  int32
}

// --- Order status machine ---

// allowedTransitions defines valid order status transitions.
// Key is current status, value is the set of statuses it can move to.
var allowedTransitions = map[string][]string{
	enum.OrderStatusPending:   {enum.OrderStatusConfirmed, enum.OrderStatusCancelled},
	enum.OrderStatusConfirmed: {enum.OrderStatusPreparing, enum.OrderStatusCancelled},
	enum.OrderStatusPreparing: {enum.OrderStatusReady, enum.OrderStatusCancelled},
	enum.OrderStatusReady:     {enum.OrderStatusCompleted},
}

// Transition moves the order to next, or returns a StateTransitionError
// leaving the status unchanged.
func (o *Order) Transition(next string) error {
	if !enum.IsOrderStatus(next) {
		return NewValidationError("status", "unknown order status "+next)
	}
	switch next {
	case enum.OrderStatusCancelled:
		if !o.CanBeCancelled() {
			return &StateTransitionError{Entity: "order", From: o.Status, Action: "cancel"}
		}
	case enum.OrderStatusCompleted:
		if !o.CanBeCompleted() {
			return &StateTransitionError{Entity: "order", From: o.Status, Action: "complete"}
		}
	}
	for _, s := range allowedTransitions[o.Status] {
		if s == next {
			o.Status = next
			return nil
		}
	}
	return &StateTransitionError{Entity: "order", From: o.Status, To: next}
}

// Cancel is Transition(cancelled).
func (o *Order) Cancel() error {
	return o.Transition(enum.OrderStatusCancelled)
}

// --- Payment status machine ---

// MarkPaid records a successful settlement.
func (o *Order) MarkPaid(method string) error {
	if !o.CanBePaid() {
		return &StateTransitionError{Entity: "order", From: o.Status + "/" + o.PaymentStatus, Action: "pay"}
	}
	o.PaymentMethod = method
	o.PaymentStatus = enum.PaymentStatusPaid
	if o.Status != enum.OrderStatusCompleted {
		o.Status = enum.OrderStatusCompleted
	}
	return nil
}

// MarkPaymentFailed records a declined payment. Only pending payments can fail.
func (o *Order) MarkPaymentFailed() error {
	if o.PaymentStatus != enum.PaymentStatusPending {
		return &StateTransitionError{Entity: "payment", From: o.PaymentStatus, Action: "fail"}
	}
	o.PaymentStatus = enum.PaymentStatusFailed
	return nil
}

// RetryPayment moves a failed payment back to pending.
func (o *Order) RetryPayment() error {
	if o.PaymentStatus != enum.PaymentStatusFailed {
		return &StateTransitionError{Entity: "payment", From: o.PaymentStatus, Action: "retry"}
	}
	o.PaymentStatus = enum.PaymentStatusPending
	return nil
}

// Refund moves a paid order to refunded.
func (o *Order) Refund() error {
	if o.PaymentStatus != enum.PaymentStatusPaid {
		return &StateTransitionError{Entity: "payment", From: o.PaymentStatus, Action: "refund"}
	}
	o.PaymentStatus = enum.PaymentStatusRefunded
	return nil
}
