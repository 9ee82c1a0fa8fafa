package models

import (
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/kopi-pos/api/internal/enum"
	"github.com/shopspring/decimal"
)

// electronicTolerance is the allowed gap between tendered and due amounts on
// electronic rails.
var electronicTolerance = decimal.RequireFromString("0.01")

// codeBounds holds the allowed transaction code length per electronic method.
var codeBounds = map[string][2]int{
	enum.PaymentMethodCard:         {6, 20},
	enum.PaymentMethodMomo:         {8, 15},
	enum.PaymentMethodVNPay:        {10, 25},
	enum.PaymentMethodZaloPay:      {10, 25},
	enum.PaymentMethodBankTransfer: {10, 30},
}

// PaymentRequest is one settlement attempt.
type PaymentRequest struct {
	OrderID         int64
	Method          string
	TenderedAmount  decimal.Decimal
	TransactionCode string
	Notes           string
}

// Settlement is the durable record of a paid order.
type Settlement struct {
	ID              uuid.UUID
	OrderID         int64
	Method          string
	TenderedAmount  decimal.Decimal
	FinalAmount     decimal.Decimal
	ChangeAmount    decimal.Decimal
	TransactionCode *string
	Reference       string
	OperatorID      int64
	SettledAt       time.Time
}

// Matches reports whether req replays the request that produced s.
func (s *Settlement) Matches(req PaymentRequest) bool {
	if s.Method != req.Method || !s.TenderedAmount.Equal(req.TenderedAmount) {
		return false
	}
	code := strings.TrimSpace(req.TransactionCode)
	if s.TransactionCode == nil {
		return code == ""
	}
	return *s.TransactionCode == code
}

// IsElectronic reports whether method settles on an electronic rail.
func IsElectronic(method string) bool {
	_, ok := codeBounds[method]
	return ok
}

// ValidatePaymentInput checks the request shape before the order is looked at.
func ValidatePaymentInput(req PaymentRequest) error {
	if req.OrderID <= 0 {
		return NewValidationError("order_id", "must be positive")
	}
	if !enum.IsPaymentMethod(req.Method) {
		return NewValidationError("payment_method", "unsupported payment method "+req.Method)
	}
	if req.TenderedAmount.IsNegative() {
		return NewValidationError("tendered_amount", "cannot be negative")
	}
	return nil
}

// ValidateMethodRules applies the method-specific checks against the amount due.
func ValidateMethodRules(req PaymentRequest, finalAmount decimal.Decimal) error {
	if req.Method == enum.PaymentMethodCash {
		if req.TenderedAmount.LessThan(finalAmount) {
			return &InsufficientFundsError{Required: finalAmount, Tendered: req.TenderedAmount}
		}
		return nil
	}

	bounds, ok := codeBounds[req.Method]
	if !ok {
		return NewValidationError("payment_method", "unsupported payment method "+req.Method)
	}
	code := strings.TrimSpace(req.TransactionCode)
	if code == "" {
		return NewValidationError("transaction_code", "is required for "+req.Method)
	}
	if n := len(code); n < bounds[0] || n > bounds[1] {
		return NewValidationError("transaction_code",
			"length must be between "+strconv.Itoa(bounds[0])+" and "+strconv.Itoa(bounds[1])+" for "+req.Method)
	}
	if req.TenderedAmount.Sub(finalAmount).Abs().GreaterThan(electronicTolerance) {
		return NewValidationError("tendered_amount", "must equal the amount due for electronic payments")
	}
	return nil
}

// ChangeDue returns the cash change owed; electronic rails never give change.
func ChangeDue(method string, tendered, finalAmount decimal.Decimal) decimal.Decimal {
	if method != enum.PaymentMethodCash {
		return decimal.Zero
	}
	change := tendered.Sub(finalAmount)
	if change.IsNegative() {
		return decimal.Zero
	}
	return Round2(change)
}

// PaymentMethodInfo describes a method for client pickers.
type PaymentMethodInfo struct {
	Value                      string `json:"value"`
	DisplayName                string `json:"display_name"`
	Electronic                 bool   `json:"electronic"`
	RequiresOnlineVerification bool   `json:"requires_online_verification"`
	MinCodeLength              int    `json:"min_code_length,omitempty"`
	MaxCodeLength              int    `json:"max_code_length,omitempty"`
}

// PaymentMethods lists every supported method in display order.
func PaymentMethods() []PaymentMethodInfo {
	names := []struct{ value, display string }{
		{enum.PaymentMethodCash, "Cash"},
		{enum.PaymentMethodCard, "Credit/Debit card"},
		{enum.PaymentMethodMomo, "MoMo wallet"},
		{enum.PaymentMethodVNPay, "VNPay"},
		{enum.PaymentMethodZaloPay, "ZaloPay"},
		{enum.PaymentMethodBankTransfer, "Bank transfer"},
	}
	out := make([]PaymentMethodInfo, 0, len(names))
	for _, n := range names {
		info := PaymentMethodInfo{Value: n.value, DisplayName: n.display}
		if b, ok := codeBounds[n.value]; ok {
			info.Electronic = true
			info.MinCodeLength, info.MaxCodeLength = b[0], b[1]
		}
		switch n.value {
		case enum.PaymentMethodMomo, enum.PaymentMethodVNPay, enum.PaymentMethodZaloPay:
			info.RequiresOnlineVerification = true
		}
		out = append(out, info)
	}
	return out
}

// PaymentStatistics summarises paid orders over a period.
type PaymentStatistics struct {
	TotalTransactions int64
	TotalAmount       decimal.Decimal
	AverageAmount     decimal.Decimal
	ByMethod          []MethodStatistics
}

// MethodStatistics is one payment method's share of PaymentStatistics.
type MethodStatistics struct {
	Method string
	Count  int64
	Amount decimal.Decimal
}
