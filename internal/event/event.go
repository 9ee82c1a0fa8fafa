// Package event defines the payloads published for payment outcomes and
// table status changes. The same structs are sent over the websocket feed
// and the message broker.
package event

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/kopi-pos/api/internal/models"
)

// Event types double as broker routing keys.
const (
	TypePaymentCompleted = "payment.completed"
	TypePaymentFailed    = "payment.failed"
	TypeTableStatus      = "table.status"
)

type Payment struct {
	Type        string          `json:"type"`
	OrderID     int64           `json:"order_id"`
	OrderNumber string          `json:"order_number,omitempty"`
	TableID     int64           `json:"table_id"`
	Method      string          `json:"method,omitempty"`
	Amount      decimal.Decimal `json:"amount"`
	Reason      string          `json:"reason,omitempty"`
	OccurredAt  time.Time       `json:"occurred_at"`
}

type TableStatus struct {
	Type       string    `json:"type"`
	TableID    int64     `json:"table_id"`
	Name       string    `json:"name"`
	From       string    `json:"from"`
	To         string    `json:"to"`
	OccurredAt time.Time `json:"occurred_at"`
}

func PaymentCompleted(order *models.Order, method string, at time.Time) Payment {
	p := fromOrder(TypePaymentCompleted, order, at)
	p.Method = method
	return p
}

func PaymentFailed(order *models.Order, reason string, at time.Time) Payment {
	p := fromOrder(TypePaymentFailed, order, at)
	p.Reason = reason
	return p
}

func fromOrder(typ string, order *models.Order, at time.Time) Payment {
	p := Payment{Type: typ, OccurredAt: at.UTC()}
	if order == nil {
		return p
	}
	p.OrderID = order.ID
	p.OrderNumber = order.OrderNumber
	p.TableID = order.TableID
	p.Method = order.PaymentMethod
	p.Amount = order.FinalAmount
	return p
}

func TableStatusChanged(t models.Table, from, to string, at time.Time) TableStatus {
	return TableStatus{
		Type:       TypeTableStatus,
		TableID:    t.ID,
		Name:       t.Name,
		From:       from,
		To:         to,
		OccurredAt: at.UTC(),
	}
}
