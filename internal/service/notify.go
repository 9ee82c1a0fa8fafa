package service

import (
	"context"

	"github.com/kopi-pos/api/internal/models"
)

// PaymentNotifier receives the outcome of every settlement attempt, once,
// after the order's state is durable.
type PaymentNotifier interface {
	OnPaymentCompleted(ctx context.Context, order *models.Order, method string)
	OnPaymentFailed(ctx context.Context, order *models.Order, reason string)
}

// TableListener receives table status changes made by the synchronizer.
type TableListener interface {
	OnTableStatusChanged(ctx context.Context, table models.Table, from, to string)
}

// Fanout forwards events to every registered target that implements the
// matching interface. A nil *Fanout drops everything.
type Fanout struct {
	payments []PaymentNotifier
	tables   []TableListener
}

// NewFanout registers each target under every notifier interface it
// implements. Nil targets are skipped.
func NewFanout(targets ...any) *Fanout {
	f := &Fanout{}
	for _, t := range targets {
		if t == nil {
			continue
		}
		if p, ok := t.(PaymentNotifier); ok {
			f.payments = append(f.payments, p)
		}
		if l, ok := t.(TableListener); ok {
			f.tables = append(f.tables, l)
		}
	}
	return f
}

func (f *Fanout) OnPaymentCompleted(ctx context.Context, order *models.Order, method string) {
	if f == nil {
		return
	}
	for _, p := range f.payments {
		p.OnPaymentCompleted(ctx, order, method)
	}
}

func (f *Fanout) OnPaymentFailed(ctx context.Context, order *models.Order, reason string) {
	if f == nil {
		return
	}
	for _, p := range f.payments {
		p.OnPaymentFailed(ctx, order, reason)
	}
}

func (f *Fanout) OnTableStatusChanged(ctx context.Context, table models.Table, from, to string) {
	if f == nil {
		return
	}
	for _, l := range f.tables {
		l.OnTableStatusChanged(ctx, table, from, to)
	}
}

// tableChange is a committed-pending table move, emitted after commit.
type tableChange struct {
	table models.Table
	from  string
	to    string
}
