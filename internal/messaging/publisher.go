package messaging

import (
	"context"
	"encoding/json"
	"time"

	"github.com/rabbitmq/amqp091-go"
	"github.com/rs/zerolog"

	"github.com/kopi-pos/api/internal/event"
	"github.com/kopi-pos/api/internal/models"
)

const defaultPublishTimeout = 5 * time.Second

// Channel is the part of *amqp091.Channel the publisher needs.
type Channel interface {
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp091.Publishing) error
}

// Publisher forwards payment outcomes and table status changes to the
// pos_events exchange. Publish failures are logged and never reach the
// caller; the order state they describe is already committed.
type Publisher struct {
	ch      Channel
	log     zerolog.Logger
	timeout time.Duration
	now     func() time.Time
}

func NewPublisher(ch Channel, log zerolog.Logger) *Publisher {
	return &Publisher{
		ch:      ch,
		log:     log.With().Str("component", "publisher").Logger(),
		timeout: defaultPublishTimeout,
		now:     time.Now,
	}
}

func (p *Publisher) OnPaymentCompleted(ctx context.Context, order *models.Order, method string) {
	p.publish(ctx, event.TypePaymentCompleted, event.PaymentCompleted(order, method, p.now()))
}

func (p *Publisher) OnPaymentFailed(ctx context.Context, order *models.Order, reason string) {
	p.publish(ctx, event.TypePaymentFailed, event.PaymentFailed(order, reason, p.now()))
}

func (p *Publisher) OnTableStatusChanged(ctx context.Context, table models.Table, from, to string) {
	p.publish(ctx, event.TypeTableStatus, event.TableStatusChanged(table, from, to, p.now()))
}

func (p *Publisher) publish(ctx context.Context, routingKey string, payload any) {
	body, err := json.Marshal(payload)
	if err != nil {
		p.log.Error().Err(err).Str("routing_key", routingKey).Msg("marshal event")
		return
	}

	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), p.timeout)
	defer cancel()

	err = p.ch.PublishWithContext(ctx, Exchange, routingKey, false, false, amqp091.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp091.Persistent,
		Timestamp:    p.now(),
		Body:         body,
	})
	if err != nil {
		p.log.Error().Err(err).Str("routing_key", routingKey).Msg("publish event failed")
		return
	}
	p.log.Debug().Str("routing_key", routingKey).Int("size", len(body)).Msg("event published")
}
