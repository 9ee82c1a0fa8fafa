package messaging

import (
	"context"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/rabbitmq/amqp091-go"
	"github.com/rs/zerolog"
)

// Exchange is the topic exchange every POS event is published to.
const Exchange = "pos_events"

const dialAttempts = 5

// Connection holds the broker connection and the channel publishers use.
type Connection struct {
	url     string
	conn    *amqp091.Connection
	channel *amqp091.Channel
}

// Dial connects to RabbitMQ, retrying with exponential backoff, and declares
// the event exchange.
func Dial(ctx context.Context, url string, log zerolog.Logger) (*Connection, error) {
	c := &Connection{url: url}

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 2 * time.Second
	policy := backoff.WithContext(backoff.WithMaxRetries(b, dialAttempts-1), ctx)

	err := backoff.RetryNotify(c.connect, policy, func(err error, wait time.Duration) {
		log.Warn().Err(err).Dur("retry_in", wait).Msg("rabbitmq connection failed")
	})
	if err != nil {
		return nil, fmt.Errorf("connect to rabbitmq after %d attempts: %w", dialAttempts, err)
	}
	return c, nil
}

func (c *Connection) connect() error {
	conn, err := amqp091.Dial(c.url)
	if err != nil {
		return err
	}
	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return err
	}
	err = ch.ExchangeDeclare(
		Exchange,
		amqp091.ExchangeTopic,
		true,  // durable
		false, // auto-deleted
		false, // internal
		false, // no-wait
		nil,
	)
	if err != nil {
		ch.Close()
		conn.Close()
		return backoff.Permanent(fmt.Errorf("declare %s exchange: %w", Exchange, err))
	}
	c.conn, c.channel = conn, ch
	return nil
}

func (c *Connection) Channel() *amqp091.Channel {
	return c.channel
}

func (c *Connection) IsClosed() bool {
	return c.conn == nil || c.conn.IsClosed()
}

func (c *Connection) Close() error {
	if c.channel != nil {
		c.channel.Close()
	}
	if c.conn != nil {
		return c.conn.Close()
	}
	return nil
}
