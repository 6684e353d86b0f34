package queue

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/nickmous/beanstash/internal/logging"
)

// HandlerFunc processes one decoded event.
type HandlerFunc func(ctx context.Context, ev AccountEvent) error

// Consumer binds an exclusive, server-named queue to the events exchange so
// each process receives every event.
type Consumer struct {
	URL      string
	Exchange string
	Handle   HandlerFunc
	Logger   *slog.Logger

	// MaxBackoff caps the delay between reconnect attempts.
	MaxBackoff time.Duration
}

func NewConsumer(url string, handle HandlerFunc, logger *slog.Logger) *Consumer {
	return &Consumer{
		URL:        url,
		Exchange:   ExchangeName,
		Handle:     handle,
		Logger:     logging.OrDiscard(logger),
		MaxBackoff: 30 * time.Second,
	}
}

// Run keeps a connection to the broker until ctx is cancelled, reconnecting
// with exponential backoff. It returns ctx.Err().
func (c *Consumer) Run(ctx context.Context) error {
	logger := logging.OrDiscard(c.Logger)
	backoff := time.Second
	for {
		conn, err := amqp.Dial(c.URL)
		if err != nil {
			logger.Warn("event-consumer: dial failed", "err", err, "retry_in", backoff)
			if !sleep(ctx, backoff) {
				return ctx.Err()
			}
			if backoff < c.MaxBackoff {
				backoff *= 2
			}
			continue
		}
		backoff = time.Second

		err = c.consume(ctx, conn)
		_ = conn.Close()
		if ctx.Err() != nil {
			return ctx.Err()
		}
		logger.Warn("event-consumer: consume loop ended; reconnecting", "err", err)
		if !sleep(ctx, 2*time.Second) {
			return ctx.Err()
		}
	}
}

func (c *Consumer) consume(ctx context.Context, conn *amqp.Connection) error {
	ch, err := conn.Channel()
	if err != nil {
		return fmt.Errorf("channel open: %w", err)
	}
	defer func() { _ = ch.Close() }()

	if err := declareExchange(ch, c.Exchange); err != nil {
		return err
	}
	q, err := ch.QueueDeclare("", false, true, true, false, nil)
	if err != nil {
		return fmt.Errorf("queue declare: %w", err)
	}
	if err := ch.QueueBind(q.Name, "", c.Exchange, false, nil); err != nil {
		return fmt.Errorf("queue bind: %w", err)
	}
	msgs, err := ch.ConsumeWithContext(ctx, q.Name, "", false, true, false, false, nil)
	if err != nil {
		return fmt.Errorf("queue consume: %w", err)
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case d, ok := <-msgs:
			if !ok {
				return errors.New("deliveries channel closed")
			}
			if err := c.HandleMessage(ctx, d.Body); err != nil {
				// reject without requeue to avoid a tight redelivery loop
				_ = d.Nack(false, false)
				continue
			}
			_ = d.Ack(false)
		}
	}
}

// HandleMessage decodes body and passes it to the handler.
func (c *Consumer) HandleMessage(ctx context.Context, body []byte) error {
	logger := logging.OrDiscard(c.Logger)
	ev, err := DecodeEvent(body)
	if err != nil {
		logger.Warn("event-consumer: bad message", "err", err)
		return err
	}
	if c.Handle == nil {
		return nil
	}
	if err := c.Handle(ctx, ev); err != nil {
		logger.Error("event-consumer: handler failed", "type", ev.Type, "username", ev.Username, "err", err)
		return err
	}
	logger.Debug("event-consumer: handled", "type", ev.Type, "username", ev.Username)
	return nil
}

func sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
