package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/nickmous/beanstash/internal/logging"
)

// ExchangeName is the fanout exchange account events are published to.
const ExchangeName = "account.events"

// Publisher sends account events.
type Publisher interface {
	Publish(ctx context.Context, ev AccountEvent) error
}

// NopPublisher discards events. Used when EVENTS_ENABLED is false.
type NopPublisher struct{}

func (NopPublisher) Publish(context.Context, AccountEvent) error { return nil }

// AMQPPublisher dials the broker for every Publish. It is meant for
// short-lived callers such as the provisioning CLI.
type AMQPPublisher struct {
	URL      string
	Exchange string
	Logger   *slog.Logger
}

func NewAMQPPublisher(url string, logger *slog.Logger) *AMQPPublisher {
	return &AMQPPublisher{URL: url, Exchange: ExchangeName, Logger: logging.OrDiscard(logger)}
}

// Publish declares the exchange (idempotent) and sends ev as a persistent
// JSON message.
func (p *AMQPPublisher) Publish(ctx context.Context, ev AccountEvent) error {
	logger := logging.OrDiscard(p.Logger)
	conn, err := amqp.Dial(p.URL)
	if err != nil {
		logger.Error("rabbitmq: dial failed", "err", err)
		return fmt.Errorf("dial broker: %w", err)
	}
	defer func() { _ = conn.Close() }()

	ch, err := conn.Channel()
	if err != nil {
		return fmt.Errorf("open channel: %w", err)
	}
	defer func() { _ = ch.Close() }()

	if err := declareExchange(ch, p.Exchange); err != nil {
		return err
	}

	if ev.OccurredAt.IsZero() {
		ev.OccurredAt = time.Now().UTC()
	}
	body, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}

	pub := amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		Timestamp:    ev.OccurredAt,
		Type:         string(ev.Type),
		Body:         body,
	}
	if err := ch.PublishWithContext(ctx, p.Exchange, "", false, false, pub); err != nil {
		logger.Error("rabbitmq: publish failed", "type", ev.Type, "err", err)
		return fmt.Errorf("publish: %w", err)
	}
	logger.Debug("rabbitmq: event published", "type", ev.Type, "username", ev.Username)
	return nil
}

func declareExchange(ch *amqp.Channel, name string) error {
	if err := ch.ExchangeDeclare(
		name,
		amqp.ExchangeFanout,
		true,  // durable
		false, // autoDelete
		false, // internal
		false, // noWait
		nil,
	); err != nil {
		return fmt.Errorf("exchange declare: %w", err)
	}
	return nil
}
