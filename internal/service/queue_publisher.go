// Package service holds integrations that sit beside the request path, such
// as publishing item events to RabbitMQ.  Publish errors are logged and
// returned so callers can ignore them without interrupting the request.
package service

import (
	"context"
	"encoding/json"
	"time"

	charmlog "github.com/charmbracelet/log"
	amqp "github.com/rabbitmq/amqp091-go"

	q "github.com/iliyamo/items-api/internal/queue"
)

// dialTimeout bounds how long a mutation response can wait on a dead broker.
const dialTimeout = 5 * time.Second

// Publisher emits item lifecycle events.
type Publisher interface {
	Publish(ctx context.Context, ev q.ItemEvent) error
}

// NopPublisher drops every event.  It is used when events are disabled.
type NopPublisher struct{}

func (NopPublisher) Publish(context.Context, q.ItemEvent) error { return nil }

// AMQPPublisher dials the broker per publish, which keeps it free of
// connection state at the cost of a handshake per event.
type AMQPPublisher struct {
	url   string
	queue string
	log   *charmlog.Logger
}

func NewAMQPPublisher(url, queueName string, log *charmlog.Logger) *AMQPPublisher {
	if queueName == "" {
		queueName = q.DefaultQueueName
	}
	return &AMQPPublisher{url: url, queue: queueName, log: log}
}

// Publish sends ev to the configured durable queue as a persistent message.
func (p *AMQPPublisher) Publish(ctx context.Context, ev q.ItemEvent) error {
	msg, err := newPublishing(ev)
	if err != nil {
		p.log.Error("Marshal event failed", "type", ev.Type, "error", err)
		return err
	}
	conn, err := amqp.DialConfig(p.url, amqp.Config{
		Heartbeat: 10 * time.Second,
		Locale:    "en_US",
		Dial:      amqp.DefaultDial(dialTimeout),
	})
	if err != nil {
		p.log.Warn("RabbitMQ dial failed", "error", err)
		return err
	}
	defer func() { _ = conn.Close() }()

	ch, err := conn.Channel()
	if err != nil {
		p.log.Warn("RabbitMQ channel open failed", "error", err)
		return err
	}
	defer func() { _ = ch.Close() }()

	// Ensure the queue exists (idempotent). Durable so messages survive broker restarts.
	if _, err := ch.QueueDeclare(p.queue, true, false, false, false, nil); err != nil {
		p.log.Warn("RabbitMQ queue declare failed", "queue", p.queue, "error", err)
		return err
	}
	if err := ch.PublishWithContext(ctx, "", p.queue, false, false, msg); err != nil {
		p.log.Warn("RabbitMQ publish failed", "queue", p.queue, "error", err)
		return err
	}
	return nil
}

func newPublishing(ev q.ItemEvent) (amqp.Publishing, error) {
	body, err := json.Marshal(ev)
	if err != nil {
		return amqp.Publishing{}, err
	}
	return amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		Type:         ev.Type,
		Timestamp:    time.Now().UTC(),
		Body:         body,
	}, nil
}
