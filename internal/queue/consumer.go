package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"time"

	charmlog "github.com/charmbracelet/log"
	amqp "github.com/rabbitmq/amqp091-go"
)

// StartItemConsumer connects to RabbitMQ, declares queueName (durable) and
// consumes item events, writing one line per event to out.  It reconnects
// with a doubling backoff capped at 30s and returns only when ctx is done.
// Messages that cannot be decoded are rejected without requeue so the loop
// never spins on a poison message.
func StartItemConsumer(ctx context.Context, url, queueName string, out io.Writer, log *charmlog.Logger) error {
	backoff := time.Second
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		conn, err := amqp.Dial(url)
		if err != nil {
			log.Warn("Failed to dial broker", "error", err, "retry_in", backoff)
			if !sleep(ctx, backoff) {
				return ctx.Err()
			}
			if backoff < 30*time.Second {
				backoff *= 2
			}
			continue
		}
		backoff = time.Second // reset after successful connect

		err = consumeLoop(ctx, conn, queueName, out, log)
		_ = conn.Close()
		if ctx.Err() != nil {
			return ctx.Err()
		}
		log.Warn("Consume loop ended, reconnecting", "error", err)
		if !sleep(ctx, 2*time.Second) {
			return ctx.Err()
		}
	}
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

func consumeLoop(ctx context.Context, conn *amqp.Connection, queueName string, out io.Writer, log *charmlog.Logger) error {
	ch, err := conn.Channel()
	if err != nil {
		return fmt.Errorf("channel open: %w", err)
	}
	defer func() { _ = ch.Close() }()

	if err := ch.Qos(50, 0, false); err != nil {
		log.Warn("Set QoS failed", "error", err)
	}
	if _, err := ch.QueueDeclare(queueName, true, false, false, false, nil); err != nil {
		return fmt.Errorf("queue declare: %w", err)
	}
	msgs, err := ch.ConsumeWithContext(ctx, queueName, "", false, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("queue consume: %w", err)
	}

	for d := range msgs {
		if err := HandleMessage(d.Body, out); err != nil {
			log.Error("Handle message failed", "error", err)
			_ = d.Nack(false, false)
			continue
		}
		_ = d.Ack(false)
	}
	return errors.New("deliveries channel closed")
}

// HandleMessage decodes one event and appends a single human-readable line to out.
func HandleMessage(body []byte, out io.Writer) error {
	var ev ItemEvent
	if err := json.Unmarshal(body, &ev); err != nil {
		return fmt.Errorf("unmarshal: %w", err)
	}
	if ev.Type == "" || ev.ItemID == 0 {
		return fmt.Errorf("incomplete event: type=%q item_id=%d", ev.Type, ev.ItemID)
	}
	line := fmt.Sprintf("[%s] %s | item_id=%d", ev.OccurredAt, ev.Type, ev.ItemID)
	if ev.Type != ItemDeleted {
		line += fmt.Sprintf(" | name=%q | description=%q", ev.Name, ev.Description)
	}
	if _, err := io.WriteString(out, line+"\n"); err != nil {
		return fmt.Errorf("write event: %w", err)
	}
	return nil
}
