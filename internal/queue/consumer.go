package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
)

// Handler processes one decoded event.  A non-nil error rejects the
// delivery without requeueing it.
type Handler func(ctx context.Context, ev Envelope) error

// StartEventConsumer connects to RabbitMQ, declares queueName (durable)
// and hands each delivery to handle.  It reconnects with exponential
// backoff and returns only when ctx is cancelled.
func StartEventConsumer(ctx context.Context, url, queueName string, handle Handler, log *slog.Logger) error {
	log = log.With("component", "event_consumer", "queue", queueName)
	backoff := time.Second
	for {
		conn, err := amqp.Dial(url)
		if err != nil {
			log.Warn("failed to dial broker", "error", err, "retry_in", backoff)
			if !sleep(ctx, backoff) {
				return ctx.Err()
			}
			if backoff < 30*time.Second {
				backoff *= 2
			}
			continue
		}
		backoff = time.Second // reset after successful connect

		err = consumeLoop(ctx, conn, queueName, handle, log)
		_ = conn.Close()
		if ctx.Err() != nil {
			return ctx.Err()
		}
		log.Warn("consume loop ended; reconnecting", "error", err)
		if !sleep(ctx, 2*time.Second) {
			return ctx.Err()
		}
	}
}

func consumeLoop(ctx context.Context, conn *amqp.Connection, queueName string, handle Handler, log *slog.Logger) error {
	ch, err := conn.Channel()
	if err != nil {
		return fmt.Errorf("channel open: %w", err)
	}
	defer func() { _ = ch.Close() }()

	if err := ch.Qos(50, 0, false); err != nil {
		log.Warn("set QoS failed", "error", err)
	}
	if _, err := ch.QueueDeclare(queueName, true, false, false, false, nil); err != nil {
		return fmt.Errorf("queue declare: %w", err)
	}
	msgs, err := ch.Consume(queueName, "", false, false, false, false, nil)
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
			if err := dispatch(ctx, d.Body, handle); err != nil {
				log.Warn("handle message failed", "error", err)
				_ = d.Nack(false, false) // reject, do not requeue to avoid tight loops
				continue
			}
			_ = d.Ack(false)
		}
	}
}

func dispatch(ctx context.Context, body []byte, handle Handler) error {
	ev, err := DecodeEnvelope(body)
	if err != nil {
		return err
	}
	return handle(ctx, ev)
}

// DecodeEnvelope parses a message body and rejects envelopes with no event name.
func DecodeEnvelope(body []byte) (Envelope, error) {
	var ev Envelope
	if err := json.Unmarshal(body, &ev); err != nil {
		return Envelope{}, fmt.Errorf("unmarshal: %w", err)
	}
	if ev.Event == "" {
		return Envelope{}, errors.New("envelope has no event name")
	}
	return ev, nil
}

func sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return true
	case <-ctx.Done():
		return false
	}
}
