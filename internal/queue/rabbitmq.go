package queue

import (
	"context"
	"fmt"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
)

// RabbitMQTransport publishes each topic to a durable queue of the same
// name on the default exchange.  The connection is dialled lazily and
// dropped after any failure so the next event re-dials.
type RabbitMQTransport struct {
	url         string
	dialTimeout time.Duration

	mu       sync.Mutex
	conn     *amqp.Connection
	ch       *amqp.Channel
	declared map[string]bool
}

func NewRabbitMQTransport(url string) *RabbitMQTransport {
	return &RabbitMQTransport{url: url, dialTimeout: 5 * time.Second, declared: map[string]bool{}}
}

func (t *RabbitMQTransport) Publish(ctx context.Context, topic, key string, body []byte) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	ch, err := t.channel()
	if err != nil {
		return err
	}

	// Ensure the queue exists (idempotent). Durable so messages survive broker restarts.
	if !t.declared[topic] {
		if _, err := ch.QueueDeclare(topic, true, false, false, false, nil); err != nil {
			t.reset()
			return fmt.Errorf("rabbitmq: queue declare: %w", err)
		}
		t.declared[topic] = true
	}

	err = ch.PublishWithContext(ctx,
		"",    // default exchange
		topic, // routing key = queue name
		false, // mandatory
		false, // immediate
		amqp.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqp.Persistent,
			Timestamp:    time.Now().UTC(),
			Type:         key,
			Body:         body,
		})
	if err != nil {
		t.reset()
		return fmt.Errorf("rabbitmq: publish: %w", err)
	}
	return nil
}

func (t *RabbitMQTransport) channel() (*amqp.Channel, error) {
	if t.ch != nil && !t.ch.IsClosed() {
		return t.ch, nil
	}
	t.reset()

	conn, err := amqp.DialConfig(t.url, amqp.Config{Dial: amqp.DefaultDial(t.dialTimeout)})
	if err != nil {
		return nil, fmt.Errorf("rabbitmq: dial: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("rabbitmq: channel open: %w", err)
	}
	t.conn, t.ch = conn, ch
	return ch, nil
}

// reset closes whatever is open; callers hold t.mu.
func (t *RabbitMQTransport) reset() {
	if t.ch != nil {
		_ = t.ch.Close()
	}
	if t.conn != nil {
		_ = t.conn.Close()
	}
	t.ch, t.conn = nil, nil
	t.declared = map[string]bool{}
}

func (t *RabbitMQTransport) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.reset()
	return nil
}
