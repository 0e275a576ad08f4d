package queue

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"
)

// mqttQoS is at-least-once on the broker leg; the publisher above is still
// at-most-once end to end.
const mqttQoS = 1

// MQTTTransport publishes to an MQTT broker, connecting on first use.
type MQTTTransport struct {
	mu     sync.Mutex
	client paho.Client
}

func NewMQTTTransport(broker, clientID string) *MQTTTransport {
	opts := paho.NewClientOptions().
		AddBroker(broker).
		SetClientID(clientID).
		SetAutoReconnect(true).
		SetConnectTimeout(5 * time.Second)
	return &MQTTTransport{client: paho.NewClient(opts)}
}

// NewMQTTTransportWithClient allows injecting a test client.
func NewMQTTTransportWithClient(c paho.Client) *MQTTTransport {
	return &MQTTTransport{client: c}
}

func (t *MQTTTransport) Publish(ctx context.Context, topic, _ string, body []byte) error {
	if err := t.ensureConnected(ctx); err != nil {
		return err
	}
	if err := wait(ctx, t.client.Publish(topic, mqttQoS, false, body)); err != nil {
		return fmt.Errorf("mqtt: publish: %w", err)
	}
	return nil
}

func (t *MQTTTransport) ensureConnected(ctx context.Context) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.client.IsConnected() {
		return nil
	}
	if err := wait(ctx, t.client.Connect()); err != nil {
		return fmt.Errorf("mqtt: connect: %w", err)
	}
	return nil
}

func wait(ctx context.Context, tok paho.Token) error {
	select {
	case <-tok.Done():
		return tok.Error()
	case <-ctx.Done():
		return errors.Join(errors.New("timed out"), ctx.Err())
	}
}

func (t *MQTTTransport) Close() error {
	if t.client.IsConnected() {
		t.client.Disconnect(250)
	}
	return nil
}
