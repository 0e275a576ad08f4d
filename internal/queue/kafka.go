package queue

import (
	"context"
	"fmt"

	skafka "github.com/segmentio/kafka-go"
)

// KafkaWriter is the subset of kafka.Writer the transport uses.
type KafkaWriter interface {
	WriteMessages(ctx context.Context, msgs ...skafka.Message) error
	Close() error
}

// KafkaTransport writes each event to the topic it is published on, keyed
// by event type.
type KafkaTransport struct {
	writer KafkaWriter
}

// NewKafkaTransport builds a writer for brokers.  The writer has no fixed
// topic; each message names its own.
func NewKafkaTransport(brokers []string) *KafkaTransport {
	return &KafkaTransport{writer: &skafka.Writer{
		Addr:                   skafka.TCP(brokers...),
		Balancer:               &skafka.Hash{},
		RequiredAcks:           skafka.RequireOne,
		AllowAutoTopicCreation: true,
	}}
}

// NewKafkaTransportWithWriter allows injecting a test writer.
func NewKafkaTransportWithWriter(w KafkaWriter) *KafkaTransport {
	return &KafkaTransport{writer: w}
}

func (t *KafkaTransport) Publish(ctx context.Context, topic, key string, body []byte) error {
	msg := skafka.Message{Topic: topic, Key: []byte(key), Value: body}
	if err := t.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("kafka: write: %w", err)
	}
	return nil
}

func (t *KafkaTransport) Close() error { return t.writer.Close() }
