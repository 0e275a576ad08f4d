package main

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/iliyamo/autoshop-identity/internal/config"
	"github.com/iliyamo/autoshop-identity/internal/queue"
)

func TestNewTransport(t *testing.T) {
	cfg := config.EventsConfig{RabbitMQURL: "amqp://x", KafkaBrokers: []string{"k:9092"}, MQTTBroker: "tcp://m:1883", MQTTClientID: "id"}

	cfg.Bus = "rabbitmq"
	assert.IsType(t, &queue.RabbitMQTransport{}, newTransport(cfg))
	cfg.Bus = "kafka"
	assert.IsType(t, &queue.KafkaTransport{}, newTransport(cfg))
	cfg.Bus = "mqtt"
	assert.IsType(t, &queue.MQTTTransport{}, newTransport(cfg))
	cfg.Bus = "none"
	assert.IsType(t, queue.NopTransport{}, newTransport(cfg))
}
