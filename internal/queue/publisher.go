package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"
)

// Transport delivers one encoded event to the bus.
type Transport interface {
	Publish(ctx context.Context, topic, key string, body []byte) error
	Close() error
}

// PublisherOptions sizes the in-process queue.
type PublisherOptions struct {
	QueueSize      int
	Workers        int
	PublishTimeout time.Duration
}

type message struct {
	topic string
	key   string
	body  []byte
}

// Publisher hands events to background workers through a bounded queue.
// Delivery is at most once: a full queue, a closed publisher or a failing
// transport drops the event and logs it.
type Publisher struct {
	transport Transport
	log       *slog.Logger
	timeout   time.Duration
	now       func() time.Time

	mu     sync.RWMutex
	closed bool
	jobs   chan message
	wg     sync.WaitGroup

	dropped atomic.Uint64
	failed  atomic.Uint64
}

// NewPublisher starts the workers.  Close must be called to stop them.
func NewPublisher(t Transport, opts PublisherOptions, log *slog.Logger) *Publisher {
	if opts.QueueSize <= 0 {
		opts.QueueSize = 256
	}
	if opts.Workers <= 0 {
		opts.Workers = 1
	}
	if opts.PublishTimeout <= 0 {
		opts.PublishTimeout = 3 * time.Second
	}
	p := &Publisher{
		transport: t,
		log:       log.With("component", "event_publisher"),
		timeout:   opts.PublishTimeout,
		now:       time.Now,
		jobs:      make(chan message, opts.QueueSize),
	}
	p.wg.Add(opts.Workers)
	for range opts.Workers {
		go p.worker()
	}
	return p
}

// Publish enqueues an event and returns immediately.  It never blocks on
// the transport and never fails.
func (p *Publisher) Publish(topic, eventType string, payload any) {
	body, err := encode(eventType, p.now(), payload)
	if err != nil {
		p.dropped.Add(1)
		p.log.Error("event encode failed", "event", eventType, "error", err)
		return
	}

	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		p.dropped.Add(1)
		p.log.Warn("event dropped: publisher closed", "event", eventType)
		return
	}
	select {
	case p.jobs <- message{topic: topic, key: eventType, body: body}:
	default:
		p.dropped.Add(1)
		p.log.Warn("event dropped: queue full", "event", eventType, "topic", topic)
	}
}

// Dropped counts events discarded before reaching the transport.
func (p *Publisher) Dropped() uint64 { return p.dropped.Load() }

// Failed counts events the transport rejected.
func (p *Publisher) Failed() uint64 { return p.failed.Load() }

func (p *Publisher) worker() {
	defer p.wg.Done()
	for m := range p.jobs {
		p.deliver(m)
	}
}

func (p *Publisher) deliver(m message) {
	defer func() {
		if r := recover(); r != nil {
			p.failed.Add(1)
			p.log.Error("event transport panicked", "event", m.key, "panic", fmt.Sprint(r))
		}
	}()

	ctx, cancel := context.WithTimeout(context.Background(), p.timeout)
	defer cancel()
	if err := p.transport.Publish(ctx, m.topic, m.key, m.body); err != nil {
		p.failed.Add(1)
		p.log.Warn("event publish failed", "event", m.key, "topic", m.topic, "error", err)
	}
}

// Close stops accepting events, waits for queued ones to drain until ctx
// is done, then closes the transport.
func (p *Publisher) Close(ctx context.Context) error {
	p.mu.Lock()
	if !p.closed {
		p.closed = true
		close(p.jobs)
	}
	p.mu.Unlock()

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		return fmt.Errorf("draining event queue: %w", ctx.Err())
	}
	return p.transport.Close()
}

func encode(eventType string, at time.Time, payload any) ([]byte, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return json.Marshal(Envelope{Event: eventType, OccurredAt: at.UTC(), Data: data})
}

// NopTransport discards every event.  Used when EVENT_BUS=none.
type NopTransport struct{}

func (NopTransport) Publish(context.Context, string, string, []byte) error { return nil }
func (NopTransport) Close() error                                          { return nil }
