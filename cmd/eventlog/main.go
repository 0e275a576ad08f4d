// Command eventlog consumes identity lifecycle events from RabbitMQ and
// writes one structured log line per event.  Events are best effort, so
// gaps in the stream are expected.
package main

import (
	"context"
	"encoding/json"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/iliyamo/autoshop-identity/internal/config"
	"github.com/iliyamo/autoshop-identity/internal/logging"
	"github.com/iliyamo/autoshop-identity/internal/queue"
)

var version = "dev"

func main() {
	_ = godotenv.Load()

	// Only the events and log sections matter here; DB and JWT settings
	// may legitimately be absent, so validation errors are ignored.
	cfg, _ := config.Load()
	log := logging.New(cfg.Log, version)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	err := queue.StartEventConsumer(ctx, cfg.Events.RabbitMQURL, cfg.Events.Topic, logEvent(log), log)
	if err != nil && ctx.Err() == nil {
		log.Error("consumer stopped", "error", err)
		os.Exit(1)
	}
}

func logEvent(log *slog.Logger) queue.Handler {
	return func(ctx context.Context, ev queue.Envelope) error {
		var data map[string]any
		if err := json.Unmarshal(ev.Data, &data); err != nil {
			return err
		}
		attrs := []any{"event", ev.Event, "occurred_at", ev.OccurredAt}
		for k, v := range data {
			attrs = append(attrs, k, v)
		}
		log.InfoContext(ctx, "identity event", attrs...)
		return nil
	}
}
