package main

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iliyamo/autoshop-identity/internal/queue"
)

func TestLogEvent(t *testing.T) {
	var buf bytes.Buffer
	h := logEvent(slog.New(slog.NewJSONHandler(&buf, nil)))

	err := h(context.Background(), queue.Envelope{
		Event:      queue.EventUserLoggedOut,
		OccurredAt: time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC),
		Data:       json.RawMessage(`{"principal_id":"p-1","session_id":"s-1"}`),
	})
	require.NoError(t, err)

	var line map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	assert.Equal(t, "user.logged_out", line["event"])
	assert.Equal(t, "p-1", line["principal_id"])
	assert.Equal(t, "s-1", line["session_id"])
}

func TestLogEvent_RejectsBadData(t *testing.T) {
	h := logEvent(slog.New(slog.NewJSONHandler(&bytes.Buffer{}, nil)))
	err := h(context.Background(), queue.Envelope{Event: "x", Data: json.RawMessage(`[1,2]`)})
	assert.Error(t, err)
}
