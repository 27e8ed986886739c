package logging

import (
	"bytes"
	"errors"
	"log/slog"
	"testing"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewSlogServiceLogger(t *testing.T) {
	var buf bytes.Buffer
	base := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))
	logger := NewSlogServiceLogger(base)

	logger.Info("hello", LogFields{"queue": "orders"})
	out := buf.String()
	assert.Contains(t, out, "hello")
	assert.Contains(t, out, "orders")
}

func TestNewSlogServiceLogger_NilPanics(t *testing.T) {
	assert.Panics(t, func() { NewSlogServiceLogger(nil) })
}

func TestServiceLogger_Error(t *testing.T) {
	var buf bytes.Buffer
	base := slog.New(slog.NewTextHandler(&buf, nil))
	logger := NewSlogServiceLogger(base)

	logger.Error("dispatch failed", errors.New("boom"), LogFields{"queue": "orders"})
	out := buf.String()
	assert.Contains(t, out, "dispatch failed")
	assert.Contains(t, out, "boom")
}

func TestServiceLogger_With(t *testing.T) {
	var buf bytes.Buffer
	base := slog.New(slog.NewTextHandler(&buf, nil))
	logger := NewSlogServiceLogger(base).With(LogFields{"component": "dispatcher"})

	logger.Info("dispatched", nil)
	assert.Contains(t, buf.String(), "dispatcher")
}

func TestNewNopServiceLogger(t *testing.T) {
	logger := NewNopServiceLogger()
	require.NotNil(t, logger)
	// Must not panic on any level.
	logger.Debug("x", nil)
	logger.Info("x", LogFields{"a": 1})
	logger.Error("x", errors.New("boom"), nil)
	logger.Trace("x", nil)
}

// capturingAdapter records the last message forwarded through the
// watermill adapter.
type capturingAdapter struct {
	watermill.NopLogger
	lastMsg    string
	lastFields watermill.LogFields
}

func (c *capturingAdapter) Info(msg string, fields watermill.LogFields) {
	c.lastMsg = msg
	c.lastFields = fields
}

func TestNewWatermillAdapter_RoundTrip(t *testing.T) {
	captured := &capturingAdapter{}
	service := NewWatermillServiceLogger(captured)
	adapter := NewWatermillAdapter(service)

	adapter.Info("forwarded", watermill.LogFields{"queue": "orders"})
	assert.Equal(t, "forwarded", captured.lastMsg)
	assert.Equal(t, watermill.LogFields{"queue": "orders"}, captured.lastFields)
}

func TestNewWatermillAdapter_NilPanics(t *testing.T) {
	assert.Panics(t, func() { NewWatermillAdapter(nil) })
	assert.Panics(t, func() { NewWatermillServiceLogger(nil) })
}
