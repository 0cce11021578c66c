// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package logging

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/trace"
)

func setup(t *testing.T, buf *bytes.Buffer, format, level string) *slog.Logger {
	t.Helper()
	logger, err := Setup(Options{Service: "scriptkit", Version: "1.0.0", Format: format, Level: level, Writer: buf})
	require.NoError(t, err)
	return logger
}

func TestSetup_JSONFormat(t *testing.T) {
	var buf bytes.Buffer
	logger := setup(t, &buf, FormatJSON, "")

	logger.Info("test message", "phase", "config_loaded")

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry), "Failed to parse JSON: %s", buf.String())

	assert.Equal(t, "test message", entry["msg"])
	assert.Equal(t, "scriptkit", entry["service"])
	assert.Equal(t, "1.0.0", entry["version"])
	assert.Equal(t, "config_loaded", entry["phase"])
	assert.Contains(t, entry, "time", "time field missing")
	assert.Contains(t, entry, "level", "level field missing")
}

func TestSetup_TextFormat(t *testing.T) {
	var buf bytes.Buffer
	logger := setup(t, &buf, FormatText, "")

	logger.Info("test message")

	output := buf.String()
	assert.Contains(t, output, "test message", "Output missing message")
	assert.Contains(t, output, "service=scriptkit", "Output missing service")
}

func TestSetup_DefaultFormatIsJSON(t *testing.T) {
	var buf bytes.Buffer
	logger := setup(t, &buf, "", "")

	logger.Info("test message")

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry), "Default format should be JSON")
}

func TestSetup_InvalidOptions(t *testing.T) {
	_, err := Setup(Options{Format: "xml"})
	assert.ErrorContains(t, err, "log format")

	_, err = Setup(Options{Level: "loud"})
	assert.ErrorContains(t, err, "unknown log level")
}

func TestSetup_Level(t *testing.T) {
	var buf bytes.Buffer
	logger := setup(t, &buf, FormatJSON, "warn")

	logger.Info("hidden")
	logger.Debug("hidden too")
	assert.Empty(t, buf.String())

	logger.Warn("shown")
	assert.Contains(t, buf.String(), "shown")
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in   string
		want slog.Level
	}{
		{"", slog.LevelInfo},
		{"DEBUG", slog.LevelDebug},
		{"info", slog.LevelInfo},
		{"warning", slog.LevelWarn},
		{"error", slog.LevelError},
	}
	for _, tt := range tests {
		got, err := ParseLevel(tt.in)
		require.NoError(t, err, tt.in)
		assert.Equal(t, tt.want, got, tt.in)
	}
}

func TestHandler_TraceContext(t *testing.T) {
	var buf bytes.Buffer
	logger := setup(t, &buf, FormatJSON, "")

	traceID, _ := trace.TraceIDFromHex("4bf92f3577b34da6a3ce929d0e0e4736")
	spanID, _ := trace.SpanIDFromHex("00f067aa0ba902b7")
	spanCtx := trace.NewSpanContext(trace.SpanContextConfig{
		TraceID: traceID,
		SpanID:  spanID,
	})
	ctx := trace.ContextWithSpanContext(context.Background(), spanCtx)

	logger.InfoContext(ctx, "traced message")

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry), "Failed to parse JSON")

	assert.Equal(t, "4bf92f3577b34da6a3ce929d0e0e4736", entry["trace_id"])
	assert.Equal(t, "00f067aa0ba902b7", entry["span_id"])
}

func TestHandler_NoTraceContext(t *testing.T) {
	var buf bytes.Buffer
	logger := setup(t, &buf, FormatJSON, "")

	logger.Info("no trace message")

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry), "Failed to parse JSON")
	assert.NotContains(t, entry, "trace_id")
	assert.NotContains(t, entry, "span_id")
}

func TestHandler_WithAttrsKeepsService(t *testing.T) {
	var buf bytes.Buffer
	logger := setup(t, &buf, FormatJSON, "").With("plugin", "echo").WithGroup("hook")

	logger.Info("dispatched", "name", "configure")

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "echo", entry["plugin"])
	hook, ok := entry["hook"].(map[string]any)
	require.True(t, ok, "expected a hook group, got %v", entry)
	assert.Equal(t, "configure", hook["name"])
}

func TestSetDefault(t *testing.T) {
	original := slog.Default()
	defer slog.SetDefault(original)

	require.NoError(t, SetDefault(Options{Service: "test-service", Version: "2.0.0"}))
	assert.NotEqual(t, original, slog.Default(), "SetDefault did not change the default logger")
	assert.Error(t, SetDefault(Options{Format: "yaml"}))
}
