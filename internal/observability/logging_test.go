package observability

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/agentcore/soul/internal/config"
)

func TestNewLoggerDefaultsToInfoTextHandler(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(config.LoggingConfig{}, &buf)

	logger.Debug("should not appear")
	require.Empty(t, buf.String())

	logger.Info("hello")
	require.Contains(t, buf.String(), "hello")
}

func TestNewLoggerDebugLevelEnablesDebug(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(config.LoggingConfig{Level: "debug"}, &buf)

	logger.Debug("debug line")
	require.Contains(t, buf.String(), "debug line")
}

func TestNewLoggerJSONFormat(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(config.LoggingConfig{Format: "json"}, &buf)

	logger.Info("hello", "k", "v")

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &decoded))
	require.Equal(t, "hello", decoded["msg"])
	require.Equal(t, "v", decoded["k"])
}

func TestNewLoggerRedactsAPIKeyInMessage(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(config.LoggingConfig{Format: "json"}, &buf)

	logger.Info("calling provider api_key=sk-ant-REDACTED")

	require.NotContains(t, buf.String(), "sk-ant-REDACTED")
	require.Contains(t, buf.String(), "[REDACTED]")
}

func TestNewLoggerRedactsErrorValuedAttr(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(config.LoggingConfig{Format: "json"}, &buf)

	err := errors.New("auth failed: bearer abcdefghijklmnopqrstuvwxyz0123456789")
	logger.Error("request failed", "error", err)

	require.NotContains(t, buf.String(), "abcdefghijklmnopqrstuvwxyz0123456789")
	require.Contains(t, buf.String(), "[REDACTED]")
}

func TestNewLoggerAttachesContextCorrelationIDs(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(config.LoggingConfig{Format: "json"}, &buf)

	ctx := WithSessionID(context.Background(), "sess-1")
	ctx = WithRunID(ctx, "run-1")
	ctx = WithToolCallID(ctx, "call-1")

	logger.InfoContext(ctx, "dispatching")

	out := buf.String()
	require.Contains(t, out, "sess-1")
	require.Contains(t, out, "run-1")
	require.Contains(t, out, "call-1")
}

func TestNewLoggerOmitsContextGroupWhenNoCorrelationIDs(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(config.LoggingConfig{Format: "json"}, &buf)

	logger.InfoContext(context.Background(), "plain line")

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &decoded))
	_, hasContext := decoded["context"]
	require.False(t, hasContext)
}

func TestNewLoggerNilWriterDefaultsToStdout(t *testing.T) {
	logger := NewLogger(config.LoggingConfig{}, nil)
	require.NotNil(t, logger)
}

func TestCompileRedactPatternsSkipsInvalidRegex(t *testing.T) {
	compiled := compileRedactPatterns([]string{`[`, `valid-\d+`})
	require.Len(t, compiled, 1)
}

func TestRedactingHandlerWithAttrsRedactsEagerly(t *testing.T) {
	var buf bytes.Buffer
	base := slog.NewJSONHandler(&buf, nil)
	h := &redactingHandler{next: &contextHandler{next: base}, patterns: compileRedactPatterns(DefaultRedactPatterns)}
	logger := slog.New(h).With("secret", "password=hunter2hunter2hunter2")

	logger.Info("line")

	require.NotContains(t, buf.String(), "hunter2hunter2hunter2")
	require.True(t, strings.Contains(buf.String(), "[REDACTED]") || strings.Contains(buf.String(), "secret"))
}
