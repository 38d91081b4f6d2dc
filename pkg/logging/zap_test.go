package logging

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func newObserved(level zapcore.Level) (*ZapLogger, *observer.ObservedLogs) {
	core, logs := observer.New(level)
	return NewZapLogger(zap.New(core)), logs
}

func TestZapLoggerFields(t *testing.T) {
	logger, logs := newObserved(zapcore.DebugLevel)

	logger.WithFields(F("component", "api")).Info("started", F("port", 8080), Err(errors.New("boom")))

	require.Equal(t, 1, logs.Len())
	entry := logs.All()[0]
	assert.Equal(t, "started", entry.Message)
	ctx := entry.ContextMap()
	assert.Equal(t, "api", ctx["component"])
	assert.EqualValues(t, 8080, ctx["port"])
	assert.Equal(t, "boom", ctx["error"])
}

func TestZapLoggerWithContext(t *testing.T) {
	logger, logs := newObserved(zapcore.InfoLevel)

	ctx := ContextWithSubject(ContextWithRequestID(context.Background(), "req-1"), "alice")
	logger.WithContext(ctx).Warn("slow")
	logger.WithContext(context.Background()).Debug("hidden")

	require.Equal(t, 1, logs.Len())
	fields := logs.All()[0].ContextMap()
	assert.Equal(t, "req-1", fields["request_id"])
	assert.Equal(t, "alice", fields["subject"])
}

func TestZapLoggerEvents(t *testing.T) {
	logger, logs := newObserved(zapcore.InfoLevel)

	logger.LogExecutionEvent("arn:exec", "started", map[string]interface{}{"apps": 2})
	logger.LogSystemEvent("shutdown", nil)

	require.Equal(t, 2, logs.Len())
	assert.Equal(t, "arn:exec", logs.All()[0].ContextMap()["execution_id"])
	assert.Equal(t, "shutdown", logs.All()[1].ContextMap()["event"])
}

func TestParseLevel(t *testing.T) {
	assert.Equal(t, zapcore.DebugLevel, parseLevel("debug"))
	assert.Equal(t, zapcore.ErrorLevel, parseLevel("error"))
	assert.Equal(t, zapcore.InfoLevel, parseLevel("verbose"))
}

func TestNewLogger(t *testing.T) {
	logger, err := NewLogger(LogConfig{Level: "debug", Format: "console", Output: "stderr"})
	require.NoError(t, err)
	logger.Debug("ok")

	NewNopLogger().Error("discarded")
}
