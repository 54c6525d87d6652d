package logger

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func TestNew_LevelParsing(t *testing.T) {
	l := New("debug")
	assert.True(t, l.Core().Enabled(zap.DebugLevel))

	l = New("warn")
	assert.False(t, l.Core().Enabled(zap.InfoLevel))
	assert.True(t, l.Core().Enabled(zap.WarnLevel))

	l = New("not-a-level")
	assert.True(t, l.Core().Enabled(zap.InfoLevel))
	assert.False(t, l.Core().Enabled(zap.DebugLevel))
}

func TestContextLogger_EnrichesFromContext(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	cl := NewContextLogger(zap.New(core))

	ctx := WithUserID(WithRequestID(context.Background(), "req-1"), "user-1")
	cl.LogRequest(ctx, "GET", "/health", 200, 3)

	require.Equal(t, 1, logs.Len())
	fields := logs.All()[0].ContextMap()
	assert.Equal(t, "user-1", fields["user_id"])
	assert.Equal(t, "req-1", fields["request_id"])
	assert.Equal(t, "/health", fields["path"])
	assert.NotContains(t, fields, "trace_id")
}

func TestContextLogger_LogError(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	cl := NewContextLogger(zap.New(core))

	cl.LogError(WithTraceID(context.Background(), "abc"), errors.New("boom"), "request failed")

	require.Equal(t, 1, logs.Len())
	entry := logs.All()[0]
	assert.Equal(t, "request failed", entry.Message)
	assert.Equal(t, "abc", entry.ContextMap()["trace_id"])
	assert.Equal(t, "boom", entry.ContextMap()["error"])
}
