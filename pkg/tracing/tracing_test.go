package tracing

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	assert.False(t, cfg.Enabled)
	assert.Equal(t, "pairline", cfg.ServiceName)
	assert.Equal(t, "http://localhost:14268/api/traces", cfg.JaegerURL)
	assert.Equal(t, 1.0, cfg.SampleRate)
}

func TestInit_DisabledIsNoop(t *testing.T) {
	tp, err := Init(DefaultConfig())
	require.NoError(t, err)
	assert.NoError(t, tp.Shutdown(context.Background()))
}

func TestSpansWithoutProvider(t *testing.T) {
	ctx, span := StartSpan(context.Background(), "test.operation")
	require.NotNil(t, span)
	defer span.End()

	AddSpanAttributes(ctx, attribute.String("test.key", "value"), attribute.Int("test.number", 42))
	RecordError(ctx, errors.New("test error"))
	assert.Equal(t, "", TraceID(ctx))
}

func TestTraceHelpers(t *testing.T) {
	ctx := context.Background()

	_, span := TraceHTTPRequest(ctx, "GET", "/api/v1/stats")
	require.NotNil(t, span)
	span.End()

	_, span = TraceWebSocketMessage(ctx, "find_match", "user-123")
	require.NotNil(t, span)
	span.End()

	_, span = TraceStoreOperation(ctx, "record_report", "redis")
	require.NotNil(t, span)
	span.End()
}
