package monitoring

import (
	"context"
	"errors"
	"testing"
	"time"

	"pairline/internal/core/domain"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPrometheusCollector_RecordsMatchmaking(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewPrometheusCollector(reg)

	c.SetConnectedUsers(4)
	c.SetWaitingUsers(1)
	c.SetActiveSessions(2)
	c.RecordMatch("same", 3*time.Second)
	c.RecordMatch("same", time.Second)
	c.RecordMatch("opposite", time.Second)
	c.RecordSessionEnded(domain.ReasonPartnerLeft, time.Minute)
	c.RecordRelay(domain.RelayChatMessage, true)
	c.RecordRelay(domain.RelayChatMessage, false)
	c.RecordQualityChange("720p")
	c.RecordReport()
	c.RecordSwept(3)

	assert.Equal(t, 4.0, testutil.ToFloat64(c.connectedUsers))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.waitingUsers))
	assert.Equal(t, 2.0, testutil.ToFloat64(c.activeSessions))
	assert.Equal(t, 2.0, testutil.ToFloat64(c.matchesTotal.WithLabelValues("same")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.matchesTotal.WithLabelValues("opposite")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.sessionsEndedTotal.WithLabelValues("partner_left")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.relayedTotal.WithLabelValues("chat_message", "delivered")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.relayedTotal.WithLabelValues("chat_message", "dropped")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.qualityChanges.WithLabelValues("720p")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.reportsTotal))
	assert.Equal(t, 3.0, testutil.ToFloat64(c.sweptTotal))
}

func TestPrometheusCollector_SeparateRegistries(t *testing.T) {
	assert.NotPanics(t, func() {
		NewPrometheusCollector(prometheus.NewRegistry())
		NewPrometheusCollector(prometheus.NewRegistry())
	})
}

func TestHealthChecker_CheckAll(t *testing.T) {
	h := NewHealthChecker()
	h.AddCheck("ok", func(ctx context.Context) error { return nil }, 0, time.Second)

	status := h.CheckAll(context.Background())
	assert.Equal(t, StatusHealthy, status.Status)
	assert.Equal(t, StatusHealthy, status.Checks["ok"])
	assert.True(t, h.IsReady(context.Background()))

	h.AddCheck("store", func(ctx context.Context) error { return errors.New("connection refused") }, 0, time.Second)
	status = h.CheckAll(context.Background())
	assert.Equal(t, StatusUnhealthy, status.Status)
	assert.Equal(t, "connection refused", status.Checks["store"])
	assert.Equal(t, "connection refused", h.LastResults()["store"])
}

func TestHealthChecker_TimeoutIsApplied(t *testing.T) {
	h := NewHealthChecker()
	h.AddCheck("slow", func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	}, 0, 20*time.Millisecond)

	status := h.CheckAll(context.Background())
	assert.Equal(t, StatusUnhealthy, status.Status)
	assert.Contains(t, status.Checks["slow"], "deadline")
}

func TestHealthChecker_CapacityCheck(t *testing.T) {
	connected := 5
	h := NewHealthChecker()
	h.AddCapacityCheck(func() int { return connected }, 10, 0)
	assert.True(t, h.IsReady(context.Background()))

	connected = 11
	assert.False(t, h.IsReady(context.Background()))
}

func TestHealthChecker_BackgroundChecks(t *testing.T) {
	h := NewHealthChecker()
	h.AddCheck("tick", func(ctx context.Context) error { return nil }, 10*time.Millisecond, time.Second)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	h.StartBackgroundChecks(ctx)

	require.Eventually(t, func() bool {
		return h.LastResults()["tick"] == StatusHealthy
	}, time.Second, 5*time.Millisecond)
}
