package monitoring

import (
	"strconv"
	"time"

	"pairline/internal/core/domain"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// PrometheusCollector implements ports.MetricsRecorder.
type PrometheusCollector struct {
	connectedUsers prometheus.Gauge
	waitingUsers   prometheus.Gauge
	activeSessions prometheus.Gauge

	matchesTotal       *prometheus.CounterVec
	sessionsEndedTotal *prometheus.CounterVec
	relayedTotal       *prometheus.CounterVec
	qualityChanges     *prometheus.CounterVec
	reportsTotal       prometheus.Counter
	sweptTotal         prometheus.Counter

	matchWait       prometheus.Histogram
	sessionDuration prometheus.Histogram

	httpRequests *prometheus.CounterVec
	httpDuration *prometheus.HistogramVec
}

// NewPrometheusCollector registers the collectors on reg, or on the default
// registry when reg is nil.
func NewPrometheusCollector(reg prometheus.Registerer) *PrometheusCollector {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)

	return &PrometheusCollector{
		connectedUsers: factory.NewGauge(prometheus.GaugeOpts{
			Name: "pairline_connected_users",
			Help: "Number of users with a live signaling connection",
		}),
		waitingUsers: factory.NewGauge(prometheus.GaugeOpts{
			Name: "pairline_waiting_users",
			Help: "Number of users waiting in the match queue",
		}),
		activeSessions: factory.NewGauge(prometheus.GaugeOpts{
			Name: "pairline_active_sessions",
			Help: "Number of active two-party sessions",
		}),

		matchesTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "pairline_matches_total",
			Help: "Matches made, by selection bucket",
		}, []string{"bucket"}),
		sessionsEndedTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "pairline_sessions_ended_total",
			Help: "Sessions ended, by reason",
		}, []string{"reason"}),
		relayedTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "pairline_relayed_messages_total",
			Help: "Relay attempts, by kind and outcome",
		}, []string{"kind", "outcome"}),
		qualityChanges: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "pairline_quality_changes_total",
			Help: "Quality tier changes, by new tier",
		}, []string{"tier"}),
		reportsTotal: factory.NewCounter(prometheus.CounterOpts{
			Name: "pairline_reports_total",
			Help: "Abuse reports filed",
		}),
		sweptTotal: factory.NewCounter(prometheus.CounterOpts{
			Name: "pairline_queue_swept_total",
			Help: "Stale waiting entries removed by the sweeper",
		}),

		matchWait: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "pairline_match_wait_seconds",
			Help:    "Time the matched candidate spent waiting",
			Buckets: []float64{0.5, 1, 2, 5, 10, 30, 60, 120, 300, 900},
		}),
		sessionDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "pairline_session_duration_seconds",
			Help:    "Duration of ended sessions",
			Buckets: prometheus.ExponentialBuckets(1, 2, 12),
		}),

		httpRequests: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "pairline_http_requests_total",
			Help: "HTTP requests, by route and status",
		}, []string{"method", "route", "status"}),
		httpDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "pairline_http_request_duration_seconds",
			Help:    "HTTP request latency",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "route"}),
	}
}

func (p *PrometheusCollector) SetConnectedUsers(n int) { p.connectedUsers.Set(float64(n)) }
func (p *PrometheusCollector) SetWaitingUsers(n int)   { p.waitingUsers.Set(float64(n)) }
func (p *PrometheusCollector) SetActiveSessions(n int) { p.activeSessions.Set(float64(n)) }

func (p *PrometheusCollector) RecordMatch(bucket string, wait time.Duration) {
	p.matchesTotal.WithLabelValues(bucket).Inc()
	p.matchWait.Observe(wait.Seconds())
}

func (p *PrometheusCollector) RecordSessionEnded(reason domain.EndReason, duration time.Duration) {
	p.sessionsEndedTotal.WithLabelValues(string(reason)).Inc()
	p.sessionDuration.Observe(duration.Seconds())
}

func (p *PrometheusCollector) RecordRelay(kind domain.RelayKind, delivered bool) {
	outcome := "delivered"
	if !delivered {
		outcome = "dropped"
	}
	p.relayedTotal.WithLabelValues(string(kind), outcome).Inc()
}

func (p *PrometheusCollector) RecordQualityChange(label string) {
	p.qualityChanges.WithLabelValues(label).Inc()
}

func (p *PrometheusCollector) RecordReport() { p.reportsTotal.Inc() }

func (p *PrometheusCollector) RecordSwept(n int) { p.sweptTotal.Add(float64(n)) }

func (p *PrometheusCollector) RecordHTTPRequest(method, route string, status int, duration time.Duration) {
	p.httpRequests.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	p.httpDuration.WithLabelValues(method, route).Observe(duration.Seconds())
}
