package services

import (
	"sync"
	"time"

	"pairline/internal/core/domain"
	"pairline/internal/core/ports"
)

// MetricsSnapshot is the in-process view of matchmaking counters.
type MetricsSnapshot struct {
	ConnectedUsers int                        `json:"connected_users"`
	WaitingUsers   int                        `json:"waiting_users"`
	ActiveSessions int                        `json:"active_sessions"`
	Matches        map[string]int64           `json:"matches"`
	SessionsEnded  map[domain.EndReason]int64 `json:"sessions_ended"`
	Relayed        map[domain.RelayKind]int64 `json:"relayed"`
	RelayDropped   int64                      `json:"relay_dropped"`
	QualityChanges map[string]int64           `json:"quality_changes"`
	Reports        int64                      `json:"reports"`
	Swept          int64                      `json:"swept"`
	AverageWait    float64                    `json:"average_wait_seconds"`
	AverageSession float64                    `json:"average_session_seconds"`
}

// MetricsService keeps counters in memory so the stats endpoint can serve
// them without scraping Prometheus.
type MetricsService struct {
	mu sync.RWMutex

	connected, waiting, active int

	matches        map[string]int64
	sessionsEnded  map[domain.EndReason]int64
	relayed        map[domain.RelayKind]int64
	relayDropped   int64
	qualityChanges map[string]int64
	reports        int64
	swept          int64

	totalWait    time.Duration
	totalSession time.Duration
	endedCount   int64
	matchCount   int64
}

func NewMetricsService() *MetricsService {
	return &MetricsService{
		matches:        make(map[string]int64),
		sessionsEnded:  make(map[domain.EndReason]int64),
		relayed:        make(map[domain.RelayKind]int64),
		qualityChanges: make(map[string]int64),
	}
}

func (m *MetricsService) SetConnectedUsers(n int) {
	m.mu.Lock()
	m.connected = n
	m.mu.Unlock()
}

func (m *MetricsService) SetWaitingUsers(n int) {
	m.mu.Lock()
	m.waiting = n
	m.mu.Unlock()
}

func (m *MetricsService) SetActiveSessions(n int) {
	m.mu.Lock()
	m.active = n
	m.mu.Unlock()
}

func (m *MetricsService) RecordMatch(bucket string, wait time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.matches[bucket]++
	m.matchCount++
	m.totalWait += wait
}

func (m *MetricsService) RecordSessionEnded(reason domain.EndReason, duration time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sessionsEnded[reason]++
	m.endedCount++
	m.totalSession += duration
}

func (m *MetricsService) RecordRelay(kind domain.RelayKind, delivered bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !delivered {
		m.relayDropped++
		return
	}
	m.relayed[kind]++
}

func (m *MetricsService) RecordQualityChange(label string) {
	m.mu.Lock()
	m.qualityChanges[label]++
	m.mu.Unlock()
}

func (m *MetricsService) RecordReport() {
	m.mu.Lock()
	m.reports++
	m.mu.Unlock()
}

func (m *MetricsService) RecordSwept(n int) {
	m.mu.Lock()
	m.swept += int64(n)
	m.mu.Unlock()
}

func (m *MetricsService) Snapshot() MetricsSnapshot {
	m.mu.RLock()
	defer m.mu.RUnlock()

	snap := MetricsSnapshot{
		ConnectedUsers: m.connected,
		WaitingUsers:   m.waiting,
		ActiveSessions: m.active,
		Matches:        make(map[string]int64, len(m.matches)),
		SessionsEnded:  make(map[domain.EndReason]int64, len(m.sessionsEnded)),
		Relayed:        make(map[domain.RelayKind]int64, len(m.relayed)),
		RelayDropped:   m.relayDropped,
		QualityChanges: make(map[string]int64, len(m.qualityChanges)),
		Reports:        m.reports,
		Swept:          m.swept,
	}
	for k, v := range m.matches {
		snap.Matches[k] = v
	}
	for k, v := range m.sessionsEnded {
		snap.SessionsEnded[k] = v
	}
	for k, v := range m.relayed {
		snap.Relayed[k] = v
	}
	for k, v := range m.qualityChanges {
		snap.QualityChanges[k] = v
	}
	if m.matchCount > 0 {
		snap.AverageWait = m.totalWait.Seconds() / float64(m.matchCount)
	}
	if m.endedCount > 0 {
		snap.AverageSession = m.totalSession.Seconds() / float64(m.endedCount)
	}
	return snap
}

// MultiRecorder fans every call out to several recorders.
type MultiRecorder []ports.MetricsRecorder

func (r MultiRecorder) SetConnectedUsers(n int) {
	for _, rec := range r {
		rec.SetConnectedUsers(n)
	}
}

func (r MultiRecorder) SetWaitingUsers(n int) {
	for _, rec := range r {
		rec.SetWaitingUsers(n)
	}
}

func (r MultiRecorder) SetActiveSessions(n int) {
	for _, rec := range r {
		rec.SetActiveSessions(n)
	}
}

func (r MultiRecorder) RecordMatch(bucket string, wait time.Duration) {
	for _, rec := range r {
		rec.RecordMatch(bucket, wait)
	}
}

func (r MultiRecorder) RecordSessionEnded(reason domain.EndReason, duration time.Duration) {
	for _, rec := range r {
		rec.RecordSessionEnded(reason, duration)
	}
}

func (r MultiRecorder) RecordRelay(kind domain.RelayKind, delivered bool) {
	for _, rec := range r {
		rec.RecordRelay(kind, delivered)
	}
}

func (r MultiRecorder) RecordQualityChange(label string) {
	for _, rec := range r {
		rec.RecordQualityChange(label)
	}
}

func (r MultiRecorder) RecordReport() {
	for _, rec := range r {
		rec.RecordReport()
	}
}

func (r MultiRecorder) RecordSwept(n int) {
	for _, rec := range r {
		rec.RecordSwept(n)
	}
}

type noopPublisher struct{}

func (noopPublisher) Publish(domain.LifecycleEvent) {}

// NoopPublisher discards lifecycle events.
var NoopPublisher ports.EventPublisher = noopPublisher{}
