package services

import (
	"context"
	"math/rand"
	"sync"
	"testing"
	"time"

	"pairline/internal/core/domain"
	"pairline/internal/core/ports"

	"github.com/stretchr/testify/mock"
	"go.uber.org/zap/zaptest"
)

type fakeTransport struct {
	mu       sync.Mutex
	events   []*domain.Event
	closed   bool
	failSend bool
}

func (f *fakeTransport) Send(event *domain.Event) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed || f.failSend {
		return domain.ErrTransportClosed
	}
	f.events = append(f.events, event)
	return nil
}

func (f *fakeTransport) Close() error {
	f.mu.Lock()
	f.closed = true
	f.mu.Unlock()
	return nil
}

func (f *fakeTransport) isClosed() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closed
}

func (f *fakeTransport) setFailSend(v bool) {
	f.mu.Lock()
	f.failSend = v
	f.mu.Unlock()
}

func (f *fakeTransport) ofType(t domain.EventType) []*domain.Event {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*domain.Event
	for _, e := range f.events {
		if e.Type == t {
			out = append(out, e)
		}
	}
	return out
}

func (f *fakeTransport) reset() {
	f.mu.Lock()
	f.events = nil
	f.mu.Unlock()
}

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func newTestClock() *testClock {
	return &testClock{now: time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

type MockTextModerator struct {
	mock.Mock
}

func (m *MockTextModerator) ModerateText(ctx context.Context, text string) domain.ModerationResult {
	args := m.Called(ctx, text)
	return args.Get(0).(domain.ModerationResult)
}

type MockReportRecorder struct {
	mock.Mock
}

func (m *MockReportRecorder) RecordReport(ctx context.Context, reported, reporter domain.UserID, reason string) error {
	args := m.Called(ctx, reported, reporter, reason)
	return args.Error(0)
}

type MockUserRepository struct {
	mock.Mock
}

func (m *MockUserRepository) GetByID(ctx context.Context, id domain.UserID) (*domain.UserProfile, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.UserProfile), args.Error(1)
}

func (m *MockUserRepository) Upsert(ctx context.Context, profile *domain.UserProfile) error {
	args := m.Called(ctx, profile)
	return args.Error(0)
}

func (m *MockUserRepository) IncrementReportCount(ctx context.Context, id domain.UserID) (int64, error) {
	args := m.Called(ctx, id)
	return args.Get(0).(int64), args.Error(1)
}

type MockIdentityResolver struct {
	mock.Mock
}

func (m *MockIdentityResolver) ResolveIdentity(ctx context.Context, credential string) (*domain.Identity, error) {
	args := m.Called(ctx, credential)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Identity), args.Error(1)
}

type coordinatorFixture struct {
	c       *Coordinator
	clock   *testClock
	metrics *MetricsService
}

type fixtureOption func(*CoordinatorConfig, *coordinatorDeps)

type coordinatorDeps struct {
	quality   *QualityService
	moderator *MockTextModerator
	reports   *MockReportRecorder
}

func withQuality(qs *QualityService) fixtureOption {
	return func(_ *CoordinatorConfig, d *coordinatorDeps) { d.quality = qs }
}

func withModerator(m *MockTextModerator) fixtureOption {
	return func(_ *CoordinatorConfig, d *coordinatorDeps) { d.moderator = m }
}

func withReports(r *MockReportRecorder) fixtureOption {
	return func(_ *CoordinatorConfig, d *coordinatorDeps) { d.reports = r }
}

func withSampleInterval(interval time.Duration) fixtureOption {
	return func(cfg *CoordinatorConfig, _ *coordinatorDeps) { cfg.Quality.SampleInterval = interval }
}

func newCoordinatorFixture(t *testing.T, opts ...fixtureOption) *coordinatorFixture {
	t.Helper()
	clock := newTestClock()
	metrics := NewMetricsService()
	cfg := CoordinatorConfig{
		Rand: rand.New(rand.NewSource(7)),
		Now:  clock.Now,
	}
	deps := &coordinatorDeps{}
	for _, opt := range opts {
		opt(&cfg, deps)
	}

	var (
		moderator ports.TextModerator
		reports   ports.ReportRecorder
	)
	if deps.moderator != nil {
		moderator = deps.moderator
	}
	if deps.reports != nil {
		reports = deps.reports
	}

	c := NewCoordinator(cfg, deps.quality, moderator, reports, metrics, nil, zaptest.NewLogger(t).Sugar())
	return &coordinatorFixture{c: c, clock: clock, metrics: metrics}
}

func (f *coordinatorFixture) connect(id string, gender domain.Gender, account domain.AccountType) *fakeTransport {
	tr := &fakeTransport{}
	f.c.Register(&domain.Identity{
		UserID:      domain.UserID(id),
		DisplayName: id,
		Attributes: domain.AccountAttributes{
			AccountType: account,
			Gender:      gender,
			Role:        domain.RoleUser,
		},
	}, tr)
	return tr
}

func waiting(id string, gender domain.Gender, account domain.AccountType, pref domain.Preference) *domain.WaitingEntry {
	attrs := domain.AccountAttributes{AccountType: account, Gender: gender, Role: domain.RoleUser}
	return &domain.WaitingEntry{
		UserID:              domain.UserID(id),
		DisplayName:         id,
		Attributes:          attrs,
		Preference:          pref,
		EffectivePreference: EffectivePreference(attrs, pref),
	}
}
