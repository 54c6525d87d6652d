package services

import (
	"context"
	"sync"
	"testing"
	"time"

	"pairline/internal/core/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

type recordingObserver struct {
	mu     sync.Mutex
	tiers  []domain.QualityTier
	levels []domain.ConnectionQuality
}

func (r *recordingObserver) QualityChanged(tier domain.QualityTier) {
	r.mu.Lock()
	r.tiers = append(r.tiers, tier)
	r.mu.Unlock()
}

func (r *recordingObserver) ConnectionQualityChanged(level domain.ConnectionQuality) {
	r.mu.Lock()
	r.levels = append(r.levels, level)
	r.mu.Unlock()
}

func (r *recordingObserver) snapshot() ([]domain.QualityTier, []domain.ConnectionQuality) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]domain.QualityTier(nil), r.tiers...), append([]domain.ConnectionQuality(nil), r.levels...)
}

type recordingApplier struct {
	mu      sync.Mutex
	applied []string
}

func (r *recordingApplier) Apply(tier domain.QualityTier) error {
	r.mu.Lock()
	r.applied = append(r.applied, tier.Label)
	r.mu.Unlock()
	return nil
}

// countingSource hands out the same sample every interval.
type countingSource struct {
	mu     sync.Mutex
	sample domain.NetworkSample
	calls  int
}

func (s *countingSource) Sample(ctx context.Context) (domain.NetworkSample, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	return s.sample, true
}

func (s *countingSource) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

func TestQualityController_StartPublishesInitialTier(t *testing.T) {
	qs := newTestQualityService(t)
	observer := &recordingObserver{}
	applier := &recordingApplier{}
	ctrl := NewQualityController(qs, nil, applier, observer, QualityControllerConfig{}, zaptest.NewLogger(t).Sugar())

	ctrl.Start(tier(t, qs, "1080p"))
	defer ctrl.Stop()

	assert.Equal(t, "480p", ctrl.CurrentTier().Label)
	assert.Equal(t, "1080p", ctrl.State().Ceiling.Label)
	tiers, _ := observer.snapshot()
	require.Len(t, tiers, 1)
	assert.Equal(t, "480p", tiers[0].Label)
	assert.Equal(t, []string{"480p"}, applier.applied)
}

func TestQualityController_MonotonicResponseToFallingBandwidth(t *testing.T) {
	qs := newTestQualityService(t)
	ctrl := NewQualityController(qs, nil, nil, nil, QualityControllerConfig{WindowSize: 10}, zaptest.NewLogger(t).Sugar())

	for _, ceilingLabel := range []string{"1080p", "720p"} {
		t.Run(ceilingLabel, func(t *testing.T) {
			ceiling := tier(t, qs, ceilingLabel)
			ceilingIdx := qs.Catalog().Index(ceilingLabel)
			ctrl.Start(ceiling)
			defer ctrl.Stop()

			const steps = 30
			start, end := 3_000_000.0, 200_000.0
			prevIdx := -1
			for i := 0; i < steps; i++ {
				bw := start - (start-end)*float64(i)/float64(steps-1)
				got := ctrl.OnSample(domain.NetworkSample{BandwidthBps: bw, RoundTripMs: 50})
				idx := qs.Catalog().Index(got.Label)

				assert.LessOrEqual(t, idx, ceilingIdx, "tier above ceiling at step %d", i)
				if prevIdx >= 0 {
					assert.LessOrEqual(t, idx, prevIdx, "tier went up at step %d", i)
				}
				prevIdx = idx
			}
			assert.Equal(t, "240p", ctrl.CurrentTier().Label)
		})
	}
}

func TestQualityController_WindowIsBounded(t *testing.T) {
	qs := newTestQualityService(t)
	ctrl := NewQualityController(qs, nil, nil, nil, QualityControllerConfig{WindowSize: 3}, zaptest.NewLogger(t).Sugar())
	ctrl.Start(tier(t, qs, "1080p"))
	defer ctrl.Stop()

	for i := 0; i < 5; i++ {
		ctrl.OnSample(domain.NetworkSample{BandwidthBps: 100_000, RoundTripMs: 500})
	}
	assert.Equal(t, "240p", ctrl.CurrentTier().Label)

	// Three good samples flush the bad ones out of a window of three.
	for i := 0; i < 3; i++ {
		ctrl.OnSample(domain.NetworkSample{BandwidthBps: 5_000_000, RoundTripMs: 20})
	}
	assert.Equal(t, "1080p", ctrl.CurrentTier().Label)
}

func TestQualityController_EvaluateDoesNotChangeTier(t *testing.T) {
	qs := newTestQualityService(t)
	ctrl := NewQualityController(qs, nil, nil, nil, QualityControllerConfig{}, zaptest.NewLogger(t).Sugar())
	ctrl.Start(tier(t, qs, "720p"))
	defer ctrl.Stop()

	assert.Equal(t, domain.ConnectionDisconnected, ctrl.EvaluateConnectionQuality())

	ctrl.OnSample(domain.NetworkSample{BandwidthBps: 1_000_000, RoundTripMs: 300, PacketLossRatio: 0.02})
	before := ctrl.CurrentTier()
	assert.Equal(t, domain.ConnectionFair, ctrl.EvaluateConnectionQuality())
	assert.Equal(t, before, ctrl.CurrentTier())
}

func TestQualityController_SamplingLoop(t *testing.T) {
	qs := newTestQualityService(t)
	source := &countingSource{sample: domain.NetworkSample{BandwidthBps: 3_000_000, RoundTripMs: 30, JitterMs: 5}}
	observer := &recordingObserver{}
	ctrl := NewQualityController(qs, source, nil, observer,
		QualityControllerConfig{SampleInterval: 5 * time.Millisecond}, zaptest.NewLogger(t).Sugar())

	ctrl.Start(tier(t, qs, "720p"))

	assert.Eventually(t, func() bool {
		return ctrl.CurrentTier().Label == "720p"
	}, 2*time.Second, 5*time.Millisecond)
	assert.Eventually(t, func() bool {
		_, levels := observer.snapshot()
		return len(levels) > 0 && levels[0] == domain.ConnectionExcellent
	}, 2*time.Second, 5*time.Millisecond)

	ctrl.Stop()
	calls := source.count()
	time.Sleep(30 * time.Millisecond)
	assert.Equal(t, calls, source.count(), "no sampling after Stop")
	assert.Equal(t, domain.ConnectionDisconnected, ctrl.EvaluateConnectionQuality(), "history cleared on Stop")

	// Stop is idempotent.
	ctrl.Stop()
}

func TestReportedStats_HandsOutEachSampleOnce(t *testing.T) {
	stats := NewReportedStats()
	_, ok := stats.Sample(context.Background())
	assert.False(t, ok)

	stats.Put(domain.NetworkSample{BandwidthBps: 42})
	s, ok := stats.Sample(context.Background())
	require.True(t, ok)
	assert.Equal(t, 42.0, s.BandwidthBps)

	_, ok = stats.Sample(context.Background())
	assert.False(t, ok)
}
