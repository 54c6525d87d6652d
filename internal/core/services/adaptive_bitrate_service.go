package services

import (
	"context"
	"sync"
	"time"

	"pairline/internal/core/domain"
	"pairline/internal/core/ports"

	"go.uber.org/zap"
)

const (
	DefaultSampleInterval = 2 * time.Second
	DefaultWindowSize     = 10
)

type QualityControllerConfig struct {
	SampleInterval time.Duration
	WindowSize     int
}

// QualityController retunes the video tier of one session side from its
// network telemetry. Every method is safe for concurrent use.
type QualityController struct {
	policy   *QualityService
	source   ports.NetworkStatsSource
	applier  ports.ConstraintApplier
	observer ports.QualityObserver
	logger   *zap.SugaredLogger

	interval time.Duration
	window   int

	mu      sync.Mutex
	history []domain.NetworkSample
	state   domain.QualityState
	level   domain.ConnectionQuality
	cancel  context.CancelFunc
	done    chan struct{}
}

// NewQualityController wires a controller. applier and observer may be nil.
func NewQualityController(
	policy *QualityService,
	source ports.NetworkStatsSource,
	applier ports.ConstraintApplier,
	observer ports.QualityObserver,
	cfg QualityControllerConfig,
	logger *zap.SugaredLogger,
) *QualityController {
	if cfg.SampleInterval <= 0 {
		cfg.SampleInterval = DefaultSampleInterval
	}
	if cfg.WindowSize <= 0 {
		cfg.WindowSize = DefaultWindowSize
	}
	return &QualityController{
		policy:   policy,
		source:   source,
		applier:  applier,
		observer: observer,
		logger:   logger,
		interval: cfg.SampleInterval,
		window:   cfg.WindowSize,
		level:    domain.ConnectionDisconnected,
	}
}

// Start sets the conservative initial tier, pushes it to the applier and
// observer, and begins sampling. Calling Start on a running controller
// restarts it.
func (q *QualityController) Start(ceiling domain.QualityTier) {
	q.Stop()

	ctx, cancel := context.WithCancel(context.Background())
	initial := q.policy.InitialTier(ceiling)

	q.mu.Lock()
	q.state = domain.QualityState{Current: initial, Ceiling: ceiling}
	q.history = make([]domain.NetworkSample, 0, q.window)
	q.level = domain.ConnectionDisconnected
	q.cancel = cancel
	q.done = make(chan struct{})
	done := q.done
	q.mu.Unlock()

	q.publish(initial)

	if q.source == nil {
		close(done)
		return
	}
	go q.run(ctx, done)
}

func (q *QualityController) run(ctx context.Context, done chan struct{}) {
	defer close(done)

	ticker := time.NewTicker(q.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			sample, ok := q.source.Sample(ctx)
			if !ok {
				continue
			}
			q.OnSample(sample)
			q.refreshConnectionQuality()
		}
	}
}

// OnSample folds sample into the rolling window and moves to the target tier
// if it differs from the current one. It returns the tier in effect.
func (q *QualityController) OnSample(sample domain.NetworkSample) domain.QualityTier {
	q.mu.Lock()
	q.history = append(q.history, sample)
	if len(q.history) > q.window {
		q.history = q.history[len(q.history)-q.window:]
	}
	avg := Average(q.history)
	target := q.policy.TargetTier(avg, q.state.Ceiling)
	previous := q.state.Current
	changed := target.Label != previous.Label
	if changed {
		q.state.Current = target
	}
	q.mu.Unlock()

	if changed {
		q.logger.Infow("quality tier changed",
			"from", previous.Label,
			"to", target.Label,
			"avg_bandwidth_bps", avg.BandwidthBps,
			"avg_rtt_ms", avg.RoundTripMs,
			"avg_packet_loss", avg.PacketLossRatio,
		)
		q.publish(target)
	}
	return target
}

// EvaluateConnectionQuality grades the current window. It never changes the
// tier.
func (q *QualityController) EvaluateConnectionQuality() domain.ConnectionQuality {
	q.mu.Lock()
	avg := Average(q.history)
	q.mu.Unlock()
	return q.policy.ClassifyConnection(avg)
}

func (q *QualityController) refreshConnectionQuality() {
	level := q.EvaluateConnectionQuality()

	q.mu.Lock()
	changed := level != q.level
	q.level = level
	q.mu.Unlock()

	if changed && q.observer != nil {
		q.observer.ConnectionQualityChanged(level)
	}
}

func (q *QualityController) CurrentTier() domain.QualityTier {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.state.Current
}

func (q *QualityController) State() domain.QualityState {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.state
}

// Stop halts sampling, waits for the sampling goroutine to exit and clears
// the history. It is a no-op on a stopped controller.
func (q *QualityController) Stop() {
	q.mu.Lock()
	cancel, done := q.cancel, q.done
	q.cancel, q.done = nil, nil
	q.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	<-done

	q.mu.Lock()
	q.history = nil
	q.mu.Unlock()
}

func (q *QualityController) publish(tier domain.QualityTier) {
	if q.observer != nil {
		q.observer.QualityChanged(tier)
	}
	if q.applier != nil {
		if err := q.applier.Apply(tier); err != nil {
			q.logger.Warnw("failed to apply quality constraints", "tier", tier.Label, "error", err)
		}
	}
}
