package webrtc

import (
	"context"
	"sync"
	"time"

	"pairline/internal/core/domain"

	"github.com/pion/rtcp"
	"github.com/pion/webrtc/v3"
)

const videoClockRate = 90000

type statsGetter interface {
	GetStats() webrtc.StatsReport
}

// PeerStatsSource samples a PeerConnection. Round trip and bandwidth come
// from the nominated ICE candidate pair; loss and jitter come from the RTCP
// receiver reports passed to ObserveRTCP.
type PeerStatsSource struct {
	pc  statsGetter
	now func() time.Time

	mu          sync.Mutex
	lastBytes   uint64
	lastAt      time.Time
	lossRatio   float64
	jitterMs    float64
	haveReports bool
}

func NewPeerStatsSource(pc *webrtc.PeerConnection) *PeerStatsSource {
	return newPeerStatsSource(pc)
}

func newPeerStatsSource(pc statsGetter) *PeerStatsSource {
	return &PeerStatsSource{pc: pc, now: time.Now}
}

// ObserveRTCP folds receiver reports about our outbound streams into the
// next sample.
func (s *PeerStatsSource) ObserveRTCP(packets []rtcp.Packet) {
	var loss, jitter float64
	var n int
	for _, packet := range packets {
		rr, ok := packet.(*rtcp.ReceiverReport)
		if !ok {
			continue
		}
		for _, report := range rr.Reports {
			loss += float64(report.FractionLost) / 256
			jitter += float64(report.Jitter) * 1000 / videoClockRate
			n++
		}
	}
	if n == 0 {
		return
	}

	s.mu.Lock()
	s.lossRatio = loss / float64(n)
	s.jitterMs = jitter / float64(n)
	s.haveReports = true
	s.mu.Unlock()
}

// Sample implements ports.NetworkStatsSource.
func (s *PeerStatsSource) Sample(ctx context.Context) (domain.NetworkSample, bool) {
	pair, ok := selectedPair(s.pc.GetStats())
	if !ok {
		return domain.NetworkSample{}, false
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	bandwidth := pair.AvailableOutgoingBitrate
	if bandwidth <= 0 && !s.lastAt.IsZero() && pair.BytesSent >= s.lastBytes {
		if elapsed := now.Sub(s.lastAt).Seconds(); elapsed > 0 {
			bandwidth = float64(pair.BytesSent-s.lastBytes) * 8 / elapsed
		}
	}
	first := s.lastAt.IsZero()
	s.lastBytes = pair.BytesSent
	s.lastAt = now
	if first && pair.AvailableOutgoingBitrate <= 0 {
		return domain.NetworkSample{}, false
	}

	sample := domain.NetworkSample{
		BandwidthBps: bandwidth,
		RoundTripMs:  pair.CurrentRoundTripTime * 1000,
		SampledAt:    now,
	}
	if s.haveReports {
		sample.PacketLossRatio = s.lossRatio
		sample.JitterMs = s.jitterMs
	}
	return sample, true
}

func selectedPair(report webrtc.StatsReport) (webrtc.ICECandidatePairStats, bool) {
	var best webrtc.ICECandidatePairStats
	found := false
	for _, stat := range report {
		pair, ok := stat.(webrtc.ICECandidatePairStats)
		if !ok || pair.State != webrtc.StatsICECandidatePairStateSucceeded {
			continue
		}
		if !found || (pair.Nominated && !best.Nominated) || (pair.Nominated == best.Nominated && pair.BytesSent > best.BytesSent) {
			best = pair
			found = true
		}
	}
	return best, found
}
