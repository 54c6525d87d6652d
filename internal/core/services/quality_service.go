package services

import (
	"fmt"
	"time"

	"pairline/internal/core/domain"
)

// QualityPolicy configures tier selection.
type QualityPolicy struct {
	Catalog       domain.QualityCatalog
	DefaultTier   string
	FreeCeiling   string
	ProCeiling    string
	HeadroomRatio float64
	MaxRoundTrip  time.Duration
	MaxPacketLoss float64
}

func DefaultQualityPolicy() QualityPolicy {
	return QualityPolicy{
		Catalog:       domain.DefaultCatalog(),
		DefaultTier:   "480p",
		FreeCeiling:   "720p",
		ProCeiling:    "1080p",
		HeadroomRatio: 0.8,
		MaxRoundTrip:  200 * time.Millisecond,
		MaxPacketLoss: 0.05,
	}
}

// connection thresholds: upper bounds for excellent, good and fair.
var (
	lossLevels   = [3]float64{0.01, 0.03, 0.05}
	rttLevels    = [3]float64{100, 200, 400}
	jitterLevels = [3]float64{50, 100, 150}
)

// QualityService holds the immutable tier catalog and the rules that map
// averaged network statistics onto it.
type QualityService struct {
	policy  QualityPolicy
	defIdx  int
	freeIdx int
	proIdx  int
}

func NewQualityService(policy QualityPolicy) (*QualityService, error) {
	if len(policy.Catalog) == 0 {
		return nil, fmt.Errorf("quality catalog is empty")
	}
	for i := 1; i < len(policy.Catalog); i++ {
		if policy.Catalog[i].BitrateBps < policy.Catalog[i-1].BitrateBps {
			return nil, fmt.Errorf("quality catalog must be ascending: %s after %s",
				policy.Catalog[i].Label, policy.Catalog[i-1].Label)
		}
	}

	qs := &QualityService{policy: policy}
	for _, l := range []struct {
		label string
		idx   *int
	}{
		{policy.DefaultTier, &qs.defIdx},
		{policy.FreeCeiling, &qs.freeIdx},
		{policy.ProCeiling, &qs.proIdx},
	} {
		i := policy.Catalog.Index(l.label)
		if i < 0 {
			return nil, fmt.Errorf("%w: %s", domain.ErrUnknownTier, l.label)
		}
		*l.idx = i
	}
	return qs, nil
}

func (qs *QualityService) Catalog() domain.QualityCatalog {
	return qs.policy.Catalog
}

// CeilingFor returns the highest tier the account may ever receive.
func (qs *QualityService) CeilingFor(attrs domain.AccountAttributes) domain.QualityTier {
	if attrs.IsPro() {
		return qs.policy.Catalog[qs.proIdx]
	}
	return qs.policy.Catalog[qs.freeIdx]
}

// InitialTier is the conservative starting tier, clamped to ceiling.
func (qs *QualityService) InitialTier(ceiling domain.QualityTier) domain.QualityTier {
	idx := qs.defIdx
	if c := qs.ceilingIndex(ceiling); idx > c {
		idx = c
	}
	return qs.policy.Catalog[idx]
}

// TargetTier picks the highest tier under the ceiling whose bitrate fits the
// bandwidth headroom, one step lower when latency or loss is too high.
func (qs *QualityService) TargetTier(avg NetworkAverages, ceiling domain.QualityTier) domain.QualityTier {
	catalog := qs.policy.Catalog
	budget := qs.policy.HeadroomRatio * avg.BandwidthBps

	idx := 0
	for i := qs.ceilingIndex(ceiling); i >= 0; i-- {
		if float64(catalog[i].BitrateBps) <= budget {
			idx = i
			break
		}
	}

	maxRTT := float64(qs.policy.MaxRoundTrip / time.Millisecond)
	if (avg.RoundTripMs > maxRTT || avg.PacketLossRatio > qs.policy.MaxPacketLoss) && idx > 0 {
		idx--
	}
	return catalog[idx]
}

// ClassifyConnection grades the averaged statistics for display. The worst of
// loss, round trip and jitter wins.
func (qs *QualityService) ClassifyConnection(avg NetworkAverages) domain.ConnectionQuality {
	if avg.Samples == 0 || avg.BandwidthBps <= 0 {
		return domain.ConnectionDisconnected
	}
	worst := grade(avg.PacketLossRatio, lossLevels)
	if g := grade(avg.RoundTripMs, rttLevels); g > worst {
		worst = g
	}
	if g := grade(avg.JitterMs, jitterLevels); g > worst {
		worst = g
	}
	return [...]domain.ConnectionQuality{
		domain.ConnectionExcellent,
		domain.ConnectionGood,
		domain.ConnectionFair,
		domain.ConnectionPoor,
	}[worst]
}

func grade(v float64, levels [3]float64) int {
	for i, limit := range levels {
		if v <= limit {
			return i
		}
	}
	return len(levels)
}

// ceilingIndex resolves a ceiling tier to its catalog position. Unknown tiers
// fall back to the top of the catalog.
func (qs *QualityService) ceilingIndex(ceiling domain.QualityTier) int {
	if i := qs.policy.Catalog.Index(ceiling.Label); i >= 0 {
		return i
	}
	return len(qs.policy.Catalog) - 1
}

// NetworkAverages are unweighted means over a sample window.
type NetworkAverages struct {
	BandwidthBps    float64
	RoundTripMs     float64
	PacketLossRatio float64
	JitterMs        float64
	Samples         int
}

func Average(samples []domain.NetworkSample) NetworkAverages {
	avg := NetworkAverages{Samples: len(samples)}
	if len(samples) == 0 {
		return avg
	}
	for _, s := range samples {
		avg.BandwidthBps += s.BandwidthBps
		avg.RoundTripMs += s.RoundTripMs
		avg.PacketLossRatio += s.PacketLossRatio
		avg.JitterMs += s.JitterMs
	}
	n := float64(len(samples))
	avg.BandwidthBps /= n
	avg.RoundTripMs /= n
	avg.PacketLossRatio /= n
	avg.JitterMs /= n
	return avg
}
