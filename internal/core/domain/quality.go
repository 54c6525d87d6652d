package domain

import (
	"fmt"
	"time"
)

// NetworkSample is one telemetry reading from a transport's media channel.
type NetworkSample struct {
	BandwidthBps    float64   `json:"bandwidth_bps"`
	RoundTripMs     float64   `json:"round_trip_ms"`
	PacketLossRatio float64   `json:"packet_loss"`
	JitterMs        float64   `json:"jitter_ms"`
	SampledAt       time.Time `json:"sampled_at"`
}

// QualityTier is one entry of the video quality catalog.
type QualityTier struct {
	Label      string `json:"label"`
	Width      int    `json:"width"`
	Height     int    `json:"height"`
	BitrateBps int    `json:"bitrate_bps"`
	FrameRate  int    `json:"frame_rate"`
}

func (t QualityTier) String() string {
	return fmt.Sprintf("%s (%dx%d@%d, %d bps)", t.Label, t.Width, t.Height, t.FrameRate, t.BitrateBps)
}

// QualityCatalog is ordered ascending by resource demand.
type QualityCatalog []QualityTier

// DefaultCatalog returns the standard 240p to 1080p ladder.
func DefaultCatalog() QualityCatalog {
	return QualityCatalog{
		{Label: "240p", Width: 426, Height: 240, BitrateBps: 250_000, FrameRate: 15},
		{Label: "480p", Width: 854, Height: 480, BitrateBps: 750_000, FrameRate: 24},
		{Label: "720p", Width: 1280, Height: 720, BitrateBps: 1_500_000, FrameRate: 30},
		{Label: "1080p", Width: 1920, Height: 1080, BitrateBps: 3_000_000, FrameRate: 30},
	}
}

// Index returns the position of label in the catalog, or -1.
func (c QualityCatalog) Index(label string) int {
	for i, t := range c {
		if t.Label == label {
			return i
		}
	}
	return -1
}

func (c QualityCatalog) Lookup(label string) (QualityTier, error) {
	i := c.Index(label)
	if i < 0 {
		return QualityTier{}, fmt.Errorf("%w: %s", ErrUnknownTier, label)
	}
	return c[i], nil
}

// QualityState is the per session side tier bookkeeping.
type QualityState struct {
	Current QualityTier
	Ceiling QualityTier
}

type ConnectionQuality string

const (
	ConnectionExcellent    ConnectionQuality = "excellent"
	ConnectionGood         ConnectionQuality = "good"
	ConnectionFair         ConnectionQuality = "fair"
	ConnectionPoor         ConnectionQuality = "poor"
	ConnectionDisconnected ConnectionQuality = "disconnected"
)
