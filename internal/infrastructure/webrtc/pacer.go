package webrtc

import (
	"context"
	"sync"
	"time"

	"pairline/internal/core/domain"
	"pairline/pkg/bufpool"

	"github.com/pion/rtp"
)

const (
	maxPayloadSize  = 1200
	dynamicVideoPT  = 96
	defaultFrameFPS = 15
)

// rtpWriter must not retain the payload after WriteRTP returns.
type rtpWriter interface {
	WriteRTP(p *rtp.Packet) error
}

var payloadPool = bufpool.New(maxPayloadSize)

// Pacer emits synthetic video frames sized for the current tier. The probe
// uses it as both outbound media and as the constraint sink, so the remote
// side's receiver reports reflect the chosen tier.
type Pacer struct {
	writer rtpWriter
	ssrc   uint32

	mu         sync.Mutex
	bitrateBps int
	frameRate  int
	seq        uint16
	timestamp  uint32
	sent       uint64
}

func NewPacer(writer rtpWriter, ssrc uint32) *Pacer {
	return &Pacer{writer: writer, ssrc: ssrc, frameRate: defaultFrameFPS}
}

// Apply implements ports.ConstraintApplier.
func (p *Pacer) Apply(tier domain.QualityTier) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.bitrateBps = tier.BitrateBps
	if tier.FrameRate > 0 {
		p.frameRate = tier.FrameRate
	}
	return nil
}

func (p *Pacer) BytesSent() uint64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.sent
}

// Run sends one frame per frame interval until ctx ends or a write fails.
func (p *Pacer) Run(ctx context.Context) error {
	for {
		p.mu.Lock()
		interval := time.Second / time.Duration(p.frameRate)
		p.mu.Unlock()

		select {
		case <-ctx.Done():
			return nil
		case <-time.After(interval):
		}
		if err := p.sendFrame(); err != nil {
			return err
		}
	}
}

// sendFrame splits one frame of bitrate/frameRate bits into RTP packets,
// marking the last one.
func (p *Pacer) sendFrame() error {
	p.mu.Lock()
	frameBytes := p.bitrateBps / 8 / p.frameRate
	p.timestamp += uint32(videoClockRate / p.frameRate)
	ts := p.timestamp
	p.mu.Unlock()

	for remaining := frameBytes; remaining > 0; {
		size := remaining
		if size > maxPayloadSize {
			size = maxPayloadSize
		}
		remaining -= size

		p.mu.Lock()
		p.seq++
		seq := p.seq
		p.mu.Unlock()

		packet := &rtp.Packet{
			Header: rtp.Header{
				Version:        2,
				Marker:         remaining == 0,
				PayloadType:    dynamicVideoPT,
				SequenceNumber: seq,
				Timestamp:      ts,
				SSRC:           p.ssrc,
			},
		}
		buf := payloadPool.Get()
		packet.Payload = (*buf)[:size]
		err := p.writer.WriteRTP(packet)
		payloadPool.Put(buf)
		if err != nil {
			return err
		}

		p.mu.Lock()
		p.sent += uint64(size)
		p.mu.Unlock()
	}
	return nil
}
