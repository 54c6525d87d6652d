package webrtc

import (
	"fmt"
	"sync"

	"pairline/internal/core/domain"

	"github.com/pion/rtcp"
)

type rtcpWriter interface {
	WriteRTCP(pkts []rtcp.Packet) error
}

// REMBApplier asks the remote sender to cap its bitrate at the tier target
// by sending a Receiver Estimated Maximum Bitrate message.
type REMBApplier struct {
	writer     rtcpWriter
	senderSSRC uint32

	mu    sync.Mutex
	ssrcs []uint32
}

func NewREMBApplier(writer rtcpWriter, senderSSRC uint32) *REMBApplier {
	return &REMBApplier{writer: writer, senderSSRC: senderSSRC}
}

// SetMediaSSRCs sets the remote streams the estimate applies to.
func (a *REMBApplier) SetMediaSSRCs(ssrcs ...uint32) {
	a.mu.Lock()
	a.ssrcs = append([]uint32(nil), ssrcs...)
	a.mu.Unlock()
}

// Apply implements ports.ConstraintApplier.
func (a *REMBApplier) Apply(tier domain.QualityTier) error {
	a.mu.Lock()
	ssrcs := append([]uint32(nil), a.ssrcs...)
	a.mu.Unlock()

	if len(ssrcs) == 0 {
		return nil
	}
	err := a.writer.WriteRTCP([]rtcp.Packet{&rtcp.ReceiverEstimatedMaximumBitrate{
		SenderSSRC: a.senderSSRC,
		Bitrate:    float32(tier.BitrateBps),
		SSRCs:      ssrcs,
	}})
	if err != nil {
		return fmt.Errorf("send remb for %s: %w", tier.Label, err)
	}
	return nil
}
