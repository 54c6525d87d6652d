package main

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"pairline/internal/core/domain"
	"pairline/internal/core/ports"
	"pairline/internal/core/services"
	"pairline/internal/infrastructure/signal"
	webrtcinfra "pairline/internal/infrastructure/webrtc"

	"github.com/pion/webrtc/v3"
	"go.uber.org/zap"
)

// signalData is the browser-compatible body carried inside a relayed signal.
type signalData struct {
	Type      string                   `json:"type,omitempty"`
	SDP       string                   `json:"sdp,omitempty"`
	Candidate *webrtc.ICECandidateInit `json:"candidate,omitempty"`
}

// appliers fans a tier out to every sink.
type appliers []ports.ConstraintApplier

func (a appliers) Apply(tier domain.QualityTier) error {
	for _, applier := range a {
		if err := applier.Apply(tier); err != nil {
			return err
		}
	}
	return nil
}

// reportingSource forwards each sample to the server as network_stats so the
// server-side controller sees the same telemetry.
type reportingSource struct {
	inner  ports.NetworkStatsSource
	client *signalClient
	logger *zap.SugaredLogger
}

func (r *reportingSource) Sample(ctx context.Context) (domain.NetworkSample, bool) {
	sample, ok := r.inner.Sample(ctx)
	if !ok {
		return sample, false
	}
	err := r.client.send(signal.MsgNetworkStats, signal.NetworkStatsPayload{
		BandwidthBps: sample.BandwidthBps,
		RoundTripMs:  sample.RoundTripMs,
		PacketLoss:   sample.PacketLossRatio,
		JitterMs:     sample.JitterMs,
	})
	if err != nil {
		r.logger.Debugw("failed to report network stats", "error", err)
	}
	return sample, true
}

type tierLogger struct {
	logger *zap.SugaredLogger
}

func (o tierLogger) QualityChanged(tier domain.QualityTier) {
	o.logger.Infow("local quality tier", "tier", tier.Label, "bitrate_bps", tier.BitrateBps)
}

func (o tierLogger) ConnectionQualityChanged(level domain.ConnectionQuality) {
	o.logger.Infow("local connection quality", "level", level)
}

// peerSession is one negotiated call with a partner.
type peerSession struct {
	pc         *webrtc.PeerConnection
	client     *signalClient
	initiator  bool
	controller *services.QualityController
	logger     *zap.SugaredLogger

	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu            sync.Mutex
	remoteSet     bool
	pendingRemote []webrtc.ICECandidateInit
}

func newPeerSession(
	parent context.Context,
	api *webrtc.API,
	client *signalClient,
	match domain.MatchFoundPayload,
	quality *services.QualityService,
	qcfg services.QualityControllerConfig,
	logger *zap.SugaredLogger,
) (*peerSession, error) {
	pc, err := api.NewPeerConnection(webrtcinfra.PeerConfiguration(match.WebRTCConfig))
	if err != nil {
		return nil, fmt.Errorf("create peer connection: %w", err)
	}

	track, err := webrtc.NewTrackLocalStaticRTP(
		webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypeVP8, ClockRate: 90000},
		"video", "pairline-probe",
	)
	if err != nil {
		pc.Close()
		return nil, fmt.Errorf("create track: %w", err)
	}
	sender, err := pc.AddTrack(track)
	if err != nil {
		pc.Close()
		return nil, fmt.Errorf("add track: %w", err)
	}

	var ssrc uint32
	if encodings := sender.GetParameters().Encodings; len(encodings) > 0 {
		ssrc = uint32(encodings[0].SSRC)
	}

	ctx, cancel := context.WithCancel(parent)
	s := &peerSession{
		pc:        pc,
		client:    client,
		initiator: match.IsInitiator,
		logger:    logger.With("session_id", match.SessionID),
		cancel:    cancel,
	}

	stats := webrtcinfra.NewPeerStatsSource(pc)
	pacer := webrtcinfra.NewPacer(track, ssrc)
	remb := webrtcinfra.NewREMBApplier(pc, ssrc)
	s.controller = services.NewQualityController(
		quality,
		&reportingSource{inner: stats, client: client, logger: s.logger},
		appliers{pacer, remb},
		tierLogger{logger: s.logger},
		qcfg,
		s.logger,
	)

	pc.OnICECandidate(func(c *webrtc.ICECandidate) {
		if c == nil {
			return
		}
		candidate := c.ToJSON()
		if err := client.sendSignal(signalData{Candidate: &candidate}); err != nil {
			s.logger.Warnw("failed to send ice candidate", "error", err)
		}
	})
	pc.OnConnectionStateChange(func(state webrtc.PeerConnectionState) {
		s.logger.Infow("peer connection state", "state", state.String())
	})
	pc.OnTrack(func(remote *webrtc.TrackRemote, _ *webrtc.RTPReceiver) {
		remb.SetMediaSSRCs(uint32(remote.SSRC()))
		s.logger.Infow("remote track", "kind", remote.Kind().String(), "ssrc", remote.SSRC())
		s.goDrain(func() error {
			_, _, err := remote.ReadRTP()
			return err
		})
	})

	s.goDrain(func() error {
		packets, _, err := sender.ReadRTCP()
		if err == nil {
			stats.ObserveRTCP(packets)
		}
		return err
	})
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		if err := pacer.Run(ctx); err != nil {
			s.logger.Debugw("pacer stopped", "error", err)
		}
	}()

	s.controller.Start(quality.CeilingFor(domain.AccountAttributes{AccountType: domain.AccountFree}))

	if s.initiator {
		if err := s.offer(); err != nil {
			s.close()
			return nil, err
		}
	}
	return s, nil
}

// goDrain calls read until it fails.
func (s *peerSession) goDrain(read func() error) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		for read() == nil {
		}
	}()
}

func (s *peerSession) offer() error {
	offer, err := s.pc.CreateOffer(nil)
	if err != nil {
		return fmt.Errorf("create offer: %w", err)
	}
	if err := s.pc.SetLocalDescription(offer); err != nil {
		return fmt.Errorf("set local description: %w", err)
	}
	return s.client.sendSignal(signalData{Type: offer.Type.String(), SDP: offer.SDP})
}

// handleSignal applies a relayed description or candidate. Candidates that
// arrive before the remote description are held back.
func (s *peerSession) handleSignal(raw json.RawMessage) error {
	var data signalData
	if err := json.Unmarshal(raw, &data); err != nil {
		return fmt.Errorf("decode signal: %w", err)
	}

	if data.Candidate != nil {
		s.mu.Lock()
		if !s.remoteSet {
			s.pendingRemote = append(s.pendingRemote, *data.Candidate)
			s.mu.Unlock()
			return nil
		}
		s.mu.Unlock()
		return s.pc.AddICECandidate(*data.Candidate)
	}

	desc := webrtc.SessionDescription{Type: webrtc.NewSDPType(data.Type), SDP: data.SDP}
	if err := s.pc.SetRemoteDescription(desc); err != nil {
		return fmt.Errorf("set remote description: %w", err)
	}

	s.mu.Lock()
	s.remoteSet = true
	pending := s.pendingRemote
	s.pendingRemote = nil
	s.mu.Unlock()
	for _, c := range pending {
		if err := s.pc.AddICECandidate(c); err != nil {
			s.logger.Warnw("failed to add buffered candidate", "error", err)
		}
	}

	if desc.Type != webrtc.SDPTypeOffer {
		return nil
	}
	answer, err := s.pc.CreateAnswer(nil)
	if err != nil {
		return fmt.Errorf("create answer: %w", err)
	}
	if err := s.pc.SetLocalDescription(answer); err != nil {
		return fmt.Errorf("set local description: %w", err)
	}
	return s.client.sendSignal(signalData{Type: answer.Type.String(), SDP: answer.SDP})
}

func (s *peerSession) close() {
	s.controller.Stop()
	s.cancel()
	if err := s.pc.Close(); err != nil {
		s.logger.Debugw("peer connection close", "error", err)
	}
	s.wg.Wait()
	state := s.controller.State()
	s.logger.Infow("session closed", "final_tier", state.Current.Label)
}
