package webrtc

import (
	"fmt"

	"pairline/internal/core/domain"
	"pairline/pkg/config"

	"github.com/pion/interceptor"
	"github.com/pion/webrtc/v3"
)

// ClientConfig converts configured ICE servers into the payload sent to
// browsers in match_found.
func ClientConfig(servers []config.ICEServer) *domain.WebRTCConfig {
	out := &domain.WebRTCConfig{ICEServers: make([]domain.ICEServer, 0, len(servers))}
	for _, s := range servers {
		out.ICEServers = append(out.ICEServers, domain.ICEServer{
			URLs:       append([]string(nil), s.URLs...),
			Username:   s.Username,
			Credential: s.Credential,
		})
	}
	return out
}

func PeerConfiguration(cfg *domain.WebRTCConfig) webrtc.Configuration {
	conf := webrtc.Configuration{SDPSemantics: webrtc.SDPSemanticsUnifiedPlan}
	if cfg == nil {
		return conf
	}
	for _, s := range cfg.ICEServers {
		server := webrtc.ICEServer{URLs: s.URLs, Username: s.Username}
		if s.Credential != "" {
			server.Credential = s.Credential
			server.CredentialType = webrtc.ICECredentialTypePassword
		}
		conf.ICEServers = append(conf.ICEServers, server)
	}
	return conf
}

// NewAPI builds a pion API with the default codecs and RTCP interceptors,
// restricted to the given UDP port range. A zero range leaves pion's default.
func NewAPI(portMin, portMax uint16) (*webrtc.API, error) {
	settingEngine := webrtc.SettingEngine{}
	if portMin > 0 && portMax > 0 {
		if err := settingEngine.SetEphemeralUDPPortRange(portMin, portMax); err != nil {
			return nil, fmt.Errorf("invalid port range: %w", err)
		}
	}

	mediaEngine := &webrtc.MediaEngine{}
	if err := mediaEngine.RegisterDefaultCodecs(); err != nil {
		return nil, fmt.Errorf("register codecs: %w", err)
	}
	registry := &interceptor.Registry{}
	if err := webrtc.RegisterDefaultInterceptors(mediaEngine, registry); err != nil {
		return nil, fmt.Errorf("register interceptors: %w", err)
	}

	return webrtc.NewAPI(
		webrtc.WithSettingEngine(settingEngine),
		webrtc.WithMediaEngine(mediaEngine),
		webrtc.WithInterceptorRegistry(registry),
	), nil
}

// Validate checks the ICE server URLs and credentials by building a
// throwaway PeerConnection with them.
func Validate(cfg *domain.WebRTCConfig, portMin, portMax uint16) error {
	api, err := NewAPI(portMin, portMax)
	if err != nil {
		return err
	}
	pc, err := api.NewPeerConnection(PeerConfiguration(cfg))
	if err != nil {
		return fmt.Errorf("invalid ice configuration: %w", err)
	}
	return pc.Close()
}
