package signal

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"pairline/internal/core/domain"
	"pairline/internal/core/ports"
	"pairline/pkg/tracing"
	"pairline/pkg/validation"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

type Config struct {
	PingInterval   time.Duration
	PongTimeout    time.Duration
	WriteTimeout   time.Duration
	AuthTimeout    time.Duration
	SendQueueSize  int
	AllowedOrigins []string

	MessagesPerSecond float64 // 0 disables the per-connection limiter
	MessageBurst      int
	MaxMessageSize    int64
}

func DefaultConfig() Config {
	return Config{
		PingInterval:      30 * time.Second,
		PongTimeout:       60 * time.Second,
		WriteTimeout:      10 * time.Second,
		AuthTimeout:       10 * time.Second,
		SendQueueSize:     64,
		MessagesPerSecond: 50,
		MessageBurst:      100,
		MaxMessageSize:    64 * 1024,
	}
}

type WebSocketServer struct {
	matchmaker ports.Matchmaker
	identity   ports.IdentityResolver
	cfg        Config
	upgrader   websocket.Upgrader
	logger     *zap.SugaredLogger
}

func NewWebSocketServer(matchmaker ports.Matchmaker, identity ports.IdentityResolver, cfg Config, logger *zap.SugaredLogger) *WebSocketServer {
	s := &WebSocketServer{
		matchmaker: matchmaker,
		identity:   identity,
		cfg:        cfg,
		logger:     logger,
	}
	s.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     s.checkOrigin,
	}
	return s
}

func (s *WebSocketServer) checkOrigin(r *http.Request) bool {
	if len(s.cfg.AllowedOrigins) == 0 {
		return true
	}
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	for _, allowed := range s.cfg.AllowedOrigins {
		if allowed == "*" || strings.EqualFold(allowed, origin) {
			return true
		}
	}
	return false
}

func (s *WebSocketServer) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Errorw("websocket upgrade failed", "error", err)
		return
	}
	if s.cfg.MaxMessageSize > 0 {
		conn.SetReadLimit(s.cfg.MaxMessageSize)
	}
	conn.SetReadDeadline(time.Now().Add(s.cfg.PongTimeout))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(s.cfg.PongTimeout))
		return nil
	})

	ctx := r.Context()
	identity, err := s.authenticate(ctx, conn, r)
	if err != nil {
		s.logger.Infow("websocket authentication failed", "remote", r.RemoteAddr, "error", err)
		conn.SetWriteDeadline(time.Now().Add(s.cfg.WriteTimeout))
		_ = conn.WriteJSON(domain.NewEvent(domain.EventAuthError, domain.MessagePayload{Message: "authentication failed"}))
		_ = conn.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.ClosePolicyViolation, "authentication failed"))
		conn.Close()
		return
	}
	conn.SetReadDeadline(time.Now().Add(s.cfg.PongTimeout))

	userID := identity.UserID
	logger := s.logger.With("user_id", userID)
	transport := newConnection(conn, s.cfg.SendQueueSize, s.cfg.PingInterval, s.cfg.WriteTimeout, logger)
	go transport.writeLoop()

	s.matchmaker.Register(identity, transport)
	_ = transport.Send(domain.NewEvent(domain.EventAuthenticated, domain.AuthenticatedPayload{
		UserID:      userID,
		DisplayName: identity.DisplayName,
	}))
	logger.Infow("client connected", "remote", r.RemoteAddr)

	var limiter *rate.Limiter
	if s.cfg.MessagesPerSecond > 0 {
		limiter = rate.NewLimiter(rate.Limit(s.cfg.MessagesPerSecond), s.cfg.MessageBurst)
	}

	messageChan := make(chan SignalMessage, 16)
	errorChan := make(chan error, 1)

	go func() {
		defer close(messageChan)
		for {
			var msg SignalMessage
			if err := conn.ReadJSON(&msg); err != nil {
				errorChan <- err
				return
			}
			conn.SetReadDeadline(time.Now().Add(s.cfg.PongTimeout))
			select {
			case messageChan <- msg:
			case <-transport.Done():
				return
			}
		}
	}()

loop:
	for {
		select {
		case msg, ok := <-messageChan:
			if !ok {
				break loop
			}
			if limiter != nil && !limiter.Allow() {
				logger.Debugw("inbound message rate limited", "type", msg.Type)
				_ = transport.Send(domain.NewEvent(domain.EventError, domain.MessagePayload{Message: "rate limit exceeded"}))
				continue
			}
			if err := s.handleMessage(context.Background(), userID, msg); err != nil {
				logger.Infow("error handling message", "type", msg.Type, "error", err)
				_ = transport.Send(eventFor(err))
			}

		case <-transport.Done():
			break loop
		}
	}

	select {
	case err := <-errorChan:
		if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
			logger.Infow("websocket read error", "error", err)
		}
	default:
	}

	s.matchmaker.ReleaseConnection(userID, transport)
	transport.Close()
	logger.Infow("client disconnected")
}

// authenticate resolves the credential from the query string, the
// Authorization header, or a first "authenticate" message.
func (s *WebSocketServer) authenticate(ctx context.Context, conn *websocket.Conn, r *http.Request) (*domain.Identity, error) {
	credential := r.URL.Query().Get("token")
	if credential == "" {
		credential = strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
	}

	if credential == "" {
		conn.SetReadDeadline(time.Now().Add(s.cfg.AuthTimeout))
		var msg SignalMessage
		if err := conn.ReadJSON(&msg); err != nil {
			return nil, fmt.Errorf("read authenticate message: %w", err)
		}
		if msg.Type != MsgAuthenticate {
			return nil, fmt.Errorf("%w: expected %s, got %q", domain.ErrAuthentication, MsgAuthenticate, msg.Type)
		}
		var payload AuthenticatePayload
		if err := json.Unmarshal(msg.Payload, &payload); err != nil {
			return nil, fmt.Errorf("%w: %v", domain.ErrAuthentication, err)
		}
		credential = payload.Token
	}

	return s.identity.ResolveIdentity(ctx, credential)
}

func (s *WebSocketServer) handleMessage(ctx context.Context, userID domain.UserID, msg SignalMessage) error {
	if msg.Type == "" {
		return fmt.Errorf("message type is required")
	}

	ctx, span := tracing.TraceWebSocketMessage(ctx, msg.Type, string(userID))
	defer span.End()

	switch msg.Type {
	case MsgFindMatch:
		return s.handleFindMatch(ctx, userID, msg)
	case MsgCancelSearch:
		s.matchmaker.CancelSearch(userID)
	case MsgSignal:
		s.matchmaker.Relay(ctx, userID, domain.RelaySignal, msg.Payload)
	case MsgChatMessage:
		s.matchmaker.Relay(ctx, userID, domain.RelayChatMessage, msg.Payload)
	case MsgTyping:
		s.matchmaker.Relay(ctx, userID, domain.RelayTyping, msg.Payload)
	case MsgEndCall:
		s.matchmaker.EndSession(userID)
	case MsgReportUser:
		return s.handleReport(ctx, userID, msg)
	case MsgNetworkStats:
		return s.handleNetworkStats(userID, msg)
	case MsgAuthenticate:
		return fmt.Errorf("already authenticated")
	default:
		err := fmt.Errorf("unknown message type: %s", msg.Type)
		tracing.RecordError(ctx, err)
		return err
	}
	return nil
}

func (s *WebSocketServer) handleFindMatch(ctx context.Context, userID domain.UserID, msg SignalMessage) error {
	var payload FindMatchPayload
	if len(msg.Payload) > 0 {
		if err := json.Unmarshal(msg.Payload, &payload); err != nil {
			return matchError("invalid find_match payload")
		}
	}

	preference, err := domain.ParsePreference(payload.PreferredGender)
	if err != nil {
		return matchError("unknown preferred_gender")
	}

	if _, err := s.matchmaker.RequestMatch(ctx, userID, preference); err != nil {
		tracing.RecordError(ctx, err)
		s.logger.Warnw("match request failed", "user_id", userID, "error", err)
		return matchError("could not process match request, please retry")
	}
	return nil
}

// matchError is retryable from the client's point of view.
func matchError(message string) error {
	return &clientError{eventType: domain.EventMatchError, message: message}
}

func (s *WebSocketServer) handleReport(ctx context.Context, userID domain.UserID, msg SignalMessage) error {
	var payload ReportPayload
	if err := json.Unmarshal(msg.Payload, &payload); err != nil {
		return fmt.Errorf("invalid report_user payload: %w", err)
	}
	if err := validation.ValidateReportReason(payload.Reason); err != nil {
		return err
	}
	s.matchmaker.Report(ctx, userID, payload.Reason)
	return nil
}

func (s *WebSocketServer) handleNetworkStats(userID domain.UserID, msg SignalMessage) error {
	var payload NetworkStatsPayload
	if err := json.Unmarshal(msg.Payload, &payload); err != nil {
		return fmt.Errorf("invalid network_stats payload: %w", err)
	}
	if payload.BandwidthBps < 0 || payload.RoundTripMs < 0 || payload.JitterMs < 0 ||
		payload.PacketLoss < 0 || payload.PacketLoss > 1 {
		return fmt.Errorf("network_stats values out of range")
	}
	s.matchmaker.SubmitNetworkSample(userID, domain.NetworkSample{
		BandwidthBps:    payload.BandwidthBps,
		RoundTripMs:     payload.RoundTripMs,
		PacketLossRatio: payload.PacketLoss,
		JitterMs:        payload.JitterMs,
		SampledAt:       time.Now(),
	})
	return nil
}

// clientError carries a specific outbound event type back to the read loop.
type clientError struct {
	eventType domain.EventType
	message   string
}

func (e *clientError) Error() string { return e.message }

// eventFor maps a handler error to the event the client receives.
func eventFor(err error) *domain.Event {
	var ce *clientError
	if errors.As(err, &ce) {
		return domain.NewEvent(ce.eventType, domain.MessagePayload{Message: ce.message})
	}
	return domain.NewEvent(domain.EventError, domain.MessagePayload{Message: err.Error()})
}
