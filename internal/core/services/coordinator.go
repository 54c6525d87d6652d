package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"pairline/internal/core/domain"
	"pairline/internal/core/ports"
	"pairline/pkg/tracing"
	"pairline/pkg/validation"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

const (
	DefaultStaleAfter    = 30 * time.Minute
	DefaultSweepInterval = time.Minute

	searchingMessage    = "Looking for someone to talk to..."
	reportNoticeMessage = "You have been reported by your partner."
	defaultMaxChatBytes = 2000
)

// CoordinatorConfig tunes matching, sweeping and the per-side quality
// controllers. Zero values fall back to the defaults.
type CoordinatorConfig struct {
	PreferredWeight float64
	StaleAfter      time.Duration
	SweepInterval   time.Duration
	MaxChatBytes    int
	Quality         QualityControllerConfig
	WebRTC          *domain.WebRTCConfig

	// Rand, Now and NewSessionID are injectable for tests.
	Rand         *rand.Rand
	Now          func() time.Time
	NewSessionID func() domain.SessionID
}

// sessionSide is the quality machinery attached to one participant.
type sessionSide struct {
	controller *QualityController
	stats      *ReportedStats
}

// Coordinator owns presence, the matching queue and the session table. All
// state transitions happen under mu, so a match, the queue removal it implies
// and the session creation are one atomic step.
type Coordinator struct {
	cfg       CoordinatorConfig
	quality   *QualityService
	moderator ports.TextModerator
	reports   ports.ReportRecorder
	metrics   ports.MetricsRecorder
	events    ports.EventPublisher
	logger    *zap.SugaredLogger

	mu       sync.Mutex
	presence *PresenceRegistry
	queue    *MatchQueue
	sessions *SessionTable
	sides    map[domain.UserID]*sessionSide
	matcher  *Matcher
}

// NewCoordinator wires a Coordinator. moderator, reports and quality may be
// nil; metrics and events default to in-memory and no-op implementations.
func NewCoordinator(
	cfg CoordinatorConfig,
	quality *QualityService,
	moderator ports.TextModerator,
	reports ports.ReportRecorder,
	metrics ports.MetricsRecorder,
	events ports.EventPublisher,
	logger *zap.SugaredLogger,
) *Coordinator {
	if cfg.StaleAfter <= 0 {
		cfg.StaleAfter = DefaultStaleAfter
	}
	if cfg.SweepInterval <= 0 {
		cfg.SweepInterval = DefaultSweepInterval
	}
	if cfg.PreferredWeight == 0 {
		cfg.PreferredWeight = DefaultPreferredWeight
	}
	if cfg.MaxChatBytes <= 0 {
		cfg.MaxChatBytes = defaultMaxChatBytes
	}
	if cfg.Rand == nil {
		cfg.Rand = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.NewSessionID == nil {
		cfg.NewSessionID = func() domain.SessionID { return domain.SessionID(uuid.NewString()) }
	}
	if metrics == nil {
		metrics = NewMetricsService()
	}
	if events == nil {
		events = NoopPublisher
	}

	return &Coordinator{
		cfg:       cfg,
		quality:   quality,
		moderator: moderator,
		reports:   reports,
		metrics:   metrics,
		events:    events,
		logger:    logger,
		presence:  NewPresenceRegistry(),
		queue:     NewMatchQueue(),
		sessions:  NewSessionTable(),
		sides:     make(map[domain.UserID]*sessionSide),
		matcher:   NewMatcher(cfg.Rand, cfg.PreferredWeight),
	}
}

// Register admits an authenticated connection. A previous connection for the
// same user is torn down exactly as if it had disconnected, then closed.
func (c *Coordinator) Register(identity *domain.Identity, transport ports.Transport) {
	c.mu.Lock()
	prev, replaced := c.presence.Put(&PresenceEntry{
		UserID:      identity.UserID,
		DisplayName: identity.DisplayName,
		Attributes:  identity.Attributes,
		Transport:   transport,
		ConnectedAt: c.cfg.Now(),
	})
	if replaced {
		c.leaveLocked(identity.UserID, false, domain.ReasonPartnerLeft)
	}
	c.syncGaugesLocked()
	c.mu.Unlock()

	c.logger.Infow("user registered",
		"user_id", identity.UserID,
		"account_type", identity.Attributes.AccountType,
		"superseded", replaced,
	)

	if replaced && prev.Transport != transport {
		if err := prev.Transport.Close(); err != nil {
			c.logger.Debugw("closing superseded transport", "user_id", identity.UserID, "error", err)
		}
	}
}

// ReleaseConnection is called by a transport when it goes away. It only acts
// if transport is still the registered one for userID.
func (c *Coordinator) ReleaseConnection(userID domain.UserID, transport ports.Transport) {
	c.mu.Lock()
	defer c.mu.Unlock()

	entry, ok := c.presence.Lookup(userID)
	if !ok || entry.Transport != transport {
		return
	}
	c.disconnectLocked(userID)
}

// HandleDisconnect ends any session, leaves the queue and drops presence.
// Safe to call from any state and more than once.
func (c *Coordinator) HandleDisconnect(userID domain.UserID) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.disconnectLocked(userID)
}

func (c *Coordinator) disconnectLocked(userID domain.UserID) {
	c.leaveLocked(userID, false, domain.ReasonPartnerLeft)
	if _, ok := c.presence.Remove(userID); ok {
		c.logger.Infow("user disconnected", "user_id", userID)
	}
	c.syncGaugesLocked()
}

// RequestMatch pairs userID with a compatible waiting user or parks it in the
// queue. A nil session with a nil error means the user is now searching.
func (c *Coordinator) RequestMatch(ctx context.Context, userID domain.UserID, preference domain.Preference) (*domain.Session, error) {
	ctx, span := tracing.StartSpan(ctx, "coordinator.request_match")
	defer span.End()
	tracing.AddSpanAttributes(ctx,
		tracing.UserIDKey.String(string(userID)),
		tracing.PreferenceKey.String(string(preference)),
	)

	c.mu.Lock()
	defer c.mu.Unlock()

	entry, ok := c.presence.Lookup(userID)
	if !ok {
		return nil, fmt.Errorf("request match for %s: %w", userID, domain.ErrUserNotConnected)
	}

	// Re-entry: leave whatever the user was doing first.
	c.leaveLocked(userID, false, domain.ReasonPartnerLeft)

	now := c.cfg.Now()
	requester := &domain.WaitingEntry{
		UserID:              userID,
		DisplayName:         entry.DisplayName,
		Attributes:          entry.Attributes,
		Preference:          preference,
		EffectivePreference: EffectivePreference(entry.Attributes, preference),
		JoinedAt:            now,
	}
	if requester.EffectivePreference != preference {
		c.logger.Debugw("match preference downgraded",
			"user_id", userID,
			"requested", preference,
			"effective", requester.EffectivePreference,
		)
	}

	var candidates []*domain.WaitingEntry
	for _, waiting := range c.queue.Entries() {
		if _, present := c.presence.Lookup(waiting.UserID); !present {
			c.queue.Remove(waiting.UserID)
			continue
		}
		if Compatible(requester, waiting) {
			candidates = append(candidates, waiting)
		}
	}

	for len(candidates) > 0 {
		partner, bucket := c.matcher.Select(requester, candidates)
		c.queue.Remove(partner.UserID)

		partnerEntry, _ := c.presence.Lookup(partner.UserID)
		session := &domain.Session{
			ID:        c.cfg.NewSessionID(),
			SideA:     entry.participant(),
			SideB:     partnerEntry.participant(),
			CreatedAt: now,
		}
		if err := c.sessions.Add(session); err != nil {
			// Unreachable while leaveLocked and queue membership hold.
			c.queue.Add(partner)
			return nil, err
		}

		// The waiting side hears first: if its transport died while it was
		// queued, the requester must not see a match that never existed.
		if !c.sendLocked(session.SideB.UserID, domain.NewEvent(domain.EventMatchFound, domain.MatchFoundPayload{
			SessionID:    session.ID,
			PartnerName:  session.SideA.DisplayName,
			IsInitiator:  false,
			WebRTCConfig: c.cfg.WebRTC,
		})) {
			c.sessions.Remove(session.ID)
			c.dropUnreachableLocked(partner.UserID)
			candidates = withoutEntry(candidates, partner.UserID)
			c.logger.Infow("matched partner unreachable, retrying",
				"user_id", userID,
				"partner_id", partner.UserID,
				"remaining", len(candidates),
			)
			continue
		}

		tracing.AddSpanAttributes(ctx,
			tracing.MatchedKey.Bool(true),
			tracing.SessionIDKey.String(string(session.ID)),
			tracing.PartnerIDKey.String(string(partner.UserID)),
		)
		c.metrics.RecordMatch(bucket, now.Sub(partner.JoinedAt))
		c.syncGaugesLocked()
		c.logger.Infow("match found",
			"session_id", session.ID,
			"initiator", session.SideA.UserID,
			"partner_id", session.SideB.UserID,
			"bucket", bucket,
			"partner_wait", now.Sub(partner.JoinedAt),
		)

		c.events.Publish(domain.LifecycleEvent{
			Type:       domain.LifecycleSessionCreated,
			SessionID:  session.ID,
			UserIDs:    []domain.UserID{session.SideA.UserID, session.SideB.UserID},
			OccurredAt: now,
		})

		c.sendLocked(session.SideA.UserID, domain.NewEvent(domain.EventMatchFound, domain.MatchFoundPayload{
			SessionID:    session.ID,
			PartnerName:  session.SideB.DisplayName,
			IsInitiator:  true,
			WebRTCConfig: c.cfg.WebRTC,
		}))
		c.startSideLocked(session.SideA)
		c.startSideLocked(session.SideB)
		return session, nil
	}

	c.queue.Add(requester)
	c.syncGaugesLocked()
	c.sendLocked(userID, domain.NewEvent(domain.EventSearching, domain.SearchingPayload{
		Message:    searchingMessage,
		QueueStats: c.queueStatsLocked(now),
	}))
	tracing.AddSpanAttributes(ctx, tracing.MatchedKey.Bool(false))
	c.logger.Infow("user waiting for match",
		"user_id", userID,
		"preference", requester.EffectivePreference,
		"queue_length", c.queue.Len(),
	)
	return nil, nil
}

func withoutEntry(entries []*domain.WaitingEntry, userID domain.UserID) []*domain.WaitingEntry {
	out := entries[:0]
	for _, e := range entries {
		if e.UserID != userID {
			out = append(out, e)
		}
	}
	return out
}

// CancelSearch takes a searching user out of the queue.
func (c *Coordinator) CancelSearch(userID domain.UserID) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, ok := c.queue.Remove(userID); ok {
		c.syncGaugesLocked()
		c.logger.Infow("search cancelled", "user_id", userID)
	}
}

// EndSession ends the caller's session: the partner is told partner_left, the
// caller you_left. A second call is a no-op.
func (c *Coordinator) EndSession(userID domain.UserID) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.leaveLocked(userID, true, domain.ReasonYouLeft)
	c.syncGaugesLocked()
}

// Relay forwards one message from a session participant to its partner.
// Messages from users without a session are dropped.
func (c *Coordinator) Relay(ctx context.Context, from domain.UserID, kind domain.RelayKind, payload json.RawMessage) {
	event, err := c.buildRelayEvent(ctx, from, kind, payload)
	if err != nil {
		c.logger.Debugw("relay payload rejected", "user_id", from, "kind", kind, "error", err)
		c.metrics.RecordRelay(kind, false)
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	session, ok := c.sessions.ByUser(from)
	if !ok {
		c.logger.Debugw("relay without session dropped", "user_id", from, "kind", kind)
		c.metrics.RecordRelay(kind, false)
		return
	}
	partner, _ := session.Partner(from)

	if !c.sendLocked(partner.UserID, event) {
		c.logger.Infow("relay target unreachable",
			"user_id", from,
			"partner_id", partner.UserID,
			"session_id", session.ID,
		)
		c.metrics.RecordRelay(kind, false)
		c.dropUnreachableLocked(partner.UserID)
		return
	}
	c.metrics.RecordRelay(kind, true)
}

// buildRelayEvent decodes and prepares the outbound event. Chat text goes
// through the moderator here, outside the coordinator lock.
func (c *Coordinator) buildRelayEvent(ctx context.Context, from domain.UserID, kind domain.RelayKind, payload json.RawMessage) (*domain.Event, error) {
	switch kind {
	case domain.RelaySignal:
		var in struct {
			Data json.RawMessage `json:"data"`
		}
		if err := json.Unmarshal(payload, &in); err != nil || len(in.Data) == 0 {
			return nil, fmt.Errorf("%w: signal requires data", domain.ErrInvalidPayload)
		}
		return domain.NewEvent(domain.EventSignal, domain.SignalPayload{Data: in.Data, From: from}), nil

	case domain.RelayChatMessage:
		var in struct {
			Text string `json:"text"`
		}
		if err := json.Unmarshal(payload, &in); err != nil {
			return nil, fmt.Errorf("%w: %v", domain.ErrInvalidPayload, err)
		}
		if err := validation.ValidateChatText(in.Text, c.cfg.MaxChatBytes); err != nil {
			return nil, fmt.Errorf("%w: %v", domain.ErrInvalidPayload, err)
		}
		result := domain.ModerationResult{Text: in.Text}
		if c.moderator != nil {
			result = c.moderator.ModerateText(ctx, in.Text)
		}
		return domain.NewEvent(domain.EventChatMessage, domain.ChatPayload{
			Text:      result.Text,
			Timestamp: c.cfg.Now().UTC(),
			Flagged:   result.Flagged,
		}), nil

	case domain.RelayTyping:
		return domain.NewEvent(domain.EventTyping, struct{}{}), nil

	case domain.RelayReportNotice:
		var in domain.MessagePayload
		if len(payload) > 0 {
			if err := json.Unmarshal(payload, &in); err != nil {
				return nil, fmt.Errorf("%w: %v", domain.ErrInvalidPayload, err)
			}
		}
		if in.Message == "" {
			in.Message = reportNoticeMessage
		}
		return domain.NewEvent(domain.EventReportNotice, in), nil
	}
	return nil, fmt.Errorf("%w: %q", domain.ErrUnknownRelayKind, kind)
}

// Report notifies the partner, ends the session and records the report with
// the moderation store.
func (c *Coordinator) Report(ctx context.Context, userID domain.UserID, reason string) {
	c.mu.Lock()
	session, ok := c.sessions.ByUser(userID)
	if !ok {
		c.mu.Unlock()
		c.logger.Debugw("report without session dropped", "user_id", userID)
		return
	}
	partner, _ := session.Partner(userID)
	c.sendLocked(partner.UserID, domain.NewEvent(domain.EventReportNotice, domain.MessagePayload{
		Message: reportNoticeMessage,
	}))
	c.leaveLocked(userID, true, domain.ReasonReported)
	c.syncGaugesLocked()
	c.mu.Unlock()

	c.metrics.RecordReport()
	c.events.Publish(domain.LifecycleEvent{
		Type:       domain.LifecycleReportFiled,
		SessionID:  session.ID,
		UserIDs:    []domain.UserID{partner.UserID, userID},
		Reason:     reason,
		OccurredAt: c.cfg.Now(),
	})
	c.logger.Infow("user reported",
		"user_id", userID,
		"partner_id", partner.UserID,
		"session_id", session.ID,
	)

	if c.reports == nil {
		return
	}
	if err := c.reports.RecordReport(ctx, partner.UserID, userID, reason); err != nil {
		c.logger.Errorw("failed to record report",
			"reported_id", partner.UserID,
			"reporter_id", userID,
			"error", err,
		)
	}
}

// SubmitNetworkSample hands a client telemetry report to the user's quality
// controller. Reports outside a session are ignored.
func (c *Coordinator) SubmitNetworkSample(userID domain.UserID, sample domain.NetworkSample) {
	c.mu.Lock()
	side, ok := c.sides[userID]
	c.mu.Unlock()
	if !ok {
		return
	}
	if sample.SampledAt.IsZero() {
		sample.SampledAt = c.cfg.Now()
	}
	side.stats.Put(sample)
}

// QueueStats returns a snapshot of the waiting queue.
func (c *Coordinator) QueueStats() domain.QueueStats {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.queueStatsLocked(c.cfg.Now())
}

// ActiveSessionCount returns the number of live sessions.
func (c *Coordinator) ActiveSessionCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sessions.Len()
}

// ConnectedCount returns the number of registered connections.
func (c *Coordinator) ConnectedCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.presence.Len()
}

// UserState reports whether userID is idle, searching or in a session.
func (c *Coordinator) UserState(userID domain.UserID) domain.UserState {
	c.mu.Lock()
	defer c.mu.Unlock()
	switch {
	case c.sessionOf(userID) != nil:
		return domain.StateInSession
	case c.queue.Contains(userID):
		return domain.StateSearching
	default:
		return domain.StateIdle
	}
}

// CurrentTier reports the tier in effect for userID's side of its session.
func (c *Coordinator) CurrentTier(userID domain.UserID) (domain.QualityTier, bool) {
	c.mu.Lock()
	side, ok := c.sides[userID]
	c.mu.Unlock()
	if !ok {
		return domain.QualityTier{}, false
	}
	return side.controller.CurrentTier(), true
}

// Sweep evicts waiting entries older than the staleness threshold.
func (c *Coordinator) Sweep() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	evicted := c.queue.Sweep(c.cfg.Now(), c.cfg.StaleAfter)
	if len(evicted) == 0 {
		return 0
	}
	for _, e := range evicted {
		c.logger.Infow("stale waiting entry evicted", "user_id", e.UserID, "joined_at", e.JoinedAt)
	}
	c.metrics.RecordSwept(len(evicted))
	c.syncGaugesLocked()
	return len(evicted)
}

// Run sweeps the queue until ctx is cancelled, then stops every quality
// controller.
func (c *Coordinator) Run(ctx context.Context) {
	ticker := time.NewTicker(c.cfg.SweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			c.shutdown()
			return
		case <-ticker.C:
			c.Sweep()
		}
	}
}

func (c *Coordinator) shutdown() {
	c.mu.Lock()
	defer c.mu.Unlock()
	for userID, side := range c.sides {
		side.controller.Stop()
		delete(c.sides, userID)
	}
}

// leaveLocked removes userID from the queue and tears down its session. The
// partner always hears partner_left; the caller hears you_left only when
// notifySelf is set. reason labels the teardown for metrics and events.
func (c *Coordinator) leaveLocked(userID domain.UserID, notifySelf bool, reason domain.EndReason) {
	c.queue.Remove(userID)

	session := c.sessionOf(userID)
	if session == nil {
		return
	}
	c.sessions.Remove(session.ID)
	partner, _ := session.Partner(userID)
	c.stopSideLocked(userID)
	c.stopSideLocked(partner.UserID)

	now := c.cfg.Now()
	c.metrics.RecordSessionEnded(reason, now.Sub(session.CreatedAt))
	c.events.Publish(domain.LifecycleEvent{
		Type:       domain.LifecycleSessionEnded,
		SessionID:  session.ID,
		UserIDs:    []domain.UserID{session.SideA.UserID, session.SideB.UserID},
		Reason:     string(reason),
		OccurredAt: now,
	})
	c.logger.Infow("session ended",
		"session_id", session.ID,
		"user_id", userID,
		"partner_id", partner.UserID,
		"reason", reason,
		"duration", now.Sub(session.CreatedAt),
	)

	c.sendLocked(partner.UserID, domain.NewEvent(domain.EventSessionEnded, domain.SessionEndedPayload{
		Reason: domain.ReasonPartnerLeft,
	}))
	if notifySelf {
		c.sendLocked(userID, domain.NewEvent(domain.EventSessionEnded, domain.SessionEndedPayload{
			Reason: domain.ReasonYouLeft,
		}))
	}
}

// dropUnreachableLocked treats a user whose transport failed as disconnected.
func (c *Coordinator) dropUnreachableLocked(userID domain.UserID) {
	entry, ok := c.presence.Lookup(userID)
	c.disconnectLocked(userID)
	if ok {
		go func() {
			if err := entry.Transport.Close(); err != nil {
				c.logger.Debugw("closing unreachable transport", "user_id", userID, "error", err)
			}
		}()
	}
}

// sendLocked enqueues event on userID's transport. It reports false when the
// user is not registered or the transport refused the event.
func (c *Coordinator) sendLocked(userID domain.UserID, event *domain.Event) bool {
	entry, ok := c.presence.Lookup(userID)
	if !ok {
		return false
	}
	if err := entry.Transport.Send(event); err != nil {
		level := c.logger.Warnw
		if errors.Is(err, domain.ErrTransportClosed) {
			level = c.logger.Debugw
		}
		level("send failed", "user_id", userID, "event", event.Type, "error", err)
		return false
	}
	return true
}

func (c *Coordinator) startSideLocked(p domain.Participant) {
	entry, ok := c.presence.Lookup(p.UserID)
	if !ok || c.quality == nil {
		return
	}
	stats := NewReportedStats()
	observer := &transportObserver{
		userID:    p.UserID,
		transport: entry.Transport,
		metrics:   c.metrics,
		logger:    c.logger,
	}
	controller := NewQualityController(c.quality, stats, nil, observer, c.cfg.Quality,
		c.logger.With("user_id", p.UserID))
	controller.Start(c.quality.CeilingFor(p.Attributes))
	c.sides[p.UserID] = &sessionSide{controller: controller, stats: stats}
}

func (c *Coordinator) stopSideLocked(userID domain.UserID) {
	side, ok := c.sides[userID]
	if !ok {
		return
	}
	delete(c.sides, userID)
	side.controller.Stop()
}

func (c *Coordinator) sessionOf(userID domain.UserID) *domain.Session {
	s, ok := c.sessions.ByUser(userID)
	if !ok {
		return nil
	}
	return s
}

func (c *Coordinator) queueStatsLocked(now time.Time) domain.QueueStats {
	stats := c.queue.Stats(now)
	stats.ActiveSessions = c.sessions.Len()
	return stats
}

func (c *Coordinator) syncGaugesLocked() {
	c.metrics.SetConnectedUsers(c.presence.Len())
	c.metrics.SetWaitingUsers(c.queue.Len())
	c.metrics.SetActiveSessions(c.sessions.Len())
}

// transportObserver turns quality controller callbacks into client events.
type transportObserver struct {
	userID    domain.UserID
	transport ports.Transport
	metrics   ports.MetricsRecorder
	logger    *zap.SugaredLogger
}

func (o *transportObserver) QualityChanged(tier domain.QualityTier) {
	o.metrics.RecordQualityChange(tier.Label)
	if err := o.transport.Send(domain.NewEvent(domain.EventQualityChanged, tier)); err != nil {
		o.logger.Debugw("quality_changed not delivered", "user_id", o.userID, "error", err)
	}
}

func (o *transportObserver) ConnectionQualityChanged(level domain.ConnectionQuality) {
	if err := o.transport.Send(domain.NewEvent(domain.EventConnectionQuality, domain.ConnectionQualityPayload{
		Level: level,
	})); err != nil {
		o.logger.Debugw("connection_quality not delivered", "user_id", o.userID, "error", err)
	}
}
