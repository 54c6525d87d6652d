package ports

import (
	"context"
	"encoding/json"
	"time"

	"pairline/internal/core/domain"
)

// IdentityResolver turns a bearer credential into an admitted identity.
type IdentityResolver interface {
	ResolveIdentity(ctx context.Context, credential string) (*domain.Identity, error)
}

type TextModerator interface {
	ModerateText(ctx context.Context, text string) domain.ModerationResult
}

type ReportRecorder interface {
	RecordReport(ctx context.Context, reported, reporter domain.UserID, reason string) error
}

// EventPublisher fans lifecycle events out to other consumers. Publish must
// not block the caller.
type EventPublisher interface {
	Publish(event domain.LifecycleEvent)
}

type MetricsRecorder interface {
	SetConnectedUsers(n int)
	SetWaitingUsers(n int)
	SetActiveSessions(n int)
	RecordMatch(bucket string, wait time.Duration)
	RecordSessionEnded(reason domain.EndReason, duration time.Duration)
	RecordRelay(kind domain.RelayKind, delivered bool)
	RecordQualityChange(label string)
	RecordReport()
	RecordSwept(n int)
}

// NetworkStatsSource yields the latest network reading for one session side.
// ok is false when no sample is available this interval.
type NetworkStatsSource interface {
	Sample(ctx context.Context) (sample domain.NetworkSample, ok bool)
}

// ConstraintApplier enforces a tier's bitrate and frame rate on the
// outbound media of one session side.
type ConstraintApplier interface {
	Apply(tier domain.QualityTier) error
}

type QualityObserver interface {
	QualityChanged(tier domain.QualityTier)
	ConnectionQualityChanged(level domain.ConnectionQuality)
}

// Matchmaker is the surface the transport layer drives.
type Matchmaker interface {
	Register(identity *domain.Identity, transport Transport)
	ReleaseConnection(userID domain.UserID, transport Transport)
	HandleDisconnect(userID domain.UserID)
	RequestMatch(ctx context.Context, userID domain.UserID, preference domain.Preference) (*domain.Session, error)
	CancelSearch(userID domain.UserID)
	EndSession(userID domain.UserID)
	Relay(ctx context.Context, from domain.UserID, kind domain.RelayKind, payload json.RawMessage)
	Report(ctx context.Context, userID domain.UserID, reason string)
	SubmitNetworkSample(userID domain.UserID, sample domain.NetworkSample)
	QueueStats() domain.QueueStats
	ActiveSessionCount() int
	UserState(userID domain.UserID) domain.UserState
}
