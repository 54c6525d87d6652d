package domain

import (
	"encoding/json"
	"time"
)

// EventType names an outbound event on a client's transport.
type EventType string

const (
	EventAuthenticated     EventType = "authenticated"
	EventAuthError         EventType = "auth_error"
	EventSearching         EventType = "searching"
	EventMatchFound        EventType = "match_found"
	EventSignal            EventType = "signal"
	EventChatMessage       EventType = "chat_message"
	EventTyping            EventType = "typing"
	EventReportNotice      EventType = "report_notice"
	EventSessionEnded      EventType = "session_ended"
	EventMatchError        EventType = "match_error"
	EventQualityChanged    EventType = "quality_changed"
	EventConnectionQuality EventType = "connection_quality"
	EventError             EventType = "error"
)

// Event is the envelope written to a transport.
type Event struct {
	Type    EventType   `json:"type"`
	Payload interface{} `json:"payload,omitempty"`
}

func NewEvent(t EventType, payload interface{}) *Event {
	return &Event{Type: t, Payload: payload}
}

// RelayKind is what a relayed message carries between session partners.
type RelayKind string

const (
	RelaySignal       RelayKind = "signal"
	RelayChatMessage  RelayKind = "chat_message"
	RelayTyping       RelayKind = "typing"
	RelayReportNotice RelayKind = "report_notice"
)

func (k RelayKind) Valid() bool {
	switch k {
	case RelaySignal, RelayChatMessage, RelayTyping, RelayReportNotice:
		return true
	}
	return false
}

type AuthenticatedPayload struct {
	UserID      UserID `json:"user_id"`
	DisplayName string `json:"display_name"`
}

type MessagePayload struct {
	Message string `json:"message"`
}

type SearchingPayload struct {
	Message    string     `json:"message"`
	QueueStats QueueStats `json:"queue_stats"`
}

type MatchFoundPayload struct {
	SessionID    SessionID     `json:"session_id"`
	PartnerName  string        `json:"partner_name"`
	IsInitiator  bool          `json:"is_initiator"`
	WebRTCConfig *WebRTCConfig `json:"webrtc_config,omitempty"`
}

type SignalPayload struct {
	Data json.RawMessage `json:"data"`
	From UserID          `json:"from"`
}

type ChatPayload struct {
	Text      string    `json:"text"`
	Timestamp time.Time `json:"timestamp"`
	Flagged   bool      `json:"flagged,omitempty"`
}

type SessionEndedPayload struct {
	Reason EndReason `json:"reason"`
}

type ConnectionQualityPayload struct {
	Level ConnectionQuality `json:"level"`
}

// ICEServer mirrors the RTCIceServer dictionary handed to browsers.
type ICEServer struct {
	URLs       []string `json:"urls"`
	Username   string   `json:"username,omitempty"`
	Credential string   `json:"credential,omitempty"`
}

type WebRTCConfig struct {
	ICEServers []ICEServer `json:"iceServers"`
}

// LifecycleEventType names events published to other instances and consumers.
type LifecycleEventType string

const (
	LifecycleSessionCreated LifecycleEventType = "session.created"
	LifecycleSessionEnded   LifecycleEventType = "session.ended"
	LifecycleReportFiled    LifecycleEventType = "report.filed"
)

type LifecycleEvent struct {
	Type       LifecycleEventType `json:"type"`
	SessionID  SessionID          `json:"session_id,omitempty"`
	UserIDs    []UserID           `json:"user_ids"`
	Reason     string             `json:"reason,omitempty"`
	InstanceID string             `json:"instance_id,omitempty"`
	OccurredAt time.Time          `json:"occurred_at"`
}
