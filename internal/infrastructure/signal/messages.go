package signal

import "encoding/json"

// Inbound message types.
const (
	MsgAuthenticate = "authenticate"
	MsgFindMatch    = "find_match"
	MsgCancelSearch = "cancel_search"
	MsgSignal       = "signal"
	MsgChatMessage  = "chat_message"
	MsgTyping       = "typing"
	MsgEndCall      = "end_call"
	MsgReportUser   = "report_user"
	MsgNetworkStats = "network_stats"
)

// SignalMessage is the inbound envelope.
type SignalMessage struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

type AuthenticatePayload struct {
	Token string `json:"token"`
}

type FindMatchPayload struct {
	PreferredGender string `json:"preferred_gender"`
}

type ReportPayload struct {
	Reason string `json:"reason"`
}

type NetworkStatsPayload struct {
	BandwidthBps float64 `json:"bandwidth_bps"`
	RoundTripMs  float64 `json:"round_trip_ms"`
	PacketLoss   float64 `json:"packet_loss"`
	JitterMs     float64 `json:"jitter_ms"`
}
