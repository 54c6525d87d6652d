package domain

import "time"

type SessionID string

// Participant is one side of a session.
type Participant struct {
	UserID      UserID
	DisplayName string
	Attributes  AccountAttributes
}

// Session pairs two users. SideA is the requester that completed the match
// and acts as the WebRTC initiator.
type Session struct {
	ID        SessionID
	SideA     Participant
	SideB     Participant
	CreatedAt time.Time
}

// Partner returns the other side of the session for userID.
func (s *Session) Partner(userID UserID) (Participant, bool) {
	switch userID {
	case s.SideA.UserID:
		return s.SideB, true
	case s.SideB.UserID:
		return s.SideA, true
	default:
		return Participant{}, false
	}
}

func (s *Session) Includes(userID UserID) bool {
	return s.SideA.UserID == userID || s.SideB.UserID == userID
}

// EndReason is carried by session_ended.
type EndReason string

const (
	ReasonPartnerLeft EndReason = "partner_left"
	ReasonYouLeft     EndReason = "you_left"
	ReasonReported    EndReason = "reported"
)
