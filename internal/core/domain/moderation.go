package domain

import "time"

// ModerationResult is what the text filter returns for one chat line.
type ModerationResult struct {
	Text    string
	Flagged bool
}

// Report is an abuse report filed by a session participant.
type Report struct {
	ID         string    `json:"id"`
	ReportedID UserID    `json:"reported_id"`
	ReporterID UserID    `json:"reporter_id"`
	SessionID  SessionID `json:"session_id,omitempty"`
	Reason     string    `json:"reason"`
	CreatedAt  time.Time `json:"created_at"`
}
