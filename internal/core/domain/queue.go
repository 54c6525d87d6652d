package domain

import (
	"fmt"
	"strings"
	"time"
)

// Preference is the gender filter a user asks the matcher for.
type Preference string

const (
	PreferBoth   Preference = "both"
	PreferMale   Preference = "male"
	PreferFemale Preference = "female"
)

// ParsePreference maps the wire value to a Preference; empty means both.
func ParsePreference(s string) (Preference, error) {
	switch p := Preference(strings.ToLower(strings.TrimSpace(s))); p {
	case "":
		return PreferBoth, nil
	case PreferBoth, PreferMale, PreferFemale:
		return p, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrInvalidPreference, s)
	}
}

// SatisfiedBy reports whether a partner of gender g meets the preference.
// An unspecified gender satisfies any preference.
func (p Preference) SatisfiedBy(g Gender) bool {
	if p == PreferBoth || g == GenderUnspecified {
		return true
	}
	return string(p) == string(g)
}

// WaitingEntry is a user parked in the matching queue.
type WaitingEntry struct {
	UserID              UserID
	DisplayName         string
	Attributes          AccountAttributes
	Preference          Preference
	EffectivePreference Preference
	JoinedAt            time.Time
}

// QueueStats is the read-only queue snapshot sent with "searching" and
// served to dashboards.
type QueueStats struct {
	Waiting        int     `json:"waiting"`
	Male           int     `json:"male"`
	Female         int     `json:"female"`
	Unspecified    int     `json:"unspecified"`
	ActiveSessions int     `json:"active_sessions"`
	OldestWaitSecs float64 `json:"oldest_wait_seconds"`
}

// UserState is derived from queue and session membership.
type UserState string

const (
	StateIdle      UserState = "idle"
	StateSearching UserState = "searching"
	StateInSession UserState = "in_session"
)
