package services

import (
	"time"

	"pairline/internal/core/domain"
	"pairline/internal/core/ports"
)

// PresenceEntry is a live, authenticated connection.
type PresenceEntry struct {
	UserID      domain.UserID
	DisplayName string
	Attributes  domain.AccountAttributes
	Transport   ports.Transport
	ConnectedAt time.Time
}

func (e *PresenceEntry) participant() domain.Participant {
	return domain.Participant{
		UserID:      e.UserID,
		DisplayName: e.DisplayName,
		Attributes:  e.Attributes,
	}
}

// PresenceRegistry maps users to their current transport. It is not safe for
// concurrent use; the Coordinator serializes access.
type PresenceRegistry struct {
	entries map[domain.UserID]*PresenceEntry
}

// NewPresenceRegistry returns an empty registry.
func NewPresenceRegistry() *PresenceRegistry {
	return &PresenceRegistry{entries: make(map[domain.UserID]*PresenceEntry)}
}

// Put records entry and returns the entry it superseded, if any.
func (r *PresenceRegistry) Put(entry *PresenceEntry) (*PresenceEntry, bool) {
	prev, ok := r.entries[entry.UserID]
	r.entries[entry.UserID] = entry
	return prev, ok
}

// Remove drops userID and returns the removed entry.
func (r *PresenceRegistry) Remove(userID domain.UserID) (*PresenceEntry, bool) {
	entry, ok := r.entries[userID]
	if ok {
		delete(r.entries, userID)
	}
	return entry, ok
}

// Lookup returns the live entry for userID.
func (r *PresenceRegistry) Lookup(userID domain.UserID) (*PresenceEntry, bool) {
	entry, ok := r.entries[userID]
	return entry, ok
}

// Len returns the number of connected users.
func (r *PresenceRegistry) Len() int {
	return len(r.entries)
}
