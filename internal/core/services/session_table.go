package services

import (
	"fmt"

	"pairline/internal/core/domain"
)

// SessionTable indexes active sessions by id and by participant. Not safe
// for concurrent use.
type SessionTable struct {
	byID   map[domain.SessionID]*domain.Session
	byUser map[domain.UserID]*domain.Session
}

// NewSessionTable returns an empty table.
func NewSessionTable() *SessionTable {
	return &SessionTable{
		byID:   make(map[domain.SessionID]*domain.Session),
		byUser: make(map[domain.UserID]*domain.Session),
	}
}

// Add fails if either participant is already in a session.
func (t *SessionTable) Add(s *domain.Session) error {
	for _, id := range []domain.UserID{s.SideA.UserID, s.SideB.UserID} {
		if _, ok := t.byUser[id]; ok {
			return fmt.Errorf("%w: %s", domain.ErrAlreadyInSession, id)
		}
	}
	t.byID[s.ID] = s
	t.byUser[s.SideA.UserID] = s
	t.byUser[s.SideB.UserID] = s
	return nil
}

// Remove deletes the session and frees both participants.
func (t *SessionTable) Remove(id domain.SessionID) (*domain.Session, bool) {
	s, ok := t.byID[id]
	if !ok {
		return nil, false
	}
	delete(t.byID, id)
	delete(t.byUser, s.SideA.UserID)
	delete(t.byUser, s.SideB.UserID)
	return s, true
}

// ByUser returns the session userID is in.
func (t *SessionTable) ByUser(userID domain.UserID) (*domain.Session, bool) {
	s, ok := t.byUser[userID]
	return s, ok
}

// ByID returns the session with the given ID.
func (t *SessionTable) ByID(id domain.SessionID) (*domain.Session, bool) {
	s, ok := t.byID[id]
	return s, ok
}

// Len returns the number of active sessions.
func (t *SessionTable) Len() int {
	return len(t.byID)
}
