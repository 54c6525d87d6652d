package services

import (
	"time"

	"pairline/internal/core/domain"
)

// MatchQueue holds waiting users in arrival order. Not safe for concurrent
// use.
type MatchQueue struct {
	order   []domain.UserID
	entries map[domain.UserID]*domain.WaitingEntry
}

// NewMatchQueue returns an empty queue.
func NewMatchQueue() *MatchQueue {
	return &MatchQueue{entries: make(map[domain.UserID]*domain.WaitingEntry)}
}

// Add inserts or replaces the entry for entry.UserID. A replaced entry moves
// to the back of the queue.
func (q *MatchQueue) Add(entry *domain.WaitingEntry) {
	if _, ok := q.entries[entry.UserID]; ok {
		q.Remove(entry.UserID)
	}
	q.entries[entry.UserID] = entry
	q.order = append(q.order, entry.UserID)
}

// Remove takes userID out of the queue and returns its entry, if any.
func (q *MatchQueue) Remove(userID domain.UserID) (*domain.WaitingEntry, bool) {
	entry, ok := q.entries[userID]
	if !ok {
		return nil, false
	}
	delete(q.entries, userID)
	for i, id := range q.order {
		if id == userID {
			q.order = append(q.order[:i], q.order[i+1:]...)
			break
		}
	}
	return entry, true
}

// Get returns the waiting entry for userID.
func (q *MatchQueue) Get(userID domain.UserID) (*domain.WaitingEntry, bool) {
	entry, ok := q.entries[userID]
	return entry, ok
}

// Contains reports whether userID is waiting.
func (q *MatchQueue) Contains(userID domain.UserID) bool {
	_, ok := q.entries[userID]
	return ok
}

// Entries returns the waiting entries oldest first.
func (q *MatchQueue) Entries() []*domain.WaitingEntry {
	out := make([]*domain.WaitingEntry, 0, len(q.order))
	for _, id := range q.order {
		out = append(out, q.entries[id])
	}
	return out
}

// Len returns the number of waiting users.
func (q *MatchQueue) Len() int {
	return len(q.order)
}

// Sweep evicts entries that have waited longer than maxAge and returns them.
func (q *MatchQueue) Sweep(now time.Time, maxAge time.Duration) []*domain.WaitingEntry {
	var evicted []*domain.WaitingEntry
	kept := q.order[:0]
	for _, id := range q.order {
		entry := q.entries[id]
		if now.Sub(entry.JoinedAt) > maxAge {
			delete(q.entries, id)
			evicted = append(evicted, entry)
			continue
		}
		kept = append(kept, id)
	}
	q.order = kept
	return evicted
}

// Stats summarizes the queue. ActiveSessions is left for the caller.
func (q *MatchQueue) Stats(now time.Time) domain.QueueStats {
	stats := domain.QueueStats{Waiting: len(q.order)}
	for _, id := range q.order {
		entry := q.entries[id]
		switch entry.Attributes.Gender {
		case domain.GenderMale:
			stats.Male++
		case domain.GenderFemale:
			stats.Female++
		default:
			stats.Unspecified++
		}
		if wait := now.Sub(entry.JoinedAt).Seconds(); wait > stats.OldestWaitSecs {
			stats.OldestWaitSecs = wait
		}
	}
	return stats
}
