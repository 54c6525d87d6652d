package memory

import (
	"context"
	"sync"
	"time"

	"pairline/internal/core/domain"
	"pairline/internal/core/ports"
)

type MemoryUserRepository struct {
	users map[domain.UserID]*domain.UserProfile
	mu    sync.RWMutex
}

func NewMemoryUserRepository() ports.UserRepository {
	return &MemoryUserRepository{
		users: make(map[domain.UserID]*domain.UserProfile),
	}
}

func (r *MemoryUserRepository) GetByID(ctx context.Context, id domain.UserID) (*domain.UserProfile, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	profile, exists := r.users[id]
	if !exists {
		return nil, domain.ErrUserNotFound
	}
	clone := *profile
	return &clone, nil
}

// Upsert stores the profile. The stored report count is never lowered.
func (r *MemoryUserRepository) Upsert(ctx context.Context, profile *domain.UserProfile) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	stored := *profile
	if existing, ok := r.users[profile.ID]; ok {
		if existing.ReportCount > stored.ReportCount {
			stored.ReportCount = existing.ReportCount
		}
		if stored.CreatedAt.IsZero() {
			stored.CreatedAt = existing.CreatedAt
		}
	}
	if stored.CreatedAt.IsZero() {
		stored.CreatedAt = time.Now()
	}
	r.users[profile.ID] = &stored
	return nil
}

// IncrementReportCount creates a bare profile for unknown users so that
// reports against guests are still counted.
func (r *MemoryUserRepository) IncrementReportCount(ctx context.Context, id domain.UserID) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	profile, exists := r.users[id]
	if !exists {
		profile = &domain.UserProfile{ID: id, CreatedAt: time.Now()}
		r.users[id] = profile
	}
	profile.ReportCount++
	return profile.ReportCount, nil
}
