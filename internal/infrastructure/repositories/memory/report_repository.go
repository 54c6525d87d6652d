package memory

import (
	"context"
	"sort"
	"sync"

	"pairline/internal/core/domain"
	"pairline/internal/core/ports"
)

type MemoryReportRepository struct {
	reports map[domain.UserID][]*domain.Report
	mu      sync.RWMutex
}

func NewMemoryReportRepository() ports.ReportRepository {
	return &MemoryReportRepository{
		reports: make(map[domain.UserID][]*domain.Report),
	}
}

func (r *MemoryReportRepository) Save(ctx context.Context, report *domain.Report) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	stored := *report
	r.reports[report.ReportedID] = append(r.reports[report.ReportedID], &stored)
	return nil
}

// ListByReported returns the newest reports first. limit <= 0 means all.
func (r *MemoryReportRepository) ListByReported(ctx context.Context, userID domain.UserID, limit int) ([]*domain.Report, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	list := r.reports[userID]
	out := make([]*domain.Report, 0, len(list))
	for _, report := range list {
		clone := *report
		out = append(out, &clone)
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (r *MemoryReportRepository) CountByReported(ctx context.Context, userID domain.UserID) (int64, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return int64(len(r.reports[userID])), nil
}
