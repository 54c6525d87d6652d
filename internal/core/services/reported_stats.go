package services

import (
	"context"
	"sync"

	"pairline/internal/core/domain"
)

// ReportedStats is a NetworkStatsSource fed by client-side network_stats
// reports. Each report is handed out once; intervals without a new report
// yield no sample.
type ReportedStats struct {
	mu     sync.Mutex
	latest domain.NetworkSample
	fresh  bool
}

func NewReportedStats() *ReportedStats {
	return &ReportedStats{}
}

func (r *ReportedStats) Put(sample domain.NetworkSample) {
	r.mu.Lock()
	r.latest = sample
	r.fresh = true
	r.mu.Unlock()
}

func (r *ReportedStats) Sample(ctx context.Context) (domain.NetworkSample, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.fresh {
		return domain.NetworkSample{}, false
	}
	r.fresh = false
	return r.latest, true
}
