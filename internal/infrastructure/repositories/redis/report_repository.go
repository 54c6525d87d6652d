package redis

import (
	"context"
	"encoding/json"
	"fmt"

	"pairline/internal/core/domain"
	"pairline/internal/core/ports"
	"pairline/pkg/tracing"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// RedisReportRepository stores each report as JSON and indexes it in a
// per-user sorted set scored by creation time.
type RedisReportRepository struct {
	client *redis.Client
	keys   keys
}

func NewRedisReportRepository(client *redis.Client, prefix string) ports.ReportRepository {
	return &RedisReportRepository{
		client: client,
		keys:   keys{prefix: prefix},
	}
}

func (r *RedisReportRepository) Save(ctx context.Context, report *domain.Report) error {
	ctx, span := tracing.TraceStoreOperation(ctx, "report.save", "redis")
	defer span.End()

	if report.ID == "" {
		report.ID = uuid.NewString()
	}
	data, err := json.Marshal(report)
	if err != nil {
		return fmt.Errorf("failed to marshal report: %w", err)
	}

	_, err = r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, r.keys.report(report.ID), data, 0)
		pipe.ZAdd(ctx, r.keys.reportsFor(string(report.ReportedID)), redis.Z{
			Score:  float64(report.CreatedAt.UnixNano()),
			Member: report.ID,
		})
		return nil
	})
	if err != nil {
		tracing.RecordError(ctx, err)
		return fmt.Errorf("failed to save report in Redis: %w", err)
	}
	return nil
}

func (r *RedisReportRepository) ListByReported(ctx context.Context, userID domain.UserID, limit int) ([]*domain.Report, error) {
	ctx, span := tracing.TraceStoreOperation(ctx, "report.list", "redis")
	defer span.End()

	stop := int64(-1)
	if limit > 0 {
		stop = int64(limit - 1)
	}
	ids, err := r.client.ZRevRange(ctx, r.keys.reportsFor(string(userID)), 0, stop).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list report ids: %w", err)
	}
	if len(ids) == 0 {
		return []*domain.Report{}, nil
	}

	reportKeys := make([]string, len(ids))
	for i, id := range ids {
		reportKeys[i] = r.keys.report(id)
	}
	values, err := r.client.MGet(ctx, reportKeys...).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to load reports: %w", err)
	}

	reports := make([]*domain.Report, 0, len(values))
	for _, v := range values {
		raw, ok := v.(string)
		if !ok {
			continue // expired or deleted
		}
		var report domain.Report
		if err := json.Unmarshal([]byte(raw), &report); err != nil {
			return nil, fmt.Errorf("failed to unmarshal report: %w", err)
		}
		reports = append(reports, &report)
	}
	return reports, nil
}

func (r *RedisReportRepository) CountByReported(ctx context.Context, userID domain.UserID) (int64, error) {
	n, err := r.client.ZCard(ctx, r.keys.reportsFor(string(userID))).Result()
	if err != nil {
		return 0, fmt.Errorf("failed to count reports: %w", err)
	}
	return n, nil
}
