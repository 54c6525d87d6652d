package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"pairline/internal/core/domain"
	"pairline/internal/core/ports"
	"pairline/pkg/tracing"

	"github.com/redis/go-redis/v9"
)

// RedisUserRepository keeps the profile as JSON and the report count in a
// separate counter so increments never race with profile writes.
type RedisUserRepository struct {
	client *redis.Client
	keys   keys
}

func NewRedisUserRepository(client *redis.Client, prefix string) ports.UserRepository {
	return &RedisUserRepository{
		client: client,
		keys:   keys{prefix: prefix},
	}
}

func (r *RedisUserRepository) GetByID(ctx context.Context, id domain.UserID) (*domain.UserProfile, error) {
	ctx, span := tracing.TraceStoreOperation(ctx, "user.get", "redis")
	defer span.End()

	var profileCmd *redis.StringCmd
	var countCmd *redis.StringCmd
	_, err := r.client.Pipelined(ctx, func(pipe redis.Pipeliner) error {
		profileCmd = pipe.Get(ctx, r.keys.user(string(id)))
		countCmd = pipe.Get(ctx, r.keys.userReports(string(id)))
		return nil
	})
	if err != nil && err != redis.Nil {
		tracing.RecordError(ctx, err)
		return nil, fmt.Errorf("failed to get user from Redis: %w", err)
	}

	count, countErr := countCmd.Int64()
	if countErr != nil && countErr != redis.Nil {
		return nil, fmt.Errorf("failed to read report count: %w", countErr)
	}

	data, err := profileCmd.Result()
	if err == redis.Nil {
		if countErr == redis.Nil {
			return nil, domain.ErrUserNotFound
		}
		return &domain.UserProfile{ID: id, ReportCount: count}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get user from Redis: %w", err)
	}

	var profile domain.UserProfile
	if err := json.Unmarshal([]byte(data), &profile); err != nil {
		return nil, fmt.Errorf("failed to unmarshal user: %w", err)
	}
	profile.ReportCount = count
	return &profile, nil
}

func (r *RedisUserRepository) Upsert(ctx context.Context, profile *domain.UserProfile) error {
	ctx, span := tracing.TraceStoreOperation(ctx, "user.upsert", "redis")
	defer span.End()

	stored := *profile
	stored.ReportCount = 0
	if stored.CreatedAt.IsZero() {
		stored.CreatedAt = time.Now()
	}
	data, err := json.Marshal(&stored)
	if err != nil {
		return fmt.Errorf("failed to marshal user: %w", err)
	}
	if err := r.client.Set(ctx, r.keys.user(string(profile.ID)), data, 0).Err(); err != nil {
		tracing.RecordError(ctx, err)
		return fmt.Errorf("failed to set user in Redis: %w", err)
	}
	return nil
}

func (r *RedisUserRepository) IncrementReportCount(ctx context.Context, id domain.UserID) (int64, error) {
	n, err := r.client.Incr(ctx, r.keys.userReports(string(id))).Result()
	if err != nil {
		return 0, fmt.Errorf("failed to increment report count: %w", err)
	}
	return n, nil
}
