package repositories

import (
	"context"

	"pairline/internal/core/ports"
	"pairline/internal/infrastructure/repositories/memory"
	redisrepo "pairline/internal/infrastructure/repositories/redis"
	"pairline/pkg/config"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// RepositoryFactory creates Redis-backed repositories when Redis is enabled
// and reachable, and in-memory ones otherwise.
type RepositoryFactory struct {
	useRedis    bool
	prefix      string
	redisClient *redis.Client
	logger      *zap.SugaredLogger
}

func NewRepositoryFactory(cfg *config.Config, logger *zap.SugaredLogger) *RepositoryFactory {
	factory := &RepositoryFactory{
		useRedis: cfg.Redis.Enabled,
		prefix:   cfg.Redis.KeyPrefix,
		logger:   logger,
	}

	if cfg.Redis.Enabled {
		client, err := redisrepo.NewRedisClient(
			cfg.Redis.Address,
			cfg.Redis.Password,
			cfg.Redis.DB,
			cfg.Redis.PoolSize,
			cfg.Redis.KeyPrefix,
			logger,
		)
		if err != nil {
			logger.Warnw("failed to connect to Redis, falling back to memory repositories",
				"error", err,
			)
			factory.useRedis = false
		} else {
			factory.redisClient = client
			logger.Info("using Redis repositories")
		}
	}

	if !factory.useRedis {
		logger.Info("using memory repositories")
	}
	return factory
}

func (f *RepositoryFactory) CreateReportRepository() ports.ReportRepository {
	if f.useRedis && f.redisClient != nil {
		return redisrepo.NewRedisReportRepository(f.redisClient, f.prefix)
	}
	return memory.NewMemoryReportRepository()
}

func (f *RepositoryFactory) CreateUserRepository() ports.UserRepository {
	if f.useRedis && f.redisClient != nil {
		return redisrepo.NewRedisUserRepository(f.redisClient, f.prefix)
	}
	return memory.NewMemoryUserRepository()
}

// RedisClient is nil when the factory fell back to memory.
func (f *RepositoryFactory) RedisClient() *redis.Client {
	return f.redisClient
}

func (f *RepositoryFactory) UsingRedis() bool {
	return f.useRedis && f.redisClient != nil
}

func (f *RepositoryFactory) Close() error {
	if f.redisClient != nil {
		return redisrepo.CloseRedisClient(f.redisClient)
	}
	return nil
}

func (f *RepositoryFactory) HealthCheck(ctx context.Context) error {
	if f.UsingRedis() {
		return f.redisClient.Ping(ctx).Err()
	}
	return nil
}
