package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// NewRedisClient connects, pings and migrates. The returned client is ready
// for use by the repositories and the event bus.
func NewRedisClient(address, password string, db, poolSize int, prefix string, logger *zap.SugaredLogger) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         address,
		Password:     password,
		DB:           db,
		PoolSize:     poolSize,
		MinIdleConns: 2,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	migrateCtx, migrateCancel := context.WithTimeout(context.Background(), migrationLockWait+30*time.Second)
	defer migrateCancel()
	if err := Migrate(migrateCtx, client, prefix, logger); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	if logger != nil {
		logger.Infow("connected to Redis",
			"address", address,
			"db", db,
			"pool_size", poolSize,
		)
	}
	return client, nil
}

func CloseRedisClient(client *redis.Client) error {
	if client != nil {
		return client.Close()
	}
	return nil
}

// keys builds every key under one configurable prefix.
type keys struct {
	prefix string
}

func (k keys) schemaVersion() string { return k.prefix + "schema:version" }

func (k keys) migrationLock() string { return k.prefix + "lock:migrations" }

func (k keys) user(id string) string { return k.prefix + "user:" + id }

func (k keys) userReports(id string) string { return k.prefix + "user:" + id + ":report_count" }

func (k keys) report(id string) string { return k.prefix + "report:" + id }

func (k keys) reportsFor(id string) string { return k.prefix + "reports:by:" + id }
