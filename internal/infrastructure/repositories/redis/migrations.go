package redis

import (
	"context"
	"fmt"
	"strings"
	"time"

	"pairline/pkg/distributed"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

type Migration struct {
	Version     int
	Description string
	Up          func(ctx context.Context, client *redis.Client, k keys) error
}

const (
	migrationLockTTL  = time.Minute
	migrationLockWait = 30 * time.Second
)

// Migrate applies every migration newer than the stored schema version.
// Instances sharing a Redis serialise on a lock, so each migration runs once.
func Migrate(ctx context.Context, client *redis.Client, prefix string, logger *zap.SugaredLogger) error {
	k := keys{prefix: prefix}

	lock := distributed.NewLock(client, k.migrationLock(), migrationLockTTL)
	if err := lock.Acquire(ctx, migrationLockWait); err != nil {
		return fmt.Errorf("failed to take migration lock: %w", err)
	}
	defer func() {
		if err := lock.Release(context.Background()); err != nil && logger != nil {
			logger.Warnw("failed to release migration lock", "error", err)
		}
	}()

	currentVersion, err := getSchemaVersion(ctx, client, k)
	if err != nil {
		return fmt.Errorf("failed to get schema version: %w", err)
	}

	migrations := getMigrations()
	target := migrations[len(migrations)-1].Version
	if currentVersion >= target {
		if logger != nil {
			logger.Debugw("schema is up to date", "version", currentVersion)
		}
		return nil
	}

	for _, migration := range migrations {
		if migration.Version <= currentVersion {
			continue
		}
		if logger != nil {
			logger.Infow("running migration",
				"version", migration.Version,
				"description", migration.Description,
			)
		}
		if err := migration.Up(ctx, client, k); err != nil {
			return fmt.Errorf("migration %d failed: %w", migration.Version, err)
		}
		if err := client.Set(ctx, k.schemaVersion(), migration.Version, 0).Err(); err != nil {
			return fmt.Errorf("failed to update schema version: %w", err)
		}
	}
	return nil
}

func getSchemaVersion(ctx context.Context, client *redis.Client, k keys) (int, error) {
	val, err := client.Get(ctx, k.schemaVersion()).Int()
	if err == redis.Nil {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	return val, nil
}

func getMigrations() []Migration {
	return []Migration{
		{
			Version:     1,
			Description: "initial schema",
			Up: func(ctx context.Context, client *redis.Client, k keys) error {
				return nil
			},
		},
		{
			Version:     2,
			Description: "backfill report counters from report indexes",
			Up:          backfillReportCounters,
		},
	}
}

// backfillReportCounters sets user:<id>:report_count for users whose
// reports were written before the counter existed.
func backfillReportCounters(ctx context.Context, client *redis.Client, k keys) error {
	pattern := k.reportsFor("*")
	iter := client.Scan(ctx, 0, pattern, 100).Iterator()
	for iter.Next(ctx) {
		indexKey := iter.Val()
		userID := strings.TrimPrefix(indexKey, k.reportsFor(""))
		count, err := client.ZCard(ctx, indexKey).Result()
		if err != nil {
			return err
		}
		if err := client.SetNX(ctx, k.userReports(userID), count, 0).Err(); err != nil {
			return err
		}
	}
	return iter.Err()
}
