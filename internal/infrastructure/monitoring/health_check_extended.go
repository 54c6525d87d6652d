package monitoring

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

func (h *HealthChecker) AddRedisCheck(client redis.UniversalClient, interval, timeout time.Duration) {
	h.AddCheck("redis", func(ctx context.Context) error {
		return client.Ping(ctx).Err()
	}, interval, timeout)
}

// AddCapacityCheck fails when more than max users are connected.
func (h *HealthChecker) AddCapacityCheck(connected func() int, max int, interval time.Duration) {
	h.AddCheck("capacity", func(ctx context.Context) error {
		if n := connected(); max > 0 && n > max {
			return fmt.Errorf("%d connected users exceeds limit %d", n, max)
		}
		return nil
	}, interval, time.Second)
}

func (h *HealthChecker) IsReady(ctx context.Context) bool {
	return h.CheckAll(ctx).Status == StatusHealthy
}
