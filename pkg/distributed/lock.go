package distributed

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

var (
	ErrNotAcquired = errors.New("lock is held by another owner")
	ErrNotHeld     = errors.New("lock is not held by this owner")
)

// releaseScript deletes the key only if it still carries our token.
var releaseScript = redis.NewScript(`
if redis.call("get", KEYS[1]) == ARGV[1] then
	return redis.call("del", KEYS[1])
end
return 0
`)

const pollInterval = 100 * time.Millisecond

// Lock is a single-owner Redis lock (SET NX PX with a random token). The TTL
// bounds how long a crashed owner can block others.
type Lock struct {
	client redis.Cmdable
	key    string
	token  string
	ttl    time.Duration
}

func NewLock(client redis.Cmdable, key string, ttl time.Duration) *Lock {
	return &Lock{
		client: client,
		key:    key,
		token:  uuid.NewString(),
		ttl:    ttl,
	}
}

// TryAcquire makes one attempt. It returns ErrNotAcquired when someone else
// holds the lock.
func (l *Lock) TryAcquire(ctx context.Context) error {
	ok, err := l.client.SetNX(ctx, l.key, l.token, l.ttl).Result()
	if err != nil {
		return fmt.Errorf("acquire %s: %w", l.key, err)
	}
	if !ok {
		return ErrNotAcquired
	}
	return nil
}

// Acquire polls until the lock is taken, wait elapses or ctx ends.
func (l *Lock) Acquire(ctx context.Context, wait time.Duration) error {
	deadline := time.Now().Add(wait)
	for {
		err := l.TryAcquire(ctx)
		if !errors.Is(err, ErrNotAcquired) {
			return err
		}
		if time.Now().After(deadline) {
			return fmt.Errorf("acquire %s: timed out after %s: %w", l.key, wait, ErrNotAcquired)
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(pollInterval):
		}
	}
}

func (l *Lock) Release(ctx context.Context) error {
	n, err := releaseScript.Run(ctx, l.client, []string{l.key}, l.token).Int()
	if err != nil {
		return fmt.Errorf("release %s: %w", l.key, err)
	}
	if n == 0 {
		return ErrNotHeld
	}
	return nil
}
