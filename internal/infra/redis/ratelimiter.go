package redis

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/kursadbilgin/slab-engine/internal/domain"
	"github.com/kursadbilgin/slab-engine/internal/ratelimit"
	goredis "github.com/redis/go-redis/v9"
)

const (
	rateLimitKeyPrefix = "slab:ratelimit"
	rateWindow         = time.Second
	minWindowWait      = 5 * time.Millisecond
)

// windowScript counts one item in the window key and returns the budget left after it.
// A negative result means the window is exhausted.
var windowScript = goredis.NewScript(`
local used = redis.call("INCR", KEYS[1])
if used == 1 then
  redis.call("PEXPIRE", KEYS[1], ARGV[2])
end
return tonumber(ARGV[1]) - used
`)

var _ ratelimit.RateLimiter = (*RedisRateLimiter)(nil)

// RedisRateLimiter caps batch items per second for each operation kind across every engine
// instance sharing the Redis. A limit of zero leaves the kind unthrottled.
type RedisRateLimiter struct {
	client *goredis.Client
	now    func() time.Time
	sleep  func(ctx context.Context, d time.Duration) error

	mu           sync.RWMutex
	defaultLimit int64
	kindLimits   map[domain.OperationKind]int64
}

func NewRedisRateLimiter(client *goredis.Client, itemsPerSec int) (*RedisRateLimiter, error) {
	return newRedisRateLimiter(client, itemsPerSec, time.Now, sleepWithContext)
}

func newRedisRateLimiter(
	client *goredis.Client,
	itemsPerSec int,
	nowFn func() time.Time,
	sleepFn func(ctx context.Context, d time.Duration) error,
) (*RedisRateLimiter, error) {
	if client == nil {
		return nil, fmt.Errorf("redis client is required")
	}
	if itemsPerSec < 0 {
		return nil, fmt.Errorf("items per second must not be negative")
	}
	if nowFn == nil {
		nowFn = time.Now
	}
	if sleepFn == nil {
		sleepFn = sleepWithContext
	}

	return &RedisRateLimiter{
		client:       client,
		now:          nowFn,
		sleep:        sleepFn,
		defaultLimit: int64(itemsPerSec),
		kindLimits:   make(map[domain.OperationKind]int64),
	}, nil
}

// SetKindLimit overrides the shared limit for one operation kind.
func (r *RedisRateLimiter) SetKindLimit(kind domain.OperationKind, itemsPerSec int) error {
	if !kind.IsValid() {
		return fmt.Errorf("%w: invalid operation kind %q", domain.ErrValidation, kind)
	}
	if itemsPerSec < 0 {
		return fmt.Errorf("limit per second for %s must not be negative", kind)
	}

	r.mu.Lock()
	r.kindLimits[kind] = int64(itemsPerSec)
	r.mu.Unlock()
	return nil
}

func (r *RedisRateLimiter) Allow(ctx context.Context, key string) (bool, error) {
	allowed, _, err := r.take(ctx, key)
	return allowed, err
}

// Wait blocks until the kind has budget. A rejected item sleeps until the current window closes.
func (r *RedisRateLimiter) Wait(ctx context.Context, key string) error {
	if ctx == nil {
		ctx = context.Background()
	}

	for {
		allowed, retryIn, err := r.take(ctx, key)
		if err != nil {
			return err
		}
		if allowed {
			return nil
		}
		if err := r.sleep(ctx, retryIn); err != nil {
			return err
		}
	}
}

// take spends one item of the kind's budget in the current window.
func (r *RedisRateLimiter) take(ctx context.Context, key string) (bool, time.Duration, error) {
	if r == nil || r.client == nil {
		return false, 0, fmt.Errorf("rate limiter is not initialized")
	}
	kind, err := ratelimit.KindFromKey(key)
	if err != nil {
		return false, 0, fmt.Errorf("invalid rate limit key: %w", err)
	}

	limit := r.limitFor(kind)
	if limit == 0 {
		return true, 0, nil
	}
	if ctx == nil {
		ctx = context.Background()
	}

	now := r.now().UTC()
	windowStart := now.Truncate(rateWindow)
	windowKey := windowKeyFor(kind, windowStart)

	left, err := windowScript.Run(ctx, r.client, []string{windowKey}, limit, rateWindow.Milliseconds()).Int64()
	if err != nil {
		return false, 0, fmt.Errorf("failed to evaluate rate limit for %s: %w", kind, err)
	}
	if left >= 0 {
		return true, 0, nil
	}

	retryIn := windowStart.Add(rateWindow).Sub(now)
	if retryIn < minWindowWait {
		retryIn = minWindowWait
	}
	return false, retryIn, nil
}

func (r *RedisRateLimiter) limitFor(kind domain.OperationKind) int64 {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if limit, ok := r.kindLimits[kind]; ok {
		return limit
	}
	return r.defaultLimit
}

func windowKeyFor(kind domain.OperationKind, windowStart time.Time) string {
	return fmt.Sprintf("%s:%s:%d", rateLimitKeyPrefix, ratelimit.KeyForKind(kind), windowStart.Unix())
}

func sleepWithContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
