package payments

import (
	"context"
	"time"
)

type slidingCounter interface {
	IncrSliding(ctx context.Context, key string, ttl time.Duration) (int64, error)
	RateLimitKey(parts ...string) string
	Del(ctx context.Context, keys ...string) error
}

// RedisLimiter shares counters across instances. Every attempt refreshes the
// key's TTL, so the window slides from the last attempt.
type RedisLimiter struct {
	store  slidingCounter
	window time.Duration
	limit  int
}

func NewRedisLimiter(store slidingCounter, window time.Duration, limit int) *RedisLimiter {
	if window <= 0 {
		window = DefaultVerifyWindow
	}
	if limit <= 0 {
		limit = DefaultVerifyMaxAttempts
	}
	return &RedisLimiter{store: store, window: window, limit: limit}
}

func (l *RedisLimiter) Check(ctx context.Context, key string) (Decision, error) {
	count, err := l.store.IncrSliding(ctx, l.store.RateLimitKey("verify", key), l.window)
	if err != nil {
		return Decision{}, err
	}
	return Decision{Allowed: count <= int64(l.limit), Attempts: int(count)}, nil
}

func (l *RedisLimiter) Reset(ctx context.Context, key string) error {
	return l.store.Del(ctx, l.store.RateLimitKey("verify", key))
}
