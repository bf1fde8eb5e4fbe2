package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// RateLimitStore abstracts the shared request counters so limiting stays
// correct when the service runs as multiple instances. In-process counters
// would silently stop limiting under horizontal scaling.
type RateLimitStore interface {
	// Increment bumps the counter for key, setting the expiry window on the
	// first hit, and returns the post-increment count.
	Increment(ctx context.Context, key string, window time.Duration) (int64, error)
}

// counterClient is the slice of redis commands Increment needs. *redis.Client
// satisfies it; tests substitute a scripted client.
type counterClient interface {
	Incr(ctx context.Context, key string) *redis.IntCmd
	Expire(ctx context.Context, key string, expiration time.Duration) *redis.BoolCmd
}

// RedisRateLimitStore backs RateLimitStore with a shared Redis instance.
type RedisRateLimitStore struct {
	client counterClient
	logger *zap.Logger
}

// NewRedisRateLimitStore constructs a Redis-backed rate limit store.
func NewRedisRateLimitStore(client *redis.Client, logger *zap.Logger) *RedisRateLimitStore {
	if logger == nil {
		logger = zap.NewNop()
	}
	store := &RedisRateLimitStore{logger: logger}
	if client != nil {
		store.client = client
	}
	return store
}

// Increment bumps the window counter for key. The expiry is armed only when
// the counter is created; later hits leave the TTL alone so the window rolls
// over on schedule regardless of traffic. With no client configured it
// reports zero, which callers treat as "not limited".
func (s *RedisRateLimitStore) Increment(ctx context.Context, key string, window time.Duration) (int64, error) {
	if s.client == nil {
		return 0, nil
	}

	count, err := s.client.Incr(ctx, key).Result()
	if err != nil {
		return 0, fmt.Errorf("rate limit incr %s: %w", key, err)
	}
	if count == 1 {
		if err := s.client.Expire(ctx, key, window).Err(); err != nil {
			return 0, fmt.Errorf("rate limit expire %s: %w", key, err)
		}
	}
	return count, nil
}
