package repository

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

type scriptedCounterClient struct {
	count      int64
	incrErr    error
	expireErr  error
	expireKeys []string
	expireTTLs []time.Duration
}

func (c *scriptedCounterClient) Incr(ctx context.Context, key string) *redis.IntCmd {
	c.count++
	return redis.NewIntResult(c.count, c.incrErr)
}

func (c *scriptedCounterClient) Expire(ctx context.Context, key string, expiration time.Duration) *redis.BoolCmd {
	c.expireKeys = append(c.expireKeys, key)
	c.expireTTLs = append(c.expireTTLs, expiration)
	return redis.NewBoolResult(c.expireErr == nil, c.expireErr)
}

func TestRedisRateLimitStoreArmsExpiryOnFirstHitOnly(t *testing.T) {
	client := &scriptedCounterClient{}
	store := &RedisRateLimitStore{client: client}

	for want := int64(1); want <= 5; want++ {
		count, err := store.Increment(context.Background(), "rl:webhooks:1.2.3.4", time.Minute)
		require.NoError(t, err)
		require.Equal(t, want, count)
	}

	// Steady traffic must not keep the window alive: one EXPIRE, on creation.
	require.Equal(t, []string{"rl:webhooks:1.2.3.4"}, client.expireKeys)
	require.Equal(t, []time.Duration{time.Minute}, client.expireTTLs)
}

func TestRedisRateLimitStoreIncrError(t *testing.T) {
	client := &scriptedCounterClient{incrErr: errors.New("connection refused")}
	store := &RedisRateLimitStore{client: client}

	_, err := store.Increment(context.Background(), "rl:webhooks:1.2.3.4", time.Minute)
	require.Error(t, err)
	require.Empty(t, client.expireKeys)
}

func TestRedisRateLimitStoreExpireError(t *testing.T) {
	client := &scriptedCounterClient{expireErr: errors.New("connection refused")}
	store := &RedisRateLimitStore{client: client}

	_, err := store.Increment(context.Background(), "rl:webhooks:1.2.3.4", time.Minute)
	require.Error(t, err)
}

func TestRedisRateLimitStoreNilClient(t *testing.T) {
	store := NewRedisRateLimitStore(nil, nil)

	count, err := store.Increment(context.Background(), "rl:webhooks:1.2.3.4", time.Minute)
	require.NoError(t, err)
	require.Zero(t, count)
}
