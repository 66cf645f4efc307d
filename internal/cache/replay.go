package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const DefaultReplayTTL = 24 * time.Hour

// NewRedisClient parses url, connects and pings.
func NewRedisClient(ctx context.Context, url string) (*redis.Client, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("invalid redis url: %w", err)
	}
	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return client, nil
}

// RedisReplayGuard remembers webhook keys for ttl using SET NX.
type RedisReplayGuard struct {
	client redis.Cmdable
	ttl    time.Duration
	prefix string
}

func NewRedisReplayGuard(client redis.Cmdable, ttl time.Duration) *RedisReplayGuard {
	if ttl <= 0 {
		ttl = DefaultReplayTTL
	}
	return &RedisReplayGuard{client: client, ttl: ttl, prefix: "webhook:"}
}

// FirstSeen records key and reports whether it was new.
func (g *RedisReplayGuard) FirstSeen(ctx context.Context, key string) (bool, error) {
	ok, err := g.client.SetNX(ctx, g.prefix+key, time.Now().Unix(), g.ttl).Result()
	if err != nil {
		return false, fmt.Errorf("replay guard set: %w", err)
	}
	return ok, nil
}

// Release forgets key so a redelivery is processed again.
func (g *RedisReplayGuard) Release(ctx context.Context, key string) error {
	if err := g.client.Del(ctx, g.prefix+key).Err(); err != nil {
		return fmt.Errorf("replay guard release: %w", err)
	}
	return nil
}

// NoopReplayGuard treats every key as new. Used when REDIS_URL is unset.
type NoopReplayGuard struct{}

func (NoopReplayGuard) FirstSeen(context.Context, string) (bool, error) { return true, nil }

func (NoopReplayGuard) Release(context.Context, string) error { return nil }
