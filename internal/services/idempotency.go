package services

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// IdempotencyGuard records request keys that have already been processed.
type IdempotencyGuard interface {
	// Claim returns false when key was claimed before and has not expired.
	Claim(ctx context.Context, key string) (bool, error)
	// Release forgets a claim so the request can be retried.
	Release(ctx context.Context, key string) error
}

// RedisIdempotencyGuard claims keys with SETNX and a TTL.
type RedisIdempotencyGuard struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisClient parses a redis:// URL and checks the server responds.
func NewRedisClient(ctx context.Context, redisURL string) (*redis.Client, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}

	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("connect to redis: %w", err)
	}
	return client, nil
}

func NewRedisIdempotencyGuard(client *redis.Client, ttl time.Duration) *RedisIdempotencyGuard {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &RedisIdempotencyGuard{client: client, ttl: ttl}
}

func (g *RedisIdempotencyGuard) Claim(ctx context.Context, key string) (bool, error) {
	ok, err := g.client.SetNX(ctx, key, time.Now().UTC().Format(time.RFC3339), g.ttl).Result()
	if err != nil {
		return false, fmt.Errorf("claim idempotency key: %w", err)
	}
	return ok, nil
}

func (g *RedisIdempotencyGuard) Release(ctx context.Context, key string) error {
	if err := g.client.Del(ctx, key).Err(); err != nil {
		return fmt.Errorf("release idempotency key: %w", err)
	}
	return nil
}

// GamificationKey scopes a client request id to the user it acts on.
func GamificationKey(userID, requestID string) string {
	return "gamification:" + userID + ":" + requestID
}
