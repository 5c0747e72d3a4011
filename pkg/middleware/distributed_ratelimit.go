package middleware

import (
	"context"
	"fmt"

	"github.com/go-redis/redis/v8"
)

var (
	_ Limiter = (*RateLimiter)(nil)
	_ Limiter = (*DistributedRateLimiter)(nil)
)

// DistributedRateLimiter implements a fixed window limit in Redis so that
// every server instance shares one budget per key
type DistributedRateLimiter struct {
	redis  *redis.Client
	config RateLimitConfig
	prefix string
}

// NewDistributedRateLimiter creates a new Redis-backed rate limiter
func NewDistributedRateLimiter(redisClient *redis.Client, config RateLimitConfig, prefix string) *DistributedRateLimiter {
	if prefix == "" {
		prefix = "ratelimit"
	}

	return &DistributedRateLimiter{
		redis:  redisClient,
		config: config.withDefaults(),
		prefix: prefix,
	}
}

func (rl *DistributedRateLimiter) key(key string) string {
	return fmt.Sprintf("%s:%s", rl.prefix, key)
}

// Allow counts the request in the current window
func (rl *DistributedRateLimiter) Allow(ctx context.Context, key string) (Decision, error) {
	redisKey := rl.key(key)
	limit := rl.config.RequestsPerWindow + rl.config.BurstSize
	failOpen := Decision{Allowed: true, Limit: rl.config.RequestsPerWindow}

	count, err := rl.redis.Incr(ctx, redisKey).Result()
	if err != nil {
		return failOpen, fmt.Errorf("redis error: %w", err)
	}

	ttl, err := rl.redis.PTTL(ctx, redisKey).Result()
	if err != nil {
		return failOpen, fmt.Errorf("redis error: %w", err)
	}
	// A key without expiry opened a new window
	if ttl < 0 {
		if err := rl.redis.PExpire(ctx, redisKey, rl.config.WindowDuration).Err(); err != nil {
			return failOpen, fmt.Errorf("redis error: %w", err)
		}
		ttl = rl.config.WindowDuration
	}

	remaining := limit - int(count)
	if remaining < 0 {
		remaining = 0
	}

	d := Decision{
		Allowed:   int(count) <= limit,
		Limit:     rl.config.RequestsPerWindow,
		Remaining: remaining,
	}
	if !d.Allowed {
		d.ResetIn = ttl
	}
	return d, nil
}

// Reset clears the rate limit for a key
func (rl *DistributedRateLimiter) Reset(ctx context.Context, key string) error {
	return rl.redis.Del(ctx, rl.key(key)).Err()
}
