package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
)

// RedisStore is a Store shared across processes through Redis.
//
// Values live under KeyPrefix+"tenant:<id>:"+key. Each tag is a Redis set
// under KeyPrefix+"tenant:<id>:tag:"+tag listing the keys indexed by it; tag
// sets expire after TagTTL so abandoned indexes do not accumulate.
type RedisStore struct {
	client *redis.Client
	prefix string
	tagTTL time.Duration
}

// NewRedisStore connects to Redis and verifies connectivity.
func NewRedisStore(cfg Config) (*RedisStore, error) {
	opts, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		return nil, fmt.Errorf("invalid redis URL: %w", err)
	}

	if cfg.RedisPassword != "" {
		opts.Password = cfg.RedisPassword
	}
	if cfg.RedisDB > 0 {
		opts.DB = cfg.RedisDB
	}
	if cfg.RedisMaxRetries > 0 {
		opts.MaxRetries = cfg.RedisMaxRetries
	}
	if cfg.RedisPoolSize > 0 {
		opts.PoolSize = cfg.RedisPoolSize
	}

	opts.DialTimeout = 5 * time.Second
	opts.ReadTimeout = 3 * time.Second
	opts.WriteTimeout = 3 * time.Second
	opts.PoolTimeout = 4 * time.Second

	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	return NewRedisStoreFromClient(client, cfg.KeyPrefix, cfg.TagTTL), nil
}

// NewRedisStoreFromClient wraps an existing client.
func NewRedisStoreFromClient(client *redis.Client, prefix string, tagTTL time.Duration) *RedisStore {
	if tagTTL <= 0 {
		tagTTL = 24 * time.Hour
	}
	return &RedisStore{
		client: client,
		prefix: prefix,
		tagTTL: tagTTL,
	}
}

func (s *RedisStore) key(tenantID, key string) (string, error) {
	full, err := scopedKey(tenantID, key)
	if err != nil {
		return "", err
	}
	return s.prefix + full, nil
}

func (s *RedisStore) tagKey(tenantID, tag string) string {
	return s.prefix + scopedTag(tenantID, tag)
}

// Get retrieves a cached value
func (s *RedisStore) Get(ctx context.Context, tenantID, key string) ([]byte, error) {
	full, err := s.key(tenantID, key)
	if err != nil {
		return nil, err
	}

	data, err := s.client.Get(ctx, full).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrCacheMiss
	} else if err != nil {
		return nil, fmt.Errorf("redis get failed: %w", err)
	}
	return data, nil
}

// Set stores a value and indexes it under its tags in one transaction
func (s *RedisStore) Set(ctx context.Context, tenantID, key string, value []byte, ttl time.Duration, tags ...string) error {
	full, err := s.key(tenantID, key)
	if err != nil {
		return err
	}
	if ttl <= 0 {
		return nil
	}

	_, err = s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, full, value, ttl)
		for _, tag := range tags {
			tk := s.tagKey(tenantID, tag)
			pipe.SAdd(ctx, tk, full)
			pipe.Expire(ctx, tk, s.tagTTL)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("redis set failed: %w", err)
	}
	return nil
}

// Delete removes a cached value
func (s *RedisStore) Delete(ctx context.Context, tenantID, key string) error {
	full, err := s.key(tenantID, key)
	if err != nil {
		return err
	}
	return s.client.Del(ctx, full).Err()
}

// InvalidateTags removes every entry of the tenant indexed under the given tags
func (s *RedisStore) InvalidateTags(ctx context.Context, tenantID string, tags ...string) (int, error) {
	if _, err := scopedKey(tenantID, "-"); err != nil {
		return 0, err
	}

	removed := 0
	for _, tag := range tags {
		tk := s.tagKey(tenantID, tag)
		members, err := s.client.SMembers(ctx, tk).Result()
		if err != nil {
			return removed, fmt.Errorf("failed to read tag %s: %w", tag, err)
		}

		for start := 0; start < len(members); start += 100 {
			end := start + 100
			if end > len(members) {
				end = len(members)
			}
			n, err := s.client.Del(ctx, members[start:end]...).Result()
			if err != nil {
				return removed, fmt.Errorf("failed to delete entries for tag %s: %w", tag, err)
			}
			removed += int(n)
		}

		if err := s.client.Del(ctx, tk).Err(); err != nil {
			return removed, fmt.Errorf("failed to delete tag %s: %w", tag, err)
		}
	}
	return removed, nil
}

// Ping checks Redis connectivity
func (s *RedisStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

// Client returns the underlying Redis client for health checks
func (s *RedisStore) Client() *redis.Client {
	return s.client
}

// Close closes the Redis connection
func (s *RedisStore) Close() error {
	return s.client.Close()
}
