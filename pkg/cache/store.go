// Package cache provides tenant-aware TTL caches for computed analytics results.
//
// Entries are opaque byte slices stored under a (tenant, key) pair with a TTL
// and an optional set of tags. Keys and tags are namespaced by tenant inside
// the store, so one tenant can never read or invalidate another tenant's
// entries. Tags index entries for bulk invalidation (for example every report
// that read a given table) without changing the key scheme. All stores are
// safe for concurrent use; concurrent writers of the same key are
// last-write-wins.
package cache

import (
	"context"
	"fmt"
	"strings"
	"time"
)

// Store is a TTL key/value cache with tag-based invalidation.
type Store interface {
	// Get returns the value stored under the tenant's key, or ErrCacheMiss.
	Get(ctx context.Context, tenantID, key string) ([]byte, error)

	// Set stores value under the tenant's key for ttl and indexes it under
	// each tag. A non-positive ttl stores nothing.
	Set(ctx context.Context, tenantID, key string, value []byte, ttl time.Duration, tags ...string) error

	// Delete removes a single key.
	Delete(ctx context.Context, tenantID, key string) error

	// InvalidateTags removes every entry of the tenant indexed under any of
	// the tags and returns the number of entries removed.
	InvalidateTags(ctx context.Context, tenantID string, tags ...string) (int, error)

	// Close releases resources held by the store.
	Close() error
}

// Backend names accepted by NewStore.
const (
	BackendRedis  = "redis"
	BackendMemory = "memory"
	BackendNone   = "none"
)

// Config selects and configures a Store implementation.
type Config struct {
	Backend string

	// Redis
	RedisURL        string
	RedisPassword   string
	RedisDB         int
	RedisPoolSize   int
	RedisMaxRetries int
	KeyPrefix       string
	TagTTL          time.Duration

	// Memory
	MaxEntries int
	MaxTTL     time.Duration
}

// DefaultConfig returns an in-memory cache configuration.
func DefaultConfig() Config {
	return Config{
		Backend:    BackendMemory,
		KeyPrefix:  "analytics:",
		TagTTL:     24 * time.Hour,
		MaxEntries: 10000,
		MaxTTL:     time.Hour,
	}
}

// NewStore constructs the Store named by cfg.Backend.
func NewStore(cfg Config) (Store, error) {
	switch cfg.Backend {
	case BackendRedis:
		return NewRedisStore(cfg)
	case BackendMemory, "":
		return NewMemoryStore(cfg.MaxEntries, cfg.MaxTTL), nil
	case BackendNone:
		return NoopStore{}, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownBackend, cfg.Backend)
	}
}

// NoopStore never stores anything; every Get is a miss.
type NoopStore struct{}

func (NoopStore) Get(ctx context.Context, tenantID, key string) ([]byte, error) {
	return nil, ErrCacheMiss
}

func (NoopStore) Set(ctx context.Context, tenantID, key string, value []byte, ttl time.Duration, tags ...string) error {
	return nil
}

func (NoopStore) Delete(ctx context.Context, tenantID, key string) error { return nil }

func (NoopStore) InvalidateTags(ctx context.Context, tenantID string, tags ...string) (int, error) {
	return 0, nil
}

func (NoopStore) Close() error { return nil }

// scopedKey namespaces key under tenantID.
func scopedKey(tenantID, key string) (string, error) {
	if tenantID == "" || key == "" || strings.Contains(tenantID, ":") {
		return "", ErrInvalidKey
	}
	return "tenant:" + tenantID + ":" + key, nil
}

// scopedTag namespaces tag under tenantID.
func scopedTag(tenantID, tag string) string {
	return "tenant:" + tenantID + ":tag:" + tag
}

