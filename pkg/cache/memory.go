package cache

import (
	"context"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2/expirable"
)

type memoryEntry struct {
	value     []byte
	expiresAt time.Time
	tags      []string
}

// MemoryStore is an in-process Store backed by an expirable LRU.
//
// The LRU enforces an upper bound on entry lifetime (maxTTL); shorter per-entry
// TTLs are checked on read. The tag index is kept outside the LRU and pruned
// from the eviction callback. The LRU is never called while mu is held, since
// the callback takes mu.
type MemoryStore struct {
	cache *lru.LRU[string, memoryEntry]
	now   func() time.Time

	mu   sync.Mutex
	tags map[string]map[string]struct{}
}

// NewMemoryStore creates a MemoryStore holding at most maxEntries entries,
// none of which outlives maxTTL.
func NewMemoryStore(maxEntries int, maxTTL time.Duration) *MemoryStore {
	if maxEntries < 10 {
		maxEntries = 10
	}
	if maxTTL <= 0 {
		maxTTL = time.Hour
	}

	s := &MemoryStore{
		now:  time.Now,
		tags: make(map[string]map[string]struct{}),
	}
	s.cache = lru.NewLRU[string, memoryEntry](maxEntries, s.onEvict, maxTTL)
	return s
}

// Get retrieves a cached value
func (s *MemoryStore) Get(ctx context.Context, tenantID, key string) ([]byte, error) {
	full, err := scopedKey(tenantID, key)
	if err != nil {
		return nil, err
	}

	entry, ok := s.cache.Get(full)
	if !ok {
		return nil, ErrCacheMiss
	}
	if !s.now().Before(entry.expiresAt) {
		s.cache.Remove(full)
		return nil, ErrCacheMiss
	}

	out := make([]byte, len(entry.value))
	copy(out, entry.value)
	return out, nil
}

// Set stores a value in cache
func (s *MemoryStore) Set(ctx context.Context, tenantID, key string, value []byte, ttl time.Duration, tags ...string) error {
	full, err := scopedKey(tenantID, key)
	if err != nil {
		return err
	}
	if ttl <= 0 {
		return nil
	}

	scoped := make([]string, len(tags))
	for i, tag := range tags {
		scoped[i] = scopedTag(tenantID, tag)
	}

	stored := make([]byte, len(value))
	copy(stored, value)
	s.cache.Add(full, memoryEntry{
		value:     stored,
		expiresAt: s.now().Add(ttl),
		tags:      scoped,
	})

	// Indexed after Add: an eviction of full landing in between leaves a
	// stale member, which InvalidateTags drops without counting it. Indexing
	// first would let that eviction unindex the new entry instead. The LRU
	// cannot be re-checked here since its callback takes mu.
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, tag := range scoped {
		members, ok := s.tags[tag]
		if !ok {
			members = make(map[string]struct{})
			s.tags[tag] = members
		}
		members[full] = struct{}{}
	}
	return nil
}

// Delete removes a cached value
func (s *MemoryStore) Delete(ctx context.Context, tenantID, key string) error {
	full, err := scopedKey(tenantID, key)
	if err != nil {
		return err
	}
	s.cache.Remove(full)
	return nil
}

// InvalidateTags removes every entry of the tenant indexed under the given tags
func (s *MemoryStore) InvalidateTags(ctx context.Context, tenantID string, tags ...string) (int, error) {
	if _, err := scopedKey(tenantID, "-"); err != nil {
		return 0, err
	}

	s.mu.Lock()
	keys := make(map[string]struct{})
	for _, tag := range tags {
		scoped := scopedTag(tenantID, tag)
		for key := range s.tags[scoped] {
			keys[key] = struct{}{}
		}
		delete(s.tags, scoped)
	}
	s.mu.Unlock()

	removed := 0
	for key := range keys {
		if s.cache.Remove(key) {
			removed++
		}
	}
	return removed, nil
}

// Len returns the number of entries held, including ones past their TTL
// that have not been read since.
func (s *MemoryStore) Len() int {
	return s.cache.Len()
}

// Close releases resources
func (s *MemoryStore) Close() error {
	s.cache.Purge()
	return nil
}

func (s *MemoryStore) onEvict(key string, entry memoryEntry) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, tag := range entry.tags {
		if members, ok := s.tags[tag]; ok {
			delete(members, key)
			if len(members) == 0 {
				delete(s.tags, tag)
			}
		}
	}
}
