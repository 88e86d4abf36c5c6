package cache

import (
	"context"
	"hash/fnv"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/kjstillabower/aegeanswim-service/internal/models"
)

// Cache defines the interface for forecast reading caching implementations.
// Get returns cached data if present and not expired, Set stores data with TTL.
type Cache interface {
	Get(ctx context.Context, key string) (models.WeatherReading, bool, error)
	Set(ctx context.Context, key string, value models.WeatherReading, ttl time.Duration) error
}

const defaultShards = 32

// InMemoryCache implements Cache with a sharded map. Each key hashes to one
// shard guarded by its own lock, so lookups for different keys rarely contend.
// Expired entries are logically absent and removed on access.
type InMemoryCache struct {
	shards []*shard
	clock  clockwork.Clock
}

type shard struct {
	mu   sync.RWMutex
	data map[string]cacheEntry
}

// cacheEntry is replaced whole on Set; readers never see a partial update.
type cacheEntry struct {
	value     models.WeatherReading
	createdAt time.Time
	expiresAt time.Time
}

// NewInMemoryCache creates an in-memory cache on the real clock.
func NewInMemoryCache() *InMemoryCache {
	return NewInMemoryCacheWithClock(clockwork.NewRealClock())
}

// NewInMemoryCacheWithClock creates an in-memory cache that reads time from clock.
func NewInMemoryCacheWithClock(clock clockwork.Clock) *InMemoryCache {
	shards := make([]*shard, defaultShards)
	for i := range shards {
		shards[i] = &shard{data: make(map[string]cacheEntry)}
	}
	return &InMemoryCache{shards: shards, clock: clock}
}

func (c *InMemoryCache) shardFor(key string) *shard {
	h := fnv.New32a()
	_, _ = h.Write([]byte(key))
	return c.shards[h.Sum32()%uint32(len(c.shards))]
}

// Get retrieves the reading for key if present and not expired.
// Returns (data, true, nil) on hit, (zero, false, nil) on miss or expiration.
func (c *InMemoryCache) Get(ctx context.Context, key string) (models.WeatherReading, bool, error) {
	s := c.shardFor(key)
	s.mu.RLock()
	entry, ok := s.data[key]
	s.mu.RUnlock()
	if !ok {
		return models.WeatherReading{}, false, nil
	}

	if !c.clock.Now().Before(entry.expiresAt) {
		s.mu.Lock()
		// A concurrent Set may have replaced the entry since the read.
		if cur, ok := s.data[key]; ok && cur.createdAt.Equal(entry.createdAt) {
			delete(s.data, key)
		}
		s.mu.Unlock()
		return models.WeatherReading{}, false, nil
	}

	return entry.value, true, nil
}

// Set stores the reading under key, valid for ttl from now.
func (c *InMemoryCache) Set(ctx context.Context, key string, value models.WeatherReading, ttl time.Duration) error {
	now := c.clock.Now()
	s := c.shardFor(key)
	s.mu.Lock()
	s.data[key] = cacheEntry{
		value:     value,
		createdAt: now,
		expiresAt: now.Add(ttl),
	}
	s.mu.Unlock()
	return nil
}

// Len reports the number of stored entries, expired ones included.
func (c *InMemoryCache) Len() int {
	n := 0
	for _, s := range c.shards {
		s.mu.RLock()
		n += len(s.data)
		s.mu.RUnlock()
	}
	return n
}
