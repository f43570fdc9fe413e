package weather

import (
	"container/list"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// Cache stores fetched grids between predictions.
type Cache interface {
	Get(ctx context.Context, key string) (*Grid, bool)
	Set(ctx context.Context, key string, g *Grid) error
}

const (
	DefaultCacheTTL        = time.Hour
	DefaultCacheMaxEntries = 32
)

type cacheEntry struct {
	key     string
	grid    *Grid
	expires time.Time
}

// MemoryCache is an in-process cache with a TTL per entry and least recently
// used eviction once maxEntries is reached.
type MemoryCache struct {
	mu         sync.Mutex
	ttl        time.Duration
	maxEntries int
	order      *list.List // front is most recently used
	entries    map[string]*list.Element
	now        func() time.Time
}

func NewMemoryCache(ttl time.Duration, maxEntries int) *MemoryCache {
	if ttl <= 0 {
		ttl = DefaultCacheTTL
	}
	if maxEntries <= 0 {
		maxEntries = DefaultCacheMaxEntries
	}
	return &MemoryCache{
		ttl:        ttl,
		maxEntries: maxEntries,
		order:      list.New(),
		entries:    make(map[string]*list.Element),
		now:        time.Now,
	}
}

func (c *MemoryCache) Get(ctx context.Context, key string) (*Grid, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	el, ok := c.entries[key]
	if !ok {
		return nil, false
	}
	e := el.Value.(*cacheEntry)
	if c.now().After(e.expires) {
		c.remove(el)
		return nil, false
	}
	c.order.MoveToFront(el)
	return e.grid, true
}

func (c *MemoryCache) Set(ctx context.Context, key string, g *Grid) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if el, ok := c.entries[key]; ok {
		e := el.Value.(*cacheEntry)
		e.grid = g
		e.expires = c.now().Add(c.ttl)
		c.order.MoveToFront(el)
		return nil
	}

	el := c.order.PushFront(&cacheEntry{key: key, grid: g, expires: c.now().Add(c.ttl)})
	c.entries[key] = el
	for c.order.Len() > c.maxEntries {
		c.remove(c.order.Back())
	}
	return nil
}

// Prune drops expired entries and returns how many were removed.
func (c *MemoryCache) Prune() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	removed := 0
	for el := c.order.Back(); el != nil; {
		prev := el.Prev()
		if now.After(el.Value.(*cacheEntry).expires) {
			c.remove(el)
			removed++
		}
		el = prev
	}
	return removed
}

func (c *MemoryCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.order.Len()
}

func (c *MemoryCache) remove(el *list.Element) {
	c.order.Remove(el)
	delete(c.entries, el.Value.(*cacheEntry).key)
}

// RedisCache shares grids between processes, relying on Redis expiry for
// the TTL.
type RedisCache struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

func NewRedisCache(client *redis.Client, prefix string, ttl time.Duration) *RedisCache {
	if ttl <= 0 {
		ttl = DefaultCacheTTL
	}
	return &RedisCache{client: client, prefix: prefix, ttl: ttl}
}

func (c *RedisCache) Get(ctx context.Context, key string) (*Grid, bool) {
	data, err := c.client.Get(ctx, c.prefix+key).Bytes()
	if err != nil {
		return nil, false
	}
	var g Grid
	if err := json.Unmarshal(data, &g); err != nil {
		return nil, false
	}
	return &g, true
}

func (c *RedisCache) Set(ctx context.Context, key string, g *Grid) error {
	data, err := json.Marshal(g)
	if err != nil {
		return fmt.Errorf("marshal grid: %w", err)
	}
	if err := c.client.Set(ctx, c.prefix+key, data, c.ttl).Err(); err != nil {
		return fmt.Errorf("redis set: %w", err)
	}
	return nil
}

// Ping checks the connection.
func (c *RedisCache) Ping(ctx context.Context) error {
	if err := c.client.Ping(ctx).Err(); err != nil && !errors.Is(err, redis.Nil) {
		return fmt.Errorf("redis ping: %w", err)
	}
	return nil
}
