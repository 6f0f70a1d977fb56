package scrape

import (
	"context"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
)

// Cache stores fetched page markup by URL.
type Cache interface {
	Get(ctx context.Context, url string) (string, bool)
	Set(ctx context.Context, url, html string)
	Clear(ctx context.Context) error
}

// MemoryCache is a process-local Cache with no expiry. It is safe for
// concurrent runs.
type MemoryCache struct {
	mu    sync.RWMutex
	pages map[string]string
}

// NewMemoryCache creates an empty MemoryCache.
func NewMemoryCache() *MemoryCache {
	return &MemoryCache{pages: make(map[string]string)}
}

func (m *MemoryCache) Get(_ context.Context, url string) (string, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	html, ok := m.pages[url]
	return html, ok
}

func (m *MemoryCache) Set(_ context.Context, url, html string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.pages[url] = html
}

func (m *MemoryCache) Clear(_ context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.pages = make(map[string]string)
	return nil
}

// Len returns the number of cached pages.
func (m *MemoryCache) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.pages)
}

// RedisCache shares fetched pages between processes with a TTL.
type RedisCache struct {
	client redis.UniversalClient
	prefix string
	ttl    time.Duration
}

// NewRedisCache creates a RedisCache. Keys are namespaced by prefix; ttl 0
// keeps entries until Clear.
func NewRedisCache(client redis.UniversalClient, prefix string, ttl time.Duration) *RedisCache {
	if prefix == "" {
		prefix = "cardscope:page:"
	}
	return &RedisCache{client: client, prefix: prefix, ttl: ttl}
}

// Get returns the cached page. Redis errors are logged and reported as a miss.
func (r *RedisCache) Get(ctx context.Context, url string) (string, bool) {
	html, err := r.client.Get(ctx, r.prefix+url).Result()
	if err != nil {
		if err != redis.Nil {
			zap.L().Warn("scrape: redis cache get failed", zap.String("url", url), zap.Error(err))
		}
		return "", false
	}
	return html, true
}

// Set stores a page. Failures only cost a refetch, so they are logged.
func (r *RedisCache) Set(ctx context.Context, url, html string) {
	if err := r.client.Set(ctx, r.prefix+url, html, r.ttl).Err(); err != nil {
		zap.L().Warn("scrape: redis cache set failed", zap.String("url", url), zap.Error(err))
	}
}

// Clear removes every key under the cache prefix.
func (r *RedisCache) Clear(ctx context.Context) error {
	iter := r.client.Scan(ctx, 0, r.prefix+"*", 500).Iterator()
	var keys []string
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		return eris.Wrap(err, "scrape: redis scan")
	}
	if len(keys) == 0 {
		return nil
	}
	return eris.Wrap(r.client.Del(ctx, keys...).Err(), "scrape: redis delete")
}
