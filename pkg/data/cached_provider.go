package data

import (
	"sync"
	"time"

	"github.com/rs/zerolog"

	"adaptive-trader/pkg/types"
)

// TTLCache is an in-memory Cache whose entries expire after a fixed
// time-to-live. A zero TTL never expires.
type TTLCache struct {
	ttl     time.Duration
	now     func() time.Time
	mutex   sync.RWMutex
	entries map[string]cacheEntry
}

type cacheEntry struct {
	data     []types.OHLCV
	loadedAt time.Time
}

func NewTTLCache(ttl time.Duration) *TTLCache {
	return &TTLCache{
		ttl:     ttl,
		now:     time.Now,
		entries: make(map[string]cacheEntry),
	}
}

// Get returns a copy of the cached series and its load time. Expired entries
// are dropped on access.
func (c *TTLCache) Get(key string) ([]types.OHLCV, time.Time, bool) {
	c.mutex.RLock()
	entry, ok := c.entries[key]
	c.mutex.RUnlock()
	if !ok {
		return nil, time.Time{}, false
	}

	if c.ttl > 0 && c.now().Sub(entry.loadedAt) > c.ttl {
		c.mutex.Lock()
		delete(c.entries, key)
		c.mutex.Unlock()
		return nil, time.Time{}, false
	}

	// Copies prevent callers from mutating cached bars.
	out := make([]types.OHLCV, len(entry.data))
	copy(out, entry.data)
	return out, entry.loadedAt, true
}

func (c *TTLCache) Set(key string, data []types.OHLCV) {
	stored := make([]types.OHLCV, len(data))
	copy(stored, data)

	c.mutex.Lock()
	defer c.mutex.Unlock()
	c.entries[key] = cacheEntry{data: stored, loadedAt: c.now()}
}

func (c *TTLCache) Clear() {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	c.entries = make(map[string]cacheEntry)
}

func (c *TTLCache) Size() int {
	c.mutex.RLock()
	defer c.mutex.RUnlock()
	return len(c.entries)
}

// CachedProvider wraps a Provider with an injectable cache.
type CachedProvider struct {
	provider Provider
	cache    Cache
	log      zerolog.Logger
}

func NewCachedProvider(provider Provider, cache Cache, log zerolog.Logger) *CachedProvider {
	return &CachedProvider{
		provider: provider,
		cache:    cache,
		log:      log.With().Str("component", "cached-provider").Logger(),
	}
}

func (p *CachedProvider) GetName() string {
	return "Cached " + p.provider.GetName()
}

// LoadData serves from cache when fresh, otherwise reloads and re-caches.
func (p *CachedProvider) LoadData(source string) ([]types.OHLCV, error) {
	if cached, loadedAt, ok := p.cache.Get(source); ok {
		p.log.Debug().Str("source", source).Time("loaded_at", loadedAt).Msg("cache hit")
		return cached, nil
	}

	data, err := p.provider.LoadData(source)
	if err != nil {
		return nil, err
	}
	p.cache.Set(source, data)
	p.log.Info().Str("source", source).Int("records", len(data)).Msg("loaded and cached")
	return data, nil
}

func (p *CachedProvider) ValidateData(data []types.OHLCV) error {
	return p.provider.ValidateData(data)
}
