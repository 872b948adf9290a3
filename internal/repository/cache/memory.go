package cache

import (
	"context"
	"time"

	"github.com/karlseguin/ccache/v3"
)

// tiles without expiration stay until evicted by size
const noExpiration = 100 * 365 * 24 * time.Hour

// MemoryCache is a size bounded LRU with per tile expiration.
type MemoryCache struct {
	cache *ccache.Cache[TileCacheValue]
}

func NewMemoryCache(maxSize int64) *MemoryCache {
	if maxSize <= 0 {
		maxSize = 10000
	}
	itemsToPrune := uint32(max(maxSize/20, 1))

	return &MemoryCache{
		cache: ccache.New(ccache.Configure[TileCacheValue]().MaxSize(maxSize).ItemsToPrune(itemsToPrune)),
	}
}

var _ TileCache = (*MemoryCache)(nil)

func (c *MemoryCache) Get(_ context.Context, k TileCacheKey) (TileCacheValue, bool, error) {
	item := c.cache.Get(k.String())
	if item == nil || item.Expired() {
		return TileCacheValue{}, false, nil
	}
	return item.Value(), true, nil
}

func (c *MemoryCache) Set(_ context.Context, k TileCacheKey, v TileCacheValue) error {
	ttl := noExpiration
	if remaining, ok := v.TTL(time.Now()); ok {
		if remaining <= 0 {
			return nil
		}
		ttl = remaining
	}

	c.cache.Set(k.String(), v, ttl)
	return nil
}

func (c *MemoryCache) Close() error {
	c.cache.Stop()
	return nil
}
