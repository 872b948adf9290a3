package cache

import (
	"context"
	"sync"
	"time"
)

type MapCache struct {
	m *TypedSyncMap
}

type TypedSyncMap struct {
	m sync.Map
}

func (c *TypedSyncMap) Load(k TileCacheKey) (TileCacheValue, bool) {
	v, exists := c.m.Load(k)
	if !exists {
		return TileCacheValue{}, false
	}
	return v.(TileCacheValue), exists
}

func (c *TypedSyncMap) Store(k TileCacheKey, v TileCacheValue) {
	c.m.Store(k, v)
}

func (c *TypedSyncMap) Delete(k TileCacheKey) {
	c.m.Delete(k)
}

func NewMapCache() *MapCache {
	return &MapCache{
		m: &TypedSyncMap{},
	}
}

var _ TileCache = (*MapCache)(nil)

func (c *MapCache) Get(_ context.Context, k TileCacheKey) (TileCacheValue, bool, error) {
	v, exists := c.m.Load(k)
	if !exists {
		return TileCacheValue{}, false, nil
	}
	if v.Expired(time.Now()) {
		c.m.Delete(k)
		return TileCacheValue{}, false, nil
	}
	return v, true, nil
}

func (c *MapCache) Set(_ context.Context, k TileCacheKey, v TileCacheValue) error {
	c.m.Store(k, v)
	return nil
}
