package usecase

import (
	"context"
	"time"

	"github.com/jaennil/guide_helper/backend/wmscache/internal/repository/cache"
	"github.com/jaennil/guide_helper/backend/wmscache/pkg/logger"
	"github.com/jaennil/guide_helper/backend/wmscache/pkg/metrics"
)

type TileCacheUseCase struct {
	cache  cache.TileCache
	logger logger.Logger
}

func NewTileCacheUseCase(cache cache.TileCache, l logger.Logger) *TileCacheUseCase {
	return &TileCacheUseCase{
		cache:  cache,
		logger: l,
	}
}

// CacheTile stores an encoded tile. A zero expiresAt keeps it until evicted.
func (uc *TileCacheUseCase) CacheTile(ctx context.Context, key cache.TileCacheKey, data []byte, expiresAt time.Time) error {
	uc.logger.Debug("caching tile", "tile", key.String(), "size", len(data), "expires_at", expiresAt)

	err := uc.cache.Set(ctx, key, cache.TileCacheValue{Data: data, ExpiresAt: expiresAt})
	if err != nil {
		metrics.CacheStoreFailures.Inc()
		uc.logger.Error("failed to cache tile", "tile", key.String(), "error", err)
		return err
	}

	metrics.CacheStores.Inc()
	return nil
}

func (uc *TileCacheUseCase) GetCachedTile(ctx context.Context, key cache.TileCacheKey) (cache.TileCacheValue, bool, error) {
	uc.logger.Debug("cache lookup", "tile", key.String())

	v, exists, err := uc.cache.Get(ctx, key)
	if err != nil {
		uc.logger.Error("cache lookup failed", "tile", key.String(), "error", err)
		return cache.TileCacheValue{}, false, err
	}

	if exists {
		metrics.CacheHits.Inc()
	} else {
		metrics.CacheMisses.Inc()
	}
	return v, exists, nil
}
