package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jaennil/guide_helper/backend/wmscache/pkg/metrics"
	"github.com/redis/go-redis/v9"
)

type RedisCache struct {
	client *redis.Client
}

type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

func NewRedisCache(cfg RedisConfig) (*RedisCache, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	return &RedisCache{
		client: client,
	}, nil
}

var _ TileCache = (*RedisCache)(nil)

func (c *RedisCache) keyFor(k TileCacheKey) string {
	return "tile:" + k.String()
}

func (c *RedisCache) Get(ctx context.Context, k TileCacheKey) (TileCacheValue, bool, error) {
	start := time.Now()
	defer func() {
		metrics.RedisOperationDuration.WithLabelValues("get").Observe(time.Since(start).Seconds())
	}()

	key := c.keyFor(k)

	pipe := c.client.Pipeline()
	getCmd := pipe.Get(ctx, key)
	ttlCmd := pipe.PTTL(ctx, key)

	if _, err := pipe.Exec(ctx); err != nil && !errors.Is(err, redis.Nil) {
		metrics.RedisErrors.WithLabelValues("get").Inc()
		return TileCacheValue{}, false, fmt.Errorf("redis get error: %w", err)
	}

	data, err := getCmd.Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return TileCacheValue{}, false, nil
		}
		metrics.RedisErrors.WithLabelValues("get").Inc()
		return TileCacheValue{}, false, fmt.Errorf("redis get error: %w", err)
	}

	v := TileCacheValue{Data: data}
	// PTTL is -1 for keys without expiration
	if ttl, err := ttlCmd.Result(); err == nil && ttl > 0 {
		v.ExpiresAt = time.Now().Add(ttl)
	}

	return v, true, nil
}

func (c *RedisCache) Set(ctx context.Context, k TileCacheKey, v TileCacheValue) error {
	start := time.Now()
	defer func() {
		metrics.RedisOperationDuration.WithLabelValues("set").Observe(time.Since(start).Seconds())
	}()

	var ttl time.Duration
	if remaining, ok := v.TTL(time.Now()); ok {
		if remaining <= 0 {
			return nil
		}
		ttl = remaining
	}

	if err := c.client.Set(ctx, c.keyFor(k), v.Data, ttl).Err(); err != nil {
		metrics.RedisErrors.WithLabelValues("set").Inc()
		return fmt.Errorf("redis set error: %w", err)
	}

	return nil
}

func (c *RedisCache) Close() error {
	return c.client.Close()
}
