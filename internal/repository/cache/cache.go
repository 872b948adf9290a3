package cache

import (
	"context"
	"fmt"
	"time"
)

type TileCacheKey struct {
	Layer  string
	SRS    int
	Format string
	X      int
	Y      int
	Z      int
}

func (k TileCacheKey) String() string {
	return fmt.Sprintf("%s/%d/%d/%d/%d.%s", k.Layer, k.SRS, k.Z, k.X, k.Y, k.Format)
}

type TileCacheValue struct {
	Data []byte
	// ExpiresAt is zero for tiles that never expire.
	ExpiresAt time.Time
}

func (v TileCacheValue) Expired(now time.Time) bool {
	return !v.ExpiresAt.IsZero() && !now.Before(v.ExpiresAt)
}

// TTL is the remaining lifetime, false when the tile never expires.
func (v TileCacheValue) TTL(now time.Time) (time.Duration, bool) {
	if v.ExpiresAt.IsZero() {
		return 0, false
	}
	return max(v.ExpiresAt.Sub(now), 0), true
}

type TileCache interface {
	Get(context.Context, TileCacheKey) (TileCacheValue, bool, error)
	Set(context.Context, TileCacheKey, TileCacheValue) error
}
