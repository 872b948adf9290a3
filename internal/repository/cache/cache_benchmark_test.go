package cache

import (
	"context"
	"math/rand"
	"path/filepath"
	"testing"
	"time"

	"github.com/jaennil/guide_helper/backend/wmscache/pkg/logger"
)

const (
	smallTileSize  = 1024      // 1KB
	mediumTileSize = 10 * 1024 // 10KB
	largeTileSize  = 50 * 1024 // 50KB
)

func generateTileData(size int) []byte {
	data := make([]byte, size)
	rand.Read(data)
	return data
}

func benchKey(i, n int) TileCacheKey {
	return TileCacheKey{Layer: "bench", SRS: 3857, Format: "png", X: i % n, Y: i % n, Z: i % 20}
}

func benchCaches(b *testing.B) map[string]TileCache {
	b.Helper()

	sqlite, err := NewSQLiteCache(filepath.Join(b.TempDir(), "bench.db"), logger.NewNoOpLogger())
	if err != nil {
		b.Fatalf("Failed to create SQLite cache: %v", err)
	}
	b.Cleanup(func() { sqlite.Close() })

	fsCache, err := NewFilesystemCache(b.TempDir())
	if err != nil {
		b.Fatalf("Failed to create filesystem cache: %v", err)
	}

	memory := NewMemoryCache(10000)
	b.Cleanup(func() { memory.Close() })

	return map[string]TileCache{
		"SQLite":     sqlite,
		"Map":        NewMapCache(),
		"Memory":     memory,
		"Filesystem": fsCache,
	}
}

func BenchmarkSet(b *testing.B) {
	ctx := context.Background()
	sizes := map[string]int{"Small": smallTileSize, "Large": largeTileSize}

	for sizeName, size := range sizes {
		data := TileCacheValue{Data: generateTileData(size), ExpiresAt: time.Now().Add(time.Hour)}
		for name, c := range benchCaches(b) {
			b.Run(name+"_"+sizeName, func(b *testing.B) {
				for i := 0; i < b.N; i++ {
					if err := c.Set(ctx, benchKey(i, 1000), data); err != nil {
						b.Fatalf("Set failed: %v", err)
					}
				}
			})
		}
	}
}

func BenchmarkGet(b *testing.B) {
	ctx := context.Background()
	sizes := map[string]int{"Small": smallTileSize, "Large": largeTileSize}

	for sizeName, size := range sizes {
		data := TileCacheValue{Data: generateTileData(size)}
		for name, c := range benchCaches(b) {
			for i := 0; i < 100; i++ {
				c.Set(ctx, benchKey(i, 100), data)
			}

			b.Run(name+"_"+sizeName, func(b *testing.B) {
				for i := 0; i < b.N; i++ {
					if _, _, err := c.Get(ctx, benchKey(i, 100)); err != nil {
						b.Fatalf("Get failed: %v", err)
					}
				}
			})
		}
	}
}

// 80% reads, 20% writes
func BenchmarkMixed(b *testing.B) {
	ctx := context.Background()
	data := TileCacheValue{Data: generateTileData(mediumTileSize)}

	for name, c := range benchCaches(b) {
		for i := 0; i < 50; i++ {
			c.Set(ctx, benchKey(i, 100), data)
		}

		b.Run(name, func(b *testing.B) {
			for i := 0; i < b.N; i++ {
				if i%5 == 0 {
					c.Set(ctx, benchKey(i, 100), data)
				} else {
					c.Get(ctx, benchKey(i, 100))
				}
			}
		})
	}
}

func BenchmarkConcurrent(b *testing.B) {
	ctx := context.Background()
	data := TileCacheValue{Data: generateTileData(mediumTileSize)}

	for name, c := range benchCaches(b) {
		b.Run(name, func(b *testing.B) {
			b.RunParallel(func(pb *testing.PB) {
				i := 0
				for pb.Next() {
					if i%5 == 0 {
						c.Set(ctx, benchKey(i, 100), data)
					} else {
						c.Get(ctx, benchKey(i, 100))
					}
					i++
				}
			})
		})
	}
}
