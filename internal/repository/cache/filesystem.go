package cache

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"
)

// mtime marker for tiles that never expire
var neverExpires = time.Date(2200, time.January, 1, 0, 0, 0, 0, time.UTC)

// FilesystemCache stores one file per tile and keeps the expiration in the
// file's modification time.
type FilesystemCache struct {
	root string
}

func NewFilesystemCache(root string) (*FilesystemCache, error) {
	if err := os.MkdirAll(root, 0755); err != nil {
		return nil, fmt.Errorf("failed to create cache dir: %w", err)
	}
	return &FilesystemCache{root: root}, nil
}

var _ TileCache = (*FilesystemCache)(nil)

func (c *FilesystemCache) Get(_ context.Context, k TileCacheKey) (TileCacheValue, bool, error) {
	path := c.keyToPath(k)

	info, err := os.Stat(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return TileCacheValue{}, false, nil
		}
		return TileCacheValue{}, false, err
	}

	v := TileCacheValue{}
	if mtime := info.ModTime(); mtime.Before(neverExpires) {
		v.ExpiresAt = mtime
	}
	if v.Expired(time.Now()) {
		return TileCacheValue{}, false, nil
	}

	content, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return TileCacheValue{}, false, nil
		}
		return TileCacheValue{}, false, err
	}
	v.Data = content

	return v, true, nil
}

func (c *FilesystemCache) Set(_ context.Context, k TileCacheKey, v TileCacheValue) error {
	path := c.keyToPath(k)
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), ".tile-*")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(v.Data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}

	mtime := neverExpires
	if !v.ExpiresAt.IsZero() {
		mtime = v.ExpiresAt
	}
	if err := os.Chtimes(tmp.Name(), time.Now(), mtime); err != nil {
		return err
	}

	return os.Rename(tmp.Name(), path)
}

func (c *FilesystemCache) keyToPath(k TileCacheKey) string {
	return filepath.Join(
		c.root,
		filepath.Clean("/" + k.Layer)[1:],
		fmt.Sprintf("EPSG_%d", k.SRS),
		fmt.Sprintf("%d/%d/%d.%s", k.Z, k.X, k.Y, k.Format),
	)
}
