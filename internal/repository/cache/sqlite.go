package cache

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"time"

	"github.com/jaennil/guide_helper/backend/wmscache/pkg/logger"
	_ "github.com/mattn/go-sqlite3"
	"github.com/pressly/goose/v3"
)

//go:embed migrations/*.sql
var migrations embed.FS

type SQLiteCache struct {
	db     *sql.DB
	logger logger.Logger
}

func NewSQLiteCache(path string, l logger.Logger) (*SQLiteCache, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, err
	}

	err = db.Ping()
	if err != nil {
		return nil, err
	}

	c := &SQLiteCache{
		db:     db,
		logger: l,
	}

	err = c.runMigrations()
	if err != nil {
		return nil, err
	}

	l.Info("sqlite cache initialized", "path", path)

	return c, nil
}

func (c *SQLiteCache) runMigrations() error {
	goose.SetBaseFS(migrations)

	err := goose.SetDialect("sqlite3")
	if err != nil {
		return err
	}

	err = goose.Up(c.db, "migrations")
	if err != nil {
		return err
	}

	return nil
}

var _ TileCache = (*SQLiteCache)(nil)

func (c *SQLiteCache) Get(ctx context.Context, k TileCacheKey) (TileCacheValue, bool, error) {
	c.logger.Debug("sqlite cache get", "tile", k.String())

	query := `SELECT tile_data, expires_at
	FROM tile_cache
	WHERE layer = ? AND srs = ? AND format = ? AND z = ? AND x = ? AND y = ?
	AND (expires_at IS NULL OR expires_at > ?)`

	var (
		tileData  []byte
		expiresAt sql.NullInt64
	)
	err := c.db.QueryRowContext(ctx, query, k.Layer, k.SRS, k.Format, k.Z, k.X, k.Y, time.Now().UnixMilli()).
		Scan(&tileData, &expiresAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return TileCacheValue{}, false, nil
		}
		c.logger.Error("sqlite cache get failed", "tile", k.String(), "error", err)
		return TileCacheValue{}, false, err
	}

	v := TileCacheValue{Data: tileData}
	if expiresAt.Valid {
		v.ExpiresAt = time.UnixMilli(expiresAt.Int64)
	}

	return v, true, nil
}

func (c *SQLiteCache) Set(ctx context.Context, k TileCacheKey, v TileCacheValue) error {
	c.logger.Debug("sqlite cache set", "tile", k.String())

	query := `INSERT INTO tile_cache (layer, srs, format, z, x, y, tile_data, expires_at)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT(layer, srs, format, z, x, y) DO UPDATE SET
		tile_data = excluded.tile_data,
		expires_at = excluded.expires_at`

	var expiresAt sql.NullInt64
	if !v.ExpiresAt.IsZero() {
		expiresAt = sql.NullInt64{Int64: v.ExpiresAt.UnixMilli(), Valid: true}
	}

	_, err := c.db.ExecContext(ctx, query, k.Layer, k.SRS, k.Format, k.Z, k.X, k.Y, v.Data, expiresAt)
	if err != nil {
		c.logger.Error("sqlite cache set failed", "tile", k.String(), "error", err)
		return err
	}

	return nil
}

// Purge deletes expired tiles and returns how many were removed.
func (c *SQLiteCache) Purge(ctx context.Context) (int64, error) {
	res, err := c.db.ExecContext(ctx,
		`DELETE FROM tile_cache WHERE expires_at IS NOT NULL AND expires_at <= ?`,
		time.Now().UnixMilli(),
	)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func (c *SQLiteCache) Close() error {
	return c.db.Close()
}
