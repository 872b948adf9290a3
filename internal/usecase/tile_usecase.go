package usecase

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/jaennil/guide_helper/backend/wmscache/internal/filter"
	"github.com/jaennil/guide_helper/backend/wmscache/internal/grid"
	"github.com/jaennil/guide_helper/backend/wmscache/internal/layer"
	"github.com/jaennil/guide_helper/backend/wmscache/internal/metatile"
	"github.com/jaennil/guide_helper/backend/wmscache/internal/repository/cache"
	"github.com/jaennil/guide_helper/backend/wmscache/pkg/logger"
	"github.com/jaennil/guide_helper/backend/wmscache/pkg/metrics"
)

var ErrTileUnavailable = errors.New("tile could not be produced")

const (
	SourceCache   = "cache"
	SourceBackend = "backend"
)

type TileRequest struct {
	Layer  string
	SRS    grid.SRS
	Cell   grid.Cell
	Format string
	// XYZ marks a cell whose rows grow southwards.
	XYZ bool
}

type TileResult struct {
	Data   []byte
	Format metatile.Format
	// ClientExpiration is in milliseconds, or metatile.ExpirationClientDefault.
	ClientExpiration int64
	Source           string
}

// MaxAge is the lifetime to advertise to clients, false when they decide.
func (r *TileResult) MaxAge() (time.Duration, bool) {
	if r.ClientExpiration < 0 {
		return 0, false
	}
	return time.Duration(r.ClientExpiration) * time.Millisecond, true
}

type LayerInfo struct {
	Name       string   `json:"name"`
	SRS        []string `json:"srs"`
	Formats    []string `json:"formats"`
	TileWidth  int      `json:"tile_width"`
	TileHeight int      `json:"tile_height"`
	MetaX      int      `json:"meta_x"`
	MetaY      int      `json:"meta_y"`
	MinZoom    int      `json:"min_zoom"`
	MaxZoom    int      `json:"max_zoom"`
}

type TileUseCase struct {
	layers   *layer.Set
	fetcher  metatile.Fetcher
	registry *metatile.Registry
	cache    *TileCacheUseCase
	logger   logger.Logger

	buffers sync.Pool
}

func NewTileUseCase(layers *layer.Set, fetcher metatile.Fetcher, registry *metatile.Registry, cache *TileCacheUseCase, l logger.Logger) *TileUseCase {
	return &TileUseCase{
		layers:   layers,
		fetcher:  fetcher,
		registry: registry,
		cache:    cache,
		logger:   l,
		buffers: sync.Pool{
			New: func() any { return new(bytes.Buffer) },
		},
	}
}

func (uc *TileUseCase) GetTile(ctx context.Context, req TileRequest) (*TileResult, error) {
	lyr, err := uc.layers.Get(req.Layer)
	if err != nil {
		return nil, err
	}
	format, err := lyr.Format(req.Format)
	if err != nil {
		return nil, err
	}
	if _, err := lyr.Calculator(req.SRS); err != nil {
		return nil, err
	}

	cell := req.Cell
	if req.XYZ {
		if cell, err = lyr.FromXYZ(req.SRS, cell); err != nil {
			return nil, err
		}
	}

	metrics.TilesRequests.WithLabelValues(lyr.Name()).Inc()

	err = lyr.Filter(filter.Request{Layer: lyr.Name(), SRS: req.SRS, Cell: cell, Format: string(format)})
	if err != nil {
		var rejected *filter.RejectedError
		if errors.As(err, &rejected) {
			metrics.TilesRejected.WithLabelValues(rejected.Filter).Inc()
		}
		uc.logger.With("layer", lyr.Name(), "srs", req.SRS.String()).
			Debug("tile request rejected", "cell", cell.GridLoc(), "error", err)
		return nil, err
	}

	key := tileKey(lyr.Name(), req.SRS, format, cell)
	if v, ok, err := uc.cache.GetCachedTile(ctx, key); err == nil && ok {
		return &TileResult{
			Data:             v.Data,
			Format:           format,
			ClientExpiration: cachedClientExpiration(lyr.ClientPolicy(), v),
			Source:           SourceCache,
		}, nil
	}

	region, err := lyr.MetaRegion(req.SRS, cell)
	if err != nil {
		return nil, err
	}
	index, err := region.CellIndex(cell)
	if err != nil {
		return nil, err
	}

	mt, shared, err := uc.registry.Fetch(ctx, region.Key(lyr.Name())+"/"+string(format), func(ctx context.Context) (*metatile.MetaTile, error) {
		return uc.render(ctx, lyr, region, format)
	})
	if err != nil {
		return nil, err
	}
	if shared {
		uc.logger.Debug("attached to in-flight metatile", "metatile", mt.DebugString())
	}

	buf := uc.buffers.Get().(*bytes.Buffer)
	buf.Reset()
	defer uc.buffers.Put(buf)

	if !mt.WriteTile(index, format, buf) {
		return nil, fmt.Errorf("%w: %s index %d", ErrTileUnavailable, region, index)
	}

	return &TileResult{
		Data:             slices.Clone(buf.Bytes()),
		Format:           format,
		ClientExpiration: mt.ClientExpiration(),
		Source:           SourceBackend,
	}, nil
}

// render fetches and splits one metatile, then stores every tile it holds.
func (uc *TileUseCase) render(ctx context.Context, lyr *layer.Layer, region grid.Region, format metatile.Format) (*metatile.MetaTile, error) {
	cfg, err := lyr.MetaTileConfig(region.SRS(), format)
	if err != nil {
		return nil, err
	}
	mt, err := metatile.New(region, cfg, uc.logger.With("layer", lyr.Name(), "format", string(format)))
	if err != nil {
		return nil, err
	}
	if err := mt.Fetch(ctx, uc.fetcher); err != nil {
		return nil, err
	}
	if err := mt.Split(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrTileUnavailable, err)
	}

	uc.store(ctx, lyr.Name(), mt, format)
	return mt, nil
}

func (uc *TileUseCase) store(ctx context.Context, layerName string, mt *metatile.MetaTile, format metatile.Format) {
	var expiresAt time.Time
	switch exp := mt.Expiration(); {
	case exp == 0:
		return
	case exp > 0:
		expiresAt = time.Now().Add(time.Duration(exp) * time.Millisecond)
	}

	region := mt.Region()
	buf := uc.buffers.Get().(*bytes.Buffer)
	defer uc.buffers.Put(buf)

	var skipped, failed int
	for i := range mt.SubimageCount() {
		buf.Reset()
		if !mt.WriteTile(i, format, buf) {
			skipped++
			continue
		}
		key := tileKey(layerName, region.SRS(), format, region.Cell(i))
		if err := uc.cache.CacheTile(ctx, key, slices.Clone(buf.Bytes()), expiresAt); err != nil {
			failed++
		}
	}

	if skipped > 0 || failed > 0 {
		uc.logger.Warn("metatile partially stored",
			"layer", layerName,
			"metatile", region.Key(layerName),
			"format", string(format),
			"tiles", mt.SubimageCount(),
			"not_encoded", skipped,
			"not_cached", failed,
		)
	}
}

func cachedClientExpiration(p metatile.Policy, v cache.TileCacheValue) int64 {
	switch p.Kind {
	case metatile.PolicyFixed:
		return p.Value.Milliseconds()
	case metatile.PolicyBackend:
		if ttl, ok := v.TTL(time.Now()); ok {
			return ttl.Milliseconds()
		}
	}
	return metatile.ExpirationClientDefault
}

func tileKey(layerName string, srs grid.SRS, format metatile.Format, c grid.Cell) cache.TileCacheKey {
	return cache.TileCacheKey{
		Layer:  layerName,
		SRS:    srs.Code(),
		Format: format.Extension(),
		X:      c.X,
		Y:      c.Y,
		Z:      c.Z,
	}
}

// CellBBox returns the bounding box of a cell in the layer's grid for srs.
func (uc *TileUseCase) CellBBox(layerName string, srs grid.SRS, cell grid.Cell) (grid.BBox, error) {
	lyr, err := uc.layers.Get(layerName)
	if err != nil {
		return grid.BBox{}, err
	}
	return lyr.CellBBox(srs, cell)
}

func (uc *TileUseCase) Layers() []LayerInfo {
	all := uc.layers.All()
	infos := make([]LayerInfo, 0, len(all))

	for _, l := range all {
		info := LayerInfo{Name: l.Name()}
		for _, s := range l.SRS() {
			info.SRS = append(info.SRS, s.String())
		}
		for _, f := range l.Formats() {
			info.Formats = append(info.Formats, f.MimeType())
		}
		info.TileWidth, info.TileHeight = l.TileSize()
		info.MetaX, info.MetaY = l.MetaSize()
		info.MinZoom, info.MaxZoom = l.ZoomRange()
		infos = append(infos, info)
	}

	return infos
}

// RefreshFilters re-runs filter updates on every layer.
func (uc *TileUseCase) RefreshFilters() error {
	for _, l := range uc.layers.All() {
		if err := l.UpdateFilters(); err != nil {
			return fmt.Errorf("layer %s: %w", l.Name(), err)
		}
	}
	return nil
}
