package layer

import (
	"errors"
	"fmt"
	"net/url"
	"slices"
	"strings"
	"time"

	"github.com/jaennil/guide_helper/backend/wmscache/internal/backend"
	"github.com/jaennil/guide_helper/backend/wmscache/internal/filter"
	"github.com/jaennil/guide_helper/backend/wmscache/internal/grid"
	"github.com/jaennil/guide_helper/backend/wmscache/internal/metatile"
	"github.com/jaennil/guide_helper/backend/wmscache/pkg/config"
)

var (
	ErrNoBackends        = errors.New("layer has no backend urls")
	ErrUnknownLayer      = errors.New("unknown layer")
	ErrUnsupportedSRS    = errors.New("srs not configured for layer")
	ErrUnsupportedFormat = errors.New("format not configured for layer")
)

// Defaults are service wide settings applied to every layer.
type Defaults struct {
	Fallback  time.Duration
	MaxPixels int
}

type Layer struct {
	name         string
	target       backend.Target
	tileWidth    int
	tileHeight   int
	metaX        int
	metaY        int
	minZoom      int
	maxZoom      int
	formats      []metatile.Format
	srs          []grid.SRS
	grids        map[grid.SRS]grid.Calculator
	cachePolicy  metatile.Policy
	clientPolicy metatile.Policy
	fallback     time.Duration
	decode       backend.DecodeConfig
	filters      filter.Chain
}

var _ filter.Layer = (*Layer)(nil)

// New builds a layer. Every error returned is a configuration error.
func New(cfg config.Layer, d Defaults) (*Layer, error) {
	if len(cfg.URLs) == 0 {
		return nil, fmt.Errorf("layer %s: %w", cfg.Name, ErrNoBackends)
	}
	if cfg.MetaX <= 0 || cfg.MetaY <= 0 {
		return nil, fmt.Errorf("layer %s: %w: %dx%d", cfg.Name, grid.ErrInvalidMetaSize, cfg.MetaX, cfg.MetaY)
	}
	if cfg.TileWidth <= 0 || cfg.TileHeight <= 0 {
		return nil, fmt.Errorf("layer %s: invalid tile size %dx%d", cfg.Name, cfg.TileWidth, cfg.TileHeight)
	}

	l := &Layer{
		name:       cfg.Name,
		tileWidth:  cfg.TileWidth,
		tileHeight: cfg.TileHeight,
		metaX:      cfg.MetaX,
		metaY:      cfg.MetaY,
		minZoom:    cfg.MinZoom,
		maxZoom:    cfg.MaxZoom,
		grids:      make(map[grid.SRS]grid.Calculator, len(cfg.SRS)),
		fallback:   d.Fallback,
		decode: backend.DecodeConfig{
			MaxPixels:  d.MaxPixels,
			ExpectSize: true,
		},
	}

	params := make(url.Values, len(cfg.Params))
	for k, v := range cfg.Params {
		params.Set(strings.ToUpper(k), v)
	}
	l.target = backend.Target{
		URLs:    slices.Clone(cfg.URLs),
		Version: cfg.Version,
		Layers:  cfg.WMSLayers,
		Styles:  cfg.Styles,
		Params:  params,
	}

	for _, s := range cfg.SRS {
		srs, err := grid.ParseSRS(s)
		if err != nil {
			return nil, fmt.Errorf("layer %s: %w", cfg.Name, err)
		}
		calc, err := grid.NewCalculator(srs, cfg.TileWidth, cfg.TileHeight, cfg.MaxZoom+1)
		if err != nil {
			return nil, fmt.Errorf("layer %s: %w", cfg.Name, err)
		}
		l.srs = append(l.srs, srs)
		l.grids[srs] = calc
	}

	for _, f := range cfg.Formats {
		format, err := metatile.ParseFormat(f)
		if err != nil {
			return nil, fmt.Errorf("layer %s: %w", cfg.Name, err)
		}
		l.formats = append(l.formats, format)
	}
	if len(l.formats) == 0 {
		l.formats = []metatile.Format{metatile.FormatPNG}
	}

	var err error
	if l.cachePolicy, err = metatile.ParsePolicy(cfg.ExpireCache); err != nil {
		return nil, fmt.Errorf("layer %s: expire_cache: %w", cfg.Name, err)
	}
	if l.clientPolicy, err = metatile.ParsePolicy(cfg.ExpireClients); err != nil {
		return nil, fmt.Errorf("layer %s: expire_clients: %w", cfg.Name, err)
	}

	l.filters = filter.Chain{&filter.ZoomFilter{Min: cfg.MinZoom, Max: cfg.MaxZoom}}
	if len(cfg.Bounds) == 4 {
		l.filters = append(l.filters, filter.NewCoverageFilter(grid.BBox{
			MinX: cfg.Bounds[0],
			MinY: cfg.Bounds[1],
			MaxX: cfg.Bounds[2],
			MaxY: cfg.Bounds[3],
		}))
	}
	if err := l.filters.Initialize(l); err != nil {
		return nil, fmt.Errorf("layer %s: %w", cfg.Name, err)
	}

	return l, nil
}

func (l *Layer) Name() string {
	return l.name
}

func (l *Layer) Grids() map[grid.SRS]grid.Calculator {
	return l.grids
}

func (l *Layer) SRS() []grid.SRS {
	return l.srs
}

func (l *Layer) Formats() []metatile.Format {
	return l.formats
}

func (l *Layer) DefaultFormat() metatile.Format {
	return l.formats[0]
}

func (l *Layer) TileSize() (int, int) {
	return l.tileWidth, l.tileHeight
}

func (l *Layer) MetaSize() (int, int) {
	return l.metaX, l.metaY
}

func (l *Layer) ZoomRange() (int, int) {
	return l.minZoom, l.maxZoom
}

func (l *Layer) CachePolicy() metatile.Policy {
	return l.cachePolicy
}

func (l *Layer) ClientPolicy() metatile.Policy {
	return l.clientPolicy
}

func (l *Layer) Calculator(srs grid.SRS) (grid.Calculator, error) {
	calc, ok := l.grids[srs]
	if !ok {
		return nil, fmt.Errorf("%w: %s on %s", ErrUnsupportedSRS, srs, l.name)
	}
	return calc, nil
}

func (l *Layer) Format(s string) (metatile.Format, error) {
	if s == "" {
		return l.DefaultFormat(), nil
	}
	f, err := metatile.ParseFormat(s)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrUnsupportedFormat, err)
	}
	if !slices.Contains(l.formats, f) {
		return "", fmt.Errorf("%w: %s on %s", ErrUnsupportedFormat, f, l.name)
	}
	return f, nil
}

// MetaRegion returns the metatile region that contains cell.
func (l *Layer) MetaRegion(srs grid.SRS, cell grid.Cell) (grid.Region, error) {
	calc, err := l.Calculator(srs)
	if err != nil {
		return grid.Region{}, err
	}
	coverage, err := calc.Coverage(cell.Z)
	if err != nil {
		return grid.Region{}, err
	}
	return grid.MetaRegionFor(srs, cell, l.metaX, l.metaY, coverage)
}

// FromXYZ converts a cell whose rows grow southwards into grid coordinates.
func (l *Layer) FromXYZ(srs grid.SRS, cell grid.Cell) (grid.Cell, error) {
	calc, err := l.Calculator(srs)
	if err != nil {
		return grid.Cell{}, err
	}
	coverage, err := calc.Coverage(cell.Z)
	if err != nil {
		return grid.Cell{}, err
	}
	return coverage.FlipRow(cell), nil
}

// CellBBox is the bounding box of a single cell.
func (l *Layer) CellBBox(srs grid.SRS, cell grid.Cell) (grid.BBox, error) {
	calc, err := l.Calculator(srs)
	if err != nil {
		return grid.BBox{}, err
	}
	return calc.BBox(grid.Bounds{MinX: cell.X, MinY: cell.Y, MaxX: cell.X, MaxY: cell.Y, Z: cell.Z})
}

// MetaTileConfig is the per-fetch configuration for a metatile of this layer.
func (l *Layer) MetaTileConfig(srs grid.SRS, format metatile.Format) (metatile.Config, error) {
	calc, err := l.Calculator(srs)
	if err != nil {
		return metatile.Config{}, err
	}

	return metatile.Config{
		Calculator:   calc,
		Target:       l.target,
		TileWidth:    l.tileWidth,
		TileHeight:   l.tileHeight,
		Format:       format,
		CachePolicy:  l.cachePolicy,
		ClientPolicy: l.clientPolicy,
		Fallback:     l.fallback,
		Decode:       l.decode,
	}, nil
}

func (l *Layer) Filter(req filter.Request) error {
	return l.filters.Apply(req)
}

// UpdateFilters refreshes filters that keep per-layer state.
func (l *Layer) UpdateFilters() error {
	return l.filters.Update(l)
}
