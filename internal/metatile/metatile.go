package metatile

import (
	"context"
	"errors"
	"fmt"
	"image"
	"sync/atomic"
	"time"

	"github.com/jaennil/guide_helper/backend/wmscache/internal/backend"
	"github.com/jaennil/guide_helper/backend/wmscache/internal/grid"
	"github.com/jaennil/guide_helper/backend/wmscache/pkg/logger"
	"github.com/jaennil/guide_helper/backend/wmscache/pkg/metrics"
)

var (
	ErrFetchFailed     = errors.New("metatile fetch failed")
	ErrNotFetched      = errors.New("metatile not fetched")
	ErrAlreadyStarted  = errors.New("metatile fetch already started")
	ErrCropOutOfBounds = errors.New("crop rectangle outside metatile image")
)

type State int32

const (
	StateCreated State = iota
	StateFetching
	StateFetched
	StateFailed
	StateSplit
)

func (s State) String() string {
	switch s {
	case StateCreated:
		return "created"
	case StateFetching:
		return "fetching"
	case StateFetched:
		return "fetched"
	case StateFailed:
		return "failed"
	case StateSplit:
		return "split"
	default:
		return fmt.Sprintf("state(%d)", int32(s))
	}
}

// Fetcher is satisfied by *backend.Dispatcher.
type Fetcher interface {
	Fetch(ctx context.Context, target backend.Target, srs grid.SRS, box grid.BBox, mime string, width, height int, opts backend.Options) (*backend.Result, error)
}

// Config is everything a metatile needs from its layer.
type Config struct {
	Calculator   grid.Calculator
	Target       backend.Target
	TileWidth    int
	TileHeight   int
	Format       Format
	CachePolicy  Policy
	ClientPolicy Policy
	// Fallback replaces a missing backend max-age.
	Fallback time.Duration
	Decode   backend.DecodeConfig
}

// MetaTile is one backend image covering a Region, split into tiles.
// A new MetaTile is built for every fetch; after Split it is read-only.
type MetaTile struct {
	region grid.Region
	cfg    Config
	logger logger.Logger

	state atomic.Int32
	tiles atomic.Pointer[[]image.Image]

	// written by the fetching goroutine before state leaves Fetching
	img              image.Image
	bbox             grid.BBox
	usedURL          string
	lastURL          string
	cacheExpiration  int64
	clientExpiration int64
}

func New(region grid.Region, cfg Config, l logger.Logger) (*MetaTile, error) {
	if cfg.Calculator == nil {
		return nil, errors.New("metatile: no grid calculator")
	}
	if cfg.TileWidth <= 0 || cfg.TileHeight <= 0 {
		return nil, fmt.Errorf("metatile: invalid tile size %dx%d", cfg.TileWidth, cfg.TileHeight)
	}
	if len(cfg.Target.URLs) == 0 {
		return nil, backend.ErrNoBackends
	}
	if cfg.Format == "" {
		cfg.Format = FormatPNG
	}
	if cfg.Fallback <= 0 {
		cfg.Fallback = DefaultExpirationFallback
	}

	return &MetaTile{
		region:           region,
		cfg:              cfg,
		logger:           l,
		cacheExpiration:  ExpirationUnset,
		clientExpiration: ExpirationUnset,
	}, nil
}

// Fetch requests the composite image and resolves expirations. It may run once.
func (m *MetaTile) Fetch(ctx context.Context, f Fetcher) error {
	if !m.state.CompareAndSwap(int32(StateCreated), int32(StateFetching)) {
		return fmt.Errorf("%w: %s", ErrAlreadyStarted, m.State())
	}

	box, err := m.cfg.Calculator.BBox(m.region.Bounds())
	if err != nil {
		m.state.Store(int32(StateFailed))
		metrics.MetaTileFetches.WithLabelValues("error").Inc()
		m.logger.Error("failed to compute metatile bbox", "metatile", m.DebugString(), "error", err)
		return fmt.Errorf("%w: bbox: %w", ErrFetchFailed, err)
	}
	m.bbox = box.AdjustAxisOrder(m.region.SRS(), m.cfg.Target.Version)

	width, height := m.region.PixelSize(m.cfg.TileWidth, m.cfg.TileHeight)
	readExpiration := m.cfg.CachePolicy.NeedsBackend() || m.cfg.ClientPolicy.NeedsBackend()

	res, err := f.Fetch(ctx, m.cfg.Target, m.region.SRS(), m.bbox, m.cfg.Format.MimeType(), width, height, backend.Options{
		ReadExpiration: readExpiration,
		Decode:         m.cfg.Decode,
	})
	if err != nil {
		var exhausted *backend.ExhaustedError
		if errors.As(err, &exhausted) {
			m.lastURL = exhausted.LastURL
		}
		m.state.Store(int32(StateFailed))
		metrics.MetaTileFetches.WithLabelValues("failed").Inc()
		m.logger.Error("metatile fetch failed", "metatile", m.DebugString(), "last_url", m.lastURL, "error", err)
		return fmt.Errorf("%w: %w", ErrFetchFailed, err)
	}

	hint := Hint{MaxAge: res.MaxAge, Valid: res.HasMaxAge}
	if readExpiration && !hint.Valid {
		metrics.MaxAgeFallbacks.Inc()
		m.logger.Warn("backend sent no max-age, using fallback expiration",
			"url", res.URL,
			"cache_control", res.CacheControl,
			"fallback", m.cfg.Fallback,
		)
	}

	m.img = res.Image
	m.usedURL = res.URL
	m.lastURL = res.URL
	m.cacheExpiration = m.cfg.CachePolicy.Resolve(hint, m.cfg.Fallback)
	m.clientExpiration = m.cfg.ClientPolicy.Resolve(hint, m.cfg.Fallback)
	m.state.Store(int32(StateFetched))
	metrics.MetaTileFetches.WithLabelValues("ok").Inc()

	return nil
}

// Split crops the composite image into metaX*metaY tiles.
func (m *MetaTile) Split() error {
	switch m.State() {
	case StateFetched:
	case StateSplit:
		return nil
	case StateFailed:
		return ErrFetchFailed
	default:
		return fmt.Errorf("%w: %s", ErrNotFetched, m.State())
	}

	if m.region.Count() == 1 {
		size := m.img.Bounds().Size()
		if size.X != m.cfg.TileWidth || size.Y != m.cfg.TileHeight {
			m.logger.Warn("single tile metatile has unexpected size",
				"metatile", m.DebugString(),
				"width", size.X,
				"height", size.Y,
			)
		}
	}

	tiles, err := SplitImage(m.img, m.region.MetaX(), m.region.MetaY(), m.cfg.TileWidth, m.cfg.TileHeight)
	if err != nil {
		m.logger.Error("failed to split metatile", "metatile", m.DebugString(), "error", err)
		return err
	}

	m.tiles.Store(&tiles)
	m.state.Store(int32(StateSplit))
	return nil
}

type subImager interface {
	SubImage(r image.Rectangle) image.Image
}

// SplitImage returns views into img for every cell. Index y*metaX+x holds
// the cell x columns right of and y rows above the bottom-left cell.
func SplitImage(img image.Image, metaX, metaY, tileWidth, tileHeight int) ([]image.Image, error) {
	if metaX*metaY == 1 {
		return []image.Image{img}, nil
	}

	sub, ok := img.(subImager)
	if !ok {
		return nil, fmt.Errorf("image type %T cannot be cropped", img)
	}

	b := img.Bounds()
	tiles := make([]image.Image, metaX*metaY)
	for y := 0; y < metaY; y++ {
		for x := 0; x < metaX; x++ {
			i := x * tileWidth
			j := (metaY - 1 - y) * tileHeight
			r := image.Rect(i, j, i+tileWidth, j+tileHeight).Add(b.Min)
			if !r.In(b) {
				return nil, fmt.Errorf("%w: %v not in %v", ErrCropOutOfBounds, r, b)
			}
			tiles[y*metaX+x] = sub.SubImage(r)
		}
	}

	return tiles, nil
}

func (m *MetaTile) State() State {
	return State(m.state.Load())
}

func (m *MetaTile) Failed() bool {
	return m.State() == StateFailed
}

func (m *MetaTile) Region() grid.Region {
	return m.region
}

// Image is the composite buffer, nil unless fetched.
func (m *MetaTile) Image() image.Image {
	if s := m.State(); s != StateFetched && s != StateSplit {
		return nil
	}
	return m.img
}

// SubimageCount is the number of tiles the metatile splits into.
func (m *MetaTile) SubimageCount() int {
	return m.region.Count()
}

// Expiration is the cache expiration in milliseconds.
func (m *MetaTile) Expiration() int64 {
	if s := m.State(); s != StateFetched && s != StateSplit {
		return ExpirationUnset
	}
	return m.cacheExpiration
}

// ClientExpiration is the expiration advertised to clients, in milliseconds.
func (m *MetaTile) ClientExpiration() int64 {
	if s := m.State(); s != StateFetched && s != StateSplit {
		return ExpirationUnset
	}
	return m.clientExpiration
}

func (m *MetaTile) UsedURL() string {
	return m.usedURL
}

// LastURL is the last backend URL tried, set once the fetch finished.
func (m *MetaTile) LastURL() string {
	if s := m.State(); s == StateCreated || s == StateFetching {
		return ""
	}
	return m.lastURL
}

func (m *MetaTile) DebugString() string {
	return fmt.Sprintf("metaX: %d metaY: %d bounds: %s srs: %s state: %s",
		m.region.MetaX(), m.region.MetaY(), m.region.Bounds(), m.region.SRS(), m.State())
}
