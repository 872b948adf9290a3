package layer

import (
	"testing"
	"time"

	"github.com/jaennil/guide_helper/backend/wmscache/internal/filter"
	"github.com/jaennil/guide_helper/backend/wmscache/internal/grid"
	"github.com/jaennil/guide_helper/backend/wmscache/internal/metatile"
	"github.com/jaennil/guide_helper/backend/wmscache/pkg/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLayerConfig() config.Layer {
	return config.Layer{
		Name:          "states",
		URLs:          []string{"http://a/wms", "http://b/wms"},
		WMSLayers:     "topp:states",
		Version:       "1.1.1",
		SRS:           []string{"EPSG:4326", "EPSG:900913"},
		Formats:       []string{"image/png", "jpeg"},
		TileWidth:     256,
		TileHeight:    256,
		MetaX:         4,
		MetaY:         4,
		MinZoom:       0,
		MaxZoom:       10,
		Params:        map[string]string{"transparent": "true"},
		ExpireCache:   "backend",
		ExpireClients: "1h",
	}
}

func TestNew(t *testing.T) {
	l, err := New(testLayerConfig(), Defaults{Fallback: time.Hour, MaxPixels: 1 << 24})
	require.NoError(t, err)

	assert.Equal(t, "states", l.Name())
	assert.Equal(t, []grid.SRS{grid.EPSG4326, grid.EPSG900913}, l.SRS())
	assert.Equal(t, metatile.FormatPNG, l.DefaultFormat())
	assert.Equal(t, metatile.FromBackend(), l.CachePolicy())
	assert.Equal(t, metatile.Fixed(time.Hour), l.ClientPolicy())

	cfg, err := l.MetaTileConfig(grid.EPSG4326, metatile.FormatJPEG)
	require.NoError(t, err)
	assert.Equal(t, "true", cfg.Target.Params.Get("TRANSPARENT"))
	assert.Equal(t, "topp:states", cfg.Target.Layers)
	assert.Equal(t, time.Hour, cfg.Fallback)
	assert.Equal(t, 1<<24, cfg.Decode.MaxPixels)

	_, err = l.MetaTileConfig(grid.EPSG3857, metatile.FormatPNG)
	require.ErrorIs(t, err, ErrUnsupportedSRS)
}

func TestNewConfigErrors(t *testing.T) {
	tests := map[string]func(*config.Layer){
		"no backends":   func(c *config.Layer) { c.URLs = nil },
		"zero meta":     func(c *config.Layer) { c.MetaX = 0 },
		"negative meta": func(c *config.Layer) { c.MetaY = -2 },
		"unknown srs":   func(c *config.Layer) { c.SRS = []string{"EPSG:2056"} },
		"bad format":    func(c *config.Layer) { c.Formats = []string{"image/svg+xml"} },
		"bad policy":    func(c *config.Layer) { c.ExpireCache = "sometimes" },
	}

	for name, mutate := range tests {
		t.Run(name, func(t *testing.T) {
			cfg := testLayerConfig()
			mutate(&cfg)
			_, err := New(cfg, Defaults{})
			assert.Error(t, err)
		})
	}

	cfg := testLayerConfig()
	cfg.URLs = nil
	_, err := New(cfg, Defaults{})
	assert.ErrorIs(t, err, ErrNoBackends)

	cfg = testLayerConfig()
	cfg.SRS = []string{"EPSG:2056"}
	_, err = New(cfg, Defaults{})
	assert.ErrorIs(t, err, grid.ErrUnknownSRS)
}

func TestFormat(t *testing.T) {
	l, err := New(testLayerConfig(), Defaults{})
	require.NoError(t, err)

	f, err := l.Format("")
	require.NoError(t, err)
	assert.Equal(t, metatile.FormatPNG, f)

	f, err = l.Format("jpg")
	require.NoError(t, err)
	assert.Equal(t, metatile.FormatJPEG, f)

	_, err = l.Format("gif")
	require.ErrorIs(t, err, ErrUnsupportedFormat)
}

func TestMetaRegion(t *testing.T) {
	l, err := New(testLayerConfig(), Defaults{})
	require.NoError(t, err)

	r, err := l.MetaRegion(grid.EPSG900913, grid.Cell{X: 5, Y: 6, Z: 3})
	require.NoError(t, err)
	assert.Equal(t, grid.Bounds{MinX: 4, MinY: 4, MaxX: 7, MaxY: 7, Z: 3}, r.Bounds())

	// geodetic z1 is 4x2 cells, the metatile shrinks to 4x2
	r, err = l.MetaRegion(grid.EPSG4326, grid.Cell{X: 1, Y: 1, Z: 1})
	require.NoError(t, err)
	assert.Equal(t, 4, r.MetaX())
	assert.Equal(t, 2, r.MetaY())

	_, err = l.MetaRegion(grid.EPSG900913, grid.Cell{X: 8, Y: 0, Z: 3})
	require.ErrorIs(t, err, grid.ErrOutsideCoverage)
}

func TestFilters(t *testing.T) {
	cfg := testLayerConfig()
	cfg.MinZoom = 2
	cfg.Bounds = []float64{0, 0, 180, 90}
	l, err := New(cfg, Defaults{})
	require.NoError(t, err)

	assert.ErrorIs(t, l.Filter(filter.Request{SRS: grid.EPSG4326, Cell: grid.Cell{Z: 1}}), filter.ErrRejected)
	assert.ErrorIs(t, l.Filter(filter.Request{SRS: grid.EPSG4326, Cell: grid.Cell{X: 0, Y: 0, Z: 2}}), filter.ErrRejected)
	assert.NoError(t, l.Filter(filter.Request{SRS: grid.EPSG4326, Cell: grid.Cell{X: 7, Y: 3, Z: 2}}))
	assert.NoError(t, l.UpdateFilters())
}

func TestSet(t *testing.T) {
	a := testLayerConfig()
	b := testLayerConfig()
	b.Name = "roads"

	s, err := NewSet([]config.Layer{a, b}, Defaults{})
	require.NoError(t, err)
	require.Len(t, s.All(), 2)
	assert.Equal(t, "roads", s.All()[1].Name())

	_, err = s.Get("rivers")
	require.ErrorIs(t, err, ErrUnknownLayer)

	_, err = NewSet([]config.Layer{a, a}, Defaults{})
	require.Error(t, err)
}

func TestFromXYZ(t *testing.T) {
	l, err := New(testLayerConfig(), Defaults{})
	require.NoError(t, err)

	c, err := l.FromXYZ(grid.EPSG900913, grid.Cell{X: 1, Y: 0, Z: 2})
	require.NoError(t, err)
	assert.Equal(t, grid.Cell{X: 1, Y: 3, Z: 2}, c)

	// geodetic z1 has two rows
	c, err = l.FromXYZ(grid.EPSG4326, grid.Cell{X: 3, Y: 1, Z: 1})
	require.NoError(t, err)
	assert.Equal(t, grid.Cell{X: 3, Y: 0, Z: 1}, c)

	minZoom, maxZoom := l.ZoomRange()
	assert.Equal(t, 0, minZoom)
	assert.Equal(t, 10, maxZoom)
}
