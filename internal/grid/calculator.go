package grid

import (
	"errors"
	"fmt"
	"math"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/maptile"
	"github.com/paulmach/orb/project"
)

var ErrZoomOutOfRange = errors.New("zoom level out of range")

// Calculator maps between cell rectangles and bounding boxes for one SRS.
type Calculator interface {
	BBox(b Bounds) (BBox, error)
	Coverage(z int) (Bounds, error)
	CellsFor(box BBox, z int) (Bounds, error)
	ZoomLevels() int
}

var (
	_ Calculator = (*ResolutionCalculator)(nil)
	_ Calculator = (*MercatorCalculator)(nil)
)

// ResolutionCalculator is a grid anchored at the bottom-left corner of its
// extent with one resolution (units per pixel) per zoom level.
type ResolutionCalculator struct {
	extent      BBox
	tileWidth   int
	tileHeight  int
	resolutions []float64
}

func NewResolutionCalculator(extent BBox, tileWidth, tileHeight int, resolutions []float64) (*ResolutionCalculator, error) {
	if extent.Width() <= 0 || extent.Height() <= 0 {
		return nil, fmt.Errorf("invalid grid extent %s", extent)
	}
	if tileWidth <= 0 || tileHeight <= 0 {
		return nil, fmt.Errorf("invalid tile size %dx%d", tileWidth, tileHeight)
	}
	if len(resolutions) == 0 {
		return nil, errors.New("no resolutions configured")
	}
	for i, r := range resolutions {
		if r <= 0 {
			return nil, fmt.Errorf("resolution %d must be positive, got %v", i, r)
		}
	}

	return &ResolutionCalculator{
		extent:      extent,
		tileWidth:   tileWidth,
		tileHeight:  tileHeight,
		resolutions: resolutions,
	}, nil
}

// NewGeodeticCalculator builds the world EPSG:4326 grid: two cells at zoom 0,
// resolution halving at every level.
func NewGeodeticCalculator(tileWidth, tileHeight, zoomLevels int) (*ResolutionCalculator, error) {
	if tileHeight <= 0 {
		return nil, fmt.Errorf("invalid tile size %dx%d", tileWidth, tileHeight)
	}

	resolutions := make([]float64, zoomLevels)
	for z := range resolutions {
		resolutions[z] = 180.0 / float64(tileHeight) / math.Exp2(float64(z))
	}

	return NewResolutionCalculator(BBox{MinX: -180, MinY: -90, MaxX: 180, MaxY: 90}, tileWidth, tileHeight, resolutions)
}

func (c *ResolutionCalculator) ZoomLevels() int {
	return len(c.resolutions)
}

func (c *ResolutionCalculator) span(z int) (float64, float64, error) {
	if z < 0 || z >= len(c.resolutions) {
		return 0, 0, fmt.Errorf("%w: %d", ErrZoomOutOfRange, z)
	}
	r := c.resolutions[z]
	return r * float64(c.tileWidth), r * float64(c.tileHeight), nil
}

func (c *ResolutionCalculator) BBox(b Bounds) (BBox, error) {
	spanX, spanY, err := c.span(b.Z)
	if err != nil {
		return BBox{}, err
	}
	if b.Empty() {
		return BBox{}, fmt.Errorf("empty bounds %s", b)
	}

	return BBox{
		MinX: c.extent.MinX + float64(b.MinX)*spanX,
		MinY: c.extent.MinY + float64(b.MinY)*spanY,
		MaxX: c.extent.MinX + float64(b.MaxX+1)*spanX,
		MaxY: c.extent.MinY + float64(b.MaxY+1)*spanY,
	}, nil
}

func (c *ResolutionCalculator) Coverage(z int) (Bounds, error) {
	spanX, spanY, err := c.span(z)
	if err != nil {
		return Bounds{}, err
	}

	cols := int(math.Ceil(c.extent.Width()/spanX - 1e-9))
	rows := int(math.Ceil(c.extent.Height()/spanY - 1e-9))

	return Bounds{MinX: 0, MinY: 0, MaxX: cols - 1, MaxY: rows - 1, Z: z}, nil
}

func (c *ResolutionCalculator) CellsFor(box BBox, z int) (Bounds, error) {
	spanX, spanY, err := c.span(z)
	if err != nil {
		return Bounds{}, err
	}
	coverage, err := c.Coverage(z)
	if err != nil {
		return Bounds{}, err
	}

	b := Bounds{
		MinX: int(math.Floor((box.MinX - c.extent.MinX) / spanX)),
		MinY: int(math.Floor((box.MinY - c.extent.MinY) / spanY)),
		MaxX: int(math.Ceil((box.MaxX-c.extent.MinX)/spanX)) - 1,
		MaxY: int(math.Ceil((box.MaxY-c.extent.MinY)/spanY)) - 1,
		Z:    z,
	}

	clipped, ok := b.Intersect(coverage)
	if !ok {
		return Bounds{}, fmt.Errorf("%w: %s at z%d", ErrOutsideCoverage, box, z)
	}
	return clipped, nil
}

// MercatorCalculator is the spherical mercator grid (EPSG:3857/900913),
// one cell at zoom 0, with bboxes in meters.
type MercatorCalculator struct {
	zoomLevels int
}

const maxMercatorLat = 85.05112877980659

func NewMercatorCalculator(zoomLevels int) (*MercatorCalculator, error) {
	if zoomLevels <= 0 || zoomLevels > 31 {
		return nil, fmt.Errorf("%w: %d levels", ErrZoomOutOfRange, zoomLevels)
	}
	return &MercatorCalculator{zoomLevels: zoomLevels}, nil
}

func (c *MercatorCalculator) ZoomLevels() int {
	return c.zoomLevels
}

func (c *MercatorCalculator) Coverage(z int) (Bounds, error) {
	if z < 0 || z >= c.zoomLevels {
		return Bounds{}, fmt.Errorf("%w: %d", ErrZoomOutOfRange, z)
	}
	n := 1 << z
	return Bounds{MinX: 0, MinY: 0, MaxX: n - 1, MaxY: n - 1, Z: z}, nil
}

func (c *MercatorCalculator) BBox(b Bounds) (BBox, error) {
	coverage, err := c.Coverage(b.Z)
	if err != nil {
		return BBox{}, err
	}
	if clipped, ok := b.Intersect(coverage); !ok || clipped != b {
		return BBox{}, fmt.Errorf("%w: %s", ErrOutsideCoverage, b)
	}

	// maptile rows grow southwards, grid rows grow northwards.
	n := 1 << b.Z
	z := maptile.Zoom(b.Z)
	nw := maptile.New(uint32(b.MinX), uint32(n-1-b.MaxY), z).Bound()
	se := maptile.New(uint32(b.MaxX), uint32(n-1-b.MinY), z).Bound()
	lonLat := nw.Union(se)

	return BBox{
		MinX: project.WGS84.ToMercator(lonLat.Min).X(),
		MinY: project.WGS84.ToMercator(lonLat.Min).Y(),
		MaxX: project.WGS84.ToMercator(lonLat.Max).X(),
		MaxY: project.WGS84.ToMercator(lonLat.Max).Y(),
	}, nil
}

func (c *MercatorCalculator) CellsFor(box BBox, z int) (Bounds, error) {
	coverage, err := c.Coverage(z)
	if err != nil {
		return Bounds{}, err
	}

	const eps = 1e-6
	ll := clampLonLat(project.Mercator.ToWGS84(orb.Point{box.MinX, box.MinY}))
	ur := clampLonLat(project.Mercator.ToWGS84(orb.Point{box.MaxX - eps, box.MaxY - eps}))

	n := 1 << z
	llTile := maptile.At(ll, maptile.Zoom(z))
	urTile := maptile.At(ur, maptile.Zoom(z))

	b := Bounds{
		MinX: int(llTile.X),
		MinY: n - 1 - int(llTile.Y),
		MaxX: int(urTile.X),
		MaxY: n - 1 - int(urTile.Y),
		Z:    z,
	}

	clipped, ok := b.Intersect(coverage)
	if !ok {
		return Bounds{}, fmt.Errorf("%w: %s at z%d", ErrOutsideCoverage, box, z)
	}
	return clipped, nil
}

func clampLonLat(p orb.Point) orb.Point {
	lon := math.Max(-180, math.Min(180-1e-9, p.X()))
	lat := math.Max(-maxMercatorLat, math.Min(maxMercatorLat, p.Y()))
	return orb.Point{lon, lat}
}

// NewCalculator returns the default grid for a supported SRS.
func NewCalculator(srs SRS, tileWidth, tileHeight, zoomLevels int) (Calculator, error) {
	switch {
	case srs == EPSG4326:
		return NewGeodeticCalculator(tileWidth, tileHeight, zoomLevels)
	case srs.Mercator():
		return NewMercatorCalculator(zoomLevels)
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnknownSRS, srs)
	}
}
