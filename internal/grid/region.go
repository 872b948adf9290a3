package grid

import (
	"errors"
	"fmt"
)

var (
	ErrInvalidMetaSize = errors.New("metatile dimensions must be positive")
	ErrRegionSize      = errors.New("region bounds do not match metatile dimensions")
)

// Region is the cell rectangle covered by one metatile. It is immutable.
type Region struct {
	srs    SRS
	bounds Bounds
	metaX  int
	metaY  int
}

// NewRegion validates that bounds span exactly metaX by metaY cells.
func NewRegion(srs SRS, bounds Bounds, metaX, metaY int) (Region, error) {
	if !srs.Supported() {
		return Region{}, fmt.Errorf("%w: %s", ErrUnknownSRS, srs)
	}
	if metaX <= 0 || metaY <= 0 {
		return Region{}, fmt.Errorf("%w: %dx%d", ErrInvalidMetaSize, metaX, metaY)
	}
	if bounds.Width() != metaX || bounds.Height() != metaY {
		return Region{}, fmt.Errorf("%w: %s is not %dx%d", ErrRegionSize, bounds, metaX, metaY)
	}

	return Region{
		srs:    srs,
		bounds: bounds,
		metaX:  metaX,
		metaY:  metaY,
	}, nil
}

// MetaRegionFor returns the metatile region containing cell. Metatiles are
// aligned on multiples of metaX/metaY and shrink where they would leave coverage.
func MetaRegionFor(srs SRS, cell Cell, metaX, metaY int, coverage Bounds) (Region, error) {
	if metaX <= 0 || metaY <= 0 {
		return Region{}, fmt.Errorf("%w: %dx%d", ErrInvalidMetaSize, metaX, metaY)
	}
	if !coverage.Contains(cell) {
		return Region{}, fmt.Errorf("%w: %s not in %s", ErrOutsideCoverage, cell.GridLoc(), coverage)
	}

	minX := cell.X - floorMod(cell.X, metaX)
	minY := cell.Y - floorMod(cell.Y, metaY)

	aligned := Bounds{
		MinX: minX,
		MinY: minY,
		MaxX: minX + metaX - 1,
		MaxY: minY + metaY - 1,
		Z:    cell.Z,
	}

	bounds, ok := aligned.Intersect(coverage)
	if !ok {
		return Region{}, fmt.Errorf("%w: %s", ErrOutsideCoverage, aligned)
	}

	return NewRegion(srs, bounds, bounds.Width(), bounds.Height())
}

func floorMod(a, b int) int {
	m := a % b
	if m < 0 {
		m += b
	}
	return m
}

func (r Region) SRS() SRS {
	return r.srs
}

func (r Region) Bounds() Bounds {
	return r.bounds
}

// Origin is the bottom-left cell of the region.
func (r Region) Origin() Cell {
	return Cell{X: r.bounds.MinX, Y: r.bounds.MinY, Z: r.bounds.Z}
}

func (r Region) MetaX() int {
	return r.metaX
}

func (r Region) MetaY() int {
	return r.metaY
}

func (r Region) Zoom() int {
	return r.bounds.Z
}

func (r Region) Count() int {
	return r.metaX * r.metaY
}

// PixelSize is the size of the composite backend image.
func (r Region) PixelSize(tileWidth, tileHeight int) (int, int) {
	return r.metaX * tileWidth, r.metaY * tileHeight
}

// CellIndex maps a cell to its position in the split array, y*metaX+x.
func (r Region) CellIndex(c Cell) (int, error) {
	if !r.bounds.Contains(c) {
		return 0, fmt.Errorf("%w: %s not in %s", ErrOutsideCoverage, c.GridLoc(), r.bounds)
	}
	x := c.X - r.bounds.MinX
	y := c.Y - r.bounds.MinY
	return y*r.metaX + x, nil
}

// Cell is the inverse of CellIndex.
func (r Region) Cell(index int) Cell {
	return Cell{
		X: r.bounds.MinX + index%r.metaX,
		Y: r.bounds.MinY + index/r.metaX,
		Z: r.bounds.Z,
	}
}

// Key identifies the metatile extent of a layer.
func (r Region) Key(layer string) string {
	return fmt.Sprintf("%s/%s/%d/%d_%d_%d_%d",
		layer, r.srs, r.bounds.Z, r.bounds.MinX, r.bounds.MinY, r.bounds.MaxX, r.bounds.MaxY)
}

func (r Region) String() string {
	return fmt.Sprintf("%s %dx%d %s", r.srs, r.metaX, r.metaY, r.bounds)
}
