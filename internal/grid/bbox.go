package grid

import (
	"strconv"
	"strings"

	"github.com/paulmach/orb"
)

// BBox is a bounding box in the native units of its SRS.
type BBox struct {
	MinX float64 `json:"minx"`
	MinY float64 `json:"miny"`
	MaxX float64 `json:"maxx"`
	MaxY float64 `json:"maxy"`
}

func FromBound(b orb.Bound) BBox {
	return BBox{
		MinX: b.Min.X(),
		MinY: b.Min.Y(),
		MaxX: b.Max.X(),
		MaxY: b.Max.Y(),
	}
}

func (b BBox) Bound() orb.Bound {
	return orb.Bound{
		Min: orb.Point{b.MinX, b.MinY},
		Max: orb.Point{b.MaxX, b.MaxY},
	}
}

func (b BBox) Width() float64 {
	return b.MaxX - b.MinX
}

func (b BBox) Height() float64 {
	return b.MaxY - b.MinY
}

// String formats the box the way WMS expects the BBOX parameter.
func (b BBox) String() string {
	parts := []string{
		strconv.FormatFloat(b.MinX, 'f', -1, 64),
		strconv.FormatFloat(b.MinY, 'f', -1, 64),
		strconv.FormatFloat(b.MaxX, 'f', -1, 64),
		strconv.FormatFloat(b.MaxY, 'f', -1, 64),
	}
	return strings.Join(parts, ",")
}

// WMS 1.3.0 requires lat/lon axis order for these codes.
var latLonAxisOrder = map[SRS]bool{
	EPSG4326: true,
}

// AdjustAxisOrder returns the box in the axis order the backend expects.
// Only WMS 1.3.0 backends with a lat/lon SRS get swapped axes.
func (b BBox) AdjustAxisOrder(srs SRS, version string) BBox {
	if version != "1.3.0" || !latLonAxisOrder[srs] {
		return b
	}

	return BBox{
		MinX: b.MinY,
		MinY: b.MinX,
		MaxX: b.MaxY,
		MaxY: b.MaxX,
	}
}
