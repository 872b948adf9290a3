package filter

import (
	"errors"
	"sync"

	"github.com/jaennil/guide_helper/backend/wmscache/internal/grid"
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/project"
)

// CoverageFilter rejects cells outside a lon/lat box. Cell ranges per SRS and
// zoom are computed when the layer is initialized.
type CoverageFilter struct {
	lonLat grid.BBox

	mu     sync.RWMutex
	ranges map[grid.SRS][]grid.Bounds
}

var (
	_ Filter      = (*CoverageFilter)(nil)
	_ Initializer = (*CoverageFilter)(nil)
	_ Updater     = (*CoverageFilter)(nil)
)

func NewCoverageFilter(lonLat grid.BBox) *CoverageFilter {
	return &CoverageFilter{lonLat: lonLat}
}

func (f *CoverageFilter) Name() string {
	return "coverage"
}

func (f *CoverageFilter) Initialize(l Layer) error {
	ranges := make(map[grid.SRS][]grid.Bounds)

	for srs, calc := range l.Grids() {
		box := f.lonLat
		if srs.Mercator() {
			lo := project.WGS84.ToMercator(orb.Point{box.MinX, clampLat(box.MinY)})
			hi := project.WGS84.ToMercator(orb.Point{box.MaxX, clampLat(box.MaxY)})
			box = grid.BBox{MinX: lo.X(), MinY: lo.Y(), MaxX: hi.X(), MaxY: hi.Y()}
		}

		levels := make([]grid.Bounds, calc.ZoomLevels())
		for z := range levels {
			b, err := calc.CellsFor(box, z)
			if errors.Is(err, grid.ErrOutsideCoverage) {
				b = grid.Bounds{MinX: 0, MinY: 0, MaxX: -1, MaxY: -1, Z: z}
			} else if err != nil {
				return err
			}
			levels[z] = b
		}
		ranges[srs] = levels
	}

	f.mu.Lock()
	f.ranges = ranges
	f.mu.Unlock()

	return nil
}

func (f *CoverageFilter) Update(l Layer) error {
	return f.Initialize(l)
}

func (f *CoverageFilter) Apply(req Request) error {
	f.mu.RLock()
	levels, ok := f.ranges[req.SRS]
	f.mu.RUnlock()

	if !ok {
		return reject(f, "no coverage for %s", req.SRS)
	}
	if req.Cell.Z < 0 || req.Cell.Z >= len(levels) {
		return reject(f, "zoom %d has no coverage", req.Cell.Z)
	}
	if b := levels[req.Cell.Z]; !b.Contains(req.Cell) {
		return reject(f, "%s outside %s", req.Cell.GridLoc(), b)
	}

	return nil
}

func clampLat(lat float64) float64 {
	const maxLat = 85.05112877980659
	return max(-maxLat, min(maxLat, lat))
}
