package grid

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
)

var ErrOutsideCoverage = errors.New("cell outside grid coverage")

// Cell is a single tile address. Y grows from south to north.
type Cell struct {
	X int `json:"x"`
	Y int `json:"y"`
	Z int `json:"z"`
}

// Bounds is an inclusive rectangle of cells at one zoom level.
type Bounds struct {
	MinX int `json:"minx"`
	MinY int `json:"miny"`
	MaxX int `json:"maxx"`
	MaxY int `json:"maxy"`
	Z    int `json:"z"`
}

func (b Bounds) Width() int {
	return b.MaxX - b.MinX + 1
}

func (b Bounds) Height() int {
	return b.MaxY - b.MinY + 1
}

func (b Bounds) Empty() bool {
	return b.MaxX < b.MinX || b.MaxY < b.MinY
}

func (b Bounds) Contains(c Cell) bool {
	return c.Z == b.Z &&
		c.X >= b.MinX && c.X <= b.MaxX &&
		c.Y >= b.MinY && c.Y <= b.MaxY
}

func (b Bounds) Intersect(o Bounds) (Bounds, bool) {
	if b.Z != o.Z {
		return Bounds{}, false
	}

	r := Bounds{
		MinX: max(b.MinX, o.MinX),
		MinY: max(b.MinY, o.MinY),
		MaxX: min(b.MaxX, o.MaxX),
		MaxY: min(b.MaxY, o.MaxY),
		Z:    b.Z,
	}
	if r.Empty() {
		return Bounds{}, false
	}

	return r, true
}

// FlipRow mirrors c vertically inside b.
func (b Bounds) FlipRow(c Cell) Cell {
	c.Y = b.MinY + b.MaxY - c.Y
	return c
}

func (b Bounds) String() string {
	return fmt.Sprintf("[%d,%d,%d,%d z%d]", b.MinX, b.MinY, b.MaxX, b.MaxY, b.Z)
}

var gridLocPattern = regexp.MustCompile(`^x(\d+)y(\d+)z(\d+)$`)

// ParseGridLoc parses overlay grid locations of the form "x<x>y<y>z<z>".
func ParseGridLoc(s string) (Cell, error) {
	m := gridLocPattern.FindStringSubmatch(s)
	if m == nil {
		return Cell{}, fmt.Errorf("invalid grid location %q", s)
	}

	var vals [3]int
	for i := range vals {
		v, err := strconv.Atoi(m[i+1])
		if err != nil {
			return Cell{}, fmt.Errorf("invalid grid location %q: %w", s, err)
		}
		vals[i] = v
	}

	return Cell{X: vals[0], Y: vals[1], Z: vals[2]}, nil
}

func (c Cell) GridLoc() string {
	return fmt.Sprintf("x%dy%dz%d", c.X, c.Y, c.Z)
}

// Parent returns the cell one zoom level up, false at zoom 0.
func (c Cell) Parent() (Cell, bool) {
	if c.Z == 0 {
		return Cell{}, false
	}
	return Cell{X: c.X / 2, Y: c.Y / 2, Z: c.Z - 1}, true
}

// Children returns the four cells covering c at the next zoom level.
func (c Cell) Children() [4]Cell {
	x, y, z := c.X*2, c.Y*2, c.Z+1
	return [4]Cell{
		{X: x, Y: y, Z: z},
		{X: x + 1, Y: y, Z: z},
		{X: x, Y: y + 1, Z: z},
		{X: x + 1, Y: y + 1, Z: z},
	}
}
