// Package terrain provides the rectangular depth grid that basins are computed on.
// Depth 0 is land; 1..MaxDepth are water-capable depth classes.
package terrain

import (
	"fmt"
	"strconv"
	"strings"
)

// Coord is a tile position on the grid.
type Coord struct {
	X int `json:"x"`
	Y int `json:"y"`
}

// Key returns the canonical lookup key for the coordinate ("x,y").
func (c Coord) Key() string {
	return strconv.Itoa(c.X) + "," + strconv.Itoa(c.Y)
}

// String implements fmt.Stringer.
func (c Coord) String() string {
	return "(" + c.Key() + ")"
}

// ParseKey parses a key produced by Coord.Key.
func ParseKey(key string) (Coord, error) {
	xs, ys, ok := strings.Cut(key, ",")
	if !ok {
		return Coord{}, fmt.Errorf("tile key %q: missing separator", key)
	}
	x, err := strconv.Atoi(xs)
	if err != nil {
		return Coord{}, fmt.Errorf("tile key %q: %w", key, err)
	}
	y, err := strconv.Atoi(ys)
	if err != nil {
		return Coord{}, fmt.Errorf("tile key %q: %w", key, err)
	}
	return Coord{X: x, Y: y}, nil
}

// NeighborOffsets lists the eight neighbour offsets, orthogonal first.
var NeighborOffsets = [8]Coord{
	{X: 1, Y: 0},
	{X: 0, Y: 1},
	{X: -1, Y: 0},
	{X: 0, Y: -1},
	{X: 1, Y: 1},
	{X: -1, Y: 1},
	{X: -1, Y: -1},
	{X: 1, Y: -1},
}

// Grid holds the depth of every tile in a fixed world extent.
type Grid struct {
	Width    int `json:"width"`
	Height   int `json:"height"`
	MaxDepth int `json:"max_depth"`

	cells []int
}

// NewGrid creates an all-land grid.
func NewGrid(width, height, maxDepth int) *Grid {
	return &Grid{
		Width:    width,
		Height:   height,
		MaxDepth: maxDepth,
		cells:    make([]int, width*height),
	}
}

// FromRows builds a grid from row-major depth values. Rows must be equal length.
func FromRows(maxDepth int, rows [][]int) (*Grid, error) {
	if len(rows) == 0 {
		return nil, fmt.Errorf("grid has no rows")
	}
	g := NewGrid(len(rows[0]), len(rows), maxDepth)
	for y, row := range rows {
		if len(row) != g.Width {
			return nil, fmt.Errorf("row %d has %d columns, want %d", y, len(row), g.Width)
		}
		for x, d := range row {
			if d < 0 || d > maxDepth {
				return nil, fmt.Errorf("tile (%d,%d) depth %d outside [0,%d]", x, y, d, maxDepth)
			}
			g.cells[y*g.Width+x] = d
		}
	}
	return g, nil
}

// InBounds reports whether the coordinate lies inside the grid.
func (g *Grid) InBounds(c Coord) bool {
	return c.X >= 0 && c.Y >= 0 && c.X < g.Width && c.Y < g.Height
}

// Depth returns the depth at c. Out-of-bounds tiles report (0, false).
func (g *Grid) Depth(c Coord) (int, bool) {
	if !g.InBounds(c) {
		return 0, false
	}
	return g.cells[c.Y*g.Width+c.X], true
}

// IsLand reports whether c is land. Out-of-bounds tiles count as land.
func (g *Grid) IsLand(c Coord) bool {
	d, _ := g.Depth(c)
	return d == 0
}

// Set writes a depth, clamped into [0, MaxDepth]. It reports whether the
// stored value changed.
func (g *Grid) Set(c Coord, depth int) bool {
	if !g.InBounds(c) {
		return false
	}
	depth = clamp(depth, 0, g.MaxDepth)
	i := c.Y*g.Width + c.X
	if g.cells[i] == depth {
		return false
	}
	g.cells[i] = depth
	return true
}

// Clone returns a deep copy of the grid.
func (g *Grid) Clone() *Grid {
	cp := *g
	cp.cells = append([]int(nil), g.cells...)
	return &cp
}

// Rows returns the grid as row-major slices.
func (g *Grid) Rows() [][]int {
	rows := make([][]int, g.Height)
	for y := range rows {
		rows[y] = append([]int(nil), g.cells[y*g.Width:(y+1)*g.Width]...)
	}
	return rows
}

// WaterTiles returns every tile with depth > 0 in row-major order.
func (g *Grid) WaterTiles() []Coord {
	var out []Coord
	for y := 0; y < g.Height; y++ {
		for x := 0; x < g.Width; x++ {
			if g.cells[y*g.Width+x] > 0 {
				out = append(out, Coord{X: x, Y: y})
			}
		}
	}
	return out
}

// CanStep reports whether water can move from c to its neighbour c+off.
// A diagonal step is blocked when both orthogonal crossing tiles are land.
func (g *Grid) CanStep(c, off Coord) bool {
	if off.X == 0 || off.Y == 0 {
		return true
	}
	return !(g.IsLand(Coord{X: c.X, Y: c.Y + off.Y}) && g.IsLand(Coord{X: c.X + off.X, Y: c.Y}))
}

// Neighbors returns the in-bounds water neighbours reachable from c.
func (g *Grid) Neighbors(c Coord) []Coord {
	out := make([]Coord, 0, 8)
	for _, off := range NeighborOffsets {
		n := Coord{X: c.X + off.X, Y: c.Y + off.Y}
		if d, ok := g.Depth(n); !ok || d == 0 {
			continue
		}
		if !g.CanStep(c, off) {
			continue
		}
		out = append(out, n)
	}
	return out
}

// DepthCounts returns how many tiles sit at each depth.
func (g *Grid) DepthCounts() map[int]int {
	counts := make(map[int]int)
	for _, d := range g.cells {
		counts[d]++
	}
	return counts
}

// String returns a summary of the grid.
func (g *Grid) String() string {
	return fmt.Sprintf("Grid(%dx%d, max_depth=%d)", g.Width, g.Height, g.MaxDepth)
}
