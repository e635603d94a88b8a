// Package basin computes the basin hierarchy of a depth grid and simulates
// water volume, overflow and levels on it.
//
// Each basin is a connected region of tiles at one depth. Its outlet is the
// basin one level shallower that encloses it, so the basins form a forest
// rooted at a virtual depth-0 node. Water that exceeds a basin's capacity
// spills into its outlet.
package basin

import "github.com/talgya/waterworks/internal/terrain"

// Coord is a tile coordinate.
type Coord = terrain.Coord

// Basin is the flat record consumers see for one basin.
type Basin struct {
	ID      string   `json:"id"`
	Depth   int      `json:"depth"`
	Tiles   []Coord  `json:"tiles"`
	Volume  float64  `json:"volume"`
	Level   int      `json:"level"`
	Outlets []string `json:"outlets"`
}

// TileCount returns the number of tiles in the basin.
func (b *Basin) TileCount() int { return len(b.Tiles) }

// UnitCapacity is the volume that raises the basin's level by one.
func (b *Basin) UnitCapacity(unit float64) float64 {
	return float64(len(b.Tiles)) * unit
}

// Capacity is the volume the basin holds before overflowing.
func (b *Basin) Capacity(unit float64, maxDepth int) float64 {
	return b.UnitCapacity(unit) * float64(maxDepth)
}

// Outlet returns the basin's outlet id, if it has one.
func (b *Basin) Outlet() (string, bool) {
	if len(b.Outlets) == 0 {
		return "", false
	}
	return b.Outlets[0], true
}

// Clone returns a deep copy of the record.
func (b *Basin) Clone() *Basin {
	cp := *b
	cp.Tiles = append([]Coord(nil), b.Tiles...)
	cp.Outlets = append([]string(nil), b.Outlets...)
	return &cp
}
