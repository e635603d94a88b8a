package basin

import (
	"errors"
	"fmt"
	"log/slog"
	"sort"

	"github.com/google/uuid"

	"github.com/talgya/waterworks/internal/terrain"
)

var (
	// ErrSessionActive is returned when a computation is requested while a
	// stepped session still owns the manager.
	ErrSessionActive = errors.New("a stepped basin computation is in progress")

	// ErrUnknownBasin is returned for ids not present in the current generation.
	ErrUnknownBasin = errors.New("unknown basin")
)

// Options tunes the water engine.
type Options struct {
	VolumeUnit float64 // volume per tile per depth unit
}

// DefaultOptions returns the standard water engine settings.
func DefaultOptions() Options {
	return Options{VolumeUnit: 1}
}

// Manager owns the id grid and the flat basin records of one grid. It is
// not safe for concurrent use; callers serialize access.
type Manager struct {
	grid *terrain.Grid
	opts Options

	basins      map[string]*Basin
	idGrid      []string // tile index → basin id, "" for none
	ids         *idAllocator
	highlighted string
	generation  uuid.UUID

	session *Session
}

// NewManager creates a manager with no basins computed yet.
func NewManager(grid *terrain.Grid, opts Options) *Manager {
	if opts.VolumeUnit <= 0 {
		opts.VolumeUnit = DefaultOptions().VolumeUnit
	}
	return &Manager{
		grid:       grid,
		opts:       opts,
		basins:     make(map[string]*Basin),
		idGrid:     make([]string, grid.Width*grid.Height),
		ids:        newIDAllocator(),
		generation: uuid.New(),
	}
}

// Grid returns the depth grid the manager computes on.
func (m *Manager) Grid() *terrain.Grid { return m.grid }

// Options returns the water engine settings.
func (m *Manager) Options() Options { return m.opts }

// MaxDepth returns the deepest depth class of the grid.
func (m *Manager) MaxDepth() int { return m.grid.MaxDepth }

// Generation identifies the current set of basin ids.
func (m *Manager) Generation() uuid.UUID { return m.generation }

// Recompute rebuilds every basin from the whole grid.
func (m *Manager) Recompute() error {
	s, err := m.Begin()
	if err != nil {
		return err
	}
	_, err = s.Step(StepFinish)
	return err
}

// RecomputeTiles rebuilds only the islands touched by the changed tiles.
// Basins outside those islands keep their ids, volume and level.
func (m *Manager) RecomputeTiles(changed []Coord) error {
	s, err := m.BeginTiles(changed)
	if err != nil {
		return err
	}
	_, err = s.Step(StepFinish)
	return err
}

// Count returns the number of basins.
func (m *Manager) Count() int { return len(m.basins) }

// Basin returns the basin with the given id.
func (m *Manager) Basin(id string) (*Basin, bool) {
	b, ok := m.basins[id]
	return b, ok
}

// BasinAt returns the basin owning tile (x, y). Land and out-of-bounds
// tiles have none.
func (m *Manager) BasinAt(x, y int) (*Basin, bool) {
	id := m.idAt(Coord{X: x, Y: y})
	if id == "" {
		return nil, false
	}
	return m.Basin(id)
}

// IDAt returns the id of the basin owning c, or "".
func (m *Manager) IDAt(c Coord) string { return m.idAt(c) }

// Tiles returns the tiles of basin id.
func (m *Manager) Tiles(id string) ([]Coord, bool) {
	b, ok := m.basins[id]
	if !ok {
		return nil, false
	}
	return b.Tiles, true
}

// Basins returns every basin ordered by depth, then id sequence.
func (m *Manager) Basins() []*Basin {
	out := make([]*Basin, 0, len(m.basins))
	for _, b := range m.basins {
		out = append(out, b)
	}
	sort.Slice(out, func(i, j int) bool { return idLess(out[i].ID, out[j].ID) })
	return out
}

// Highlighted returns the highlighted basin id, or "".
func (m *Manager) Highlighted() string { return m.highlighted }

// SetHighlighted highlights a basin. An empty id clears the highlight.
func (m *Manager) SetHighlighted(id string) error {
	if id != "" {
		if _, ok := m.basins[id]; !ok {
			return fmt.Errorf("highlight %q: %w", id, ErrUnknownBasin)
		}
	}
	m.highlighted = id
	return nil
}

func (m *Manager) index(c Coord) int { return c.Y*m.grid.Width + c.X }

func (m *Manager) idAt(c Coord) string {
	if !m.grid.InBounds(c) {
		return ""
	}
	return m.idGrid[m.index(c)]
}

// top follows the outlet chain of id to the basin with no outlet.
func (m *Manager) top(id string) string {
	for steps := 0; steps <= len(m.basins); steps++ {
		b, ok := m.basins[id]
		if !ok {
			return id
		}
		next, ok := b.Outlet()
		if !ok {
			return id
		}
		if _, ok := m.basins[next]; !ok {
			return id
		}
		id = next
	}
	return id
}

// incrementalSeeds collects the basins affected by a set of changed tiles,
// widened to their whole islands, and the seed tiles to rebuild them from.
func (m *Manager) incrementalSeeds(changed []Coord) ([]Coord, map[string]bool) {
	touched := make(map[string]bool)
	for _, c := range changed {
		if id := m.idAt(c); id != "" {
			touched[id] = true
		}
		for _, off := range terrain.NeighborOffsets {
			if id := m.idAt(Coord{X: c.X + off.X, Y: c.Y + off.Y}); id != "" {
				touched[id] = true
			}
		}
	}

	tops := make(map[string]bool, len(touched))
	for id := range touched {
		tops[m.top(id)] = true
	}
	dropped := make(map[string]bool)
	for id := range m.basins {
		if tops[m.top(id)] {
			dropped[id] = true
		}
	}

	ordered := make([]string, 0, len(dropped))
	for id := range dropped {
		ordered = append(ordered, id)
	}
	sort.Slice(ordered, func(i, j int) bool { return idLess(ordered[i], ordered[j]) })

	var seeds []Coord
	for _, id := range ordered {
		seeds = append(seeds, m.basins[id].Tiles...)
	}
	for _, c := range changed {
		if d, ok := m.grid.Depth(c); ok && d > 0 {
			seeds = append(seeds, c)
		}
	}
	return seeds, dropped
}

// commit installs a finished build. A full build replaces everything; an
// incremental one first removes the dropped basins and any basin owning a
// tile the build reached.
func (m *Manager) commit(b *Builder, full bool, dropped map[string]bool) {
	if full {
		m.basins = make(map[string]*Basin)
		clear(m.idGrid)
		m.ids.Reset()
		m.highlighted = ""
		m.generation = uuid.New()
	} else {
		for t := range b.Cursor().Tiles() {
			if id := m.idAt(t); id != "" {
				dropped[id] = true
			}
		}
		lost := 0.0
		for id := range dropped {
			old, ok := m.basins[id]
			if !ok {
				continue
			}
			lost += old.Volume
			for _, t := range old.Tiles {
				if m.idAt(t) == id {
					m.idGrid[m.index(t)] = ""
				}
			}
			delete(m.basins, id)
			if m.highlighted == id {
				m.highlighted = ""
			}
		}
		if lost > 0 {
			slog.Warn("incremental recompute discarded water", "basins", len(dropped), "volume", lost)
		}
	}

	for _, nb := range finalize(b.Forest(), m.ids) {
		m.basins[nb.ID] = nb
		for _, t := range nb.Tiles {
			m.idGrid[m.index(t)] = nb.ID
		}
	}

	slog.Debug("basins computed",
		"full", full,
		"basins", len(m.basins),
		"tiles", b.Forest().TotalTiles(),
		"islands", b.Progress().Islands,
		"generation", m.generation,
	)
}
