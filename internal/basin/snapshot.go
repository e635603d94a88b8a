package basin

import (
	"fmt"

	"github.com/google/uuid"
)

// Snapshot is the complete basin state of one generation, as read by the
// persistence layer.
type Snapshot struct {
	Generation  string  `json:"generation"`
	Highlighted string  `json:"highlighted,omitempty"`
	Basins      []Basin `json:"basins"`
}

// Snapshot copies the current basin state.
func (m *Manager) Snapshot() Snapshot {
	s := Snapshot{
		Generation:  m.generation.String(),
		Highlighted: m.highlighted,
	}
	for _, b := range m.Basins() {
		s.Basins = append(s.Basins, *b.Clone())
	}
	return s
}

// Restore repopulates the id grid and basin map directly from a snapshot,
// bypassing the flood fill. The manager is left unchanged on error.
func (m *Manager) Restore(s Snapshot) error {
	if m.session != nil {
		return ErrSessionActive
	}

	basins := make(map[string]*Basin, len(s.Basins))
	idGrid := make([]string, len(m.idGrid))
	ids := newIDAllocator()

	for i := range s.Basins {
		b := s.Basins[i].Clone()
		depth, _, err := ParseID(b.ID)
		if err != nil {
			return fmt.Errorf("restore: %w", err)
		}
		if depth != b.Depth {
			return fmt.Errorf("restore: basin %s records depth %d", b.ID, b.Depth)
		}
		if _, dup := basins[b.ID]; dup {
			return fmt.Errorf("restore: duplicate basin %s", b.ID)
		}
		for _, t := range b.Tiles {
			if !m.grid.InBounds(t) {
				return fmt.Errorf("restore: basin %s tile %s out of bounds", b.ID, t)
			}
			idx := m.index(t)
			if idGrid[idx] != "" {
				return fmt.Errorf("restore: tile %s owned by %s and %s", t, idGrid[idx], b.ID)
			}
			idGrid[idx] = b.ID
		}
		if b.Volume < 0 {
			b.Volume = 0
		}
		basins[b.ID] = b
		ids.Observe(b.ID)
	}

	// Outlets that point outside the snapshot are dropped.
	for _, b := range basins {
		kept := b.Outlets[:0]
		for _, o := range b.Outlets {
			if _, ok := basins[o]; ok {
				kept = append(kept, o)
			}
		}
		b.Outlets = kept
	}

	gen, err := uuid.Parse(s.Generation)
	if err != nil {
		gen = uuid.New()
	}
	highlighted := s.Highlighted
	if _, ok := basins[highlighted]; !ok {
		highlighted = ""
	}

	m.basins = basins
	m.idGrid = idGrid
	m.ids = ids
	m.generation = gen
	m.highlighted = highlighted
	for _, b := range m.basins {
		b.Level = m.levelOf(b)
	}
	return nil
}
