package basin

import (
	"fmt"
	"math"
	"sort"
)

// FloodFill fills or drains starting at tile (x, y).
//
// Filling saturates the basin and every basin whose outlet chain leads into
// it. Draining empties only the shallowest basin on the outlet chain above
// (and including) the target that still holds water. It reports whether a
// basin was found at (x, y).
func (m *Manager) FloodFill(x, y int, fill bool) bool {
	target, ok := m.BasinAt(x, y)
	if !ok {
		return false
	}
	if fill {
		m.fillCatchment(target.ID)
	} else {
		m.drainChain(target.ID)
	}
	m.UpdateWaterLevels()
	return true
}

// fillCatchment sets every basin feeding into id, and id itself, to capacity.
func (m *Manager) fillCatchment(id string) {
	feeders := make(map[string][]string)
	for bid, b := range m.basins {
		if o, ok := b.Outlet(); ok {
			feeders[o] = append(feeders[o], bid)
		}
	}

	seen := make(map[string]bool)
	stack := []string{id}
	for len(stack) > 0 {
		cur := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if seen[cur] {
			continue
		}
		seen[cur] = true
		b := m.basins[cur]
		b.Volume = b.Capacity(m.opts.VolumeUnit, m.grid.MaxDepth)
		stack = append(stack, feeders[cur]...)
	}
}

// drainChain empties the topmost basin on id's outlet chain holding water.
func (m *Manager) drainChain(id string) {
	var topmost *Basin
	seen := make(map[string]bool)
	cur, ok := m.basins[id]
	for ok && !seen[cur.ID] {
		seen[cur.ID] = true
		if cur.Volume > 0 {
			topmost = cur
		}
		next, has := cur.Outlet()
		if !has {
			break
		}
		cur, ok = m.basins[next]
	}
	if topmost != nil {
		topmost.Volume = 0
	}
}

// ClearWater empties every basin.
func (m *Manager) ClearWater() {
	for _, b := range m.basins {
		b.Volume = 0
		b.Level = 0
	}
}

// AdjustVolume adds delta to basin id's volume, clamped at zero, and returns
// the delta actually applied. Callers run UpdateWaterLevels afterwards.
func (m *Manager) AdjustVolume(id string, delta float64) (float64, error) {
	b, ok := m.basins[id]
	if !ok {
		return 0, fmt.Errorf("adjust volume of %q: %w", id, ErrUnknownBasin)
	}
	before := b.Volume
	b.Volume = math.Max(0, b.Volume+delta)
	return b.Volume - before, nil
}

// TotalVolume sums the volume of every basin.
func (m *Manager) TotalVolume() float64 {
	total := 0.0
	for _, b := range m.basins {
		total += b.Volume
	}
	return total
}

// UpdateWaterLevels resolves overflow, then derives each basin's level from
// its volume.
func (m *Manager) UpdateWaterLevels() {
	m.HandleWaterOverflow()
	for _, b := range m.basins {
		b.Level = m.levelOf(b)
	}
}

func (m *Manager) levelOf(b *Basin) int {
	unit := b.UnitCapacity(m.opts.VolumeUnit)
	if unit <= 0 {
		return 0
	}
	level := int(math.Floor(b.Volume / unit))
	return max(0, min(level, m.grid.MaxDepth))
}

// HandleWaterOverflow clamps every basin to its capacity and passes the
// excess to its outlets. Basins are visited deepest first, and an outlet is
// always shallower than its basin, so one pass settles every cascade.
func (m *Manager) HandleWaterOverflow() {
	order := make([]*Basin, 0, len(m.basins))
	for _, b := range m.basins {
		order = append(order, b)
	}
	sort.Slice(order, func(i, j int) bool {
		if order[i].Depth != order[j].Depth {
			return order[i].Depth > order[j].Depth
		}
		return idLess(order[i].ID, order[j].ID)
	})

	for _, b := range order {
		if b.Volume < 0 {
			b.Volume = 0
		}
		capacity := b.Capacity(m.opts.VolumeUnit, m.grid.MaxDepth)
		excess := b.Volume - capacity
		if excess <= 0 {
			continue
		}
		b.Volume = capacity

		outlets := make([]*Basin, 0, len(b.Outlets))
		for _, id := range b.Outlets {
			if o, ok := m.basins[id]; ok && o != b {
				outlets = append(outlets, o)
			}
		}
		if len(outlets) == 0 {
			// Spills off the map.
			continue
		}
		share := excess / float64(len(outlets))
		for _, o := range outlets {
			o.Volume = math.Max(0, o.Volume+share)
		}
	}
}
