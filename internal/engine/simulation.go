// Simulation ties the basin manager, the grid and the pumps together and
// serializes every access to them.
package engine

import (
	"fmt"
	"log/slog"
	"sync"

	"github.com/dustin/go-humanize"

	"github.com/talgya/waterworks/internal/basin"
	"github.com/talgya/waterworks/internal/terrain"
)

// maxEvents bounds the in-memory event log.
const maxEvents = 200

// Simulation holds the complete world state. The mutex guards every field;
// the tick loop and the HTTP handlers both go through the locked methods.
type Simulation struct {
	mu sync.Mutex

	Grid     *terrain.Grid
	Basins   *basin.Manager
	Pumps    []*Pump
	Events   []Event // Recent events, oldest first
	LastTick uint64  // Most recent tick processed

	session    *basin.Session
	nextPumpID uint64

	// Statistics refreshed every sim-hour.
	Stats SimStats
}

// Event is a notable occurrence in the world.
type Event struct {
	Tick        uint64 `json:"tick"`
	Description string `json:"description"`
	Category    string `json:"category"` // "water", "terrain", "pump", "basin"
}

// SimStats tracks aggregate world statistics.
type SimStats struct {
	Basins      int     `json:"basins"`
	WaterTiles  int     `json:"water_tiles"`
	TotalVolume float64 `json:"total_volume"`
	Reservoirs  float64 `json:"reservoirs"`
	FullBasins  int     `json:"full_basins"`
}

// NewSimulation computes the basins of grid and returns a ready simulation.
func NewSimulation(grid *terrain.Grid, opts basin.Options) (*Simulation, error) {
	m := basin.NewManager(grid, opts)
	if err := m.Recompute(); err != nil {
		return nil, fmt.Errorf("compute basins: %w", err)
	}
	s := &Simulation{Grid: grid, Basins: m}
	s.updateStats()
	return s, nil
}

// RestoreSimulation rebuilds a simulation from persisted state without
// recomputing the basin forest.
func RestoreSimulation(grid *terrain.Grid, opts basin.Options, snap basin.Snapshot, pumps []*Pump, lastTick uint64) (*Simulation, error) {
	m := basin.NewManager(grid, opts)
	if err := m.Restore(snap); err != nil {
		return nil, fmt.Errorf("restore basins: %w", err)
	}
	s := &Simulation{Grid: grid, Basins: m, Pumps: pumps, LastTick: lastTick}
	for _, p := range pumps {
		s.nextPumpID = max(s.nextPumpID, p.ID)
	}
	s.updateStats()
	return s, nil
}

// CurrentTick returns the most recently processed tick number.
func (s *Simulation) CurrentTick() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.LastTick
}

// TickMinute runs the pumps and settles water levels.
func (s *Simulation) TickMinute(tick uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.LastTick = tick
	s.tickPumps()
}

// TickHour refreshes statistics and logs a summary.
func (s *Simulation) TickHour(tick uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.updateStats()
	slog.Info("hourly report",
		"time", SimTime(tick),
		"basins", humanize.Comma(int64(s.Stats.Basins)),
		"volume", humanize.FormatFloat("#,###.##", s.Stats.TotalVolume),
		"reservoirs", humanize.FormatFloat("#,###.##", s.Stats.Reservoirs),
		"full", s.Stats.FullBasins,
	)
}

// tickPumps applies every enabled pump to the basin under it, then runs the
// leveling pass once. Water is conserved between reservoirs and basins.
func (s *Simulation) tickPumps() {
	moved := false
	for _, p := range s.Pumps {
		b, ok := s.Basins.BasinAt(p.At.X, p.At.Y)
		if !ok {
			continue
		}
		delta := p.Request(b.Volume)
		if delta == 0 {
			continue
		}
		applied, err := s.Basins.AdjustVolume(b.ID, delta)
		if err != nil {
			slog.Warn("pump transfer failed", "pump", p.ID, "basin", b.ID, "error", err)
			continue
		}
		p.Settle(applied)
		moved = true
	}
	if moved {
		s.Basins.UpdateWaterLevels()
	}
}

// Snapshot returns the persisted form of the basins.
func (s *Simulation) Snapshot() basin.Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.Basins.Snapshot()
}

// CurrentStats recomputes and returns the aggregate statistics.
func (s *Simulation) CurrentStats() SimStats {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.updateStats()
	return s.Stats
}

func (s *Simulation) updateStats() {
	st := SimStats{Basins: s.Basins.Count(), WaterTiles: len(s.Grid.WaterTiles())}
	unit, maxDepth := s.Basins.Options().VolumeUnit, s.Grid.MaxDepth
	for _, b := range s.Basins.Basins() {
		st.TotalVolume += b.Volume
		if b.Volume >= b.Capacity(unit, maxDepth) {
			st.FullBasins++
		}
	}
	for _, p := range s.Pumps {
		st.Reservoirs += p.Reservoir
	}
	s.Stats = st
}

// FloodFill fills or drains the basin at (x, y).
func (s *Simulation) FloodFill(x, y int, fill bool) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.Basins.FloodFill(x, y, fill) {
		return false
	}
	verb := "drained"
	if fill {
		verb = "filled"
	}
	s.addEvent(fmt.Sprintf("basin at %d,%d %s", x, y, verb), "water")
	return true
}

// ClearWater empties every basin.
func (s *Simulation) ClearWater() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Basins.ClearWater()
	s.addEvent("all basins cleared", "water")
}

// Level runs the leveling pass.
func (s *Simulation) Level() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Basins.UpdateWaterLevels()
}

// Recompute rebuilds every basin from scratch.
func (s *Simulation) Recompute() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.Basins.Recompute(); err != nil {
		return err
	}
	s.addEvent(fmt.Sprintf("basins recomputed: %d basins", s.Basins.Count()), "basin")
	return nil
}

// Carve sets every tile within radius of center to depth and recomputes
// the affected islands. It returns the tiles that changed.
func (s *Simulation) Carve(center terrain.Coord, radius, depth int) ([]terrain.Coord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Basins.ActiveSession() != nil {
		return nil, basin.ErrSessionActive
	}
	if !s.Grid.InBounds(center) {
		return nil, fmt.Errorf("carve: %s is out of bounds", center)
	}
	changed := terrain.Carve(s.Grid, center, radius, depth)
	if len(changed) == 0 {
		return nil, nil
	}
	if err := s.Basins.RecomputeTiles(changed); err != nil {
		return changed, fmt.Errorf("recompute after carve: %w", err)
	}
	s.addEvent(fmt.Sprintf("terrain carved at %s to depth %d (%d tiles)", center, depth, len(changed)), "terrain")
	return changed, nil
}

// Step advances the stepped recompute, starting one if none is running.
func (s *Simulation) Step(g basin.Granularity) (basin.Progress, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.session == nil {
		sess, err := s.Basins.Begin()
		if err != nil {
			return basin.Progress{}, err
		}
		s.session = sess
	}
	p, err := s.session.Step(g)
	if err != nil || s.session.Done() {
		s.session = nil
	}
	if err == nil && p.Done {
		s.addEvent(fmt.Sprintf("stepped recompute finished: %d basins", s.Basins.Count()), "basin")
	}
	return p, err
}

// AbandonStep drops the stepped recompute in progress, if any.
func (s *Simulation) AbandonStep() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.session == nil {
		return false
	}
	s.session.Abandon()
	s.session = nil
	return true
}

// Generation returns the id of the current basin generation.
func (s *Simulation) Generation() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.Basins.Generation().String()
}

// Highlighted returns the highlighted basin id.
func (s *Simulation) Highlighted() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.Basins.Highlighted()
}

// SetHighlighted highlights basin id, or clears the highlight for "".
func (s *Simulation) SetHighlighted(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.Basins.SetHighlighted(id)
}

// BasinAt returns a copy of the basin owning (x, y).
func (s *Simulation) BasinAt(x, y int) (basin.Basin, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.Basins.BasinAt(x, y)
	if !ok {
		return basin.Basin{}, false
	}
	return *b.Clone(), true
}

// Basin returns a copy of basin id.
func (s *Simulation) Basin(id string) (basin.Basin, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.Basins.Basin(id)
	if !ok {
		return basin.Basin{}, false
	}
	return *b.Clone(), true
}

// BasinList returns copies of every basin in id order.
func (s *Simulation) BasinList() []basin.Basin {
	s.mu.Lock()
	defer s.mu.Unlock()
	all := s.Basins.Basins()
	out := make([]basin.Basin, len(all))
	for i, b := range all {
		out[i] = *b.Clone()
	}
	return out
}

// Depth returns the grid value at c.
func (s *Simulation) Depth(c terrain.Coord) (int, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.Grid.Depth(c)
}

// AddPump registers a pump and assigns it an id.
func (s *Simulation) AddPump(p Pump) (Pump, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.Grid.InBounds(p.At) {
		return Pump{}, fmt.Errorf("pump at %s is out of bounds", p.At)
	}
	if p.MaxPerTick < 0 || p.Capacity < 0 || p.Reservoir < 0 {
		return Pump{}, fmt.Errorf("pump %q: negative limits", p.Name)
	}
	s.nextPumpID++
	p.ID = s.nextPumpID
	s.Pumps = append(s.Pumps, &p)
	s.addEvent(fmt.Sprintf("pump %q installed at %s", p.Name, p.At), "pump")
	return p, nil
}

// SetPumpRate changes the rate of pump id and enables or disables it.
func (s *Simulation) SetPumpRate(id uint64, rate float64, enabled bool) (Pump, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, p := range s.Pumps {
		if p.ID == id {
			p.Rate = rate
			p.Enabled = enabled
			return *p, nil
		}
	}
	return Pump{}, fmt.Errorf("pump %d not found", id)
}

// PumpList returns copies of every pump.
func (s *Simulation) PumpList() []Pump {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Pump, len(s.Pumps))
	for i, p := range s.Pumps {
		out[i] = *p
	}
	return out
}

// RecentEvents returns up to n of the newest events, newest first.
func (s *Simulation) RecentEvents(n int) []Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	if n <= 0 || n > len(s.Events) {
		n = len(s.Events)
	}
	out := make([]Event, 0, n)
	for i := len(s.Events) - 1; i >= 0 && len(out) < n; i-- {
		out = append(out, s.Events[i])
	}
	return out
}

// WorldState is a consistent copy of everything persistence stores.
type WorldState struct {
	Tick     uint64
	Rows     [][]int
	MaxDepth int
	Snapshot basin.Snapshot
	Pumps    []Pump
	Events   []Event
}

// Export copies the world state under the lock.
func (s *Simulation) Export() WorldState {
	s.mu.Lock()
	defer s.mu.Unlock()
	pumps := make([]Pump, len(s.Pumps))
	for i, p := range s.Pumps {
		pumps[i] = *p
	}
	return WorldState{
		Tick:     s.LastTick,
		Rows:     s.Grid.Rows(),
		MaxDepth: s.Grid.MaxDepth,
		Snapshot: s.Basins.Snapshot(),
		Pumps:    pumps,
		Events:   append([]Event(nil), s.Events...),
	}
}

func (s *Simulation) addEvent(desc, category string) {
	s.Events = append(s.Events, Event{Tick: s.LastTick, Description: desc, Category: category})
	if len(s.Events) > maxEvents {
		s.Events = s.Events[len(s.Events)-maxEvents:]
	}
}
