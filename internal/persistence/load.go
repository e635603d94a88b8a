package persistence

import (
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/talgya/waterworks/internal/basin"
	"github.com/talgya/waterworks/internal/engine"
	"github.com/talgya/waterworks/internal/terrain"
)

type tileRow struct {
	X     int `db:"x"`
	Y     int `db:"y"`
	Depth int `db:"depth"`
}

type basinRow struct {
	ID          string  `db:"id"`
	Depth       int     `db:"depth"`
	Volume      float64 `db:"volume"`
	Level       int     `db:"level"`
	OutletsJSON string  `db:"outlets_json"`
}

type basinTileRow struct {
	BasinID string `db:"basin_id"`
	X       int    `db:"x"`
	Y       int    `db:"y"`
}

type pumpRow struct {
	ID         uint64  `db:"id"`
	Name       string  `db:"name"`
	X          int     `db:"x"`
	Y          int     `db:"y"`
	Rate       float64 `db:"rate"`
	MaxPerTick float64 `db:"max_per_tick"`
	Reservoir  float64 `db:"reservoir"`
	Capacity   float64 `db:"capacity"`
	Enabled    int     `db:"enabled"`
}

// HasWorldState reports whether a previous save exists.
func (db *DB) HasWorldState() bool {
	var n int
	if err := db.conn.Get(&n, "SELECT COUNT(*) FROM grid"); err != nil {
		return false
	}
	return n > 0
}

func (db *DB) metaInt(key string) (int, error) {
	v, err := db.GetMeta(key)
	if err != nil {
		return 0, fmt.Errorf("meta %s: %w", key, err)
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("meta %s: %w", key, err)
	}
	return n, nil
}

// LastTick returns the tick of the last save.
func (db *DB) LastTick() (uint64, error) {
	v, err := db.GetMeta("last_tick")
	if err != nil {
		return 0, err
	}
	return strconv.ParseUint(v, 10, 64)
}

// LoadGrid rebuilds the saved depth grid.
func (db *DB) LoadGrid() (*terrain.Grid, error) {
	width, err := db.metaInt("width")
	if err != nil {
		return nil, err
	}
	height, err := db.metaInt("height")
	if err != nil {
		return nil, err
	}
	maxDepth, err := db.metaInt("max_depth")
	if err != nil {
		return nil, err
	}

	var tiles []tileRow
	if err := db.conn.Select(&tiles, "SELECT x, y, depth FROM grid"); err != nil {
		return nil, fmt.Errorf("select grid: %w", err)
	}
	if len(tiles) != width*height {
		return nil, fmt.Errorf("grid has %d tiles, want %dx%d", len(tiles), width, height)
	}

	g := terrain.NewGrid(width, height, maxDepth)
	for _, t := range tiles {
		c := terrain.Coord{X: t.X, Y: t.Y}
		if !g.InBounds(c) {
			return nil, fmt.Errorf("tile %s outside %dx%d grid", c, width, height)
		}
		g.Set(c, t.Depth)
	}
	return g, nil
}

// LoadSnapshot reads the saved basin state for basin.Manager.Restore.
func (db *DB) LoadSnapshot() (basin.Snapshot, error) {
	var snap basin.Snapshot
	var err error
	if snap.Generation, err = db.GetMeta("generation"); err != nil {
		return snap, fmt.Errorf("meta generation: %w", err)
	}
	snap.Highlighted, _ = db.GetMeta("highlighted")

	var rows []basinRow
	if err := db.conn.Select(&rows,
		"SELECT id, depth, volume, level, outlets_json FROM basins ORDER BY seq"); err != nil {
		return snap, fmt.Errorf("select basins: %w", err)
	}

	var tiles []basinTileRow
	if err := db.conn.Select(&tiles,
		"SELECT basin_id, x, y FROM basin_tiles ORDER BY basin_id, seq"); err != nil {
		return snap, fmt.Errorf("select basin tiles: %w", err)
	}
	byBasin := make(map[string][]terrain.Coord)
	for _, t := range tiles {
		byBasin[t.BasinID] = append(byBasin[t.BasinID], terrain.Coord{X: t.X, Y: t.Y})
	}

	for _, r := range rows {
		b := basin.Basin{
			ID:     r.ID,
			Depth:  r.Depth,
			Tiles:  byBasin[r.ID],
			Volume: r.Volume,
			Level:  r.Level,
		}
		if err := json.Unmarshal([]byte(r.OutletsJSON), &b.Outlets); err != nil {
			return snap, fmt.Errorf("basin %s outlets: %w", r.ID, err)
		}
		snap.Basins = append(snap.Basins, b)
	}
	return snap, nil
}

// LoadPumps reads every saved pump.
func (db *DB) LoadPumps() ([]*engine.Pump, error) {
	var rows []pumpRow
	if err := db.conn.Select(&rows, `SELECT id, name, x, y, rate, max_per_tick,
		reservoir, capacity, enabled FROM pumps ORDER BY id`); err != nil {
		return nil, fmt.Errorf("select pumps: %w", err)
	}

	pumps := make([]*engine.Pump, 0, len(rows))
	for _, r := range rows {
		pumps = append(pumps, &engine.Pump{
			ID:         r.ID,
			Name:       r.Name,
			At:         terrain.Coord{X: r.X, Y: r.Y},
			Rate:       r.Rate,
			MaxPerTick: r.MaxPerTick,
			Reservoir:  r.Reservoir,
			Capacity:   r.Capacity,
			Enabled:    r.Enabled != 0,
		})
	}
	return pumps, nil
}

// LoadSimulation rebuilds a simulation from the last save.
func (db *DB) LoadSimulation(opts basin.Options) (*engine.Simulation, error) {
	g, err := db.LoadGrid()
	if err != nil {
		return nil, fmt.Errorf("load grid: %w", err)
	}
	snap, err := db.LoadSnapshot()
	if err != nil {
		return nil, fmt.Errorf("load basins: %w", err)
	}
	pumps, err := db.LoadPumps()
	if err != nil {
		return nil, fmt.Errorf("load pumps: %w", err)
	}
	tick, err := db.LastTick()
	if err != nil {
		return nil, fmt.Errorf("load tick: %w", err)
	}

	sim, err := engine.RestoreSimulation(g, opts, snap, pumps, tick)
	if err != nil {
		return nil, err
	}

	events, err := db.RecentEvents(200)
	if err != nil {
		return nil, fmt.Errorf("load events: %w", err)
	}
	for i := len(events) - 1; i >= 0; i-- {
		sim.Events = append(sim.Events, events[i])
	}
	return sim, nil
}
