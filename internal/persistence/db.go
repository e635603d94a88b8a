// Package persistence provides SQLite-based world state storage.
package persistence

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/ncruces/go-strftime"
	_ "modernc.org/sqlite"

	"github.com/talgya/waterworks/internal/engine"
)

// DB wraps a SQLite connection for world state persistence.
type DB struct {
	conn *sqlx.DB
}

// Open opens or creates a SQLite database at the given path.
func Open(path string) (*DB, error) {
	conn, err := sqlx.Open("sqlite", path+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}

	db := &DB{conn: conn}
	if err := db.migrate(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}

	return db, nil
}

// Close closes the database connection.
func (db *DB) Close() error {
	return db.conn.Close()
}

func (db *DB) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS grid (
		x INTEGER NOT NULL,
		y INTEGER NOT NULL,
		depth INTEGER NOT NULL,
		PRIMARY KEY (x, y)
	);

	CREATE TABLE IF NOT EXISTS basins (
		id TEXT PRIMARY KEY,
		seq INTEGER NOT NULL,
		depth INTEGER NOT NULL,
		volume REAL NOT NULL,
		level INTEGER NOT NULL,
		outlets_json TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS basin_tiles (
		basin_id TEXT NOT NULL,
		seq INTEGER NOT NULL,
		x INTEGER NOT NULL,
		y INTEGER NOT NULL,
		PRIMARY KEY (basin_id, seq)
	);

	CREATE TABLE IF NOT EXISTS pumps (
		id INTEGER PRIMARY KEY,
		name TEXT NOT NULL,
		x INTEGER NOT NULL,
		y INTEGER NOT NULL,
		rate REAL NOT NULL,
		max_per_tick REAL NOT NULL,
		reservoir REAL NOT NULL,
		capacity REAL NOT NULL,
		enabled INTEGER NOT NULL
	);

	CREATE TABLE IF NOT EXISTS events (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		tick INTEGER NOT NULL,
		description TEXT NOT NULL,
		category TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS world_meta (
		key TEXT PRIMARY KEY,
		value TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_events_tick ON events(tick);
	`
	_, err := db.conn.Exec(schema)
	return err
}

func saveGrid(tx *sqlx.Tx, state engine.WorldState) error {
	if _, err := tx.Exec("DELETE FROM grid"); err != nil {
		return err
	}

	stmt, err := tx.Preparex("INSERT INTO grid (x, y, depth) VALUES (?, ?, ?)")
	if err != nil {
		return err
	}
	defer stmt.Close()

	for y, row := range state.Rows {
		for x, d := range row {
			if _, err := stmt.Exec(x, y, d); err != nil {
				return fmt.Errorf("insert tile %d,%d: %w", x, y, err)
			}
		}
	}
	return nil
}

func saveBasins(tx *sqlx.Tx, state engine.WorldState) error {
	if _, err := tx.Exec("DELETE FROM basins"); err != nil {
		return err
	}
	if _, err := tx.Exec("DELETE FROM basin_tiles"); err != nil {
		return err
	}

	basinStmt, err := tx.Preparex(`INSERT INTO basins
		(id, seq, depth, volume, level, outlets_json)
		VALUES (?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return err
	}
	defer basinStmt.Close()

	tileStmt, err := tx.Preparex("INSERT INTO basin_tiles (basin_id, seq, x, y) VALUES (?, ?, ?, ?)")
	if err != nil {
		return err
	}
	defer tileStmt.Close()

	for i, b := range state.Snapshot.Basins {
		outlets, _ := json.Marshal(b.Outlets)
		if _, err := basinStmt.Exec(b.ID, i, b.Depth, b.Volume, b.Level, string(outlets)); err != nil {
			return fmt.Errorf("insert basin %s: %w", b.ID, err)
		}
		for j, c := range b.Tiles {
			if _, err := tileStmt.Exec(b.ID, j, c.X, c.Y); err != nil {
				return fmt.Errorf("insert tile of basin %s: %w", b.ID, err)
			}
		}
	}
	return nil
}

func savePumps(tx *sqlx.Tx, pumps []engine.Pump) error {
	if _, err := tx.Exec("DELETE FROM pumps"); err != nil {
		return err
	}

	for _, p := range pumps {
		enabled := 0
		if p.Enabled {
			enabled = 1
		}
		_, err := tx.Exec(`INSERT INTO pumps
			(id, name, x, y, rate, max_per_tick, reservoir, capacity, enabled)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			p.ID, p.Name, p.At.X, p.At.Y, p.Rate, p.MaxPerTick,
			p.Reservoir, p.Capacity, enabled,
		)
		if err != nil {
			return fmt.Errorf("insert pump %d: %w", p.ID, err)
		}
	}
	return nil
}

// saveEvents replaces the stored events with the simulation's event log.
func saveEvents(tx *sqlx.Tx, events []engine.Event) error {
	if _, err := tx.Exec("DELETE FROM events"); err != nil {
		return err
	}
	for _, e := range events {
		_, err := tx.Exec(
			"INSERT INTO events (tick, description, category) VALUES (?, ?, ?)",
			e.Tick, e.Description, e.Category,
		)
		if err != nil {
			return err
		}
	}
	return nil
}

func saveMeta(tx *sqlx.Tx, key, value string) error {
	_, err := tx.Exec(
		"INSERT OR REPLACE INTO world_meta (key, value) VALUES (?, ?)",
		key, value,
	)
	return err
}

// SaveMeta stores a key-value pair in world metadata.
func (db *DB) SaveMeta(key, value string) error {
	_, err := db.conn.Exec(
		"INSERT OR REPLACE INTO world_meta (key, value) VALUES (?, ?)",
		key, value,
	)
	return err
}

// GetMeta retrieves a metadata value.
func (db *DB) GetMeta(key string) (string, error) {
	var value string
	err := db.conn.Get(&value, "SELECT value FROM world_meta WHERE key = ?", key)
	return value, err
}

// SaveWorldState performs a full save of all world state in one transaction.
func (db *DB) SaveWorldState(sim *engine.Simulation) error {
	return db.SaveState(sim.Export(), time.Now())
}

// SaveState writes an exported world state, stamping saved_at with now.
func (db *DB) SaveState(state engine.WorldState, now time.Time) error {
	slog.Info("saving world state", "basins", len(state.Snapshot.Basins), "pumps", len(state.Pumps))

	tx, err := db.conn.Beginx()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if err := saveGrid(tx, state); err != nil {
		return fmt.Errorf("save grid: %w", err)
	}
	if err := saveBasins(tx, state); err != nil {
		return fmt.Errorf("save basins: %w", err)
	}
	if err := savePumps(tx, state.Pumps); err != nil {
		return fmt.Errorf("save pumps: %w", err)
	}
	if err := saveEvents(tx, state.Events); err != nil {
		return fmt.Errorf("save events: %w", err)
	}

	width := 0
	if len(state.Rows) > 0 {
		width = len(state.Rows[0])
	}
	meta := map[string]string{
		"last_tick":   strconv.FormatUint(state.Tick, 10),
		"generation":  state.Snapshot.Generation,
		"highlighted": state.Snapshot.Highlighted,
		"width":       strconv.Itoa(width),
		"height":      strconv.Itoa(len(state.Rows)),
		"max_depth":   strconv.Itoa(state.MaxDepth),
		"saved_at":    strftime.Format("%Y-%m-%d %H:%M:%S", now.UTC()),
	}
	for k, v := range meta {
		if err := saveMeta(tx, k, v); err != nil {
			return fmt.Errorf("save meta %s: %w", k, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return err
	}
	slog.Info("world state saved", "saved_at", meta["saved_at"])
	return nil
}

// RecentEvents returns the most recent N events, newest first.
func (db *DB) RecentEvents(limit int) ([]engine.Event, error) {
	var events []engine.Event
	err := db.conn.Select(&events,
		"SELECT tick, description, category FROM events ORDER BY id DESC LIMIT ?",
		limit,
	)
	return events, err
}
