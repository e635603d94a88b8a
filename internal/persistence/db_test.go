package persistence

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/talgya/waterworks/internal/basin"
	"github.com/talgya/waterworks/internal/engine"
	"github.com/talgya/waterworks/internal/terrain"
)

func openTemp(t *testing.T) *DB {
	t.Helper()
	db, err := Open(filepath.Join(t.TempDir(), "world.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func sampleSim(t *testing.T) *engine.Simulation {
	t.Helper()
	cfg := terrain.SmallTestConfig()
	sim, err := engine.NewSimulation(terrain.Generate(cfg), basin.DefaultOptions())
	require.NoError(t, err)

	b := sim.BasinList()
	require.NotEmpty(t, b)
	tile := b[len(b)-1].Tiles[0]
	require.True(t, sim.FloodFill(tile.X, tile.Y, true))
	require.NoError(t, sim.SetHighlighted(b[0].ID))

	_, err = sim.AddPump(engine.Pump{Name: "spring", At: tile, Rate: 1, Reservoir: 20, Enabled: true})
	require.NoError(t, err)
	sim.TickMinute(17)
	return sim
}

func TestSaveAndLoadRoundTrip(t *testing.T) {
	db := openTemp(t)
	assert.False(t, db.HasWorldState())

	sim := sampleSim(t)
	state := sim.Export()
	require.NoError(t, db.SaveWorldState(sim))
	assert.True(t, db.HasWorldState())

	g, err := db.LoadGrid()
	require.NoError(t, err)
	assert.Equal(t, state.Rows, g.Rows())
	assert.Equal(t, state.MaxDepth, g.MaxDepth)

	snap, err := db.LoadSnapshot()
	require.NoError(t, err)
	assert.Equal(t, state.Snapshot, snap)

	pumps, err := db.LoadPumps()
	require.NoError(t, err)
	require.Len(t, pumps, 1)
	assert.Equal(t, state.Pumps[0], *pumps[0])

	loaded, err := db.LoadSimulation(basin.DefaultOptions())
	require.NoError(t, err)
	assert.Equal(t, uint64(17), loaded.CurrentTick())
	assert.Equal(t, state.Snapshot, loaded.Snapshot())
	assert.Equal(t, state.Events, loaded.Export().Events)
}

func TestSaveReplacesPreviousState(t *testing.T) {
	db := openTemp(t)
	sim := sampleSim(t)
	require.NoError(t, db.SaveWorldState(sim))

	sim.ClearWater()
	_, err := sim.Carve(terrain.Coord{X: 0, Y: 0}, 2, 0)
	require.NoError(t, err)
	changed, err := sim.Carve(terrain.Coord{X: 0, Y: 0}, 2, 2)
	require.NoError(t, err)
	require.NotEmpty(t, changed)
	require.NoError(t, db.SaveWorldState(sim))

	snap, err := db.LoadSnapshot()
	require.NoError(t, err)
	assert.Equal(t, sim.Snapshot(), snap)

	events, err := db.RecentEvents(1)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, "terrain", events[0].Category)
}

func TestSavedAtUsesStrftimeLayout(t *testing.T) {
	db := openTemp(t)
	now := time.Date(2026, 3, 4, 5, 6, 7, 0, time.UTC)
	require.NoError(t, db.SaveState(sampleSim(t).Export(), now))

	v, err := db.GetMeta("saved_at")
	require.NoError(t, err)
	assert.Equal(t, "2026-03-04 05:06:07", v)

	tick, err := db.LastTick()
	require.NoError(t, err)
	assert.Equal(t, uint64(17), tick)
}

func TestMetaRoundTrip(t *testing.T) {
	db := openTemp(t)
	require.NoError(t, db.SaveMeta("k", "v1"))
	require.NoError(t, db.SaveMeta("k", "v2"))
	v, err := db.GetMeta("k")
	require.NoError(t, err)
	assert.Equal(t, "v2", v)

	_, err = db.GetMeta("missing")
	assert.Error(t, err)
}

func TestLoadGridWithoutSaveFails(t *testing.T) {
	db := openTemp(t)
	_, err := db.LoadGrid()
	assert.Error(t, err)
}
