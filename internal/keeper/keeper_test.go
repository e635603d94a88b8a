package keeper

import (
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/talgya/waterworks/internal/api"
	"github.com/talgya/waterworks/internal/basin"
	"github.com/talgya/waterworks/internal/engine"
	"github.com/talgya/waterworks/internal/terrain"
)

const adminKey = "keeper-test"

func startAPI(t *testing.T) (*engine.Simulation, *httptest.Server) {
	t.Helper()
	g, err := terrain.FromRows(3, [][]int{
		{0, 0, 0, 0, 0},
		{0, 1, 1, 1, 0},
		{0, 1, 2, 1, 0},
		{0, 1, 1, 1, 0},
		{0, 0, 0, 0, 0},
	})
	require.NoError(t, err)
	sim, err := engine.NewSimulation(g, basin.DefaultOptions())
	require.NoError(t, err)

	srv := &api.Server{Sim: sim, Eng: engine.NewEngine(), AdminKey: adminKey}
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)
	return sim, ts
}

func TestObserve(t *testing.T) {
	sim, ts := startAPI(t)
	sim.FloodFill(2, 2, true)

	obs, err := NewObserver(ts.URL).Observe()
	require.NoError(t, err)
	assert.Equal(t, "Waterworks", obs.Status.Name)
	assert.Equal(t, 3, obs.Status.MaxDepth)
	require.Len(t, obs.Basins, 2)
	assert.Equal(t, 1.0, obs.Basins[1].Fill())

	tiles, err := NewObserver(ts.URL).Tiles("2#a")
	require.NoError(t, err)
	assert.Equal(t, []terrain.Coord{{X: 2, Y: 2}}, tiles)

	_, err = NewObserver(ts.URL).Tiles("9#z")
	assert.ErrorContains(t, err, "404")
}

func TestTriage(t *testing.T) {
	obs := &Observation{Basins: []BasinInfo{
		{ID: "1#a", Depth: 1, Volume: 6, Capacity: 24, Level: 0},
		{ID: "2#a", Depth: 2, Volume: 3, Capacity: 3, Level: 3, Outlets: []string{"1#a"}},
		{ID: "2#b", Depth: 2, Volume: 4, Capacity: 6, Level: 2},
	}}

	h := Triage(obs, 2)
	assert.Equal(t, "CRITICAL", h.CrisisLevel)
	assert.Equal(t, 1, h.Brimming)
	assert.InDelta(t, 13.0/33.0, h.FillRatio, 1e-9)
	require.Len(t, h.AtRisk, 2)
	assert.Equal(t, "2#a", h.AtRisk[0].ID)

	obs.Basins[1].Volume, obs.Basins[1].Level = 2.5, 2
	assert.Equal(t, "WARNING", Triage(obs, 2).CrisisLevel)
	assert.Equal(t, "HEALTHY", Triage(obs, 3).CrisisLevel)
}

func TestDecide(t *testing.T) {
	h := &Health{CrisisLevel: "WARNING", AtRisk: []BasinInfo{{ID: "1#a"}, {ID: "1#b"}, {ID: "2#a"}}}

	d := Decide(h, Policy{Threshold: 2, MaxDrains: 2}, nil)
	assert.Equal(t, "drain", d.Action)
	assert.Equal(t, []string{"1#a", "1#b"}, d.Targets)

	d = Decide(h, Policy{Threshold: 2}, func(id string) bool { return id != "2#a" })
	assert.Equal(t, []string{"2#a"}, d.Targets)

	d = Decide(&Health{}, DefaultPolicy(), nil)
	assert.Equal(t, "none", d.Action)
	assert.Empty(t, d.Targets)
}

func TestRunCycleDrainsFullBasins(t *testing.T) {
	sim, ts := startAPI(t)
	require.True(t, sim.FloodFill(1, 1, true))

	mem := LoadMemory(filepath.Join(t.TempDir(), "keeper.json"))
	k := New(ts.URL, adminKey, DefaultPolicy(), mem)

	rec, err := k.RunCycle()
	require.NoError(t, err)
	assert.Equal(t, "drain", rec.Action)
	assert.Equal(t, "CRITICAL", rec.CrisisLevel)
	assert.Equal(t, []string{"1#a", "2#a"}, rec.Drained)
	assert.Zero(t, sim.CurrentStats().TotalVolume)

	rec, err = k.RunCycle()
	require.NoError(t, err)
	assert.Equal(t, "none", rec.Action)

	reloaded := LoadMemory(mem.path)
	assert.Len(t, reloaded.Records, 2)
}

func TestRunCycleCooldown(t *testing.T) {
	sim, ts := startAPI(t)
	require.True(t, sim.FloodFill(2, 2, true))

	policy := DefaultPolicy()
	policy.Cooldown = 1
	k := New(ts.URL, adminKey, policy, nil)

	rec, err := k.RunCycle()
	require.NoError(t, err)
	assert.Equal(t, []string{"2#a"}, rec.Drained)

	require.True(t, sim.FloodFill(2, 2, true))
	rec, err = k.RunCycle()
	require.NoError(t, err)
	assert.Equal(t, "none", rec.Action, "drained last cycle")

	// A new generation invalidates the remembered ids.
	require.NoError(t, sim.Recompute())
	require.True(t, sim.FloodFill(2, 2, true))
	rec, err = k.RunCycle()
	require.NoError(t, err)
	assert.Equal(t, "drain", rec.Action)
}

func TestDrainRequiresAdminKey(t *testing.T) {
	_, ts := startAPI(t)
	_, err := NewActor(ts.URL, "wrong").Drain(1, 1)
	assert.ErrorContains(t, err, "401")

	res, err := NewActor(ts.URL, adminKey).Drain(1, 1)
	require.NoError(t, err)
	assert.Equal(t, "1#a", res.ID)
}

func TestObserveReportsServerErrors(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "down", http.StatusServiceUnavailable)
	}))
	defer ts.Close()

	_, err := NewObserver(ts.URL).Observe()
	assert.ErrorContains(t, err, "503")
}

func TestMemoryRing(t *testing.T) {
	m := &CycleMemory{}
	for i := 0; i < maxRecords+5; i++ {
		m.Record(CycleRecord{Tick: uint64(i), Generation: "g", Action: "none"})
	}
	assert.Len(t, m.Records, maxRecords)
	assert.Equal(t, uint64(5), m.Records[0].Tick)

	m.Record(CycleRecord{Tick: 99, Generation: "g", Action: "drain", Drained: []string{"1#a"}})
	assert.True(t, m.RecentlyDrained("1#a", "g", 1))
	assert.False(t, m.RecentlyDrained("1#a", "h", 1))
	assert.Contains(t, m.Summary(), "drained=1#a")
}
