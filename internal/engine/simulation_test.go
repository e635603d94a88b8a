package engine

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/talgya/waterworks/internal/basin"
	"github.com/talgya/waterworks/internal/terrain"
)

func TestSimTime(t *testing.T) {
	assert.Equal(t, "Day 1, 0:00", SimTime(0))
	assert.Equal(t, "Day 1, 1:05", SimTime(65))
	assert.Equal(t, "Day 2, 0:00", SimTime(TicksPerSimDay))
}

func TestEngineStepCallbacks(t *testing.T) {
	e := NewEngine()
	var ticks, hours, days int
	e.OnTick = func(uint64) { ticks++ }
	e.OnHour = func(uint64) { hours++ }
	e.OnDay = func(uint64) { days++ }

	for i := 0; i < TicksPerSimDay; i++ {
		e.Step()
	}
	assert.Equal(t, TicksPerSimDay, ticks)
	assert.Equal(t, 24, hours)
	assert.Equal(t, 1, days)
	assert.Equal(t, uint64(TicksPerSimDay), e.Tick)
}

func TestEngineSpeed(t *testing.T) {
	e := NewEngine()
	assert.Equal(t, 1.0, e.Speed())
	e.SetSpeed(0)
	assert.Zero(t, e.Speed())
	assert.False(t, e.Running())
}

func TestSimulationFloodFillRecordsEvent(t *testing.T) {
	s := lakeSim(t)
	require.True(t, s.FloodFill(2, 2, true))
	assert.False(t, s.FloodFill(0, 0, true))

	b, ok := s.BasinAt(2, 2)
	require.True(t, ok)
	assert.Equal(t, 3, b.Level)

	events := s.RecentEvents(5)
	require.Len(t, events, 1)
	assert.Equal(t, "water", events[0].Category)

	s.ClearWater()
	assert.Zero(t, s.CurrentStats().TotalVolume)
}

func TestSimulationCopiesAreDetached(t *testing.T) {
	s := lakeSim(t)
	b, ok := s.BasinAt(2, 2)
	require.True(t, ok)
	b.Volume = 99
	b.Tiles[0] = terrain.Coord{X: 4, Y: 4}

	again, _ := s.Basin(b.ID)
	assert.Zero(t, again.Volume)
	assert.Equal(t, terrain.Coord{X: 2, Y: 2}, again.Tiles[0])
}

func TestSimulationCarveRecomputesIslands(t *testing.T) {
	s := lakeSim(t)
	before := s.CurrentStats().Basins

	changed, err := s.Carve(terrain.Coord{X: 2, Y: 2}, 0, 1)
	require.NoError(t, err)
	assert.Equal(t, []terrain.Coord{{X: 2, Y: 2}}, changed)
	assert.Equal(t, before-1, s.CurrentStats().Basins)

	_, err = s.Carve(terrain.Coord{X: -1, Y: 0}, 1, 1)
	assert.Error(t, err)
}

func TestSimulationStepSession(t *testing.T) {
	s := lakeSim(t)

	p, err := s.Step(basin.StepTile)
	require.NoError(t, err)
	assert.False(t, p.Done)

	_, err = s.Carve(terrain.Coord{X: 2, Y: 2}, 0, 1)
	assert.ErrorIs(t, err, basin.ErrSessionActive)
	assert.ErrorIs(t, s.Recompute(), basin.ErrSessionActive)

	p, err = s.Step(basin.StepFinish)
	require.NoError(t, err)
	assert.True(t, p.Done)
	assert.Equal(t, 2, s.CurrentStats().Basins)
	assert.False(t, s.AbandonStep())

	_, err = s.Step(basin.StepStage)
	require.NoError(t, err)
	assert.True(t, s.AbandonStep())
	require.NoError(t, s.Recompute())
}

func TestRestoreSimulation(t *testing.T) {
	s := lakeSim(t)
	s.FloodFill(1, 1, true)
	_, err := s.AddPump(Pump{Name: "p", At: terrain.Coord{X: 1, Y: 1}, Reservoir: 4})
	require.NoError(t, err)
	s.TickMinute(42)

	state := s.Export()
	g, err := terrain.FromRows(state.MaxDepth, state.Rows)
	require.NoError(t, err)
	pumps := make([]*Pump, len(state.Pumps))
	for i := range state.Pumps {
		pumps[i] = &state.Pumps[i]
	}

	r, err := RestoreSimulation(g, basin.DefaultOptions(), state.Snapshot, pumps, state.Tick)
	require.NoError(t, err)
	assert.Equal(t, state.Snapshot, r.Snapshot())
	assert.Equal(t, uint64(42), r.CurrentTick())

	added, err := r.AddPump(Pump{Name: "q", At: terrain.Coord{X: 2, Y: 2}})
	require.NoError(t, err)
	assert.Equal(t, uint64(2), added.ID)
}
