package basin

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/talgya/waterworks/internal/terrain"
)

func basinShapes(m *Manager) map[string][]terrain.Coord {
	out := make(map[string][]terrain.Coord)
	for _, b := range m.Basins() {
		out[b.ID] = b.Tiles
	}
	return out
}

func TestSteppedSessionsMatchRecompute(t *testing.T) {
	cfg := terrain.SmallTestConfig()
	cfg.Width, cfg.Height = 24, 18
	g := terrain.Generate(cfg)

	want := basinShapes(computed(t, g))

	for _, gran := range []Granularity{StepTile, StepStage, StepFinish} {
		m := NewManager(g, DefaultOptions())
		s, err := m.Begin()
		require.NoError(t, err)

		steps := 0
		for !s.Done() {
			_, err := s.Step(gran)
			require.NoError(t, err)
			steps++
			require.Less(t, steps, 100000)
		}
		assert.Equal(t, want, basinShapes(m), "granularity %d", gran)
		assert.Nil(t, m.ActiveSession())
	}
}

func TestStepTileSuspendsAfterEachTile(t *testing.T) {
	m := NewManager(ringGrid(t), DefaultOptions())
	s, err := m.Begin()
	require.NoError(t, err)

	p, err := s.Step(StepTile)
	require.NoError(t, err)
	assert.Equal(t, 1, p.Tiles)
	assert.Equal(t, "flooding", p.Phase)
	assert.Zero(t, m.Count(), "nothing is committed mid-session")

	p, err = s.Step(StepTile)
	require.NoError(t, err)
	assert.Equal(t, 2, p.Tiles)
	assert.Equal(t, 2, p.Depth, "the deeper centre is attached next")

	p, err = s.Step(StepFinish)
	require.NoError(t, err)
	assert.True(t, p.Done)
	assert.Equal(t, 9, p.Tiles)
	assert.Equal(t, 2, m.Count())
}

func TestSessionBlocksOtherComputations(t *testing.T) {
	m := NewManager(ringGrid(t), DefaultOptions())
	s, err := m.Begin()
	require.NoError(t, err)

	assert.ErrorIs(t, m.Recompute(), ErrSessionActive)
	assert.ErrorIs(t, m.RecomputeTiles(nil), ErrSessionActive)
	assert.ErrorIs(t, m.Restore(Snapshot{}), ErrSessionActive)
	_, err = m.Begin()
	assert.ErrorIs(t, err, ErrSessionActive)

	s.Abandon()
	assert.True(t, s.Done())
	assert.Zero(t, m.Count())
	require.NoError(t, m.Recompute())
	assert.Equal(t, 2, m.Count())
}

func TestRecomputeTilesKeepsUntouchedIslands(t *testing.T) {
	g := mustGrid(t, 3, [][]int{
		{1, 1, 0, 0, 2, 2},
		{1, 1, 0, 0, 2, 2},
	})
	m := computed(t, g)
	require.Equal(t, 2, m.Count())

	right, _ := m.BasinAt(4, 0)
	require.True(t, m.FloodFill(4, 0, true))
	rightID, rightVolume := right.ID, right.Volume
	gen := m.Generation()

	left, _ := m.BasinAt(0, 0)
	oldLeft := left.ID

	g.Set(terrain.Coord{X: 0, Y: 0}, 2)
	require.NoError(t, m.RecomputeTiles([]terrain.Coord{{X: 0, Y: 0}}))

	still, ok := m.Basin(rightID)
	require.True(t, ok)
	assert.Equal(t, rightVolume, still.Volume)
	assert.Equal(t, gen, m.Generation())

	_, ok = m.Basin(oldLeft)
	assert.False(t, ok)

	deep, _ := m.BasinAt(0, 0)
	shallow, _ := m.BasinAt(1, 1)
	assert.Equal(t, "2#b", deep.ID)
	assert.Equal(t, "1#b", shallow.ID)
	assert.Equal(t, []string{shallow.ID}, deep.Outlets)
	assert.Equal(t, 3, shallow.TileCount())
	checkBasinInvariants(t, m)
}

func TestRecomputeTilesHandlesSplitAndMerge(t *testing.T) {
	g := mustGrid(t, 2, [][]int{
		{1, 1, 1, 0, 1},
	})
	m := computed(t, g)
	require.Equal(t, 2, m.Count())

	// Split the left island in two.
	g.Set(terrain.Coord{X: 1, Y: 0}, 0)
	require.NoError(t, m.RecomputeTiles([]terrain.Coord{{X: 1, Y: 0}}))
	assert.Equal(t, 3, m.Count())
	checkBasinInvariants(t, m)

	// Merge everything into one row.
	g.Set(terrain.Coord{X: 1, Y: 0}, 1)
	g.Set(terrain.Coord{X: 3, Y: 0}, 1)
	require.NoError(t, m.RecomputeTiles([]terrain.Coord{{X: 1, Y: 0}, {X: 3, Y: 0}}))
	assert.Equal(t, 1, m.Count())
	checkBasinInvariants(t, m)
}

func TestRecomputeResetsGeneration(t *testing.T) {
	m := computed(t, ringGrid(t))
	gen := m.Generation()
	require.NoError(t, m.SetHighlighted("1#a"))
	require.NoError(t, m.Recompute())
	assert.NotEqual(t, gen, m.Generation())
	assert.Empty(t, m.Highlighted())
}

func TestHighlight(t *testing.T) {
	m := computed(t, ringGrid(t))
	require.NoError(t, m.SetHighlighted("2#a"))
	assert.Equal(t, "2#a", m.Highlighted())

	assert.ErrorIs(t, m.SetHighlighted("5#a"), ErrUnknownBasin)
	assert.Equal(t, "2#a", m.Highlighted())

	require.NoError(t, m.SetHighlighted(""))
	assert.Empty(t, m.Highlighted())
}

func TestTilesLookup(t *testing.T) {
	m := computed(t, ringGrid(t))
	tiles, ok := m.Tiles("2#a")
	require.True(t, ok)
	assert.Equal(t, []terrain.Coord{{X: 2, Y: 2}}, tiles)

	_, ok = m.Tiles("nope")
	assert.False(t, ok)
}

func TestSnapshotRestoreRoundTrip(t *testing.T) {
	g := ringGrid(t)
	m := computed(t, g)
	m.FloodFill(2, 2, true)
	require.NoError(t, m.SetHighlighted("2#a"))
	snap := m.Snapshot()

	restored := NewManager(g, DefaultOptions())
	require.NoError(t, restored.Restore(snap))
	assert.Equal(t, snap, restored.Snapshot())
	assert.Equal(t, m.Generation(), restored.Generation())

	b, ok := restored.BasinAt(2, 2)
	require.True(t, ok)
	assert.Equal(t, 3, b.Level)

	// New ids never collide with restored ones.
	assert.Equal(t, "1#b", restored.ids.Next(1))
}

func TestRestoreRejectsBadSnapshots(t *testing.T) {
	g := ringGrid(t)
	tile := terrain.Coord{X: 1, Y: 1}

	tests := []struct {
		name    string
		snap    Snapshot
		wantErr string
	}{
		{
			name:    "bad id",
			snap:    Snapshot{Basins: []Basin{{ID: "one", Depth: 1}}},
			wantErr: "missing '#'",
		},
		{
			name:    "depth mismatch",
			snap:    Snapshot{Basins: []Basin{{ID: "2#a", Depth: 1}}},
			wantErr: "records depth",
		},
		{
			name: "double owned tile",
			snap: Snapshot{Basins: []Basin{
				{ID: "1#a", Depth: 1, Tiles: []terrain.Coord{tile}},
				{ID: "1#b", Depth: 1, Tiles: []terrain.Coord{tile}},
			}},
			wantErr: "owned by",
		},
		{
			name:    "out of bounds",
			snap:    Snapshot{Basins: []Basin{{ID: "1#a", Depth: 1, Tiles: []terrain.Coord{{X: 9, Y: 9}}}}},
			wantErr: "out of bounds",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := computed(t, g)
			before := m.Snapshot()
			err := m.Restore(tt.snap)
			assert.ErrorContains(t, err, tt.wantErr)
			assert.Equal(t, before, m.Snapshot())
		})
	}
}

func TestRestoreDropsDanglingOutlets(t *testing.T) {
	m := NewManager(ringGrid(t), DefaultOptions())
	require.NoError(t, m.Restore(Snapshot{Basins: []Basin{
		{ID: "2#a", Depth: 2, Tiles: []terrain.Coord{{X: 2, Y: 2}}, Outlets: []string{"1#x"}},
	}}))
	b, ok := m.Basin("2#a")
	require.True(t, ok)
	assert.Empty(t, b.Outlets)
}

func TestIDSequences(t *testing.T) {
	assert.Equal(t, "1#a", FormatID(1, 0))
	assert.Equal(t, "1#z", FormatID(1, 25))
	assert.Equal(t, "1#aa", FormatID(1, 26))
	assert.Equal(t, "3#ab", FormatID(3, 27))

	for _, seq := range []int{0, 1, 25, 26, 27, 701, 702, 18277} {
		d, got, err := ParseID(FormatID(4, seq))
		require.NoError(t, err)
		assert.Equal(t, 4, d)
		assert.Equal(t, seq, got)
	}

	assert.True(t, idLess("1#z", "1#aa"))
	assert.True(t, idLess("1#aa", "2#a"))
	_, _, err := ParseID("1#A")
	assert.Error(t, err)
}
