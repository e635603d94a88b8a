package basin

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/talgya/waterworks/internal/terrain"
)

func TestDepthQueueServesDeepestFirstFIFO(t *testing.T) {
	q := NewDepthQueue(3)
	q.Add(terrain.Coord{X: 0, Y: 0}, 1, NoParent)
	q.Add(terrain.Coord{X: 1, Y: 0}, 3, NoParent)
	q.Add(terrain.Coord{X: 2, Y: 0}, 1, NoParent)
	q.Add(terrain.Coord{X: 3, Y: 0}, 3, NoParent)
	q.Add(terrain.Coord{X: 4, Y: 0}, 2, NoParent)
	require.Equal(t, 5, q.Len())

	var got []int
	for !q.IsEmpty() {
		e, ok := q.Shift()
		require.True(t, ok)
		got = append(got, e.Tile.X)
	}
	assert.Equal(t, []int{1, 3, 4, 0, 2}, got)

	_, ok := q.Shift()
	assert.False(t, ok)
}

func TestDepthQueueKeepsDeepestParent(t *testing.T) {
	q := NewDepthQueue(3)
	c := terrain.Coord{X: 5, Y: 5}
	q.Add(c, 2, Candidate{Node: 1, Depth: 1})
	q.Add(c, 2, Candidate{Node: 4, Depth: 3})
	q.Add(c, 2, Candidate{Node: 2, Depth: 2})
	assert.Equal(t, 1, q.Len())

	e, ok := q.Shift()
	require.True(t, ok)
	assert.Equal(t, Candidate{Node: 4, Depth: 3}, e.Parent)
}

func TestDepthQueuePeekAndMaxPointer(t *testing.T) {
	q := NewDepthQueue(2)
	q.Add(terrain.Coord{X: 0, Y: 0}, 2, NoParent)
	q.Add(terrain.Coord{X: 1, Y: 0}, 1, NoParent)

	e, ok := q.Peek()
	require.True(t, ok)
	assert.Equal(t, 2, e.Depth)

	q.Shift()
	// A deeper add after the max pointer moved down is still served first.
	q.Add(terrain.Coord{X: 2, Y: 0}, 2, NoParent)
	e, _ = q.Shift()
	assert.Equal(t, 2, e.Tile.X)
	e, _ = q.Shift()
	assert.Equal(t, 1, e.Tile.X)
}

func TestDepthQueueGrowsAndClears(t *testing.T) {
	q := NewDepthQueue(1)
	q.Add(terrain.Coord{X: 0, Y: 0}, 4, NoParent)
	q.Resume(terrain.Coord{X: 1, Y: 0}, 1, 3)
	assert.Equal(t, 2, q.Len())

	e, _ := q.Shift()
	assert.Equal(t, 4, e.Depth)

	q.Clear()
	assert.True(t, q.IsEmpty())
	_, ok := q.Peek()
	assert.False(t, ok)
}
