package basin

import "github.com/talgya/waterworks/internal/terrain"

// Candidate is a provisional parent for a queued tile: the node of the
// frontier tile that discovered it.
type Candidate struct {
	Node  int
	Depth int
}

// NoParent marks an island seed.
var NoParent = Candidate{Node: -1, Depth: -1}

// Entry is one pending tile in a DepthQueue.
type Entry struct {
	Tile   terrain.Coord
	Depth  int
	Parent Candidate

	// Resume entries re-expand a tile that is already attached to Parent.Node.
	Resume bool
}

type slot struct {
	depth int
	index int
}

// DepthQueue is a priority queue bucketed by integer depth. Shift always
// serves the deepest non-empty bucket, FIFO within a bucket.
type DepthQueue struct {
	buckets [][]Entry
	heads   []int
	pending map[terrain.Coord]slot
	max     int
	size    int
}

// NewDepthQueue creates a queue with buckets for depths 0..maxDepth.
func NewDepthQueue(maxDepth int) *DepthQueue {
	if maxDepth < 0 {
		maxDepth = 0
	}
	return &DepthQueue{
		buckets: make([][]Entry, maxDepth+1),
		heads:   make([]int, maxDepth+1),
		pending: make(map[terrain.Coord]slot),
		max:     -1,
	}
}

// Add queues a tile. If the tile is already pending at the same depth, only
// the deeper of the two parent candidates is retained.
func (q *DepthQueue) Add(c terrain.Coord, depth int, parent Candidate) {
	if s, ok := q.pending[c]; ok && s.depth == depth {
		e := &q.buckets[s.depth][s.index]
		if parent.Depth > e.Parent.Depth {
			e.Parent = parent
		}
		return
	}
	idx := q.push(Entry{Tile: c, Depth: depth, Parent: parent})
	q.pending[c] = slot{depth: depth, index: idx}
}

// Resume queues an already attached tile for further expansion.
func (q *DepthQueue) Resume(c terrain.Coord, depth, node int) {
	q.push(Entry{Tile: c, Depth: depth, Parent: Candidate{Node: node, Depth: depth}, Resume: true})
}

func (q *DepthQueue) push(e Entry) int {
	for e.Depth >= len(q.buckets) {
		q.buckets = append(q.buckets, nil)
		q.heads = append(q.heads, 0)
	}
	q.buckets[e.Depth] = append(q.buckets[e.Depth], e)
	if e.Depth > q.max {
		q.max = e.Depth
	}
	q.size++
	return len(q.buckets[e.Depth]) - 1
}

// settle moves the max pointer down past drained buckets, recycling them.
func (q *DepthQueue) settle() {
	for q.max >= 0 && q.heads[q.max] == len(q.buckets[q.max]) {
		q.buckets[q.max] = q.buckets[q.max][:0]
		q.heads[q.max] = 0
		q.max--
	}
}

// Shift removes and returns the oldest entry of the deepest non-empty bucket.
func (q *DepthQueue) Shift() (Entry, bool) {
	q.settle()
	if q.max < 0 {
		return Entry{}, false
	}
	e := q.buckets[q.max][q.heads[q.max]]
	q.heads[q.max]++
	q.size--
	if !e.Resume {
		if s, ok := q.pending[e.Tile]; ok && s.depth == e.Depth {
			delete(q.pending, e.Tile)
		}
	}
	return e, true
}

// Peek returns the entry Shift would return, without removing it.
func (q *DepthQueue) Peek() (Entry, bool) {
	q.settle()
	if q.max < 0 {
		return Entry{}, false
	}
	return q.buckets[q.max][q.heads[q.max]], true
}

// Len returns the number of pending entries.
func (q *DepthQueue) Len() int { return q.size }

// IsEmpty reports whether no entries are pending.
func (q *DepthQueue) IsEmpty() bool { return q.size == 0 }

// Clear drops every pending entry.
func (q *DepthQueue) Clear() {
	for i := range q.buckets {
		q.buckets[i] = q.buckets[i][:0]
		q.heads[i] = 0
	}
	clear(q.pending)
	q.max = -1
	q.size = 0
}
