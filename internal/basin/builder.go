package basin

import (
	"fmt"

	"github.com/talgya/waterworks/internal/terrain"
)

// Phase describes where a Builder is in its traversal.
type Phase uint8

const (
	PhaseSeeding  Phase = iota // between islands
	PhaseFlooding              // draining an island's queue
	PhaseDone                  // every seed consumed
)

// String returns the phase name used in progress reports.
func (p Phase) String() string {
	switch p {
	case PhaseSeeding:
		return "seeding"
	case PhaseFlooding:
		return "flooding"
	case PhaseDone:
		return "done"
	default:
		return "unknown"
	}
}

// Granularity selects where a stepped build suspends.
type Granularity uint8

const (
	StepTile   Granularity = iota // after every attached tile
	StepStage                     // after each depth run or island
	StepFinish                    // never; drain the remainder
)

// ParseGranularity parses "tile", "stage" or "finish".
func ParseGranularity(s string) (Granularity, error) {
	switch s {
	case "tile":
		return StepTile, nil
	case "stage":
		return StepStage, nil
	case "finish", "":
		return StepFinish, nil
	default:
		return 0, fmt.Errorf("unknown step granularity %q", s)
	}
}

// Progress is a snapshot of a build after a Step.
type Progress struct {
	Phase   string        `json:"phase"`
	Tiles   int           `json:"tiles"`
	Islands int           `json:"islands"`
	Nodes   int           `json:"nodes"`
	Pending int           `json:"pending"`
	Depth   int           `json:"depth"`
	Last    terrain.Coord `json:"last"`
	Done    bool          `json:"done"`
}

// Builder floods a depth grid into a basin forest. It is an explicit
// resumable state object: Step can suspend after any tile and later pick up
// exactly where it stopped.
type Builder struct {
	grid    *terrain.Grid
	seeds   []terrain.Coord
	next    int
	queue   *DepthQueue
	claimed map[terrain.Coord]bool
	forest  *Forest
	cursor  *Cursor
	phase   Phase

	tiles   int
	islands int
	depth   int
	last    terrain.Coord
}

// NewBuilder prepares a build over the given seed tiles. Each seed not
// already reached from an earlier one starts a new island.
func NewBuilder(grid *terrain.Grid, seeds []terrain.Coord) *Builder {
	f := NewForest()
	return &Builder{
		grid:    grid,
		seeds:   seeds,
		queue:   NewDepthQueue(grid.MaxDepth),
		claimed: make(map[terrain.Coord]bool),
		forest:  f,
		cursor:  NewCursor(f),
		phase:   PhaseSeeding,
	}
}

// Forest returns the (possibly partial) forest.
func (b *Builder) Forest() *Forest { return b.forest }

// Cursor returns the cursor holding the tile→node mapping.
func (b *Builder) Cursor() *Cursor { return b.cursor }

// Done reports whether every seed has been consumed.
func (b *Builder) Done() bool { return b.phase == PhaseDone }

// Progress reports the current state without advancing.
func (b *Builder) Progress() Progress {
	return Progress{
		Phase:   b.phase.String(),
		Tiles:   b.tiles,
		Islands: b.islands,
		Nodes:   b.forest.Len() - 1,
		Pending: b.queue.Len(),
		Depth:   b.depth,
		Last:    b.last,
		Done:    b.phase == PhaseDone,
	}
}

// Run drains the build to completion.
func (b *Builder) Run() (*Forest, error) {
	if _, err := b.Step(StepFinish); err != nil {
		return nil, err
	}
	return b.forest, nil
}

// Step advances the build until the next suspension point for g.
func (b *Builder) Step(g Granularity) (Progress, error) {
	for b.phase != PhaseDone {
		if b.queue.IsEmpty() {
			if b.phase == PhaseFlooding {
				b.cursor.Finalize()
				b.phase = PhaseSeeding
				if g == StepStage {
					return b.Progress(), nil
				}
			}
			if !b.nextIsland() {
				b.phase = PhaseDone
			}
			continue
		}

		e, _ := b.queue.Shift()
		attached, err := b.process(e)
		if err != nil {
			return b.Progress(), err
		}
		if !attached {
			continue
		}

		switch g {
		case StepTile:
			return b.Progress(), nil
		case StepStage:
			if nx, ok := b.queue.Peek(); ok && nx.Depth != e.Depth {
				return b.Progress(), nil
			}
		}
	}
	return b.Progress(), nil
}

// nextIsland seeds the queue with the next unreached seed tile.
func (b *Builder) nextIsland() bool {
	for b.next < len(b.seeds) {
		s := b.seeds[b.next]
		b.next++
		if b.claimed[s] {
			continue
		}
		d, ok := b.grid.Depth(s)
		if !ok || d == 0 {
			continue
		}
		b.claimed[s] = true
		b.queue.Add(s, d, NoParent)
		b.phase = PhaseFlooding
		b.islands++
		return true
	}
	return false
}

// process handles one queue entry and reports whether a tile was attached.
func (b *Builder) process(e Entry) (bool, error) {
	if e.Resume {
		if err := b.cursor.Enter(e.Parent.Node); err != nil {
			return false, fmt.Errorf("resume %s: %w", e.Tile, err)
		}
		b.expand(e.Tile, e.Depth, e.Parent.Node)
		return false, nil
	}

	d, ok := b.grid.Depth(e.Tile)
	if !ok || d == 0 || d != e.Depth {
		// Stale: the grid changed since the tile was queued.
		delete(b.claimed, e.Tile)
		return false, nil
	}

	node, err := b.cursor.Attach(e.Parent, d)
	if err != nil {
		return false, fmt.Errorf("attach %s at depth %d: %w", e.Tile, d, err)
	}
	b.cursor.AddTile(e.Tile)
	b.tiles++
	b.depth = d
	b.last = e.Tile

	b.expand(e.Tile, d, node)
	return true, nil
}

// expand queues the unclaimed neighbours of t. Discovering a deeper
// neighbour suspends the expansion so that the deeper pocket is flooded
// before the rest of this depth.
func (b *Builder) expand(t terrain.Coord, depth, node int) {
	for _, n := range b.grid.Neighbors(t) {
		if b.claimed[n] {
			continue
		}
		nd, _ := b.grid.Depth(n)
		b.claimed[n] = true
		b.queue.Add(n, nd, Candidate{Node: node, Depth: depth})
		if nd > depth {
			b.queue.Resume(t, depth, node)
			return
		}
	}
}
