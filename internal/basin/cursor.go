package basin

import (
	"errors"
	"fmt"

	"github.com/talgya/waterworks/internal/terrain"
)

// ErrMalformedTree means the depth grid violated the rule that a parent is
// strictly shallower than its child, so no valid attachment exists.
var ErrMalformedTree = errors.New("malformed basin tree")

// Cursor navigates the forest during a build. The open nodes always form a
// path from the root to Current; a node leaves that path exactly once, and
// that is when its tile totals propagate to its parent.
type Cursor struct {
	forest   *Forest
	current  int
	tileNode map[terrain.Coord]int
}

// NewCursor creates a cursor positioned at the root of f.
func NewCursor(f *Forest) *Cursor {
	return &Cursor{
		forest:   f,
		current:  RootNode,
		tileNode: make(map[terrain.Coord]int),
	}
}

// Current returns the index of the deepest open node.
func (c *Cursor) Current() int { return c.current }

// NodeOf returns the node a tile was attached to.
func (c *Cursor) NodeOf(t terrain.Coord) (int, bool) {
	n, ok := c.tileNode[t]
	return n, ok
}

// Tiles returns the tile→node mapping recorded so far.
func (c *Cursor) Tiles() map[terrain.Coord]int { return c.tileNode }

// AddTile attaches t to the current node.
func (c *Cursor) AddTile(t terrain.Coord) {
	n := c.forest.Node(c.current)
	n.Own++
	n.Tiles = append(n.Tiles, t)
	c.tileNode[t] = c.current
}

// MoveUp closes the current node, folding its totals into its parent, and
// makes the parent current. It is a no-op at the root.
func (c *Cursor) MoveUp() {
	if c.current == RootNode {
		return
	}
	n := c.forest.Node(c.current)
	n.closed = true
	p := c.forest.Node(n.Parent)
	p.Descendants += n.Own + n.Descendants
	c.current = n.Parent
}

// Finalize closes every node still open, leaving the cursor at the root.
func (c *Cursor) Finalize() {
	for c.current != RootNode {
		c.MoveUp()
	}
}

// Enter makes an open node current, closing the open nodes below it.
func (c *Cursor) Enter(node int) error {
	if node < 0 || node >= c.forest.Len() {
		return fmt.Errorf("%w: node %d does not exist", ErrMalformedTree, node)
	}
	if c.forest.Node(node).closed {
		return fmt.Errorf("%w: node %d already closed", ErrMalformedTree, node)
	}
	for c.current != node {
		if c.current == RootNode {
			return fmt.Errorf("%w: node %d is not on the open path", ErrMalformedTree, node)
		}
		c.MoveUp()
	}
	return nil
}

// descend creates a chain of fresh nodes under the current node, one per
// depth, ending at depth.
func (c *Cursor) descend(depth int) {
	for d := c.forest.Node(c.current).Depth + 1; d <= depth; d++ {
		c.current = c.forest.AddChild(c.current, d)
	}
}

// Attach positions the cursor on the node a tile of the given depth belongs
// to, given the candidate parent that discovered it, and returns that node.
func (c *Cursor) Attach(parent Candidate, depth int) (int, error) {
	if depth <= 0 {
		return 0, fmt.Errorf("%w: cannot attach a tile at depth %d", ErrMalformedTree, depth)
	}

	// Island seed: a full root-to-depth chain.
	if parent.Node < 0 {
		c.Finalize()
		c.descend(depth)
		return c.current, nil
	}
	if parent.Node >= c.forest.Len() {
		return 0, fmt.Errorf("%w: parent node %d does not exist", ErrMalformedTree, parent.Node)
	}

	pd := c.forest.Node(parent.Node).Depth
	switch {
	case depth == pd:
		if err := c.Enter(parent.Node); err != nil {
			return 0, err
		}
	case depth > pd:
		if err := c.Enter(parent.Node); err != nil {
			return 0, err
		}
		c.descend(depth)
	default:
		anc := c.forest.Ancestor(parent.Node, depth)
		if err := c.Enter(anc); err != nil {
			return 0, err
		}
		if c.forest.Node(anc).Depth < depth {
			// Re-surfacing: no ancestor at exactly this depth.
			c.current = c.forest.AddChild(anc, depth)
		}
	}
	return c.current, nil
}
