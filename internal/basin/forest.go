package basin

import "github.com/talgya/waterworks/internal/terrain"

// RootNode is the index of the virtual depth-0 root in every Forest.
const RootNode = 0

// Node is one basin in the depth tree. Parent is an index into the owning
// Forest; children are never stored on the node.
type Node struct {
	Depth       int
	Parent      int
	Own         int // tiles at exactly Depth attached to this node
	Descendants int // tiles owned by all strict descendants
	Tiles       []terrain.Coord
	ID          string // assigned at finalization

	closed bool
}

// Forest is an arena of basin nodes rooted at a virtual depth-0 node.
type Forest struct {
	Nodes []Node
}

// NewForest creates a forest holding only the virtual root.
func NewForest() *Forest {
	return &Forest{Nodes: []Node{{Depth: 0, Parent: -1}}}
}

// Len returns the number of nodes, root included.
func (f *Forest) Len() int { return len(f.Nodes) }

// Node returns the node at index i.
func (f *Forest) Node(i int) *Node { return &f.Nodes[i] }

// AddChild appends a fresh node under parent and returns its index.
func (f *Forest) AddChild(parent, depth int) int {
	f.Nodes = append(f.Nodes, Node{Depth: depth, Parent: parent})
	return len(f.Nodes) - 1
}

// Children builds the parent→children index. Children appear in creation order.
func (f *Forest) Children() [][]int {
	idx := make([][]int, len(f.Nodes))
	for i := 1; i < len(f.Nodes); i++ {
		p := f.Nodes[i].Parent
		idx[p] = append(idx[p], i)
	}
	return idx
}

// Ancestor walks from i towards the root and returns the first node whose
// depth is <= depth.
func (f *Forest) Ancestor(i, depth int) int {
	for i != RootNode && f.Nodes[i].Depth > depth {
		i = f.Nodes[i].Parent
	}
	return i
}

// TotalTiles returns the tiles attached anywhere in the forest.
func (f *Forest) TotalTiles() int {
	n := 0
	for i := range f.Nodes {
		n += f.Nodes[i].Own
	}
	return n
}
