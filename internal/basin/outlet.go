package basin

// materialized reports whether a node becomes a basin record. Chain nodes
// created for an intermediate depth that never received a tile do not.
func materialized(f *Forest, i int) bool {
	return i != RootNode && f.Nodes[i].Own > 0
}

// resolveOutlet returns the node a basin drains into: its nearest
// materialized ancestor, or -1 when it sits directly under the root.
func resolveOutlet(f *Forest, i int) int {
	for p := f.Nodes[i].Parent; p > RootNode; p = f.Nodes[p].Parent {
		if f.Nodes[p].Depth > 0 && materialized(f, p) {
			return p
		}
	}
	return -1
}

// finalize walks the forest depth-first, assigns ids and produces the flat
// basin records. Parents are always named before their children.
func finalize(f *Forest, ids *idAllocator) []*Basin {
	children := f.Children()
	var out []*Basin

	stack := []int{RootNode}
	for len(stack) > 0 {
		i := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		// Push in reverse so children are visited in creation order.
		kids := children[i]
		for k := len(kids) - 1; k >= 0; k-- {
			stack = append(stack, kids[k])
		}

		if !materialized(f, i) {
			continue
		}
		n := f.Node(i)
		n.ID = ids.Next(n.Depth)

		b := &Basin{
			ID:    n.ID,
			Depth: n.Depth,
			Tiles: append(make([]Coord, 0, len(n.Tiles)), n.Tiles...),
		}
		if o := resolveOutlet(f, i); o >= 0 {
			b.Outlets = []string{f.Nodes[o].ID}
		}
		out = append(out, b)
	}
	return out
}
