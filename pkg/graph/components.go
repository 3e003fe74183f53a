package graph

import "github.com/gammazero/deque"

// Components partitions the nodes into connected components. Two nodes are
// connected when an edge joins them or one is the compound parent of the
// other. Components are ordered by their first node in insertion order,
// and nodes within a component are in breadth-first order from it.
func (g *Graph) Components() [][]string {
	visited := make(map[string]bool, len(g.nodes))
	var out [][]string
	var queue deque.Deque[string]

	for _, rec := range g.nodeOrder {
		if rec.removed || visited[rec.node.ID] {
			continue
		}
		var comp []string
		visited[rec.node.ID] = true
		queue.PushBack(rec.node.ID)
		for queue.Len() > 0 {
			id := queue.PopFront()
			comp = append(comp, id)
			for _, next := range g.linked(id) {
				if !visited[next] {
					visited[next] = true
					queue.PushBack(next)
				}
			}
		}
		out = append(out, comp)
	}
	return out
}

// linked returns neighbors plus compound parent and children, sorted for a
// deterministic traversal.
func (g *Graph) linked(id string) []string {
	out := g.Neighbors(id)
	rec := g.nodes[id]
	if rec.node.Parent != "" {
		out = append(out, rec.node.Parent)
	}
	out = append(out, g.Children(id)...)
	return out
}

// Depth returns the nesting depth of a node: 0 for top-level nodes, 1 for
// their children and so on. Returns -1 if the node does not exist.
func (g *Graph) Depth(id string) int {
	rec, ok := g.nodes[id]
	if !ok {
		return -1
	}
	d := 0
	for p := rec.node.Parent; p != ""; p = g.nodes[p].node.Parent {
		d++
	}
	return d
}
