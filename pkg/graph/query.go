package graph

import "iter"

// Matcher decides whether an element belongs to a query result.
type Matcher interface {
	Match(id string, attrs Attributes) bool
}

// Predicate adapts a function to a [Matcher].
type Predicate func(id string, attrs Attributes) bool

// Match calls p.
func (p Predicate) Match(id string, attrs Attributes) bool { return p(id, attrs) }

type matchAll struct{}

func (matchAll) Match(string, Attributes) bool { return true }

// All matches every element.
var All Matcher = matchAll{}

func orAll(m Matcher) Matcher {
	if m == nil {
		return All
	}
	return m
}

// Nodes returns a lazy sequence of nodes matching m, in insertion order.
// A nil matcher matches every node. The sequence is restartable: every
// range over it re-evaluates m against the current graph. Mutating the
// graph while ranging is a caller error.
func (g *Graph) Nodes(m Matcher) iter.Seq[Node] {
	m = orAll(m)
	return func(yield func(Node) bool) {
		for _, rec := range g.nodeOrder {
			if rec.removed || !m.Match(rec.node.ID, rec.node.Attrs) {
				continue
			}
			if !yield(rec.node) {
				return
			}
		}
	}
}

// Edges returns a lazy sequence of edges matching m, in insertion order.
// A nil matcher matches every edge.
func (g *Graph) Edges(m Matcher) iter.Seq[Edge] {
	m = orAll(m)
	return func(yield func(Edge) bool) {
		for _, rec := range g.edgeOrder {
			if rec.removed || !m.Match(rec.edge.ID, rec.edge.Attrs) {
				continue
			}
			if !yield(rec.edge) {
				return
			}
		}
	}
}

// Query returns a lazy sequence of elements matching a selector string.
// Nodes come before edges. A selector with a group prefix ("node[...]" or
// "edge[...]") restricts the result to that kind.
func (g *Graph) Query(selector string) (iter.Seq[Element], error) {
	sel, err := ParseSelector(selector)
	if err != nil {
		return nil, err
	}
	return g.Select(sel), nil
}

// Select is Query for an already parsed selector.
func (g *Graph) Select(sel Selector) iter.Seq[Element] {
	return func(yield func(Element) bool) {
		if sel.Group == "" || sel.Group == KindNode {
			for n := range g.Nodes(sel) {
				if !yield(Element{Kind: KindNode, Node: n}) {
					return
				}
			}
		}
		if sel.Group == "" || sel.Group == KindEdge {
			for e := range g.Edges(sel) {
				if !yield(Element{Kind: KindEdge, Edge: e}) {
					return
				}
			}
		}
	}
}

// Count consumes seq and returns its length.
func Count[T any](seq iter.Seq[T]) int {
	n := 0
	for range seq {
		n++
	}
	return n
}
