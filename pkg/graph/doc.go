// Package graph provides the node/edge store consumed by the layout engine.
//
// # Overview
//
// A [Graph] holds nodes and edges keyed by id, each carrying a scalar
// [Attributes] map. Nodes additionally carry a position, a locked flag and
// an optional compound parent. The store maintains these invariants at all
// times:
//
//   - Every edge's source and target exist in the node set
//   - Every parent reference exists and parent chains are acyclic
//   - Node and edge ids are unique across both kinds and never change
//   - Cached degrees match the incident edges
//
// # Mutation
//
// [Graph.AddNodes], [Graph.AddEdges] and [Graph.Add] are atomic batches:
// the whole batch is validated first and rejected with an
// errors.IntegrityError naming the offending element, leaving the graph
// untouched. [Graph.RemoveNode] cascades to incident edges.
//
// While a layout run holds the graph ([Graph.Freeze]), every mutation
// fails fast with errors.ConcurrentMutationError.
//
// # Queries
//
// Lookups by id are O(1). Attribute queries return lazy, restartable
// sequences:
//
//	for n := range g.Nodes(graph.MustParseSelector("[myLabel='Even']")) {
//	    fmt.Println(n.ID)
//	}
//
//	heavy, _ := g.Query("edge[weight>100]")
//	fmt.Println(graph.Count(heavy))
//
// See [Selector] for the supported clause syntax.
package graph
