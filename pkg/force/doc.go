// Package force evaluates the net force on every node of a graph snapshot.
//
// # Overview
//
// The model is a pure function of a [Snapshot] (the frozen graph with its
// per-element constants resolved) and the current positions. It combines:
//
//   - Repulsion between every pair of non-adjacent simulated nodes, of
//     magnitude sqrt(rep_i*rep_j)/d². Above [Params.BarnesHutThreshold]
//     nodes it is approximated with a Barnes-Hut quadtree, after which the
//     adjacent-pair terms are subtracted exactly.
//   - An overlap push for pairs closer than [Params.NodeOverlap].
//   - A Hooke spring per edge, divided by the larger endpoint degree and
//     applied equally and oppositely to both ends. Edges whose
//     endpoints have different parents stretch by the nesting factor.
//   - Linear gravity toward [Params.Center], plus a compound pull toward
//     the parent's centroid for nested nodes.
//   - Separation of connected components whose bounding circles come
//     closer than [Params.ComponentSpacing].
//
// # Compound Nodes
//
// A node with children is never simulated. Its position is the centroid of
// its simulated descendants ([Snapshot.UpdateCompounds]), and any spring
// force that lands on it is shared evenly among those descendants.
//
// # Determinism
//
// Repulsion runs on an errgroup of [Params.Workers] goroutines, each owning
// a disjoint range of force slots and summing in a fixed order, so the
// output is identical for any worker count. Coincident points get a fixed
// direction derived from their index pair. Non-finite vectors are zeroed
// and counted by [Model.NonFinite].
package force
