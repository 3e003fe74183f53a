// Package spatial provides proximity structures over node positions.
//
// Force-directed layout moves every node on every iteration, so both
// structures here are rebuilt wholesale once per iteration rather than
// updated incrementally:
//
//   - [Grid] buckets points into uniform cells and answers "points within
//     radius r of p" and "k nearest points to p". The layout engine uses it
//     for short-range overlap correction and component separation;
//     sessions use it for post-layout hit-testing.
//   - [Tree] is a Barnes-Hut quadtree (gonum spatial/barneshut) used for
//     approximate repulsion once the node count passes a threshold.
//
// Neither structure exposes mutation outside Rebuild/Reset. A query issued
// after positions changed but before the next rebuild sees stale data.
package spatial
