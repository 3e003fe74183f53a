// Package placement computes deterministic starting positions for layout.
//
// # Overview
//
// A force simulation needs somewhere to start. Nodes that already carry a
// position keep it; the rest are placed by one of four strategies:
//
//   - [Circle]: evenly spaced on the largest circle inside the box
//   - [Grid]: cell centres of a rows×cols lattice (rows=1 gives a line)
//   - [Concentric]: rings ordered by a per-node value, highest innermost
//   - [Random]: uniform in the box from a seeded PCG source
//
// [Place] dispatches on [Options.Strategy] and guarantees that every
// returned position lies inside the box. The same strategies back the
// `forcelayout place` command, which applies a placement without running
// the simulation.
package placement
