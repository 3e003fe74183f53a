// Package layout runs force-directed layouts over a [graph.Graph].
//
// # Running a layout
//
// [Run] takes a graph and a [Config], simulates until a termination
// condition holds and writes the final positions back to the graph:
//
//	cfg := layout.DefaultConfig()
//	cfg.IdealEdgeLength = layout.Constant(50)
//	res, err := layout.Run(ctx, g, cfg, layout.Options{})
//
// While the run is active the graph is frozen; any mutation fails with
// errors.ConcurrentMutationError. Positions are only written when the run
// stops, so a cancelled run still leaves a consistent graph containing the
// positions of the last completed iteration.
//
// # Termination
//
// Each iteration computes forces, moves every unlocked node by at most the
// current temperature and then cools the temperature, which never drops
// below MinTemp. The run stops when the first of these holds:
//
//   - The largest move falls under ConvergenceThreshold ([ReasonConverged]).
//     A threshold of 0 disables convergence.
//   - NumIter iterations or MaxDuration elapsed ([ReasonMaxIterations])
//   - The context is cancelled ([ReasonCancelled])
//
// # Parameters
//
// Force constants are [Param] values: a constant, an [AttributeRule] over a
// numeric attribute, or a Go function. Constants and rules can be decoded
// from TOML and JSON and take part in [Config.Fingerprint]; function params
// make a config uncacheable.
//
// # Determinism
//
// Identical graphs, configs and seeds produce bit-identical positions,
// independent of Config.Workers.
package layout
