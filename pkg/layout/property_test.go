package layout

import (
	"context"
	"fmt"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"

	"github.com/matzehuels/forcelayout/pkg/graph"
)

// randomGraph builds a graph from generator output. Positions snap to a
// coarse lattice so coincident starting points are common; every third
// node nests under an earlier one.
func randomGraph(size int, links []int) *graph.Graph {
	g := graph.New()
	nodes := make([]graph.Node, size)
	for i := range nodes {
		nodes[i] = graph.Node{ID: fmt.Sprintf("n%d", i)}
		if i%2 == 0 {
			nodes[i].Placed = true
			nodes[i].Position = graph.Position{X: float64(i%3) * 50, Y: float64(i%2) * 50}
		}
		if i > 0 && i%3 == 0 {
			nodes[i].Parent = fmt.Sprintf("n%d", i/3-1)
		}
	}
	_ = g.AddNodes(nodes)
	for k, v := range links {
		a, b := v%size, (v/size)%size
		_ = g.AddEdges([]graph.Edge{{ID: fmt.Sprintf("e%d", k), Source: fmt.Sprintf("n%d", a), Target: fmt.Sprintf("n%d", b)}})
	}
	return g
}

func TestLayoutStabilityProperties(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 40

	properties := gopter.NewProperties(parameters)

	properties.Property("positions stay finite and inside the box", prop.ForAll(
		func(size int, links []int, rep, length, elasticity, gravity float64) bool {
			g := randomGraph(size, links)
			cfg := DefaultConfig()
			cfg.NumIter = 60
			cfg.NodeRepulsion = Constant(rep)
			cfg.IdealEdgeLength = Constant(length)
			cfg.EdgeElasticity = Constant(elasticity)
			cfg.Gravity = Constant(gravity)
			cfg.BarnesHutThreshold = size / 2

			res, err := Run(context.Background(), g, cfg, Options{})
			if err != nil {
				return false
			}
			for _, n := range res.Positions {
				if !n.IsFinite() || !cfg.BoundingBox.Contains(n) {
					return false
				}
			}
			return res.Iterations <= cfg.NumIter
		},
		gen.IntRange(1, 40),
		gen.SliceOf(gen.IntRange(0, 1600)),
		gen.Float64Range(0.001, 1e6),
		gen.Float64Range(0.001, 500),
		gen.Float64Range(0.001, 5),
		gen.Float64Range(0.001, 2),
	))

	properties.Property("identical inputs give identical layouts", prop.ForAll(
		func(size int, links []int, seed uint64) bool {
			cfg := DefaultConfig()
			cfg.NumIter = 40
			cfg.Randomize = true
			cfg.Seed = seed
			a, errA := Run(context.Background(), randomGraph(size, links), cfg, Options{})
			b, errB := Run(context.Background(), randomGraph(size, links), cfg, Options{})
			if errA != nil || errB != nil {
				return false
			}
			for id, p := range a.Positions {
				if b.Positions[id] != p {
					return false
				}
			}
			return len(a.Positions) == len(b.Positions)
		},
		gen.IntRange(1, 30),
		gen.SliceOf(gen.IntRange(0, 900)),
		gen.UInt64(),
	))

	// A run that stopped because nothing moved stays put when it is run again
	// from its own output.
	properties.Property("converged layouts stay put on re-run", prop.ForAll(
		func(size int, links []int) bool {
			g := randomGraph(size, links)
			cfg := DefaultConfig()
			cfg.NumIter = 5000
			first, err := Run(context.Background(), g, cfg, Options{})
			if err != nil {
				return false
			}
			if first.Reason != ReasonConverged {
				return true
			}
			second, err := Run(context.Background(), g, cfg, Options{})
			if err != nil {
				return false
			}
			for id, p := range first.Positions {
				if distance(p, second.Positions[id]) >= cfg.MinTemp {
					return false
				}
			}
			return second.Reason == ReasonConverged
		},
		gen.IntRange(1, 20),
		gen.SliceOf(gen.IntRange(0, 400)),
	))

	properties.TestingRun(t)
}
