package graph

import (
	"fmt"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
)

// applyOps interprets each value as a store operation over a small id
// space so that collisions, dangling references and cascades all occur.
func applyOps(g *Graph, ops []int) {
	for i, v := range ops {
		a, b := fmt.Sprintf("n%d", (v/4)%12), fmt.Sprintf("n%d", (v/48)%12)
		switch v % 4 {
		case 0:
			_ = g.AddNodes([]Node{{ID: a}, {ID: b, Parent: a}})
		case 1:
			_ = g.AddEdges([]Edge{
				{ID: fmt.Sprintf("e%d", i), Source: a, Target: b},
				{ID: fmt.Sprintf("f%d", i), Source: b, Target: a},
			})
		case 2:
			_ = g.RemoveNode(a)
		case 3:
			_ = g.RemoveEdge(fmt.Sprintf("e%d", v%len(ops)))
		}
	}
}

func TestGraphIntegrityProperties(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200

	properties := gopter.NewProperties(parameters)

	properties.Property("edge endpoints always exist", prop.ForAll(
		func(ops []int) bool {
			g := New()
			applyOps(g, ops)
			for e := range g.Edges(nil) {
				if !g.HasNode(e.Source) || !g.HasNode(e.Target) {
					return false
				}
			}
			return g.Validate() == nil
		},
		gen.SliceOf(gen.IntRange(0, 10000)),
	))

	properties.Property("rejected batches leave counts unchanged", prop.ForAll(
		func(ops []int, ghost string) bool {
			g := New()
			applyOps(g, ops)
			nodes, edges := g.NodeCount(), g.EdgeCount()
			err := g.Add(
				[]Node{{ID: "fresh-" + ghost}},
				[]Edge{{ID: "dangling", Source: "fresh-" + ghost, Target: "ghost-" + ghost}},
			)
			return err != nil && g.NodeCount() == nodes && g.EdgeCount() == edges
		},
		gen.SliceOf(gen.IntRange(0, 10000)),
		gen.AlphaString(),
	))

	properties.Property("degree sums to twice the edge count", prop.ForAll(
		func(ops []int) bool {
			g := New()
			applyOps(g, ops)
			sum := 0
			for n := range g.Nodes(nil) {
				sum += n.Degree
			}
			return sum == 2*g.EdgeCount()
		},
		gen.SliceOf(gen.IntRange(0, 10000)),
	))

	properties.TestingRun(t)
}
