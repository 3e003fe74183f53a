package force

import (
	"context"
	"fmt"
	"math"
	"testing"

	"gonum.org/v1/gonum/spatial/r2"

	"github.com/matzehuels/forcelayout/pkg/graph"
)

func buildGraph(t *testing.T, nodes []graph.Node, edges []graph.Edge) *graph.Graph {
	t.Helper()
	g := graph.New()
	if err := g.Add(nodes, edges); err != nil {
		t.Fatalf("Add: %v", err)
	}
	return g
}

func params() Params {
	return Params{
		NodeRepulsion:   Const(100),
		IdealEdgeLength: Const(10),
		EdgeElasticity:  Const(0.45),
		NestingFactor:   Const(1),
		Gravity:         Const(0),
		Workers:         1,
	}
}

func evaluate(t *testing.T, g *graph.Graph, p Params, pos []r2.Vec) []r2.Vec {
	t.Helper()
	s := NewSnapshot(g, p)
	s.UpdateCompounds(pos)
	out := make([]r2.Vec, s.Len())
	if err := New(s, p).Forces(context.Background(), pos, out); err != nil {
		t.Fatalf("Forces: %v", err)
	}
	return out
}

func near(a, b r2.Vec, tol float64) bool { return r2.Norm(r2.Sub(a, b)) <= tol }

func TestSpringOnlyBetweenAdjacent(t *testing.T) {
	g := buildGraph(t,
		[]graph.Node{{ID: "a"}, {ID: "b"}},
		[]graph.Edge{{ID: "ab", Source: "a", Target: "b"}},
	)
	out := evaluate(t, g, params(), []r2.Vec{{X: 0, Y: 0}, {X: 20, Y: 0}})

	// No repulsion between adjacent nodes: (20-10)*0.45 pulls them together.
	if !near(out[0], r2.Vec{X: 4.5}, 1e-12) || !near(out[1], r2.Vec{X: -4.5}, 1e-12) {
		t.Errorf("forces = %v, want ±4.5 along x", out)
	}
}

func TestRepulsionBetweenNonAdjacent(t *testing.T) {
	g := buildGraph(t, []graph.Node{{ID: "a"}, {ID: "b"}}, nil)
	p := params()
	p.NodeRepulsion = func(a graph.Attributes) float64 {
		v, _ := a.Float("rep")
		return v
	}
	g2 := buildGraph(t, []graph.Node{
		{ID: "a", Attrs: graph.Attributes{"rep": 100.0}},
		{ID: "b", Attrs: graph.Attributes{"rep": 400.0}},
	}, nil)

	tests := []struct {
		name string
		g    *graph.Graph
		want float64
	}{
		{"zero repulsion attribute", g, 0},
		// sqrt(100*400)/10² = 2
		{"geometric mean", g2, 2},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out := evaluate(t, tt.g, p, []r2.Vec{{X: 0, Y: 0}, {X: 10, Y: 0}})
			if !near(out[0], r2.Vec{X: -tt.want}, 1e-12) || !near(out[1], r2.Vec{X: tt.want}, 1e-12) {
				t.Errorf("forces = %v, want ±%v", out, tt.want)
			}
		})
	}
}

func TestCoincidentPointsSeparate(t *testing.T) {
	g := buildGraph(t, []graph.Node{{ID: "a"}, {ID: "b"}}, nil)
	p := params()
	p.NodeOverlap = 4
	out := evaluate(t, g, p, []r2.Vec{{X: 5, Y: 5}, {X: 5, Y: 5}})
	if !isFinite(out[0]) || r2.Norm(out[0]) == 0 {
		t.Fatalf("force on coincident node = %v, want finite non-zero", out[0])
	}
	if !near(out[0], r2.Scale(-1, out[1]), 1e-9) {
		t.Errorf("forces not opposite: %v vs %v", out[0], out[1])
	}

	again := evaluate(t, g, p, []r2.Vec{{X: 5, Y: 5}, {X: 5, Y: 5}})
	if out[0] != again[0] {
		t.Errorf("coincident direction not deterministic: %v vs %v", out[0], again[0])
	}
}

func chain(t *testing.T, n int) (*graph.Graph, []r2.Vec) {
	t.Helper()
	nodes := make([]graph.Node, n)
	var edges []graph.Edge
	pos := make([]r2.Vec, n)
	for i := range nodes {
		nodes[i] = graph.Node{ID: fmt.Sprint(i)}
		pos[i] = r2.Vec{X: float64(i*37%101) * 5, Y: float64(i*53%97) * 4}
		if i > 0 && i%3 != 0 {
			edges = append(edges, graph.Edge{ID: fmt.Sprintf("e%d", i), Source: fmt.Sprint(i - 1), Target: fmt.Sprint(i)})
		}
	}
	return buildGraph(t, nodes, edges), pos
}

func TestBarnesHutMatchesExact(t *testing.T) {
	g, pos := chain(t, 60)
	exact := params()
	exact.Gravity = Const(0.05)
	bh := exact
	bh.BarnesHutThreshold = 10
	bh.Theta = 0

	a := evaluate(t, g, exact, append([]r2.Vec(nil), pos...))
	b := evaluate(t, g, bh, append([]r2.Vec(nil), pos...))
	for i := range a {
		if !near(a[i], b[i], 1e-9*math.Max(1, r2.Norm(a[i]))) {
			t.Errorf("node %d: exact %v, barnes-hut %v", i, a[i], b[i])
		}
	}
}

func TestBarnesHutFallsBackToExact(t *testing.T) {
	g := buildGraph(t, []graph.Node{{ID: "a"}, {ID: "b"}, {ID: "c"}}, nil)
	// b and c are one ulp apart, which the quadtree cannot split.
	pos := []r2.Vec{{X: 0, Y: 0}, {X: 800, Y: 600}, {X: math.Nextafter(800, math.Inf(1)), Y: 600}}

	exact := params()
	bh := exact
	bh.BarnesHutThreshold = 2
	bh.Theta = 0.5

	want := evaluate(t, g, exact, append([]r2.Vec(nil), pos...))

	s := NewSnapshot(g, bh)
	m := New(s, bh)
	if !m.UsesBarnesHut() {
		t.Fatal("threshold below node count should select Barnes-Hut")
	}
	got := make([]r2.Vec, s.Len())
	if err := m.Forces(context.Background(), append([]r2.Vec(nil), pos...), got); err != nil {
		t.Fatalf("Forces: %v", err)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("node %d: fallback %v, exact %v", i, got[i], want[i])
		}
	}
	if n, err := m.Fallbacks(); n != 1 || err == nil {
		t.Errorf("Fallbacks = %d, %v; want 1 with the tree error", n, err)
	}
}

func TestForcesIndependentOfWorkers(t *testing.T) {
	g, pos := chain(t, 90)
	for _, threshold := range []int{0, 20} {
		p := params()
		p.BarnesHutThreshold = threshold
		p.Theta = 0.8
		p.NodeOverlap = 4
		p.Workers = 1
		one := evaluate(t, g, p, append([]r2.Vec(nil), pos...))
		p.Workers = 7
		many := evaluate(t, g, p, append([]r2.Vec(nil), pos...))
		for i := range one {
			if one[i] != many[i] {
				t.Fatalf("threshold %d node %d: %v with 1 worker, %v with 7", threshold, i, one[i], many[i])
			}
		}
	}
}

func TestSpringsBalanceAtHubs(t *testing.T) {
	g := buildGraph(t,
		[]graph.Node{{ID: "hub"}, {ID: "a"}, {ID: "b"}, {ID: "c"}},
		[]graph.Edge{
			{ID: "ha", Source: "hub", Target: "a"},
			{ID: "hb", Source: "hub", Target: "b"},
			{ID: "hc", Source: "c", Target: "hub"},
		},
	)
	p := params()
	p.NodeRepulsion = Const(0)
	pos := []r2.Vec{{}, {X: 40}, {Y: 25}, {X: -15, Y: -30}}
	out := evaluate(t, g, p, pos)

	// (40-10)*0.45/3: the hub's degree scales the leaf's spring too.
	if !near(out[1], r2.Vec{X: -4.5}, 1e-12) {
		t.Errorf("leaf force = %v, want (-4.5,0)", out[1])
	}
	var sum r2.Vec
	for _, f := range out {
		sum = r2.Add(sum, f)
	}
	if !near(sum, r2.Vec{}, 1e-12) {
		t.Errorf("spring forces sum to %v, want zero", sum)
	}
}

func TestCompoundForcesDistributed(t *testing.T) {
	g := buildGraph(t,
		[]graph.Node{{ID: "p"}, {ID: "c1", Parent: "p"}, {ID: "c2", Parent: "p"}, {ID: "x"}},
		[]graph.Edge{{ID: "xp", Source: "x", Target: "p"}},
	)
	p := params()
	p.NodeRepulsion = Const(0)
	pos := []r2.Vec{{}, {X: 0, Y: -1}, {X: 0, Y: 1}, {X: 30, Y: 0}}
	out := evaluate(t, g, p, pos)

	if pos[0] != (r2.Vec{}) {
		t.Errorf("compound position = %v, want centroid (0,0)", pos[0])
	}
	if out[0] != (r2.Vec{}) {
		t.Errorf("compound node received force %v", out[0])
	}
	// Spring (30-10)*0.45 = 9 toward x, split over two children.
	if !near(out[1], r2.Vec{X: 4.5}, 1e-12) || !near(out[2], r2.Vec{X: 4.5}, 1e-12) {
		t.Errorf("child forces = %v, %v, want 4.5 each", out[1], out[2])
	}
	if !near(out[3], r2.Vec{X: -9}, 1e-12) {
		t.Errorf("x force = %v, want -9", out[3])
	}
}

func TestNestingFactor(t *testing.T) {
	g := buildGraph(t,
		[]graph.Node{{ID: "p"}, {ID: "c", Parent: "p"}, {ID: "d", Parent: "p"}, {ID: "x"}},
		[]graph.Edge{{ID: "cd", Source: "c", Target: "d"}, {ID: "cx", Source: "c", Target: "x"}},
	)
	p := params()
	p.NestingFactor = Const(2)
	s := NewSnapshot(g, p)
	got := map[string]float64{}
	for i, sp := range s.Springs {
		got[[]string{"cd", "cx"}[i]] = sp.Length
	}
	if got["cd"] != 10 || got["cx"] != 20 {
		t.Errorf("spring lengths = %v, want cd=10 cx=20", got)
	}
}

func TestGravity(t *testing.T) {
	g := buildGraph(t, []graph.Node{
		{ID: "free"},
		{ID: "pinned", Locked: true},
		{ID: "p"},
		{ID: "child", Parent: "p"},
		{ID: "sibling", Parent: "p"},
	}, nil)
	p := params()
	p.NodeRepulsion = Const(0)
	p.Gravity = Const(0.1)
	p.GravityCompound = 0.5
	p.Center = graph.Position{X: 100, Y: 100}
	pos := []r2.Vec{{X: 0, Y: 100}, {X: 0, Y: 0}, {}, {X: 100, Y: 90}, {X: 100, Y: 110}}
	out := evaluate(t, g, p, pos)

	if !near(out[0], r2.Vec{X: 10}, 1e-12) {
		t.Errorf("free node gravity = %v, want (10,0)", out[0])
	}
	if out[1] != (r2.Vec{}) {
		t.Errorf("locked node gravity = %v, want zero", out[1])
	}
	// Global pull 0.1*10 plus compound pull 0.5*10 toward the centroid (100,100).
	if !near(out[3], r2.Vec{Y: 6}, 1e-12) || !near(out[4], r2.Vec{Y: -6}, 1e-12) {
		t.Errorf("nested gravity = %v, %v, want ±6 along y", out[3], out[4])
	}
}

func TestComponentSeparation(t *testing.T) {
	g := buildGraph(t,
		[]graph.Node{{ID: "a1"}, {ID: "a2"}, {ID: "b1"}, {ID: "b2"}},
		[]graph.Edge{{ID: "a", Source: "a1", Target: "a2"}, {ID: "b", Source: "b1", Target: "b2"}},
	)
	p := params()
	p.NodeRepulsion = Const(0)
	p.EdgeElasticity = Const(0)
	p.ComponentSpacing = 10
	// Component a spans x in [0,20], b spans [30,50]: radii 10, gap 30.
	pos := []r2.Vec{{X: 0}, {X: 20}, {X: 30}, {X: 50}}
	out := evaluate(t, g, p, pos)

	// Overlap 10+10+10-30 = 0: touching, no push.
	for i, f := range out {
		if f != (r2.Vec{}) {
			t.Fatalf("node %d pushed by %v with zero overlap", i, f)
		}
	}

	pos = []r2.Vec{{X: 0}, {X: 20}, {X: 20}, {X: 40}}
	out = evaluate(t, g, p, pos)
	// Overlap 10+10+10-20 = 10, so each member moves by 1 away from the other.
	want := []r2.Vec{{X: -1}, {X: -1}, {X: 1}, {X: 1}}
	for i := range out {
		if !near(out[i], want[i], 1e-12) {
			t.Errorf("node %d separation = %v, want %v", i, out[i], want[i])
		}
	}
}

func TestNonFiniteForcesZeroed(t *testing.T) {
	g, pos := chain(t, 5)
	pos[2] = r2.Vec{X: math.NaN(), Y: 0}
	p := params()
	s := NewSnapshot(g, p)
	m := New(s, p)
	out := make([]r2.Vec, s.Len())
	if err := m.Forces(context.Background(), pos, out); err != nil {
		t.Fatal(err)
	}
	for i, f := range out {
		if !isFinite(f) {
			t.Errorf("node %d force %v is not finite", i, f)
		}
	}
	if m.NonFinite() == 0 {
		t.Error("NonFinite() = 0, want zeroed vectors counted")
	}
}

func TestForcesCancelled(t *testing.T) {
	g, pos := chain(t, 10)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	s := NewSnapshot(g, params())
	err := New(s, params()).Forces(ctx, pos, make([]r2.Vec, s.Len()))
	if err == nil {
		t.Fatal("Forces with cancelled context returned nil")
	}
}
