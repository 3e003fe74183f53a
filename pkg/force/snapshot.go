package force

import (
	"math"

	"gonum.org/v1/gonum/spatial/r2"

	"github.com/matzehuels/forcelayout/pkg/graph"
)

// Func resolves a force constant from an element's attributes.
type Func func(graph.Attributes) float64

// Const returns a Func that ignores attributes.
func Const(v float64) Func { return func(graph.Attributes) float64 { return v } }

// Params holds the force constants for one run. Per-element constants are
// resolved once by [NewSnapshot]; the scalars apply uniformly.
type Params struct {
	NodeRepulsion   Func // node
	IdealEdgeLength Func // edge
	EdgeElasticity  Func // edge
	NestingFactor   Func // edge
	Gravity         Func // node

	GravityCompound  float64
	NodeOverlap      float64
	ComponentSpacing float64

	// Center is the gravity target, normally the bounding-box centre.
	Center graph.Position

	Theta              float64
	BarnesHutThreshold int
	Workers            int
}

// Spring is an edge reduced to node indices and resolved constants.
type Spring struct {
	A, B       int
	Length     float64
	Elasticity float64
}

// Snapshot is the read-only view of a frozen graph that the force model
// evaluates. Nodes are indexed in graph insertion order.
type Snapshot struct {
	IDs    []string
	Index  map[string]int
	Parent []int // -1 for top-level nodes
	Locked []bool
	Exempt []bool

	// Compound[i] reports whether node i has children; compound nodes are
	// positioned at the centroid of Leaves[i] and never simulated.
	Compound []bool
	Leaves   [][]int
	// Sim lists the simulated (non-compound) node indices, ascending.
	Sim []int

	Component     []int // component number per node
	NumComponents int

	Springs  []Spring
	Degree   []float64
	Mass     []float64 // sqrt of node repulsion
	Gravity  []float64
	Adjacent [][2]int // distinct simulated pairs joined by at least one edge, a < b
}

// NewSnapshot captures g with p's per-element constants resolved. The
// graph must not change while the snapshot is in use.
func NewSnapshot(g *graph.Graph, p Params) *Snapshot {
	s := &Snapshot{Index: make(map[string]int, g.NodeCount())}
	p = p.withDefaults()

	var nodes []graph.Node
	for n := range g.Nodes(nil) {
		s.Index[n.ID] = len(nodes)
		nodes = append(nodes, n)
	}
	n := len(nodes)
	s.IDs = make([]string, n)
	s.Parent = make([]int, n)
	s.Locked = make([]bool, n)
	s.Exempt = make([]bool, n)
	s.Compound = make([]bool, n)
	s.Leaves = make([][]int, n)
	s.Degree = make([]float64, n)
	s.Mass = make([]float64, n)
	s.Gravity = make([]float64, n)
	s.Component = make([]int, n)

	for i, nd := range nodes {
		s.IDs[i] = nd.ID
		s.Parent[i] = -1
		if nd.Parent != "" {
			s.Parent[i] = s.Index[nd.Parent]
		}
		s.Locked[i] = nd.Locked
		s.Exempt[i] = nd.OverlapExempt
		s.Degree[i] = math.Max(float64(nd.Degree), 1)
		s.Mass[i] = math.Sqrt(math.Max(finite(p.NodeRepulsion(nd.Attrs)), 0))
		s.Gravity[i] = math.Max(finite(p.Gravity(nd.Attrs)), 0)
	}
	for i := range nodes {
		if pi := s.Parent[i]; pi >= 0 {
			s.Compound[pi] = true
		}
	}
	for i := range nodes {
		if s.Compound[i] {
			continue
		}
		s.Sim = append(s.Sim, i)
		for a := s.Parent[i]; a >= 0; a = s.Parent[a] {
			s.Leaves[a] = append(s.Leaves[a], i)
		}
	}

	for ci, comp := range g.Components() {
		for _, id := range comp {
			s.Component[s.Index[id]] = ci
		}
		s.NumComponents++
	}

	seen := make(map[[2]int]bool)
	for e := range g.Edges(nil) {
		a, b := s.Index[e.Source], s.Index[e.Target]
		if a == b {
			continue
		}
		length := math.Max(finite(p.IdealEdgeLength(e.Attrs)), 0)
		if nodes[a].Parent != nodes[b].Parent {
			length *= math.Max(finite(p.NestingFactor(e.Attrs)), 0)
		}
		s.Springs = append(s.Springs, Spring{
			A: a, B: b,
			Length:     length,
			Elasticity: math.Max(finite(p.EdgeElasticity(e.Attrs)), 0),
		})
		if s.Compound[a] || s.Compound[b] {
			continue
		}
		key := [2]int{min(a, b), max(a, b)}
		if !seen[key] {
			seen[key] = true
			s.Adjacent = append(s.Adjacent, key)
		}
	}
	return s
}

// Len returns the number of nodes, compound nodes included.
func (s *Snapshot) Len() int { return len(s.IDs) }

// UpdateCompounds sets every compound node's entry in pos to the centroid
// of its simulated descendants.
func (s *Snapshot) UpdateCompounds(pos []r2.Vec) {
	for i, leaves := range s.Leaves {
		if !s.Compound[i] || len(leaves) == 0 {
			continue
		}
		var c r2.Vec
		for _, l := range leaves {
			c = r2.Add(c, pos[l])
		}
		pos[i] = r2.Scale(1/float64(len(leaves)), c)
	}
}

func (p Params) withDefaults() Params {
	if p.NodeRepulsion == nil {
		p.NodeRepulsion = Const(0)
	}
	if p.IdealEdgeLength == nil {
		p.IdealEdgeLength = Const(0)
	}
	if p.EdgeElasticity == nil {
		p.EdgeElasticity = Const(0)
	}
	if p.NestingFactor == nil {
		p.NestingFactor = Const(1)
	}
	if p.Gravity == nil {
		p.Gravity = Const(0)
	}
	return p
}

func finite(v float64) float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0
	}
	return v
}
