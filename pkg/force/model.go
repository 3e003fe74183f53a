package force

import (
	"context"
	"math"
	"runtime"

	"gonum.org/v1/gonum/spatial/barneshut"
	"gonum.org/v1/gonum/spatial/r2"
	"golang.org/x/sync/errgroup"

	"github.com/matzehuels/forcelayout/pkg/spatial"
)

const (
	// minDistance floors pair distances so repulsion stays bounded.
	minDistance = 1.0
	// coincident is the distance below which two points have no usable
	// direction.
	coincident = 1e-9
	// separationRate is the fraction of a component overlap corrected per
	// evaluation.
	separationRate = 0.1
)

// Model evaluates net forces over a [Snapshot]. A Model keeps scratch
// buffers and spatial indexes between calls and is not safe for concurrent
// use.
type Model struct {
	snap *Snapshot
	p    Params

	grid     *spatial.Grid
	compGrid *spatial.Grid
	tree     *spatial.Tree

	simPos    []r2.Vec
	simMass   []float64
	simForce  []r2.Vec
	adjacent  [][2]int // Snapshot.Adjacent in simulated slots
	nonFinite int
	fallbacks int
	treeErr   error
}

// New creates a model for s. Only the scalar fields of p are read; the
// per-element constants were resolved when s was built.
func New(s *Snapshot, p Params) *Model {
	if p.Workers <= 0 {
		p.Workers = runtime.GOMAXPROCS(0)
	}
	m := &Model{
		snap:     s,
		p:        p,
		grid:     spatial.NewGrid(math.Max(p.NodeOverlap, minDistance)),
		compGrid: spatial.NewGrid(0),
		tree:     spatial.NewTree(p.Theta),
		simPos:   make([]r2.Vec, len(s.Sim)),
		simMass:  make([]float64, len(s.Sim)),
		simForce: make([]r2.Vec, len(s.Sim)),
	}
	slot := make(map[int]int, len(s.Sim))
	for k, i := range s.Sim {
		m.simMass[k] = s.Mass[i]
		slot[i] = k
	}
	for _, pair := range s.Adjacent {
		m.adjacent = append(m.adjacent, [2]int{slot[pair[0]], slot[pair[1]]})
	}
	return m
}

// Snapshot returns the snapshot the model evaluates.
func (m *Model) Snapshot() *Snapshot { return m.snap }

// UsesBarnesHut reports whether repulsion is approximated.
func (m *Model) UsesBarnesHut() bool {
	return m.p.BarnesHutThreshold > 0 && len(m.snap.Sim) > m.p.BarnesHutThreshold
}

// Fallbacks returns how many evaluations computed repulsion exactly
// because the Barnes-Hut tree could not be built, and the last build error.
func (m *Model) Fallbacks() (int, error) { return m.fallbacks, m.treeErr }

// NonFinite returns how many non-finite force vectors have been zeroed
// since the model was created.
func (m *Model) NonFinite() int { return m.nonFinite }

// Forces writes the net force on every node into out, which must have the
// snapshot's length. pos holds one position per node; compound entries must
// already be at their centroids (see [Snapshot.UpdateCompounds]). Forces on
// compound nodes are passed on to their descendants, so out is zero for
// compound indices. The only error is ctx's.
func (m *Model) Forces(ctx context.Context, pos, out []r2.Vec) error {
	s := m.snap
	clear(out)
	for k, i := range s.Sim {
		m.simPos[k] = pos[i]
	}

	if err := m.repulsion(ctx); err != nil {
		return err
	}
	for k, i := range s.Sim {
		out[i] = m.simForce[k]
	}
	m.overlap(out)
	m.springs(pos, out)
	m.gravity(pos, out)
	m.separate(pos, out)

	for i, f := range out {
		if s.Compound[i] {
			continue
		}
		if !isFinite(f) {
			out[i] = r2.Vec{}
			m.nonFinite++
		}
	}
	return nil
}

// ============================================================================
// Repulsion
// ============================================================================

// repulsion fills simForce with the repulsion between every pair of
// non-adjacent simulated nodes. Workers own disjoint slot ranges and sum in
// a fixed order, so the result does not depend on the worker count. When
// the quadtree cannot be built over the current positions the evaluation
// falls back to exact repulsion.
func (m *Model) repulsion(ctx context.Context) error {
	n := len(m.simPos)
	if n == 0 {
		return nil
	}
	bh := m.UsesBarnesHut()
	if bh {
		if err := m.tree.Reset(m.simPos, m.simMass); err != nil {
			bh = false
			m.fallbacks++
			m.treeErr = err
		}
	}

	workers := min(m.p.Workers, n)
	chunk := (n + workers - 1) / workers
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for lo := 0; lo < n; lo += chunk {
		hi := min(lo+chunk, n)
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			for k := lo; k < hi; k++ {
				if bh {
					m.simForce[k] = m.tree.ForceOn(k, m.repelBodies)
				} else {
					m.simForce[k] = m.repelExact(k)
				}
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	// Adjacent pairs attract through their spring instead.
	for _, pair := range m.adjacent {
		a, b := pair[0], pair[1]
		m.simForce[a] = r2.Sub(m.simForce[a], m.repelPair(a, b))
		m.simForce[b] = r2.Sub(m.simForce[b], m.repelPair(b, a))
	}
	return ctx.Err()
}

func (m *Model) repelExact(k int) r2.Vec {
	var f r2.Vec
	for j := range m.simPos {
		if j != k {
			f = r2.Add(f, m.repelPair(k, j))
		}
	}
	return f
}

// repelPair is the repulsion on simulated slot k from slot j.
func (m *Model) repelPair(k, j int) r2.Vec {
	v := r2.Sub(m.simPos[j], m.simPos[k])
	d := r2.Norm(v)
	var u r2.Vec
	if d < coincident {
		u = pairDirection(k, j)
	} else {
		u = r2.Scale(1/d, v)
	}
	d = math.Max(d, minDistance)
	return r2.Scale(-m.simMass[k]*m.simMass[j]/(d*d), u)
}

// repelBodies is the Barnes-Hut force function. v points from p1 to p2.
func (m *Model) repelBodies(_, _ barneshut.Particle2, m1, m2 float64, v r2.Vec) r2.Vec {
	d := r2.Norm(v)
	if d < coincident {
		return r2.Vec{}
	}
	u := r2.Scale(1/d, v)
	d = math.Max(d, minDistance)
	return r2.Scale(-m1*m2/(d*d), u)
}

// pairDirection returns a fixed unit vector for the ordered pair (k, j),
// pointing from k towards j. Swapping the pair reverses it.
func pairDirection(k, j int) r2.Vec {
	lo, hi, sign := k, j, 1.0
	if lo > hi {
		lo, hi, sign = hi, lo, -1
	}
	a := 2.399963229728653 * float64(lo*7919+hi)
	return r2.Vec{X: sign * math.Cos(a), Y: sign * math.Sin(a)}
}

// ============================================================================
// Overlap
// ============================================================================

// overlap pushes apart simulated nodes closer than NodeOverlap. The push
// grows linearly with penetration and equals the pair's repulsion at the
// NodeOverlap distance when the points coincide.
func (m *Model) overlap(out []r2.Vec) {
	r := m.p.NodeOverlap
	if r <= 0 {
		return
	}
	s := m.snap
	m.grid.Rebuild(m.simPos)
	for k, i := range s.Sim {
		if s.Exempt[i] {
			continue
		}
		for _, j := range m.grid.Within(m.simPos[k], r) {
			if j == k || s.Exempt[s.Sim[j]] {
				continue
			}
			v := r2.Sub(m.simPos[j], m.simPos[k])
			d := r2.Norm(v)
			var u r2.Vec
			if d < coincident {
				u = pairDirection(k, j)
			} else {
				u = r2.Scale(1/d, v)
			}
			push := (r - d) / r * m.simMass[k] * m.simMass[j] / (r * r)
			out[i] = r2.Add(out[i], r2.Scale(-push, u))
		}
	}
}

// ============================================================================
// Attraction
// ============================================================================

// springs applies a Hooke spring per edge, divided by the larger endpoint
// degree. Both endpoints receive the same scaled force in opposite
// directions, so springs never push a pair as a whole. Forces on compound
// endpoints are shared evenly by their descendants.
func (m *Model) springs(pos, out []r2.Vec) {
	s := m.snap
	for _, sp := range s.Springs {
		v := r2.Sub(pos[sp.B], pos[sp.A])
		d := r2.Norm(v)
		if d < coincident {
			continue
		}
		deg := math.Max(s.Degree[sp.A], s.Degree[sp.B])
		f := r2.Scale((d-sp.Length)*sp.Elasticity/(d*deg), v)
		m.apply(out, sp.A, f)
		m.apply(out, sp.B, r2.Scale(-1, f))
	}
}

// apply adds f to node i, or splits it over i's descendants when i is a
// compound node.
func (m *Model) apply(out []r2.Vec, i int, f r2.Vec) {
	s := m.snap
	if !s.Compound[i] {
		out[i] = r2.Add(out[i], f)
		return
	}
	leaves := s.Leaves[i]
	if len(leaves) == 0 {
		return
	}
	share := r2.Scale(1/float64(len(leaves)), f)
	for _, l := range leaves {
		out[l] = r2.Add(out[l], share)
	}
}

// ============================================================================
// Gravity
// ============================================================================

// gravity pulls every simulated node towards the centre, and nested nodes
// additionally towards their parent's centroid. Locked nodes are skipped.
func (m *Model) gravity(pos, out []r2.Vec) {
	s := m.snap
	c := m.p.Center.Vec()
	for _, i := range s.Sim {
		if s.Locked[i] {
			continue
		}
		f := r2.Scale(s.Gravity[i], r2.Sub(c, pos[i]))
		if pi := s.Parent[i]; pi >= 0 && m.p.GravityCompound > 0 {
			f = r2.Add(f, r2.Scale(m.p.GravityCompound, r2.Sub(pos[pi], pos[i])))
		}
		out[i] = r2.Add(out[i], f)
	}
}

// ============================================================================
// Component separation
// ============================================================================

type circle struct {
	center r2.Vec
	radius float64
	size   int
}

// separate pushes overlapping components apart. Each component is
// approximated by the circle around its simulated members; circles closer
// than ComponentSpacing are moved apart by a fraction of the overlap.
func (m *Model) separate(pos, out []r2.Vec) {
	s := m.snap
	if s.NumComponents < 2 {
		return
	}
	comps := make([]circle, s.NumComponents)
	for _, i := range s.Sim {
		c := &comps[s.Component[i]]
		c.center = r2.Add(c.center, pos[i])
		c.size++
	}
	for ci := range comps {
		if comps[ci].size > 0 {
			comps[ci].center = r2.Scale(1/float64(comps[ci].size), comps[ci].center)
		}
	}
	var widest float64
	for _, i := range s.Sim {
		c := &comps[s.Component[i]]
		c.radius = math.Max(c.radius, r2.Norm(r2.Sub(pos[i], c.center)))
		widest = math.Max(widest, c.radius)
	}

	centers := make([]r2.Vec, len(comps))
	for ci, c := range comps {
		centers[ci] = c.center
	}
	m.compGrid.Rebuild(centers)

	push := make([]r2.Vec, len(comps))
	gap := m.p.ComponentSpacing
	for a, ca := range comps {
		if ca.size == 0 {
			continue
		}
		for _, b := range m.compGrid.Within(ca.center, ca.radius+widest+gap) {
			cb := comps[b]
			if b == a || cb.size == 0 {
				continue
			}
			v := r2.Sub(ca.center, cb.center)
			d := r2.Norm(v)
			overlap := ca.radius + cb.radius + gap - d
			if overlap <= 0 {
				continue
			}
			var u r2.Vec
			if d < coincident {
				u = pairDirection(b, a)
			} else {
				u = r2.Scale(1/d, v)
			}
			push[a] = r2.Add(push[a], r2.Scale(overlap*separationRate, u))
		}
	}
	for _, i := range s.Sim {
		out[i] = r2.Add(out[i], push[s.Component[i]])
	}
}

func isFinite(v r2.Vec) bool {
	return !math.IsNaN(v.X) && !math.IsInf(v.X, 0) && !math.IsNaN(v.Y) && !math.IsInf(v.Y, 0)
}
