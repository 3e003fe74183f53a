package spatial

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/spatial/barneshut"
	"gonum.org/v1/gonum/spatial/r2"
)

// Body is a point mass held by a [Tree]. Bodies are compared by identity,
// so force functions can recognise self-interaction.
type Body struct {
	pos   r2.Vec
	mass  float64
	Index int
}

// Coord2 implements barneshut.Particle2.
func (b *Body) Coord2() r2.Vec { return b.pos }

// Mass implements barneshut.Particle2.
func (b *Body) Mass() float64 { return b.mass }

// Tree is a Barnes-Hut quadtree over weighted points. Distant clusters are
// approximated by their center of mass, bringing the cost of a full force
// evaluation to O(n log n).
type Tree struct {
	Theta float64

	bodies    []*Body
	particles []barneshut.Particle2
	plane     *barneshut.Plane
}

// NewTree creates an empty tree. Theta is the opening angle: tiles whose
// size-to-distance ratio falls below it are treated as a single mass.
func NewTree(theta float64) *Tree {
	return &Tree{Theta: theta}
}

// Len returns the number of bodies.
func (t *Tree) Len() int { return len(t.bodies) }

// Body returns body i.
func (t *Tree) Body(i int) *Body { return t.bodies[i] }

// Reset rebuilds the tree from points and masses, which must have equal
// length. Exact duplicates are nudged apart by a tiny deterministic offset
// inside the tree only; quadtree subdivision cannot separate coincident
// points.
//
// Points that are distinct but closer than float64 precision allows the
// quadtree to split make Reset fail with an error wrapping the one from
// barneshut. The tree is then empty until the next successful Reset.
func (t *Tree) Reset(points []r2.Vec, masses []float64) error {
	if len(t.bodies) != len(points) {
		t.bodies = make([]*Body, len(points))
		t.particles = make([]barneshut.Particle2, len(points))
		for i := range t.bodies {
			t.bodies[i] = &Body{Index: i}
			t.particles[i] = t.bodies[i]
		}
		t.plane = nil
	}

	seen := make(map[r2.Vec]int, len(points))
	for i, p := range points {
		if k, dup := seen[p]; dup {
			seen[p] = k + 1
			p = nudge(p, k+1)
		} else {
			seen[p] = 0
		}
		t.bodies[i].pos = p
		t.bodies[i].mass = masses[i]
	}

	if len(t.bodies) == 0 {
		t.plane = nil
		return nil
	}
	if t.plane == nil {
		plane, err := barneshut.NewPlane(t.particles)
		if err != nil {
			return fmt.Errorf("build quadtree over %d points: %w", len(points), err)
		}
		t.plane = plane
		return nil
	}
	if err := t.plane.Reset(); err != nil {
		t.plane = nil
		return fmt.Errorf("rebuild quadtree over %d points: %w", len(points), err)
	}
	return nil
}

// ForceOn returns the approximate force on body i under f.
func (t *Tree) ForceOn(i int, f barneshut.Force2) r2.Vec {
	if t.plane == nil {
		return r2.Vec{}
	}
	return t.plane.ForceOn(t.bodies[i], t.Theta, f)
}

// nudge offsets p along a golden-angle spiral so that the k-th duplicate of
// a point lands on a distinct coordinate.
func nudge(p r2.Vec, k int) r2.Vec {
	const golden = 2.399963229728653
	scale := 1e-6 * math.Max(1, math.Max(math.Abs(p.X), math.Abs(p.Y)))
	angle := golden * float64(k)
	r := scale * math.Sqrt(float64(k))
	return r2.Vec{X: p.X + r*math.Cos(angle), Y: p.Y + r*math.Sin(angle)}
}
