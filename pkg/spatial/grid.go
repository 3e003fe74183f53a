package spatial

import (
	"math"
	"slices"

	"gonum.org/v1/gonum/spatial/r2"
)

type cellKey struct{ x, y int }

// Grid is a uniform bucket grid over a point set. It answers radius and
// k-nearest queries by visiting only the buckets that can hold a match.
//
// A Grid is rebuilt wholesale after positions move. Queries against a grid
// whose points have since changed return stale answers.
type Grid struct {
	cell    float64
	fixed   bool
	points  []r2.Vec
	buckets map[cellKey][]int
	min     cellKey
	max     cellKey
}

// NewGrid creates a grid. A positive cell size pins the bucket width; zero
// derives it from the point density on every Rebuild.
func NewGrid(cell float64) *Grid {
	return &Grid{cell: cell, fixed: cell > 0, buckets: make(map[cellKey][]int)}
}

// CellSize returns the bucket width used by the last Rebuild.
func (g *Grid) CellSize() float64 { return g.cell }

// Len returns the number of indexed points.
func (g *Grid) Len() int { return len(g.points) }

// Rebuild indexes points. Point i is reported as index i by queries. The
// slice is retained until the next Rebuild and must not be modified.
func (g *Grid) Rebuild(points []r2.Vec) {
	g.points = points
	clear(g.buckets)
	if len(points) == 0 {
		return
	}
	if !g.fixed {
		g.cell = deriveCell(points)
	}
	g.min = cellKey{math.MaxInt, math.MaxInt}
	g.max = cellKey{math.MinInt, math.MinInt}
	for i, p := range points {
		k := g.key(p)
		g.buckets[k] = append(g.buckets[k], i)
		g.min.x, g.min.y = min(g.min.x, k.x), min(g.min.y, k.y)
		g.max.x, g.max.y = max(g.max.x, k.x), max(g.max.y, k.y)
	}
}

// deriveCell picks a width giving roughly one point per bucket.
func deriveCell(points []r2.Vec) float64 {
	lo, hi := points[0], points[0]
	for _, p := range points[1:] {
		lo.X, lo.Y = math.Min(lo.X, p.X), math.Min(lo.Y, p.Y)
		hi.X, hi.Y = math.Max(hi.X, p.X), math.Max(hi.Y, p.Y)
	}
	w, h := hi.X-lo.X, hi.Y-lo.Y
	n := float64(len(points))
	cell := math.Sqrt(w * h / n)
	if cell <= 0 || math.IsNaN(cell) {
		cell = math.Max(w, h) / n
	}
	if cell <= 0 || math.IsNaN(cell) || math.IsInf(cell, 0) {
		cell = 1
	}
	return cell
}

func (g *Grid) key(p r2.Vec) cellKey {
	return cellKey{int(math.Floor(p.X / g.cell)), int(math.Floor(p.Y / g.cell))}
}

// Within returns the indices of points at distance at most r from p, in
// ascending index order.
func (g *Grid) Within(p r2.Vec, r float64) []int {
	if len(g.points) == 0 || r < 0 {
		return nil
	}
	lo := g.key(r2.Vec{X: p.X - r, Y: p.Y - r})
	hi := g.key(r2.Vec{X: p.X + r, Y: p.Y + r})
	lo.x, lo.y = max(lo.x, g.min.x), max(lo.y, g.min.y)
	hi.x, hi.y = min(hi.x, g.max.x), min(hi.y, g.max.y)

	var out []int
	r2sq := r * r
	for x := lo.x; x <= hi.x; x++ {
		for y := lo.y; y <= hi.y; y++ {
			for _, i := range g.buckets[cellKey{x, y}] {
				d := r2.Sub(g.points[i], p)
				if d.X*d.X+d.Y*d.Y <= r2sq {
					out = append(out, i)
				}
			}
		}
	}
	slices.Sort(out)
	return out
}

type candidate struct {
	index int
	dist  float64
}

// Nearest returns the indices of the k points closest to p, nearest first.
// Ties are broken by lower index. Fewer than k indices are returned when
// the grid holds fewer points.
func (g *Grid) Nearest(p r2.Vec, k int) []int {
	if k <= 0 || len(g.points) == 0 {
		return nil
	}
	k = min(k, len(g.points))
	center := g.key(p)

	dx := max(g.min.x-center.x, center.x-g.max.x, 0)
	dy := max(g.min.y-center.y, center.y-g.max.y, 0)

	var found []candidate
	for ring := max(dx, dy); ; ring++ {
		g.visitRing(center, ring, func(i int) {
			found = append(found, candidate{i, r2.Norm(r2.Sub(g.points[i], p))})
		})
		if len(found) >= k {
			sortCandidates(found)
			// Every point closer than the covered radius has been seen.
			covered := float64(ring) * g.cell
			if found[k-1].dist <= covered {
				break
			}
		}
		if g.covers(center, ring) {
			sortCandidates(found)
			break
		}
	}

	out := make([]int, k)
	for i := range out {
		out[i] = found[i].index
	}
	return out
}

// visitRing calls fn for every point in the cells at Chebyshev distance
// ring from center.
func (g *Grid) visitRing(center cellKey, ring int, fn func(int)) {
	visit := func(x, y int) {
		for _, i := range g.buckets[cellKey{x, y}] {
			fn(i)
		}
	}
	if ring == 0 {
		visit(center.x, center.y)
		return
	}
	for x := center.x - ring; x <= center.x+ring; x++ {
		visit(x, center.y-ring)
		visit(x, center.y+ring)
	}
	for y := center.y - ring + 1; y <= center.y+ring-1; y++ {
		visit(center.x-ring, y)
		visit(center.x+ring, y)
	}
}

func (g *Grid) covers(center cellKey, ring int) bool {
	return center.x-ring <= g.min.x && center.y-ring <= g.min.y &&
		center.x+ring >= g.max.x && center.y+ring >= g.max.y
}

func sortCandidates(c []candidate) {
	slices.SortFunc(c, func(a, b candidate) int {
		if a.dist != b.dist {
			if a.dist < b.dist {
				return -1
			}
			return 1
		}
		return a.index - b.index
	})
}
