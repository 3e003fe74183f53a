package graph

import (
	"encoding/json"
	"maps"
	"math"

	"gonum.org/v1/gonum/spatial/r2"

	"github.com/matzehuels/forcelayout/pkg/errors"
)

// Kind distinguishes nodes from edges in mixed queries.
type Kind = errors.ElementKind

const (
	KindNode = errors.KindNode
	KindEdge = errors.KindEdge
)

// Attributes stores scalar key-value pairs attached to nodes or edges.
// Values are strings, numbers or booleans. Attribute maps are never nil
// after an element has been added to a [Graph].
type Attributes map[string]any

// Has reports whether key is present.
func (a Attributes) Has(key string) bool {
	_, ok := a[key]
	return ok
}

// Float returns the attribute as a float64. Only numeric values convert;
// strings that look like numbers do not.
func (a Attributes) Float(key string) (float64, bool) {
	v, ok := a[key]
	if !ok {
		return 0, false
	}
	return toFloat(v)
}

// String returns the attribute if it holds a string.
func (a Attributes) String(key string) (string, bool) {
	s, ok := a[key].(string)
	return s, ok
}

func (a Attributes) clone() Attributes {
	if a == nil {
		return Attributes{}
	}
	return maps.Clone(a)
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int8:
		return float64(n), true
	case int16:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint:
		return float64(n), true
	case uint8:
		return float64(n), true
	case uint16:
		return float64(n), true
	case uint32:
		return float64(n), true
	case uint64:
		return float64(n), true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	default:
		return 0, false
	}
}

// Position is a point in layout space.
type Position struct {
	X float64 `json:"x" bson:"x"`
	Y float64 `json:"y" bson:"y"`
}

// Vec converts the position to a gonum vector.
func (p Position) Vec() r2.Vec { return r2.Vec{X: p.X, Y: p.Y} }

// FromVec converts a gonum vector to a position.
func FromVec(v r2.Vec) Position { return Position{X: v.X, Y: v.Y} }

// IsFinite reports whether both coordinates are finite numbers.
func (p Position) IsFinite() bool {
	return !math.IsNaN(p.X) && !math.IsInf(p.X, 0) && !math.IsNaN(p.Y) && !math.IsInf(p.Y, 0)
}

// Rect is an axis-aligned rectangle given by its top-left corner and size.
type Rect struct {
	X float64 `json:"x1" bson:"x1" toml:"x1"`
	Y float64 `json:"y1" bson:"y1" toml:"y1"`
	W float64 `json:"w" bson:"w" toml:"w"`
	H float64 `json:"h" bson:"h" toml:"h"`
}

// X2 returns the right edge.
func (r Rect) X2() float64 { return r.X + r.W }

// Y2 returns the bottom edge.
func (r Rect) Y2() float64 { return r.Y + r.H }

// Center returns the rectangle's midpoint.
func (r Rect) Center() Position { return Position{X: r.X + r.W/2, Y: r.Y + r.H/2} }

// Contains reports whether p lies inside r, edges included.
func (r Rect) Contains(p Position) bool {
	return p.X >= r.X && p.X <= r.X2() && p.Y >= r.Y && p.Y <= r.Y2()
}

// Clamp returns the point of r closest to p.
func (r Rect) Clamp(p Position) Position {
	return Position{X: math.Min(math.Max(p.X, r.X), r.X2()), Y: math.Min(math.Max(p.Y, r.Y), r.Y2())}
}

// Pad grows r by d on every side.
func (r Rect) Pad(d float64) Rect {
	return Rect{X: r.X - d, Y: r.Y - d, W: r.W + 2*d, H: r.H + 2*d}
}

// Bounds returns the smallest rectangle containing every position. It
// returns the zero Rect for an empty set.
func Bounds[M ~map[K]Position, K comparable](positions M) Rect {
	first := true
	var lo, hi Position
	for _, p := range positions {
		if first {
			lo, hi, first = p, p, false
			continue
		}
		lo.X, lo.Y = math.Min(lo.X, p.X), math.Min(lo.Y, p.Y)
		hi.X, hi.Y = math.Max(hi.X, p.X), math.Max(hi.Y, p.Y)
	}
	return Rect{X: lo.X, Y: lo.Y, W: hi.X - lo.X, H: hi.Y - lo.Y}
}

// Node is a graph vertex.
//
// Values returned by [Graph] are copies, except Attrs which aliases the
// stored map and must be treated as read-only.
type Node struct {
	ID       string     // Unique, immutable identifier
	Attrs    Attributes // Scalar attributes (never nil after add)
	Position Position   // Meaningful only when Placed is true
	Placed   bool       // Whether Position has been assigned

	// Locked nodes keep their position during layout.
	Locked bool
	// OverlapExempt nodes skip the overlap push but still repel.
	OverlapExempt bool
	// Parent is the id of the compound node containing this one, or empty.
	Parent string

	// Degree is the number of incident edges. Set by the graph on read;
	// ignored on add.
	Degree int
}

// Edge is a connection between two nodes. Direction is semantic metadata
// only; layout treats edges as undirected.
type Edge struct {
	ID     string
	Source string
	Target string
	Attrs  Attributes
	// Weight is optional; zero means unweighted.
	Weight float64
}

// IsLoop reports whether the edge connects a node to itself.
func (e Edge) IsLoop() bool { return e.Source == e.Target }

// Element is either a node or an edge, as yielded by mixed queries.
type Element struct {
	Kind Kind
	Node Node // Set when Kind is KindNode
	Edge Edge // Set when Kind is KindEdge
}

// ID returns the element id regardless of kind.
func (e Element) ID() string {
	if e.Kind == KindEdge {
		return e.Edge.ID
	}
	return e.Node.ID
}

// Attrs returns the element attributes regardless of kind.
func (e Element) Attrs() Attributes {
	if e.Kind == KindEdge {
		return e.Edge.Attrs
	}
	return e.Node.Attrs
}

// ChangeOp identifies a store mutation reported to an [Observer].
type ChangeOp string

const (
	ChangeAdd      ChangeOp = "add"
	ChangeRemove   ChangeOp = "remove"
	ChangePosition ChangeOp = "position"
)

// Change describes a single element mutation.
type Change struct {
	Op    ChangeOp
	Kind  Kind
	ID    string
	// Attrs aliases the element's attributes, also for removals.
	Attrs Attributes
}

// Observer receives changes after they have been applied.
type Observer func(Change)
