package placement

import (
	"fmt"
	"math"
	"math/rand/v2"
	"slices"

	"github.com/matzehuels/forcelayout/pkg/graph"
)

// Strategy names a placement algorithm.
type Strategy string

const (
	StrategyCircle     Strategy = "circle"
	StrategyGrid       Strategy = "grid"
	StrategyConcentric Strategy = "concentric"
	StrategyRandom     Strategy = "random"
)

// Strategies lists every supported strategy in display order.
var Strategies = []Strategy{StrategyCircle, StrategyGrid, StrategyConcentric, StrategyRandom}

// ParseStrategy converts a name to a Strategy. The empty string selects
// [StrategyCircle].
func ParseStrategy(s string) (Strategy, error) {
	if s == "" {
		return StrategyCircle, nil
	}
	st := Strategy(s)
	if !slices.Contains(Strategies, st) {
		return "", fmt.Errorf("unknown placement strategy %q", s)
	}
	return st, nil
}

// Options configures [Place]. Fields that do not apply to the chosen
// strategy are ignored.
type Options struct {
	Strategy Strategy   `toml:"strategy" json:"strategy,omitempty"`
	Box      graph.Rect `toml:"-" json:"-"`

	// Grid: zero means derived from the other dimension or the box aspect.
	Rows int `toml:"rows" json:"rows,omitempty" validate:"gte=0"`
	Cols int `toml:"cols" json:"cols,omitempty" validate:"gte=0"`

	Concentric ConcentricOptions `toml:"concentric" json:"concentric"`

	// Random.
	Seed uint64 `toml:"-" json:"-"`
}

// ConcentricOptions configures [Concentric].
type ConcentricOptions struct {
	StartAngle     float64 `toml:"start_angle" json:"start_angle"` // radians, 0 is +x
	Sweep          float64 `toml:"sweep" json:"sweep"`             // radians; 0 means a full turn
	Clockwise      bool    `toml:"clockwise" json:"clockwise"`
	Equidistant    bool    `toml:"equidistant" json:"equidistant"`
	MinNodeSpacing float64 `toml:"min_node_spacing" json:"min_node_spacing" validate:"gte=0"`
	// LevelWidth is the value span grouped into one ring. Zero derives it
	// as a quarter of the largest value.
	LevelWidth float64 `toml:"level_width" json:"level_width" validate:"gte=0"`
}

// DefaultConcentric mirrors the usual concentric defaults: start at the top,
// full clockwise sweep.
func DefaultConcentric() ConcentricOptions {
	return ConcentricOptions{
		StartAngle:     3 * math.Pi / 2,
		Clockwise:      true,
		MinNodeSpacing: 10,
	}
}

// Place positions ids with the configured strategy. values feeds the
// concentric strategy and may be nil. The result is aligned with ids and
// every position lies inside opts.Box.
func Place(ids []string, values []float64, opts Options) []graph.Position {
	var out []graph.Position
	switch opts.Strategy {
	case StrategyGrid:
		out = Grid(len(ids), opts.Box, opts.Rows, opts.Cols)
	case StrategyConcentric:
		out = Concentric(values, len(ids), opts.Box, opts.Concentric)
	case StrategyRandom:
		out = Random(len(ids), opts.Box, opts.Seed)
	default:
		out = Circle(len(ids), opts.Box)
	}
	for i, p := range out {
		out[i] = opts.Box.Clamp(p)
	}
	return out
}

// Circle spaces n positions evenly on the largest circle centred in box,
// starting at the top and running clockwise.
func Circle(n int, box graph.Rect) []graph.Position {
	out := make([]graph.Position, n)
	c := box.Center()
	if n == 1 {
		out[0] = c
		return out
	}
	r := math.Min(box.W, box.H) / 2
	step := 2 * math.Pi / float64(n)
	for i := range out {
		a := -math.Pi/2 + step*float64(i)
		out[i] = graph.Position{X: c.X + r*math.Cos(a), Y: c.Y + r*math.Sin(a)}
	}
	return out
}

// Grid places n positions at the centres of a rows×cols lattice filling
// box, row-major. With one dimension zero it is derived from the other; with
// both zero the lattice follows the box aspect ratio. A lattice too small
// for n grows its column count.
func Grid(n int, box graph.Rect, rows, cols int) []graph.Position {
	out := make([]graph.Position, n)
	if n == 0 {
		return out
	}
	rows, cols = gridShape(n, box, rows, cols)
	cw, ch := box.W/float64(cols), box.H/float64(rows)
	for i := range out {
		r, c := i/cols, i%cols
		out[i] = graph.Position{
			X: box.X + cw*(float64(c)+0.5),
			Y: box.Y + ch*(float64(r)+0.5),
		}
	}
	return out
}

func gridShape(n int, box graph.Rect, rows, cols int) (int, int) {
	ceilDiv := func(a, b int) int { return (a + b - 1) / b }
	switch {
	case rows > 0 && cols > 0:
		if rows*cols < n {
			cols = ceilDiv(n, rows)
		}
	case rows > 0:
		cols = ceilDiv(n, rows)
	case cols > 0:
		rows = ceilDiv(n, cols)
	default:
		aspect := 1.0
		if box.W > 0 && box.H > 0 {
			aspect = box.W / box.H
		}
		cols = max(1, int(math.Round(math.Sqrt(float64(n)*aspect))))
		rows = ceilDiv(n, cols)
	}
	return rows, cols
}

// Concentric arranges n positions on rings around the box centre. Higher
// values sit nearer the centre; nodes whose values fall within LevelWidth
// of their ring's first value share that ring. Ties keep input order.
// values may be nil, placing every node on one ring. The whole arrangement
// is scaled down if it would not fit the box.
func Concentric(values []float64, n int, box graph.Rect, opts ConcentricOptions) []graph.Position {
	out := make([]graph.Position, n)
	if n == 0 {
		return out
	}
	val := func(i int) float64 {
		if i < len(values) && !math.IsNaN(values[i]) {
			return values[i]
		}
		return 0
	}

	order := make([]int, n)
	for i := range order {
		order[i] = i
	}
	slices.SortStableFunc(order, func(a, b int) int {
		va, vb := val(a), val(b)
		switch {
		case va > vb:
			return -1
		case va < vb:
			return 1
		}
		return 0
	})

	width := opts.LevelWidth
	if width <= 0 {
		width = math.Max(val(order[0]), 0) / 4
	}
	var levels [][]int
	for _, i := range order {
		last := len(levels) - 1
		if last < 0 || val(levels[last][0])-val(i) > width {
			levels = append(levels, []int{i})
			continue
		}
		levels[last] = append(levels[last], i)
	}

	sweep := opts.Sweep
	if sweep <= 0 || sweep > 2*math.Pi {
		sweep = 2 * math.Pi
	}
	dir := 1.0
	if !opts.Clockwise {
		dir = -1
	}
	spacing := math.Max(opts.MinNodeSpacing, 1)

	// Each ring must be wide enough to hold its nodes spacing apart.
	radii := make([]float64, len(levels))
	steps := make([]float64, len(levels))
	var r, prev, widest float64
	for li, lvl := range levels {
		steps[li] = arcStep(len(lvl), sweep)
		need := 0.0
		if len(lvl) > 1 {
			need = spacing / chord(steps[li])
		}
		if li > 0 {
			r = math.Max(prev+spacing, need)
		} else {
			r = need
		}
		widest = math.Max(widest, r-prev)
		radii[li] = r
		prev = r
	}
	if opts.Equidistant && len(levels) > 1 {
		for li := range radii {
			radii[li] = math.Max(radii[0], 0) + widest*float64(li)
		}
	}

	c := box.Center()
	limit := math.Min(box.W, box.H) / 2
	scale := 1.0
	if outer := radii[len(radii)-1]; outer > limit && outer > 0 {
		scale = limit / outer
	}
	for li, lvl := range levels {
		for k, i := range lvl {
			a := opts.StartAngle + dir*steps[li]*float64(k)
			rr := radii[li] * scale
			out[i] = graph.Position{X: c.X + rr*math.Cos(a), Y: c.Y + rr*math.Sin(a)}
		}
	}
	return out
}

// arcStep is the angle between neighbours on a ring of m nodes. A full
// sweep wraps around, a partial one spans both ends.
func arcStep(m int, sweep float64) float64 {
	if m <= 1 {
		return 0
	}
	if sweep >= 2*math.Pi {
		return sweep / float64(m)
	}
	return sweep / float64(m-1)
}

// chord is the chord length of angle theta on the unit circle.
func chord(theta float64) float64 {
	return math.Sqrt(2 * (1 - math.Cos(theta)))
}

// Random draws n uniform positions inside box from a PCG source seeded by
// seed. Equal seeds produce equal sequences.
func Random(n int, box graph.Rect, seed uint64) []graph.Position {
	rng := NewRand(seed)
	out := make([]graph.Position, n)
	for i := range out {
		out[i] = graph.Position{X: box.X + rng.Float64()*box.W, Y: box.Y + rng.Float64()*box.H}
	}
	return out
}

// NewRand returns the deterministic source used for seeded placement.
func NewRand(seed uint64) *rand.Rand {
	return rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))
}
