package layout

import (
	"context"
	"math"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"
	"gonum.org/v1/gonum/spatial/r2"

	"github.com/matzehuels/forcelayout/pkg/errors"
	"github.com/matzehuels/forcelayout/pkg/force"
	"github.com/matzehuels/forcelayout/pkg/graph"
	"github.com/matzehuels/forcelayout/pkg/observability"
	"github.com/matzehuels/forcelayout/pkg/placement"
)

// Options configures a single engine run.
type Options struct {
	// RunID identifies the run in hooks, logs and the graph's freeze hold.
	// Empty generates a UUID.
	RunID string

	// Progress receives snapshots while the run is in flight. It is called
	// on the engine goroutine and must not block; see [ChannelProgress].
	Progress ProgressFunc

	// Logger receives debug-level events. Nil disables engine logging.
	Logger *log.Logger

	// Lock, if set, is held while the engine reads or writes the graph.
	// Callers sharing the graph across goroutines pass their mutex here.
	Lock sync.Locker
}

// Engine runs one force-directed layout over a graph. An Engine is
// single-use: create one per run.
type Engine struct {
	cfg   Config
	opts  Options
	state atomic.Int32
	used  atomic.Bool
}

// NewEngine creates an idle engine. cfg is validated when the run starts.
func NewEngine(cfg Config, opts Options) *Engine {
	if opts.RunID == "" {
		opts.RunID = uuid.NewString()
	}
	if opts.Lock == nil {
		opts.Lock = noLock{}
	}
	return &Engine{cfg: cfg, opts: opts}
}

// Run is shorthand for NewEngine(cfg, opts).Run(ctx, g).
func Run(ctx context.Context, g *graph.Graph, cfg Config, opts Options) (*Result, error) {
	return NewEngine(cfg, opts).Run(ctx, g)
}

// RunID returns the run's identifier.
func (e *Engine) RunID() string { return e.opts.RunID }

// State returns the current lifecycle state. Safe for concurrent use.
func (e *Engine) State() State { return State(e.state.Load()) }

func (e *Engine) setState(s State) { e.state.Store(int32(s)) }

func (e *Engine) debug(msg string, kv ...any) {
	if e.opts.Logger != nil {
		e.opts.Logger.Debug(msg, kv...)
	}
}

// Run lays out g and writes the final positions back to it.
//
// A configuration error fails the run before any work with a
// [*errors.ConfigError]; a graph already held by another run fails with a
// [*errors.ConcurrentMutationError]. Cancelling ctx stops the run between
// iterations: the positions of the last completed iteration are written
// back and returned with Reason "cancelled", and [Result.Err] reports a
// [*errors.CancelledError]. Run itself then returns a nil error.
//
// Only configuration and internal errors move the engine to StateFailed;
// after a freeze conflict it stays in StateIdle.
func (e *Engine) Run(ctx context.Context, g *graph.Graph) (*Result, error) {
	if e.used.Swap(true) {
		return nil, errors.New(errors.ErrCodeInternal, "layout engine %s already ran", e.opts.RunID)
	}
	start := time.Now()
	hooks := observability.Layout()
	var started bool
	fail := func(err error) (*Result, error) {
		// A graph held by another run leaves this engine Idle.
		if errors.Is(err, errors.ErrCodeConcurrentMutation) {
			e.setState(StateIdle)
		} else {
			e.setState(StateFailed)
		}
		reason := ""
		if started {
			reason = "failed"
		}
		hooks.OnLayoutComplete(ctx, e.opts.RunID, reason, 0, time.Since(start), err)
		e.debug("layout failed", "run", e.opts.RunID, "error", err)
		return nil, err
	}

	e.setState(StateInitializing)
	if err := e.cfg.Validate(); err != nil {
		return fail(err)
	}

	sim, err := e.initialize(g)
	if err != nil {
		return fail(err)
	}
	defer e.withLock(func() { g.Thaw(e.opts.RunID) })

	hooks.OnLayoutStart(ctx, e.opts.RunID, sim.snap.Len(), len(sim.snap.Springs))
	started = true
	e.debug("layout start", "run", e.opts.RunID, "nodes", sim.snap.Len(), "springs", len(sim.snap.Springs),
		"barnes_hut", sim.model.UsesBarnesHut())

	e.setState(StateRunning)
	reason, iterations, err := e.loop(ctx, sim, start)
	if err != nil {
		return fail(err)
	}

	res, err := e.finish(g, sim, reason, iterations, start)
	if err != nil {
		return fail(err)
	}
	if reason == ReasonCancelled {
		res.err = &errors.CancelledError{Iteration: iterations, Cause: context.Cause(ctx)}
		e.setState(StateCancelled)
	} else {
		e.setState(StateConverged)
	}
	hooks.OnLayoutComplete(ctx, e.opts.RunID, string(reason), iterations, res.Duration, nil)
	fallbacks, treeErr := sim.model.Fallbacks()
	e.debug("layout done", "run", e.opts.RunID, "reason", reason, "iterations", iterations,
		"temperature", res.Temperature, "duration", res.Duration, "non_finite", res.NonFinite,
		"exact_fallbacks", fallbacks, "tree_error", treeErr)
	return res, nil
}

func (e *Engine) withLock(fn func()) {
	e.opts.Lock.Lock()
	defer e.opts.Lock.Unlock()
	fn()
}

// simulation is the mutable state of a run.
type simulation struct {
	snap   *force.Snapshot
	model  *force.Model
	pos    []r2.Vec
	forces []r2.Vec
	box    graph.Rect
	temp   float64
}

// =============================================================================
// Initializing
// =============================================================================

// initialize freezes g, snapshots it and assigns starting positions.
func (e *Engine) initialize(g *graph.Graph) (*simulation, error) {
	var (
		sim *simulation
		err error
	)
	e.withLock(func() {
		if err = g.Freeze(e.opts.RunID); err != nil {
			return
		}
		sim = e.newSimulation(g)
	})
	return sim, err
}

func (e *Engine) newSimulation(g *graph.Graph) *simulation {
	cfg := e.cfg
	params := force.Params{
		NodeRepulsion:      cfg.NodeRepulsion.Func(),
		IdealEdgeLength:    cfg.IdealEdgeLength.Func(),
		EdgeElasticity:     cfg.EdgeElasticity.Func(),
		NestingFactor:      cfg.NestingFactor.Func(),
		Gravity:            cfg.Gravity.Func(),
		GravityCompound:    cfg.GravityCompound,
		NodeOverlap:        cfg.NodeOverlap,
		ComponentSpacing:   cfg.ComponentSpacing,
		Center:             cfg.BoundingBox.Center(),
		Theta:              cfg.Theta,
		BarnesHutThreshold: cfg.BarnesHutThreshold,
		Workers:            cfg.Workers,
	}
	snap := force.NewSnapshot(g, params)
	sim := &simulation{
		snap:   snap,
		model:  force.New(snap, params),
		pos:    make([]r2.Vec, snap.Len()),
		forces: make([]r2.Vec, snap.Len()),
		box:    cfg.BoundingBox,
		temp:   cfg.InitialTemp,
	}

	// Nodes without a usable position get a deterministic placement.
	var pending []int
	for _, i := range snap.Sim {
		n, _ := g.NodeByID(snap.IDs[i])
		switch {
		case n.Locked && n.Placed:
			sim.pos[i] = n.Position.Vec()
		case cfg.Randomize || !n.Placed:
			pending = append(pending, i)
		default:
			sim.pos[i] = cfg.BoundingBox.Clamp(n.Position).Vec()
		}
	}
	if len(pending) > 0 {
		opts := cfg.Placement
		opts.Box = cfg.BoundingBox
		opts.Seed = cfg.Seed
		if cfg.Randomize {
			opts.Strategy = placement.StrategyRandom
		}
		ids := make([]string, len(pending))
		values := make([]float64, len(pending))
		for k, i := range pending {
			ids[k] = snap.IDs[i]
			values[k] = e.concentricValue(g, snap.IDs[i])
		}
		for k, p := range placement.Place(ids, values, opts) {
			sim.pos[pending[k]] = p.Vec()
		}
	}

	separateCoincident(sim, math.Max(cfg.NodeOverlap, 1))
	snap.UpdateCompounds(sim.pos)
	return sim
}

func (e *Engine) concentricValue(g *graph.Graph, id string) float64 {
	if attr := e.cfg.ConcentricAttribute; attr != "" {
		n, _ := g.NodeByID(id)
		v, _ := n.Attrs.Float(attr)
		return v
	}
	return float64(g.Degree(id))
}

// separateCoincident moves the k-th unlocked duplicate of a point onto a
// golden-angle spiral of step spacing around it.
func separateCoincident(sim *simulation, spacing float64) {
	seen := make(map[r2.Vec]int, len(sim.snap.Sim))
	for _, i := range sim.snap.Sim {
		p := sim.pos[i]
		k, dup := seen[p]
		seen[p] = k + 1
		if !dup || sim.snap.Locked[i] {
			continue
		}
		a := 2.399963229728653 * float64(k)
		r := spacing * math.Sqrt(float64(k))
		q := graph.Position{X: p.X + r*math.Cos(a), Y: p.Y + r*math.Sin(a)}
		sim.pos[i] = sim.box.Clamp(q).Vec()
	}
}

// =============================================================================
// Running
// =============================================================================

func (e *Engine) loop(ctx context.Context, sim *simulation, start time.Time) (Reason, int, error) {
	cfg := e.cfg
	// Nothing can move.
	if !slices.ContainsFunc(sim.snap.Sim, func(i int) bool { return !sim.snap.Locked[i] }) {
		return ReasonConverged, 0, nil
	}
	emit := e.opts.Progress != nil && cfg.Animate && sim.snap.Len() >= cfg.AnimationThreshold
	hooks := observability.Layout()

	for iter := 0; ; {
		if ctx.Err() != nil {
			return ReasonCancelled, iter, nil
		}
		if err := sim.model.Forces(ctx, sim.pos, sim.forces); err != nil {
			if ctx.Err() != nil {
				return ReasonCancelled, iter, nil
			}
			return "", iter, errors.Wrap(errors.ErrCodeInternal, err, "evaluate forces")
		}
		moved := sim.integrate()
		sim.snap.UpdateCompounds(sim.pos)
		sim.temp = math.Max(sim.temp*cfg.CoolingFactor, cfg.MinTemp)
		iter++

		if iter%cfg.Refresh == 0 {
			hooks.OnIteration(ctx, e.opts.RunID, iter, sim.temp)
			if emit {
				e.opts.Progress(Progress{
					RunID:       e.opts.RunID,
					Iteration:   iter,
					Temperature: sim.temp,
					Positions:   sim.positions(),
				})
			}
		}

		switch {
		// The temperature only floors at MinTemp; a run converges once
		// nothing moves further than ConvergenceThreshold.
		case cfg.ConvergenceThreshold > 0 && moved < cfg.ConvergenceThreshold:
			return ReasonConverged, iter, nil
		case iter >= cfg.NumIter:
			return ReasonMaxIterations, iter, nil
		case cfg.MaxDuration > 0 && time.Since(start) >= cfg.MaxDuration:
			return ReasonMaxIterations, iter, nil
		}
	}
}

// integrate moves every unlocked simulated node along its force, capped at
// the current temperature and kept inside the box. It returns the largest
// displacement.
func (s *simulation) integrate() float64 {
	var moved float64
	for _, i := range s.snap.Sim {
		if s.snap.Locked[i] {
			continue
		}
		d := s.forces[i]
		if n := r2.Norm(d); n > s.temp {
			d = r2.Scale(s.temp/n, d)
		}
		p := graph.FromVec(r2.Add(s.pos[i], d))
		next := s.box.Clamp(p).Vec()
		if !finiteVec(next) {
			continue
		}
		moved = math.Max(moved, r2.Norm(r2.Sub(next, s.pos[i])))
		s.pos[i] = next
	}
	return moved
}

func (s *simulation) positions() map[string]graph.Position {
	out := make(map[string]graph.Position, len(s.pos))
	for i, p := range s.pos {
		out[s.snap.IDs[i]] = graph.FromVec(p)
	}
	return out
}

func finiteVec(v r2.Vec) bool { return finite(v.X) && finite(v.Y) }

// =============================================================================
// Finish
// =============================================================================

func (e *Engine) finish(g *graph.Graph, sim *simulation, reason Reason, iterations int, start time.Time) (*Result, error) {
	positions := sim.positions()
	for id, p := range positions {
		if !p.IsFinite() {
			return nil, errors.New(errors.ErrCodeInternal, "node %q: non-finite position after %d iterations", id, iterations)
		}
	}
	var err error
	e.withLock(func() { err = g.ApplyPositions(e.opts.RunID, positions) })
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeInternal, err, "write back positions")
	}

	bbox := graph.Bounds(positions)
	if len(positions) > 0 {
		bbox = bbox.Pad(e.cfg.Padding)
	}
	return &Result{
		RunID:       e.opts.RunID,
		Positions:   positions,
		BoundingBox: bbox,
		Fit:         e.cfg.Fit,
		Padding:     e.cfg.Padding,
		Reason:      reason,
		Iterations:  iterations,
		Temperature: sim.temp,
		Duration:    time.Since(start),
		NonFinite:   sim.model.NonFinite(),
	}, nil
}

type noLock struct{}

func (noLock) Lock()   {}
func (noLock) Unlock() {}
