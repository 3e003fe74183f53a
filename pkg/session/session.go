package session

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"
	"gonum.org/v1/gonum/spatial/r2"

	"github.com/matzehuels/forcelayout/pkg/errors"
	"github.com/matzehuels/forcelayout/pkg/graph"
	"github.com/matzehuels/forcelayout/pkg/layout"
	"github.com/matzehuels/forcelayout/pkg/spatial"
)

// KindSession is the element kind reported by lookups of unknown sessions.
const KindSession errors.ElementKind = "session"

// Options configures a new session.
type Options struct {
	// ID identifies the session. Empty generates a UUID.
	ID string
	// Logger receives debug-level session and engine events. Nil disables
	// logging.
	Logger *log.Logger
}

// Session owns one graph store and at most one active layout run. All
// methods are safe for concurrent use.
type Session struct {
	id      string
	logger  *log.Logger
	created time.Time
	used    atomic.Int64 // unix nanos of last access

	mu      sync.Mutex
	g       *graph.Graph
	pending []Event // store events awaiting dispatch, guarded by mu
	run     *Run
	closed  bool

	index      *spatial.Grid
	indexIDs   []string
	indexDirty bool

	bus *bus
}

// New creates an empty session.
func New(opts Options) *Session {
	if opts.ID == "" {
		opts.ID = uuid.NewString()
	}
	s := &Session{
		id:         opts.ID,
		logger:     opts.Logger,
		created:    time.Now(),
		g:          graph.New(),
		index:      spatial.NewGrid(0),
		indexDirty: true,
		bus:        newBus(),
	}
	s.g.SetObserver(s.observe)
	s.touch()
	return s
}

// ID returns the session id.
func (s *Session) ID() string { return s.id }

// Created returns the creation time.
func (s *Session) Created() time.Time { return s.created }

// LastUsed returns the time of the most recent call into the session.
func (s *Session) LastUsed() time.Time { return time.Unix(0, s.used.Load()) }

func (s *Session) touch() { s.used.Store(time.Now().UnixNano()) }

func (s *Session) debug(msg string, kv ...any) {
	if s.logger != nil {
		s.logger.Debug(msg, append([]any{"session", s.id}, kv...)...)
	}
}

// observe runs under mu: every graph mutation happens with the lock held.
func (s *Session) observe(c graph.Change) {
	s.indexDirty = true
	typ := EventAdd
	switch c.Op {
	case graph.ChangeRemove:
		typ = EventRemove
	case graph.ChangePosition:
		typ = EventPosition
	}
	s.pending = append(s.pending, Event{Type: typ, Kind: c.Kind, ID: c.ID, Attrs: c.Attrs})
}

// takePending must be called with mu held.
func (s *Session) takePending() []Event {
	evs := s.pending
	s.pending = nil
	return evs
}

// Close cancels any active run, drops the store and fails all pending
// watchers. Other methods fail with a [*errors.NotFoundError] afterwards.
// Calling Close again is a no-op.
func (s *Session) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	run := s.run
	s.mu.Unlock()

	if run != nil {
		run.Cancel()
		<-run.Done()
	}

	s.mu.Lock()
	s.g.SetObserver(nil)
	s.g = graph.New()
	s.pending = nil
	s.mu.Unlock()

	s.bus.close()
	s.debug("session closed")
	return nil
}

// =============================================================================
// Store access
// =============================================================================

// guard must be called with mu held.
func (s *Session) guard(op string) error {
	if s.closed {
		return &errors.NotFoundError{Kind: KindSession, ID: s.id}
	}
	if s.run != nil && !s.run.finished {
		return &errors.ConcurrentMutationError{Op: op, RunID: s.run.ID()}
	}
	return nil
}

// Update applies fn to the store under the session lock. Store events
// produced by fn are dispatched after the lock is released. fn must not
// retain g.
func (s *Session) Update(op string, fn func(g *graph.Graph) error) error {
	s.touch()
	s.mu.Lock()
	if err := s.guard(op); err != nil {
		s.mu.Unlock()
		return err
	}
	err := fn(s.g)
	evs := s.takePending()
	s.mu.Unlock()
	s.bus.dispatch(evs)
	return err
}

// View calls fn with the store under the session lock. fn must not mutate
// or retain g.
func (s *Session) View(fn func(g *graph.Graph) error) error {
	s.touch()
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return &errors.NotFoundError{Kind: KindSession, ID: s.id}
	}
	return fn(s.g)
}

// Add inserts nodes and edges as one atomic batch.
func (s *Session) Add(nodes []graph.Node, edges []graph.Edge) error {
	return s.Update("Add", func(g *graph.Graph) error { return g.Add(nodes, edges) })
}

// RemoveNode removes a node and its incident edges.
func (s *Session) RemoveNode(id string) error {
	return s.Update("RemoveNode", func(g *graph.Graph) error { return g.RemoveNode(id) })
}

// RemoveEdge removes an edge.
func (s *Session) RemoveEdge(id string) error {
	return s.Update("RemoveEdge", func(g *graph.Graph) error { return g.RemoveEdge(id) })
}

// SetPosition moves a node.
func (s *Session) SetPosition(id string, p graph.Position) error {
	return s.Update("SetPosition", func(g *graph.Graph) error { return g.SetPosition(id, p) })
}

// SetLocked pins or releases a node.
func (s *Session) SetLocked(id string, locked bool) error {
	return s.Update("SetLocked", func(g *graph.Graph) error { return g.SetLocked(id, locked) })
}

// GetByID returns the node or edge with the given id.
func (s *Session) GetByID(id string) (graph.Element, error) {
	var el graph.Element
	err := s.View(func(g *graph.Graph) error {
		var err error
		el, err = g.GetByID(id)
		return err
	})
	return el, err
}

// Query returns the elements matching selector. Unlike [graph.Graph.Query]
// the result is materialised, since the store may change once the lock is
// released.
func (s *Session) Query(selector string) ([]graph.Element, error) {
	sel, err := graph.ParseSelector(selector)
	if err != nil {
		return nil, err
	}
	var out []graph.Element
	err = s.View(func(g *graph.Graph) error {
		for el := range g.Select(sel) {
			out = append(out, el)
		}
		return nil
	})
	return out, err
}

// Counts returns the number of nodes and edges.
func (s *Session) Counts() (nodes, edges int) {
	_ = s.View(func(g *graph.Graph) error {
		nodes, edges = g.NodeCount(), g.EdgeCount()
		return nil
	})
	return nodes, edges
}

// Positions returns the positions of every placed node.
func (s *Session) Positions() map[string]graph.Position {
	out := make(map[string]graph.Position)
	_ = s.View(func(g *graph.Graph) error {
		for n := range g.Nodes(nil) {
			if n.Placed {
				out[n.ID] = n.Position
			}
		}
		return nil
	})
	return out
}

// NodesWithin returns the placed nodes within r of p, in insertion order.
func (s *Session) NodesWithin(p graph.Position, r float64) ([]graph.Node, error) {
	return s.spatialQuery(func(idx *spatial.Grid) []int { return idx.Within(p.Vec(), r) })
}

// NearestNodes returns up to k placed nodes closest to p, nearest first.
func (s *Session) NearestNodes(p graph.Position, k int) ([]graph.Node, error) {
	return s.spatialQuery(func(idx *spatial.Grid) []int { return idx.Nearest(p.Vec(), k) })
}

func (s *Session) spatialQuery(q func(*spatial.Grid) []int) ([]graph.Node, error) {
	var out []graph.Node
	err := s.View(func(g *graph.Graph) error {
		if s.indexDirty {
			s.rebuildIndex(g)
		}
		for _, i := range q(s.index) {
			n, err := g.NodeByID(s.indexIDs[i])
			if err != nil {
				return errors.Wrap(errors.ErrCodeInternal, err, "stale spatial index")
			}
			out = append(out, n)
		}
		return nil
	})
	return out, err
}

func (s *Session) rebuildIndex(g *graph.Graph) {
	s.indexIDs = s.indexIDs[:0]
	var pts []r2.Vec
	for n := range g.Nodes(nil) {
		if n.Placed {
			s.indexIDs = append(s.indexIDs, n.ID)
			pts = append(pts, n.Position.Vec())
		}
	}
	s.index.Rebuild(pts)
	s.indexDirty = false
}

// =============================================================================
// Events
// =============================================================================

// On registers a persistent handler for events of typ whose element
// matches selector. An empty selector matches every element.
func (s *Session) On(typ EventType, selector string, h Handler) (*Subscription, error) {
	sel, err := graph.ParseSelector(selector)
	if err != nil {
		return nil, err
	}
	return &Subscription{bus: s.bus, id: s.bus.subscribe(typ, sel, h)}, nil
}

// Once returns a watcher that completes on the next event of typ whose
// element matches selector.
func (s *Session) Once(typ EventType, selector string) (*Watcher, error) {
	sel, err := graph.ParseSelector(selector)
	if err != nil {
		return nil, err
	}
	return newWatcher(s.bus, typ, sel), nil
}

// Emit dispatches a collaborator event such as a tap. If the event names
// an existing element without a Kind or Attrs, they are filled in from
// the store.
func (s *Session) Emit(ev Event) {
	if ev.ID != "" && ev.Kind == "" {
		if el, err := s.GetByID(ev.ID); err == nil {
			ev.Kind = el.Kind
			if ev.Attrs == nil {
				ev.Attrs = el.Attrs()
			}
		}
	}
	s.bus.dispatch([]Event{ev})
}

// =============================================================================
// Layout
// =============================================================================

// StartLayout starts a layout run in the background. The run holds the
// store until it stops; store mutations fail with a
// [*errors.ConcurrentMutationError] meanwhile, and so does a second
// StartLayout. ctx governs the run's lifetime.
func (s *Session) StartLayout(ctx context.Context, cfg layout.Config, opts layout.Options) (*Run, error) {
	s.touch()
	s.mu.Lock()
	if err := s.guard("StartLayout"); err != nil {
		s.mu.Unlock()
		return nil, err
	}
	if opts.Logger == nil {
		opts.Logger = s.logger
	}
	opts.Lock = &s.mu
	engine := layout.NewEngine(cfg, opts)
	runCtx, cancel := context.WithCancelCause(ctx)
	run := &Run{engine: engine, cancel: cancel, done: make(chan struct{})}
	s.run = run
	g := s.g
	s.mu.Unlock()

	s.debug("layout started", "run", run.ID())
	s.bus.dispatch([]Event{{Type: EventLayoutStart, ID: run.ID()}})
	go s.execute(runCtx, run, g)
	return run, nil
}

func (s *Session) execute(ctx context.Context, run *Run, g *graph.Graph) {
	res, err := run.engine.Run(ctx, g)

	s.mu.Lock()
	run.res, run.err = res, err
	run.finished = true
	evs := s.takePending()
	s.mu.Unlock()

	stop := Event{Type: EventLayoutStop, ID: run.ID(), Data: map[string]any{"state": run.engine.State().String()}}
	if res != nil {
		stop.Data["reason"] = string(res.Reason)
		stop.Data["iterations"] = res.Iterations
	}
	if err != nil {
		stop.Data["error"] = err.Error()
	}
	s.bus.dispatch(append(evs, stop))
	s.debug("layout stopped", "run", run.ID(), "state", run.engine.State())

	run.cancel(nil)
	close(run.done)
}

// Layout runs a layout and waits for it. Cancelling ctx stops the run and
// returns its partial result.
func (s *Session) Layout(ctx context.Context, cfg layout.Config, opts layout.Options) (*layout.Result, error) {
	run, err := s.StartLayout(ctx, cfg, opts)
	if err != nil {
		return nil, err
	}
	<-run.Done()
	return run.Result()
}

func (s *Session) running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.run != nil && !s.run.finished
}

// LastRun returns the most recent run, finished or not, or nil.
func (s *Session) LastRun() *Run {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.run
}
