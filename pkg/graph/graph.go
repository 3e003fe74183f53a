package graph

import (
	"slices"

	"github.com/matzehuels/forcelayout/pkg/errors"
)

type nodeRec struct {
	node     Node
	incident map[string]struct{} // incident edge ids
	children map[string]struct{}
	removed  bool
}

type edgeRec struct {
	edge    Edge
	removed bool
}

// Graph holds nodes, edges and their attributes.
//
// Every batch mutation is atomic: it is fully validated before anything is
// applied, so a rejected batch leaves the graph unchanged. Iteration order
// is insertion order.
//
// The zero value is not usable - use New. Graph is not safe for concurrent
// use; the owning session serialises access.
type Graph struct {
	nodes     map[string]*nodeRec
	edges     map[string]*edgeRec
	nodeOrder []*nodeRec
	edgeOrder []*edgeRec
	dead      int // removed records still present in the order slices

	frozenBy string
	observer Observer
}

// New creates an empty graph.
func New() *Graph {
	return &Graph{
		nodes: make(map[string]*nodeRec),
		edges: make(map[string]*edgeRec),
	}
}

// SetObserver installs fn to receive every applied change. Pass nil to
// remove it.
func (g *Graph) SetObserver(fn Observer) { g.observer = fn }

func (g *Graph) notify(op ChangeOp, kind Kind, id string, attrs Attributes) {
	if g.observer != nil {
		g.observer(Change{Op: op, Kind: kind, ID: id, Attrs: attrs})
	}
}

// =============================================================================
// Run guard
// =============================================================================

// Freeze marks the graph as held by a layout run. Until Thaw is called
// with the same run id, every mutation fails with a
// [errors.ConcurrentMutationError].
func (g *Graph) Freeze(runID string) error {
	if g.frozenBy != "" {
		return &errors.ConcurrentMutationError{Op: "Freeze", RunID: g.frozenBy}
	}
	g.frozenBy = runID
	return nil
}

// Thaw releases a hold taken by Freeze. Thawing with a different run id is
// a no-op.
func (g *Graph) Thaw(runID string) {
	if g.frozenBy == runID {
		g.frozenBy = ""
	}
}

// FrozenBy returns the id of the run holding the graph, or empty.
func (g *Graph) FrozenBy() string { return g.frozenBy }

func (g *Graph) guard(op string) error {
	if g.frozenBy != "" {
		return &errors.ConcurrentMutationError{Op: op, RunID: g.frozenBy}
	}
	return nil
}

// =============================================================================
// Mutation
// =============================================================================

// AddNodes adds a batch of nodes. The batch is rejected as a whole with an
// [errors.IntegrityError] if any id is empty or collides, if a parent is
// missing, or if the batch forms a parent cycle.
func (g *Graph) AddNodes(batch []Node) error {
	return g.Add(batch, nil)
}

// AddEdges adds a batch of edges. The batch is rejected as a whole with an
// [errors.IntegrityError] if any id is empty or collides, or if an endpoint
// does not exist.
func (g *Graph) AddEdges(batch []Edge) error {
	return g.Add(nil, batch)
}

// Add adds nodes and edges as one atomic batch. Edges may reference nodes
// from the same batch.
func (g *Graph) Add(nodes []Node, edges []Edge) error {
	if err := g.guard("Add"); err != nil {
		return err
	}
	batchNodes, err := g.validateNodes(nodes)
	if err != nil {
		return err
	}
	if err := g.validateEdges(edges, batchNodes); err != nil {
		return err
	}

	for _, n := range nodes {
		g.insertNode(n)
	}
	for _, n := range nodes {
		if n.Parent != "" {
			g.nodes[n.Parent].children[n.ID] = struct{}{}
		}
	}
	for _, e := range edges {
		g.insertEdge(e)
	}
	for _, n := range nodes {
		g.notify(ChangeAdd, KindNode, n.ID, g.nodes[n.ID].node.Attrs)
	}
	for _, e := range edges {
		g.notify(ChangeAdd, KindEdge, e.ID, g.edges[e.ID].edge.Attrs)
	}
	return nil
}

func (g *Graph) idTaken(id string) bool {
	_, n := g.nodes[id]
	_, e := g.edges[id]
	return n || e
}

func (g *Graph) validateNodes(batch []Node) (map[string]*Node, error) {
	seen := make(map[string]*Node, len(batch))
	for i := range batch {
		n := &batch[i]
		if n.ID == "" {
			return nil, &errors.IntegrityError{Kind: KindNode, ElementID: n.ID, Reason: "empty id"}
		}
		if g.idTaken(n.ID) || seen[n.ID] != nil {
			return nil, &errors.IntegrityError{Kind: KindNode, ElementID: n.ID, Reason: "duplicate id"}
		}
		if n.Placed && !n.Position.IsFinite() {
			return nil, &errors.IntegrityError{Kind: KindNode, ElementID: n.ID, Reason: "non-finite position"}
		}
		seen[n.ID] = n
	}
	for _, n := range seen {
		if n.Parent == "" {
			continue
		}
		if n.Parent == n.ID {
			return nil, &errors.IntegrityError{Kind: KindNode, ElementID: n.ID, Ref: n.Parent, Reason: "is its own parent"}
		}
		if _, ok := g.nodes[n.Parent]; !ok && seen[n.Parent] == nil {
			return nil, &errors.IntegrityError{Kind: KindNode, ElementID: n.ID, Ref: n.Parent, Reason: "unknown parent"}
		}
	}
	// Existing nodes cannot point into the batch, so a cycle can only run
	// through batch nodes.
	for _, n := range seen {
		steps := 0
		for p := n.Parent; p != ""; steps++ {
			if p == n.ID || steps > len(seen) {
				return nil, &errors.IntegrityError{Kind: KindNode, ElementID: n.ID, Reason: "parent cycle"}
			}
			next, ok := seen[p]
			if !ok {
				break
			}
			p = next.Parent
		}
	}
	return seen, nil
}

func (g *Graph) validateEdges(batch []Edge, batchNodes map[string]*Node) error {
	seen := make(map[string]struct{}, len(batch))
	exists := func(id string) bool {
		if _, ok := g.nodes[id]; ok {
			return true
		}
		return batchNodes[id] != nil
	}
	for _, e := range batch {
		if e.ID == "" {
			return &errors.IntegrityError{Kind: KindEdge, ElementID: e.ID, Reason: "empty id"}
		}
		_, dup := seen[e.ID]
		if dup || g.idTaken(e.ID) || batchNodes[e.ID] != nil {
			return &errors.IntegrityError{Kind: KindEdge, ElementID: e.ID, Reason: "duplicate id"}
		}
		if !exists(e.Source) {
			return &errors.IntegrityError{Kind: KindEdge, ElementID: e.ID, Ref: e.Source, Reason: "unknown source"}
		}
		if !exists(e.Target) {
			return &errors.IntegrityError{Kind: KindEdge, ElementID: e.ID, Ref: e.Target, Reason: "unknown target"}
		}
		seen[e.ID] = struct{}{}
	}
	return nil
}

func (g *Graph) insertNode(n Node) {
	n.Attrs = n.Attrs.clone()
	n.Degree = 0
	rec := &nodeRec{node: n, incident: map[string]struct{}{}, children: map[string]struct{}{}}
	g.nodes[n.ID] = rec
	g.nodeOrder = append(g.nodeOrder, rec)
}

func (g *Graph) insertEdge(e Edge) {
	e.Attrs = e.Attrs.clone()
	rec := &edgeRec{edge: e}
	g.edges[e.ID] = rec
	g.edgeOrder = append(g.edgeOrder, rec)
	src, dst := g.nodes[e.Source], g.nodes[e.Target]
	src.incident[e.ID] = struct{}{}
	dst.incident[e.ID] = struct{}{}
	src.node.Degree++
	dst.node.Degree++
}

// RemoveNode removes a node and cascades to its incident edges. Children of
// the removed node are re-parented to its parent. Returns an
// [errors.NotFoundError] if the id is absent.
func (g *Graph) RemoveNode(id string) error {
	if err := g.guard("RemoveNode"); err != nil {
		return err
	}
	rec, ok := g.nodes[id]
	if !ok {
		return &errors.NotFoundError{Kind: KindNode, ID: id}
	}

	incident := make([]string, 0, len(rec.incident))
	for eid := range rec.incident {
		incident = append(incident, eid)
	}
	slices.Sort(incident)
	for _, eid := range incident {
		g.dropEdge(eid)
	}

	parent := rec.node.Parent
	for cid := range rec.children {
		child := g.nodes[cid]
		child.node.Parent = parent
		if p, ok := g.nodes[parent]; ok {
			p.children[cid] = struct{}{}
		}
	}
	if p, ok := g.nodes[parent]; ok {
		delete(p.children, id)
	}

	rec.removed = true
	delete(g.nodes, id)
	g.dead++
	g.compact()
	g.notify(ChangeRemove, KindNode, id, rec.node.Attrs)
	return nil
}

// RemoveEdge removes an edge. Returns an [errors.NotFoundError] if the id is
// absent.
func (g *Graph) RemoveEdge(id string) error {
	if err := g.guard("RemoveEdge"); err != nil {
		return err
	}
	if _, ok := g.edges[id]; !ok {
		return &errors.NotFoundError{Kind: KindEdge, ID: id}
	}
	g.dropEdge(id)
	g.compact()
	return nil
}

func (g *Graph) dropEdge(id string) {
	rec := g.edges[id]
	for _, end := range []string{rec.edge.Source, rec.edge.Target} {
		if n, ok := g.nodes[end]; ok {
			delete(n.incident, id)
			n.node.Degree--
		}
	}
	rec.removed = true
	delete(g.edges, id)
	g.dead++
	g.notify(ChangeRemove, KindEdge, id, rec.edge.Attrs)
}

// compact drops removed records from the order slices once they make up
// half of them. New slices are allocated so that in-flight iterations keep
// their own view.
func (g *Graph) compact() {
	if g.dead*2 < len(g.nodeOrder)+len(g.edgeOrder) {
		return
	}
	nodes := make([]*nodeRec, 0, len(g.nodes))
	for _, r := range g.nodeOrder {
		if !r.removed {
			nodes = append(nodes, r)
		}
	}
	edges := make([]*edgeRec, 0, len(g.edges))
	for _, r := range g.edgeOrder {
		if !r.removed {
			edges = append(edges, r)
		}
	}
	g.nodeOrder, g.edgeOrder, g.dead = nodes, edges, 0
}

// SetPosition assigns a node position.
func (g *Graph) SetPosition(id string, p Position) error {
	if err := g.guard("SetPosition"); err != nil {
		return err
	}
	return g.setPosition(id, p)
}

func (g *Graph) setPosition(id string, p Position) error {
	rec, ok := g.nodes[id]
	if !ok {
		return &errors.NotFoundError{Kind: KindNode, ID: id}
	}
	if !p.IsFinite() {
		return &errors.IntegrityError{Kind: KindNode, ElementID: id, Reason: "non-finite position"}
	}
	rec.node.Position = p
	rec.node.Placed = true
	g.notify(ChangePosition, KindNode, id, rec.node.Attrs)
	return nil
}

// ApplyPositions writes a batch of positions on behalf of the run holding
// the graph. It is the only position write allowed while frozen, and it is
// atomic: unknown ids or non-finite values reject the whole batch.
func (g *Graph) ApplyPositions(runID string, positions map[string]Position) error {
	if g.frozenBy != "" && g.frozenBy != runID {
		return &errors.ConcurrentMutationError{Op: "ApplyPositions", RunID: g.frozenBy}
	}
	ids := make([]string, 0, len(positions))
	for id, p := range positions {
		if _, ok := g.nodes[id]; !ok {
			return &errors.NotFoundError{Kind: KindNode, ID: id}
		}
		if !p.IsFinite() {
			return &errors.IntegrityError{Kind: KindNode, ElementID: id, Reason: "non-finite position"}
		}
		ids = append(ids, id)
	}
	slices.Sort(ids)
	for _, id := range ids {
		_ = g.setPosition(id, positions[id])
	}
	return nil
}

// SetLocked sets the locked flag of a node.
func (g *Graph) SetLocked(id string, locked bool) error {
	if err := g.guard("SetLocked"); err != nil {
		return err
	}
	rec, ok := g.nodes[id]
	if !ok {
		return &errors.NotFoundError{Kind: KindNode, ID: id}
	}
	rec.node.Locked = locked
	return nil
}

// =============================================================================
// Lookup
// =============================================================================

// NodeCount returns the number of nodes.
func (g *Graph) NodeCount() int { return len(g.nodes) }

// EdgeCount returns the number of edges.
func (g *Graph) EdgeCount() int { return len(g.edges) }

// NodeByID returns the node with the given id in O(1).
func (g *Graph) NodeByID(id string) (Node, error) {
	rec, ok := g.nodes[id]
	if !ok {
		return Node{}, &errors.NotFoundError{Kind: KindNode, ID: id}
	}
	return rec.node, nil
}

// EdgeByID returns the edge with the given id in O(1).
func (g *Graph) EdgeByID(id string) (Edge, error) {
	rec, ok := g.edges[id]
	if !ok {
		return Edge{}, &errors.NotFoundError{Kind: KindEdge, ID: id}
	}
	return rec.edge, nil
}

// GetByID returns the node or edge with the given id in O(1). Node and
// edge ids share one namespace.
func (g *Graph) GetByID(id string) (Element, error) {
	if rec, ok := g.nodes[id]; ok {
		return Element{Kind: KindNode, Node: rec.node}, nil
	}
	if rec, ok := g.edges[id]; ok {
		return Element{Kind: KindEdge, Edge: rec.edge}, nil
	}
	return Element{}, &errors.NotFoundError{ID: id}
}

// HasNode reports whether a node with the id exists.
func (g *Graph) HasNode(id string) bool {
	_, ok := g.nodes[id]
	return ok
}

// Degree returns the cached number of edges incident to the node, or 0 if
// it does not exist. Self-loops count twice.
func (g *Graph) Degree(id string) int {
	if rec, ok := g.nodes[id]; ok {
		return rec.node.Degree
	}
	return 0
}

// IncidentEdges returns the ids of edges touching the node, sorted.
func (g *Graph) IncidentEdges(id string) []string {
	rec, ok := g.nodes[id]
	if !ok {
		return nil
	}
	ids := make([]string, 0, len(rec.incident))
	for eid := range rec.incident {
		ids = append(ids, eid)
	}
	slices.Sort(ids)
	return ids
}

// Neighbors returns the ids of nodes sharing an edge with the node, sorted
// and without duplicates.
func (g *Graph) Neighbors(id string) []string {
	rec, ok := g.nodes[id]
	if !ok {
		return nil
	}
	set := make(map[string]struct{}, len(rec.incident))
	for eid := range rec.incident {
		e := g.edges[eid].edge
		other := e.Target
		if other == id {
			other = e.Source
		}
		if other != id {
			set[other] = struct{}{}
		}
	}
	out := make([]string, 0, len(set))
	for n := range set {
		out = append(out, n)
	}
	slices.Sort(out)
	return out
}

// Children returns the ids of nodes whose parent is id, sorted.
func (g *Graph) Children(id string) []string {
	rec, ok := g.nodes[id]
	if !ok {
		return nil
	}
	out := make([]string, 0, len(rec.children))
	for c := range rec.children {
		out = append(out, c)
	}
	slices.Sort(out)
	return out
}

// IsCompound reports whether the node contains other nodes.
func (g *Graph) IsCompound(id string) bool {
	rec, ok := g.nodes[id]
	return ok && len(rec.children) > 0
}

// Validate checks the referential integrity invariants: every edge endpoint
// and parent exists, and cached degrees match the incident edges.
func (g *Graph) Validate() error {
	degree := make(map[string]int, len(g.nodes))
	for id, rec := range g.edges {
		e := rec.edge
		if _, ok := g.nodes[e.Source]; !ok {
			return &errors.IntegrityError{Kind: KindEdge, ElementID: id, Ref: e.Source, Reason: "unknown source"}
		}
		if _, ok := g.nodes[e.Target]; !ok {
			return &errors.IntegrityError{Kind: KindEdge, ElementID: id, Ref: e.Target, Reason: "unknown target"}
		}
		degree[e.Source]++
		degree[e.Target]++
	}
	for id, rec := range g.nodes {
		if p := rec.node.Parent; p != "" {
			if _, ok := g.nodes[p]; !ok {
				return &errors.IntegrityError{Kind: KindNode, ElementID: id, Ref: p, Reason: "unknown parent"}
			}
		}
		if rec.node.Degree != degree[id] {
			return errors.New(errors.ErrCodeInternal, "node %q: cached degree %d, actual %d", id, rec.node.Degree, degree[id])
		}
	}
	return nil
}
