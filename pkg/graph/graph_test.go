package graph

import (
	stderrors "errors"
	"math"
	"slices"
	"testing"

	"github.com/matzehuels/forcelayout/pkg/errors"
)

func chain(t *testing.T, ids ...string) *Graph {
	t.Helper()
	g := New()
	nodes := make([]Node, len(ids))
	for i, id := range ids {
		nodes[i] = Node{ID: id}
	}
	var edges []Edge
	for i := 0; i+1 < len(ids); i++ {
		edges = append(edges, Edge{ID: ids[i] + "-" + ids[i+1], Source: ids[i], Target: ids[i+1]})
	}
	if err := g.Add(nodes, edges); err != nil {
		t.Fatalf("Add: %v", err)
	}
	return g
}

func TestAddNodes(t *testing.T) {
	tests := []struct {
		name    string
		batch   []Node
		wantErr string
	}{
		{"single", []Node{{ID: "a"}}, ""},
		{"empty id", []Node{{ID: "b"}, {ID: ""}}, "empty id"},
		{"collides with existing", []Node{{ID: "x"}}, "duplicate id"},
		{"collides within batch", []Node{{ID: "c"}, {ID: "c"}}, "duplicate id"},
		{"unknown parent", []Node{{ID: "d", Parent: "ghost"}}, "unknown parent"},
		{"parent in batch", []Node{{ID: "child", Parent: "group"}, {ID: "group"}}, ""},
		{"self parent", []Node{{ID: "s", Parent: "s"}}, "is its own parent"},
		{"parent cycle", []Node{{ID: "p", Parent: "q"}, {ID: "q", Parent: "p"}}, "parent cycle"},
		{"non-finite position", []Node{{ID: "n", Placed: true, Position: Position{X: math.NaN()}}}, "non-finite position"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			g := New()
			if err := g.AddNodes([]Node{{ID: "x"}}); err != nil {
				t.Fatalf("seed: %v", err)
			}
			err := g.AddNodes(tt.batch)
			if tt.wantErr == "" {
				if err != nil {
					t.Fatalf("AddNodes() error = %v", err)
				}
				if g.NodeCount() != 1+len(tt.batch) {
					t.Errorf("NodeCount() = %d, want %d", g.NodeCount(), 1+len(tt.batch))
				}
				return
			}
			var ie *errors.IntegrityError
			if !stderrors.As(err, &ie) {
				t.Fatalf("AddNodes() error = %v, want IntegrityError", err)
			}
			if ie.Reason != tt.wantErr {
				t.Errorf("Reason = %q, want %q", ie.Reason, tt.wantErr)
			}
			if g.NodeCount() != 1 {
				t.Errorf("rejected batch changed node count to %d", g.NodeCount())
			}
		})
	}
}

func TestAddEdgesRejectsWholeBatch(t *testing.T) {
	g := chain(t, "a", "b", "c")

	err := g.AddEdges([]Edge{
		{ID: "ok", Source: "a", Target: "c"},
		{ID: "bad", Source: "a", Target: "missing"},
	})
	var ie *errors.IntegrityError
	if !stderrors.As(err, &ie) {
		t.Fatalf("AddEdges() error = %v, want IntegrityError", err)
	}
	if ie.ElementID != "bad" || ie.Ref != "missing" {
		t.Errorf("error context = %+v", ie)
	}
	if _, err := g.EdgeByID("ok"); err == nil {
		t.Error("valid edge from rejected batch was applied")
	}
	if g.EdgeCount() != 2 || g.NodeCount() != 3 {
		t.Errorf("counts = %d nodes, %d edges; want 3, 2", g.NodeCount(), g.EdgeCount())
	}
	if g.Degree("a") != 1 {
		t.Errorf("Degree(a) = %d, want 1", g.Degree("a"))
	}
}

func TestAddEdgeIDCollidesWithNode(t *testing.T) {
	g := chain(t, "a", "b")
	err := g.AddEdges([]Edge{{ID: "a", Source: "a", Target: "b"}})
	if !errors.Is(err, errors.ErrCodeIntegrity) {
		t.Fatalf("error = %v, want INTEGRITY", err)
	}
}

func TestRemoveNodeCascades(t *testing.T) {
	g := chain(t, "a", "b", "c")
	if err := g.AddEdges([]Edge{{ID: "loop", Source: "b", Target: "b"}}); err != nil {
		t.Fatal(err)
	}
	if g.Degree("b") != 4 {
		t.Fatalf("Degree(b) = %d, want 4", g.Degree("b"))
	}

	if err := g.RemoveNode("b"); err != nil {
		t.Fatalf("RemoveNode: %v", err)
	}
	if g.EdgeCount() != 0 {
		t.Errorf("EdgeCount() = %d, want 0", g.EdgeCount())
	}
	if g.Degree("a") != 0 || g.Degree("c") != 0 {
		t.Errorf("degrees not updated: a=%d c=%d", g.Degree("a"), g.Degree("c"))
	}
	if err := g.Validate(); err != nil {
		t.Errorf("Validate: %v", err)
	}

	err := g.RemoveNode("b")
	var nf *errors.NotFoundError
	if !stderrors.As(err, &nf) || nf.ID != "b" {
		t.Errorf("second RemoveNode error = %v, want NotFoundError for b", err)
	}
}

func TestRemoveNodeReparentsChildren(t *testing.T) {
	g := New()
	err := g.AddNodes([]Node{
		{ID: "outer"},
		{ID: "inner", Parent: "outer"},
		{ID: "leaf", Parent: "inner"},
	})
	if err != nil {
		t.Fatal(err)
	}
	if g.Depth("leaf") != 2 {
		t.Fatalf("Depth(leaf) = %d, want 2", g.Depth("leaf"))
	}
	if err := g.RemoveNode("inner"); err != nil {
		t.Fatal(err)
	}
	leaf, _ := g.NodeByID("leaf")
	if leaf.Parent != "outer" {
		t.Errorf("leaf.Parent = %q, want outer", leaf.Parent)
	}
	if got := g.Children("outer"); !slices.Equal(got, []string{"leaf"}) {
		t.Errorf("Children(outer) = %v", got)
	}
}

func TestGetByID(t *testing.T) {
	g := chain(t, "a", "b")

	el, err := g.GetByID("a-b")
	if err != nil || el.Kind != KindEdge || el.ID() != "a-b" {
		t.Errorf("GetByID(edge) = %+v, %v", el, err)
	}
	el, err = g.GetByID("a")
	if err != nil || el.Kind != KindNode || el.Node.Degree != 1 {
		t.Errorf("GetByID(node) = %+v, %v", el, err)
	}
	if _, err := g.GetByID("zzz"); !errors.Is(err, errors.ErrCodeNotFound) {
		t.Errorf("GetByID(missing) error = %v", err)
	}
}

func TestFreezeBlocksMutation(t *testing.T) {
	g := chain(t, "a", "b")
	if err := g.Freeze("run-1"); err != nil {
		t.Fatal(err)
	}

	ops := map[string]func() error{
		"AddNodes":    func() error { return g.AddNodes([]Node{{ID: "c"}}) },
		"AddEdges":    func() error { return g.AddEdges([]Edge{{ID: "e", Source: "a", Target: "b"}}) },
		"RemoveNode":  func() error { return g.RemoveNode("a") },
		"RemoveEdge":  func() error { return g.RemoveEdge("a-b") },
		"SetPosition": func() error { return g.SetPosition("a", Position{}) },
		"SetLocked":   func() error { return g.SetLocked("a", true) },
		"Freeze":      func() error { return g.Freeze("run-2") },
	}
	for name, op := range ops {
		t.Run(name, func(t *testing.T) {
			var cm *errors.ConcurrentMutationError
			if err := op(); !stderrors.As(err, &cm) {
				t.Fatalf("error = %v, want ConcurrentMutationError", err)
			} else if cm.RunID != "run-1" {
				t.Errorf("RunID = %q, want run-1", cm.RunID)
			}
		})
	}

	if err := g.ApplyPositions("run-1", map[string]Position{"a": {X: 1, Y: 2}}); err != nil {
		t.Errorf("ApplyPositions by holder: %v", err)
	}
	if err := g.ApplyPositions("run-2", map[string]Position{"a": {}}); !errors.Is(err, errors.ErrCodeConcurrentMutation) {
		t.Errorf("ApplyPositions by other run error = %v", err)
	}

	g.Thaw("run-1")
	if err := g.AddNodes([]Node{{ID: "c"}}); err != nil {
		t.Errorf("AddNodes after Thaw: %v", err)
	}
}

func TestApplyPositionsAtomic(t *testing.T) {
	g := chain(t, "a", "b")
	err := g.ApplyPositions("", map[string]Position{
		"a": {X: 1},
		"b": {X: math.Inf(1)},
	})
	if err == nil {
		t.Fatal("expected error for non-finite position")
	}
	if a, _ := g.NodeByID("a"); a.Placed {
		t.Error("node a was placed by a rejected batch")
	}
}

func TestObserver(t *testing.T) {
	g := New()
	var got []Change
	g.SetObserver(func(c Change) { got = append(got, c) })

	_ = g.Add([]Node{{ID: "a"}, {ID: "b"}}, []Edge{{ID: "e", Source: "a", Target: "b"}})
	_ = g.RemoveNode("a")

	want := []Change{
		{Op: ChangeAdd, Kind: KindNode, ID: "a"},
		{Op: ChangeAdd, Kind: KindNode, ID: "b"},
		{Op: ChangeAdd, Kind: KindEdge, ID: "e"},
		{Op: ChangeRemove, Kind: KindEdge, ID: "e"},
		{Op: ChangeRemove, Kind: KindNode, ID: "a"},
	}
	same := func(a, b Change) bool { return a.Op == b.Op && a.Kind == b.Kind && a.ID == b.ID }
	if !slices.EqualFunc(got, want, same) {
		t.Errorf("changes = %v, want %v", got, want)
	}
	for _, c := range got {
		if c.Attrs == nil {
			t.Errorf("change %v has nil attrs", c)
		}
	}
}

func TestComponents(t *testing.T) {
	g := New()
	_ = g.Add(
		[]Node{{ID: "a"}, {ID: "b"}, {ID: "c"}, {ID: "group"}, {ID: "member", Parent: "group"}, {ID: "lonely"}},
		[]Edge{{ID: "ab", Source: "a", Target: "b"}, {ID: "cb", Source: "c", Target: "b"}},
	)

	got := g.Components()
	want := [][]string{{"a", "b", "c"}, {"group", "member"}, {"lonely"}}
	if len(got) != len(want) {
		t.Fatalf("Components() = %v, want %v", got, want)
	}
	for i := range want {
		if !slices.Equal(got[i], want[i]) {
			t.Errorf("component %d = %v, want %v", i, got[i], want[i])
		}
	}
}

func TestInsertionOrderSurvivesCompaction(t *testing.T) {
	g := New()
	var batch []Node
	for _, id := range []string{"n1", "n2", "n3", "n4", "n5", "n6"} {
		batch = append(batch, Node{ID: id})
	}
	_ = g.AddNodes(batch)
	for _, id := range []string{"n2", "n4", "n5"} {
		if err := g.RemoveNode(id); err != nil {
			t.Fatal(err)
		}
	}
	_ = g.AddNodes([]Node{{ID: "n2"}})

	var ids []string
	for n := range g.Nodes(nil) {
		ids = append(ids, n.ID)
	}
	if want := []string{"n1", "n3", "n6", "n2"}; !slices.Equal(ids, want) {
		t.Errorf("order = %v, want %v", ids, want)
	}
}

func TestAttributesFloat(t *testing.T) {
	attrs := Attributes{"f": 1.5, "i": 3, "u": uint8(7), "s": "12", "b": true}
	tests := []struct {
		key  string
		want float64
		ok   bool
	}{
		{"f", 1.5, true},
		{"i", 3, true},
		{"u", 7, true},
		{"s", 0, false},
		{"b", 0, false},
		{"missing", 0, false},
	}
	for _, tt := range tests {
		t.Run(tt.key, func(t *testing.T) {
			got, ok := attrs.Float(tt.key)
			if got != tt.want || ok != tt.ok {
				t.Errorf("Float(%q) = %v, %v; want %v, %v", tt.key, got, ok, tt.want, tt.ok)
			}
		})
	}
}
