package cli

import (
	"context"
	"encoding/json"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/charmbracelet/log"

	"github.com/matzehuels/forcelayout/pkg/graph"
	pkgio "github.com/matzehuels/forcelayout/pkg/io"
	"github.com/matzehuels/forcelayout/pkg/session"
)

func execute(t *testing.T, args ...string) error {
	t.Helper()
	root := New(io.Discard, LogInfo).RootCommand()
	root.SetArgs(args)
	root.SetOut(io.Discard)
	root.SetErr(io.Discard)
	return root.ExecuteContext(context.Background())
}

func generateGraph(t *testing.T, n string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "chain.json")
	if err := execute(t, "generate", "--count", n, "-o", path); err != nil {
		t.Fatalf("generate: %v", err)
	}
	return path
}

func TestGenerateCommand(t *testing.T) {
	path := generateGraph(t, "100")
	d, err := pkgio.Load(context.Background(), path)
	if err != nil {
		t.Fatal(err)
	}
	if len(d.Nodes) != 100 || len(d.Edges) != 99 {
		t.Fatalf("generated %d nodes, %d edges", len(d.Nodes), len(d.Edges))
	}
	if p := d.Nodes[7].Position; p == nil || p.X != 70 || p.Y != 70 || d.Nodes[7].Data["myLabel"] != "Odd" {
		t.Errorf("node 7 = %+v", d.Nodes[7])
	}

	if err := execute(t, "generate", "--count", "0"); err == nil {
		t.Error("zero count accepted")
	}
}

func TestTimeStore(t *testing.T) {
	nodes, edges := demoChain(100)
	sess := newTestSession(t)
	got, err := timeStore(sess, New(io.Discard, LogInfo).Logger, nodes, edges)
	if err != nil {
		t.Fatal(err)
	}
	// Edge i has weight i*10, so weights above 100 start at e11.
	if got.EvenCount != 50 || got.HeavyCount != 89 {
		t.Errorf("even = %d, heavy = %d", got.EvenCount, got.HeavyCount)
	}
}

func TestLayoutCommand(t *testing.T) {
	cacheHome := t.TempDir()
	t.Setenv("XDG_CACHE_HOME", cacheHome)
	input := generateGraph(t, "30")
	output := filepath.Join(t.TempDir(), "out.json")

	if err := execute(t, "layout", input, "--iterations", "80", "--seed", "7", "--randomize", "-o", output); err != nil {
		t.Fatalf("layout: %v", err)
	}
	data, err := os.ReadFile(output)
	if err != nil {
		t.Fatal(err)
	}
	var lf layoutFile
	if err := json.Unmarshal(data, &lf); err != nil {
		t.Fatal(err)
	}
	if len(lf.Result.Positions) != 30 || len(lf.Graph.Nodes) != 30 || lf.Result.Iterations > 80 {
		t.Errorf("layout file: %d positions, %d nodes, %d iterations",
			len(lf.Result.Positions), len(lf.Graph.Nodes), lf.Result.Iterations)
	}
	if got := *lf.Graph.Nodes[3].Position; got != lf.Result.Positions["3"] {
		t.Errorf("graph position %v, result %v", got, lf.Result.Positions["3"])
	}

	entries, _ := os.ReadDir(filepath.Join(cacheHome, appName, "layouts"))
	if len(entries) == 0 {
		t.Error("layout was not cached")
	}

	dot := filepath.Join(t.TempDir(), "out.dot")
	if err := execute(t, "layout", input, "--iterations", "80", "--seed", "7", "--randomize", "-o", dot); err != nil {
		t.Fatalf("layout to dot: %v", err)
	}
	data, _ = os.ReadFile(dot)
	if !strings.HasPrefix(string(data), "digraph") || !strings.Contains(string(data), `pos="`) {
		t.Errorf("dot output:\n%s", data)
	}
}

func TestLayoutCommandErrors(t *testing.T) {
	t.Setenv("XDG_CACHE_HOME", t.TempDir())
	input := generateGraph(t, "5")

	badConfig := filepath.Join(t.TempDir(), "bad.toml")
	_ = os.WriteFile(badConfig, []byte("cooling_factor = 2\n"), 0o644)

	tests := []struct {
		name string
		args []string
	}{
		{"missing input", []string{"layout", filepath.Join(t.TempDir(), "nope.json")}},
		{"bad config", []string{"layout", input, "--config", badConfig}},
		{"bad iterations", []string{"layout", input, "--iterations", "0"}},
		{"bad backend", []string{"layout", input, "--cache-backend", "memcached"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := execute(t, tt.args...); err == nil {
				t.Error("expected an error")
			}
		})
	}
}

func TestPlaceCommand(t *testing.T) {
	input := generateGraph(t, "12")
	for _, algo := range []string{"circle", "grid", "concentric"} {
		t.Run(algo, func(t *testing.T) {
			output := filepath.Join(t.TempDir(), algo+".json")
			if err := execute(t, "place", input, "--algorithm", algo, "--attribute", "weight", "-o", output); err != nil {
				t.Fatalf("place: %v", err)
			}
			d, err := pkgio.Load(context.Background(), output)
			if err != nil {
				t.Fatal(err)
			}
			seen := map[[2]float64]bool{}
			for _, n := range d.Nodes {
				if n.Position == nil {
					t.Fatalf("node %s unplaced", n.ID)
				}
				p := *n.Position
				if p.X < 0 || p.X > 800 || p.Y < 0 || p.Y > 600 {
					t.Errorf("node %s at %v outside the box", n.ID, p)
				}
				seen[[2]float64{p.X, p.Y}] = true
			}
			if algo != "concentric" && len(seen) != 12 {
				t.Errorf("%d distinct positions, want 12", len(seen))
			}
		})
	}

	if err := execute(t, "place", input, "--algorithm", "spiral"); err == nil {
		t.Error("unknown algorithm accepted")
	}
}

func TestQueryCommand(t *testing.T) {
	input := generateGraph(t, "10")
	if err := execute(t, "query", input, "node[myLabel='Even']"); err != nil {
		t.Errorf("query: %v", err)
	}
	if err := execute(t, "query", input, "[weight>"); err == nil {
		t.Error("bad selector accepted")
	}
}

func TestCacheCommands(t *testing.T) {
	t.Setenv("XDG_CACHE_HOME", t.TempDir())
	for _, args := range [][]string{
		{"cache", "path"},
		{"cache", "clear"},
		{"cache", "clear", "--cache-backend", "bolt"},
		{"cache", "clear", "--cache-backend", "none"},
	} {
		if err := execute(t, args...); err != nil {
			t.Errorf("%v: %v", args, err)
		}
	}
}

func TestElementTable(t *testing.T) {
	nodes, edges := demoChain(3)
	sess := newTestSession(t)
	if err := sess.Add(nodes, edges); err != nil {
		t.Fatal(err)
	}
	els, _ := sess.Query("")
	out := elementTable(els)
	for _, want := range []string{"Kind", "myLabel=Even", "0 → 1", "20.0, 20.0"} {
		if !strings.Contains(out, want) {
			t.Errorf("table missing %q:\n%s", want, out)
		}
	}
}

func newTestSession(t *testing.T) *session.Session {
	t.Helper()
	s := session.New(session.Options{})
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestSessionPersistence(t *testing.T) {
	ctx := context.Background()
	logger := log.New(io.Discard)
	store, err := session.NewFileStore(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}

	before := session.NewManager(time.Hour, logger)
	sess := before.Create()
	if err := sess.Add([]graph.Node{{ID: "a"}, {ID: "b"}}, []graph.Edge{{ID: "ab", Source: "a", Target: "b"}}); err != nil {
		t.Fatal(err)
	}
	saveSessions(store, before, logger)
	_ = before.Close()

	after := session.NewManager(time.Hour, logger)
	defer after.Close()
	n, err := restoreSessions(ctx, store, after, logger)
	if err != nil || n != 1 {
		t.Fatalf("restoreSessions = %d, %v", n, err)
	}
	got, err := after.Get(sess.ID())
	if err != nil {
		t.Fatal(err)
	}
	if _, err := got.GetByID("ab"); err != nil {
		t.Errorf("restored session lost edge: %v", err)
	}
}
