package pipeline

import (
	"context"
	"fmt"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/charmbracelet/log"

	"github.com/matzehuels/forcelayout/pkg/errors"
	"github.com/matzehuels/forcelayout/pkg/graph"
	pkgio "github.com/matzehuels/forcelayout/pkg/io"
	"github.com/matzehuels/forcelayout/pkg/layout"
)

type memCache struct {
	mu   sync.Mutex
	data map[string][]byte
	sets int
}

func newMemCache() *memCache { return &memCache{data: map[string][]byte{}} }

func (c *memCache) Get(_ context.Context, key string) ([]byte, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	d, ok := c.data[key]
	return d, ok, nil
}

func (c *memCache) Set(_ context.Context, key string, data []byte, _ time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.data[key] = data
	c.sets++
	return nil
}

func (c *memCache) Delete(_ context.Context, key string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.data, key)
	return nil
}

func (c *memCache) Close() error { return nil }

func chain(n int) pkgio.Description {
	var d pkgio.Description
	for i := range n {
		d.Nodes = append(d.Nodes, pkgio.Node{ID: fmt.Sprint(i), Data: graph.Attributes{"weight": float64(i * 10)}})
		if i > 0 {
			d.Edges = append(d.Edges, pkgio.Edge{ID: fmt.Sprintf("e%d", i), Source: fmt.Sprint(i - 1), Target: fmt.Sprint(i)})
		}
	}
	return d
}

func quickConfig() layout.Config {
	cfg := layout.DefaultConfig()
	cfg.NumIter = 50
	return cfg
}

func newTestRunner(c *memCache) *Runner {
	return NewRunner(c, nil, log.NewWithOptions(io.Discard, log.Options{}))
}

func TestRunnerCachesLayout(t *testing.T) {
	c := newMemCache()
	r := newTestRunner(c)
	ctx := context.Background()

	first, err := r.Layout(ctx, chain(8), quickConfig(), Options{})
	if err != nil {
		t.Fatalf("Layout: %v", err)
	}
	if first.CacheInfo.Hit || !first.CacheInfo.Stored || !first.CacheInfo.Cacheable {
		t.Errorf("first run cache info = %+v", first.CacheInfo)
	}
	if first.Stats.NodeCount != 8 || first.Stats.EdgeCount != 7 {
		t.Errorf("stats = %+v", first.Stats)
	}

	second, err := r.Layout(ctx, chain(8), quickConfig(), Options{})
	if err != nil {
		t.Fatal(err)
	}
	if !second.CacheInfo.Hit || second.CacheInfo.Stored {
		t.Errorf("second run cache info = %+v", second.CacheInfo)
	}
	if second.CacheKey != first.CacheKey || second.GraphHash != first.GraphHash {
		t.Error("keys differ for identical inputs")
	}
	if second.Layout.Reason != first.Layout.Reason || second.Layout.Iterations != first.Layout.Iterations {
		t.Errorf("cached result = %+v", second.Layout)
	}
	for i, n := range second.Graph.Nodes {
		if n.Position == nil || *n.Position != first.Layout.Positions[n.ID] {
			t.Errorf("node %d position = %v, want %v", i, n.Position, first.Layout.Positions[n.ID])
		}
	}
	if c.sets != 1 {
		t.Errorf("sets = %d, want 1", c.sets)
	}

	other := quickConfig()
	other.Seed = 7
	third, _ := r.Layout(ctx, chain(8), other, Options{})
	if third.CacheInfo.Hit || third.CacheKey == first.CacheKey {
		t.Error("different config served from cache")
	}
}

func TestRunnerCachesEdgesWithoutIDs(t *testing.T) {
	const doc = `{"nodes":[{"id":"a"},{"id":"b"},{"id":"c"}],
		"edges":[{"source":"a","target":"b"},{"source":"b","target":"c"},{"source":"a","target":"b"}]}`
	r := newTestRunner(newMemCache())
	ctx := context.Background()

	var results []*Result
	for range 2 {
		d, err := pkgio.DecodeJSON(strings.NewReader(doc))
		if err != nil {
			t.Fatal(err)
		}
		res, err := r.Layout(ctx, d, quickConfig(), Options{})
		if err != nil {
			t.Fatalf("Layout: %v", err)
		}
		results = append(results, res)
	}
	if results[1].GraphHash != results[0].GraphHash {
		t.Error("graph hash changed between decodes of the same document")
	}
	if !results[1].CacheInfo.Hit {
		t.Errorf("second decode cache info = %+v, want hit", results[1].CacheInfo)
	}
}

func TestRunnerSkipsCache(t *testing.T) {
	ctx := context.Background()
	fn := quickConfig()
	fn.NodeRepulsion = layout.FromAttributes(func(a graph.Attributes) float64 { return 2048 })

	cancelled, cancel := context.WithCancel(ctx)
	cancel()

	tests := []struct {
		name      string
		ctx       context.Context
		cfg       layout.Config
		opts      Options
		cacheable bool
	}{
		{"function params", ctx, fn, Options{}, false},
		{"no cache", ctx, quickConfig(), Options{NoCache: true}, false},
		{"cancelled", cancelled, quickConfig(), Options{}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := newMemCache()
			res, err := newTestRunner(c).Layout(tt.ctx, chain(5), tt.cfg, tt.opts)
			if err != nil {
				t.Fatalf("Layout: %v", err)
			}
			if res.CacheInfo.Cacheable != tt.cacheable || res.CacheInfo.Stored || c.sets != 0 {
				t.Errorf("cache info = %+v, sets = %d", res.CacheInfo, c.sets)
			}
		})
	}
}

func TestRunnerRefresh(t *testing.T) {
	c := newMemCache()
	r := newTestRunner(c)
	ctx := context.Background()
	_, _ = r.Layout(ctx, chain(4), quickConfig(), Options{})

	res, err := r.Layout(ctx, chain(4), quickConfig(), Options{Refresh: true})
	if err != nil {
		t.Fatal(err)
	}
	if res.CacheInfo.Hit || !res.CacheInfo.Stored || c.sets != 2 {
		t.Errorf("refresh cache info = %+v, sets = %d", res.CacheInfo, c.sets)
	}
}

func TestRunnerIgnoresBadEntries(t *testing.T) {
	c := newMemCache()
	r := newTestRunner(c)
	ctx := context.Background()
	first, _ := r.Layout(ctx, chain(4), quickConfig(), Options{})

	for name, data := range map[string]string{
		"corrupt":      "{not json",
		"unknown node": `{"positions":{"zz":{"x":1,"y":1}},"reason":"converged"}`,
	} {
		t.Run(name, func(t *testing.T) {
			c.data[first.CacheKey] = []byte(data)
			res, err := r.Layout(ctx, chain(4), quickConfig(), Options{})
			if err != nil {
				t.Fatal(err)
			}
			if res.CacheInfo.Hit || !res.CacheInfo.Stored {
				t.Errorf("cache info = %+v", res.CacheInfo)
			}
		})
	}
}

func TestRunnerErrors(t *testing.T) {
	c := newMemCache()
	r := newTestRunner(c)
	ctx := context.Background()

	bad := quickConfig()
	bad.CoolingFactor = 2
	if _, err := r.Layout(ctx, chain(3), bad, Options{}); !errors.Is(err, errors.ErrCodeInvalidConfig) {
		t.Errorf("invalid config = %v", err)
	}

	dangling := chain(2)
	dangling.Edges = append(dangling.Edges, pkgio.Edge{ID: "x", Source: "0", Target: "missing"})
	if _, err := r.Layout(ctx, dangling, quickConfig(), Options{}); !errors.Is(err, errors.ErrCodeIntegrity) {
		t.Errorf("dangling edge = %v", err)
	}
	if c.sets != 0 {
		t.Errorf("errors wrote %d entries", c.sets)
	}
}
