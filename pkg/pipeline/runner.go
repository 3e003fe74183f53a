package pipeline

import (
	"bytes"
	"context"
	"fmt"
	"time"

	"github.com/charmbracelet/log"

	"github.com/matzehuels/forcelayout/pkg/cache"
	"github.com/matzehuels/forcelayout/pkg/graph"
	pkgio "github.com/matzehuels/forcelayout/pkg/io"
	"github.com/matzehuels/forcelayout/pkg/layout"
	"github.com/matzehuels/forcelayout/pkg/observability"
	"github.com/matzehuels/forcelayout/pkg/session"
)

const keyTypeLayout = "layout"

// Runner encapsulates pipeline execution with caching.
// Both CLI and API can use this to avoid duplicating caching logic.
//
// The Runner is stateless except for the cache and logger - it doesn't
// store pipeline results. Multiple goroutines can safely use the same
// Runner with different options.
type Runner struct {
	Cache  cache.Cache
	Keyer  cache.Keyer
	Logger *log.Logger
}

// NewRunner creates a runner with the given cache and keyer.
// If keyer is nil, a DefaultKeyer is used.
// If cache is nil, a NullCache is used (caching disabled).
func NewRunner(c cache.Cache, keyer cache.Keyer, logger *log.Logger) *Runner {
	if keyer == nil {
		keyer = cache.NewDefaultKeyer()
	}
	if c == nil {
		c = cache.NewNullCache()
	}
	if logger == nil {
		logger = log.Default()
	}
	return &Runner{
		Cache:  c,
		Keyer:  keyer,
		Logger: logger,
	}
}

// Layout lays out desc under cfg, serving the result from cache when
// possible. Config errors are returned before the cache is consulted.
// A cancelled run returns its partial result, which is not stored.
func (r *Runner) Layout(ctx context.Context, desc pkgio.Description, cfg layout.Config, opts Options) (*Result, error) {
	opts.setDefaults(r.Logger)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	result := &Result{}
	var buf bytes.Buffer
	if err := desc.Encode(&buf); err != nil {
		return nil, fmt.Errorf("hash graph: %w", err)
	}
	result.GraphHash = cache.Hash(buf.Bytes())

	fingerprint, cacheable := cfg.Fingerprint()
	result.CacheInfo.Cacheable = cacheable && !opts.NoCache
	if result.CacheInfo.Cacheable {
		result.CacheKey = r.Keyer.LayoutKey(result.GraphHash, cache.Hash([]byte(fingerprint)))
	} else if !cacheable {
		opts.Logger.Debug("config not cacheable", "reason", "attribute function params")
	}

	// Stage 1: Load
	loadStart := time.Now()
	sess := session.New(session.Options{Logger: opts.Logger})
	defer sess.Close()
	nodes, edges := desc.Elements()
	if err := sess.Add(nodes, edges); err != nil {
		return nil, fmt.Errorf("load graph: %w", err)
	}
	result.Stats.LoadTime = time.Since(loadStart)
	result.Stats.NodeCount, result.Stats.EdgeCount = sess.Counts()

	// Stage 2: Layout
	layoutStart := time.Now()
	res, hit := r.cached(ctx, sess, result.CacheKey, opts)
	if !hit {
		var err error
		res, err = sess.Layout(ctx, cfg, layout.Options{Progress: opts.Progress, Logger: opts.Logger})
		if err != nil {
			return nil, fmt.Errorf("layout: %w", err)
		}
		result.CacheInfo.Stored = r.store(ctx, result.CacheKey, res)
	}
	result.Layout = res
	result.CacheInfo.Hit = hit
	result.Stats.LayoutTime = time.Since(layoutStart)

	err := sess.View(func(g *graph.Graph) error {
		result.Graph = pkgio.Describe(g)
		return nil
	})
	if err != nil {
		return nil, err
	}

	opts.Logger.Info("computed layout",
		"nodes", result.Stats.NodeCount,
		"edges", result.Stats.EdgeCount,
		"reason", res.Reason,
		"iterations", res.Iterations,
		"cache_hit", hit,
		"duration", result.Stats.LayoutTime)
	return result, nil
}

// cached looks key up and applies a hit's positions to the session graph.
// Unreadable or mismatched entries count as misses.
func (r *Runner) cached(ctx context.Context, sess *session.Session, key string, opts Options) (*layout.Result, bool) {
	if key == "" || opts.Refresh {
		return nil, false
	}
	data, hit, err := r.Cache.Get(ctx, key)
	if err != nil {
		opts.Logger.Warn("cache lookup failed", "error", err)
	}
	if err != nil || !hit {
		observability.Cache().OnCacheMiss(ctx, keyTypeLayout)
		return nil, false
	}
	res, err := pkgio.UnmarshalResult(data)
	if err == nil {
		err = sess.Update("ApplyPositions", func(g *graph.Graph) error {
			return g.ApplyPositions("", res.Positions)
		})
	}
	if err != nil {
		opts.Logger.Debug("discarding cache entry", "key", key, "error", err)
		observability.Cache().OnCacheMiss(ctx, keyTypeLayout)
		return nil, false
	}
	observability.Cache().OnCacheHit(ctx, keyTypeLayout)
	return res, true
}

// store writes res under key unless the run was cancelled.
func (r *Runner) store(ctx context.Context, key string, res *layout.Result) bool {
	if key == "" || res.Reason == layout.ReasonCancelled {
		return false
	}
	data, err := pkgio.MarshalResult(res)
	if err != nil {
		return false
	}
	if err := r.Cache.Set(ctx, key, data, cache.TTLLayout); err != nil {
		r.Logger.Warn("cache store failed", "error", err)
		return false
	}
	observability.Cache().OnCacheSet(ctx, keyTypeLayout, len(data))
	return true
}

// Close releases resources held by the runner (primarily the cache).
func (r *Runner) Close() error {
	if r.Cache != nil {
		return r.Cache.Close()
	}
	return nil
}
