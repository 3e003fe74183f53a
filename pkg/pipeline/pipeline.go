// Package pipeline runs layouts end to end with result caching.
//
// The CLI and the HTTP API both lay out graphs through a [Runner], so both
// share one cache-aside policy:
//
//  1. Hash the graph description and the config fingerprint into a key
//  2. Serve a cached result when the key is present
//  3. Otherwise load the graph into a session, run the engine, and store
//     the result if the run terminated normally
//
// Configs whose params are attribute functions have no fingerprint and are
// never cached, and cancelled runs are never stored.
//
// # Usage
//
//	runner := pipeline.NewRunner(cache, nil, logger)
//	result, err := runner.Layout(ctx, desc, layout.DefaultConfig(), pipeline.Options{})
//	if err != nil {
//	    log.Fatal(err)
//	}
//	fmt.Println(result.Layout.Reason, result.CacheInfo.Hit)
package pipeline

import (
	"io"
	"time"

	"github.com/charmbracelet/log"

	pkgio "github.com/matzehuels/forcelayout/pkg/io"
	"github.com/matzehuels/forcelayout/pkg/layout"
)

// Options contains per-call settings for a pipeline run.
type Options struct {
	// Refresh skips the cache lookup. The fresh result is still stored.
	Refresh bool `json:"refresh,omitempty"`

	// NoCache disables both the lookup and the store.
	NoCache bool `json:"no_cache,omitempty"`

	// Runtime options (not serialized)
	Progress layout.ProgressFunc `json:"-"`
	Logger   *log.Logger         `json:"-"`
}

func (o *Options) setDefaults(fallback *log.Logger) {
	if o.Logger == nil {
		o.Logger = fallback
	}
	if o.Logger == nil {
		o.Logger = log.NewWithOptions(io.Discard, log.Options{})
	}
}

// Result contains the outputs of a pipeline run.
type Result struct {
	// Layout is the engine result, fresh or from the cache.
	Layout *layout.Result

	// Graph is the input description with the final positions applied.
	Graph pkgio.Description

	// GraphHash is the content hash of the input description.
	GraphHash string

	// CacheKey is empty when the run was not cacheable.
	CacheKey string

	// Stats contains timing and size information.
	Stats Stats

	// CacheInfo tracks how the cache was used.
	CacheInfo CacheInfo
}

// Stats contains pipeline execution statistics.
type Stats struct {
	NodeCount  int
	EdgeCount  int
	LoadTime   time.Duration
	LayoutTime time.Duration
}

// CacheInfo reports cache use for one run.
type CacheInfo struct {
	Cacheable bool // Whether the config has a fingerprint
	Hit       bool // Whether the result came from cache
	Stored    bool // Whether a fresh result was written
}
