// Package cli implements the forcelayout command-line interface.
package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/charmbracelet/log"
	"github.com/spf13/cobra"

	"github.com/matzehuels/forcelayout/pkg/buildinfo"
	"github.com/matzehuels/forcelayout/pkg/cache"
	"github.com/matzehuels/forcelayout/pkg/pipeline"
)

// =============================================================================
// Constants
// =============================================================================

const (
	// appName is the application name used for directories and display.
	appName = "forcelayout"

	// Environment variables that locate the remote cache backends.
	envRedisURL = "FORCELAYOUT_REDIS_URL"
	envMongoURI = "FORCELAYOUT_MONGO_URI"

	defaultRedisURL = "redis://localhost:6379/0"
	defaultMongoURI = "mongodb://localhost:27017"
)

// Cache backends selectable with --cache-backend.
const (
	backendFile  = "file"
	backendRedis = "redis"
	backendMongo = "mongo"
	backendBolt  = "bolt"
	backendNone  = "none"
)

// Log levels exported for use in main.go.
const (
	LogDebug = log.DebugLevel
	LogInfo  = log.InfoLevel
)

// =============================================================================
// CLI - Central CLI State
// =============================================================================

// CLI holds shared state for all commands.
type CLI struct {
	Logger *log.Logger
}

// New creates a new CLI instance with a default logger.
func New(w io.Writer, level log.Level) *CLI {
	return &CLI{Logger: newLogger(w, level)}
}

// SetLogLevel updates the logger's level.
func (c *CLI) SetLogLevel(level log.Level) {
	c.Logger.SetLevel(level)
}

// RootCommand creates the root cobra command with all subcommands registered.
func (c *CLI) RootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:   appName,
		Short: "forcelayout computes force-directed layouts of compound graphs",
		Long: `forcelayout positions the nodes of a graph with a compound spring embedder:
spring forces along edges, repulsion between nodes, gravity towards each
compound's centre and a cooling schedule that settles the layout.

Graphs are read from JSON or Graphviz DOT. Layouts are cached locally, in
Redis, MongoDB or a bbolt file, and can also be served over HTTP.`,
		Version:      buildinfo.Version,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			cmd.SetContext(withLogger(cmd.Context(), c.Logger))
			return nil
		},
	}

	root.SetVersionTemplate(buildinfo.Template())

	root.AddCommand(c.layoutCommand())
	root.AddCommand(c.placeCommand())
	root.AddCommand(c.queryCommand())
	root.AddCommand(c.generateCommand())
	root.AddCommand(c.serveCommand())
	root.AddCommand(c.cacheCommand())
	root.AddCommand(c.completionCommand())

	return root
}

// =============================================================================
// Runner Factory
// =============================================================================

// newRunner creates a pipeline runner backed by the chosen cache.
func (c *CLI) newRunner(ctx context.Context, backend string, noCache bool) (*pipeline.Runner, error) {
	lc, err := newCache(ctx, backend, noCache)
	if err != nil {
		return nil, err
	}
	c.Logger.Debug("cache ready", "backend", backend, "disabled", noCache)
	return pipeline.NewRunner(lc, nil, c.Logger), nil
}

// newCache opens the layout cache for backend. The file backend degrades to
// no caching when no cache directory can be determined.
func newCache(ctx context.Context, backend string, noCache bool) (cache.Cache, error) {
	if noCache || backend == backendNone {
		return cache.NewNullCache(), nil
	}
	switch backend {
	case backendFile, "":
		dir, err := cacheDir()
		if err != nil {
			return cache.NewNullCache(), nil
		}
		return cache.NewFileCache(filepath.Join(dir, "layouts"))
	case backendRedis:
		return cache.NewRedisCache(ctx, envOr(envRedisURL, defaultRedisURL))
	case backendMongo:
		return cache.NewMongoCache(ctx, envOr(envMongoURI, defaultMongoURI), "", "")
	case backendBolt:
		dir, err := cacheDir()
		if err != nil {
			return nil, fmt.Errorf("get cache dir: %w", err)
		}
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create cache dir: %w", err)
		}
		return cache.NewBoltCache(filepath.Join(dir, "cache.bolt"))
	}
	return nil, fmt.Errorf("unknown cache backend %q (want file, redis, mongo, bolt or none)", backend)
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// addCacheFlags registers the cache flags shared by layout, serve and cache.
func addCacheFlags(cmd *cobra.Command, backend *string, noCache *bool) {
	cmd.Flags().StringVar(backend, "cache-backend", backendFile, "layout cache: file, redis, mongo, bolt, none")
	if noCache != nil {
		cmd.Flags().BoolVar(noCache, "no-cache", false, "disable caching")
	}
}

// =============================================================================
// Paths
// =============================================================================

// cacheDir returns the cache directory using XDG standard (~/.cache/forcelayout/).
func cacheDir() (string, error) {
	if cacheHome := os.Getenv("XDG_CACHE_HOME"); cacheHome != "" {
		return filepath.Join(cacheHome, appName), nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".cache", appName), nil
}
