package cli

import (
	"context"
	"fmt"
	"time"

	"github.com/charmbracelet/log"
	"github.com/spf13/cobra"

	"github.com/matzehuels/forcelayout/internal/api"
	"github.com/matzehuels/forcelayout/pkg/observability"
	"github.com/matzehuels/forcelayout/pkg/session"
)

type serveOptions struct {
	addr       string
	sessionTTL time.Duration
	sessionDir string
	noMetrics  bool
	noCache    bool
	backend    string
}

// serveCommand creates the serve command.
func (c *CLI) serveCommand() *cobra.Command {
	var opts serveOptions

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the layout HTTP API",
		Long: `Serve layout sessions and stateless layouts over HTTP.

Sessions are kept in memory and dropped after --session-ttl without use.
With --session-dir they are saved there on shutdown and restored on start.
POST /v1/layout goes through the same cache as the layout command.
Prometheus metrics are exposed at /metrics unless --no-metrics is set.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.runServe(cmd.Context(), opts)
		},
	}

	cmd.Flags().StringVar(&opts.addr, "addr", ":8080", "listen address")
	cmd.Flags().DurationVar(&opts.sessionTTL, "session-ttl", time.Hour, "idle time after which sessions are dropped (0 keeps them)")
	cmd.Flags().StringVar(&opts.sessionDir, "session-dir", "", "persist sessions in this directory across restarts")
	cmd.Flags().BoolVar(&opts.noMetrics, "no-metrics", false, "do not expose /metrics")
	addCacheFlags(cmd, &opts.backend, &opts.noCache)

	return cmd
}

func (c *CLI) runServe(ctx context.Context, opts serveOptions) error {
	runner, err := c.newRunner(ctx, opts.backend, opts.noCache)
	if err != nil {
		return fmt.Errorf("initialize runner: %w", err)
	}
	defer runner.Close()

	sessions := session.NewManager(opts.sessionTTL, c.Logger)
	defer sessions.Close()
	if opts.sessionDir != "" {
		store, err := session.NewFileStore(opts.sessionDir)
		if err != nil {
			return err
		}
		n, err := restoreSessions(ctx, store, sessions, c.Logger)
		if err != nil {
			return err
		}
		if n > 0 {
			printInfo("Restored %d sessions from %s", n, store.Path())
		}
		defer saveSessions(store, sessions, c.Logger)
	}
	if opts.sessionTTL > 0 {
		sessions.StartSweeper(ctx, max(opts.sessionTTL/4, time.Second))
	}

	cfg := api.Config{Sessions: sessions, Runner: runner, Logger: c.Logger}
	if !opts.noMetrics {
		prom := observability.NewPrometheus()
		prom.Register()
		cfg.Metrics = prom.Handler()
	}

	printInfo("Serving on %s", opts.addr)
	return api.New(cfg).ListenAndServe(ctx, opts.addr)
}

// restoreSessions loads every saved session into m.
func restoreSessions(ctx context.Context, store *session.FileStore, m *session.Manager, logger *log.Logger) (int, error) {
	ids, err := store.List(ctx)
	if err != nil {
		return 0, err
	}
	restored := 0
	for _, id := range ids {
		sess, err := store.Load(ctx, id, session.Options{Logger: logger})
		if err != nil {
			logger.Warn("skipping saved session", "id", id, "error", err)
			continue
		}
		if sess != nil {
			m.Put(sess)
			restored++
		}
	}
	return restored, nil
}

// saveSessions writes every live session to store. It runs after the
// serve context has ended, so it uses its own.
func saveSessions(store *session.FileStore, m *session.Manager, logger *log.Logger) {
	ctx := context.Background()
	for _, sess := range m.Sessions() {
		if err := store.Save(ctx, sess); err != nil {
			logger.Warn("session not saved", "id", sess.ID(), "error", err)
		}
	}
}
