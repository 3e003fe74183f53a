package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	pkgio "github.com/matzehuels/forcelayout/pkg/io"
	"github.com/matzehuels/forcelayout/pkg/layout"
	"github.com/matzehuels/forcelayout/pkg/pipeline"
)

// layoutOptions collects the layout command's flags.
type layoutOptions struct {
	config     string
	seed       uint64
	randomize  bool
	iterations int
	output     string
	watch      bool
	noCache    bool
	backend    string
}

// layoutFile is the JSON written by layout: the run summary plus the graph
// with its final positions.
type layoutFile struct {
	Result pkgio.ResultRecord `json:"result"`
	Graph  pkgio.Description  `json:"graph"`
}

// layoutCommand creates the layout command.
func (c *CLI) layoutCommand() *cobra.Command {
	var opts layoutOptions

	cmd := &cobra.Command{
		Use:   "layout [graph.json|graph.dot]",
		Short: "Compute a force-directed layout",
		Long: `Compute a force-directed layout of a graph.

The input is a JSON graph description or a Graphviz DOT file. Settings come
from the defaults, then the TOML file given with --config, then the flags.

The output is <input>.layout.json unless -o is given. An output ending in
.dot or .gv is written as DOT with pinned positions, ready for 'neato -n'.

Results are cached by graph and settings, so repeating a run is instant.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := layoutConfig(cmd, opts)
			if err != nil {
				return err
			}
			return c.runLayout(cmd.Context(), args[0], cfg, opts)
		},
	}

	cmd.Flags().StringVarP(&opts.output, "output", "o", "", "output file (default: <input>.layout.json)")
	cmd.Flags().StringVarP(&opts.config, "config", "c", "", "TOML layout settings")
	cmd.Flags().Uint64Var(&opts.seed, "seed", 0, "seed for random placement")
	cmd.Flags().BoolVar(&opts.randomize, "randomize", false, "place every node at random before simulating")
	cmd.Flags().IntVar(&opts.iterations, "iterations", 0, "iteration budget (default from settings)")
	cmd.Flags().BoolVarP(&opts.watch, "watch", "w", false, "show a live view of the run")
	addCacheFlags(cmd, &opts.backend, &opts.noCache)

	return cmd
}

// layoutConfig merges the config file and the flags that were set.
func layoutConfig(cmd *cobra.Command, opts layoutOptions) (layout.Config, error) {
	cfg := layout.DefaultConfig()
	if opts.config != "" {
		var err error
		if cfg, err = layout.LoadConfigFile(opts.config); err != nil {
			return cfg, err
		}
	}
	flags := cmd.Flags()
	if flags.Changed("seed") {
		cfg.Seed = opts.seed
	}
	if flags.Changed("randomize") {
		cfg.Randomize = opts.randomize
	}
	if flags.Changed("iterations") {
		cfg.NumIter = opts.iterations
	}
	return cfg, cfg.Validate()
}

// runLayout loads the graph, computes the layout, and writes output.
func (c *CLI) runLayout(ctx context.Context, input string, cfg layout.Config, opts layoutOptions) error {
	desc, err := pkgio.Load(ctx, input)
	if err != nil {
		return fmt.Errorf("load graph %s: %w", input, err)
	}

	runner, err := c.newRunner(ctx, opts.backend, opts.noCache)
	if err != nil {
		return fmt.Errorf("initialize runner: %w", err)
	}
	defer runner.Close()

	var res *pipeline.Result
	if opts.watch {
		res, err = c.watchLayout(ctx, runner, desc, cfg)
	} else {
		spinner := newSpinnerWithContext(ctx, "Computing layout...")
		spinner.Start()
		res, err = runner.Layout(ctx, desc, cfg, pipeline.Options{
			Logger: c.Logger,
			Progress: func(p layout.Progress) {
				spinner.SetMessage(fmt.Sprintf("Computing layout... iteration %d/%d", p.Iteration, cfg.NumIter))
			},
		})
		if err != nil {
			spinner.StopWithError("Layout failed")
		} else {
			spinner.Stop()
		}
	}
	if err != nil {
		return fmt.Errorf("compute layout: %w", err)
	}
	if ctx.Err() != nil {
		return ctx.Err()
	}

	outputPath := opts.output
	if outputPath == "" {
		outputPath = strings.TrimSuffix(input, filepath.Ext(input)) + ".layout.json"
	}
	if err := writeLayout(res, outputPath); err != nil {
		return fmt.Errorf("write output %s: %w", outputPath, err)
	}

	if res.Layout.Reason == layout.ReasonCancelled {
		printWarning("Layout cancelled after %d iterations", res.Layout.Iterations)
	} else {
		printSuccess("Layout complete")
	}
	printFile(outputPath)
	printStats(res.Stats.NodeCount, res.Stats.EdgeCount, res.CacheInfo.Hit)
	printLayoutSummary(res.Layout)
	if pkgio.DetectFormat(outputPath) == pkgio.FormatDOT {
		printNewline()
		printNextStep("Render", "neato -n -Tsvg "+outputPath)
	}
	return nil
}

// watchLayout runs the layout behind the bubbletea watch view. Quitting
// the view cancels the run.
func (c *CLI) watchLayout(ctx context.Context, runner *pipeline.Runner, desc pkgio.Description, cfg layout.Config) (*pipeline.Result, error) {
	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	updates := make(chan layout.Progress, 1)
	done := make(chan doneMsg, 1)
	go func() {
		res, err := runner.Layout(runCtx, desc, cfg, pipeline.Options{
			Logger:   c.Logger,
			Progress: layout.ChannelProgress(updates),
		})
		done <- doneMsg{res: res, err: err}
	}()

	model := newWatchModel(cfg.NumIter, updates, done, cancel)
	final, err := tea.NewProgram(model, tea.WithContext(ctx), tea.WithOutput(os.Stderr)).Run()
	if err != nil {
		cancel()
		<-done
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("watch view: %w", err)
	}
	m := final.(WatchModel)
	return m.Result, m.Err
}

// writeLayout writes res as DOT or JSON depending on the path's extension.
func writeLayout(res *pipeline.Result, path string) error {
	if pkgio.DetectFormat(path) == pkgio.FormatDOT {
		g, err := res.Graph.Build()
		if err != nil {
			return err
		}
		return pkgio.ExportDOT(g, path)
	}

	data, err := json.MarshalIndent(layoutFile{
		Result: pkgio.NewResultRecord(res.Layout),
		Graph:  res.Graph,
	}, "", "  ")
	if err != nil {
		return fmt.Errorf("encode layout: %w", err)
	}
	return os.WriteFile(path, append(data, '\n'), 0o644)
}
