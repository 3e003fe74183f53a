package cli

import (
	"context"
	"fmt"
	"time"

	"github.com/charmbracelet/log"
	"github.com/spf13/cobra"

	"github.com/matzehuels/forcelayout/pkg/graph"
	pkgio "github.com/matzehuels/forcelayout/pkg/io"
	"github.com/matzehuels/forcelayout/pkg/session"
)

// generateCommand creates the generate command.
func (c *CLI) generateCommand() *cobra.Command {
	var (
		count  int
		output string
	)

	cmd := &cobra.Command{
		Use:   "generate",
		Short: "Generate a synthetic chain graph and time the store",
		Long: `Generate a chain of --count nodes and time the graph store on it.

Node i has myLabel Even or Odd, weight i*10 and position (i*10, i*10). Edge
i joins node i-1 to node i with weight i*10. The command reports how long it
took to add the elements, look each one up by id and run two selectors.

With -o the graph is also written as JSON, ready for 'layout' or 'query'.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if count < 1 {
				return fmt.Errorf("--count must be at least 1")
			}
			return c.runGenerate(cmd.Context(), count, output)
		},
	}

	cmd.Flags().IntVarP(&count, "count", "n", 100, "number of nodes")
	cmd.Flags().StringVarP(&output, "output", "o", "", "write the graph to this JSON file")
	return cmd
}

// demoChain builds the synthetic chain graph.
func demoChain(n int) ([]graph.Node, []graph.Edge) {
	nodes := make([]graph.Node, n)
	edges := make([]graph.Edge, 0, max(n-1, 0))
	for i := range nodes {
		label := "Odd"
		if i%2 == 0 {
			label = "Even"
		}
		nodes[i] = graph.Node{
			ID:       fmt.Sprint(i),
			Attrs:    graph.Attributes{"myLabel": label, "weight": float64(i * 10)},
			Position: graph.Position{X: float64(i * 10), Y: float64(i * 10)},
			Placed:   true,
		}
		if i > 0 {
			edges = append(edges, graph.Edge{
				ID:     fmt.Sprintf("e%d", i),
				Source: fmt.Sprint(i - 1),
				Target: fmt.Sprint(i),
				Attrs:  graph.Attributes{"weight": float64(i * 10)},
			})
		}
	}
	return nodes, edges
}

// generateTimings holds what runGenerate measured.
type generateTimings struct {
	Add, Lookup, Even, Heavy time.Duration
	EvenCount, HeavyCount    int
}

func (c *CLI) runGenerate(ctx context.Context, count int, output string) error {
	logger := loggerFromContext(ctx)
	sess := session.New(session.Options{Logger: logger})
	defer sess.Close()

	nodes, edges := demoChain(count)
	t, err := timeStore(sess, logger, nodes, edges)
	if err != nil {
		return err
	}

	printSuccess("Generated %d nodes and %d edges", len(nodes), len(edges))
	printTiming("Add", t.Add, len(nodes)+len(edges))
	printTiming("Lookup", t.Lookup, len(nodes)+len(edges))
	printTiming("Even nodes", t.Even, t.EvenCount)
	printTiming("Heavy edges", t.Heavy, t.HeavyCount)

	if output != "" {
		var desc pkgio.Description
		_ = sess.View(func(g *graph.Graph) error {
			desc = pkgio.Describe(g)
			return nil
		})
		if err := writeDescription(desc, output); err != nil {
			return fmt.Errorf("write output %s: %w", output, err)
		}
		printFile(output)
		printNewline()
		printNextStep("Lay out", appName+" layout "+output)
	}
	return nil
}

// timeStore adds the chain to sess and times lookups and selectors on it.
func timeStore(sess *session.Session, logger *log.Logger, nodes []graph.Node, edges []graph.Edge) (generateTimings, error) {
	var t generateTimings

	p := newProgress(logger)
	if err := sess.Add(nodes, edges); err != nil {
		return t, err
	}
	t.Add = p.done(fmt.Sprintf("Added %d elements", len(nodes)+len(edges)))

	p = newProgress(logger)
	for _, n := range nodes {
		if _, err := sess.GetByID(n.ID); err != nil {
			return t, err
		}
	}
	for _, e := range edges {
		if _, err := sess.GetByID(e.ID); err != nil {
			return t, err
		}
	}
	t.Lookup = p.done("Looked up every element")

	p = newProgress(logger)
	even, err := sess.Query("node[myLabel='Even']")
	if err != nil {
		return t, err
	}
	t.EvenCount = len(even)
	t.Even = p.done(fmt.Sprintf("Selected %d even nodes", t.EvenCount))

	p = newProgress(logger)
	heavy, err := sess.Query("edge[weight>100]")
	if err != nil {
		return t, err
	}
	t.HeavyCount = len(heavy)
	t.Heavy = p.done(fmt.Sprintf("Selected %d heavy edges", t.HeavyCount))
	return t, nil
}
