package cli

import (
	"context"
	"fmt"
	"maps"
	"slices"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/spf13/cobra"

	"github.com/matzehuels/forcelayout/pkg/graph"
	pkgio "github.com/matzehuels/forcelayout/pkg/io"
)

// queryCommand creates the query command.
func (c *CLI) queryCommand() *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "query [graph.json|graph.dot] [selector]",
		Short: "List the elements matching a selector",
		Long: `List the elements matching a selector, in insertion order.

Selectors pick a kind and filter by attribute:

  node                     every node
  edge[weight>100]         edges with a numeric weight above 100
  [myLabel='Even']         nodes and edges whose myLabel is Even
  node[!weight]            nodes without a weight attribute
  [id='a']                 lookup by id`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.runQuery(cmd.Context(), args[0], args[1], limit)
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", 50, "maximum rows to print (0 prints all)")
	return cmd
}

func (c *CLI) runQuery(ctx context.Context, input, selector string, limit int) error {
	desc, err := pkgio.Load(ctx, input)
	if err != nil {
		return fmt.Errorf("load graph %s: %w", input, err)
	}
	g, err := desc.Build()
	if err != nil {
		return err
	}
	seq, err := g.Query(selector)
	if err != nil {
		return err
	}
	els := slices.Collect(seq)

	if len(els) == 0 {
		printInfo("No elements match %s", selector)
		return nil
	}
	shown := els
	if limit > 0 && len(shown) > limit {
		shown = shown[:limit]
	}
	fmt.Println(elementTable(shown))
	if len(shown) < len(els) {
		printDetail("showing %d of %d", len(shown), len(els))
	}
	printSuccess("%d elements match %s", len(els), selector)
	return nil
}

// elementTable renders elements as a table of kind, id, endpoints or
// position, and attributes.
func elementTable(els []graph.Element) string {
	rows := make([][]string, len(els))
	for i, el := range els {
		if el.Kind == graph.KindEdge {
			e := el.Edge
			rows[i] = []string{"edge", e.ID, e.Source + " → " + e.Target, formatAttrs(e.Attrs)}
			continue
		}
		n := el.Node
		where := "-"
		if n.Placed {
			where = fmt.Sprintf("%.1f, %.1f", n.Position.X, n.Position.Y)
		}
		if n.Parent != "" {
			where += " in " + n.Parent
		}
		rows[i] = []string{"node", n.ID, where, formatAttrs(n.Attrs)}
	}

	headerStyle := lipgloss.NewStyle().Foreground(colorGray).Bold(true)
	t := table.New().
		Border(lipgloss.RoundedBorder()).
		BorderStyle(lipgloss.NewStyle().Foreground(colorDim)).
		Headers("Kind", "ID", "Where", "Data").
		Rows(rows...).
		StyleFunc(func(row, col int) lipgloss.Style {
			if row == -1 {
				return headerStyle
			}
			switch col {
			case 0:
				return lipgloss.NewStyle().Foreground(colorDim)
			case 1:
				return lipgloss.NewStyle().Foreground(colorCyan)
			}
			return lipgloss.NewStyle().Foreground(colorWhite)
		})
	return t.Render()
}

func formatAttrs(a graph.Attributes) string {
	if len(a) == 0 {
		return ""
	}
	keys := slices.Sorted(maps.Keys(a))
	parts := make([]string, len(keys))
	for i, k := range keys {
		parts[i] = fmt.Sprintf("%s=%v", k, a[k])
	}
	return strings.Join(parts, " ")
}
