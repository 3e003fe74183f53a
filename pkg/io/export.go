package io

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/matzehuels/forcelayout/pkg/graph"
)

// Describe captures g as a description, in insertion order.
func Describe(g *graph.Graph) Description {
	d := Description{
		Nodes: make([]Node, 0, g.NodeCount()),
		Edges: make([]Edge, 0, g.EdgeCount()),
	}
	for n := range g.Nodes(nil) {
		d.Nodes = append(d.Nodes, DescribeNode(n))
	}
	for e := range g.Edges(nil) {
		d.Edges = append(d.Edges, DescribeEdge(e))
	}
	return d
}

// DescribeNode converts a stored node to its interchange form. Unplaced
// nodes have no position.
func DescribeNode(n graph.Node) Node {
	nd := Node{
		ID:            n.ID,
		Data:          n.Attrs,
		Locked:        n.Locked,
		OverlapExempt: n.OverlapExempt,
		Parent:        n.Parent,
	}
	if n.Placed {
		p := n.Position
		nd.Position = &p
	}
	return nd
}

// DescribeEdge converts a stored edge to its interchange form.
func DescribeEdge(e graph.Edge) Edge {
	return Edge{ID: e.ID, Source: e.Source, Target: e.Target, Data: e.Attrs, Weight: e.Weight}
}

// Encode writes d as indented JSON.
func (d Description) Encode(w io.Writer) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(d); err != nil {
		return fmt.Errorf("encode: %w", err)
	}
	return nil
}

// WriteJSON encodes g as JSON and writes it to w. The output can be
// re-imported with [ReadJSON].
func WriteJSON(g *graph.Graph, w io.Writer) error {
	return Describe(g).Encode(w)
}

// ExportJSON writes g to a JSON file at path.
func ExportJSON(g *graph.Graph, path string) error {
	return createAndWrite(path, func(w io.Writer) error { return WriteJSON(g, w) })
}

func createAndWrite(path string, write func(io.Writer) error) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}
	if err := write(f); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}
