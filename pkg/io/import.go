package io

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/matzehuels/forcelayout/pkg/errors"
	"github.com/matzehuels/forcelayout/pkg/graph"
)

// Description is the interchange form of a graph.
type Description struct {
	Nodes []Node `json:"nodes"`
	Edges []Edge `json:"edges"`
}

// Node describes one node. A nil Position leaves the node unplaced.
type Node struct {
	ID            string           `json:"id"`
	Data          graph.Attributes `json:"data,omitempty"`
	Position      *graph.Position  `json:"position,omitempty"`
	Locked        bool             `json:"locked,omitempty"`
	OverlapExempt bool             `json:"overlap_exempt,omitempty"`
	Parent        string           `json:"parent,omitempty"`
}

// Edge describes one edge.
type Edge struct {
	ID     string           `json:"id"`
	Source string           `json:"source"`
	Target string           `json:"target"`
	Data   graph.Attributes `json:"data,omitempty"`
	Weight float64          `json:"weight,omitempty"`
}

// DecodeJSON reads a description from r. Edges without an id are named
// after their endpoints (see [Description.AssignEdgeIDs]), so decoding the
// same document twice yields the same ids. DecodeJSON does not close r.
func DecodeJSON(r io.Reader) (Description, error) {
	var d Description
	dec := json.NewDecoder(r)
	if err := dec.Decode(&d); err != nil {
		return Description{}, errors.Wrap(errors.ErrCodeInvalidFormat, err, "decode graph")
	}
	d.AssignEdgeIDs()
	return d, nil
}

// AssignEdgeIDs names every edge without an id "source->target#k", where k
// is the smallest index not already used by a node or edge.
func (d *Description) AssignEdgeIDs() {
	taken := make(map[string]bool, len(d.Nodes)+len(d.Edges))
	for _, n := range d.Nodes {
		taken[n.ID] = true
	}
	for _, e := range d.Edges {
		if e.ID != "" {
			taken[e.ID] = true
		}
	}
	next := make(map[string]int)
	for i := range d.Edges {
		e := &d.Edges[i]
		if e.ID != "" {
			continue
		}
		pair := e.Source + "->" + e.Target
		k := next[pair]
		for taken[fmt.Sprintf("%s#%d", pair, k)] {
			k++
		}
		e.ID = fmt.Sprintf("%s#%d", pair, k)
		taken[e.ID] = true
		next[pair] = k + 1
	}
}

// Elements converts the description to store elements.
func (d Description) Elements() ([]graph.Node, []graph.Edge) {
	nodes := make([]graph.Node, len(d.Nodes))
	for i, n := range d.Nodes {
		nodes[i] = graph.Node{
			ID:            n.ID,
			Attrs:         n.Data,
			Locked:        n.Locked,
			OverlapExempt: n.OverlapExempt,
			Parent:        n.Parent,
		}
		if n.Position != nil {
			nodes[i].Position = *n.Position
			nodes[i].Placed = true
		}
	}
	edges := make([]graph.Edge, len(d.Edges))
	for i, e := range d.Edges {
		edges[i] = graph.Edge{ID: e.ID, Source: e.Source, Target: e.Target, Attrs: e.Data, Weight: e.Weight}
	}
	return nodes, edges
}

// Apply adds the described elements to g as one atomic batch.
func (d Description) Apply(g *graph.Graph) error {
	nodes, edges := d.Elements()
	return g.Add(nodes, edges)
}

// Build creates a new graph from the description.
func (d Description) Build() (*graph.Graph, error) {
	g := graph.New()
	if err := d.Apply(g); err != nil {
		return nil, err
	}
	return g, nil
}

// ReadJSON decodes a JSON graph from r into a new store.
//
// ReadJSON fails with an errors.IntegrityError naming the offending
// element when ids collide, endpoints or parents are missing, or parent
// chains form a cycle. ReadJSON does not close r.
func ReadJSON(r io.Reader) (*graph.Graph, error) {
	d, err := DecodeJSON(r)
	if err != nil {
		return nil, err
	}
	return d.Build()
}

// ImportJSON reads the JSON file at path. See [ReadJSON].
func ImportJSON(path string) (*graph.Graph, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()
	return ReadJSON(f)
}

// Format is a graph file format.
type Format string

const (
	FormatJSON Format = "json"
	FormatDOT  Format = "dot"
)

// DetectFormat picks a format by file extension. Unknown extensions are
// treated as JSON.
func DetectFormat(path string) Format {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".dot", ".gv":
		return FormatDOT
	}
	return FormatJSON
}

// Load reads a description from a JSON or DOT file.
func Load(ctx context.Context, path string) (Description, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Description{}, fmt.Errorf("read %s: %w", path, err)
	}
	return Parse(ctx, data, DetectFormat(path), DOTOptions{})
}

// Parse decodes data in the given format.
func Parse(ctx context.Context, data []byte, format Format, opts DOTOptions) (Description, error) {
	switch format {
	case FormatDOT:
		return DecodeDOT(ctx, data, opts)
	case FormatJSON, "":
		return DecodeJSON(bytes.NewReader(data))
	}
	return Description{}, errors.New(errors.ErrCodeUnsupported, "unsupported graph format %q", format)
}
