package io

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"maps"
	"slices"
	"strconv"
	"strings"

	"github.com/goccy/go-graphviz"

	"github.com/matzehuels/forcelayout/pkg/errors"
	"github.com/matzehuels/forcelayout/pkg/graph"
)

// clusterPrefix marks DOT subgraphs that become compound nodes.
const clusterPrefix = "cluster"

// DOTOptions configures DOT import.
type DOTOptions struct {
	// Positions keeps the coordinates computed by Graphviz's dot layout as
	// initial positions. Otherwise imported nodes are unplaced.
	Positions bool
}

// layoutAttrs are attributes Graphviz adds while laying out. They are
// dropped from imported elements.
var layoutAttrs = map[string]bool{
	"pos": true, "width": true, "height": true, "bb": true, "lp": true, "xlp": true,
	"rects": true, "_draw_": true, "_ldraw_": true, "_hdraw_": true, "_tdraw_": true,
	"_hldraw_": true, "_tldraw_": true, "_background": true, "xdotversion": true,
}

// gvDocument is the subset of Graphviz's json output read on import.
type gvDocument struct {
	SubgraphCount int        `json:"_subgraph_cnt"`
	Objects       []gvObject `json:"objects"`
	Edges         []gvObject `json:"edges"`
}

type gvObject struct {
	ID        int
	Name      string
	Nodes     []int
	Subgraphs []int
	Tail      int
	Head      int
	Attrs     map[string]string
}

func (o *gvObject) UnmarshalJSON(data []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	o.Attrs = make(map[string]string)
	for k, v := range raw {
		var err error
		switch k {
		case "_gvid":
			err = json.Unmarshal(v, &o.ID)
		case "name":
			err = json.Unmarshal(v, &o.Name)
		case "nodes":
			err = json.Unmarshal(v, &o.Nodes)
		case "subgraphs":
			err = json.Unmarshal(v, &o.Subgraphs)
		case "edges":
		case "tail":
			err = json.Unmarshal(v, &o.Tail)
		case "head":
			err = json.Unmarshal(v, &o.Head)
		default:
			var s string
			if json.Unmarshal(v, &s) == nil {
				o.Attrs[k] = s
			}
		}
		if err != nil {
			return fmt.Errorf("field %s: %w", k, err)
		}
	}
	return nil
}

// DecodeDOT parses a Graphviz DOT graph.
//
// Subgraphs whose name starts with "cluster" become compound nodes; the
// prefix and a following "_" are stripped to form the node id. Nodes in
// nested clusters belong to the innermost one. Attribute values that
// parse as numbers are stored as float64; the edge attribute "weight" also
// sets the edge weight, and "id" sets the edge id.
func DecodeDOT(ctx context.Context, data []byte, opts DOTOptions) (Description, error) {
	gv, err := graphviz.New(ctx)
	if err != nil {
		return Description{}, fmt.Errorf("init graphviz: %w", err)
	}
	defer gv.Close()

	g, err := graphviz.ParseBytes(data)
	if err != nil {
		return Description{}, errors.Wrap(errors.ErrCodeInvalidFormat, err, "parse DOT")
	}
	defer g.Close()

	var buf bytes.Buffer
	if err := gv.Render(ctx, g, graphviz.Format("json"), &buf); err != nil {
		return Description{}, fmt.Errorf("render: %w", err)
	}
	return decodeGraphvizJSON(buf.Bytes(), opts)
}

func decodeGraphvizJSON(data []byte, opts DOTOptions) (Description, error) {
	var doc gvDocument
	if err := json.Unmarshal(data, &doc); err != nil {
		return Description{}, errors.Wrap(errors.ErrCodeInvalidFormat, err, "decode graphviz output")
	}
	if doc.SubgraphCount > len(doc.Objects) {
		return Description{}, errors.New(errors.ErrCodeInvalidFormat, "graphviz output lists %d subgraphs but %d objects", doc.SubgraphCount, len(doc.Objects))
	}
	subgraphs := doc.Objects[:doc.SubgraphCount]
	nodeObjs := doc.Objects[doc.SubgraphCount:]

	byGVID := make(map[int]string, len(nodeObjs))
	for _, o := range nodeObjs {
		byGVID[o.ID] = o.Name
	}

	// Walk the subgraph tree so that inner clusters overwrite the parents
	// assigned by outer ones.
	sgByGVID := make(map[int]*gvObject, len(subgraphs))
	isChild := make(map[int]bool)
	for i := range subgraphs {
		sgByGVID[subgraphs[i].ID] = &subgraphs[i]
		for _, c := range subgraphs[i].Subgraphs {
			isChild[c] = true
		}
	}
	parentOf := make(map[string]string)
	var compounds []Node
	var walk func(sg *gvObject, enclosing string)
	walk = func(sg *gvObject, enclosing string) {
		current := enclosing
		if id, ok := clusterID(sg.Name); ok {
			compounds = append(compounds, Node{ID: id, Data: convertAttrs(sg.Attrs), Parent: enclosing})
			current = id
		}
		for _, n := range sg.Nodes {
			if name, ok := byGVID[n]; ok && current != "" {
				parentOf[name] = current
			}
		}
		for _, c := range sg.Subgraphs {
			if child := sgByGVID[c]; child != nil {
				walk(child, current)
			}
		}
	}
	for i := range subgraphs {
		if !isChild[subgraphs[i].ID] {
			walk(&subgraphs[i], "")
		}
	}

	var d Description
	d.Nodes = append(d.Nodes, compounds...)
	for _, o := range nodeObjs {
		n := Node{ID: o.Name, Data: convertAttrs(o.Attrs), Parent: parentOf[o.Name]}
		if opts.Positions {
			if p, ok := parsePos(o.Attrs["pos"]); ok {
				n.Position = &p
			}
		}
		d.Nodes = append(d.Nodes, n)
	}
	for _, o := range doc.Edges {
		src, okS := byGVID[o.Tail]
		dst, okD := byGVID[o.Head]
		if !okS || !okD {
			return Description{}, errors.New(errors.ErrCodeInvalidFormat, "edge %d references an unknown node", o.ID)
		}
		attrs := convertAttrs(o.Attrs)
		e := Edge{Source: src, Target: dst, Data: attrs}
		if id, ok := o.Attrs["id"]; ok && id != "" {
			e.ID = id
			delete(attrs, "id")
		}
		if w, ok := attrs.Float("weight"); ok {
			e.Weight = w
		}
		d.Edges = append(d.Edges, e)
	}
	d.AssignEdgeIDs()
	return d, nil
}

func clusterID(name string) (string, bool) {
	if !strings.HasPrefix(name, clusterPrefix) {
		return "", false
	}
	id := strings.TrimPrefix(strings.TrimPrefix(name, clusterPrefix), "_")
	if id == "" {
		return name, true
	}
	return id, true
}

func convertAttrs(raw map[string]string) graph.Attributes {
	out := make(graph.Attributes, len(raw))
	for k, v := range raw {
		if layoutAttrs[k] || (k == "label" && v == `\N`) {
			continue
		}
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			out[k] = f
			continue
		}
		out[k] = v
	}
	return out
}

// parsePos reads a Graphviz point "x,y" with an optional trailing "!".
func parsePos(s string) (graph.Position, bool) {
	x, y, ok := strings.Cut(strings.TrimSuffix(s, "!"), ",")
	if !ok {
		return graph.Position{}, false
	}
	px, errX := strconv.ParseFloat(strings.TrimSpace(x), 64)
	py, errY := strconv.ParseFloat(strings.TrimSpace(y), 64)
	if errX != nil || errY != nil {
		return graph.Position{}, false
	}
	return graph.Position{X: px, Y: py}, true
}

// =============================================================================
// Export
// =============================================================================

// WriteDOT writes g as a DOT digraph. Placed nodes carry pinned positions
// (pos="x,y!"); compound nodes become cluster subgraphs.
func WriteDOT(g *graph.Graph, w io.Writer) error {
	var buf bytes.Buffer
	buf.WriteString("digraph G {\n")
	buf.WriteString("  node [shape=circle];\n")

	writeNodes(&buf, g, "", 1)

	buf.WriteString("\n")
	for e := range g.Edges(nil) {
		attrs := []string{fmt.Sprintf("id=%q", e.ID)}
		if e.Weight != 0 {
			attrs = append(attrs, fmt.Sprintf("weight=%s", formatFloat(e.Weight)))
		}
		attrs = append(attrs, fmtAttrs(e.Attrs, "id", "weight")...)
		fmt.Fprintf(&buf, "  %q -> %q [%s];\n", e.Source, e.Target, strings.Join(attrs, ", "))
	}
	buf.WriteString("}\n")

	_, err := w.Write(buf.Bytes())
	return err
}

// ExportDOT writes g to a DOT file at path.
func ExportDOT(g *graph.Graph, path string) error {
	return createAndWrite(path, func(w io.Writer) error { return WriteDOT(g, w) })
}

func writeNodes(buf *bytes.Buffer, g *graph.Graph, parent string, depth int) {
	indent := strings.Repeat("  ", depth)
	for n := range g.Nodes(nil) {
		if n.Parent != parent {
			continue
		}
		if g.IsCompound(n.ID) {
			fmt.Fprintf(buf, "%ssubgraph %q {\n", indent, clusterPrefix+"_"+n.ID)
			for _, a := range fmtAttrs(n.Attrs) {
				fmt.Fprintf(buf, "%s  %s;\n", indent, a)
			}
			writeNodes(buf, g, n.ID, depth+1)
			fmt.Fprintf(buf, "%s}\n", indent)
			continue
		}
		var attrs []string
		if n.Placed {
			attrs = append(attrs, fmt.Sprintf("pos=\"%s,%s!\"", formatFloat(n.Position.X), formatFloat(n.Position.Y)))
		}
		attrs = append(attrs, fmtAttrs(n.Attrs, "pos")...)
		if len(attrs) == 0 {
			fmt.Fprintf(buf, "%s%q;\n", indent, n.ID)
			continue
		}
		fmt.Fprintf(buf, "%s%q [%s];\n", indent, n.ID, strings.Join(attrs, ", "))
	}
}

func fmtAttrs(attrs graph.Attributes, skip ...string) []string {
	var out []string
	for _, k := range slices.Sorted(maps.Keys(attrs)) {
		if slices.Contains(skip, k) {
			continue
		}
		switch v := attrs[k].(type) {
		case string:
			out = append(out, fmt.Sprintf("%q=%q", k, v))
		case float64:
			out = append(out, fmt.Sprintf("%q=%s", k, formatFloat(v)))
		default:
			out = append(out, fmt.Sprintf("%q=%q", k, fmt.Sprint(v)))
		}
	}
	return out
}

func formatFloat(v float64) string { return strconv.FormatFloat(v, 'f', -1, 64) }
