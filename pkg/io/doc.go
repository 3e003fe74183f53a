// Package io provides JSON and DOT interchange for graphs and layout
// results.
//
// # JSON Format
//
// A graph description has two top-level arrays:
//
//	{
//	  "nodes": [
//	    {"id": "a", "data": {"weight": 3}},
//	    {"id": "b", "position": {"x": 10, "y": 20}, "locked": true},
//	    {"id": "c", "parent": "a"}
//	  ],
//	  "edges": [
//	    {"id": "ab", "source": "a", "target": "b", "weight": 2}
//	  ]
//	}
//
// Node fields: id (required), data, position, locked, overlap_exempt and
// parent. Edge fields: id, source, target, data and weight. An edge
// without an id is named "source->target#k", with k counting the id-less
// edges between the same pair.
//
// Use [ReadJSON] or [ImportJSON] to build a graph.Graph, [DecodeJSON] to
// obtain the [Description] itself, and [WriteJSON] or [ExportJSON] for the
// reverse direction. Descriptions preserve insertion order, so an export
// re-imports identically.
//
// # Layout Results
//
// [MarshalResult] and [UnmarshalResult] convert a layout.Result to and
// from:
//
//	{"positions": {"a": {"x": 1, "y": 2}}, "bounding_box": {...},
//	 "reason": "converged", "iterations": 312, "temperature": 44.1,
//	 "duration_ms": 18.5}
//
// Unknown reasons are rejected.
//
// # DOT
//
// [DecodeDOT] parses Graphviz DOT with github.com/goccy/go-graphviz.
// Subgraphs named "cluster*" become compound nodes and numeric attribute
// values are parsed as numbers. [WriteDOT] emits a digraph whose placed
// nodes carry pinned pos="x,y!" attributes, so Graphviz's neato -n can
// render a computed layout as is.
package io
