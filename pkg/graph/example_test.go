package graph_test

import (
	"fmt"

	"github.com/matzehuels/forcelayout/pkg/errors"
	"github.com/matzehuels/forcelayout/pkg/graph"
)

func ExampleGraph_Add() {
	g := graph.New()
	err := g.Add(
		[]graph.Node{{ID: "app"}, {ID: "lib"}, {ID: "core"}},
		[]graph.Edge{
			{ID: "app-lib", Source: "app", Target: "lib"},
			{ID: "lib-core", Source: "lib", Target: "core"},
		},
	)
	fmt.Println("error:", err)
	fmt.Println("nodes:", g.NodeCount())
	fmt.Println("edges:", g.EdgeCount())
	fmt.Println("degree of lib:", g.Degree("lib"))
	// Output:
	// error: <nil>
	// nodes: 3
	// edges: 2
	// degree of lib: 2
}

func ExampleGraph_AddEdges_integrity() {
	g := graph.New()
	_ = g.AddNodes([]graph.Node{{ID: "a"}, {ID: "b"}})

	err := g.AddEdges([]graph.Edge{
		{ID: "ab", Source: "a", Target: "b"},
		{ID: "ax", Source: "a", Target: "x"},
	})
	fmt.Println(err)
	fmt.Println("integrity:", errors.Is(err, errors.ErrCodeIntegrity))
	fmt.Println("edges:", g.EdgeCount())
	// Output:
	// integrity: edge "ax": unknown target "x"
	// integrity: true
	// edges: 0
}

func ExampleGraph_Query() {
	g := graph.New()
	_ = g.AddNodes([]graph.Node{
		{ID: "0", Attrs: graph.Attributes{"myLabel": "Even", "weight": 0}},
		{ID: "1", Attrs: graph.Attributes{"myLabel": "Odd", "weight": 10}},
		{ID: "2", Attrs: graph.Attributes{"myLabel": "Even", "weight": 20}},
	})

	even, _ := g.Query("node[myLabel='Even']")
	for el := range even {
		fmt.Println(el.ID())
	}
	// Output:
	// 0
	// 2
}
