// Package pkg provides the core libraries for forcelayout, a force-directed
// layout engine for compound graphs.
//
// # Overview
//
// forcelayout positions the nodes of a graph with a compound spring
// embedder: edges pull their endpoints towards an ideal length, nodes repel
// each other, gravity holds every component and compound together, and a
// cooling schedule bounds how far a node may move per iteration. The pkg
// directory is organized into four main areas:
//
//  1. [graph], [spatial] - The element store and spatial queries over it
//  2. [force], [placement], [layout] - The simulation and its lifecycle
//  3. [session], [io] - Live sessions with events, and JSON/DOT interchange
//  4. [pipeline], [cache], [observability] - Cached runs, cache backends and metrics hooks
//
// # Architecture
//
// The typical data flow:
//
//	JSON or DOT file
//	       ↓
//	  [io] package (Description → graph.Graph)
//	       ↓
//	  [session] package (store, selectors, events, run ownership)
//	       ↓
//	  [layout] package (Idle → Initializing → Running → Converged/Cancelled)
//	       ↓
//	  layout.Result (positions, bounding box, reason, iterations)
//
// [pipeline] wraps the last three steps with a cache keyed by the graph
// and the config fingerprint. The CLI and the HTTP API both call it.
//
// # Quick Start
//
// Lay out a graph read from JSON:
//
//	desc, _ := io.DecodeJSON(r)
//	g, _ := desc.Build()
//
//	cfg := layout.DefaultConfig()
//	cfg.IdealEdgeLength = layout.Constant(80)
//	res, _ := layout.Run(ctx, g, cfg, layout.Options{})
//
//	for id, p := range res.Positions {
//	    fmt.Println(id, p.X, p.Y)
//	}
//
// Run the same layout through a session, watching it finish:
//
//	s := session.New(session.Options{})
//	_ = s.Add(desc.Elements())
//	stop, _ := s.Once(session.EventLayoutStop, "")
//	run, _ := s.StartLayout(ctx, cfg, layout.Options{})
//	ev, _ := stop.Wait(ctx)
//
// # Main Packages
//
// [graph] - The node and edge store: ordered insertion, compound
// parent/child links, attribute selectors such as node[myLabel='Even'] and
// a freeze hold that rejects mutation while a run owns the graph.
//
// [spatial] - A uniform grid over node positions answering radius and
// k-nearest queries, and the Barnes-Hut quadtree used for repulsion.
//
// [force] - Spring, repulsion (pairwise or Barnes-Hut) and gravity forces
// over a snapshot of the graph, evaluated in parallel partitions.
//
// [placement] - Circle, grid, concentric and seeded random placements.
//
// [layout] - The engine, its config (TOML, JSON, validation) and results.
//
// [session] - Sessions, event subscriptions, one-shot watchers, run
// handles and an idle-session manager.
//
// [io] - Graph descriptions in JSON and Graphviz DOT, and the layout result
// record.
//
// [cache] - File, Redis, MongoDB and bbolt layout caches behind one
// interface, with retry on transient backend errors.
//
// [pipeline] - Cache-aside layout runs used by the CLI and the HTTP API.
//
// [observability] - Layout, cache and HTTP hooks with a Prometheus
// implementation.
//
// # Testing
//
// Run tests:
//
//	go test ./pkg/...                    # All tests
//	go test ./pkg/layout/...             # Specific package
//	go test -run Example ./pkg/...       # Examples only
//	FORCELAYOUT_MONGO_URI=mongodb://localhost:27017 go test ./pkg/cache/
//
// [graph]: https://pkg.go.dev/github.com/matzehuels/forcelayout/pkg/graph
// [spatial]: https://pkg.go.dev/github.com/matzehuels/forcelayout/pkg/spatial
// [force]: https://pkg.go.dev/github.com/matzehuels/forcelayout/pkg/force
// [placement]: https://pkg.go.dev/github.com/matzehuels/forcelayout/pkg/placement
// [layout]: https://pkg.go.dev/github.com/matzehuels/forcelayout/pkg/layout
// [session]: https://pkg.go.dev/github.com/matzehuels/forcelayout/pkg/session
// [io]: https://pkg.go.dev/github.com/matzehuels/forcelayout/pkg/io
// [cache]: https://pkg.go.dev/github.com/matzehuels/forcelayout/pkg/cache
// [pipeline]: https://pkg.go.dev/github.com/matzehuels/forcelayout/pkg/pipeline
// [observability]: https://pkg.go.dev/github.com/matzehuels/forcelayout/pkg/observability
package pkg
