// Package session owns graph stores and the layout runs over them.
//
// A [Session] wraps one graph.Graph and at most one active layout run,
// replacing any ambient global context: every operation goes through an
// explicit session value.
//
// # Store access
//
// All store mutations and queries go through the session, which
// serialises them with a mutex. While a run is in flight, mutations fail
// with errors.ConcurrentMutationError:
//
//	sess := session.New(session.Options{})
//	_ = sess.Add(nodes, edges)
//
//	run, err := sess.StartLayout(ctx, layout.DefaultConfig(), layout.Options{})
//	if err != nil {
//	    return err
//	}
//	res, err := run.Wait(ctx)
//
// # Events
//
// Store changes and layout lifecycle transitions are published as
// [Event] values. [Session.On] registers persistent handlers,
// [Session.Once] returns a single-fire [Watcher]:
//
//	w, _ := sess.Once(session.EventTap, "node[myLabel='Even']")
//	ev, err := w.Wait(ctx)
//
// Handlers run after the session lock is released, in the order the
// changes happened.
//
// # Managing sessions
//
// A [Manager] keeps sessions by id for long-running services and expires
// idle ones with [Manager.Sweep]. A [FileStore] persists session graphs
// between CLI invocations or server restarts.
package session
