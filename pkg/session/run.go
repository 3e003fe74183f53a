package session

import (
	"context"

	"github.com/matzehuels/forcelayout/pkg/layout"
)

// Run is a layout run started by [Session.StartLayout].
type Run struct {
	engine *layout.Engine
	cancel context.CancelCauseFunc
	done   chan struct{}

	// Set under the session lock before done is closed.
	finished bool
	res      *layout.Result
	err      error
}

// ID returns the run id.
func (r *Run) ID() string { return r.engine.RunID() }

// State returns the engine state.
func (r *Run) State() layout.State { return r.engine.State() }

// Cancel requests cooperative cancellation. The run stops after its
// current iteration; Cancel does not wait for that.
func (r *Run) Cancel() { r.cancel(nil) }

// Done is closed once the run has stopped and its events were dispatched.
func (r *Run) Done() <-chan struct{} { return r.done }

// Wait blocks until the run stops or ctx ends. An ended ctx does not
// cancel the run.
func (r *Run) Wait(ctx context.Context) (*layout.Result, error) {
	select {
	case <-r.done:
		return r.res, r.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Result returns the outcome of a finished run, or nil and nil while the
// run is still in flight.
func (r *Run) Result() (*layout.Result, error) {
	select {
	case <-r.done:
		return r.res, r.err
	default:
		return nil, nil
	}
}
