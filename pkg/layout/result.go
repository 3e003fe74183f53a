package layout

import (
	"time"

	"github.com/matzehuels/forcelayout/pkg/graph"
)

// Result is the outcome of a layout run.
type Result struct {
	RunID     string
	Positions map[string]graph.Position

	// BoundingBox encloses every final position, grown by Padding.
	BoundingBox graph.Rect
	Fit         bool
	Padding     float64

	Reason      Reason
	Iterations  int
	Temperature float64
	Duration    time.Duration

	// NonFinite counts force vectors that were zeroed during the run.
	NonFinite int

	err error
}

// Err returns a [*errors.CancelledError] for cancelled runs and nil
// otherwise. Cancellation is informational: Positions are still valid.
func (r *Result) Err() error { return r.err }

// Progress is an in-flight snapshot passed to a [ProgressFunc].
type Progress struct {
	RunID       string
	Iteration   int
	Temperature float64
	Positions   map[string]graph.Position
}

// ProgressFunc observes a running layout. It runs on the engine goroutine.
type ProgressFunc func(Progress)

// ChannelProgress returns a ProgressFunc that sends to ch without
// blocking. Snapshots the receiver is not ready for are dropped.
func ChannelProgress(ch chan<- Progress) ProgressFunc {
	return func(p Progress) {
		select {
		case ch <- p:
		default:
		}
	}
}
