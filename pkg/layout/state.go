package layout

import (
	"fmt"

	"github.com/matzehuels/forcelayout/pkg/errors"
)

// State is a step of the engine's lifecycle:
//
//	Idle → Initializing → Running → Converged | Cancelled | Failed
//
// A run that stops on its iteration or time budget ends in Converged; the
// distinction is kept in [Result.Reason].
type State int32

const (
	StateIdle State = iota
	StateInitializing
	StateRunning
	StateConverged
	StateCancelled
	StateFailed
)

var stateNames = [...]string{"idle", "initializing", "running", "converged", "cancelled", "failed"}

// String implements fmt.Stringer.
func (s State) String() string {
	if s >= 0 && int(s) < len(stateNames) {
		return stateNames[s]
	}
	return fmt.Sprintf("State(%d)", int32(s))
}

// Terminal reports whether the engine has stopped.
func (s State) Terminal() bool { return s >= StateConverged }

// MarshalText implements encoding.TextMarshaler.
func (s State) MarshalText() ([]byte, error) { return []byte(s.String()), nil }

// Reason explains why a run stopped.
type Reason string

const (
	ReasonConverged     Reason = "converged"
	ReasonMaxIterations Reason = "max-iterations"
	ReasonCancelled     Reason = "cancelled"
)

// ParseReason validates a reason string.
func ParseReason(s string) (Reason, error) {
	switch r := Reason(s); r {
	case ReasonConverged, ReasonMaxIterations, ReasonCancelled:
		return r, nil
	}
	return "", errors.New(errors.ErrCodeInvalidFormat, "unknown termination reason %q", s)
}
