package errors

import (
	"fmt"
	"strings"
)

// ElementKind names the kind of graph element an error refers to.
type ElementKind string

const (
	KindNode ElementKind = "node"
	KindEdge ElementKind = "edge"
)

// IntegrityError reports a batch rejected for breaking referential integrity
// or id uniqueness. The whole batch is rejected; the graph is unchanged.
type IntegrityError struct {
	Kind      ElementKind // Kind of the offending element
	ElementID string      // Id of the offending element
	Ref       string      // Referenced id that failed, if any
	Reason    string      // What was violated
}

// Error implements the error interface.
func (e *IntegrityError) Error() string {
	if e.Ref != "" {
		return fmt.Sprintf("integrity: %s %q: %s %q", e.Kind, e.ElementID, e.Reason, e.Ref)
	}
	return fmt.Sprintf("integrity: %s %q: %s", e.Kind, e.ElementID, e.Reason)
}

// ErrorCode returns ErrCodeIntegrity.
func (e *IntegrityError) ErrorCode() Code { return ErrCodeIntegrity }

// NotFoundError reports a lookup miss.
type NotFoundError struct {
	Kind ElementKind // Empty when the lookup spans both kinds
	ID   string
}

// Error implements the error interface.
func (e *NotFoundError) Error() string {
	if e.Kind == "" {
		return fmt.Sprintf("element %q not found", e.ID)
	}
	return fmt.Sprintf("%s %q not found", e.Kind, e.ID)
}

// ErrorCode returns ErrCodeNotFound.
func (e *NotFoundError) ErrorCode() Code { return ErrCodeNotFound }

// Violation is a single failed configuration constraint.
type Violation struct {
	Field      string // Parameter name, e.g. "minTemp"
	Constraint string // Constraint that failed, e.g. "gt=0"
	Value      any    // Offending value
}

// String formats the violation for display.
func (v Violation) String() string {
	return fmt.Sprintf("%s: must satisfy %s (got %v)", v.Field, v.Constraint, v.Value)
}

// ConfigError aggregates every violated configuration constraint.
type ConfigError struct {
	Violations []Violation
}

// Error implements the error interface.
func (e *ConfigError) Error() string {
	parts := make([]string, len(e.Violations))
	for i, v := range e.Violations {
		parts[i] = v.String()
	}
	return fmt.Sprintf("invalid config (%d violations): %s", len(e.Violations), strings.Join(parts, "; "))
}

// ErrorCode returns ErrCodeInvalidConfig.
func (e *ConfigError) ErrorCode() Code { return ErrCodeInvalidConfig }

// Has reports whether a violation for field is present.
func (e *ConfigError) Has(field string) bool {
	for _, v := range e.Violations {
		if v.Field == field {
			return true
		}
	}
	return false
}

// ConcurrentMutationError reports a mutation attempted while a layout run
// holds the graph.
type ConcurrentMutationError struct {
	Op    string // Attempted operation, e.g. "AddNodes"
	RunID string // Run holding the graph
}

// Error implements the error interface.
func (e *ConcurrentMutationError) Error() string {
	return fmt.Sprintf("%s: graph is held by active layout run %s", e.Op, e.RunID)
}

// ErrorCode returns ErrCodeConcurrentMutation.
func (e *ConcurrentMutationError) ErrorCode() Code { return ErrCodeConcurrentMutation }

// CancelledError is informational: the run stopped early on request and
// still returned the positions of its last completed iteration.
type CancelledError struct {
	Iteration int
	Cause     error
}

// Error implements the error interface.
func (e *CancelledError) Error() string {
	return fmt.Sprintf("layout cancelled after iteration %d", e.Iteration)
}

// Unwrap returns the context error that triggered cancellation.
func (e *CancelledError) Unwrap() error { return e.Cause }

// ErrorCode returns ErrCodeCancelled.
func (e *CancelledError) ErrorCode() Code { return ErrCodeCancelled }

// SelectorError reports a malformed attribute selector.
type SelectorError struct {
	Selector string
	Offset   int
	Reason   string
}

// Error implements the error interface.
func (e *SelectorError) Error() string {
	return fmt.Sprintf("selector %q at offset %d: %s", e.Selector, e.Offset, e.Reason)
}

// ErrorCode returns ErrCodeInvalidSelector.
func (e *SelectorError) ErrorCode() Code { return ErrCodeInvalidSelector }
