// Package errors provides structured error types for the forcelayout engine.
//
// This package defines error codes and types that enable:
//   - Consistent error handling across library, CLI and API
//   - Machine-readable error codes for programmatic handling
//   - Enough context (element id, parameter, constraint) to fix the input
//   - Error wrapping with context preservation
//
// # Error Codes
//
// Every error type in this package reports a [Code]:
//   - INTEGRITY: broken edge reference, duplicate id, parent cycle
//   - NOT_FOUND: lookup miss
//   - INVALID_CONFIG: invalid layout parameters (aggregated)
//   - CONCURRENT_MUTATION: graph mutated while a layout run is active
//   - CANCELLED: informational, the run still returns its last positions
//   - INVALID_SELECTOR, INVALID_INPUT: malformed caller input
//   - INTERNAL_ERROR: invariant violations
//
// # Usage
//
//	err := errors.New(errors.ErrCodeInvalidInput, "unknown format: %s", name)
//	if errors.Is(err, errors.ErrCodeInvalidInput) {
//	    // Handle validation error
//	}
//
//	// Typed errors carry their own context
//	var ie *errors.IntegrityError
//	if stderrors.As(err, &ie) {
//	    fmt.Println(ie.ElementID, ie.Reason)
//	}
package errors

import (
	"errors"
	"fmt"
)

// Code represents a machine-readable error code.
type Code string

// Error codes for different error categories.
const (
	// Input validation errors
	ErrCodeInvalidInput    Code = "INVALID_INPUT"
	ErrCodeInvalidConfig   Code = "INVALID_CONFIG"
	ErrCodeInvalidSelector Code = "INVALID_SELECTOR"
	ErrCodeInvalidFormat   Code = "INVALID_FORMAT"

	// Graph errors
	ErrCodeIntegrity          Code = "INTEGRITY"
	ErrCodeNotFound           Code = "NOT_FOUND"
	ErrCodeConcurrentMutation Code = "CONCURRENT_MUTATION"

	// Run outcome
	ErrCodeCancelled Code = "CANCELLED"

	// Internal errors
	ErrCodeInternal    Code = "INTERNAL_ERROR"
	ErrCodeUnsupported Code = "UNSUPPORTED"
)

// coder is implemented by every error type in this package.
type coder interface {
	error
	ErrorCode() Code
}

// Error is a structured error with a code and optional cause.
type Error struct {
	Code    Code   // Machine-readable error code
	Message string // Human-readable message
	Cause   error  // Underlying error (optional)
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause for errors.Is/As compatibility.
func (e *Error) Unwrap() error {
	return e.Cause
}

// ErrorCode returns the error code.
func (e *Error) ErrorCode() Code {
	return e.Code
}

// New creates a new Error with the given code and formatted message.
func New(code Code, format string, args ...any) *Error {
	return &Error{
		Code:    code,
		Message: fmt.Sprintf(format, args...),
	}
}

// Wrap creates a new Error wrapping an existing error.
func Wrap(code Code, cause error, format string, args ...any) *Error {
	return &Error{
		Code:    code,
		Message: fmt.Sprintf(format, args...),
		Cause:   cause,
	}
}

// Is reports whether err has the given error code.
// It unwraps the error chain looking for the first coded error.
func Is(err error, code Code) bool {
	return GetCode(err) == code
}

// GetCode extracts the error code from an error, if available.
// Returns empty string if no error in the chain carries a code.
func GetCode(err error) Code {
	var c coder
	if errors.As(err, &c) {
		return c.ErrorCode()
	}
	return ""
}

// UserMessage returns a user-friendly message for the error.
// For *Error types, returns the message without the code prefix.
// Typed errors already render without a code prefix.
// For other errors, returns the error string as-is.
func UserMessage(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Message
	}
	return err.Error()
}
