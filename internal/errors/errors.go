// Package errors provides centralized error definitions and error handling utilities
// for paragent. It defines the sentinel errors of each subsystem, typed errors that
// carry batch context, and classification helpers used by the CLI to decide how a
// failure is reported.
//
// # Error Types
//
// Fatal errors abort a run before any task executes:
//   - ParseError: a task block is malformed (empty input, missing or invalid field, duplicate id)
//   - GraphError: the dependency graph is invalid (unknown dependency, cycle)
//
// Task-scoped errors never abort a run; the executor records them in the task result:
//   - BackendError: a backend could not be resolved or invoked
//
// # Usage
//
//	err := errors.NewParseError(errors.ErrMissingField, "missing id field").WithBlock(2)
//
//	if errors.Is(err, errors.ErrMissingField) { ... }
//
//	var graphErr *errors.GraphError
//	if errors.As(err, &graphErr) { ... }
//
//	if errors.IsFatal(err) { ... }
package errors

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

// Re-export standard library functions for convenience.
// This allows callers to import only this package for all error handling.
var (
	Is     = errors.Is
	As     = errors.As
	Unwrap = errors.Unwrap
	New    = errors.New
	Join   = errors.Join
)

// -----------------------------------------------------------------------------
// Sentinel Errors
// -----------------------------------------------------------------------------

// Parse sentinel errors
var (
	// ErrEmptyInput indicates that the batch is blank or has no task blocks.
	ErrEmptyInput = New("empty input")
	// ErrMissingField indicates that a task block lacks a required field.
	ErrMissingField = New("missing field")
	// ErrDuplicateID indicates that two task blocks declare the same id.
	ErrDuplicateID = New("duplicate id")
	// ErrInvalidField indicates that a field holds a value outside its domain.
	ErrInvalidField = New("invalid field")
)

// Graph sentinel errors
var (
	// ErrUnknownDependency indicates a dependency on an undeclared task.
	ErrUnknownDependency = New("unknown dependency")
	// ErrCycleDetected indicates a circular dependency among tasks.
	ErrCycleDetected = New("dependency cycle detected")
)

// Backend sentinel errors
var (
	// ErrBackendNotFound indicates that a backend executable is not on PATH.
	ErrBackendNotFound = New("backend command not found")
	// ErrUnknownBackend indicates a backend name outside the supported set.
	ErrUnknownBackend = New("unknown backend")
)

// Execution sentinel errors
var (
	// ErrInvalidTransition indicates a task status change the state machine forbids.
	ErrInvalidTransition = New("invalid status transition")
)

// -----------------------------------------------------------------------------
// Base Error Implementation
// -----------------------------------------------------------------------------

// baseError provides common functionality for all error types.
type baseError struct {
	message string
	cause   error
}

// Error returns the error message.
func (e *baseError) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %v", e.message, e.cause)
	}
	return e.message
}

// Unwrap returns the underlying error.
func (e *baseError) Unwrap() error {
	return e.cause
}

// Is checks if this error matches the target.
func (e *baseError) Is(target error) bool {
	if e.cause != nil {
		return errors.Is(e.cause, target)
	}
	return false
}

// -----------------------------------------------------------------------------
// Domain-Specific Errors
// -----------------------------------------------------------------------------

// ParseError represents a malformed task batch.
//
// Example:
//
//	err := errors.NewParseError(errors.ErrDuplicateID, "duplicate id: t1").WithBlock(2).WithTaskID("t1")
//	fmt.Println(err) // "parse error [block=2, task=t1]: duplicate id: t1"
type ParseError struct {
	baseError
	Block  int
	TaskID string
	Field  string
}

// NewParseError creates a new ParseError. The kind should be one of the parse
// sentinel errors so callers can match it with errors.Is.
func NewParseError(kind error, message string) *ParseError {
	return &ParseError{
		baseError: baseError{message: message, cause: kind},
	}
}

// WithBlock records the 1-based index of the offending task block.
func (e *ParseError) WithBlock(block int) *ParseError {
	e.Block = block
	return e
}

// WithTaskID records the id of the offending task, when known.
func (e *ParseError) WithTaskID(id string) *ParseError {
	e.TaskID = id
	return e
}

// WithField records the name of the offending field.
func (e *ParseError) WithField(field string) *ParseError {
	e.Field = field
	return e
}

// Error returns the formatted error message.
func (e *ParseError) Error() string {
	var parts []string
	if e.Block > 0 {
		parts = append(parts, fmt.Sprintf("block=%d", e.Block))
	}
	if e.TaskID != "" {
		parts = append(parts, fmt.Sprintf("task=%s", e.TaskID))
	}
	if e.Field != "" {
		parts = append(parts, fmt.Sprintf("field=%s", e.Field))
	}

	prefix := "parse error"
	if len(parts) > 0 {
		prefix = fmt.Sprintf("parse error [%s]", strings.Join(parts, ", "))
	}
	return fmt.Sprintf("%s: %s", prefix, e.message)
}

// Is checks if this error matches the target.
func (e *ParseError) Is(target error) bool {
	if _, ok := target.(*ParseError); ok {
		return true
	}
	return e.baseError.Is(target)
}

// GraphError represents an invalid dependency graph.
//
// Example:
//
//	err := errors.NewUnknownDependencyError("c", "x")
//	fmt.Println(err) // "graph error [task=c]: dependency \"x\" not found"
type GraphError struct {
	baseError
	TaskID     string
	Dependency string
	// Cycle lists the ids left unplaced when a cycle was found, sorted.
	Cycle []string
}

// NewUnknownDependencyError reports that taskID depends on an undeclared id.
func NewUnknownDependencyError(taskID, dependency string) *GraphError {
	return &GraphError{
		baseError:  baseError{message: fmt.Sprintf("dependency %q not found", dependency), cause: ErrUnknownDependency},
		TaskID:     taskID,
		Dependency: dependency,
	}
}

// NewCycleError reports a cycle involving the given task ids.
func NewCycleError(ids []string) *GraphError {
	cycle := append([]string(nil), ids...)
	sort.Strings(cycle)
	return &GraphError{
		baseError: baseError{message: "cycle detected involving tasks: " + strings.Join(cycle, ", "), cause: ErrCycleDetected},
		Cycle:     cycle,
	}
}

// Error returns the formatted error message.
func (e *GraphError) Error() string {
	prefix := "graph error"
	if e.TaskID != "" {
		prefix = fmt.Sprintf("graph error [task=%s]", e.TaskID)
	}
	return fmt.Sprintf("%s: %s", prefix, e.message)
}

// Is checks if this error matches the target.
func (e *GraphError) Is(target error) bool {
	if _, ok := target.(*GraphError); ok {
		return true
	}
	return e.baseError.Is(target)
}

// BackendError represents a failure to resolve or launch a backend.
//
// Example:
//
//	err := errors.NewBackendError("codex", errors.ErrBackendNotFound).WithCommand("codex")
//	fmt.Println(err) // "backend error [backend=codex, command=codex]: backend command not found"
type BackendError struct {
	baseError
	Backend string
	Command string
}

// NewBackendError creates a new BackendError.
func NewBackendError(backend string, cause error) *BackendError {
	return &BackendError{
		baseError: baseError{cause: cause},
		Backend:   backend,
	}
}

// WithCommand records the program that could not be resolved or started.
func (e *BackendError) WithCommand(command string) *BackendError {
	e.Command = command
	return e
}

// Error returns the formatted error message.
func (e *BackendError) Error() string {
	var parts []string
	if e.Backend != "" {
		parts = append(parts, fmt.Sprintf("backend=%s", e.Backend))
	}
	if e.Command != "" {
		parts = append(parts, fmt.Sprintf("command=%s", e.Command))
	}

	prefix := "backend error"
	if len(parts) > 0 {
		prefix = fmt.Sprintf("backend error [%s]", strings.Join(parts, ", "))
	}
	if e.message != "" && e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", prefix, e.message, e.cause)
	}
	if e.cause != nil {
		return fmt.Sprintf("%s: %v", prefix, e.cause)
	}
	return fmt.Sprintf("%s: %s", prefix, e.message)
}

// Is checks if this error matches the target.
func (e *BackendError) Is(target error) bool {
	if _, ok := target.(*BackendError); ok {
		return true
	}
	return e.baseError.Is(target)
}

// -----------------------------------------------------------------------------
// Classification Helpers
// -----------------------------------------------------------------------------

// IsFatal returns true if the error must abort the run before execution:
// parse and graph errors.
func IsFatal(err error) bool {
	if err == nil {
		return false
	}
	var parseErr *ParseError
	var graphErr *GraphError
	return As(err, &parseErr) || As(err, &graphErr)
}

// IsBackendNotFound returns true if the error reports an unresolvable backend executable.
func IsBackendNotFound(err error) bool {
	return err != nil && Is(err, ErrBackendNotFound)
}

// Wrap adds context to an error. Returns nil if err is nil.
func Wrap(err error, message string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", message, err)
}

// Wrapf adds formatted context to an error. Returns nil if err is nil.
func Wrapf(err error, format string, args ...any) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", fmt.Sprintf(format, args...), err)
}
