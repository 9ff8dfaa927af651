// Package errors provides centralized error definitions and error handling utilities
// for Tempo. It defines the scheduling error taxonomy, semantic error types,
// error constructors with context wrapping, and error classification helpers.
//
// # Error Types
//
// Scheduling errors are raised by the task-graph calculators and carry a
// machine-readable [Code] plus, when known, the offending task id:
//   - NOT_FOUND: referenced task id does not exist
//   - MISSING_DURATION: a non-completed task has no positive estimate
//   - OVERDUE: a deadline passed where forward scheduling needs it not to
//   - NOT_A_DAG: the restricted project graph is cyclic or dangling
//   - PARENT_UNRESOLVED / CHILD_UNRESOLVED: internal pass consistency failure
//   - CYCLE_DETECTED: a parent-link mutation would make a task its own ancestor
//
// Semantic errors represent common error conditions:
//   - NotFoundError: resource not found
//   - ValidationError: invalid input or state
//
// # Usage
//
//	err := errors.NewSchedulingError(errors.CodeMissingDuration, "estimate required").WithTaskID(7)
//
//	if errors.Is(err, errors.ErrMissingDuration) { ... }
//
//	var schedErr *errors.SchedulingError
//	if errors.As(err, &schedErr) {
//	    fmt.Println(schedErr.Code())
//	}
//
// The core never formats user-facing text beyond Error(); callers translate
// codes into messages.
package errors

import (
	"errors"
	"fmt"
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

// Severity represents the severity level of an error.
type Severity int

const (
	// SeverityDebug is for errors that are useful for debugging but not critical.
	SeverityDebug Severity = iota
	// SeverityInfo is for informational errors that don't indicate a problem.
	SeverityInfo
	// SeverityWarning is for errors that might indicate a problem but aren't critical.
	SeverityWarning
	// SeverityError is for errors that indicate a real problem.
	SeverityError
	// SeverityCritical is for errors that require immediate attention.
	SeverityCritical
)

// String returns the string representation of the severity level.
func (s Severity) String() string {
	switch s {
	case SeverityDebug:
		return "debug"
	case SeverityInfo:
		return "info"
	case SeverityWarning:
		return "warning"
	case SeverityError:
		return "error"
	case SeverityCritical:
		return "critical"
	default:
		return "unknown"
	}
}

// Code is the machine-readable kind of a scheduling error.
type Code string

const (
	CodeNotFound         Code = "NOT_FOUND"
	CodeMissingDuration  Code = "MISSING_DURATION"
	CodeOverdue          Code = "OVERDUE"
	CodeNotADag          Code = "NOT_A_DAG"
	CodeParentUnresolved Code = "PARENT_UNRESOLVED"
	CodeChildUnresolved  Code = "CHILD_UNRESOLVED"
	CodeCycleDetected    Code = "CYCLE_DETECTED"
)

// -----------------------------------------------------------------------------
// Sentinel Errors
// -----------------------------------------------------------------------------

// Scheduling sentinel errors, one per Code. A SchedulingError matches the
// sentinel of its code under errors.Is.
var (
	// ErrNotFound indicates that a task could not be found.
	ErrNotFound = New("task not found")
	// ErrMissingDuration indicates a non-completed task lacks a positive estimate.
	ErrMissingDuration = New("missing duration")
	// ErrOverdue indicates a non-completed task's deadline has already passed.
	ErrOverdue = New("task overdue")
	// ErrNotADag indicates the project graph is not a directed acyclic graph.
	ErrNotADag = New("project graph is not a DAG")
	// ErrParentUnresolved indicates a parent had no computed finish during the forward pass.
	ErrParentUnresolved = New("parent unresolved")
	// ErrChildUnresolved indicates a child had no computed finish during the backward pass.
	ErrChildUnresolved = New("child unresolved")
	// ErrCycleDetected indicates a link mutation would create a cycle.
	ErrCycleDetected = New("dependency cycle detected")
)

// General sentinel errors
var (
	// ErrInvalidInput indicates that input validation failed.
	ErrInvalidInput = New("invalid input")
	// ErrInvalidTransition indicates a lifecycle transition that is not allowed.
	ErrInvalidTransition = New("invalid status transition")
)

var sentinelByCode = map[Code]error{
	CodeNotFound:         ErrNotFound,
	CodeMissingDuration:  ErrMissingDuration,
	CodeOverdue:          ErrOverdue,
	CodeNotADag:          ErrNotADag,
	CodeParentUnresolved: ErrParentUnresolved,
	CodeChildUnresolved:  ErrChildUnresolved,
	CodeCycleDetected:    ErrCycleDetected,
}

// -----------------------------------------------------------------------------
// Base Error Interface
// -----------------------------------------------------------------------------

// TempoError is the base interface for all Tempo errors.
type TempoError interface {
	error

	// Unwrap returns the underlying error, if any.
	Unwrap() error

	// Is reports whether this error matches the target error.
	Is(target error) bool

	// Severity returns the severity level of this error.
	Severity() Severity

	// IsUserFacing returns true if the error message is safe to display
	// to end users.
	IsUserFacing() bool
}

// baseError provides common functionality for all error types.
type baseError struct {
	message    string
	cause      error
	severity   Severity
	userFacing bool
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

// Severity returns the error severity.
func (e *baseError) Severity() Severity {
	return e.severity
}

// IsUserFacing returns whether the error is safe to show users.
func (e *baseError) IsUserFacing() bool {
	return e.userFacing
}

// -----------------------------------------------------------------------------
// Scheduling Errors
// -----------------------------------------------------------------------------

// SchedulingError is raised by the dependency resolver and the calculators.
//
// Example:
//
//	err := errors.NewSchedulingError(errors.CodeOverdue, "deadline has passed").WithTaskID(3)
//	fmt.Println(err) // "OVERDUE [task=3]: deadline has passed"
type SchedulingError struct {
	baseError
	code   Code
	TaskID *int64
}

// NewSchedulingError creates a new SchedulingError with the given code.
func NewSchedulingError(code Code, message string) *SchedulingError {
	severity := SeverityError
	if code == CodeParentUnresolved || code == CodeChildUnresolved {
		severity = SeverityCritical
	}
	return &SchedulingError{
		baseError: baseError{
			message:    message,
			severity:   severity,
			userFacing: code != CodeParentUnresolved && code != CodeChildUnresolved,
		},
		code: code,
	}
}

// Code returns the machine-readable error kind.
func (e *SchedulingError) Code() Code {
	return e.code
}

// WithTaskID records the offending task id.
func (e *SchedulingError) WithTaskID(id int64) *SchedulingError {
	e.TaskID = &id
	return e
}

// WithCause adds a cause to the error.
func (e *SchedulingError) WithCause(cause error) *SchedulingError {
	e.cause = cause
	return e
}

// Error returns the formatted error message.
func (e *SchedulingError) Error() string {
	prefix := string(e.code)
	if e.TaskID != nil {
		prefix = fmt.Sprintf("%s [task=%d]", e.code, *e.TaskID)
	}
	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", prefix, e.message, e.cause)
	}
	return fmt.Sprintf("%s: %s", prefix, e.message)
}

// Is matches other SchedulingErrors with the same code and the sentinel
// error registered for this code.
func (e *SchedulingError) Is(target error) bool {
	if other, ok := target.(*SchedulingError); ok {
		return other.code == e.code
	}
	if sentinel, ok := sentinelByCode[e.code]; ok && target == sentinel {
		return true
	}
	return e.baseError.Is(target)
}

// NotFound returns a NOT_FOUND scheduling error for the given task id.
func NotFound(id int64) *SchedulingError {
	return NewSchedulingError(CodeNotFound, "task does not exist").WithTaskID(id)
}

// MissingDuration returns a MISSING_DURATION scheduling error for the given task id.
func MissingDuration(id int64) *SchedulingError {
	return NewSchedulingError(CodeMissingDuration, "non-completed task requires a positive estimate").WithTaskID(id)
}

// CodeOf returns the code of the first SchedulingError in err's chain,
// or the empty Code if there is none.
func CodeOf(err error) Code {
	var schedErr *SchedulingError
	if As(err, &schedErr) {
		return schedErr.code
	}
	return ""
}

// TaskIDOf returns the task id carried by the first SchedulingError in err's chain.
func TaskIDOf(err error) (int64, bool) {
	var schedErr *SchedulingError
	if As(err, &schedErr) && schedErr.TaskID != nil {
		return *schedErr.TaskID, true
	}
	return 0, false
}

// -----------------------------------------------------------------------------
// Semantic Errors
// -----------------------------------------------------------------------------

// NotFoundError represents a non-task resource that could not be found,
// such as a snapshot file or configuration entry.
//
// Example:
//
//	err := errors.NewNotFoundError("snapshot", "tasks.yaml")
//	fmt.Println(err) // "snapshot 'tasks.yaml' not found"
type NotFoundError struct {
	baseError
	ResourceType string
	ResourceID   string
}

// NewNotFoundError creates a new NotFoundError.
func NewNotFoundError(resourceType, resourceID string) *NotFoundError {
	return &NotFoundError{
		baseError: baseError{
			message:    fmt.Sprintf("%s '%s' not found", resourceType, resourceID),
			severity:   SeverityWarning,
			userFacing: true,
		},
		ResourceType: resourceType,
		ResourceID:   resourceID,
	}
}

// WithCause adds a cause to the error.
func (e *NotFoundError) WithCause(cause error) *NotFoundError {
	e.cause = cause
	return e
}

// Error returns the formatted error message.
func (e *NotFoundError) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s '%s' not found: %v", e.ResourceType, e.ResourceID, e.cause)
	}
	return fmt.Sprintf("%s '%s' not found", e.ResourceType, e.ResourceID)
}

// Is checks if this error matches the target.
func (e *NotFoundError) Is(target error) bool {
	if _, ok := target.(*NotFoundError); ok {
		return true
	}
	return e.baseError.Is(target)
}

// ValidationError represents invalid input or state.
//
// Example:
//
//	err := errors.NewValidationError("completeness out of range")
//	err = err.WithField("completeness").WithValue(140)
type ValidationError struct {
	baseError
	Field string
	Value any
}

// NewValidationError creates a new ValidationError.
func NewValidationError(message string) *ValidationError {
	return &ValidationError{
		baseError: baseError{
			message:    message,
			severity:   SeverityWarning,
			userFacing: true,
		},
	}
}

// WithField adds a field name to the error context.
func (e *ValidationError) WithField(field string) *ValidationError {
	e.Field = field
	return e
}

// WithValue adds the invalid value to the error context.
func (e *ValidationError) WithValue(value any) *ValidationError {
	e.Value = value
	return e
}

// WithCause adds a cause to the error.
func (e *ValidationError) WithCause(cause error) *ValidationError {
	e.cause = cause
	return e
}

// Error returns the formatted error message.
func (e *ValidationError) Error() string {
	var parts []string
	if e.Field != "" {
		parts = append(parts, fmt.Sprintf("field=%s", e.Field))
	}
	if e.Value != nil {
		parts = append(parts, fmt.Sprintf("value=%v", e.Value))
	}

	prefix := "validation error"
	if len(parts) > 0 {
		prefix = fmt.Sprintf("validation error [%s]", strings.Join(parts, ", "))
	}

	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", prefix, e.message, e.cause)
	}
	return fmt.Sprintf("%s: %s", prefix, e.message)
}

// Is checks if this error matches the target.
func (e *ValidationError) Is(target error) bool {
	if _, ok := target.(*ValidationError); ok {
		return true
	}
	if errors.Is(target, ErrInvalidInput) {
		return true
	}
	return e.baseError.Is(target)
}

// -----------------------------------------------------------------------------
// Error Classification Helpers
// -----------------------------------------------------------------------------

// IsUserFacing returns true if the error message is safe to display to end users.
func IsUserFacing(err error) bool {
	if err == nil {
		return false
	}

	var tempoErr TempoError
	if As(err, &tempoErr) {
		return tempoErr.IsUserFacing()
	}
	return false
}

// GetSeverity returns the severity level of the error.
// Returns SeverityError for errors that don't implement TempoError.
func GetSeverity(err error) Severity {
	if err == nil {
		return SeverityDebug
	}

	var tempoErr TempoError
	if As(err, &tempoErr) {
		return tempoErr.Severity()
	}
	return SeverityError
}

// -----------------------------------------------------------------------------
// Convenience Constructors
// -----------------------------------------------------------------------------

// Wrap wraps an error with additional context message.
// Unlike a bare fmt.Errorf without %w, this preserves the TempoError chain.
//
// Example:
//
//	err := errors.Wrap(baseErr, "failed to compute schedule")
func Wrap(err error, message string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", message, err)
}

// Wrapf wraps an error with a formatted context message.
func Wrapf(err error, format string, args ...any) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", fmt.Sprintf(format, args...), err)
}
