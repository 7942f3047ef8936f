// Package errors provides centralized error definitions and error handling
// utilities for the tick scheduler. It defines sentinel errors, the typed
// errors produced when work items fail, and classification helpers.
//
// # Error Types
//
//   - ExecutionError: a work item's closure returned an error or panicked
//   - PanicError: a recovered panic, carrying the panic value and stack
//   - ConfigError: a configuration value was rejected or corrected
//
// # Usage
//
//	err := errors.NewExecutionError("entity-42", errors.ModeParallel, cause).
//	    WithKind("mob/zombie").
//	    WithAttempt(1)
//
//	if errors.Is(err, errors.ErrItemPanicked) { ... }
//
//	var execErr *errors.ExecutionError
//	if errors.As(err, &execErr) && execErr.Mode == errors.ModeParallel { ... }
//
// # Classification
//
// Item failures under parallel execution are recoverable: the scheduler
// re-runs the item serially and demotes it. Use IsRecoverable and
// GetSeverity to decide how loudly to report an error.
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

// -----------------------------------------------------------------------------
// Sentinel Errors
// -----------------------------------------------------------------------------

var (
	// ErrSchedulerClosed indicates an operation on a scheduler that has been closed.
	ErrSchedulerClosed = New("scheduler closed")
	// ErrNilWork indicates a work item without a closure to run.
	ErrNilWork = New("work item has no closure")
	// ErrItemPanicked indicates that a work item's closure panicked.
	ErrItemPanicked = New("work item panicked")
	// ErrInvalidConfig indicates that a configuration value is not usable.
	ErrInvalidConfig = New("invalid configuration")
	// ErrUnknownRequester indicates a budget lookup for a requester with nothing deferred.
	ErrUnknownRequester = New("unknown requester")
)

// -----------------------------------------------------------------------------
// Execution Errors
// -----------------------------------------------------------------------------

// Mode records how a work item was being executed when it failed.
type Mode string

const (
	// ModeSerial means the item ran inline on the tick goroutine.
	ModeSerial Mode = "serial"
	// ModeParallel means the item ran on a pool worker.
	ModeParallel Mode = "parallel"
	// ModeCallerRuns means the pool was saturated and the submitter ran the item.
	ModeCallerRuns Mode = "caller_runs"
)

// ExecutionError is returned when a work item's closure fails.
//
// Example:
//
//	err := errors.NewExecutionError("entity-7", errors.ModeParallel, cause)
//	fmt.Println(err) // "execution error [item=entity-7, mode=parallel]: <cause>"
type ExecutionError struct {
	ItemID   string
	Kind     string
	Mode     Mode
	Attempt  int
	cause    error
	severity Severity
}

// NewExecutionError creates an ExecutionError for the given item.
func NewExecutionError(itemID string, mode Mode, cause error) *ExecutionError {
	sev := SeverityWarning
	if mode == ModeSerial {
		sev = SeverityError
	}
	return &ExecutionError{
		ItemID:   itemID,
		Mode:     mode,
		Attempt:  1,
		cause:    cause,
		severity: sev,
	}
}

// WithKind records the item's kind.
func (e *ExecutionError) WithKind(kind string) *ExecutionError {
	e.Kind = kind
	return e
}

// WithAttempt records which attempt failed (1 for the first run).
func (e *ExecutionError) WithAttempt(n int) *ExecutionError {
	e.Attempt = n
	return e
}

// WithSeverity overrides the error severity.
func (e *ExecutionError) WithSeverity(s Severity) *ExecutionError {
	e.severity = s
	return e
}

// Error returns the formatted error message.
func (e *ExecutionError) Error() string {
	parts := []string{fmt.Sprintf("item=%s", e.ItemID)}
	if e.Kind != "" {
		parts = append(parts, fmt.Sprintf("kind=%s", e.Kind))
	}
	parts = append(parts, fmt.Sprintf("mode=%s", e.Mode))
	if e.Attempt > 1 {
		parts = append(parts, fmt.Sprintf("attempt=%d", e.Attempt))
	}
	prefix := fmt.Sprintf("execution error [%s]", strings.Join(parts, ", "))
	if e.cause != nil {
		return fmt.Sprintf("%s: %v", prefix, e.cause)
	}
	return prefix
}

// Unwrap returns the underlying error.
func (e *ExecutionError) Unwrap() error {
	return e.cause
}

// Is reports whether target is an ExecutionError or matches the cause.
func (e *ExecutionError) Is(target error) bool {
	if _, ok := target.(*ExecutionError); ok {
		return true
	}
	return e.cause != nil && errors.Is(e.cause, target)
}

// Severity returns the error severity.
func (e *ExecutionError) Severity() Severity {
	return e.severity
}

// Recoverable reports whether the scheduler can recover by re-running the
// item serially. Only failures off the tick goroutine qualify.
func (e *ExecutionError) Recoverable() bool {
	return e.Mode == ModeParallel || e.Mode == ModeCallerRuns
}

// -----------------------------------------------------------------------------
// Panic Errors
// -----------------------------------------------------------------------------

// PanicError wraps a value recovered from a panicking work item.
type PanicError struct {
	Value any
	Stack string
}

// NewPanicError creates a PanicError.
func NewPanicError(value any, stack string) *PanicError {
	return &PanicError{Value: value, Stack: stack}
}

// Error returns the panic value formatted as an error message.
func (e *PanicError) Error() string {
	return fmt.Sprintf("panic: %v", e.Value)
}

// Unwrap returns the panic value when it was itself an error.
func (e *PanicError) Unwrap() error {
	if err, ok := e.Value.(error); ok {
		return err
	}
	return nil
}

// Is matches ErrItemPanicked.
func (e *PanicError) Is(target error) bool {
	return target == ErrItemPanicked
}

// -----------------------------------------------------------------------------
// Config Errors
// -----------------------------------------------------------------------------

// ConfigError describes a configuration value that was rejected or clamped.
type ConfigError struct {
	Field     string
	Value     any
	Corrected any
	Message   string
}

// NewConfigError creates a ConfigError for field.
func NewConfigError(field string, value any, message string) *ConfigError {
	return &ConfigError{Field: field, Value: value, Message: message}
}

// WithCorrected records the value that was used instead.
func (e *ConfigError) WithCorrected(v any) *ConfigError {
	e.Corrected = v
	return e
}

// Error returns the formatted error message.
func (e *ConfigError) Error() string {
	if e.Corrected != nil {
		return fmt.Sprintf("config %s: %s (got: %v, using: %v)", e.Field, e.Message, e.Value, e.Corrected)
	}
	return fmt.Sprintf("config %s: %s (got: %v)", e.Field, e.Message, e.Value)
}

// Is matches ErrInvalidConfig.
func (e *ConfigError) Is(target error) bool {
	return target == ErrInvalidConfig
}

// Severity returns SeverityWarning for corrected values and SeverityError otherwise.
func (e *ConfigError) Severity() Severity {
	if e.Corrected != nil {
		return SeverityWarning
	}
	return SeverityError
}

// -----------------------------------------------------------------------------
// Classification Helpers
// -----------------------------------------------------------------------------

// IsRecoverable returns true if err is an ExecutionError that the scheduler
// recovers from by serial re-execution.
func IsRecoverable(err error) bool {
	if err == nil {
		return false
	}
	var execErr *ExecutionError
	if As(err, &execErr) {
		return execErr.Recoverable()
	}
	return false
}

// GetSeverity returns the severity level of the error.
// Returns SeverityError for errors that don't carry a severity.
//
// Example:
//
//	switch errors.GetSeverity(err) {
//	case errors.SeverityCritical:
//	    logger.Error("critical failure", "error", err)
//	case errors.SeverityWarning:
//	    logger.Warn("degraded", "error", err)
//	}
func GetSeverity(err error) Severity {
	if err == nil {
		return SeverityDebug
	}
	var sev interface{ Severity() Severity }
	if As(err, &sev) {
		return sev.Severity()
	}
	return SeverityError
}

// Wrap wraps an error with additional context message.
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
