package util

import (
	"errors"
	"fmt"
	"strings"
)

// Common error types for shardrun
var (
	// ErrInvalidConfig indicates a configuration error
	ErrInvalidConfig = errors.New("invalid configuration")

	// ErrDeviceUnresponsive indicates a worker's backing resource stopped responding
	ErrDeviceUnresponsive = errors.New("device unresponsive")

	// ErrWorkerNotFound indicates a worker identity is not configured
	ErrWorkerNotFound = errors.New("worker not found")

	// ErrInvalidTestList indicates a malformed test list
	ErrInvalidTestList = errors.New("invalid test list")

	// ErrTestsFailed indicates a run finished with failing cases
	ErrTestsFailed = errors.New("tests failed")

	// ErrTimeout indicates an operation timed out
	ErrTimeout = errors.New("operation timed out")

	// ErrCancelled indicates an operation was cancelled
	ErrCancelled = errors.New("operation cancelled")
)

// Severity classifies an error for the executor's recovery policy
type Severity int

const (
	// SeverityFatal errors fail the phase they occur in
	SeverityFatal Severity = iota

	// SeverityTransient errors are scoped to one worker: the worker is
	// dropped and its task handed back, the run continues
	SeverityTransient
)

// String returns the severity name
func (s Severity) String() string {
	switch s {
	case SeverityTransient:
		return "transient"
	default:
		return "fatal"
	}
}

// transient is implemented by errors that carry their own classification.
type transient interface {
	Transient() bool
}

// Classify reports whether err is transient (worker-scoped) or fatal.
// A nil error is reported as fatal; callers check for nil first.
func Classify(err error) Severity {
	if err == nil {
		return SeverityFatal
	}

	var t transient
	if errors.As(err, &t) && t.Transient() {
		return SeverityTransient
	}

	if errors.Is(err, ErrDeviceUnresponsive) {
		return SeverityTransient
	}

	return SeverityFatal
}

// IsTransient is shorthand for Classify(err) == SeverityTransient
func IsTransient(err error) bool {
	return err != nil && Classify(err) == SeverityTransient
}

// DeviceUnresponsiveError reports that the resource behind a worker
// (a device, a cluster, a process slot) is no longer reachable
type DeviceUnresponsiveError struct {
	Worker string
	Err    error
}

// Error implements the error interface
func (e *DeviceUnresponsiveError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("worker %q: device unresponsive", e.Worker)
	}
	return fmt.Sprintf("worker %q: device unresponsive: %v", e.Worker, e.Err)
}

// Unwrap returns the underlying cause
func (e *DeviceUnresponsiveError) Unwrap() error {
	return e.Err
}

// Is makes errors.Is(err, ErrDeviceUnresponsive) succeed
func (e *DeviceUnresponsiveError) Is(target error) bool {
	return target == ErrDeviceUnresponsive
}

// Transient marks the error as worker-scoped
func (e *DeviceUnresponsiveError) Transient() bool {
	return true
}

// NewDeviceUnresponsiveError wraps err as a transient device failure
func NewDeviceUnresponsiveError(worker string, err error) error {
	return &DeviceUnresponsiveError{Worker: worker, Err: err}
}

// WorkerError wraps an error with the worker identity and run phase
type WorkerError struct {
	Worker string
	Phase  string
	Err    error
}

// Error implements the error interface
func (e *WorkerError) Error() string {
	if e.Phase == "" {
		return fmt.Sprintf("worker %q: %v", e.Worker, e.Err)
	}
	return fmt.Sprintf("worker %q (%s): %v", e.Worker, e.Phase, e.Err)
}

// Unwrap returns the wrapped error for errors.Is/As compatibility
func (e *WorkerError) Unwrap() error {
	return e.Err
}

// WrapWorkerError wraps an error with worker context
func WrapWorkerError(worker, phase string, err error) error {
	if err == nil {
		return nil
	}
	return &WorkerError{
		Worker: worker,
		Phase:  phase,
		Err:    err,
	}
}

// MultiError aggregates multiple errors
type MultiError struct {
	Errors []error
}

// Error implements the error interface
func (m *MultiError) Error() string {
	if len(m.Errors) == 0 {
		return "no errors"
	}
	if len(m.Errors) == 1 {
		return m.Errors[0].Error()
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("%d errors occurred:", len(m.Errors)))
	for i, err := range m.Errors {
		if i < 10 { // Limit to first 10 errors in the message
			sb.WriteString(fmt.Sprintf("\n  %d. %v", i+1, err))
		} else if i == 10 {
			sb.WriteString(fmt.Sprintf("\n  ... and %d more errors", len(m.Errors)-10))
			break
		}
	}
	return sb.String()
}

// Unwrap returns the errors for errors.Is/As compatibility
func (m *MultiError) Unwrap() []error {
	return m.Errors
}

// Add adds an error to the multi-error
func (m *MultiError) Add(err error) {
	if err != nil {
		m.Errors = append(m.Errors, err)
	}
}

// ErrorOrNil returns nil if no errors were added, otherwise returns the MultiError
func (m *MultiError) ErrorOrNil() error {
	if len(m.Errors) == 0 {
		return nil
	}
	return m
}

// NewMultiError creates a new MultiError from a slice of errors
// It filters out nil errors
func NewMultiError(errors []error) *MultiError {
	m := &MultiError{
		Errors: make([]error, 0, len(errors)),
	}
	for _, err := range errors {
		if err != nil {
			m.Errors = append(m.Errors, err)
		}
	}
	return m
}

// CombineErrors combines multiple errors into a single error
// Returns nil if all errors are nil
func CombineErrors(errors ...error) error {
	m := NewMultiError(errors)
	return m.ErrorOrNil()
}

// ValidationError represents a validation failure
type ValidationError struct {
	Field   string
	Value   interface{}
	Message string
}

// Error implements the error interface
func (v *ValidationError) Error() string {
	if v.Value != nil {
		return fmt.Sprintf("validation failed for field %q (value: %v): %s", v.Field, v.Value, v.Message)
	}
	return fmt.Sprintf("validation failed for field %q: %s", v.Field, v.Message)
}

// Unwrap lets validation failures match ErrInvalidConfig
func (v *ValidationError) Unwrap() error {
	return ErrInvalidConfig
}

// NewValidationError creates a new validation error
func NewValidationError(field string, value interface{}, message string) *ValidationError {
	return &ValidationError{
		Field:   field,
		Value:   value,
		Message: message,
	}
}

// IsTimeout checks if an error is a timeout error
func IsTimeout(err error) bool {
	return errors.Is(err, ErrTimeout)
}

// IsCancelled checks if an error is a cancellation error
func IsCancelled(err error) bool {
	return errors.Is(err, ErrCancelled)
}

// FriendlyError converts technical errors to user-friendly messages
func FriendlyError(err error) string {
	if err == nil {
		return ""
	}

	switch {
	case IsTimeout(err):
		return "Operation timed out. Please try again or increase the timeout value with --timeout flag."
	case IsCancelled(err):
		return "Operation was cancelled."
	case errors.Is(err, ErrWorkerNotFound):
		return "Worker not found. Please check the --workers flag against your config file."
	case errors.Is(err, ErrDeviceUnresponsive):
		return "A worker stopped responding. Please check the device or cluster and rerun."
	case errors.Is(err, ErrInvalidConfig):
		return "Invalid configuration. Please check your config file and command-line flags."
	case errors.Is(err, ErrInvalidTestList):
		return "Invalid test list. Please check the file passed with --tests."
	case errors.Is(err, ErrTestsFailed):
		return "Some tests failed after all retries."
	default:
		return err.Error()
	}
}

// WrapErrorf wraps an error with a formatted message
func WrapErrorf(err error, format string, args ...interface{}) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf(format+": %w", append(args, err)...)
}
