// Package errors provides standardized error handling for tidewatch
// components. It classifies errors into transient, invalid, and fatal
// categories so stream units, the dispatcher, and the batch processor can
// share one propagation policy: transient errors drive reconnect/backoff,
// invalid errors drop the offending record, fatal errors stop only the
// component that raised them.
package errors

import (
	"context"
	"errors"
	"fmt"
)

// Class represents the classification of an error for handling purposes.
type Class int

const (
	// Transient errors are temporary and may be retried (connection drops,
	// timeouts, slow collaborators).
	Transient Class = iota
	// Invalid errors are caused by bad input and must not be retried.
	Invalid
	// Fatal errors are unrecoverable for the component that raised them.
	Fatal
)

// String returns the string representation of a Class.
func (c Class) String() string {
	switch c {
	case Transient:
		return "transient"
	case Invalid:
		return "invalid"
	case Fatal:
		return "fatal"
	default:
		return "unknown"
	}
}

// Standard error variables for common conditions.
var (
	// Component lifecycle errors
	ErrAlreadyStarted = errors.New("component already started")
	ErrNotStarted     = errors.New("component not started")
	ErrAlreadyStopped = errors.New("component already stopped")
	ErrShuttingDown   = errors.New("component is shutting down")

	// Connection and transport errors
	ErrNoConnection      = errors.New("no connection available")
	ErrConnectionLost    = errors.New("connection lost")
	ErrConnectionTimeout = errors.New("connection timeout")
	ErrStreamFailed      = errors.New("stream exhausted retry budget")
	ErrStreamNotFound    = errors.New("stream not found")

	// Record processing errors
	ErrValidationFailed = errors.New("record validation failed")
	ErrUnknownCategory  = errors.New("unknown record category")
	ErrStaleRecord      = errors.New("record timestamp too old")
	ErrDuplicateRecord  = errors.New("duplicate record")

	// External collaborator errors
	ErrPersistenceFailed = errors.New("persistence write failed")
	ErrAnalyticsFailed   = errors.New("analytics call failed")

	// Configuration errors
	ErrInvalidConfig = errors.New("invalid configuration")
	ErrMissingConfig = errors.New("missing required configuration")
)

// ClassifiedError wraps an error with its classification and the
// component/operation that produced it.
type ClassifiedError struct {
	Class     Class
	Err       error
	Message   string
	Component string
	Operation string
}

// Error implements the error interface.
func (ce *ClassifiedError) Error() string {
	if ce.Message != "" {
		return ce.Message
	}
	return ce.Err.Error()
}

// Unwrap returns the underlying error.
func (ce *ClassifiedError) Unwrap() error {
	return ce.Err
}

// IsTransient checks whether an error is transient and may be retried.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}

	var ce *ClassifiedError
	if errors.As(err, &ce) {
		return ce.Class == Transient
	}

	return errors.Is(err, ErrConnectionTimeout) ||
		errors.Is(err, ErrConnectionLost) ||
		errors.Is(err, ErrNoConnection) ||
		errors.Is(err, ErrPersistenceFailed) ||
		errors.Is(err, ErrAnalyticsFailed) ||
		errors.Is(err, context.DeadlineExceeded) ||
		errors.Is(err, context.Canceled)
}

// IsInvalid checks whether an error is due to invalid input.
func IsInvalid(err error) bool {
	if err == nil {
		return false
	}

	var ce *ClassifiedError
	if errors.As(err, &ce) {
		return ce.Class == Invalid
	}

	return errors.Is(err, ErrValidationFailed) ||
		errors.Is(err, ErrUnknownCategory) ||
		errors.Is(err, ErrStaleRecord)
}

// IsFatal checks whether an error is fatal for its component.
func IsFatal(err error) bool {
	if err == nil {
		return false
	}

	var ce *ClassifiedError
	if errors.As(err, &ce) {
		return ce.Class == Fatal
	}

	return errors.Is(err, ErrInvalidConfig) ||
		errors.Is(err, ErrMissingConfig) ||
		errors.Is(err, ErrStreamFailed)
}

// Classify returns the error class. Unknown errors default to transient so
// the owning unit gets a chance to retry.
func Classify(err error) Class {
	switch {
	case err == nil:
		return Transient
	case IsInvalid(err):
		return Invalid
	case IsFatal(err):
		return Fatal
	default:
		return Transient
	}
}

// Wrap creates a standardized error with context following the pattern
// "component.method: action failed: %w".
func Wrap(err error, component, method, action string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s.%s: %s failed: %w", component, method, action, err)
}

func newClassified(class Class, err error, component, method string) *ClassifiedError {
	return &ClassifiedError{
		Class:     class,
		Err:       err,
		Message:   err.Error(),
		Component: component,
		Operation: method,
	}
}

// WrapTransient wraps an error as transient with context.
func WrapTransient(err error, component, method, action string) error {
	if err == nil {
		return nil
	}
	return newClassified(Transient, Wrap(err, component, method, action), component, method)
}

// WrapInvalid wraps an error as invalid with context.
func WrapInvalid(err error, component, method, action string) error {
	if err == nil {
		return nil
	}
	return newClassified(Invalid, Wrap(err, component, method, action), component, method)
}

// WrapFatal wraps an error as fatal with context.
func WrapFatal(err error, component, method, action string) error {
	if err == nil {
		return nil
	}
	return newClassified(Fatal, Wrap(err, component, method, action), component, method)
}
