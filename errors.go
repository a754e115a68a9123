// Package jobtree provides typed errors distinguishing cancellation from
// failure, with cause chain support.
package jobtree

import (
	"fmt"
)

// CancelledError is the "normal" termination signal of a [Job]. It is never
// reported as an unhandled failure: a parent accepts a child's cancellation
// silently, and a cancellation reaching the top of the tree is dropped
// rather than handed to the job exception handler.
//
// A CancelledError may originate from [Job.Cancel] with a nil cause (the
// default cancellation), or may wrap an underlying failure when cancellation
// was induced by an error elsewhere in the tree.
type CancelledError struct {
	// Cause is the underlying error that induced the cancellation, if any.
	Cause error
	// Message describes why the job was cancelled.
	Message string

	job *Job
}

// Error implements the error interface.
func (e *CancelledError) Error() string {
	msg := e.Message
	if msg == "" {
		msg = "job was cancelled"
	}
	if e.job != nil {
		return fmt.Sprintf("%s: %s", msg, e.job)
	}
	return msg
}

// Is implements errors.Is support for CancelledError.
// Any two CancelledError values match, regardless of contents.
func (e *CancelledError) Is(target error) bool {
	_, ok := target.(*CancelledError)
	return ok
}

// Unwrap returns the underlying cause for use with [errors.Is] and
// [errors.As]. Returns nil for a plain cancellation.
func (e *CancelledError) Unwrap() error {
	return e.Cause
}

// Job returns the job the cancellation originated from, if known.
func (e *CancelledError) Job() *Job {
	return e.job
}

// TimeoutError is a typed cancellation signalling that an operation ran out
// of time. It is treated exactly like [CancelledError] by the propagation
// rules; the distinct type exists so a deadline can carry useful identity
// (which timeout fired, and where).
//
// Timeout enforcement itself is out of scope for this package; external
// facilities cancel a job with a TimeoutError to make the deadline the
// recorded root cause.
type TimeoutError struct {
	Cause   error
	Message string
}

// Error implements the error interface.
func (e *TimeoutError) Error() string {
	if e.Message == "" {
		return "operation timed out"
	}
	return e.Message
}

// Is implements errors.Is support for TimeoutError.
func (e *TimeoutError) Is(target error) bool {
	_, ok := target.(*TimeoutError)
	return ok
}

// Unwrap returns the underlying cause for use with [errors.Is] and [errors.As].
func (e *TimeoutError) Unwrap() error {
	return e.Cause
}

// isCancellation reports whether err is a cancellation signal, as opposed to
// a failure. The check is on the concrete type of err itself, NOT the cause
// chain: a failure that merely wraps a cancellation is still a failure.
func isCancellation(err error) bool {
	switch err.(type) {
	case *CancelledError, *TimeoutError:
		return true
	}
	return false
}

// CompletionHandlerError wraps a panic raised by a completion or
// cancellation handler. It is never recorded as the job's own completion
// cause; it is routed to the handler-panic hook (default: re-panic on the
// notifying goroutine) so that a broken listener cannot masquerade as a
// failed job.
type CompletionHandlerError struct {
	// Cause is the first panic observed during a notification pass.
	Cause error
	// Suppressed holds panics from subsequent handlers in the same pass;
	// notification continues past a panicking handler.
	Suppressed []error
	Message    string
}

// Error implements the error interface.
func (e *CompletionHandlerError) Error() string {
	msg := e.Message
	if msg == "" {
		msg = "exception in completion handler"
	}
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", msg, e.Cause)
	}
	return msg
}

// Is implements errors.Is support for CompletionHandlerError.
func (e *CompletionHandlerError) Is(target error) bool {
	_, ok := target.(*CompletionHandlerError)
	return ok
}

// Unwrap returns the cause followed by any suppressed errors, for
// multi-error unwrapping (Go 1.20+). This enables [errors.Is] and
// [errors.As] to check against every panic observed in the pass.
func (e *CompletionHandlerError) Unwrap() []error {
	errs := make([]error, 0, 1+len(e.Suppressed))
	if e.Cause != nil {
		errs = append(errs, e.Cause)
	}
	return append(errs, e.Suppressed...)
}

// PanicError wraps a recovered panic value that was not itself an error.
type PanicError struct {
	// Value is the recovered panic value.
	Value any
}

// Error implements the error interface.
func (e *PanicError) Error() string {
	return fmt.Sprintf("panic: %v", e.Value)
}

// Unwrap returns the underlying error if the panic value is an error type.
// If the panic Value is not an error (e.g., a string), returns nil.
func (e *PanicError) Unwrap() error {
	if err, ok := e.Value.(error); ok {
		return err
	}
	return nil
}

// asError normalizes a recovered panic value to an error.
func asError(v any) error {
	if err, ok := v.(error); ok {
		return err
	}
	return &PanicError{Value: v}
}
