// Package qaerrors provides structured error handling for QAForge with rich
// context, stack traces, and error categorization. It enables consistent
// error handling patterns across the entire codebase.
//
// # Basic Usage
//
//	// Create a new error
//	err := qaerrors.New(qaerrors.ErrorTypeExhausted, "no capacity for agent type")
//
//	// Add context
//	err = err.WithDetail("agent_type", "test-generator").
//	         WithDetail("max_size", 8)
//
//	// Wrap existing errors
//	if err := factory.Initialize(ctx, agent); err != nil {
//	    return qaerrors.Wrap(err, qaerrors.ErrorTypeInitialization, "agent initialization failed").
//	        WithDetail("pool_id", entry.PoolID)
//	}
//
// # Error Types
//
// Errors are categorized by type, which drives the pool's propagation policy:
// only acquire-path failures (exhausted, acquire_timeout, shutting_down, and
// unrecoverable initialization errors) surface to callers; reset and dispose
// failures are absorbed into diagnostic events.
//
// # Thread Safety
//
// Error instances are not thread-safe for modification. Call WithDetail
// before sharing across goroutines.
package qaerrors

import (
	"errors"
	"fmt"
	"runtime"
)

// ErrorType represents the category of error, used for propagation decisions,
// monitoring, and retry strategies.
type ErrorType string

const (
	// ErrorTypeInternal represents internal system errors
	ErrorTypeInternal ErrorType = "internal"
	// ErrorTypeValidation represents validation errors
	ErrorTypeValidation ErrorType = "validation"
	// ErrorTypeConfig represents configuration errors
	ErrorTypeConfig ErrorType = "config"
	// ErrorTypeNotFound represents resource not found errors
	ErrorTypeNotFound ErrorType = "not_found"
	// ErrorTypeExhausted represents pool capacity exhaustion
	ErrorTypeExhausted ErrorType = "exhausted"
	// ErrorTypeAcquireTimeout represents a queued acquire whose timer fired
	ErrorTypeAcquireTimeout ErrorType = "acquire_timeout"
	// ErrorTypeShuttingDown represents requests rejected during shutdown
	ErrorTypeShuttingDown ErrorType = "shutting_down"
	// ErrorTypeInitialization represents agent initialization failures
	ErrorTypeInitialization ErrorType = "initialization"
	// ErrorTypeReset represents agent reset failures
	ErrorTypeReset ErrorType = "reset"
	// ErrorTypeDispose represents agent disposal failures
	ErrorTypeDispose ErrorType = "dispose"
	// ErrorTypeHealth represents health check failures
	ErrorTypeHealth ErrorType = "health"
)

// Error represents a structured error with context, providing rich debugging
// information and enabling the pool's propagation policy.
type Error struct {
	Type    ErrorType
	Message string
	Cause   error
	Details map[string]interface{}
	Stack   []StackFrame
}

// StackFrame represents a single frame in the call stack, capturing
// the function name, file path, and line number for debugging.
type StackFrame struct {
	Function string // Fully qualified function name
	File     string // Source file path
	Line     int    // Line number in source file
}

// Error implements the error interface, returning a formatted error message
// that includes the error type, message, and cause (if present).
func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Type, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Type, e.Message)
}

// Unwrap returns the underlying error, enabling compatibility with errors.Is
// and errors.As for error chain inspection.
func (e *Error) Unwrap() error {
	return e.Cause
}

// WithDetail adds a key-value detail to the error, providing additional
// context for debugging and monitoring. This method can be chained.
func (e *Error) WithDetail(key string, value interface{}) *Error {
	if e.Details == nil {
		e.Details = make(map[string]interface{})
	}
	e.Details[key] = value
	return e
}

// New creates a new error with the given type and message, automatically
// capturing the call stack at the point of creation.
func New(errType ErrorType, message string) *Error {
	return &Error{
		Type:    errType,
		Message: message,
		Stack:   captureStack(2),
	}
}

// Newf creates a new error with a formatted message.
func Newf(errType ErrorType, format string, args ...interface{}) *Error {
	return &Error{
		Type:    errType,
		Message: fmt.Sprintf(format, args...),
		Stack:   captureStack(2),
	}
}

// Wrap wraps an existing error with additional context, preserving the
// original error as the cause. If the error is already a structured Error,
// its stack trace is preserved. Returns nil if the input error is nil.
func Wrap(err error, errType ErrorType, message string) *Error {
	if err == nil {
		return nil
	}

	// If already our error type, preserve the stack
	var existingErr *Error
	if errors.As(err, &existingErr) {
		return &Error{
			Type:    errType,
			Message: message,
			Cause:   err,
			Stack:   existingErr.Stack,
		}
	}

	return &Error{
		Type:    errType,
		Message: message,
		Cause:   err,
		Stack:   captureStack(2),
	}
}

// IsType checks if the error is of the given type, useful for conditional
// logic based on error categories.
//
// Example:
//
//	if qaerrors.IsType(err, qaerrors.ErrorTypeExhausted) {
//	    // Back off and retry later
//	}
func IsType(err error, errType ErrorType) bool {
	var e *Error
	if !errors.As(err, &e) {
		return false
	}
	return e.Type == errType
}

// IsRetryable returns true if the error is retryable based on its type.
// Exhaustion and acquire timeouts are transient; a later attempt may succeed
// once leases are released. Shutdown, validation, and lifecycle failures are
// not retryable.
func IsRetryable(err error) bool {
	var e *Error
	if !errors.As(err, &e) {
		return false
	}

	switch e.Type {
	case ErrorTypeExhausted, ErrorTypeAcquireTimeout, ErrorTypeHealth:
		return true
	default:
		return false
	}
}

// captureStack captures the current call stack up to maxFrames deep,
// skipping the specified number of frames from the top.
func captureStack(skip int) []StackFrame {
	const maxFrames = 32
	frames := make([]StackFrame, 0, maxFrames)

	for i := skip; i < maxFrames+skip; i++ {
		pc, file, line, ok := runtime.Caller(i)
		if !ok {
			break
		}

		fn := runtime.FuncForPC(pc)
		if fn == nil {
			continue
		}

		frames = append(frames, StackFrame{
			Function: fn.Name(),
			File:     file,
			Line:     line,
		})
	}

	return frames
}
