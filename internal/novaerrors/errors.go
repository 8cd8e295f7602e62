// Package novaerrors provides sentinel and custom error types for the application.
package novaerrors

// ErrNotFound represents a "not found" error.
// Use when a requested resource doesn't exist.
var ErrNotFound = &NotFoundError{}

// NotFoundError is a sentinel error for resources that are not found.
type NotFoundError struct {
	Resource string
	Message  string
}

// NewNotFoundError creates a new NotFoundError with a custom message.
func NewNotFoundError(resource, message string) *NotFoundError {
	return &NotFoundError{
		Resource: resource,
		Message:  message,
	}
}

// Error implements the error interface.
func (e *NotFoundError) Error() string {
	if e.Message != "" {
		return e.Message
	}

	if e.Resource != "" {
		return e.Resource + " not found"
	}

	return "resource not found"
}

// Is implements the error interface for error comparison.
func (e *NotFoundError) Is(target error) bool {
	_, ok := target.(*NotFoundError)

	return ok
}

// ErrValidation represents a validation error.
// Use when client input fails validation.
var ErrValidation = &ValidationError{}

// ValidationError is a sentinel error for validation failures.
type ValidationError struct {
	Field   string
	Message string
}

// NewValidationError creates a new ValidationError with a custom message.
func NewValidationError(field, message string) *ValidationError {
	return &ValidationError{
		Field:   field,
		Message: message,
	}
}

// Error implements the error interface.
func (e *ValidationError) Error() string {
	if e.Message != "" {
		return e.Message
	}

	if e.Field != "" {
		return "validation failed for field: " + e.Field
	}

	return "validation error"
}

// Is implements the error interface for error comparison.
func (e *ValidationError) Is(target error) bool {
	_, ok := target.(*ValidationError)

	return ok
}

// ErrConflict is the sentinel for conflict errors (e.g. a second run racing
// for a job's active-run marker, or an occupied ring slot).
var ErrConflict = &ConflictError{}

// ConflictError is a sentinel error for resource conflicts.
type ConflictError struct {
	Message string
}

// NewConflictError creates a ConflictError with a custom message.
func NewConflictError(message string) *ConflictError {
	return &ConflictError{Message: message}
}

// Error implements the error interface.
func (e *ConflictError) Error() string {
	if e.Message != "" {
		return e.Message
	}

	return "conflict"
}

// Is implements the error interface for error comparison.
func (e *ConflictError) Is(target error) bool {
	_, ok := target.(*ConflictError)

	return ok
}

// ErrTimeout is the sentinel for deadline errors.
// Use when a bounded phase (e.g. the solver budget) runs out of wall clock.
var ErrTimeout = &TimeoutError{}

// TimeoutError is a sentinel error for exceeded time budgets.
type TimeoutError struct {
	Message string
}

// NewTimeoutError creates a TimeoutError with a custom message.
func NewTimeoutError(message string) *TimeoutError {
	return &TimeoutError{Message: message}
}

// Error implements the error interface.
func (e *TimeoutError) Error() string {
	if e.Message != "" {
		return e.Message
	}

	return "timeout exceeded"
}

// Is implements the error interface for error comparison.
func (e *TimeoutError) Is(target error) bool {
	_, ok := target.(*TimeoutError)

	return ok
}

// ErrStorage is the sentinel for storage-layer failures (transport,
// connectivity, unexpected database errors). Callers may retry the whole
// operation; nothing partial was committed.
var ErrStorage = &StorageError{}

// StorageError is a sentinel error for storage failures. It wraps the
// underlying cause so callers can still inspect driver errors.
type StorageError struct {
	Message string
	Cause   error
}

// NewStorageError creates a StorageError wrapping the underlying cause.
func NewStorageError(message string, cause error) *StorageError {
	return &StorageError{Message: message, Cause: cause}
}

// Error implements the error interface.
func (e *StorageError) Error() string {
	msg := e.Message
	if msg == "" {
		msg = "storage error"
	}

	if e.Cause != nil {
		return msg + ": " + e.Cause.Error()
	}

	return msg
}

// Unwrap exposes the underlying cause for errors.Is/errors.As chains.
func (e *StorageError) Unwrap() error {
	return e.Cause
}

// Is implements the error interface for error comparison.
func (e *StorageError) Is(target error) bool {
	_, ok := target.(*StorageError)

	return ok
}

// ErrLimitExceeded is the sentinel for limit-exceeded errors (e.g. ingest rate caps).
// Use when an operation is rejected because a configured limit was reached.
var ErrLimitExceeded = &LimitExceededError{}

// LimitExceededError is a sentinel error for limit-exceeded conditions.
type LimitExceededError struct {
	Message string
}

// NewLimitExceededError creates a LimitExceededError with a custom message.
func NewLimitExceededError(message string) *LimitExceededError {
	return &LimitExceededError{Message: message}
}

// Error implements the error interface.
func (e *LimitExceededError) Error() string {
	if e.Message != "" {
		return e.Message
	}

	return "limit exceeded"
}

// Is implements the error interface for error comparison.
func (e *LimitExceededError) Is(target error) bool {
	_, ok := target.(*LimitExceededError)

	return ok
}
