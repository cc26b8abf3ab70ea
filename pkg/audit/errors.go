package audit

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound matches any NotFoundError.
	ErrNotFound = errors.New("audit event not found")

	// ErrNotSupported is returned by providers that do not implement an
	// optional operation (typically GetEvent on write-only sinks).
	ErrNotSupported = errors.New("operation not supported by data provider")

	// ErrScopeEnded is returned when Save is called on a scope that already
	// reached its terminal state.
	ErrScopeEnded = errors.New("audit scope already ended")
)

// ConfigurationError reports that no usable configuration could be resolved,
// most commonly because no data provider is set.
type ConfigurationError struct {
	Message string
	Cause   error
}

// Error implements the error interface.
func (e *ConfigurationError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("audit configuration error: %s: %v", e.Message, e.Cause)
	}
	return fmt.Sprintf("audit configuration error: %s", e.Message)
}

// Unwrap returns the underlying cause error.
func (e *ConfigurationError) Unwrap() error {
	return e.Cause
}

// StorageError represents a failure reported by a data provider.
type StorageError struct {
	Provider  string // Provider name ("sqlite", "postgres", etc.)
	Operation string // Operation that failed ("insert", "replace", "get", "clone")
	EventID   any    // Event identifier, when known
	Cause     error  // Underlying error
}

// Error implements the error interface.
func (e *StorageError) Error() string {
	if e.EventID != nil {
		return fmt.Sprintf("storage error [provider=%s, operation=%s, event_id=%v]: %v", e.Provider, e.Operation, e.EventID, e.Cause)
	}
	return fmt.Sprintf("storage error [provider=%s, operation=%s]: %v", e.Provider, e.Operation, e.Cause)
}

// Unwrap returns the underlying cause error.
func (e *StorageError) Unwrap() error {
	return e.Cause
}

// NewStorageError creates a new StorageError.
func NewStorageError(provider, operation string, cause error) *StorageError {
	return &StorageError{
		Provider:  provider,
		Operation: operation,
		Cause:     cause,
	}
}

// ExtensionActionError reports that a registered action failed. The pending
// storage call for that lifecycle point was not attempted.
type ExtensionActionError struct {
	Action ActionType // Lifecycle point
	Index  int        // Position of the failing action in registration order
	Cause  error      // Error returned by the action
}

// Error implements the error interface.
func (e *ExtensionActionError) Error() string {
	return fmt.Sprintf("extension action error [action=%s, index=%d]: %v", e.Action, e.Index, e.Cause)
}

// Unwrap returns the underlying cause error.
func (e *ExtensionActionError) Unwrap() error {
	return e.Cause
}

// NotFoundError reports a lookup of an unknown event identifier.
type NotFoundError struct {
	Provider string
	EventID  any
}

// Error implements the error interface.
func (e *NotFoundError) Error() string {
	return fmt.Sprintf("audit event not found [provider=%s, event_id=%v]", e.Provider, e.EventID)
}

// Is makes errors.Is(err, ErrNotFound) match.
func (e *NotFoundError) Is(target error) bool {
	return target == ErrNotFound
}

// NewNotFoundError creates a new NotFoundError.
func NewNotFoundError(provider string, eventID any) *NotFoundError {
	return &NotFoundError{
		Provider: provider,
		EventID:  eventID,
	}
}

// wrapStorage converts a provider error into a StorageError unless the
// provider already returned one.
func wrapStorage(provider, operation string, eventID any, err error) error {
	if err == nil {
		return nil
	}
	var se *StorageError
	if errors.As(err, &se) {
		return err
	}
	return &StorageError{
		Provider:  provider,
		Operation: operation,
		EventID:   eventID,
		Cause:     err,
	}
}
