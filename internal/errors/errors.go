// Package errors provides the error taxonomy for the pubsub registry and the
// tooling built around it. It defines sentinel errors, typed errors carrying
// the key/ref context of a failure, and classification helpers.
//
// # Error Types
//
// Registry errors signal a contract violation by the caller:
//   - KeyNotFoundError: the key has no subscriptions
//   - RefNotFoundError: the ref is not registered under an existing key
//   - HandlerError: a handler returned an error during publish
//
// Tooling errors:
//   - ValidationError: a scenario script or configuration value is invalid
//
// # Usage
//
// Creating errors:
//
//	err := errors.NewKeyNotFoundError("user.created")
//	err := errors.NewRefNotFoundError("user.created", 7)
//	err := errors.NewHandlerError("user.created", 3, cause)
//
// Checking errors:
//
//	// Check for sentinel errors
//	if errors.Is(err, errors.ErrKeyNotFound) { ... }
//
//	// Check for error types
//	var refErr *errors.RefNotFoundError
//	if errors.As(err, &refErr) { ... }
//
//	// Use classification helpers
//	if errors.IsUserFacing(err) { ... }
//
// # Error Classification
//
// Errors can be classified by severity and behavior:
//   - UserFacing: errors safe to display to users (vs internal errors)
//   - Severity: Debug, Info, Warning, Error, Critical
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

// Registry sentinel errors
var (
	// ErrKeyNotFound indicates that a key has no subscriptions.
	ErrKeyNotFound = New("no event found for given key")
	// ErrRefNotFound indicates that a ref is not registered under a key.
	ErrRefNotFound = New("no event found for given ref")
	// ErrHandlerFailed indicates that a handler returned an error during publish.
	ErrHandlerFailed = New("handler failed")
)

// Tooling sentinel errors
var (
	// ErrInvalidScript indicates that a scenario script failed validation.
	ErrInvalidScript = New("invalid script")
	// ErrUnsupportedFormat indicates a script file with an unknown extension.
	ErrUnsupportedFormat = New("unsupported script format")
)

// -----------------------------------------------------------------------------
// Base Error Interface
// -----------------------------------------------------------------------------

// PubSubError is the base interface for all errors defined by this package.
type PubSubError interface {
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

// format renders "<kind> [ctx]: message[: cause]".
func (e *baseError) format(kind string, parts []string) string {
	prefix := kind
	if len(parts) > 0 {
		prefix = fmt.Sprintf("%s [%s]", kind, strings.Join(parts, ", "))
	}
	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", prefix, e.message, e.cause)
	}
	return fmt.Sprintf("%s: %s", prefix, e.message)
}

// -----------------------------------------------------------------------------
// Registry Errors
// -----------------------------------------------------------------------------

// KeyNotFoundError is returned by unsubscribe and publish when the key has
// no subscriptions.
//
// Example:
//
//	err := errors.NewKeyNotFoundError("user.created")
//	fmt.Println(err) // "key error [key=user.created]: no event found for given key"
type KeyNotFoundError struct {
	baseError
	Key string
}

// NewKeyNotFoundError creates a new KeyNotFoundError.
func NewKeyNotFoundError(key string) *KeyNotFoundError {
	return &KeyNotFoundError{
		baseError: baseError{
			message:    ErrKeyNotFound.Error(),
			severity:   SeverityWarning,
			userFacing: true,
		},
		Key: key,
	}
}

// Error returns the formatted error message.
func (e *KeyNotFoundError) Error() string {
	return e.format("key error", []string{fmt.Sprintf("key=%s", e.Key)})
}

// Is checks if this error matches the target.
func (e *KeyNotFoundError) Is(target error) bool {
	if _, ok := target.(*KeyNotFoundError); ok {
		return true
	}
	if target == ErrKeyNotFound {
		return true
	}
	return e.baseError.Is(target)
}

// RefNotFoundError is returned by unsubscribe when the key exists but the
// ref is not registered under it.
//
// Example:
//
//	err := errors.NewRefNotFoundError("user.created", 7)
//	fmt.Println(err) // "ref error [key=user.created, ref=7]: no event found for given ref"
type RefNotFoundError struct {
	baseError
	Key string
	Ref uint64
}

// NewRefNotFoundError creates a new RefNotFoundError.
func NewRefNotFoundError(key string, ref uint64) *RefNotFoundError {
	return &RefNotFoundError{
		baseError: baseError{
			message:    ErrRefNotFound.Error(),
			severity:   SeverityWarning,
			userFacing: true,
		},
		Key: key,
		Ref: ref,
	}
}

// Error returns the formatted error message.
func (e *RefNotFoundError) Error() string {
	return e.format("ref error", []string{
		fmt.Sprintf("key=%s", e.Key),
		fmt.Sprintf("ref=%d", e.Ref),
	})
}

// Is checks if this error matches the target.
func (e *RefNotFoundError) Is(target error) bool {
	if _, ok := target.(*RefNotFoundError); ok {
		return true
	}
	if target == ErrRefNotFound {
		return true
	}
	return e.baseError.Is(target)
}

// HandlerError wraps the error a handler returned during publish. Delivery
// to the remaining handlers of that publish call was not attempted.
//
// Example:
//
//	err := errors.NewHandlerError("user.created", 3, io.ErrClosedPipe)
//	errors.Is(err, io.ErrClosedPipe) // true
type HandlerError struct {
	baseError
	Key string
	Ref uint64
}

// NewHandlerError creates a new HandlerError.
func NewHandlerError(key string, ref uint64, cause error) *HandlerError {
	return &HandlerError{
		baseError: baseError{
			message:    ErrHandlerFailed.Error(),
			cause:      cause,
			severity:   SeverityError,
			userFacing: false,
		},
		Key: key,
		Ref: ref,
	}
}

// Error returns the formatted error message.
func (e *HandlerError) Error() string {
	return e.format("handler error", []string{
		fmt.Sprintf("key=%s", e.Key),
		fmt.Sprintf("ref=%d", e.Ref),
	})
}

// Is checks if this error matches the target.
func (e *HandlerError) Is(target error) bool {
	if _, ok := target.(*HandlerError); ok {
		return true
	}
	if target == ErrHandlerFailed {
		return true
	}
	return e.baseError.Is(target)
}

// -----------------------------------------------------------------------------
// Tooling Errors
// -----------------------------------------------------------------------------

// ValidationError represents invalid input, such as a malformed script step.
//
// Example:
//
//	err := errors.NewValidationError("unknown op").WithField("steps[2].op").WithValue("emit")
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
	return e.format("validation error", parts)
}

// Is checks if this error matches the target.
func (e *ValidationError) Is(target error) bool {
	if _, ok := target.(*ValidationError); ok {
		return true
	}
	if target == ErrInvalidScript {
		return true
	}
	return e.baseError.Is(target)
}

// -----------------------------------------------------------------------------
// Error Classification Helpers
// -----------------------------------------------------------------------------

// IsUserFacing returns true if the error message is safe to display to end users.
//
// Example:
//
//	if errors.IsUserFacing(err) {
//	    fmt.Fprintln(os.Stderr, err)
//	} else {
//	    logger.Error("internal error", "err", err)
//	}
func IsUserFacing(err error) bool {
	if err == nil {
		return false
	}

	var psErr PubSubError
	if As(err, &psErr) {
		return psErr.IsUserFacing()
	}
	return false
}

// GetSeverity returns the severity level of the error.
// Returns SeverityError for errors not defined by this package.
func GetSeverity(err error) Severity {
	if err == nil {
		return SeverityDebug
	}

	var psErr PubSubError
	if As(err, &psErr) {
		return psErr.Severity()
	}
	return SeverityError
}

// IsLookupError returns true if err is a KeyNotFoundError or RefNotFoundError.
func IsLookupError(err error) bool {
	return Is(err, ErrKeyNotFound) || Is(err, ErrRefNotFound)
}

// Code returns a short stable identifier for the error kind, used by the
// scenario runner to match expectations and by JSON output. A handler
// failure wins over whatever the handler itself returned.
func Code(err error) string {
	switch {
	case err == nil:
		return "none"
	case Is(err, ErrHandlerFailed):
		return "handler_failed"
	case Is(err, ErrKeyNotFound):
		return "key_not_found"
	case Is(err, ErrRefNotFound):
		return "ref_not_found"
	case Is(err, ErrInvalidScript):
		return "invalid_script"
	default:
		return "error"
	}
}

// -----------------------------------------------------------------------------
// Convenience Constructors
// -----------------------------------------------------------------------------

// Wrap wraps an error with additional context message.
//
// Example:
//
//	err := errors.Wrap(baseErr, "failed to load script")
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
