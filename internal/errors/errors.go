package errors

import (
	"errors"
	"fmt"
)

// Error is the structured error type for tokindex.
// It provides rich context for error handling, logging, and user presentation.
type Error struct {
	// Code is the unique error code (e.g., "ERR_205_CORRUPT_CONTAINER").
	Code string

	// Message is the human-readable error message.
	Message string

	// Category is the error category (Config, IO, Validation, Internal).
	Category Category

	// Severity is the error severity level.
	Severity Severity

	// Details contains additional context as key-value pairs.
	Details map[string]string

	// Cause is the underlying error that caused this error.
	Cause error

	// Retryable indicates if the operation can be retried.
	Retryable bool

	// Suggestion is an actionable suggestion for the user.
	Suggestion string
}

// Error implements the error interface.
func (e *Error) Error() string {
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause for error chain support.
func (e *Error) Unwrap() error {
	return e.Cause
}

// Is reports whether target carries the same code.
func (e *Error) Is(target error) bool {
	if t, ok := target.(*Error); ok {
		return e.Code == t.Code
	}
	return false
}

// WithDetail adds a key-value detail to the error.
// Returns the error for method chaining.
func (e *Error) WithDetail(key, value string) *Error {
	if e.Details == nil {
		e.Details = make(map[string]string)
	}
	e.Details[key] = value
	return e
}

// WithSuggestion adds an actionable suggestion for the user.
func (e *Error) WithSuggestion(suggestion string) *Error {
	e.Suggestion = suggestion
	return e
}

// New creates a new Error with the given code and message.
// Category, severity, and retryable flag are derived from the code.
func New(code string, message string, cause error) *Error {
	return &Error{
		Code:      code,
		Message:   message,
		Category:  categoryFromCode(code),
		Severity:  severityFromCode(code),
		Cause:     cause,
		Retryable: isRetryableCode(code),
	}
}

// Wrap creates an Error from an existing error.
// The error's message becomes the Error message.
func Wrap(code string, err error) *Error {
	if err == nil {
		return nil
	}
	return New(code, err.Error(), err)
}

// ConfigError creates a configuration-related error.
func ConfigError(message string, cause error) *Error {
	return New(ErrCodeConfigInvalid, message, cause)
}

// IOError creates an I/O-related error.
func IOError(message string, cause error) *Error {
	return New(ErrCodeFileNotFound, message, cause)
}

// ValidationError creates a validation-related error.
func ValidationError(message string, cause error) *Error {
	return New(ErrCodeInvalidInput, message, cause)
}

// InternalError creates an internal error.
func InternalError(message string, cause error) *Error {
	return New(ErrCodeInternal, message, cause)
}

// CorruptContainer reports a container that failed structural validation.
func CorruptContainer(path, reason string, cause error) *Error {
	e := New(ErrCodeCorruptContainer, "index container is corrupt: "+reason, cause).
		WithSuggestion("Rebuild the index with 'tokindex index'")
	if path != "" {
		e.WithDetail("path", path)
	}
	return e
}

// UnsupportedVersion reports a container written with an unknown format version.
func UnsupportedVersion(found, expected uint16) *Error {
	return New(ErrCodeUnsupportedVersion,
		fmt.Sprintf("unsupported index format version %d (expected %d)", found, expected), nil).
		WithDetail("found", fmt.Sprint(found)).
		WithDetail("expected", fmt.Sprint(expected)).
		WithSuggestion("Rebuild the index with 'tokindex index'")
}

// UnreadableFile reports a file that could not be opened or mapped during a build.
func UnreadableFile(path string, cause error) *Error {
	return New(ErrCodeFileUnreadable, "cannot read "+path, cause).
		WithDetail("path", path).
		WithSuggestion("Re-run the build once the file is readable")
}

// IndexNotFound reports a missing index container.
func IndexNotFound(path string, cause error) *Error {
	return New(ErrCodeIndexNotFound, "no index found at "+path, cause).
		WithDetail("path", path).
		WithSuggestion("Build one with 'tokindex index'")
}

// IndexLocked reports that another process holds the build lock.
func IndexLocked(lockPath string) *Error {
	return New(ErrCodeIndexLocked, "another build is in progress", nil).
		WithDetail("lock", lockPath).
		WithSuggestion("Wait for the running build to finish")
}

// IsRetryable checks if an error is retryable.
func IsRetryable(err error) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Retryable
	}
	return false
}

// IsFatal checks if an error has fatal severity.
// Fatal errors should abort the current operation.
func IsFatal(err error) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Severity == SeverityFatal
	}
	return false
}

// GetCode extracts the error code from an Error.
// Returns empty string if err carries no Error.
func GetCode(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ""
}

// GetCategory extracts the category from an Error.
func GetCategory(err error) Category {
	var e *Error
	if errors.As(err, &e) {
		return e.Category
	}
	return ""
}
