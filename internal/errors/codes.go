// Package errors provides structured error handling for tokindex.
//
// Error codes follow the pattern ERR_XXX_DESCRIPTION where:
//   - 1XX: Configuration errors
//   - 2XX: IO errors (files, index container, build lock)
//   - 4XX: Validation errors (query options, globs)
//   - 5XX: Internal errors
package errors

// Category defines error categories for classification.
type Category string

const (
	// CategoryConfig indicates configuration-related errors.
	CategoryConfig Category = "CONFIG"
	// CategoryIO indicates file, container and lock errors.
	CategoryIO Category = "IO"
	// CategoryValidation indicates input validation errors.
	CategoryValidation Category = "VALIDATION"
	// CategoryInternal indicates unexpected internal errors.
	CategoryInternal Category = "INTERNAL"
)

// Severity defines error severity levels.
type Severity string

const (
	// SeverityFatal indicates unrecoverable error, must abort.
	SeverityFatal Severity = "FATAL"
	// SeverityError indicates operation failed but can continue.
	SeverityError Severity = "ERROR"
	// SeverityWarning indicates degraded operation, continuing.
	SeverityWarning Severity = "WARNING"
)

// Error codes organized by category.
const (
	// Config errors (100-199)
	ErrCodeConfigInvalid  = "ERR_101_CONFIG_INVALID"
	ErrCodeConfigNotFound = "ERR_102_CONFIG_NOT_FOUND"
	ErrCodeConfigParse    = "ERR_103_CONFIG_PARSE"

	// IO errors (200-299)
	ErrCodeFileUnreadable     = "ERR_201_FILE_UNREADABLE"
	ErrCodeFileNotFound       = "ERR_202_FILE_NOT_FOUND"
	ErrCodePermissionDenied   = "ERR_203_PERMISSION_DENIED"
	ErrCodeCorruptContainer   = "ERR_205_CORRUPT_CONTAINER"
	ErrCodeUnsupportedVersion = "ERR_206_UNSUPPORTED_VERSION"
	ErrCodeIndexNotFound      = "ERR_207_INDEX_NOT_FOUND"
	ErrCodeIndexLocked        = "ERR_208_INDEX_LOCKED"

	// Validation errors (400-499)
	ErrCodeInvalidInput = "ERR_401_INVALID_INPUT"
	ErrCodeInvalidGlob  = "ERR_402_INVALID_GLOB"
	ErrCodeInvalidMode  = "ERR_403_INVALID_MODE"

	// Internal errors (500-599)
	ErrCodeInternal = "ERR_501_INTERNAL"
)

// Sentinels for errors.Is checks. Matching is by code, so any error carrying
// the same code matches regardless of message or details.
var (
	ErrUnreadableFile     = &Error{Code: ErrCodeFileUnreadable}
	ErrCorruptContainer   = &Error{Code: ErrCodeCorruptContainer}
	ErrUnsupportedVersion = &Error{Code: ErrCodeUnsupportedVersion}
	ErrIndexNotFound      = &Error{Code: ErrCodeIndexNotFound}
	ErrIndexLocked        = &Error{Code: ErrCodeIndexLocked}
)

// categoryFromCode extracts category from error code.
func categoryFromCode(code string) Category {
	if len(code) < 7 {
		return CategoryInternal
	}

	switch code[4] {
	case '1':
		return CategoryConfig
	case '2':
		return CategoryIO
	case '4':
		return CategoryValidation
	default:
		return CategoryInternal
	}
}

// severityFromCode determines severity based on error code.
func severityFromCode(code string) Severity {
	switch code {
	case ErrCodeCorruptContainer, ErrCodeUnsupportedVersion:
		return SeverityFatal
	case ErrCodeFileUnreadable:
		return SeverityWarning
	}

	if isRetryableCode(code) {
		return SeverityWarning
	}

	return SeverityError
}

// isRetryableCode checks if an error code represents a retryable error.
func isRetryableCode(code string) bool {
	return code == ErrCodeIndexLocked
}
