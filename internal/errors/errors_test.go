package errors

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestError_Unwrap_PreservesOriginalError(t *testing.T) {
	// Given: an original error
	originalErr := errors.New("original error")

	// When: wrapping with Error
	err := New(ErrCodeFileUnreadable, "cannot read a.txt", originalErr)

	// Then: unwrapping returns original error
	require.NotNil(t, err)
	assert.Equal(t, originalErr, errors.Unwrap(err))
	assert.True(t, errors.Is(err, originalErr))
}

func TestError_Error_ReturnsFormattedMessage(t *testing.T) {
	tests := []struct {
		name     string
		code     string
		message  string
		expected string
	}{
		{
			name:     "config error",
			code:     ErrCodeConfigNotFound,
			message:  "config file not found",
			expected: "[ERR_102_CONFIG_NOT_FOUND] config file not found",
		},
		{
			name:     "container error",
			code:     ErrCodeCorruptContainer,
			message:  "bad magic",
			expected: "[ERR_205_CORRUPT_CONTAINER] bad magic",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := New(tt.code, tt.message, nil)
			assert.Equal(t, tt.expected, err.Error())
		})
	}
}

func TestError_Is_MatchesSentinelByCode(t *testing.T) {
	// Given: a corrupt container error wrapped by fmt
	err := fmt.Errorf("load: %w", CorruptContainer("/tmp/x.tkix", "bad magic", nil))

	// Then: sentinel matching works through the chain
	assert.True(t, errors.Is(err, ErrCorruptContainer))
	assert.False(t, errors.Is(err, ErrUnsupportedVersion))
}

func TestUnsupportedVersion_CarriesFoundAndExpected(t *testing.T) {
	err := UnsupportedVersion(9, 1)

	assert.True(t, errors.Is(err, ErrUnsupportedVersion))
	assert.Equal(t, "9", err.Details["found"])
	assert.Equal(t, "1", err.Details["expected"])
	assert.Contains(t, err.Message, "version 9")
	assert.NotEmpty(t, err.Suggestion)
}

func TestError_CategoryFromCode(t *testing.T) {
	tests := []struct {
		code         string
		wantCategory Category
	}{
		{ErrCodeConfigNotFound, CategoryConfig},
		{ErrCodeConfigInvalid, CategoryConfig},
		{ErrCodeFileUnreadable, CategoryIO},
		{ErrCodeCorruptContainer, CategoryIO},
		{ErrCodeIndexLocked, CategoryIO},
		{ErrCodeInvalidGlob, CategoryValidation},
		{ErrCodeInternal, CategoryInternal},
		{"X", CategoryInternal},
	}

	for _, tt := range tests {
		t.Run(tt.code, func(t *testing.T) {
			err := New(tt.code, "test message", nil)
			assert.Equal(t, tt.wantCategory, err.Category)
		})
	}
}

func TestError_SeverityAndRetryableFromCode(t *testing.T) {
	tests := []struct {
		code          string
		wantSeverity  Severity
		wantRetryable bool
	}{
		{ErrCodeCorruptContainer, SeverityFatal, false},
		{ErrCodeUnsupportedVersion, SeverityFatal, false},
		{ErrCodeFileUnreadable, SeverityWarning, false},
		{ErrCodeIndexLocked, SeverityWarning, true},
		{ErrCodeIndexNotFound, SeverityError, false},
	}

	for _, tt := range tests {
		t.Run(tt.code, func(t *testing.T) {
			err := New(tt.code, "test message", nil)
			assert.Equal(t, tt.wantSeverity, err.Severity)
			assert.Equal(t, tt.wantRetryable, err.Retryable)
		})
	}
}

func TestIsFatal_And_GetCode_SeeThroughWrapping(t *testing.T) {
	wrapped := fmt.Errorf("open index: %w", UnsupportedVersion(2, 1))

	assert.True(t, IsFatal(wrapped))
	assert.Equal(t, ErrCodeUnsupportedVersion, GetCode(wrapped))
	assert.Equal(t, CategoryIO, GetCategory(wrapped))

	assert.False(t, IsFatal(errors.New("plain")))
	assert.Empty(t, GetCode(errors.New("plain")))
	assert.False(t, IsRetryable(nil))
}

func TestWrap_NilReturnsNil(t *testing.T) {
	assert.Nil(t, Wrap(ErrCodeInternal, nil))
}

func TestIndexLocked_IsRetryable(t *testing.T) {
	err := IndexLocked("/repo/.tokindex/index.lock")

	assert.True(t, errors.Is(err, ErrIndexLocked))
	assert.True(t, IsRetryable(err))
	assert.Equal(t, "/repo/.tokindex/index.lock", err.Details["lock"])
}

func TestIndexNotFound_HasSuggestion(t *testing.T) {
	err := IndexNotFound("/repo/.tokindex/index.tkix", nil)

	assert.True(t, errors.Is(err, ErrIndexNotFound))
	assert.Contains(t, err.Suggestion, "tokindex index")
	assert.False(t, IsRetryable(err))
}
