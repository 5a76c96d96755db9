package contextutils

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAppError_Error(t *testing.T) {
	tests := []struct {
		name     string
		appError *AppError
		expected string
	}{
		{
			name: "error with details",
			appError: &AppError{
				Code:     ErrorCodeInvalidTaxonomyPair,
				Severity: SeverityInfo,
				Message:  "Category and subcategory do not match",
				Details:  "Flood/Lighting",
			},
			expected: "INVALID_TAXONOMY_PAIR: Category and subcategory do not match - Flood/Lighting",
		},
		{
			name: "error without details",
			appError: &AppError{
				Code:     ErrorCodeRecordNotFound,
				Severity: SeverityInfo,
				Message:  "Record not found",
			},
			expected: "RECORD_NOT_FOUND: Record not found",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, tt.appError.Error())
		})
	}
}

func TestAppError_Is(t *testing.T) {
	err1 := &AppError{Code: ErrorCodeInvalidTransition}
	err2 := &AppError{Code: ErrorCodeInvalidTransition}
	err3 := &AppError{Code: ErrorCodeRecordNotFound}

	assert.True(t, err1.Is(err2))
	assert.False(t, err1.Is(err3))
	assert.False(t, err1.Is(errors.New("regular error")))
	assert.True(t, errors.Is(WrapError(err1, "outer"), ErrInvalidTransition))
}

func TestNewAppErrorWithCause(t *testing.T) {
	cause := errors.New("serialization failure")
	err := NewAppErrorWithCause(ErrorCodeStoreContention, SeverityError, "gave up", "user 7", cause)

	assert.Equal(t, ErrorCodeStoreContention, err.Code)
	assert.Equal(t, "gave up", err.Message)
	assert.Equal(t, "user 7", err.Details)
	assert.Equal(t, cause, errors.Unwrap(err))
}

func TestWrapError(t *testing.T) {
	t.Run("nil error", func(t *testing.T) {
		assert.Nil(t, WrapError(nil, "context"))
	})

	t.Run("AppError keeps code", func(t *testing.T) {
		wrapped := WrapError(ErrRecordNotFound, "draft lookup")

		var appErr *AppError
		require.True(t, AsError(wrapped, &appErr))
		assert.Equal(t, ErrorCodeRecordNotFound, appErr.Code)
		assert.Equal(t, SeverityInfo, appErr.Severity)
		assert.Equal(t, "draft lookup", appErr.Message)
		assert.Contains(t, appErr.Details, "Record not found")
	})

	t.Run("regular error becomes internal", func(t *testing.T) {
		wrapped := WrapError(errors.New("boom"), "context")

		assert.Equal(t, ErrorCodeInternalError, GetErrorCode(wrapped))
		var appErr *AppError
		require.True(t, AsError(wrapped, &appErr))
		assert.Equal(t, SeverityError, appErr.Severity)
	})
}

func TestWrapErrorf(t *testing.T) {
	t.Run("with %w keeps chain", func(t *testing.T) {
		wrapped := WrapErrorf(ErrStaleDraft, "merge for user %d: %w", 42, ErrStaleDraft)

		assert.Equal(t, ErrorCodeStaleDraft, GetErrorCode(wrapped))
		assert.True(t, errors.Is(wrapped, ErrStaleDraft))
		assert.Contains(t, wrapped.Error(), "merge for user 42")
	})

	t.Run("without %w", func(t *testing.T) {
		wrapped := WrapErrorf(fmt.Errorf("dial tcp"), "open %s", "postgres")

		assert.Equal(t, ErrorCodeInternalError, GetErrorCode(wrapped))
		assert.Contains(t, wrapped.Error(), "open postgres")
	})
}

func TestIsError(t *testing.T) {
	err := WrapError(ErrInvalidTaxonomyPair, "merge rejected")

	assert.True(t, IsError(err, ErrInvalidTaxonomyPair))
	assert.False(t, IsError(err, ErrInvalidTransition))
	assert.False(t, IsError(errors.New("plain"), ErrInvalidTransition))
}

func TestIsRetryable(t *testing.T) {
	assert.True(t, IsRetryable(ErrStoreContention))
	assert.True(t, IsRetryable(ErrTimeout))
	assert.False(t, IsRetryable(ErrInvalidTransition))
	assert.False(t, IsRetryable(NewAppError(ErrorCodeTimeout, SeverityFatal, "dead", "")))
	assert.False(t, IsRetryable(errors.New("plain")))
}

func TestIsUserFacing(t *testing.T) {
	assert.True(t, IsUserFacing(ErrInvalidTransition))
	assert.True(t, IsUserFacing(WrapError(ErrInvalidTaxonomyPair, "x")))
	assert.True(t, IsUserFacing(ErrStaleDraft))
	assert.False(t, IsUserFacing(ErrStoreContention))
	assert.False(t, IsUserFacing(errors.New("plain")))
}

func TestAppError_ToJSON(t *testing.T) {
	err := NewAppErrorWithCause(ErrorCodeStoreContention, SeverityError, "gave up", "after 5 attempts", errors.New("conflict"))

	result := err.ToJSON()

	assert.Equal(t, "STORE_CONTENTION", result["code"])
	assert.Equal(t, "gave up", result["message"])
	assert.Equal(t, "after 5 attempts", result["details"])
	assert.Equal(t, true, result["retryable"])
	assert.Equal(t, "conflict", result["cause"])
}

func TestContextHelpers(t *testing.T) {
	ctx := context.Background()
	assert.Equal(t, int64(0), GetUserIDFromContext(ctx))
	assert.Equal(t, "", GetEventSourceFromContext(ctx))

	ctx = WithEventSource(WithUserID(ctx, 1234), "web")
	assert.Equal(t, int64(1234), GetUserIDFromContext(ctx))
	assert.Equal(t, "web", GetEventSourceFromContext(ctx))
}
