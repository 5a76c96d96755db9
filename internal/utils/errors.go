// Package contextutils provides error handling utilities and standardized error types
// for consistent error management across the report bot.
package contextutils

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// ErrorCode represents a standardized error code for API responses
type ErrorCode string

const (
	// Database error codes

	// ErrorCodeDatabaseConnection indicates a database connection error
	ErrorCodeDatabaseConnection ErrorCode = "DATABASE_CONNECTION_ERROR"
	// ErrorCodeDatabaseQuery indicates a database query error
	ErrorCodeDatabaseQuery ErrorCode = "DATABASE_QUERY_ERROR"
	// ErrorCodeRecordNotFound indicates that a requested record was not found
	ErrorCodeRecordNotFound ErrorCode = "RECORD_NOT_FOUND"

	// Validation error codes

	// ErrorCodeInvalidInput indicates that the provided input is invalid
	ErrorCodeInvalidInput ErrorCode = "INVALID_INPUT"
	// ErrorCodeMissingRequired indicates that a required field is missing
	ErrorCodeMissingRequired ErrorCode = "MISSING_REQUIRED_FIELD"
	// ErrorCodeInvalidFormat indicates that the input format is invalid
	ErrorCodeInvalidFormat ErrorCode = "INVALID_FORMAT"
	// ErrorCodeUnauthorized indicates that the caller failed a shared-secret check
	ErrorCodeUnauthorized ErrorCode = "UNAUTHORIZED"

	// Service error codes

	// ErrorCodeServiceUnavailable indicates that the service is temporarily unavailable
	ErrorCodeServiceUnavailable ErrorCode = "SERVICE_UNAVAILABLE"
	// ErrorCodeTimeout indicates that a request has timed out
	ErrorCodeTimeout ErrorCode = "REQUEST_TIMEOUT"
	// ErrorCodeInternalError indicates an internal server error
	ErrorCodeInternalError ErrorCode = "INTERNAL_SERVER_ERROR"

	// Conversation error codes

	// ErrorCodeInvalidTaxonomyPair indicates a category/subcategory pair outside the catalog
	ErrorCodeInvalidTaxonomyPair ErrorCode = "INVALID_TAXONOMY_PAIR"
	// ErrorCodeInvalidTransition indicates an event that does not apply to the current stage
	ErrorCodeInvalidTransition ErrorCode = "INVALID_TRANSITION"
	// ErrorCodeStaleDraft indicates a conditional merge against an outdated revision
	ErrorCodeStaleDraft ErrorCode = "STALE_DRAFT"
	// ErrorCodeStoreContention indicates the draft store gave up after its retry budget
	ErrorCodeStoreContention ErrorCode = "STORE_CONTENTION"

	// AI error codes

	// ErrorCodeClassificationFailure indicates that the classifier could not produce a result
	ErrorCodeClassificationFailure ErrorCode = "CLASSIFICATION_FAILURE"
	// ErrorCodeAIProviderUnavailable indicates that no AI provider is configured or reachable
	ErrorCodeAIProviderUnavailable ErrorCode = "AI_PROVIDER_UNAVAILABLE"
	// ErrorCodeAIResponseInvalid indicates that the AI response is invalid
	ErrorCodeAIResponseInvalid ErrorCode = "AI_RESPONSE_INVALID"

	// Transport error codes

	// ErrorCodeTelegramAPI indicates a failed Bot API call
	ErrorCodeTelegramAPI ErrorCode = "TELEGRAM_API_ERROR"
	// ErrorCodeMediaStorage indicates a failed media upload or download
	ErrorCodeMediaStorage ErrorCode = "MEDIA_STORAGE_ERROR"
)

// SeverityLevel represents the severity of an error for logging and monitoring
type SeverityLevel string

const (
	// SeverityInfo indicates informational errors
	SeverityInfo SeverityLevel = "info"
	// SeverityWarn indicates warning-level errors
	SeverityWarn SeverityLevel = "warn"
	// SeverityError indicates error-level issues
	SeverityError SeverityLevel = "error"
	// SeverityFatal indicates fatal errors that require immediate attention
	SeverityFatal SeverityLevel = "fatal"
)

// AppError represents a structured error with code, severity, and context
type AppError struct {
	Code     ErrorCode
	Severity SeverityLevel
	Message  string
	Details  string
	Cause    error
}

// Error implements the error interface
func (e *AppError) Error() string {
	if e.Details != "" {
		return fmt.Sprintf("%s: %s - %s", e.Code, e.Message, e.Details)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause error
func (e *AppError) Unwrap() error {
	return e.Cause
}

// Is implements error comparison for errors.Is
func (e *AppError) Is(target error) bool {
	if appErr, ok := target.(*AppError); ok {
		return e.Code == appErr.Code
	}
	return false
}

func sentinel(code ErrorCode, severity SeverityLevel, message string) *AppError {
	return &AppError{Code: code, Severity: severity, Message: message}
}

// Sentinels for errors.Is / IsError checks; they compare by code
var (
	ErrDatabaseQuery   = sentinel(ErrorCodeDatabaseQuery, SeverityError, "Database query failed")
	ErrRecordNotFound  = sentinel(ErrorCodeRecordNotFound, SeverityInfo, "Record not found")
	ErrInvalidInput    = sentinel(ErrorCodeInvalidInput, SeverityWarn, "Invalid input")
	ErrMissingRequired = sentinel(ErrorCodeMissingRequired, SeverityWarn, "Missing required field")
	ErrUnauthorized    = sentinel(ErrorCodeUnauthorized, SeverityWarn, "Unauthorized")
	ErrTimeout         = sentinel(ErrorCodeTimeout, SeverityWarn, "Request timeout")
	ErrInternalError   = sentinel(ErrorCodeInternalError, SeverityError, "Internal server error")

	ErrInvalidTaxonomyPair = sentinel(ErrorCodeInvalidTaxonomyPair, SeverityInfo, "Category and subcategory do not match")
	ErrInvalidTransition   = sentinel(ErrorCodeInvalidTransition, SeverityInfo, "Unexpected input for the current step")
	ErrStaleDraft          = sentinel(ErrorCodeStaleDraft, SeverityInfo, "Draft changed concurrently")
	ErrStoreContention     = sentinel(ErrorCodeStoreContention, SeverityError, "Draft store contention")

	ErrAIProviderUnavailable = sentinel(ErrorCodeAIProviderUnavailable, SeverityError, "AI provider unavailable")
	ErrAIResponseInvalid     = sentinel(ErrorCodeAIResponseInvalid, SeverityError, "AI response invalid")
	ErrTelegramAPI           = sentinel(ErrorCodeTelegramAPI, SeverityError, "Telegram API request failed")
)

// NewAppError creates a new AppError with the specified code, severity, message and details
func NewAppError(code ErrorCode, severity SeverityLevel, message, details string) *AppError {
	return &AppError{
		Code:     code,
		Severity: severity,
		Message:  message,
		Details:  details,
	}
}

// NewAppErrorWithCause creates a new AppError with an underlying cause
func NewAppErrorWithCause(code ErrorCode, severity SeverityLevel, message, details string, cause error) *AppError {
	return &AppError{
		Code:     code,
		Severity: severity,
		Message:  message,
		Details:  details,
		Cause:    cause,
	}
}

// WrapError wraps an error with additional context, preserving AppError structure if possible
func WrapError(err error, context string) error {
	if err == nil {
		return nil
	}

	var appErr *AppError
	if errors.As(err, &appErr) {
		return &AppError{
			Code:     appErr.Code,
			Severity: appErr.Severity,
			Message:  context,
			Details:  appErr.Error(),
			Cause:    err,
		}
	}

	return &AppError{
		Code:     ErrorCodeInternalError,
		Severity: SeverityError,
		Message:  context,
		Details:  err.Error(),
		Cause:    err,
	}
}

// WrapErrorf wraps an error with formatted context, preserving AppError structure if possible
func WrapErrorf(err error, format string, args ...interface{}) error {
	if err == nil {
		return nil
	}

	// %w is resolved by fmt.Errorf so the chain stays unwrappable
	if strings.Contains(format, "%w") {
		wrappedErr := fmt.Errorf(format, args...)

		var appErr *AppError
		if errors.As(err, &appErr) {
			return &AppError{
				Code:     appErr.Code,
				Severity: appErr.Severity,
				Message:  wrappedErr.Error(),
				Details:  appErr.Error(),
				Cause:    wrappedErr,
			}
		}

		return &AppError{
			Code:     ErrorCodeInternalError,
			Severity: SeverityError,
			Message:  wrappedErr.Error(),
			Details:  err.Error(),
			Cause:    wrappedErr,
		}
	}

	return WrapError(err, fmt.Sprintf(format, args...))
}

// ErrorWithContextf creates a new error with formatted context
func ErrorWithContextf(format string, args ...interface{}) error {
	return &AppError{
		Code:     ErrorCodeInternalError,
		Severity: SeverityError,
		Message:  fmt.Sprintf(format, args...),
	}
}

// IsError checks if an error, or anything it wraps, matches a specific AppError type
func IsError(err error, target *AppError) bool {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Code == target.Code
	}
	return false
}

// AsError attempts to convert an error to an AppError
func AsError(err error, target **AppError) bool {
	return errors.As(err, target)
}

// GetErrorCode returns the error code from an error if it's an AppError, otherwise returns a default code
func GetErrorCode(err error) ErrorCode {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Code
	}
	return ErrorCodeInternalError
}

// IsRetryable determines if an error should be retried based on its type and severity
func IsRetryable(err error) bool {
	var appErr *AppError
	if errors.As(err, &appErr) {
		switch appErr.Code {
		case ErrorCodeTimeout, ErrorCodeServiceUnavailable, ErrorCodeDatabaseConnection, ErrorCodeStoreContention:
			return appErr.Severity != SeverityFatal
		}
	}
	return false
}

// IsUserFacing reports whether an error is a recoverable conversation error
// that should be shown to the user as a benign message.
func IsUserFacing(err error) bool {
	switch GetErrorCode(err) {
	case ErrorCodeInvalidTaxonomyPair, ErrorCodeInvalidTransition, ErrorCodeStaleDraft:
		return true
	}
	return false
}

// ToJSON converts an AppError to a JSON-serializable structure for API responses
func (e *AppError) ToJSON() map[string]interface{} {
	result := map[string]interface{}{
		"code":     string(e.Code),
		"message":  e.Message,
		"severity": string(e.Severity),
		"error":    e.Message,
	}

	if e.Details != "" {
		result["details"] = e.Details
	}

	result["retryable"] = IsRetryable(e)

	if e.Cause != nil {
		switch e.Severity {
		case SeverityError, SeverityFatal:
			result["cause"] = e.Cause.Error()
		}
	}

	return result
}

// ContextKey represents a context key type for passing values through context
type ContextKey string

const (
	// UserIDKey is used to store the reporting user's id in context
	UserIDKey ContextKey = "userID"
	// EventSourceKey is used to store the channel an event arrived on
	EventSourceKey ContextKey = "eventSource"
)

// GetUserIDFromContext extracts the user ID from context, returning 0 if not found
func GetUserIDFromContext(ctx context.Context) int64 {
	if userID, ok := ctx.Value(UserIDKey).(int64); ok {
		return userID
	}
	return 0
}

// WithUserID returns a new context with the user ID set
func WithUserID(ctx context.Context, userID int64) context.Context {
	return context.WithValue(ctx, UserIDKey, userID)
}

// GetEventSourceFromContext extracts the event source from context
func GetEventSourceFromContext(ctx context.Context) string {
	if source, ok := ctx.Value(EventSourceKey).(string); ok {
		return source
	}
	return ""
}

// WithEventSource returns a new context with the event source set
func WithEventSource(ctx context.Context, source string) context.Context {
	return context.WithValue(ctx, EventSourceKey, source)
}
