package handlers

import (
	"errors"
	"fmt"
	"net/http"

	"helpcy/internal/models"
	contextutils "helpcy/internal/utils"

	"github.com/gin-gonic/gin"
)

// statusByCode maps error codes onto HTTP statuses; unknown codes are 500.
// Conversation rejections never reach it, HandleAppError answers them first.
var statusByCode = map[contextutils.ErrorCode]int{
	contextutils.ErrorCodeInvalidInput:          http.StatusBadRequest,
	contextutils.ErrorCodeMissingRequired:       http.StatusBadRequest,
	contextutils.ErrorCodeInvalidFormat:         http.StatusBadRequest,
	contextutils.ErrorCodeUnauthorized:          http.StatusUnauthorized,
	contextutils.ErrorCodeRecordNotFound:        http.StatusNotFound,
	contextutils.ErrorCodeTimeout:               http.StatusRequestTimeout,
	contextutils.ErrorCodeStoreContention:       http.StatusServiceUnavailable,
	contextutils.ErrorCodeServiceUnavailable:    http.StatusServiceUnavailable,
	contextutils.ErrorCodeDatabaseConnection:    http.StatusServiceUnavailable,
	contextutils.ErrorCodeAIProviderUnavailable: http.StatusServiceUnavailable,
}

// codeByStatus is the reverse lookup used for errors raised from a status
var codeByStatus = map[int]contextutils.ErrorCode{
	http.StatusBadRequest:         contextutils.ErrorCodeInvalidInput,
	http.StatusUnauthorized:       contextutils.ErrorCodeUnauthorized,
	http.StatusNotFound:           contextutils.ErrorCodeRecordNotFound,
	http.StatusServiceUnavailable: contextutils.ErrorCodeServiceUnavailable,
}

func httpStatusFor(code contextutils.ErrorCode) int {
	if status, ok := statusByCode[code]; ok {
		return status
	}
	return http.StatusInternalServerError
}

// StandardizeHTTPError writes an error body for a bare status code
func StandardizeHTTPError(c *gin.Context, statusCode int, message, details string) {
	code, ok := codeByStatus[statusCode]
	if !ok {
		code = contextutils.ErrorCodeInternalError
	}
	severity := contextutils.SeverityWarn
	switch {
	case statusCode >= http.StatusInternalServerError:
		severity = contextutils.SeverityError
	case statusCode == http.StatusNotFound:
		severity = contextutils.SeverityInfo
	}
	c.JSON(statusCode, contextutils.NewAppError(code, severity, message, details).ToJSON())
}

// StandardizeAppError sends a structured error response using AppError
func StandardizeAppError(c *gin.Context, err *contextutils.AppError) {
	_ = c.Error(err)
	c.JSON(httpStatusFor(err.Code), err.ToJSON())
}

// HandleValidationError answers 400 for one offending field
func HandleValidationError(c *gin.Context, field string, value interface{}, reason string) {
	StandardizeAppError(c, contextutils.NewAppError(contextutils.ErrorCodeInvalidInput, contextutils.SeverityWarn,
		"Invalid "+field, fmt.Sprintf("Value '%v' is invalid: %s", value, reason)))
}

// HandleAppError sends the HTTP response for err. Conversation rejections are
// not failures: they are answered with 200 and a rejected action.
func HandleAppError(c *gin.Context, err error) {
	var appErr *contextutils.AppError
	if !errors.As(err, &appErr) {
		_ = c.Error(err)
		StandardizeHTTPError(c, http.StatusInternalServerError, "Internal server error", err.Error())
		return
	}
	if contextutils.IsUserFacing(appErr) {
		c.JSON(http.StatusOK, NewActionResponse(models.Rejected(appErr.Message, nil)))
		return
	}
	StandardizeAppError(c, appErr)
}
