package utils

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// Error codes carried in ErrorResponse.ErrorCode
const (
	CodeBadRequest      = "bad_request"
	CodeUnsupportedFile = "unsupported_file_type"
	CodeFileTooLarge    = "file_too_large"
	CodeRequestTooLarge = "request_too_large"
	CodeRateLimited     = "rate_limit_exceeded"
	CodeNotReady        = "not_ready"
	CodeInternal        = "internal_error"
)

// ErrorResponse is the JSON body of every failed request
type ErrorResponse struct {
	ErrorCode string      `json:"error_code"`
	Message   string      `json:"message"`
	Details   interface{} `json:"details,omitempty"`
}

// RespondWithError writes the error body and aborts the handler chain
func RespondWithError(c *gin.Context, statusCode int, errorCode, message string, details interface{}) {
	c.AbortWithStatusJSON(statusCode, ErrorResponse{
		ErrorCode: errorCode,
		Message:   message,
		Details:   details,
	})
}

func RespondWithBadRequest(c *gin.Context, message string, details interface{}) {
	RespondWithError(c, http.StatusBadRequest, CodeBadRequest, message, details)
}

// RespondWithTooLarge reports a body or file over maxSize bytes. received is omitted when unknown.
func RespondWithTooLarge(c *gin.Context, code, message string, maxSize, received int64) {
	details := gin.H{
		"max_size":    maxSize,
		"max_size_mb": maxSize / (1024 * 1024),
	}
	if received > 0 {
		details["received"] = received
	}
	RespondWithError(c, http.StatusRequestEntityTooLarge, code, message, details)
}

// RespondWithInternalError hides the cause; callers log it
func RespondWithInternalError(c *gin.Context, message string) {
	RespondWithError(c, http.StatusInternalServerError, CodeInternal, message, nil)
}
