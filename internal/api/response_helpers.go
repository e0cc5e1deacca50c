// internal/api/response_helpers.go
package api

import (
	"net/http"
	"time"

	apperrors "github.com/fablier/fablier/internal/errors"
	"github.com/gin-gonic/gin"
)

// APIResponse is the uniform response envelope.
type APIResponse struct {
	Success   bool        `json:"success"`
	Data      interface{} `json:"data,omitempty"`
	Error     *APIError   `json:"error,omitempty"`
	Message   string      `json:"message,omitempty"`
	Timestamp time.Time   `json:"timestamp"`
	RequestID string      `json:"request_id,omitempty"`
}

// APIError is the uniform error format.
type APIError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details string `json:"details,omitempty"`
}

// ResponseHelper builds uniform responses.
type ResponseHelper struct{}

// NewResponseHelper creates a response helper.
func NewResponseHelper() *ResponseHelper {
	return &ResponseHelper{}
}

// Success writes a 200 envelope.
func (rh *ResponseHelper) Success(c *gin.Context, data interface{}, message ...string) {
	response := &APIResponse{
		Success:   true,
		Data:      data,
		Timestamp: time.Now(),
		RequestID: rh.getRequestID(c),
	}

	if len(message) > 0 {
		response.Message = message[0]
	}

	c.JSON(http.StatusOK, response)
}

// Error writes an error envelope with the given status.
func (rh *ResponseHelper) Error(c *gin.Context, statusCode int, errorCode, message string, details ...string) {
	apiError := &APIError{
		Code:    errorCode,
		Message: message,
	}

	if len(details) > 0 {
		apiError.Details = details[0]
	}

	response := &APIResponse{
		Success:   false,
		Error:     apiError,
		Timestamp: time.Now(),
		RequestID: rh.getRequestID(c),
	}

	c.JSON(statusCode, response)
}

// BadRequest writes a 400 error.
func (rh *ResponseHelper) BadRequest(c *gin.Context, message string, details ...string) {
	rh.Error(c, http.StatusBadRequest, ErrorBadRequest, message, details...)
}

// NotFound writes a 404 error.
func (rh *ResponseHelper) NotFound(c *gin.Context, code, message string, details ...string) {
	rh.Error(c, http.StatusNotFound, code, message, details...)
}

// Conflict writes a 409 error.
func (rh *ResponseHelper) Conflict(c *gin.Context, code, message string, details ...string) {
	rh.Error(c, http.StatusConflict, code, message, details...)
}

// InternalError writes a 500 error.
func (rh *ResponseHelper) InternalError(c *gin.Context, message string, details ...string) {
	rh.Error(c, http.StatusInternalServerError, ErrorInternalError, message, details...)
}

// BadGateway writes a 502 error, used when the relay worker fails.
func (rh *ResponseHelper) BadGateway(c *gin.Context, code, message string, details ...string) {
	rh.Error(c, http.StatusBadGateway, code, message, details...)
}

// AppError maps an application error to its HTTP shape.
func (rh *ResponseHelper) AppError(c *gin.Context, err error) {
	switch {
	case apperrors.IsSceneNotFoundError(err):
		rh.NotFound(c, ErrorSceneNotFound, err.Error())
	case apperrors.IsValidationError(err):
		rh.BadRequest(c, err.Error())
	case apperrors.IsConflictError(err):
		rh.Conflict(c, ErrorChatBusy, err.Error())
	case apperrors.IsConversationError(err):
		rh.BadGateway(c, ErrorConversationFailed, err.Error())
	case apperrors.IsSynthesisError(err):
		rh.BadGateway(c, ErrorSynthesisFailed, err.Error())
	case apperrors.IsStartupLoadError(err):
		rh.Error(c, http.StatusServiceUnavailable, ErrorStartupLoadFailed, err.Error())
	default:
		rh.InternalError(c, err.Error())
	}
}

// getRequestID returns the request id set by the middleware.
func (rh *ResponseHelper) getRequestID(c *gin.Context) string {
	if requestID := c.GetString("request_id"); requestID != "" {
		return requestID
	}
	return ""
}
