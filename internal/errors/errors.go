// internal/errors/errors.go
package errors

import (
	"errors"
	"fmt"
)

// ErrorType classifies application errors.
type ErrorType string

const (
	ErrorTypeValidation    ErrorType = "validation_error"
	ErrorTypeSceneNotFound ErrorType = "scene_not_found"
	ErrorTypeStartupLoad   ErrorType = "startup_load_error"
	ErrorTypeConversation  ErrorType = "conversation_error"
	ErrorTypeSynthesis     ErrorType = "synthesis_error"
	ErrorTypeConflict      ErrorType = "conflict"
	ErrorTypeError         ErrorType = "processing_error"
)

// AppError is the application error structure.
type AppError struct {
	Type    ErrorType
	Message string
	Err     error
	Code    string // user-facing error code
}

// Error implements the error interface.
func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

// Unwrap supports error chains.
func (e *AppError) Unwrap() error {
	return e.Err
}

// NewAppError creates a new AppError.
func NewAppError(errType ErrorType, message string, originalError error) *AppError {
	return &AppError{
		Type:    errType,
		Message: message,
		Err:     originalError,
		Code:    generateErrorCode(errType),
	}
}

// NewValidationError creates a validation error.
func NewValidationError(message string, originalError error) *AppError {
	return NewAppError(ErrorTypeValidation, message, originalError)
}

// NewSceneNotFoundError creates a scene lookup error. Fatal to the current
// transition only: the session stays on the prior scene.
func NewSceneNotFoundError(message string, originalError error) *AppError {
	return NewAppError(ErrorTypeSceneNotFound, message, originalError)
}

// NewStartupLoadError creates a startup data load error. Fatal: the engine
// never starts degraded with missing data.
func NewStartupLoadError(message string, originalError error) *AppError {
	return NewAppError(ErrorTypeStartupLoad, message, originalError)
}

// NewConversationError creates a chat gateway error. Local and non-fatal,
// rendered inline in the chat surface.
func NewConversationError(message string, originalError error) *AppError {
	return NewAppError(ErrorTypeConversation, message, originalError)
}

// NewSynthesisError creates a speech synthesis error. Logged, never fatal.
func NewSynthesisError(message string, originalError error) *AppError {
	return NewAppError(ErrorTypeSynthesis, message, originalError)
}

// NewConflictError creates a conflict error.
func NewConflictError(message string, originalError error) *AppError {
	return NewAppError(ErrorTypeConflict, message, originalError)
}

// NewProcessingError creates a generic processing error.
func NewProcessingError(message string, originalError error) *AppError {
	return NewAppError(ErrorTypeError, message, originalError)
}

// IsSceneNotFoundError checks for a scene lookup failure.
func IsSceneNotFoundError(err error) bool {
	return isType(err, ErrorTypeSceneNotFound)
}

// IsStartupLoadError checks for a startup data load failure.
func IsStartupLoadError(err error) bool {
	return isType(err, ErrorTypeStartupLoad)
}

// IsConversationError checks for a chat gateway failure.
func IsConversationError(err error) bool {
	return isType(err, ErrorTypeConversation)
}

// IsSynthesisError checks for a speech synthesis failure.
func IsSynthesisError(err error) bool {
	return isType(err, ErrorTypeSynthesis)
}

// IsValidationError checks for a validation failure.
func IsValidationError(err error) bool {
	return isType(err, ErrorTypeValidation)
}

// IsConflictError checks for a conflict.
func IsConflictError(err error) bool {
	return isType(err, ErrorTypeConflict)
}

func isType(err error, t ErrorType) bool {
	var appError *AppError
	if errors.As(err, &appError) {
		return appError.Type == t
	}
	return false
}

// generateErrorCode maps an error type to its user-facing code.
func generateErrorCode(errType ErrorType) string {
	switch errType {
	case ErrorTypeValidation:
		return "VALIDATION_ERROR"
	case ErrorTypeSceneNotFound:
		return "SCENE_NOT_FOUND"
	case ErrorTypeStartupLoad:
		return "STARTUP_LOAD_FAILED"
	case ErrorTypeConversation:
		return "CONVERSATION_FAILED"
	case ErrorTypeSynthesis:
		return "SYNTHESIS_FAILED"
	case ErrorTypeConflict:
		return "CONFLICT"
	case ErrorTypeError:
		return "PROCESSING_ERROR"
	default:
		return "UNKNOWN_ERROR"
	}
}

// WrapError wraps an existing error, preserving an AppError's type if the
// chain already carries one.
func WrapError(err error, message string, errType ErrorType) error {
	if err == nil {
		return nil
	}

	var appError *AppError
	if errors.As(err, &appError) {
		return &AppError{
			Type:    appError.Type,
			Message: fmt.Sprintf("%s: %s", message, appError.Message),
			Err:     appError,
			Code:    appError.Code,
		}
	}

	return NewAppError(errType, message, err)
}
