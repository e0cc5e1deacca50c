// internal/api/error_codes.go
package api

// API error code constants
const (
	// Generic
	ErrorBadRequest    = "BAD_REQUEST"
	ErrorNotFound      = "NOT_FOUND"
	ErrorInternalError = "INTERNAL_ERROR"
	ErrorConflict      = "CONFLICT"

	// Navigation
	ErrorSceneNotFound = "SCENE_NOT_FOUND"
	ErrorModeInvalid   = "MODE_INVALID"
	ErrorNoActiveScene = "NO_ACTIVE_SCENE"

	// Personas and chat
	ErrorPersonaNotFound    = "PERSONA_NOT_FOUND"
	ErrorConversationFailed = "CONVERSATION_FAILED"
	ErrorChatBusy           = "CHAT_BUSY"
	ErrorNoChatTarget       = "NO_CHAT_TARGET"

	// Speech
	ErrorSynthesisFailed = "SYNTHESIS_FAILED"

	// Export
	ErrorExportFailed    = "EXPORT_FAILED"
	ErrorArchiveDisabled = "ARCHIVE_DISABLED"

	// Startup
	ErrorStartupLoadFailed = "STARTUP_LOAD_FAILED"
)
