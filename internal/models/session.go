// internal/models/session.go
package models

import "time"

// Session modes. Extended mode unlocks the random event interludes.
const (
	ModeStandard = "standard"
	ModeExtended = "extended"
)

// ValidMode reports whether mode is one of the two session modes.
func ValidMode(mode string) bool {
	return mode == ModeStandard || mode == ModeExtended
}

// Chat message roles, matching the relay wire format.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// ChatMessage is one turn of a per-persona conversation.
type ChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// SceneView is what the engine publishes to the projection screen when a
// scene is entered. It flattens the scene node with the resolved persona so
// the rendering layer needs no registry lookups of its own.
type SceneView struct {
	SceneID     string          `json:"scene_id"`
	Type        string          `json:"type,omitempty"`
	Background  string          `json:"background,omitempty"`
	Video       string          `json:"video,omitempty"`
	Content     *NarrativePanel `json:"content,omitempty"`
	Persona     *Persona        `json:"persona,omitempty"`
	Options     []SceneOption   `json:"options,omitempty"`
	HasNext     bool            `json:"has_next"`
	Terminal    bool            `json:"terminal"`
	TeacherNote string          `json:"teacher_note,omitempty"`
	IsEvent     bool            `json:"is_event,omitempty"`
}

// SessionTranscript is the end-of-session export payload, shape-stable with
// the save endpoint's expectations.
type SessionTranscript struct {
	Date     time.Time                `json:"date"`
	State    map[string]float64       `json:"state"`
	Sessions map[string][]ChatMessage `json:"sessions"`
}
