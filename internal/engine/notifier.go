// internal/engine/notifier.go
package engine

import "github.com/fablier/fablier/internal/models"

// Notifier is the engine's outbound event surface. The rendering layer (in
// practice the websocket hub feeding the projection screen) implements it;
// the engine itself stays free of any transport or DOM concern.
type Notifier interface {
	// SceneChanged fires after every scene transition, including event
	// interludes.
	SceneChanged(view *models.SceneView)

	// ChatMessage fires for every turn appended to a persona's history.
	ChatMessage(personaID string, msg models.ChatMessage)

	// ChatPending marks an outstanding relay call for a persona (the
	// projection shows a typing placeholder).
	ChatPending(personaID string)

	// ChatFailed replaces the pending placeholder with an inline error.
	ChatFailed(personaID string, message string)

	// StateChanged fires after a choice effect lands on the stat map.
	StateChanged(stats map[string]float64)
}

// NopNotifier discards every event. Used in tests and before the rendering
// layer attaches.
type NopNotifier struct{}

func (NopNotifier) SceneChanged(*models.SceneView)         {}
func (NopNotifier) ChatMessage(string, models.ChatMessage) {}
func (NopNotifier) ChatPending(string)                     {}
func (NopNotifier) ChatFailed(string, string)              {}
func (NopNotifier) StateChanged(map[string]float64)        {}
