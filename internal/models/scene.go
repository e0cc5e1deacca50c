// internal/models/scene.go
package models

// Scene kinds. A scene may carry both narrative content and a bound
// persona (the original data files mark those as "chat" with content).
const (
	SceneNarrative = "narrative"
	SceneChat      = "chat"
	SceneChoice    = "choice"
)

// SceneNode is one node of the narrative graph: a unit of display plus
// optional dialogue and optional branching. Immutable after load.
type SceneNode struct {
	ID          string          `json:"id"`
	Type        string          `json:"type,omitempty"`
	Background  string          `json:"background,omitempty"`
	Video       string          `json:"video,omitempty"`
	PersonaID   string          `json:"persona,omitempty"`
	Prompt      string          `json:"prompt,omitempty"` // scene directive, doubles as the intro prompt
	Content     *NarrativePanel `json:"content,omitempty"`
	Options     []SceneOption   `json:"options,omitempty"`
	Next        string          `json:"next,omitempty"`
	AllowEvents bool            `json:"allow_events,omitempty"`
	TeacherNote string          `json:"teacher_note,omitempty"`
}

// NarrativePanel is the projected title/body block of a scene.
type NarrativePanel struct {
	Title string `json:"title"`
	Text  string `json:"text"`
}

// SceneOption is one facilitator branching choice.
type SceneOption struct {
	Label  string             `json:"label"`
	Effect map[string]float64 `json:"effect,omitempty"`
	Target string             `json:"target"`
}

// IsTerminal reports whether the scene has no outward transition.
func (s *SceneNode) IsTerminal() bool {
	return len(s.Options) == 0 && s.Next == ""
}

// Scenario is the full narrative graph plus its declared initial state.
type Scenario struct {
	Meta   ScenarioMeta          `json:"meta"`
	Start  string                `json:"start"`
	State  map[string]float64    `json:"state"`
	Scenes map[string]*SceneNode `json:"scenes"`
}

// ScenarioMeta carries display information about the scenario.
type ScenarioMeta struct {
	ID    string `json:"id,omitempty"`
	Title string `json:"title"`
}
