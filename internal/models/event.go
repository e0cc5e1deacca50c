// internal/models/event.go
package models

// EventScenePrefix marks scene ids that were synthesized from the random
// event pool. The event gate never fires for ids carrying this prefix, so an
// interlude cannot stack on top of another interlude.
const EventScenePrefix = "evt_"

// DefaultNarratorID fronts event interludes when world.json does not name
// a narrator persona.
const DefaultNarratorID = "oracle"

// RandomEvent is one entry of the world's event pool. Pool entries are
// consumed on use: once presented, an event is never drawn again within
// the same session.
type RandomEvent struct {
	ID         string `json:"id"`
	Title      string `json:"title"`
	Text       string `json:"text"`
	Prompt     string `json:"prompt"`
	Background string `json:"background,omitempty"`
}

// WorldData is the third startup resource: ambient data that is not part
// of the narrative graph itself.
type WorldData struct {
	Narrator     string         `json:"narrator,omitempty"`
	RandomEvents []*RandomEvent `json:"random_events"`
}

// NarratorID returns the persona that voices event interludes.
func (w *WorldData) NarratorID() string {
	if w.Narrator != "" {
		return w.Narrator
	}
	return DefaultNarratorID
}
