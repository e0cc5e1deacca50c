// internal/models/persona.go
package models

// Persona is an AI-driven character addressable independently of the
// active scene. Loaded once from personas.json and immutable afterwards.
type Persona struct {
	ID          string `json:"id"`
	DisplayName string `json:"name"`
	FirstName   string `json:"first_name,omitempty"`
	Avatar      string `json:"avatar,omitempty"`
	Bio         string `json:"bio"`
	Voice       string `json:"voice,omitempty"` // TTS voice id, empty means the relay default
}

// PersonaRegistry maps persona id to its definition.
type PersonaRegistry map[string]*Persona

// BuildPersonaRegistry indexes a persona list by id. Later duplicates win,
// matching how the source data files are authored (the last entry is the fix).
func BuildPersonaRegistry(list []*Persona) PersonaRegistry {
	registry := make(PersonaRegistry, len(list))
	for _, p := range list {
		registry[p.ID] = p
	}
	return registry
}

// IDs returns the registered persona ids.
func (r PersonaRegistry) IDs() []string {
	ids := make([]string, 0, len(r))
	for id := range r {
		ids = append(ids, id)
	}
	return ids
}
