// internal/engine/session_store.go
package engine

import (
	"fmt"
	"sync"

	apperrors "github.com/fablier/fablier/internal/errors"
	"github.com/fablier/fablier/internal/models"
)

// SessionStore holds one ordered, append-only message history per persona.
// Histories grow unbounded within a session; they are reset only when a new
// session starts. The store also tracks in-flight relay calls so a second
// message to a persona is rejected while its reply is still outstanding.
type SessionStore struct {
	mu        sync.RWMutex
	histories map[string][]models.ChatMessage
	inFlight  map[string]bool
}

// NewSessionStore creates an empty store.
func NewSessionStore() *SessionStore {
	return &SessionStore{
		histories: make(map[string][]models.ChatMessage),
		inFlight:  make(map[string]bool),
	}
}

// Reset drops all histories and creates an empty one for each given persona.
func (s *SessionStore) Reset(personaIDs []string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.histories = make(map[string][]models.ChatMessage, len(personaIDs))
	s.inFlight = make(map[string]bool)
	for _, id := range personaIDs {
		s.histories[id] = []models.ChatMessage{}
	}
}

// Ensure lazily creates an empty history for a persona not yet addressed.
func (s *SessionStore) Ensure(personaID string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.histories[personaID]; !ok {
		s.histories[personaID] = []models.ChatMessage{}
	}
}

// Append adds one turn to a persona's history.
func (s *SessionStore) Append(personaID, role, content string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.histories[personaID] = append(s.histories[personaID], models.ChatMessage{
		Role:    role,
		Content: content,
	})
}

// HistoryOf returns a copy of a persona's ordered history.
func (s *SessionStore) HistoryOf(personaID string) []models.ChatMessage {
	s.mu.RLock()
	defer s.mu.RUnlock()

	history := s.histories[personaID]
	out := make([]models.ChatMessage, len(history))
	copy(out, history)
	return out
}

// Len returns the number of turns recorded for a persona.
func (s *SessionStore) Len(personaID string) int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return len(s.histories[personaID])
}

// Snapshot copies every history, keyed by persona id. Used for export.
func (s *SessionStore) Snapshot() map[string][]models.ChatMessage {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make(map[string][]models.ChatMessage, len(s.histories))
	for id, history := range s.histories {
		h := make([]models.ChatMessage, len(history))
		copy(h, history)
		out[id] = h
	}
	return out
}

// BeginTurn marks a relay call in flight for a persona. It fails with a
// conflict-typed ConversationError while a previous call is outstanding.
func (s *SessionStore) BeginTurn(personaID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.inFlight[personaID] {
		return apperrors.NewConflictError(
			fmt.Sprintf("a reply from %s is still pending", personaID), nil)
	}
	s.inFlight[personaID] = true
	return nil
}

// EndTurn releases the in-flight mark for a persona.
func (s *SessionStore) EndTurn(personaID string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.inFlight, personaID)
}
