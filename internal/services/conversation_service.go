// internal/services/conversation_service.go
package services

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/fablier/fablier/internal/config"
	"github.com/fablier/fablier/internal/engine"
	apperrors "github.com/fablier/fablier/internal/errors"
	"github.com/fablier/fablier/internal/models"
	"github.com/fablier/fablier/internal/relay"
	"github.com/fablier/fablier/internal/utils"
)

// ConversationService routes facilitator utterances to the relay worker and
// folds replies back into the session store. It implements engine.Converser
// for the automatic intro turns.
type ConversationService struct {
	Relay    relay.Client
	Sessions *engine.SessionStore
	Personas models.PersonaRegistry
	Engine   *engine.Engine
	Notifier engine.Notifier

	logger *utils.Logger
}

// NewConversationService wires the conversation gateway.
func NewConversationService(relayClient relay.Client, sessions *engine.SessionStore, personas models.PersonaRegistry, eng *engine.Engine, notifier engine.Notifier) *ConversationService {
	if notifier == nil {
		notifier = engine.NopNotifier{}
	}
	return &ConversationService{
		Relay:    relayClient,
		Sessions: sessions,
		Personas: personas,
		Engine:   eng,
		Notifier: notifier,
		logger:   utils.GetLogger(),
	}
}

// Converse sends the facilitator's message to the current chat target and
// returns the assistant reply. The user turn is appended before the relay
// call, so a failed call leaves exactly that turn in the history.
func (s *ConversationService) Converse(ctx context.Context, text string) (string, error) {
	if text == "" {
		return "", apperrors.NewValidationError("empty message", nil)
	}

	target := s.Engine.CurrentChatTarget()
	if target == "" {
		return "", apperrors.NewValidationError("no chat target: the active scene binds no persona", nil)
	}

	persona, ok := s.Personas[target]
	if !ok {
		return "", apperrors.NewValidationError(fmt.Sprintf("unknown persona %q", target), nil)
	}

	if err := s.Sessions.BeginTurn(target); err != nil {
		return "", err
	}
	defer s.Sessions.EndTurn(target)

	s.Sessions.Append(target, models.RoleUser, text)
	s.Notifier.ChatMessage(target, models.ChatMessage{Role: models.RoleUser, Content: text})
	s.Notifier.ChatPending(target)

	req := relay.ChatRequest{
		Messages: s.Sessions.HistoryOf(target),
		System:   s.systemContext(persona),
		Model:    config.GetCurrentConfig().DefaultModel,
	}

	reply, err := s.Relay.Chat(ctx, req)
	if err != nil {
		s.Notifier.ChatFailed(target, "temporarily unavailable")
		s.logger.Warnf("chat with %s failed: %v", target, err)
		return "", apperrors.NewConversationError(fmt.Sprintf("%s is temporarily unavailable", persona.DisplayName), err)
	}

	s.Sessions.Append(target, models.RoleAssistant, reply)
	s.Notifier.ChatMessage(target, models.ChatMessage{Role: models.RoleAssistant, Content: reply})

	return reply, nil
}

// IntroTurn issues the automatic assistant greeting for a persona-bound
// scene. The intro prompt alone is the system context and the history sent
// is empty regardless of accumulated session state; only the assistant
// reply is recorded.
func (s *ConversationService) IntroTurn(ctx context.Context, personaID, prompt string) error {
	persona, ok := s.Personas[personaID]
	if !ok {
		return apperrors.NewValidationError(fmt.Sprintf("unknown persona %q", personaID), nil)
	}

	if err := s.Sessions.BeginTurn(personaID); err != nil {
		return err
	}
	defer s.Sessions.EndTurn(personaID)

	s.Notifier.ChatPending(personaID)

	req := relay.ChatRequest{
		Messages: []models.ChatMessage{},
		System:   prompt,
		Model:    config.GetCurrentConfig().DefaultModel,
	}

	reply, err := s.Relay.Chat(ctx, req)
	if err != nil {
		s.Notifier.ChatFailed(personaID, "temporarily unavailable")
		return apperrors.NewConversationError(fmt.Sprintf("%s is temporarily unavailable", persona.DisplayName), err)
	}

	s.Sessions.Append(personaID, models.RoleAssistant, reply)
	s.Notifier.ChatMessage(personaID, models.ChatMessage{Role: models.RoleAssistant, Content: reply})

	return nil
}

// systemContext assembles the relay system prompt: serialized stats, the
// persona's biography, and the scene directive only when the target is the
// scene's own persona.
func (s *ConversationService) systemContext(persona *models.Persona) string {
	statsJSON, err := json.Marshal(s.Engine.StatsSnapshot())
	if err != nil {
		statsJSON = []byte("{}")
	}

	context := fmt.Sprintf("GAME CONTEXT: %s. YOUR ROLE: %s.", statsJSON, persona.Bio)

	if directive := s.Engine.SceneDirectiveFor(persona.ID); directive != "" {
		context += " SCENE DIRECTIVE: " + directive
	}

	return context
}
