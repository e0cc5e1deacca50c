// internal/services/conversation_service_test.go
package services

import (
	"context"
	"errors"
	"testing"

	"github.com/fablier/fablier/internal/engine"
	apperrors "github.com/fablier/fablier/internal/errors"
	"github.com/fablier/fablier/internal/models"
	"github.com/fablier/fablier/internal/relay"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeRelay stubs the relay worker for all service tests.
type fakeRelay struct {
	chatReply string
	chatErr   error
	chatCalls int
	lastChat  relay.ChatRequest

	synthAudio []byte
	synthErr   error
	synthCalls int
	lastText   string
	lastVoice  string

	saveErr   error
	saveCalls int
	lastSave  relay.SaveRequest
}

func (f *fakeRelay) Chat(ctx context.Context, req relay.ChatRequest) (string, error) {
	f.chatCalls++
	f.lastChat = req
	if f.chatErr != nil {
		return "", f.chatErr
	}
	return f.chatReply, nil
}

func (f *fakeRelay) Synthesize(ctx context.Context, text, voice, model, format string) ([]byte, error) {
	f.synthCalls++
	f.lastText = text
	f.lastVoice = voice
	if f.synthErr != nil {
		return nil, f.synthErr
	}
	return f.synthAudio, nil
}

func (f *fakeRelay) SaveTranscript(ctx context.Context, req relay.SaveRequest) error {
	f.saveCalls++
	f.lastSave = req
	return f.saveErr
}

// setTestEnv keeps the config fallback away from the package directory.
func setTestEnv(t *testing.T) {
	t.Helper()
	t.Setenv("RELAY_API_BASE", "http://relay.test")
	t.Setenv("DATA_DIR", t.TempDir())
	t.Setenv("LOG_DIR", t.TempDir())
}

func servicePersonas() models.PersonaRegistry {
	return models.BuildPersonaRegistry([]*models.Persona{
		{ID: "marie", DisplayName: "Marie", Bio: "a retired botanist", Voice: "nova"},
		{ID: "paul", DisplayName: "Paul", Bio: "a village blacksmith"},
	})
}

// serviceFixture builds an engine whose start scene binds marie with a
// directive, and a running standard session.
func serviceFixture(t *testing.T) (*engine.Engine, *engine.SessionStore, models.PersonaRegistry) {
	t.Helper()

	scenario := &models.Scenario{
		Meta:  models.ScenarioMeta{ID: "forest", Title: "The Forest"},
		Start: "hut",
		State: map[string]float64{"trust": 5},
		Scenes: map[string]*models.SceneNode{
			"hut": {ID: "hut", Type: models.SceneChat, PersonaID: "marie", Prompt: "Stay in character"},
		},
	}
	personas := servicePersonas()
	sessions := engine.NewSessionStore()
	eng := engine.New(scenario, personas, &models.WorldData{}, sessions)

	require.NoError(t, eng.SelectMode(context.Background(), models.ModeStandard))
	return eng, sessions, personas
}

func TestConverseAppendsBothTurns(t *testing.T) {
	setTestEnv(t)
	eng, sessions, personas := serviceFixture(t)
	rly := &fakeRelay{chatReply: "Bonjour la classe !"}
	svc := NewConversationService(rly, sessions, personas, eng, nil)

	reply, err := svc.Converse(context.Background(), "Bonjour Marie")
	require.NoError(t, err)
	assert.Equal(t, "Bonjour la classe !", reply)

	history := sessions.HistoryOf("marie")
	require.Len(t, history, 2)
	assert.Equal(t, models.ChatMessage{Role: models.RoleUser, Content: "Bonjour Marie"}, history[0])
	assert.Equal(t, models.ChatMessage{Role: models.RoleAssistant, Content: "Bonjour la classe !"}, history[1])

	// The user turn was already part of the history sent to the relay.
	require.Len(t, rly.lastChat.Messages, 1)
	assert.Equal(t, "Bonjour Marie", rly.lastChat.Messages[0].Content)
}

func TestConverseSystemContext(t *testing.T) {
	setTestEnv(t)
	eng, sessions, personas := serviceFixture(t)
	rly := &fakeRelay{chatReply: "ok"}
	svc := NewConversationService(rly, sessions, personas, eng, nil)

	_, err := svc.Converse(context.Background(), "hello")
	require.NoError(t, err)

	assert.Contains(t, rly.lastChat.System, "GAME CONTEXT:")
	assert.Contains(t, rly.lastChat.System, `"trust":5`)
	assert.Contains(t, rly.lastChat.System, "YOUR ROLE: a retired botanist.")
	assert.Contains(t, rly.lastChat.System, "SCENE DIRECTIVE: Stay in character")
}

func TestConverseSideChannelExcludesDirective(t *testing.T) {
	setTestEnv(t)
	eng, sessions, personas := serviceFixture(t)
	rly := &fakeRelay{chatReply: "ok"}
	svc := NewConversationService(rly, sessions, personas, eng, nil)

	require.NoError(t, eng.FocusPersona("paul"))

	_, err := svc.Converse(context.Background(), "a word in private")
	require.NoError(t, err)

	assert.Contains(t, rly.lastChat.System, "YOUR ROLE: a village blacksmith.")
	assert.NotContains(t, rly.lastChat.System, "SCENE DIRECTIVE")

	// The turn lands in paul's history, not the scene persona's.
	assert.Equal(t, 2, sessions.Len("paul"))
	assert.Zero(t, sessions.Len("marie"))
}

func TestConverseRelayFailureLeavesUserTurn(t *testing.T) {
	setTestEnv(t)
	eng, sessions, personas := serviceFixture(t)
	rly := &fakeRelay{chatErr: errors.New("boom")}
	svc := NewConversationService(rly, sessions, personas, eng, nil)

	_, err := svc.Converse(context.Background(), "Bonjour")
	require.Error(t, err)
	assert.True(t, apperrors.IsConversationError(err))
	assert.Contains(t, err.Error(), "Marie is temporarily unavailable")

	history := sessions.HistoryOf("marie")
	require.Len(t, history, 1)
	assert.Equal(t, models.RoleUser, history[0].Role)

	// The in-flight mark was released; a retry goes through.
	rly.chatErr = nil
	rly.chatReply = "back again"
	_, err = svc.Converse(context.Background(), "still there?")
	assert.NoError(t, err)
}

func TestConverseWhileReplyPending(t *testing.T) {
	setTestEnv(t)
	eng, sessions, personas := serviceFixture(t)
	rly := &fakeRelay{chatReply: "ok"}
	svc := NewConversationService(rly, sessions, personas, eng, nil)

	require.NoError(t, sessions.BeginTurn("marie"))
	defer sessions.EndTurn("marie")

	_, err := svc.Converse(context.Background(), "too fast")
	require.Error(t, err)
	assert.True(t, apperrors.IsConflictError(err))
	assert.Zero(t, rly.chatCalls)
}

func TestConverseValidation(t *testing.T) {
	setTestEnv(t)
	eng, sessions, personas := serviceFixture(t)
	svc := NewConversationService(&fakeRelay{}, sessions, personas, eng, nil)

	_, err := svc.Converse(context.Background(), "")
	require.Error(t, err)
	assert.True(t, apperrors.IsValidationError(err))
}

func TestConverseWithoutChatTarget(t *testing.T) {
	setTestEnv(t)

	scenario := &models.Scenario{
		Meta:  models.ScenarioMeta{ID: "forest"},
		Start: "intro",
		State: map[string]float64{},
		Scenes: map[string]*models.SceneNode{
			"intro": {ID: "intro", Type: models.SceneNarrative},
		},
	}
	personas := servicePersonas()
	sessions := engine.NewSessionStore()
	eng := engine.New(scenario, personas, &models.WorldData{}, sessions)
	require.NoError(t, eng.SelectMode(context.Background(), models.ModeStandard))

	svc := NewConversationService(&fakeRelay{}, sessions, personas, eng, nil)

	_, err := svc.Converse(context.Background(), "anyone there?")
	require.Error(t, err)
	assert.True(t, apperrors.IsValidationError(err))
}

func TestIntroTurnSendsEmptyHistory(t *testing.T) {
	setTestEnv(t)
	eng, sessions, personas := serviceFixture(t)
	rly := &fakeRelay{chatReply: "Welcome, children of the forest."}
	svc := NewConversationService(rly, sessions, personas, eng, nil)

	// Accumulated side-channel state must not leak into the intro call.
	sessions.Append("paul", models.RoleUser, "unrelated")

	require.NoError(t, svc.IntroTurn(context.Background(), "marie", "Introduce the hut"))

	assert.Empty(t, rly.lastChat.Messages)
	assert.Equal(t, "Introduce the hut", rly.lastChat.System)

	history := sessions.HistoryOf("marie")
	require.Len(t, history, 1)
	assert.Equal(t, models.RoleAssistant, history[0].Role)
	assert.Equal(t, "Welcome, children of the forest.", history[0].Content)
}

func TestIntroTurnFailureRecordsNothing(t *testing.T) {
	setTestEnv(t)
	eng, sessions, personas := serviceFixture(t)
	rly := &fakeRelay{chatErr: errors.New("boom")}
	svc := NewConversationService(rly, sessions, personas, eng, nil)

	err := svc.IntroTurn(context.Background(), "marie", "Introduce the hut")
	require.Error(t, err)
	assert.True(t, apperrors.IsConversationError(err))
	assert.Zero(t, sessions.Len("marie"))
}
