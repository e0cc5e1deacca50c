// internal/engine/engine_test.go
package engine

import (
	"context"
	"math/rand"
	"testing"

	apperrors "github.com/fablier/fablier/internal/errors"
	"github.com/fablier/fablier/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fixedSource is a rand.Source returning one constant value, so event draws
// are fully deterministic. 0 makes Float64 return 0 (every draw fires and
// index 0 is picked); 1<<62 makes Float64 return 0.5.
type fixedSource struct{ v int64 }

func (s fixedSource) Int63() int64 { return s.v }
func (s fixedSource) Seed(int64)   {}

func testPersonas() models.PersonaRegistry {
	return models.BuildPersonaRegistry([]*models.Persona{
		{ID: "marie", DisplayName: "Marie", Bio: "a retired botanist"},
		{ID: "paul", DisplayName: "Paul", Bio: "a village blacksmith"},
		{ID: "oracle", DisplayName: "The Oracle", Bio: "the voice of the forest"},
	})
}

func testScenario() *models.Scenario {
	return &models.Scenario{
		Meta:  models.ScenarioMeta{ID: "forest", Title: "The Forest"},
		Start: "intro",
		State: map[string]float64{"trust": 5, "courage": 3},
		Scenes: map[string]*models.SceneNode{
			"intro": {
				ID:      "intro",
				Type:    models.SceneNarrative,
				Content: &models.NarrativePanel{Title: "The Forest", Text: "Night falls."},
				Next:    "crossroads",
			},
			"crossroads": {
				ID:   "crossroads",
				Type: models.SceneChoice,
				Options: []models.SceneOption{
					{Label: "Help the stranger", Effect: map[string]float64{"trust": 1, "mystery": 2}, Target: "hut"},
					{Label: "Walk away", Effect: map[string]float64{"courage": -1}, Target: "hut"},
				},
			},
			"hut": {
				ID:          "hut",
				Type:        models.SceneChat,
				PersonaID:   "marie",
				Prompt:      "Greet the class",
				AllowEvents: true,
				Next:        "end",
			},
			"end": {
				ID:      "end",
				Type:    models.SceneNarrative,
				Content: &models.NarrativePanel{Title: "Dawn", Text: "The forest sleeps."},
			},
		},
	}
}

func testWorld() *models.WorldData {
	return &models.WorldData{
		Narrator: "oracle",
		RandomEvents: []*models.RandomEvent{
			{ID: "evt_storm", Title: "A storm breaks", Text: "Thunder rolls.", Prompt: "Describe the storm"},
			{ID: "evt_wolf", Title: "A wolf howls", Text: "Eyes in the dark.", Prompt: "Describe the wolf"},
		},
	}
}

func newTestEngine(t *testing.T, opts ...Option) *Engine {
	t.Helper()
	sessions := NewSessionStore()
	return New(testScenario(), testPersonas(), testWorld(), sessions, opts...)
}

// recordedIntro is one intro turn seen by the stub converser.
type recordedIntro struct {
	personaID string
	prompt    string
}

// stubConverser records intro turns and simulates the assistant reply by
// appending to the session store, so the once-per-persona gate has history
// to look at.
type stubConverser struct {
	sessions *SessionStore
	calls    []recordedIntro
}

func (c *stubConverser) IntroTurn(ctx context.Context, personaID, prompt string) error {
	c.calls = append(c.calls, recordedIntro{personaID: personaID, prompt: prompt})
	if c.sessions != nil {
		c.sessions.Append(personaID, models.RoleAssistant, "hello class")
	}
	return nil
}

// recordingNotifier counts rendering events.
type recordingNotifier struct {
	scenes   []*models.SceneView
	stats    []map[string]float64
	pending  []string
	messages []string
	failures []string
}

func (n *recordingNotifier) SceneChanged(view *models.SceneView) { n.scenes = append(n.scenes, view) }
func (n *recordingNotifier) ChatMessage(personaID string, msg models.ChatMessage) {
	n.messages = append(n.messages, personaID)
}
func (n *recordingNotifier) ChatPending(personaID string) { n.pending = append(n.pending, personaID) }
func (n *recordingNotifier) ChatFailed(personaID string, message string) {
	n.failures = append(n.failures, personaID)
}
func (n *recordingNotifier) StateChanged(stats map[string]float64) { n.stats = append(n.stats, stats) }

func TestSelectModeRejectsUnknownMode(t *testing.T) {
	e := newTestEngine(t)

	err := e.SelectMode(context.Background(), "marathon")
	require.Error(t, err)
	assert.True(t, apperrors.IsValidationError(err))
	assert.Empty(t, e.Mode())
	assert.Nil(t, e.CurrentView())
}

func TestSelectModeStartsAtDeclaredScene(t *testing.T) {
	e := newTestEngine(t)

	require.NoError(t, e.SelectMode(context.Background(), models.ModeStandard))

	view := e.CurrentView()
	require.NotNil(t, view)
	assert.Equal(t, "intro", view.SceneID)
	assert.True(t, view.HasNext)
	assert.False(t, view.Terminal)

	stats := e.StatsSnapshot()
	assert.Equal(t, map[string]float64{"trust": 5, "courage": 3}, stats)

	// The snapshot is a copy; mutating it must not touch the session.
	stats["trust"] = 99
	assert.Equal(t, 5.0, e.StatsSnapshot()["trust"])
}

func TestSelectModeResetsHistories(t *testing.T) {
	sessions := NewSessionStore()
	e := New(testScenario(), testPersonas(), testWorld(), sessions)

	sessions.Ensure("marie")
	sessions.Append("marie", models.RoleUser, "left over from last lesson")

	require.NoError(t, e.SelectMode(context.Background(), models.ModeStandard))
	assert.Zero(t, sessions.Len("marie"))
}

func TestEnterSceneBeforeModeSelection(t *testing.T) {
	e := newTestEngine(t)

	err := e.EnterScene(context.Background(), "intro")
	require.Error(t, err)
	assert.True(t, apperrors.IsValidationError(err))
}

func TestAdvanceFollowsNext(t *testing.T) {
	e := newTestEngine(t)
	require.NoError(t, e.SelectMode(context.Background(), models.ModeStandard))

	require.NoError(t, e.Advance(context.Background()))
	assert.Equal(t, "crossroads", e.CurrentView().SceneID)
}

func TestAdvanceWithoutNext(t *testing.T) {
	e := newTestEngine(t)
	require.NoError(t, e.SelectMode(context.Background(), models.ModeStandard))
	require.NoError(t, e.Advance(context.Background()))

	// crossroads branches; it has no linear continuation.
	err := e.Advance(context.Background())
	require.Error(t, err)
	assert.True(t, apperrors.IsValidationError(err))
	assert.Equal(t, "crossroads", e.CurrentView().SceneID)
}

func TestChooseOptionAppliesEffectThenNavigates(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()
	require.NoError(t, e.SelectMode(ctx, models.ModeStandard))
	require.NoError(t, e.Advance(ctx))

	require.NoError(t, e.ChooseOption(ctx, 0))

	stats := e.StatsSnapshot()
	assert.Equal(t, 6.0, stats["trust"])
	// "mystery" is not a declared stat; the delta must not invent it.
	_, invented := stats["mystery"]
	assert.False(t, invented)

	assert.Equal(t, "hut", e.CurrentView().SceneID)
	assert.Equal(t, "marie", e.CurrentChatTarget())
}

func TestChooseOptionBadIndex(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()
	require.NoError(t, e.SelectMode(ctx, models.ModeStandard))
	require.NoError(t, e.Advance(ctx))

	for _, index := range []int{-1, 2} {
		err := e.ChooseOption(ctx, index)
		require.Error(t, err)
		assert.True(t, apperrors.IsValidationError(err))
	}
	assert.Equal(t, "crossroads", e.CurrentView().SceneID)
	assert.Equal(t, 5.0, e.StatsSnapshot()["trust"])
}

func TestEnterSceneUnknownKeepsCurrent(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()
	require.NoError(t, e.SelectMode(ctx, models.ModeStandard))

	err := e.EnterScene(ctx, "cellar")
	require.Error(t, err)
	assert.True(t, apperrors.IsSceneNotFoundError(err))
	assert.Equal(t, "intro", e.CurrentView().SceneID)
}

func TestEventInterludeDefersScene(t *testing.T) {
	rng := rand.New(fixedSource{0})
	e := newTestEngine(t, WithRand(rng))
	ctx := context.Background()

	require.NoError(t, e.SelectMode(ctx, models.ModeExtended))
	require.NoError(t, e.Advance(ctx))
	require.NoError(t, e.ChooseOption(ctx, 0))

	view := e.CurrentView()
	assert.True(t, view.IsEvent)
	assert.Equal(t, "evt_storm", view.SceneID)
	assert.Equal(t, "oracle", view.Persona.ID)
	assert.True(t, view.HasNext)
	assert.Equal(t, 1, e.EventsRemaining())

	// Resuming draws again: the pool still has one event and every draw
	// fires with this source.
	require.NoError(t, e.Advance(ctx))
	assert.Equal(t, "evt_wolf", e.CurrentView().SceneID)
	assert.Zero(t, e.EventsRemaining())

	// Pool exhausted: the deferred scene finally plays.
	require.NoError(t, e.Advance(ctx))
	view = e.CurrentView()
	assert.Equal(t, "hut", view.SceneID)
	assert.False(t, view.IsEvent)
}

func TestNoEventsInStandardMode(t *testing.T) {
	rng := rand.New(fixedSource{0})
	e := newTestEngine(t, WithRand(rng))
	ctx := context.Background()

	require.NoError(t, e.SelectMode(ctx, models.ModeStandard))
	require.NoError(t, e.Advance(ctx))
	require.NoError(t, e.ChooseOption(ctx, 0))

	assert.Equal(t, "hut", e.CurrentView().SceneID)
	assert.Equal(t, 2, e.EventsRemaining())
}

func TestEventSkippedWhenDrawMisses(t *testing.T) {
	// Float64 yields 0.5, above the default 0.35 chance.
	rng := rand.New(fixedSource{1 << 62})
	e := newTestEngine(t, WithRand(rng))
	ctx := context.Background()

	require.NoError(t, e.SelectMode(ctx, models.ModeExtended))
	require.NoError(t, e.Advance(ctx))
	require.NoError(t, e.ChooseOption(ctx, 0))

	assert.Equal(t, "hut", e.CurrentView().SceneID)
	assert.Equal(t, 2, e.EventsRemaining())
}

func TestSetEventChanceRetunesDraws(t *testing.T) {
	rng := rand.New(fixedSource{1 << 62})
	e := newTestEngine(t, WithRand(rng), WithEventChance(0.1))
	ctx := context.Background()

	require.NoError(t, e.SelectMode(ctx, models.ModeExtended))
	require.NoError(t, e.Advance(ctx))
	require.NoError(t, e.ChooseOption(ctx, 0))
	assert.Equal(t, "hut", e.CurrentView().SceneID)

	// Out-of-range values are ignored.
	e.SetEventChance(1.5)
	e.SetEventChance(0.75)

	require.NoError(t, e.EnterScene(ctx, "hut"))
	assert.True(t, e.CurrentView().IsEvent)
}

func TestSelectModeRefreshesEventPool(t *testing.T) {
	rng := rand.New(fixedSource{0})
	e := newTestEngine(t, WithRand(rng))
	ctx := context.Background()

	// Drain the pool: every eligible transition draws with this source.
	require.NoError(t, e.SelectMode(ctx, models.ModeExtended))
	require.NoError(t, e.Advance(ctx))
	require.NoError(t, e.ChooseOption(ctx, 0))
	require.NoError(t, e.Advance(ctx))
	require.NoError(t, e.Advance(ctx))
	require.Zero(t, e.EventsRemaining())

	// A restarted session gets the full pool back, like the stats and the
	// chat histories.
	require.NoError(t, e.SelectMode(ctx, models.ModeExtended))
	assert.Equal(t, 2, e.EventsRemaining())
	assert.Equal(t, "intro", e.CurrentView().SceneID)
}

func TestIntroIssuedOncePerPersona(t *testing.T) {
	sessions := NewSessionStore()
	e := New(testScenario(), testPersonas(), testWorld(), sessions)
	converser := &stubConverser{sessions: sessions}
	e.SetConverser(converser)
	ctx := context.Background()

	require.NoError(t, e.SelectMode(ctx, models.ModeStandard))
	require.NoError(t, e.Advance(ctx))
	require.NoError(t, e.ChooseOption(ctx, 0))

	require.Len(t, converser.calls, 1)
	assert.Equal(t, recordedIntro{personaID: "marie", prompt: "Greet the class"}, converser.calls[0])

	// Re-entering the scene must not re-introduce: the history is no
	// longer empty.
	require.NoError(t, e.EnterScene(ctx, "hut"))
	assert.Len(t, converser.calls, 1)
}

func TestFocusAndUnfocus(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()
	require.NoError(t, e.SelectMode(ctx, models.ModeStandard))
	require.NoError(t, e.Advance(ctx))
	require.NoError(t, e.ChooseOption(ctx, 0))
	require.Equal(t, "marie", e.CurrentChatTarget())

	require.NoError(t, e.FocusPersona("paul"))
	assert.Equal(t, "paul", e.CurrentChatTarget())

	// The scene directive belongs to the scene's own persona only.
	assert.Empty(t, e.SceneDirectiveFor("paul"))
	assert.Equal(t, "Greet the class", e.SceneDirectiveFor("marie"))

	e.UnfocusPersona()
	assert.Equal(t, "marie", e.CurrentChatTarget())

	err := e.FocusPersona("ghost")
	require.Error(t, err)
	assert.True(t, apperrors.IsValidationError(err))
}

func TestNotifierReceivesSceneAndStateEvents(t *testing.T) {
	notifier := &recordingNotifier{}
	e := newTestEngine(t, WithNotifier(notifier))
	ctx := context.Background()

	require.NoError(t, e.SelectMode(ctx, models.ModeStandard))
	require.NoError(t, e.Advance(ctx))
	require.NoError(t, e.ChooseOption(ctx, 1))

	require.Len(t, notifier.scenes, 3)
	assert.Equal(t, "hut", notifier.scenes[2].SceneID)

	require.Len(t, notifier.stats, 1)
	assert.Equal(t, 2.0, notifier.stats[0]["courage"])
}

func TestTerminalSceneView(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()
	require.NoError(t, e.SelectMode(ctx, models.ModeStandard))

	require.NoError(t, e.EnterScene(ctx, "end"))
	view := e.CurrentView()
	assert.True(t, view.Terminal)
	assert.False(t, view.HasNext)
}
