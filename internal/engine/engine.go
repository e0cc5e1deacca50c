// internal/engine/engine.go
package engine

import (
	"context"
	"fmt"
	"math/rand"
	"strings"
	"sync"
	"time"

	apperrors "github.com/fablier/fablier/internal/errors"
	"github.com/fablier/fablier/internal/models"
	"github.com/fablier/fablier/internal/utils"
)

// Converser issues the automatic assistant turn when a persona-bound scene
// is entered for the first time. Implemented by the conversation service;
// declared here so the engine stays independent of the gateway.
type Converser interface {
	IntroTurn(ctx context.Context, personaID, prompt string) error
}

// Engine is the scene state machine. It owns the session's entire mutable
// state: current scene, chat target, stat map and the consumable event pool.
// All of it is reached only through the engine's operations, never through
// package globals.
type Engine struct {
	mu sync.Mutex

	scenario   *models.Scenario
	personas   models.PersonaRegistry
	narratorID string

	sessions  *SessionStore
	notifier  Notifier
	converser Converser
	logger    *utils.Logger

	rng         *rand.Rand
	eventChance float64
	worldEvents []*models.RandomEvent // immutable startup pool
	eventPool   []*models.RandomEvent // session-scoped, consumed on draw

	// EngineContext: transient, owned exclusively by the engine.
	mode       string
	current    *models.SceneNode
	currentEvt bool
	chatTarget string
	stats      map[string]float64
}

// Option configures an Engine.
type Option func(*Engine)

// WithRand injects the random source. Tests pass a seeded one.
func WithRand(rng *rand.Rand) Option {
	return func(e *Engine) { e.rng = rng }
}

// WithEventChance overrides the event interlude probability.
func WithEventChance(chance float64) Option {
	return func(e *Engine) {
		if chance > 0 && chance < 1 {
			e.eventChance = chance
		}
	}
}

// WithNotifier attaches the rendering event sink.
func WithNotifier(n Notifier) Option {
	return func(e *Engine) { e.notifier = n }
}

// New creates an engine over a validated startup bundle. The engine starts
// uninitialized; nothing moves until SelectMode.
func New(scenario *models.Scenario, personas models.PersonaRegistry, world *models.WorldData, sessions *SessionStore, opts ...Option) *Engine {
	e := &Engine{
		scenario:    scenario,
		personas:    personas,
		narratorID:  world.NarratorID(),
		sessions:    sessions,
		notifier:    NopNotifier{},
		logger:      utils.GetLogger(),
		rng:         rand.New(rand.NewSource(time.Now().UnixNano())),
		eventChance: 0.35,
	}
	// The world's pool is immutable startup data; the engine consumes a
	// session-scoped copy, refreshed on every mode selection.
	e.worldEvents = world.RandomEvents
	e.eventPool = append([]*models.RandomEvent(nil), e.worldEvents...)

	for _, opt := range opts {
		opt(e)
	}
	return e
}

// SetConverser wires the conversation service in after construction (the
// service needs the engine for context assembly, so wiring is two-phase).
func (e *Engine) SetConverser(c Converser) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.converser = c
}

// SetNotifier replaces the rendering event sink.
func (e *Engine) SetNotifier(n Notifier) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if n == nil {
		n = NopNotifier{}
	}
	e.notifier = n
}

// introCall captures a pending automatic assistant turn; it is issued after
// the engine lock is released so the gateway can read engine state freely.
type introCall struct {
	personaID string
	prompt    string
}

// SelectMode starts a session: stats from the scenario declaration, fresh
// empty chat histories for every persona, then the declared start scene.
func (e *Engine) SelectMode(ctx context.Context, mode string) error {
	if !models.ValidMode(mode) {
		return apperrors.NewValidationError(fmt.Sprintf("unknown session mode %q", mode), nil)
	}

	e.mu.Lock()
	e.mode = mode
	e.stats = make(map[string]float64, len(e.scenario.State))
	for k, v := range e.scenario.State {
		e.stats[k] = v
	}
	e.eventPool = append([]*models.RandomEvent(nil), e.worldEvents...)
	e.sessions.Reset(e.personas.IDs())
	start := e.scenario.Start
	e.mu.Unlock()

	e.logger.Infof("session started: mode=%s start=%s", mode, start)
	return e.EnterScene(ctx, start)
}

// EnterScene transitions to a scene by id, possibly deferring it behind a
// randomized event interlude. On SceneNotFoundError the session stays on the
// prior scene.
func (e *Engine) EnterScene(ctx context.Context, sceneID string) error {
	e.mu.Lock()
	if e.mode == "" {
		e.mu.Unlock()
		return apperrors.NewValidationError("no session mode selected", nil)
	}

	scene, ok := e.scenario.Scenes[sceneID]
	if !ok {
		e.mu.Unlock()
		return apperrors.NewSceneNotFoundError(fmt.Sprintf("scene %q not found", sceneID), nil)
	}

	var (
		view  *models.SceneView
		intro *introCall
	)

	if evt := e.drawEventLocked(sceneID, scene); evt != nil {
		node := synthesizeEventScene(evt, e.narratorID, sceneID)
		view, intro = e.activateLocked(node, true)
		e.logger.Infof("event interlude %s deferred scene %s", evt.ID, sceneID)
	} else {
		view, intro = e.activateLocked(scene, false)
	}
	notifier := e.notifier
	converser := e.converser
	e.mu.Unlock()

	notifier.SceneChanged(view)

	if intro != nil && converser != nil {
		// The intro failing is a conversation problem, not a navigation
		// one: the scene is already active, the error shows inline.
		if err := converser.IntroTurn(ctx, intro.personaID, intro.prompt); err != nil {
			e.logger.Warnf("intro turn for %s failed: %v", intro.personaID, err)
		}
	}

	return nil
}

// drawEventLocked applies the random-event gate for a transition into
// sceneID. Returns the consumed event, or nil to fall through.
func (e *Engine) drawEventLocked(sceneID string, scene *models.SceneNode) *models.RandomEvent {
	if e.mode != models.ModeExtended {
		return nil
	}
	if !scene.AllowEvents || strings.HasPrefix(sceneID, models.EventScenePrefix) {
		return nil
	}
	if len(e.eventPool) == 0 {
		return nil
	}
	if e.rng.Float64() >= e.eventChance {
		return nil
	}

	// Uniform draw without replacement: no event plays twice per session.
	idx := e.rng.Intn(len(e.eventPool))
	evt := e.eventPool[idx]
	e.eventPool = append(e.eventPool[:idx], e.eventPool[idx+1:]...)
	return evt
}

// synthesizeEventScene builds the transient interlude node. The requested
// scene is preserved as the resume target; interludes never chain.
func synthesizeEventScene(evt *models.RandomEvent, narratorID, resumeID string) *models.SceneNode {
	return &models.SceneNode{
		ID:         evt.ID,
		Type:       models.SceneChat,
		Background: evt.Background,
		PersonaID:  narratorID,
		Prompt:     evt.Prompt,
		Content: &models.NarrativePanel{
			Title: evt.Title,
			Text:  evt.Text,
		},
		Next:        resumeID,
		AllowEvents: false,
		TeacherNote: "Event! Ask the class to react before moving on.",
	}
}

// activateLocked makes a node current, retargets the chat, and reports the
// intro turn to issue, if any.
func (e *Engine) activateLocked(scene *models.SceneNode, isEvent bool) (*models.SceneView, *introCall) {
	e.current = scene
	e.currentEvt = isEvent
	e.chatTarget = scene.PersonaID

	var intro *introCall
	if scene.PersonaID != "" {
		e.sessions.Ensure(scene.PersonaID)
		if scene.Prompt != "" && e.sessions.Len(scene.PersonaID) == 0 {
			intro = &introCall{personaID: scene.PersonaID, prompt: scene.Prompt}
		}
	}

	return e.viewLocked(), intro
}

// ChooseOption applies a choice: effect first, navigation second, so the
// effect is visible to the target scene and never double-applied.
func (e *Engine) ChooseOption(ctx context.Context, index int) error {
	e.mu.Lock()
	if e.current == nil {
		e.mu.Unlock()
		return apperrors.NewValidationError("no active scene", nil)
	}
	if index < 0 || index >= len(e.current.Options) {
		e.mu.Unlock()
		return apperrors.NewValidationError(fmt.Sprintf("scene %q has no option %d", e.current.ID, index), nil)
	}
	opt := e.current.Options[index]

	e.applyEffectLocked(opt.Effect)
	stats := e.statsCopyLocked()
	notifier := e.notifier
	e.mu.Unlock()

	notifier.StateChanged(stats)

	return e.EnterScene(ctx, opt.Target)
}

// applyEffectLocked adds each delta to an existing stat key. Unknown keys
// are ignored, never created: a typo in scenario data cannot invent a stat.
func (e *Engine) applyEffectLocked(effect map[string]float64) {
	for key, delta := range effect {
		if _, ok := e.stats[key]; ok {
			e.stats[key] += delta
		}
	}
}

// Advance follows a linear scene's next pointer.
func (e *Engine) Advance(ctx context.Context) error {
	e.mu.Lock()
	if e.current == nil {
		e.mu.Unlock()
		return apperrors.NewValidationError("no active scene", nil)
	}
	if e.current.Next == "" {
		e.mu.Unlock()
		return apperrors.NewValidationError(fmt.Sprintf("scene %q has no next scene", e.current.ID), nil)
	}
	next := e.current.Next
	e.mu.Unlock()

	return e.EnterScene(ctx, next)
}

// FocusPersona retargets the chat to a roster persona without changing the
// current scene. Side-channel conversations run in parallel with the main
// narrative thread.
func (e *Engine) FocusPersona(personaID string) error {
	if _, ok := e.personas[personaID]; !ok {
		return apperrors.NewValidationError(fmt.Sprintf("unknown persona %q", personaID), nil)
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	e.sessions.Ensure(personaID)
	e.chatTarget = personaID
	return nil
}

// UnfocusPersona restores the chat target to the active scene's bound
// persona, or none.
func (e *Engine) UnfocusPersona() {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.current != nil {
		e.chatTarget = e.current.PersonaID
	} else {
		e.chatTarget = ""
	}
}

// SetEventChance retunes the event interlude probability mid-session.
// Out-of-range values are ignored.
func (e *Engine) SetEventChance(chance float64) {
	if chance <= 0 || chance >= 1 {
		return
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	e.eventChance = chance
}

// CurrentChatTarget returns the persona currently addressed, or "".
func (e *Engine) CurrentChatTarget() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.chatTarget
}

// SceneDirectiveFor returns the active scene's directive prompt when the
// given persona is the scene's own. Side-channel targets get none: a scene
// directive never leaks across personas.
func (e *Engine) SceneDirectiveFor(personaID string) string {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.current != nil && e.current.PersonaID == personaID {
		return e.current.Prompt
	}
	return ""
}

// StatsSnapshot returns a copy of the session stat map.
func (e *Engine) StatsSnapshot() map[string]float64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.statsCopyLocked()
}

func (e *Engine) statsCopyLocked() map[string]float64 {
	out := make(map[string]float64, len(e.stats))
	for k, v := range e.stats {
		out[k] = v
	}
	return out
}

// Mode returns the selected session mode, or "" before mode selection.
func (e *Engine) Mode() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.mode
}

// EventsRemaining reports the size of the unconsumed event pool.
func (e *Engine) EventsRemaining() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.eventPool)
}

// CurrentView returns the projection view of the active scene, or nil
// before the first transition.
func (e *Engine) CurrentView() *models.SceneView {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.current == nil {
		return nil
	}
	return e.viewLocked()
}

func (e *Engine) viewLocked() *models.SceneView {
	scene := e.current
	view := &models.SceneView{
		SceneID:     scene.ID,
		Type:        scene.Type,
		Background:  scene.Background,
		Video:       scene.Video,
		Content:     scene.Content,
		Options:     scene.Options,
		HasNext:     scene.Next != "",
		Terminal:    scene.IsTerminal(),
		TeacherNote: scene.TeacherNote,
		IsEvent:     e.currentEvt,
	}
	if scene.PersonaID != "" {
		view.Persona = e.personas[scene.PersonaID]
	}
	return view
}

// Title returns the scenario's display title for the mode selection screen.
func (e *Engine) Title() string {
	return e.scenario.Meta.Title
}

// ScenarioID returns a stable identifier for export session ids.
func (e *Engine) ScenarioID() string {
	if e.scenario.Meta.ID != "" {
		return e.scenario.Meta.ID
	}
	return "session"
}
