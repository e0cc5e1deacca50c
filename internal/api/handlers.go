// internal/api/handlers.go
package api

import (
	"net/http"
	"sort"

	"github.com/fablier/fablier/internal/config"
	"github.com/fablier/fablier/internal/engine"
	"github.com/fablier/fablier/internal/models"
	"github.com/fablier/fablier/internal/services"
	"github.com/fablier/fablier/internal/utils"
	"github.com/gin-gonic/gin"
)

// Handler carries the service dependencies for all HTTP endpoints.
type Handler struct {
	Engine       *engine.Engine
	Conversation *services.ConversationService
	Speech       *services.SpeechService
	Export       *services.ExportService
	Personas     models.PersonaRegistry
	Sessions     *engine.SessionStore
	Hub          *StageHub

	Response *ResponseHelper
	logger   *utils.Logger
}

// NewHandler creates the handler set.
func NewHandler(
	eng *engine.Engine,
	conversation *services.ConversationService,
	speech *services.SpeechService,
	export *services.ExportService,
	personas models.PersonaRegistry,
	sessions *engine.SessionStore,
	hub *StageHub,
) *Handler {
	return &Handler{
		Engine:       eng,
		Conversation: conversation,
		Speech:       speech,
		Export:       export,
		Personas:     personas,
		Sessions:     sessions,
		Hub:          hub,
		Response:     NewResponseHelper(),
		logger:       utils.GetLogger(),
	}
}

// Healthz reports liveness plus a few cheap session facts.
func (h *Handler) Healthz(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "ok",
		"title":  h.Engine.Title(),
		"mode":   h.Engine.Mode(),
		"stage":  h.Hub.Status(),
	})
}

// GetSession returns the full projection state: mode, active scene view,
// stats, chat target.
func (h *Handler) GetSession(c *gin.Context) {
	h.Response.Success(c, gin.H{
		"title":            h.Engine.Title(),
		"mode":             h.Engine.Mode(),
		"scene":            h.Engine.CurrentView(),
		"stats":            h.Engine.StatsSnapshot(),
		"chat_target":      h.Engine.CurrentChatTarget(),
		"events_remaining": h.Engine.EventsRemaining(),
	})
}

// SelectModeRequest starts a session.
type SelectModeRequest struct {
	Mode string `json:"mode" binding:"required"`
}

// SelectMode starts (or restarts) a session in the given mode.
func (h *Handler) SelectMode(c *gin.Context) {
	var req SelectModeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.Response.BadRequest(c, "invalid request body", err.Error())
		return
	}

	if err := h.Engine.SelectMode(c.Request.Context(), req.Mode); err != nil {
		h.Response.AppError(c, err)
		return
	}

	h.Response.Success(c, gin.H{
		"mode":  h.Engine.Mode(),
		"scene": h.Engine.CurrentView(),
	}, "session started")
}

// Advance follows the active scene's next pointer.
func (h *Handler) Advance(c *gin.Context) {
	if err := h.Engine.Advance(c.Request.Context()); err != nil {
		h.Response.AppError(c, err)
		return
	}

	h.Response.Success(c, gin.H{"scene": h.Engine.CurrentView()})
}

// ChooseOptionRequest picks a branching choice by position.
type ChooseOptionRequest struct {
	Index *int `json:"index" binding:"required"`
}

// ChooseOption applies a choice's effect and navigates to its target.
func (h *Handler) ChooseOption(c *gin.Context) {
	var req ChooseOptionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.Response.BadRequest(c, "invalid request body", err.Error())
		return
	}

	if err := h.Engine.ChooseOption(c.Request.Context(), *req.Index); err != nil {
		h.Response.AppError(c, err)
		return
	}

	h.Response.Success(c, gin.H{
		"scene": h.Engine.CurrentView(),
		"stats": h.Engine.StatsSnapshot(),
	})
}

// SendMessageRequest carries one facilitator utterance.
type SendMessageRequest struct {
	Text string `json:"text" binding:"required"`
}

// SendMessage routes the facilitator's message to the current chat target.
func (h *Handler) SendMessage(c *gin.Context) {
	var req SendMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.Response.BadRequest(c, "invalid request body", err.Error())
		return
	}

	reply, err := h.Conversation.Converse(c.Request.Context(), req.Text)
	if err != nil {
		h.Response.AppError(c, err)
		return
	}

	h.Response.Success(c, gin.H{
		"persona_id": h.Engine.CurrentChatTarget(),
		"reply":      reply,
	})
}

// FocusPersonaRequest retargets the chat.
type FocusPersonaRequest struct {
	PersonaID string `json:"persona_id" binding:"required"`
}

// FocusPersona opens a side conversation with a roster persona.
func (h *Handler) FocusPersona(c *gin.Context) {
	var req FocusPersonaRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.Response.BadRequest(c, "invalid request body", err.Error())
		return
	}

	if err := h.Engine.FocusPersona(req.PersonaID); err != nil {
		h.Response.AppError(c, err)
		return
	}

	h.Response.Success(c, gin.H{"chat_target": req.PersonaID})
}

// UnfocusPersona restores the chat target to the active scene's persona.
func (h *Handler) UnfocusPersona(c *gin.Context) {
	h.Engine.UnfocusPersona()
	h.Response.Success(c, gin.H{"chat_target": h.Engine.CurrentChatTarget()})
}

// GetPersonas returns the roster, sorted by id for a stable order.
func (h *Handler) GetPersonas(c *gin.Context) {
	ids := h.Personas.IDs()
	sort.Strings(ids)

	roster := make([]*models.Persona, 0, len(ids))
	for _, id := range ids {
		roster = append(roster, h.Personas[id])
	}

	h.Response.Success(c, gin.H{"personas": roster})
}

// GetHistory returns one persona's ordered chat history.
func (h *Handler) GetHistory(c *gin.Context) {
	personaID := c.Param("id")
	if _, ok := h.Personas[personaID]; !ok {
		h.Response.NotFound(c, ErrorPersonaNotFound, "unknown persona "+personaID)
		return
	}

	h.Response.Success(c, gin.H{
		"persona_id": personaID,
		"messages":   h.Sessions.HistoryOf(personaID),
	})
}

// SpeechRequest asks for audio of a persona reply.
type SpeechRequest struct {
	Text      string `json:"text" binding:"required"`
	PersonaID string `json:"persona_id"`
}

// SynthesizeSpeech renders a reply in the persona's voice and streams the
// audio back. A no-op synthesis (TTS off, or nothing left after stripping
// stage directions) answers 204.
func (h *Handler) SynthesizeSpeech(c *gin.Context) {
	var req SpeechRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.Response.BadRequest(c, "invalid request body", err.Error())
		return
	}

	var persona *models.Persona
	if req.PersonaID != "" {
		p, ok := h.Personas[req.PersonaID]
		if !ok {
			h.Response.NotFound(c, ErrorPersonaNotFound, "unknown persona "+req.PersonaID)
			return
		}
		persona = p
	}

	audio, err := h.Speech.Speak(c.Request.Context(), req.Text, persona)
	if err != nil {
		h.Response.AppError(c, err)
		return
	}
	if audio == nil {
		c.Status(http.StatusNoContent)
		return
	}

	c.Data(http.StatusOK, "audio/mpeg", audio)
}

// ExportSession builds the transcript and ships it to the save endpoint.
func (h *Handler) ExportSession(c *gin.Context) {
	sessionID, err := h.Export.Save(c.Request.Context())
	if err != nil {
		h.Response.Error(c, http.StatusBadGateway, ErrorExportFailed, err.Error())
		return
	}

	h.Response.Success(c, gin.H{"session_id": sessionID}, "transcript exported")
}

// GetArchive lists locally archived transcripts, newest first.
func (h *Handler) GetArchive(c *gin.Context) {
	entries, err := h.Export.RecentArchives(c.Request.Context(), 20)
	if err != nil {
		h.Response.Error(c, http.StatusBadRequest, ErrorArchiveDisabled, err.Error())
		return
	}

	h.Response.Success(c, gin.H{"transcripts": entries})
}

// GetSettings returns the facilitator-tunable settings.
func (h *Handler) GetSettings(c *gin.Context) {
	cfg := config.GetCurrentConfig()
	h.Response.Success(c, gin.H{
		"default_model":  cfg.DefaultModel,
		"tts_enabled":    cfg.TTSEnabled,
		"tts_model":      cfg.TTSModel,
		"event_chance":   cfg.EventChance,
		"memory_enabled": cfg.MemoryEnabled,
	})
}

// UpdateSettingsRequest carries the tunable settings.
type UpdateSettingsRequest struct {
	DefaultModel string  `json:"default_model"`
	TTSEnabled   bool    `json:"tts_enabled"`
	EventChance  float64 `json:"event_chance"`
}

// UpdateSettings persists facilitator-tunable settings and applies the event
// probability to the running engine.
func (h *Handler) UpdateSettings(c *gin.Context) {
	var req UpdateSettingsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.Response.BadRequest(c, "invalid request body", err.Error())
		return
	}

	if err := config.UpdateTunables(req.DefaultModel, req.TTSEnabled, req.EventChance); err != nil {
		h.Response.InternalError(c, "failed to save settings", err.Error())
		return
	}
	h.Engine.SetEventChance(req.EventChance)

	cfg := config.GetCurrentConfig()
	h.Response.Success(c, gin.H{
		"default_model": cfg.DefaultModel,
		"tts_enabled":   cfg.TTSEnabled,
		"event_chance":  cfg.EventChance,
	}, "settings updated")
}
