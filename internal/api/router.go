// internal/api/router.go
package api

import (
	"fmt"

	"github.com/fablier/fablier/internal/config"
	"github.com/fablier/fablier/internal/di"
	"github.com/fablier/fablier/internal/engine"
	"github.com/fablier/fablier/internal/models"
	"github.com/fablier/fablier/internal/services"
	"github.com/gin-gonic/gin"
)

// SetupRouter assembles the HTTP surface over services registered in the
// container, attaches the stage hub, and wires it in as the engine's
// notifier.
func SetupRouter() (*gin.Engine, error) {
	container := di.GetContainer()

	eng, ok := container.Get("engine").(*engine.Engine)
	if !ok {
		return nil, fmt.Errorf("engine not registered")
	}
	conversation, ok := container.Get("conversation").(*services.ConversationService)
	if !ok {
		return nil, fmt.Errorf("conversation service not registered")
	}
	speech, ok := container.Get("speech").(*services.SpeechService)
	if !ok {
		return nil, fmt.Errorf("speech service not registered")
	}
	export, ok := container.Get("export").(*services.ExportService)
	if !ok {
		return nil, fmt.Errorf("export service not registered")
	}
	personas, ok := container.Get("personas").(models.PersonaRegistry)
	if !ok {
		return nil, fmt.Errorf("persona registry not registered")
	}
	sessions, ok := container.Get("sessions").(*engine.SessionStore)
	if !ok {
		return nil, fmt.Errorf("session store not registered")
	}

	if !config.GetCurrentConfig().DebugMode {
		gin.SetMode(gin.ReleaseMode)
	}

	hub := NewStageHub()
	eng.SetNotifier(hub)
	conversation.Notifier = hub

	handler := NewHandler(eng, conversation, speech, export, personas, sessions, hub)

	r := gin.Default()
	r.Use(corsMiddleware())
	r.Use(requestIDMiddleware())

	r.GET("/healthz", handler.Healthz)
	r.GET("/ws/stage", hub.HandleConnection)

	apiGroup := r.Group("/api")
	{
		session := apiGroup.Group("/session")
		{
			session.GET("", handler.GetSession)
			session.POST("/mode", handler.SelectMode)
			session.POST("/advance", handler.Advance)
			session.POST("/option", handler.ChooseOption)
			session.POST("/message", ChatRateLimit(), handler.SendMessage)
			session.POST("/focus", handler.FocusPersona)
			session.POST("/unfocus", handler.UnfocusPersona)
		}

		apiGroup.GET("/personas", handler.GetPersonas)
		apiGroup.GET("/personas/:id/history", handler.GetHistory)

		apiGroup.POST("/speech", handler.SynthesizeSpeech)

		apiGroup.POST("/export", handler.ExportSession)
		apiGroup.GET("/export/archive", handler.GetArchive)

		apiGroup.GET("/settings", handler.GetSettings)
		apiGroup.POST("/settings", handler.UpdateSettings)
	}

	return r, nil
}
