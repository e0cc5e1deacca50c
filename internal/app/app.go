// internal/app/app.go
package app

import (
	"fmt"
	"path/filepath"

	"github.com/fablier/fablier/internal/config"
	"github.com/fablier/fablier/internal/di"
	"github.com/fablier/fablier/internal/engine"
	"github.com/fablier/fablier/internal/relay"
	"github.com/fablier/fablier/internal/services"
	"github.com/fablier/fablier/internal/storage"
	"github.com/fablier/fablier/internal/utils"
)

// InitServices builds the full service graph for one scenario and registers
// everything in the container. Startup is fail-fast: a broken scenario
// bundle aborts here, before the server binds.
func InitServices(cfg *config.Config) error {
	logger := utils.GetLogger()
	container := di.GetContainer()

	fileStore, err := storage.NewFileStore(cfg.DataDir)
	if err != nil {
		return fmt.Errorf("failed to initialize file storage: %w", err)
	}

	// The scenario directory is relative to the file store's base.
	bundle, err := storage.LoadBundle(fileStore, cfg.Scenario)
	if err != nil {
		return err
	}
	logger.Infof("scenario loaded: %s (%d scenes, %d personas, %d events)",
		bundle.Scenario.Meta.Title, len(bundle.Scenario.Scenes), len(bundle.Personas), len(bundle.World.RandomEvents))

	sessions := engine.NewSessionStore()
	sessions.Reset(bundle.Personas.IDs())

	relayClient := relay.NewHTTPClient(cfg.RelayAPIBase)

	eng := engine.New(bundle.Scenario, bundle.Personas, bundle.World, sessions,
		engine.WithEventChance(cfg.EventChance))

	conversation := services.NewConversationService(relayClient, sessions, bundle.Personas, eng, nil)
	eng.SetConverser(conversation)

	speech := services.NewSpeechService(relayClient)

	var archive *storage.Archive
	if cfg.MemoryEnabled {
		archive, err = storage.OpenArchive(filepath.Join(cfg.DataDir, "archive.db"))
		if err != nil {
			return fmt.Errorf("failed to open transcript archive: %w", err)
		}
		logger.Infof("transcript archive enabled")
	}

	export := services.NewExportService(relayClient, sessions, eng, archive)

	container.Register("storage", fileStore)
	container.Register("bundle", bundle)
	container.Register("personas", bundle.Personas)
	container.Register("sessions", sessions)
	container.Register("relay", relayClient)
	container.Register("engine", eng)
	container.Register("conversation", conversation)
	container.Register("speech", speech)
	container.Register("export", export)

	logger.Infof("services initialized: %v", container.GetNames())
	return nil
}

// Shutdown releases resources held by registered services.
func Shutdown() {
	container := di.GetContainer()

	if export, ok := container.Get("export").(*services.ExportService); ok && export.Archive != nil {
		if err := export.Archive.Close(); err != nil {
			utils.GetLogger().Warnf("failed to close transcript archive: %v", err)
		}
	}
}
