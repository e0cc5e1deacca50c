// internal/services/export_service.go
package services

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/fablier/fablier/internal/config"
	"github.com/fablier/fablier/internal/engine"
	apperrors "github.com/fablier/fablier/internal/errors"
	"github.com/fablier/fablier/internal/models"
	"github.com/fablier/fablier/internal/relay"
	"github.com/fablier/fablier/internal/storage"
	"github.com/fablier/fablier/internal/utils"
)

// ExportService builds the end-of-session transcript and ships it: always
// to the remote save endpoint, and additionally to the local sqlite archive
// when the memory backend is enabled. Nothing is queued or retried; a
// failed upload surfaces to the facilitator.
type ExportService struct {
	Relay    relay.Client
	Sessions *engine.SessionStore
	Engine   *engine.Engine
	Archive  *storage.Archive // nil when the memory backend is disabled

	logger *utils.Logger
}

// NewExportService wires the export path.
func NewExportService(relayClient relay.Client, sessions *engine.SessionStore, eng *engine.Engine, archive *storage.Archive) *ExportService {
	return &ExportService{
		Relay:    relayClient,
		Sessions: sessions,
		Engine:   eng,
		Archive:  archive,
		logger:   utils.GetLogger(),
	}
}

// BuildTranscript snapshots the session: date, stat map, every persona's
// history.
func (s *ExportService) BuildTranscript() *models.SessionTranscript {
	return &models.SessionTranscript{
		Date:     time.Now().UTC(),
		State:    s.Engine.StatsSnapshot(),
		Sessions: s.Sessions.Snapshot(),
	}
}

// Save exports the transcript and returns the session id it was filed
// under. The local archive (when enabled) is written first, so a failed
// upload still leaves a copy the facilitator can recover.
func (s *ExportService) Save(ctx context.Context) (string, error) {
	transcript := s.BuildTranscript()

	payload, err := json.MarshalIndent(transcript, "", "  ")
	if err != nil {
		return "", apperrors.NewProcessingError("failed to serialize transcript", err)
	}

	cfg := config.GetCurrentConfig()
	sessionID := fmt.Sprintf("%s-log-%d", s.Engine.ScenarioID(), time.Now().UnixMilli())

	if s.Archive != nil {
		entry := storage.ArchiveEntry{
			ID:      sessionID,
			ClassID: cfg.ClassID,
			UserID:  cfg.FacilitatorID,
			Payload: string(payload),
		}
		if err := s.Archive.Save(ctx, entry); err != nil {
			s.logger.Warnf("local transcript archive failed: %v", err)
		}
	}

	req := relay.SaveRequest{
		SessionID:  sessionID,
		Transcript: string(payload),
		ClassID:    cfg.ClassID,
		UserID:     cfg.FacilitatorID,
	}
	if err := s.Relay.SaveTranscript(ctx, req); err != nil {
		return sessionID, apperrors.NewProcessingError("failed to upload transcript", err)
	}

	s.logger.Infof("transcript exported: %s", sessionID)
	return sessionID, nil
}

// RecentArchives lists locally archived transcripts, newest first.
func (s *ExportService) RecentArchives(ctx context.Context, n int) ([]storage.ArchiveEntry, error) {
	if s.Archive == nil {
		return nil, apperrors.NewValidationError("memory backend is disabled", nil)
	}
	return s.Archive.Recent(ctx, n)
}
