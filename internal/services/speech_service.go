// internal/services/speech_service.go
package services

import (
	"context"
	"regexp"
	"strings"

	"github.com/fablier/fablier/internal/config"
	apperrors "github.com/fablier/fablier/internal/errors"
	"github.com/fablier/fablier/internal/models"
	"github.com/fablier/fablier/internal/relay"
	"github.com/fablier/fablier/internal/utils"
)

// stageDirections matches *bracketed* stage-direction markup the personas
// emit, which must not be spoken aloud.
var stageDirections = regexp.MustCompile(`\*[^*]+\*`)

// DefaultVoice is used when a persona declares none.
const DefaultVoice = "alloy"

// SpeechService turns persona replies into audio via the relay's TTS
// endpoint. Failures are logged and reported as SynthesisError; they never
// interrupt chat rendering.
type SpeechService struct {
	Relay relay.Client

	logger *utils.Logger
}

// NewSpeechService creates the speech gateway.
func NewSpeechService(relayClient relay.Client) *SpeechService {
	return &SpeechService{
		Relay:  relayClient,
		logger: utils.GetLogger(),
	}
}

// Speak synthesizes text in the persona's voice. Stage directions are
// stripped first; a text that is empty after cleaning, or a disabled TTS
// toggle, yields a silent no-op (nil payload, nil error).
func (s *SpeechService) Speak(ctx context.Context, text string, persona *models.Persona) ([]byte, error) {
	cfg := config.GetCurrentConfig()
	if !cfg.TTSEnabled {
		return nil, nil
	}

	clean := strings.TrimSpace(stageDirections.ReplaceAllString(text, ""))
	if clean == "" {
		return nil, nil
	}

	voice := DefaultVoice
	if persona != nil && persona.Voice != "" {
		voice = persona.Voice
	}

	audio, err := s.Relay.Synthesize(ctx, clean, voice, cfg.TTSModel, "mp3")
	if err != nil {
		s.logger.Warnf("speech synthesis failed: %v", err)
		return nil, apperrors.NewSynthesisError("speech synthesis failed", err)
	}

	return audio, nil
}

// CleanForSpeech exposes the stripping rule for callers that preview text.
func CleanForSpeech(text string) string {
	return strings.TrimSpace(stageDirections.ReplaceAllString(text, ""))
}
