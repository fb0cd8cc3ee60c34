package usecase

import (
	"go.uber.org/zap"

	"github.com/cdichat/voicebridge/domain/entities"
	"github.com/cdichat/voicebridge/internal/bus"
)

// CommandCatalog returns the default command set as registered for a
// fresh session, in registration order. Used by the API to document
// the available commands without holding a live session.
func CommandCatalog(logger *zap.Logger) ([]entities.VoiceCommand, error) {
	registry := NewCommandRegistry()
	dispatcher := NewDispatcher(registry, logger)

	session, err := NewRecognitionSession(nil, dispatcher, SessionConfig{}, SessionNotifications{}, logger)
	if err != nil {
		return nil, err
	}

	control, err := NewVoiceControl(session, registry, dispatcher, nil, nil, bus.New(), ActionCallbacks{}, SpeechSettings{}, logger)
	if err != nil {
		return nil, err
	}
	defer control.Close()

	return control.Commands(), nil
}
