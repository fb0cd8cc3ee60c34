package repositories

import (
	"context"

	"github.com/cdichat/voicebridge/domain/entities"
)

// Engine error codes surfaced through RecognizerEvents.OnError.
const (
	ErrCodeAborted  = "aborted"
	ErrCodeNoSpeech = "no-speech"
	ErrCodeNetwork  = "network"
)

// RecognizerConfig configures a continuous recognition stream
type RecognizerConfig struct {
	Language        string
	Continuous      bool
	InterimResults  bool
	MaxAlternatives int
}

// RecognizerEvents are the lifecycle callback slots of a speech engine.
// Nil slots are skipped by implementations.
type RecognizerEvents struct {
	OnStart       func()
	OnEnd         func()
	OnError       func(code string)
	OnSpeechStart func()
	OnSpeechEnd   func()
	OnResult      func(results []entities.RecognitionResult)
}

// SpeechRecognizer is the narrow capability interface over a
// platform speech-recognition engine. Start and Stop request state
// transitions whose completion is signaled through the event slots;
// neither blocks on the engine.
type SpeechRecognizer interface {
	Configure(config RecognizerConfig, events RecognizerEvents) error
	Start(ctx context.Context) error
	Stop() error
}

// AudioStreamer is implemented by recognizers that consume audio
// pushed from a client connection rather than a local microphone.
type AudioStreamer interface {
	Feed(data []byte) error
}
