package repositories

import "context"

// VoiceConfig selects the voice, playback speed and model for a
// synthesis request
type VoiceConfig struct {
	Voice string  `json:"voice"`
	Speed float64 `json:"speed"`
	Model string  `json:"model"`
}

// TextToSpeech abstracts a speech synthesis endpoint. The response is
// encoded audio (audio/mpeg) ready for playback.
type TextToSpeech interface {
	SynthesizeSpeech(ctx context.Context, text string, config VoiceConfig) ([]byte, error)
}

// AudioSink plays synthesized audio back to the user. For connected
// clients this is the WebSocket connection.
type AudioSink interface {
	Play(ctx context.Context, audio []byte) error
}
