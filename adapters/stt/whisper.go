package stt

import (
	"bytes"
	"context"
	"fmt"
	"os"

	openai "github.com/sashabaranov/go-openai"
	"go.uber.org/zap"

	"github.com/cdichat/voicebridge/domain/repositories"
)

const whisperModel = openai.Whisper1

// WhisperTranscriber implements SpeechToText for one-shot audio clips
// using the OpenAI Whisper API. It covers the upload path, where the
// full recording is already available, as opposed to the streaming
// recognizer used for live sessions.
type WhisperTranscriber struct {
	client *openai.Client
	logger *zap.Logger
}

var _ repositories.SpeechToText = (*WhisperTranscriber)(nil)

// NewWhisperTranscriber creates a transcriber with the given API key.
// The key falls back to OPENAI_API_KEY when empty.
func NewWhisperTranscriber(apiKey string, logger *zap.Logger) (*WhisperTranscriber, error) {
	if apiKey == "" {
		apiKey = os.Getenv("OPENAI_API_KEY")
	}
	if apiKey == "" {
		return nil, fmt.Errorf("whisper transcriber requires an API key")
	}
	return &WhisperTranscriber{
		client: openai.NewClient(apiKey),
		logger: logger,
	}, nil
}

// TranscribeAudio implements repositories.SpeechToText
func (w *WhisperTranscriber) TranscribeAudio(ctx context.Context, audioData []byte, config repositories.AudioConfig) (string, error) {
	if len(audioData) == 0 {
		return "", fmt.Errorf("audio data is empty")
	}

	filename := config.Filename
	if filename == "" {
		filename = "audio.webm"
	}

	resp, err := w.client.CreateTranscription(ctx, openai.AudioRequest{
		Model:    whisperModel,
		FilePath: filename,
		Reader:   bytes.NewReader(audioData),
		Language: config.Language,
	})
	if err != nil {
		return "", fmt.Errorf("failed to transcribe audio: %w", err)
	}

	w.logger.Debug("Transcribed audio clip",
		zap.Int("bytes", len(audioData)),
		zap.Int("transcript_length", len(resp.Text)))

	return resp.Text, nil
}
