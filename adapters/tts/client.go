package tts

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/cdichat/voicebridge/domain/repositories"
)

const (
	defaultVoice          = "alloy"
	defaultModel          = "tts-1"
	defaultSpeed          = 1.0
	defaultRequestTimeout = 60 * time.Second
)

// Config holds configuration for the speech synthesis client.
// Required fields:
// - BaseURL: the synthesis endpoint URL
// Optional fields with defaults:
// - APIKey: bearer token sent with every request
// - Voice: default voice when a request carries none (default "alloy")
// - Model: synthesis model (default "tts-1")
// - Timeout: HTTP timeout (default 60s)
type Config struct {
	BaseURL string
	APIKey  string
	Voice   string
	Model   string
	Timeout time.Duration
}

// Client implements the TextToSpeech interface against the hosted
// speech synthesis endpoint: POST {text, voice, speed, model}, response
// is raw audio/mpeg bytes on success or a JSON error payload.
type Client struct {
	baseURL    string
	apiKey     string
	voice      string
	model      string
	httpClient *http.Client
	logger     *zap.Logger
}

// Ensure Client implements the TextToSpeech interface
var _ repositories.TextToSpeech = (*Client)(nil)

type synthesisRequest struct {
	Text  string  `json:"text"`
	Voice string  `json:"voice"`
	Speed float64 `json:"speed"`
	Model string  `json:"model"`
}

type errorPayload struct {
	Error string `json:"error"`
}

// ValidateConfig validates the synthesis client configuration
func ValidateConfig(config Config) error {
	if config.BaseURL == "" {
		return fmt.Errorf("synthesis endpoint URL is required")
	}
	if config.Timeout < 0 {
		return fmt.Errorf("timeout must be positive, got %v", config.Timeout)
	}
	return nil
}

// NewClient creates a new speech synthesis client
func NewClient(config Config, logger *zap.Logger) (*Client, error) {
	if err := ValidateConfig(config); err != nil {
		return nil, err
	}

	voice := config.Voice
	if voice == "" {
		voice = defaultVoice
		logger.Info("Using default voice", zap.String("voice", voice))
	}

	model := config.Model
	if model == "" {
		model = defaultModel
		logger.Info("Using default model", zap.String("model", model))
	}

	timeout := config.Timeout
	if timeout == 0 {
		timeout = defaultRequestTimeout
	}

	return &Client{
		baseURL:    strings.TrimRight(config.BaseURL, "/"),
		apiKey:     config.APIKey,
		voice:      voice,
		model:      model,
		httpClient: &http.Client{Timeout: timeout},
		logger:     logger,
	}, nil
}

// SynthesizeSpeech converts text to audio through the synthesis endpoint
func (c *Client) SynthesizeSpeech(ctx context.Context, text string, config repositories.VoiceConfig) ([]byte, error) {
	if strings.TrimSpace(text) == "" {
		return nil, fmt.Errorf("text cannot be empty")
	}

	voice := config.Voice
	if voice == "" {
		voice = c.voice
	}
	model := config.Model
	if model == "" {
		model = c.model
	}
	speed := config.Speed
	if speed == 0 {
		speed = defaultSpeed
	}

	body, err := json.Marshal(synthesisRequest{
		Text:  text,
		Voice: voice,
		Speed: speed,
		Model: model,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create HTTP request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "audio/mpeg")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	c.logger.Debug("Requesting speech synthesis",
		zap.String("voice", voice),
		zap.Float64("speed", speed),
		zap.Int("textLength", len(text)))

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("synthesis request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		var payload errorPayload
		raw, _ := io.ReadAll(resp.Body)
		if err := json.Unmarshal(raw, &payload); err == nil && payload.Error != "" {
			return nil, fmt.Errorf("synthesis endpoint returned %d: %s", resp.StatusCode, payload.Error)
		}
		return nil, fmt.Errorf("synthesis endpoint returned %d: %s", resp.StatusCode, string(raw))
	}

	audio, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read audio response: %w", err)
	}
	if len(audio) == 0 {
		return nil, fmt.Errorf("synthesis endpoint returned no audio")
	}

	c.logger.Debug("Received synthesized audio",
		zap.Int("bytes", len(audio)),
		zap.String("contentType", resp.Header.Get("Content-Type")))

	return audio, nil
}

// NewConfigFromEnv creates a Config from environment variables
func NewConfigFromEnv() Config {
	config := Config{
		BaseURL: os.Getenv("TTS_ENDPOINT_URL"),
		APIKey:  os.Getenv("TTS_API_KEY"),
		Voice:   os.Getenv("TTS_VOICE"),
		Model:   os.Getenv("TTS_MODEL"),
	}

	if timeoutStr := os.Getenv("TTS_TIMEOUT_SECONDS"); timeoutStr != "" {
		if seconds, err := strconv.Atoi(timeoutStr); err == nil && seconds > 0 {
			config.Timeout = time.Duration(seconds) * time.Second
		}
	}

	return config
}
