package llm

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"go.uber.org/zap"
	"google.golang.org/genai"

	"github.com/cdichat/voicebridge/domain/repositories"
)

const (
	defaultModel          = "gemini-2.0-flash"
	defaultTemperature    = 0.7
	defaultTopP           = 0.9
	defaultTopK           = 40
	defaultMaxTokens      = 1024
	defaultTimeoutSeconds = 30
	maxGenerateAttempts   = 3
)

// defaultSystemPrompt steers the assistant toward short spoken-friendly
// replies, since most responses are read aloud by the TTS pipeline.
const defaultSystemPrompt = "Você é um assistente de chat por voz. " +
	"Responda em português do Brasil, de forma breve e natural, " +
	"como em uma conversa falada. Evite listas longas e formatação."

// replyFallbacks are returned when the model cannot produce content,
// so the voice loop always has something to speak.
var replyFallbacks = []string{
	"Desculpe, não consegui pensar em uma resposta agora. Pode repetir?",
	"Tive um problema para responder. Vamos tentar de novo?",
	"Não entendi bem. Pode dizer de outra forma?",
}

// GeminiConfig holds tuning parameters for the Gemini chat model
type GeminiConfig struct {
	APIKey          string
	Model           string
	SystemPrompt    string
	Temperature     float32
	TopP            float32
	TopK            float32
	MaxOutputTokens int
	TimeoutSeconds  int
}

// NewGeminiConfigFromEnv creates a GeminiConfig from environment variables
func NewGeminiConfigFromEnv() GeminiConfig {
	return GeminiConfig{
		APIKey: os.Getenv("GEMINI_API_KEY"),
		Model:  os.Getenv("GEMINI_MODEL"),
	}
}

// ValidateGeminiConfig validates the GeminiConfig
func ValidateGeminiConfig(config GeminiConfig) error {
	if config.APIKey == "" {
		return fmt.Errorf("Google AI API key is required")
	}
	if config.Temperature != 0 && (config.Temperature < 0 || config.Temperature > 1) {
		return fmt.Errorf("temperature must be between 0 and 1, got %f", config.Temperature)
	}
	if config.TopP != 0 && (config.TopP < 0 || config.TopP > 1) {
		return fmt.Errorf("topP must be between 0 and 1, got %f", config.TopP)
	}
	if config.TopK < 0 {
		return fmt.Errorf("topK must be positive, got %f", config.TopK)
	}
	if config.TimeoutSeconds < 0 {
		return fmt.Errorf("timeout must be positive, got %d", config.TimeoutSeconds)
	}
	return nil
}

func (c GeminiConfig) withDefaults() GeminiConfig {
	if c.Model == "" {
		c.Model = defaultModel
	}
	if c.SystemPrompt == "" {
		c.SystemPrompt = defaultSystemPrompt
	}
	if c.Temperature == 0 {
		c.Temperature = defaultTemperature
	}
	if c.TopP == 0 {
		c.TopP = defaultTopP
	}
	if c.TopK == 0 {
		c.TopK = defaultTopK
	}
	if c.MaxOutputTokens == 0 {
		c.MaxOutputTokens = defaultMaxTokens
	}
	if c.TimeoutSeconds == 0 {
		c.TimeoutSeconds = defaultTimeoutSeconds
	}
	return c
}

// GeminiChatModel implements the ChatModel interface using Google's Gemini API
type GeminiChatModel struct {
	client *genai.Client
	config GeminiConfig
	logger *zap.Logger
}

var _ repositories.ChatModel = (*GeminiChatModel)(nil)

// NewGeminiChatModel creates a new Gemini chat model instance
func NewGeminiChatModel(config GeminiConfig, logger *zap.Logger) (*GeminiChatModel, error) {
	if err := ValidateGeminiConfig(config); err != nil {
		return nil, err
	}
	config = config.withDefaults()

	client, err := genai.NewClient(context.Background(), &genai.ClientConfig{
		APIKey:  config.APIKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create Gemini client: %w", err)
	}

	return &GeminiChatModel{
		client: client,
		config: config,
		logger: logger,
	}, nil
}

// Reply generates the assistant's next message for the given history
func (g *GeminiChatModel) Reply(ctx context.Context, history []repositories.ChatMessage) (string, error) {
	if len(history) == 0 {
		return "", fmt.Errorf("conversation history is empty")
	}

	contents := buildContents(g.config.SystemPrompt, history)

	generateConfig := &genai.GenerateContentConfig{
		Temperature:     genai.Ptr(g.config.Temperature),
		TopP:            genai.Ptr(g.config.TopP),
		TopK:            genai.Ptr(g.config.TopK),
		MaxOutputTokens: int32(g.config.MaxOutputTokens),
	}

	ctx, cancel := context.WithTimeout(ctx, time.Duration(g.config.TimeoutSeconds)*time.Second)
	defer cancel()

	var response *genai.GenerateContentResponse
	var err error
	for attempt := 0; attempt < maxGenerateAttempts; attempt++ {
		response, err = g.client.Models.GenerateContent(ctx, g.config.Model, contents, generateConfig)
		if err == nil {
			break
		}

		g.logger.Warn("Failed to generate content, retrying",
			zap.Int("attempt", attempt+1),
			zap.Error(err))

		if attempt < maxGenerateAttempts-1 {
			time.Sleep(time.Duration(attempt+1) * time.Second)
		}
	}

	if err != nil {
		g.logger.Error("Failed to generate reply", zap.Error(err))
		return fallbackReply(), nil
	}

	text := extractText(response)
	if text == "" {
		g.logger.Warn("No content generated for reply")
		return fallbackReply(), nil
	}

	g.logger.Info("Generated assistant reply",
		zap.Int("history_length", len(history)),
		zap.Int("reply_length", len(text)))

	return text, nil
}

func fallbackReply() string {
	index := int(time.Now().UnixNano()) % len(replyFallbacks)
	return replyFallbacks[index]
}

func extractText(response *genai.GenerateContentResponse) string {
	if response == nil || len(response.Candidates) == 0 || response.Candidates[0].Content == nil {
		return ""
	}

	var sb strings.Builder
	for _, part := range response.Candidates[0].Content.Parts {
		sb.WriteString(part.Text)
	}
	return strings.TrimSpace(sb.String())
}

// buildContents converts the repository history into Gemini contents,
// with the system prompt prepended as the first user turn.
func buildContents(systemPrompt string, history []repositories.ChatMessage) []*genai.Content {
	contents := make([]*genai.Content, 0, len(history)+1)
	contents = append(contents, genai.NewContentFromText(systemPrompt, genai.RoleUser))

	for _, msg := range history {
		var role genai.Role
		switch msg.Role {
		case repositories.AssistantRole:
			role = genai.RoleModel
		default:
			// System messages ride along as user turns; Gemini has
			// no separate system role in the contents list.
			role = genai.RoleUser
		}
		contents = append(contents, genai.NewContentFromText(msg.Content, role))
	}

	return contents
}
