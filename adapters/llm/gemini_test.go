package llm

import (
	"strings"
	"testing"

	"github.com/cdichat/voicebridge/domain/repositories"
)

func TestValidateGeminiConfig(t *testing.T) {
	tests := []struct {
		name    string
		config  GeminiConfig
		wantErr bool
	}{
		{name: "valid minimal", config: GeminiConfig{APIKey: "key"}},
		{name: "missing api key", config: GeminiConfig{}, wantErr: true},
		{name: "temperature too high", config: GeminiConfig{APIKey: "key", Temperature: 1.5}, wantErr: true},
		{name: "negative topP", config: GeminiConfig{APIKey: "key", TopP: -0.1}, wantErr: true},
		{name: "negative topK", config: GeminiConfig{APIKey: "key", TopK: -1}, wantErr: true},
		{name: "negative timeout", config: GeminiConfig{APIKey: "key", TimeoutSeconds: -5}, wantErr: true},
		{name: "full valid config", config: GeminiConfig{
			APIKey:          "key",
			Model:           "gemini-2.0-flash",
			Temperature:     0.5,
			TopP:            0.8,
			TopK:            20,
			MaxOutputTokens: 512,
			TimeoutSeconds:  10,
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateGeminiConfig(tt.config)
			if tt.wantErr && err == nil {
				t.Fatal("expected validation error")
			}
			if !tt.wantErr && err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
		})
	}
}

func TestConfigWithDefaults(t *testing.T) {
	config := GeminiConfig{APIKey: "key"}.withDefaults()

	if config.Model != defaultModel {
		t.Errorf("expected model %q, got %q", defaultModel, config.Model)
	}
	if config.SystemPrompt == "" {
		t.Error("expected a default system prompt")
	}
	if config.MaxOutputTokens != defaultMaxTokens {
		t.Errorf("expected max tokens %d, got %d", defaultMaxTokens, config.MaxOutputTokens)
	}
	if config.TimeoutSeconds != defaultTimeoutSeconds {
		t.Errorf("expected timeout %d, got %d", defaultTimeoutSeconds, config.TimeoutSeconds)
	}
}

func TestBuildContents(t *testing.T) {
	history := []repositories.ChatMessage{
		{Role: repositories.UserRole, Content: "oi"},
		{Role: repositories.AssistantRole, Content: "olá, tudo bem?"},
		{Role: repositories.SystemRole, Content: "seja breve"},
	}

	contents := buildContents("prompt do sistema", history)

	if len(contents) != 4 {
		t.Fatalf("expected 4 contents (system + 3 messages), got %d", len(contents))
	}
	if contents[0].Role != "user" {
		t.Errorf("system prompt should ride as a user turn, got role %q", contents[0].Role)
	}
	if contents[2].Role != "model" {
		t.Errorf("assistant message should map to model role, got %q", contents[2].Role)
	}
	if contents[3].Role != "user" {
		t.Errorf("system message should map to user role, got %q", contents[3].Role)
	}
}

func TestFallbackReplyIsNonEmpty(t *testing.T) {
	reply := fallbackReply()
	if strings.TrimSpace(reply) == "" {
		t.Fatal("fallback reply must not be empty")
	}
}
