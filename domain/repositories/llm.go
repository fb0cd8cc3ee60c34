package repositories

import "context"

// ChatModel abstracts the hosted AI provider that produces assistant
// replies for the chat application
type ChatModel interface {
	Reply(ctx context.Context, history []ChatMessage) (string, error)
}

// ChatMessage represents a single message in a model conversation
type ChatMessage struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// Role defines the type of message sender
type Role string

const (
	UserRole      Role = "user"
	AssistantRole Role = "assistant"
	SystemRole    Role = "system"
)
