package entities

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

// MessageRole represents the role of a message sender
type MessageRole string

const (
	MessageRoleUser      MessageRole = "user"
	MessageRoleAssistant MessageRole = "assistant"
)

// ConversationMessage represents a message within a conversation
type ConversationMessage struct {
	ID        string      `json:"id" bson:"id"`
	Role      MessageRole `json:"role" bson:"role"`
	Content   string      `json:"content" bson:"content"`
	Timestamp time.Time   `json:"timestamp" bson:"timestamp"`
}

// Conversation is a persisted chat conversation owned by a user
type Conversation struct {
	ID        string                `json:"id" bson:"_id,omitempty"`
	UserID    string                `json:"user_id" bson:"user_id"`
	Title     string                `json:"title" bson:"title"`
	Messages  []ConversationMessage `json:"messages" bson:"messages"`
	CreatedAt time.Time             `json:"created_at" bson:"created_at"`
	UpdatedAt time.Time             `json:"updated_at" bson:"updated_at"`
}

// NewConversation creates a new conversation for a user
func NewConversation(userID, title string) *Conversation {
	now := time.Now()
	return &Conversation{
		ID:        uuid.NewString(),
		UserID:    userID,
		Title:     title,
		Messages:  make([]ConversationMessage, 0),
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// AddMessage appends a message to the conversation and bumps UpdatedAt
func (c *Conversation) AddMessage(role MessageRole, content string) ConversationMessage {
	message := ConversationMessage{
		ID:        uuid.NewString(),
		Role:      role,
		Content:   content,
		Timestamp: time.Now(),
	}

	c.Messages = append(c.Messages, message)
	c.UpdatedAt = message.Timestamp
	return message
}

// LastAssistantMessage returns the most recent assistant message, if any
func (c *Conversation) LastAssistantMessage() (ConversationMessage, bool) {
	for i := len(c.Messages) - 1; i >= 0; i-- {
		if c.Messages[i].Role == MessageRoleAssistant {
			return c.Messages[i], true
		}
	}
	return ConversationMessage{}, false
}

// Validate validates the conversation data
func (c *Conversation) Validate() error {
	if c.UserID == "" {
		return errors.New("user_id is required")
	}
	return nil
}
