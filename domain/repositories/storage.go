package repositories

import (
	"context"
	"errors"

	"github.com/cdichat/voicebridge/domain/entities"
)

// ErrConversationNotFound is returned when no conversation matches the
// requested ID. Callers that can recover (for example by starting a
// fresh conversation) test for it with errors.Is.
var ErrConversationNotFound = errors.New("conversation not found")

// ConversationRepository defines data access methods for conversations
type ConversationRepository interface {
	Create(ctx context.Context, conversation *entities.Conversation) error
	GetByID(ctx context.Context, id string) (*entities.Conversation, error)
	ListByUser(ctx context.Context, userID string, limit int) ([]*entities.Conversation, error)
	AppendMessage(ctx context.Context, conversationID string, message entities.ConversationMessage) error
	Delete(ctx context.Context, id string) error
}

// CommandAuditRepository persists executed voice commands for analytics
type CommandAuditRepository interface {
	Record(ctx context.Context, userID string, record entities.ExecutionRecord) error
	Recent(ctx context.Context, userID string, limit int) ([]entities.ExecutionRecord, error)
}
