package usecase

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/cdichat/voicebridge/domain/entities"
	"github.com/cdichat/voicebridge/domain/repositories"
)

// ChatService handles conversation logic: it persists user messages,
// asks the chat model for a reply, and persists the reply.
type ChatService struct {
	model         repositories.ChatModel
	conversations repositories.ConversationRepository
	logger        *zap.Logger
}

// NewChatService creates a new chat service
func NewChatService(
	model repositories.ChatModel,
	conversations repositories.ConversationRepository,
	logger *zap.Logger,
) *ChatService {
	return &ChatService{
		model:         model,
		conversations: conversations,
		logger:        logger,
	}
}

// SendMessage appends the user's message to the conversation (creating
// one when conversationID is empty), generates an assistant reply, and
// returns the updated conversation together with the reply message.
func (s *ChatService) SendMessage(ctx context.Context, userID, conversationID, text string) (*entities.Conversation, entities.ConversationMessage, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, entities.ConversationMessage{}, fmt.Errorf("message text cannot be empty")
	}

	conversation, err := s.loadOrCreate(ctx, userID, conversationID, text)
	if err != nil {
		return nil, entities.ConversationMessage{}, err
	}

	userMessage := conversation.AddMessage(entities.MessageRoleUser, text)
	if err := s.conversations.AppendMessage(ctx, conversation.ID, userMessage); err != nil {
		return nil, entities.ConversationMessage{}, fmt.Errorf("failed to persist user message: %w", err)
	}

	replyText, err := s.model.Reply(ctx, toChatHistory(conversation.Messages))
	if err != nil {
		return nil, entities.ConversationMessage{}, fmt.Errorf("failed to generate reply: %w", err)
	}

	reply := conversation.AddMessage(entities.MessageRoleAssistant, replyText)
	if err := s.conversations.AppendMessage(ctx, conversation.ID, reply); err != nil {
		s.logger.Error("Failed to persist assistant reply",
			zap.String("conversationID", conversation.ID),
			zap.Error(err))
	}

	return conversation, reply, nil
}

func (s *ChatService) loadOrCreate(ctx context.Context, userID, conversationID, firstMessage string) (*entities.Conversation, error) {
	if conversationID != "" {
		conversation, err := s.conversations.GetByID(ctx, conversationID)
		switch {
		case err == nil:
			return conversation, nil
		case errors.Is(err, repositories.ErrConversationNotFound):
			// A stale or deleted ID starts a fresh conversation
			// instead of failing the message.
			s.logger.Warn("Conversation no longer exists, starting a new one",
				zap.String("conversationID", conversationID))
		default:
			return nil, fmt.Errorf("failed to load conversation %s: %w", conversationID, err)
		}
	}

	conversation := entities.NewConversation(userID, conversationTitle(firstMessage))
	if err := s.conversations.Create(ctx, conversation); err != nil {
		return nil, fmt.Errorf("failed to create conversation: %w", err)
	}
	return conversation, nil
}

// conversationTitle derives a short title from the first message
func conversationTitle(text string) string {
	const maxTitle = 40
	runes := []rune(text)
	if len(runes) <= maxTitle {
		return text
	}
	return string(runes[:maxTitle]) + "…"
}

func toChatHistory(messages []entities.ConversationMessage) []repositories.ChatMessage {
	history := make([]repositories.ChatMessage, 0, len(messages))
	for _, m := range messages {
		role := repositories.UserRole
		if m.Role == entities.MessageRoleAssistant {
			role = repositories.AssistantRole
		}
		history = append(history, repositories.ChatMessage{Role: role, Content: m.Content})
	}
	return history
}
