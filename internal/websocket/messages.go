package websocket

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/cdichat/voicebridge/domain/entities"
)

// MessageType defines the type of WebSocket message
type MessageType string

// Inbound message types (client to server)
const (
	MessageTypeListeningStart  MessageType = "listening_start"
	MessageTypeListeningStop   MessageType = "listening_stop"
	MessageTypeHandsFree       MessageType = "hands_free"
	MessageTypeVoiceEnabled    MessageType = "voice_enabled"
	MessageTypeSetConversation MessageType = "set_conversation"
	MessageTypeSendText        MessageType = "send_text"
	MessageTypePing            MessageType = "ping"
)

// Outbound message types (server to client)
const (
	MessageTypeRecognitionStarted MessageType = "recognition_started"
	MessageTypeRecognitionEnded   MessageType = "recognition_ended"
	MessageTypeRecognitionError   MessageType = "recognition_error"
	MessageTypeRecognitionResult  MessageType = "recognition_result"
	MessageTypeCommandExecuted    MessageType = "command_executed"
	MessageTypeAssistantMessage   MessageType = "assistant_message"
	MessageTypeUIAction           MessageType = "ui_action"
	MessageTypeSpeakingStart      MessageType = "speaking_start"
	MessageTypeSpeakingEnd        MessageType = "speaking_end"
	MessageTypePong               MessageType = "pong"
	MessageTypeError              MessageType = "error"
)

// BaseMessage defines the common structure for all WebSocket messages
type BaseMessage struct {
	Type      MessageType `json:"type"`
	Timestamp string      `json:"timestamp,omitempty"`
}

// ControlMessage covers the inbound control surface. Flags that only
// apply to some types are pointers so absence is detectable.
type ControlMessage struct {
	BaseMessage
	Enabled        *bool  `json:"enabled,omitempty"`
	ConversationID string `json:"conversation_id,omitempty"`
	Text           string `json:"text,omitempty"`
}

// RecognitionResultMessage carries one recognition hypothesis
type RecognitionResultMessage struct {
	BaseMessage
	Transcript   string   `json:"transcript"`
	Confidence   float64  `json:"confidence"`
	IsFinal      bool     `json:"is_final"`
	Alternatives []string `json:"alternatives,omitempty"`
}

// RecognitionErrorMessage reports an engine error code
type RecognitionErrorMessage struct {
	BaseMessage
	Code string `json:"code"`
}

// CommandExecutedMessage reports a dispatched voice command
type CommandExecutedMessage struct {
	BaseMessage
	Command  string                 `json:"command"`
	Category string                 `json:"category"`
	Params   entities.CommandParams `json:"params,omitempty"`
}

// AssistantMessage carries a generated chat reply
type AssistantMessage struct {
	BaseMessage
	ConversationID string `json:"conversation_id"`
	Content        string `json:"content"`
}

// UIActionMessage forwards a command's UI effect to the frontend
type UIActionMessage struct {
	BaseMessage
	Action         string `json:"action"`
	Page           string `json:"page,omitempty"`
	ConversationID string `json:"conversation_id,omitempty"`
	Setting        string `json:"setting,omitempty"`
	Value          string `json:"value,omitempty"`
}

// ErrorMessage represents an error response
type ErrorMessage struct {
	BaseMessage
	Code    string `json:"error_code"`
	Message string `json:"message"`
}

// ParseControlMessage parses and validates an inbound text frame
func ParseControlMessage(data []byte) (*ControlMessage, error) {
	var msg ControlMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, fmt.Errorf("invalid JSON format: %w", err)
	}
	if msg.Type == "" {
		return nil, fmt.Errorf("message missing type field")
	}

	switch msg.Type {
	case MessageTypeListeningStart, MessageTypeListeningStop, MessageTypePing:
	case MessageTypeHandsFree, MessageTypeVoiceEnabled:
		if msg.Enabled == nil {
			return nil, fmt.Errorf("%s message requires enabled field", msg.Type)
		}
	case MessageTypeSetConversation:
		if msg.ConversationID == "" {
			return nil, fmt.Errorf("set_conversation message requires conversation_id")
		}
	case MessageTypeSendText:
		if msg.Text == "" {
			return nil, fmt.Errorf("send_text message requires text")
		}
	default:
		return nil, fmt.Errorf("unsupported message type: %s", msg.Type)
	}

	return &msg, nil
}

func newBase(msgType MessageType) BaseMessage {
	return BaseMessage{
		Type:      msgType,
		Timestamp: time.Now().Format(time.RFC3339),
	}
}

// NewRecognitionResultMessage builds an outbound result message
func NewRecognitionResultMessage(result entities.RecognitionResult) *RecognitionResultMessage {
	return &RecognitionResultMessage{
		BaseMessage:  newBase(MessageTypeRecognitionResult),
		Transcript:   result.Transcript,
		Confidence:   result.Confidence,
		IsFinal:      result.IsFinal,
		Alternatives: result.Alternatives,
	}
}

// NewCommandExecutedMessage builds an outbound dispatch notification
func NewCommandExecutedMessage(cmd entities.VoiceCommand, params entities.CommandParams) *CommandExecutedMessage {
	return &CommandExecutedMessage{
		BaseMessage: newBase(MessageTypeCommandExecuted),
		Command:     cmd.Name,
		Category:    string(cmd.Category),
		Params:      params,
	}
}

// NewErrorMessage creates a standardized error message
func NewErrorMessage(code, message string) *ErrorMessage {
	return &ErrorMessage{
		BaseMessage: newBase(MessageTypeError),
		Code:        code,
		Message:     message,
	}
}
