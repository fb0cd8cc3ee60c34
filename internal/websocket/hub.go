package websocket

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/cdichat/voicebridge/domain/entities"
	"github.com/cdichat/voicebridge/domain/repositories"
	"github.com/cdichat/voicebridge/internal/bus"
	"github.com/cdichat/voicebridge/usecase"
)

const (
	// Time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer.
	pongWait = 60 * time.Second

	// Send pings to peer with this period. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	// Maximum message size allowed from peer.
	maxMessageSize = 512 * 1024 // 512KB for audio chunks
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		// TODO: restrict origins once the frontend host is fixed
		return true
	},
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
}

// RecognizerFactory builds a fresh recognition engine per connection.
// It may return nil to signal that no engine is available; voice
// sessions on that connection then report recognition as unsupported.
type RecognizerFactory func() repositories.SpeechRecognizer

// Hub maintains the set of active clients and owns the shared
// dependencies each voice session is assembled from.
type Hub struct {
	// Registered clients keyed by connection ID.
	clients map[string]*Client

	// Register requests from the clients.
	register chan *Client

	// Unregister requests from clients.
	unregister chan *Client

	mu sync.RWMutex

	newRecognizer RecognizerFactory
	tts           repositories.TextToSpeech
	chat          *usecase.ChatService
	audit         repositories.CommandAuditRepository

	logger *zap.Logger
}

// NewHub creates a new WebSocket hub. The chat service and audit
// repository may be nil; the affected features degrade to no-ops.
func NewHub(
	newRecognizer RecognizerFactory,
	tts repositories.TextToSpeech,
	chat *usecase.ChatService,
	audit repositories.CommandAuditRepository,
	logger *zap.Logger,
) *Hub {
	return &Hub{
		clients:       make(map[string]*Client),
		register:      make(chan *Client),
		unregister:    make(chan *Client),
		newRecognizer: newRecognizer,
		tts:           tts,
		chat:          chat,
		audit:         audit,
		logger:        logger,
	}
}

// Run starts the hub's main loop
func (h *Hub) Run() {
	for {
		select {
		case client := <-h.register:
			h.mu.Lock()
			h.clients[client.id] = client
			h.mu.Unlock()
			h.logger.Info("Client registered",
				zap.String("clientID", client.id),
				zap.String("userID", client.userID))

		case client := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[client.id]; ok {
				delete(h.clients, client.id)
				close(client.done)
			}
			h.mu.Unlock()
			// Tearing the pipeline down stops a live recognition
			// stream, whose end event tries to notify the client;
			// done is already closed, so those frames are dropped.
			client.control.Close()
			h.logger.Info("Client unregistered",
				zap.String("clientID", client.id),
				zap.String("userID", client.userID))
		}
	}
}

// ClientCount returns the number of connected clients
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

type WriteData struct {
	// MessageType is the type of the websocket message.
	// Expect websocket.TextMessage or websocket.BinaryMessage
	Type    int
	Payload []byte
}

// Client is one authenticated voice connection: it bridges browser
// audio frames into the recognition engine and carries recognition,
// command, and synthesized-speech traffic back out.
type Client struct {
	hub *Hub

	// The websocket connection.
	conn *websocket.Conn

	// Buffered channel of outbound messages. Never closed; shutdown is
	// signaled through done so late frames from playback goroutines are
	// dropped instead of hitting a closed channel.
	send chan WriteData
	done chan struct{}

	id     string
	userID string

	logger *zap.Logger

	// Per-connection voice pipeline.
	control  *usecase.VoiceControl
	streamer repositories.AudioStreamer

	mutex          sync.Mutex
	conversationID string
	lastActivity   time.Time
}

// ServeWebSocket upgrades the request and assembles the per-connection
// voice pipeline for an authenticated user.
func ServeWebSocket(hub *Hub, c echo.Context, userID string, logger *zap.Logger) error {
	conn, err := upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		logger.Error("WebSocket upgrade failed", zap.Error(err))
		return err
	}

	client := &Client{
		hub:          hub,
		conn:         conn,
		send:         make(chan WriteData, 256),
		done:         make(chan struct{}),
		id:           uuid.NewString(),
		userID:       userID,
		logger:       logger,
		lastActivity: time.Now(),
	}

	if err := client.buildPipeline(); err != nil {
		logger.Error("Failed to build voice pipeline", zap.Error(err))
		conn.Close()
		return err
	}

	client.hub.register <- client

	// Allow collection of memory referenced by the caller by doing all work in
	// new goroutines.
	go client.writePump()
	go client.readPump()

	return nil
}

// buildPipeline wires this connection's registry, dispatcher, session,
// and orchestrator. Each connection gets its own instances; nothing is
// shared between clients.
func (c *Client) buildPipeline() error {
	var recognizer repositories.SpeechRecognizer
	if c.hub.newRecognizer != nil {
		recognizer = c.hub.newRecognizer()
	}
	if streamer, ok := recognizer.(repositories.AudioStreamer); ok {
		c.streamer = streamer
	}

	registry := usecase.NewCommandRegistry()
	dispatcher := usecase.NewDispatcher(registry, c.logger)

	session, err := usecase.NewRecognitionSession(recognizer, dispatcher, usecase.SessionConfig{
		AutoStop: true,
	}, usecase.SessionNotifications{
		OnStarted: func() {
			c.sendJSON(BaseMessage{Type: MessageTypeRecognitionStarted, Timestamp: time.Now().Format(time.RFC3339)})
		},
		OnEnded: func() {
			c.sendJSON(BaseMessage{Type: MessageTypeRecognitionEnded, Timestamp: time.Now().Format(time.RFC3339)})
		},
		OnError: func(code string) {
			c.sendJSON(&RecognitionErrorMessage{BaseMessage: newBase(MessageTypeRecognitionError), Code: code})
		},
		OnResult: func(result entities.RecognitionResult) {
			c.touch()
			c.sendJSON(NewRecognitionResultMessage(result))
		},
	}, c.logger)
	if err != nil {
		return err
	}

	control, err := usecase.NewVoiceControl(
		session,
		registry,
		dispatcher,
		c.hub.tts,
		c, // the connection itself is the audio sink
		bus.New(),
		usecase.ActionCallbacks{
			OnSendMessage: func(text string) {
				go c.handleChatMessage(text)
			},
			OnNewConversation: func() {
				c.mutex.Lock()
				c.conversationID = ""
				c.mutex.Unlock()
				c.sendUIAction(bus.ActionNewConversation, UIActionMessage{})
			},
			OnClearChat: func() {
				c.sendUIAction(bus.ActionClearChat, UIActionMessage{})
			},
			OnToggleRecording: func() {
				c.sendUIAction(bus.ActionToggleRecording, UIActionMessage{})
			},
			OnNavigateToPage: func(page string) {
				c.sendUIAction(bus.ActionNavigate, UIActionMessage{Page: page})
			},
			OnSelectConversation: func(id string) {
				c.sendUIAction(bus.ActionSelectConversation, UIActionMessage{ConversationID: id})
			},
			OnAdjustSettings: func(setting, value string) {
				c.sendUIAction(bus.ActionAdjustSetting, UIActionMessage{Setting: setting, Value: value})
			},
		},
		usecase.SpeechSettings{AutoPlayResponses: true},
		c.logger,
	)
	if err != nil {
		return err
	}

	control.OnCommandExecuted = c.handleCommandExecuted
	c.control = control
	return nil
}

// Play implements repositories.AudioSink: synthesized speech goes to
// the browser as one binary frame framed by speaking markers.
func (c *Client) Play(ctx context.Context, audio []byte) error {
	if len(audio) == 0 {
		return nil
	}

	c.sendJSON(BaseMessage{Type: MessageTypeSpeakingStart, Timestamp: time.Now().Format(time.RFC3339)})
	c.enqueue(WriteData{Type: websocket.BinaryMessage, Payload: audio})
	c.sendJSON(BaseMessage{Type: MessageTypeSpeakingEnd, Timestamp: time.Now().Format(time.RFC3339)})
	return nil
}

// LastActivity returns the time of the last inbound frame or
// recognition result on this connection
func (c *Client) LastActivity() time.Time {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	return c.lastActivity
}

func (c *Client) touch() {
	c.mutex.Lock()
	c.lastActivity = time.Now()
	c.mutex.Unlock()
}

// readPump pumps messages from the websocket connection into the
// voice pipeline.
func (c *Client) readPump() {
	defer func() {
		c.hub.unregister <- c
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		messageType, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.logger.Error("WebSocket error", zap.Error(err))
			}
			break
		}

		c.touch()

		switch messageType {
		case websocket.TextMessage:
			c.processControlMessage(message)
		case websocket.BinaryMessage:
			c.processAudioChunk(message)
		default:
			c.logger.Warn("Received unknown message type", zap.Int("type", messageType))
		}
	}
}

// writePump pumps messages from the pipeline to the websocket connection.
func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case <-c.done:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			c.conn.WriteMessage(websocket.CloseMessage, []byte{})
			return

		case message := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(message.Type, message.Payload); err != nil {
				c.logger.Error("Failed to write message", zap.Error(err))
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// processControlMessage handles an inbound JSON frame
func (c *Client) processControlMessage(message []byte) {
	msg, err := ParseControlMessage(message)
	if err != nil {
		c.logger.Warn("Rejected control message", zap.Error(err))
		c.sendJSON(NewErrorMessage("bad_message", err.Error()))
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	switch msg.Type {
	case MessageTypeListeningStart:
		if err := c.control.Session().Start(ctx); err != nil {
			c.sendJSON(NewErrorMessage("recognition_unavailable", err.Error()))
		}

	case MessageTypeListeningStop:
		c.control.Session().Stop()

	case MessageTypeHandsFree:
		if err := c.control.Session().SetHandsFree(ctx, *msg.Enabled); err != nil {
			c.sendJSON(NewErrorMessage("recognition_unavailable", err.Error()))
		}

	case MessageTypeVoiceEnabled:
		if err := c.control.SetEnabled(*msg.Enabled); err != nil {
			c.logger.Error("Failed to toggle voice control", zap.Error(err))
		}

	case MessageTypeSetConversation:
		c.mutex.Lock()
		c.conversationID = msg.ConversationID
		c.mutex.Unlock()

	case MessageTypeSendText:
		go c.handleChatMessage(msg.Text)

	case MessageTypePing:
		c.sendJSON(BaseMessage{Type: MessageTypePong, Timestamp: time.Now().Format(time.RFC3339)})
	}
}

// processAudioChunk feeds a binary frame into the recognition stream
func (c *Client) processAudioChunk(data []byte) {
	if c.streamer == nil {
		c.logger.Warn("Received audio but no streaming engine is available",
			zap.String("clientID", c.id))
		return
	}

	if err := c.streamer.Feed(data); err != nil {
		c.logger.Debug("Dropped audio chunk",
			zap.String("clientID", c.id),
			zap.Error(err))
	}
}

// handleChatMessage runs the chat round trip: persist, generate a
// reply, push it to the client, and queue it for spoken playback.
func (c *Client) handleChatMessage(text string) {
	if c.hub.chat == nil {
		c.logger.Warn("Chat service is not configured, dropping message")
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
	defer cancel()

	c.mutex.Lock()
	conversationID := c.conversationID
	c.mutex.Unlock()

	conversation, reply, err := c.hub.chat.SendMessage(ctx, c.userID, conversationID, text)
	if err != nil {
		c.logger.Error("Failed to process chat message", zap.Error(err))
		c.sendJSON(NewErrorMessage("chat_failed", "failed to process message"))
		return
	}

	c.mutex.Lock()
	c.conversationID = conversation.ID
	c.mutex.Unlock()

	c.sendJSON(&AssistantMessage{
		BaseMessage:    newBase(MessageTypeAssistantMessage),
		ConversationID: conversation.ID,
		Content:        reply.Content,
	})

	c.control.SetResponseForTTS(reply.Content)
}

// handleCommandExecuted reports a dispatch to the client and records it
// in the audit trail.
func (c *Client) handleCommandExecuted(cmd entities.VoiceCommand, params entities.CommandParams) {
	c.sendJSON(NewCommandExecutedMessage(cmd, params))

	if c.hub.audit == nil {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	err := c.hub.audit.Record(ctx, c.userID, entities.ExecutionRecord{
		CommandName: cmd.Name,
		Timestamp:   time.Now(),
	})
	if err != nil {
		c.logger.Error("Failed to record command execution",
			zap.String("command", cmd.Name),
			zap.Error(err))
	}
}

func (c *Client) sendUIAction(action string, msg UIActionMessage) {
	msg.BaseMessage = newBase(MessageTypeUIAction)
	msg.Action = action
	c.sendJSON(&msg)
}

func (c *Client) sendJSON(v interface{}) {
	payload, err := json.Marshal(v)
	if err != nil {
		c.logger.Error("Failed to marshal outbound message", zap.Error(err))
		return
	}
	c.enqueue(WriteData{Type: websocket.TextMessage, Payload: payload})
}

// enqueue drops the frame when the connection is shutting down or the
// send buffer is full rather than blocking the pipeline.
func (c *Client) enqueue(data WriteData) {
	select {
	case <-c.done:
		return
	default:
	}

	select {
	case c.send <- data:
	default:
		c.logger.Warn("Send buffer full, dropping frame",
			zap.String("clientID", c.id))
	}
}
