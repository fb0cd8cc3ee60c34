package api

import (
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/cdichat/voicebridge/domain/entities"
	"github.com/cdichat/voicebridge/domain/repositories"
	"github.com/cdichat/voicebridge/internal/auth"
	"github.com/cdichat/voicebridge/internal/websocket"
	"github.com/cdichat/voicebridge/usecase"
)

const maxUploadSize = 25 * 1024 * 1024 // Whisper's upload ceiling

// Server holds the dependencies the HTTP handlers need. Optional
// dependencies (transcriber, tts, conversations, audit) may be nil;
// their endpoints then answer 503.
type Server struct {
	tokens        *auth.Manager
	users         *auth.UserStore
	hub           *websocket.Hub
	conversations repositories.ConversationRepository
	audit         repositories.CommandAuditRepository
	transcriber   repositories.SpeechToText
	tts           repositories.TextToSpeech
	logger        *zap.Logger
}

// NewServer creates the API handler set
func NewServer(
	tokens *auth.Manager,
	users *auth.UserStore,
	hub *websocket.Hub,
	conversations repositories.ConversationRepository,
	audit repositories.CommandAuditRepository,
	transcriber repositories.SpeechToText,
	tts repositories.TextToSpeech,
	logger *zap.Logger,
) *Server {
	return &Server{
		tokens:        tokens,
		users:         users,
		hub:           hub,
		conversations: conversations,
		audit:         audit,
		transcriber:   transcriber,
		tts:           tts,
		logger:        logger,
	}
}

// InitRoutes initializes all API routes
func (s *Server) InitRoutes(e *echo.Echo) {
	// Health check
	e.GET("/health", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]interface{}{
			"status":  "ok",
			"service": "voicebridge",
			"clients": s.hub.ClientCount(),
		})
	})

	// API v1 routes
	v1 := e.Group("/api/v1")
	v1.POST("/auth/login", s.login)

	authed := v1.Group("", s.requireUser)
	authed.GET("/commands", s.listCommands)
	authed.GET("/commands/history", s.commandHistory)
	authed.POST("/transcribe", s.transcribe)
	authed.POST("/synthesize", s.synthesize)
	authed.GET("/conversations", s.listConversations)
	authed.GET("/conversations/:id", s.getConversation)
	authed.DELETE("/conversations/:id", s.deleteConversation)

	// WebSocket endpoint with JWT validation
	e.GET("/ws", s.serveWebSocket)
}

func (s *Server) login(c echo.Context) error {
	var req LoginRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, ErrorResponse{
			Error:   "invalid_request",
			Message: "Invalid request format",
		})
	}

	if req.Username == "" || req.Password == "" {
		return c.JSON(http.StatusBadRequest, ErrorResponse{
			Error:   "missing_fields",
			Message: "Username and password are required",
		})
	}

	if err := s.users.Validate(req.Username, req.Password); err != nil {
		s.logger.Warn("Login failed", zap.String("username", req.Username))
		return c.JSON(http.StatusUnauthorized, ErrorResponse{
			Error:   "authentication_failed",
			Message: "Invalid username or password",
		})
	}

	token, err := s.tokens.GenerateUserToken(req.Username)
	if err != nil {
		s.logger.Error("Failed to generate user token",
			zap.String("username", req.Username),
			zap.Error(err))
		return c.JSON(http.StatusInternalServerError, ErrorResponse{
			Error:   "token_generation_failed",
			Message: "Failed to generate authentication token",
		})
	}

	return c.JSON(http.StatusOK, LoginResponse{
		Token:     token,
		ExpiresAt: time.Now().Add(s.tokens.TokenTTL()),
		UserID:    req.Username,
	})
}

// requireUser is the bearer-token middleware for the authenticated group
func (s *Server) requireUser(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		claims, errResp := s.authenticate(c)
		if errResp != nil {
			return c.JSON(http.StatusUnauthorized, *errResp)
		}
		c.Set("user_id", claims.UserID)
		return next(c)
	}
}

func (s *Server) authenticate(c echo.Context) (*auth.JWTClaims, *ErrorResponse) {
	header := c.Request().Header.Get("Authorization")
	token, found := strings.CutPrefix(header, "Bearer ")
	if !found || token == "" {
		return nil, &ErrorResponse{
			Error:   "missing_token",
			Message: "JWT token is required in Authorization header",
		}
	}

	claims, err := s.tokens.ValidateToken(token)
	if err != nil {
		return nil, &ErrorResponse{
			Error:   "invalid_token",
			Message: "Invalid or expired JWT token",
		}
	}
	if claims.UserID == "" {
		return nil, &ErrorResponse{
			Error:   "invalid_token_claims",
			Message: "User ID not found in token",
		}
	}

	return claims, nil
}

func (s *Server) listCommands(c echo.Context) error {
	commands, err := usecase.CommandCatalog(s.logger)
	if err != nil {
		s.logger.Error("Failed to build command catalog", zap.Error(err))
		return c.JSON(http.StatusInternalServerError, ErrorResponse{
			Error:   "internal_error",
			Message: "Failed to list commands",
		})
	}

	infos := make([]CommandInfo, 0, len(commands))
	for _, cmd := range commands {
		infos = append(infos, CommandInfo{
			Name:        cmd.Name,
			Phrases:     cmd.Phrases,
			Category:    string(cmd.Category),
			Description: cmd.Description,
		})
	}
	return c.JSON(http.StatusOK, infos)
}

func (s *Server) commandHistory(c echo.Context) error {
	if s.audit == nil {
		return serviceUnavailable(c, "command history")
	}

	userID := c.Get("user_id").(string)
	records, err := s.audit.Recent(c.Request().Context(), userID, 10)
	if err != nil {
		s.logger.Error("Failed to load command history", zap.Error(err))
		return c.JSON(http.StatusInternalServerError, ErrorResponse{
			Error:   "internal_error",
			Message: "Failed to load command history",
		})
	}
	return c.JSON(http.StatusOK, records)
}

func (s *Server) transcribe(c echo.Context) error {
	if s.transcriber == nil {
		return serviceUnavailable(c, "transcription")
	}

	file, err := c.FormFile("audio")
	if err != nil {
		return c.JSON(http.StatusBadRequest, ErrorResponse{
			Error:   "missing_audio",
			Message: "An audio file upload is required",
		})
	}
	if file.Size > maxUploadSize {
		return c.JSON(http.StatusRequestEntityTooLarge, ErrorResponse{
			Error:   "audio_too_large",
			Message: "Audio file exceeds the upload limit",
		})
	}

	src, err := file.Open()
	if err != nil {
		return c.JSON(http.StatusBadRequest, ErrorResponse{
			Error:   "invalid_audio",
			Message: "Failed to read the uploaded file",
		})
	}
	defer src.Close()

	data, err := io.ReadAll(src)
	if err != nil {
		return c.JSON(http.StatusBadRequest, ErrorResponse{
			Error:   "invalid_audio",
			Message: "Failed to read the uploaded file",
		})
	}

	text, err := s.transcriber.TranscribeAudio(c.Request().Context(), data, repositories.AudioConfig{
		Language: c.FormValue("language"),
		Filename: file.Filename,
	})
	if err != nil {
		s.logger.Error("Transcription failed", zap.Error(err))
		return c.JSON(http.StatusBadGateway, ErrorResponse{
			Error:   "transcription_failed",
			Message: "Failed to transcribe the audio",
		})
	}

	return c.JSON(http.StatusOK, TranscribeResponse{Text: text})
}

func (s *Server) synthesize(c echo.Context) error {
	if s.tts == nil {
		return serviceUnavailable(c, "speech synthesis")
	}

	var req SynthesizeRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, ErrorResponse{
			Error:   "invalid_request",
			Message: "Invalid request format",
		})
	}
	if strings.TrimSpace(req.Text) == "" {
		return c.JSON(http.StatusBadRequest, ErrorResponse{
			Error:   "missing_text",
			Message: "Text is required",
		})
	}

	audio, err := s.tts.SynthesizeSpeech(c.Request().Context(), req.Text, repositories.VoiceConfig{
		Voice: req.Voice,
		Speed: req.Speed,
	})
	if err != nil {
		s.logger.Error("Speech synthesis failed", zap.Error(err))
		return c.JSON(http.StatusBadGateway, ErrorResponse{
			Error:   "synthesis_failed",
			Message: "Failed to synthesize speech",
		})
	}

	return c.Blob(http.StatusOK, "audio/mpeg", audio)
}

func (s *Server) listConversations(c echo.Context) error {
	if s.conversations == nil {
		return serviceUnavailable(c, "conversation storage")
	}

	userID := c.Get("user_id").(string)
	conversations, err := s.conversations.ListByUser(c.Request().Context(), userID, 20)
	if err != nil {
		s.logger.Error("Failed to list conversations", zap.Error(err))
		return c.JSON(http.StatusInternalServerError, ErrorResponse{
			Error:   "internal_error",
			Message: "Failed to list conversations",
		})
	}
	return c.JSON(http.StatusOK, conversations)
}

func (s *Server) getConversation(c echo.Context) error {
	if s.conversations == nil {
		return serviceUnavailable(c, "conversation storage")
	}

	conversation, ok, err := s.loadOwnedConversation(c)
	if !ok {
		return err
	}
	return c.JSON(http.StatusOK, conversation)
}

// loadOwnedConversation fetches the conversation from the path
// parameter and enforces that it belongs to the authenticated user.
// When ok is false the error response has already been written and the
// handler must return err as-is.
func (s *Server) loadOwnedConversation(c echo.Context) (conversation *entities.Conversation, ok bool, err error) {
	conversation, err = s.conversations.GetByID(c.Request().Context(), c.Param("id"))
	if err != nil {
		if errors.Is(err, repositories.ErrConversationNotFound) {
			return nil, false, c.JSON(http.StatusNotFound, ErrorResponse{
				Error:   "not_found",
				Message: "Conversation not found",
			})
		}
		s.logger.Error("Failed to load conversation", zap.Error(err))
		return nil, false, c.JSON(http.StatusInternalServerError, ErrorResponse{
			Error:   "internal_error",
			Message: "Failed to load conversation",
		})
	}

	if conversation.UserID != c.Get("user_id").(string) {
		return nil, false, c.JSON(http.StatusForbidden, ErrorResponse{
			Error:   "forbidden",
			Message: "Conversation belongs to another user",
		})
	}
	return conversation, true, nil
}

func (s *Server) deleteConversation(c echo.Context) error {
	if s.conversations == nil {
		return serviceUnavailable(c, "conversation storage")
	}

	conversation, ok, err := s.loadOwnedConversation(c)
	if !ok {
		return err
	}

	if err := s.conversations.Delete(c.Request().Context(), conversation.ID); err != nil {
		s.logger.Error("Failed to delete conversation", zap.Error(err))
		return c.JSON(http.StatusInternalServerError, ErrorResponse{
			Error:   "internal_error",
			Message: "Failed to delete conversation",
		})
	}
	return c.NoContent(http.StatusNoContent)
}

// serveWebSocket authenticates the upgrade request. Browsers cannot set
// headers on WebSocket dials, so the token is also accepted as a query
// parameter.
func (s *Server) serveWebSocket(c echo.Context) error {
	header := c.Request().Header.Get("Authorization")
	token, _ := strings.CutPrefix(header, "Bearer ")
	if token == "" {
		token = c.QueryParam("token")
	}

	if token == "" {
		s.logger.Warn("WebSocket connection rejected: missing token")
		return c.JSON(http.StatusUnauthorized, ErrorResponse{
			Error:   "missing_token",
			Message: "JWT token is required",
		})
	}

	claims, err := s.tokens.ValidateToken(token)
	if err != nil {
		s.logger.Warn("WebSocket connection rejected: invalid token", zap.Error(err))
		return c.JSON(http.StatusUnauthorized, ErrorResponse{
			Error:   "invalid_token",
			Message: "Invalid or expired JWT token",
		})
	}
	if claims.UserID == "" {
		return c.JSON(http.StatusBadRequest, ErrorResponse{
			Error:   "invalid_token_claims",
			Message: "User ID not found in token",
		})
	}

	s.logger.Info("WebSocket connection authenticated",
		zap.String("user_id", claims.UserID))

	return websocket.ServeWebSocket(s.hub, c, claims.UserID, s.logger)
}

func serviceUnavailable(c echo.Context, feature string) error {
	return c.JSON(http.StatusServiceUnavailable, ErrorResponse{
		Error:   "not_configured",
		Message: feature + " is not configured on this server",
	})
}
