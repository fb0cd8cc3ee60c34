package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"go.uber.org/zap"

	"github.com/cdichat/voicebridge/adapters/llm"
	"github.com/cdichat/voicebridge/adapters/mongo"
	"github.com/cdichat/voicebridge/adapters/stt"
	"github.com/cdichat/voicebridge/adapters/tts"
	"github.com/cdichat/voicebridge/domain/repositories"
	"github.com/cdichat/voicebridge/internal/api"
	"github.com/cdichat/voicebridge/internal/auth"
	"github.com/cdichat/voicebridge/internal/websocket"
	"github.com/cdichat/voicebridge/usecase"
)

func main() {
	// .env is optional; real deployments set the environment directly
	godotenv.Load()

	logger, _ := zap.NewProduction()
	defer logger.Sync()

	tokens, err := auth.NewManagerFromEnv()
	if err != nil {
		logger.Fatal("Failed to initialize token manager", zap.Error(err))
	}
	users, err := auth.NewUserStoreFromEnv()
	if err != nil {
		logger.Fatal("Failed to initialize user store", zap.Error(err))
	}

	// Storage. The server runs without Mongo; persistence-backed
	// features degrade to no-ops.
	var conversations repositories.ConversationRepository
	var audit repositories.CommandAuditRepository
	if os.Getenv("MONGODB_URI") != "" {
		client, err := mongo.NewClient(mongo.NewConfigFromEnv(), logger)
		if err != nil {
			logger.Fatal("Failed to connect to MongoDB", zap.Error(err))
		}
		defer func() {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			client.Close(ctx)
		}()
		conversations = mongo.NewConversationRepository(client.Database)
		audit = mongo.NewCommandAuditRepository(client.Database)
	} else {
		logger.Warn("MONGODB_URI not set, conversations will not be persisted")
	}

	// Speech adapters
	var textToSpeech repositories.TextToSpeech
	if os.Getenv("TTS_ENDPOINT_URL") != "" {
		client, err := tts.NewClient(tts.NewConfigFromEnv(), logger)
		if err != nil {
			logger.Fatal("Failed to configure TTS client", zap.Error(err))
		}
		textToSpeech = client
	} else {
		logger.Warn("TTS_ENDPOINT_URL not set, spoken feedback is disabled")
	}

	var transcriber repositories.SpeechToText
	if os.Getenv("OPENAI_API_KEY") != "" {
		whisper, err := stt.NewWhisperTranscriber("", logger)
		if err != nil {
			logger.Fatal("Failed to configure Whisper transcriber", zap.Error(err))
		}
		transcriber = whisper
	} else {
		logger.Warn("OPENAI_API_KEY not set, batch transcription is disabled")
	}

	// Streaming recognition. Disabled unless Google credentials are
	// present; voice sessions then report recognition as unsupported.
	var newRecognizer websocket.RecognizerFactory
	if os.Getenv("GOOGLE_APPLICATION_CREDENTIALS") != "" {
		audioConfig := stt.NewGoogleConfigFromEnv()
		newRecognizer = func() repositories.SpeechRecognizer {
			return stt.NewGoogleRecognizer(audioConfig, logger)
		}
	} else {
		logger.Warn("GOOGLE_APPLICATION_CREDENTIALS not set, streaming recognition is disabled")
	}

	// Chat model
	var chat *usecase.ChatService
	if os.Getenv("GEMINI_API_KEY") != "" && conversations != nil {
		model, err := llm.NewGeminiChatModel(llm.NewGeminiConfigFromEnv(), logger)
		if err != nil {
			logger.Fatal("Failed to configure Gemini chat model", zap.Error(err))
		}
		chat = usecase.NewChatService(model, conversations, logger)
	} else {
		logger.Warn("Chat replies disabled, requires GEMINI_API_KEY and MongoDB")
	}

	hub := websocket.NewHub(newRecognizer, textToSpeech, chat, audit, logger)
	go hub.Run()

	reaper := websocket.NewIdleReaper(hub, 0, logger)
	reaper.Start()
	defer reaper.Stop()

	e := echo.New()
	e.HideBanner = true
	e.Use(middleware.Logger())
	e.Use(middleware.Recover())
	e.Use(middleware.CORS())

	server := api.NewServer(tokens, users, hub, conversations, audit, transcriber, textToSpeech, logger)
	server.InitRoutes(e)

	port := os.Getenv("PORT")
	if port == "" {
		port = "8080"
	}

	go func() {
		if err := e.Start(":" + port); err != nil && err != http.ErrServerClosed {
			logger.Fatal("shutting down the server", zap.Error(err))
		}
	}()

	logger.Info("Server started", zap.String("port", port))

	// Wait for interrupt signal to gracefully shutdown the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit

	logger.Info("Server is shutting down...")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := e.Shutdown(ctx); err != nil {
		logger.Fatal("Server forced to shutdown", zap.Error(err))
	}

	logger.Info("Server exited")
}
