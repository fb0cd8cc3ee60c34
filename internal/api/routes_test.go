package api

import (
	"bytes"
	"context"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/cdichat/voicebridge/domain/entities"
	"github.com/cdichat/voicebridge/domain/repositories"
	"github.com/cdichat/voicebridge/internal/auth"
	"github.com/cdichat/voicebridge/internal/websocket"
)

type fakeTranscriber struct {
	text string
	err  error
}

func (f *fakeTranscriber) TranscribeAudio(context.Context, []byte, repositories.AudioConfig) (string, error) {
	return f.text, f.err
}

type fakeTTS struct {
	audio []byte
	err   error
}

func (f *fakeTTS) SynthesizeSpeech(context.Context, string, repositories.VoiceConfig) ([]byte, error) {
	return f.audio, f.err
}

type fakeConversationRepo struct {
	conversations map[string]*entities.Conversation
	deleted       []string
}

func (r *fakeConversationRepo) Create(_ context.Context, c *entities.Conversation) error {
	r.conversations[c.ID] = c
	return nil
}

func (r *fakeConversationRepo) GetByID(_ context.Context, id string) (*entities.Conversation, error) {
	if c, ok := r.conversations[id]; ok {
		return c, nil
	}
	return nil, repositories.ErrConversationNotFound
}

func (r *fakeConversationRepo) ListByUser(_ context.Context, userID string, _ int) ([]*entities.Conversation, error) {
	var out []*entities.Conversation
	for _, c := range r.conversations {
		if c.UserID == userID {
			out = append(out, c)
		}
	}
	return out, nil
}

func (r *fakeConversationRepo) AppendMessage(context.Context, string, entities.ConversationMessage) error {
	return nil
}

func (r *fakeConversationRepo) Delete(_ context.Context, id string) error {
	delete(r.conversations, id)
	r.deleted = append(r.deleted, id)
	return nil
}

type fakeAuditRepo struct {
	records []entities.ExecutionRecord
}

func (r *fakeAuditRepo) Record(_ context.Context, _ string, record entities.ExecutionRecord) error {
	r.records = append(r.records, record)
	return nil
}

func (r *fakeAuditRepo) Recent(context.Context, string, int) ([]entities.ExecutionRecord, error) {
	return r.records, nil
}

type apiFixture struct {
	echo          *echo.Echo
	server        *Server
	tokens        *auth.Manager
	conversations *fakeConversationRepo
}

func newAPIFixture(t *testing.T) *apiFixture {
	t.Helper()
	logger := zap.NewNop()

	tokens, err := auth.NewManager("test-secret")
	if err != nil {
		t.Fatalf("failed to create token manager: %v", err)
	}
	users := auth.NewUserStore(map[string]string{"alice": "senha123"})
	conversations := &fakeConversationRepo{conversations: make(map[string]*entities.Conversation)}
	hub := websocket.NewHub(nil, nil, nil, nil, logger)

	server := NewServer(
		tokens,
		users,
		hub,
		conversations,
		&fakeAuditRepo{},
		&fakeTranscriber{text: "olá mundo"},
		&fakeTTS{audio: []byte("mp3-bytes")},
		logger,
	)

	e := echo.New()
	server.InitRoutes(e)

	return &apiFixture{
		echo:          e,
		server:        server,
		tokens:        tokens,
		conversations: conversations,
	}
}

func (f *apiFixture) token(t *testing.T, userID string) string {
	t.Helper()
	token, err := f.tokens.GenerateUserToken(userID)
	if err != nil {
		t.Fatalf("failed to generate token: %v", err)
	}
	return token
}

func (f *apiFixture) do(req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	f.echo.ServeHTTP(rec, req)
	return rec
}

func TestHealth(t *testing.T) {
	f := newAPIFixture(t)

	rec := f.do(httptest.NewRequest(http.MethodGet, "/health", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), `"status":"ok"`) {
		t.Errorf("unexpected health body: %s", rec.Body.String())
	}
}

func TestLogin(t *testing.T) {
	f := newAPIFixture(t)

	tests := []struct {
		name     string
		body     string
		wantCode int
	}{
		{name: "valid credentials", body: `{"username":"alice","password":"senha123"}`, wantCode: http.StatusOK},
		{name: "wrong password", body: `{"username":"alice","password":"errada"}`, wantCode: http.StatusUnauthorized},
		{name: "unknown user", body: `{"username":"bob","password":"senha123"}`, wantCode: http.StatusUnauthorized},
		{name: "missing fields", body: `{"username":"alice"}`, wantCode: http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/api/v1/auth/login", strings.NewReader(tt.body))
			req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)

			rec := f.do(req)
			if rec.Code != tt.wantCode {
				t.Fatalf("expected %d, got %d: %s", tt.wantCode, rec.Code, rec.Body.String())
			}
			if tt.wantCode == http.StatusOK {
				var resp LoginResponse
				if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
					t.Fatalf("failed to decode response: %v", err)
				}
				if resp.Token == "" || resp.UserID != "alice" {
					t.Errorf("incomplete login response: %+v", resp)
				}
				// The reported expiry must track the token's actual TTL.
				want := time.Now().Add(f.tokens.TokenTTL())
				if d := resp.ExpiresAt.Sub(want); d < -time.Minute || d > time.Minute {
					t.Errorf("expires_at %v drifts from the token TTL", resp.ExpiresAt)
				}
			}
		})
	}
}

func TestAuthenticatedEndpointsRejectMissingToken(t *testing.T) {
	f := newAPIFixture(t)

	rec := f.do(httptest.NewRequest(http.MethodGet, "/api/v1/commands", nil))
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}
}

func TestListCommands(t *testing.T) {
	f := newAPIFixture(t)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/commands", nil)
	req.Header.Set("Authorization", "Bearer "+f.token(t, "alice"))

	rec := f.do(req)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}

	var commands []CommandInfo
	if err := json.Unmarshal(rec.Body.Bytes(), &commands); err != nil {
		t.Fatalf("failed to decode commands: %v", err)
	}
	if len(commands) == 0 {
		t.Fatal("expected a non-empty command catalog")
	}

	names := make(map[string]bool)
	for _, cmd := range commands {
		names[cmd.Name] = true
	}
	for _, want := range []string{"enviar_mensagem", "ativar_maos_livres", "repetir_resposta"} {
		if !names[want] {
			t.Errorf("catalog is missing command %s", want)
		}
	}
}

func TestTranscribe(t *testing.T) {
	f := newAPIFixture(t)

	var body bytes.Buffer
	writer := multipart.NewWriter(&body)
	part, err := writer.CreateFormFile("audio", "clip.webm")
	if err != nil {
		t.Fatalf("failed to create form file: %v", err)
	}
	part.Write([]byte("fake-audio-bytes"))
	writer.WriteField("language", "pt")
	writer.Close()

	req := httptest.NewRequest(http.MethodPost, "/api/v1/transcribe", &body)
	req.Header.Set(echo.HeaderContentType, writer.FormDataContentType())
	req.Header.Set("Authorization", "Bearer "+f.token(t, "alice"))

	rec := f.do(req)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}

	var resp TranscribeResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if resp.Text != "olá mundo" {
		t.Errorf("expected transcript 'olá mundo', got %q", resp.Text)
	}
}

func TestTranscribeRequiresFile(t *testing.T) {
	f := newAPIFixture(t)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/transcribe", nil)
	req.Header.Set("Authorization", "Bearer "+f.token(t, "alice"))

	rec := f.do(req)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
}

func TestSynthesize(t *testing.T) {
	f := newAPIFixture(t)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/synthesize",
		strings.NewReader(`{"text":"olá","voice":"nova","speed":1.25}`))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	req.Header.Set("Authorization", "Bearer "+f.token(t, "alice"))

	rec := f.do(req)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if ct := rec.Header().Get(echo.HeaderContentType); ct != "audio/mpeg" {
		t.Errorf("expected audio/mpeg content type, got %s", ct)
	}
	if rec.Body.String() != "mp3-bytes" {
		t.Errorf("unexpected audio payload: %q", rec.Body.String())
	}
}

func TestSynthesizeRequiresText(t *testing.T) {
	f := newAPIFixture(t)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/synthesize", strings.NewReader(`{"text":"  "}`))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	req.Header.Set("Authorization", "Bearer "+f.token(t, "alice"))

	rec := f.do(req)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
}

func TestConversationOwnership(t *testing.T) {
	f := newAPIFixture(t)

	conversation := entities.NewConversation("alice", "primeira conversa")
	f.conversations.Create(context.Background(), conversation)

	// Owner can fetch it
	req := httptest.NewRequest(http.MethodGet, "/api/v1/conversations/"+conversation.ID, nil)
	req.Header.Set("Authorization", "Bearer "+f.token(t, "alice"))
	if rec := f.do(req); rec.Code != http.StatusOK {
		t.Fatalf("owner fetch: expected 200, got %d", rec.Code)
	}

	// A different user cannot
	req = httptest.NewRequest(http.MethodGet, "/api/v1/conversations/"+conversation.ID, nil)
	req.Header.Set("Authorization", "Bearer "+f.token(t, "mallory"))
	if rec := f.do(req); rec.Code != http.StatusForbidden {
		t.Fatalf("foreign fetch: expected 403, got %d", rec.Code)
	}

	// Nor delete
	req = httptest.NewRequest(http.MethodDelete, "/api/v1/conversations/"+conversation.ID, nil)
	req.Header.Set("Authorization", "Bearer "+f.token(t, "mallory"))
	if rec := f.do(req); rec.Code != http.StatusForbidden {
		t.Fatalf("foreign delete: expected 403, got %d", rec.Code)
	}

	// Owner delete succeeds
	req = httptest.NewRequest(http.MethodDelete, "/api/v1/conversations/"+conversation.ID, nil)
	req.Header.Set("Authorization", "Bearer "+f.token(t, "alice"))
	if rec := f.do(req); rec.Code != http.StatusNoContent {
		t.Fatalf("owner delete: expected 204, got %d", rec.Code)
	}
	if len(f.conversations.deleted) != 1 {
		t.Errorf("expected one deletion, got %d", len(f.conversations.deleted))
	}
}

func TestGetConversationNotFound(t *testing.T) {
	f := newAPIFixture(t)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/conversations/inexistente", nil)
	req.Header.Set("Authorization", "Bearer "+f.token(t, "alice"))

	if rec := f.do(req); rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d: %s", rec.Code, rec.Body.String())
	}
}

func TestListConversationsFiltersByUser(t *testing.T) {
	f := newAPIFixture(t)

	f.conversations.Create(context.Background(), entities.NewConversation("alice", "a"))
	f.conversations.Create(context.Background(), entities.NewConversation("bob", "b"))

	req := httptest.NewRequest(http.MethodGet, "/api/v1/conversations", nil)
	req.Header.Set("Authorization", "Bearer "+f.token(t, "alice"))

	rec := f.do(req)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}

	var conversations []entities.Conversation
	if err := json.Unmarshal(rec.Body.Bytes(), &conversations); err != nil {
		t.Fatalf("failed to decode: %v", err)
	}
	if len(conversations) != 1 || conversations[0].UserID != "alice" {
		t.Errorf("expected only alice's conversation, got %+v", conversations)
	}
}
