package usecase

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/cdichat/voicebridge/domain/entities"
	"github.com/cdichat/voicebridge/domain/repositories"
)

// fakeRecognizer drives session tests without a live speech engine. It
// reports lifecycle transitions synchronously, the way a local engine
// event loop would.
type fakeRecognizer struct {
	mu         sync.Mutex
	events     repositories.RecognizerEvents
	startCalls int
	stopCalls  int
	startErr   error
}

func (f *fakeRecognizer) Configure(_ repositories.RecognizerConfig, events repositories.RecognizerEvents) error {
	f.events = events
	return nil
}

func (f *fakeRecognizer) Start(context.Context) error {
	f.mu.Lock()
	f.startCalls++
	err := f.startErr
	f.mu.Unlock()
	if err != nil {
		return err
	}
	f.events.OnStart()
	return nil
}

func (f *fakeRecognizer) Stop() error {
	f.mu.Lock()
	f.stopCalls++
	f.mu.Unlock()
	f.events.OnEnd()
	return nil
}

func (f *fakeRecognizer) starts() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.startCalls
}

func newTestSession(t *testing.T, rec repositories.SpeechRecognizer, cfg SessionConfig, notify SessionNotifications) *RecognitionSession {
	t.Helper()
	registry := NewCommandRegistry()
	dispatcher := NewDispatcher(registry, zap.NewNop())
	s, err := NewRecognitionSession(rec, dispatcher, cfg, notify, zap.NewNop())
	if err != nil {
		t.Fatalf("NewRecognitionSession: %v", err)
	}
	return s
}

func TestSessionStartWithoutEngine(t *testing.T) {
	s := newTestSession(t, nil, SessionConfig{}, SessionNotifications{})

	if err := s.Start(context.Background()); !errors.Is(err, ErrRecognitionUnsupported) {
		t.Errorf("expected ErrRecognitionUnsupported, got %v", err)
	}
}

func TestSessionStartIsIdempotentWhileListening(t *testing.T) {
	rec := &fakeRecognizer{}
	s := newTestSession(t, rec, SessionConfig{}, SessionNotifications{})

	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}
	if !s.IsListening() {
		t.Fatal("expected session to be listening after start")
	}

	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("second start: %v", err)
	}
	if rec.starts() != 1 {
		t.Errorf("start while listening must no-op, engine started %d times", rec.starts())
	}
}

func TestSessionStopIsIdempotent(t *testing.T) {
	rec := &fakeRecognizer{}
	s := newTestSession(t, rec, SessionConfig{}, SessionNotifications{})

	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}

	s.Stop()
	s.Stop()

	if s.IsListening() {
		t.Error("expected IsListening false after stop")
	}
	if rec.stopCalls != 1 {
		t.Errorf("expected engine stopped once, got %d", rec.stopCalls)
	}
}

func TestSessionHandsFreeAutoRestart(t *testing.T) {
	rec := &fakeRecognizer{}
	s := newTestSession(t, rec, SessionConfig{
		EndRestartBackoff:   10 * time.Millisecond,
		ErrorRestartBackoff: 10 * time.Millisecond,
	}, SessionNotifications{})

	if err := s.SetHandsFree(context.Background(), true); err != nil {
		t.Fatalf("enable hands-free: %v", err)
	}
	if rec.starts() != 1 {
		t.Fatalf("expected engine started on hands-free enable, got %d", rec.starts())
	}

	// The engine's natural per-utterance termination.
	rec.events.OnEnd()

	deadline := time.Now().Add(500 * time.Millisecond)
	for rec.starts() < 2 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if rec.starts() != 2 {
		t.Errorf("expected hands-free restart after engine end, starts=%d", rec.starts())
	}
}

func TestSessionNoRestartWhenHandsFreeDisabled(t *testing.T) {
	rec := &fakeRecognizer{}
	s := newTestSession(t, rec, SessionConfig{
		EndRestartBackoff: 10 * time.Millisecond,
	}, SessionNotifications{})

	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}

	rec.events.OnEnd()

	time.Sleep(50 * time.Millisecond)
	if rec.starts() != 1 {
		t.Errorf("engine end without hands-free must not schedule restart, starts=%d", rec.starts())
	}
	_ = s
}

func TestSessionDisablingHandsFreeCancelsScheduledRestart(t *testing.T) {
	rec := &fakeRecognizer{}
	s := newTestSession(t, rec, SessionConfig{
		EndRestartBackoff: 30 * time.Millisecond,
	}, SessionNotifications{})

	if err := s.SetHandsFree(context.Background(), true); err != nil {
		t.Fatalf("enable hands-free: %v", err)
	}

	rec.events.OnEnd() // schedules a restart

	if err := s.SetHandsFree(context.Background(), false); err != nil {
		t.Fatalf("disable hands-free: %v", err)
	}

	time.Sleep(100 * time.Millisecond)
	if rec.starts() != 1 {
		t.Errorf("stale restart fired after hands-free was disabled, starts=%d", rec.starts())
	}
}

func TestSessionNoRestartAfterAbortError(t *testing.T) {
	rec := &fakeRecognizer{}
	s := newTestSession(t, rec, SessionConfig{
		ErrorRestartBackoff: 10 * time.Millisecond,
	}, SessionNotifications{})

	if err := s.SetHandsFree(context.Background(), true); err != nil {
		t.Fatalf("enable hands-free: %v", err)
	}

	rec.events.OnError(repositories.ErrCodeAborted)

	time.Sleep(50 * time.Millisecond)
	if rec.starts() != 1 {
		t.Errorf("deliberate abort must not trigger a restart, starts=%d", rec.starts())
	}
	_ = s
}

func TestSessionErrorTriggersRestartInHandsFree(t *testing.T) {
	rec := &fakeRecognizer{}
	s := newTestSession(t, rec, SessionConfig{
		ErrorRestartBackoff: 10 * time.Millisecond,
	}, SessionNotifications{})

	if err := s.SetHandsFree(context.Background(), true); err != nil {
		t.Fatalf("enable hands-free: %v", err)
	}

	rec.events.OnEnd()
	rec.events.OnError(repositories.ErrCodeNetwork)

	deadline := time.Now().Add(500 * time.Millisecond)
	for rec.starts() < 2 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if rec.starts() != 2 {
		t.Errorf("expected restart after network error in hands-free, starts=%d", rec.starts())
	}
}

func TestSessionSilenceTimerAutoStop(t *testing.T) {
	rec := &fakeRecognizer{}
	silenceFired := make(chan struct{}, 1)
	s := newTestSession(t, rec, SessionConfig{
		AutoStop:       true,
		SilenceTimeout: 10 * time.Millisecond,
	}, SessionNotifications{
		OnSilence: func() {
			select {
			case silenceFired <- struct{}{}:
			default:
			}
		},
	})

	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}

	rec.events.OnSpeechStart()
	rec.events.OnSpeechEnd()

	select {
	case <-silenceFired:
	case <-time.After(500 * time.Millisecond):
		t.Fatal("silence notification never fired")
	}

	deadline := time.Now().Add(500 * time.Millisecond)
	for s.IsListening() && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if s.IsListening() {
		t.Error("expected auto-stop after silence timeout")
	}
}

func TestSessionSpeechDetectedCancelsSilenceTimer(t *testing.T) {
	rec := &fakeRecognizer{}
	s := newTestSession(t, rec, SessionConfig{
		AutoStop:       true,
		SilenceTimeout: 30 * time.Millisecond,
	}, SessionNotifications{})

	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}

	rec.events.OnSpeechEnd()   // arms the silence timer
	rec.events.OnSpeechStart() // voice detected again, cancels it

	time.Sleep(100 * time.Millisecond)
	if !s.IsListening() {
		t.Error("silence timer should have been cancelled by speech start")
	}
}

func TestSessionForwardsOnlyFinalResultsToDispatcher(t *testing.T) {
	registry := NewCommandRegistry()
	dispatcher := NewDispatcher(registry, zap.NewNop())

	calls := 0
	cmd := testCommand("nova_conversa", "nova conversa")
	cmd.Action = func(entities.CommandParams) error {
		calls++
		return nil
	}
	if err := registry.Register(cmd); err != nil {
		t.Fatalf("register: %v", err)
	}

	rec := &fakeRecognizer{}
	var seen []entities.RecognitionResult
	s, err := NewRecognitionSession(rec, dispatcher, SessionConfig{}, SessionNotifications{
		OnResult: func(result entities.RecognitionResult) {
			seen = append(seen, result)
		},
	}, zap.NewNop())
	if err != nil {
		t.Fatalf("NewRecognitionSession: %v", err)
	}

	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}

	rec.events.OnResult([]entities.RecognitionResult{
		{Transcript: "nova", Confidence: 0.4, IsFinal: false, Timestamp: time.Now()},
		{Transcript: "nova conversa", Confidence: 0.92, IsFinal: true, Timestamp: time.Now()},
	})

	if len(seen) != 2 {
		t.Errorf("both interim and final results must reach listeners, got %d", len(seen))
	}
	if calls != 1 {
		t.Errorf("only the final result may dispatch, got %d calls", calls)
	}
}
