package usecase

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/cdichat/voicebridge/domain/entities"
	"github.com/cdichat/voicebridge/domain/repositories"
)

// ErrRecognitionUnsupported is returned by Start when no speech
// recognition engine is available
var ErrRecognitionUnsupported = errors.New("speech recognition is not supported on this platform")

const (
	defaultSilenceTimeout      = 3 * time.Second
	defaultEndRestartBackoff   = 1 * time.Second
	defaultErrorRestartBackoff = 2 * time.Second
)

// SessionConfig configures a recognition session
type SessionConfig struct {
	Language        string
	MaxAlternatives int

	// AutoStop stops listening when the silence timer elapses outside
	// hands-free mode.
	AutoStop       bool
	SilenceTimeout time.Duration

	// Hands-free restart backoffs after an engine end or a non-abort
	// engine error.
	EndRestartBackoff   time.Duration
	ErrorRestartBackoff time.Duration
}

func (c SessionConfig) withDefaults() SessionConfig {
	if c.Language == "" {
		c.Language = "pt-BR"
	}
	if c.MaxAlternatives == 0 {
		c.MaxAlternatives = 3
	}
	if c.SilenceTimeout == 0 {
		c.SilenceTimeout = defaultSilenceTimeout
	}
	if c.EndRestartBackoff == 0 {
		c.EndRestartBackoff = defaultEndRestartBackoff
	}
	if c.ErrorRestartBackoff == 0 {
		c.ErrorRestartBackoff = defaultErrorRestartBackoff
	}
	return c
}

// SessionNotifications are optional observer slots for session
// lifecycle events. They are invoked without the session lock held.
type SessionNotifications struct {
	OnStarted        func()
	OnEnded          func()
	OnError          func(code string)
	OnSpeechDetected func()
	OnSilence        func()
	OnResult         func(result entities.RecognitionResult)
}

// RecognitionSession wraps a continuous recognition stream and manages
// its lifecycle: start/stop, silence timeout, and hands-free
// auto-restart across the engine's natural per-utterance termination.
// Exactly one stream is active at a time per session instance.
type RecognitionSession struct {
	recognizer repositories.SpeechRecognizer
	dispatcher *Dispatcher
	config     SessionConfig
	notify     SessionNotifications
	logger     *zap.Logger

	mu           sync.Mutex
	listening    bool
	handsFree    bool
	lastActivity time.Time
	silenceTimer *time.Timer
	restartTimer *time.Timer
}

// NewRecognitionSession wires a session to its engine. A nil recognizer
// is allowed; Start then reports ErrRecognitionUnsupported.
func NewRecognitionSession(
	recognizer repositories.SpeechRecognizer,
	dispatcher *Dispatcher,
	config SessionConfig,
	notify SessionNotifications,
	logger *zap.Logger,
) (*RecognitionSession, error) {
	s := &RecognitionSession{
		recognizer: recognizer,
		dispatcher: dispatcher,
		config:     config.withDefaults(),
		notify:     notify,
		logger:     logger,
	}

	if recognizer != nil {
		err := recognizer.Configure(repositories.RecognizerConfig{
			Language:        s.config.Language,
			Continuous:      true,
			InterimResults:  true,
			MaxAlternatives: s.config.MaxAlternatives,
		}, repositories.RecognizerEvents{
			OnStart:       s.handleEngineStart,
			OnEnd:         s.handleEngineEnd,
			OnError:       s.handleEngineError,
			OnSpeechStart: s.handleSpeechStart,
			OnSpeechEnd:   s.handleSpeechEnd,
			OnResult:      s.handleResults,
		})
		if err != nil {
			return nil, err
		}
	}

	return s, nil
}

// Start requests the engine to begin continuous recognition. It does
// not block on the transition; completion is signaled by the engine's
// start event. No-op when already listening.
func (s *RecognitionSession) Start(ctx context.Context) error {
	if s.recognizer == nil {
		return ErrRecognitionUnsupported
	}

	s.mu.Lock()
	if s.listening {
		s.mu.Unlock()
		return nil
	}
	s.lastActivity = time.Now()
	s.mu.Unlock()

	return s.recognizer.Start(ctx)
}

// Stop stops the stream if listening and cancels any pending timers.
// Safe to call repeatedly.
func (s *RecognitionSession) Stop() {
	s.mu.Lock()
	s.cancelSilenceTimerLocked()
	s.cancelRestartTimerLocked()
	wasListening := s.listening
	s.mu.Unlock()

	if !wasListening {
		return
	}

	if err := s.recognizer.Stop(); err != nil {
		s.logger.Warn("Failed to stop recognition engine", zap.Error(err))
	}
}

// IsListening reports whether the engine stream is currently active
func (s *RecognitionSession) IsListening() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.listening
}

// HandsFree reports whether hands-free mode is enabled
func (s *RecognitionSession) HandsFree() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.handsFree
}

// LastActivity returns the timestamp of the last engine activity
func (s *RecognitionSession) LastActivity() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastActivity
}

// SetHandsFree toggles hands-free mode. Enabling starts listening if
// not already active; disabling stops listening and cancels any
// scheduled auto-restart so a stale restart cannot fire later.
func (s *RecognitionSession) SetHandsFree(ctx context.Context, enabled bool) error {
	s.mu.Lock()
	s.handsFree = enabled
	if !enabled {
		s.cancelRestartTimerLocked()
	}
	listening := s.listening
	s.mu.Unlock()

	if enabled && !listening {
		return s.Start(ctx)
	}
	if !enabled && listening {
		s.Stop()
	}
	return nil
}

func (s *RecognitionSession) handleEngineStart() {
	s.mu.Lock()
	s.listening = true
	s.lastActivity = time.Now()
	s.mu.Unlock()

	s.logger.Info("Recognition started")
	if s.notify.OnStarted != nil {
		s.notify.OnStarted()
	}
}

func (s *RecognitionSession) handleEngineEnd() {
	s.mu.Lock()
	s.listening = false
	s.cancelSilenceTimerLocked()
	handsFree := s.handsFree
	if handsFree {
		s.scheduleRestartLocked(s.config.EndRestartBackoff)
	}
	s.mu.Unlock()

	s.logger.Info("Recognition ended", zap.Bool("handsFree", handsFree))
	if s.notify.OnEnded != nil {
		s.notify.OnEnded()
	}
}

func (s *RecognitionSession) handleEngineError(code string) {
	s.mu.Lock()
	if s.handsFree && code != repositories.ErrCodeAborted {
		s.scheduleRestartLocked(s.config.ErrorRestartBackoff)
	}
	s.mu.Unlock()

	s.logger.Warn("Recognition engine error", zap.String("code", code))
	if s.notify.OnError != nil {
		s.notify.OnError(code)
	}
}

func (s *RecognitionSession) handleSpeechStart() {
	s.mu.Lock()
	s.cancelSilenceTimerLocked()
	s.lastActivity = time.Now()
	s.mu.Unlock()

	if s.notify.OnSpeechDetected != nil {
		s.notify.OnSpeechDetected()
	}
}

func (s *RecognitionSession) handleSpeechEnd() {
	s.mu.Lock()
	s.cancelSilenceTimerLocked()
	s.silenceTimer = time.AfterFunc(s.config.SilenceTimeout, s.handleSilenceElapsed)
	s.mu.Unlock()
}

func (s *RecognitionSession) handleSilenceElapsed() {
	s.mu.Lock()
	autoStop := s.config.AutoStop && !s.handsFree
	s.mu.Unlock()

	// The silence notification always fires; the stop is conditional.
	if s.notify.OnSilence != nil {
		s.notify.OnSilence()
	}
	if autoStop {
		s.logger.Info("Silence timeout, stopping recognition")
		s.Stop()
	}
}

func (s *RecognitionSession) handleResults(results []entities.RecognitionResult) {
	s.mu.Lock()
	s.lastActivity = time.Now()
	s.mu.Unlock()

	for _, result := range results {
		if s.notify.OnResult != nil {
			s.notify.OnResult(result)
		}
		if result.IsFinal {
			s.dispatcher.ProcessTranscript(result.Transcript, result.Confidence)
		}
	}
}

// scheduleRestartLocked arms the hands-free restart timer. The handle
// is kept so an invalidating transition can cancel it; the callback
// still re-checks the flag at fire time.
func (s *RecognitionSession) scheduleRestartLocked(backoff time.Duration) {
	s.cancelRestartTimerLocked()
	s.restartTimer = time.AfterFunc(backoff, func() {
		s.mu.Lock()
		shouldRestart := s.handsFree && !s.listening
		s.mu.Unlock()

		if !shouldRestart {
			return
		}

		s.logger.Info("Hands-free mode, restarting recognition")
		if err := s.Start(context.Background()); err != nil {
			s.logger.Error("Hands-free restart failed", zap.Error(err))
		}
	})
}

func (s *RecognitionSession) cancelSilenceTimerLocked() {
	if s.silenceTimer != nil {
		s.silenceTimer.Stop()
		s.silenceTimer = nil
	}
}

func (s *RecognitionSession) cancelRestartTimerLocked() {
	if s.restartTimer != nil {
		s.restartTimer.Stop()
		s.restartTimer = nil
	}
}
