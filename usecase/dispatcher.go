package usecase

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/cdichat/voicebridge/domain/entities"
)

const (
	// MinDispatchConfidence is the confidence gate: transcripts below
	// it are surfaced for display but never trigger actions.
	MinDispatchConfidence = 0.7

	// historyLimit caps the bounded execution history.
	historyLimit = 10
)

// Dispatcher matches finalized transcripts against a command registry
// and executes the first matching command's action. At most one command
// fires per transcript.
type Dispatcher struct {
	registry *CommandRegistry
	logger   *zap.Logger

	// OnExecuted, when set, is called after a successful dispatch with
	// the command and its extracted parameters.
	OnExecuted func(cmd entities.VoiceCommand, params entities.CommandParams)

	mu      sync.Mutex
	history []entities.ExecutionRecord
}

// NewDispatcher creates a dispatcher over the given registry
func NewDispatcher(registry *CommandRegistry, logger *zap.Logger) *Dispatcher {
	return &Dispatcher{
		registry: registry,
		logger:   logger,
	}
}

// ProcessTranscript scans the registry for the first command whose
// phrase matches the transcript and executes its action. Sub-threshold
// transcripts are ignored. Action errors and panics are contained here;
// they never reach the caller and never block later dispatches.
func (d *Dispatcher) ProcessTranscript(transcript string, confidence float64) {
	if confidence < MinDispatchConfidence {
		d.logger.Debug("Transcript below confidence threshold",
			zap.String("transcript", transcript),
			zap.Float64("confidence", confidence))
		return
	}

	normalized := strings.TrimSpace(strings.ToLower(transcript))
	if normalized == "" {
		return
	}

	for _, cmd := range d.registry.Commands() {
		for _, phrase := range cmd.Phrases {
			params, ok := MatchPhrase(normalized, phrase)
			if !ok {
				continue
			}

			d.logger.Info("Voice command matched",
				zap.String("command", cmd.Name),
				zap.String("phrase", phrase),
				zap.String("transcript", transcript))

			d.execute(cmd, params)
			return
		}
	}

	d.logger.Debug("No command matched transcript", zap.String("transcript", transcript))
}

func (d *Dispatcher) execute(cmd entities.VoiceCommand, params entities.CommandParams) {
	if err := d.runAction(cmd, params); err != nil {
		d.logger.Error("Command action failed",
			zap.String("command", cmd.Name),
			zap.Error(err))
	}

	d.mu.Lock()
	d.history = append([]entities.ExecutionRecord{{
		CommandName: cmd.Name,
		Timestamp:   time.Now(),
	}}, d.history...)
	if len(d.history) > historyLimit {
		d.history = d.history[:historyLimit]
	}
	d.mu.Unlock()

	if d.OnExecuted != nil {
		d.OnExecuted(cmd, params)
	}
}

func (d *Dispatcher) runAction(cmd entities.VoiceCommand, params entities.CommandParams) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("action panicked: %v", r)
		}
	}()
	return cmd.Action(params)
}

// History returns the execution history, most recent first, capped at
// ten entries
func (d *Dispatcher) History() []entities.ExecutionRecord {
	d.mu.Lock()
	defer d.mu.Unlock()

	out := make([]entities.ExecutionRecord, len(d.history))
	copy(out, d.history)
	return out
}
