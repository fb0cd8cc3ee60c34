package usecase

import (
	"errors"
	"fmt"
	"sync"

	"github.com/cdichat/voicebridge/domain/entities"
)

// ErrDuplicateCommand is returned when a command name is already registered
var ErrDuplicateCommand = errors.New("command name already registered")

// CommandRegistry owns the active set of voice commands for one voice
// control session. Commands are scanned in registration order, so an
// earlier-registered command with an overlapping phrase always wins.
type CommandRegistry struct {
	mu       sync.RWMutex
	commands []entities.VoiceCommand
}

// NewCommandRegistry creates an empty registry
func NewCommandRegistry() *CommandRegistry {
	return &CommandRegistry{}
}

// Register appends a command. Duplicate names are rejected: silent
// shadowing of an existing command is never what the caller wants.
func (r *CommandRegistry) Register(cmd entities.VoiceCommand) error {
	if err := cmd.Validate(); err != nil {
		return fmt.Errorf("invalid command %q: %w", cmd.Name, err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	for _, existing := range r.commands {
		if existing.Name == cmd.Name {
			return fmt.Errorf("%w: %s", ErrDuplicateCommand, cmd.Name)
		}
	}

	r.commands = append(r.commands, cmd)
	return nil
}

// Unregister removes the command with the given name. Removing an
// absent name is a no-op.
func (r *CommandRegistry) Unregister(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	kept := r.commands[:0]
	for _, cmd := range r.commands {
		if cmd.Name != name {
			kept = append(kept, cmd)
		}
	}
	r.commands = kept
}

// Commands returns a snapshot of the registered commands in
// registration order
func (r *CommandRegistry) Commands() []entities.VoiceCommand {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]entities.VoiceCommand, len(r.commands))
	copy(out, r.commands)
	return out
}
