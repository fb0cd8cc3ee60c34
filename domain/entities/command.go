package entities

import (
	"errors"
	"time"
)

// CommandCategory groups voice commands for display and filtering
type CommandCategory string

const (
	CategoryNavigation CommandCategory = "navigation"
	CategoryMessage    CommandCategory = "message"
	CategoryControl    CommandCategory = "control"
	CategorySystem     CommandCategory = "system"
)

// CommandParams holds free-form text captured by a phrase placeholder,
// keyed by the placeholder name (lowercased, without brackets).
type CommandParams map[string]string

// CommandAction is the callable invoked when a command's phrase matches
// a transcript. A returned error is logged by the dispatcher and never
// propagated to the caller.
type CommandAction func(params CommandParams) error

// VoiceCommand represents a registered voice command: a set of trigger
// phrase templates bound to an action.
type VoiceCommand struct {
	Name        string
	Phrases     []string
	Action      CommandAction
	Category    CommandCategory
	Description string
}

// ExecutionRecord is appended to the dispatch history on every
// successful command execution.
type ExecutionRecord struct {
	CommandName string    `json:"command_name" bson:"command_name"`
	Timestamp   time.Time `json:"timestamp" bson:"timestamp"`
}

// Validate validates the command definition
func (c VoiceCommand) Validate() error {
	if c.Name == "" {
		return errors.New("command name is required")
	}

	if len(c.Phrases) == 0 {
		return errors.New("command requires at least one trigger phrase")
	}

	if c.Action == nil {
		return errors.New("command action is required")
	}

	switch c.Category {
	case CategoryNavigation, CategoryMessage, CategoryControl, CategorySystem:
	default:
		return errors.New("invalid command category")
	}

	return nil
}
