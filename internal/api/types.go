package api

import "time"

// LoginRequest represents the user login request payload
type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// LoginResponse represents a successful login response
type LoginResponse struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
	UserID    string    `json:"user_id"`
}

// CommandInfo describes one registered voice command
type CommandInfo struct {
	Name        string   `json:"name"`
	Phrases     []string `json:"phrases"`
	Category    string   `json:"category"`
	Description string   `json:"description"`
}

// TranscribeResponse carries the recognized text for an uploaded clip
type TranscribeResponse struct {
	Text string `json:"text"`
}

// SynthesizeRequest represents a speech synthesis request
type SynthesizeRequest struct {
	Text  string  `json:"text"`
	Voice string  `json:"voice,omitempty"`
	Speed float64 `json:"speed,omitempty"`
}

// ErrorResponse is the common error payload
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}
