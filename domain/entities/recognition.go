package entities

import "time"

// RecognitionResult is a single utterance segment produced by the
// speech engine. Immutable once emitted; interim results for an
// utterance are superseded by the final result.
type RecognitionResult struct {
	Transcript   string    `json:"transcript"`
	Confidence   float64   `json:"confidence"`
	IsFinal      bool      `json:"is_final"`
	Alternatives []string  `json:"alternatives,omitempty"`
	Timestamp    time.Time `json:"timestamp"`
}
