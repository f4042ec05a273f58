// Package ledger records the outcome of every generation session. Records
// carry sizes and timings only; prompt and output text are never stored.
package ledger

import "time"

// Session outcomes.
const (
	OutcomeCompleted = "completed"
	OutcomeCancelled = "cancelled"
	OutcomeFailed    = "failed"
)

// Session kinds.
const (
	KindChat       = "chat"
	KindCompletion = "completion"
)

// Record describes one finished generation session.
type Record struct {
	// ID is the session identifier, also used in response envelope ids.
	ID string `json:"id"`

	// Kind is "chat" or "completion".
	Kind string `json:"kind"`

	// Stream reports whether the client asked for server-sent events.
	Stream bool `json:"stream"`

	// Outcome is one of the Outcome constants.
	Outcome string `json:"outcome"`

	// Engine names the backend that served the session.
	Engine string `json:"engine"`

	PromptChars int `json:"prompt_chars"`
	OutputChars int `json:"output_chars"`

	// Chunks counts engine steps consumed by the session.
	Chunks int `json:"chunks"`

	// Waited is the time spent waiting for the admission gate.
	Waited time.Duration `json:"waited_ns"`

	// Elapsed is the total session time, waiting included.
	Elapsed time.Duration `json:"elapsed_ns"`

	Error string `json:"error,omitempty"`

	CreatedAt time.Time `json:"created_at"`
}

// Stats summarizes a ledger.
type Stats struct {
	Total     int `json:"total"`
	Completed int `json:"completed"`
	Cancelled int `json:"cancelled"`
	Failed    int `json:"failed"`
}

func (s *Stats) add(outcome string, n int) {
	s.Total += n
	switch outcome {
	case OutcomeCompleted:
		s.Completed += n
	case OutcomeCancelled:
		s.Cancelled += n
	case OutcomeFailed:
		s.Failed += n
	}
}
