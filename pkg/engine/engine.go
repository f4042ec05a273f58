// Package engine defines the contract between the serving façade and the
// stateful text-generation backend it fronts.
package engine

import (
	"context"
	"iter"

	"github.com/papercomputeco/solo/pkg/llm"
)

// Step is one element of an engine's output sequence.
type Step struct {
	// Text is the full generated text so far.
	Text string

	// Delta is the text added by this step.
	Delta string
}

// Engine is a single, stateful generation backend. Its configuration is
// process-wide mutable state: callers must hold the admission gate from
// Configure until they stop consuming the sequence returned by Generate.
type Engine interface {
	// Name identifies the backend and model, e.g. "ollama/llama3.2".
	Name() string

	// Configure replaces the live generation configuration with the given
	// layers folded in order, so later layers win.
	Configure(layers ...llm.Options)

	// Generate returns a lazy, ordered, finite sequence of steps continuing
	// prompt. Generation ends when stop is produced (when non-empty), the
	// backend exhausts its output, or the consumer stops iterating. An error
	// is yielded at most once, as the last element.
	Generate(ctx context.Context, prompt, stop string) iter.Seq2[Step, error]

	// Close releases backend resources.
	Close() error
}
