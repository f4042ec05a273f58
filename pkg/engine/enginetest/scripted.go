// Package enginetest provides an in-memory engine for tests.
package enginetest

import (
	"context"
	"iter"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/papercomputeco/solo/pkg/engine"
	"github.com/papercomputeco/solo/pkg/llm"
)

// Call records one Generate invocation.
type Call struct {
	Prompt  string
	Stop    string
	Options llm.Options
}

// Scripted replays a fixed list of deltas for every Generate call. It
// tracks how many generations overlap so tests can assert exclusivity.
type Scripted struct {
	// Deltas are emitted one per step.
	Deltas []string

	// StepDelay is slept before each step.
	StepDelay time.Duration

	// Err, when set, is yielded after the deltas.
	Err error

	mu      sync.Mutex
	options llm.Options
	calls   []Call

	active    atomic.Int32
	maxActive atomic.Int32
	pulled    atomic.Int32
}

var _ engine.Engine = (*Scripted)(nil)

// NewScripted creates a Scripted engine emitting deltas.
func NewScripted(deltas ...string) *Scripted {
	return &Scripted{Deltas: deltas}
}

// Name implements engine.Engine.
func (s *Scripted) Name() string { return "scripted" }

// Configure implements engine.Engine.
func (s *Scripted) Configure(layers ...llm.Options) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.options = llm.Layer(layers...)
}

// Generate implements engine.Engine. A non-empty stop truncates the output
// at the first occurrence of stop, like a real backend would.
func (s *Scripted) Generate(ctx context.Context, prompt, stop string) iter.Seq2[engine.Step, error] {
	return func(yield func(engine.Step, error) bool) {
		s.mu.Lock()
		s.calls = append(s.calls, Call{Prompt: prompt, Stop: stop, Options: s.options})
		s.mu.Unlock()

		n := s.active.Add(1)
		defer s.active.Add(-1)
		for {
			cur := s.maxActive.Load()
			if n <= cur || s.maxActive.CompareAndSwap(cur, n) {
				break
			}
		}

		var full strings.Builder
		for _, delta := range s.Deltas {
			if s.StepDelay > 0 {
				select {
				case <-ctx.Done():
					return
				case <-time.After(s.StepDelay):
				}
			}

			if stop != "" && strings.Contains(full.String()+delta, stop) {
				text := full.String() + delta
				text = text[:strings.Index(text, stop)]
				if tail := strings.TrimPrefix(text, full.String()); tail != "" {
					s.pulled.Add(1)
					yield(engine.Step{Text: text, Delta: tail}, nil)
				}
				return
			}

			full.WriteString(delta)
			s.pulled.Add(1)
			if !yield(engine.Step{Text: full.String(), Delta: delta}, nil) {
				return
			}
		}

		if s.Err != nil {
			yield(engine.Step{}, s.Err)
		}
	}
}

// Close implements engine.Engine.
func (s *Scripted) Close() error { return nil }

// Calls returns a copy of the recorded Generate calls.
func (s *Scripted) Calls() []Call {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Call(nil), s.calls...)
}

// MaxConcurrent reports the highest number of overlapping generations seen.
func (s *Scripted) MaxConcurrent() int {
	return int(s.maxActive.Load())
}

// Pulled reports how many steps were produced across all generations.
func (s *Scripted) Pulled() int {
	return int(s.pulled.Load())
}
