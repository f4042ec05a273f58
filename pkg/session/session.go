package session

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"sync/atomic"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/papercomputeco/solo/pkg/engine"
	"github.com/papercomputeco/solo/pkg/ledger"
	"github.com/papercomputeco/solo/pkg/llm"
	"github.com/papercomputeco/solo/pkg/metrics"
)

// Kind selects how a request's prompt is produced.
type Kind string

const (
	// KindChat renders Messages with the prompt builder.
	KindChat Kind = ledger.KindChat

	// KindCompletion uses Prompt verbatim.
	KindCompletion Kind = ledger.KindCompletion
)

// Request is one generation request, already decoded from the transport.
type Request struct {
	Kind     Kind
	Messages []llm.Message
	Prompt   string
	Stream   bool

	// Stop overrides the stop sequence when non-nil. An empty string
	// disables stopping.
	Stop *string

	// Options are the request's generation overrides.
	Options llm.Options
}

// Sink delivers a session's output to the client.
type Sink interface {
	// Step is called once per engine step, in order, in stream mode only.
	// An error means the client is gone and cancels the session.
	Step(step engine.Step) error

	// Done is called once on natural end with the final text, after the
	// gate has been released. An error means the client is gone.
	Done(final string) error
}

// Result summarizes a finished session.
type Result struct {
	State   State
	Final   string
	Chunks  int
	Waited  time.Duration
	Elapsed time.Duration

	// Err is set when State is Failed.
	Err error
}

// Session is one request's lifecycle. A Session is run at most once.
type Session struct {
	id      string
	created time.Time
	req     Request
	prompt  string
	stop    string
	engine  engine.Engine
	runner  *Runner
	logger  *zap.Logger
	state   atomic.Int32
	ttft    time.Duration
}

// NewSession checks the request's preconditions and prepares its prompt.
// It never touches the gate: a rejected request is answered immediately.
func (r *Runner) NewSession(req Request) (*Session, error) {
	eng, ok := r.Engine()
	if !ok {
		return nil, ErrEngineNotLoaded
	}

	var text, stop string
	switch req.Kind {
	case KindChat:
		if len(req.Messages) == 0 || req.Messages[len(req.Messages)-1].Role != llm.RoleUser {
			return nil, ErrNoQuestion
		}
		text = r.builder.Build(req.Messages)
		stop = r.builder.DefaultStop()
	case KindCompletion:
		text = req.Prompt
	default:
		return nil, fmt.Errorf("unknown request kind %q", req.Kind)
	}
	if req.Stop != nil {
		stop = *req.Stop
	}

	id := uuid.NewString()
	return &Session{
		id:      id,
		created: time.Now(),
		req:     req,
		prompt:  text,
		stop:    stop,
		engine:  eng,
		runner:  r,
		logger:  r.logger.With(zap.String("session", id)),
	}, nil
}

// ID returns the session identifier.
func (s *Session) ID() string { return s.id }

// Created returns when the session was created.
func (s *Session) Created() time.Time { return s.created }

// Prompt returns the text handed to the engine.
func (s *Session) Prompt() string { return s.prompt }

// Stop returns the effective stop sequence.
func (s *Session) Stop() string { return s.stop }

// State returns the current lifecycle state.
func (s *Session) State() State { return State(s.state.Load()) }

func (s *Session) enter(state State) {
	s.state.Store(int32(state))
	s.logger.Debug("session state", zap.Stringer("state", state))
}

// Run drives the session to a terminal state. ctx ending, or the sink
// reporting a write failure, is treated as the client disconnecting. The
// gate is released on every path, including panics.
func (s *Session) Run(ctx context.Context, sink Sink) (res Result) {
	start := time.Now()
	done := s.runner.metrics.SessionStart()
	defer func() {
		res.Elapsed = time.Since(start)
		s.finish(&res, done)
	}()

	s.enter(WaitingForGate)
	permit, err := s.runner.gate.Acquire(ctx)
	res.Waited = time.Since(start)
	s.runner.metrics.RecordWait(res.Waited)
	if err != nil {
		res.State = Cancelled
		return res
	}
	defer func() { _ = permit.Release() }()

	s.engine.Configure(s.runner.Defaults(), s.req.Options)
	s.enter(Configured)

	next, stop := iter.Pull2(s.engine.Generate(ctx, s.prompt, s.stop))
	defer stop()

	s.enter(Streaming)
	for {
		if ctx.Err() != nil {
			res.State = Cancelled
			return res
		}

		step, err, ok := next()
		if !ok {
			break
		}
		if err != nil {
			if ctx.Err() != nil {
				res.State = Cancelled
				return res
			}
			res.State = Failed
			res.Err = fmt.Errorf("engine %s: %w", s.engine.Name(), err)
			return res
		}

		if res.Chunks == 0 {
			s.ttft = time.Since(start) - res.Waited
		}
		res.Chunks++
		res.Final = step.Text

		if s.req.Stream {
			if err := sink.Step(step); err != nil {
				s.logger.Debug("client gone mid-stream", zap.Error(err))
				res.State = Cancelled
				return res
			}
		}
	}
	stop()
	_ = permit.Release()

	if ctx.Err() != nil {
		res.State = Cancelled
		return res
	}
	if err := sink.Done(res.Final); err != nil {
		s.logger.Debug("client gone before completion", zap.Error(err))
		res.State = Cancelled
		return res
	}

	res.State = Completed
	return res
}

func (s *Session) finish(res *Result, done func(metrics.Outcome)) {
	if !res.State.Terminal() {
		// Run is unwinding from a panic; deferred releases have run.
		res.State = Failed
		res.Err = errors.New("session aborted")
	}
	s.enter(res.State)
	s.runner.metrics.RecordChunks(int64(res.Chunks), s.ttft)

	record := &ledger.Record{
		ID:          s.id,
		Kind:        string(s.req.Kind),
		Stream:      s.req.Stream,
		Engine:      s.engine.Name(),
		PromptChars: utf8.RuneCountInString(s.prompt),
		OutputChars: utf8.RuneCountInString(res.Final),
		Chunks:      res.Chunks,
		Waited:      res.Waited,
		Elapsed:     res.Elapsed,
		CreatedAt:   s.created,
	}

	switch res.State {
	case Completed:
		record.Outcome = ledger.OutcomeCompleted
		done(metrics.Completed)
	case Cancelled:
		record.Outcome = ledger.OutcomeCancelled
		done(metrics.Cancelled)
	default:
		record.Outcome = ledger.OutcomeFailed
		record.Error = res.Err.Error()
		done(metrics.Failed)
	}

	// The request context may already be gone.
	if err := s.runner.recorder.Put(context.Background(), record); err != nil {
		s.logger.Warn("failed to record session", zap.Error(err))
	}

	s.logger.Info("session finished",
		zap.String("kind", string(s.req.Kind)),
		zap.Bool("stream", s.req.Stream),
		zap.String("outcome", record.Outcome),
		zap.Int("chunks", res.Chunks),
		zap.Duration("waited", res.Waited),
		zap.Duration("elapsed", res.Elapsed),
	)
}
