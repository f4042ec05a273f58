// Package session drives one request's generation against the shared engine:
// admission, configuration, consumption of the engine's output, and delivery
// to the client in stream or aggregate mode.
package session

import (
	"errors"
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/papercomputeco/solo/pkg/engine"
	"github.com/papercomputeco/solo/pkg/gate"
	"github.com/papercomputeco/solo/pkg/ledger"
	"github.com/papercomputeco/solo/pkg/llm"
	"github.com/papercomputeco/solo/pkg/metrics"
	"github.com/papercomputeco/solo/pkg/prompt"
)

var (
	// ErrEngineNotLoaded is returned when a session is requested before an
	// engine has been installed.
	ErrEngineNotLoaded = errors.New("model not loaded")

	// ErrEngineLoaded is returned when installing a second engine.
	ErrEngineLoaded = errors.New("engine already installed")

	// ErrNoQuestion is returned for chat requests whose last turn is not a
	// user turn.
	ErrNoQuestion = errors.New("no question found")
)

// EngineStatus describes the engine slot of a Runner.
type EngineStatus string

const (
	EngineLoading EngineStatus = "loading"
	EngineReady   EngineStatus = "ready"
	EngineFailed  EngineStatus = "failed"
)

// Config holds the collaborators shared by every session.
type Config struct {
	// Builder renders chat turns. Defaults to prompt.New("", "", "").
	Builder *prompt.Builder

	// Defaults are the process-wide generation options, applied beneath
	// each request's overrides.
	Defaults llm.Options

	// Recorder receives one record per finished session. Defaults to an
	// in-memory recorder.
	Recorder ledger.Recorder

	// Metrics defaults to a fresh collector.
	Metrics *metrics.Collector
}

type installed struct {
	engine engine.Engine
}

// Runner is the explicit context every session runs in: the one engine,
// the one admission gate, and the shared defaults. The engine is installed
// once after it finishes loading and is never swapped.
type Runner struct {
	gate     *gate.Gate
	builder  *prompt.Builder
	recorder ledger.Recorder
	metrics  *metrics.Collector
	logger   *zap.Logger

	engine   atomic.Pointer[installed]
	failed   atomic.Bool
	defaults atomic.Pointer[llm.Options]
}

// NewRunner creates a Runner with no engine installed.
func NewRunner(config Config, g *gate.Gate, logger *zap.Logger) *Runner {
	if config.Builder == nil {
		config.Builder = prompt.New("", "", "")
	}
	if config.Recorder == nil {
		config.Recorder = ledger.NewMemoryRecorder()
	}
	if config.Metrics == nil {
		config.Metrics = metrics.NewCollector()
	}
	if g == nil {
		g = gate.New()
	}

	r := &Runner{
		gate:     g,
		builder:  config.Builder,
		recorder: config.Recorder,
		metrics:  config.Metrics,
		logger:   logger.Named("session"),
	}
	r.SetDefaults(config.Defaults)
	return r
}

// SetEngine installs the engine. It may be called once.
func (r *Runner) SetEngine(e engine.Engine) error {
	if !r.engine.CompareAndSwap(nil, &installed{engine: e}) {
		return ErrEngineLoaded
	}
	r.failed.Store(false)
	r.logger.Info("engine installed", zap.String("engine", e.Name()))
	return nil
}

// MarkEngineFailed records that loading the engine did not succeed.
func (r *Runner) MarkEngineFailed(err error) {
	r.failed.Store(true)
	r.logger.Error("engine failed to load", zap.Error(err))
}

// Engine returns the installed engine, if any.
func (r *Runner) Engine() (engine.Engine, bool) {
	in := r.engine.Load()
	if in == nil {
		return nil, false
	}
	return in.engine, true
}

// EngineStatus reports whether the engine is loading, ready, or failed.
func (r *Runner) EngineStatus() EngineStatus {
	switch {
	case r.engine.Load() != nil:
		return EngineReady
	case r.failed.Load():
		return EngineFailed
	default:
		return EngineLoading
	}
}

// SetDefaults replaces the process-wide generation defaults. Sessions that
// are already configured keep the defaults they started with.
func (r *Runner) SetDefaults(opts llm.Options) {
	r.defaults.Store(&opts)
}

// Defaults returns the current process-wide generation defaults.
func (r *Runner) Defaults() llm.Options {
	return *r.defaults.Load()
}

// Gate returns the admission gate.
func (r *Runner) Gate() *gate.Gate { return r.gate }

// Builder returns the prompt builder.
func (r *Runner) Builder() *prompt.Builder { return r.builder }

// Metrics returns the metrics collector.
func (r *Runner) Metrics() *metrics.Collector { return r.metrics }

// Recorder returns the session ledger.
func (r *Runner) Recorder() ledger.Recorder { return r.recorder }

// Close closes the installed engine, if any.
func (r *Runner) Close() error {
	if e, ok := r.Engine(); ok {
		return e.Close()
	}
	return nil
}
