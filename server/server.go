// Package server exposes the generation engine over an OpenAI-style HTTP API.
package server

import (
	"context"
	"errors"
	"net"
	"time"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/papercomputeco/solo/pkg/ledger"
	"github.com/papercomputeco/solo/pkg/llm"
	"github.com/papercomputeco/solo/pkg/session"
)

// Server is the HTTP front of a session.Runner. Every completion request
// becomes one generation session; the runner's admission gate decides when
// it reaches the engine.
type Server struct {
	config   Config
	runner   *session.Runner
	recorder ledger.Recorder
	logger   *zap.Logger
	server   *fiber.App

	// ctx bounds every session. fasthttp reports a vanished client only
	// through failed writes, so this ends on shutdown.
	ctx    context.Context
	cancel context.CancelFunc
}

// New creates a Server for runner.
func New(config Config, runner *session.Runner, logger *zap.Logger) *Server {
	if config.ModelID == "" {
		config.ModelID = "solo"
	}

	app := fiber.New(fiber.Config{
		// Disable startup message for cleaner logs
		DisableStartupMessage: true,
	})

	ctx, cancel := context.WithCancel(context.Background())
	s := &Server{
		config:   config,
		runner:   runner,
		recorder: runner.Recorder(),
		logger:   logger.Named("server"),
		server:   app,
		ctx:      ctx,
		cancel:   cancel,
	}

	// Completion endpoints, with and without the version prefix
	for _, prefix := range []string{"", "/v1"} {
		app.Post(prefix+"/chat/completions", s.handleChat)
		app.Post(prefix+"/completions", s.handleCompletion)
	}

	app.Get("/health", s.handleHealth)
	app.Get("/stats", s.handleStats)

	// Ledger inspection endpoints
	app.Get("/ledger/stats", s.handleLedgerStats)
	app.Get("/ledger/sessions", s.handleListSessions)
	app.Get("/ledger/sessions/:id", s.handleGetSession)

	return s
}

// Run starts the server on the configured listening address.
func (s *Server) Run() error {
	s.logger.Info("starting server",
		zap.String("listen", s.config.ListenAddr),
		zap.String("model_id", s.config.ModelID),
	)

	return s.server.Listen(s.config.ListenAddr)
}

// Serve starts the server on an existing listener.
func (s *Server) Serve(ln net.Listener) error {
	s.logger.Info("starting server", zap.String("listen", ln.Addr().String()))
	return s.server.Listener(ln)
}

// Close cancels running sessions, stops accepting requests, and releases the
// engine and ledger.
func (s *Server) Close() error {
	s.cancel()

	return errors.Join(
		s.server.ShutdownWithTimeout(10*time.Second),
		s.runner.Close(),
		s.recorder.Close(),
	)
}

func (s *Server) handleHealth(c *fiber.Ctx) error {
	name := ""
	if eng, ok := s.runner.Engine(); ok {
		name = eng.Name()
	}

	return c.JSON(map[string]string{
		"status":        "ok",
		"engine":        name,
		"engine_status": string(s.runner.EngineStatus()),
	})
}

func (s *Server) handleStats(c *fiber.Ctx) error {
	g := s.runner.Gate()

	return c.JSON(map[string]any{
		"engine_status": s.runner.EngineStatus(),
		"metrics":       s.runner.Metrics().Snapshot(),
		"gate": map[string]any{
			"held":    g.Held(),
			"waiting": g.Waiting(),
		},
	})
}

func errorJSON(c *fiber.Ctx, status int, msg string) error {
	return c.Status(status).JSON(llm.ErrorResponse{Error: msg})
}
