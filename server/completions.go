package server

import (
	"encoding/json"
	"errors"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/papercomputeco/solo/pkg/engine"
	"github.com/papercomputeco/solo/pkg/llm"
	"github.com/papercomputeco/solo/pkg/session"
)

// frames builds the response objects of one request's shape.
type frames struct {
	chunk func(full, delta string) *llm.Response
	stop  func(full string) *llm.Response
	whole func(full string) *llm.Response
}

func chatFrames(env llm.Envelope) frames {
	return frames{chunk: env.ChatChunk, stop: env.ChatStop, whole: env.ChatCompletion}
}

func completionFrames(env llm.Envelope) frames {
	return frames{chunk: env.CompletionChunk, stop: env.CompletionStop, whole: env.Completion}
}

// handleChat renders a conversation into a prompt and generates the
// assistant's reply.
func (s *Server) handleChat(c *fiber.Ctx) error {
	var req llm.ChatRequest
	if err := json.Unmarshal(c.Body(), &req); err != nil {
		s.logger.Debug("failed to parse request", zap.Error(err))
		return errorJSON(c, fiber.StatusBadRequest, "invalid request body")
	}

	s.logger.Debug("received chat request",
		zap.String("model", req.Model),
		zap.Int("message_count", len(req.Messages)),
		zap.Bool("stream", req.Stream),
	)

	sess, err := s.runner.NewSession(session.Request{
		Kind:     session.KindChat,
		Messages: req.Messages,
		Stream:   req.Stream,
		Stop:     req.Stop,
		Options:  req.Options,
	})
	if err != nil {
		return s.reject(c, err)
	}

	f := chatFrames(llm.NewEnvelope("chatcmpl-"+sess.ID(), s.config.ModelID, sess.Created()))
	if req.Stream {
		return s.stream(c, sess, f)
	}
	return s.aggregate(c, sess, f)
}

// handleCompletion continues a raw prompt verbatim.
func (s *Server) handleCompletion(c *fiber.Ctx) error {
	var req llm.CompletionRequest
	if err := json.Unmarshal(c.Body(), &req); err != nil {
		s.logger.Debug("failed to parse request", zap.Error(err))
		return errorJSON(c, fiber.StatusBadRequest, "invalid request body")
	}

	s.logger.Debug("received completion request",
		zap.String("model", req.Model),
		zap.Int("prompt_chars", len(req.Prompt)),
		zap.Bool("stream", req.Stream),
	)

	sess, err := s.runner.NewSession(session.Request{
		Kind:    session.KindCompletion,
		Prompt:  req.Prompt,
		Stream:  req.Stream,
		Stop:    req.Stop,
		Options: req.Options,
	})
	if err != nil {
		return s.reject(c, err)
	}

	f := completionFrames(llm.NewEnvelope("cmpl-"+sess.ID(), s.config.ModelID, sess.Created()))
	if req.Stream {
		return s.stream(c, sess, f)
	}
	return s.aggregate(c, sess, f)
}

// reject answers a request that failed its preconditions. The gate was
// never touched.
func (s *Server) reject(c *fiber.Ctx, err error) error {
	switch {
	case errors.Is(err, session.ErrEngineNotLoaded), errors.Is(err, session.ErrNoQuestion):
		return errorJSON(c, fiber.StatusBadRequest, err.Error())
	default:
		s.logger.Error("failed to create session", zap.Error(err))
		return errorJSON(c, fiber.StatusInternalServerError, "internal error")
	}
}

// aggregate runs the session to completion and answers with one object.
func (s *Server) aggregate(c *fiber.Ctx, sess *session.Session, f frames) error {
	sink := &aggregateSink{}
	res := sess.Run(s.ctx, sink)

	switch res.State {
	case session.Completed:
		return c.JSON(f.whole(sink.final))
	case session.Failed:
		s.logger.Error("generation failed", zap.String("session", sess.ID()), zap.Error(res.Err))
		return errorJSON(c, fiber.StatusBadGateway, "engine failed: "+res.Err.Error())
	default:
		// Cancelled: nothing is sent.
		return nil
	}
}

// aggregateSink keeps only the final text.
type aggregateSink struct {
	final string
}

func (a *aggregateSink) Step(engine.Step) error { return nil }

func (a *aggregateSink) Done(final string) error {
	a.final = final
	return nil
}
