package server

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"

	"github.com/gofiber/fiber/v2"
	"github.com/valyala/fasthttp"
	"go.uber.org/zap"

	"github.com/papercomputeco/solo/pkg/engine"
	"github.com/papercomputeco/solo/pkg/llm"
	"github.com/papercomputeco/solo/pkg/session"
)

// stream runs the session inside the response body writer, so every engine
// step reaches the client as soon as it is produced.
func (s *Server) stream(c *fiber.Ctx, sess *session.Session, f frames) error {
	c.Set("Content-Type", "text/event-stream")
	c.Set("Cache-Control", "no-cache")
	c.Set("Connection", "keep-alive")
	c.Set("Transfer-Encoding", "chunked")

	c.Context().SetBodyStreamWriter(fasthttp.StreamWriter(func(w *bufio.Writer) {
		ctx, cancel := context.WithCancel(s.ctx)
		defer cancel()

		sink := &sseSink{w: w, frames: f}
		res := sess.Run(ctx, sink)
		if res.State != session.Failed {
			return
		}

		s.logger.Error("generation failed", zap.String("session", sess.ID()), zap.Error(res.Err))
		if err := sink.event(llm.ErrorResponse{Error: "engine failed: " + res.Err.Error()}); err != nil {
			s.logger.Debug("failed to send error event", zap.Error(err))
		}
	}))

	return nil
}

// sseSink writes server-sent events. Any write or flush error means the
// connection is gone.
type sseSink struct {
	w      *bufio.Writer
	frames frames
}

// Step sends one chunk carrying the step's delta.
func (s *sseSink) Step(step engine.Step) error {
	return s.event(s.frames.chunk(step.Text, step.Delta))
}

// Done sends the terminal chunk followed by the end-of-stream sentinel.
func (s *sseSink) Done(final string) error {
	if err := s.event(s.frames.stop(final)); err != nil {
		return err
	}
	return s.data([]byte(llm.DoneSentinel))
}

func (s *sseSink) event(v any) error {
	payload, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	return s.data(payload)
}

func (s *sseSink) data(payload []byte) error {
	if _, err := s.w.WriteString("data: "); err != nil {
		return err
	}
	if _, err := s.w.Write(payload); err != nil {
		return err
	}
	if _, err := s.w.WriteString("\n\n"); err != nil {
		return err
	}
	return s.w.Flush()
}
