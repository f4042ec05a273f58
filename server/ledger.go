package server

import (
	"errors"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/papercomputeco/solo/pkg/ledger"
)

const defaultListLimit = 50

// handleLedgerStats returns session counts by outcome.
func (s *Server) handleLedgerStats(c *fiber.Ctx) error {
	stats, err := s.recorder.Stats(c.UserContext())
	if err != nil {
		s.logger.Error("failed to read ledger stats", zap.Error(err))
		return errorJSON(c, fiber.StatusInternalServerError, "failed to read ledger")
	}

	return c.JSON(stats)
}

// handleListSessions returns the most recent session records, optionally
// filtered by outcome.
func (s *Server) handleListSessions(c *fiber.Ctx) error {
	limit := c.QueryInt("limit", defaultListLimit)
	if limit < 0 {
		return errorJSON(c, fiber.StatusBadRequest, "limit must not be negative")
	}

	outcome := c.Query("outcome")
	switch outcome {
	case "", ledger.OutcomeCompleted, ledger.OutcomeCancelled, ledger.OutcomeFailed:
	default:
		return errorJSON(c, fiber.StatusBadRequest, "unknown outcome: "+outcome)
	}

	records, err := s.recorder.List(c.UserContext(), ledger.ListOptions{Limit: limit, Outcome: outcome})
	if err != nil {
		s.logger.Error("failed to list sessions", zap.Error(err))
		return errorJSON(c, fiber.StatusInternalServerError, "failed to read ledger")
	}

	return c.JSON(map[string]any{
		"count":    len(records),
		"sessions": records,
	})
}

// handleGetSession returns one session record.
func (s *Server) handleGetSession(c *fiber.Ctx) error {
	id := c.Params("id")
	if id == "" {
		return errorJSON(c, fiber.StatusBadRequest, "id parameter required")
	}

	record, err := s.recorder.Get(c.UserContext(), id)
	if err != nil {
		var notFound ledger.ErrNotFound
		if errors.As(err, &notFound) {
			return errorJSON(c, fiber.StatusNotFound, notFound.Error())
		}
		s.logger.Error("failed to read session", zap.String("id", id), zap.Error(err))
		return errorJSON(c, fiber.StatusInternalServerError, "failed to read ledger")
	}

	return c.JSON(record)
}
