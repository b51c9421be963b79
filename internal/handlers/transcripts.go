package handlers

import (
	"context"
	"strconv"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"

	"github.com/codebuildervaibhav/speech-recognition/internal/apperr"
	"github.com/codebuildervaibhav/speech-recognition/internal/logging"
	"github.com/codebuildervaibhav/speech-recognition/internal/storage"
)

const (
	defaultListLimit = 50
	maxListLimit     = 500
)

// HistoryLister reads the request history
type HistoryLister interface {
	ListOutcomes(ctx context.Context, limit int) ([]storage.Record, error)
}

// TranscriptsHandler handles GET /transcripts?limit=N
type TranscriptsHandler struct {
	history     HistoryLister
	successCode int
	log         zerolog.Logger
}

// NewTranscriptsHandler creates a new history handler
func NewTranscriptsHandler(history HistoryLister, successCode int, log zerolog.Logger) *TranscriptsHandler {
	return &TranscriptsHandler{
		history:     history,
		successCode: successCode,
		log:         logging.Component(log, "transcripts"),
	}
}

// Handle lists the most recent requests, newest first
func (h *TranscriptsHandler) Handle(c *fiber.Ctx) error {
	limit := defaultListLimit
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			return sendError(c, apperr.Validation("limit must be a positive integer"))
		}
		limit = min(n, maxListLimit)
	}

	records, err := h.history.ListOutcomes(c.UserContext(), limit)
	if err != nil {
		h.log.Error().Err(err).Msg("failed to list history")
		return sendError(c, apperr.Internal("history", "Failed to list requests", err))
	}

	return c.JSON(successEnvelope(h.successCode, "Success", records))
}
