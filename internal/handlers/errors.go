package handlers

import (
	"errors"
	"fmt"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"

	"github.com/codebuildervaibhav/speech-recognition/internal/logging"
	"github.com/codebuildervaibhav/speech-recognition/internal/types"
)

// multipartOverhead is the body headroom above the file limit so that the
// upload handler, not the server, rejects a slightly oversized file.
const multipartOverhead = 1024 * 1024

// BodyLimit returns the server body limit for a per-file limit in MB
func BodyLimit(maxFileSizeMB int) int {
	return maxFileSizeMB*1024*1024 + multipartOverhead
}

// NewErrorHandler renders errors raised by fiber itself (body limit, unknown
// routes, middleware) in the response envelope.
func NewErrorHandler(maxFileSizeMB int, log zerolog.Logger) fiber.ErrorHandler {
	log = logging.Component(log, "http")
	return func(c *fiber.Ctx, err error) error {
		status := fiber.StatusInternalServerError
		message := "Internal server error"

		var fe *fiber.Error
		if errors.As(err, &fe) {
			status = fe.Code
			message = fe.Message
		}
		if status == fiber.StatusRequestEntityTooLarge {
			message = fmt.Sprintf("File too large (max %dMB)", maxFileSizeMB)
		}
		if status >= fiber.StatusInternalServerError {
			log.Error().Err(err).Str("path", c.Path()).Msg("unhandled error")
		}

		return c.Status(status).JSON(types.Envelope{Code: status, Message: message, Data: nil})
	}
}
