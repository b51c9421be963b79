package handlers

import (
	"github.com/gofiber/fiber/v2"
)

// HealthHandler answers the liveness probe. It has no side effects.
type HealthHandler struct {
	successCode int
}

// NewHealthHandler creates a new health handler
func NewHealthHandler(successCode int) *HealthHandler {
	return &HealthHandler{successCode: successCode}
}

// Handle returns the fixed healthy payload
func (h *HealthHandler) Handle(c *fiber.Ctx) error {
	return c.JSON(successEnvelope(h.successCode, "Service is healthy", fiber.Map{"status": "healthy"}))
}
