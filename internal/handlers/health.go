package handlers

import (
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/harmonet/harmonet/internal/models"
)

// Health handles verbose health check requests from peers
func (h *Handler) Health(c *fiber.Ctx) error {
	waiting, active := h.dedup.Counts()
	return c.JSON(models.HealthResponse{
		Status:          "healthy",
		Endpoint:        h.node.Endpoint,
		Timestamp:       time.Now().UTC().Format(time.RFC3339),
		Version:         h.version,
		SyncJobsWaiting: waiting,
		SyncJobsActive:  active,
	})
}

// NotFound handles 404 errors
func (h *Handler) NotFound(c *fiber.Ctx) error {
	return c.Status(fiber.StatusNotFound).JSON(models.ErrorResponse{
		Error: models.ErrorDetail{
			Code:    "NOT_FOUND",
			Message: "Route not found",
			Path:    c.Path(),
		},
	})
}
