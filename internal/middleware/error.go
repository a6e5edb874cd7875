package middleware

import (
	"errors"

	"github.com/gofiber/fiber/v2"

	"github.com/harmonet/harmonet/internal/logging"
	"github.com/harmonet/harmonet/internal/models"
)

// ErrorHandler shapes every unhandled route error into the common response
// envelope. Handlers signal expected failures with fiber errors carrying
// their status; anything else is an internal error and its detail stays in
// the log, not the response.
func ErrorHandler(logger *logging.Logger) fiber.ErrorHandler {
	return func(c *fiber.Ctx, err error) error {
		status := fiber.StatusInternalServerError
		message := "Internal Server Error"

		var fe *fiber.Error
		if errors.As(err, &fe) {
			status = fe.Code
			message = fe.Message
		}

		logger.Error("Request failed",
			"method", c.Method(),
			"path", c.Path(),
			"status", status,
			"error", err)

		return c.Status(status).JSON(models.ErrorResponse{
			Error: models.ErrorDetail{
				Code:    "ERROR",
				Message: message,
			},
		})
	}
}
