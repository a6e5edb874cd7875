package router

import (
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/recover"

	"github.com/harmonet/harmonet/internal/config"
	"github.com/harmonet/harmonet/internal/handlers"
	"github.com/harmonet/harmonet/internal/logging"
	"github.com/harmonet/harmonet/internal/middleware"
)

// Setup configures all routes and middlewares
func Setup(app *fiber.App, logger *logging.Logger, h *handlers.Handler, cfg config.Config) {
	// Global middlewares
	app.Use(recover.New())
	app.Use(cors.New(cors.Config{
		AllowOrigins: "*",
		AllowMethods: "GET,POST,OPTIONS",
		AllowHeaders: "Origin,Content-Type,Accept,Authorization,X-API-Key,X-Request-ID",
	}))
	app.Use(logging.FiberMiddleware(logger))

	// Peer-facing surface: every node serves these, every node calls them
	app.Get("/health_check/verbose", h.Health)
	app.Get("/users/clock_status/:wallet", h.ClockStatus)
	app.Get("/users/batch_clock_status", h.BatchClockStatus)
	app.Post("/users/batch_clock_status", h.BatchClockStatus)
	app.Get("/users/export/:wallet", h.Export)
	app.Post("/sync", h.Sync)

	// Operator-facing surface
	authMiddleware := middleware.APIKeyAuth(logger, cfg.Auth.APIKeys, cfg.Auth.Enabled)
	ops := app.Group("/ops", authMiddleware)
	ops.Post("/sync/manual", h.RequestManualSync)

	// 404 handler
	app.Use(h.NotFound)
}

// New creates a new Fiber app with configuration
func New(logger *logging.Logger, h *handlers.Handler, cfg config.Config) *fiber.App {
	app := fiber.New(fiber.Config{
		AppName:               "Harmonet Node",
		DisableStartupMessage: true,
		ErrorHandler:          middleware.ErrorHandler(logger),
	})

	Setup(app, logger, h, cfg)

	return app
}
