package router

import (
	"github.com/gofiber/fiber/v2"

	"github.com/paperproof/paperproof-api/internal/config"
	"github.com/paperproof/paperproof-api/internal/handler"
	"github.com/paperproof/paperproof-api/internal/observability"
)

// Dependencies groups router dependencies for registration.
type Dependencies struct {
	FactCheckHandler *handler.FactCheckHandler
	ReaderHandler    *handler.ReaderHandler
	JWTMiddleware    fiber.Handler
}

// Register wires the HTTP routes into the fiber application.
func Register(app *fiber.App, cfg config.Config, deps Dependencies) {
	// Common v1 group for health & headers
	api := app.Group("/api/v1", func(c *fiber.Ctx) error {
		c.Set("X-Application", cfg.AppName)
		return c.Next()
	})
	api.Get("/health", handler.HealthCheck(cfg))

	app.Get("/metrics", observability.MetricsHandler())

	// Use provided JWT middleware, or a no-op if nil
	jwtMiddleware := deps.JWTMiddleware
	if jwtMiddleware == nil {
		jwtMiddleware = func(c *fiber.Ctx) error { return c.Next() }
	}

	if deps.FactCheckHandler != nil {
		factcheck := app.Group("/api/v1/fact-check", jwtMiddleware)
		deps.FactCheckHandler.Register(factcheck)
	}

	if deps.ReaderHandler != nil {
		reader := app.Group("/api/v1/reader", jwtMiddleware)
		deps.ReaderHandler.Register(reader)
	}
}
