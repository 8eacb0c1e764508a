package http

import (
	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/helpdesk-intake/internal/api/http/handlers"
	"github.com/spec-kit/helpdesk-intake/internal/auth"
)

// RouteConfig bundles dependencies for route registration.
type RouteConfig struct {
	Health         *handlers.HealthHandler
	Metrics        *handlers.MetricsHandler
	Auth           *handlers.AuthHandler
	Cycles         *handlers.CyclesHandler
	Tickets        *handlers.TicketsHandler
	AuthMiddleware *auth.AuthMiddleware
}

// RegisterRoutes wires HTTP routes.
func RegisterRoutes(app *fiber.App, cfg RouteConfig) {
	app.Get("/health/live", cfg.Health.Live)
	app.Get("/health", cfg.Health.Health)
	app.Get("/metrics", cfg.Metrics.Metrics)

	app.Post("/auth/token", cfg.Auth.Token)

	protected := app.Group("", cfg.AuthMiddleware.Handle, auth.RequireOperator())

	protected.Post("/cycles/trigger", cfg.Cycles.TriggerCycle)
	protected.Get("/cycles", cfg.Cycles.ListCycles)
	protected.Get("/cycles/:id", cfg.Cycles.GetCycle)
	protected.Post("/reconcile/trigger", cfg.Cycles.TriggerSweep)

	protected.Get("/tickets", cfg.Tickets.ListTickets)
	protected.Get("/tickets/summary", cfg.Tickets.Summary)
	protected.Get("/tickets/:id/history", cfg.Tickets.History)
	protected.Post("/tickets/:id/check", cfg.Tickets.Check)
	protected.Delete("/tickets/:id", cfg.Tickets.Delete)
}
