package http

import (
	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/service-workflow/internal/api/http/handlers"
	"github.com/spec-kit/service-workflow/internal/auth"
)

// RouteConfig bundles dependencies for route registration.
type RouteConfig struct {
	Health         *handlers.HealthHandler
	Auth           *handlers.AuthHandler
	Workflow       *handlers.WorkflowHandler
	AuthMiddleware *auth.AuthMiddleware
}

// RegisterRoutes wires HTTP routes.
func RegisterRoutes(app *fiber.App, cfg RouteConfig) {
	app.Get("/health/live", cfg.Health.Live)
	app.Get("/health/ready", cfg.Health.Ready)

	app.Post("/auth/staff/login", cfg.Auth.Login)

	tickets := app.Group("/tickets", cfg.AuthMiddleware.Handle, auth.RequireStaffRole())
	tickets.Post("", cfg.Workflow.CreateTicket)
	tickets.Get("/:id", cfg.Workflow.GetTicket)
	tickets.Post("/:id/actions/:action", cfg.Workflow.ApplyAction)
	tickets.Post("/:id/first-response", cfg.Workflow.RecordFirstResponse)
}
