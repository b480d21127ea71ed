package http

import (
	"github.com/gofiber/fiber/v2"

	"github.com/campuscare/counseling-service/internal/api/http/handlers"
	"github.com/campuscare/counseling-service/internal/auth"
	"github.com/campuscare/counseling-service/internal/domain"
	"github.com/campuscare/counseling-service/internal/live"
)

// RouteConfig bundles dependencies for route registration.
type RouteConfig struct {
	Health         *handlers.HealthHandler
	Tickets        *handlers.TicketsHandler
	Crisis         *handlers.CrisisHandler
	Assessments    *handlers.AssessmentsHandler
	Live           *live.Handler
	AuthMiddleware *auth.AuthMiddleware
}

// RegisterRoutes wires HTTP routes.
func RegisterRoutes(app *fiber.App, cfg RouteConfig) {
	app.Get("/health/live", cfg.Health.Live)
	app.Get("/health/ready", cfg.Health.Ready)

	// Websocket auth happens inside the handler; the upgrade request
	// carries its token as a query parameter.
	app.Get("/ws/tickets/:id", cfg.Live.Upgrade, cfg.Live.Serve())

	tickets := app.Group("/tickets", cfg.AuthMiddleware.Handle)
	tickets.Post("", auth.RequireRole(domain.RoleStudent), cfg.Tickets.Create)
	tickets.Get("/my", cfg.Tickets.ListMine)
	tickets.Get("/available", auth.RequireCounselor(), cfg.Tickets.ListAvailable)
	tickets.Get("/:id", cfg.Tickets.Get)
	tickets.Post("/:id/claim", auth.RequireCounselor(), cfg.Tickets.Claim)
	tickets.Post("/:id/assign", auth.RequireRole(domain.RoleAdmin), cfg.Tickets.Assign)
	tickets.Patch("/:id/status", cfg.Tickets.UpdateStatus)
	tickets.Post("/:id/messages", cfg.Tickets.SendMessage)
	tickets.Get("/:id/messages", cfg.Tickets.ListMessages)
	tickets.Get("/:id/history", cfg.Tickets.History)
	tickets.Post("/:id/crisis", cfg.Crisis.Report)

	assessments := app.Group("/assessments", cfg.AuthMiddleware.Handle)
	assessments.Post("", auth.RequireRole(domain.RoleStudent), cfg.Assessments.Submit)
	assessments.Get("/my", cfg.Assessments.ListMine)

	crisis := app.Group("/crisis-events", cfg.AuthMiddleware.Handle)
	crisis.Get("", auth.RequireRole(domain.RoleAdmin), cfg.Crisis.List)
	crisis.Post("/:id/acknowledge", auth.RequireCounselor(), cfg.Crisis.Acknowledge)
	crisis.Post("/:id/resolve", auth.RequireCounselor(), cfg.Crisis.Resolve)
}
