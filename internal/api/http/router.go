package http

import (
	"github.com/gofiber/fiber/v2"

	"github.com/conductor-oer/support-service/internal/api/http/handlers"
	"github.com/conductor-oer/support-service/internal/auth"
)

// RouteConfig bundles dependencies for route registration.
type RouteConfig struct {
	Health         *handlers.HealthHandler
	Tickets        *handlers.TicketsHandler
	StaffTickets   *handlers.StaffTicketsHandler
	AuthMiddleware *auth.AuthMiddleware
}

// RegisterRoutes wires HTTP routes. Ticket creation and single-ticket
// reads accept anonymous callers (guests authenticate with an access
// key); the dashboards, search, metrics and all mutations are staff-only.
// Auth middleware is attached per route: both groups share the /support
// prefix, and prefix-level middleware would run for every route under it.
// Static segments (open, closed, search, user) register before :uuid.
func RegisterRoutes(app *fiber.App, cfg RouteConfig) {
	app.Get("/health/live", cfg.Health.Live)
	app.Get("/health/ready", cfg.Health.Ready)

	support := app.Group("/support")
	authRequired := cfg.AuthMiddleware.Handle
	authOptional := cfg.AuthMiddleware.HandleOptional
	staffOnly := auth.RequireStaff()

	support.Get("/ticket/open", authRequired, staffOnly, cfg.StaffTickets.ListOpenTickets)
	support.Get("/ticket/closed", authRequired, staffOnly, cfg.StaffTickets.ListClosedTickets)
	support.Get("/ticket/search", authRequired, staffOnly, cfg.StaffTickets.SearchTickets)
	support.Get("/ticket/user/:uuid", authRequired, cfg.Tickets.ListUserTickets)
	support.Get("/metrics", authRequired, staffOnly, cfg.StaffTickets.GetMetrics)
	support.Patch("/ticket/:uuid", authRequired, staffOnly, cfg.StaffTickets.UpdateTicket)
	support.Delete("/ticket/:uuid", authRequired, staffOnly, cfg.StaffTickets.DeleteTicket)
	support.Post("/ticket/:uuid/assign", authRequired, staffOnly, cfg.StaffTickets.AssignTicket)

	support.Post("/ticket", authOptional, cfg.Tickets.CreateTicket)
	support.Get("/ticket/:uuid", authOptional, cfg.Tickets.GetTicket)
	support.Post("/ticket/:uuid/message", authOptional, cfg.Tickets.PostMessage)
	support.Get("/ticket/:uuid/messages", authOptional, cfg.Tickets.ListMessages)
}
