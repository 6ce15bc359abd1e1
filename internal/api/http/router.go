package http

import (
	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/portal-service/internal/api/http/handlers"
	"github.com/spec-kit/portal-service/internal/domain"
	"github.com/spec-kit/portal-service/internal/gate"
)

// RouteConfig bundles dependencies for route registration.
type RouteConfig struct {
	Health        *handlers.HealthHandler
	Auth          *handlers.AuthHandler
	Accounts      *handlers.AccountsHandler
	Quotes        *handlers.QuotesHandler
	Tasks         *handlers.TasksHandler
	Notifications *handlers.NotificationsHandler
	Gate          *gate.Middleware
}

// RegisterRoutes wires HTTP routes. The gate middleware fronts every
// request; paths outside the portal prefixes (health, auth) pass through.
func RegisterRoutes(app *fiber.App, cfg RouteConfig) {
	app.Use(cfg.Gate.Handle)

	app.Get("/health/live", cfg.Health.Live)
	app.Get("/health/ready", cfg.Health.Ready)

	authGroup := app.Group("/auth")
	authGroup.Post("/register", cfg.Auth.Register)
	authGroup.Post("/login", cfg.Auth.Login)
	authGroup.Post("/invite/accept", cfg.Auth.AcceptInvite)

	client := app.Group("/client", gate.RequireRole(domain.RoleClient))
	client.Get("/quotes/:id", cfg.Quotes.Get)
	client.Get("/notifications", cfg.Notifications.Feed)

	worker := app.Group("/worker", gate.RequireRole(domain.RoleWorker))
	worker.Post("/tasks/:id/complete", cfg.Tasks.Complete)
	worker.Get("/notifications", cfg.Notifications.Feed)

	admin := app.Group("/admin", gate.RequireRole(domain.RoleAdmin))
	admin.Post("/quotes", cfg.Quotes.Create)
	admin.Post("/quotes/:id/approve", cfg.Quotes.Approve)
	admin.Get("/quotes/:id", cfg.Quotes.Get)
	admin.Post("/tasks", cfg.Tasks.Create)
	admin.Post("/accounts", cfg.Accounts.Create)
	admin.Post("/accounts/:id/deactivate", cfg.Accounts.Deactivate)
	admin.Get("/notifications", cfg.Notifications.Feed)
	admin.Get("/notifications/failed", cfg.Notifications.Failed)
}
