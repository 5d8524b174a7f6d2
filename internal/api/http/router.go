package http

import (
	"github.com/gofiber/fiber/v2"

	"github.com/sail-program/sail-gateway/internal/api/http/handlers"
	"github.com/sail-program/sail-gateway/internal/auth"
)

// RouteConfig bundles dependencies for route registration.
type RouteConfig struct {
	Health  *handlers.HealthHandler
	Auth    *handlers.AuthHandler
	Session *handlers.SessionHandler
	Views   *handlers.ViewsHandler
	Proxy   *handlers.ProxyHandler
	Guard   *auth.GuardMiddleware
	// APIMount is where the collaborator proxy is served, "/api" by default.
	APIMount string
}

// RegisterRoutes wires HTTP routes.
func RegisterRoutes(app *fiber.App, cfg RouteConfig) {
	app.Get("/health/live", cfg.Health.Live)
	app.Get("/health/ready", cfg.Health.Ready)
	app.Get("/health/metrics", cfg.Health.Metrics)

	app.Get(auth.LandingPath, cfg.Views.Landing)
	app.Get(auth.UnauthorizedPath, cfg.Views.Unauthorized)

	authGroup := app.Group("/auth")
	authGroup.Post("/login", cfg.Auth.Login)
	authGroup.Post("/register", cfg.Auth.Register)
	authGroup.Post("/logout", cfg.Auth.Logout)

	sessionGroup := app.Group("/session")
	sessionGroup.Post("/navigate", cfg.Session.Navigate)
	sessionGroup.Get("/decision", cfg.Session.Decision)
	sessionGroup.Get("/status", cfg.Session.Status)

	pages := cfg.Guard.Routes(auth.ModePage)
	app.Get("/admin", pages, cfg.Views.AdminIndex)
	app.Get("/admin/:section", pages, cfg.Views.Admin)
	app.Get("/students/:studentId/profile", pages, cfg.Views.StudentProfile)

	mount := cfg.APIMount
	if mount == "" {
		mount = "/api"
	}
	app.All(mount+"/*", cfg.Guard.RequireAnyRole(auth.ModeAPI), cfg.Proxy.Forward)
}
