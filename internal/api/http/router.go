package http

import (
	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/triage-service/internal/api/http/handlers"
	"github.com/spec-kit/triage-service/internal/auth"
	"github.com/spec-kit/triage-service/internal/domain"
)

// RouteConfig bundles dependencies for route registration.
type RouteConfig struct {
	Health         *handlers.HealthHandler
	Users          *handlers.UsersHandler
	Patients       *handlers.PatientsHandler
	Cases          *handlers.CasesHandler
	Audit          *handlers.AuditHandler
	AuthMiddleware *auth.AuthMiddleware
}

// RegisterRoutes wires HTTP routes.
func RegisterRoutes(app *fiber.App, cfg RouteConfig) {
	app.Get("/health/live", cfg.Health.Live)
	app.Get("/health/ready", cfg.Health.Ready)

	authGroup := app.Group("/auth")
	authGroup.Post("/login", cfg.Users.Login)

	authProtected := authGroup.Group("", cfg.AuthMiddleware.Handle)
	authProtected.Post("/register", auth.RequireRole(domain.UserRoleAdmin), cfg.Users.Register)
	authProtected.Post("/password/change", auth.RequireAuthenticated(), cfg.Users.ChangePassword)

	users := app.Group("/users", cfg.AuthMiddleware.Handle, auth.RequireRole(domain.UserRoleAdmin))
	users.Get("/", cfg.Users.ListUsers)
	users.Get("/:id", cfg.Users.GetUser)
	users.Patch("/:id", cfg.Users.UpdateUser)
	users.Delete("/:id", cfg.Users.DeleteUser)

	patients := app.Group("/patients", cfg.AuthMiddleware.Handle, auth.RequireAuthenticated())
	patients.Post("/", cfg.Patients.CreatePatient)
	patients.Get("/", cfg.Patients.ListPatients)
	patients.Get("/:id", cfg.Patients.GetPatient)
	patients.Post("/:id/verify", cfg.Patients.VerifyPatient)
	patients.Get("/:id/changelog", cfg.Patients.GetChangelog)

	cases := app.Group("/triage-cases", cfg.AuthMiddleware.Handle, auth.RequireAuthenticated())
	cases.Post("/", cfg.Cases.CreateCase)
	cases.Get("/", cfg.Cases.ListCases)
	cases.Get("/status/:status", cfg.Cases.ListCasesByStatus)
	cases.Get("/stats", cfg.Cases.GetStats)
	cases.Get("/:id", cfg.Cases.GetCase)
	cases.Patch("/:id", cfg.Cases.UpdateCase)
	cases.Post("/:id/review", cfg.Cases.ReviewCase)
	cases.Post("/:id/resolve", cfg.Cases.ResolveCase)
	cases.Delete("/:id", auth.RequireRole(domain.UserRoleAdmin), cfg.Cases.DeleteCase)
	cases.Get("/:id/changelog", cfg.Cases.GetChangelog)

	audit := app.Group("/audit-logs", cfg.AuthMiddleware.Handle, auth.RequireRole(domain.UserRoleAdmin))
	audit.Get("/", cfg.Audit.ListEntries)
	audit.Get("/resource/:type/:id", cfg.Audit.ListByResource)
	audit.Get("/actor/:id", cfg.Audit.ListByActor)
	audit.Post("/verify", cfg.Audit.VerifyChain)
}
