package http

import (
	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/hra-case-service/internal/api/http/handlers"
	"github.com/spec-kit/hra-case-service/internal/auth"
	"github.com/spec-kit/hra-case-service/internal/domain"
)

// RouteConfig bundles dependencies for route registration.
type RouteConfig struct {
	Health         *handlers.HealthHandler
	Cases          *handlers.CasesHandler
	Jobs           *handlers.JobsHandler
	Directory      *handlers.DirectoryHandler
	AuthMiddleware *auth.AuthMiddleware
}

// RegisterRoutes wires HTTP routes.
func RegisterRoutes(app *fiber.App, cfg RouteConfig) {
	app.Get("/health/live", cfg.Health.Live)
	app.Get("/health/ready", cfg.Health.Ready)

	api := app.Group("/api/v1", cfg.AuthMiddleware.Handle)

	cases := api.Group("/cases")
	cases.Post("", cfg.Cases.CreateCase)
	cases.Get("", cfg.Cases.ListCases)
	cases.Get("/:id", cfg.Cases.GetCase)
	cases.Get("/:id/history", cfg.Cases.ListHistory)
	cases.Post("/:id/assign", cfg.Cases.AssignCase)
	cases.Post("/:id/start", cfg.Cases.StartCase)
	cases.Post("/:id/escalate", cfg.Cases.EscalateCase)
	cases.Post("/:id/return", cfg.Cases.ReturnCase)
	cases.Post("/:id/complete", cfg.Cases.CompleteCase)
	cases.Post("/:id/reassign", auth.RequireTier(domain.RoleManager), cfg.Cases.ReassignCase)

	jobs := api.Group("/jobs", auth.RequireTier(domain.RoleManager))
	jobs.Post("", cfg.Jobs.SubmitJob)
	jobs.Get("", cfg.Jobs.ListJobs)
	jobs.Get("/:id", cfg.Jobs.GetJob)
	jobs.Get("/:id/progress", cfg.Jobs.GetJobProgress)
	jobs.Post("/:id/start", cfg.Jobs.StartJob)
	jobs.Post("/:id/pause", cfg.Jobs.PauseJob)
	jobs.Post("/:id/resume", cfg.Jobs.ResumeJob)
	jobs.Post("/:id/cancel", cfg.Jobs.CancelJob)

	directory := api.Group("/directory")
	directory.Get("/reviewers", cfg.Directory.ListReviewers)
	directory.Get("/capacity", cfg.Directory.TeamCapacity)
}
