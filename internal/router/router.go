package router

import (
	"github.com/gofiber/fiber/v2"

	"github.com/campusforge/grading-api/internal/config"
	"github.com/campusforge/grading-api/internal/handler"
	"github.com/campusforge/grading-api/internal/observability"
)

// Dependencies groups router dependencies for registration.
type Dependencies struct {
	TestCaseHandler    *handler.TestCaseHandler
	CategoryHandler    *handler.CategoryHandler
	GradingHandler     *handler.GradingHandler
	AssessmentHandler  *handler.AssessmentHandler
	ResultHandler      *handler.ResultHandler
	BuildResultHandler *handler.BuildResultHandler
	JWTMiddleware      fiber.Handler
}

// Register wires the HTTP routes into the fiber application.
func Register(app *fiber.App, cfg config.Config, deps Dependencies) {
	api := app.Group("/api/v1", func(c *fiber.Ctx) error {
		c.Set("X-Application", cfg.AppName)
		return c.Next()
	})
	api.Get("/health", handler.HealthCheck(cfg))
	api.Get("/metrics", observability.MetricsHandler())

	jwtMiddleware := deps.JWTMiddleware
	if jwtMiddleware == nil {
		jwtMiddleware = func(c *fiber.Ctx) error { return c.Next() }
	}

	if deps.TestCaseHandler != nil || deps.CategoryHandler != nil || deps.GradingHandler != nil {
		exercises := api.Group("/exercises", jwtMiddleware)
		if deps.TestCaseHandler != nil {
			deps.TestCaseHandler.Register(exercises)
		}
		if deps.CategoryHandler != nil {
			deps.CategoryHandler.Register(exercises)
		}
		if deps.GradingHandler != nil {
			deps.GradingHandler.Register(exercises)
		}
	}

	if deps.AssessmentHandler != nil {
		assessments := api.Group("/assessments", jwtMiddleware)
		deps.AssessmentHandler.Register(assessments)
	}

	if deps.ResultHandler != nil {
		results := api.Group("/results", jwtMiddleware)
		deps.ResultHandler.Register(results)
	}

	if deps.BuildResultHandler != nil {
		builds := api.Group("/builds", jwtMiddleware)
		deps.BuildResultHandler.Register(builds)
	}
}
