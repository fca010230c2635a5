package router

import (
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/noah-isme/gema-recommender/internal/config"
	"github.com/noah-isme/gema-recommender/internal/handler"
	"github.com/noah-isme/gema-recommender/internal/middleware"
	"github.com/noah-isme/gema-recommender/internal/observability"
)

var staffRoles = []string{"admin", "teacher"}

// Dependencies groups router dependencies for registration.
type Dependencies struct {
	RecommendationHandler *handler.RecommendationHandler
	InteractionHandler    *handler.InteractionHandler
	AdminHandler          *handler.RecommenderAdminHandler
	SeedHandler           *handler.SeedHandler
	ModelStatus           handler.ModelStatus
	JWTMiddleware         fiber.Handler
}

// Register wires the HTTP routes into the fiber application.
func Register(app *fiber.App, cfg config.Config, deps Dependencies) {
	// Common v1 group for health & headers
	api := app.Group("/api/v1", func(c *fiber.Ctx) error {
		c.Set("X-Application", cfg.AppName)
		return c.Next()
	})
	api.Get("/health", handler.HealthCheck(cfg, deps.ModelStatus))
	app.Get("/metrics", observability.MetricsHandler())

	// Use provided JWT middleware, or a no-op if nil
	jwtMiddleware := deps.JWTMiddleware
	if jwtMiddleware == nil {
		jwtMiddleware = func(c *fiber.Ctx) error { return c.Next() }
	}
	authEnabled := cfg.JWTSecret != ""

	v2 := app.Group("/api/v2", jwtMiddleware)
	if deps.RecommendationHandler != nil {
		deps.RecommendationHandler.Register(v2, middleware.RequireSelfOrRole(authEnabled, "userID", staffRoles...))
	}
	if deps.InteractionHandler != nil {
		deps.InteractionHandler.Register(v2)
	}

	if deps.AdminHandler != nil {
		admin := app.Group("/api/admin/recommender", jwtMiddleware, middleware.RequireRole(authEnabled, staffRoles...))
		deps.AdminHandler.Register(admin, middleware.RateLimit("retrain", cfg.Recommender.RetrainRateLimit, time.Minute))
	}

	if deps.SeedHandler != nil {
		deps.SeedHandler.Register(app.Group("/api/seed"))
	}
}
