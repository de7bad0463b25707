// handlers/routes.go
package handlers

import (
	"time"

	"github.com/gofiber/fiber/v2"

	"quizhub/config"
	"quizhub/handlers/admin"
	"quizhub/middleware"
)

// RegisterRoutes mounts every API route. The Init*Handlers functions must have run first.
func RegisterRoutes(app *fiber.App, cfg *config.Config) {
	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"status":    "healthy",
			"timestamp": time.Now().Unix(),
		})
	})

	api := app.Group("/api")
	if !cfg.RateLimitDisabled {
		api.Use(middleware.RateLimit(cfg.RateLimitMax, cfg.RateLimitWindow, "Rate limit exceeded. Please try again later."))
	}

	// Auth routes with stricter rate limiting
	authGroup := api.Group("/auth")
	if !cfg.RateLimitDisabled {
		authGroup.Use(middleware.RateLimit(cfg.AuthRateLimitMax, cfg.AuthRateLimitWindow, "Too many authentication attempts. Please try again later."))
	}
	authGroup.Post("/guest", GuestLogin)
	authGroup.Post("/login", Login)
	authGroup.Post("/register", Register)

	api.Get("/users/me", middleware.AuthMiddleware, GetCurrentUser)

	// Play history and achievements
	api.Post("/completions", middleware.AuthMiddleware, RecordCompletion)
	api.Get("/completions", middleware.AuthMiddleware, GetCompletionHistory)
	api.Get("/achievements", middleware.AuthMiddleware, GetAchievements)

	// Admin
	api.Post("/admin/login", admin.Login)
	adminGroup := api.Group("/admin", middleware.AdminAuthMiddleware)
	adminGroup.Get("/verify", admin.VerifyToken)

	adminGroup.Get("/achievements", admin.GetAchievements)
	adminGroup.Post("/achievements", admin.CreateAchievement)
	adminGroup.Put("/achievements/:id", admin.UpdateAchievement)
	adminGroup.Delete("/achievements/:id", admin.DeleteAchievement)

	adminGroup.Get("/users", admin.GetUsers)
	adminGroup.Get("/users/:id", admin.GetUser)
	adminGroup.Put("/users/:id/tier", admin.UpdateUserTier)
	adminGroup.Post("/users/:id/sweep", admin.SweepUser)

	adminGroup.Post("/cleanup", admin.ManualCleanup)
}
