package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	fiberlogger "github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"

	"quizhub/achievements"
	"quizhub/config"
	"quizhub/database"
	"quizhub/handlers"
	"quizhub/handlers/admin"
	"quizhub/logger"
	"quizhub/middleware"
	"quizhub/services"
)

func main() {
	cfg, envFile := config.Load()

	log, err := logger.New(cfg.AppEnv)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to create logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	if !envFile {
		log.Warn(".env file not found, using system environment variables")
	}
	if err := cfg.Validate(); err != nil {
		log.Fatal("Invalid configuration", "error", err)
	}
	if cfg.IsProduction() && cfg.CORSOrigins == "http://localhost:3000" {
		log.Warn("CORS_ORIGINS not properly configured for production")
	}

	middleware.SetJWTSecret(cfg.JWTSecret)

	if err := database.InitDB(cfg, log); err != nil {
		log.Fatal("Failed to initialize database", "error", err)
	}
	defer database.CloseDB()
	db := database.GetDB()

	store := services.NewAchievementStore(db, log)
	catalog, err := newCatalog(cfg, store, log)
	if err != nil {
		log.Fatal("Failed to initialize catalogue cache", "error", err)
	}
	engine := achievements.NewEngine(catalog, log,
		achievements.WithHistoryLimit(cfg.HistoryLimit),
		achievements.WithSweepHistoryLimit(cfg.SweepHistoryLimit),
	)

	var cleanup *services.CleanupService
	if cfg.GuestCleanupEnabled {
		cleanup = services.NewCleanupService(db, log, cfg.GuestMaxAge, cfg.GuestCleanupInterval)
		cleanup.Start()
		defer cleanup.Stop()
	}

	handlers.InitProgressionHandlers(store, engine, log)
	admin.InitAdminHandlers(store, catalog, engine, cleanup, log)

	app := fiber.New(fiber.Config{
		ErrorHandler: customErrorHandler(cfg, log),
		BodyLimit:    4 * 1024 * 1024, // 4MB
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	})

	app.Use(recover.New())
	app.Use(fiberlogger.New(fiberlogger.Config{
		Format: "[${time}] ${status} - ${method} ${path} (${latency})\n",
	}))
	app.Use(cors.New(cors.Config{
		AllowOrigins:     cfg.CORSOrigins,
		AllowMethods:     "GET,POST,PUT,DELETE,OPTIONS",
		AllowHeaders:     "Origin, Content-Type, Accept, Authorization",
		AllowCredentials: true,
	}))

	handlers.RegisterRoutes(app, cfg)

	go func() {
		quit := make(chan os.Signal, 1)
		signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
		<-quit
		log.Info("Shutting down HTTP server")
		if err := app.ShutdownWithTimeout(10 * time.Second); err != nil {
			log.Error("Shutdown failed", "error", err)
		}
	}()

	log.Info("🚀 HTTP server starting",
		"port", cfg.Port,
		"env", cfg.AppEnv,
		"guest_cleanup", cfg.GuestCleanupEnabled,
		"catalog_cache", cacheKind(cfg),
	)
	if err := app.Listen(":" + cfg.Port); err != nil {
		log.Fatal("Failed to start HTTP server", "error", err)
	}
}

// newCatalog puts the catalogue cache in front of the store, shared through Redis when
// REDIS_ADDR is set.
func newCatalog(cfg *config.Config, store *services.AchievementStore, log *logger.Logger) (*services.CachedCatalog, error) {
	if cfg.RedisAddr == "" {
		return services.NewLRUCatalog(store, cfg.CatalogCacheSize, cfg.CatalogCacheTTL, log)
	}
	rdb, err := services.NewRedisClient(context.Background(), cfg.RedisAddr)
	if err != nil {
		return nil, err
	}
	return services.NewRedisCatalog(store, rdb, cfg.CatalogCacheTTL, log), nil
}

func cacheKind(cfg *config.Config) string {
	if cfg.RedisAddr != "" {
		return "redis"
	}
	return "lru"
}

func customErrorHandler(cfg *config.Config, log *logger.Logger) fiber.ErrorHandler {
	return func(c *fiber.Ctx, err error) error {
		code := fiber.StatusInternalServerError
		message := "Internal Server Error"

		if e, ok := err.(*fiber.Error); ok {
			code = e.Code
			message = e.Message
		}

		if code == fiber.StatusInternalServerError {
			log.Error("Unhandled request error", "method", c.Method(), "path", c.Path(), "error", err)
			// Don't expose internal errors in production
			if cfg.IsProduction() {
				message = "An error occurred. Please try again later."
			}
		}

		return c.Status(code).JSON(fiber.Map{
			"success": false,
			"error":   message,
		})
	}
}
