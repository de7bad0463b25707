// Command seed-achievements loads a YAML catalogue of quizzes and achievements into the database.
// Every achievement is validated against the condition registry before anything is written.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"quizhub/achievements"
	"quizhub/config"
	"quizhub/database"
	"quizhub/logger"
	"quizhub/services"
)

func main() {
	path := flag.String("file", "data/achievements.yaml", "catalogue to load")
	check := flag.Bool("check", false, "validate the file without touching the database")
	flag.Parse()

	cfg, _ := config.Load()
	log, err := logger.New(cfg.AppEnv)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to create logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	f, err := services.LoadSeedFile(*path)
	if err != nil {
		log.Fatal("Failed to load catalogue", "file", *path, "error", err)
	}
	registry := achievements.DefaultRegistry()

	if *check {
		defs, warnings, err := f.Validate(registry)
		if err != nil {
			log.Fatal("Catalogue is invalid", "file", *path, "error", err)
		}
		for _, w := range warnings {
			log.Warn("No evaluator registered", "detail", w)
		}
		log.Info("Catalogue is valid", "file", *path, "achievements", len(defs), "quizzes", len(f.Quizzes))
		return
	}

	if err := database.InitDB(cfg, log); err != nil {
		log.Fatal("Failed to initialize database", "error", err)
	}
	defer database.CloseDB()

	store := services.NewAchievementStore(database.GetDB(), log)
	res, err := store.Seed(context.Background(), f, registry)
	if err != nil {
		log.Fatal("Seeding failed", "file", *path, "error", err)
	}
	log.Info("✅ Catalogue seeded",
		"quizzes_created", res.QuizzesCreated,
		"quizzes_updated", res.QuizzesUpdated,
		"achievements_created", res.AchievementsCreated,
		"achievements_updated", res.AchievementsUpdated,
		"warnings", len(res.Warnings),
	)
}
