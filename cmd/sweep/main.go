// Command sweep runs the retroactive achievement sweep for every premium user, or for one user
// when -user is given. It is safe to run repeatedly.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"quizhub/achievements"
	"quizhub/config"
	"quizhub/database"
	"quizhub/logger"
	"quizhub/services"
)

func main() {
	userID := flag.Uint("user", 0, "sweep only this user id")
	concurrency := flag.Int("concurrency", 0, "parallel sweeps (default SWEEP_CONCURRENCY)")
	flag.Parse()

	cfg, _ := config.Load()
	log, err := logger.New(cfg.AppEnv)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to create logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := database.InitDB(cfg, log); err != nil {
		log.Fatal("Failed to initialize database", "error", err)
	}
	defer database.CloseDB()

	store := services.NewAchievementStore(database.GetDB(), log)
	engine := achievements.NewEngine(store, log,
		achievements.WithHistoryLimit(cfg.HistoryLimit),
		achievements.WithSweepHistoryLimit(cfg.SweepHistoryLimit),
	)

	if *userID != 0 {
		unlocks, err := engine.RetroactiveSweep(ctx, uint(*userID))
		if err != nil {
			log.Error("Sweep failed", "user_id", *userID, "error", err)
			os.Exit(1)
		}
		for _, u := range unlocks {
			log.Info("Unlocked", "user_id", *userID, "achievement", u.Slug)
		}
		log.Info("✅ Sweep finished", "user_id", *userID, "unlocked", len(unlocks))
		return
	}

	workers := cfg.SweepConcurrency
	if *concurrency > 0 {
		workers = *concurrency
	}
	stats, err := services.SweepPremiumUsers(ctx, store, engine, workers, log)
	if err != nil {
		log.Error("Sweep aborted", "error", err)
		os.Exit(1)
	}
	log.Info("✅ Sweep finished",
		"users", stats.Users,
		"unlocked", stats.Unlocked,
		"failed", stats.Failed,
		"duration", stats.Duration,
	)
	if stats.Failed > 0 {
		os.Exit(1)
	}
}
