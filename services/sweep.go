// services/sweep.go - Bulk retroactive sweep
package services

import (
	"context"
	"errors"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"quizhub/achievements"
	"quizhub/logger"
)

type SweepStats struct {
	Users    int
	Unlocked int64
	Failed   int64
	Duration time.Duration
}

// SweepPremiumUsers runs RetroactiveSweep for every premium user with at most concurrency
// sweeps in flight. A failing user is logged and counted; it does not stop the others.
func SweepPremiumUsers(ctx context.Context, store *AchievementStore, engine *achievements.Engine, concurrency int, log *logger.Logger) (SweepStats, error) {
	start := time.Now()
	ids, err := store.ListPremiumUserIDs(ctx, start)
	if err != nil {
		return SweepStats{}, err
	}
	if concurrency < 1 {
		concurrency = 1
	}

	stats := SweepStats{Users: len(ids)}
	var unlocked, failed atomic.Int64

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(concurrency)
	for _, id := range ids {
		id := id
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			unlocks, err := engine.RetroactiveSweep(gctx, id)
			unlocked.Add(int64(len(unlocks)))
			if err != nil {
				if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
					return err
				}
				failed.Add(1)
				log.Warn("Sweep failed for user", "user_id", id, "error", err)
			}
			return nil
		})
	}
	err = g.Wait()

	stats.Unlocked = unlocked.Load()
	stats.Failed = failed.Load()
	stats.Duration = time.Since(start)
	return stats, err
}
