// services/cleanup.go - Background removal of abandoned guest accounts
package services

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"gorm.io/gorm"

	"quizhub/logger"
	"quizhub/models"
)

// CleanupService periodically deletes guest accounts that have not logged in for maxAge,
// together with their completions and unlocks.
type CleanupService struct {
	db       *gorm.DB
	log      *logger.Logger
	maxAge   time.Duration
	interval time.Duration
	now      func() time.Time

	started  atomic.Bool
	stopOnce sync.Once
	stop     chan struct{}
	done     chan struct{}
}

func NewCleanupService(db *gorm.DB, log *logger.Logger, maxAge, interval time.Duration) *CleanupService {
	return &CleanupService{
		db:       db,
		log:      log.With("service", "CleanupService"),
		maxAge:   maxAge,
		interval: interval,
		now:      time.Now,
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
	}
}

// Start runs PurgeStaleGuests every interval until Stop is called. Later calls are no-ops.
func (s *CleanupService) Start() {
	if !s.started.CompareAndSwap(false, true) {
		return
	}
	go func() {
		defer close(s.done)
		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()
		for {
			select {
			case <-s.stop:
				return
			case <-ticker.C:
				if _, err := s.PurgeStaleGuests(context.Background()); err != nil {
					s.log.Error("Guest cleanup failed", "error", err)
				}
			}
		}
	}()
}

// Stop ends the worker started by Start and waits for it.
func (s *CleanupService) Stop() {
	s.stopOnce.Do(func() {
		close(s.stop)
	})
	if s.started.Load() {
		<-s.done
	}
}

// PurgeStaleGuests deletes guests whose last activity is older than maxAge and returns how many
// accounts were removed.
func (s *CleanupService) PurgeStaleGuests(ctx context.Context) (int, error) {
	cutoff := s.now().Add(-s.maxAge)

	var ids []uint
	err := s.db.WithContext(ctx).Model(&models.User{}).
		Where("is_guest = ?", true).
		Where("(last_login < ? OR last_login IS NULL) AND created_at < ?", cutoff, cutoff).
		Pluck("id", &ids).Error
	if err != nil {
		return 0, err
	}
	if len(ids) == 0 {
		s.log.Debug("No stale guest accounts to clean up")
		return 0, nil
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("user_id IN ?", ids).Delete(&models.UserAchievement{}).Error; err != nil {
			return err
		}
		if err := tx.Where("user_id IN ?", ids).Delete(&models.Completion{}).Error; err != nil {
			return err
		}
		return tx.Where("id IN ?", ids).Delete(&models.User{}).Error
	})
	if err != nil {
		return 0, err
	}

	s.log.Info("✅ Cleaned up stale guest accounts", "count", len(ids))
	return len(ids), nil
}
