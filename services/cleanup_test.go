package services

import (
	"context"
	"testing"
	"time"

	"quizhub/achievements"
	"quizhub/logger"
	"quizhub/models"
)

func TestPurgeStaleGuests(t *testing.T) {
	store, db := newTestStore(t)
	ctx := context.Background()
	old := storeNow.Add(-10 * 24 * time.Hour)
	recent := storeNow.Add(-time.Hour)

	stale := createUser(t, db, models.User{Username: "stale-guest", IsGuest: true, CreatedAt: old, LastLogin: old})
	active := createUser(t, db, models.User{Username: "active-guest", IsGuest: true, CreatedAt: old, LastLogin: recent})
	member := createUser(t, db, models.User{Username: "member", CreatedAt: old, LastLogin: old})

	createQuiz(t, db, "q", "General", "")
	a := createAchievement(t, db, "encore", achievements.CondRepeatSameQuiz, `{"count":1}`, false)
	for _, u := range []models.User{stale, active} {
		if _, err := store.RecordCompletion(ctx, CompletionInput{PlayID: u.Username, UserID: u.ID, QuizSlug: "q", CompletedAt: old}); err != nil {
			t.Fatalf("record: %v", err)
		}
		if _, _, err := store.InsertUnlockIfAbsent(ctx, achievements.UnlockRecord{UserID: u.ID, AchievementID: a.ID, UnlockedAt: old}); err != nil {
			t.Fatalf("unlock: %v", err)
		}
	}

	svc := NewCleanupService(db, logger.Nop(), 7*24*time.Hour, time.Hour)
	svc.now = func() time.Time { return storeNow }

	n, err := svc.PurgeStaleGuests(ctx)
	if err != nil {
		t.Fatalf("PurgeStaleGuests: %v", err)
	}
	if n != 1 {
		t.Fatalf("purged = %d, want 1", n)
	}

	var users []models.User
	db.Order("id").Find(&users)
	if len(users) != 2 || users[0].ID != active.ID || users[1].ID != member.ID {
		t.Fatalf("remaining users = %+v", users)
	}
	var completions, unlocks int64
	db.Model(&models.Completion{}).Where("user_id = ?", stale.ID).Count(&completions)
	db.Model(&models.UserAchievement{}).Where("user_id = ?", stale.ID).Count(&unlocks)
	if completions != 0 || unlocks != 0 {
		t.Errorf("stale guest left %d completions and %d unlocks", completions, unlocks)
	}

	if n, err := svc.PurgeStaleGuests(ctx); err != nil || n != 0 {
		t.Errorf("second purge = %d, %v; want 0, nil", n, err)
	}
}

func TestCleanupService_StartStop(t *testing.T) {
	_, db := newTestStore(t)
	svc := NewCleanupService(db, logger.Nop(), time.Hour, time.Millisecond)
	svc.Start()
	svc.Start()
	time.Sleep(5 * time.Millisecond)
	svc.Stop()
	svc.Stop()
	svc.Start()
}

func TestCleanupService_StopWithoutStart(t *testing.T) {
	_, db := newTestStore(t)
	svc := NewCleanupService(db, logger.Nop(), time.Hour, time.Hour)

	done := make(chan struct{})
	go func() {
		svc.Stop()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Stop blocked on a service that was never started")
	}
}
