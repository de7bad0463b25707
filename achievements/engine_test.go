package achievements

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

const userID uint = 7

func seedCatalogue(repo *memRepo) {
	repo.defs = []Definition{
		def(1, "history-ace", CondPerfectInCategory, `{"category":"history","requiredScore":6}`),
		def(2, "encore", CondRepeatSameQuiz, `{"count":3}`),
		def(3, "busy-week", CondPlayNInWindow, `{"unit":"day","count":7,"threshold":3}`),
		premiumDef(10, "supporter", CondPremiumMember, `{}`),
		premiumDef(11, "speedster", CondTimeLimit, `{"maxSeconds":30}`),
		premiumDef(12, "premium-perfect", CondPerfectInCategory, `{}`),
	}
}

func historyRound(at time.Time) CompletionEvent {
	return CompletionEvent{
		UserID:         userID,
		QuizSlug:       "week-3",
		Score:          6,
		TotalQuestions: 6,
		ElapsedSeconds: 300,
		Rounds:         []Round{{Number: 2, Category: "History", Score: 6, Total: 6, ElapsedSeconds: 120}},
		CompletedAt:    at,
	}
}

func TestEvaluateOnCompletion_PerfectScoreUnlock(t *testing.T) {
	repo := newMemRepo()
	seedCatalogue(repo)
	repo.accounts[userID] = Account{UserID: userID}
	e := newTestEngine(t, repo)

	event := repo.record(historyRound(testNow))
	unlocks, err := e.EvaluateOnCompletion(context.Background(), event)
	if err != nil {
		t.Fatalf("EvaluateOnCompletion: %v", err)
	}
	if len(unlocks) != 1 || unlocks[0].Slug != "history-ace" {
		t.Fatalf("unlocks = %+v, want only history-ace", unlocks)
	}
	u := unlocks[0]
	if u.Meta["roundNumber"] != 2 || u.Meta["category"] != "History" {
		t.Errorf("meta = %+v, want roundNumber 2 and category History", u.Meta)
	}
	if u.QuizSlug != "week-3" {
		t.Errorf("quiz slug = %q, want week-3", u.QuizSlug)
	}
	if !u.UnlockedAt.Equal(testNow) {
		t.Errorf("unlocked at %v, want injected clock %v", u.UnlockedAt, testNow)
	}
}

func TestEvaluateOnCompletion_ReplayIsIdempotent(t *testing.T) {
	repo := newMemRepo()
	seedCatalogue(repo)
	repo.accounts[userID] = Account{UserID: userID}
	e := newTestEngine(t, repo)

	event := repo.record(historyRound(testNow))
	for i := 0; i < 3; i++ {
		unlocks, err := e.EvaluateOnCompletion(context.Background(), event)
		if err != nil {
			t.Fatalf("run %d: %v", i, err)
		}
		if i > 0 && len(unlocks) != 0 {
			t.Errorf("run %d unlocked %d achievements, want 0", i, len(unlocks))
		}
	}
	if repo.inserts != 1 {
		t.Errorf("inserts = %d, want 1", repo.inserts)
	}
}

func TestEvaluateOnCompletion_TierGating(t *testing.T) {
	for _, ignore := range []bool{false, true} {
		repo := newMemRepo()
		seedCatalogue(repo)
		repo.ignoreFilter = ignore
		repo.accounts[userID] = Account{UserID: userID, SubscriptionStatus: "canceled"}
		e := newTestEngine(t, repo)

		fast := historyRound(testNow)
		fast.ElapsedSeconds = 10
		event := repo.record(fast)

		unlocks, err := e.EvaluateOnCompletion(context.Background(), event)
		if err != nil {
			t.Fatalf("EvaluateOnCompletion: %v", err)
		}
		for _, slug := range []string{"supporter", "speedster", "premium-perfect"} {
			if hasSlug(unlocks, slug) {
				t.Errorf("ignoreFilter=%v: premium-only %s unlocked for a free user", ignore, slug)
			}
		}
		if !hasSlug(unlocks, "history-ace") {
			t.Errorf("ignoreFilter=%v: free achievement should still unlock", ignore)
		}
	}
}

func TestEvaluateOnCompletion_PremiumUserGetsEverything(t *testing.T) {
	repo := newMemRepo()
	seedCatalogue(repo)
	trialEnds := testNow.Add(24 * time.Hour)
	repo.accounts[userID] = Account{UserID: userID, TrialEndsAt: &trialEnds}
	e := newTestEngine(t, repo)

	fast := historyRound(testNow)
	fast.ElapsedSeconds = 10
	event := repo.record(fast)

	unlocks, err := e.EvaluateOnCompletion(context.Background(), event)
	if err != nil {
		t.Fatalf("EvaluateOnCompletion: %v", err)
	}
	for _, slug := range []string{"history-ace", "supporter", "speedster", "premium-perfect"} {
		if !hasSlug(unlocks, slug) {
			t.Errorf("%s not unlocked for premium user", slug)
		}
	}
	for _, u := range unlocks {
		if u.Slug == "supporter" && u.QuizSlug != "" {
			t.Errorf("tier gate carries quiz slug %q, want empty", u.QuizSlug)
		}
	}
}

func TestEvaluateOnCompletion_RepeatQuizProgress(t *testing.T) {
	repo := newMemRepo()
	seedCatalogue(repo)
	repo.accounts[userID] = Account{UserID: userID}
	e := newTestEngine(t, repo)

	first := historyRound(testNow.Add(-48 * time.Hour))
	first.Rounds = nil
	first.Score = 1
	repo.record(first)

	second := first
	second.CompletedAt = testNow
	second = repo.record(second)

	unlocks, err := e.EvaluateOnCompletion(context.Background(), second)
	if err != nil {
		t.Fatalf("EvaluateOnCompletion: %v", err)
	}
	if hasSlug(unlocks, "encore") {
		t.Fatal("encore unlocked after 2 of 3 completions")
	}

	progress, err := e.Progress(context.Background(), userID)
	if err != nil {
		t.Fatalf("Progress: %v", err)
	}
	var found bool
	for _, p := range progress {
		if p.Slug != "encore" {
			continue
		}
		found = true
		if p.Satisfied || p.Progress == nil || p.Progress.Value != 2 || p.Progress.Max != 3 {
			t.Errorf("encore progress = %+v, want 2 of 3", p)
		}
	}
	if !found {
		t.Error("encore missing from progress report")
	}
}

func TestEvaluateOnCompletion_TriggerNotYetInHistory(t *testing.T) {
	repo := newMemRepo()
	seedCatalogue(repo)
	repo.accounts[userID] = Account{UserID: userID}
	e := newTestEngine(t, repo)

	for i := 2; i >= 1; i-- {
		ev := historyRound(testNow.Add(-time.Duration(i) * time.Hour))
		ev.Rounds = nil
		ev.Score = 0
		repo.record(ev)
	}
	unsaved := historyRound(testNow)
	unsaved.Rounds = nil
	unsaved.Score = 0

	unlocks, err := e.EvaluateOnCompletion(context.Background(), unsaved)
	if err != nil {
		t.Fatalf("EvaluateOnCompletion: %v", err)
	}
	if !hasSlug(unlocks, "encore") || !hasSlug(unlocks, "busy-week") {
		t.Errorf("unlocks = %+v, want encore and busy-week counting the trigger", unlocks)
	}
}

func TestEvaluateOnCompletion_BackdatedIgnoresLaterPlays(t *testing.T) {
	repo := newMemRepo()
	seedCatalogue(repo)
	repo.accounts[userID] = Account{UserID: userID}
	e := newTestEngine(t, repo)

	for _, at := range []time.Time{testNow.Add(-time.Hour), testNow} {
		ev := historyRound(at)
		ev.Rounds = nil
		ev.Score = 0
		repo.record(ev)
	}
	backdated := historyRound(testNow.Add(-72 * time.Hour))
	backdated.Rounds = nil
	backdated.Score = 0
	backdated = repo.record(backdated)

	unlocks, err := e.EvaluateOnCompletion(context.Background(), backdated)
	if err != nil {
		t.Fatalf("EvaluateOnCompletion: %v", err)
	}
	if hasSlug(unlocks, "encore") {
		t.Errorf("encore counted plays recorded after the backdated completion: %+v", unlocks)
	}

	unlocks, err = e.EvaluateOnCompletion(context.Background(), repo.completions[userID][1])
	if err != nil {
		t.Fatalf("EvaluateOnCompletion: %v", err)
	}
	if !hasSlug(unlocks, "encore") {
		t.Errorf("encore should unlock on the latest of three plays, got %+v", unlocks)
	}
}

func TestHistoryUpTo(t *testing.T) {
	history := eventsAtDays(testNow, 0, 1, 2, 3)
	got := historyUpTo(history, testNow.Add(days(1)))
	if len(got) != 2 || !got[0].CompletedAt.Equal(testNow.Add(days(1))) {
		t.Errorf("historyUpTo = %+v, want the two events at or before day 1", got)
	}
	if got := historyUpTo(history, testNow.Add(-time.Hour)); len(got) != 0 {
		t.Errorf("historyUpTo before every event = %+v, want none", got)
	}
}

func TestEvaluateOnCompletion_UnknownUser(t *testing.T) {
	repo := newMemRepo()
	seedCatalogue(repo)
	e := newTestEngine(t, repo)

	_, err := e.EvaluateOnCompletion(context.Background(), historyRound(testNow))
	if !errors.Is(err, ErrUserNotFound) {
		t.Fatalf("err = %v, want ErrUserNotFound", err)
	}
	if repo.inserts != 0 {
		t.Errorf("inserts = %d, want 0", repo.inserts)
	}
}

func TestEvaluateOnCompletion_SkipsBadConfigs(t *testing.T) {
	repo := newMemRepo()
	seedCatalogue(repo)
	repo.defs = append(repo.defs,
		def(20, "forward-declared", "collect_all_badges", `{}`),
		def(21, "broken", CondTimeLimit, `{"maxSeconds":`),
	)
	repo.accounts[userID] = Account{UserID: userID}
	e := newTestEngine(t, repo)

	unlocks, err := e.EvaluateOnCompletion(context.Background(), repo.record(historyRound(testNow)))
	if err != nil {
		t.Fatalf("EvaluateOnCompletion: %v", err)
	}
	if !hasSlug(unlocks, "history-ace") {
		t.Error("valid achievements must still be evaluated")
	}
}

func TestEvaluateOnCompletion_PartialPersistFailure(t *testing.T) {
	repo := newMemRepo()
	seedCatalogue(repo)
	repo.accounts[userID] = Account{UserID: userID, TierFlag: "premium"}
	boom := errors.New("connection reset")
	repo.insertErr[10] = boom
	e := newTestEngine(t, repo)

	unlocks, err := e.EvaluateOnCompletion(context.Background(), repo.record(historyRound(testNow)))
	var unlockErrs *UnlockErrors
	if !errors.As(err, &unlockErrs) {
		t.Fatalf("err = %v, want *UnlockErrors", err)
	}
	if len(unlockErrs.Failures) != 1 || unlockErrs.Failures[0].Slug != "supporter" {
		t.Errorf("failures = %+v, want supporter only", unlockErrs.Failures)
	}
	if !errors.Is(err, boom) {
		t.Error("UnlockErrors should unwrap to the underlying error")
	}
	if !hasSlug(unlocks, "history-ace") || !hasSlug(unlocks, "premium-perfect") {
		t.Errorf("unlocks = %+v, remaining candidates must still persist", unlocks)
	}
}

func TestEvaluateOnCompletion_ConcurrentNoDoubleUnlock(t *testing.T) {
	repo := newMemRepo()
	seedCatalogue(repo)
	repo.accounts[userID] = Account{UserID: userID, TierFlag: "premium"}
	e := newTestEngine(t, repo)
	event := repo.record(historyRound(testNow))

	const workers = 16
	var (
		wg    sync.WaitGroup
		mu    sync.Mutex
		total = make(map[string]int)
	)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			var unlocks []NewUnlock
			var err error
			if i%2 == 0 {
				unlocks, err = e.EvaluateOnCompletion(context.Background(), event)
			} else {
				unlocks, err = e.RetroactiveSweep(context.Background(), userID)
			}
			if err != nil {
				t.Errorf("worker %d: %v", i, err)
				return
			}
			mu.Lock()
			for _, u := range unlocks {
				total[u.Slug]++
			}
			mu.Unlock()
		}(i)
	}
	wg.Wait()

	for slug, n := range total {
		if n != 1 {
			t.Errorf("%s reported as newly unlocked %d times, want 1", slug, n)
		}
	}
	if got := repo.unlockCount(userID); got != repo.inserts || got != len(total) {
		t.Errorf("records=%d inserts=%d reported=%d, want all equal", got, repo.inserts, len(total))
	}
}

func TestRetroactiveSweep_OnUpgrade(t *testing.T) {
	repo := newMemRepo()
	seedCatalogue(repo)
	repo.accounts[userID] = Account{UserID: userID}
	e := newTestEngine(t, repo)

	// Played while free: slow and imperfect, so no premium condition other than the gate holds.
	slow := historyRound(testNow.Add(-72 * time.Hour))
	slow.Rounds = nil
	slow.Score = 3
	repo.record(slow)

	if unlocks, err := e.RetroactiveSweep(context.Background(), userID); err != nil || len(unlocks) != 0 {
		t.Fatalf("sweep while free = %+v, %v; want nothing", unlocks, err)
	}

	repo.accounts[userID] = Account{UserID: userID, SubscriptionStatus: "active"}
	unlocks, err := e.RetroactiveSweep(context.Background(), userID)
	if err != nil {
		t.Fatalf("RetroactiveSweep: %v", err)
	}
	if len(unlocks) != 1 || unlocks[0].Slug != "supporter" {
		t.Fatalf("unlocks = %+v, want only the supporter tier gate", unlocks)
	}
	if unlocks[0].QuizSlug != "" {
		t.Errorf("tier gate quiz slug = %q, want empty", unlocks[0].QuizSlug)
	}

	again, err := e.RetroactiveSweep(context.Background(), userID)
	if err != nil || len(again) != 0 {
		t.Errorf("second sweep = %+v, %v; want nothing", again, err)
	}
}

func TestRetroactiveSweep_ReplaysHistoryOldestFirst(t *testing.T) {
	repo := newMemRepo()
	seedCatalogue(repo)
	repo.accounts[userID] = Account{UserID: userID, TierFlag: "premium"}
	e := newTestEngine(t, repo)

	fastOld := historyRound(testNow.Add(-10 * 24 * time.Hour))
	fastOld.QuizSlug = "week-1"
	fastOld.Rounds = nil
	fastOld.Score = 1
	fastOld.ElapsedSeconds = 25
	repo.record(fastOld)

	fastNew := fastOld
	fastNew.QuizSlug = "week-2"
	fastNew.CompletedAt = testNow.Add(-24 * time.Hour)
	fastNew.ElapsedSeconds = 20
	repo.record(fastNew)

	unlocks, err := e.RetroactiveSweep(context.Background(), userID)
	if err != nil {
		t.Fatalf("RetroactiveSweep: %v", err)
	}
	var speed *NewUnlock
	for i := range unlocks {
		if unlocks[i].Slug == "speedster" {
			speed = &unlocks[i]
		}
	}
	if speed == nil {
		t.Fatalf("unlocks = %+v, want speedster", unlocks)
	}
	if speed.QuizSlug != "week-1" || speed.Meta["seconds"] != 25 {
		t.Errorf("speedster = %+v, want the oldest qualifying completion week-1", speed)
	}
	if hasSlug(unlocks, "history-ace") {
		t.Error("sweep must only consider premium-only achievements")
	}
}

func TestRetroactiveSweep_ReplayUsesHistoryUpToTrigger(t *testing.T) {
	repo := newMemRepo()
	repo.defs = []Definition{premiumDef(30, "premium-encore", CondRepeatSameQuiz, `{"count":2}`)}
	repo.accounts[userID] = Account{UserID: userID, TierFlag: "premium"}
	e := newTestEngine(t, repo)

	for i, slug := range []string{"week-1", "week-2", "week-1", "week-2"} {
		ev := historyRound(testNow.Add(time.Duration(i-4) * time.Hour))
		ev.QuizSlug = slug
		repo.record(ev)
	}

	unlocks, err := e.RetroactiveSweep(context.Background(), userID)
	if err != nil {
		t.Fatalf("RetroactiveSweep: %v", err)
	}
	if len(unlocks) != 1 || unlocks[0].QuizSlug != "week-1" {
		t.Fatalf("unlocks = %+v, want premium-encore triggered by the second week-1", unlocks)
	}
}

func TestProgress_NoHistory(t *testing.T) {
	repo := newMemRepo()
	seedCatalogue(repo)
	repo.accounts[userID] = Account{UserID: userID}
	e := newTestEngine(t, repo)

	progress, err := e.Progress(context.Background(), userID)
	if err != nil {
		t.Fatalf("Progress: %v", err)
	}
	if len(progress) != 3 {
		t.Fatalf("got %d entries, want the 3 free achievements", len(progress))
	}
	for _, p := range progress {
		if p.Satisfied {
			t.Errorf("%s satisfied without history", p.Slug)
		}
	}
}
