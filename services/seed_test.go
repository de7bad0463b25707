package services

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"quizhub/achievements"
	"quizhub/logger"
	"quizhub/models"
)

func TestLoadSeedFile_BundledCatalogue(t *testing.T) {
	f, err := LoadSeedFile(filepath.Join("..", "data", "achievements.yaml"))
	if err != nil {
		t.Fatalf("LoadSeedFile: %v", err)
	}
	defs, warnings, err := f.Validate(achievements.DefaultRegistry())
	if err != nil {
		t.Fatalf("bundled catalogue is invalid: %v", err)
	}
	if len(warnings) != 0 {
		t.Errorf("bundled catalogue warnings = %v", warnings)
	}
	if len(defs) != len(f.Achievements) || len(defs) == 0 {
		t.Fatalf("validated %d of %d achievements", len(defs), len(f.Achievements))
	}
	types := map[string]bool{}
	for _, d := range defs {
		types[d.ConditionType] = true
	}
	for _, ct := range achievements.DefaultRegistry().Types() {
		if !types[string(ct)] {
			t.Errorf("bundled catalogue has no %s achievement", ct)
		}
	}
}

func TestSeedFile_ValidateReportsEveryProblem(t *testing.T) {
	const doc = `
achievements:
  - slug: ok
    name: OK
    condition: {type: repeat_same_quiz, config: {count: 2}}
  - slug: ok
    name: Duplicate
    condition: {type: repeat_same_quiz, config: {count: 2}}
  - slug: bad-window
    name: Bad
    condition: {type: play_n_in_window, config: {unit: fortnight, threshold: 2}}
  - slug: unknown
    name: Unknown
    condition: {type: moon_phase}
  - name: No slug
    condition: {type: premium_member}
`
	path := filepath.Join(t.TempDir(), "seed.yaml")
	if err := os.WriteFile(path, []byte(doc), 0o600); err != nil {
		t.Fatal(err)
	}
	f, err := LoadSeedFile(path)
	if err != nil {
		t.Fatalf("LoadSeedFile: %v", err)
	}
	defs, warnings, err := f.Validate(achievements.DefaultRegistry())
	if err == nil {
		t.Fatal("expected validation errors")
	}
	for _, want := range []string{"duplicate slug", "bad-window", "#5"} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("error %q does not mention %q", err, want)
		}
	}
	if strings.Contains(err.Error(), "moon_phase") {
		t.Errorf("unregistered condition type reported as an error: %v", err)
	}
	if len(warnings) != 1 || !strings.Contains(warnings[0], "moon_phase") {
		t.Errorf("warnings = %v, want one for moon_phase", warnings)
	}
	if len(defs) != 2 || defs[0].Slug != "ok" || defs[1].Slug != "unknown" {
		t.Errorf("accepted defs = %+v", defs)
	}
}

func TestSeed_UpsertsBySlug(t *testing.T) {
	store, db := newTestStore(t)
	ctx := context.Background()
	registry := achievements.DefaultRegistry()

	f, err := LoadSeedFile(filepath.Join("..", "data", "achievements.yaml"))
	if err != nil {
		t.Fatalf("LoadSeedFile: %v", err)
	}
	res, err := store.Seed(ctx, f, registry)
	if err != nil {
		t.Fatalf("first seed: %v", err)
	}
	if res.AchievementsCreated != len(f.Achievements) || res.QuizzesCreated != len(f.Quizzes) {
		t.Fatalf("first seed result = %+v", res)
	}

	res, err = store.Seed(ctx, f, registry)
	if err != nil {
		t.Fatalf("second seed: %v", err)
	}
	if res.AchievementsCreated != 0 || res.AchievementsUpdated != len(f.Achievements) || res.QuizzesUpdated != len(f.Quizzes) {
		t.Errorf("second seed result = %+v", res)
	}

	var count int64
	db.Model(&models.Achievement{}).Count(&count)
	if int(count) != len(f.Achievements) {
		t.Errorf("achievement rows = %d, want %d", count, len(f.Achievements))
	}

	bad := &SeedFile{Achievements: []SeedAchievement{{Slug: "broken", Name: "Broken"}}}
	bad.Achievements[0].Condition.Type = "time_limit"
	if _, err := store.Seed(ctx, bad, registry); err == nil {
		t.Error("seeding an invalid entry should fail")
	}
	db.Model(&models.Achievement{}).Where("slug = ?", "broken").Count(&count)
	if count != 0 {
		t.Error("invalid entry was written")
	}
}

func TestSeed_KeepsUnregisteredConditionTypes(t *testing.T) {
	store, db := newTestStore(t)
	ctx := context.Background()
	registry := achievements.DefaultRegistry()

	f := &SeedFile{
		Quizzes: []SeedQuiz{{Slug: "ancient-rome", Title: "Ancient Rome", Category: "History"}},
		Achievements: []SeedAchievement{
			{Slug: "future", Name: "Future"},
			{Slug: "first-play", Name: "First play"},
		},
	}
	f.Achievements[0].Condition.Type = "coming_soon"
	f.Achievements[1].Condition.Type = string(achievements.CondRepeatSameQuiz)
	f.Achievements[1].Condition.Config = map[string]any{"count": 1}

	res, err := store.Seed(ctx, f, registry)
	if err != nil {
		t.Fatalf("Seed: %v", err)
	}
	if res.AchievementsCreated != 2 || len(res.Warnings) != 1 || !strings.Contains(res.Warnings[0], "coming_soon") {
		t.Fatalf("seed result = %+v", res)
	}

	u := createUser(t, db, models.User{Username: "gil"})
	ev, err := store.RecordCompletion(ctx, CompletionInput{
		PlayID:         "seed-p1",
		UserID:         u.ID,
		QuizSlug:       "ancient-rome",
		Score:          3,
		TotalQuestions: 5,
		CompletedAt:    storeNow,
	})
	if err != nil {
		t.Fatalf("RecordCompletion: %v", err)
	}

	engine := achievements.NewEngine(store, logger.Nop(), achievements.WithClock(func() time.Time { return storeNow }))
	unlocks, err := engine.EvaluateOnCompletion(ctx, ev)
	if err != nil {
		t.Fatalf("EvaluateOnCompletion: %v", err)
	}
	if len(unlocks) != 1 || unlocks[0].Slug != "first-play" {
		t.Errorf("unlocks = %+v, want only first-play", unlocks)
	}
}
