// handlers/progression.go
package handlers

import (
	"errors"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"

	"quizhub/achievements"
	"quizhub/logger"
	"quizhub/middleware"
	"quizhub/services"
	"quizhub/utils"
)

var (
	achievementStore  *services.AchievementStore
	achievementEngine *achievements.Engine
	progressionLog    *logger.Logger
)

// InitProgressionHandlers wires the store and engine used by the completion and achievement
// endpoints.
func InitProgressionHandlers(store *services.AchievementStore, engine *achievements.Engine, log *logger.Logger) {
	if store == nil || engine == nil {
		panic("store and engine must be initialized before InitProgressionHandlers")
	}
	achievementStore = store
	achievementEngine = engine
	progressionLog = log.With("handler", "progression")
}

type RecordCompletionRequest struct {
	PlayID         string               `json:"play_id"`
	QuizSlug       string               `json:"quiz_slug"`
	Score          int                  `json:"score"`
	TotalQuestions int                  `json:"total_questions"`
	Rounds         []achievements.Round `json:"rounds"`
	ElapsedSeconds int                  `json:"elapsed_seconds"`
	CompletedAt    *time.Time           `json:"completed_at"`
}

func (r *RecordCompletionRequest) validate(now time.Time) error {
	r.QuizSlug = strings.TrimSpace(r.QuizSlug)
	switch {
	case r.QuizSlug == "":
		return errors.New("quiz_slug is required")
	case r.TotalQuestions < 0 || r.Score < 0 || r.ElapsedSeconds < 0:
		return errors.New("score, total_questions and elapsed_seconds must not be negative")
	case r.Score > r.TotalQuestions:
		return errors.New("score cannot exceed total_questions")
	case r.CompletedAt != nil && r.CompletedAt.After(now.Add(time.Minute)):
		return errors.New("completed_at is in the future")
	}
	for _, round := range r.Rounds {
		if round.Score < 0 || round.Total < 0 || round.Score > round.Total {
			return errors.New("round score must be between 0 and the round total")
		}
	}
	return nil
}

// RecordCompletion stores a finished play-through and evaluates achievements for it.
// POST /api/completions
func RecordCompletion(c *fiber.Ctx) error {
	userID, err := middleware.GetUserID(c)
	if err != nil {
		return utils.JSONError(c, fiber.StatusUnauthorized, err.Error())
	}

	var req RecordCompletionRequest
	if err := c.BodyParser(&req); err != nil {
		return utils.JSONError(c, fiber.StatusBadRequest, "Invalid request body")
	}
	now := time.Now()
	if err := req.validate(now); err != nil {
		return utils.JSONError(c, fiber.StatusBadRequest, err.Error())
	}

	playID := strings.TrimSpace(req.PlayID)
	if playID == "" {
		playID = uuid.NewString()
	}
	completedAt := now
	if req.CompletedAt != nil {
		completedAt = *req.CompletedAt
	}

	ctx := c.UserContext()
	event, err := achievementStore.RecordCompletion(ctx, services.CompletionInput{
		PlayID:         playID,
		UserID:         userID,
		QuizSlug:       req.QuizSlug,
		Score:          req.Score,
		TotalQuestions: req.TotalQuestions,
		Rounds:         req.Rounds,
		ElapsedSeconds: req.ElapsedSeconds,
		CompletedAt:    completedAt,
	})
	switch {
	case errors.Is(err, services.ErrQuizNotFound):
		return utils.JSONError(c, fiber.StatusNotFound, "Quiz not found")
	case errors.Is(err, services.ErrDuplicateCompletion):
		return utils.JSONError(c, fiber.StatusConflict, "Completion already recorded")
	case err != nil:
		progressionLog.Error("Failed to record completion", "user_id", userID, "quiz", req.QuizSlug, "error", err)
		return utils.JSONError(c, fiber.StatusInternalServerError, "Failed to record completion")
	}

	// The completion is already stored; evaluation problems never fail the request.
	unlocks, err := achievementEngine.EvaluateOnCompletion(ctx, event)
	if err != nil {
		var partial *achievements.UnlockErrors
		if errors.As(err, &partial) {
			progressionLog.Warn("Some unlocks were not persisted", "user_id", userID, "completion_id", event.ID, "error", err)
		} else {
			progressionLog.Error("Achievement evaluation failed", "user_id", userID, "completion_id", event.ID, "error", err)
		}
	}
	if unlocks == nil {
		unlocks = []achievements.NewUnlock{}
	}

	return utils.JSONSuccess(c, fiber.StatusCreated, fiber.Map{
		"completion": fiber.Map{
			"id":           event.ID,
			"play_id":      playID,
			"quiz_slug":    event.QuizSlug,
			"score":        event.Score,
			"total":        event.TotalQuestions,
			"completed_at": event.CompletedAt,
		},
		"new_achievements": unlocks,
	})
}

// GetCompletionHistory lists the caller's most recent completions.
// GET /api/completions?limit=20
func GetCompletionHistory(c *fiber.Ctx) error {
	userID, err := middleware.GetUserID(c)
	if err != nil {
		return utils.JSONError(c, fiber.StatusUnauthorized, err.Error())
	}

	limit := c.QueryInt("limit", 20)
	if limit < 1 || limit > 100 {
		limit = 20
	}

	history, err := achievementStore.ListRecentCompletions(c.UserContext(), userID, limit)
	if err != nil {
		return utils.JSONError(c, fiber.StatusInternalServerError, "Failed to fetch history")
	}

	items := make([]fiber.Map, 0, len(history))
	for _, h := range history {
		items = append(items, fiber.Map{
			"id":              h.ID,
			"quiz_slug":       h.QuizSlug,
			"category":        h.QuizCategory,
			"score":           h.Score,
			"total":           h.TotalQuestions,
			"elapsed_seconds": h.ElapsedSeconds,
			"completed_at":    h.CompletedAt,
		})
	}
	return utils.JSONSuccess(c, fiber.StatusOK, fiber.Map{"completions": items})
}

type achievementView struct {
	ID          uint                   `json:"id"`
	Slug        string                 `json:"slug"`
	Name        string                 `json:"name"`
	Description string                 `json:"description"`
	Icon        string                 `json:"icon"`
	PremiumOnly bool                   `json:"premium_only"`
	Unlocked    bool                   `json:"unlocked"`
	UnlockedAt  *time.Time             `json:"unlocked_at,omitempty"`
	QuizSlug    string                 `json:"quiz_slug,omitempty"`
	Progress    *achievements.Progress `json:"progress,omitempty"`
	Available   bool                   `json:"available"`
}

// GetAchievements returns the catalogue with the caller's unlock state and progress.
// Achievements the caller's tier cannot earn are listed with available=false.
// GET /api/achievements
func GetAchievements(c *fiber.Ctx) error {
	userID, err := middleware.GetUserID(c)
	if err != nil {
		return utils.JSONError(c, fiber.StatusUnauthorized, err.Error())
	}
	ctx := c.UserContext()

	progress, err := achievementEngine.Progress(ctx, userID)
	if errors.Is(err, achievements.ErrUserNotFound) {
		return utils.JSONError(c, fiber.StatusNotFound, "User not found")
	}
	if err != nil {
		progressionLog.Error("Failed to compute achievement progress", "user_id", userID, "error", err)
		return utils.JSONError(c, fiber.StatusInternalServerError, "Failed to fetch achievements")
	}

	catalog, err := achievementStore.ListCatalog(ctx)
	if err != nil {
		return utils.JSONError(c, fiber.StatusInternalServerError, "Failed to fetch achievements")
	}
	unlocked, err := achievementStore.ListUserAchievements(ctx, userID)
	if err != nil {
		return utils.JSONError(c, fiber.StatusInternalServerError, "Failed to fetch achievements")
	}

	progressByID := make(map[uint]achievements.AchievementProgress, len(progress))
	for _, p := range progress {
		progressByID[p.AchievementID] = p
	}
	unlockByID := make(map[uint]int, len(unlocked))
	for i, u := range unlocked {
		unlockByID[u.AchievementID] = i
	}

	views := make([]achievementView, 0, len(catalog))
	unlockedCount := 0
	for _, a := range catalog {
		v := achievementView{
			ID:          a.ID,
			Slug:        a.Slug,
			Name:        a.Name,
			Description: a.Description,
			Icon:        a.Icon,
			PremiumOnly: a.PremiumOnly,
		}
		if i, ok := unlockByID[a.ID]; ok {
			u := unlocked[i]
			v.Unlocked = true
			v.Available = true
			v.UnlockedAt = &u.UnlockedAt
			v.QuizSlug = u.QuizSlug
			if u.ProgressValue != nil && u.ProgressMax != nil {
				v.Progress = &achievements.Progress{Value: *u.ProgressValue, Max: *u.ProgressMax}
			}
			unlockedCount++
		} else if p, ok := progressByID[a.ID]; ok {
			v.Available = true
			v.Progress = p.Progress
		}
		views = append(views, v)
	}

	return utils.JSONSuccess(c, fiber.StatusOK, fiber.Map{
		"achievements": views,
		"unlocked":     unlockedCount,
		"total":        len(catalog),
	})
}
