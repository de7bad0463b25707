// services/achievement_store.go - gorm storage for achievements, completions and unlocks
package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"quizhub/achievements"
	"quizhub/logger"
	"quizhub/models"
)

var (
	ErrNotFound            = errors.New("record not found")
	ErrDuplicateCompletion = errors.New("completion already recorded")
	ErrDuplicateSlug       = errors.New("achievement slug already exists")
	ErrQuizNotFound        = errors.New("quiz not found")
)

// AchievementStore implements achievements.Repository on top of gorm, plus the catalogue,
// completion and tier writes the HTTP layer and CLIs need.
type AchievementStore struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewAchievementStore(db *gorm.DB, log *logger.Logger) *AchievementStore {
	return &AchievementStore{db: db, log: log.With("service", "AchievementStore")}
}

// ================== ENGINE REPOSITORY ==================

func (s *AchievementStore) GetAccount(ctx context.Context, userID uint) (achievements.Account, error) {
	var user models.User
	err := s.db.WithContext(ctx).
		Select("id", "is_guest", "tier_flag", "subscription_status", "trial_ends_at").
		First(&user, userID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return achievements.Account{}, achievements.ErrUserNotFound
	}
	if err != nil {
		return achievements.Account{}, err
	}
	return toAccount(user), nil
}

func (s *AchievementStore) ListAchievements(ctx context.Context, filter achievements.AchievementFilter) ([]achievements.Definition, error) {
	q := s.db.WithContext(ctx).Order("id ASC")
	if filter.PremiumOnly != nil {
		q = q.Where("premium_only = ?", *filter.PremiumOnly)
	}
	var rows []models.Achievement
	if err := q.Find(&rows).Error; err != nil {
		return nil, err
	}
	defs := make([]achievements.Definition, 0, len(rows))
	for _, row := range rows {
		defs = append(defs, toDefinition(row))
	}
	return defs, nil
}

func (s *AchievementStore) ListUnlockedAchievementIDs(ctx context.Context, userID uint) (map[uint]struct{}, error) {
	var ids []uint
	err := s.db.WithContext(ctx).Model(&models.UserAchievement{}).
		Where("user_id = ?", userID).
		Pluck("achievement_id", &ids).Error
	if err != nil {
		return nil, err
	}
	out := make(map[uint]struct{}, len(ids))
	for _, id := range ids {
		out[id] = struct{}{}
	}
	return out, nil
}

// ListRecentCompletions returns at most limit completions, most recent first. Ties on
// completed_at are broken by id so the order is stable.
func (s *AchievementStore) ListRecentCompletions(ctx context.Context, userID uint, limit int) ([]achievements.CompletionEvent, error) {
	var rows []models.Completion
	err := s.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("completed_at DESC").Order("id DESC").
		Limit(limit).
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	events := make([]achievements.CompletionEvent, 0, len(rows))
	for _, row := range rows {
		events = append(events, s.toEvent(row))
	}
	return events, nil
}

// InsertUnlockIfAbsent relies on idx_user_achievements_unique. A conflicting insert affects no
// rows; the row that won is then read back and reported with inserted=false.
func (s *AchievementStore) InsertUnlockIfAbsent(ctx context.Context, rec achievements.UnlockRecord) (achievements.UnlockRecord, bool, error) {
	row := models.UserAchievement{
		UserID:        rec.UserID,
		AchievementID: rec.AchievementID,
		QuizSlug:      rec.QuizSlug,
		UnlockedAt:    rec.UnlockedAt,
	}
	if rec.Progress != nil {
		value, max := rec.Progress.Value, rec.Progress.Max
		row.ProgressValue = &value
		row.ProgressMax = &max
	}
	if len(rec.Meta) > 0 {
		raw, err := json.Marshal(rec.Meta)
		if err != nil {
			return achievements.UnlockRecord{}, false, fmt.Errorf("encode unlock meta: %w", err)
		}
		row.Meta = datatypes.JSON(raw)
	}

	res := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "user_id"}, {Name: "achievement_id"}},
		DoNothing: true,
	}).Create(&row)
	if res.Error != nil {
		return achievements.UnlockRecord{}, false, res.Error
	}
	if res.RowsAffected > 0 {
		return rec, true, nil
	}

	var existing models.UserAchievement
	err := s.db.WithContext(ctx).
		Where("user_id = ? AND achievement_id = ?", rec.UserID, rec.AchievementID).
		First(&existing).Error
	if err != nil {
		return achievements.UnlockRecord{}, false, fmt.Errorf("reload existing unlock: %w", err)
	}
	return s.toUnlockRecord(existing), false, nil
}

// ================== COMPLETIONS ==================

// CompletionInput is what a client reports when a play-through ends.
type CompletionInput struct {
	PlayID         string
	UserID         uint
	QuizSlug       string
	Score          int
	TotalQuestions int
	Rounds         []achievements.Round
	ElapsedSeconds int
	CompletedAt    time.Time
}

// RecordCompletion appends a completion, copying the quiz's category and publish date
// onto the row. A replayed PlayID returns ErrDuplicateCompletion and writes nothing.
func (s *AchievementStore) RecordCompletion(ctx context.Context, in CompletionInput) (achievements.CompletionEvent, error) {
	var quiz models.Quiz
	err := s.db.WithContext(ctx).Where("slug = ?", in.QuizSlug).First(&quiz).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return achievements.CompletionEvent{}, ErrQuizNotFound
	}
	if err != nil {
		return achievements.CompletionEvent{}, err
	}

	rounds, err := json.Marshal(in.Rounds)
	if err != nil {
		return achievements.CompletionEvent{}, fmt.Errorf("encode rounds: %w", err)
	}

	row := models.Completion{
		PlayID:          in.PlayID,
		UserID:          in.UserID,
		QuizSlug:        quiz.Slug,
		QuizCategory:    quiz.Category,
		QuizPublishedAt: quiz.PublishedAt,
		Score:           in.Score,
		TotalQuestions:  in.TotalQuestions,
		Rounds:          datatypes.JSON(rounds),
		ElapsedSeconds:  in.ElapsedSeconds,
		IsPerfect:       in.TotalQuestions > 0 && in.Score == in.TotalQuestions,
		CompletedAt:     in.CompletedAt.UTC(),
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "play_id"}},
			DoNothing: true,
		}).Create(&row)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return ErrDuplicateCompletion
		}

		updates := map[string]interface{}{"total_games": gorm.Expr("total_games + ?", 1)}
		if row.IsPerfect {
			updates["perfect_games"] = gorm.Expr("perfect_games + ?", 1)
		}
		return tx.Model(&models.User{}).Where("id = ?", in.UserID).Updates(updates).Error
	})
	if err != nil {
		return achievements.CompletionEvent{}, err
	}
	return s.toEvent(row), nil
}

// ================== CATALOGUE ==================

func (s *AchievementStore) ListCatalog(ctx context.Context) ([]models.Achievement, error) {
	var rows []models.Achievement
	err := s.db.WithContext(ctx).Order("id ASC").Find(&rows).Error
	return rows, err
}

func (s *AchievementStore) GetAchievement(ctx context.Context, id uint) (*models.Achievement, error) {
	var row models.Achievement
	err := s.db.WithContext(ctx).First(&row, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &row, nil
}

func (s *AchievementStore) CreateAchievement(ctx context.Context, a *models.Achievement) error {
	taken, err := s.slugTaken(ctx, a.Slug, 0)
	if err != nil {
		return err
	}
	if taken {
		return ErrDuplicateSlug
	}
	return s.db.WithContext(ctx).Create(a).Error
}

func (s *AchievementStore) UpdateAchievement(ctx context.Context, a *models.Achievement) error {
	taken, err := s.slugTaken(ctx, a.Slug, a.ID)
	if err != nil {
		return err
	}
	if taken {
		return ErrDuplicateSlug
	}
	res := s.db.WithContext(ctx).Model(&models.Achievement{}).Where("id = ?", a.ID).Updates(map[string]interface{}{
		"slug":             a.Slug,
		"name":             a.Name,
		"description":      a.Description,
		"icon":             a.Icon,
		"premium_only":     a.PremiumOnly,
		"season_tag":       a.SeasonTag,
		"condition_type":   a.ConditionType,
		"condition_config": a.ConditionConfig,
	})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// DeleteAchievement removes a definition together with every unlock of it.
func (s *AchievementStore) DeleteAchievement(ctx context.Context, id uint) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("achievement_id = ?", id).Delete(&models.UserAchievement{}).Error; err != nil {
			return err
		}
		res := tx.Delete(&models.Achievement{}, id)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return ErrNotFound
		}
		return nil
	})
}

// UpsertAchievementBySlug creates the definition or overwrites the one with the same slug.
// It reports whether a new row was created.
func (s *AchievementStore) UpsertAchievementBySlug(ctx context.Context, a *models.Achievement) (bool, error) {
	var existing models.Achievement
	err := s.db.WithContext(ctx).Where("slug = ?", a.Slug).First(&existing).Error
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		return true, s.db.WithContext(ctx).Create(a).Error
	case err != nil:
		return false, err
	}
	a.ID = existing.ID
	return false, s.UpdateAchievement(ctx, a)
}

func (s *AchievementStore) slugTaken(ctx context.Context, slug string, exceptID uint) (bool, error) {
	var count int64
	q := s.db.WithContext(ctx).Model(&models.Achievement{}).Where("slug = ?", slug)
	if exceptID != 0 {
		q = q.Where("id <> ?", exceptID)
	}
	if err := q.Count(&count).Error; err != nil {
		return false, err
	}
	return count > 0, nil
}

// ================== USERS ==================

// ListUserAchievements returns a user's unlocks with their definitions, newest first.
func (s *AchievementStore) ListUserAchievements(ctx context.Context, userID uint) ([]models.UserAchievement, error) {
	var rows []models.UserAchievement
	err := s.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Preload("Achievement").
		Order("unlocked_at DESC").
		Find(&rows).Error
	return rows, err
}

// TierUpdate changes the fields ResolveTier reads. Nil fields are left alone.
type TierUpdate struct {
	TierFlag           *string
	SubscriptionStatus *string
	TrialEndsAt        *time.Time
	ClearTrial         bool
}

func (s *AchievementStore) UpdateTier(ctx context.Context, userID uint, upd TierUpdate) error {
	updates := map[string]interface{}{}
	if upd.TierFlag != nil {
		updates["tier_flag"] = strings.ToLower(strings.TrimSpace(*upd.TierFlag))
	}
	if upd.SubscriptionStatus != nil {
		updates["subscription_status"] = strings.ToLower(strings.TrimSpace(*upd.SubscriptionStatus))
	}
	switch {
	case upd.ClearTrial:
		updates["trial_ends_at"] = nil
	case upd.TrialEndsAt != nil:
		updates["trial_ends_at"] = upd.TrialEndsAt.UTC()
	}
	if len(updates) == 0 {
		return nil
	}

	res := s.db.WithContext(ctx).Model(&models.User{}).Where("id = ?", userID).Updates(updates)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// ListPremiumUserIDs returns the users whose stored fields resolve to premium at now. The
// conditions mirror achievements.ResolveTier.
func (s *AchievementStore) ListPremiumUserIDs(ctx context.Context, now time.Time) ([]uint, error) {
	var ids []uint
	err := s.db.WithContext(ctx).Model(&models.User{}).
		Where("LOWER(tier_flag) = ?", string(achievements.TierPremium)).
		Or("LOWER(subscription_status) IN ?", []string{"active", "trialing"}).
		Or("trial_ends_at > ?", now.UTC()).
		Order("id ASC").
		Pluck("id", &ids).Error
	return ids, err
}

// ================== MAPPING ==================

func toAccount(u models.User) achievements.Account {
	return achievements.Account{
		UserID:             u.ID,
		IsGuest:            u.IsGuest,
		TierFlag:           u.TierFlag,
		SubscriptionStatus: u.SubscriptionStatus,
		TrialEndsAt:        u.TrialEndsAt,
	}
}

func toDefinition(a models.Achievement) achievements.Definition {
	return achievements.Definition{
		ID:            a.ID,
		Slug:          a.Slug,
		Name:          a.Name,
		PremiumOnly:   a.PremiumOnly,
		SeasonTag:     a.SeasonTag,
		ConditionType: achievements.ConditionType(a.ConditionType),
		Config:        []byte(a.ConditionConfig),
	}
}

func (s *AchievementStore) toEvent(c models.Completion) achievements.CompletionEvent {
	var rounds []achievements.Round
	if len(c.Rounds) > 0 {
		if err := json.Unmarshal(c.Rounds, &rounds); err != nil {
			s.log.Warn("Ignoring unreadable rounds on completion", "completion_id", c.ID, "error", err)
			rounds = nil
		}
	}
	return achievements.CompletionEvent{
		ID:             c.ID,
		UserID:         c.UserID,
		QuizSlug:       c.QuizSlug,
		QuizCategory:   c.QuizCategory,
		QuizPublished:  c.QuizPublishedAt,
		Score:          c.Score,
		TotalQuestions: c.TotalQuestions,
		Rounds:         rounds,
		ElapsedSeconds: c.ElapsedSeconds,
		CompletedAt:    c.CompletedAt,
	}
}

func (s *AchievementStore) toUnlockRecord(ua models.UserAchievement) achievements.UnlockRecord {
	rec := achievements.UnlockRecord{
		UserID:        ua.UserID,
		AchievementID: ua.AchievementID,
		QuizSlug:      ua.QuizSlug,
		UnlockedAt:    ua.UnlockedAt,
	}
	if ua.ProgressValue != nil && ua.ProgressMax != nil {
		rec.Progress = &achievements.Progress{Value: *ua.ProgressValue, Max: *ua.ProgressMax}
	}
	if len(ua.Meta) > 0 {
		if err := json.Unmarshal(ua.Meta, &rec.Meta); err != nil {
			s.log.Warn("Ignoring unreadable unlock meta", "unlock_id", ua.ID, "error", err)
		}
	}
	return rec
}
