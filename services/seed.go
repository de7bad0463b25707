// services/seed.go - YAML catalogue seeding
package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
	"gorm.io/datatypes"

	"quizhub/achievements"
	"quizhub/models"
)

// SeedFile is the on-disk catalogue format read by cmd/seed-achievements.
type SeedFile struct {
	Quizzes      []SeedQuiz        `yaml:"quizzes"`
	Achievements []SeedAchievement `yaml:"achievements"`
}

type SeedQuiz struct {
	Slug        string     `yaml:"slug"`
	Title       string     `yaml:"title"`
	Category    string     `yaml:"category"`
	SeasonTag   string     `yaml:"season_tag"`
	PublishedAt *time.Time `yaml:"published_at"`
}

type SeedAchievement struct {
	Slug        string `yaml:"slug"`
	Name        string `yaml:"name"`
	Description string `yaml:"description"`
	Icon        string `yaml:"icon"`
	PremiumOnly bool   `yaml:"premium_only"`
	SeasonTag   string `yaml:"season_tag"`
	Condition   struct {
		Type   string         `yaml:"type"`
		Config map[string]any `yaml:"config"`
	} `yaml:"condition"`
}

type SeedResult struct {
	QuizzesCreated      int
	QuizzesUpdated      int
	AchievementsCreated int
	AchievementsUpdated int
	// Warnings lists achievements stored with a condition type this build cannot evaluate yet.
	Warnings []string
}

// LoadSeedFile reads and decodes a YAML catalogue.
func LoadSeedFile(path string) (*SeedFile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read seed file: %w", err)
	}
	var f SeedFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse seed file: %w", err)
	}
	return &f, nil
}

// Validate converts every achievement into a model and checks its condition against registry.
// All problems are reported together. Condition types the registry does not know are kept and
// reported as warnings; the engine skips them until an evaluator is registered.
func (f *SeedFile) Validate(registry *achievements.Registry) ([]models.Achievement, []string, error) {
	var (
		out      []models.Achievement
		warnings []string
		errs     []error
		seen     = map[string]bool{}
	)
	for i, a := range f.Achievements {
		slug := strings.TrimSpace(a.Slug)
		if slug == "" || strings.TrimSpace(a.Name) == "" {
			errs = append(errs, fmt.Errorf("achievement #%d: slug and name are required", i+1))
			continue
		}
		if seen[slug] {
			errs = append(errs, fmt.Errorf("achievement %q: duplicate slug", slug))
			continue
		}
		seen[slug] = true
		if strings.TrimSpace(a.Condition.Type) == "" {
			errs = append(errs, fmt.Errorf("achievement %q: condition type is required", slug))
			continue
		}

		config := []byte("{}")
		if len(a.Condition.Config) > 0 {
			raw, err := json.Marshal(a.Condition.Config)
			if err != nil {
				errs = append(errs, fmt.Errorf("achievement %q: %w", slug, err))
				continue
			}
			config = raw
		}
		def := achievements.Definition{
			Slug:          slug,
			Name:          a.Name,
			PremiumOnly:   a.PremiumOnly,
			SeasonTag:     a.SeasonTag,
			ConditionType: achievements.ConditionType(a.Condition.Type),
			Config:        config,
		}
		if _, err := registry.Parse(def); err != nil {
			var unknown *achievements.UnknownConditionError
			if !errors.As(err, &unknown) {
				errs = append(errs, fmt.Errorf("achievement %q: %w", slug, err))
				continue
			}
			warnings = append(warnings, fmt.Sprintf("achievement %q: %v", slug, err))
		}
		out = append(out, models.Achievement{
			Slug:            slug,
			Name:            a.Name,
			Description:     a.Description,
			Icon:            a.Icon,
			PremiumOnly:     a.PremiumOnly,
			SeasonTag:       a.SeasonTag,
			ConditionType:   a.Condition.Type,
			ConditionConfig: datatypes.JSON(config),
		})
	}
	return out, warnings, errors.Join(errs...)
}

// Seed validates the whole file first and writes nothing if any entry is invalid.
func (s *AchievementStore) Seed(ctx context.Context, f *SeedFile, registry *achievements.Registry) (SeedResult, error) {
	var res SeedResult
	defs, warnings, err := f.Validate(registry)
	if err != nil {
		return res, err
	}
	res.Warnings = warnings
	for _, w := range warnings {
		s.log.Warn("Seeding achievement without an evaluator", "detail", w)
	}

	for _, q := range f.Quizzes {
		created, err := s.upsertQuiz(ctx, q)
		if err != nil {
			return res, fmt.Errorf("quiz %q: %w", q.Slug, err)
		}
		if created {
			res.QuizzesCreated++
		} else {
			res.QuizzesUpdated++
		}
	}

	for i := range defs {
		created, err := s.UpsertAchievementBySlug(ctx, &defs[i])
		if err != nil {
			return res, fmt.Errorf("achievement %q: %w", defs[i].Slug, err)
		}
		if created {
			res.AchievementsCreated++
		} else {
			res.AchievementsUpdated++
		}
	}
	return res, nil
}

func (s *AchievementStore) upsertQuiz(ctx context.Context, q SeedQuiz) (bool, error) {
	if strings.TrimSpace(q.Slug) == "" {
		return false, errors.New("slug is required")
	}
	title := q.Title
	if title == "" {
		title = q.Slug
	}

	var existing models.Quiz
	err := s.db.WithContext(ctx).Where("slug = ?", q.Slug).Limit(1).Find(&existing).Error
	if err != nil {
		return false, err
	}
	if existing.ID == 0 {
		return true, s.db.WithContext(ctx).Create(&models.Quiz{
			Slug:        q.Slug,
			Title:       title,
			Category:    q.Category,
			SeasonTag:   q.SeasonTag,
			IsActive:    true,
			PublishedAt: q.PublishedAt,
		}).Error
	}
	return false, s.db.WithContext(ctx).Model(&existing).Updates(map[string]interface{}{
		"title":        title,
		"category":     q.Category,
		"season_tag":   q.SeasonTag,
		"published_at": q.PublishedAt,
	}).Error
}
