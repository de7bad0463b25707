package admin

import (
	"encoding/json"
	"errors"
	"strings"

	"github.com/gofiber/fiber/v2"
	"gorm.io/datatypes"

	"quizhub/achievements"
	"quizhub/logger"
	"quizhub/models"
	"quizhub/services"
	"quizhub/utils"
)

var (
	store    *services.AchievementStore
	catalog  *services.CachedCatalog
	engine   *achievements.Engine
	cleanup  *services.CleanupService
	adminLog *logger.Logger
)

// InitAdminHandlers wires the admin endpoints. catalog and cleanup may be nil.
func InitAdminHandlers(s *services.AchievementStore, cat *services.CachedCatalog, e *achievements.Engine, cs *services.CleanupService, log *logger.Logger) {
	if s == nil || e == nil {
		panic("store and engine must be initialized before InitAdminHandlers")
	}
	store = s
	catalog = cat
	engine = e
	cleanup = cs
	adminLog = log.With("handler", "admin")
}

type AchievementRequest struct {
	Slug            string          `json:"slug"`
	Name            string          `json:"name"`
	Description     string          `json:"description"`
	Icon            string          `json:"icon"`
	PremiumOnly     bool            `json:"premium_only"`
	SeasonTag       string          `json:"season_tag"`
	ConditionType   string          `json:"condition_type"`
	ConditionConfig json.RawMessage `json:"condition_config"`
}

// toModel validates the request, including the condition config, against the engine's registry.
// A condition type with no registered evaluator is accepted and returned as a warning.
func (r AchievementRequest) toModel(registry *achievements.Registry) (*models.Achievement, string, error) {
	slug := strings.TrimSpace(r.Slug)
	name := strings.TrimSpace(r.Name)
	if slug == "" || name == "" {
		return nil, "", errors.New("slug and name are required")
	}
	if strings.TrimSpace(r.ConditionType) == "" {
		return nil, "", errors.New("condition_type is required")
	}
	config := r.ConditionConfig
	if len(config) == 0 || string(config) == "null" {
		config = json.RawMessage("{}")
	}

	def := achievements.Definition{
		Slug:          slug,
		Name:          name,
		PremiumOnly:   r.PremiumOnly,
		SeasonTag:     r.SeasonTag,
		ConditionType: achievements.ConditionType(r.ConditionType),
		Config:        config,
	}
	var warning string
	if _, err := registry.Parse(def); err != nil {
		var unknown *achievements.UnknownConditionError
		if !errors.As(err, &unknown) {
			return nil, "", err
		}
		warning = err.Error() + "; the achievement is stored but cannot unlock until an evaluator exists"
	}

	return &models.Achievement{
		Slug:            slug,
		Name:            name,
		Description:     r.Description,
		Icon:            r.Icon,
		PremiumOnly:     r.PremiumOnly,
		SeasonTag:       r.SeasonTag,
		ConditionType:   r.ConditionType,
		ConditionConfig: datatypes.JSON(config),
	}, warning, nil
}

// GetAchievements returns the whole catalogue and the condition types it may use.
// GET /api/admin/achievements
func GetAchievements(c *fiber.Ctx) error {
	rows, err := store.ListCatalog(c.UserContext())
	if err != nil {
		return utils.JSONError(c, fiber.StatusInternalServerError, "Failed to fetch achievements")
	}
	return utils.JSONSuccess(c, fiber.StatusOK, fiber.Map{
		"achievements":    rows,
		"condition_types": engine.Registry().Types(),
	})
}

// CreateAchievement creates a new achievement
// POST /api/admin/achievements
func CreateAchievement(c *fiber.Ctx) error {
	var req AchievementRequest
	if err := c.BodyParser(&req); err != nil {
		return utils.JSONError(c, fiber.StatusBadRequest, "Invalid request body")
	}
	a, warning, err := req.toModel(engine.Registry())
	if err != nil {
		return utils.JSONError(c, fiber.StatusBadRequest, err.Error())
	}

	ctx := c.UserContext()
	if err := store.CreateAchievement(ctx, a); err != nil {
		if errors.Is(err, services.ErrDuplicateSlug) {
			return utils.JSONError(c, fiber.StatusConflict, "Achievement slug already exists")
		}
		adminLog.Error("Failed to create achievement", "slug", a.Slug, "error", err)
		return utils.JSONError(c, fiber.StatusInternalServerError, "Failed to create achievement")
	}
	invalidateCatalog(c)

	resp := fiber.Map{"achievement": a}
	if warning != "" {
		adminLog.Warn("Achievement stored without an evaluator", "slug", a.Slug, "condition_type", a.ConditionType)
		resp["warning"] = warning
	}
	return utils.JSONSuccess(c, fiber.StatusCreated, resp)
}

// UpdateAchievement replaces an existing achievement
// PUT /api/admin/achievements/:id
func UpdateAchievement(c *fiber.Ctx) error {
	id, err := utils.ParamID(c, "id")
	if err != nil {
		return utils.JSONError(c, fiber.StatusBadRequest, "Invalid achievement id")
	}

	var req AchievementRequest
	if err := c.BodyParser(&req); err != nil {
		return utils.JSONError(c, fiber.StatusBadRequest, "Invalid request body")
	}
	a, warning, err := req.toModel(engine.Registry())
	if err != nil {
		return utils.JSONError(c, fiber.StatusBadRequest, err.Error())
	}
	a.ID = id

	ctx := c.UserContext()
	switch err := store.UpdateAchievement(ctx, a); {
	case errors.Is(err, services.ErrNotFound):
		return utils.JSONError(c, fiber.StatusNotFound, "Achievement not found")
	case errors.Is(err, services.ErrDuplicateSlug):
		return utils.JSONError(c, fiber.StatusConflict, "Achievement slug already exists")
	case err != nil:
		adminLog.Error("Failed to update achievement", "id", id, "error", err)
		return utils.JSONError(c, fiber.StatusInternalServerError, "Failed to update achievement")
	}
	invalidateCatalog(c)

	updated, err := store.GetAchievement(ctx, id)
	if err != nil {
		return utils.JSONError(c, fiber.StatusInternalServerError, "Failed to reload achievement")
	}
	resp := fiber.Map{"achievement": updated}
	if warning != "" {
		adminLog.Warn("Achievement stored without an evaluator", "slug", updated.Slug, "condition_type", updated.ConditionType)
		resp["warning"] = warning
	}
	return utils.JSONSuccess(c, fiber.StatusOK, resp)
}

// DeleteAchievement deletes an achievement and every unlock of it
// DELETE /api/admin/achievements/:id
func DeleteAchievement(c *fiber.Ctx) error {
	id, err := utils.ParamID(c, "id")
	if err != nil {
		return utils.JSONError(c, fiber.StatusBadRequest, "Invalid achievement id")
	}

	switch err := store.DeleteAchievement(c.UserContext(), id); {
	case errors.Is(err, services.ErrNotFound):
		return utils.JSONError(c, fiber.StatusNotFound, "Achievement not found")
	case err != nil:
		adminLog.Error("Failed to delete achievement", "id", id, "error", err)
		return utils.JSONError(c, fiber.StatusInternalServerError, "Failed to delete achievement")
	}
	invalidateCatalog(c)

	return utils.JSONSuccess(c, fiber.StatusOK, fiber.Map{"message": "Achievement deleted successfully"})
}

func invalidateCatalog(c *fiber.Ctx) {
	if catalog != nil {
		catalog.Invalidate(c.UserContext())
	}
}
