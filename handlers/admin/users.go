package admin

import (
	"errors"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"

	"quizhub/achievements"
	"quizhub/database"
	"quizhub/models"
	"quizhub/services"
	"quizhub/utils"
)

// GetUsers returns all users with pagination
// GET /api/admin/users?page=1&limit=20&search=
func GetUsers(c *fiber.Ctx) error {
	db := database.GetDB()

	page := c.QueryInt("page", 1)
	limit := c.QueryInt("limit", 20)
	if page < 1 {
		page = 1
	}
	if limit < 1 || limit > 100 {
		limit = 20
	}
	search := c.Query("search", "")
	offset := (page - 1) * limit

	var users []models.User
	var total int64

	query := db.Model(&models.User{})
	if search != "" {
		query = query.Where("username LIKE ? OR email LIKE ?", "%"+search+"%", "%"+search+"%")
	}

	query.Count(&total)

	if err := query.Order("id ASC").Offset(offset).Limit(limit).Find(&users).Error; err != nil {
		return utils.JSONError(c, fiber.StatusInternalServerError, "Failed to fetch users")
	}

	return utils.JSONSuccess(c, fiber.StatusOK, fiber.Map{
		"users": users,
		"total": total,
		"page":  page,
		"limit": limit,
	})
}

// GetUser returns a single user with the resolved tier and their unlocks
// GET /api/admin/users/:id
func GetUser(c *fiber.Ctx) error {
	id, err := utils.ParamID(c, "id")
	if err != nil {
		return utils.JSONError(c, fiber.StatusBadRequest, "Invalid user id")
	}

	var user models.User
	if err := database.GetDB().First(&user, id).Error; err != nil {
		return utils.JSONError(c, fiber.StatusNotFound, "User not found")
	}

	ctx := c.UserContext()
	acct, err := store.GetAccount(ctx, id)
	if err != nil {
		return utils.JSONError(c, fiber.StatusInternalServerError, "Failed to resolve tier")
	}
	unlocks, err := store.ListUserAchievements(ctx, id)
	if err != nil {
		return utils.JSONError(c, fiber.StatusInternalServerError, "Failed to fetch achievements")
	}

	return utils.JSONSuccess(c, fiber.StatusOK, fiber.Map{
		"user":         user,
		"tier":         achievements.ResolveTier(acct, time.Now()),
		"achievements": unlocks,
	})
}

type TierRequest struct {
	TierFlag           *string    `json:"tier_flag"`
	SubscriptionStatus *string    `json:"subscription_status"`
	TrialEndsAt        *time.Time `json:"trial_ends_at"`
	ClearTrial         bool       `json:"clear_trial"`
}

func (r TierRequest) validate() error {
	if r.TierFlag != nil {
		switch achievements.Tier(strings.ToLower(strings.TrimSpace(*r.TierFlag))) {
		case "", achievements.TierVisitor, achievements.TierFree, achievements.TierPremium:
		default:
			return errors.New("tier_flag must be empty, visitor, free or premium")
		}
	}
	if r.TierFlag == nil && r.SubscriptionStatus == nil && r.TrialEndsAt == nil && !r.ClearTrial {
		return errors.New("nothing to update")
	}
	return nil
}

// UpdateUserTier changes a user's tier inputs and then runs the retroactive sweep, so an upgrade
// immediately grants the premium achievements the user's history already qualifies for.
// PUT /api/admin/users/:id/tier
func UpdateUserTier(c *fiber.Ctx) error {
	id, err := utils.ParamID(c, "id")
	if err != nil {
		return utils.JSONError(c, fiber.StatusBadRequest, "Invalid user id")
	}

	var req TierRequest
	if err := c.BodyParser(&req); err != nil {
		return utils.JSONError(c, fiber.StatusBadRequest, "Invalid request body")
	}
	if err := req.validate(); err != nil {
		return utils.JSONError(c, fiber.StatusBadRequest, err.Error())
	}

	ctx := c.UserContext()
	err = store.UpdateTier(ctx, id, services.TierUpdate{
		TierFlag:           req.TierFlag,
		SubscriptionStatus: req.SubscriptionStatus,
		TrialEndsAt:        req.TrialEndsAt,
		ClearTrial:         req.ClearTrial,
	})
	if errors.Is(err, services.ErrNotFound) {
		return utils.JSONError(c, fiber.StatusNotFound, "User not found")
	}
	if err != nil {
		adminLog.Error("Failed to update tier", "user_id", id, "error", err)
		return utils.JSONError(c, fiber.StatusInternalServerError, "Failed to update tier")
	}

	acct, err := store.GetAccount(ctx, id)
	if err != nil {
		return utils.JSONError(c, fiber.StatusInternalServerError, "Failed to resolve tier")
	}
	tier := achievements.ResolveTier(acct, time.Now())
	adminLog.Info("User tier updated", "user_id", id, "tier", tier)

	unlocks, sweepErr := runSweep(c, id)
	resp := fiber.Map{
		"tier":             tier,
		"new_achievements": unlocks,
	}
	if sweepErr != "" {
		resp["sweep_error"] = sweepErr
	}
	return utils.JSONSuccess(c, fiber.StatusOK, resp)
}

// SweepUser re-runs the retroactive sweep for one user.
// POST /api/admin/users/:id/sweep
func SweepUser(c *fiber.Ctx) error {
	id, err := utils.ParamID(c, "id")
	if err != nil {
		return utils.JSONError(c, fiber.StatusBadRequest, "Invalid user id")
	}

	if _, err := store.GetAccount(c.UserContext(), id); errors.Is(err, achievements.ErrUserNotFound) {
		return utils.JSONError(c, fiber.StatusNotFound, "User not found")
	}

	unlocks, sweepErr := runSweep(c, id)
	if sweepErr != "" && len(unlocks) == 0 {
		return utils.JSONError(c, fiber.StatusInternalServerError, sweepErr)
	}
	resp := fiber.Map{"new_achievements": unlocks}
	if sweepErr != "" {
		resp["sweep_error"] = sweepErr
	}
	return utils.JSONSuccess(c, fiber.StatusOK, resp)
}

// runSweep returns the unlocks that were persisted and, on failure, a message for the client.
func runSweep(c *fiber.Ctx, userID uint) ([]achievements.NewUnlock, string) {
	unlocks, err := engine.RetroactiveSweep(c.UserContext(), userID)
	if unlocks == nil {
		unlocks = []achievements.NewUnlock{}
	}
	if err != nil {
		adminLog.Error("Retroactive sweep failed", "user_id", userID, "error", err)
		return unlocks, "Retroactive sweep did not complete; it is safe to retry"
	}
	return unlocks, ""
}
