package handlers

import (
	"github.com/gofiber/fiber/v2"

	"quizhub/database"
	"quizhub/middleware"
	"quizhub/models"
	"quizhub/utils"
)

// GetCurrentUser returns the caller's profile, resolved tier and play statistics.
// GET /api/users/me
func GetCurrentUser(c *fiber.Ctx) error {
	userID, err := middleware.GetUserID(c)
	if err != nil {
		return utils.JSONError(c, fiber.StatusUnauthorized, err.Error())
	}

	db := database.GetDB()
	var user models.User
	if err := db.First(&user, userID).Error; err != nil {
		return utils.JSONError(c, fiber.StatusNotFound, "User not found")
	}

	var unlocked int64
	db.Model(&models.UserAchievement{}).Where("user_id = ?", userID).Count(&unlocked)

	return utils.JSONSuccess(c, fiber.StatusOK, fiber.Map{
		"user": userInfo(user),
		"stats": fiber.Map{
			"total_games":           user.TotalGames,
			"perfect_games":         user.PerfectGames,
			"achievements_unlocked": unlocked,
		},
	})
}
