package admin

import (
	"time"

	"github.com/gofiber/fiber/v2"
	"golang.org/x/crypto/bcrypt"

	"quizhub/database"
	"quizhub/middleware"
	"quizhub/models"
	"quizhub/utils"
)

type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type LoginResponse struct {
	Success  bool   `json:"success"`
	Token    string `json:"token"`
	Username string `json:"username"`
}

// Login authenticates an admin user
func Login(c *fiber.Ctx) error {
	var req LoginRequest
	if err := c.BodyParser(&req); err != nil {
		return utils.JSONError(c, fiber.StatusBadRequest, "Invalid request body")
	}

	if req.Username == "" || req.Password == "" {
		return utils.JSONError(c, fiber.StatusBadRequest, "Username and password are required")
	}

	db := database.GetDB()
	var user models.User
	if err := db.Where("username = ? AND is_admin = ?", req.Username, true).First(&user).Error; err != nil {
		return utils.JSONError(c, fiber.StatusUnauthorized, "Invalid credentials")
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.Password), []byte(req.Password)); err != nil {
		return utils.JSONError(c, fiber.StatusUnauthorized, "Invalid credentials")
	}

	db.Model(&user).Update("last_login", time.Now())

	token, err := middleware.GenerateToken(user.ID, user.Username, false, true)
	if err != nil {
		return utils.JSONError(c, fiber.StatusInternalServerError, "Failed to generate token")
	}

	return c.JSON(LoginResponse{
		Success:  true,
		Token:    token,
		Username: user.Username,
	})
}

// VerifyToken reports the identity the admin middleware accepted.
func VerifyToken(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{
		"valid":    true,
		"user_id":  c.Locals("userId"),
		"username": c.Locals("username"),
		"is_admin": c.Locals("isAdmin"),
	})
}
