// handlers/auth.go
package handlers

import (
	"fmt"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"quizhub/achievements"
	"quizhub/database"
	"quizhub/middleware"
	"quizhub/models"
)

type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type RegisterRequest struct {
	Username string `json:"username"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

type GuestLoginRequest struct {
	GuestName string `json:"guest_name,omitempty"`
}

type AuthResponse struct {
	Success bool      `json:"success"`
	Token   string    `json:"token,omitempty"`
	User    *UserInfo `json:"user,omitempty"`
	Error   string    `json:"error,omitempty"`
}

type UserInfo struct {
	ID        uint              `json:"id"`
	Username  string            `json:"username"`
	Email     string            `json:"email,omitempty"`
	IsGuest   bool              `json:"is_guest"`
	Tier      achievements.Tier `json:"tier"`
	CreatedAt time.Time         `json:"created_at"`
}

// GuestLogin creates a new guest session
func GuestLogin(c *fiber.Ctx) error {
	var req GuestLoginRequest
	// An empty body is allowed
	_ = c.BodyParser(&req)

	db := database.GetDB()
	if db == nil {
		return authError(c, fiber.StatusInternalServerError, "Database not available")
	}

	guestName := strings.TrimSpace(req.GuestName)
	if guestName == "" {
		guestName = fmt.Sprintf("Guest_%s", uuid.New().String()[:8])
	}

	// Guests have no password; the random hash below can never be matched by Login.
	hashed, err := bcrypt.GenerateFromPassword([]byte(uuid.NewString()), bcrypt.DefaultCost)
	if err != nil {
		return authError(c, fiber.StatusInternalServerError, "Failed to create guest account")
	}

	user := models.User{
		Username:  guestName,
		Password:  string(hashed),
		IsGuest:   true,
		LastLogin: time.Now(),
	}
	if err := db.Create(&user).Error; err != nil {
		return authError(c, fiber.StatusInternalServerError, "Failed to create guest account")
	}

	return authSuccess(c, fiber.StatusOK, user)
}

// Login authenticates a registered user
func Login(c *fiber.Ctx) error {
	var req LoginRequest
	if err := c.BodyParser(&req); err != nil {
		return authError(c, fiber.StatusBadRequest, "Invalid request body")
	}

	if req.Username == "" || req.Password == "" {
		return authError(c, fiber.StatusBadRequest, "Username and password required")
	}

	db := database.GetDB()
	if db == nil {
		return authError(c, fiber.StatusInternalServerError, "Database not available")
	}

	var user models.User
	if err := db.Where("username = ? AND is_guest = ?", req.Username, false).First(&user).Error; err != nil {
		return authError(c, fiber.StatusUnauthorized, "Invalid credentials")
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.Password), []byte(req.Password)); err != nil {
		return authError(c, fiber.StatusUnauthorized, "Invalid credentials")
	}

	if user.IsBanned {
		return authError(c, fiber.StatusForbidden, "Account is banned")
	}

	db.Model(&user).Update("last_login", time.Now())

	return authSuccess(c, fiber.StatusOK, user)
}

// Register creates a new user account
func Register(c *fiber.Ctx) error {
	var req RegisterRequest
	if err := c.BodyParser(&req); err != nil {
		return authError(c, fiber.StatusBadRequest, "Invalid request body")
	}

	req.Username = strings.TrimSpace(req.Username)
	if req.Username == "" || req.Password == "" {
		return authError(c, fiber.StatusBadRequest, "Username and password required")
	}

	if len(req.Password) < 6 {
		return authError(c, fiber.StatusBadRequest, "Password must be at least 6 characters")
	}

	db := database.GetDB()
	if db == nil {
		return authError(c, fiber.StatusInternalServerError, "Database not available")
	}

	var existing int64
	db.Model(&models.User{}).Where("username = ?", req.Username).Count(&existing)
	if existing > 0 {
		return authError(c, fiber.StatusConflict, "Username already taken")
	}

	hashedPassword, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		return authError(c, fiber.StatusInternalServerError, "Failed to hash password")
	}

	user := models.User{
		Username:  req.Username,
		Password:  string(hashedPassword),
		LastLogin: time.Now(),
	}
	if email := strings.TrimSpace(req.Email); email != "" {
		user.Email = &email
	}

	if err := db.Create(&user).Error; err != nil {
		return authError(c, fiber.StatusInternalServerError, "Failed to create account")
	}

	return authSuccess(c, fiber.StatusCreated, user)
}

// Helper functions

func authError(c *fiber.Ctx, status int, message string) error {
	return c.Status(status).JSON(AuthResponse{Success: false, Error: message})
}

func authSuccess(c *fiber.Ctx, status int, user models.User) error {
	token, err := middleware.GenerateToken(user.ID, user.Username, user.IsGuest, user.IsAdmin)
	if err != nil {
		return authError(c, fiber.StatusInternalServerError, "Failed to generate token")
	}
	return c.Status(status).JSON(AuthResponse{
		Success: true,
		Token:   token,
		User:    userInfo(user),
	})
}

func userInfo(user models.User) *UserInfo {
	email := ""
	if user.Email != nil {
		email = *user.Email
	}
	return &UserInfo{
		ID:       user.ID,
		Username: user.Username,
		Email:    email,
		IsGuest:  user.IsGuest,
		Tier: achievements.ResolveTier(achievements.Account{
			UserID:             user.ID,
			IsGuest:            user.IsGuest,
			TierFlag:           user.TierFlag,
			SubscriptionStatus: user.SubscriptionStatus,
			TrialEndsAt:        user.TrialEndsAt,
		}, time.Now()),
		CreatedAt: user.CreatedAt,
	}
}
