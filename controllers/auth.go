package controllers

import (
	"errors"
	"time"

	"educenter_go/middleware"
	"educenter_go/models"
	"educenter_go/utils"

	"github.com/gofiber/fiber/v2"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

type AuthController struct {
	db *gorm.DB
}

func NewAuthController(db *gorm.DB) *AuthController {
	return &AuthController{db: db}
}

// LoginRequest represents the login request body
type LoginRequest struct {
	Username string `json:"username" validate:"required"`
	Password string `json:"password" validate:"required"`
}

type ChangePasswordRequest struct {
	CurrentPassword string `json:"current_password" validate:"required"`
	NewPassword     string `json:"new_password" validate:"required,min=6"`
}

func userSummary(u *models.User) fiber.Map {
	return fiber.Map{
		"id":              u.ID,
		"username":        u.Username,
		"email":           u.Email,
		"phone":           u.Phone,
		"full_name":       u.FullName(),
		"role":            u.Role,
		"organization_id": u.OrganizationID,
		"branch_id":       u.BranchID,
		"status":          u.Status,
	}
}

// Login authenticates a user and returns a JWT token. Blocked users and
// users of a frozen organization are refused even with the right password.
func (ac *AuthController) Login(c *fiber.Ctx) error {
	var req LoginRequest
	if err := bind(c, &req); err != nil {
		return badRequest(c, err.Error())
	}

	user, err := middleware.LoadPrincipal(ac.db.WithContext(c.UserContext()), "username = ?", req.Username)
	if err != nil {
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return respondError(c, err)
		}
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
			"error": "Invalid credentials",
		})
	}
	if err := utils.CheckPassword(req.Password, user.Password); err != nil {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
			"error": "Invalid credentials",
		})
	}
	if problem := middleware.AccountProblem(user); problem != "" {
		logrus.WithFields(logrus.Fields{"user_id": user.ID, "reason": problem}).Warn("login refused")
		return c.Status(fiber.StatusForbidden).JSON(fiber.Map{
			"error": problem,
		})
	}

	token, err := middleware.GenerateToken(user)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to generate token",
		})
	}

	c.Locals("user", user)
	middleware.LogActivity(c, "LOGIN", "auth", user.ID, fiber.Map{
		"username": user.Username,
		"role":     user.Role,
	})

	return c.JSON(fiber.Map{
		"message": "Login successful",
		"token":   token,
		"user":    userSummary(user),
	})
}

// Logout revokes the presented token until it expires.
func (ac *AuthController) Logout(c *fiber.Ctx) error {
	claims, err := middleware.GetCurrentClaims(c)
	if err != nil {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": err.Error()})
	}
	token, _ := c.Locals("token").(string)

	expiresAt := time.Now().Add(24 * time.Hour)
	if claims.ExpiresAt != nil {
		expiresAt = claims.ExpiresAt.Time
	}
	if err := middleware.BlacklistToken(c.UserContext(), token, expiresAt); err != nil {
		logrus.WithError(err).WithField("user_id", claims.UserID).Error("Failed to revoke token")
		return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{
			"error": "Logout is temporarily unavailable",
		})
	}

	middleware.LogActivity(c, "LOGOUT", "auth", claims.UserID, fiber.Map{"username": claims.Username})
	return c.JSON(fiber.Map{"message": "Logged out successfully"})
}

// GetProfile returns the current user's profile and access scope.
func (ac *AuthController) GetProfile(c *fiber.Ctx) error {
	user, err := middleware.GetCurrentUser(c)
	if err != nil {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
			"error": "User not found",
		})
	}
	scope := middleware.CurrentScope(c)

	profile := userSummary(user)
	if user.Teacher != nil {
		profile["teacher_id"] = user.Teacher.ID
	}
	if user.Student != nil {
		profile["student_id"] = user.Student.ID
	}
	return c.JSON(fiber.Map{
		"user": profile,
		"scope": fiber.Map{
			"kind":            scope.Kind.String(),
			"organization_id": scope.OrganizationID,
			"branch_id":       scope.BranchID,
		},
	})
}

// ChangePassword allows users to change their password
func (ac *AuthController) ChangePassword(c *fiber.Ctx) error {
	user, err := middleware.GetCurrentUser(c)
	if err != nil {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
			"error": "User not found",
		})
	}

	var req ChangePasswordRequest
	if err := bind(c, &req); err != nil {
		return badRequest(c, err.Error())
	}
	if err := utils.CheckPassword(req.CurrentPassword, user.Password); err != nil {
		return badRequest(c, "Current password is incorrect")
	}

	hashed, err := utils.HashPassword(req.NewPassword)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to hash password",
		})
	}
	if err := ac.db.WithContext(c.UserContext()).Model(&models.User{}).Where("id = ?", user.ID).Update("password", hashed).Error; err != nil {
		return respondError(c, err)
	}

	middleware.LogActivity(c, "UPDATE", "users", user.ID, fiber.Map{"action": "password_change"})
	return c.JSON(fiber.Map{"message": "Password changed successfully"})
}
