package middleware

import (
	"context"
	"fmt"
	"strings"
	"time"

	"educenter_go/config"
	"educenter_go/database"
	"educenter_go/models"
	"educenter_go/services/access"

	"github.com/gofiber/fiber/v2"
	"github.com/golang-jwt/jwt/v4"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

const blacklistPrefix = "blacklist:jwt:"

type Claims struct {
	UserID         uint        `json:"user_id"`
	Username       string      `json:"username"`
	Role           models.Role `json:"role"`
	OrganizationID *uint       `json:"organization_id,omitempty"`
	BranchID       *uint       `json:"branch_id,omitempty"`
	jwt.RegisteredClaims
}

// GenerateToken creates a new JWT token for a user
func GenerateToken(user *models.User) (string, error) {
	now := time.Now()
	claims := &Claims{
		UserID:         user.ID,
		Username:       user.Username,
		Role:           user.Role,
		OrganizationID: user.OrganizationID,
		BranchID:       user.BranchID,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(now.Add(config.AppConfig.JWTExpiresIn)),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(config.AppConfig.JWTSecret))
}

// LoadPrincipal loads a user with everything scope resolution and account
// checks need.
func LoadPrincipal(db *gorm.DB, query interface{}, args ...interface{}) (*models.User, error) {
	var user models.User
	err := db.Preload("Organization").Preload("Branch.Organization").
		Preload("Teacher").Preload("Student").
		Where(query, args...).First(&user).Error
	if err != nil {
		return nil, err
	}
	return &user, nil
}

// AccountProblem returns why a user may not act, or "" when the account is
// usable.
func AccountProblem(u *models.User) string {
	switch {
	case u.IsBlocked:
		return "User account is blocked"
	case u.Status != "" && u.Status != "active":
		return "User account is inactive"
	}
	if org := organizationOf(u); org != nil && org.IsFrozen() {
		return "Organization is frozen"
	}
	return ""
}

func organizationOf(u *models.User) *models.Organization {
	if u.Organization != nil && u.Organization.ID != 0 {
		return u.Organization
	}
	if u.Branch != nil && u.Branch.Organization.ID != 0 {
		return &u.Branch.Organization
	}
	return nil
}

// BlacklistToken revokes a token until it would have expired anyway.
func BlacklistToken(ctx context.Context, token string, expiresAt time.Time) error {
	rdb := database.GetRedisClient()
	if rdb == nil {
		return fiber.NewError(fiber.StatusServiceUnavailable, "token revocation unavailable")
	}
	ttl := time.Until(expiresAt)
	if ttl <= 0 {
		return nil
	}
	return rdb.Set(ctx, blacklistPrefix+token, 1, ttl).Err()
}

func isBlacklisted(ctx context.Context, token string) bool {
	rdb := database.GetRedisClient()
	if rdb == nil {
		return false
	}
	n, err := rdb.Exists(ctx, blacklistPrefix+token).Result()
	if err != nil {
		logrus.WithError(err).Warn("blacklist lookup failed")
		return false
	}
	return n > 0
}

// ParseToken verifies an HS256 token and returns its claims.
func ParseToken(tokenString string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", token.Header["alg"])
		}
		return []byte(config.AppConfig.JWTSecret), nil
	})
	if err != nil {
		return nil, err
	}
	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, fmt.Errorf("invalid token claims")
	}
	return claims, nil
}

// Authenticate runs the checks JWTMiddleware runs, for callers outside the
// HTTP middleware chain such as the websocket endpoint.
func Authenticate(ctx context.Context, tokenString string) (*models.User, error) {
	claims, err := ParseToken(tokenString)
	if err != nil {
		return nil, err
	}
	if isBlacklisted(ctx, tokenString) {
		return nil, fmt.Errorf("token has been revoked")
	}
	user, err := LoadPrincipal(database.DB, "id = ?", claims.UserID)
	if err != nil {
		return nil, err
	}
	if problem := AccountProblem(user); problem != "" {
		return nil, fmt.Errorf("%s", problem)
	}
	return user, nil
}

// BearerToken extracts the token from "Authorization: Bearer <token>".
func BearerToken(c *fiber.Ctx) (string, bool) {
	authHeader := c.Get("Authorization")
	tokenString := strings.TrimPrefix(authHeader, "Bearer ")
	if authHeader == "" || tokenString == authHeader {
		return "", false
	}
	return tokenString, true
}

// JWTMiddleware validates the token, reloads the user and stores the user,
// claims and resolved access scope in Locals.
func JWTMiddleware() fiber.Handler {
	return func(c *fiber.Ctx) error {
		if c.Get("Authorization") == "" {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"error": "Missing authorization header",
			})
		}
		tokenString, ok := BearerToken(c)
		if !ok {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"error": "Invalid authorization header format",
			})
		}

		claims, err := ParseToken(tokenString)
		if err != nil {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"error": "Invalid token",
			})
		}

		if isBlacklisted(c.UserContext(), tokenString) {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"error": "Token has been revoked",
			})
		}

		user, err := LoadPrincipal(database.DB, "id = ?", claims.UserID)
		if err != nil {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"error": "User not found or inactive",
			})
		}
		if problem := AccountProblem(user); problem != "" {
			return c.Status(fiber.StatusForbidden).JSON(fiber.Map{
				"error": problem,
			})
		}

		c.Locals("user", user)
		c.Locals("claims", claims)
		c.Locals("token", tokenString)
		c.Locals("scope", access.Resolve(access.ActorFromUser(user)))

		return c.Next()
	}
}

// RequireRole middleware checks if user has required role
func RequireRole(roles ...models.Role) fiber.Handler {
	allowed := access.RoleSet(roles)
	return func(c *fiber.Ctx) error {
		user, ok := c.Locals("user").(*models.User)
		if !ok {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"error": "Missing user claims",
			})
		}
		if !allowed.Contains(user.Role) {
			return c.Status(fiber.StatusForbidden).JSON(fiber.Map{
				"error": "Insufficient permissions",
			})
		}
		return c.Next()
	}
}

// GetCurrentUser returns the current authenticated user
func GetCurrentUser(c *fiber.Ctx) (*models.User, error) {
	user, ok := c.Locals("user").(*models.User)
	if !ok {
		return nil, fiber.NewError(fiber.StatusUnauthorized, "User not found in context")
	}
	return user, nil
}

// GetCurrentClaims returns the current JWT claims
func GetCurrentClaims(c *fiber.Ctx) (*Claims, error) {
	claims, ok := c.Locals("claims").(*Claims)
	if !ok {
		return nil, fiber.NewError(fiber.StatusUnauthorized, "Claims not found in context")
	}
	return claims, nil
}

// CurrentScope returns the caller's scope, or None when the request is not
// authenticated.
func CurrentScope(c *fiber.Ctx) access.Scope {
	if s, ok := c.Locals("scope").(access.Scope); ok {
		return s
	}
	return access.None()
}
