package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"educenter_go/config"
	"educenter_go/models"

	"github.com/gofiber/fiber/v2"
	"github.com/golang-jwt/jwt/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func withConfig(t *testing.T) {
	t.Helper()
	prev := config.AppConfig
	config.AppConfig = &config.Config{JWTSecret: "unit-secret", JWTExpiresIn: time.Hour}
	t.Cleanup(func() { config.AppConfig = prev })
}

func uintPtr(v uint) *uint { return &v }

func TestParseToken(t *testing.T) {
	withConfig(t)

	user := &models.User{BaseModel: models.BaseModel{ID: 7}, Username: "dir", Role: models.RoleDirector, BranchID: uintPtr(3)}
	tok, err := GenerateToken(user)
	require.NoError(t, err)

	claims, err := ParseToken(tok)
	require.NoError(t, err)
	assert.Equal(t, uint(7), claims.UserID)
	assert.Equal(t, models.RoleDirector, claims.Role)
	require.NotNil(t, claims.BranchID)
	assert.Equal(t, uint(3), *claims.BranchID)

	config.AppConfig.JWTSecret = "rotated"
	_, err = ParseToken(tok)
	assert.Error(t, err)

	unsigned := jwt.NewWithClaims(jwt.SigningMethodNone, &Claims{UserID: 7})
	raw, err := unsigned.SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)
	_, err = ParseToken(raw)
	assert.Error(t, err)

	config.AppConfig.JWTSecret = "unit-secret"
	config.AppConfig.JWTExpiresIn = -time.Minute
	expired, err := GenerateToken(user)
	require.NoError(t, err)
	_, err = ParseToken(expired)
	assert.Error(t, err)
}

func TestAccountProblem(t *testing.T) {
	frozen := &models.Organization{Status: models.OrganizationFrozen}
	frozen.ID = 1
	active := &models.Organization{Status: models.OrganizationActive}
	active.ID = 2

	tests := []struct {
		name string
		user models.User
		want string
	}{
		{"usable", models.User{Status: "active", Organization: active}, ""},
		{"blocked", models.User{Status: "active", IsBlocked: true}, "User account is blocked"},
		{"inactive", models.User{Status: "inactive"}, "User account is inactive"},
		{"frozen organization", models.User{Status: "active", Organization: frozen}, "Organization is frozen"},
		{"frozen through branch", models.User{Status: "active", Branch: &models.Branch{Organization: *frozen}}, "Organization is frozen"},
		{"no tenant", models.User{Status: "active"}, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, AccountProblem(&tt.user))
		})
	}
}

func TestRequireRole(t *testing.T) {
	app := fiber.New()
	app.Get("/guarded", func(c *fiber.Ctx) error {
		if role := c.Get("X-Role"); role != "" {
			c.Locals("user", &models.User{Role: models.Role(role)})
		}
		return c.Next()
	}, RequireRole(models.RoleDirector, models.RoleAdmin), func(c *fiber.Ctx) error {
		return c.SendStatus(http.StatusNoContent)
	})

	tests := []struct {
		role string
		want int
	}{
		{"", http.StatusUnauthorized},
		{"teacher", http.StatusForbidden},
		{"director", http.StatusNoContent},
		{"admin", http.StatusNoContent},
	}
	for _, tt := range tests {
		req := httptest.NewRequest(http.MethodGet, "/guarded", nil)
		req.Header.Set("X-Role", tt.role)
		resp, err := app.Test(req)
		require.NoError(t, err)
		assert.Equal(t, tt.want, resp.StatusCode, tt.role)
	}
}

func TestRequestID(t *testing.T) {
	app := fiber.New()
	app.Use(RequestID())
	app.Get("/", func(c *fiber.Ctx) error {
		return c.SendString(requestIDOf(c))
	})

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("X-Request-ID", "abc-123")
	resp, err := app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, "abc-123", resp.Header.Get("X-Request-ID"))

	resp, err = app.Test(httptest.NewRequest(http.MethodGet, "/", nil))
	require.NoError(t, err)
	assert.Len(t, resp.Header.Get("X-Request-ID"), 36)
}

func TestBearerToken(t *testing.T) {
	app := fiber.New()
	app.Get("/", func(c *fiber.Ctx) error {
		tok, ok := BearerToken(c)
		if !ok {
			return c.SendStatus(http.StatusUnauthorized)
		}
		return c.SendString(tok)
	})

	for header, want := range map[string]int{
		"":           http.StatusUnauthorized,
		"Token abc":  http.StatusUnauthorized,
		"Bearer abc": http.StatusOK,
		"Bearer":     http.StatusUnauthorized,
	} {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		if header != "" {
			req.Header.Set("Authorization", header)
		}
		resp, err := app.Test(req)
		require.NoError(t, err)
		assert.Equal(t, want, resp.StatusCode, header)
	}
}
