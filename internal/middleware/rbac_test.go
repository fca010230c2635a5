package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/require"
)

func withIdentity(subject, role string) fiber.Handler {
	return func(c *fiber.Ctx) error {
		if subject != "" {
			c.Locals(LocalUserID, subject)
		}
		if role != "" {
			c.Locals(LocalUserRole, role)
		}
		return c.Next()
	}
}

func statusFor(t *testing.T, app *fiber.App, req *http.Request) int {
	t.Helper()
	resp, err := app.Test(req)
	require.NoError(t, err)
	return resp.StatusCode
}

func TestRequireRoleAllowsAuthorizedRoles(t *testing.T) {
	app := fiber.New()
	app.Use(withIdentity("1", "admin"))
	app.Use(RequireRole(true, "admin", "teacher"))
	app.Get("/admin", func(c *fiber.Ctx) error {
		return c.SendStatus(fiber.StatusOK)
	})

	require.Equal(t, fiber.StatusOK, statusFor(t, app, httptest.NewRequest(http.MethodGet, "/admin", nil)))
}

func TestRequireRoleRejectsUnauthorizedRoles(t *testing.T) {
	app := fiber.New()
	app.Use(withIdentity("1", "student"))
	app.Use(RequireRole(true, "admin", "teacher"))
	app.Get("/admin", func(c *fiber.Ctx) error {
		return c.SendStatus(fiber.StatusOK)
	})

	require.Equal(t, fiber.StatusForbidden, statusFor(t, app, httptest.NewRequest(http.MethodGet, "/admin", nil)))
}

func TestRequireRoleDisabled(t *testing.T) {
	app := fiber.New()
	app.Use(RequireRole(false, "admin"))
	app.Get("/admin", func(c *fiber.Ctx) error {
		return c.SendStatus(fiber.StatusOK)
	})

	require.Equal(t, fiber.StatusOK, statusFor(t, app, httptest.NewRequest(http.MethodGet, "/admin", nil)))
}

func TestRequireSelfOrRole(t *testing.T) {
	cases := []struct {
		name    string
		subject string
		role    string
		path    string
		status  int
	}{
		{name: "own recommendations", subject: "alice", role: "student", path: "/students/alice", status: fiber.StatusOK},
		{name: "someone else", subject: "alice", role: "student", path: "/students/bob", status: fiber.StatusForbidden},
		{name: "teacher reads any", subject: "t1", role: "teacher", path: "/students/bob", status: fiber.StatusOK},
		{name: "anonymous", path: "/students/bob", status: fiber.StatusUnauthorized},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			app := fiber.New()
			app.Use(withIdentity(tc.subject, tc.role))
			app.Get("/students/:userID", RequireSelfOrRole(true, "userID", "admin", "teacher"), func(c *fiber.Ctx) error {
				return c.SendStatus(fiber.StatusOK)
			})
			require.Equal(t, tc.status, statusFor(t, app, httptest.NewRequest(http.MethodGet, tc.path, nil)))
		})
	}
}

func TestJWTProtected(t *testing.T) {
	const secret = "test-secret"
	app := fiber.New()
	app.Use(JWTProtected(secret))
	app.Get("/me", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"user": c.Locals(LocalUserID), "role": c.Locals(LocalUserRole)})
	})

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub":   "alice",
		"roles": []string{"Student"},
		"exp":   time.Now().Add(time.Hour).Unix(),
	})
	signed, err := token.SignedString([]byte(secret))
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodGet, "/me", nil)
	req.Header.Set("Authorization", "Bearer "+signed)
	require.Equal(t, fiber.StatusOK, statusFor(t, app, req))

	forged, err := token.SignedString([]byte("other"))
	require.NoError(t, err)
	req = httptest.NewRequest(http.MethodGet, "/me", nil)
	req.Header.Set("Authorization", "Bearer "+forged)
	require.Equal(t, fiber.StatusUnauthorized, statusFor(t, app, req))

	require.Equal(t, fiber.StatusUnauthorized, statusFor(t, app, httptest.NewRequest(http.MethodGet, "/me", nil)))
}

func TestJWTProtectedDisabledWithoutSecret(t *testing.T) {
	app := fiber.New()
	app.Use(JWTProtected(""))
	app.Get("/me", func(c *fiber.Ctx) error {
		return c.SendStatus(fiber.StatusOK)
	})

	require.Equal(t, fiber.StatusOK, statusFor(t, app, httptest.NewRequest(http.MethodGet, "/me", nil)))
}
