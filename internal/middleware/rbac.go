package middleware

import (
	"fmt"
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/noah-isme/gema-recommender/internal/utils"
)

// RequireRole ensures that the authenticated user possesses one of the allowed
// roles. It is a no-op when enabled is false.
func RequireRole(enabled bool, roles ...string) fiber.Handler {
	allowed := roleSet(roles)

	return func(c *fiber.Ctx) error {
		if !enabled {
			return c.Next()
		}
		if _, ok := allowed[normalizeRoleValue(c.Locals(LocalUserRole))]; !ok {
			return utils.SendError(c, fiber.StatusForbidden, "insufficient permissions")
		}
		return c.Next()
	}
}

// RequireSelfOrRole lets a user read resources addressed by their own id in
// the route parameter param, and users holding one of roles read any.
func RequireSelfOrRole(enabled bool, param string, roles ...string) fiber.Handler {
	allowed := roleSet(roles)

	return func(c *fiber.Ctx) error {
		if !enabled {
			return c.Next()
		}
		subject, _ := c.Locals(LocalUserID).(string)
		if subject == "" {
			return utils.Fail(c, fiber.StatusUnauthorized, "authentication required", nil)
		}
		if _, ok := allowed[normalizeRoleValue(c.Locals(LocalUserRole))]; ok {
			return c.Next()
		}
		if strings.TrimSpace(c.Params(param)) != subject {
			return utils.Fail(c, fiber.StatusForbidden, "insufficient permissions", nil)
		}
		return c.Next()
	}
}

func roleSet(roles []string) map[string]struct{} {
	allowed := make(map[string]struct{}, len(roles))
	for _, role := range roles {
		normalized := strings.ToLower(strings.TrimSpace(role))
		if normalized != "" {
			allowed[normalized] = struct{}{}
		}
	}
	return allowed
}

func normalizeRoleValue(value interface{}) string {
	switch v := value.(type) {
	case string:
		return strings.ToLower(strings.TrimSpace(v))
	case fmt.Stringer:
		return strings.ToLower(strings.TrimSpace(v.String()))
	default:
		if value == nil {
			return ""
		}
		return strings.ToLower(strings.TrimSpace(fmt.Sprintf("%v", value)))
	}
}
