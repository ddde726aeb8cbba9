package auth

import (
	"strings"

	"github.com/gofiber/fiber/v2"

	"docvault/internal/api"
)

// Middleware returns a Fiber middleware that validates bearer tokens and
// sets the authenticated User on the request.
func Middleware(tokens *TokenIssuer) fiber.Handler {
	return func(c *fiber.Ctx) error {
		header := c.Get("Authorization")
		if header == "" {
			return api.UnauthorizedError("Missing auth token")
		}

		parts := strings.SplitN(header, " ", 2)
		if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
			return api.UnauthorizedError("Invalid auth header format")
		}

		user, err := tokens.VerifyAccess(parts[1])
		if err != nil {
			return api.UnauthorizedError("Invalid or expired token")
		}

		c.Locals("user", &user)
		return c.Next()
	}
}

// RequireAdmin is a Fiber middleware that checks the authenticated user
// has the admin role.
func RequireAdmin() fiber.Handler {
	return func(c *fiber.Ctx) error {
		user := GetUser(c)
		if user == nil {
			return api.UnauthorizedError("Missing auth token")
		}
		if !user.IsAdmin() {
			return api.ForbiddenError("Admin access required")
		}
		return c.Next()
	}
}

// GetUser extracts the authenticated User from a Fiber context.
func GetUser(c *fiber.Ctx) *User {
	user, _ := c.Locals("user").(*User)
	return user
}
