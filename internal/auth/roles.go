package auth

import (
	"github.com/gofiber/fiber/v2"

	"github.com/sail-program/sail-gateway/internal/policy"
)

// RequireAdmin admits administrators only.
func (m *GuardMiddleware) RequireAdmin(mode Mode) fiber.Handler {
	return m.Require(policy.AdminRoles, mode)
}

// RequireAnyRole admits any authenticated session.
func (m *GuardMiddleware) RequireAnyRole(mode Mode) fiber.Handler {
	return m.Require(policy.Authenticated, mode)
}
