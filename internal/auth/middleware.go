package auth

import (
	"errors"
	"net/http"

	"github.com/gofiber/fiber/v2"

	"github.com/sail-program/sail-gateway/internal/domain"
	"github.com/sail-program/sail-gateway/internal/policy"
	"github.com/sail-program/sail-gateway/internal/session"
	apperrors "github.com/sail-program/sail-gateway/pkg/util/errorutil"
)

const principalKey = "auth_principal"

// Landing routes a denied page navigation is sent to.
const (
	LandingPath      = "/"
	UnauthorizedPath = "/unauthorized"
)

// Mode selects how a denial is reported.
type Mode int

const (
	// ModePage redirects denied navigations to a landing view.
	ModePage Mode = iota
	// ModeAPI answers denied calls with a JSON error. API calls are checked
	// alongside the session's navigation instead of superseding it.
	ModeAPI
)

// Principal represents the admitted session.
type Principal struct {
	SessionID string
	Role      string
	Decision  domain.SessionDecision
}

// GuardMiddleware runs the session guard in front of protected routes.
type GuardMiddleware struct {
	guard    *session.Guard
	sessions *Sessions
}

// NewGuardMiddleware constructs middleware.
func NewGuardMiddleware(guard *session.Guard, sessions *Sessions) *GuardMiddleware {
	return &GuardMiddleware{guard: guard, sessions: sessions}
}

// Require admits the request when the session's role is in required.
func (m *GuardMiddleware) Require(required policy.RoleSet, mode Mode) fiber.Handler {
	return func(c *fiber.Ctx) error {
		return m.handle(c, required, mode)
	}
}

// Routes admits the request according to the route policy. Paths without a
// rule pass through.
func (m *GuardMiddleware) Routes(mode Mode) fiber.Handler {
	return func(c *fiber.Ctx) error {
		required, protected := m.guard.Policy().RequiredRoles(c.Path())
		if !protected {
			return c.Next()
		}
		return m.handle(c, required, mode)
	}
}

func (m *GuardMiddleware) handle(c *fiber.Ctx, required policy.RoleSet, mode Mode) error {
	route := c.Path()
	sessionID := m.sessions.ID(c)

	decision := domain.DenyUnauthenticated(route)
	if sessionID != "" {
		var err error
		if mode == ModeAPI {
			decision, err = m.guard.Check(c.UserContext(), sessionID, route, required)
		} else {
			decision, err = m.guard.EvaluateRoles(c.UserContext(), sessionID, route, required)
		}
		if errors.Is(err, session.ErrSuperseded) {
			if mode == ModeAPI {
				return apperrors.NewDomainError("SUPERSEDED", "session changed while the request was checked", http.StatusConflict, nil)
			}
			return apperrors.NewDomainError("SUPERSEDED", "navigation superseded by a newer one", http.StatusConflict, nil)
		}
		if err != nil {
			return apperrors.NewInternalError(err)
		}
	}

	switch decision.Kind {
	case domain.DecisionAllow:
		c.Locals(principalKey, &Principal{SessionID: sessionID, Role: decision.Role, Decision: decision})
		return c.Next()
	case domain.DecisionDenyUnauthorized:
		if mode == ModePage {
			return c.Redirect(UnauthorizedPath, fiber.StatusFound)
		}
		return apperrors.NewForbidden("insufficient role")
	default:
		if mode == ModePage {
			return c.Redirect(LandingPath, fiber.StatusFound)
		}
		return apperrors.NewUnauthorized("authentication required")
	}
}

// PrincipalFromContext retrieves the admitted session.
func PrincipalFromContext(c *fiber.Ctx) (*Principal, bool) {
	val := c.Locals(principalKey)
	if val == nil {
		return nil, false
	}
	principal, ok := val.(*Principal)
	return principal, ok
}
