package handlers

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/sail-program/sail-gateway/internal/api/dto"
	"github.com/sail-program/sail-gateway/internal/auth"
	"github.com/sail-program/sail-gateway/internal/domain"
	"github.com/sail-program/sail-gateway/internal/session"
	"github.com/sail-program/sail-gateway/internal/tokenstore"
	apperrors "github.com/sail-program/sail-gateway/pkg/util/errorutil"
)

// SessionHandler lets a browser run the guard ahead of rendering a view.
type SessionHandler struct {
	guard    *session.Guard
	store    tokenstore.Store
	sessions *auth.Sessions
}

// NewSessionHandler constructs handler.
func NewSessionHandler(guard *session.Guard, store tokenstore.Store, sessions *auth.Sessions) *SessionHandler {
	return &SessionHandler{guard: guard, store: store, sessions: sessions}
}

// Navigate handles POST /session/navigate. The evaluation runs in the
// background; the answer is always Pending unless the browser has no
// session at all.
func (h *SessionHandler) Navigate(c *fiber.Ctx) error {
	var req dto.NavigateRequest
	if err := c.QueryParser(&req); err != nil {
		return apperrors.NewValidationError("invalid query", nil)
	}
	if req.Route == "" && len(c.Body()) > 0 {
		if err := c.BodyParser(&req); err != nil {
			return apperrors.NewValidationError("invalid payload", nil)
		}
	}
	route := strings.TrimSpace(req.Route)
	if !strings.HasPrefix(route, "/") {
		return apperrors.NewValidationError("route must be an absolute path", map[string]any{"route": req.Route})
	}

	sessionID := h.sessions.ID(c)
	if sessionID == "" {
		return c.JSON(decisionBody(domain.DenyUnauthenticated(route)))
	}

	pending := h.guard.Navigate(c.UserContext(), sessionID, route)
	return c.Status(http.StatusAccepted).JSON(decisionBody(pending))
}

// Decision handles GET /session/decision.
func (h *SessionHandler) Decision(c *fiber.Ctx) error {
	sessionID := h.sessions.ID(c)
	if sessionID == "" {
		return apperrors.NewDomainError("NO_DECISION", "no navigation evaluated for this session", http.StatusNotFound, nil)
	}
	decision, ok := h.guard.Current(sessionID)
	if !ok {
		return apperrors.NewDomainError("NO_DECISION", "no navigation evaluated for this session", http.StatusNotFound, nil)
	}
	return c.JSON(decisionBody(decision))
}

// Status handles GET /session/status. Token values are never returned.
func (h *SessionHandler) Status(c *fiber.Ctx) error {
	var resp dto.SessionStatusResponse
	sessionID := h.sessions.ID(c)
	if sessionID == "" {
		return c.JSON(fiber.Map{"data": resp})
	}

	cred, err := h.store.Load(c.UserContext(), sessionID)
	switch {
	case errors.Is(err, tokenstore.ErrNoCredential):
	case err != nil:
		return apperrors.NewInternalError(err)
	default:
		resp = dto.SessionStatusResponse{
			Authenticated:   cred.Usable(),
			Role:            cred.Role,
			HasRefreshToken: cred.RefreshToken != "",
			LastVerifiedAt:  cred.LastVerifiedAt,
		}
	}
	return c.JSON(fiber.Map{"data": resp})
}

func decisionBody(d domain.SessionDecision) fiber.Map {
	return fiber.Map{"data": dto.NewDecisionResponse(d, auth.LandingPath, auth.UnauthorizedPath)}
}
