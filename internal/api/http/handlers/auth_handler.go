package handlers

import (
	"net/http"

	"github.com/gofiber/fiber/v2"

	"github.com/sail-program/sail-gateway/internal/api/dto"
	"github.com/sail-program/sail-gateway/internal/auth"
	"github.com/sail-program/sail-gateway/internal/authclient"
	"github.com/sail-program/sail-gateway/internal/service"
	apperrors "github.com/sail-program/sail-gateway/pkg/util/errorutil"
)

// AuthHandler exposes login, registration and logout.
type AuthHandler struct {
	auth     *service.AuthService
	sessions *auth.Sessions
}

// NewAuthHandler constructs handler.
func NewAuthHandler(authService *service.AuthService, sessions *auth.Sessions) *AuthHandler {
	return &AuthHandler{auth: authService, sessions: sessions}
}

// Login handles POST /auth/login.
func (h *AuthHandler) Login(c *fiber.Ctx) error {
	var req dto.LoginRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}

	sessionID := h.sessions.NewID()
	user, err := h.auth.Login(c.UserContext(), sessionID, req.Identifier(), req.Password)
	if err != nil {
		return err
	}
	h.switchSession(c, sessionID)

	return c.JSON(fiber.Map{"data": fiber.Map{"user": dto.NewUserResponse(user)}})
}

// Register handles POST /auth/register.
func (h *AuthHandler) Register(c *fiber.Ctx) error {
	var req dto.RegisterRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}

	sessionID := h.sessions.NewID()
	user, err := h.auth.Register(c.UserContext(), sessionID, authclient.RegisterRequest{
		Email:            req.Email,
		Password:         req.Password,
		FirstName:        req.FirstName,
		LastName:         req.LastName,
		Role:             req.Role,
		OrganizationName: req.OrganizationName,
	})
	if err != nil {
		return err
	}
	h.switchSession(c, sessionID)

	return c.Status(http.StatusCreated).JSON(fiber.Map{"data": fiber.Map{"user": dto.NewUserResponse(user)}})
}

// Logout handles POST /auth/logout. The credential is cleared before the
// redirect is sent.
func (h *AuthHandler) Logout(c *fiber.Ctx) error {
	if sessionID := h.sessions.ID(c); sessionID != "" {
		if err := h.auth.Logout(c.UserContext(), sessionID); err != nil {
			return err
		}
	}
	h.sessions.Clear(c)
	return c.Redirect(auth.LandingPath, http.StatusSeeOther)
}

// switchSession points the browser at the new session and drops the
// credential of the one it replaces.
func (h *AuthHandler) switchSession(c *fiber.Ctx, sessionID string) {
	if previous := h.sessions.ID(c); previous != "" && previous != sessionID {
		_ = h.auth.Logout(c.UserContext(), previous)
	}
	h.sessions.Set(c, sessionID)
}
