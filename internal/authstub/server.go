package authstub

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/sail-program/sail-gateway/internal/domain"
)

// Server answers the auth API endpoints the gateway calls.
type Server struct {
	accounts *Accounts
	tokens   *TokenManager
	logger   *zap.Logger
}

// NewServer builds a stub server.
func NewServer(accounts *Accounts, tokens *TokenManager, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Server{accounts: accounts, tokens: tokens, logger: logger}
}

// Register mounts the endpoints on router.
func (s *Server) Register(router fiber.Router) {
	router.Post("/token/", s.login)
	router.Post("/token/verify/", s.verify)
	router.Post("/token/refresh/", s.refresh)
	router.Post("/sail/auth/register/", s.register)
}

// Seed creates an account, ignoring an already registered email.
func (s *Server) Seed(ctx context.Context, email, password, role string) error {
	_, err := s.accounts.Create(ctx, domain.Account{Email: email, Role: role}, password)
	if errors.Is(err, ErrEmailTaken) {
		return nil
	}
	return err
}

type loginRequest struct {
	Username string `json:"username"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

type registerRequest struct {
	Email            string `json:"email"`
	Password         string `json:"password"`
	FirstName        string `json:"first_name"`
	LastName         string `json:"last_name"`
	Role             string `json:"role"`
	OrganizationName string `json:"organization_name"`
}

type userResponse struct {
	ID    int    `json:"id"`
	Email string `json:"email"`
	Role  string `json:"role"`
}

type tokenResponse struct {
	Access  string       `json:"access"`
	Refresh string       `json:"refresh"`
	User    userResponse `json:"user"`
}

func detail(c *fiber.Ctx, status int, message string) error {
	return c.Status(status).JSON(fiber.Map{"detail": message})
}

func tokenNotValid(c *fiber.Ctx) error {
	return c.Status(http.StatusUnauthorized).JSON(fiber.Map{
		"detail": "Token is invalid or expired",
		"code":   "token_not_valid",
	})
}

func (s *Server) login(c *fiber.Ctx) error {
	var req loginRequest
	if err := c.BodyParser(&req); err != nil {
		return detail(c, http.StatusBadRequest, "invalid payload")
	}
	username := req.Username
	if username == "" {
		username = req.Email
	}
	if username == "" || req.Password == "" {
		return detail(c, http.StatusBadRequest, "username and password required")
	}

	acc, err := s.accounts.Authenticate(c.UserContext(), username, req.Password)
	if errors.Is(err, ErrInvalidCredentials) {
		return detail(c, http.StatusUnauthorized, "No active account found with the given credentials")
	}
	if err != nil {
		s.logger.Error("authenticate", zap.Error(err))
		return detail(c, http.StatusInternalServerError, "login failed")
	}
	return s.issue(c, http.StatusOK, acc)
}

func (s *Server) verify(c *fiber.Ctx) error {
	var req struct {
		Token string `json:"token"`
	}
	if err := c.BodyParser(&req); err != nil || req.Token == "" {
		return detail(c, http.StatusBadRequest, "token required")
	}
	if _, err := s.tokens.ParseToken(req.Token, TokenTypeAccess); err != nil {
		return tokenNotValid(c)
	}
	return c.JSON(fiber.Map{})
}

func (s *Server) refresh(c *fiber.Ctx) error {
	var req struct {
		Refresh string `json:"refresh"`
	}
	if err := c.BodyParser(&req); err != nil || req.Refresh == "" {
		return detail(c, http.StatusBadRequest, "refresh required")
	}
	claims, err := s.tokens.ParseToken(req.Refresh, TokenTypeRefresh)
	if err != nil {
		return tokenNotValid(c)
	}
	id, err := strconv.Atoi(claims.UserID)
	if err != nil {
		return tokenNotValid(c)
	}
	acc, err := s.accounts.ByID(c.UserContext(), id)
	if err != nil {
		return tokenNotValid(c)
	}
	access, err := s.tokens.IssueAccess(strconv.Itoa(acc.ID), acc.Role)
	if err != nil {
		s.logger.Error("issue access token", zap.Error(err))
		return detail(c, http.StatusInternalServerError, "could not issue token")
	}
	return c.JSON(fiber.Map{"access": access})
}

func (s *Server) register(c *fiber.Ctx) error {
	var req registerRequest
	if err := c.BodyParser(&req); err != nil {
		return detail(c, http.StatusBadRequest, "invalid payload")
	}
	role, ok := canonicalRole(req.Role)
	switch {
	case strings.TrimSpace(req.Email) == "" || req.Password == "":
		return detail(c, http.StatusBadRequest, "email and password required")
	case !ok:
		return detail(c, http.StatusBadRequest, "unknown role")
	case role == domain.RoleOrganization && strings.TrimSpace(req.OrganizationName) == "":
		return detail(c, http.StatusBadRequest, "organization_name required for organization accounts")
	}

	acc, err := s.accounts.Create(c.UserContext(), domain.Account{
		Email:            req.Email,
		Role:             role,
		FirstName:        req.FirstName,
		LastName:         req.LastName,
		OrganizationName: req.OrganizationName,
	}, req.Password)
	if errors.Is(err, ErrEmailTaken) {
		return detail(c, http.StatusBadRequest, "A user with this email already exists.")
	}
	if err != nil {
		s.logger.Error("create account", zap.Error(err))
		return detail(c, http.StatusInternalServerError, "registration failed")
	}
	s.logger.Info("account registered", zap.Int("id", acc.ID), zap.String("role", acc.Role))
	return s.issue(c, http.StatusCreated, acc)
}

func (s *Server) issue(c *fiber.Ctx, status int, acc *domain.Account) error {
	pair, err := s.tokens.IssuePair(strconv.Itoa(acc.ID), acc.Role)
	if err != nil {
		s.logger.Error("issue token pair", zap.Error(err))
		return detail(c, http.StatusInternalServerError, "could not issue token")
	}
	return c.Status(status).JSON(tokenResponse{
		Access:  pair.Access,
		Refresh: pair.Refresh,
		User:    userResponse{ID: acc.ID, Email: acc.Email, Role: acc.Role},
	})
}

func canonicalRole(role string) (string, bool) {
	for _, r := range []string{domain.RoleAdmin, domain.RoleStudent, domain.RoleFaculty, domain.RoleOrganization} {
		if strings.EqualFold(strings.TrimSpace(role), r) {
			return r, true
		}
	}
	return "", false
}
