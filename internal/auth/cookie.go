package auth

import (
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"

	"github.com/sail-program/sail-gateway/internal/config"
)

// Sessions manages the opaque browser session cookie.
type Sessions struct {
	name   string
	secure bool
	ttl    time.Duration
}

// NewSessions builds a cookie manager from config.
func NewSessions(cfg config.SessionConfig) *Sessions {
	name := cfg.CookieName
	if name == "" {
		name = "sail_session"
	}
	return &Sessions{name: name, secure: cfg.CookieSecure, ttl: cfg.TTL}
}

// ID returns the request's session id or "" when the cookie is missing or
// not a uuid.
func (s *Sessions) ID(c *fiber.Ctx) string {
	// fiber reuses the request buffer; the id outlives the handler.
	raw := strings.Clone(c.Cookies(s.name))
	if raw == "" {
		return ""
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		return ""
	}
	return id.String()
}

// Ensure returns the current session id, issuing a new cookie when absent.
func (s *Sessions) Ensure(c *fiber.Ctx) string {
	if id := s.ID(c); id != "" {
		return id
	}
	id := uuid.NewString()
	s.set(c, id, s.expires())
	return id
}

// NewID returns a fresh session id. Login issues one so a pre-login id
// cannot be fixed by a third party.
func (s *Sessions) NewID() string {
	return uuid.NewString()
}

// Set points the browser at session id.
func (s *Sessions) Set(c *fiber.Ctx, id string) {
	s.set(c, id, s.expires())
}

// Clear expires the cookie.
func (s *Sessions) Clear(c *fiber.Ctx) {
	s.set(c, "", time.Unix(0, 0))
}

func (s *Sessions) expires() time.Time {
	if s.ttl <= 0 {
		return time.Time{}
	}
	return time.Now().Add(s.ttl)
}

func (s *Sessions) set(c *fiber.Ctx, value string, expires time.Time) {
	c.Cookie(&fiber.Cookie{
		Name:     s.name,
		Value:    value,
		Path:     "/",
		Expires:  expires,
		HTTPOnly: true,
		Secure:   s.secure,
		SameSite: fiber.CookieSameSiteLaxMode,
	})
}
