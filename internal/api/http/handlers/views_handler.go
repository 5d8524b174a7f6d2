package handlers

import (
	"github.com/gofiber/fiber/v2"

	"github.com/sail-program/sail-gateway/internal/api/dto"
	"github.com/sail-program/sail-gateway/internal/auth"
	apperrors "github.com/sail-program/sail-gateway/pkg/util/errorutil"
)

// adminViews lists the admin area sections.
var adminViews = map[string]string{
	"dashboard":     "admin.dashboard",
	"students":      "admin.students",
	"organizations": "admin.organizations",
	"faculty":       "admin.faculty",
	"matching":      "admin.matching",
	"matches":       "admin.matches",
	"grading":       "admin.grading",
	"settings":      "admin.settings",
}

// ViewsHandler answers page navigations with the view the browser may
// render. Protected views only run after the guard admitted the session.
type ViewsHandler struct{}

// NewViewsHandler constructs handler.
func NewViewsHandler() *ViewsHandler {
	return &ViewsHandler{}
}

// Landing handles GET /.
func (h *ViewsHandler) Landing(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{"data": dto.ViewResponse{
		View:  "landing",
		Route: auth.LandingPath,
		Links: map[string]string{"login": "/auth/login", "register": "/auth/register"},
	}})
}

// Unauthorized handles GET /unauthorized.
func (h *ViewsHandler) Unauthorized(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{"data": dto.ViewResponse{
		View:  "unauthorized",
		Route: auth.UnauthorizedPath,
		Links: map[string]string{"home": auth.LandingPath, "logout": "/auth/logout"},
	}})
}

// AdminIndex handles GET /admin.
func (h *ViewsHandler) AdminIndex(c *fiber.Ctx) error {
	return c.Redirect("/admin/dashboard", fiber.StatusFound)
}

// Admin handles GET /admin/:section.
func (h *ViewsHandler) Admin(c *fiber.Ctx) error {
	view, ok := adminViews[c.Params("section")]
	if !ok {
		return apperrors.NewDomainError("NOT_FOUND", "unknown admin view", fiber.StatusNotFound, nil)
	}
	return c.JSON(fiber.Map{"data": h.view(c, view)})
}

// StudentProfile handles GET /students/:studentId/profile.
func (h *ViewsHandler) StudentProfile(c *fiber.Ctx) error {
	resp := h.view(c, "students.profile")
	resp.Links = map[string]string{"student": "/api/students/" + c.Params("studentId") + "/"}
	return c.JSON(fiber.Map{"data": resp})
}

func (h *ViewsHandler) view(c *fiber.Ctx, name string) dto.ViewResponse {
	resp := dto.ViewResponse{View: name, Route: c.Path()}
	if p, ok := auth.PrincipalFromContext(c); ok {
		resp.Role = p.Role
	}
	return resp
}
