package dto

import "github.com/sail-program/sail-gateway/internal/domain"

// NavigateRequest names the route being entered.
type NavigateRequest struct {
	Route string `json:"route" query:"route"`
}

// DecisionResponse is a guard decision as seen by the browser.
type DecisionResponse struct {
	Decision string `json:"decision"`
	Route    string `json:"route"`
	Role     string `json:"role,omitempty"`
	Redirect string `json:"redirect,omitempty"`
}

// NewDecisionResponse maps a decision, adding where a denied navigation
// should go.
func NewDecisionResponse(d domain.SessionDecision, landing, unauthorized string) DecisionResponse {
	resp := DecisionResponse{Decision: d.Kind.String(), Route: d.Route, Role: d.Role}
	switch d.Kind {
	case domain.DecisionDenyUnauthenticated:
		resp.Redirect = landing
	case domain.DecisionDenyUnauthorized:
		resp.Redirect = unauthorized
	}
	return resp
}

// ViewResponse describes the view a browser is allowed to render.
type ViewResponse struct {
	View  string            `json:"view"`
	Route string            `json:"route"`
	Role  string            `json:"role,omitempty"`
	Links map[string]string `json:"links,omitempty"`
}
