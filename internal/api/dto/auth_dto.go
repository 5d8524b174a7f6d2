package dto

import (
	"time"

	"github.com/sail-program/sail-gateway/internal/domain"
)

// LoginRequest payload for login. Either username or email identifies the
// account.
type LoginRequest struct {
	Username string `json:"username" form:"username"`
	Email    string `json:"email" form:"email"`
	Password string `json:"password" form:"password"`
}

// Identifier returns the username, falling back to the email.
func (r LoginRequest) Identifier() string {
	if r.Username != "" {
		return r.Username
	}
	return r.Email
}

// RegisterRequest payload for new accounts.
type RegisterRequest struct {
	Email            string `json:"email" form:"email"`
	Password         string `json:"password" form:"password"`
	FirstName        string `json:"first_name" form:"first_name"`
	LastName         string `json:"last_name" form:"last_name"`
	Role             string `json:"role" form:"role"`
	OrganizationName string `json:"organization_name" form:"organization_name"`
}

// UserResponse describes the signed-in account. Tokens never leave the
// gateway.
type UserResponse struct {
	ID    string `json:"id,omitempty"`
	Email string `json:"email,omitempty"`
	Role  string `json:"role"`
}

// NewUserResponse maps a domain user.
func NewUserResponse(u *domain.User) UserResponse {
	return UserResponse{ID: string(u.ID), Email: u.Email, Role: u.Role}
}

// SessionStatusResponse reports what the token store holds for the session.
type SessionStatusResponse struct {
	Authenticated   bool       `json:"authenticated"`
	Role            string     `json:"role,omitempty"`
	HasRefreshToken bool       `json:"has_refresh_token"`
	LastVerifiedAt  *time.Time `json:"last_verified_at,omitempty"`
}
