package domain

import (
	"bytes"
	"encoding/json"
	"time"
)

// Role values returned by the SAIL auth API.
const (
	RoleAdmin        = "admin"
	RoleStudent      = "Student"
	RoleFaculty      = "Faculty"
	RoleOrganization = "Organization"
)

// UserID accepts numeric and string identifiers from the auth API.
type UserID string

func (id *UserID) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*id = ""
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*id = UserID(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return err
	}
	*id = UserID(n.String())
	return nil
}

// User is the account summary returned alongside issued tokens.
type User struct {
	ID    UserID `json:"id"`
	Email string `json:"email"`
	Role  string `json:"role"`
}

// Account is a user record of the development auth backend.
type Account struct {
	ID               int
	Email            string
	PasswordHash     string
	Role             string
	FirstName        string
	LastName         string
	OrganizationName string
	CreatedAt        time.Time
}
