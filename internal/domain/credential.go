package domain

import "time"

// Credential is the per-session authentication state held by the token store.
// An empty string means the field is not present; stores never persist it.
type Credential struct {
	AccessToken    string
	RefreshToken   string
	Role           string
	LastVerifiedAt *time.Time
}

// Usable reports whether the credential carries an access token.
func (c Credential) Usable() bool {
	return c.AccessToken != ""
}

// HasRefreshToken reports whether a refresh token is present.
func (c Credential) HasRefreshToken() bool {
	return c.RefreshToken != ""
}

// HasRole reports whether a resolved role is present.
func (c Credential) HasRole() bool {
	return c.Role != ""
}

// Complete reports whether access token and role are set together.
// Either both are present or neither is.
func (c Credential) Complete() bool {
	return c.Usable() == c.HasRole()
}

// WithAccessToken returns a copy carrying a renewed access token.
// Refresh token and role are preserved.
func (c Credential) WithAccessToken(token string, verifiedAt time.Time) Credential {
	c.AccessToken = token
	c.LastVerifiedAt = &verifiedAt
	return c
}

// WithVerifiedAt returns a copy stamped with a successful verification time.
func (c Credential) WithVerifiedAt(at time.Time) Credential {
	c.LastVerifiedAt = &at
	return c
}
