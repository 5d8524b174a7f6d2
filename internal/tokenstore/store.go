// Package tokenstore persists per-session credentials for the session guard.
package tokenstore

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/sail-program/sail-gateway/internal/domain"
)

var (
	// ErrNoCredential is returned by Load when the session never logged in
	// or was cleared.
	ErrNoCredential = errors.New("no credential stored")
	// ErrIncompleteCredential is returned by Save when access token and role
	// are not set together.
	ErrIncompleteCredential = errors.New("access token and role must be set together")
)

// Store persists credentials keyed by session id.
//
// Save replaces all four credential fields as one unit; a concurrent Load
// observes either the previous credential or the new one, never a mix.
// Clear removes everything and is idempotent.
type Store interface {
	Save(ctx context.Context, sessionID string, cred domain.Credential) error
	Load(ctx context.Context, sessionID string) (domain.Credential, error)
	Clear(ctx context.Context, sessionID string) error
}

// Field names of the persisted credential.
const (
	FieldAccessToken  = "access_token"
	FieldRefreshToken = "refresh_token"
	FieldRole         = "user_role"
	FieldLastVerified = "token_last_verified"
)

func validate(cred domain.Credential) error {
	if !cred.Complete() {
		return ErrIncompleteCredential
	}
	return nil
}

// encodeFields flattens a credential to string fields, omitting absent values.
func encodeFields(cred domain.Credential) map[string]string {
	fields := make(map[string]string, 4)
	if cred.Usable() {
		fields[FieldAccessToken] = cred.AccessToken
	}
	if cred.HasRefreshToken() {
		fields[FieldRefreshToken] = cred.RefreshToken
	}
	if cred.HasRole() {
		fields[FieldRole] = cred.Role
	}
	if cred.LastVerifiedAt != nil {
		fields[FieldLastVerified] = strconv.FormatInt(cred.LastVerifiedAt.UnixMilli(), 10)
	}
	return fields
}

// decodeFields rebuilds a credential. An empty field set means nothing is stored.
func decodeFields(fields map[string]string) (domain.Credential, error) {
	if len(fields) == 0 {
		return domain.Credential{}, ErrNoCredential
	}
	cred := domain.Credential{
		AccessToken:  fields[FieldAccessToken],
		RefreshToken: fields[FieldRefreshToken],
		Role:         fields[FieldRole],
	}
	if raw, ok := fields[FieldLastVerified]; ok && raw != "" {
		ms, err := strconv.ParseInt(raw, 10, 64)
		if err == nil {
			at := time.UnixMilli(ms)
			cred.LastVerifiedAt = &at
		}
	}
	return cred, nil
}
