// Package session decides, for every protected route entry, whether the
// browser session may proceed.
package session

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/sail-program/sail-gateway/internal/authclient"
	"github.com/sail-program/sail-gateway/internal/domain"
	"github.com/sail-program/sail-gateway/internal/observability"
	"github.com/sail-program/sail-gateway/internal/tokenstore"
)

// TokenAPI is the part of the auth API the guard depends on.
type TokenAPI interface {
	Verify(ctx context.Context, accessToken string) error
	Refresh(ctx context.Context, refreshToken string) (string, error)
}

// Verifier asks the auth API whether an access token is still accepted.
type Verifier struct {
	api     TokenAPI
	store   tokenstore.Store
	timeout time.Duration
	now     func() time.Time
	logger  *zap.Logger
}

// NewVerifier builds a verifier bounded by timeout per call.
func NewVerifier(api TokenAPI, store tokenstore.Store, timeout time.Duration, now func() time.Time, logger *zap.Logger) *Verifier {
	if now == nil {
		now = time.Now
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Verifier{api: api, store: store, timeout: timeout, now: now, logger: logger}
}

// Verify classifies cred's access token. On Valid the stored credential is
// stamped with the verification time. ErrSuperseded is returned when the
// evaluation was cancelled while the call was in flight; the result is then
// discarded and nothing is written.
func (v *Verifier) Verify(c Committer, sessionID string, cred domain.Credential) (domain.VerificationOutcome, error) {
	parent := c.Context()
	ctx, cancel := context.WithTimeout(parent, v.timeout)
	defer cancel()

	err := v.api.Verify(ctx, cred.AccessToken)
	if parent.Err() != nil {
		return domain.VerificationOutcome{}, ErrSuperseded
	}

	switch {
	case err == nil:
		verified := cred.WithVerifiedAt(v.now())
		err := c.Commit(func() error {
			if _, replaced := replacedSince(parent, v.store, sessionID, cred); replaced {
				return nil
			}
			return v.store.Save(parent, sessionID, verified)
		})
		if errors.Is(err, ErrSuperseded) {
			return domain.VerificationOutcome{}, err
		}
		if err != nil {
			// The token is still valid; only the grace window anchor is stale.
			v.logger.Warn("stamp verification time",
				zap.String("session", observability.ShortID(sessionID)),
				zap.Error(err),
			)
		}
		return domain.Valid(), nil
	case authclient.IsRejection(err):
		return domain.Invalid(err.Error()), nil
	case errors.Is(err, context.DeadlineExceeded):
		return domain.Indeterminate("verification timed out"), nil
	default:
		return domain.Indeterminate(err.Error()), nil
	}
}

// replacedSince returns the stored credential when another writer renewed
// the access token after cred was loaded.
func replacedSince(ctx context.Context, store tokenstore.Store, sessionID string, cred domain.Credential) (domain.Credential, bool) {
	stored, err := store.Load(ctx, sessionID)
	if err != nil || !stored.Usable() || stored.AccessToken == cred.AccessToken {
		return domain.Credential{}, false
	}
	return stored, true
}
