package session

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sail-program/sail-gateway/internal/domain"
	"github.com/sail-program/sail-gateway/internal/tokenstore"
)

// ErrRefreshRejected means the session cannot be recovered; the stored
// credential has been cleared.
var ErrRefreshRejected = errors.New("refresh rejected")

// Refresher exchanges a refresh token for a new access token. It makes a
// single attempt and never retries.
type Refresher struct {
	api     TokenAPI
	store   tokenstore.Store
	timeout time.Duration
	now     func() time.Time
}

// NewRefresher builds a refresher bounded by timeout per call.
func NewRefresher(api TokenAPI, store tokenstore.Store, timeout time.Duration, now func() time.Time) *Refresher {
	if now == nil {
		now = time.Now
	}
	return &Refresher{api: api, store: store, timeout: timeout, now: now}
}

// Refresh renews cred's access token and returns the updated credential,
// already saved. Any failure clears the store and yields ErrRefreshRejected.
// ErrSuperseded is returned, with nothing written, when the evaluation was
// cancelled. When a concurrent check renewed the session first, its
// credential is returned and nothing is written.
func (r *Refresher) Refresh(c Committer, sessionID string, cred domain.Credential) (domain.Credential, error) {
	parent := c.Context()

	if !cred.HasRefreshToken() {
		return r.reject(c, sessionID, cred, errors.New("no refresh token stored"))
	}

	ctx, cancel := context.WithTimeout(parent, r.timeout)
	defer cancel()

	access, err := r.api.Refresh(ctx, cred.RefreshToken)
	if parent.Err() != nil {
		return domain.Credential{}, ErrSuperseded
	}
	if err != nil {
		return r.reject(c, sessionID, cred, err)
	}

	result := cred.WithAccessToken(access, r.now())
	if err := c.Commit(func() error {
		if stored, replaced := replacedSince(parent, r.store, sessionID, cred); replaced {
			result = stored
			return nil
		}
		return r.store.Save(parent, sessionID, result)
	}); err != nil {
		if errors.Is(err, ErrSuperseded) {
			return domain.Credential{}, err
		}
		return r.reject(c, sessionID, cred, fmt.Errorf("save refreshed credential: %w", err))
	}
	return result, nil
}

func (r *Refresher) reject(c Committer, sessionID string, cred domain.Credential, cause error) (domain.Credential, error) {
	ctx := c.Context()

	var kept *domain.Credential
	if err := c.Commit(func() error {
		if stored, replaced := replacedSince(ctx, r.store, sessionID, cred); replaced {
			kept = &stored
			return nil
		}
		return r.store.Clear(ctx, sessionID)
	}); err != nil {
		if errors.Is(err, ErrSuperseded) {
			return domain.Credential{}, err
		}
		return domain.Credential{}, fmt.Errorf("%w: %v (clear failed: %v)", ErrRefreshRejected, cause, err)
	}
	if kept != nil {
		return *kept, nil
	}
	return domain.Credential{}, fmt.Errorf("%w: %v", ErrRefreshRejected, cause)
}
