package session

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/sail-program/sail-gateway/internal/domain"
)

// ErrSuperseded is returned when an evaluation was cancelled or replaced by a
// newer one before it could apply its result.
var ErrSuperseded = errors.New("evaluation superseded")

// Committer gates side effects of an evaluation.
type Committer interface {
	// Context is cancelled once the evaluation is superseded.
	Context() context.Context
	// Commit runs fn only while the evaluation is still current. No newer
	// evaluation can begin while fn runs.
	Commit(fn func() error) error
}

// Tracker serializes guard evaluations per session. Navigations supersede
// each other: beginning one cancels the previous one and refuses its
// results. Checks joined with Join run side by side and are only cancelled
// by Exclusive and Forget.
type Tracker struct {
	mu    sync.Mutex
	views map[string]*view
	now   func() time.Time
}

type view struct {
	mu sync.Mutex
	// gen moves on every navigation and every reset; epoch only on resets.
	gen         uint64
	epoch       uint64
	cancel      context.CancelFunc
	checks      map[*Evaluation]struct{}
	decision    domain.SessionDecision
	hasDecision bool
	lastUsed    time.Time
}

// NewTracker creates an empty tracker.
func NewTracker() *Tracker {
	return &Tracker{views: make(map[string]*view), now: time.Now}
}

func (t *Tracker) view(sessionID string) *view {
	t.mu.Lock()
	defer t.mu.Unlock()
	v, ok := t.views[sessionID]
	if !ok {
		v = &view{}
		t.views[sessionID] = v
	}
	return v
}

// Begin starts a new evaluation for the session's route entry. The previous
// evaluation, if still running, is cancelled and the visible decision
// becomes Pending.
func (t *Tracker) Begin(parent context.Context, sessionID, route string) *Evaluation {
	v := t.view(sessionID)

	v.mu.Lock()
	defer v.mu.Unlock()

	v.supersede()
	ctx, cancel := context.WithCancel(parent)
	v.cancel = cancel
	v.decision = domain.Pending(route)
	v.hasDecision = true
	v.lastUsed = t.now()

	return &Evaluation{
		ctx:       ctx,
		cancel:    cancel,
		sessionID: sessionID,
		route:     route,
		gen:       v.gen,
		v:         v,
	}
}

// Join starts a check of the session that leaves its navigation alone: no
// running evaluation is cancelled and the visible decision is not changed.
// Exclusive and Forget still cancel the check and refuse its commits.
func (t *Tracker) Join(parent context.Context, sessionID, route string) *Evaluation {
	v := t.view(sessionID)

	v.mu.Lock()
	defer v.mu.Unlock()

	ctx, cancel := context.WithCancel(parent)
	e := &Evaluation{
		ctx:       ctx,
		cancel:    cancel,
		sessionID: sessionID,
		route:     route,
		epoch:     v.epoch,
		joined:    true,
		v:         v,
	}
	if v.checks == nil {
		v.checks = make(map[*Evaluation]struct{})
	}
	v.checks[e] = struct{}{}
	v.lastUsed = t.now()
	return e
}

// Exclusive cancels any running evaluation of the session and runs fn while
// no evaluation can commit. Login and logout use it so that an in-flight
// evaluation never overwrites what they write.
func (t *Tracker) Exclusive(sessionID string, fn func() error) error {
	v := t.view(sessionID)

	v.mu.Lock()
	defer v.mu.Unlock()

	v.reset()
	v.hasDecision = false
	v.lastUsed = t.now()
	return fn()
}

// Forget cancels any running evaluation and drops the session's state.
func (t *Tracker) Forget(sessionID string) {
	t.mu.Lock()
	v, ok := t.views[sessionID]
	delete(t.views, sessionID)
	t.mu.Unlock()
	if !ok {
		return
	}

	v.mu.Lock()
	v.reset()
	v.mu.Unlock()
}

// Current returns the latest decision of the session. Pending means an
// evaluation is in flight. The second result is false when the session has
// not been evaluated since it was last reset.
func (t *Tracker) Current(sessionID string) (domain.SessionDecision, bool) {
	t.mu.Lock()
	v, ok := t.views[sessionID]
	t.mu.Unlock()
	if !ok {
		return domain.SessionDecision{}, false
	}

	v.mu.Lock()
	defer v.mu.Unlock()
	return v.decision, v.hasDecision
}

// Sweep drops sessions idle for longer than maxIdle and returns how many
// were removed. Sessions with an evaluation or check in flight are kept.
func (t *Tracker) Sweep(maxIdle time.Duration) int {
	cutoff := t.now().Add(-maxIdle)

	t.mu.Lock()
	defer t.mu.Unlock()

	removed := 0
	for id, v := range t.views {
		v.mu.Lock()
		busy := len(v.checks) > 0 || (v.hasDecision && v.decision.Kind == domain.DecisionPending)
		idle := v.lastUsed.Before(cutoff) && !busy
		v.mu.Unlock()
		if idle {
			delete(t.views, id)
			removed++
		}
	}
	return removed
}

// Len reports how many sessions are tracked.
func (t *Tracker) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.views)
}

// supersede must be called with v.mu held.
func (v *view) supersede() {
	if v.cancel != nil {
		v.cancel()
		v.cancel = nil
	}
	v.gen++
}

// reset supersedes the navigation and cancels every joined check. It must be
// called with v.mu held.
func (v *view) reset() {
	v.supersede()
	v.epoch++
	for e := range v.checks {
		e.cancel()
	}
	clear(v.checks)
}

// Evaluation is one guard run for one route entry.
type Evaluation struct {
	ctx       context.Context
	cancel    context.CancelFunc
	sessionID string
	route     string
	gen       uint64
	epoch     uint64
	joined    bool
	v         *view
}

// Context is cancelled when the evaluation is superseded or released.
func (e *Evaluation) Context() context.Context { return e.ctx }

// SessionID returns the evaluated session.
func (e *Evaluation) SessionID() string { return e.sessionID }

// Route returns the route being entered.
func (e *Evaluation) Route() string { return e.route }

// Commit runs fn if the evaluation is still current.
func (e *Evaluation) Commit(fn func() error) error {
	e.v.mu.Lock()
	defer e.v.mu.Unlock()
	if !e.currentLocked() {
		return ErrSuperseded
	}
	return fn()
}

// Finish publishes the terminal decision if the evaluation is still current.
// A joined check only confirms it is still current; the session's visible
// decision belongs to its navigation.
func (e *Evaluation) Finish(decision domain.SessionDecision) error {
	return e.Commit(func() error {
		if e.joined {
			return nil
		}
		e.v.decision = decision
		e.v.hasDecision = true
		return nil
	})
}

// Release frees the evaluation's context. Safe to call more than once.
func (e *Evaluation) Release() {
	e.cancel()
	if e.joined {
		e.v.mu.Lock()
		delete(e.v.checks, e)
		e.v.mu.Unlock()
	}
}

func (e *Evaluation) currentLocked() bool {
	if e.ctx.Err() != nil {
		return false
	}
	if e.joined {
		return e.v.epoch == e.epoch
	}
	return e.v.gen == e.gen
}
