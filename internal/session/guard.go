package session

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/sail-program/sail-gateway/internal/domain"
	"github.com/sail-program/sail-gateway/internal/events"
	"github.com/sail-program/sail-gateway/internal/observability"
	"github.com/sail-program/sail-gateway/internal/policy"
	"github.com/sail-program/sail-gateway/internal/tokenstore"
)

// Dependencies wires the guard to its collaborators.
type Dependencies struct {
	Store   tokenstore.Store
	API     TokenAPI
	Policy  *policy.RoutePolicy
	Tracker *Tracker
	Events  events.Dispatcher
	Logger  *zap.Logger
	Metrics *observability.Metrics
}

// Options tune the guard.
type Options struct {
	VerifyTimeout  time.Duration
	RefreshTimeout time.Duration
	// GracePeriod is how long after the last successful verification a
	// network failure still lets the session continue. The window is
	// exclusive: at exactly GracePeriod the session is denied.
	GracePeriod time.Duration
	// DevBypass admits any session holding an access token without network
	// calls or role checks.
	DevBypass bool
	Now       func() time.Time
}

// Guard runs the session decision procedure.
type Guard struct {
	store     tokenstore.Store
	policy    *policy.RoutePolicy
	tracker   *Tracker
	events    events.Dispatcher
	logger    *zap.Logger
	metrics   *observability.Metrics
	verifier  *Verifier
	refresher *Refresher
	grace     time.Duration
	bypass    bool
	now       func() time.Time
}

// NewGuard builds a guard.
func NewGuard(deps Dependencies, opts Options) *Guard {
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	tracker := deps.Tracker
	if tracker == nil {
		tracker = NewTracker()
	}
	routes := deps.Policy
	if routes == nil {
		routes = policy.DefaultRoutePolicy()
	}
	return &Guard{
		store:     deps.Store,
		policy:    routes,
		tracker:   tracker,
		events:    deps.Events,
		logger:    logger,
		metrics:   deps.Metrics,
		verifier:  NewVerifier(deps.API, deps.Store, opts.VerifyTimeout, now, logger),
		refresher: NewRefresher(deps.API, deps.Store, opts.RefreshTimeout, now),
		grace:     opts.GracePeriod,
		bypass:    opts.DevBypass,
		now:       now,
	}
}

// Tracker exposes the guard's evaluation tracker.
func (g *Guard) Tracker() *Tracker { return g.tracker }

// Policy exposes the route policy the guard enforces.
func (g *Guard) Policy() *policy.RoutePolicy { return g.policy }

// Evaluate runs the decision procedure for route using the route policy.
// Routes without a rule are allowed without consulting the store.
func (g *Guard) Evaluate(ctx context.Context, sessionID, route string) (domain.SessionDecision, error) {
	required, protected := g.policy.RequiredRoles(route)
	if !protected {
		return domain.Allow(route, ""), nil
	}
	return g.EvaluateRoles(ctx, sessionID, route, required)
}

// EvaluateRoles runs the decision procedure for an explicit required set.
// Any evaluation still running for the session is superseded first. The
// returned error is ErrSuperseded when this evaluation was itself replaced
// before finishing; its decision must then be ignored.
func (g *Guard) EvaluateRoles(ctx context.Context, sessionID, route string, required policy.RoleSet) (domain.SessionDecision, error) {
	eval := g.tracker.Begin(ctx, sessionID, route)
	defer eval.Release()
	return g.run(ctx, eval, required)
}

// Check runs the decision procedure for a request that is not a route
// entry, such as an API call made by an already rendered view. Checks of
// one session run side by side: they neither supersede the session's
// navigation nor change the decision Current reports. Login and logout
// still cancel them, in which case ErrSuperseded is returned.
func (g *Guard) Check(ctx context.Context, sessionID, route string, required policy.RoleSet) (domain.SessionDecision, error) {
	eval := g.tracker.Join(ctx, sessionID, route)
	defer eval.Release()
	return g.run(ctx, eval, required)
}

// Navigate starts an evaluation in the background and returns Pending at
// once. The outcome is read with Current. Routes without a rule only
// require an authenticated session.
func (g *Guard) Navigate(ctx context.Context, sessionID, route string) domain.SessionDecision {
	required, protected := g.policy.RequiredRoles(route)
	if !protected {
		required = policy.Authenticated
	}

	// The evaluation outlives the request that started it.
	base := context.WithoutCancel(ctx)
	eval := g.tracker.Begin(base, sessionID, route)
	go func() {
		defer eval.Release()
		if _, err := g.run(base, eval, required); err != nil && !errors.Is(err, ErrSuperseded) {
			g.logger.Warn("background evaluation failed",
				zap.String("session", observability.ShortID(sessionID)),
				zap.String("route", route),
				zap.Error(err),
			)
		}
	}()
	return domain.Pending(route)
}

func (g *Guard) run(ctx context.Context, eval *Evaluation, required policy.RoleSet) (domain.SessionDecision, error) {
	sessionID, route := eval.SessionID(), eval.Route()

	decision, cleared, err := g.decide(eval, required)
	if errors.Is(err, ErrSuperseded) {
		g.logger.Debug("evaluation superseded",
			zap.String("session", observability.ShortID(sessionID)),
			zap.String("route", route),
		)
		return domain.SessionDecision{}, err
	}
	if err != nil {
		// Never leave the session pending on a storage failure.
		decision = domain.DenyUnauthenticated(route)
	}

	if ferr := eval.Finish(decision); ferr != nil {
		return domain.SessionDecision{}, ferr
	}

	g.metrics.RecordDecision(decision.Kind.String())
	g.logger.Info("session decision",
		zap.String("session", observability.ShortID(sessionID)),
		zap.String("route", route),
		zap.String("decision", decision.Kind.String()),
		zap.String("role", decision.Role),
	)

	// Published after the decision is committed and outside the session
	// lock so subscribers may use the store.
	pubCtx := context.WithoutCancel(ctx)
	if cleared != "" {
		g.publish(pubCtx, events.New(events.EventSessionCleared, sessionID, events.SessionClearedPayload{Reason: cleared}))
	}
	g.publish(pubCtx, events.New(events.EventDecisionMade, sessionID, events.DecisionMadePayload{
		Route:    route,
		Decision: decision.Kind.String(),
		Role:     decision.Role,
	}))
	return decision, err
}

// Current returns the latest decision of the session.
func (g *Guard) Current(sessionID string) (domain.SessionDecision, bool) {
	return g.tracker.Current(sessionID)
}

// decide returns the decision and, when the credential was removed, the
// reason for removal.
func (g *Guard) decide(eval *Evaluation, required policy.RoleSet) (domain.SessionDecision, events.ClearReason, error) {
	sessionID, route := eval.SessionID(), eval.Route()
	ctx := eval.Context()

	cred, err := g.store.Load(ctx, sessionID)
	if ctx.Err() != nil {
		return domain.SessionDecision{}, "", ErrSuperseded
	}
	switch {
	case errors.Is(err, tokenstore.ErrNoCredential):
		return domain.DenyUnauthenticated(route), "", nil
	case err != nil:
		return domain.SessionDecision{}, "", fmt.Errorf("load credential: %w", err)
	}
	if !cred.Usable() {
		return domain.DenyUnauthenticated(route), "", nil
	}

	if g.bypass {
		return domain.Allow(route, cred.Role), "", nil
	}

	outcome, err := g.verifier.Verify(eval, sessionID, cred)
	if err != nil {
		return domain.SessionDecision{}, "", err
	}
	g.metrics.RecordVerification(outcome.Kind.String())

	switch outcome.Kind {
	case domain.VerificationValid:
	case domain.VerificationInvalid:
		renewed, err := g.refresher.Refresh(eval, sessionID, cred)
		if err != nil {
			if errors.Is(err, ErrSuperseded) {
				return domain.SessionDecision{}, "", err
			}
			g.metrics.RecordRefresh("rejected")
			g.logger.Info("refresh rejected",
				zap.String("session", observability.ShortID(sessionID)),
				zap.Error(err),
			)
			return domain.DenyUnauthenticated(route), events.ClearReasonRefreshRejected, nil
		}
		g.metrics.RecordRefresh("ok")
		cred = renewed
	case domain.VerificationIndeterminate:
		if !g.withinGrace(cred) {
			g.logger.Warn("verification indeterminate past grace window",
				zap.String("session", observability.ShortID(sessionID)),
				zap.String("reason", outcome.Reason),
			)
			if err := eval.Commit(func() error {
				return g.store.Clear(ctx, sessionID)
			}); err != nil {
				if errors.Is(err, ErrSuperseded) {
					return domain.SessionDecision{}, "", err
				}
				g.logger.Error("clear credential", zap.String("session", observability.ShortID(sessionID)), zap.Error(err))
			}
			return domain.DenyUnauthenticated(route), events.ClearReasonGraceExpired, nil
		}
		g.logger.Info("verification indeterminate, continuing within grace window",
			zap.String("session", observability.ShortID(sessionID)),
			zap.String("reason", outcome.Reason),
		)
	}

	if !policy.IsAllowed(required, cred.Role) {
		return domain.DenyUnauthorized(route, cred.Role), "", nil
	}
	return domain.Allow(route, cred.Role), "", nil
}

func (g *Guard) withinGrace(cred domain.Credential) bool {
	if cred.LastVerifiedAt == nil {
		return false
	}
	return g.now().Sub(*cred.LastVerifiedAt) < g.grace
}

func (g *Guard) publish(ctx context.Context, event events.Event) {
	if g.events == nil {
		return
	}
	if err := g.events.Publish(ctx, event); err != nil {
		g.logger.Warn("event handler failed",
			zap.String("event", string(event.Type)),
			zap.String("session", observability.ShortID(event.SessionID)),
			zap.Error(err),
		)
	}
}

