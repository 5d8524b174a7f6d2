package session

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/sail-program/sail-gateway/internal/authclient"
	"github.com/sail-program/sail-gateway/internal/domain"
	"github.com/sail-program/sail-gateway/internal/events"
	"github.com/sail-program/sail-gateway/internal/observability"
	"github.com/sail-program/sail-gateway/internal/policy"
	"github.com/sail-program/sail-gateway/internal/tokenstore"
)

const sid = "2b7e1516-28ae-4d2a-a6d2-a6abf7158809"

type fakeAPI struct {
	verify  func(ctx context.Context, token string) error
	refresh func(ctx context.Context, refresh string) (string, error)

	verifyCalls  atomic.Int32
	refreshCalls atomic.Int32
}

func (f *fakeAPI) Verify(ctx context.Context, token string) error {
	f.verifyCalls.Add(1)
	if f.verify == nil {
		return nil
	}
	return f.verify(ctx, token)
}

func (f *fakeAPI) Refresh(ctx context.Context, refresh string) (string, error) {
	f.refreshCalls.Add(1)
	if f.refresh == nil {
		return "", &authclient.APIError{Status: 401}
	}
	return f.refresh(ctx, refresh)
}

func (f *fakeAPI) calls() int {
	return int(f.verifyCalls.Load() + f.refreshCalls.Load())
}

type recorder struct {
	mu     sync.Mutex
	events []events.Event
}

func (r *recorder) handle(_ context.Context, e events.Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
	return nil
}

func (r *recorder) ofType(t events.EventType) []events.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []events.Event
	for _, e := range r.events {
		if e.Type == t {
			out = append(out, e)
		}
	}
	return out
}

type fixture struct {
	store   *tokenstore.MemoryStore
	api     *fakeAPI
	guard   *Guard
	events  *recorder
	metrics *observability.Metrics
	now     time.Time
}

func newFixture(t *testing.T, opts Options) *fixture {
	t.Helper()
	f := &fixture{
		store:   tokenstore.NewMemoryStore(),
		api:     &fakeAPI{},
		events:  &recorder{},
		metrics: observability.NewMetrics(),
		now:     time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC),
	}
	dispatcher := events.NewInMemoryDispatcher()
	dispatcher.Subscribe(events.EventSessionCleared, f.events.handle)
	dispatcher.Subscribe(events.EventDecisionMade, f.events.handle)

	if opts.VerifyTimeout == 0 {
		opts.VerifyTimeout = time.Second
	}
	if opts.RefreshTimeout == 0 {
		opts.RefreshTimeout = time.Second
	}
	if opts.GracePeriod == 0 {
		opts.GracePeriod = time.Hour
	}
	opts.Now = func() time.Time { return f.now }

	f.guard = NewGuard(Dependencies{
		Store:   f.store,
		API:     f.api,
		Events:  dispatcher,
		Metrics: f.metrics,
	}, opts)
	return f
}

func (f *fixture) seed(t *testing.T, cred domain.Credential) {
	t.Helper()
	require.NoError(t, f.store.Save(context.Background(), sid, cred))
}

func adminCredential() domain.Credential {
	return domain.Credential{AccessToken: "access-1", RefreshToken: "refresh-1", Role: "admin"}
}

func TestGuard_NoAccessTokenDeniesWithoutNetwork(t *testing.T) {
	f := newFixture(t, Options{})

	decision, err := f.guard.Evaluate(context.Background(), sid, "/admin/dashboard")
	require.NoError(t, err)
	assert.Equal(t, domain.DenyUnauthenticated("/admin/dashboard"), decision)
	assert.Zero(t, f.api.calls())
}

func TestGuard_ValidTokenAllowsAndStampsVerification(t *testing.T) {
	f := newFixture(t, Options{})
	f.seed(t, adminCredential())

	decision, err := f.guard.Evaluate(context.Background(), sid, "/admin/dashboard")
	require.NoError(t, err)
	assert.Equal(t, domain.Allow("/admin/dashboard", "admin"), decision)

	stored, err := f.store.Load(context.Background(), sid)
	require.NoError(t, err)
	require.NotNil(t, stored.LastVerifiedAt)
	assert.True(t, stored.LastVerifiedAt.Equal(f.now))
	assert.Equal(t, int32(0), f.api.refreshCalls.Load())
}

func TestGuard_RoleComparisonFoldsCase(t *testing.T) {
	f := newFixture(t, Options{})
	cred := adminCredential()
	cred.Role = "Admin"
	f.seed(t, cred)

	decision, err := f.guard.Evaluate(context.Background(), sid, "/students/42/profile")
	require.NoError(t, err)
	assert.Equal(t, domain.DecisionAllow, decision.Kind)
	assert.Equal(t, "Admin", decision.Role)
}

func TestGuard_ValidTokenWrongRoleIsUnauthorized(t *testing.T) {
	f := newFixture(t, Options{})
	cred := adminCredential()
	cred.Role = "Student"
	f.seed(t, cred)

	decision, err := f.guard.Evaluate(context.Background(), sid, "/admin/matching")
	require.NoError(t, err)
	assert.Equal(t, domain.DenyUnauthorized("/admin/matching", "Student"), decision)

	_, err = f.store.Load(context.Background(), sid)
	assert.NoError(t, err, "an authorization failure keeps the session")
}

func TestGuard_InvalidTokenRefreshSucceeds(t *testing.T) {
	for _, tc := range []struct {
		role string
		want domain.DecisionKind
	}{
		{role: "admin", want: domain.DecisionAllow},
		{role: "Faculty", want: domain.DecisionDenyUnauthorized},
	} {
		t.Run(tc.role, func(t *testing.T) {
			f := newFixture(t, Options{})
			cred := adminCredential()
			cred.Role = tc.role
			f.seed(t, cred)
			f.api.verify = func(context.Context, string) error { return &authclient.APIError{Status: 401} }
			f.api.refresh = func(_ context.Context, refresh string) (string, error) {
				assert.Equal(t, "refresh-1", refresh)
				return "access-2", nil
			}

			decision, err := f.guard.Evaluate(context.Background(), sid, "/admin/dashboard")
			require.NoError(t, err)
			assert.Equal(t, tc.want, decision.Kind)

			stored, err := f.store.Load(context.Background(), sid)
			require.NoError(t, err)
			assert.Equal(t, "access-2", stored.AccessToken)
			assert.Equal(t, "refresh-1", stored.RefreshToken)
			assert.Equal(t, tc.role, stored.Role)
			require.NotNil(t, stored.LastVerifiedAt)
			assert.True(t, stored.LastVerifiedAt.Equal(f.now))
			assert.Equal(t, int32(1), f.api.refreshCalls.Load())
		})
	}
}

func TestGuard_RefreshRejectedClearsStore(t *testing.T) {
	f := newFixture(t, Options{})
	f.seed(t, adminCredential())
	f.api.verify = func(context.Context, string) error { return &authclient.APIError{Status: 401} }
	f.api.refresh = func(context.Context, string) (string, error) {
		return "", &authclient.APIError{Status: 401, Detail: "Token is blacklisted"}
	}

	decision, err := f.guard.Evaluate(context.Background(), sid, "/admin/dashboard")
	require.NoError(t, err)
	assert.Equal(t, domain.DenyUnauthenticated("/admin/dashboard"), decision)

	_, err = f.store.Load(context.Background(), sid)
	assert.ErrorIs(t, err, tokenstore.ErrNoCredential)
	assert.Equal(t, int32(1), f.api.refreshCalls.Load(), "refresh is attempted once")

	cleared := f.events.ofType(events.EventSessionCleared)
	require.Len(t, cleared, 1)
	assert.Equal(t, events.SessionClearedPayload{Reason: events.ClearReasonRefreshRejected}, cleared[0].Payload)
	assert.Equal(t, int64(1), f.metrics.Snapshot().Refreshes["rejected"])
}

func TestGuard_RefreshTransportFailureAlsoClears(t *testing.T) {
	f := newFixture(t, Options{})
	f.seed(t, adminCredential())
	f.api.verify = func(context.Context, string) error { return &authclient.APIError{Status: 401} }
	f.api.refresh = func(context.Context, string) (string, error) {
		return "", errors.New("connection refused")
	}

	decision, err := f.guard.Evaluate(context.Background(), sid, "/admin/dashboard")
	require.NoError(t, err)
	assert.Equal(t, domain.DecisionDenyUnauthenticated, decision.Kind)

	_, err = f.store.Load(context.Background(), sid)
	assert.ErrorIs(t, err, tokenstore.ErrNoCredential)
}

func TestGuard_MissingRefreshTokenSkipsNetwork(t *testing.T) {
	f := newFixture(t, Options{})
	cred := adminCredential()
	cred.RefreshToken = ""
	f.seed(t, cred)
	f.api.verify = func(context.Context, string) error { return &authclient.APIError{Status: 401} }

	decision, err := f.guard.Evaluate(context.Background(), sid, "/admin/dashboard")
	require.NoError(t, err)
	assert.Equal(t, domain.DecisionDenyUnauthenticated, decision.Kind)
	assert.Zero(t, f.api.refreshCalls.Load())

	_, err = f.store.Load(context.Background(), sid)
	assert.ErrorIs(t, err, tokenstore.ErrNoCredential)
}

func TestGuard_GraceWindow(t *testing.T) {
	for _, tc := range []struct {
		name     string
		age      *time.Duration
		want     domain.DecisionKind
		survives bool
	}{
		{name: "recently verified", age: durationPtr(59 * time.Minute), want: domain.DecisionAllow, survives: true},
		{name: "just inside", age: durationPtr(time.Hour - time.Millisecond), want: domain.DecisionAllow, survives: true},
		{name: "exactly at edge", age: durationPtr(time.Hour), want: domain.DecisionDenyUnauthenticated},
		{name: "expired", age: durationPtr(3 * time.Hour), want: domain.DecisionDenyUnauthenticated},
		{name: "never verified", want: domain.DecisionDenyUnauthenticated},
	} {
		t.Run(tc.name, func(t *testing.T) {
			f := newFixture(t, Options{GracePeriod: time.Hour})
			cred := adminCredential()
			if tc.age != nil {
				cred = cred.WithVerifiedAt(f.now.Add(-*tc.age))
			}
			f.seed(t, cred)
			f.api.verify = func(context.Context, string) error { return errors.New("dial tcp: connection refused") }

			decision, err := f.guard.Evaluate(context.Background(), sid, "/admin/dashboard")
			require.NoError(t, err)
			assert.Equal(t, tc.want, decision.Kind)
			assert.Zero(t, f.api.refreshCalls.Load(), "indeterminate never refreshes")

			_, err = f.store.Load(context.Background(), sid)
			if tc.survives {
				assert.NoError(t, err)
				assert.Empty(t, f.events.ofType(events.EventSessionCleared))
			} else {
				assert.ErrorIs(t, err, tokenstore.ErrNoCredential)
				cleared := f.events.ofType(events.EventSessionCleared)
				require.Len(t, cleared, 1)
				assert.Equal(t, events.SessionClearedPayload{Reason: events.ClearReasonGraceExpired}, cleared[0].Payload)
			}
		})
	}
}

func TestGuard_IndeterminateKeepsStoredRole(t *testing.T) {
	f := newFixture(t, Options{})
	cred := adminCredential()
	cred.Role = "Organization"
	f.seed(t, cred.WithVerifiedAt(f.now.Add(-time.Minute)))
	f.api.verify = func(context.Context, string) error { return errors.New("timeout") }

	decision, err := f.guard.Evaluate(context.Background(), sid, "/api/students/")
	require.NoError(t, err)
	assert.Equal(t, domain.Allow("/api/students/", "Organization"), decision)
}

func TestGuard_VerifyTimeoutIsIndeterminate(t *testing.T) {
	f := newFixture(t, Options{VerifyTimeout: 20 * time.Millisecond})
	f.seed(t, adminCredential().WithVerifiedAt(f.now.Add(-time.Minute)))
	f.api.verify = func(ctx context.Context, _ string) error {
		<-ctx.Done()
		return ctx.Err()
	}

	decision, err := f.guard.Evaluate(context.Background(), sid, "/admin/dashboard")
	require.NoError(t, err)
	assert.Equal(t, domain.DecisionAllow, decision.Kind)
	assert.Equal(t, int64(1), f.metrics.Snapshot().Verifications["indeterminate"])
}

func TestGuard_SupersededEvaluationHasNoEffect(t *testing.T) {
	f := newFixture(t, Options{})
	f.seed(t, adminCredential())

	started := make(chan struct{})
	release := make(chan struct{})
	var n atomic.Int32
	f.api.verify = func(context.Context, string) error {
		if n.Add(1) == 1 {
			close(started)
			<-release
			return &authclient.APIError{Status: 401}
		}
		return nil
	}
	f.api.refresh = func(context.Context, string) (string, error) {
		return "", &authclient.APIError{Status: 401}
	}

	type result struct {
		decision domain.SessionDecision
		err      error
	}
	first := make(chan result, 1)
	go func() {
		d, err := f.guard.Evaluate(context.Background(), sid, "/admin/dashboard")
		first <- result{d, err}
	}()
	<-started

	second, err := f.guard.Evaluate(context.Background(), sid, "/admin/students")
	require.NoError(t, err)
	assert.Equal(t, domain.Allow("/admin/students", "admin"), second)

	close(release)
	r := <-first
	assert.ErrorIs(t, r.err, ErrSuperseded)

	stored, err := f.store.Load(context.Background(), sid)
	require.NoError(t, err, "the superseded evaluation must not clear the store")
	assert.Equal(t, "access-1", stored.AccessToken)
	assert.Zero(t, f.api.refreshCalls.Load())
	assert.Empty(t, f.events.ofType(events.EventSessionCleared))

	current, ok := f.guard.Current(sid)
	require.True(t, ok)
	assert.Equal(t, second, current)
}

func TestGuard_NavigateReportsPendingThenDecision(t *testing.T) {
	f := newFixture(t, Options{})
	f.seed(t, adminCredential())

	release := make(chan struct{})
	f.api.verify = func(context.Context, string) error {
		<-release
		return nil
	}

	pending := f.guard.Navigate(context.Background(), sid, "/admin/dashboard")
	assert.Equal(t, domain.Pending("/admin/dashboard"), pending)

	current, ok := f.guard.Current(sid)
	require.True(t, ok)
	assert.Equal(t, domain.DecisionPending, current.Kind)

	close(release)
	require.Eventually(t, func() bool {
		d, _ := f.guard.Current(sid)
		return d.Kind == domain.DecisionAllow
	}, time.Second, 5*time.Millisecond)
}

func TestGuard_NavigateSupersedesPreviousNavigation(t *testing.T) {
	f := newFixture(t, Options{})
	f.seed(t, adminCredential())

	var n atomic.Int32
	block := make(chan struct{})
	f.api.verify = func(ctx context.Context, _ string) error {
		if n.Add(1) == 1 {
			select {
			case <-block:
			case <-ctx.Done():
			}
			return &authclient.APIError{Status: 401}
		}
		return nil
	}

	f.guard.Navigate(context.Background(), sid, "/admin/dashboard")
	require.Eventually(t, func() bool { return n.Load() == 1 }, time.Second, time.Millisecond)
	f.guard.Navigate(context.Background(), sid, "/admin/faculty")

	require.Eventually(t, func() bool {
		d, _ := f.guard.Current(sid)
		return d.Kind == domain.DecisionAllow
	}, time.Second, 5*time.Millisecond)
	close(block)

	current, _ := f.guard.Current(sid)
	assert.Equal(t, "/admin/faculty", current.Route)
	_, err := f.store.Load(context.Background(), sid)
	assert.NoError(t, err)
}

func TestGuard_DevBypassSkipsVerificationAndRoles(t *testing.T) {
	f := newFixture(t, Options{DevBypass: true})
	cred := adminCredential()
	cred.Role = "Student"
	f.seed(t, cred)

	decision, err := f.guard.Evaluate(context.Background(), sid, "/admin/dashboard")
	require.NoError(t, err)
	assert.Equal(t, domain.Allow("/admin/dashboard", "Student"), decision)
	assert.Zero(t, f.api.calls())

	decision, err = f.guard.Evaluate(context.Background(), "other-session", "/admin/dashboard")
	require.NoError(t, err)
	assert.Equal(t, domain.DecisionDenyUnauthenticated, decision.Kind, "bypass still needs a token")
}

func TestGuard_EmptyRequiredSetDenies(t *testing.T) {
	f := newFixture(t, Options{})
	f.seed(t, adminCredential())

	decision, err := f.guard.EvaluateRoles(context.Background(), sid, "/admin/dashboard", policy.RoleSet{})
	require.NoError(t, err)
	assert.Equal(t, domain.DecisionDenyUnauthorized, decision.Kind)
}

func TestGuard_PublicRouteIsAllowedWithoutStore(t *testing.T) {
	f := newFixture(t, Options{})

	decision, err := f.guard.Evaluate(context.Background(), sid, "/unauthorized")
	require.NoError(t, err)
	assert.Equal(t, domain.DecisionAllow, decision.Kind)
	assert.Zero(t, f.api.calls())
}

func TestGuard_PublishesDecision(t *testing.T) {
	f := newFixture(t, Options{})
	f.seed(t, adminCredential())

	_, err := f.guard.Evaluate(context.Background(), sid, "/admin/grading")
	require.NoError(t, err)

	made := f.events.ofType(events.EventDecisionMade)
	require.Len(t, made, 1)
	assert.Equal(t, events.DecisionMadePayload{Route: "/admin/grading", Decision: "allow", Role: "admin"}, made[0].Payload)
	assert.Equal(t, int64(1), f.metrics.Snapshot().Decisions["allow"])
}

func durationPtr(d time.Duration) *time.Duration { return &d }

func TestGuard_ConcurrentChecksAllProceed(t *testing.T) {
	f := newFixture(t, Options{})
	f.seed(t, adminCredential())
	f.api.verify = func(context.Context, string) error {
		time.Sleep(50 * time.Millisecond)
		return nil
	}

	const calls = 5
	decisions := make([]domain.SessionDecision, calls)
	errs := make([]error, calls)
	var wg sync.WaitGroup
	for i := 0; i < calls; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			decisions[i], errs[i] = f.guard.Check(context.Background(), sid, "/api/students/", policy.Authenticated)
		}(i)
		time.Sleep(5 * time.Millisecond)
	}
	wg.Wait()

	for i := 0; i < calls; i++ {
		require.NoError(t, errs[i], "call %d", i)
		assert.Equal(t, domain.Allow("/api/students/", "admin"), decisions[i])
	}
}

func TestGuard_CheckLeavesPendingNavigationAlone(t *testing.T) {
	f := newFixture(t, Options{})
	f.seed(t, adminCredential())

	var n atomic.Int32
	release := make(chan struct{})
	f.api.verify = func(context.Context, string) error {
		if n.Add(1) == 1 {
			<-release
		}
		return nil
	}

	f.guard.Navigate(context.Background(), sid, "/admin/dashboard")
	require.Eventually(t, func() bool { return n.Load() == 1 }, time.Second, time.Millisecond)

	decision, err := f.guard.Check(context.Background(), sid, "/api/students/", policy.Authenticated)
	require.NoError(t, err)
	assert.Equal(t, domain.Allow("/api/students/", "admin"), decision)

	current, ok := f.guard.Current(sid)
	require.True(t, ok)
	assert.Equal(t, domain.Pending("/admin/dashboard"), current)

	close(release)
	require.Eventually(t, func() bool {
		d, _ := f.guard.Current(sid)
		return d == domain.Allow("/admin/dashboard", "admin")
	}, time.Second, 5*time.Millisecond)
}

func TestGuard_LogoutDuringCheckIsNotUndone(t *testing.T) {
	f := newFixture(t, Options{})
	f.seed(t, adminCredential())

	started := make(chan struct{})
	release := make(chan struct{})
	f.api.verify = func(context.Context, string) error {
		close(started)
		<-release
		return nil
	}

	errCh := make(chan error, 1)
	go func() {
		_, err := f.guard.Check(context.Background(), sid, "/api/students/", policy.Authenticated)
		errCh <- err
	}()
	<-started

	require.NoError(t, f.guard.Tracker().Exclusive(sid, func() error {
		return f.store.Clear(context.Background(), sid)
	}))
	close(release)

	assert.ErrorIs(t, <-errCh, ErrSuperseded)
	_, err := f.store.Load(context.Background(), sid)
	assert.ErrorIs(t, err, tokenstore.ErrNoCredential, "the check must not re-save the credential")
}

func TestGuard_ConcurrentRefreshKeepsRenewedCredential(t *testing.T) {
	f := newFixture(t, Options{})
	f.seed(t, adminCredential())

	var verified sync.WaitGroup
	verified.Add(2)
	f.api.verify = func(_ context.Context, token string) error {
		if token == "access-1" {
			verified.Done()
			verified.Wait()
			return &authclient.APIError{Status: 401}
		}
		return nil
	}
	var refreshes atomic.Int32
	f.api.refresh = func(context.Context, string) (string, error) {
		if refreshes.Add(1) == 1 {
			return "access-2", nil
		}
		// The backend rotated the refresh token for the first caller.
		assert.Eventually(t, func() bool {
			stored, err := f.store.Load(context.Background(), sid)
			return err == nil && stored.AccessToken == "access-2"
		}, time.Second, time.Millisecond)
		return "", &authclient.APIError{Status: 401}
	}

	var wg sync.WaitGroup
	decisions := make([]domain.SessionDecision, 2)
	for i := range decisions {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			decisions[i], _ = f.guard.Check(context.Background(), sid, "/api/students/", policy.Authenticated)
		}(i)
	}
	wg.Wait()

	for _, d := range decisions {
		assert.Equal(t, domain.Allow("/api/students/", "admin"), d)
	}
	stored, err := f.store.Load(context.Background(), sid)
	require.NoError(t, err)
	assert.Equal(t, "access-2", stored.AccessToken)
	assert.Empty(t, f.events.ofType(events.EventSessionCleared))
}

type failingSaveStore struct {
	*tokenstore.MemoryStore
}

func (s failingSaveStore) Save(context.Context, string, domain.Credential) error {
	return errors.New("disk full")
}

func TestGuard_StampFailureIsLoggedAndStillAllows(t *testing.T) {
	core, logs := observer.New(zap.WarnLevel)
	mem := tokenstore.NewMemoryStore()
	require.NoError(t, mem.Save(context.Background(), sid, adminCredential()))

	guard := NewGuard(Dependencies{
		Store:  failingSaveStore{mem},
		API:    &fakeAPI{},
		Logger: zap.New(core),
	}, Options{VerifyTimeout: time.Second, RefreshTimeout: time.Second, GracePeriod: time.Hour})

	decision, err := guard.Evaluate(context.Background(), sid, "/admin/dashboard")
	require.NoError(t, err)
	assert.Equal(t, domain.Allow("/admin/dashboard", "admin"), decision)

	entries := logs.FilterMessage("stamp verification time").All()
	require.Len(t, entries, 1)
	assert.Equal(t, sid[:8], entries[0].ContextMap()["session"])
}
