package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/sail-program/sail-gateway/internal/authclient"
	"github.com/sail-program/sail-gateway/internal/config"
	"github.com/sail-program/sail-gateway/internal/domain"
	"github.com/sail-program/sail-gateway/internal/events"
	"github.com/sail-program/sail-gateway/internal/observability"
	"github.com/sail-program/sail-gateway/internal/session"
	"github.com/sail-program/sail-gateway/internal/tokenstore"
	apperrors "github.com/sail-program/sail-gateway/pkg/util/errorutil"
)

// LoginAPI is the part of the auth API used to open a session.
type LoginAPI interface {
	Login(ctx context.Context, username, password string) (*authclient.TokenResponse, error)
	Register(ctx context.Context, req authclient.RegisterRequest) (*authclient.TokenResponse, error)
}

// AuthService coordinates login, registration and logout of browser sessions.
type AuthService struct {
	api          LoginAPI
	store        tokenstore.Store
	tracker      *session.Tracker
	events       events.Dispatcher
	logger       *zap.Logger
	defaultRole  string
	loginTimeout time.Duration
	now          func() time.Time
}

// AuthDependencies encapsulates collaborators of the auth service.
type AuthDependencies struct {
	API     LoginAPI
	Store   tokenstore.Store
	Tracker *session.Tracker
	Events  events.Dispatcher
	Logger  *zap.Logger
	Now     func() time.Time
}

// NewAuthService builds the service.
func NewAuthService(cfg config.AuthConfig, deps AuthDependencies) *AuthService {
	now := deps.Now
	if now == nil {
		now = time.Now
	}
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	role := cfg.DefaultRole
	if role == "" {
		role = domain.RoleAdmin
	}
	return &AuthService{
		api:          deps.API,
		store:        deps.Store,
		tracker:      deps.Tracker,
		events:       deps.Events,
		logger:       logger,
		defaultRole:  role,
		loginTimeout: cfg.LoginTimeout,
		now:          now,
	}
}

// Login authenticates against the auth API and stores the issued tokens
// for sessionID. The credential is saved before Login returns.
func (s *AuthService) Login(ctx context.Context, sessionID, username, password string) (*domain.User, error) {
	username = strings.TrimSpace(username)
	if username == "" || password == "" {
		return nil, apperrors.NewValidationError("username and password required", nil)
	}

	callCtx, cancel := s.withTimeout(ctx)
	defer cancel()

	resp, err := s.api.Login(callCtx, username, password)
	if err != nil {
		return nil, s.mapAPIError(err, "Invalid credentials. Please check your username and password.", false)
	}
	return s.open(ctx, sessionID, resp, "login")
}

// Register creates an account through the auth API and opens a session
// with the returned tokens.
func (s *AuthService) Register(ctx context.Context, sessionID string, req authclient.RegisterRequest) (*domain.User, error) {
	req.Email = strings.TrimSpace(req.Email)
	details := map[string]any{}
	if req.Email == "" {
		details["email"] = "required"
	}
	if req.Password == "" {
		details["password"] = "required"
	}
	if req.Role == "" {
		details["role"] = "required"
	}
	if strings.EqualFold(req.Role, domain.RoleOrganization) && strings.TrimSpace(req.OrganizationName) == "" {
		details["organization_name"] = "required for organization accounts"
	}
	if len(details) > 0 {
		return nil, apperrors.NewValidationError("invalid registration", details)
	}

	callCtx, cancel := s.withTimeout(ctx)
	defer cancel()

	resp, err := s.api.Register(callCtx, req)
	if err != nil {
		return nil, s.mapAPIError(err, "Registration failed", true)
	}
	return s.open(ctx, sessionID, resp, "register")
}

// Logout cancels any evaluation of the session, clears its credential and
// announces the clear so cached data of the session is dropped.
func (s *AuthService) Logout(ctx context.Context, sessionID string) error {
	if sessionID == "" {
		return nil
	}
	var clearErr error
	if err := s.tracker.Exclusive(sessionID, func() error {
		return s.store.Clear(ctx, sessionID)
	}); err != nil {
		clearErr = apperrors.NewInternalError(err)
	}
	s.tracker.Forget(sessionID)

	s.publish(ctx, events.New(events.EventSessionCleared, sessionID, events.SessionClearedPayload{Reason: events.ClearReasonLogout}))
	s.logger.Info("session logged out", zap.String("session", observability.ShortID(sessionID)))
	return clearErr
}

func (s *AuthService) open(ctx context.Context, sessionID string, resp *authclient.TokenResponse, source string) (*domain.User, error) {
	if resp.Access == "" {
		return nil, apperrors.NewBadGateway("auth api returned no access token", nil)
	}

	user := resp.User
	if strings.TrimSpace(user.Role) == "" {
		user.Role = s.defaultRole
	}
	now := s.now()
	cred := domain.Credential{
		AccessToken:    resp.Access,
		RefreshToken:   resp.Refresh,
		Role:           user.Role,
		LastVerifiedAt: &now,
	}

	// Supersede in-flight evaluations so none of them can clear or
	// overwrite the credential written here.
	if err := s.tracker.Exclusive(sessionID, func() error {
		return s.store.Save(ctx, sessionID, cred)
	}); err != nil {
		return nil, apperrors.NewInternalError(err)
	}

	s.publish(ctx, events.New(events.EventCredentialSaved, sessionID, events.CredentialSavedPayload{Role: user.Role, Source: source}))
	s.logger.Info("session opened",
		zap.String("session", observability.ShortID(sessionID)),
		zap.String("role", user.Role),
		zap.String("source", source),
	)
	return &user, nil
}

// mapAPIError turns auth API failures into form-level errors. With
// preferDetail the backend's own message replaces the generic one.
func (s *AuthService) mapAPIError(err error, message string, preferDetail bool) error {
	var apiErr *authclient.APIError
	if errors.As(err, &apiErr) {
		if apiErr.Status >= 500 {
			return apperrors.NewBadGateway("authentication service unavailable", err)
		}
		var details map[string]any
		if apiErr.Detail != "" {
			details = map[string]any{"detail": apiErr.Detail}
			if preferDetail {
				message = apiErr.Detail
			}
		}
		return apperrors.NewAuthenticationFailed(message, details)
	}
	s.logger.Warn("auth api unreachable", zap.Error(err))
	return apperrors.NewBadGateway("authentication service unavailable", err)
}

func (s *AuthService) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if s.loginTimeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, s.loginTimeout)
}

func (s *AuthService) publish(ctx context.Context, event events.Event) {
	if s.events == nil {
		return
	}
	if err := s.events.Publish(context.WithoutCancel(ctx), event); err != nil {
		s.logger.Warn("event handler failed", zap.String("event", string(event.Type)), zap.Error(err))
	}
}

