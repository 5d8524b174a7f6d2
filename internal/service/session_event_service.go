package service

import (
	"context"

	"go.uber.org/zap"

	"github.com/sail-program/sail-gateway/internal/events"
	"github.com/sail-program/sail-gateway/internal/observability"
	"github.com/sail-program/sail-gateway/internal/querycache"
)

// SessionEventService reacts to session lifecycle events.
type SessionEventService struct {
	dispatcher events.Dispatcher
	cache      querycache.Cache
	logger     *zap.Logger
}

// NewSessionEventService creates the service.
func NewSessionEventService(dispatcher events.Dispatcher, cache querycache.Cache, logger *zap.Logger) *SessionEventService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SessionEventService{dispatcher: dispatcher, cache: cache, logger: logger}
}

// RegisterHandlers subscribes to events.
func (s *SessionEventService) RegisterHandlers() {
	if s.dispatcher == nil {
		return
	}
	s.dispatcher.Subscribe(events.EventSessionCleared, s.handleSessionCleared)
	s.dispatcher.Subscribe(events.EventCredentialSaved, s.handleCredentialSaved)
	s.dispatcher.Subscribe(events.EventDecisionMade, s.handleDecisionMade)
}

// handleSessionCleared drops responses fetched with the removed credential.
func (s *SessionEventService) handleSessionCleared(ctx context.Context, event events.Event) error {
	s.logger.Info("SessionCleared",
		zap.String("session", observability.ShortID(event.SessionID)),
		zap.Any("payload", event.Payload))
	if s.cache == nil {
		return nil
	}
	return s.cache.Invalidate(ctx, event.SessionID)
}

// handleCredentialSaved drops responses of a previous identity on the same
// browser session.
func (s *SessionEventService) handleCredentialSaved(ctx context.Context, event events.Event) error {
	s.logger.Debug("CredentialSaved",
		zap.String("session", observability.ShortID(event.SessionID)),
		zap.Any("payload", event.Payload))
	if s.cache == nil {
		return nil
	}
	return s.cache.Invalidate(ctx, event.SessionID)
}

func (s *SessionEventService) handleDecisionMade(_ context.Context, event events.Event) error {
	payload, ok := event.Payload.(events.DecisionMadePayload)
	if !ok {
		return nil
	}
	s.logger.Debug("DecisionMade",
		zap.String("session", observability.ShortID(event.SessionID)),
		zap.String("route", payload.Route),
		zap.String("decision", payload.Decision))
	return nil
}
