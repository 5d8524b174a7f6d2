package events

import (
	"time"

	"github.com/google/uuid"
)

// EventType enumerates supported event identifiers.
type EventType string

const (
	EventCredentialSaved EventType = "credential_saved"
	EventSessionCleared  EventType = "session_cleared"
	EventDecisionMade    EventType = "decision_made"
)

// ClearReason explains why a session's credential was removed.
type ClearReason string

const (
	ClearReasonLogout          ClearReason = "logout"
	ClearReasonRefreshRejected ClearReason = "refresh_rejected"
	ClearReasonGraceExpired    ClearReason = "grace_expired"
)

// Event represents a session lifecycle event.
type Event struct {
	ID        string      `json:"id"`
	Type      EventType   `json:"type"`
	SessionID string      `json:"session_id"`
	Timestamp time.Time   `json:"timestamp"`
	Payload   interface{} `json:"payload"`
}

// CredentialSavedPayload payload.
type CredentialSavedPayload struct {
	Role   string `json:"role"`
	Source string `json:"source"`
}

// SessionClearedPayload payload.
type SessionClearedPayload struct {
	Reason ClearReason `json:"reason"`
}

// DecisionMadePayload payload.
type DecisionMadePayload struct {
	Route    string `json:"route"`
	Decision string `json:"decision"`
	Role     string `json:"role,omitempty"`
}

// New stamps an event with an id and the current time.
func New(eventType EventType, sessionID string, payload interface{}) Event {
	return Event{
		ID:        uuid.NewString(),
		Type:      eventType,
		SessionID: sessionID,
		Timestamp: time.Now().UTC(),
		Payload:   payload,
	}
}
