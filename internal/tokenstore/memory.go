package tokenstore

import (
	"context"
	"sync"

	"github.com/sail-program/sail-gateway/internal/domain"
)

// MemoryStore keeps credentials in process memory.
// Suitable for development and single-instance deployments.
type MemoryStore struct {
	mu    sync.RWMutex
	creds map[string]map[string]string
}

// NewMemoryStore creates an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{creds: make(map[string]map[string]string)}
}

// Save replaces the session's credential.
func (m *MemoryStore) Save(_ context.Context, sessionID string, cred domain.Credential) error {
	if err := validate(cred); err != nil {
		return err
	}
	fields := encodeFields(cred)

	m.mu.Lock()
	defer m.mu.Unlock()
	if len(fields) == 0 {
		delete(m.creds, sessionID)
		return nil
	}
	m.creds[sessionID] = fields
	return nil
}

// Load returns the session's credential or ErrNoCredential.
func (m *MemoryStore) Load(_ context.Context, sessionID string) (domain.Credential, error) {
	m.mu.RLock()
	fields := m.creds[sessionID]
	m.mu.RUnlock()
	return decodeFields(fields)
}

// Clear removes the session's credential.
func (m *MemoryStore) Clear(_ context.Context, sessionID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.creds, sessionID)
	return nil
}

// Len reports how many sessions hold a credential.
func (m *MemoryStore) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.creds)
}
