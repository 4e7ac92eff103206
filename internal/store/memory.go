package store

import (
	"context"
	"sync"
	"time"

	"github.com/ashureev/wealth-widget/internal/domain"
)

// MemoryStore keeps sessions in process memory. Used by the CLI and in tests.
type MemoryStore struct {
	mu       sync.RWMutex
	sessions map[string]*domain.Session
}

// NewMemory creates an empty in-memory store.
func NewMemory() *MemoryStore {
	return &MemoryStore{sessions: make(map[string]*domain.Session)}
}

// GetSession implements SessionStore.
func (m *MemoryStore) GetSession(_ context.Context, key string) (*domain.Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if s, ok := m.sessions[key]; ok {
		return s.Clone(), nil
	}
	return nil, nil
}

// SaveSession implements SessionStore.
func (m *MemoryStore) SaveSession(_ context.Context, session *domain.Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sessions[session.Key] = session.Clone()
	return nil
}

// DeleteSession implements SessionStore.
func (m *MemoryStore) DeleteSession(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.sessions, key)
	return nil
}

// ExpiredSessions implements SessionStore.
func (m *MemoryStore) ExpiredSessions(_ context.Context, ttl time.Duration) ([]string, error) {
	threshold := time.Now().Add(-ttl)
	m.mu.RLock()
	defer m.mu.RUnlock()

	var keys []string
	for key, s := range m.sessions {
		if s.UpdatedAt.Before(threshold) {
			keys = append(keys, key)
		}
	}
	return keys, nil
}

// Ping implements SessionStore.
func (m *MemoryStore) Ping(context.Context) error { return nil }

// Close implements SessionStore.
func (m *MemoryStore) Close() error { return nil }
