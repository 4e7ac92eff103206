// Package store provides data persistence interfaces and implementations.
package store

import (
	"context"
	"time"

	"github.com/ashureev/wealth-widget/internal/domain"
)

// SessionStore persists widget conversations between requests.
type SessionStore interface {
	// GetSession retrieves a session by key. It returns nil, nil when absent.
	GetSession(ctx context.Context, key string) (*domain.Session, error)

	// SaveSession creates or replaces a session.
	SaveSession(ctx context.Context, session *domain.Session) error

	// DeleteSession removes a session. Deleting a missing session is not an error.
	DeleteSession(ctx context.Context, key string) error

	// ExpiredSessions lists keys of sessions idle for longer than ttl.
	// Stores that expire entries natively may return nil.
	ExpiredSessions(ctx context.Context, ttl time.Duration) ([]string, error)

	// Ping verifies connectivity and returns an error if the store is unreachable.
	Ping(ctx context.Context) error

	// Close releases the underlying connection.
	Close() error
}
