package widget

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ashureev/wealth-widget/internal/domain"
	"github.com/ashureev/wealth-widget/internal/store"
)

func seedSession(t *testing.T, sessions store.SessionStore, tab string, updated time.Time) string {
	t.Helper()
	s := domain.NewSession(testVisitor, tab, updated)
	require.NoError(t, sessions.SaveSession(context.Background(), s))
	return s.Key
}

func TestCleanupExpiredSessions(t *testing.T) {
	sessions := store.NewMemory()
	stale := seedSession(t, sessions, "old-tab", time.Now().Add(-2*time.Hour))
	fresh := seedSession(t, sessions, "new-tab", time.Now())

	var cleaned []string
	n := cleanupExpiredSessions(context.Background(), sessions, time.Hour, func(key string) {
		cleaned = append(cleaned, key)
	})

	assert.Equal(t, 1, n)
	assert.Equal(t, []string{stale}, cleaned)

	got, err := sessions.GetSession(context.Background(), stale)
	require.NoError(t, err)
	assert.Nil(t, got)

	got, err = sessions.GetSession(context.Background(), fresh)
	require.NoError(t, err)
	assert.NotNil(t, got)
}

func TestStartTTLWorkerStopsWithContext(t *testing.T) {
	sessions := store.NewMemory()
	stale := seedSession(t, sessions, "old-tab", time.Now().Add(-2*time.Hour))

	var mu sync.Mutex
	var cleaned []string
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	StartTTLWorker(ctx, sessions, nil, time.Hour, 10*time.Millisecond, func(key string) {
		mu.Lock()
		defer mu.Unlock()
		cleaned = append(cleaned, key)
	})

	assert.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(cleaned) == 1 && cleaned[0] == stale
	}, 2*time.Second, 10*time.Millisecond)
}

type countingSweeper struct {
	mu    sync.Mutex
	calls int
	idle  time.Duration
}

func (c *countingSweeper) SweepIdle(idle time.Duration) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls++
	c.idle = idle
	return 0
}

func TestStartTTLWorkerSweepsIdleLatches(t *testing.T) {
	sweeper := &countingSweeper{}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Nothing expires in the store, as with Redis; the idle sweep still runs.
	StartTTLWorker(ctx, store.NewMemory(), sweeper, time.Hour, 10*time.Millisecond, nil)

	assert.Eventually(t, func() bool {
		sweeper.mu.Lock()
		defer sweeper.mu.Unlock()
		return sweeper.calls > 0 && sweeper.idle == time.Hour
	}, 2*time.Second, 10*time.Millisecond)
}
