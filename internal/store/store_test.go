package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ashureev/wealth-widget/internal/domain"
)

func newSQLiteForTest(t *testing.T) *SQLiteStore {
	t.Helper()
	s, err := NewSQLite(filepath.Join(t.TempDir(), "nested", "widget.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func newRedisForTest(t *testing.T) (*RedisStore, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	s := NewRedisWithClient(client, time.Hour)
	t.Cleanup(func() { _ = s.Close() })
	return s, mr
}

func sampleSession(updated time.Time) *domain.Session {
	s := domain.NewSession("anon_0123456789abcdef0123456789abcdef", "tab-1", updated)
	s.Append(domain.SpeakerAssistant, "What's your name?", updated)
	s.Append(domain.SpeakerUser, "Jane", updated)
	s.SetAnswer(domain.Answer{Field: domain.FieldName, Raw: "Jane"})
	s.Step = domain.StepAwaitingBrokerageAUM
	return s
}

func TestSessionStores(t *testing.T) {
	stores := map[string]func(t *testing.T) SessionStore{
		"sqlite": func(t *testing.T) SessionStore { return newSQLiteForTest(t) },
		"redis": func(t *testing.T) SessionStore {
			s, _ := newRedisForTest(t)
			return s
		},
		"memory": func(*testing.T) SessionStore { return NewMemory() },
	}

	for name, newStore := range stores {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			s := newStore(t)
			require.NoError(t, s.Ping(ctx))

			missing, err := s.GetSession(ctx, "nope")
			require.NoError(t, err)
			assert.Nil(t, missing)

			now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
			session := sampleSession(now)
			require.NoError(t, s.SaveSession(ctx, session))

			got, err := s.GetSession(ctx, session.Key)
			require.NoError(t, err)
			require.NotNil(t, got)
			assert.Equal(t, domain.StepAwaitingBrokerageAUM, got.Step)
			assert.Equal(t, session.Answers, got.Answers)
			require.Len(t, got.Transcript, 2)
			assert.Equal(t, "Jane", got.Transcript[1].Text)
			assert.True(t, got.UpdatedAt.Equal(now))

			session.Step = domain.StepAwaitingAdvisoryAUM
			require.NoError(t, s.SaveSession(ctx, session))
			got, err = s.GetSession(ctx, session.Key)
			require.NoError(t, err)
			assert.Equal(t, domain.StepAwaitingAdvisoryAUM, got.Step)

			require.NoError(t, s.DeleteSession(ctx, session.Key))
			require.NoError(t, s.DeleteSession(ctx, session.Key))
			got, err = s.GetSession(ctx, session.Key)
			require.NoError(t, err)
			assert.Nil(t, got)
		})
	}
}

func TestExpiredSessions(t *testing.T) {
	stores := map[string]SessionStore{
		"sqlite": newSQLiteForTest(t),
		"memory": NewMemory(),
	}

	for name, s := range stores {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			stale := sampleSession(time.Now().Add(-2 * time.Hour))
			stale.Key = "stale"
			fresh := sampleSession(time.Now())
			fresh.Key = "fresh"
			require.NoError(t, s.SaveSession(ctx, stale))
			require.NoError(t, s.SaveSession(ctx, fresh))

			keys, err := s.ExpiredSessions(ctx, time.Hour)
			require.NoError(t, err)
			assert.Equal(t, []string{"stale"}, keys)
		})
	}
}

func TestRedisSessionExpires(t *testing.T) {
	ctx := context.Background()
	s, mr := newRedisForTest(t)

	session := sampleSession(time.Now())
	require.NoError(t, s.SaveSession(ctx, session))
	assert.True(t, mr.Exists(redisKeyPrefix+session.Key))

	mr.FastForward(2 * time.Hour)

	got, err := s.GetSession(ctx, session.Key)
	require.NoError(t, err)
	assert.Nil(t, got)

	keys, err := s.ExpiredSessions(ctx, time.Hour)
	require.NoError(t, err)
	assert.Empty(t, keys)
}

func TestSQLiteLeadsAreStoredOnce(t *testing.T) {
	ctx := context.Background()
	s := newSQLiteForTest(t)

	rec := domain.NewSubmissionRecord(time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
		"Jane", "jane@x.com", 200_000_000, 100_000_000, 5_000_000, 500_000_000, 1)
	require.NoError(t, s.Submit(ctx, rec))
	require.NoError(t, s.Submit(ctx, rec))

	n, err := s.CountLeads(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)

	got, err := s.GetLead(ctx, rec.ID)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, rec, *got)

	missing, err := s.GetLead(ctx, "missing")
	require.NoError(t, err)
	assert.Nil(t, missing)
	assert.Equal(t, "sqlite", s.Name())
}

func TestMemoryStoreReturnsCopies(t *testing.T) {
	ctx := context.Background()
	s := NewMemory()
	session := sampleSession(time.Now())
	require.NoError(t, s.SaveSession(ctx, session))

	got, err := s.GetSession(ctx, session.Key)
	require.NoError(t, err)
	got.Transcript[0].Text = "mutated"

	again, err := s.GetSession(ctx, session.Key)
	require.NoError(t, err)
	assert.Equal(t, "What's your name?", again.Transcript[0].Text)
}
