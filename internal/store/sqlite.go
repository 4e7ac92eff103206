package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/ashureev/wealth-widget/internal/domain"
	"github.com/ashureev/wealth-widget/internal/shared"
	_ "modernc.org/sqlite"
)

// SQLiteStore keeps widget sessions and completed leads in SQLite.
// It satisfies SessionStore and can serve as the primary lead sink.
type SQLiteStore struct {
	db        *sql.DB
	sessionMu sync.Mutex // serializes session writes to avoid SQLITE_BUSY
	retry     shared.RetryPolicy
}

// NewSQLite opens (creating if needed) the database at dbPath.
func NewSQLite(dbPath string) (*SQLiteStore, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create database directory: %w", err)
	}

	// Open database with WAL mode for better concurrency.
	dsn := dbPath + "?_journal=WAL&_sync=NORMAL&_busy_timeout=5000"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("ping database: %w", err)
	}

	store := &SQLiteStore{db: db, retry: shared.DefaultRetryPolicy}
	if err := store.initSchema(); err != nil {
		return nil, fmt.Errorf("initialize schema: %w", err)
	}

	return store, nil
}

// SetRetryPolicy overrides the lock-contention retry policy.
func (s *SQLiteStore) SetRetryPolicy(p shared.RetryPolicy) {
	s.retry = p
}

func (s *SQLiteStore) initSchema() error {
	query := `
	PRAGMA busy_timeout = 5000;
	CREATE TABLE IF NOT EXISTS widget_sessions (
		session_key TEXT PRIMARY KEY,
		visitor_id TEXT NOT NULL,
		step TEXT NOT NULL,
		state_json TEXT NOT NULL,
		created_at INTEGER NOT NULL,
		updated_at INTEGER NOT NULL,
		completed_at INTEGER
	);
	CREATE INDEX IF NOT EXISTS idx_widget_sessions_updated ON widget_sessions(updated_at);

	CREATE TABLE IF NOT EXISTS leads (
		id TEXT PRIMARY KEY,
		submitted_at INTEGER NOT NULL,
		name TEXT NOT NULL,
		brokerage_aum REAL NOT NULL,
		advisory_aum REAL NOT NULL,
		aum REAL NOT NULL,
		revenue REAL NOT NULL,
		email TEXT NOT NULL,
		valuation REAL NOT NULL,
		tier INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_leads_submitted ON leads(submitted_at);
	`
	if _, err := s.db.Exec(query); err != nil {
		return fmt.Errorf("create schema: %w", err)
	}
	return nil
}

// Ping verifies database connectivity.
func (s *SQLiteStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	if err := s.db.Close(); err != nil {
		return fmt.Errorf("close database: %w", err)
	}
	return nil
}

// GetSession retrieves a widget session.
func (s *SQLiteStore) GetSession(ctx context.Context, key string) (*domain.Session, error) {
	row := s.db.QueryRowContext(ctx, `SELECT state_json FROM widget_sessions WHERE session_key = ?`, key)

	var stateJSON string
	err := row.Scan(&stateJSON)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("scan widget session: %w", err)
	}

	var session domain.Session
	if err := json.Unmarshal([]byte(stateJSON), &session); err != nil {
		return nil, fmt.Errorf("decode widget session %s: %w", key, err)
	}
	return &session, nil
}

// SaveSession creates or updates a widget session.
func (s *SQLiteStore) SaveSession(ctx context.Context, session *domain.Session) error {
	stateJSON, err := json.Marshal(session)
	if err != nil {
		return fmt.Errorf("encode widget session: %w", err)
	}

	var completedAt interface{}
	if session.CompletedAt != nil {
		completedAt = session.CompletedAt.Unix()
	}

	query := `
		INSERT INTO widget_sessions (session_key, visitor_id, step, state_json, created_at, updated_at, completed_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(session_key) DO UPDATE SET
			step = excluded.step,
			state_json = excluded.state_json,
			updated_at = excluded.updated_at,
			completed_at = COALESCE(excluded.completed_at, widget_sessions.completed_at)`

	return shared.RetryOnConflict(ctx, s.retry, "save_session", func() error {
		s.sessionMu.Lock()
		defer s.sessionMu.Unlock()

		_, err := s.db.ExecContext(ctx, query,
			session.Key, session.VisitorID, string(session.Step), string(stateJSON),
			session.CreatedAt.Unix(), session.UpdatedAt.Unix(), completedAt,
		)
		if err != nil {
			return fmt.Errorf("upsert widget session: %w", err)
		}
		return nil
	})
}

// DeleteSession removes a widget session, retrying on lock contention.
func (s *SQLiteStore) DeleteSession(ctx context.Context, key string) error {
	err := shared.RetryOnConflict(ctx, s.retry, "delete_session", func() error {
		s.sessionMu.Lock()
		defer s.sessionMu.Unlock()

		if _, err := s.db.ExecContext(ctx, `DELETE FROM widget_sessions WHERE session_key = ?`, key); err != nil {
			return fmt.Errorf("delete widget session: %w", err)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to delete widget session %s: %w", key, err)
	}
	return nil
}

// ExpiredSessions lists sessions idle longer than ttl.
func (s *SQLiteStore) ExpiredSessions(ctx context.Context, ttl time.Duration) ([]string, error) {
	threshold := time.Now().Add(-ttl).Unix()
	rows, err := s.db.QueryContext(ctx, `SELECT session_key FROM widget_sessions WHERE updated_at < ?`, threshold)
	if err != nil {
		return nil, fmt.Errorf("query expired sessions: %w", err)
	}
	defer func() {
		if closeErr := rows.Close(); closeErr != nil {
			slog.Warn("failed to close expired sessions rows", "error", closeErr)
		}
	}()

	var keys []string
	for rows.Next() {
		var key string
		if err := rows.Scan(&key); err != nil {
			return nil, fmt.Errorf("scan expired session row: %w", err)
		}
		keys = append(keys, key)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate expired sessions: %w", err)
	}
	return keys, nil
}

// Name identifies the store when used as a lead sink.
func (s *SQLiteStore) Name() string { return "sqlite" }

// Submit appends a lead. A record ID is only ever stored once.
func (s *SQLiteStore) Submit(ctx context.Context, rec domain.SubmissionRecord) error {
	query := `
		INSERT INTO leads (id, submitted_at, name, brokerage_aum, advisory_aum, aum, revenue, email, valuation, tier)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO NOTHING`

	return shared.RetryOnConflict(ctx, s.retry, "insert_lead", func() error {
		_, err := s.db.ExecContext(ctx, query,
			rec.ID, rec.Timestamp.Unix(), rec.Name,
			rec.BrokerageAUM, rec.AdvisoryAUM, rec.AUM,
			rec.Revenue, rec.Email, rec.Valuation, rec.Tier,
		)
		if err != nil {
			return fmt.Errorf("insert lead: %w", err)
		}
		return nil
	})
}

// GetLead retrieves a stored lead by ID. It returns nil, nil when absent.
func (s *SQLiteStore) GetLead(ctx context.Context, id string) (*domain.SubmissionRecord, error) {
	query := `
		SELECT id, submitted_at, name, brokerage_aum, advisory_aum, aum, revenue, email, valuation, tier
		FROM leads WHERE id = ?`

	var rec domain.SubmissionRecord
	var submittedAt int64
	err := s.db.QueryRowContext(ctx, query, id).Scan(
		&rec.ID, &submittedAt, &rec.Name,
		&rec.BrokerageAUM, &rec.AdvisoryAUM, &rec.AUM,
		&rec.Revenue, &rec.Email, &rec.Valuation, &rec.Tier,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("scan lead row: %w", err)
	}
	rec.Timestamp = time.Unix(submittedAt, 0).UTC()
	return &rec, nil
}

// CountLeads returns the number of stored leads.
func (s *SQLiteStore) CountLeads(ctx context.Context) (int64, error) {
	var n int64
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM leads`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count leads: %w", err)
	}
	return n, nil
}
