package sink

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/ashureev/wealth-widget/internal/domain"
	_ "github.com/lib/pq"
)

const postgresSchema = `
CREATE TABLE IF NOT EXISTS leads (
	id TEXT PRIMARY KEY,
	submitted_at TIMESTAMPTZ NOT NULL,
	name TEXT NOT NULL,
	brokerage_aum DOUBLE PRECISION NOT NULL,
	advisory_aum DOUBLE PRECISION NOT NULL,
	aum DOUBLE PRECISION NOT NULL,
	revenue DOUBLE PRECISION NOT NULL,
	email TEXT NOT NULL,
	valuation DOUBLE PRECISION NOT NULL,
	tier INTEGER NOT NULL
)`

const postgresInsert = `
INSERT INTO leads (id, submitted_at, name, brokerage_aum, advisory_aum, aum, revenue, email, valuation, tier)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
ON CONFLICT (id) DO NOTHING`

// Postgres appends leads to a PostgreSQL table.
type Postgres struct {
	db *sql.DB
}

// OpenPostgres connects with lib/pq and ensures the leads table exists.
func OpenPostgres(ctx context.Context, dsn string) (*Postgres, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}

	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(2)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}

	p := NewPostgres(db)
	if err := p.EnsureSchema(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return p, nil
}

// NewPostgres wraps an existing connection pool.
func NewPostgres(db *sql.DB) *Postgres {
	return &Postgres{db: db}
}

// EnsureSchema creates the leads table if needed.
func (p *Postgres) EnsureSchema(ctx context.Context) error {
	if _, err := p.db.ExecContext(ctx, postgresSchema); err != nil {
		return fmt.Errorf("create leads table: %w", err)
	}
	return nil
}

// Name implements Sink.
func (p *Postgres) Name() string { return "postgres" }

// Submit inserts the lead. Re-submitting the same record ID is a no-op.
func (p *Postgres) Submit(ctx context.Context, rec domain.SubmissionRecord) error {
	_, err := p.db.ExecContext(ctx, postgresInsert,
		rec.ID, rec.Timestamp, rec.Name,
		rec.BrokerageAUM, rec.AdvisoryAUM, rec.AUM,
		rec.Revenue, rec.Email, rec.Valuation, rec.Tier,
	)
	if err != nil {
		return fmt.Errorf("insert lead: %w", err)
	}
	return nil
}

// Ping verifies connectivity.
func (p *Postgres) Ping(ctx context.Context) error {
	return p.db.PingContext(ctx)
}

// Close closes the pool.
func (p *Postgres) Close() error {
	return p.db.Close()
}
