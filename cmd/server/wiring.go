package main

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/ashureev/wealth-widget/internal/api"
	"github.com/ashureev/wealth-widget/internal/config"
	"github.com/ashureev/wealth-widget/internal/sink"
	"github.com/ashureev/wealth-widget/internal/store"
)

// dependencies holds the storage backends selected by configuration.
type dependencies struct {
	sessions     store.SessionStore
	sink         sink.Sink
	healthChecks map[string]api.Pinger
	closers      []func() error
}

// Close releases every opened backend in reverse order.
func (d *dependencies) Close() {
	for i := len(d.closers) - 1; i >= 0; i-- {
		if err := d.closers[i](); err != nil {
			slog.Error("Failed to close dependency", "error", err)
		}
	}
}

func openDependencies(ctx context.Context, cfg *config.Config) (*dependencies, error) {
	deps := &dependencies{healthChecks: make(map[string]api.Pinger)}
	ok := false
	defer func() {
		if !ok {
			deps.Close()
		}
	}()

	var sqlite *store.SQLiteStore
	if cfg.UsesSQLite() {
		s, err := store.NewSQLite(cfg.DBPath)
		if err != nil {
			return nil, fmt.Errorf("open sqlite: %w", err)
		}
		deps.closers = append(deps.closers, s.Close)
		if err := s.Ping(ctx); err != nil {
			return nil, fmt.Errorf("sqlite health check: %w", err)
		}
		slog.Info("Database connected", "path", cfg.DBPath)
		sqlite = s
	}

	switch cfg.SessionStore {
	case config.StoreSQLite:
		deps.sessions = sqlite
	case config.StoreRedis:
		r, err := store.NewRedis(ctx, store.RedisConfig{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		}, cfg.SessionTTL)
		if err != nil {
			return nil, fmt.Errorf("open redis: %w", err)
		}
		deps.closers = append(deps.closers, r.Close)
		deps.sessions = r
		slog.Info("Redis session store connected", "addr", cfg.Redis.Addr)
	case config.StoreMemory:
		deps.sessions = store.NewMemory()
		slog.Warn("Using in-memory session store; sessions are lost on restart")
	default:
		return nil, fmt.Errorf("unknown session store %q", cfg.SessionStore)
	}
	deps.healthChecks["session_store"] = deps.sessions

	primary, err := openPrimarySink(ctx, cfg, sqlite, deps)
	if err != nil {
		return nil, err
	}

	followers, err := openFollowers(ctx, cfg)
	if err != nil {
		return nil, err
	}

	if len(followers) == 0 {
		deps.sink = sink.Instrument(primary)
	} else {
		deps.sink = sink.Fanout(sink.Instrument(primary), followers...)
	}

	ok = true
	return deps, nil
}

func openPrimarySink(ctx context.Context, cfg *config.Config, sqlite *store.SQLiteStore, deps *dependencies) (sink.Sink, error) {
	switch cfg.Sink.Primary {
	case config.SinkSQLite:
		return sqlite, nil
	case config.SinkPostgres:
		pg, err := sink.OpenPostgres(ctx, cfg.Sink.PostgresDSN)
		if err != nil {
			return nil, fmt.Errorf("open postgres sink: %w", err)
		}
		deps.closers = append(deps.closers, pg.Close)
		deps.healthChecks["postgres"] = pg
		slog.Info("Postgres sink connected")
		return pg, nil
	case config.SinkSheets:
		sh, err := sink.NewSheets(ctx, sink.SheetsConfig{
			SpreadsheetID:       cfg.Sink.Sheets.SpreadsheetID,
			Range:               cfg.Sink.Sheets.Range,
			CredentialsFile:     cfg.Sink.Sheets.CredentialsFile,
			ServiceAccountEmail: cfg.Sink.Sheets.ServiceAccountEmail,
			PrivateKey:          cfg.Sink.Sheets.PrivateKey,
		})
		if err != nil {
			return nil, fmt.Errorf("open sheets sink: %w", err)
		}
		slog.Info("Google Sheets sink ready", "range", cfg.Sink.Sheets.Range)
		return sh, nil
	default:
		return nil, fmt.Errorf("unknown sink %q", cfg.Sink.Primary)
	}
}

func openFollowers(ctx context.Context, cfg *config.Config) ([]sink.Sink, error) {
	var followers []sink.Sink

	if cfg.Sink.Webhook.URL != "" {
		followers = append(followers, sink.Instrument(
			sink.NewWebhook(cfg.Sink.Webhook.URL, cfg.Sink.Webhook.Token, cfg.Conversation.SubmitTimeout)))
		slog.Info("CRM webhook follower enabled")
	}

	if cfg.Sink.Email.Enabled {
		client, err := sink.NewSESClient(ctx, cfg.Sink.Email.Region)
		if err != nil {
			return nil, fmt.Errorf("open ses client: %w", err)
		}
		followers = append(followers, sink.Instrument(sink.NewEmail(client, cfg.Sink.Email.From)))
		slog.Info("Breakdown email follower enabled", "region", cfg.Sink.Email.Region)
	}

	return followers, nil
}
