package widget

import (
	"context"
	"log/slog"
	"time"

	"github.com/ashureev/wealth-widget/internal/store"
)

const defaultTTLSweepInterval = 5 * time.Minute

// CleanupCallback is called with the key of each session removed by the TTL worker.
type CleanupCallback func(sessionKey string)

// IdleSweeper drops in-process state that has gone unused for longer than idle.
type IdleSweeper interface {
	SweepIdle(idle time.Duration) int
}

// StartTTLWorker runs a background goroutine that periodically deletes idle sessions
// and then sweeps idle in-process state. Stores with native expiry report no
// expired keys, so for them only the idle sweep does any work.
func StartTTLWorker(ctx context.Context, sessions store.SessionStore, idle IdleSweeper, ttl, interval time.Duration, onCleanup CleanupCallback) {
	if interval <= 0 {
		interval = defaultTTLSweepInterval
	}
	ticker := time.NewTicker(interval)
	go func() {
		defer ticker.Stop()
		slog.Info("TTL worker started", "interval", interval, "ttl", ttl)

		for {
			select {
			case <-ticker.C:
				cleanupExpiredSessions(ctx, sessions, ttl, onCleanup)
				if idle != nil {
					if n := idle.SweepIdle(ttl); n > 0 {
						slog.Debug("TTL worker released idle session latches", "count", n)
					}
				}
			case <-ctx.Done():
				slog.Info("TTL worker shutting down", "reason", ctx.Err())
				return
			}
		}
	}()
}

func cleanupExpiredSessions(ctx context.Context, sessions store.SessionStore, ttl time.Duration, onCleanup CleanupCallback) int {
	expired, err := sessions.ExpiredSessions(ctx, ttl)
	if err != nil {
		slog.Error("TTL worker failed to list expired sessions", "error", err)
		return 0
	}
	if len(expired) == 0 {
		return 0
	}

	slog.Info("TTL worker found expired sessions", "count", len(expired))

	cleaned := 0
	for _, key := range expired {
		if err := sessions.DeleteSession(ctx, key); err != nil {
			if ctx.Err() != nil {
				slog.Debug("TTL worker: context canceled, cleanup may be incomplete", "session_key", key, "error", err)
				return cleaned
			}
			slog.Warn("TTL worker failed to delete session", "error", err, "session_key", key)
			continue
		}
		if onCleanup != nil {
			onCleanup(key)
		}
		cleaned++
	}

	slog.Info("TTL worker cleanup completed", "cleaned", cleaned)
	return cleaned
}
