package shared

import (
	"context"
	"log/slog"
	"time"
)

// RetryPolicy bounds retries of SQLite writes that hit lock contention.
type RetryPolicy struct {
	MaxRetries int
	BaseDelay  time.Duration
}

// DefaultRetryPolicy retries three times starting at 100ms.
var DefaultRetryPolicy = RetryPolicy{MaxRetries: 3, BaseDelay: 100 * time.Millisecond}

// RetryOnConflict runs op, retrying with exponential backoff while it fails
// with a SQLite busy or locked error. Other errors are returned immediately.
func RetryOnConflict(ctx context.Context, p RetryPolicy, what string, op func() error) error {
	if p.MaxRetries <= 0 {
		p.MaxRetries = 1
	}

	var err error
	for i := 0; i < p.MaxRetries; i++ {
		err = op()
		if err == nil || !IsSQLiteConflictError(err) {
			return err
		}
		if i == p.MaxRetries-1 {
			break
		}

		delay := p.BaseDelay * time.Duration(1<<i) // 100ms, 200ms, 400ms
		slog.Debug("Database locked, retrying", "op", what, "attempt", i+1, "delay", delay)
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return err
}
