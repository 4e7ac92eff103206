// Package sink delivers completed leads to systems of record.
package sink

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/ashureev/wealth-widget/internal/domain"
	"github.com/ashureev/wealth-widget/internal/metrics"
)

// Sink accepts one lead and reports whether it was stored.
type Sink interface {
	Name() string
	Submit(ctx context.Context, rec domain.SubmissionRecord) error
}

// FanoutSink submits to a primary sink and a set of best-effort followers.
// Only the primary decides the outcome; follower failures are logged.
type FanoutSink struct {
	primary   Sink
	followers []Sink
}

// Fanout builds a FanoutSink.
func Fanout(primary Sink, followers ...Sink) *FanoutSink {
	return &FanoutSink{primary: primary, followers: followers}
}

// Name implements Sink.
func (f *FanoutSink) Name() string {
	return "fanout:" + f.primary.Name()
}

// Submit implements Sink. Followers run even if the primary fails so a CRM or
// mailer still sees the lead.
func (f *FanoutSink) Submit(ctx context.Context, rec domain.SubmissionRecord) error {
	primaryErr := f.primary.Submit(ctx, rec)

	var followerErrs []error
	for _, s := range f.followers {
		if err := s.Submit(ctx, rec); err != nil {
			followerErrs = append(followerErrs, fmt.Errorf("%s: %w", s.Name(), err))
		}
	}
	if len(followerErrs) > 0 {
		slog.Warn("Follower sinks failed", "submission_id", rec.ID, "count", len(followerErrs), "error", errors.Join(followerErrs...))
	}

	if primaryErr != nil {
		return fmt.Errorf("%s: %w", f.primary.Name(), primaryErr)
	}
	return nil
}

// instrumented records latency and outcome for a sink.
type instrumented struct {
	Sink
}

// Instrument wraps s with latency and outcome metrics and logs successful deliveries.
func Instrument(s Sink) Sink {
	return instrumented{Sink: s}
}

func (i instrumented) Submit(ctx context.Context, rec domain.SubmissionRecord) error {
	start := time.Now()
	err := i.Sink.Submit(ctx, rec)

	outcome := metrics.OutcomeSuccess
	if err != nil {
		outcome = metrics.OutcomeFailed
	}
	metrics.SinkDuration.WithLabelValues(i.Name(), outcome).Observe(time.Since(start).Seconds())

	// Failures are logged once by whoever consumes the error.
	if err != nil {
		return err
	}
	slog.Info("Lead submitted", "sink", i.Name(), "submission_id", rec.ID, "duration", time.Since(start))
	return nil
}

// Func adapts a function into a named Sink.
type Func struct {
	Label string
	Fn    func(ctx context.Context, rec domain.SubmissionRecord) error
}

// Name implements Sink.
func (f Func) Name() string { return f.Label }

// Submit implements Sink.
func (f Func) Submit(ctx context.Context, rec domain.SubmissionRecord) error {
	return f.Fn(ctx, rec)
}
