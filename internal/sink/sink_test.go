package sink

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ashureev/wealth-widget/internal/domain"
)

func testRecord() domain.SubmissionRecord {
	rec := domain.NewSubmissionRecord(
		time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
		"Jane", "jane@x.com",
		200_000_000, 100_000_000, 5_000_000,
		500_000_000, 1,
	)
	return rec
}

type countingSink struct {
	name  string
	err   error
	calls int
}

func (c *countingSink) Name() string { return c.name }

func (c *countingSink) Submit(context.Context, domain.SubmissionRecord) error {
	c.calls++
	return c.err
}

func TestFanoutPrimaryDecidesOutcome(t *testing.T) {
	primary := &countingSink{name: "primary"}
	follower := &countingSink{name: "crm", err: errors.New("crm down")}

	err := Fanout(primary, follower).Submit(context.Background(), testRecord())

	require.NoError(t, err)
	assert.Equal(t, 1, primary.calls)
	assert.Equal(t, 1, follower.calls)
}

func TestFanoutFollowersRunWhenPrimaryFails(t *testing.T) {
	primaryErr := errors.New("disk full")
	primary := &countingSink{name: "primary", err: primaryErr}
	follower := &countingSink{name: "crm"}

	f := Fanout(primary, follower)
	err := f.Submit(context.Background(), testRecord())

	assert.ErrorIs(t, err, primaryErr)
	assert.Contains(t, err.Error(), "primary")
	assert.Equal(t, 1, follower.calls)
	assert.Equal(t, "fanout:primary", f.Name())
}

func TestInstrumentPassesThrough(t *testing.T) {
	inner := &countingSink{name: "inner", err: errors.New("nope")}
	s := Instrument(inner)

	assert.Equal(t, "inner", s.Name())
	assert.EqualError(t, s.Submit(context.Background(), testRecord()), "nope")
	assert.Equal(t, 1, inner.calls)
}

func captureLogs(t *testing.T) *bytes.Buffer {
	t.Helper()
	var buf bytes.Buffer
	prev := slog.Default()
	slog.SetDefault(slog.New(slog.NewJSONHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug})))
	t.Cleanup(func() { slog.SetDefault(prev) })
	return &buf
}

func TestSinkFailureLoggedOnce(t *testing.T) {
	logs := captureLogs(t)
	primary := Instrument(&countingSink{name: "primary", err: errors.New("disk full")})
	follower := Instrument(&countingSink{name: "crm", err: errors.New("crm down")})

	err := Fanout(primary, follower).Submit(context.Background(), testRecord())
	require.Error(t, err)

	lines := strings.Split(strings.TrimSpace(logs.String()), "\n")
	require.Len(t, lines, 1, "only the follower failure is logged; the caller owns the primary error")
	assert.Contains(t, lines[0], "crm down")
	assert.NotContains(t, logs.String(), "disk full")
}

func TestFuncSink(t *testing.T) {
	var got domain.SubmissionRecord
	s := Func{Label: "capture", Fn: func(_ context.Context, rec domain.SubmissionRecord) error {
		got = rec
		return nil
	}}

	rec := testRecord()
	require.NoError(t, s.Submit(context.Background(), rec))
	assert.Equal(t, rec, got)
	assert.Equal(t, "capture", s.Name())
}
