package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ashureev/wealth-widget/internal/conversation"
	"github.com/ashureev/wealth-widget/internal/domain"
	"github.com/ashureev/wealth-widget/internal/sink"
)

func TestRunCompletesConversation(t *testing.T) {
	var out, leads bytes.Buffer
	in := strings.NewReader("Jane\n200m\nabc\n100m\n5m\njane@x.com\n")

	err := run(context.Background(), in, &out, stdoutSink(&leads), conversation.DefaultOptions())
	require.NoError(t, err)

	transcript := out.String()
	assert.Contains(t, transcript, "Nice to meet you, Jane!")
	assert.Contains(t, transcript, "couldn't read that as an amount")
	assert.Contains(t, transcript, "$500,000,000")

	var rec domain.SubmissionRecord
	require.NoError(t, json.Unmarshal(leads.Bytes(), &rec))
	assert.Equal(t, "Jane", rec.Name)
	assert.Equal(t, "jane@x.com", rec.Email)
	assert.Equal(t, 300_000_000.0, rec.AUM)
	assert.Equal(t, 1, rec.Tier)
}

func TestRunStopsAtEndOfInput(t *testing.T) {
	var out bytes.Buffer
	called := false
	submitter := sink.Func{Label: "test", Fn: func(context.Context, domain.SubmissionRecord) error {
		called = true
		return nil
	}}

	err := run(context.Background(), strings.NewReader("Jane\n"), &out, submitter, conversation.DefaultOptions())
	require.NoError(t, err)
	assert.False(t, called)
}

func TestRunReportsSinkFailure(t *testing.T) {
	var out bytes.Buffer
	submitter := sink.Func{Label: "broken", Fn: func(context.Context, domain.SubmissionRecord) error {
		return errors.New("disk full")
	}}

	in := strings.NewReader("Jane\n200m\n100m\n5m\njane@x.com\n")
	err := run(context.Background(), in, &out, submitter, conversation.DefaultOptions())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "disk full")
}
