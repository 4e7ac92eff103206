package widget

import (
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"
)

func TestConversationLoggerWritesPerSessionNDJSON(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	logger, err := NewConversationLogger(ConversationLogConfig{
		Enabled:   true,
		Dir:       dir,
		QueueSize: 16,
	}, slog.Default())
	if err != nil {
		t.Fatalf("NewConversationLogger failed: %v", err)
	}
	defer func() { _ = logger.Close() }()

	event := ConversationLogEvent{
		VisitorID:  "anon_1",
		SessionID:  "tab-1",
		Channel:    "widget",
		Direction:  "outbound",
		EventType:  "visitor_message",
		ContentRaw: "Jane",
	}
	logger.Log(event)

	path := filepath.Join(dir, "anon_1", "tab-1.ndjson")
	line := waitForLogLine(t, path)
	var got ConversationLogEvent
	if err := json.Unmarshal([]byte(line), &got); err != nil {
		t.Fatalf("failed to unmarshal log line: %v", err)
	}
	if got.ContentRaw != "Jane" {
		t.Fatalf("unexpected ContentRaw: %q", got.ContentRaw)
	}
	if got.Content == "" {
		t.Fatal("expected cleaned content to be populated")
	}
	if got.Timestamp == "" {
		t.Fatal("expected timestamp to be filled in")
	}
}

func TestConversationLoggerGlobalFile(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	global := filepath.Join(dir, "all", "conversations.ndjson")
	logger, err := NewConversationLogger(ConversationLogConfig{
		Enabled:       true,
		Dir:           filepath.Join(dir, "sessions"),
		GlobalEnabled: true,
		GlobalPath:    global,
		QueueSize:     16,
	}, nil)
	if err != nil {
		t.Fatalf("NewConversationLogger failed: %v", err)
	}

	logger.Log(ConversationLogEvent{VisitorID: "anon_1", SessionID: "a", ContentRaw: "one"})
	logger.Log(ConversationLogEvent{VisitorID: "anon_2", SessionID: "b", ContentRaw: "two"})
	if err := logger.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	data, err := os.ReadFile(global)
	if err != nil {
		t.Fatalf("failed to read global log: %v", err)
	}
	if lines := strings.Split(strings.TrimSpace(string(data)), "\n"); len(lines) != 2 {
		t.Fatalf("expected 2 global lines, got %d", len(lines))
	}

	// Logging after Close is dropped silently.
	logger.Log(ConversationLogEvent{VisitorID: "anon_1", SessionID: "a", ContentRaw: "late"})
}

func TestConversationLoggerLogRacingClose(t *testing.T) {
	t.Parallel()

	logger, err := NewConversationLogger(ConversationLogConfig{
		Enabled:   true,
		Dir:       t.TempDir(),
		QueueSize: 4,
	}, nil)
	if err != nil {
		t.Fatalf("NewConversationLogger failed: %v", err)
	}

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				logger.Log(ConversationLogEvent{VisitorID: "anon_1", SessionID: "a", ContentRaw: "hi"})
			}
		}()
	}
	if err := logger.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	wg.Wait()

	fl := logger.(*fileConversationLogger)
	before := fl.dropped
	logger.Log(ConversationLogEvent{VisitorID: "anon_1", SessionID: "a", ContentRaw: "late"})
	if fl.dropped != before+1 {
		t.Fatalf("expected log after Close to count as dropped, got %d -> %d", before, fl.dropped)
	}
}

func TestConversationLoggerDisabledIsNoop(t *testing.T) {
	t.Parallel()

	logger, err := NewConversationLogger(ConversationLogConfig{Enabled: false, Dir: "/nonexistent"}, nil)
	if err != nil {
		t.Fatalf("NewConversationLogger failed: %v", err)
	}
	if _, ok := logger.(noopConversationLogger); !ok {
		t.Fatalf("expected noop logger, got %T", logger)
	}
	logger.Log(ConversationLogEvent{ContentRaw: "ignored"})
	if err := logger.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
}

func TestCleanForReadabilityStripsANSI(t *testing.T) {
	t.Parallel()

	raw := "\x1b[31merror\x1b[0m plain"
	clean := cleanForReadability(raw)
	if strings.Contains(clean, "\x1b[31m") {
		t.Fatalf("expected ANSI sequence to be stripped: %q", clean)
	}
	if !strings.Contains(clean, "error plain") {
		t.Fatalf("expected readable text to remain: %q", clean)
	}
	if got := cleanForReadability("  two\x00  spaces "); got != "two spaces" {
		t.Fatalf("unexpected cleaned text: %q", got)
	}
}

func TestSafePathPart(t *testing.T) {
	t.Parallel()

	cases := map[string]string{
		"tab-1":       "tab-1",
		"../../etc":   "______etc",
		"a:b":         "a_b",
		"":            "unknown",
		"anon_abc123": "anon_abc123",
	}
	for in, want := range cases {
		if got := safePathPart(in); got != want {
			t.Errorf("safePathPart(%q) = %q, want %q", in, got, want)
		}
	}
}

func waitForLogLine(t *testing.T, path string) string {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		data, err := os.ReadFile(path)
		if err == nil && len(data) > 0 {
			lines := strings.Split(strings.TrimSpace(string(data)), "\n")
			if len(lines) > 0 {
				return lines[len(lines)-1]
			}
		}
		time.Sleep(20 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for log file %s", path)
	return ""
}
