package widget

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"sync"
	"time"
)

// ConversationLogEvent is one line in a transcript log.
type ConversationLogEvent struct {
	Timestamp  string         `json:"ts"`
	VisitorID  string         `json:"visitor_id"`
	SessionID  string         `json:"session_id"`
	Channel    string         `json:"channel"`
	Direction  string         `json:"direction"`
	EventType  string         `json:"event_type"`
	Step       string         `json:"step,omitempty"`
	ContentRaw string         `json:"content_raw"`
	Content    string         `json:"content"`
	Meta       map[string]any `json:"meta,omitempty"`
}

// ConversationLogger records widget transcripts for audit.
type ConversationLogger interface {
	Log(event ConversationLogEvent)
	Close() error
}

// ConversationLogConfig controls where transcripts are written.
type ConversationLogConfig struct {
	Enabled       bool
	Dir           string
	GlobalEnabled bool
	GlobalPath    string
	QueueSize     int
}

type noopConversationLogger struct{}

func (noopConversationLogger) Log(ConversationLogEvent) {}
func (noopConversationLogger) Close() error             { return nil }

// fileConversationLogger writes per-session NDJSON files from a single goroutine.
type fileConversationLogger struct {
	dir       string
	global    *os.File
	queue     chan ConversationLogEvent
	done      chan struct{}
	closeOnce sync.Once
	mu        sync.RWMutex // guards closed and sends on queue
	closed    bool
	logger    *slog.Logger
	dropped   int64
	droppedMu sync.Mutex
}

// NewConversationLogger returns a logger writing dir/<visitor>/<session>.ndjson,
// plus an optional combined file. A disabled config yields a no-op logger.
func NewConversationLogger(cfg ConversationLogConfig, logger *slog.Logger) (ConversationLogger, error) {
	if !cfg.Enabled {
		return noopConversationLogger{}, nil
	}
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 1000
	}
	if err := os.MkdirAll(cfg.Dir, 0o750); err != nil {
		return nil, fmt.Errorf("create conversation log dir: %w", err)
	}

	l := &fileConversationLogger{
		dir:    cfg.Dir,
		queue:  make(chan ConversationLogEvent, cfg.QueueSize),
		done:   make(chan struct{}),
		logger: logger,
	}

	if cfg.GlobalEnabled && cfg.GlobalPath != "" {
		if err := os.MkdirAll(filepath.Dir(cfg.GlobalPath), 0o750); err != nil {
			return nil, fmt.Errorf("create global conversation log dir: %w", err)
		}
		f, err := os.OpenFile(cfg.GlobalPath, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o640)
		if err != nil {
			return nil, fmt.Errorf("open global conversation log: %w", err)
		}
		l.global = f
	}

	go l.run()
	return l, nil
}

// Log enqueues an event. Events are dropped when the queue is full.
func (l *fileConversationLogger) Log(event ConversationLogEvent) {
	if event.Timestamp == "" {
		event.Timestamp = time.Now().UTC().Format(time.RFC3339Nano)
	}
	if event.Content == "" {
		event.Content = cleanForReadability(event.ContentRaw)
	}

	l.mu.RLock()
	defer l.mu.RUnlock()
	if l.closed {
		l.countDrop()
		return
	}

	select {
	case l.queue <- event:
	default:
		l.countDrop()
	}
}

func (l *fileConversationLogger) countDrop() {
	l.droppedMu.Lock()
	l.dropped++
	n := l.dropped
	l.droppedMu.Unlock()
	if n == 1 || n%100 == 0 {
		l.logger.Warn("Conversation log queue full, dropping events", "dropped", n)
	}
}

// Close drains the queue and closes open files.
func (l *fileConversationLogger) Close() error {
	var err error
	l.closeOnce.Do(func() {
		l.mu.Lock()
		l.closed = true
		close(l.queue)
		l.mu.Unlock()
		<-l.done
		if l.global != nil {
			err = l.global.Close()
		}
	})
	return err
}

func (l *fileConversationLogger) run() {
	defer close(l.done)
	for event := range l.queue {
		line, err := json.Marshal(event)
		if err != nil {
			l.logger.Warn("failed to marshal conversation log event", "error", err)
			continue
		}
		line = append(line, '\n')

		if err := l.appendSession(event, line); err != nil {
			l.logger.Warn("failed to write conversation log", "error", err, "visitor_id", event.VisitorID, "session_id", event.SessionID)
		}
		if l.global != nil {
			if _, err := l.global.Write(line); err != nil {
				l.logger.Warn("failed to write global conversation log", "error", err)
			}
		}
	}
}

func (l *fileConversationLogger) appendSession(event ConversationLogEvent, line []byte) error {
	dir := filepath.Join(l.dir, safePathPart(event.VisitorID))
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return err
	}
	path := filepath.Join(dir, safePathPart(event.SessionID)+".ndjson")
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o640)
	if err != nil {
		return err
	}
	if _, err := f.Write(line); err != nil {
		_ = f.Close()
		return err
	}
	return f.Close()
}

var unsafePathChars = regexp.MustCompile(`[^A-Za-z0-9_-]`)

func safePathPart(s string) string {
	s = unsafePathChars.ReplaceAllString(s, "_")
	if s == "" {
		return "unknown"
	}
	return s
}

var (
	ansiPattern       = regexp.MustCompile(`\x1b\[[0-9;?]*[ -/]*[@-~]|\x1b\][^\x07\x1b]*(\x07|\x1b\\)`)
	whitespacePattern = regexp.MustCompile(`[ \t]+`)
)

// cleanForReadability strips escape sequences and control characters from visitor text.
func cleanForReadability(s string) string {
	s = ansiPattern.ReplaceAllString(s, "")
	s = strings.Map(func(r rune) rune {
		if r == '\n' || r == '\t' {
			return r
		}
		if r < 0x20 || r == 0x7f {
			return -1
		}
		return r
	}, s)
	s = whitespacePattern.ReplaceAllString(s, " ")
	return strings.TrimSpace(s)
}
