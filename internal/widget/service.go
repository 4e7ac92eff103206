// Package widget hosts conversation sessions for the embeddable chat widget.
package widget

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ashureev/wealth-widget/internal/conversation"
	"github.com/ashureev/wealth-widget/internal/domain"
	"github.com/ashureev/wealth-widget/internal/metrics"
	"github.com/ashureev/wealth-widget/internal/store"
	"github.com/ashureev/wealth-widget/internal/valuation"
)

// ErrNoSession is returned when a visitor addresses a session that was never started or has expired.
var ErrNoSession = errors.New("no active widget session")

// View is the client-facing snapshot of a session.
type View struct {
	SessionID          string           `json:"session_id"`
	Step               domain.Step      `json:"step"`
	Complete           bool             `json:"complete"`
	Transcript         []domain.Message `json:"transcript"`
	Prompt             string           `json:"prompt"`
	Placeholder        string           `json:"placeholder"`
	Valuation          float64          `json:"valuation,omitempty"`
	ValuationFormatted string           `json:"valuation_formatted,omitempty"`
}

// Service loads sessions from the store, runs one conversation turn and saves the result.
type Service struct {
	store     store.SessionStore
	submitter conversation.Submitter
	opts      conversation.Options
	log       ConversationLogger
	locks     sync.Map // session key -> *sessionLatch
}

// sessionLatch serializes turns for one session. A retired latch has already
// been removed from Service.locks and must not be used again.
type sessionLatch struct {
	mu       sync.Mutex
	retired  bool // guarded by mu
	lastUsed atomic.Int64
}

// NewService creates a widget service. A nil logger disables transcript logging.
func NewService(sessions store.SessionStore, submitter conversation.Submitter, opts conversation.Options, convLog ConversationLogger) *Service {
	if convLog == nil {
		convLog = noopConversationLogger{}
	}
	opts.Hooks = observeSubmissions(opts.Hooks)
	return &Service{
		store:     sessions,
		submitter: submitter,
		opts:      opts,
		log:       convLog,
	}
}

func observeSubmissions(next conversation.Hooks) conversation.Hooks {
	return conversation.Hooks{
		OnSubmitted: func(rec domain.SubmissionRecord) {
			metrics.Submissions.WithLabelValues(metrics.OutcomeSuccess).Inc()
			metrics.ValuationAmount.Observe(rec.Valuation)
			if next.OnSubmitted != nil {
				next.OnSubmitted(rec)
			}
		},
		OnSubmitFailed: func(rec domain.SubmissionRecord, err error) {
			metrics.Submissions.WithLabelValues(metrics.OutcomeFailed).Inc()
			metrics.ValuationAmount.Observe(rec.Valuation)
			if next.OnSubmitFailed != nil {
				next.OnSubmitFailed(rec, err)
			}
		},
	}
}

// Start returns the session for visitor/tab, creating it with a greeting if needed.
func (s *Service) Start(ctx context.Context, visitorID, tabID string) (View, error) {
	key := domain.SessionKey(visitorID, tabID)
	latch, err := s.lock(key)
	if err != nil {
		return View{}, err
	}
	defer latch.mu.Unlock()

	session, err := s.store.GetSession(ctx, key)
	if err != nil {
		return View{}, fmt.Errorf("load session %s: %w", key, err)
	}
	if session != nil {
		return s.view(session), nil
	}

	session = domain.NewSession(visitorID, tabID, s.now())
	driver := conversation.NewDriver(session, s.submitter, s.opts)
	reply := driver.Start()
	session = driver.Session()
	if err := s.store.SaveSession(ctx, session); err != nil {
		return View{}, fmt.Errorf("save session %s: %w", key, err)
	}

	metrics.SessionsStarted.Inc()
	slog.Info("Widget session started", "session_key", key)
	s.logAssistant(session, reply.Messages, "session_start", nil)
	return s.view(session), nil
}

// View returns the current state of an existing session.
func (s *Service) View(ctx context.Context, visitorID, tabID string) (View, error) {
	session, err := s.load(ctx, domain.SessionKey(visitorID, tabID))
	if err != nil {
		return View{}, err
	}
	return s.view(session), nil
}

// Send feeds one visitor message into the session.
// It returns conversation.ErrBusy while another turn for the same session is in flight.
//
// The turn runs detached from ctx cancellation so a visitor who disconnects
// mid-submission does not lose the lead; the sink call stays bounded by the
// submit timeout.
func (s *Service) Send(ctx context.Context, visitorID, tabID, text string) (conversation.Reply, error) {
	key := domain.SessionKey(visitorID, tabID)
	latch, err := s.lock(key)
	if err != nil {
		return conversation.Reply{}, err
	}
	defer latch.mu.Unlock()

	session, err := s.load(ctx, key)
	if err != nil {
		return conversation.Reply{}, err
	}

	turnCtx := context.WithoutCancel(ctx)
	opts := s.opts
	opts.Checkpoint = func(ctx context.Context, snapshot *domain.Session) error {
		return s.store.SaveSession(ctx, snapshot)
	}

	step := session.Step
	driver := conversation.NewDriver(session, s.submitter, opts)
	reply, err := driver.Handle(turnCtx, text)
	if err != nil {
		return reply, err
	}

	outcome := metrics.OutcomeRejected
	if reply.Accepted {
		outcome = metrics.OutcomeAccepted
	}
	metrics.MessagesHandled.WithLabelValues(string(step), outcome).Inc()

	updated := driver.Session()
	if err := s.store.SaveSession(turnCtx, updated); err != nil {
		return reply, fmt.Errorf("save session %s: %w", key, err)
	}
	if reply.Complete() {
		s.retire(key, latch)
	}

	s.logTurn(updated, step, reply)
	return reply, nil
}

// Close discards a session.
func (s *Service) Close(ctx context.Context, visitorID, tabID string) error {
	key := domain.SessionKey(visitorID, tabID)
	if err := s.store.DeleteSession(ctx, key); err != nil {
		return fmt.Errorf("delete session %s: %w", key, err)
	}
	s.Forget(key)
	slog.Info("Widget session closed", "session_key", key)
	return nil
}

// Shutdown flushes the transcript logger.
func (s *Service) Shutdown() {
	if err := s.log.Close(); err != nil {
		slog.Warn("failed to close conversation logger", "error", err)
	}
}

func (s *Service) lock(key string) (*sessionLatch, error) {
	for {
		fresh := &sessionLatch{}
		fresh.lastUsed.Store(s.now().UnixNano())
		v, _ := s.locks.LoadOrStore(key, fresh)
		latch := v.(*sessionLatch)
		if !latch.mu.TryLock() {
			slog.Debug("Widget turn already in progress", "session_key", key)
			return nil, conversation.ErrBusy
		}
		if latch.retired {
			latch.mu.Unlock()
			continue
		}
		latch.lastUsed.Store(s.now().UnixNano())
		return latch, nil
	}
}

// retire removes a latch the caller holds from the map.
func (s *Service) retire(key string, latch *sessionLatch) {
	latch.retired = true
	s.locks.CompareAndDelete(key, latch)
}

// Forget drops the per-session latch once a session is gone. A latch held by
// an in-flight turn is left for SweepIdle.
func (s *Service) Forget(key string) {
	v, ok := s.locks.Load(key)
	if !ok {
		return
	}
	latch := v.(*sessionLatch)
	if latch.mu.TryLock() {
		s.retire(key, latch)
		latch.mu.Unlock()
	}
}

// SweepIdle releases latches unused for longer than idle and reports how many
// were dropped. Stores that expire sessions natively never call Forget, so
// this keeps the latch map bounded.
func (s *Service) SweepIdle(idle time.Duration) int {
	cutoff := s.now().Add(-idle).UnixNano()
	released := 0
	s.locks.Range(func(k, v any) bool {
		latch := v.(*sessionLatch)
		if latch.lastUsed.Load() >= cutoff || !latch.mu.TryLock() {
			return true
		}
		s.retire(k.(string), latch)
		latch.mu.Unlock()
		released++
		return true
	})
	return released
}

func (s *Service) load(ctx context.Context, key string) (*domain.Session, error) {
	session, err := s.store.GetSession(ctx, key)
	if err != nil {
		return nil, fmt.Errorf("load session %s: %w", key, err)
	}
	if session == nil {
		return nil, ErrNoSession
	}
	return session, nil
}

func (s *Service) now() time.Time {
	if s.opts.Now != nil {
		return s.opts.Now()
	}
	return time.Now()
}

func (s *Service) view(session *domain.Session) View {
	prompt := conversation.PromptFor(session)
	v := View{
		SessionID:   session.TabID,
		Step:        session.Step,
		Complete:    session.IsComplete(),
		Transcript:  session.Transcript,
		Prompt:      prompt.Text,
		Placeholder: prompt.Placeholder,
	}
	if v.Complete && session.ValuationDisclosed {
		v.Valuation = session.Valuation
		v.ValuationFormatted = valuation.FormatUSD(session.Valuation)
	}
	return v
}

func (s *Service) logTurn(session *domain.Session, step domain.Step, reply conversation.Reply) {
	for _, msg := range reply.Messages {
		if msg.Speaker != domain.SpeakerUser {
			continue
		}
		s.log.Log(ConversationLogEvent{
			Timestamp:  msg.At.UTC().Format(time.RFC3339Nano),
			VisitorID:  session.VisitorID,
			SessionID:  session.TabID,
			Channel:    "widget",
			Direction:  "outbound",
			EventType:  "visitor_message",
			Step:       string(step),
			ContentRaw: msg.Text,
			Content:    cleanForReadability(msg.Text),
			Meta:       map[string]any{"accepted": reply.Accepted},
		})
	}

	var meta map[string]any
	if reply.Record != nil {
		meta = map[string]any{
			"submission_id": reply.Record.ID,
			"valuation":     reply.Record.Valuation,
			"tier":          reply.Record.Tier,
			"submit_failed": reply.SubmitErr != nil,
		}
	}
	s.logAssistant(session, reply.Messages, "assistant_message", meta)
}

func (s *Service) logAssistant(session *domain.Session, msgs []domain.Message, eventType string, meta map[string]any) {
	for _, msg := range msgs {
		if msg.Speaker != domain.SpeakerAssistant {
			continue
		}
		s.log.Log(ConversationLogEvent{
			Timestamp:  msg.At.UTC().Format(time.RFC3339Nano),
			VisitorID:  session.VisitorID,
			SessionID:  session.TabID,
			Channel:    "widget",
			Direction:  "inbound",
			EventType:  eventType,
			Step:       string(session.Step),
			ContentRaw: msg.Text,
			Content:    cleanForReadability(msg.Text),
			Meta:       meta,
		})
	}
}
