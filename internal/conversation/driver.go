// Package conversation drives the lead-capture chat as an explicit state machine.
package conversation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/ashureev/wealth-widget/internal/domain"
	"github.com/ashureev/wealth-widget/internal/valuation"
)

var (
	// ErrBusy is returned when input arrives while a reply is still being produced.
	ErrBusy = errors.New("assistant is typing")
	// ErrComplete is returned for input after the conversation has finished.
	ErrComplete = errors.New("conversation complete")
	// ErrNoSubmitter is reported when a conversation completes without a sink.
	ErrNoSubmitter = errors.New("no submission sink configured")
	// ErrSubmissionInterrupted is reported for a session found stuck in the
	// submitting step. Its lead is never sent again.
	ErrSubmissionInterrupted = errors.New("submission interrupted before completion was recorded")
)

const defaultSubmitTimeout = 5 * time.Second

// Submitter receives a completed lead. It is called at most once per session.
type Submitter interface {
	Submit(ctx context.Context, rec domain.SubmissionRecord) error
}

// SubmitterFunc adapts a function to Submitter.
type SubmitterFunc func(ctx context.Context, rec domain.SubmissionRecord) error

// Submit calls f.
func (f SubmitterFunc) Submit(ctx context.Context, rec domain.SubmissionRecord) error {
	return f(ctx, rec)
}

// Hooks let the host observe submission outcomes.
type Hooks struct {
	OnSubmitted    func(rec domain.SubmissionRecord)
	OnSubmitFailed func(rec domain.SubmissionRecord, err error)
}

// Options tune validation and submission behaviour.
type Options struct {
	// MinNameLength is the minimum name length in runes. Values below 1 mean 1.
	MinNameLength int
	// RequirePositive rejects zero amounts.
	RequirePositive bool
	// SubmitTimeout bounds the sink call.
	SubmitTimeout time.Duration
	// DiscloseOnFailure still shows the valuation when the sink fails.
	DiscloseOnFailure bool
	// Checkpoint, when set, persists the session in the submitting step before
	// the sink is called. A failing checkpoint aborts the turn and leaves the
	// session as it was.
	Checkpoint func(ctx context.Context, s *domain.Session) error
	Hooks      Hooks
	Now        func() time.Time
	Logger     *slog.Logger
}

// DefaultOptions returns the lenient production defaults.
func DefaultOptions() Options {
	return Options{
		MinNameLength:     1,
		SubmitTimeout:     defaultSubmitTimeout,
		DiscloseOnFailure: true,
	}
}

// StrictOptions returns defaults with the stricter field rules.
func StrictOptions() Options {
	opts := DefaultOptions()
	opts.MinNameLength = 2
	opts.RequirePositive = true
	return opts
}

func (o Options) minNameLength() int {
	if o.MinNameLength < 1 {
		return 1
	}
	return o.MinNameLength
}

// Reply describes the outcome of one user turn.
type Reply struct {
	Accepted bool                     `json:"accepted"`
	Step     domain.Step              `json:"step"`
	Messages []domain.Message         `json:"messages"`
	Prompt   Prompt                   `json:"prompt"`
	Result   *valuation.Result        `json:"result,omitempty"`
	Record   *domain.SubmissionRecord `json:"-"`
	// Disclosed is true when the valuation was shown to the visitor.
	Disclosed bool `json:"disclosed,omitempty"`
	// SubmitErr is the sink failure, if any, for the completing turn.
	SubmitErr error `json:"-"`
}

// Complete reports whether this reply finished the conversation.
func (r Reply) Complete() bool {
	return r.Step == domain.StepComplete
}

// Driver owns one session and advances it one user message at a time.
type Driver struct {
	typing    sync.Mutex // held for the whole turn
	mu        sync.RWMutex
	session   *domain.Session
	submitter Submitter
	opts      Options
	log       *slog.Logger
}

// NewDriver wraps an existing session. The driver takes ownership of it.
func NewDriver(session *domain.Session, submitter Submitter, opts Options) *Driver {
	if opts.SubmitTimeout <= 0 {
		opts.SubmitTimeout = defaultSubmitTimeout
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	if session.Step == "" {
		session.Step = domain.StepAwaitingName
	}
	return &Driver{
		session:   session,
		submitter: submitter,
		opts:      opts,
		log:       logger,
	}
}

// Start emits the greeting if the transcript is still empty.
func (d *Driver) Start() Reply {
	d.mu.Lock()
	defer d.mu.Unlock()

	start := len(d.session.Transcript)
	if start == 0 && d.session.Step == domain.StepAwaitingName {
		d.session.Append(domain.SpeakerAssistant, greetingText, d.opts.Now())
	}
	return d.replyLocked(start, false)
}

// Handle processes one user message.
//
// Invalid input leaves the step unchanged and produces a corrective message.
// The final answer triggers exactly one sink call; the conversation completes
// whatever its outcome.
func (d *Driver) Handle(ctx context.Context, text string) (Reply, error) {
	if !d.typing.TryLock() {
		return Reply{}, ErrBusy
	}
	defer d.typing.Unlock()

	d.mu.Lock()
	switch d.session.Step {
	case domain.StepComplete:
		d.mu.Unlock()
		return Reply{Step: domain.StepComplete}, ErrComplete
	case domain.StepSubmitting:
		if !d.stalledLocked() {
			d.mu.Unlock()
			return Reply{Step: domain.StepSubmitting}, ErrBusy
		}
		// A previous turn sent or tried to send the lead but its completion was
		// never saved. Finish without calling the sink again.
		result, record := d.assembleLocked(d.opts.Now())
		reply := d.finishLocked(len(d.session.Transcript), result, record, ErrSubmissionInterrupted)
		d.mu.Unlock()
		d.notify(record, ErrSubmissionInterrupted)
		return reply, nil
	}
	rule, ok := flow[d.session.Step]
	if !ok {
		step := d.session.Step
		d.mu.Unlock()
		return Reply{}, fmt.Errorf("unknown conversation step %q", step)
	}

	now := d.opts.Now()
	raw := strings.TrimSpace(text)
	start := len(d.session.Transcript)
	before := d.session.Clone()
	if raw != "" {
		d.session.Append(domain.SpeakerUser, raw, now)
	}

	answer, problem := rule.validate(raw, d.opts)
	if problem != "" {
		d.session.Append(domain.SpeakerAssistant, problem, now)
		reply := d.replyLocked(start, false)
		d.mu.Unlock()
		return reply, nil
	}

	d.session.SetAnswer(answer)
	d.session.Step = rule.next
	if rule.next != domain.StepSubmitting {
		d.session.Append(domain.SpeakerAssistant, PromptFor(d.session).Text, now)
		reply := d.replyLocked(start, true)
		d.mu.Unlock()
		return reply, nil
	}

	result, record := d.assembleLocked(now)
	d.session.SubmissionID = record.ID
	checkpoint := d.session.Clone()
	d.mu.Unlock()

	if d.opts.Checkpoint != nil {
		if err := d.opts.Checkpoint(ctx, checkpoint); err != nil {
			d.mu.Lock()
			d.session = before
			d.mu.Unlock()
			return Reply{Step: before.Step}, fmt.Errorf("checkpoint session %s: %w", before.Key, err)
		}
	}

	submitErr := d.submit(ctx, record)

	d.mu.Lock()
	reply := d.finishLocked(start, result, record, submitErr)
	d.mu.Unlock()

	d.notify(record, submitErr)
	return reply, nil
}

// stalledLocked reports whether a submitting session has outlived any sink call
// that could still be running for it.
func (d *Driver) stalledLocked() bool {
	return d.opts.Now().Sub(d.session.UpdatedAt) > 2*d.opts.SubmitTimeout
}

func (d *Driver) finishLocked(start int, result valuation.Result, record domain.SubmissionRecord, submitErr error) Reply {
	finished := d.opts.Now()
	d.session.Step = domain.StepComplete
	d.session.CompletedAt = &finished
	d.session.SubmissionID = record.ID
	disclosed := submitErr == nil || d.opts.DiscloseOnFailure
	text := submitFailure(record.Name)
	if disclosed {
		d.session.Valuation = result.Amount
		d.session.ValuationDisclosed = true
		text = disclosure(record.Name, result.Amount)
	}
	d.session.Append(domain.SpeakerAssistant, text, finished)

	reply := d.replyLocked(start, true)
	reply.Result = &result
	reply.Record = &record
	reply.SubmitErr = submitErr
	reply.Disclosed = disclosed
	return reply
}

func (d *Driver) notify(record domain.SubmissionRecord, submitErr error) {
	if submitErr != nil {
		d.log.Warn("Lead submission failed", "session_key", d.session.Key, "submission_id", record.ID, "error", submitErr)
		if d.opts.Hooks.OnSubmitFailed != nil {
			d.opts.Hooks.OnSubmitFailed(record, submitErr)
		}
		return
	}
	if d.opts.Hooks.OnSubmitted != nil {
		d.opts.Hooks.OnSubmitted(record)
	}
}

func (d *Driver) assembleLocked(now time.Time) (valuation.Result, domain.SubmissionRecord) {
	name, _ := d.session.Answer(domain.FieldName)
	email, _ := d.session.Answer(domain.FieldEmail)
	brokerage, _ := d.session.Answer(domain.FieldBrokerageAUM)
	advisory, _ := d.session.Answer(domain.FieldAdvisoryAUM)
	revenue, _ := d.session.Answer(domain.FieldRevenue)

	result := valuation.Calculate(brokerage.Value, advisory.Value)
	record := domain.NewSubmissionRecord(now, name.Raw, email.Raw,
		brokerage.Value, advisory.Value, revenue.Value, result.Amount, result.Tier.Level)
	if d.session.SubmissionID != "" {
		record.ID = d.session.SubmissionID
	}
	return result, record
}

func (d *Driver) submit(ctx context.Context, record domain.SubmissionRecord) (err error) {
	if d.submitter == nil {
		return ErrNoSubmitter
	}

	ctx, cancel := context.WithTimeout(ctx, d.opts.SubmitTimeout)
	defer cancel()

	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("submission sink panicked: %v", r)
		}
	}()

	if err := d.submitter.Submit(ctx, record); err != nil {
		return fmt.Errorf("submit lead %s: %w", record.ID, err)
	}
	return nil
}

func (d *Driver) replyLocked(start int, accepted bool) Reply {
	return Reply{
		Accepted: accepted,
		Step:     d.session.Step,
		Messages: append([]domain.Message(nil), d.session.Transcript[start:]...),
		Prompt:   PromptFor(d.session),
	}
}

// Step returns the current state.
func (d *Driver) Step() domain.Step {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.session.Step
}

// Prompt returns the text and placeholder for the current step.
func (d *Driver) Prompt() Prompt {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return PromptFor(d.session)
}

// Transcript returns a copy of the conversation so far.
func (d *Driver) Transcript() []domain.Message {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return append([]domain.Message(nil), d.session.Transcript...)
}

// Session returns a snapshot of the underlying session.
func (d *Driver) Session() *domain.Session {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.session.Clone()
}
