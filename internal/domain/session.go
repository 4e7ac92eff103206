// Package domain contains core domain types for the valuation widget.
package domain

import (
	"time"
)

// Step is a state of the lead-capture conversation.
type Step string

const (
	StepAwaitingName         Step = "awaiting_name"
	StepAwaitingBrokerageAUM Step = "awaiting_brokerage_aum"
	StepAwaitingAdvisoryAUM  Step = "awaiting_advisory_aum"
	StepAwaitingRevenue      Step = "awaiting_revenue"
	StepAwaitingEmail        Step = "awaiting_email"
	StepSubmitting           Step = "submitting"
	StepComplete             Step = "complete"
)

// Field names the answer collected at a step.
type Field string

const (
	FieldName         Field = "name"
	FieldBrokerageAUM Field = "brokerageAum"
	FieldAdvisoryAUM  Field = "advisoryAum"
	FieldRevenue      Field = "revenue"
	FieldEmail        Field = "email"
)

// Speaker identifies who authored a transcript message.
type Speaker string

const (
	SpeakerUser      Speaker = "user"
	SpeakerAssistant Speaker = "assistant"
)

// Message is one transcript entry.
type Message struct {
	Speaker Speaker   `json:"speaker"`
	Text    string    `json:"text"`
	At      time.Time `json:"at"`
}

// Answer is an accepted user reply. Value is set for numeric fields.
type Answer struct {
	Field Field   `json:"field"`
	Raw   string  `json:"raw"`
	Value float64 `json:"value,omitempty"`
}

// Session is one visitor's in-progress conversation.
type Session struct {
	Key          string     `json:"key"`
	VisitorID    string     `json:"visitor_id"`
	TabID        string     `json:"tab_id"`
	Step         Step       `json:"step"`
	Answers      []Answer   `json:"answers"`
	Transcript   []Message  `json:"transcript"`
	SubmissionID string     `json:"submission_id,omitempty"`
	Valuation    float64    `json:"valuation,omitempty"`
	// ValuationDisclosed is set once the valuation was shown to the visitor.
	ValuationDisclosed bool       `json:"valuation_disclosed,omitempty"`
	CreatedAt          time.Time  `json:"created_at"`
	UpdatedAt          time.Time  `json:"updated_at"`
	CompletedAt        *time.Time `json:"completed_at,omitempty"`
}

// SessionKey joins visitor and tab identifiers.
func SessionKey(visitorID, tabID string) string {
	return visitorID + ":" + tabID
}

// NewSession creates an empty session waiting for the visitor's name.
func NewSession(visitorID, tabID string, now time.Time) *Session {
	return &Session{
		Key:       SessionKey(visitorID, tabID),
		VisitorID: visitorID,
		TabID:     tabID,
		Step:      StepAwaitingName,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// Answer returns the stored answer for a field.
func (s *Session) Answer(field Field) (Answer, bool) {
	for _, a := range s.Answers {
		if a.Field == field {
			return a, true
		}
	}
	return Answer{}, false
}

// SetAnswer stores or replaces the answer for a field, keeping collection order.
func (s *Session) SetAnswer(a Answer) {
	for i := range s.Answers {
		if s.Answers[i].Field == a.Field {
			s.Answers[i] = a
			return
		}
	}
	s.Answers = append(s.Answers, a)
}

// Append adds a message to the transcript.
func (s *Session) Append(speaker Speaker, text string, at time.Time) Message {
	msg := Message{Speaker: speaker, Text: text, At: at}
	s.Transcript = append(s.Transcript, msg)
	s.UpdatedAt = at
	return msg
}

// TTL returns the time until an idle session expires.
// Returns 0 if it has already expired.
func (s *Session) TTL(idle time.Duration) time.Duration {
	ttl := time.Until(s.UpdatedAt.Add(idle))
	if ttl < 0 {
		return 0
	}
	return ttl
}

// IsComplete reports whether the conversation has finished.
func (s *Session) IsComplete() bool {
	return s.Step == StepComplete
}

// Clone returns a deep copy safe to hand to other goroutines.
func (s *Session) Clone() *Session {
	c := *s
	c.Answers = append([]Answer(nil), s.Answers...)
	c.Transcript = append([]Message(nil), s.Transcript...)
	if s.CompletedAt != nil {
		t := *s.CompletedAt
		c.CompletedAt = &t
	}
	return &c
}
