package conversation

import (
	"regexp"
	"unicode/utf8"

	"github.com/ashureev/wealth-widget/internal/domain"
	"github.com/ashureev/wealth-widget/internal/valuation"
)

var emailPattern = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)

// Prompt is what the UI should currently show the visitor.
type Prompt struct {
	Text        string `json:"text"`
	Placeholder string `json:"placeholder"`
}

type stepRule struct {
	field       domain.Field
	placeholder string
	next        domain.Step
	// validate returns the accepted answer, or a corrective message.
	validate func(raw string, opts Options) (domain.Answer, string)
}

var flow = map[domain.Step]stepRule{
	domain.StepAwaitingName: {
		field:       domain.FieldName,
		placeholder: "Your name",
		next:        domain.StepAwaitingBrokerageAUM,
		validate:    validateName,
	},
	domain.StepAwaitingBrokerageAUM: {
		field:       domain.FieldBrokerageAUM,
		placeholder: "e.g. 250m",
		next:        domain.StepAwaitingAdvisoryAUM,
		validate:    amountValidator(domain.FieldBrokerageAUM),
	},
	domain.StepAwaitingAdvisoryAUM: {
		field:       domain.FieldAdvisoryAUM,
		placeholder: "e.g. 120m",
		next:        domain.StepAwaitingRevenue,
		validate:    amountValidator(domain.FieldAdvisoryAUM),
	},
	domain.StepAwaitingRevenue: {
		field:       domain.FieldRevenue,
		placeholder: "e.g. 5m",
		next:        domain.StepAwaitingEmail,
		validate:    amountValidator(domain.FieldRevenue),
	},
	domain.StepAwaitingEmail: {
		field:       domain.FieldEmail,
		placeholder: "you@example.com",
		next:        domain.StepSubmitting,
		validate:    validateEmail,
	},
}

func validateName(raw string, opts Options) (domain.Answer, string) {
	if raw == "" {
		return domain.Answer{}, nameRetry
	}
	if utf8.RuneCountInString(raw) < opts.minNameLength() {
		return domain.Answer{}, shortNameRetry
	}
	return domain.Answer{Field: domain.FieldName, Raw: raw}, ""
}

func amountValidator(field domain.Field) func(string, Options) (domain.Answer, string) {
	return func(raw string, opts Options) (domain.Answer, string) {
		v, ok := valuation.ParseAmountStrict(raw)
		if !ok {
			return domain.Answer{}, amountRetry
		}
		if v > valuation.MaxAmount {
			return domain.Answer{}, tooLargeRetry
		}
		if opts.RequirePositive && v <= 0 {
			return domain.Answer{}, positiveRetry
		}
		return domain.Answer{Field: field, Raw: raw, Value: v}, ""
	}
}

func validateEmail(raw string, _ Options) (domain.Answer, string) {
	if !emailPattern.MatchString(raw) {
		return domain.Answer{}, emailRetry
	}
	return domain.Answer{Field: domain.FieldEmail, Raw: raw}, ""
}

// ValidEmail reports whether s looks like a deliverable address.
func ValidEmail(s string) bool {
	return emailPattern.MatchString(s)
}

// PromptFor returns the assistant text and input placeholder that open the session's current step.
func PromptFor(s *domain.Session) Prompt {
	p := Prompt{Placeholder: flow[s.Step].placeholder}
	switch s.Step {
	case domain.StepAwaitingName:
		p.Text = greetingText
	case domain.StepAwaitingBrokerageAUM:
		name, _ := s.Answer(domain.FieldName)
		p.Text = brokeragePrompt(name.Raw)
	case domain.StepAwaitingAdvisoryAUM:
		p.Text = advisoryPrompt
	case domain.StepAwaitingRevenue:
		p.Text = revenuePrompt
	case domain.StepAwaitingEmail:
		p.Text = emailPrompt
	case domain.StepSubmitting, domain.StepComplete:
		p.Text = completeText
	}
	return p
}
