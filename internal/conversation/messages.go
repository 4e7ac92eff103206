package conversation

import (
	"fmt"

	"github.com/ashureev/wealth-widget/internal/valuation"
)

const (
	greetingText = "Hi there! I can estimate what your practice might be worth in about a minute. To get started, what's your name?"

	advisoryPrompt = "Got it. And how much advisory AUM do you manage?"
	revenuePrompt  = "What was your practice's revenue over the last twelve months?"
	emailPrompt    = "Last question: what email address should we send your detailed breakdown to?"

	nameRetry      = "Please tell me your name so I know who I'm talking to."
	shortNameRetry = "Please enter your full name."
	amountRetry    = "I couldn't read that as an amount. Try something like 250m, 1.5 billion or $750,000."
	positiveRetry  = "Please enter an amount greater than zero."
	tooLargeRetry  = "That amount looks too large. Please double-check it and enter it in USD, like 250m or 1.2 billion."
	emailRetry     = "That doesn't look like a valid email address. Please check it and try again."
	completeText   = "This conversation is complete. Refresh to start a new valuation."
)

func brokeragePrompt(name string) string {
	return fmt.Sprintf("Nice to meet you, %s! How much brokerage AUM does your practice manage? Amounts in USD like 250m or 1.2 billion work fine.", name)
}

func disclosure(name string, amount float64) string {
	return fmt.Sprintf("Thanks, %s! Based on what you shared, your practice's estimated value is %s. You'll receive a detailed breakdown by email shortly.",
		name, valuation.FormatUSD(amount))
}

func submitFailure(name string) string {
	return fmt.Sprintf("Thanks, %s. We couldn't record your details just now, so please try again in a few minutes.", name)
}
