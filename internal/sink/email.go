package sink

import (
	"context"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/ses"
	"github.com/aws/aws-sdk-go-v2/service/ses/types"

	"github.com/ashureev/wealth-widget/internal/domain"
	"github.com/ashureev/wealth-widget/internal/valuation"
)

const breakdownSubject = "Your practice valuation breakdown"

// SESService is the subset of the SES client used here.
type SESService interface {
	SendEmail(ctx context.Context, params *ses.SendEmailInput, optFns ...func(*ses.Options)) (*ses.SendEmailOutput, error)
}

// Email sends the visitor a breakdown of their valuation through Amazon SES.
type Email struct {
	client SESService
	from   string
}

// NewSESClient loads the default AWS configuration for region.
func NewSESClient(ctx context.Context, region string) (*ses.Client, error) {
	cfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(region))
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}
	return ses.NewFromConfig(cfg), nil
}

// NewEmail creates an email sink sending from the given address.
func NewEmail(client SESService, from string) *Email {
	return &Email{client: client, from: from}
}

// Name implements Sink.
func (e *Email) Name() string { return "email" }

// Submit implements Sink.
func (e *Email) Submit(ctx context.Context, rec domain.SubmissionRecord) error {
	body := BreakdownText(rec)
	_, err := e.client.SendEmail(ctx, &ses.SendEmailInput{
		Source: aws.String(e.from),
		Destination: &types.Destination{
			ToAddresses: []string{rec.Email},
		},
		Message: &types.Message{
			Subject: &types.Content{Data: aws.String(breakdownSubject)},
			Body: &types.Body{
				Text: &types.Content{Data: aws.String(body)},
			},
		},
	})
	if err != nil {
		return fmt.Errorf("send breakdown email: %w", err)
	}
	return nil
}

// BreakdownText renders the plain-text valuation breakdown.
func BreakdownText(rec domain.SubmissionRecord) string {
	tier := valuation.TierFor(rec.AUM)

	var b strings.Builder
	fmt.Fprintf(&b, "Hi %s,\n\n", rec.Name)
	b.WriteString("Thanks for using our practice valuation tool. Here is how we arrived at your estimate.\n\n")
	fmt.Fprintf(&b, "Brokerage AUM: %s at %gx = %s\n", valuation.FormatUSD(rec.BrokerageAUM), tier.BrokerageMultiple,
		valuation.FormatUSD(rec.BrokerageAUM*tier.BrokerageMultiple))
	fmt.Fprintf(&b, "Advisory AUM: %s at %gx = %s\n", valuation.FormatUSD(rec.AdvisoryAUM), tier.AdvisoryMultiple,
		valuation.FormatUSD(rec.AdvisoryAUM*tier.AdvisoryMultiple))
	fmt.Fprintf(&b, "Total AUM: %s (tier %d)\n", valuation.FormatUSD(rec.AUM), tier.Level)
	fmt.Fprintf(&b, "Annual revenue: %s\n\n", valuation.FormatUSD(rec.Revenue))
	fmt.Fprintf(&b, "Estimated practice value: %s\n", valuation.FormatUSD(rec.Valuation))
	return b.String()
}
