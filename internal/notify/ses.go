package notify

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/ses"
	"github.com/aws/aws-sdk-go-v2/service/ses/types"
)

// SESDispatcher delivers security alerts to an operations mailbox via
// AWS SES.
type SESDispatcher struct {
	sesClient   *ses.Client
	fromAddress string
	toAddress   string
	logger      *slog.Logger
}

func NewSESDispatcher(region, fromAddress, toAddress string, logger *slog.Logger) (*SESDispatcher, error) {
	cfg, err := awsconfig.LoadDefaultConfig(context.Background(), awsconfig.WithRegion(region))
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	return &SESDispatcher{
		sesClient:   ses.NewFromConfig(cfg),
		fromAddress: fromAddress,
		toAddress:   toAddress,
		logger:      logger,
	}, nil
}

func (d *SESDispatcher) Dispatch(ctx context.Context, alert Alert) error {
	subject := fmt.Sprintf("[%s] security alert: %s", strings.ToUpper(string(alert.Severity)), alert.Category)

	var body strings.Builder
	fmt.Fprintf(&body, "Category: %s\n", alert.Category)
	fmt.Fprintf(&body, "Severity: %s\n", alert.Severity)
	fmt.Fprintf(&body, "Occurred: %s\n", alert.OccurredAt.UTC().Format("2006-01-02 15:04:05 UTC"))
	if alert.Email != "" {
		fmt.Fprintf(&body, "Account: %s\n", alert.Email)
	}
	if alert.IPAddress != "" {
		fmt.Fprintf(&body, "Source IP: %s\n", alert.IPAddress)
	}
	fmt.Fprintf(&body, "\n%s\n", alert.Reason)
	if len(alert.Evidence) > 0 {
		body.WriteString("\nEvidence:\n")
		for k, v := range alert.Evidence {
			fmt.Fprintf(&body, "  %s: %v\n", k, v)
		}
	}

	input := &ses.SendEmailInput{
		Source: aws.String(d.fromAddress),
		Destination: &types.Destination{
			ToAddresses: []string{d.toAddress},
		},
		Message: &types.Message{
			Subject: &types.Content{
				Data: aws.String(subject),
			},
			Body: &types.Body{
				Text: &types.Content{
					Data: aws.String(body.String()),
				},
			},
		},
	}

	result, err := d.sesClient.SendEmail(ctx, input)
	if err != nil {
		d.logger.Error("failed to send alert via SES",
			slog.String("category", alert.Category),
			slog.Any("error", err))
		return fmt.Errorf("failed to send alert: %w", err)
	}

	d.logger.Info("alert dispatched",
		slog.String("category", alert.Category),
		slog.String("message_id", *result.MessageId))

	return nil
}
