package services

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/ses"
	"github.com/aws/aws-sdk-go-v2/service/ses/types"

	"github.com/toolrental/rentkeeper/internal/schedule"
)

// AWSSESNotifier sends reset outcome emails via AWS SES.
type AWSSESNotifier struct {
	sesClient   *ses.Client
	fromAddress string
	toAddress   string
	logger      *slog.Logger
}

// NewAWSSESNotifier creates an SES-backed notifier for operator alerts.
func NewAWSSESNotifier(region, fromAddress, toAddress string, logger *slog.Logger) (*AWSSESNotifier, error) {
	cfg, err := config.LoadDefaultConfig(context.Background(), config.WithRegion(region))
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	return &AWSSESNotifier{
		sesClient:   ses.NewFromConfig(cfg),
		fromAddress: fromAddress,
		toAddress:   toAddress,
		logger:      logger,
	}, nil
}

// NotifyResetOutcome sends one email per reset attempt. Failure emails
// carry the raw error text so the operator can judge whether a customer
// changed the password out-of-band.
func (n *AWSSESNotifier) NotifyResetOutcome(ctx context.Context, outcome schedule.ResetOutcome) error {
	subject := fmt.Sprintf("Password rotation succeeded: %s @ %s", outcome.Username, outcome.Website)
	textBody := fmt.Sprintf(`Password rotation completed.

Account:  %s
Website:  %s

The new password has been stored and written back to the accounts config.

This is an automated message. Please do not reply to this email.
`, outcome.Username, outcome.Website)

	if !outcome.Success {
		subject = fmt.Sprintf("Password rotation FAILED: %s @ %s", outcome.Username, outcome.Website)
		textBody = fmt.Sprintf(`Password rotation failed.

Account:  %s
Website:  %s
Error:    %s

If the error indicates rejected credentials, the account has been parked
as an exception and needs the correct password supplied manually.

This is an automated message. Please do not reply to this email.
`, outcome.Username, outcome.Website, outcome.Error)
	}

	input := &ses.SendEmailInput{
		Source: aws.String(n.fromAddress),
		Destination: &types.Destination{
			ToAddresses: []string{n.toAddress},
		},
		Message: &types.Message{
			Subject: &types.Content{
				Data: aws.String(subject),
			},
			Body: &types.Body{
				Text: &types.Content{
					Data: aws.String(textBody),
				},
			},
		},
	}

	result, err := n.sesClient.SendEmail(ctx, input)
	if err != nil {
		n.logger.Error("failed to send reset notification via SES",
			slog.String("username", outcome.Username),
			slog.Any("error", err))
		return fmt.Errorf("failed to send email: %w", err)
	}

	n.logger.Info("reset notification sent",
		slog.String("username", outcome.Username),
		slog.String("message_id", *result.MessageId))
	return nil
}

// NopNotifier discards all notifications. Used when email notifications
// are disabled.
type NopNotifier struct{}

func (NopNotifier) NotifyResetOutcome(context.Context, schedule.ResetOutcome) error { return nil }
