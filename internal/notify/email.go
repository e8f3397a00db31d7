package notify

import (
	"context"
	"fmt"

	"nailbook/internal/config"
	"nailbook/internal/models"

	"github.com/rs/zerolog"
	"github.com/sendgrid/rest"
	"github.com/sendgrid/sendgrid-go"
	"github.com/sendgrid/sendgrid-go/helpers/mail"
)

// EmailClient is satisfied by *sendgrid.Client.
type EmailClient interface {
	SendWithContext(ctx context.Context, email *mail.SGMailV3) (*rest.Response, error)
}

// EmailNotifier mails customers about their booking via SendGrid.
type EmailNotifier struct {
	client    EmailClient
	fromEmail string
	fromName  string
	logger    *zerolog.Logger
}

func NewSendGridClient(cfg config.SendGridConfig) *sendgrid.Client {
	return sendgrid.NewSendClient(cfg.APIKey)
}

func NewEmailNotifier(client EmailClient, cfg config.SendGridConfig, logger *zerolog.Logger) *EmailNotifier {
	fromName := cfg.FromName
	if fromName == "" {
		fromName = "Nail Studio"
	}
	return &EmailNotifier{client: client, fromEmail: cfg.FromEmail, fromName: fromName, logger: logger}
}

func (n *EmailNotifier) Name() string { return "email" }

func (n *EmailNotifier) NotifyBooking(ctx context.Context, eventType string, b *models.Booking) error {
	if b.CustomerEmail == "" {
		return nil
	}

	from := mail.NewEmail(n.fromName, n.fromEmail)
	to := mail.NewEmail(b.CustomerName, b.CustomerEmail)
	body := customerText(eventType, b)
	message := mail.NewSingleEmail(from, customerSubject(eventType), to, body, "<p>"+body+"</p>")

	resp, err := n.client.SendWithContext(ctx, message)
	if err != nil {
		return fmt.Errorf("sendgrid send failed: %w", err)
	}
	if resp.StatusCode >= 400 {
		n.logger.Error().Int("status", resp.StatusCode).Str("body", resp.Body).Str("booking_id", b.ID).Msg("SendGrid returned error status")
		return fmt.Errorf("sendgrid returned status %d", resp.StatusCode)
	}

	n.logger.Debug().Str("booking_id", b.ID).Int("status", resp.StatusCode).Msg("Customer email sent")
	return nil
}
