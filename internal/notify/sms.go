package notify

import (
	"context"
	"fmt"

	"nailbook/internal/config"
	"nailbook/internal/models"

	"github.com/rs/zerolog"
	"github.com/twilio/twilio-go"
	twilioApi "github.com/twilio/twilio-go/rest/api/v2010"
)

// MessageCreator is satisfied by the Twilio REST client's Api service.
type MessageCreator interface {
	CreateMessage(params *twilioApi.CreateMessageParams) (*twilioApi.ApiV2010Message, error)
}

// SMSNotifier texts customers through Twilio.
type SMSNotifier struct {
	api    MessageCreator
	from   string
	logger *zerolog.Logger
}

func NewTwilioClient(cfg config.TwilioConfig) *twilio.RestClient {
	return twilio.NewRestClientWithParams(twilio.ClientParams{
		Username: cfg.AccountSID,
		Password: cfg.AuthToken,
	})
}

func NewSMSNotifier(api MessageCreator, from string, logger *zerolog.Logger) *SMSNotifier {
	return &SMSNotifier{api: api, from: from, logger: logger}
}

func (n *SMSNotifier) Name() string { return "sms" }

func (n *SMSNotifier) NotifyBooking(ctx context.Context, eventType string, b *models.Booking) error {
	if b.CustomerPhone == "" {
		return nil
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	params := &twilioApi.CreateMessageParams{}
	params.SetTo(b.CustomerPhone)
	params.SetFrom(n.from)
	params.SetBody(customerText(eventType, b))

	resp, err := n.api.CreateMessage(params)
	if err != nil {
		return fmt.Errorf("twilio send failed: %w", err)
	}
	if resp != nil && resp.Sid != nil {
		n.logger.Debug().Str("booking_id", b.ID).Str("sid", *resp.Sid).Msg("Customer SMS sent")
	}
	return nil
}
