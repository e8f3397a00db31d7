package notify

import (
	"context"
	"fmt"

	"nailbook/internal/config"
	"nailbook/internal/models"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog"
)

// TelegramSender is the part of the bot API used for admin messages.
type TelegramSender interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
}

// TelegramNotifier posts booking summaries to the studio's admin chats.
type TelegramNotifier struct {
	bot     TelegramSender
	chatIDs []int64
	logger  *zerolog.Logger
}

// NewTelegramBot connects to the bot API with the configured token.
func NewTelegramBot(cfg config.TelegramConfig) (*tgbotapi.BotAPI, error) {
	bot, err := tgbotapi.NewBotAPI(cfg.BotToken)
	if err != nil {
		return nil, fmt.Errorf("failed to create telegram bot: %w", err)
	}
	bot.Debug = cfg.Debug
	return bot, nil
}

func NewTelegramNotifier(bot TelegramSender, chatIDs []int64, logger *zerolog.Logger) *TelegramNotifier {
	return &TelegramNotifier{bot: bot, chatIDs: chatIDs, logger: logger}
}

func (n *TelegramNotifier) Name() string { return "telegram" }

func (n *TelegramNotifier) NotifyBooking(ctx context.Context, eventType string, b *models.Booking) error {
	text := adminText(eventType, b)

	var firstErr error
	for _, chatID := range n.chatIDs {
		if err := ctx.Err(); err != nil {
			return err
		}
		msg := tgbotapi.NewMessage(chatID, text)
		if _, err := n.bot.Send(msg); err != nil {
			n.logger.Warn().Err(err).Int64("chat_id", chatID).Msg("Telegram send failed")
			if firstErr == nil {
				firstErr = fmt.Errorf("telegram chat %d: %w", chatID, err)
			}
		}
	}
	return firstErr
}
