package notify

import (
	"context"
	"errors"
	"fmt"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog"
)

const telegramAttempts = 3

type telegramSender interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
}

// TelegramNotifier posts confirmations to the owner's chat, or to a fallback chat when the
// owner has none.
type TelegramNotifier struct {
	bot          telegramSender
	fallbackChat int64
	backoff      time.Duration
	logger       zerolog.Logger
}

func NewTelegramBot(token string) (*tgbotapi.BotAPI, error) {
	bot, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("create telegram bot: %w", err)
	}
	bot.Debug = false
	return bot, nil
}

func NewTelegramNotifier(bot telegramSender, fallbackChat int64, logger zerolog.Logger) *TelegramNotifier {
	return &TelegramNotifier{
		bot:          bot,
		fallbackChat: fallbackChat,
		backoff:      time.Second,
		logger:       logger.With().Str("notifier", "telegram").Logger(),
	}
}

func (n *TelegramNotifier) NotifyBookingConfirmed(ctx context.Context, msg Message) error {
	chatID := msg.Recipients.TelegramChatID
	if chatID == 0 {
		chatID = n.fallbackChat
	}
	if chatID == 0 {
		n.logger.Debug().Str("booking_id", msg.BookingID).Msg("no telegram chat for recipient")
		return nil
	}

	out := tgbotapi.NewMessage(chatID, msg.Text())

	var err error
	for i := 0; i < telegramAttempts; i++ {
		if _, err = n.bot.Send(out); err == nil {
			return nil
		}
		n.logger.Warn().Err(err).Int("retry", i+1).Msg("send failed, retrying")

		if i == telegramAttempts-1 {
			break
		}
		select {
		case <-ctx.Done():
			return errors.Join(err, ctx.Err())
		case <-time.After(n.backoff << i):
		}
	}
	n.logger.Error().Err(err).Msg("send permanently failed")
	return fmt.Errorf("telegram: send booking %s: %w", msg.BookingID, err)
}
