package notify

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
	tele "gopkg.in/telebot.v3"

	"stride-sync/internal/config"
)

// Telegram dispatches notifications through a Telegram bot. User IDs map to
// chat IDs via configuration; users without a mapping are silently skipped.
type Telegram struct {
	bot   *tele.Bot
	chats map[string]int64
}

// NewTelegram creates a Telegram dispatcher from configuration.
func NewTelegram(cfg *config.TelegramConfig) (*Telegram, error) {
	if cfg.Token == "" {
		return nil, fmt.Errorf("telegram token is required")
	}

	bot, err := tele.NewBot(tele.Settings{
		Token:  cfg.Token,
		Poller: &tele.LongPoller{Timeout: 10 * time.Second},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create telegram bot: %w", err)
	}

	return &Telegram{bot: bot, chats: cfg.Chats}, nil
}

// Send implements Dispatcher.
func (t *Telegram) Send(ctx context.Context, userID, message string) error {
	chatID, ok := t.chats[userID]
	if !ok {
		log.Debug().Str("user_id", userID).Msg("No chat mapping for user, dropping notification")
		return nil
	}

	if _, err := t.bot.Send(tele.ChatID(chatID), message); err != nil {
		return fmt.Errorf("failed to send telegram notification: %w", err)
	}
	return nil
}
