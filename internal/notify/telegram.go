package notify

import (
	"context"
	"fmt"
	"strconv"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

// Telegram sends MarkdownV2 messages to one chat.
type Telegram struct {
	bot            *tgbotapi.BotAPI
	chatID         int64
	maxRetries     int
	retryDelayBase time.Duration
}

// NewTelegram authenticates the bot and parses the target chat id.
func NewTelegram(botToken, chatID string, maxRetries int, retryDelayBase time.Duration) (*Telegram, error) {
	bot, err := tgbotapi.NewBotAPI(botToken)
	if err != nil {
		return nil, fmt.Errorf("create telegram bot: %w", err)
	}
	id, err := strconv.ParseInt(chatID, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid chat id: %w", err)
	}
	if maxRetries <= 0 {
		maxRetries = 3
	}
	if retryDelayBase <= 0 {
		retryDelayBase = time.Second
	}
	return &Telegram{bot: bot, chatID: id, maxRetries: maxRetries, retryDelayBase: retryDelayBase}, nil
}

// Send delivers text, retrying with a linearly growing delay.
func (t *Telegram) Send(ctx context.Context, text string) error {
	msg := tgbotapi.NewMessage(t.chatID, text)
	msg.ParseMode = tgbotapi.ModeMarkdownV2

	var lastErr error
	for i := 0; i < t.maxRetries; i++ {
		if _, err := t.bot.Send(msg); err == nil {
			return nil
		} else {
			lastErr = err
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(t.retryDelayBase * time.Duration(i+1)):
		}
	}
	return fmt.Errorf("telegram send failed after %d attempts: %w", t.maxRetries, lastErr)
}
