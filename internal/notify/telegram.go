package notify

import (
	"context"
	"fmt"
	"time"

	tele "gopkg.in/telebot.v3"

	"github.com/harmoniceagle/trader/internal/domain"
)

var telegramIcons = map[domain.Severity]string{
	domain.SeverityInfo:     "ℹ️",
	domain.SeveritySuccess:  "🟢",
	domain.SeverityWarning:  "⚠️",
	domain.SeverityCritical: "🔴",
}

// TelegramSender delivers notifications to a Telegram chat. The bot is
// send-only; no update polling is started.
type TelegramSender struct {
	bot    *tele.Bot
	chatID int64
}

// NewTelegramSender creates a TelegramSender. The token is verified against
// the Telegram API on construction.
func NewTelegramSender(token string, chatID int64) (*TelegramSender, error) {
	bot, err := tele.NewBot(tele.Settings{
		Token:  token,
		Poller: &tele.LongPoller{Timeout: 10 * time.Second},
	})
	if err != nil {
		return nil, fmt.Errorf("telegram: create bot: %w", err)
	}

	return &TelegramSender{bot: bot, chatID: chatID}, nil
}

// Send posts a message to the configured chat.
func (t *TelegramSender) Send(ctx context.Context, title, message string, severity domain.Severity) error {
	icon, ok := telegramIcons[severity]
	if !ok {
		icon = telegramIcons[domain.SeverityInfo]
	}

	text := fmt.Sprintf("%s *%s*\n%s", icon, title, message)

	_, err := t.bot.Send(tele.ChatID(t.chatID), text, tele.ModeMarkdown)
	if err != nil {
		return fmt.Errorf("telegram: send message: %w", err)
	}
	return nil
}

// Name returns the sender identifier.
func (t *TelegramSender) Name() string {
	return "telegram"
}
