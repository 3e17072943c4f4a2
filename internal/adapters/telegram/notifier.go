package telegram

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"golang.org/x/time/rate"

	"costguard/internal/adapters/config"
	"costguard/internal/notify"
	"costguard/pkg/errors"
	"costguard/pkg/logger"
)

// severityEmoji marks alert urgency in the chat channel
var severityEmoji = map[string]string{
	"low":      "ℹ️",
	"medium":   "⚠️",
	"high":     "🔶",
	"critical": "🚨",
}

// Notifier renders operator notifications as Telegram messages.
// Outgoing calls are rate limited below Telegram's per-second cap.
type Notifier struct {
	api         *tgbotapi.BotAPI
	chatID      int64
	rateLimiter *rate.Limiter
	log         *logger.Logger
}

// NewNotifier creates a Telegram notifier
func NewNotifier(cfg config.TelegramConfig) (*Notifier, error) {
	if cfg.BotToken == "" {
		return nil, errors.Wrapf(errors.ErrInvalidInput, "telegram bot token is required")
	}

	httpClient := &http.Client{
		Timeout: 30 * time.Second,
	}

	api, err := tgbotapi.NewBotAPIWithClient(cfg.BotToken, tgbotapi.APIEndpoint, httpClient)
	if err != nil {
		return nil, errors.Wrap(err, "failed to create telegram bot")
	}

	return &Notifier{
		api:         api,
		chatID:      cfg.AlertChatID,
		rateLimiter: rate.NewLimiter(rate.Limit(20), 30),
		log:         logger.Get().With("component", "telegram_notifier"),
	}, nil
}

// Send renders and delivers one notification
func (n *Notifier) Send(ctx context.Context, notification notify.Notification) error {
	if err := n.rateLimiter.Wait(ctx); err != nil {
		return errors.Wrap(err, "rate limiter wait failed")
	}

	msg := tgbotapi.NewMessage(n.chatID, render(notification))
	msg.ParseMode = tgbotapi.ModeMarkdown

	if _, err := n.api.Send(msg); err != nil {
		return errors.Wrap(err, "failed to send telegram message")
	}

	n.log.Debugf("Sent %s notification to chat %d", notification.Kind, n.chatID)
	return nil
}

// render formats a notification as a Markdown alert
func render(n notify.Notification) string {
	var b strings.Builder

	emoji := severityEmoji[n.Severity]
	if emoji == "" {
		emoji = "📣"
	}

	fmt.Fprintf(&b, "%s *%s*\n\n", emoji, n.Subject)
	b.WriteString(n.Body)

	if !n.CreatedAt.IsZero() {
		fmt.Fprintf(&b, "\n\n_%s_", humanize.Time(n.CreatedAt))
	}

	return b.String()
}
