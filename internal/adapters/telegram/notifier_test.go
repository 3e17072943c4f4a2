package telegram

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"costguard/internal/adapters/config"
	"costguard/internal/notify"
	"costguard/pkg/errors"
)

func TestNewNotifier_RequiresToken(t *testing.T) {
	_, err := NewNotifier(config.TelegramConfig{AlertChatID: 123})
	assert.ErrorIs(t, err, errors.ErrInvalidInput)
}

func TestRender(t *testing.T) {
	t.Run("critical anomaly", func(t *testing.T) {
		msg := render(notify.Notification{
			Kind:     "anomaly",
			Severity: "critical",
			Subject:  "openai cost anomaly (critical)",
			Body:     "OPENAI costs spiked 800.0% day-over-day ($10.00 → $90.00)",
		})

		assert.Contains(t, msg, "🚨 *openai cost anomaly (critical)*")
		assert.Contains(t, msg, "OPENAI costs spiked 800.0%")
	})

	t.Run("unknown severity falls back", func(t *testing.T) {
		msg := render(notify.Notification{
			Kind:    "action_status",
			Subject: "Action a1 approved",
			Body:    "body",
		})
		assert.Contains(t, msg, "📣 *Action a1 approved*")
	})

	t.Run("timestamp footer", func(t *testing.T) {
		msg := render(notify.Notification{
			Kind:      "anomaly",
			Severity:  "high",
			Subject:   "subject",
			Body:      "body",
			CreatedAt: time.Now().Add(-2 * time.Minute),
		})
		assert.Contains(t, msg, "minutes ago")
	})
}
