package telegram

import (
	"context"

	"github.com/go-telegram/bot/models"

	"github.com/mixelka/inboxsync/internal/formatter"
	"github.com/mixelka/inboxsync/internal/parser"
	appmodels "github.com/mixelka/inboxsync/pkg/models"
)

// NotifyNewEmail posts a new_email push event to the configured chat. The
// full message is taken from the cache or fetched; code buttons are only
// offered for codes detected in the full message, since the show-code
// callback resolves its index against that same list. When the message
// cannot be loaded only the event summary and the read toggle are posted.
func (b *Bot) NotifyNewEmail(ctx context.Context, ev appmodels.NewEmailEvent) {
	var (
		text     string
		keyboard *models.InlineKeyboardMarkup
	)

	var msg *appmodels.Message
	if ev.ID != "" {
		found, err := b.messages.Lookup(ctx, ev.ID)
		if err != nil {
			b.logger.Warn("Failed to load notified email", "id", ev.ID, "error", err)
		}
		msg = found
	}

	if msg != nil {
		body, err := parser.Body(*msg)
		if err != nil {
			b.logger.Warn("Failed to render email body", "id", msg.ID, "error", err)
			body = msg.BodyText
		}
		codes := parser.MessageCodes(*msg)
		text = b.formatter.FormatEmail(*msg, body, codes)
		keyboard = formatter.BuildEmailKeyboard(msg.ID, codes, msg.IsRead)
	} else {
		text = b.formatter.FormatNotification(ev, parser.DetectCodes(ev.Subject))
		if ev.ID != "" {
			keyboard = formatter.BuildEmailKeyboard(ev.ID, nil, false)
		}
	}

	sent, err := b.sendMessageWithKeyboard(ctx, b.topicID, text, keyboard)
	if err != nil {
		b.logger.Error("Failed to send to telegram", "id", ev.ID, "error", err)
		return
	}

	b.logger.Info("Email sent to telegram", "id", ev.ID, "telegram_msg_id", sent.ID)
}
