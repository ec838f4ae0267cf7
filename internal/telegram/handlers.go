package telegram

import (
	"context"
	"fmt"

	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"

	"github.com/mixelka/inboxsync/internal/api"
	"github.com/mixelka/inboxsync/internal/formatter"
	"github.com/mixelka/inboxsync/internal/messages"
	"github.com/mixelka/inboxsync/internal/parser"
	appmodels "github.com/mixelka/inboxsync/pkg/models"
)

// handleStatus handles /status: refreshes both caches and reports counters
func (b *Bot) handleStatus(ctx context.Context, tgBot *bot.Bot, update *models.Update) {
	msg := update.Message
	if !b.allowed(msg) {
		return
	}

	if res := b.accounts.FetchAccounts(ctx); !res.Success {
		b.reply(ctx, msg, "Failed to load accounts: "+res.Error)
		return
	}
	if res := b.messages.FetchEmails(ctx, messages.Filter{}); !res.Success {
		b.reply(ctx, msg, "Failed to load emails: "+res.Error)
		return
	}

	text := b.formatter.FormatStatus(
		len(b.accounts.Accounts()),
		len(b.messages.Emails()),
		b.messages.UnreadCount(),
		b.messages.CategoryCounts(),
	)
	b.reply(ctx, msg, text)
}

// handleSync handles /sync: runs the bulk sync over the cached accounts
func (b *Bot) handleSync(ctx context.Context, tgBot *bot.Bot, update *models.Update) {
	msg := update.Message
	if !b.allowed(msg) {
		return
	}

	if res := b.accounts.FetchAccounts(ctx); !res.Success {
		b.reply(ctx, msg, "Failed to load accounts: "+res.Error)
		return
	}

	b.reply(ctx, msg, fmt.Sprintf("Syncing %d accounts...", len(b.accounts.Accounts())))
	result := b.syncer.SyncAll(ctx)
	b.reply(ctx, msg, b.formatter.FormatSyncResult(result))
}

func (b *Bot) reply(ctx context.Context, msg *models.Message, text string) {
	if _, err := b.sendMessage(ctx, msg.MessageThreadID, text); err != nil {
		b.logger.Error("Failed to send reply", "error", err)
	}
}

// handleCallback handles inline button callbacks
func (b *Bot) handleCallback(ctx context.Context, tgBot *bot.Bot, update *models.Update) {
	callback := update.CallbackQuery
	if callback == nil {
		return
	}

	origin := callback.Message.Message
	if origin == nil || !b.allowed(origin) {
		b.answerCallback(ctx, callback.ID, "Message is no longer available", false)
		return
	}

	data, err := formatter.DecodeCallback(callback.Data)
	if err != nil {
		b.logger.Error("Failed to decode callback", "error", err, "data", callback.Data)
		b.answerCallback(ctx, callback.ID, "Error", false)
		return
	}

	switch data.Action {
	case appmodels.CallbackMarkRead:
		b.handleToggleRead(ctx, callback, origin, data.MessageID, true)
	case appmodels.CallbackMarkUnread:
		b.handleToggleRead(ctx, callback, origin, data.MessageID, false)
	case appmodels.CallbackShowCode:
		b.handleShowCode(ctx, callback, data)
	default:
		b.answerCallback(ctx, callback.ID, "Unknown action", false)
	}
}

// handleToggleRead marks the message read or unread and flips the button
func (b *Bot) handleToggleRead(ctx context.Context, callback *models.CallbackQuery, origin *models.Message, id string, read bool) {
	var err error
	if read {
		err = b.messages.MarkAsRead(ctx, id)
	} else {
		err = b.messages.MarkAsUnread(ctx, id)
	}
	if err != nil {
		b.logger.Error("Failed to change read state", "id", id, "read", read, "error", err)
		b.answerCallback(ctx, callback.ID, "Error: "+api.Detail(err, "request failed"), false)
		return
	}

	codes := b.codesFor(ctx, id)
	keyboard := formatter.BuildEmailKeyboard(id, codes, read)
	if err := b.editMessageReplyMarkup(ctx, origin.Chat.ID, origin.ID, keyboard); err != nil {
		b.logger.Warn("Failed to update keyboard", "error", err)
	}

	answer := "Marked as unread"
	if read {
		answer = "Marked as read"
	}
	b.answerCallback(ctx, callback.ID, answer, false)
}

// handleShowCode reveals one detected code in an alert so it can be copied
func (b *Bot) handleShowCode(ctx context.Context, callback *models.CallbackQuery, data appmodels.CallbackData) {
	codes := b.codesFor(ctx, data.MessageID)
	if data.CodeIndex < 0 || data.CodeIndex >= len(codes) {
		b.answerCallback(ctx, callback.ID, "Code not found", false)
		return
	}

	b.answerCallback(ctx, callback.ID, "Code: "+codes[data.CodeIndex].Value, true)
}

// codesFor detects codes in a message without changing the focused message
func (b *Bot) codesFor(ctx context.Context, id string) []appmodels.DetectedCode {
	msg, err := b.messages.Lookup(ctx, id)
	if err != nil {
		b.logger.Warn("Failed to fetch email for codes", "id", id, "error", err)
		return nil
	}
	return parser.MessageCodes(*msg)
}
