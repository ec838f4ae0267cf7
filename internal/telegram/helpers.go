package telegram

import (
	"context"

	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"
)

// sendMessage sends a message to the configured chat, in topicID when set
func (b *Bot) sendMessage(ctx context.Context, topicID int, text string) (*models.Message, error) {
	return b.sendMessageWithKeyboard(ctx, topicID, text, nil)
}

// sendMessageWithKeyboard sends a message with an optional inline keyboard
func (b *Bot) sendMessageWithKeyboard(ctx context.Context, topicID int, text string, keyboard *models.InlineKeyboardMarkup) (*models.Message, error) {
	params := &bot.SendMessageParams{
		ChatID:    b.chatID,
		Text:      text,
		ParseMode: models.ParseModeHTML,
	}

	if keyboard != nil {
		params.ReplyMarkup = keyboard
	}
	if topicID != 0 {
		params.MessageThreadID = topicID
	}

	return b.api.SendMessage(ctx, params)
}

// editMessageReplyMarkup replaces the keyboard of a sent message
func (b *Bot) editMessageReplyMarkup(ctx context.Context, chatID int64, msgID int, keyboard *models.InlineKeyboardMarkup) error {
	_, err := b.api.EditMessageReplyMarkup(ctx, &bot.EditMessageReplyMarkupParams{
		ChatID:      chatID,
		MessageID:   msgID,
		ReplyMarkup: keyboard,
	})
	return err
}

// answerCallback answers a callback query
func (b *Bot) answerCallback(ctx context.Context, callbackID, text string, showAlert bool) {
	_, err := b.api.AnswerCallbackQuery(ctx, &bot.AnswerCallbackQueryParams{
		CallbackQueryID: callbackID,
		Text:            text,
		ShowAlert:       showAlert,
	})
	if err != nil {
		b.logger.Warn("Failed to answer callback", "error", err)
	}
}
