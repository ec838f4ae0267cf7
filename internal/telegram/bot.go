package telegram

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"

	"github.com/mixelka/inboxsync/internal/accounts"
	"github.com/mixelka/inboxsync/internal/config"
	"github.com/mixelka/inboxsync/internal/formatter"
	"github.com/mixelka/inboxsync/internal/messages"
	"github.com/mixelka/inboxsync/internal/syncer"
)

// messenger is the part of the Bot API the bot calls; *bot.Bot implements it
type messenger interface {
	SendMessage(ctx context.Context, params *bot.SendMessageParams) (*models.Message, error)
	EditMessageReplyMarkup(ctx context.Context, params *bot.EditMessageReplyMarkupParams) (*models.Message, error)
	AnswerCallbackQuery(ctx context.Context, params *bot.AnswerCallbackQueryParams) (bool, error)
}

// Bot forwards new mail to a Telegram chat and accepts a few commands there
type Bot struct {
	bot       *bot.Bot
	api       messenger
	messages  *messages.Cache
	accounts  *accounts.Cache
	syncer    *syncer.Orchestrator
	formatter *formatter.TelegramFormatter
	logger    *slog.Logger
	chatID    int64
	topicID   int
}

// BotDeps dependencies for creating a bot
type BotDeps struct {
	Config    *config.Config
	Messages  *messages.Cache
	Accounts  *accounts.Cache
	Syncer    *syncer.Orchestrator
	Formatter *formatter.TelegramFormatter
	Logger    *slog.Logger
}

// NewBot creates a new Telegram bot
func NewBot(deps BotDeps) (*Bot, error) {
	b := newBot(deps)

	opts := []bot.Option{
		bot.WithDefaultHandler(b.defaultHandler),
	}

	tgBot, err := bot.New(deps.Config.TelegramToken, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create telegram bot: %w", err)
	}

	b.bot = tgBot
	b.api = tgBot
	b.registerHandlers()

	return b, nil
}

func newBot(deps BotDeps) *Bot {
	f := deps.Formatter
	if f == nil {
		f = formatter.NewTelegramFormatter()
	}
	return &Bot{
		messages:  deps.Messages,
		accounts:  deps.Accounts,
		syncer:    deps.Syncer,
		formatter: f,
		logger:    deps.Logger.With("component", "telegram_bot"),
		chatID:    deps.Config.TelegramChatID,
		topicID:   deps.Config.TelegramTopicID,
	}
}

// registerHandlers registers command handlers
func (b *Bot) registerHandlers() {
	b.bot.RegisterHandler(bot.HandlerTypeMessageText, "/status", bot.MatchTypePrefix, b.handleStatus)
	b.bot.RegisterHandler(bot.HandlerTypeMessageText, "/sync", bot.MatchTypePrefix, b.handleSync)
	b.bot.RegisterHandler(bot.HandlerTypeMessageText, "/start", bot.MatchTypePrefix, b.handleHelp)
	b.bot.RegisterHandler(bot.HandlerTypeMessageText, "/help", bot.MatchTypePrefix, b.handleHelp)
	b.bot.RegisterHandler(bot.HandlerTypeCallbackQueryData, "", bot.MatchTypePrefix, b.handleCallback)
}

// Start polls for updates until ctx is cancelled
func (b *Bot) Start(ctx context.Context) {
	b.logger.Info("Starting telegram bot", "chat_id", b.chatID, "topic_id", b.topicID)
	b.bot.Start(ctx)
}

// defaultHandler handles unknown messages
func (b *Bot) defaultHandler(ctx context.Context, tgBot *bot.Bot, update *models.Update) {
	if update.Message == nil {
		return
	}
	if update.Message.Text != "" && update.Message.Text[0] == '/' {
		b.logger.Debug("Unknown command", "text", update.Message.Text)
	}
}

// allowed reports whether a message comes from the configured chat
func (b *Bot) allowed(msg *models.Message) bool {
	if msg == nil {
		return false
	}
	if msg.Chat.ID != b.chatID {
		b.logger.Debug("Ignoring message from foreign chat", "chat_id", msg.Chat.ID)
		return false
	}
	return true
}

// handleHelp handles /start and /help
func (b *Bot) handleHelp(ctx context.Context, tgBot *bot.Bot, update *models.Update) {
	msg := update.Message
	if !b.allowed(msg) {
		return
	}

	text := `<b>mailsync</b>

New emails from your aggregated accounts are posted here.

<b>Commands:</b>
/status - accounts, unread and per-category counts
/sync - sync every account now

Buttons under each email mark it read or unread and reveal detected codes.`

	if _, err := b.sendMessage(ctx, msg.MessageThreadID, text); err != nil {
		b.logger.Error("Failed to send help", "error", err)
	}
}
